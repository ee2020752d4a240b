// Package settings loads the configuration of xslchain from YAML files.
package settings

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/midbel/xslchain/chain"
)

const DefaultFile = "xslchain.yml"

var ErrInvalid = errors.New("invalid settings")

type Reader struct {
	Dtd                        string `yaml:"dtd"`
	Validation                 string `yaml:"validation"`
	CheckCharacters            *bool  `yaml:"check_characters,omitempty"`
	AllowXmlAttributes         *bool  `yaml:"allow_xml_attributes,omitempty"`
	ProcessIdentityConstraints *bool  `yaml:"process_identity_constraints,omitempty"`
	ProcessSchemaLocation      *bool  `yaml:"process_schema_location,omitempty"`
	ProcessInlineSchema        *bool  `yaml:"process_inline_schema,omitempty"`
	ReportValidationWarnings   *bool  `yaml:"report_validation_warnings,omitempty"`
}

type Transform struct {
	DocumentFunction *bool `yaml:"document_function,omitempty"`
	Script           *bool `yaml:"script,omitempty"`
}

type Output struct {
	WriteUtf8Bom *bool `yaml:"write_utf8_bom,omitempty"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Settings are the options of a run. They implement chain.Source.
type Settings struct {
	Reader    Reader    `yaml:"reader"`
	Transform Transform `yaml:"transform"`
	Output    Output    `yaml:"output"`
	Log       Log       `yaml:"log"`
}

func enabled(b bool) *bool {
	return &b
}

// Default returns the settings used when no file is given.
func Default() *Settings {
	s := Settings{
		Reader: Reader{
			Dtd:                        chain.DtdProhibit.String(),
			Validation:                 chain.ValidationNone.String(),
			CheckCharacters:            enabled(true),
			AllowXmlAttributes:         enabled(false),
			ProcessIdentityConstraints: enabled(true),
			ProcessSchemaLocation:      enabled(true),
			ProcessInlineSchema:        enabled(false),
			ReportValidationWarnings:   enabled(false),
		},
		Transform: Transform{
			DocumentFunction: enabled(false),
			Script:           enabled(false),
		},
		Output: Output{
			WriteUtf8Bom: enabled(true),
		},
		Log: Log{
			Level:  "info",
			Format: "text",
		},
	}
	return &s
}

// Load reads the settings in file. Environment variables are expanded
// after the .env file next to it, if any, has been loaded. Entries not
// given keep their default value.
func Load(file string) (*Settings, error) {
	env := filepath.Join(filepath.Dir(file), ".env")
	if err := godotenv.Load(env); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", env, err)
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	s := Default()
	if err := decode(bytes.NewReader([]byte(os.ExpandEnv(string(data)))), s); err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}
	return s, nil
}

func decode(r io.Reader, v any) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	err := dec.Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// Save writes s into file, replacing it if it exists.
func (s *Settings) Save(file string) error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return os.WriteFile(file, buf.Bytes(), 0o644)
}

func (s *Settings) Validate() error {
	if _, err := chain.ParseDtdPolicy(s.Reader.Dtd); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if _, err := chain.ParseValidation(s.Reader.Validation); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if _, err := s.Log.level(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	switch strings.ToLower(s.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: %s: unknown log format", ErrInvalid, s.Log.Format)
	}
	return nil
}

func (s *Settings) DtdPolicy() chain.DtdPolicy {
	p, _ := chain.ParseDtdPolicy(s.Reader.Dtd)
	return p
}

func (s *Settings) Validation() chain.Validation {
	v, _ := chain.ParseValidation(s.Reader.Validation)
	return v
}

// Bool returns the value of the entry named key and whether it is set.
func (s *Settings) Bool(key string) (bool, bool) {
	var ptr *bool
	switch key {
	case chain.KeyCheckCharacters:
		ptr = s.Reader.CheckCharacters
	case chain.KeyAllowXmlAttributes:
		ptr = s.Reader.AllowXmlAttributes
	case chain.KeyProcessIdentityConstraints:
		ptr = s.Reader.ProcessIdentityConstraints
	case chain.KeyProcessSchemaLocation:
		ptr = s.Reader.ProcessSchemaLocation
	case chain.KeyProcessInlineSchema:
		ptr = s.Reader.ProcessInlineSchema
	case chain.KeyReportValidationWarnings:
		ptr = s.Reader.ReportValidationWarnings
	case chain.KeyDocumentFunction:
		ptr = s.Transform.DocumentFunction
	case chain.KeyScript:
		ptr = s.Transform.Script
	case chain.KeyWriteUtf8Bom:
		ptr = s.Output.WriteUtf8Bom
	}
	if ptr == nil {
		return false, false
	}
	return *ptr, true
}

// Set changes the boolean entry named key.
func (s *Settings) Set(key string, value bool) error {
	switch key {
	case chain.KeyCheckCharacters:
		s.Reader.CheckCharacters = enabled(value)
	case chain.KeyAllowXmlAttributes:
		s.Reader.AllowXmlAttributes = enabled(value)
	case chain.KeyProcessIdentityConstraints:
		s.Reader.ProcessIdentityConstraints = enabled(value)
	case chain.KeyProcessSchemaLocation:
		s.Reader.ProcessSchemaLocation = enabled(value)
	case chain.KeyProcessInlineSchema:
		s.Reader.ProcessInlineSchema = enabled(value)
	case chain.KeyReportValidationWarnings:
		s.Reader.ReportValidationWarnings = enabled(value)
	case chain.KeyDocumentFunction:
		s.Transform.DocumentFunction = enabled(value)
	case chain.KeyScript:
		s.Transform.Script = enabled(value)
	case chain.KeyWriteUtf8Bom:
		s.Output.WriteUtf8Bom = enabled(value)
	default:
		return fmt.Errorf("%w: %s: unknown entry", ErrInvalid, key)
	}
	return nil
}

// WriteBom tells whether a UTF-8 byte order mark is kept in output files.
func (s *Settings) WriteBom() bool {
	v, ok := s.Bool(chain.KeyWriteUtf8Bom)
	return !ok || v
}

func (g Log) level() (slog.Level, error) {
	switch strings.ToLower(g.Level) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("%s: unknown log level", g.Level)
	}
}

// Logger creates a logger writing to w according to the log settings.
func (s *Settings) Logger(w io.Writer) *slog.Logger {
	level, _ := s.Log.level()
	opts := slog.HandlerOptions{
		Level: level,
	}
	var handler slog.Handler
	if strings.ToLower(s.Log.Format) == "json" {
		handler = slog.NewJSONHandler(w, &opts)
	} else {
		handler = slog.NewTextHandler(w, &opts)
	}
	return slog.New(handler)
}
