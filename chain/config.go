package chain

import (
	"fmt"
	"strings"

	"github.com/midbel/xslchain/xml"
)

type DtdPolicy int8

const (
	DtdProhibit DtdPolicy = iota
	DtdIgnore
	DtdParse
)

func (d DtdPolicy) String() string {
	switch d {
	case DtdIgnore:
		return "ignore"
	case DtdParse:
		return "parse"
	default:
		return "prohibit"
	}
}

func ParseDtdPolicy(str string) (DtdPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(str)) {
	case "", "prohibit":
		return DtdProhibit, nil
	case "ignore":
		return DtdIgnore, nil
	case "parse":
		return DtdParse, nil
	default:
		return DtdProhibit, fmt.Errorf("%s: unknown dtd policy", str)
	}
}

func (d DtdPolicy) mode() xml.DoctypeMode {
	switch d {
	case DtdIgnore:
		return xml.DoctypeIgnore
	case DtdParse:
		return xml.DoctypeParse
	default:
		return xml.DoctypeProhibit
	}
}

type Validation int8

const (
	ValidationNone Validation = iota
	ValidationDtd
	ValidationSchema
)

func (v Validation) String() string {
	switch v {
	case ValidationDtd:
		return "dtd"
	case ValidationSchema:
		return "schema"
	default:
		return "none"
	}
}

func ParseValidation(str string) (Validation, error) {
	switch strings.ToLower(strings.TrimSpace(str)) {
	case "", "none":
		return ValidationNone, nil
	case "dtd":
		return ValidationDtd, nil
	case "schema", "xsd":
		return ValidationSchema, nil
	default:
		return ValidationNone, fmt.Errorf("%s: unknown validation type", str)
	}
}

type Flags uint8

const (
	AllowXmlAttributes Flags = 1 << iota
	ProcessIdentityConstraints
	ProcessSchemaLocation
	ProcessInlineSchema
	ReportValidationWarnings
)

func (f Flags) Has(flag Flags) bool {
	return f&flag == flag
}

type Severity int8

const (
	SeverityWarning Severity = iota
	SeverityError
)

func (s Severity) String() string {
	if s == SeverityWarning {
		return "warning"
	}
	return "error"
}

// ValidationEvent is a problem found by a validator.
type ValidationEvent struct {
	Severity
	Message string
}

func (v ValidationEvent) String() string {
	return fmt.Sprintf("%s: %s", v.Severity, v.Message)
}

type Handler func(ValidationEvent)

// ReaderConfiguration tells how input documents are read and validated.
// A value is never modified once built.
type ReaderConfiguration struct {
	DtdPolicy       DtdPolicy
	Validation      Validation
	CheckCharacters bool
	Flags           Flags
	Handler         Handler
}

// DefaultReaderConfiguration reads documents without DTD nor validation.
func DefaultReaderConfiguration() ReaderConfiguration {
	return ReaderConfiguration{
		CheckCharacters: true,
	}
}

// Source gives the configuration entries used to build reader and
// transform settings. Getters return false when an entry is not set.
type Source interface {
	DtdPolicy() DtdPolicy
	Validation() Validation
	Bool(key string) (bool, bool)
}

const (
	KeyCheckCharacters            = "check_characters"
	KeyAllowXmlAttributes         = "allow_xml_attributes"
	KeyProcessIdentityConstraints = "process_identity_constraints"
	KeyProcessSchemaLocation      = "process_schema_location"
	KeyProcessInlineSchema        = "process_inline_schema"
	KeyReportValidationWarnings   = "report_validation_warnings"
	KeyDocumentFunction           = "document_function"
	KeyScript                     = "script"
	KeyWriteUtf8Bom               = "write_utf8_bom"
)

var flagKeys = []struct {
	key  string
	flag Flags
}{
	{KeyAllowXmlAttributes, AllowXmlAttributes},
	{KeyProcessIdentityConstraints, ProcessIdentityConstraints},
	{KeyProcessSchemaLocation, ProcessSchemaLocation},
	{KeyProcessInlineSchema, ProcessInlineSchema},
	{KeyReportValidationWarnings, ReportValidationWarnings},
}

// Build creates the reader configuration from src. When warnings are
// reported, validation events are sent to sink instead of failing the read.
func Build(src Source, sink Sink) ReaderConfiguration {
	cfg := ReaderConfiguration{
		DtdPolicy:       src.DtdPolicy(),
		Validation:      src.Validation(),
		CheckCharacters: true,
	}
	if v, ok := src.Bool(KeyCheckCharacters); ok && !v {
		cfg.CheckCharacters = false
	}
	if cfg.Validation == ValidationNone {
		return cfg
	}
	for _, f := range flagKeys {
		if v, ok := src.Bool(f.key); ok && v {
			cfg.Flags |= f.flag
		}
	}
	if cfg.Flags.Has(ReportValidationWarnings) {
		if sink == nil {
			sink = discardSink{}
		}
		cfg.Handler = func(ev ValidationEvent) {
			kind := KindValidationError
			if ev.Severity == SeverityWarning {
				kind = KindValidationWarning
			}
			sink.Send(Event{
				Kind:   kind,
				Params: []string{ev.String()},
			})
		}
	}
	return cfg
}

// TransformSettings enables the features of stylesheets that reach outside
// of the transformed document.
type TransformSettings struct {
	AllowDocumentFunction bool
	AllowEmbeddedScript   bool
}

func BuildTransformSettings(src Source) TransformSettings {
	var ts TransformSettings
	if v, ok := src.Bool(KeyDocumentFunction); ok {
		ts.AllowDocumentFunction = v
	}
	if v, ok := src.Bool(KeyScript); ok {
		ts.AllowEmbeddedScript = v
	}
	return ts
}
