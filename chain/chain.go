package chain

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/midbel/xslchain/xml"
	"github.com/midbel/xslchain/xslt"
)

type Method int8

const (
	MethodXml Method = iota
	MethodHtml
	MethodText
)

func (m Method) String() string {
	switch m {
	case MethodHtml:
		return xslt.MethodHtml
	case MethodText:
		return xslt.MethodText
	default:
		return xslt.MethodXml
	}
}

func methodOf(name string) Method {
	switch name {
	case xslt.MethodHtml:
		return MethodHtml
	case xslt.MethodText:
		return MethodText
	default:
		return MethodXml
	}
}

// ProposeExtension gives the extension of a file holding a result
// serialized with m.
func ProposeExtension(m Method) string {
	switch m {
	case MethodHtml:
		return "html"
	case MethodText:
		return "txt"
	default:
		return "xml"
	}
}

// ProposeOutput gives the file to write the result of input into:
// <name>.out.<ext> in the directory of input.
func ProposeOutput(input string, m Method) string {
	var (
		dir  = filepath.Dir(input)
		name = filepath.Base(input)
	)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	return filepath.Join(dir, fmt.Sprintf("%s.out.%s", name, ProposeExtension(m)))
}

type Param struct {
	Name  string
	Value string
}

// Stage is a stylesheet to apply with the values of its parameters.
type Stage struct {
	Path   string
	Params []Param
}

// Validate checks that every parameter has a valid name. The same name can
// be given more than once.
func (s Stage) Validate() error {
	for _, p := range s.Params {
		if p.Name == "" {
			return fmt.Errorf("parameter without name")
		}
		if _, err := xml.ParseName(p.Name); err != nil {
			return fmt.Errorf("%s: invalid parameter name", p.Name)
		}
	}
	return nil
}

// Bindings returns the value bound to each parameter, the last one given
// for a name winning.
func (s Stage) Bindings() map[string]string {
	set := make(map[string]string)
	for _, p := range s.Params {
		set[p.Name] = p.Value
	}
	return set
}

// Result is the output of the last stage of a chain. The caller owns Body
// and must release it, Write does it.
type Result struct {
	Body     *Buffer
	Encoding string
	Method   Method
}

func (r *Result) Release() {
	if r == nil {
		return
	}
	r.Body.Release()
}

type Option func(*Chain)

func WithResolver(res xslt.Resolver) Option {
	return func(c *Chain) {
		c.resolver = res
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Chain) {
		c.logger = logger
	}
}

func WithTracer(tracer xslt.Tracer) Option {
	return func(c *Chain) {
		c.tracer = tracer
	}
}

// Chain applies stylesheets one after the other, each one transforming the
// result of the previous one. A Chain runs one transformation at a time.
type Chain struct {
	config   ReaderConfiguration
	settings TransformSettings
	resolver xslt.Resolver
	logger   *slog.Logger
	tracer   xslt.Tracer
}

func New(cfg ReaderConfiguration, settings TransformSettings, options ...Option) *Chain {
	c := Chain{
		config:   cfg,
		settings: settings,
		resolver: xslt.DefaultResolver(),
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, o := range options {
		o(&c)
	}
	return &c
}

// Run validates input then transforms it with each stage in turn.
func (c *Chain) Run(input string, stages []Stage) (*Result, error) {
	now := time.Now()
	c.logger.Debug("validating input", "file", input, "validation", c.config.Validation)
	if err := readFile(input, c.config, nil); err != nil {
		return nil, err
	}
	c.logger.Debug("input validated", "file", input, "elapsed", time.Since(now))
	if len(stages) == 0 {
		return nil, newError(KindNoStylesheets, input, nil)
	}

	var (
		doc    *xml.Document
		prev   *Buffer
		method Method
		output xslt.Output
	)
	defer func() {
		prev.Release()
	}()
	for i, s := range stages {
		now := time.Now()
		c.logger.Debug("stage start", "stylesheet", s.Path, "index", i)
		sheet, err := load(s.Path, c.settings, c.resolver, c.tracer, c.logger)
		if err != nil {
			return nil, err
		}
		if err := s.Validate(); err != nil {
			return nil, newError(KindStylesheetError, s.Path, err)
		}
		for name, value := range s.Bindings() {
			sheet.SetParam(name, value)
		}
		if i == 0 {
			doc, err = c.parseInput(input)
		} else {
			doc, err = reparse(prev, stages[i-1].Path)
		}
		if err != nil {
			return nil, err
		}
		res, err := sheet.Transform(doc)
		if err != nil {
			return nil, newError(KindTransformError, s.Path, err)
		}
		output = sheet.Output()
		method = methodOf(output.ResultMethod(res))

		out := NewBuffer()
		if err := output.Serialize(out, res); err != nil {
			out.Release()
			return nil, newError(KindTransformError, s.Path, err)
		}
		out.Rewind()
		prev.Release()
		prev = out
		c.logger.Info("stage done", "stylesheet", s.Path, "index", i, "method", method, "elapsed", time.Since(now))
	}
	res := Result{
		Body:     prev,
		Encoding: output.Encoding,
		Method:   method,
	}
	prev = nil
	return &res, nil
}

func (c *Chain) parseInput(file string) (*xml.Document, error) {
	r, err := os.Open(file)
	if err != nil {
		return nil, newError(KindNotFound, file, err)
	}
	defer r.Close()

	p := xml.NewParserWithReader(newReader(r, file, c.config))
	p.URI = file
	doc, err := p.Parse()
	if err != nil {
		return nil, readError(file, err)
	}
	return doc, nil
}

// reparse reads the whole intermediate result once to check that it is
// well-formed then builds the tree given to the next stage.
func reparse(buf *Buffer, previous string) (*xml.Document, error) {
	cfg := DefaultReaderConfiguration()
	cfg.DtdPolicy = DtdIgnore
	if _, err := readDocument(buf, "", cfg, nil); err != nil {
		return nil, newError(KindIntermediateResultError, previous, errors.Unwrap(err))
	}
	buf.Rewind()

	p := xml.NewParserWithReader(newReader(buf, "", cfg))
	doc, err := p.Parse()
	if err != nil {
		return nil, newError(KindIntermediateResultError, previous, err)
	}
	return doc, nil
}
