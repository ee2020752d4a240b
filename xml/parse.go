package xml

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const MaxDepth = 512

const (
	SupportedVersion  = "1.0"
	SupportedEncoding = "UTF-8"
)

type Position struct {
	Line   int
	Column int
}

// ParseError reports a well-formedness error.
type ParseError struct {
	Position
	Element string
	Message string
}

func createParseError(elem, msg string, pos Position) error {
	return ParseError{
		Position: pos,
		Element:  elem,
		Message:  msg,
	}
}

func (p ParseError) Error() string {
	return fmt.Sprintf("%d:%d: %s: %s", p.Line, p.Column, p.Element, p.Message)
}

// IsParseError reports whether err is or wraps a ParseError.
func IsParseError(err error) bool {
	var pe ParseError
	return errors.As(err, &pe)
}

type Parser struct {
	reader *Reader

	TrimSpace bool
	KeepSpace func(*Element) bool
	URI       string
}

func NewParser(r io.Reader) *Parser {
	return &Parser{
		reader: NewReader(r),
	}
}

// NewParserWithReader creates a parser on top of a reader already
// configured by the caller.
func NewParserWithReader(r *Reader) *Parser {
	return &Parser{
		reader: r,
	}
}

func ParseFile(file string) (*Document, error) {
	r, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	p := NewParser(r)
	p.URI = file
	p.SetDoctype(DoctypeParse, ExternalFromDir(filepath.Dir(file)))
	return p.Parse()
}

func ParseString(xml string) (*Document, error) {
	return ParseReader(strings.NewReader(xml))
}

func ParseReader(r io.Reader) (*Document, error) {
	return NewParser(r).Parse()
}

// SetDoctype changes how the document type declaration is handled.
func (p *Parser) SetDoctype(mode DoctypeMode, ext ExternalFunc) {
	p.reader.Doctype = mode
	p.reader.External = ext
}

func (p *Parser) Parse() (*Document, error) {
	var (
		doc  = EmptyDocument()
		curr Container
	)
	doc.URI = p.URI
	curr = doc
	for {
		node, err := p.reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, ErrClosed) {
			if parent := node.Parent(); parent != nil {
				curr = parent.(Container)
			} else {
				curr = doc
			}
			continue
		}
		if err != nil {
			return nil, err
		}
		switch n := node.(type) {
		case *Text:
			if p.TrimSpace && strings.TrimSpace(n.Content) == "" {
				el, ok := curr.(*Element)
				if !ok || p.KeepSpace == nil || !p.KeepSpace(el) {
					continue
				}
			}
			curr.Append(n)
		case *Element:
			curr.Append(n)
			curr = n
		default:
			curr.Append(node)
		}
	}
	doc.Version = p.reader.Version
	doc.Encoding = p.reader.Encoding
	doc.Standalone = p.reader.Standalone
	doc.DocType = p.reader.DocType
	if dt := doc.DocType; dt != nil && dt.Decls != nil {
		applyDefaults(doc, dt.Decls)
	}
	return doc, nil
}

// ExternalFromDir opens external subsets relative to dir.
func ExternalFromDir(dir string) ExternalFunc {
	return func(system string) (io.ReadCloser, error) {
		if strings.Contains(system, "://") {
			return nil, fmt.Errorf("%s: external subset not reachable", system)
		}
		if !filepath.IsAbs(system) {
			system = filepath.Join(dir, system)
		}
		return os.Open(system)
	}
}
