package xml

import (
	"bufio"
	"bytes"
	stdxml "encoding/xml"
	"errors"
	"fmt"
	"io"
	"regexp"
	"slices"
	"strings"
	"unicode"

	"github.com/midbel/xslchain/environ"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding/unicode/utf32"
	xunicode "golang.org/x/text/encoding/unicode"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

var (
	ErrClosed  = errors.New("closed")
	ErrBreak   = errors.New("break")
	ErrDiscard = errors.New("discard")
)

// DoctypeMode tells a Reader what to do with a document type declaration.
type DoctypeMode int8

const (
	DoctypeProhibit DoctypeMode = iota
	DoctypeIgnore
	DoctypeParse
)

func (m DoctypeMode) String() string {
	switch m {
	case DoctypeProhibit:
		return "prohibit"
	case DoctypeIgnore:
		return "ignore"
	case DoctypeParse:
		return "parse"
	default:
		return "unknown"
	}
}

// ExternalFunc opens the external subset of a DTD given its system
// identifier.
type ExternalFunc func(system string) (io.ReadCloser, error)

type OnElementFunc func(*Reader, *Element) error

type OnNodeFunc func(*Reader, Node) error

type OnSet struct {
	onOpen  map[QName]OnElementFunc
	onClose map[QName]OnElementFunc
	onNode  map[NodeType]OnNodeFunc
}

// Reader reads a document node by node, checking well-formedness as it
// goes. Elements are returned twice: once when opened and once, with
// ErrClosed, when closed.
type Reader struct {
	decoder *stdxml.Decoder
	input   io.Reader

	Doctype  DoctypeMode
	External ExternalFunc

	DocType    *DocType
	Version    string
	Encoding   string
	Standalone string

	elements   []*Element
	namespaces environ.Environ[string]
	count      int
	rootSeen   bool
	rootClosed bool
	done       bool

	stack []OnSet
}

// NewReader reads the document in r. Unless strict is false, characters
// outside the XML character range are rejected; otherwise they are replaced
// by U+FFFD before tokenizing.
func NewReader(r io.Reader) *Reader {
	return newReader(r, true)
}

func NewLenientReader(r io.Reader) *Reader {
	return newReader(r, false)
}

func newReader(r io.Reader, strict bool) *Reader {
	rs := Reader{
		input:      r,
		Doctype:    DoctypeProhibit,
		namespaces: environ.Empty[string](),
		Version:    SupportedVersion,
		Encoding:   SupportedEncoding,
	}
	in, enc, err := decodeInput(r)
	if err != nil {
		in = &failingReader{
			err: createParseError("document", err.Error(), Position{Line: 1, Column: 1}),
		}
	}
	if enc != "" {
		rs.Encoding = enc
	}
	if !strict {
		in = transform.NewReader(in, runes.Map(replaceInvalid))
	}
	rs.decoder = stdxml.NewDecoder(in)
	rs.decoder.Strict = true
	rs.decoder.Entity = make(map[string]string)
	rs.decoder.CharsetReader = func(_ string, r io.Reader) (io.Reader, error) {
		return r, nil
	}
	rs.namespaces.Define("", "")
	rs.namespaces.Define("xml", NamespaceXML)
	rs.namespaces.Define("xmlns", NamespaceXMLNS)
	rs.Push()
	return &rs
}

// Start reads the whole document, dispatching every node to the callbacks
// registered on the reader. A callback returning ErrBreak stops the reading
// without error, ErrDiscard skips the content of the element just opened.
func (r *Reader) Start() error {
	for {
		node, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil && !errors.Is(err, ErrClosed) {
			return err
		}
		closed := errors.Is(err, ErrClosed)
		if err := r.dispatch(node, closed); err != nil {
			if errors.Is(err, ErrBreak) {
				return nil
			}
			if errors.Is(err, ErrDiscard) && !closed {
				if err := r.discard(); err != nil {
					return err
				}
				continue
			}
			return err
		}
	}
}

func (r *Reader) OnOpen(name QName, fn OnElementFunc) {
	if i := len(r.stack) - 1; i >= 0 {
		r.stack[i].onOpen[name] = fn
	}
}

func (r *Reader) OnClose(name QName, fn OnElementFunc) {
	if i := len(r.stack) - 1; i >= 0 {
		r.stack[i].onClose[name] = fn
	}
}

func (r *Reader) OnNode(kind NodeType, fn OnNodeFunc) {
	if i := len(r.stack) - 1; i >= 0 {
		r.stack[i].onNode[kind] = fn
	}
}

func (r *Reader) Push() {
	s := OnSet{
		onOpen:  make(map[QName]OnElementFunc),
		onClose: make(map[QName]OnElementFunc),
		onNode:  make(map[NodeType]OnNodeFunc),
	}
	r.stack = append(r.stack, s)
}

func (r *Reader) Pop() {
	if i := len(r.stack); i > 1 {
		r.stack = r.stack[:i-1]
	}
}

// Depth returns the number of elements currently open.
func (r *Reader) Depth() int {
	return len(r.elements)
}

func (r *Reader) dispatch(node Node, closed bool) error {
	set := r.stack[len(r.stack)-1]
	if el, ok := node.(*Element); ok {
		var fn OnElementFunc
		if closed {
			fn = set.onClose[LocalName(el.Name)]
			if f, ok := set.onClose[el.QName]; ok {
				fn = f
			}
		} else {
			fn = set.onOpen[LocalName(el.Name)]
			if f, ok := set.onOpen[el.QName]; ok {
				fn = f
			}
		}
		if fn != nil {
			return fn(r, el)
		}
		if closed {
			return nil
		}
	}
	if fn, ok := set.onNode[node.Type()]; ok {
		return fn(r, node)
	}
	return nil
}

func (r *Reader) discard() error {
	depth := len(r.elements)
	for len(r.elements) >= depth {
		_, err := r.Read()
		if err != nil && !errors.Is(err, ErrClosed) {
			return err
		}
	}
	return nil
}

// Read returns the next node of the document. It returns io.EOF once the
// document has been fully and successfully read.
func (r *Reader) Read() (Node, error) {
	for {
		if r.done {
			return nil, io.EOF
		}
		tok, err := r.decoder.RawToken()
		if errors.Is(err, io.EOF) {
			return nil, r.finish()
		}
		if err != nil {
			return nil, r.convertError(err)
		}
		r.count++
		node, err := r.handle(tok)
		if node != nil || err != nil {
			return node, err
		}
	}
}

func (r *Reader) finish() error {
	r.done = true
	if n := len(r.elements); n > 0 {
		return r.createError(r.elements[n-1].QualifiedName(), "unexpected end of document: element not closed")
	}
	if !r.rootSeen {
		return r.createError("document", "document without root element")
	}
	return io.EOF
}

func (r *Reader) handle(tok stdxml.Token) (Node, error) {
	switch tok := tok.(type) {
	case stdxml.StartElement:
		return r.openElement(tok)
	case stdxml.EndElement:
		return r.closeElement(tok)
	case stdxml.CharData:
		return r.readText(tok)
	case stdxml.Comment:
		return NewComment(string(tok)), nil
	case stdxml.ProcInst:
		return r.readInstruction(tok)
	case stdxml.Directive:
		return nil, r.readDirective(tok)
	default:
		return nil, r.createError("document", "unexpected token")
	}
}

func (r *Reader) openElement(tok stdxml.StartElement) (Node, error) {
	name := rawName(tok.Name)
	if len(r.elements) == 0 {
		if r.rootClosed {
			return nil, r.createError(name, "document with multiple root elements")
		}
		r.rootSeen = true
	}
	if len(r.elements) >= MaxDepth {
		return nil, r.createError(name, "maximum depth reached")
	}
	r.namespaces = environ.Enclosed(r.namespaces)

	var (
		elem = NewElement(QualifiedName(tok.Name.Local, tok.Name.Space))
		seen = make(map[string]struct{})
	)
	for _, a := range tok.Attr {
		qn := rawName(a.Name)
		if _, ok := seen[qn]; ok {
			return nil, r.createError(name, fmt.Sprintf("%s: duplicate attribute", qn))
		}
		seen[qn] = struct{}{}
		switch {
		case a.Name.Space == "" && a.Name.Local == "xmlns":
			r.namespaces.Define("", a.Value)
			elem.DeclareNamespace("", a.Value)
		case a.Name.Space == "xmlns":
			if a.Value == "" {
				return nil, r.createError(name, fmt.Sprintf("%s: empty namespace", qn))
			}
			r.namespaces.Define(a.Name.Local, a.Value)
			elem.DeclareNamespace(a.Name.Local, a.Value)
		}
	}
	uri, err := r.namespaces.Resolve(elem.Space)
	if err != nil {
		return nil, r.createError(name, fmt.Sprintf("%s: undeclared namespace prefix", elem.Space))
	}
	elem.Uri = uri

	for _, a := range tok.Attr {
		if (a.Name.Space == "" && a.Name.Local == "xmlns") || a.Name.Space == "xmlns" {
			continue
		}
		qn := QualifiedName(a.Name.Local, a.Name.Space)
		if qn.Space != "" {
			uri, err := r.namespaces.Resolve(qn.Space)
			if err != nil {
				return nil, r.createError(name, fmt.Sprintf("%s: undeclared namespace prefix", qn.Space))
			}
			qn.Uri = uri
		}
		if _, ok := elem.GetAttributeNS(qn); ok {
			return nil, r.createError(name, fmt.Sprintf("%s: duplicate attribute", qn.QualifiedName()))
		}
		elem.SetAttribute(NewAttribute(qn, a.Value))
	}
	if n := len(r.elements); n > 0 {
		elem.setParent(r.elements[n-1])
	}
	r.elements = append(r.elements, elem)
	return elem, nil
}

func (r *Reader) closeElement(tok stdxml.EndElement) (Node, error) {
	name := rawName(tok.Name)
	n := len(r.elements)
	if n == 0 {
		return nil, r.createError(name, "unexpected closing element")
	}
	elem := r.elements[n-1]
	if elem.QualifiedName() != name {
		return nil, r.createError(name, fmt.Sprintf("element mismatched: %s expected", elem.QualifiedName()))
	}
	r.elements = r.elements[:n-1]
	if u, ok := r.namespaces.(interface{ Unwrap() environ.Environ[string] }); ok {
		r.namespaces = u.Unwrap()
	}
	if len(r.elements) == 0 {
		r.rootClosed = true
	}
	return elem, ErrClosed
}

func (r *Reader) readText(tok stdxml.CharData) (Node, error) {
	if len(r.elements) == 0 {
		if len(bytes.TrimFunc(tok, isSpace)) > 0 {
			return nil, r.createError("document", "text outside of root element")
		}
		return nil, nil
	}
	if len(tok) == 0 {
		return nil, nil
	}
	return NewText(string(tok)), nil
}

func (r *Reader) readInstruction(tok stdxml.ProcInst) (Node, error) {
	if strings.EqualFold(tok.Target, "xml") {
		if tok.Target != "xml" || r.count > 1 {
			return nil, r.createError(tok.Target, "xml declaration not at start of document")
		}
		if v, ok := pseudoAttr(tok.Inst, "version"); ok {
			r.Version = v
		}
		if v, ok := pseudoAttr(tok.Inst, "encoding"); ok {
			r.Encoding = v
		}
		if v, ok := pseudoAttr(tok.Inst, "standalone"); ok {
			r.Standalone = v
		}
		return nil, nil
	}
	if !isName(tok.Target) || strings.Contains(tok.Target, ":") {
		return nil, r.createError(tok.Target, "invalid processing instruction target")
	}
	return NewInstruction(tok.Target, strings.TrimLeftFunc(string(tok.Inst), unicode.IsSpace)), nil
}

func (r *Reader) readDirective(tok stdxml.Directive) error {
	str := strings.TrimSpace(string(tok))
	if !strings.HasPrefix(str, "DOCTYPE") {
		return r.createError("document", "unsupported markup declaration")
	}
	if r.rootSeen || r.DocType != nil {
		return r.createError("DOCTYPE", "unexpected document type declaration")
	}
	switch r.Doctype {
	case DoctypeProhibit:
		return r.createError("DOCTYPE", "DTD is prohibited in this document")
	case DoctypeIgnore:
		return nil
	default:
	}
	dt, err := ParseDoctype(str)
	if err != nil {
		return r.createError("DOCTYPE", err.Error())
	}
	if dt.SystemID != "" && r.External != nil {
		rc, err := r.External(dt.SystemID)
		if err != nil {
			return r.createError("DOCTYPE", fmt.Sprintf("%s: %s", dt.SystemID, err))
		}
		defer rc.Close()
		ext, err := ParseDeclarations(rc)
		if err != nil {
			return r.createError("DOCTYPE", fmt.Sprintf("%s: %s", dt.SystemID, err))
		}
		dt.Decls.Merge(ext)
	}
	for name, value := range dt.Decls.Entities {
		r.decoder.Entity[name] = value
	}
	r.DocType = dt
	return nil
}

func (r *Reader) convertError(err error) error {
	var se *stdxml.SyntaxError
	if errors.As(err, &se) {
		line, col := r.decoder.InputPos()
		if se.Line > 0 && se.Line != line {
			line, col = se.Line, 0
		}
		elem := "document"
		if n := len(r.elements); n > 0 {
			elem = r.elements[n-1].QualifiedName()
		}
		return ParseError{
			Position: Position{Line: line, Column: col},
			Element:  elem,
			Message:  se.Msg,
		}
	}
	return err
}

func (r *Reader) createError(elem, msg string) error {
	line, col := r.decoder.InputPos()
	return createParseError(elem, msg, Position{Line: line, Column: col})
}

func rawName(name stdxml.Name) string {
	if name.Space == "" {
		return name.Local
	}
	return name.Space + ":" + name.Local
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}

func isName(str string) bool {
	if str == "" {
		return false
	}
	for i, r := range str {
		if r == '_' || r == ':' || unicode.IsLetter(r) {
			continue
		}
		if i > 0 && (r == '-' || r == '.' || unicode.IsDigit(r) || r == '·' || unicode.In(r, unicode.Mn, unicode.Mc)) {
			continue
		}
		return false
	}
	return true
}

func isChar(r rune) bool {
	return r == 0x09 || r == 0x0A || r == 0x0D ||
		(r >= 0x20 && r <= 0xD7FF) ||
		(r >= 0xE000 && r <= 0xFFFD) ||
		(r >= 0x10000 && r <= 0x10FFFF)
}

func replaceInvalid(r rune) rune {
	if isChar(r) {
		return r
	}
	return unicode.ReplacementChar
}

var encodingDecl = regexp.MustCompile(`^<\?xml[^>]*?encoding\s*=\s*["']([A-Za-z][A-Za-z0-9._-]*)["']`)

// decodeInput turns the input into UTF-8, honouring a byte order mark first
// and the encoding given by the XML declaration otherwise. It returns the
// name of the encoding found in the input.
func decodeInput(r io.Reader) (io.Reader, string, error) {
	br := bufio.NewReader(r)
	head, _ := br.Peek(4)
	switch {
	case bytes.HasPrefix(head, []byte{0xEF, 0xBB, 0xBF}):
		br.Discard(3)
		return br, "", nil
	case bytes.HasPrefix(head, []byte{0x00, 0x00, 0xFE, 0xFF}):
		dec := utf32.UTF32(utf32.BigEndian, utf32.ExpectBOM).NewDecoder()
		return transform.NewReader(br, dec), "UTF-32", nil
	case bytes.HasPrefix(head, []byte{0xFF, 0xFE, 0x00, 0x00}):
		dec := utf32.UTF32(utf32.LittleEndian, utf32.ExpectBOM).NewDecoder()
		return transform.NewReader(br, dec), "UTF-32", nil
	case bytes.HasPrefix(head, []byte{0xFE, 0xFF}):
		dec := xunicode.UTF16(xunicode.BigEndian, xunicode.ExpectBOM).NewDecoder()
		return transform.NewReader(br, dec), "UTF-16", nil
	case bytes.HasPrefix(head, []byte{0xFF, 0xFE}):
		dec := xunicode.UTF16(xunicode.LittleEndian, xunicode.ExpectBOM).NewDecoder()
		return transform.NewReader(br, dec), "UTF-16", nil
	}
	prolog, _ := br.Peek(256)
	match := encodingDecl.FindSubmatch(prolog)
	if match == nil {
		return br, "", nil
	}
	label := strings.ToLower(string(match[1]))
	if slices.Contains([]string{"utf-8", "utf8", "us-ascii", "ascii"}, label) {
		return br, "", nil
	}
	dec, err := charset.NewReaderLabel(label, br)
	if err != nil {
		return nil, "", fmt.Errorf("%s: unsupported encoding", match[1])
	}
	return dec, "", nil
}

type failingReader struct {
	err error
}

func (r *failingReader) Read(_ []byte) (int, error) {
	return 0, r.err
}
