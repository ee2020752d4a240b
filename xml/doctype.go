package xml

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"
)

var ErrDeclaration = errors.New("invalid markup declaration")

type ContentKind int8

const (
	ContentEmpty ContentKind = iota
	ContentAny
	ContentMixed
	ContentChildren
)

type ElementDecl struct {
	Name  string
	Kind  ContentKind
	Model string
}

type AttrDefault int8

const (
	AttrImplied AttrDefault = iota
	AttrRequired
	AttrFixed
	AttrValue
)

type AttrDecl struct {
	Element string
	Name    string
	Type    string
	Enum    []string
	Default AttrDefault
	Value   string
}

// Declarations holds the markup declarations of a DTD. When a name is
// declared more than once, the first declaration is binding.
type Declarations struct {
	Entities   map[string]string
	Unparsed   map[string]string
	Elements   map[string]*ElementDecl
	Attributes map[string][]*AttrDecl
}

func NewDeclarations() *Declarations {
	return &Declarations{
		Entities:   make(map[string]string),
		Unparsed:   make(map[string]string),
		Elements:   make(map[string]*ElementDecl),
		Attributes: make(map[string][]*AttrDecl),
	}
}

func (d *Declarations) Merge(other *Declarations) {
	for k, v := range other.Entities {
		if _, ok := d.Entities[k]; !ok {
			d.Entities[k] = v
		}
	}
	for k, v := range other.Unparsed {
		if _, ok := d.Unparsed[k]; !ok {
			d.Unparsed[k] = v
		}
	}
	for k, v := range other.Elements {
		if _, ok := d.Elements[k]; !ok {
			d.Elements[k] = v
		}
	}
	for _, list := range other.Attributes {
		for _, a := range list {
			d.addAttribute(a)
		}
	}
}

func (d *Declarations) Attribute(elem, name string) (*AttrDecl, bool) {
	for _, a := range d.Attributes[elem] {
		if a.Name == name {
			return a, true
		}
	}
	return nil, false
}

func (d *Declarations) addAttribute(attr *AttrDecl) {
	if _, ok := d.Attribute(attr.Element, attr.Name); ok {
		return
	}
	d.Attributes[attr.Element] = append(d.Attributes[attr.Element], attr)
}

// ParseDoctype parses the content of a DOCTYPE directive, the text between
// "<!" and ">".
func ParseDoctype(str string) (*DocType, error) {
	str = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(str), "DOCTYPE"))
	var (
		dt DocType
		s  = declScanner{input: str}
	)
	dt.Name = s.name()
	if dt.Name == "" {
		return nil, fmt.Errorf("doctype: name is missing")
	}
	s.skipSpace()
	var err error
	switch {
	case s.consume("PUBLIC"):
		if dt.PublicID, err = s.literal(); err != nil {
			return nil, err
		}
		if dt.SystemID, err = s.literal(); err != nil {
			return nil, err
		}
	case s.consume("SYSTEM"):
		if dt.SystemID, err = s.literal(); err != nil {
			return nil, err
		}
	}
	s.skipSpace()
	if s.peek() == '[' {
		end := strings.LastIndexByte(s.input, ']')
		if end < s.offset {
			return nil, fmt.Errorf("doctype: internal subset not closed")
		}
		dt.Subset = s.input[s.offset+1 : end]
	}
	decls, err := parseDeclarations(dt.Subset)
	if err != nil {
		return nil, err
	}
	dt.Decls = decls
	return &dt, nil
}

func ParseDeclarations(r io.Reader) (*Declarations, error) {
	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	str := string(buf)
	if strings.HasPrefix(str, "<?xml") {
		if ix := strings.Index(str, "?>"); ix >= 0 {
			str = str[ix+2:]
		}
	}
	return parseDeclarations(str)
}

func parseDeclarations(str string) (*Declarations, error) {
	var (
		decls = NewDeclarations()
		s     = declScanner{input: str}
	)
	for {
		s.skipSpace()
		if s.done() {
			return decls, nil
		}
		switch {
		case s.consume("<!--"):
			if !s.skipUntil("-->") {
				return nil, fmt.Errorf("%w: comment not closed", ErrDeclaration)
			}
		case s.consume("<?"):
			if !s.skipUntil("?>") {
				return nil, fmt.Errorf("%w: processing instruction not closed", ErrDeclaration)
			}
		case s.consume("<!ELEMENT"):
			if err := s.elementDecl(decls); err != nil {
				return nil, err
			}
		case s.consume("<!ATTLIST"):
			if err := s.attlistDecl(decls); err != nil {
				return nil, err
			}
		case s.consume("<!ENTITY"):
			if err := s.entityDecl(decls); err != nil {
				return nil, err
			}
		case s.consume("<!NOTATION"):
			if !s.skipUntil(">") {
				return nil, fmt.Errorf("%w: notation not closed", ErrDeclaration)
			}
		case s.peek() == '%':
			if !s.skipUntil(";") {
				return nil, fmt.Errorf("%w: parameter entity reference", ErrDeclaration)
			}
		default:
			return nil, fmt.Errorf("%w: unexpected character %q", ErrDeclaration, s.peek())
		}
	}
}

type declScanner struct {
	input  string
	offset int
}

func (s *declScanner) done() bool {
	return s.offset >= len(s.input)
}

func (s *declScanner) peek() byte {
	if s.done() {
		return 0
	}
	return s.input[s.offset]
}

func (s *declScanner) consume(prefix string) bool {
	if strings.HasPrefix(s.input[s.offset:], prefix) {
		s.offset += len(prefix)
		return true
	}
	return false
}

func (s *declScanner) skipUntil(marker string) bool {
	ix := strings.Index(s.input[s.offset:], marker)
	if ix < 0 {
		s.offset = len(s.input)
		return false
	}
	s.offset += ix + len(marker)
	return true
}

func (s *declScanner) skipSpace() {
	for !s.done() && isSpace(rune(s.input[s.offset])) {
		s.offset++
	}
}

func (s *declScanner) name() string {
	s.skipSpace()
	start := s.offset
	for !s.done() {
		c := rune(s.input[s.offset])
		if isSpace(c) || strings.ContainsRune("()|,?*+>[\"'", c) {
			break
		}
		s.offset++
	}
	return s.input[start:s.offset]
}

func (s *declScanner) literal() (string, error) {
	s.skipSpace()
	quote := s.peek()
	if quote != '"' && quote != '\'' {
		return "", fmt.Errorf("%w: quoted literal expected", ErrDeclaration)
	}
	s.offset++
	ix := strings.IndexByte(s.input[s.offset:], quote)
	if ix < 0 {
		return "", fmt.Errorf("%w: literal not closed", ErrDeclaration)
	}
	str := s.input[s.offset : s.offset+ix]
	s.offset += ix + 1
	return str, nil
}

// until returns the text up to the closing '>' of the current declaration,
// ignoring the markers found in quoted literals.
func (s *declScanner) until() (string, error) {
	var (
		start = s.offset
		quote byte
	)
	for !s.done() {
		c := s.input[s.offset]
		switch {
		case quote != 0 && c == quote:
			quote = 0
		case quote != 0:
		case c == '"' || c == '\'':
			quote = c
		case c == '>':
			str := s.input[start:s.offset]
			s.offset++
			return str, nil
		}
		s.offset++
	}
	return "", fmt.Errorf("%w: declaration not closed", ErrDeclaration)
}

func (s *declScanner) elementDecl(decls *Declarations) error {
	name := s.name()
	if name == "" {
		return fmt.Errorf("%w: element name missing", ErrDeclaration)
	}
	body, err := s.until()
	if err != nil {
		return err
	}
	body = strings.Join(strings.Fields(body), "")
	decl := ElementDecl{
		Name:  name,
		Model: body,
	}
	switch {
	case body == "EMPTY":
		decl.Kind = ContentEmpty
	case body == "ANY":
		decl.Kind = ContentAny
	case strings.HasPrefix(body, "(#PCDATA"):
		decl.Kind = ContentMixed
	case strings.HasPrefix(body, "("):
		decl.Kind = ContentChildren
	default:
		return fmt.Errorf("%w: %s: invalid content model", ErrDeclaration, name)
	}
	if _, ok := decls.Elements[name]; !ok {
		decls.Elements[name] = &decl
	}
	return nil
}

func (s *declScanner) attlistDecl(decls *Declarations) error {
	elem := s.name()
	if elem == "" {
		return fmt.Errorf("%w: attlist element missing", ErrDeclaration)
	}
	for {
		s.skipSpace()
		if s.peek() == '>' {
			s.offset++
			return nil
		}
		if s.done() {
			return fmt.Errorf("%w: attlist not closed", ErrDeclaration)
		}
		attr := AttrDecl{
			Element: elem,
			Name:    s.name(),
		}
		if attr.Name == "" {
			return fmt.Errorf("%w: %s: attribute name missing", ErrDeclaration, elem)
		}
		s.skipSpace()
		if s.peek() == '(' {
			attr.Type = "ENUMERATION"
			attr.Enum = s.enumeration()
		} else {
			attr.Type = s.name()
			if attr.Type == "NOTATION" {
				s.skipSpace()
				attr.Enum = s.enumeration()
			}
		}
		s.skipSpace()
		switch {
		case s.consume("#REQUIRED"):
			attr.Default = AttrRequired
		case s.consume("#IMPLIED"):
			attr.Default = AttrImplied
		case s.consume("#FIXED"):
			attr.Default = AttrFixed
			value, err := s.literal()
			if err != nil {
				return err
			}
			attr.Value = expandCharRefs(value)
		default:
			attr.Default = AttrValue
			value, err := s.literal()
			if err != nil {
				return err
			}
			attr.Value = expandCharRefs(value)
		}
		decls.addAttribute(&attr)
	}
}

func (s *declScanner) enumeration() []string {
	if s.peek() != '(' {
		return nil
	}
	end := strings.IndexByte(s.input[s.offset:], ')')
	if end < 0 {
		s.offset = len(s.input)
		return nil
	}
	body := s.input[s.offset+1 : s.offset+end]
	s.offset += end + 1
	var list []string
	for _, v := range strings.Split(body, "|") {
		list = append(list, strings.TrimSpace(v))
	}
	return list
}

func (s *declScanner) entityDecl(decls *Declarations) error {
	s.skipSpace()
	parameter := s.consume("%")
	name := s.name()
	if name == "" {
		return fmt.Errorf("%w: entity name missing", ErrDeclaration)
	}
	s.skipSpace()
	if q := s.peek(); q == '"' || q == '\'' {
		value, err := s.literal()
		if err != nil {
			return err
		}
		if _, err := s.until(); err != nil {
			return err
		}
		if _, ok := decls.Entities[name]; !ok && !parameter {
			decls.Entities[name] = expandCharRefs(value)
		}
		return nil
	}
	body, err := s.until()
	if err != nil {
		return err
	}
	fields := strings.Fields(body)
	if parameter || len(fields) < 2 {
		return nil
	}
	var system string
	switch fields[0] {
	case "SYSTEM":
		system = strings.Trim(fields[1], `"'`)
	case "PUBLIC":
		if len(fields) > 2 {
			system = strings.Trim(fields[2], `"'`)
		}
	}
	for i := range fields {
		if fields[i] == "NDATA" {
			decls.Unparsed[name] = system
			break
		}
	}
	return nil
}

func expandCharRefs(str string) string {
	if !strings.Contains(str, "&#") {
		return str
	}
	var b strings.Builder
	for {
		ix := strings.Index(str, "&#")
		if ix < 0 {
			b.WriteString(str)
			break
		}
		end := strings.IndexByte(str[ix:], ';')
		if end < 0 {
			b.WriteString(str)
			break
		}
		b.WriteString(str[:ix])
		ref := str[ix+2 : ix+end]
		var (
			n   uint64
			err error
		)
		if strings.HasPrefix(ref, "x") {
			n, err = strconv.ParseUint(ref[1:], 16, 32)
		} else {
			n, err = strconv.ParseUint(ref, 10, 32)
		}
		if err != nil || !isChar(rune(n)) {
			b.WriteString(str[ix : ix+end+1])
		} else {
			b.WriteRune(rune(n))
		}
		str = str[ix+end+1:]
	}
	return b.String()
}

// applyDefaults adds the defaulted and fixed attributes declared in decls to
// the elements of the tree rooted at node.
func applyDefaults(node Node, decls *Declarations) {
	el, ok := node.(*Element)
	if ok {
		for _, a := range decls.Attributes[el.QualifiedName()] {
			if a.Default != AttrValue && a.Default != AttrFixed {
				continue
			}
			if _, ok := el.GetAttribute(a.Name); ok {
				continue
			}
			qn, err := ParseName(a.Name)
			if err != nil {
				continue
			}
			if qn.Space != "" {
				uri, ok := el.LookupNamespace(qn.Space)
				if !ok {
					continue
				}
				qn.Uri = uri
			}
			el.SetAttribute(NewAttribute(qn, a.Value))
		}
	}
	if c, ok := node.(Container); ok {
		for _, n := range c.Children() {
			applyDefaults(n, decls)
		}
	}
}

func isNmtoken(str string) bool {
	if str == "" {
		return false
	}
	for _, r := range str {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune("._-:", r) {
			continue
		}
		return false
	}
	return true
}

// IsNmtoken reports whether str matches the Nmtoken production.
func IsNmtoken(str string) bool {
	return isNmtoken(str)
}

// IsName reports whether str matches the Name production.
func IsName(str string) bool {
	return isName(str)
}
