// Package dtd validates a parsed document against the markup declarations
// of its document type declaration.
package dtd

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/midbel/xslchain/xml"
)

var ErrInvalid = errors.New("document is not valid")

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

// Error is a validity error or warning. Path locates the node in the
// document.
type Error struct {
	Severity
	Path    string
	Element string
	Message string
}

func (e Error) Error() string {
	if e.Element == "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Path, e.Element, e.Message)
}

func (e Error) Unwrap() error {
	return ErrInvalid
}

// Handler receives every validity problem. When a handler is set, Validate
// never fails on validity errors.
type Handler func(Error)

type Option func(*Validator)

// WithHandler reports the problems to fn instead of failing.
func WithHandler(fn Handler) Option {
	return func(v *Validator) {
		v.handler = fn
	}
}

// WithXmlAttributes accepts undeclared attributes of the xml namespace.
func WithXmlAttributes(allow bool) Option {
	return func(v *Validator) {
		v.allowXml = allow
	}
}

type Validator struct {
	decls    *xml.Declarations
	name     string
	models   map[string]*regexp.Regexp
	mixed    map[string][]string
	handler  Handler
	allowXml bool

	ids  map[string]string
	refs []reference
	err  error
}

type reference struct {
	value string
	path  string
	elem  string
}

// New prepares a validator for the declarations of dt. Content models are
// compiled once.
func New(dt *xml.DocType, options ...Option) (*Validator, error) {
	if dt == nil {
		return nil, fmt.Errorf("no document type declaration")
	}
	v := Validator{
		decls:  dt.Decls,
		name:   dt.Name,
		models: make(map[string]*regexp.Regexp),
		mixed:  make(map[string][]string),
	}
	if v.decls == nil {
		v.decls = xml.NewDeclarations()
	}
	for _, o := range options {
		o(&v)
	}
	for name, decl := range v.decls.Elements {
		switch decl.Kind {
		case xml.ContentChildren:
			re, err := compileModel(decl.Model)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			v.models[name] = re
		case xml.ContentMixed:
			v.mixed[name] = mixedNames(decl.Model)
		}
	}
	return &v, nil
}

// Validate checks doc. Without a handler the first error is returned;
// warnings are dropped.
func (v *Validator) Validate(doc *xml.Document) error {
	v.ids = make(map[string]string)
	v.refs = v.refs[:0]
	v.err = nil

	for elem := range v.decls.Attributes {
		if _, ok := v.decls.Elements[elem]; !ok {
			v.report(SeverityWarning, "/", elem, "attribute list declared for an undeclared element type")
		}
	}
	root := doc.Root()
	if root == nil {
		v.report(SeverityError, "/", "", "document has no root element")
		return v.err
	}
	if v.name != "" && root.QualifiedName() != v.name {
		v.report(SeverityError, "/", root.QualifiedName(), fmt.Sprintf("root element does not match document type name %s", v.name))
	}
	v.validateElement(root, "/"+root.QualifiedName())
	for _, r := range v.refs {
		if _, ok := v.ids[r.value]; !ok {
			v.report(SeverityError, r.path, r.elem, fmt.Sprintf("%s: reference to an undefined ID", r.value))
		}
	}
	return v.err
}

func (v *Validator) report(sev Severity, path, elem, msg string) {
	e := Error{
		Severity: sev,
		Path:     path,
		Element:  elem,
		Message:  msg,
	}
	if v.handler != nil {
		v.handler(e)
		return
	}
	if sev == SeverityError && v.err == nil {
		v.err = e
	}
}

func (v *Validator) validateElement(el *xml.Element, path string) {
	name := el.QualifiedName()
	decl, ok := v.decls.Elements[name]
	if !ok {
		v.report(SeverityError, path, name, "element type not declared")
	} else {
		v.validateContent(el, decl, path)
	}
	v.validateAttributes(el, path)

	count := make(map[string]int)
	for _, n := range el.Nodes {
		c, ok := n.(*xml.Element)
		if !ok {
			continue
		}
		q := c.QualifiedName()
		count[q]++
		v.validateElement(c, fmt.Sprintf("%s/%s[%d]", path, q, count[q]))
	}
}

func (v *Validator) validateContent(el *xml.Element, decl *xml.ElementDecl, path string) {
	name := el.QualifiedName()
	switch decl.Kind {
	case xml.ContentEmpty:
		for _, n := range el.Nodes {
			if n.Type() == xml.TypeElement || n.Type() == xml.TypeText {
				v.report(SeverityError, path, name, "element declared EMPTY has content")
				return
			}
		}
	case xml.ContentMixed:
		allowed := v.mixed[name]
		for _, n := range el.Nodes {
			if n.Type() != xml.TypeElement {
				continue
			}
			if !slices.Contains(allowed, n.QualifiedName()) {
				v.report(SeverityError, path, name, fmt.Sprintf("%s: element not allowed in mixed content", n.QualifiedName()))
			}
		}
	case xml.ContentChildren:
		var seq strings.Builder
		for _, n := range el.Nodes {
			switch n.Type() {
			case xml.TypeElement:
				seq.WriteString(n.QualifiedName())
				seq.WriteString(",")
			case xml.TypeText:
				if strings.TrimSpace(n.Value()) != "" {
					v.report(SeverityError, path, name, "character data not allowed in element content")
					return
				}
			}
		}
		if re := v.models[name]; re != nil && !re.MatchString(seq.String()) {
			v.report(SeverityError, path, name, fmt.Sprintf("content does not match model %s", decl.Model))
		}
	}
}

func (v *Validator) validateAttributes(el *xml.Element, path string) {
	name := el.QualifiedName()
	for _, a := range el.Attrs {
		decl, ok := v.decls.Attribute(name, a.QualifiedName())
		if !ok {
			if v.allowXml && a.Space == "xml" {
				continue
			}
			v.report(SeverityError, path, name, fmt.Sprintf("%s: attribute not declared", a.QualifiedName()))
			continue
		}
		v.validateValue(decl, a.Datum, path, name)
	}
	for _, decl := range v.decls.Attributes[name] {
		if decl.Default != xml.AttrRequired {
			continue
		}
		if _, ok := el.GetAttribute(decl.Name); !ok {
			v.report(SeverityError, path, name, fmt.Sprintf("%s: required attribute missing", decl.Name))
		}
	}
}

func (v *Validator) validateValue(decl *xml.AttrDecl, value, path, elem string) {
	if decl.Default == xml.AttrFixed && value != decl.Value {
		v.report(SeverityError, path, elem, fmt.Sprintf("%s: value must be %q", decl.Name, decl.Value))
	}
	switch decl.Type {
	case "ID":
		if !xml.IsName(value) {
			v.report(SeverityError, path, elem, fmt.Sprintf("%s: invalid ID value %q", decl.Name, value))
			return
		}
		if other, ok := v.ids[value]; ok {
			v.report(SeverityError, path, elem, fmt.Sprintf("%s: ID already used by %s", value, other))
			return
		}
		v.ids[value] = path
	case "IDREF", "ENTITY":
		v.checkRef(decl, value, path, elem)
	case "IDREFS", "ENTITIES":
		fields := strings.Fields(value)
		if len(fields) == 0 {
			v.report(SeverityError, path, elem, fmt.Sprintf("%s: empty value", decl.Name))
		}
		for _, f := range fields {
			v.checkRef(decl, f, path, elem)
		}
	case "NMTOKEN":
		if !xml.IsNmtoken(value) {
			v.report(SeverityError, path, elem, fmt.Sprintf("%s: invalid name token %q", decl.Name, value))
		}
	case "NMTOKENS":
		for _, f := range strings.Fields(value) {
			if !xml.IsNmtoken(f) {
				v.report(SeverityError, path, elem, fmt.Sprintf("%s: invalid name token %q", decl.Name, f))
			}
		}
	case "CDATA":
	default:
		if len(decl.Enum) > 0 && !slices.Contains(decl.Enum, value) {
			v.report(SeverityError, path, elem, fmt.Sprintf("%s: value %q not in enumeration", decl.Name, value))
		}
	}
}

func (v *Validator) checkRef(decl *xml.AttrDecl, value, path, elem string) {
	if !xml.IsName(value) {
		v.report(SeverityError, path, elem, fmt.Sprintf("%s: invalid reference %q", decl.Name, value))
		return
	}
	if strings.HasPrefix(decl.Type, "ENTIT") {
		if _, ok := v.decls.Unparsed[value]; !ok {
			v.report(SeverityError, path, elem, fmt.Sprintf("%s: %s is not an unparsed entity", decl.Name, value))
		}
		return
	}
	v.refs = append(v.refs, reference{
		value: value,
		path:  path,
		elem:  elem,
	})
}
