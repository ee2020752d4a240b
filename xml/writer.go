package xml

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"
)

type WriterOptions uint64

const (
	OptionCompact WriterOptions = 1 << iota
	OptionNoComment
	OptionNoProlog
)

func (w WriterOptions) Compact() bool {
	return w&OptionCompact > 0
}

func (w WriterOptions) NoComment() bool {
	return w&OptionNoComment > 0
}

func (w WriterOptions) NoProlog() bool {
	return w&OptionNoProlog > 0
}

type Writer struct {
	writer *bufio.Writer

	Indent     string
	Encoding   string
	Standalone string
	DocType    *DocType
	WriterOptions

	scopes []map[string]string
	depth  int
}

func WriteNode(node Node) string {
	var buf bytes.Buffer

	ws := NewWriter(&buf)
	ws.WriterOptions |= OptionCompact
	ws.writeNode(node)
	ws.writer.Flush()
	return buf.String()
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{
		writer: bufio.NewWriter(w),
		Indent: "  ",
	}
}

func (w *Writer) Write(doc *Document) error {
	if err := w.writeProlog(doc); err != nil {
		return err
	}
	if err := w.writeDoctype(doc); err != nil {
		return err
	}
	for i, n := range doc.Nodes {
		if i > 0 && !w.Compact() && n.Type() != TypeText {
			w.writer.WriteString("\n")
		}
		if err := w.writeNode(n); err != nil {
			return err
		}
	}
	if !w.Compact() {
		w.writer.WriteString("\n")
	}
	return w.writer.Flush()
}

// WriteFragment writes nodes without prolog or doctype.
func (w *Writer) WriteFragment(nodes []Node) error {
	for _, n := range nodes {
		if err := w.writeNode(n); err != nil {
			return err
		}
	}
	return w.writer.Flush()
}

func (w *Writer) writeProlog(doc *Document) error {
	if w.NoProlog() {
		return nil
	}
	enc := w.Encoding
	if enc == "" {
		enc = SupportedEncoding
	}
	w.writer.WriteString(`<?xml version="1.0" encoding="`)
	w.writer.WriteString(enc)
	w.writer.WriteString(`"`)
	standalone := w.Standalone
	if standalone == "" && doc != nil {
		standalone = doc.Standalone
	}
	if standalone != "" {
		fmt.Fprintf(w.writer, ` standalone="%s"`, standalone)
	}
	w.writer.WriteString("?>")
	if !w.Compact() {
		w.writer.WriteString("\n")
	}
	return nil
}

func (w *Writer) writeDoctype(doc *Document) error {
	dt := w.DocType
	if dt == nil && doc != nil {
		dt = doc.DocType
	}
	if dt == nil {
		return nil
	}
	name := dt.Name
	if name == "" && doc != nil {
		if root := doc.Root(); root != nil {
			name = root.QualifiedName()
		}
	}
	w.writer.WriteString("<!DOCTYPE ")
	w.writer.WriteString(name)
	switch {
	case dt.PublicID != "":
		fmt.Fprintf(w.writer, ` PUBLIC "%s" "%s"`, dt.PublicID, dt.SystemID)
	case dt.SystemID != "":
		fmt.Fprintf(w.writer, ` SYSTEM "%s"`, dt.SystemID)
	}
	if dt.Subset != "" {
		fmt.Fprintf(w.writer, " [%s]", dt.Subset)
	}
	w.writer.WriteString(">")
	if !w.Compact() {
		w.writer.WriteString("\n")
	}
	return nil
}

func (w *Writer) writeNode(node Node) error {
	switch n := node.(type) {
	case *Document:
		for _, c := range n.Nodes {
			if err := w.writeNode(c); err != nil {
				return err
			}
		}
	case *Element:
		return w.writeElement(n)
	case *Text:
		w.writer.WriteString(EscapeText(n.Content))
	case *Comment:
		if w.NoComment() {
			return nil
		}
		w.writer.WriteString("<!--")
		w.writer.WriteString(n.Content)
		w.writer.WriteString("-->")
	case *Instruction:
		w.writer.WriteString("<?")
		w.writer.WriteString(n.Name)
		if n.Content != "" {
			w.writer.WriteString(" ")
			w.writer.WriteString(n.Content)
		}
		w.writer.WriteString("?>")
	case *Attribute:
		return fmt.Errorf("%s: attribute can not be serialized outside an element", n.QualifiedName())
	default:
		return fmt.Errorf("node type not supported")
	}
	return nil
}

func (w *Writer) writeElement(el *Element) error {
	decls := w.fixNamespaces(el)
	defer w.leaveScope()

	name := el.QualifiedName()
	w.writer.WriteString("<")
	w.writer.WriteString(name)
	for _, n := range decls {
		if n.Prefix == "" {
			fmt.Fprintf(w.writer, ` xmlns="%s"`, EscapeAttr(n.Uri))
		} else {
			fmt.Fprintf(w.writer, ` xmlns:%s="%s"`, n.Prefix, EscapeAttr(n.Uri))
		}
	}
	for _, a := range el.Attrs {
		fmt.Fprintf(w.writer, ` %s="%s"`, a.QualifiedName(), EscapeAttr(a.Datum))
	}
	if len(el.Nodes) == 0 {
		w.writer.WriteString("/>")
		return nil
	}
	w.writer.WriteString(">")

	indent := !w.Compact() && w.Indent != "" && elementOnly(el)
	w.depth++
	for _, n := range el.Nodes {
		if indent {
			w.writer.WriteString("\n")
			w.writer.WriteString(strings.Repeat(w.Indent, w.depth))
		}
		if err := w.writeNode(n); err != nil {
			return err
		}
	}
	w.depth--
	if indent {
		w.writer.WriteString("\n")
		w.writer.WriteString(strings.Repeat(w.Indent, w.depth))
	}
	w.writer.WriteString("</")
	w.writer.WriteString(name)
	w.writer.WriteString(">")
	return nil
}

// fixNamespaces opens a new scope for el and returns the declarations that
// must be written so that every prefix used by el and its attributes is
// bound to the expected namespace.
func (w *Writer) fixNamespaces(el *Element) []NS {
	var (
		curr  = make(map[string]string)
		decls []NS
	)
	if n := len(w.scopes); n > 0 {
		for k, v := range w.scopes[n-1] {
			curr[k] = v
		}
	}
	declare := func(prefix, uri string) {
		if got, ok := curr[prefix]; ok && got == uri {
			return
		}
		if !bound(curr, prefix) && uri == "" {
			return
		}
		curr[prefix] = uri
		for i := range decls {
			if decls[i].Prefix == prefix {
				decls[i].Uri = uri
				return
			}
		}
		decls = append(decls, NS{Prefix: prefix, Uri: uri})
	}
	for _, n := range el.Namespaces {
		if n.Prefix == "xml" {
			continue
		}
		declare(n.Prefix, n.Uri)
	}
	if el.Space != "xml" {
		declare(el.Space, el.Uri)
	}
	for _, a := range el.Attrs {
		if a.Space == "" || a.Space == "xml" {
			continue
		}
		declare(a.Space, a.Uri)
	}
	w.scopes = append(w.scopes, curr)
	return decls
}

func (w *Writer) leaveScope() {
	if n := len(w.scopes); n > 0 {
		w.scopes = w.scopes[:n-1]
	}
}

func bound(scope map[string]string, prefix string) bool {
	v, found := scope[prefix]
	return found && v != ""
}

func elementOnly(el *Element) bool {
	for _, n := range el.Nodes {
		if n.Type() == TypeText {
			return false
		}
	}
	return true
}

var (
	textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", "\r", "&#xD;")
	attrEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;", "\t", "&#x9;", "\n", "&#xA;", "\r", "&#xD;")
)

func EscapeText(str string) string {
	return textEscaper.Replace(str)
}

func EscapeAttr(str string) string {
	return attrEscaper.Replace(str)
}
