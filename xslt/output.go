package xslt

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"

	"github.com/midbel/xslchain/xml"
)

const (
	MethodXml  = "xml"
	MethodHtml = "html"
	MethodText = "text"
)

var utf8Bom = []byte{0xEF, 0xBB, 0xBF}

// Output are the serialization settings declared by xsl:output. Method is
// empty when no xsl:output gives one.
type Output struct {
	Method        string
	Version       string
	Encoding      string
	Indent        bool
	OmitProlog    bool
	Standalone    string
	DoctypePublic string
	DoctypeSystem string
	MediaType     string
	BOM           bool
}

func defaultOutput() Output {
	return Output{
		Version:  "1.0",
		Encoding: "UTF-8",
		BOM:      true,
	}
}

// merge applies the attributes of an xsl:output element. Attributes of a
// later declaration override the ones of an earlier one.
func (o *Output) merge(el *xml.Element) error {
	for _, a := range el.Attrs {
		if a.Uri != "" {
			continue
		}
		value := strings.TrimSpace(a.Datum)
		switch a.Name {
		case "method":
			qn, err := xml.ParseName(value)
			if err != nil {
				return err
			}
			switch {
			case qn.Space != "":
				o.Method = MethodXml
			case value == MethodXml || value == MethodHtml || value == MethodText:
				o.Method = value
			default:
				return fmt.Errorf("%s: unsupported output method", value)
			}
		case "version":
			o.Version = value
		case "encoding":
			if _, err := lookupEncoding(value); err != nil {
				return err
			}
			o.Encoding = value
		case "indent":
			o.Indent = value == "yes"
		case "omit-xml-declaration":
			o.OmitProlog = value == "yes"
		case "standalone":
			o.Standalone = value
		case "doctype-public":
			o.DoctypePublic = value
		case "doctype-system":
			o.DoctypeSystem = value
		case "media-type":
			o.MediaType = value
		case "byte-order-mark":
			o.BOM = value != "no"
		case "cdata-section-elements":
		default:
			if !forwardsCompatible(el) {
				return fmt.Errorf("%s: unknown output attribute", a.Name)
			}
		}
	}
	return nil
}

// lookupEncoding returns the encoder of name. UTF-8 gives a nil encoding
// since the result tree is already encoded with it.
func lookupEncoding(name string) (encoding.Encoding, error) {
	switch strings.ToUpper(name) {
	case "", "UTF-8", "UTF8":
		return nil, nil
	case "UTF-16":
		return unicode.UTF16(unicode.BigEndian, unicode.UseBOM), nil
	}
	enc, err := ianaindex.IANA.Encoding(name)
	if err == nil && enc != nil {
		return enc, nil
	}
	enc, err = htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("%s: unsupported output encoding", name)
	}
	return enc, nil
}

// ResultMethod returns the method used to serialize doc: the declared one
// or, without any, html when the root element is html and xml otherwise.
func (o Output) ResultMethod(doc *xml.Document) string {
	if o.Method != "" {
		return o.Method
	}
	if doc == nil {
		return MethodXml
	}
	for _, n := range doc.Nodes {
		switch n.Type() {
		case xml.TypeText:
			if !isBlank(n.Value()) {
				return MethodXml
			}
		case xml.TypeElement:
			if n.NamespaceURI() == "" && strings.EqualFold(n.LocalName(), "html") {
				return MethodHtml
			}
			return MethodXml
		}
	}
	return MethodXml
}

func (o Output) Serialize(w io.Writer, doc *xml.Document) error {
	var (
		body   bytes.Buffer
		method = o.ResultMethod(doc)
		err    error
	)
	switch method {
	case MethodText:
		_, err = body.WriteString(doc.Value())
	case MethodHtml:
		err = o.writeHTML(&body, doc)
	default:
		err = o.writeXML(&body, doc)
	}
	if err != nil {
		return err
	}
	enc, err := lookupEncoding(o.Encoding)
	if err != nil {
		return err
	}
	if enc == nil {
		if o.BOM {
			if _, err := w.Write(utf8Bom); err != nil {
				return err
			}
		}
		_, err = body.WriteTo(w)
		return err
	}
	encoder := enc.NewEncoder()
	if method == MethodText {
		encoder = encoding.ReplaceUnsupported(encoder)
	} else {
		encoder = encoding.HTMLEscapeUnsupported(encoder)
	}
	ew := encoder.Writer(w)
	if _, err := body.WriteTo(ew); err != nil {
		return err
	}
	if c, ok := ew.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (o Output) writeXML(w io.Writer, doc *xml.Document) error {
	ws := xml.NewWriter(w)
	ws.Encoding = o.Encoding
	ws.Standalone = o.Standalone
	if !o.Indent {
		ws.WriterOptions |= xml.OptionCompact
	}
	if o.OmitProlog {
		ws.WriterOptions |= xml.OptionNoProlog
	}
	if o.DoctypeSystem != "" {
		ws.DocType = &xml.DocType{
			PublicID: o.DoctypePublic,
			SystemID: o.DoctypeSystem,
		}
	}
	return ws.Write(doc)
}

func (o Output) writeHTML(w io.Writer, doc *xml.Document) error {
	root := &html.Node{
		Type: html.DocumentNode,
	}
	if o.DoctypePublic != "" || o.DoctypeSystem != "" {
		dt := html.Node{
			Type: html.DoctypeNode,
			Data: "html",
		}
		if o.DoctypePublic != "" {
			dt.Attr = append(dt.Attr, html.Attribute{Key: "public", Val: o.DoctypePublic})
		}
		if o.DoctypeSystem != "" {
			dt.Attr = append(dt.Attr, html.Attribute{Key: "system", Val: o.DoctypeSystem})
		}
		root.AppendChild(&dt)
	}
	for _, n := range doc.Nodes {
		if c := o.toHTML(n); c != nil {
			root.AppendChild(c)
		}
	}
	return html.Render(w, root)
}

func (o Output) toHTML(node xml.Node) *html.Node {
	switch n := node.(type) {
	case *xml.Element:
		el := html.Node{
			Type: html.ElementNode,
			Data: n.QualifiedName(),
		}
		for _, a := range n.Attrs {
			el.Attr = append(el.Attr, html.Attribute{Key: a.QualifiedName(), Val: a.Datum})
		}
		if strings.EqualFold(n.Name, "head") && n.Uri == "" {
			el.AppendChild(o.contentType())
		}
		for _, c := range n.Nodes {
			if isContentType(c) {
				continue
			}
			if x := o.toHTML(c); x != nil {
				el.AppendChild(x)
			}
		}
		return &el
	case *xml.Text:
		return &html.Node{Type: html.TextNode, Data: n.Content}
	case *xml.Comment:
		return &html.Node{Type: html.CommentNode, Data: n.Content}
	case *xml.Instruction:
		return &html.Node{Type: html.RawNode, Data: fmt.Sprintf("<?%s %s>", n.Name, n.Content)}
	default:
		return nil
	}
}

func (o Output) contentType() *html.Node {
	media := o.MediaType
	if media == "" {
		media = "text/html"
	}
	return &html.Node{
		Type: html.ElementNode,
		Data: "meta",
		Attr: []html.Attribute{
			{Key: "http-equiv", Val: "Content-Type"},
			{Key: "content", Val: fmt.Sprintf("%s; charset=%s", media, o.Encoding)},
		},
	}
}

func isContentType(node xml.Node) bool {
	el, ok := node.(*xml.Element)
	if !ok || !strings.EqualFold(el.Name, "meta") {
		return false
	}
	a, ok := el.GetAttribute("http-equiv")
	return ok && strings.EqualFold(a.Datum, "content-type")
}
