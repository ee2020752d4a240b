package xml_test

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/midbel/xslchain/xml"
)

const prolog = `<?xml version="1.0" encoding="UTF-8"?>`

func TestParseValidDocument(t *testing.T) {
	const str = prolog + `<!-- catalog -->
<catalog xmlns="urn:catalog" xmlns:x="urn:extra" x:version="2">
	<book id="b1"><title>Go &amp; XML</title><![CDATA[<raw>]]></book>
	<?render fast?>
</catalog>`

	doc, err := xml.ParseString(str)
	if err != nil {
		t.Fatalf("fail to parse document: %s", err)
	}
	root := doc.Root()
	if root == nil {
		t.Fatalf("root element not found")
	}
	if root.LocalName() != "catalog" || root.NamespaceURI() != "urn:catalog" {
		t.Errorf("unexpected root name %s", root.ExpandedName())
	}
	attr, ok := root.GetAttributeNS(xml.ExpandedName("version", "x", "urn:extra"))
	if !ok || attr.Value() != "2" {
		t.Errorf("prefixed attribute not resolved")
	}
	if got := root.Value(); !strings.Contains(got, "Go & XML<raw>") {
		t.Errorf("unexpected string value %q", got)
	}
	if len(doc.Nodes) != 2 {
		t.Errorf("expected comment and root at top level, got %d nodes", len(doc.Nodes))
	}
}

func TestParseInvalidDocument(t *testing.T) {
	data := []struct {
		Xml   string
		Cause string
	}{
		{
			Xml:   ``,
			Cause: "document without root element",
		},
		{
			Xml:   `<root empty-attr></root>`,
			Cause: "attribute without value",
		},
		{
			Xml:   `<root id="id-1" id="id-2"></root>`,
			Cause: "duplicate attribute",
		},
		{
			Xml:   `<root><a></b></root>`,
			Cause: "mismatched closing element",
		},
		{
			Xml:   `<root><a></a>`,
			Cause: "element not closed",
		},
		{
			Xml:   `<root/><root/>`,
			Cause: "multiple root elements",
		},
		{
			Xml:   `<root/>text`,
			Cause: "text after root element",
		},
		{
			Xml:   `<p:root/>`,
			Cause: "undeclared prefix",
		},
		{
			Xml:   `<!DOCTYPE root><root/>`,
			Cause: "prohibited dtd",
		},
		{
			Xml:   `<root>&undefined;</root>`,
			Cause: "undefined entity",
		},
	}
	for _, d := range data {
		_, err := xml.ParseString(prolog + d.Xml)
		if err == nil {
			t.Errorf("%s: invalid document parsed properly!", d.Cause)
			continue
		}
		if !xml.IsParseError(err) {
			t.Errorf("%s: expected parse error, got %T (%s)", d.Cause, err, err)
		}
	}
}

func TestParseWithDoctype(t *testing.T) {
	const str = prolog + `<!DOCTYPE note [
	<!ELEMENT note (to, body)>
	<!ATTLIST note lang CDATA "en" kind (memo|mail) #REQUIRED>
	<!ENTITY sig "-- the team">
]>
<note kind="memo"><to>all</to><body>hello &sig;</body></note>`

	p := xml.NewParser(strings.NewReader(str))
	p.SetDoctype(xml.DoctypeParse, nil)
	doc, err := p.Parse()
	if err != nil {
		t.Fatalf("fail to parse document: %s", err)
	}
	if doc.DocType == nil || doc.DocType.Name != "note" {
		t.Fatalf("doctype not recorded")
	}
	root := doc.Root()
	if a, ok := root.GetAttribute("lang"); !ok || a.Value() != "en" {
		t.Errorf("default attribute not applied")
	}
	if got := root.Value(); got != "allhello -- the team" {
		t.Errorf("entity not expanded: %q", got)
	}
	decl, ok := doc.DocType.Decls.Attribute("note", "kind")
	if !ok || decl.Default != xml.AttrRequired || len(decl.Enum) != 2 {
		t.Errorf("attribute declaration not parsed: %+v", decl)
	}

	p = xml.NewParser(strings.NewReader(str))
	p.SetDoctype(xml.DoctypeIgnore, nil)
	if _, err := p.Parse(); err == nil {
		t.Errorf("entity declared in an ignored dtd should not be expanded")
	}
}

func TestParseByteOrderMark(t *testing.T) {
	str := "\xEF\xBB\xBF" + prolog + `<root>ok</root>`
	doc, err := xml.ParseString(str)
	if err != nil {
		t.Fatalf("fail to parse document with BOM: %s", err)
	}
	if doc.Root().Value() != "ok" {
		t.Errorf("unexpected content")
	}
}

func TestParseLatin1(t *testing.T) {
	str := `<?xml version="1.0" encoding="ISO-8859-1"?><root>caf` + "\xE9" + `</root>`
	doc, err := xml.ParseString(str)
	if err != nil {
		t.Fatalf("fail to parse latin1 document: %s", err)
	}
	if got := doc.Root().Value(); got != "café" {
		t.Errorf("want café, got %q", got)
	}
}

func TestReaderInstructions(t *testing.T) {
	const str = prolog + `<?first a="1"?><?second?><root><?third?></root>`

	var (
		rs    = xml.NewReader(strings.NewReader(str))
		names []string
	)
	rs.OnNode(xml.TypeInstruction, func(_ *xml.Reader, n xml.Node) error {
		names = append(names, n.LocalName())
		return nil
	})
	rs.OnOpen(xml.LocalName("root"), func(_ *xml.Reader, _ *xml.Element) error {
		return xml.ErrBreak
	})
	if err := rs.Start(); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if strings.Join(names, ",") != "first,second" {
		t.Errorf("unexpected instructions: %v", names)
	}
}

func TestReaderReadAll(t *testing.T) {
	rs := xml.NewReader(strings.NewReader(`<a><b/><c>text</c></a>`))
	var opened, closed int
	for {
		node, err := rs.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, xml.ErrClosed) {
			closed++
			continue
		}
		if err != nil {
			t.Fatalf("unexpected error: %s", err)
		}
		if node.Type() == xml.TypeElement {
			opened++
		}
	}
	if opened != 3 || closed != 3 {
		t.Errorf("want 3 opened/closed elements, got %d/%d", opened, closed)
	}
}

func TestParseWithoutNamespace(t *testing.T) {
	tests := []string{
		`<a/>`,
		`<a></a>`,
		`<root><b/></root>`,
		prolog + `<a/>`,
	}
	for _, str := range tests {
		p := xml.NewParserWithReader(xml.NewReader(strings.NewReader(str)))
		doc, err := p.Parse()
		if err != nil {
			t.Errorf("%s: fail to parse document: %s", str, err)
			continue
		}
		root := doc.Root()
		if root == nil {
			t.Errorf("%s: root element not found", str)
			continue
		}
		if uri := root.NamespaceURI(); uri != "" {
			t.Errorf("%s: unexpected namespace %q", str, uri)
		}
	}
}

func TestParsePseudoAttrs(t *testing.T) {
	attrs, err := xml.ParsePseudoAttrs(`href="style.xsl" type='text/xsl' media="screen"`)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	want := map[string]string{
		"href":  "style.xsl",
		"type":  "text/xsl",
		"media": "screen",
	}
	if len(attrs) != len(want) {
		t.Fatalf("want %d attributes, got %d", len(want), len(attrs))
	}
	for _, a := range attrs {
		if want[a.LocalName()] != a.Value() {
			t.Errorf("%s: unexpected value %q", a.LocalName(), a.Value())
		}
	}
	if _, err := xml.ParsePseudoAttrs(`href="style.xsl" type=text/xsl`); err == nil {
		t.Errorf("unquoted pseudo attribute accepted")
	}
}

func TestDocumentOrder(t *testing.T) {
	doc, err := xml.ParseString(`<root a="1" b="2"><x/><y><z/></y></root>`)
	if err != nil {
		t.Fatalf("fail to parse document: %s", err)
	}
	var (
		root  = doc.Root()
		a, _  = root.GetAttribute("a")
		b, _  = root.GetAttribute("b")
		x     = root.Nodes[0]
		y     = root.Nodes[1].(*xml.Element)
		z     = y.Nodes[0]
		order = []xml.Node{doc, root, a, b, x, y, z}
	)
	for i := 1; i < len(order); i++ {
		if !xml.Before(order[i-1], order[i]) {
			t.Errorf("%s should come before %s", order[i-1].Identity(), order[i].Identity())
		}
		if xml.Compare(order[i], order[i-1]) <= 0 {
			t.Errorf("%s should come after %s", order[i].Identity(), order[i-1].Identity())
		}
	}
}
