package xml_test

import (
	"strings"
	"testing"

	"github.com/midbel/xslchain/xml"
)

func TestWriterWrite(t *testing.T) {
	const str = `<?xml version="1.0" encoding="UTF-8"?><test:root xmlns:test="urn:test" id="1"><test:a attr="text">text</test:a><test:a attr="self"/></test:root>`

	doc, err := xml.ParseString(str)
	if err != nil {
		t.Fatalf("fail to parse input document: %s", err)
	}

	data := []struct {
		Want    string
		Options xml.WriterOptions
	}{
		{
			Want:    `<test:root xmlns:test="urn:test" id="1"><test:a attr="text">text</test:a><test:a attr="self"/></test:root>`,
			Options: xml.OptionCompact | xml.OptionNoProlog,
		},
		{
			Want:    `<?xml version="1.0" encoding="UTF-8"?><test:root xmlns:test="urn:test" id="1"><test:a attr="text">text</test:a><test:a attr="self"/></test:root>`,
			Options: xml.OptionCompact,
		},
		{
			Want: strings.Join([]string{
				`<?xml version="1.0" encoding="UTF-8"?>`,
				`<test:root xmlns:test="urn:test" id="1">`,
				`  <test:a attr="text">text</test:a>`,
				`  <test:a attr="self"/>`,
				`</test:root>`,
				``,
			}, "\n"),
		},
	}
	for _, d := range data {
		var (
			buf strings.Builder
			ws  = xml.NewWriter(&buf)
		)
		ws.WriterOptions = d.Options
		if err := ws.Write(doc); err != nil {
			t.Fatalf("error writing document: %s", err)
		}
		if got := buf.String(); got != d.Want {
			t.Errorf("result mismatched")
			t.Logf("want: %s", d.Want)
			t.Logf("got : %s", got)
		}
	}
}

func TestWriterNamespaceFixup(t *testing.T) {
	root := xml.NewElement(xml.ExpandedName("root", "", "urn:a"))
	root.DeclareNamespace("", "urn:a")
	root.Append(xml.NewElement(xml.LocalName("item")))
	root.Append(xml.NewElement(xml.ExpandedName("x", "p", "urn:p")))

	var (
		buf strings.Builder
		ws  = xml.NewWriter(&buf)
	)
	ws.WriterOptions = xml.OptionCompact | xml.OptionNoProlog
	if err := ws.Write(xml.NewDocument(root)); err != nil {
		t.Fatalf("error writing document: %s", err)
	}
	want := `<root xmlns="urn:a"><item xmlns=""/><p:x xmlns:p="urn:p"/></root>`
	if got := buf.String(); got != want {
		t.Errorf("want %s, got %s", want, got)
	}
}

func TestWriterEscape(t *testing.T) {
	el := xml.NewElement(xml.LocalName("e"))
	el.SetAttribute(xml.NewAttribute(xml.LocalName("a"), `"<&>"`))
	el.Append(xml.NewText("a < b && c > d"))

	got := xml.WriteNode(el)
	want := `<e a="&quot;&lt;&amp;&gt;&quot;">a &lt; b &amp;&amp; c &gt; d</e>`
	if got != want {
		t.Errorf("want %s, got %s", want, got)
	}
}
