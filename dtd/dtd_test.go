package dtd_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/midbel/xslchain/dtd"
	"github.com/midbel/xslchain/xml"
)

const subset = `<!DOCTYPE library [
	<!ELEMENT library (book+,note?)>
	<!ELEMENT book (title,author*)>
	<!ELEMENT title (#PCDATA)>
	<!ELEMENT author (#PCDATA|em)*>
	<!ELEMENT em (#PCDATA)>
	<!ELEMENT note EMPTY>
	<!ATTLIST book
		id ID #REQUIRED
		ref IDREF #IMPLIED
		kind (novel|essay) "novel"
		lang NMTOKEN #IMPLIED>
	<!ATTLIST note level CDATA #FIXED "info">
]>`

func parse(t *testing.T, body string) *xml.Document {
	t.Helper()
	doc, err := parseString(subset + body)
	require.NoError(t, err)
	require.NotNil(t, doc.DocType)
	return doc
}

func parseString(str string) (*xml.Document, error) {
	p := xml.NewParser(strings.NewReader(str))
	p.SetDoctype(xml.DoctypeParse, nil)
	return p.Parse()
}

func validate(t *testing.T, doc *xml.Document, options ...dtd.Option) error {
	t.Helper()
	v, err := dtd.New(doc.DocType, options...)
	require.NoError(t, err)
	return v.Validate(doc)
}

func TestValidDocument(t *testing.T) {
	doc := parse(t, `<library>
	<book id="b1"><title>Dune</title><author>Frank <em>Herbert</em></author></book>
	<book id="b2" ref="b1" kind="essay" lang="en"><title>Notes</title></book>
	<note/>
</library>`)
	assert.NoError(t, validate(t, doc))
}

func TestInvalidDocuments(t *testing.T) {
	tests := []struct {
		Name string
		Body string
	}{
		{
			Name: "missing-required",
			Body: `<library><book><title>x</title></book></library>`,
		},
		{
			Name: "content-model",
			Body: `<library><book id="a"><author>x</author></book></library>`,
		},
		{
			Name: "undeclared-element",
			Body: `<library><book id="a"><title>x</title><isbn/></book></library>`,
		},
		{
			Name: "empty-with-content",
			Body: `<library><book id="a"><title>x</title></book><note>text</note></library>`,
		},
		{
			Name: "text-in-element-content",
			Body: `<library>text<book id="a"><title>x</title></book></library>`,
		},
		{
			Name: "duplicate-id",
			Body: `<library><book id="a"><title>x</title></book><book id="a"><title>y</title></book></library>`,
		},
		{
			Name: "dangling-idref",
			Body: `<library><book id="a" ref="zz"><title>x</title></book></library>`,
		},
		{
			Name: "enumeration",
			Body: `<library><book id="a" kind="poem"><title>x</title></book></library>`,
		},
		{
			Name: "fixed-value",
			Body: `<library><book id="a"><title>x</title></book><note level="debug"/></library>`,
		},
		{
			Name: "undeclared-attribute",
			Body: `<library><book id="a" year="1965"><title>x</title></book></library>`,
		},
		{
			Name: "mixed-content",
			Body: `<library><book id="a"><title>x</title><author><title>y</title></author></book></library>`,
		},
		{
			Name: "root-name",
			Body: `<book id="a"><title>x</title></book>`,
		},
	}
	for _, c := range tests {
		t.Run(c.Name, func(t *testing.T) {
			doc := parse(t, c.Body)
			err := validate(t, doc)
			require.Error(t, err)
			assert.True(t, errors.Is(err, dtd.ErrInvalid))

			var de dtd.Error
			require.ErrorAs(t, err, &de)
			assert.Equal(t, dtd.SeverityError, de.Severity)
		})
	}
}

func TestHandlerCollectsEverything(t *testing.T) {
	doc, err := parseString(`<!DOCTYPE root [
	<!ELEMENT root (item*)>
	<!ELEMENT item EMPTY>
	<!ATTLIST ghost name CDATA #IMPLIED>
]><root><item/><other/></root>`)
	require.NoError(t, err)

	var list []dtd.Error
	err = validate(t, doc, dtd.WithHandler(func(e dtd.Error) {
		list = append(list, e)
	}))
	require.NoError(t, err)
	require.Len(t, list, 3)

	var warnings int
	for _, e := range list {
		if e.Severity == dtd.SeverityWarning {
			warnings++
		}
	}
	assert.Equal(t, 1, warnings)
}

func TestXmlAttributes(t *testing.T) {
	doc, err := parseString(`<!DOCTYPE root [<!ELEMENT root (#PCDATA)>]><root xml:lang="en">x</root>`)
	require.NoError(t, err)

	assert.Error(t, validate(t, doc))
	assert.NoError(t, validate(t, doc, dtd.WithXmlAttributes(true)))
}

func TestDefaultsAreValid(t *testing.T) {
	doc := parse(t, `<library><book id="a"><title>x</title></book><note/></library>`)
	root := doc.Root()
	require.NotNil(t, root)

	book, ok := root.Nodes[0].(*xml.Element)
	require.True(t, ok)
	kind, ok := book.GetAttribute("kind")
	require.True(t, ok)
	assert.Equal(t, "novel", kind.Value())
	assert.NoError(t, validate(t, doc))
}
