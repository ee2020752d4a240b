package xpath

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/midbel/xslchain/xml"
)

const sample = `<?xml version="1.0"?>
<library xmlns:x="urn:extra">
	<book id="b1" lang="en">
		<title>Dune</title>
		<author>Herbert</author>
		<price>9.5</price>
	</book>
	<book id="b2" lang="fr">
		<title>Fondation</title>
		<author>Asimov</author>
		<price>7</price>
		<x:note>classic</x:note>
	</book>
	<book id="b3" lang="en">
		<title>Hyperion</title>
		<author>Simmons</author>
		<price>12</price>
	</book>
	<!-- end -->
</library>`

func parseSample(t *testing.T) *xml.Document {
	t.Helper()
	p := xml.NewParser(stringsReader(sample))
	p.TrimSpace = true
	doc, err := p.Parse()
	require.NoError(t, err)
	return doc
}

type TestCase struct {
	Expr     string
	Expected []string
}

func TestFindNodes(t *testing.T) {
	doc := parseSample(t)
	tests := []TestCase{
		{Expr: "/library/book/title", Expected: []string{"Dune", "Fondation", "Hyperion"}},
		{Expr: "//title", Expected: []string{"Dune", "Fondation", "Hyperion"}},
		{Expr: "//book[2]/title", Expected: []string{"Fondation"}},
		{Expr: "//book[last()]/title", Expected: []string{"Hyperion"}},
		{Expr: "//book[@lang='en']/author", Expected: []string{"Herbert", "Simmons"}},
		{Expr: "//book[price > 8]/title", Expected: []string{"Dune", "Hyperion"}},
		{Expr: "//title[. = 'Dune']/following-sibling::*[1]", Expected: []string{"Herbert"}},
		{Expr: "//price[. = 7]/preceding-sibling::*[1]", Expected: []string{"Asimov"}},
		{Expr: "//book[3]/preceding::title[1]", Expected: []string{"Fondation"}},
		{Expr: "(//book[3]/preceding::title)[1]", Expected: []string{"Dune"}},
		{Expr: "//author/ancestor::*[1]/@id", Expected: []string{"b1", "b2", "b3"}},
		{Expr: "//title | //author[1]", Expected: []string{"Dune", "Herbert", "Fondation", "Asimov", "Hyperion", "Simmons"}},
		{Expr: "//x:note", Expected: []string{"classic"}},
		{Expr: "//x:*", Expected: []string{"classic"}},
		{Expr: "//comment()", Expected: []string{" end "}},
		{Expr: "//book[not(x:note)]/@id", Expected: []string{"b1", "b3"}},
		{Expr: "/descendant::book[position() mod 2 = 1]/title", Expected: []string{"Dune", "Hyperion"}},
		{Expr: "//book/@id[. = 'b2']/../title", Expected: []string{"Fondation"}},
	}
	ns := map[string]string{"x": "urn:extra"}
	for _, c := range tests {
		t.Run(c.Expr, func(t *testing.T) {
			q, err := CompileWith(c.Expr, ns)
			require.NoError(t, err)
			seq, err := q.Find(DefaultContext(doc))
			require.NoError(t, err)
			var got []string
			for _, i := range seq {
				got = append(got, i.Node().Value())
			}
			assert.Equal(t, c.Expected, got)
		})
	}
}

func TestEvalValues(t *testing.T) {
	doc := parseSample(t)
	tests := []struct {
		Expr     string
		Expected string
	}{
		{Expr: "count(//book)", Expected: "3"},
		{Expr: "sum(//price)", Expected: "28.5"},
		{Expr: "sum(//price) div count(//price)", Expected: "9.5"},
		{Expr: "1 div 0", Expected: "Infinity"},
		{Expr: "-1 div 0", Expected: "-Infinity"},
		{Expr: "0 div 0", Expected: "NaN"},
		{Expr: "7 mod 3", Expected: "1"},
		{Expr: "-(2 * 3)", Expected: "-6"},
		{Expr: "2*-1", Expected: "-2"},
		{Expr: "0.1 + 0.2 = 0.3", Expected: "false"},
		{Expr: "1 = 1 and 2 > 1", Expected: "true"},
		{Expr: "//price = 7", Expected: "true"},
		{Expr: "//price != 7", Expected: "true"},
		{Expr: "//price > 100", Expected: "false"},
		{Expr: "//missing = ''", Expected: "false"},
		{Expr: "not(//missing)", Expected: "true"},
		{Expr: "concat('a', 'b', 1)", Expected: "ab1"},
		{Expr: "substring('12345', 2, 3)", Expected: "234"},
		{Expr: "substring('12345', 1.5, 2.6)", Expected: "234"},
		{Expr: "substring('12345', 0, 3)", Expected: "12"},
		{Expr: "substring('12345', 0 div 0, 3)", Expected: ""},
		{Expr: "substring-before('1999/04/01', '/')", Expected: "1999"},
		{Expr: "substring-after('1999/04/01', '/')", Expected: "04/01"},
		{Expr: "translate('bar', 'abc', 'ABC')", Expected: "BAr"},
		{Expr: "translate('--aaa--', 'abc-', 'ABC')", Expected: "AAA"},
		{Expr: "normalize-space('  a  b ')", Expected: "a b"},
		{Expr: "string-length('héllo')", Expected: "5"},
		{Expr: "round(2.5)", Expected: "3"},
		{Expr: "round(-2.5)", Expected: "-2"},
		{Expr: "floor(-1.5)", Expected: "-2"},
		{Expr: "ceiling(1.2)", Expected: "2"},
		{Expr: "number('  12 ')", Expected: "12"},
		{Expr: "number('1e3')", Expected: "NaN"},
		{Expr: "string(1.50)", Expected: "1.5"},
		{Expr: "string(true())", Expected: "true"},
		{Expr: "boolean('')", Expected: "false"},
		{Expr: "name(/*)", Expected: "library"},
		{Expr: "local-name(//x:note)", Expected: "note"},
		{Expr: "namespace-uri(//x:note)", Expected: "urn:extra"},
		{Expr: "starts-with('xslchain', 'xsl')", Expected: "true"},
		{Expr: "contains('xslchain', 'chain')", Expected: "true"},
		{Expr: "string(//book[2]/@id)", Expected: "b2"},
	}
	ns := map[string]string{"x": "urn:extra"}
	for _, c := range tests {
		t.Run(c.Expr, func(t *testing.T) {
			q, err := CompileWith(c.Expr, ns)
			require.NoError(t, err)
			seq, err := q.Find(DefaultContext(doc))
			require.NoError(t, err)
			assert.Equal(t, c.Expected, AsString(seq))
		})
	}
}

func TestVariables(t *testing.T) {
	doc := parseSample(t)
	ctx := DefaultContext(doc)
	ctx.Define("limit", NewValue(Singleton(8.0)))
	ctx.Define("{urn:extra}lang", NewValue(Singleton("fr")))

	q, err := CompileWith("//book[price < $limit and @lang = $x:lang]/title", map[string]string{"x": "urn:extra"})
	require.NoError(t, err)
	seq, err := q.Find(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Fondation", AsString(seq))

	q, err = Compile("$undefined")
	require.NoError(t, err)
	_, err = q.Find(ctx)
	assert.True(t, errors.Is(err, ErrVariable))
}

func TestCompileErrors(t *testing.T) {
	tests := []string{
		"",
		"//",
		"a[1",
		"count(a",
		"a/1",
		"foo::bar",
		"x:name",
		"'unterminated",
		"1 +",
		"a !b",
	}
	for _, str := range tests {
		t.Run(str, func(t *testing.T) {
			_, err := Compile(str)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrSyntax))
		})
	}
}

func TestUnknownFunction(t *testing.T) {
	q, err := Compile("foo(1)")
	require.NoError(t, err)
	_, err = q.Find(DefaultContext(xml.NewDocument(nil)))
	assert.True(t, errors.Is(err, ErrFunction))
}

func TestPatternMatch(t *testing.T) {
	doc := parseSample(t)
	tests := []struct {
		Pattern string
		Select  string
		Match   bool
	}{
		{Pattern: "/", Select: "/", Match: true},
		{Pattern: "book", Select: "//book[1]", Match: true},
		{Pattern: "library/book", Select: "//book[1]", Match: true},
		{Pattern: "/library", Select: "/library", Match: true},
		{Pattern: "/book", Select: "//book[1]", Match: false},
		{Pattern: "library//title", Select: "(//title)[1]", Match: true},
		{Pattern: "book[2]", Select: "//book[2]", Match: true},
		{Pattern: "book[2]", Select: "//book[1]", Match: false},
		{Pattern: "book[@lang='fr']/title", Select: "//book[2]/title", Match: true},
		{Pattern: "@id", Select: "//book[1]/@id", Match: true},
		{Pattern: "@*", Select: "//book[1]/@id", Match: true},
		{Pattern: "*", Select: "//book[1]/@id", Match: false},
		{Pattern: "node()", Select: "//book[1]/title", Match: true},
		{Pattern: "text()", Select: "//book[1]/title/text()", Match: true},
		{Pattern: "comment()", Select: "//comment()", Match: true},
		{Pattern: "title|author", Select: "(//author)[1]", Match: true},
		{Pattern: "id('b3')", Select: "//book[3]", Match: false},
	}
	for _, c := range tests {
		t.Run(c.Pattern+" ~ "+c.Select, func(t *testing.T) {
			pat, err := Compile(c.Pattern)
			require.NoError(t, err)
			assert.True(t, pat.IsPattern())
			sel, err := Compile(c.Select)
			require.NoError(t, err)
			seq, err := sel.Find(DefaultContext(doc))
			require.NoError(t, err)
			require.Len(t, seq, 1)

			ok, err := pat.Match(seq[0].Node(), DefaultContext(doc))
			require.NoError(t, err)
			assert.Equal(t, c.Match, ok)
		})
	}
}

func TestPriority(t *testing.T) {
	tests := []struct {
		Pattern  string
		Priority float64
	}{
		{Pattern: "book", Priority: 0},
		{Pattern: "@id", Priority: 0},
		{Pattern: "x:*", Priority: -0.25},
		{Pattern: "*", Priority: -0.5},
		{Pattern: "@*", Priority: -0.5},
		{Pattern: "node()", Priority: -0.5},
		{Pattern: "text()", Priority: -0.5},
		{Pattern: "processing-instruction('xml-stylesheet')", Priority: 0},
		{Pattern: "library/book", Priority: 0.5},
		{Pattern: "book[1]", Priority: 0.5},
		{Pattern: "/", Priority: 0.5},
	}
	for _, c := range tests {
		t.Run(c.Pattern, func(t *testing.T) {
			q, err := CompileWith(c.Pattern, map[string]string{"x": "urn:extra"})
			require.NoError(t, err)
			assert.Equal(t, c.Priority, q.Priority())
		})
	}

	q, err := Compile("a | b/c")
	require.NoError(t, err)
	alts := q.Alternatives()
	require.Len(t, alts, 2)
	assert.Equal(t, 0.0, alts[0].Priority())
	assert.Equal(t, 0.5, alts[1].Priority())
}

func TestFormatNumber(t *testing.T) {
	assert.Equal(t, "0", FormatNumber(math.Copysign(0, -1)))
	assert.Equal(t, "100", FormatNumber(100))
	assert.Equal(t, "0.001", FormatNumber(0.001))
	assert.Equal(t, "-2.5", FormatNumber(-2.5))
	assert.Equal(t, "NaN", FormatNumber(math.NaN()))
}
