package xslt_test

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/midbel/xslchain/xml"
	"github.com/midbel/xslchain/xslt"
)

type TestCase struct {
	Name   string
	Dir    string
	Result string
	Failed bool
}

func TestConditional(t *testing.T) {
	tests := []TestCase{
		{
			Name: "if/basic",
			Dir:  "testdata/if-basic",
		},
		{
			Name: "choose/basic",
			Dir:  "testdata/choose-basic",
		},
	}
	runTest(t, tests)
}

func TestTemplates(t *testing.T) {
	tests := []TestCase{
		{
			Name: "modes-params",
			Dir:  "testdata/modes-params",
		},
		{
			Name: "identity",
			Dir:  "testdata/identity",
		},
		{
			Name: "import/apply-imports",
			Dir:  "testdata/import-precedence",
		},
		{
			Name:   "message/terminate",
			Dir:    "testdata/message-terminate",
			Failed: true,
		},
	}
	runTest(t, tests)
}

func TestInstructions(t *testing.T) {
	tests := []TestCase{
		{
			Name: "foreach/sort",
			Dir:  "testdata/foreach-sort",
		},
		{
			Name: "element-attribute",
			Dir:  "testdata/element-attribute",
		},
		{
			Name: "number-format",
			Dir:  "testdata/number-format",
		},
		{
			Name: "key",
			Dir:  "testdata/key-lookup",
		},
		{
			Name: "strip-space",
			Dir:  "testdata/strip-space",
		},
		{
			Name: "variables",
			Dir:  "testdata/variables",
		},
		{
			Name: "nodes",
			Dir:  "testdata/nodes",
		},
	}
	runTest(t, tests)
}

func TestOutputMethods(t *testing.T) {
	tests := []TestCase{
		{
			Name:   "text",
			Dir:    "testdata/text-output",
			Result: "result.txt",
		},
		{
			Name:   "html",
			Dir:    "testdata/html-output",
			Result: "result.html",
		},
	}
	runTest(t, tests)
}

func runTest(t *testing.T, tests []TestCase) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.Name, executeTest(tt))
	}
}

func executeTest(tt TestCase) func(*testing.T) {
	return func(t *testing.T) {
		doc, err := xml.ParseFile(filepath.Join(tt.Dir, "doc.xml"))
		if err != nil {
			t.Errorf("error loading document: %s", err)
			return
		}
		sheet, err := xslt.Load(filepath.Join(tt.Dir, "transform.xsl"))
		if err != nil {
			t.Errorf("error loading stylesheet: %s", err)
			return
		}
		var str bytes.Buffer
		if err := sheet.Execute(&str, doc); err != nil {
			if tt.Failed {
				return
			}
			t.Errorf("error executing transform: %s", err)
			return
		}
		if tt.Failed {
			t.Errorf("expected error but transformation pass!")
			return
		}
		result := tt.Result
		if result == "" {
			result = "result.xml"
		}
		if err := compareBytes(t, filepath.Join(tt.Dir, result), str.Bytes()); err != nil {
			t.Errorf("comparing results mismatched")
		}
	}
}

func compareBytes(t *testing.T, file string, got []byte) error {
	want, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	got = bytes.TrimPrefix(got, []byte{0xEF, 0xBB, 0xBF})
	if filepath.Ext(file) == ".xml" {
		want = normalizeDoc(want)
		got = normalizeDoc(got)
	} else {
		want = bytes.TrimSpace(want)
		got = bytes.TrimSpace(got)
	}
	if !bytes.Equal(want, got) {
		t.Log("want:", string(want))
		t.Log("got :", string(got))
		return fmt.Errorf("bytes mismatched")
	}
	return nil
}

func normalizeDoc(doc []byte) []byte {
	p := xml.NewParser(bytes.NewReader(doc))
	p.TrimSpace = true
	x, err := p.Parse()
	if err != nil {
		return doc
	}
	var buf bytes.Buffer
	w := xml.NewWriter(&buf)
	w.WriterOptions |= xml.OptionCompact | xml.OptionNoProlog
	if err := w.Write(x); err != nil {
		return doc
	}
	return buf.Bytes()
}

const xslNamespace = `xmlns:xsl="http://www.w3.org/1999/XSL/Transform"`

func writeStylesheet(t *testing.T, dir, name, body string) string {
	t.Helper()
	file := filepath.Join(dir, name)
	if err := os.WriteFile(file, []byte(body), 0o644); err != nil {
		t.Fatalf("writing %s: %s", name, err)
	}
	return file
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		Name  string
		Body  string
		Opts  []xslt.Option
		Check func(error) bool
	}{
		{
			Name:  "unknown-instruction",
			Body:  `<xsl:stylesheet version="1.0" ` + xslNamespace + `><xsl:template match="/"><xsl:unknown/></xsl:template></xsl:stylesheet>`,
			Check: xslt.IsCompileError,
		},
		{
			Name:  "bad-xpath",
			Body:  `<xsl:stylesheet version="1.0" ` + xslNamespace + `><xsl:template match="/"><xsl:value-of select="1 +"/></xsl:template></xsl:stylesheet>`,
			Check: xslt.IsCompileError,
		},
		{
			Name:  "missing-select",
			Body:  `<xsl:stylesheet version="1.0" ` + xslNamespace + `><xsl:template match="/"><xsl:for-each/></xsl:template></xsl:stylesheet>`,
			Check: xslt.IsCompileError,
		},
		{
			Name:  "missing-import",
			Body:  `<xsl:stylesheet version="1.0" ` + xslNamespace + `><xsl:import href="nowhere.xsl"/></xsl:stylesheet>`,
			Check: xslt.IsCompileError,
		},
		{
			Name:  "import-cycle",
			Body:  `<xsl:stylesheet version="1.0" ` + xslNamespace + `><xsl:include href="main.xsl"/></xsl:stylesheet>`,
			Check: xslt.IsCompileError,
		},
		{
			Name:  "unsupported-encoding",
			Body:  `<xsl:stylesheet version="1.0" ` + xslNamespace + `><xsl:output encoding="no-such-charset"/></xsl:stylesheet>`,
			Check: xslt.IsCompileError,
		},
		{
			Name: "script-disabled",
			Body: `<xsl:stylesheet version="1.0" ` + xslNamespace + ` xmlns:msxsl="urn:schemas-microsoft-com:xslt" xmlns:u="urn:user">
<msxsl:script language="go" implements-prefix="u">func Id(s string) string { return s }</msxsl:script>
</xsl:stylesheet>`,
			Check: func(err error) bool {
				return xslt.IsCompileError(err) && errors.Is(err, xslt.ErrScriptDisabled)
			},
		},
		{
			Name: "script-language",
			Body: `<xsl:stylesheet version="1.0" ` + xslNamespace + ` xmlns:msxsl="urn:schemas-microsoft-com:xslt" xmlns:u="urn:user">
<msxsl:script language="C#" implements-prefix="u">public string Id(string s) { return s; }</msxsl:script>
</xsl:stylesheet>`,
			Opts:  []xslt.Option{xslt.WithScripts(true)},
			Check: xslt.IsCompileError,
		},
		{
			Name: "malformed",
			Body: `<xsl:stylesheet version="1.0" ` + xslNamespace + `><xsl:template match="/">`,
			Check: func(err error) bool {
				return xml.IsParseError(err) && !xslt.IsCompileError(err)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.Name, func(t *testing.T) {
			file := writeStylesheet(t, t.TempDir(), "main.xsl", tt.Body)
			_, err := xslt.Load(file, tt.Opts...)
			if err == nil {
				t.Fatalf("expected error loading stylesheet")
			}
			if !tt.Check(err) {
				t.Errorf("unexpected error: %s", err)
			}
		})
	}
	t.Run("not-found", func(t *testing.T) {
		_, err := xslt.Load(filepath.Join(t.TempDir(), "missing.xsl"))
		if !errors.Is(err, fs.ErrNotExist) {
			t.Errorf("expected not exist error, got %v", err)
		}
	})
}

func execute(t *testing.T, sheet *xslt.Stylesheet, doc string) ([]byte, error) {
	t.Helper()
	d, err := xml.ParseString(doc)
	if err != nil {
		t.Fatalf("parsing document: %s", err)
	}
	var buf bytes.Buffer
	err = sheet.Execute(&buf, d)
	return buf.Bytes(), err
}

func TestParamsAndBOM(t *testing.T) {
	dir := t.TempDir()
	file := writeStylesheet(t, dir, "main.xsl", `<xsl:stylesheet version="1.0" `+xslNamespace+`>
<xsl:param name="who" select="'nobody'"/>
<xsl:template match="/"><r><xsl:value-of select="$who"/></r></xsl:template>
</xsl:stylesheet>`)
	sheet, err := xslt.Load(file)
	if err != nil {
		t.Fatalf("loading stylesheet: %s", err)
	}
	if got := sheet.Params(); len(got) != 1 || got[0] != "who" {
		t.Errorf("unexpected params: %v", got)
	}
	out, err := execute(t, sheet, "<root/>")
	if err != nil {
		t.Fatalf("executing: %s", err)
	}
	if !bytes.HasPrefix(out, []byte{0xEF, 0xBB, 0xBF}) {
		t.Errorf("byte order mark expected")
	}
	if !bytes.Contains(out, []byte("<r>nobody</r>")) {
		t.Errorf("default parameter value not used: %s", out)
	}
	sheet.SetParam("who", "world")
	sheet.SetParam("unknown", "ignored")
	out, _ = execute(t, sheet, "<root/>")
	if !bytes.Contains(out, []byte("<r>world</r>")) {
		t.Errorf("parameter not bound: %s", out)
	}

	file = writeStylesheet(t, dir, "nobom.xsl", `<xsl:stylesheet version="1.0" `+xslNamespace+`>
<xsl:output byte-order-mark="no" omit-xml-declaration="yes"/>
<xsl:template match="/"><r/></xsl:template>
</xsl:stylesheet>`)
	sheet, err = xslt.Load(file)
	if err != nil {
		t.Fatalf("loading stylesheet: %s", err)
	}
	out, _ = execute(t, sheet, "<root/>")
	if string(out) != "<r/>" {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestOutputEncoding(t *testing.T) {
	file := writeStylesheet(t, t.TempDir(), "main.xsl", `<xsl:stylesheet version="1.0" `+xslNamespace+`>
<xsl:output encoding="ISO-8859-1"/>
<xsl:template match="/"><r>é</r></xsl:template>
</xsl:stylesheet>`)
	sheet, err := xslt.Load(file)
	if err != nil {
		t.Fatalf("loading stylesheet: %s", err)
	}
	if got := sheet.Output(); got.Encoding != "ISO-8859-1" || got.Method != "" {
		t.Errorf("unexpected output settings: %+v", got)
	}
	out, err := execute(t, sheet, "<root/>")
	if err != nil {
		t.Fatalf("executing: %s", err)
	}
	if !bytes.Contains(out, []byte{'<', 'r', '>', 0xE9, '<'}) {
		t.Errorf("content not encoded in latin1: %q", out)
	}
	if !bytes.Contains(out, []byte(`encoding="ISO-8859-1"`)) {
		t.Errorf("encoding not declared: %q", out)
	}
}

func TestScript(t *testing.T) {
	file := writeStylesheet(t, t.TempDir(), "main.xsl", `<xsl:stylesheet version="1.0" `+xslNamespace+`
  xmlns:msxsl="urn:schemas-microsoft-com:xslt" xmlns:u="urn:user">
<msxsl:script language="go" implements-prefix="u"><![CDATA[
import "strings"

func Shout(s string) string {
	return strings.ToUpper(s) + "!"
}
]]></msxsl:script>
<xsl:template match="/"><r><xsl:value-of select="u:shout(string(root/@name))"/></r></xsl:template>
</xsl:stylesheet>`)
	sheet, err := xslt.Load(file, xslt.WithScripts(true))
	if err != nil {
		t.Fatalf("loading stylesheet: %s", err)
	}
	out, err := execute(t, sheet, `<root name="hi"/>`)
	if err != nil {
		t.Fatalf("executing: %s", err)
	}
	if !bytes.Contains(out, []byte("<r>HI!</r>")) {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestDocumentFunction(t *testing.T) {
	dir := t.TempDir()
	writeStylesheet(t, dir, "other.xml", `<data><v>42</v></data>`)
	body := `<xsl:stylesheet version="1.0" ` + xslNamespace + `>
<xsl:template match="/"><r><xsl:value-of select="document('other.xml')/data/v"/></r></xsl:template>
</xsl:stylesheet>`
	file := writeStylesheet(t, dir, "main.xsl", body)

	sheet, err := xslt.Load(file)
	if err != nil {
		t.Fatalf("loading stylesheet: %s", err)
	}
	if _, err := execute(t, sheet, "<root/>"); !errors.Is(err, xslt.ErrDocumentDisabled) {
		t.Errorf("expected document function to be disabled, got %v", err)
	}

	sheet, err = xslt.Load(file, xslt.WithDocumentFunction(true))
	if err != nil {
		t.Fatalf("loading stylesheet: %s", err)
	}
	out, err := execute(t, sheet, "<root/>")
	if err != nil {
		t.Fatalf("executing: %s", err)
	}
	if !bytes.Contains(out, []byte("<r>42</r>")) {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestTerminate(t *testing.T) {
	file := writeStylesheet(t, t.TempDir(), "main.xsl", `<xsl:stylesheet version="1.0" `+xslNamespace+`>
<xsl:template match="/"><xsl:message terminate="yes">halt: <xsl:value-of select="name(*)"/></xsl:message></xsl:template>
</xsl:stylesheet>`)
	sheet, err := xslt.Load(file)
	if err != nil {
		t.Fatalf("loading stylesheet: %s", err)
	}
	_, err = execute(t, sheet, "<root/>")
	if !errors.Is(err, xslt.ErrTerminate) {
		t.Fatalf("expected termination, got %v", err)
	}
	if !strings.Contains(err.Error(), "halt: root") {
		t.Errorf("message not reported: %s", err)
	}
}

func TestSimplifiedStylesheet(t *testing.T) {
	file := writeStylesheet(t, t.TempDir(), "main.xsl", `<out xsl:version="1.0" `+xslNamespace+`><xsl:value-of select="count(//item)"/></out>`)
	sheet, err := xslt.Load(file)
	if err != nil {
		t.Fatalf("loading stylesheet: %s", err)
	}
	out, err := execute(t, sheet, "<root><item/><item/></root>")
	if err != nil {
		t.Fatalf("executing: %s", err)
	}
	if !bytes.Contains(out, []byte("<out>2</out>")) {
		t.Errorf("unexpected output: %s", out)
	}
}
