package chain_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/midbel/xslchain/chain"
)

func testFile(name string) string {
	return filepath.Join("testdata", name)
}

func run(t *testing.T, input string, stages ...chain.Stage) (*chain.Result, error) {
	t.Helper()
	c := chain.New(chain.DefaultReaderConfiguration(), chain.TransformSettings{})
	return c.Run(testFile(input), stages)
}

func stage(name string, params ...chain.Param) chain.Stage {
	return chain.Stage{
		Path:   testFile(name),
		Params: params,
	}
}

func body(t *testing.T, res *chain.Result) []byte {
	t.Helper()
	require.NotNil(t, res)
	defer res.Release()
	return bytes.Clone(res.Body.Bytes())
}

func TestRunMissingStylesheetWithInvalidParam(t *testing.T) {
	res, err := run(t, "plain.xml", stage("missing.xsl", chain.Param{Name: "1bad", Value: "x"}))
	assert.Nil(t, res)
	require.ErrorIs(t, err, chain.ErrNotFound)
	assert.NotErrorIs(t, err, chain.ErrStylesheet)
}

func TestScan(t *testing.T) {
	cfg := chain.DefaultReaderConfiguration()
	t.Run("without-declaration", func(t *testing.T) {
		list, err := chain.Scan(testFile("plain.xml"), cfg)
		require.NoError(t, err)
		assert.Empty(t, list)
	})
	t.Run("declarations", func(t *testing.T) {
		list, err := chain.Scan(testFile("declared.xml"), cfg)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "html.xsl", list[0].Href)
		assert.Equal(t, "screen", list[0].Media)
		assert.False(t, list[0].Selected)
	})
	t.Run("not-found", func(t *testing.T) {
		_, err := chain.Scan(testFile("nowhere.xml"), cfg)
		require.ErrorIs(t, err, chain.ErrNotFound)
	})
	t.Run("malformed", func(t *testing.T) {
		list, err := chain.Scan(testFile("malformed.xml"), cfg)
		require.ErrorIs(t, err, chain.ErrMalformedXml)
		assert.Nil(t, list)
	})
}

func TestSelect(t *testing.T) {
	list, err := chain.Scan(testFile("many.xml"), chain.DefaultReaderConfiguration())
	require.NoError(t, err)
	require.Len(t, list, 3)

	stages := chain.Stages(testFile("many.xml"), chain.Select(list, "screen"))
	require.Len(t, stages, 1)
	assert.Equal(t, testFile("html.xsl"), stages[0].Path)

	stages = chain.Stages(testFile("many.xml"), chain.Select(list, ""))
	require.Len(t, stages, 3)
	assert.Equal(t, testFile("identity.xsl"), stages[0].Path)
	assert.Equal(t, filepath.Clean("/abs/text.xsl"), stages[2].Path)
}

func TestResolve(t *testing.T) {
	assert.Equal(t, filepath.Join("docs", "xsl", "a.xsl"), chain.Resolve(filepath.Join("docs", "in.xml"), "xsl/a.xsl"))
	assert.Equal(t, "http://example.org/a.xsl", chain.Resolve("docs/in.xml", "http://example.org/a.xsl"))
	assert.Equal(t, filepath.Clean("/tmp/a.xsl"), chain.Resolve("docs/in.xml", "/tmp/a.xsl"))
}

func TestRunWithoutStylesheets(t *testing.T) {
	res, err := run(t, "plain.xml")
	require.ErrorIs(t, err, chain.ErrNoStylesheets)
	assert.Nil(t, res)
	assert.Equal(t, chain.KindNoStylesheets, chain.KindOf(err))
}

func TestRunSingleStageMetadata(t *testing.T) {
	res, err := run(t, "plain.xml", stage("text.xsl"))
	require.NoError(t, err)
	assert.Equal(t, chain.MethodText, res.Method)
	assert.Equal(t, "ISO-8859-1", res.Encoding)
	assert.Equal(t, "Dune|Hyperion|", string(body(t, res)))
}

func TestRunLastStageIsAuthoritative(t *testing.T) {
	res, err := run(t, "plain.xml", stage("wrap.xsl"), stage("text.xsl"))
	require.NoError(t, err)
	assert.Equal(t, chain.MethodText, res.Method)
	assert.Equal(t, "ISO-8859-1", res.Encoding)
	res.Release()

	res, err = run(t, "plain.xml", stage("identity.xsl"), stage("wrap.xsl"))
	require.NoError(t, err)
	assert.Equal(t, chain.MethodXml, res.Method)
	assert.Equal(t, "UTF-8", res.Encoding)
	assert.True(t, bytes.Contains(body(t, res), []byte(`<wrapped count="2">`)))
}

func TestIdentityThenHtml(t *testing.T) {
	res, err := run(t, "plain.xml", stage("html.xsl"))
	require.NoError(t, err)
	assert.Equal(t, chain.MethodHtml, res.Method)
	alone := body(t, res)

	res, err = run(t, "plain.xml", stage("identity.xsl"), stage("html.xsl"))
	require.NoError(t, err)
	assert.Equal(t, chain.MethodHtml, res.Method)
	assert.Equal(t, "UTF-8", res.Encoding)
	assert.Equal(t, string(alone), string(body(t, res)))
}

func TestRunParameters(t *testing.T) {
	res, err := run(t, "plain.xml", stage("param.xsl"))
	require.NoError(t, err)
	assert.Equal(t, "nobody", string(body(t, res)))

	res, err = run(t, "plain.xml", stage("param.xsl",
		chain.Param{Name: "who", Value: "alice"},
		chain.Param{Name: "other", Value: "ignored"},
		chain.Param{Name: "who", Value: "bob"},
	))
	require.NoError(t, err)
	assert.Equal(t, "bob", string(body(t, res)))

	_, err = run(t, "plain.xml", stage("param.xsl", chain.Param{Name: "1st", Value: "x"}))
	require.ErrorIs(t, err, chain.ErrStylesheet)
}

func TestRunFailures(t *testing.T) {
	tests := []struct {
		Name   string
		Input  string
		Stages []chain.Stage
		Want   error
		File   string
	}{
		{
			Name:   "malformed-input",
			Input:  "malformed.xml",
			Stages: []chain.Stage{stage("identity.xsl")},
			Want:   chain.ErrMalformedXml,
			File:   "malformed.xml",
		},
		{
			Name:   "missing-input",
			Input:  "nowhere.xml",
			Stages: []chain.Stage{stage("identity.xsl")},
			Want:   chain.ErrNotFound,
			File:   "nowhere.xml",
		},
		{
			Name:   "missing-stylesheet",
			Input:  "plain.xml",
			Stages: []chain.Stage{stage("identity.xsl"), stage("nowhere.xsl")},
			Want:   chain.ErrNotFound,
			File:   "nowhere.xsl",
		},
		{
			Name:   "stylesheet-error",
			Input:  "plain.xml",
			Stages: []chain.Stage{stage("broken.xsl")},
			Want:   chain.ErrStylesheet,
			File:   "broken.xsl",
		},
		{
			Name:   "stylesheet-not-well-formed",
			Input:  "plain.xml",
			Stages: []chain.Stage{stage("notwellformed.xsl")},
			Want:   chain.ErrMalformedXml,
			File:   "notwellformed.xsl",
		},
		{
			Name:   "intermediate-result",
			Input:  "plain.xml",
			Stages: []chain.Stage{stage("text.xsl"), stage("identity.xsl")},
			Want:   chain.ErrIntermediateResult,
			File:   "text.xsl",
		},
		{
			Name:   "terminate",
			Input:  "plain.xml",
			Stages: []chain.Stage{stage("identity.xsl"), stage("terminate.xsl")},
			Want:   chain.ErrTransform,
			File:   "terminate.xsl",
		},
	}
	for _, c := range tests {
		t.Run(c.Name, func(t *testing.T) {
			res, err := run(t, c.Input, c.Stages...)
			require.Error(t, err)
			assert.Nil(t, res)
			assert.ErrorIs(t, err, c.Want)

			var e *chain.Error
			require.ErrorAs(t, err, &e)
			assert.Equal(t, testFile(c.File), e.File)
			assert.NotEmpty(t, e.Params())
		})
	}
}

func TestWrite(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		Name     string
		Body     []byte
		Encoding string
		Bom      bool
		Want     []byte
	}{
		{
			Name:     "strip-bom",
			Body:     []byte("\xEF\xBB\xBF<a/>"),
			Encoding: "UTF-8",
			Want:     []byte("<a/>"),
		},
		{
			Name:     "keep-bom",
			Body:     []byte("\xEF\xBB\xBF<a/>"),
			Encoding: "utf-8",
			Bom:      true,
			Want:     []byte("\xEF\xBB\xBF<a/>"),
		},
		{
			Name:     "partial-bom",
			Body:     []byte("\xEF\xBB<a/>"),
			Encoding: "UTF-8",
			Want:     []byte("\xEF\xBB<a/>"),
		},
		{
			Name:     "short-body",
			Body:     []byte("\xEF"),
			Encoding: "UTF-8",
			Want:     []byte("\xEF"),
		},
		{
			Name:     "other-encoding",
			Body:     []byte("\xEF\xBB\xBFabc"),
			Encoding: "ISO-8859-1",
			Want:     []byte("\xEF\xBB\xBFabc"),
		},
	}
	for _, c := range tests {
		t.Run(c.Name, func(t *testing.T) {
			buf := chain.NewBuffer()
			_, err := buf.Write(c.Body)
			require.NoError(t, err)

			res := chain.Result{
				Body:     buf,
				Encoding: c.Encoding,
			}
			file := filepath.Join(dir, c.Name+".out")
			require.NoError(t, chain.Write(&res, file, c.Bom))

			got, err := os.ReadFile(file)
			require.NoError(t, err)
			assert.Equal(t, c.Want, got)
			assert.Nil(t, buf.Bytes(), "buffer not released")
		})
	}
}

func TestWriteFailureReleases(t *testing.T) {
	buf := chain.NewBuffer()
	buf.Write([]byte("<a/>"))
	res := chain.Result{
		Body:     buf,
		Encoding: "UTF-8",
	}
	err := chain.Write(&res, filepath.Join(t.TempDir(), "missing", "dir", "out.xml"), false)
	require.ErrorIs(t, err, chain.ErrOutputFile)
	assert.Nil(t, buf.Bytes())
}

func TestPropose(t *testing.T) {
	assert.Equal(t, "html", chain.ProposeExtension(chain.MethodHtml))
	assert.Equal(t, "txt", chain.ProposeExtension(chain.MethodText))
	assert.Equal(t, "xml", chain.ProposeExtension(chain.MethodXml))

	got := chain.ProposeOutput(filepath.Join("docs", "report.xml"), chain.MethodHtml)
	assert.Equal(t, filepath.Join("docs", "report.out.html"), got)
}

func TestCheckStylesheet(t *testing.T) {
	out, err := chain.CheckStylesheet(testFile("text.xsl"), chain.TransformSettings{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "text", out.Method)
	assert.True(t, strings.EqualFold(out.Encoding, "ISO-8859-1"))

	_, err = chain.CheckStylesheet(testFile("broken.xsl"), chain.TransformSettings{}, nil)
	assert.ErrorIs(t, err, chain.ErrStylesheet)
}
