package settings_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/midbel/xslchain/chain"
	"github.com/midbel/xslchain/settings"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	file := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(file, []byte(content), 0o644))
	return file
}

func TestDefault(t *testing.T) {
	s := settings.Default()
	require.NoError(t, s.Validate())

	cfg := chain.Build(s, nil)
	assert.Equal(t, chain.DtdProhibit, cfg.DtdPolicy)
	assert.Equal(t, chain.ValidationNone, cfg.Validation)
	assert.True(t, cfg.CheckCharacters)
	assert.Zero(t, cfg.Flags)

	ts := chain.BuildTransformSettings(s)
	assert.False(t, ts.AllowDocumentFunction)
	assert.False(t, ts.AllowEmbeddedScript)
	assert.True(t, s.WriteBom())
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".env", "XSL_VALIDATION=schema\n")
	file := writeFile(t, dir, "xslchain.yml", `
reader:
  dtd: parse
  validation: ${XSL_VALIDATION}
  report_validation_warnings: true
transform:
  script: true
output:
  write_utf8_bom: false
log:
  level: debug
  format: json
`)
	s, err := settings.Load(file)
	require.NoError(t, err)
	assert.Equal(t, chain.DtdParse, s.DtdPolicy())
	assert.Equal(t, chain.ValidationSchema, s.Validation())
	assert.False(t, s.WriteBom())

	cfg := chain.Build(s, nil)
	assert.True(t, cfg.Flags.Has(chain.ReportValidationWarnings))
	assert.True(t, cfg.Flags.Has(chain.ProcessSchemaLocation), "default kept")
	assert.True(t, cfg.Flags.Has(chain.ProcessIdentityConstraints), "default kept")
	assert.NotNil(t, cfg.Handler)

	ts := chain.BuildTransformSettings(s)
	assert.True(t, ts.AllowEmbeddedScript)
	assert.False(t, ts.AllowDocumentFunction)
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		Name    string
		Content string
	}{
		{Name: "dtd", Content: "reader:\n  dtd: maybe\n"},
		{Name: "validation", Content: "reader:\n  validation: relaxng\n"},
		{Name: "level", Content: "log:\n  level: chatty\n"},
		{Name: "format", Content: "log:\n  format: xml\n"},
		{Name: "unknown-field", Content: "reader:\n  colour: blue\n"},
	}
	for _, c := range tests {
		t.Run(c.Name, func(t *testing.T) {
			file := writeFile(t, t.TempDir(), "xslchain.yml", c.Content)
			_, err := settings.Load(file)
			assert.Error(t, err)
		})
	}
}

func TestSaveAndLoad(t *testing.T) {
	file := filepath.Join(t.TempDir(), settings.DefaultFile)
	s := settings.Default()
	require.NoError(t, s.Set(chain.KeyDocumentFunction, true))
	require.Error(t, s.Set("unknown", true))
	require.NoError(t, s.Save(file))

	got, err := settings.Load(file)
	require.NoError(t, err)
	assert.Equal(t, s, got)
}

func TestEmptyFile(t *testing.T) {
	file := writeFile(t, t.TempDir(), "xslchain.yml", "")
	s, err := settings.Load(file)
	require.NoError(t, err)
	assert.Equal(t, settings.Default(), s)
}

func TestLoadPipeline(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "pipeline.yml", `
input: docs/in.xml
output: out/result.html
stages:
  - path: xsl/first.xsl
    params:
      - name: lang
        value: en
      - name: lang
        value: fr
  - path: /opt/xsl/second.xsl
`)
	p, err := settings.LoadPipeline(file)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "docs", "in.xml"), p.Input)
	assert.Equal(t, filepath.Join(dir, "out", "result.html"), p.Output)

	stages := p.ChainStages()
	require.Len(t, stages, 2)
	assert.Equal(t, filepath.Join(dir, "xsl", "first.xsl"), stages[0].Path)
	assert.Equal(t, "fr", stages[0].Bindings()["lang"])
	assert.Equal(t, filepath.Clean("/opt/xsl/second.xsl"), stages[1].Path)
}

func TestLoadPipelineInvalid(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "no-input.yml", "stages:\n  - path: a.xsl\n")
	_, err := settings.LoadPipeline(file)
	assert.ErrorIs(t, err, settings.ErrInvalid)

	file = writeFile(t, dir, "bad-param.yml", "input: a.xml\nstages:\n  - path: a.xsl\n    params:\n      - name: \"a b\"\n")
	_, err = settings.LoadPipeline(file)
	assert.ErrorIs(t, err, settings.ErrInvalid)
}
