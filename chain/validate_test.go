package chain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/midbel/xslchain/chain"
)

type source struct {
	dtd        chain.DtdPolicy
	validation chain.Validation
	values     map[string]bool
}

func (s source) DtdPolicy() chain.DtdPolicy {
	return s.dtd
}

func (s source) Validation() chain.Validation {
	return s.validation
}

func (s source) Bool(key string) (bool, bool) {
	v, ok := s.values[key]
	return v, ok
}

type recorder struct {
	events []chain.Event
}

func (r *recorder) Send(e chain.Event) {
	r.events = append(r.events, e)
}

func TestBuild(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg := chain.Build(source{}, nil)
		assert.Equal(t, chain.DtdProhibit, cfg.DtdPolicy)
		assert.Equal(t, chain.ValidationNone, cfg.Validation)
		assert.True(t, cfg.CheckCharacters)
		assert.Zero(t, cfg.Flags)
		assert.Nil(t, cfg.Handler)
	})
	t.Run("flags-ignored-without-validation", func(t *testing.T) {
		src := source{
			dtd: chain.DtdParse,
			values: map[string]bool{
				chain.KeyCheckCharacters:          false,
				chain.KeyAllowXmlAttributes:       true,
				chain.KeyReportValidationWarnings: true,
			},
		}
		cfg := chain.Build(src, nil)
		assert.Equal(t, chain.DtdParse, cfg.DtdPolicy)
		assert.False(t, cfg.CheckCharacters)
		assert.Zero(t, cfg.Flags)
		assert.Nil(t, cfg.Handler)
	})
	t.Run("flags", func(t *testing.T) {
		src := source{
			validation: chain.ValidationSchema,
			values: map[string]bool{
				chain.KeyProcessSchemaLocation:      true,
				chain.KeyProcessIdentityConstraints: true,
				chain.KeyProcessInlineSchema:        false,
			},
		}
		cfg := chain.Build(src, nil)
		assert.True(t, cfg.Flags.Has(chain.ProcessSchemaLocation))
		assert.True(t, cfg.Flags.Has(chain.ProcessIdentityConstraints))
		assert.False(t, cfg.Flags.Has(chain.ProcessInlineSchema))
		assert.False(t, cfg.Flags.Has(chain.ReportValidationWarnings))
		assert.Nil(t, cfg.Handler)
	})
	t.Run("handler", func(t *testing.T) {
		var rec recorder
		src := source{
			validation: chain.ValidationDtd,
			values: map[string]bool{
				chain.KeyReportValidationWarnings: true,
			},
		}
		cfg := chain.Build(src, &rec)
		require.NotNil(t, cfg.Handler)
		cfg.Handler(chain.ValidationEvent{Severity: chain.SeverityWarning, Message: "w"})
		cfg.Handler(chain.ValidationEvent{Severity: chain.SeverityError, Message: "e"})
		require.Len(t, rec.events, 2)
		assert.Equal(t, chain.KindValidationWarning, rec.events[0].Kind)
		assert.Equal(t, chain.KindValidationError, rec.events[1].Kind)
	})
}

func TestCheckDtd(t *testing.T) {
	cfg := chain.ReaderConfiguration{
		DtdPolicy:       chain.DtdParse,
		Validation:      chain.ValidationDtd,
		CheckCharacters: true,
	}
	require.NoError(t, chain.Check(testFile("valid-dtd.xml"), cfg))
	err := chain.Check(testFile("invalid-dtd.xml"), cfg)
	require.ErrorIs(t, err, chain.ErrInvalidXml)

	var rec recorder
	cfg.Flags |= chain.ReportValidationWarnings
	cfg.Handler = chain.Build(source{
		dtd:        chain.DtdParse,
		validation: chain.ValidationDtd,
		values:     map[string]bool{chain.KeyReportValidationWarnings: true},
	}, &rec).Handler
	require.NoError(t, chain.Check(testFile("invalid-dtd.xml"), cfg))
	require.NotEmpty(t, rec.events)
	assert.Equal(t, chain.KindValidationError, rec.events[0].Kind)
}

func TestCheckDtdPolicy(t *testing.T) {
	cfg := chain.DefaultReaderConfiguration()
	err := chain.Check(testFile("valid-dtd.xml"), cfg)
	require.ErrorIs(t, err, chain.ErrMalformedXml)

	cfg.DtdPolicy = chain.DtdIgnore
	require.NoError(t, chain.Check(testFile("valid-dtd.xml"), cfg))

	var rec recorder
	cfg.Validation = chain.ValidationDtd
	cfg.Handler = func(ev chain.ValidationEvent) {
		rec.Send(chain.Event{Kind: chain.KindValidationWarning, Params: []string{ev.Message}})
	}
	require.NoError(t, chain.Check(testFile("valid-dtd.xml"), cfg))
	assert.Len(t, rec.events, 1, "missing grammar reported as warning")
}

func TestCheckSchema(t *testing.T) {
	cfg := chain.ReaderConfiguration{
		Validation:      chain.ValidationSchema,
		CheckCharacters: true,
		Flags:           chain.ProcessSchemaLocation | chain.ProcessIdentityConstraints,
	}
	require.NoError(t, chain.Check(testFile("valid-xsd.xml"), cfg))
	err := chain.Check(testFile("invalid-xsd.xml"), cfg)
	require.ErrorIs(t, err, chain.ErrInvalidXml)

	cfg.Flags &^= chain.ProcessSchemaLocation
	require.NoError(t, chain.Check(testFile("invalid-xsd.xml"), cfg), "without grammar, nothing to validate")
}

func TestRunValidatesInputFirst(t *testing.T) {
	cfg := chain.ReaderConfiguration{
		DtdPolicy:       chain.DtdParse,
		Validation:      chain.ValidationDtd,
		CheckCharacters: true,
	}
	c := chain.New(cfg, chain.TransformSettings{})
	res, err := c.Run(testFile("invalid-dtd.xml"), []chain.Stage{stage("nowhere.xsl")})
	require.ErrorIs(t, err, chain.ErrInvalidXml)
	assert.Nil(t, res)

	_, err = c.Run(testFile("invalid-dtd.xml"), nil)
	assert.ErrorIs(t, err, chain.ErrInvalidXml, "validation happens before the stages are checked")
}
