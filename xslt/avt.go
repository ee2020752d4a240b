package xslt

import (
	"fmt"
	"strings"

	"github.com/midbel/xslchain/xpath"
)

// AVT is a compiled attribute value template.
type AVT struct {
	parts []avtPart
}

type avtPart struct {
	literal string
	expr    *xpath.Query
}

func compileAVT(str string, ns map[string]string) (*AVT, error) {
	var (
		avt AVT
		buf strings.Builder
	)
	for i := 0; i < len(str); i++ {
		c := str[i]
		switch {
		case c == '{' && i+1 < len(str) && str[i+1] == '{':
			buf.WriteByte('{')
			i++
		case c == '}' && i+1 < len(str) && str[i+1] == '}':
			buf.WriteByte('}')
			i++
		case c == '}':
			return nil, fmt.Errorf("%s: unbalanced '}' in attribute value template", str)
		case c == '{':
			end, err := scanExpr(str, i+1)
			if err != nil {
				return nil, err
			}
			if buf.Len() > 0 {
				avt.parts = append(avt.parts, avtPart{literal: buf.String()})
				buf.Reset()
			}
			q, err := xpath.CompileWith(str[i+1:end], ns)
			if err != nil {
				return nil, err
			}
			avt.parts = append(avt.parts, avtPart{expr: q})
			i = end
		default:
			buf.WriteByte(c)
		}
	}
	if buf.Len() > 0 || len(avt.parts) == 0 {
		avt.parts = append(avt.parts, avtPart{literal: buf.String()})
	}
	return &avt, nil
}

// scanExpr returns the offset of the brace closing the expression starting
// at pos, skipping string literals.
func scanExpr(str string, pos int) (int, error) {
	var quote byte
	for i := pos; i < len(str); i++ {
		c := str[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '}':
			return i, nil
		}
	}
	return 0, fmt.Errorf("%s: missing '}' in attribute value template", str)
}

// Static returns the value of a template without expression.
func (a *AVT) Static() (string, bool) {
	if len(a.parts) == 1 && a.parts[0].expr == nil {
		return a.parts[0].literal, true
	}
	return "", false
}

func (a *AVT) Eval(ctx xpath.Context) (string, error) {
	var str strings.Builder
	for _, p := range a.parts {
		if p.expr == nil {
			str.WriteString(p.literal)
			continue
		}
		seq, err := p.expr.Find(ctx)
		if err != nil {
			return "", err
		}
		str.WriteString(xpath.AsString(seq))
	}
	return str.String(), nil
}
