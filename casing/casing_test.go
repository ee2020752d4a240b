package casing_test

import (
	"testing"

	"github.com/midbel/xslchain/casing"
)

func TestCasing(t *testing.T) {
	data := []struct {
		Input string
		Want  string
		Case  casing.CaseType
	}{
		{
			Input: "ToUpper",
			Want:  "to-upper",
			Case:  casing.KebabCase,
		},
		{
			Input: "format_date",
			Want:  "format-date",
			Case:  casing.KebabCase,
		},
		{
			Input: "HTMLEscape",
			Want:  "htmlescape",
			Case:  casing.KebabCase,
		},
		{
			Input: "to-upper",
			Want:  "ToUpper",
			Case:  casing.PascalCase,
		},
		{
			Input: "join",
			Want:  "Join",
			Case:  casing.PascalCase,
		},
		{
			Input: "--trim--space",
			Want:  "TrimSpace",
			Case:  casing.PascalCase,
		},
		{
			Input: "unchanged",
			Want:  "unchanged",
			Case:  casing.DefaultCase,
		},
	}
	for _, d := range data {
		got := casing.To(d.Case, d.Input)
		if got != d.Want {
			t.Errorf("%s: want %s, got %s", d.Input, d.Want, got)
		}
	}
}
