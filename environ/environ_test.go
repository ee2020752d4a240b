package environ_test

import (
	"errors"
	"testing"

	"github.com/midbel/xslchain/environ"
)

func TestEnclosedResolve(t *testing.T) {
	top := environ.Empty[string]()
	top.Define("xsl", "http://www.w3.org/1999/XSL/Transform")
	top.Define("", "urn:default")

	sub := environ.Enclosed(top)
	sub.Define("", "urn:inner")

	tests := []struct {
		Name string
		Want string
	}{
		{Name: "xsl", Want: "http://www.w3.org/1999/XSL/Transform"},
		{Name: "", Want: "urn:inner"},
	}
	for _, tt := range tests {
		got, err := sub.Resolve(tt.Name)
		if err != nil {
			t.Errorf("%s: unexpected error: %s", tt.Name, err)
			continue
		}
		if got != tt.Want {
			t.Errorf("%s: want %q, got %q", tt.Name, tt.Want, got)
		}
	}
	if got, _ := top.Resolve(""); got != "urn:default" {
		t.Errorf("outer scope modified by inner define: %q", got)
	}
	if _, err := sub.Resolve("foo"); !errors.Is(err, environ.ErrUndefined) {
		t.Errorf("expected undefined error, got %v", err)
	}
	if !environ.Defined(sub, "xsl") || environ.Defined(sub, "foo") {
		t.Errorf("Defined does not follow the scope chain")
	}
}

func TestClone(t *testing.T) {
	top := environ.Empty[int]()
	top.Define("a", 1)
	sub := environ.Enclosed(top)
	sub.Define("b", 2)

	c := sub.(*environ.Env[int]).Clone()
	c.Define("b", 3)

	if got, _ := sub.Resolve("b"); got != 2 {
		t.Errorf("clone shares its values with the original: %d", got)
	}
	if got, _ := c.Resolve("a"); got != 1 {
		t.Errorf("clone lost parent values: %d", got)
	}
}
