package alpha_test

import (
	"errors"
	"io"
	"testing"

	"github.com/midbel/xslchain/alpha"
)

func TestLowerString(t *testing.T) {
	n := alpha.NewLowerString(2)
	want := []string{"aa", "ab", "ac"}
	for i, w := range want {
		got, err := n.Next()
		if err != nil {
			t.Fatalf("%d: unexpected error: %s", i, err)
		}
		if got != w {
			t.Errorf("%d: want %s, got %s", i, w, got)
		}
	}
}

func TestNumberStringExhausted(t *testing.T) {
	n := alpha.NewNumberString(1)
	for i := 0; i < 10; i++ {
		if _, err := n.Next(); err != nil {
			t.Fatalf("%d: unexpected error: %s", i, err)
		}
	}
	if _, err := n.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
	n.Reset()
	if got, _ := n.Next(); got != "0" {
		t.Errorf("reset: want 0, got %s", got)
	}
}

func TestCompose(t *testing.T) {
	n := alpha.Compose("", alpha.NewLowerString(1), alpha.NewNumberString(1))
	seen := make(map[string]struct{})
	var last string
	for {
		str, err := n.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("unexpected error: %s", err)
		}
		if _, ok := seen[str]; ok {
			t.Fatalf("duplicate name %s", str)
		}
		seen[str] = struct{}{}
		last = str
	}
	if len(seen) != 26*10 {
		t.Errorf("want %d names, got %d", 26*10, len(seen))
	}
	if last != "z9" {
		t.Errorf("last name: want z9, got %s", last)
	}
}
