package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/midbel/xslchain/chain"
	"github.com/midbel/xslchain/settings"
)

var errUsage = errors.New("usage")

// loadSettings reads file or, when not given, the default settings file
// of the current directory if it exists.
func loadSettings(file string) (*settings.Settings, error) {
	if file != "" {
		return settings.Load(file)
	}
	s, err := settings.Load(settings.DefaultFile)
	if errors.Is(err, fs.ErrNotExist) {
		return settings.Default(), nil
	}
	return s, err
}

// runLogger tags every record with an identifier of the run.
func runLogger(s *settings.Settings) *slog.Logger {
	return s.Logger(os.Stderr).With("run", uuid.NewString())
}

// ParamList collects the name=value pairs given with a repeatable flag.
type ParamList []chain.Param

func (p *ParamList) String() string {
	var list []string
	for _, x := range *p {
		list = append(list, x.Name+"="+x.Value)
	}
	return strings.Join(list, ",")
}

func (p *ParamList) Set(str string) error {
	name, value, ok := strings.Cut(str, "=")
	if !ok || name == "" {
		return fmt.Errorf("%s: parameter must be given as name=value", str)
	}
	*p = append(*p, chain.Param{
		Name:  strings.TrimSpace(name),
		Value: value,
	})
	return nil
}

func printEvent(e chain.Event) {
	fmt.Fprintf(os.Stderr, "%s: %s\n", e.Kind, strings.Join(e.Params, ": "))
}
