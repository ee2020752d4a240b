package xslt

import (
	"errors"
	"fmt"
)

var (
	ErrTerminate        = errors.New("terminate")
	ErrDocumentDisabled = errors.New("document function is disabled")
	ErrScriptDisabled   = errors.New("embedded scripts are disabled")
	ErrUndefined        = errors.New("undefined")
)

// CompileError reports a static error found while loading a stylesheet.
type CompileError struct {
	File    string
	Element string
	Message string
	Err     error
}

func compileError(file, elem string, err error) error {
	var ce CompileError
	if errors.As(err, &ce) {
		return err
	}
	return CompileError{
		File:    file,
		Element: elem,
		Message: err.Error(),
		Err:     err,
	}
}

func (e CompileError) Error() string {
	if e.Element == "" {
		return fmt.Sprintf("%s: %s", e.File, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.File, e.Element, e.Message)
}

func (e CompileError) Unwrap() error {
	return e.Err
}

func IsCompileError(err error) bool {
	var ce CompileError
	return errors.As(err, &ce)
}

func errorWithContext(ctx string, err error) error {
	return fmt.Errorf("%s: %w", ctx, err)
}
