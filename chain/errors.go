package chain

import (
	"errors"
	"fmt"
)

// Kind classifies the failures and the advisory events of a run.
type Kind int8

const (
	KindUnknown Kind = iota
	KindNotFound
	KindMalformedXml
	KindInvalidXml
	KindValidationWarning
	KindValidationError
	KindStylesheetError
	KindIntermediateResultError
	KindTransformError
	KindOutputFileError
	KindNoStylesheets
	KindReadError
	KindLoadError
	KindTransformationSuccess
)

var kindNames = map[Kind]string{
	KindUnknown:                 "unknown",
	KindNotFound:                "not found",
	KindMalformedXml:            "malformed xml",
	KindInvalidXml:              "invalid xml",
	KindValidationWarning:       "validation warning",
	KindValidationError:         "validation error",
	KindStylesheetError:         "stylesheet error",
	KindIntermediateResultError: "intermediate result error",
	KindTransformError:          "transform error",
	KindOutputFileError:         "output file error",
	KindNoStylesheets:           "no stylesheets",
	KindReadError:               "read error",
	KindLoadError:               "load error",
	KindTransformationSuccess:   "transformation success",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return kindNames[KindUnknown]
}

// Advisory reports whether events of this kind never abort a run.
func (k Kind) Advisory() bool {
	switch k {
	case KindValidationWarning, KindValidationError, KindTransformationSuccess:
		return true
	default:
		return false
	}
}

// Sentinels matching every Error of the same kind with errors.Is.
var (
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrMalformedXml       = &Error{Kind: KindMalformedXml}
	ErrInvalidXml         = &Error{Kind: KindInvalidXml}
	ErrStylesheet         = &Error{Kind: KindStylesheetError}
	ErrIntermediateResult = &Error{Kind: KindIntermediateResultError}
	ErrTransform          = &Error{Kind: KindTransformError}
	ErrOutputFile         = &Error{Kind: KindOutputFileError}
	ErrNoStylesheets      = &Error{Kind: KindNoStylesheets}
	ErrRead               = &Error{Kind: KindReadError}
	ErrLoad               = &Error{Kind: KindLoadError}
)

// Error is a classified failure of a run. File is the document or the
// stylesheet concerned by the failure.
type Error struct {
	Kind Kind
	File string
	Err  error
}

func newError(kind Kind, file string, err error) error {
	return &Error{
		Kind: kind,
		File: file,
		Err:  err,
	}
}

func (e *Error) Error() string {
	switch {
	case e.File == "" && e.Err == nil:
		return e.Kind.String()
	case e.File == "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Err)
	case e.Err == nil:
		return fmt.Sprintf("%s: %s", e.Kind, e.File)
	default:
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.File, e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return other.Kind == e.Kind
}

// Params returns the strings giving context to the error: the file, if
// any, followed by the message of the cause.
func (e *Error) Params() []string {
	var list []string
	if e.File != "" {
		list = append(list, e.File)
	}
	if e.Err != nil {
		list = append(list, e.Err.Error())
	}
	return list
}

// KindOf returns the kind of the first Error in the chain of err.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
