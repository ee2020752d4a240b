package chain

import (
	"errors"
	"io/fs"
	"log/slog"

	"github.com/midbel/xslchain/xml"
	"github.com/midbel/xslchain/xslt"
)

// Load compiles the stylesheet in file.
func Load(file string, settings TransformSettings, res xslt.Resolver) (*xslt.Stylesheet, error) {
	return load(file, settings, res, nil, nil)
}

func load(file string, settings TransformSettings, res xslt.Resolver, tracer xslt.Tracer, logger *slog.Logger) (*xslt.Stylesheet, error) {
	options := []xslt.Option{
		xslt.WithDocumentFunction(settings.AllowDocumentFunction),
		xslt.WithScripts(settings.AllowEmbeddedScript),
	}
	if res != nil {
		options = append(options, xslt.WithResolver(res))
	}
	if tracer != nil {
		options = append(options, xslt.WithTracer(tracer))
	}
	if logger != nil {
		options = append(options, xslt.WithLogger(logger))
	}
	sheet, err := xslt.Load(file, options...)
	if err != nil {
		return nil, loadError(file, err)
	}
	return sheet, nil
}

func loadError(file string, err error) error {
	switch {
	case xslt.IsCompileError(err):
		return newError(KindStylesheetError, file, err)
	case errors.Is(err, fs.ErrNotExist):
		return newError(KindNotFound, file, err)
	case xml.IsParseError(err):
		return newError(KindMalformedXml, file, err)
	default:
		return newError(KindLoadError, file, err)
	}
}

// CheckStylesheet compiles the stylesheet in file without running it.
func CheckStylesheet(file string, settings TransformSettings, res xslt.Resolver) (xslt.Output, error) {
	sheet, err := Load(file, settings, res)
	if err != nil {
		return xslt.Output{}, err
	}
	return sheet.Output(), nil
}
