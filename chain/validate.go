package chain

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jacoelho/xsd"
	xsderrors "github.com/jacoelho/xsd/errors"

	"github.com/midbel/xslchain/dtd"
	"github.com/midbel/xslchain/xml"
)

const xsiNamespace = "http://www.w3.org/2001/XMLSchema-instance"

var errNoGrammar = errors.New("no grammar found to validate the document")

func validate(file string, doc *xml.Document, cfg ReaderConfiguration) error {
	switch cfg.Validation {
	case ValidationDtd:
		return validateDtd(file, doc, cfg)
	case ValidationSchema:
		return validateSchema(file, doc, cfg)
	default:
		return nil
	}
}

// report sends ev to the handler if any. Without handler, errors fail
// the read and warnings are dropped.
func report(file string, cfg ReaderConfiguration, ev ValidationEvent) error {
	if cfg.Handler != nil {
		cfg.Handler(ev)
		return nil
	}
	if ev.Severity == SeverityWarning {
		return nil
	}
	return newError(KindInvalidXml, file, errors.New(ev.String()))
}

func validateDtd(file string, doc *xml.Document, cfg ReaderConfiguration) error {
	if doc.DocType == nil || doc.DocType.Decls == nil {
		return report(file, cfg, ValidationEvent{
			Severity: SeverityWarning,
			Message:  errNoGrammar.Error(),
		})
	}
	options := []dtd.Option{
		dtd.WithXmlAttributes(cfg.Flags.Has(AllowXmlAttributes)),
	}
	if cfg.Handler != nil {
		options = append(options, dtd.WithHandler(func(e dtd.Error) {
			sev := SeverityError
			if e.Severity == dtd.SeverityWarning {
				sev = SeverityWarning
			}
			cfg.Handler(ValidationEvent{
				Severity: sev,
				Message:  e.Error(),
			})
		}))
	}
	v, err := dtd.New(doc.DocType, options...)
	if err != nil {
		return newError(KindInvalidXml, file, err)
	}
	if err := v.Validate(doc); err != nil {
		return newError(KindInvalidXml, file, err)
	}
	return nil
}

func validateSchema(file string, doc *xml.Document, cfg ReaderConfiguration) error {
	var location string
	if cfg.Flags.Has(ProcessSchemaLocation) {
		location = schemaLocation(doc.Root())
	}
	if location == "" {
		return report(file, cfg, ValidationEvent{
			Severity: SeverityWarning,
			Message:  errNoGrammar.Error(),
		})
	}
	if !filepath.IsAbs(location) && !strings.Contains(location, "://") {
		location = filepath.Join(filepath.Dir(file), location)
	}
	schema, err := xsd.LoadFile(location)
	if err != nil {
		return report(file, cfg, ValidationEvent{
			Severity: SeverityError,
			Message:  fmt.Sprintf("%s: %s", location, err),
		})
	}
	r, err := os.Open(file)
	if err != nil {
		return newError(KindReadError, file, err)
	}
	defer r.Close()

	err = schema.Validate(r)
	if err == nil {
		return nil
	}
	list, ok := xsderrors.AsValidations(err)
	if !ok {
		return newError(KindInvalidXml, file, err)
	}
	for _, v := range list {
		ev := ValidationEvent{
			Severity: SeverityError,
			Message:  v.Error(),
		}
		if err := report(file, cfg, ev); err != nil {
			return err
		}
	}
	return nil
}

// schemaLocation returns the location given by the xsi attributes of the
// root element: the one bound to the namespace of the root if any, the
// first one otherwise.
func schemaLocation(root *xml.Element) string {
	if root == nil {
		return ""
	}
	var first string
	for _, a := range root.Attrs {
		if a.Uri != xsiNamespace {
			continue
		}
		switch a.LocalName() {
		case "noNamespaceSchemaLocation":
			if root.NamespaceURI() == "" {
				return strings.TrimSpace(a.Datum)
			}
		case "schemaLocation":
			pairs := strings.Fields(a.Datum)
			for i := 0; i+1 < len(pairs); i += 2 {
				if pairs[i] == root.NamespaceURI() {
					return pairs[i+1]
				}
				if first == "" {
					first = pairs[i+1]
				}
			}
		}
	}
	return first
}
