package chain

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/midbel/xslchain/xml"
)

// visitFunc is called for every node read, elements being seen once when
// opened.
type visitFunc func(xml.Node)

// readFile reads the whole document in file, checking that it is
// well-formed then valid according to cfg.
func readFile(file string, cfg ReaderConfiguration, visit visitFunc) error {
	r, err := os.Open(file)
	if err != nil {
		return newError(KindNotFound, file, err)
	}
	defer r.Close()

	doc, err := readDocument(r, file, cfg, visit)
	if err != nil {
		return err
	}
	return validate(file, doc, cfg)
}

func newReader(r io.Reader, file string, cfg ReaderConfiguration) *xml.Reader {
	var rs *xml.Reader
	if cfg.CheckCharacters {
		rs = xml.NewReader(r)
	} else {
		rs = xml.NewLenientReader(r)
	}
	rs.Doctype = cfg.DtdPolicy.mode()
	if file != "" {
		rs.External = xml.ExternalFromDir(filepath.Dir(file))
	}
	return rs
}

// readDocument streams r to its end. The tree is only kept when a
// validator needs it.
func readDocument(r io.Reader, file string, cfg ReaderConfiguration, visit visitFunc) (*xml.Document, error) {
	var (
		rs   = newReader(r, file, cfg)
		tree = cfg.Validation != ValidationNone
		doc  = xml.EmptyDocument()
		curr xml.Container
	)
	doc.URI = file
	curr = doc
	for {
		node, err := rs.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, xml.ErrClosed) {
			if !tree {
				continue
			}
			if parent := node.Parent(); parent != nil {
				curr = parent.(xml.Container)
			} else {
				curr = doc
			}
			continue
		}
		if err != nil {
			return nil, readError(file, err)
		}
		if visit != nil {
			visit(node)
		}
		if !tree {
			continue
		}
		curr.Append(node)
		if el, ok := node.(*xml.Element); ok {
			curr = el
		}
	}
	doc.DocType = rs.DocType
	doc.Encoding = rs.Encoding
	return doc, nil
}

func readError(file string, err error) error {
	switch {
	case xml.IsParseError(err):
		return newError(KindMalformedXml, file, err)
	case errors.Is(err, fs.ErrNotExist):
		return newError(KindNotFound, file, err)
	default:
		return newError(KindReadError, file, err)
	}
}

// Check reads and validates the document in file.
func Check(file string, cfg ReaderConfiguration) error {
	return readFile(file, cfg, nil)
}
