package chain

import (
	"net/url"
	"path/filepath"
	"strings"

	"github.com/midbel/xslchain/xml"
)

const (
	stylesheetTarget = "xml-stylesheet"
	stylesheetType   = "text/xsl"
)

// Declaration is a stylesheet referenced by an xml-stylesheet processing
// instruction.
type Declaration struct {
	Href     string
	Media    string
	Selected bool
}

// Scan returns the stylesheets declared in the prolog of the document in
// file. The whole document is read and validated according to cfg.
func Scan(file string, cfg ReaderConfiguration) ([]Declaration, error) {
	var (
		list []Declaration
		done bool
	)
	visit := func(node xml.Node) {
		if done {
			return
		}
		switch n := node.(type) {
		case *xml.Element:
			done = true
		case *xml.Instruction:
			if n.Name != stylesheetTarget {
				return
			}
			if d, ok := parseDeclaration(n.Content); ok {
				list = append(list, d)
			}
		}
	}
	if err := readFile(file, cfg, visit); err != nil {
		return nil, err
	}
	return list, nil
}

func parseDeclaration(content string) (Declaration, bool) {
	var (
		decl Declaration
		kind string
	)
	attrs, err := xml.ParsePseudoAttrs(content)
	if err != nil {
		return decl, false
	}
	for _, a := range attrs {
		switch a.QualifiedName() {
		case "href":
			decl.Href = a.Datum
		case "type":
			kind = a.Datum
		case "media":
			decl.Media = a.Datum
		}
	}
	return decl, decl.Href != "" && kind == stylesheetType
}

// Select marks the declarations whose media is media. Every declaration is
// selected when media is empty.
func Select(list []Declaration, media string) []Declaration {
	for i := range list {
		list[i].Selected = media == "" || strings.EqualFold(list[i].Media, media)
	}
	return list
}

// Stages converts the selected declarations to stages, resolving their
// href against the directory of the input document.
func Stages(input string, list []Declaration) []Stage {
	var stages []Stage
	for _, d := range list {
		if !d.Selected {
			continue
		}
		stages = append(stages, Stage{
			Path: Resolve(input, d.Href),
		})
	}
	return stages
}

// Resolve joins href with the directory of the input document. Absolute
// paths and URLs are returned as is.
func Resolve(input, href string) string {
	if u, err := url.Parse(href); err == nil && len(u.Scheme) > 1 {
		if u.Scheme == "file" {
			return filepath.FromSlash(u.Path)
		}
		return href
	}
	if filepath.IsAbs(href) {
		return filepath.Clean(href)
	}
	return filepath.Join(filepath.Dir(input), filepath.FromSlash(href))
}
