package xslt

import (
	"fmt"
	"slices"

	"github.com/midbel/xslchain/xml"
	"github.com/midbel/xslchain/xpath"
)

type attrKind int8

const (
	attrExpr attrKind = iota
	attrPattern
	attrAvt
)

var instructionAttrs = map[string]map[string]attrKind{
	"template":        {"match": attrPattern},
	"apply-templates": {"select": attrExpr},
	"for-each":        {"select": attrExpr},
	"value-of":        {"select": attrExpr},
	"copy-of":         {"select": attrExpr},
	"if":              {"test": attrExpr},
	"when":            {"test": attrExpr},
	"variable":        {"select": attrExpr},
	"param":           {"select": attrExpr},
	"with-param":      {"select": attrExpr},
	"key":             {"match": attrPattern, "use": attrExpr},
	"sort": {
		"select":     attrExpr,
		"lang":       attrAvt,
		"data-type":  attrAvt,
		"order":      attrAvt,
		"case-order": attrAvt,
	},
	"number": {
		"value":              attrExpr,
		"count":              attrPattern,
		"from":               attrPattern,
		"format":             attrAvt,
		"lang":               attrAvt,
		"letter-value":       attrAvt,
		"grouping-separator": attrAvt,
		"grouping-size":      attrAvt,
	},
	"element":                {"name": attrAvt, "namespace": attrAvt},
	"attribute":              {"name": attrAvt, "namespace": attrAvt},
	"processing-instruction": {"name": attrAvt},
}

var requiredAttrs = map[string][]string{
	"for-each":               {"select"},
	"value-of":               {"select"},
	"copy-of":                {"select"},
	"if":                     {"test"},
	"when":                   {"test"},
	"variable":               {"name"},
	"param":                  {"name"},
	"with-param":             {"name"},
	"call-template":          {"name"},
	"element":                {"name"},
	"attribute":              {"name"},
	"processing-instruction": {"name"},
	"key":                    {"name", "match", "use"},
	"attribute-set":          {"name"},
	"namespace-alias":        {"stylesheet-prefix", "result-prefix"},
	"strip-space":            {"elements"},
	"preserve-space":         {"elements"},
}

var declarations = []string{
	"template",
	"output",
	"param",
	"variable",
	"key",
	"strip-space",
	"preserve-space",
	"attribute-set",
	"decimal-format",
	"namespace-alias",
	"import",
	"include",
}

// prepare checks the instructions below el and compiles their expressions,
// patterns and attribute value templates.
func (s *Stylesheet) prepare(el *xml.Element) error {
	if err := s.prepareElement(el); err != nil {
		return compileError(documentURI(el, s.File), el.QualifiedName(), err)
	}
	for _, n := range el.Nodes {
		c, ok := n.(*xml.Element)
		if !ok {
			continue
		}
		if err := s.prepare(c); err != nil {
			return err
		}
	}
	return nil
}

func (s *Stylesheet) prepareElement(el *xml.Element) error {
	ns := namespaces(el)
	if el.Uri != xsltNamespaceUri {
		return s.prepareLiteral(el, ns)
	}
	if !s.knownInstruction(el) {
		if forwardsCompatible(el) {
			return nil
		}
		return fmt.Errorf("unknown instruction")
	}
	for _, a := range requiredAttrs[el.Name] {
		if _, err := requireAttr(el, a); err != nil {
			return err
		}
	}
	if el.Name == "template" && isTopLevel(el) {
		_, match := el.GetAttribute("match")
		_, name := el.GetAttribute("name")
		if !match && !name {
			return fmt.Errorf("template must have a name or a match attribute")
		}
	}
	for name, kind := range instructionAttrs[el.Name] {
		attr, ok := el.GetAttribute(name)
		if !ok {
			continue
		}
		switch kind {
		case attrExpr:
			q, err := xpath.CompileWith(attr.Datum, ns)
			if err != nil {
				return err
			}
			s.queries[attr] = q
		case attrPattern:
			q, err := xpath.CompileWith(attr.Datum, ns)
			if err != nil {
				return err
			}
			if !q.IsPattern() {
				return fmt.Errorf("%s: invalid pattern", attr.Datum)
			}
			s.queries[attr] = q
		case attrAvt:
			avt, err := compileAVT(attr.Datum, ns)
			if err != nil {
				return err
			}
			s.avts[attr] = avt
		}
	}
	if name, ok := el.GetAttribute("use-attribute-sets"); ok {
		if _, err := expandNames(el, name.Datum); err != nil {
			return err
		}
	}
	return nil
}

func (s *Stylesheet) prepareLiteral(el *xml.Element, ns map[string]string) error {
	if el.Uri == msxslNamespaceUri {
		return nil
	}
	for _, a := range el.Attrs {
		if a.Uri == xsltNamespaceUri {
			if a.Name == "use-attribute-sets" {
				if _, err := expandNames(el, a.Datum); err != nil {
					return err
				}
			}
			continue
		}
		avt, err := compileAVT(a.Datum, ns)
		if err != nil {
			return err
		}
		s.avts[a] = avt
	}
	return nil
}

func (s *Stylesheet) knownInstruction(el *xml.Element) bool {
	if isTopLevel(el) {
		return slices.Contains(declarations, el.Name)
	}
	if _, ok := executers[el.Name]; ok {
		return true
	}
	switch el.Name {
	case "param", "variable", "sort", "with-param", "when", "otherwise", "fallback":
		return true
	default:
		return false
	}
}

func isTopLevel(el *xml.Element) bool {
	p := el.Parent()
	if p == nil {
		return false
	}
	return isXsl(p, "stylesheet") || isXsl(p, "transform")
}
