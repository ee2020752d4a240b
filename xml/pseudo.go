package xml

import (
	"regexp"
	"strings"
)

// ParsePseudoAttrs parses the content of a processing instruction as the
// attribute list of a synthetic element, the way the xml-stylesheet
// instruction is meant to be read.
func ParsePseudoAttrs(content string) ([]*Attribute, error) {
	var str strings.Builder
	str.WriteString("<pseudo ")
	str.WriteString(content)
	str.WriteString("/>")

	rs := NewReader(strings.NewReader(str.String()))
	node, err := rs.Read()
	if err != nil {
		return nil, err
	}
	el, ok := node.(*Element)
	if !ok {
		return nil, ErrElement
	}
	return el.Attrs, nil
}

var pseudoPattern = regexp.MustCompile(`([A-Za-z_][A-Za-z0-9._-]*)\s*=\s*(?:"([^"]*)"|'([^']*)')`)

func pseudoAttr(inst []byte, name string) (string, bool) {
	for _, m := range pseudoPattern.FindAllSubmatch(inst, -1) {
		if string(m[1]) != name {
			continue
		}
		if m[2] != nil {
			return string(m[2]), true
		}
		return string(m[3]), true
	}
	return "", false
}
