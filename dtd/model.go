package dtd

import (
	"fmt"
	"regexp"
	"strings"
)

// compileModel turns a children content model into a regular expression
// matching the names of the child elements, each one followed by a comma.
func compileModel(model string) (*regexp.Regexp, error) {
	var (
		expr  strings.Builder
		depth int
	)
	expr.WriteString("^")
	for i := 0; i < len(model); {
		switch c := model[i]; c {
		case '(':
			depth++
			expr.WriteString("(?:")
			i++
		case ')':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("%s: unbalanced content model", model)
			}
			expr.WriteString(")")
			i++
		case '|':
			expr.WriteString("|")
			i++
		case ',':
			i++
		case '?', '*', '+':
			expr.WriteByte(c)
			i++
		case ' ', '\t', '\r', '\n':
			i++
		default:
			j := i
			for j < len(model) && !strings.ContainsRune("()|,?*+ \t\r\n", rune(model[j])) {
				j++
			}
			name := model[i:j]
			if strings.HasPrefix(name, "#") {
				return nil, fmt.Errorf("%s: unexpected keyword in children model", name)
			}
			expr.WriteString("(?:")
			expr.WriteString(regexp.QuoteMeta(name + ","))
			expr.WriteString(")")
			i = j
		}
	}
	if depth != 0 {
		return nil, fmt.Errorf("%s: unbalanced content model", model)
	}
	expr.WriteString("$")
	return regexp.Compile(expr.String())
}

// mixedNames returns the element names allowed by a mixed content model
// such as (#PCDATA|a|b)*.
func mixedNames(model string) []string {
	model = strings.TrimSuffix(strings.TrimSpace(model), "*")
	model = strings.Trim(model, "()")
	var names []string
	for _, n := range strings.Split(model, "|") {
		n = strings.TrimSpace(n)
		if n == "" || n == "#PCDATA" {
			continue
		}
		names = append(names, n)
	}
	return names
}
