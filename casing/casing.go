package casing

import (
	"iter"
	"unicode"
	"unicode/utf8"
)

type CaseType int8

const (
	DefaultCase CaseType = -(1 << iota)
	KebabCase
	PascalCase
)

func To(to CaseType, str string) string {
	switch to {
	case KebabCase:
		str = ToKebab(str)
	case PascalCase:
		str = ToPascal(str)
	default:
	}
	return str
}

// ToKebab turns an exported Go identifier into the hyphenated form used by
// XPath function names: ToUpper becomes to-upper.
func ToKebab(str string) string {
	var (
		chars []rune
		last  rune
	)
	for r := range iterRunes(str) {
		if r == space || r == underscore {
			chars = append(chars, hyphen)
		} else if unicode.IsUpper(r) && last != 0 {
			if !isSep(last) && !unicode.IsUpper(last) {
				chars = append(chars, hyphen)
			}
			chars = append(chars, unicode.ToLower(r))
		} else {
			chars = append(chars, unicode.ToLower(r))
		}
		last = r
	}
	if z := len(chars); z > 0 && isSep(last) {
		chars = chars[:z-1]
	}
	return string(chars)
}

// ToPascal is the reverse of ToKebab: to-upper becomes ToUpper.
func ToPascal(str string) string {
	var chars []rune

	next, stop := iter.Pull(iterRunes(str))
	defer stop()
	for i := 0; ; i++ {
		r, ok := next()
		if !ok {
			break
		}
		if isSep(r) {
			r, ok = next()
			if !ok {
				break
			}
			chars = append(chars, unicode.ToUpper(r))
		} else if i == 0 {
			chars = append(chars, unicode.ToUpper(r))
		} else {
			chars = append(chars, r)
		}
	}
	return string(chars)
}

const (
	hyphen     = '-'
	space      = ' '
	underscore = '_'
)

func isSep(r rune) bool {
	return r == hyphen || r == underscore || r == space
}

func iterRunes(str string) iter.Seq[rune] {
	keep := func(r rune) bool {
		return unicode.IsLetter(r) || unicode.IsDigit(r) || isSep(r)
	}
	skip := func(str string) int {
		var offset int
		for offset < len(str) {
			r, z := utf8.DecodeRuneInString(str[offset:])
			if !isSep(r) {
				break
			}
			offset += z
		}
		return offset
	}
	fn := func(yield func(rune) bool) {
		var (
			last   rune
			offset = skip(str)
		)
		for offset < len(str) {
			r, z := utf8.DecodeRuneInString(str[offset:])
			offset += z

			if !keep(r) {
				continue
			} else if isSep(last) && isSep(r) {
				offset += skip(str[offset:])
				continue
			}
			if !yield(r) {
				break
			}
			last = r
		}
	}
	return fn
}
