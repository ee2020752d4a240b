package xslt

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/midbel/xslchain/xml"
	"github.com/midbel/xslchain/xpath"
)

// DecimalFormat controls the interpretation of a format-number pattern.
type DecimalFormat struct {
	Name              string
	DecimalSeparator  rune
	GroupingSeparator rune
	Infinity          string
	MinusSign         rune
	NaN               string
	Percent           rune
	PerMille          rune
	ZeroDigit         rune
	Digit             rune
	PatternSeparator  rune
}

func defaultDecimalFormat() *DecimalFormat {
	return &DecimalFormat{
		DecimalSeparator:  '.',
		GroupingSeparator: ',',
		Infinity:          "Infinity",
		MinusSign:         '-',
		NaN:               "NaN",
		Percent:           '%',
		PerMille:          '‰',
		ZeroDigit:         '0',
		Digit:             '#',
		PatternSeparator:  ';',
	}
}

func (s *Stylesheet) loadDecimalFormat(el *xml.Element) error {
	var (
		df   = defaultDecimalFormat()
		name string
		err  error
	)
	if str := attrValue(el, "name"); str != "" {
		if name, err = expandName(el, str); err != nil {
			return err
		}
	}
	df.Name = name
	chars := []struct {
		attr string
		ptr  *rune
	}{
		{"decimal-separator", &df.DecimalSeparator},
		{"grouping-separator", &df.GroupingSeparator},
		{"minus-sign", &df.MinusSign},
		{"percent", &df.Percent},
		{"per-mille", &df.PerMille},
		{"zero-digit", &df.ZeroDigit},
		{"digit", &df.Digit},
		{"pattern-separator", &df.PatternSeparator},
	}
	for _, c := range chars {
		a, ok := el.GetAttribute(c.attr)
		if !ok {
			continue
		}
		if utf8.RuneCountInString(a.Datum) != 1 {
			return fmt.Errorf("%s: single character expected", c.attr)
		}
		*c.ptr, _ = utf8.DecodeRuneInString(a.Datum)
	}
	if a, ok := el.GetAttribute("infinity"); ok {
		df.Infinity = a.Datum
	}
	if a, ok := el.GetAttribute("NaN"); ok {
		df.NaN = a.Datum
	}
	if _, ok := s.formats[name]; ok && name != "" {
		return fmt.Errorf("%s: decimal format already defined", name)
	}
	s.formats[name] = df
	return nil
}

type numberPattern struct {
	prefix    string
	suffix    string
	minInt    int
	minFrac   int
	maxFrac   int
	grouping  int
	factor    float64
	hasPrefix bool
}

func (df *DecimalFormat) parse(pattern string) (numberPattern, error) {
	var (
		np    = numberPattern{factor: 1, grouping: -1}
		state int
		frac  bool
		group = -1
		str   strings.Builder
	)
	isNumberChar := func(r rune) bool {
		return r == df.Digit || r == df.ZeroDigit || r == df.DecimalSeparator || r == df.GroupingSeparator
	}
	for _, r := range pattern {
		if state == 0 && isNumberChar(r) {
			np.prefix = str.String()
			str.Reset()
			state = 1
		}
		if state == 1 && !isNumberChar(r) {
			state = 2
		}
		switch state {
		case 0, 2:
			switch r {
			case df.Percent:
				np.factor = 100
			case df.PerMille:
				np.factor = 1000
			}
			str.WriteRune(r)
			continue
		}
		switch {
		case r == df.DecimalSeparator:
			if frac {
				return np, fmt.Errorf("%s: multiple decimal separators", pattern)
			}
			frac = true
			if group >= 0 {
				np.grouping = group
			}
			group = -1
		case r == df.GroupingSeparator:
			if frac {
				return np, fmt.Errorf("%s: grouping separator in fraction", pattern)
			}
			group = 0
		case r == df.ZeroDigit:
			if frac {
				np.minFrac++
				np.maxFrac++
			} else {
				np.minInt++
				if group >= 0 {
					group++
				}
			}
		case r == df.Digit:
			if frac {
				np.maxFrac++
			} else {
				if np.minInt > 0 {
					return np, fmt.Errorf("%s: digit after zero digit", pattern)
				}
				if group >= 0 {
					group++
				}
			}
		}
	}
	if state == 0 {
		return np, fmt.Errorf("%s: pattern without digit", pattern)
	}
	if !frac && group >= 0 {
		np.grouping = group
	}
	np.suffix = str.String()
	return np, nil
}

// FormatNumber formats value with pattern, as the format-number function
// does.
func (df *DecimalFormat) FormatNumber(value float64, pattern string) (string, error) {
	parts := strings.Split(pattern, string(df.PatternSeparator))
	if len(parts) > 2 {
		return "", fmt.Errorf("%s: too many sub patterns", pattern)
	}
	pos, err := df.parse(parts[0])
	if err != nil {
		return "", err
	}
	if math.IsNaN(value) {
		return df.NaN, nil
	}
	neg := pos
	neg.prefix = string(df.MinusSign) + pos.prefix
	if len(parts) == 2 {
		np, err := df.parse(parts[1])
		if err != nil {
			return "", err
		}
		neg.prefix, neg.suffix = np.prefix, np.suffix
	}
	np := pos
	if value < 0 || (value == 0 && math.Signbit(value)) {
		np = neg
		value = -value
	}
	if math.IsInf(value, 0) {
		return np.prefix + df.Infinity + np.suffix, nil
	}
	value *= np.factor
	return np.prefix + df.digits(value, np) + np.suffix, nil
}

func (df *DecimalFormat) digits(value float64, np numberPattern) string {
	str := strconv.FormatFloat(value, 'f', np.maxFrac, 64)
	ip, fp, _ := strings.Cut(str, ".")
	fp = strings.TrimRight(fp, "0")
	for len(fp) < np.minFrac {
		fp += "0"
	}
	ip = strings.TrimLeft(ip, "0")
	for len(ip) < np.minInt {
		ip = "0" + ip
	}
	if ip == "" && fp == "" {
		ip = "0"
	}
	if np.grouping > 0 && len(ip) > np.grouping {
		ip = group(ip, string(df.GroupingSeparator), np.grouping)
	}
	var buf strings.Builder
	buf.WriteString(df.localize(ip))
	if fp != "" {
		buf.WriteRune(df.DecimalSeparator)
		buf.WriteString(df.localize(fp))
	}
	return buf.String()
}

func (df *DecimalFormat) localize(str string) string {
	if df.ZeroDigit == '0' {
		return str
	}
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return df.ZeroDigit + (r - '0')
		}
		return r
	}, str)
}

func group(str, sep string, size int) string {
	var parts []string
	for len(str) > size {
		parts = append([]string{str[len(str)-size:]}, parts...)
		str = str[:len(str)-size]
	}
	parts = append([]string{str}, parts...)
	return strings.Join(parts, sep)
}

func executeNumber(ctx *Context) ([]xml.Node, error) {
	el, err := ctx.element()
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	var nums []int
	if ctx.hasAttr("value") {
		seq, err := ctx.eval("value")
		if err != nil {
			return nil, ctx.errorWithContext(err)
		}
		n := xpath.AsNumber(seq)
		if math.IsNaN(n) || math.IsInf(n, 0) || n < 0.5 {
			return []xml.Node{xml.NewText(xpath.FormatNumber(n))}, nil
		}
		nums = append(nums, int(math.Floor(n+0.5)))
	} else {
		nums, err = ctx.countNodes(el)
		if err != nil {
			return nil, ctx.errorWithContext(err)
		}
	}
	format, ok, err := ctx.evalAvt("format")
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	if !ok {
		format = "1"
	}
	var nf numberFormat
	nf.separator, _, err = ctx.evalAvt("grouping-separator")
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	size, _, err := ctx.evalAvt("grouping-size")
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	if size != "" {
		nf.size, _ = strconv.Atoi(strings.TrimSpace(size))
	}
	return []xml.Node{xml.NewText(nf.format(nums, format))}, nil
}

// countNodes computes the numbers of the context node according to the
// level, count and from attributes of el.
func (c *Context) countNodes(el *xml.Element) ([]int, error) {
	var (
		node  = c.ContextNode
		xctx  = c.xpathContext()
		count func(xml.Node) (bool, error)
		from  func(xml.Node) (bool, error)
	)
	if c.hasAttr("count") {
		q, err := c.query(el, "count")
		if err != nil {
			return nil, err
		}
		count = func(n xml.Node) (bool, error) {
			return q.Match(n, xctx)
		}
	} else {
		count = func(n xml.Node) (bool, error) {
			return sameKind(n, node), nil
		}
	}
	if c.hasAttr("from") {
		q, err := c.query(el, "from")
		if err != nil {
			return nil, err
		}
		from = func(n xml.Node) (bool, error) {
			return q.Match(n, xctx)
		}
	} else {
		from = func(xml.Node) (bool, error) {
			return false, nil
		}
	}
	switch level := attrValue(el, "level"); level {
	case "", "single", "multiple":
		var nums []int
		for n := node; n != nil; n = n.Parent() {
			if n.Type() == xml.TypeDocument {
				break
			}
			ok, err := count(n)
			if err != nil {
				return nil, err
			}
			if ok {
				x, err := siblingNumber(n, count)
				if err != nil {
					return nil, err
				}
				nums = append([]int{x}, nums...)
				if level != "multiple" {
					break
				}
			}
			if ok, err = from(n); err != nil || ok {
				return nums, err
			}
		}
		return nums, nil
	case "any":
		var total int
		err := walkUntil(xml.TopOf(node), node, func(n xml.Node) error {
			if ok, err := from(n); err != nil {
				return err
			} else if ok {
				total = 0
			}
			ok, err := count(n)
			if ok {
				total++
			}
			return err
		})
		if err != nil || total == 0 {
			return nil, err
		}
		return []int{total}, nil
	default:
		return nil, fmt.Errorf("%s: invalid level", level)
	}
}

func sameKind(a, b xml.Node) bool {
	if a.Type() != b.Type() {
		return false
	}
	switch a.Type() {
	case xml.TypeElement, xml.TypeAttribute:
		return a.LocalName() == b.LocalName() && a.NamespaceURI() == b.NamespaceURI()
	case xml.TypeInstruction:
		return a.LocalName() == b.LocalName()
	default:
		return true
	}
}

func siblingNumber(node xml.Node, count func(xml.Node) (bool, error)) (int, error) {
	parent, ok := node.Parent().(xml.Container)
	if !ok || node.Type() == xml.TypeAttribute {
		return 1, nil
	}
	x := 1
	for _, n := range parent.Children() {
		if n == node {
			break
		}
		ok, err := count(n)
		if err != nil {
			return 0, err
		}
		if ok {
			x++
		}
	}
	return x, nil
}

// walkUntil visits the nodes of root in document order and stops after
// last. The attributes of an element are visited after the element itself.
func walkUntil(root, last xml.Node, fn func(xml.Node) error) error {
	var (
		done bool
		walk func(xml.Node) error
	)
	walk = func(n xml.Node) error {
		if done {
			return nil
		}
		if err := fn(n); err != nil {
			return err
		}
		if n == last {
			done = true
			return nil
		}
		if el, ok := n.(*xml.Element); ok {
			for _, a := range el.Attrs {
				if err := fn(a); err != nil {
					return err
				}
				if xml.Node(a) == last {
					done = true
					return nil
				}
			}
		}
		if c, ok := n.(xml.Container); ok {
			for _, x := range c.Children() {
				if err := walk(x); err != nil || done {
					return err
				}
			}
		}
		return nil
	}
	return walk(root)
}

type numberFormat struct {
	separator string
	size      int
}

func (nf numberFormat) format(nums []int, format string) string {
	var (
		tokens []string
		seps   []string
		prefix string
		suffix string
		curr   strings.Builder
		alnum  bool
	)
	flush := func(next bool) {
		str := curr.String()
		curr.Reset()
		if alnum {
			tokens = append(tokens, str)
		} else if len(tokens) == 0 {
			prefix = str
		} else {
			seps = append(seps, str)
		}
		alnum = next
	}
	for i, r := range format {
		isAlnum := unicode.IsLetter(r) || unicode.IsDigit(r)
		if i > 0 && isAlnum != alnum {
			flush(isAlnum)
		} else if i == 0 {
			alnum = isAlnum
		}
		curr.WriteRune(r)
	}
	if curr.Len() > 0 {
		flush(false)
	}
	if len(seps) == len(tokens) && len(seps) > 0 {
		suffix = seps[len(seps)-1]
		seps = seps[:len(seps)-1]
	}
	if len(tokens) == 0 {
		tokens = append(tokens, "1")
	}
	var buf strings.Builder
	buf.WriteString(prefix)
	for i, n := range nums {
		if i > 0 {
			sep := "."
			if j := i - 1; j < len(seps) {
				sep = seps[j]
			} else if len(seps) > 0 {
				sep = seps[len(seps)-1]
			}
			buf.WriteString(sep)
		}
		tok := tokens[len(tokens)-1]
		if i < len(tokens) {
			tok = tokens[i]
		}
		buf.WriteString(nf.formatToken(n, tok))
	}
	buf.WriteString(suffix)
	return buf.String()
}

func (nf numberFormat) formatToken(n int, tok string) string {
	switch tok {
	case "a":
		return alphaNumber(n, 'a')
	case "A":
		return alphaNumber(n, 'A')
	case "i":
		return strings.ToLower(romanNumber(n))
	case "I":
		return romanNumber(n)
	}
	str := strconv.Itoa(n)
	if strings.Trim(tok, "0") == "1" && strings.HasSuffix(tok, "1") {
		for len(str) < len(tok) {
			str = "0" + str
		}
	}
	if nf.separator != "" && nf.size > 0 {
		str = group(str, nf.separator, nf.size)
	}
	return str
}

func alphaNumber(n int, base rune) string {
	var str []rune
	for n > 0 {
		n--
		str = append([]rune{base + rune(n%26)}, str...)
		n /= 26
	}
	return string(str)
}

func romanNumber(n int) string {
	if n <= 0 || n >= 4000 {
		return strconv.Itoa(n)
	}
	values := []struct {
		value  int
		symbol string
	}{
		{1000, "M"}, {900, "CM"}, {500, "D"}, {400, "CD"},
		{100, "C"}, {90, "XC"}, {50, "L"}, {40, "XL"},
		{10, "X"}, {9, "IX"}, {5, "V"}, {4, "IV"}, {1, "I"},
	}
	var buf strings.Builder
	for _, v := range values {
		for n >= v.value {
			buf.WriteString(v.symbol)
			n -= v.value
		}
	}
	return buf.String()
}
