package xpath

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/midbel/xslchain/environ"
	"github.com/midbel/xslchain/xml"
)

var builtins = map[string]BuiltinFunc{
	"last":             callLast,
	"position":         callPosition,
	"count":            callCount,
	"id":               callId,
	"local-name":       callLocalName,
	"namespace-uri":    callNamespaceUri,
	"name":             callName,
	"string":           callString,
	"concat":           callConcat,
	"starts-with":      callStartsWith,
	"contains":         callContains,
	"substring-before": callSubstringBefore,
	"substring-after":  callSubstringAfter,
	"substring":        callSubstring,
	"string-length":    callStringLength,
	"normalize-space":  callNormalizeSpace,
	"translate":        callTranslate,
	"boolean":          callBoolean,
	"not":              callNot,
	"true":             callTrue,
	"false":            callFalse,
	"lang":             callLang,
	"number":           callNumber,
	"sum":              callSum,
	"floor":            callFloor,
	"ceiling":          callCeiling,
	"round":            callRound,
}

// DefaultBuiltins returns a fresh environment holding the core function
// library. Callers can enclose it to register more functions.
func DefaultBuiltins() environ.Environ[BuiltinFunc] {
	env := environ.Empty[BuiltinFunc]()
	for name, fn := range builtins {
		env.Define(name, fn)
	}
	return env
}

// IsBuiltin reports whether name belongs to the core function library.
func IsBuiltin(name string) bool {
	_, ok := builtins[name]
	return ok
}

func checkArity(name string, args []Expr, min, max int) error {
	if len(args) < min || (max >= 0 && len(args) > max) {
		return fmt.Errorf("%s: %w", name, ErrArgument)
	}
	return nil
}

func evalString(ctx Context, expr Expr) (string, error) {
	seq, err := expr.Find(ctx)
	if err != nil {
		return "", err
	}
	return AsString(seq), nil
}

func evalNumber(ctx Context, expr Expr) (float64, error) {
	seq, err := expr.Find(ctx)
	if err != nil {
		return 0, err
	}
	return AsNumber(seq), nil
}

// EvalNodes evaluates expr and fails when the result is not a node-set.
func EvalNodes(ctx Context, expr Expr) (Sequence, error) {
	seq, err := expr.Find(ctx)
	if err != nil {
		return nil, err
	}
	if !seq.Nodes() {
		return nil, fmt.Errorf("%w: node-set expected", ErrType)
	}
	return seq, nil
}

// stringArg evaluates the optional single argument of the string functions,
// defaulting to the context node.
func stringArg(ctx Context, name string, args []Expr) (string, error) {
	if err := checkArity(name, args, 0, 1); err != nil {
		return "", err
	}
	if len(args) == 0 {
		if ctx.Node == nil {
			return "", nil
		}
		return ctx.Node.Value(), nil
	}
	return evalString(ctx, args[0])
}

// nodeArg returns the first node of the optional node-set argument.
func nodeArg(ctx Context, name string, args []Expr) (xml.Node, error) {
	if err := checkArity(name, args, 0, 1); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return ctx.Node, nil
	}
	seq, err := EvalNodes(ctx, args[0])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	seq = seq.Sort()
	if len(seq) == 0 {
		return nil, nil
	}
	return seq[0].Node(), nil
}

func callLast(ctx Context, args []Expr) (Sequence, error) {
	if err := checkArity("last", args, 0, 0); err != nil {
		return nil, err
	}
	return Singleton(float64(ctx.Size)), nil
}

func callPosition(ctx Context, args []Expr) (Sequence, error) {
	if err := checkArity("position", args, 0, 0); err != nil {
		return nil, err
	}
	return Singleton(float64(ctx.Index)), nil
}

func callCount(ctx Context, args []Expr) (Sequence, error) {
	if err := checkArity("count", args, 1, 1); err != nil {
		return nil, err
	}
	seq, err := EvalNodes(ctx, args[0])
	if err != nil {
		return nil, fmt.Errorf("count: %w", err)
	}
	return Singleton(float64(len(seq))), nil
}

func callId(ctx Context, args []Expr) (Sequence, error) {
	if err := checkArity("id", args, 1, 1); err != nil {
		return nil, err
	}
	seq, err := args[0].Find(ctx)
	if err != nil {
		return nil, err
	}
	var ids []string
	if seq.Nodes() {
		for _, i := range seq {
			ids = append(ids, strings.Fields(i.Node().Value())...)
		}
	} else {
		ids = strings.Fields(AsString(seq))
	}
	doc := xml.TopOf(ctx.Node)
	index := indexIds(doc)
	var list []xml.Node
	for _, id := range ids {
		if el, ok := index[id]; ok {
			list = append(list, el)
		}
	}
	return NodeSet(list).Sort(), nil
}

// indexIds collects the elements carrying an attribute of type ID, either
// declared in the DTD or xml:id.
func indexIds(top xml.Node) map[string]xml.Node {
	var (
		index = make(map[string]xml.Node)
		decls *xml.Declarations
	)
	if doc, ok := top.(*xml.Document); ok && doc.DocType != nil {
		decls = doc.DocType.Decls
	}
	var walk func(xml.Node)
	walk = func(n xml.Node) {
		if el, ok := n.(*xml.Element); ok {
			for _, a := range el.Attrs {
				isId := a.Uri == xml.NamespaceXML && a.Name == "id"
				if !isId && decls != nil {
					d, ok := decls.Attribute(el.QualifiedName(), a.QualifiedName())
					isId = ok && d.Type == "ID"
				}
				if !isId {
					continue
				}
				id := strings.TrimSpace(a.Datum)
				if _, ok := index[id]; !ok {
					index[id] = el
				}
			}
		}
		for _, c := range children(n) {
			walk(c)
		}
	}
	walk(top)
	return index
}

func callLocalName(ctx Context, args []Expr) (Sequence, error) {
	n, err := nodeArg(ctx, "local-name", args)
	if err != nil || n == nil {
		return Singleton(""), err
	}
	return Singleton(n.LocalName()), nil
}

func callNamespaceUri(ctx Context, args []Expr) (Sequence, error) {
	n, err := nodeArg(ctx, "namespace-uri", args)
	if err != nil || n == nil {
		return Singleton(""), err
	}
	return Singleton(n.NamespaceURI()), nil
}

func callName(ctx Context, args []Expr) (Sequence, error) {
	n, err := nodeArg(ctx, "name", args)
	if err != nil || n == nil {
		return Singleton(""), err
	}
	return Singleton(n.QualifiedName()), nil
}

func callString(ctx Context, args []Expr) (Sequence, error) {
	str, err := stringArg(ctx, "string", args)
	if err != nil {
		return nil, err
	}
	return Singleton(str), nil
}

func callConcat(ctx Context, args []Expr) (Sequence, error) {
	if err := checkArity("concat", args, 2, -1); err != nil {
		return nil, err
	}
	var str strings.Builder
	for _, a := range args {
		s, err := evalString(ctx, a)
		if err != nil {
			return nil, err
		}
		str.WriteString(s)
	}
	return Singleton(str.String()), nil
}

func twoStrings(ctx Context, name string, args []Expr) (string, string, error) {
	if err := checkArity(name, args, 2, 2); err != nil {
		return "", "", err
	}
	left, err := evalString(ctx, args[0])
	if err != nil {
		return "", "", err
	}
	right, err := evalString(ctx, args[1])
	return left, right, err
}

func callStartsWith(ctx Context, args []Expr) (Sequence, error) {
	str, prefix, err := twoStrings(ctx, "starts-with", args)
	if err != nil {
		return nil, err
	}
	return Singleton(strings.HasPrefix(str, prefix)), nil
}

func callContains(ctx Context, args []Expr) (Sequence, error) {
	str, sub, err := twoStrings(ctx, "contains", args)
	if err != nil {
		return nil, err
	}
	return Singleton(strings.Contains(str, sub)), nil
}

func callSubstringBefore(ctx Context, args []Expr) (Sequence, error) {
	str, sep, err := twoStrings(ctx, "substring-before", args)
	if err != nil {
		return nil, err
	}
	before, _, ok := strings.Cut(str, sep)
	if !ok {
		before = ""
	}
	return Singleton(before), nil
}

func callSubstringAfter(ctx Context, args []Expr) (Sequence, error) {
	str, sep, err := twoStrings(ctx, "substring-after", args)
	if err != nil {
		return nil, err
	}
	_, after, _ := strings.Cut(str, sep)
	return Singleton(after), nil
}

func callSubstring(ctx Context, args []Expr) (Sequence, error) {
	if err := checkArity("substring", args, 2, 3); err != nil {
		return nil, err
	}
	str, err := evalString(ctx, args[0])
	if err != nil {
		return nil, err
	}
	start, err := evalNumber(ctx, args[1])
	if err != nil {
		return nil, err
	}
	start = roundHalfUp(start)
	end := math.Inf(1)
	if len(args) == 3 {
		size, err := evalNumber(ctx, args[2])
		if err != nil {
			return nil, err
		}
		end = start + roundHalfUp(size)
	}
	var (
		res strings.Builder
		pos float64
	)
	for _, c := range str {
		pos++
		if pos >= start && pos < end {
			res.WriteRune(c)
		}
	}
	return Singleton(res.String()), nil
}

func callStringLength(ctx Context, args []Expr) (Sequence, error) {
	str, err := stringArg(ctx, "string-length", args)
	if err != nil {
		return nil, err
	}
	return Singleton(float64(utf8.RuneCountInString(str))), nil
}

func callNormalizeSpace(ctx Context, args []Expr) (Sequence, error) {
	str, err := stringArg(ctx, "normalize-space", args)
	if err != nil {
		return nil, err
	}
	return Singleton(strings.Join(strings.Fields(str), " ")), nil
}

func callTranslate(ctx Context, args []Expr) (Sequence, error) {
	if err := checkArity("translate", args, 3, 3); err != nil {
		return nil, err
	}
	var list []string
	for _, a := range args {
		s, err := evalString(ctx, a)
		if err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	var (
		from = []rune(list[1])
		to   = []rune(list[2])
		res  strings.Builder
	)
	for _, c := range list[0] {
		ix := -1
		for i := range from {
			if from[i] == c {
				ix = i
				break
			}
		}
		switch {
		case ix < 0:
			res.WriteRune(c)
		case ix < len(to):
			res.WriteRune(to[ix])
		}
	}
	return Singleton(res.String()), nil
}

func callBoolean(ctx Context, args []Expr) (Sequence, error) {
	if err := checkArity("boolean", args, 1, 1); err != nil {
		return nil, err
	}
	seq, err := args[0].Find(ctx)
	if err != nil {
		return nil, err
	}
	return Singleton(seq.True()), nil
}

func callNot(ctx Context, args []Expr) (Sequence, error) {
	if err := checkArity("not", args, 1, 1); err != nil {
		return nil, err
	}
	seq, err := args[0].Find(ctx)
	if err != nil {
		return nil, err
	}
	return Singleton(!seq.True()), nil
}

func callTrue(_ Context, args []Expr) (Sequence, error) {
	if err := checkArity("true", args, 0, 0); err != nil {
		return nil, err
	}
	return Singleton(true), nil
}

func callFalse(_ Context, args []Expr) (Sequence, error) {
	if err := checkArity("false", args, 0, 0); err != nil {
		return nil, err
	}
	return Singleton(false), nil
}

func callLang(ctx Context, args []Expr) (Sequence, error) {
	if err := checkArity("lang", args, 1, 1); err != nil {
		return nil, err
	}
	want, err := evalString(ctx, args[0])
	if err != nil {
		return nil, err
	}
	want = strings.ToLower(want)
	lang := xml.QName{Uri: xml.NamespaceXML, Name: "lang"}
	for n := ctx.Node; n != nil; n = n.Parent() {
		el, ok := n.(*xml.Element)
		if !ok {
			continue
		}
		a, ok := el.GetAttributeNS(lang)
		if !ok {
			continue
		}
		got := strings.ToLower(a.Datum)
		return Singleton(got == want || strings.HasPrefix(got, want+"-")), nil
	}
	return Singleton(false), nil
}

func callNumber(ctx Context, args []Expr) (Sequence, error) {
	if err := checkArity("number", args, 0, 1); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return Singleton(toNumber(ctx.Node)), nil
	}
	f, err := evalNumber(ctx, args[0])
	if err != nil {
		return nil, err
	}
	return Singleton(f), nil
}

func callSum(ctx Context, args []Expr) (Sequence, error) {
	if err := checkArity("sum", args, 1, 1); err != nil {
		return nil, err
	}
	seq, err := EvalNodes(ctx, args[0])
	if err != nil {
		return nil, fmt.Errorf("sum: %w", err)
	}
	var total float64
	for _, i := range seq {
		total += toNumber(i.Node().Value())
	}
	return Singleton(total), nil
}

func numberFunc(name string, fn func(float64) float64) BuiltinFunc {
	return func(ctx Context, args []Expr) (Sequence, error) {
		if err := checkArity(name, args, 1, 1); err != nil {
			return nil, err
		}
		f, err := evalNumber(ctx, args[0])
		if err != nil {
			return nil, err
		}
		return Singleton(fn(f)), nil
	}
}

var (
	callFloor   = numberFunc("floor", math.Floor)
	callCeiling = numberFunc("ceiling", math.Ceil)
	callRound   = numberFunc("round", roundHalfUp)
)

// roundHalfUp rounds to the closest integer, ties going towards positive
// infinity.
func roundHalfUp(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return f
	}
	if f < 0 && f >= -0.5 {
		return math.Copysign(0, -1)
	}
	return math.Floor(f + 0.5)
}
