package xslt

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/midbel/xslchain/casing"
	"github.com/midbel/xslchain/environ"
	"github.com/midbel/xslchain/xml"
	"github.com/midbel/xslchain/xpath"
)

var packageClause = regexp.MustCompile(`(?m)^\s*package\s+([A-Za-z_][A-Za-z0-9_]*)`)

// scriptEnv holds the msxsl:script blocks of a stylesheet. Each namespace
// bound by an implements-prefix gets its own interpreter; a call to
// prefix:local-name runs the exported function LocalName of the block.
type scriptEnv struct {
	allow   bool
	scripts map[string]*script
}

type script struct {
	pkg   string
	vm    *interp.Interpreter
	funcs map[string]xpath.BuiltinFunc
}

func createScriptEnv(allow bool) *scriptEnv {
	return &scriptEnv{
		allow:   allow,
		scripts: make(map[string]*script),
	}
}

func (s *Stylesheet) loadScript(el *xml.Element) error {
	if !s.scripts.allow {
		return ErrScriptDisabled
	}
	switch lang := strings.ToLower(strings.TrimSpace(attrValue(el, "language"))); lang {
	case "go", "golang":
	default:
		return fmt.Errorf("%s: unsupported script language", lang)
	}
	prefix, err := requireAttr(el, "implements-prefix")
	if err != nil {
		return err
	}
	uri, ok := el.LookupNamespace(prefix)
	if !ok || uri == "" {
		return fmt.Errorf("%s: undeclared namespace prefix", prefix)
	}
	src := el.Value()
	sc, ok := s.scripts.scripts[uri]
	if !ok {
		sc = &script{
			pkg:   "script",
			vm:    interp.New(interp.Options{}),
			funcs: make(map[string]xpath.BuiltinFunc),
		}
		if err := sc.vm.Use(stdlib.Symbols); err != nil {
			return err
		}
		if m := packageClause.FindStringSubmatch(src); m != nil {
			sc.pkg = m[1]
		}
		s.scripts.scripts[uri] = sc
	}
	if m := packageClause.FindStringSubmatch(src); m == nil {
		src = fmt.Sprintf("package %s\n%s", sc.pkg, src)
	} else if m[1] != sc.pkg {
		return fmt.Errorf("%s: scripts of the same prefix must use the same package", m[1])
	}
	if _, err := sc.vm.Eval(src); err != nil {
		return fmt.Errorf("script: %w", err)
	}
	return nil
}

// namespaces returns the namespaces implemented by scripts. They are never
// copied to the result tree.
func (e *scriptEnv) namespaces() map[string]struct{} {
	set := make(map[string]struct{})
	for uri := range e.scripts {
		set[uri] = struct{}{}
	}
	return set
}

func (e *scriptEnv) scope(parent environ.Environ[xpath.BuiltinFunc]) environ.Environ[xpath.BuiltinFunc] {
	if len(e.scripts) == 0 {
		return parent
	}
	return scriptScope{
		scriptEnv: e,
		parent:    parent,
	}
}

type scriptScope struct {
	*scriptEnv
	parent environ.Environ[xpath.BuiltinFunc]
}

func (s scriptScope) Resolve(name string) (xpath.BuiltinFunc, error) {
	uri, local, ok := splitExpanded(name)
	if !ok {
		return s.parent.Resolve(name)
	}
	sc, ok := s.scripts[uri]
	if !ok {
		return s.parent.Resolve(name)
	}
	return sc.lookup(local)
}

func (s scriptScope) Define(name string, fn xpath.BuiltinFunc) {
	s.parent.Define(name, fn)
}

func (s scriptScope) Names() []string {
	return s.parent.Names()
}

func (s scriptScope) Len() int {
	return s.parent.Len()
}

func splitExpanded(name string) (string, string, bool) {
	if !strings.HasPrefix(name, "{") {
		return "", "", false
	}
	return strings.Cut(name[1:], "}")
}

func (s *script) lookup(local string) (xpath.BuiltinFunc, error) {
	if fn, ok := s.funcs[local]; ok {
		return fn, nil
	}
	ident := casing.ToPascal(local)
	v, err := s.vm.Eval(s.pkg + "." + ident)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", local, environ.ErrUndefined)
	}
	if v.Kind() != reflect.Func {
		return nil, fmt.Errorf("%s: not a function", local)
	}
	fn := wrapScript(local, v)
	s.funcs[local] = fn
	return fn, nil
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// wrapScript adapts a script function to the XPath calling convention.
// Parameters are converted from their XPath value according to their Go
// type.
func wrapScript(name string, fn reflect.Value) xpath.BuiltinFunc {
	typ := fn.Type()
	return func(ctx xpath.Context, args []xpath.Expr) (xpath.Sequence, error) {
		n := typ.NumIn()
		if (!typ.IsVariadic() && len(args) != n) || (typ.IsVariadic() && len(args) < n-1) {
			return nil, fmt.Errorf("%s: %w", name, xpath.ErrArgument)
		}
		in := make([]reflect.Value, len(args))
		for i, a := range args {
			seq, err := a.Find(ctx)
			if err != nil {
				return nil, err
			}
			pt := typ.In(min(i, n-1))
			if typ.IsVariadic() && i >= n-1 {
				pt = pt.Elem()
			}
			v, err := convertArg(seq, pt)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			in[i] = v
		}
		return convertResult(name, fn.Call(in))
	}
}

func convertArg(seq xpath.Sequence, typ reflect.Type) (reflect.Value, error) {
	var v any
	switch typ.Kind() {
	case reflect.String:
		v = xpath.AsString(seq)
	case reflect.Bool:
		v = xpath.AsBool(seq)
	case reflect.Float64, reflect.Float32:
		v = xpath.AsNumber(seq)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		v = int64(xpath.AsNumber(seq))
	case reflect.Slice:
		if typ.Elem().Kind() != reflect.String {
			return reflect.Value{}, xpath.ErrType
		}
		list := make([]string, 0, len(seq))
		for _, item := range seq {
			list = append(list, xpath.AsString(xpath.Sequence{item}))
		}
		v = list
	case reflect.Interface:
		v = xpath.AsString(seq)
	default:
		return reflect.Value{}, xpath.ErrType
	}
	return reflect.ValueOf(v).Convert(typ), nil
}

func convertResult(name string, out []reflect.Value) (xpath.Sequence, error) {
	if len(out) > 0 && out[len(out)-1].Type().Implements(errorType) {
		last := out[len(out)-1]
		out = out[:len(out)-1]
		if !last.IsNil() {
			return nil, fmt.Errorf("%s: %w", name, last.Interface().(error))
		}
	}
	if len(out) == 0 {
		return xpath.Singleton(""), nil
	}
	v := out[0]
	switch v.Kind() {
	case reflect.String:
		return xpath.Singleton(v.String()), nil
	case reflect.Bool:
		return xpath.Singleton(v.Bool()), nil
	case reflect.Float64, reflect.Float32:
		return xpath.Singleton(v.Float()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return xpath.Singleton(float64(v.Int())), nil
	default:
		return xpath.Singleton(fmt.Sprint(v.Interface())), nil
	}
}
