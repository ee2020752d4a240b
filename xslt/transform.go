package xslt

import (
	"fmt"
	"strings"

	"github.com/midbel/xslchain/alpha"
	"github.com/midbel/xslchain/environ"
	"github.com/midbel/xslchain/xml"
	"github.com/midbel/xslchain/xpath"
)

// transformer holds the state of a single transformation.
type transformer struct {
	*Stylesheet

	source   *xml.Document
	globals  environ.Environ[xpath.Expr]
	builtins environ.Environ[xpath.BuiltinFunc]

	namer     alpha.Namer
	ids       map[xml.Node]string
	indexes   map[string]map[xml.Node]map[string][]xml.Node
	documents map[string]*xml.Document
	prefixes  int
}

func (s *Stylesheet) newTransformer(doc *xml.Document) *transformer {
	t := transformer{
		Stylesheet: s,
		source:     doc,
		globals:    environ.Empty[xpath.Expr](),
		namer:      alpha.Compose("", alpha.NewLowerString(3), alpha.NewNumberString(4)),
		ids:        make(map[xml.Node]string),
		indexes:    make(map[string]map[xml.Node]map[string][]xml.Node),
		documents:  make(map[string]*xml.Document),
	}
	t.builtins = t.createBuiltins()
	for name, g := range s.globals {
		v := globalVar{
			transformer: &t,
			global:      g,
		}
		t.globals.Define(name, &v)
	}
	return &t
}

// Transform applies the stylesheet to doc and returns the result tree.
// Whitespace only text nodes of doc are stripped according to the
// xsl:strip-space declarations.
func (s *Stylesheet) Transform(doc *xml.Document) (*xml.Document, error) {
	if doc == nil {
		return nil, fmt.Errorf("no source document")
	}
	t := s.newTransformer(doc)
	if err := t.stripSpace(doc); err != nil {
		return nil, err
	}
	ctx := t.createContext(doc)
	nodes, err := t.applyTemplates(ctx, xpath.NodeSet([]xml.Node{doc}), nil)
	if err != nil {
		return nil, err
	}
	res := xml.EmptyDocument()
	res.URI = doc.URI
	for _, n := range nodes {
		if n.Type() == xml.TypeAttribute {
			continue
		}
		res.Append(n)
	}
	return res, nil
}

func (t *transformer) createContext(node xml.Node) *Context {
	return &Context{
		ContextNode: node,
		CurrentNode: node,
		Index:       1,
		Size:        1,
		Vars:        environ.Enclosed(t.globals),
		transformer: t,
	}
}

type globalVar struct {
	*transformer
	*global

	value xpath.Sequence
	state int8
}

const (
	globalPending int8 = iota
	globalBusy
	globalDone
)

func (g *globalVar) Find(_ xpath.Context) (xpath.Sequence, error) {
	switch g.state {
	case globalDone:
		return g.value, nil
	case globalBusy:
		return nil, fmt.Errorf("%s: circular reference", g.Name)
	}
	g.state = globalBusy
	if str, ok := g.params[g.Name]; ok && g.Param {
		g.value = xpath.Singleton(str)
		g.state = globalDone
		return g.value, nil
	}
	ctx := g.createContext(g.source)
	ctx.Vars = g.globals
	seq, err := ctx.valueOf(g.Elem)
	if err != nil {
		g.state = globalPending
		return nil, err
	}
	g.value = seq
	g.state = globalDone
	return seq, nil
}

func (t *transformer) stripSpace(doc *xml.Document) error {
	if len(t.spaces) == 0 {
		return nil
	}
	var walk func(xml.Container, bool) error
	walk = func(parent xml.Container, strip bool) error {
		strip = strip && !t.keepSpace(parent)
		var (
			list []xml.Node
			drop bool
		)
		for _, n := range parent.Children() {
			switch n := n.(type) {
			case *xml.Element:
				s, err := t.shouldStrip(n)
				if err != nil {
					return err
				}
				if err := walk(n, s); err != nil {
					return err
				}
			case *xml.Text:
				if strip && isBlank(n.Content) {
					drop = true
					continue
				}
			}
			list = append(list, n)
		}
		if !drop {
			return nil
		}
		if el, ok := parent.(*xml.Element); ok {
			el.Nodes = nil
		} else if d, ok := parent.(*xml.Document); ok {
			d.Nodes = nil
		}
		for _, n := range list {
			parent.Append(n)
		}
		return nil
	}
	return walk(doc, false)
}

func (t *transformer) keepSpace(node xml.Node) bool {
	el, ok := node.(*xml.Element)
	return ok && preserveSpace(el)
}

// shouldStrip reports whether whitespace text children of el are removed.
func (t *transformer) shouldStrip(el *xml.Element) (bool, error) {
	var best *spaceRule
	ctx := xpath.DefaultContext(el)
	for _, r := range t.spaces {
		ok, err := r.pattern.Match(el, ctx)
		if err != nil {
			return false, err
		}
		if !ok {
			continue
		}
		if best == nil || r.precedence > best.precedence || (r.precedence == best.precedence && r.priority >= best.priority) {
			best = r
		}
	}
	return best != nil && best.strip, nil
}

func isBlank(str string) bool {
	for _, c := range str {
		if c != ' ' && c != '\t' && c != '\n' && c != '\r' {
			return false
		}
	}
	return true
}

// applyTemplates processes each node of seq with the best template rule of
// the current mode.
func (t *transformer) applyTemplates(ctx *Context, seq xpath.Sequence, params map[string]xpath.Sequence) ([]xml.Node, error) {
	var list []xml.Node
	for i, item := range seq {
		sub := ctx.WithNode(item.Node(), i+1, len(seq))
		r, err := t.matchRule(sub, item.Node(), ctx.Mode, -1, -1)
		if err != nil {
			return nil, err
		}
		var res []xml.Node
		if r == nil {
			res, err = t.builtinRule(sub)
		} else {
			sub.Template = r.Template
			res, err = t.executeTemplate(sub, r.Template, params)
		}
		if err != nil {
			return nil, err
		}
		list = append(list, res...)
	}
	return list, nil
}

// matchRule finds the rule of mode matching node. When min is not negative,
// only the rules with an import precedence in [min, max) are considered.
func (t *transformer) matchRule(ctx *Context, node xml.Node, mode string, min, max int) (*rule, error) {
	xctx := ctx.xpathContext()
	for _, r := range t.rules {
		if r.Mode != mode {
			continue
		}
		if min >= 0 && (r.precedence < min || r.precedence >= max) {
			continue
		}
		ok, err := r.pattern.Match(node, xctx)
		if err != nil {
			return nil, errorWithContext(r.pattern.Source, err)
		}
		if ok {
			return r, nil
		}
	}
	return nil, nil
}

func (t *transformer) builtinRule(ctx *Context) ([]xml.Node, error) {
	switch n := ctx.ContextNode.(type) {
	case *xml.Document, *xml.Element:
		children := n.(xml.Container).Children()
		sub := ctx.clone()
		sub.Template = nil
		return t.applyTemplates(sub, xpath.NodeSet(children), nil)
	case *xml.Text, *xml.Attribute:
		return []xml.Node{xml.NewText(n.Value())}, nil
	default:
		return nil, nil
	}
}

func (t *transformer) executeTemplate(ctx *Context, tpl *Template, params map[string]xpath.Sequence) ([]xml.Node, error) {
	sub := ctx.WithXsl(tpl.Elem)
	sub.Vars = environ.Enclosed(t.globals)
	for _, p := range tpl.Params {
		name, err := expandName(p, attrValue(p, "name"))
		if err != nil {
			return nil, sub.errorWithContext(err)
		}
		if seq, ok := params[name]; ok {
			sub.Vars.Define(name, xpath.NewValue(seq))
			continue
		}
		seq, err := sub.valueOf(p)
		if err != nil {
			return nil, err
		}
		sub.Vars.Define(name, xpath.NewValue(seq))
	}
	return sub.executeBody(tpl.Nodes)
}

// executeBody runs a sequence of instructions. Variables are visible to the
// following siblings only.
func (c *Context) executeBody(nodes []xml.Node) ([]xml.Node, error) {
	ctx := c.Nest()
	var list []xml.Node
	for _, n := range nodes {
		if el, ok := n.(*xml.Element); ok && el.Uri == xsltNamespaceUri {
			switch el.Name {
			case "variable":
				if err := ctx.WithXsl(el).defineVariable(el); err != nil {
					return nil, err
				}
				continue
			case "param", "sort", "with-param", "fallback":
				continue
			}
		}
		res, err := ctx.executeNode(n)
		if err != nil {
			return nil, err
		}
		list = append(list, res...)
	}
	return list, nil
}

func (c *Context) executeNode(node xml.Node) ([]xml.Node, error) {
	switch n := node.(type) {
	case *xml.Text:
		return []xml.Node{xml.NewText(n.Content)}, nil
	case *xml.Element:
		ctx := c.WithXsl(n)
		if n.Uri == xsltNamespaceUri {
			return ctx.executeInstruction(n)
		}
		if ctx.isExtension(n) {
			return ctx.executeFallback(n)
		}
		return ctx.executeLiteral(n)
	default:
		return nil, nil
	}
}

func (c *Context) executeInstruction(el *xml.Element) ([]xml.Node, error) {
	fn, ok := executers[el.Name]
	if !ok {
		return c.executeFallback(el)
	}
	c.Tracer.Enter(c)
	nodes, err := fn(c)
	if err != nil {
		c.Tracer.Error(c, err)
		return nil, err
	}
	c.Tracer.Leave(c)
	return nodes, nil
}

// executeFallback runs the xsl:fallback children of an instruction that
// is not supported.
func (c *Context) executeFallback(el *xml.Element) ([]xml.Node, error) {
	var (
		list  []xml.Node
		found bool
	)
	for _, n := range el.Nodes {
		if !isXsl(n, "fallback") {
			continue
		}
		found = true
		res, err := c.WithXsl(n).executeBody(n.(*xml.Element).Nodes)
		if err != nil {
			return nil, err
		}
		list = append(list, res...)
	}
	if !found {
		return nil, c.errorWithContext(fmt.Errorf("instruction not supported"))
	}
	return list, nil
}

// isExtension reports whether el belongs to a namespace declared as an
// extension namespace.
func (c *Context) isExtension(el *xml.Element) bool {
	if el.Uri == msxslNamespaceUri {
		return true
	}
	uris := extensionNamespaces(el)
	_, ok := uris[el.Uri]
	return ok
}

func extensionNamespaces(el *xml.Element) map[string]struct{} {
	return collectPrefixes(el, "extension-element-prefixes")
}

func excludedNamespaces(el *xml.Element) map[string]struct{} {
	uris := collectPrefixes(el, "exclude-result-prefixes")
	for k := range extensionNamespaces(el) {
		uris[k] = struct{}{}
	}
	uris[xsltNamespaceUri] = struct{}{}
	uris[msxslNamespaceUri] = struct{}{}
	return uris
}

// collectPrefixes gathers the namespaces listed in the attribute name of
// the stylesheet element or, prefixed with xsl, on any literal result
// element enclosing el.
func collectPrefixes(el *xml.Element, name string) map[string]struct{} {
	uris := make(map[string]struct{})
	var node xml.Node = el
	for node != nil {
		e, ok := node.(*xml.Element)
		if !ok {
			break
		}
		var list string
		if isXsl(e, "stylesheet") || isXsl(e, "transform") {
			list = attrValue(e, name)
		} else if a, ok := e.GetAttributeNS(xslName(name)); ok {
			list = a.Datum
		}
		for _, p := range splitPrefixes(list) {
			if uri, ok := e.LookupNamespace(p); ok {
				uris[uri] = struct{}{}
			}
		}
		node = e.Parent()
	}
	return uris
}

func splitPrefixes(list string) []string {
	var prefixes []string
	for _, p := range strings.Fields(list) {
		if p == "#default" {
			p = ""
		}
		prefixes = append(prefixes, p)
	}
	return prefixes
}
