package xslt

import (
	"fmt"
	"strings"

	"github.com/midbel/xslchain/xml"
	"github.com/midbel/xslchain/xpath"
)

type ExecuteFunc func(*Context) ([]xml.Node, error)

var executers map[string]ExecuteFunc

func init() {
	executers = map[string]ExecuteFunc{
		"apply-templates":        executeApplyTemplates,
		"call-template":          executeCallTemplate,
		"apply-imports":          executeApplyImports,
		"for-each":               executeForeach,
		"if":                     executeIf,
		"choose":                 executeChoose,
		"value-of":               executeValueOf,
		"copy-of":                executeCopyOf,
		"copy":                   executeCopy,
		"element":                executeElement,
		"attribute":              executeAttribute,
		"text":                   executeText,
		"comment":                executeComment,
		"processing-instruction": executePI,
		"message":                executeMessage,
		"number":                 executeNumber,
	}
}

func executeApplyTemplates(ctx *Context) ([]xml.Node, error) {
	el, err := ctx.element()
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	var seq xpath.Sequence
	if ctx.hasAttr("select") {
		seq, err = ctx.eval("select")
		if err != nil {
			return nil, ctx.errorWithContext(err)
		}
		if !seq.Nodes() {
			return nil, ctx.errorWithContext(fmt.Errorf("%w: node-set expected", xpath.ErrType))
		}
	} else if c, ok := ctx.ContextNode.(xml.Container); ok {
		seq = xpath.NodeSet(c.Children())
	}
	var mode string
	if m, ok := el.GetAttribute("mode"); ok {
		if mode, err = expandName(el, m.Datum); err != nil {
			return nil, ctx.errorWithContext(err)
		}
	}
	if seq, err = ctx.sortNodes(el, seq); err != nil {
		return nil, err
	}
	params, err := ctx.withParams(el)
	if err != nil {
		return nil, err
	}
	return ctx.applyTemplates(ctx.WithMode(mode), seq, params)
}

func executeCallTemplate(ctx *Context) ([]xml.Node, error) {
	el, err := ctx.element()
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	name, err := expandName(el, attrValue(el, "name"))
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	tpl, ok := ctx.named[name]
	if !ok {
		return nil, ctx.errorWithContext(fmt.Errorf("%s: template %w", name, ErrUndefined))
	}
	params, err := ctx.withParams(el)
	if err != nil {
		return nil, err
	}
	return ctx.executeTemplate(ctx, tpl, params)
}

func executeApplyImports(ctx *Context) ([]xml.Node, error) {
	tpl := ctx.Template
	if tpl == nil {
		return nil, ctx.errorWithContext(fmt.Errorf("no current template rule"))
	}
	r, err := ctx.matchRule(ctx, ctx.ContextNode, tpl.Mode, tpl.lowest, tpl.precedence)
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	if r == nil {
		return ctx.builtinRule(ctx)
	}
	sub := ctx.clone()
	sub.Template = r.Template
	return ctx.executeTemplate(sub, r.Template, nil)
}

func executeForeach(ctx *Context) ([]xml.Node, error) {
	el, err := ctx.element()
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	seq, err := ctx.eval("select")
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	if !seq.Nodes() {
		return nil, ctx.errorWithContext(fmt.Errorf("%w: node-set expected", xpath.ErrType))
	}
	if seq, err = ctx.sortNodes(el, seq); err != nil {
		return nil, err
	}
	var list []xml.Node
	for i, item := range seq {
		sub := ctx.WithNode(item.Node(), i+1, len(seq))
		sub.Template = nil
		res, err := sub.executeBody(el.Nodes)
		if err != nil {
			return nil, err
		}
		list = append(list, res...)
	}
	return list, nil
}

func executeIf(ctx *Context) ([]xml.Node, error) {
	ok, err := ctx.evalBool("test")
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	if !ok {
		return nil, nil
	}
	el, _ := ctx.element()
	return ctx.executeBody(el.Nodes)
}

func executeChoose(ctx *Context) ([]xml.Node, error) {
	el, err := ctx.element()
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	for _, n := range el.Nodes {
		c, ok := n.(*xml.Element)
		if !ok {
			continue
		}
		switch {
		case isXsl(c, "when"):
			sub := ctx.WithXsl(c)
			ok, err := sub.evalBool("test")
			if err != nil {
				return nil, sub.errorWithContext(err)
			}
			if ok {
				return sub.executeBody(c.Nodes)
			}
		case isXsl(c, "otherwise"):
			return ctx.WithXsl(c).executeBody(c.Nodes)
		default:
			return nil, ctx.errorWithContext(fmt.Errorf("%s: unexpected element in choose", c.QualifiedName()))
		}
	}
	return nil, nil
}

func executeValueOf(ctx *Context) ([]xml.Node, error) {
	str, err := ctx.evalString("select")
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	if str == "" {
		return nil, nil
	}
	return []xml.Node{xml.NewText(str)}, nil
}

func executeCopyOf(ctx *Context) ([]xml.Node, error) {
	seq, err := ctx.eval("select")
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	var list []xml.Node
	for _, item := range seq {
		if item.Atomic() {
			list = append(list, xml.NewText(xpath.AsString(xpath.Sequence{item})))
			continue
		}
		switch n := item.Node().(type) {
		case *xml.Document:
			for _, c := range n.Nodes {
				list = append(list, copyNode(c))
			}
		default:
			list = append(list, copyNode(n))
		}
	}
	return list, nil
}

// copyNode returns a deep copy of node carrying the namespaces in scope.
func copyNode(node xml.Node) xml.Node {
	c := xml.CloneNode(node)
	el, ok := node.(*xml.Element)
	if !ok {
		return c
	}
	res := c.(*xml.Element)
	for _, ns := range el.InScopeNamespaces() {
		if _, ok := res.LookupNamespace(ns.Prefix); ok && declared(res, ns.Prefix) {
			continue
		}
		res.DeclareNamespace(ns.Prefix, ns.Uri)
	}
	return res
}

func declared(el *xml.Element, prefix string) bool {
	for _, ns := range el.Namespaces {
		if ns.Prefix == prefix {
			return true
		}
	}
	return false
}

func executeCopy(ctx *Context) ([]xml.Node, error) {
	el, err := ctx.element()
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	switch n := ctx.ContextNode.(type) {
	case *xml.Document:
		return ctx.executeBody(el.Nodes)
	case *xml.Element:
		res := xml.NewElement(n.QName)
		for _, ns := range n.InScopeNamespaces() {
			res.DeclareNamespace(ns.Prefix, ns.Uri)
		}
		if err := ctx.useAttributeSets(res, el, "use-attribute-sets"); err != nil {
			return nil, err
		}
		nodes, err := ctx.executeBody(el.Nodes)
		if err != nil {
			return nil, err
		}
		for _, c := range nodes {
			res.Append(c)
		}
		return []xml.Node{res}, nil
	case *xml.Attribute:
		return []xml.Node{xml.NewAttribute(n.QName, n.Datum)}, nil
	default:
		return []xml.Node{xml.CloneNode(n)}, nil
	}
}

func (c *Context) executeLiteral(el *xml.Element) ([]xml.Node, error) {
	res := xml.NewElement(c.alias(el.QName))
	excluded := excludedNamespaces(el)
	for uri := range c.scripts.namespaces() {
		excluded[uri] = struct{}{}
	}
	for _, ns := range el.InScopeNamespaces() {
		if _, ok := excluded[ns.Uri]; ok {
			continue
		}
		if a, ok := c.aliases[ns.Uri]; ok {
			ns.Uri = a.Uri
		}
		res.DeclareNamespace(ns.Prefix, ns.Uri)
	}
	if err := c.useAttributeSets(res, el, ""); err != nil {
		return nil, err
	}
	for _, a := range el.Attrs {
		if a.Uri == xsltNamespaceUri {
			continue
		}
		value, err := c.evalAttr(a)
		if err != nil {
			return nil, c.errorWithContext(err)
		}
		res.SetAttribute(xml.NewAttribute(c.alias(a.QName), value))
	}
	nodes, err := c.executeBody(el.Nodes)
	if err != nil {
		return nil, err
	}
	for _, n := range nodes {
		res.Append(n)
	}
	return []xml.Node{res}, nil
}

func (c *Context) alias(qn xml.QName) xml.QName {
	a, ok := c.aliases[qn.Uri]
	if !ok {
		return qn
	}
	qn.Uri = a.Uri
	qn.Space = a.Prefix
	return qn
}

// useAttributeSets adds the attributes of the sets named by the attribute
// name of el. An empty name means xsl:use-attribute-sets on a literal result
// element.
func (c *Context) useAttributeSets(res *xml.Element, el *xml.Element, name string) error {
	var (
		attr *xml.Attribute
		ok   bool
	)
	if name == "" {
		attr, ok = el.GetAttributeNS(xslName("use-attribute-sets"))
	} else {
		attr, ok = el.GetAttribute(name)
	}
	if !ok {
		return nil
	}
	names, err := expandNames(el, attr.Datum)
	if err != nil {
		return c.errorWithContext(err)
	}
	return c.applyAttributeSets(res, names, nil)
}

func (c *Context) applyAttributeSets(res *xml.Element, names []string, seen []string) error {
	for _, name := range names {
		for _, s := range seen {
			if s == name {
				return c.errorWithContext(fmt.Errorf("%s: attribute set uses itself", name))
			}
		}
		sets, ok := c.attrSets[name]
		if !ok {
			return c.errorWithContext(fmt.Errorf("%s: attribute set %w", name, ErrUndefined))
		}
		for _, set := range sets {
			if err := c.applyAttributeSets(res, set.Use, append(seen, name)); err != nil {
				return err
			}
			for _, a := range set.Attrs {
				nodes, err := executeAttribute(c.WithXsl(a))
				if err != nil {
					return err
				}
				for _, n := range nodes {
					res.Append(n)
				}
			}
		}
	}
	return nil
}

func executeElement(ctx *Context) ([]xml.Node, error) {
	el, err := ctx.element()
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	qn, err := ctx.computeName(el, true)
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	res := xml.NewElement(qn)
	if err := ctx.useAttributeSets(res, el, "use-attribute-sets"); err != nil {
		return nil, err
	}
	nodes, err := ctx.executeBody(el.Nodes)
	if err != nil {
		return nil, err
	}
	for _, n := range nodes {
		res.Append(n)
	}
	return []xml.Node{res}, nil
}

func executeAttribute(ctx *Context) ([]xml.Node, error) {
	el, err := ctx.element()
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	qn, err := ctx.computeName(el, false)
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	if qn.Space == "" && qn.Name == "xmlns" {
		return nil, ctx.errorWithContext(fmt.Errorf("xmlns can not be used as attribute name"))
	}
	nodes, err := ctx.executeBody(el.Nodes)
	if err != nil {
		return nil, err
	}
	return []xml.Node{xml.NewAttribute(qn, textContent(nodes))}, nil
}

// computeName evaluates the name and namespace attributes of xsl:element
// and xsl:attribute. The default namespace only applies to elements.
func (c *Context) computeName(el *xml.Element, element bool) (xml.QName, error) {
	name, _, err := c.evalAvt("name")
	if err != nil {
		return xml.QName{}, err
	}
	qn, err := xml.ParseName(strings.TrimSpace(name))
	if err != nil {
		return qn, err
	}
	uri, ok, err := c.evalAvt("namespace")
	if err != nil {
		return qn, err
	}
	switch {
	case ok:
		qn.Uri = uri
		if uri == "" {
			qn.Space = ""
		} else if qn.Space == "" && !element {
			qn.Space = c.generatePrefix()
		}
	case qn.Space != "":
		uri, ok := el.LookupNamespace(qn.Space)
		if !ok {
			return qn, fmt.Errorf("%s: undeclared namespace prefix", qn.Space)
		}
		qn.Uri = uri
	case element:
		qn.Uri, _ = el.LookupNamespace("")
	}
	return qn, nil
}

func (c *Context) generatePrefix() string {
	c.prefixes++
	return fmt.Sprintf("ns%d", c.prefixes)
}

func executeText(ctx *Context) ([]xml.Node, error) {
	el, err := ctx.element()
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	str := el.Value()
	if str == "" {
		return nil, nil
	}
	return []xml.Node{xml.NewText(str)}, nil
}

func executeComment(ctx *Context) ([]xml.Node, error) {
	el, err := ctx.element()
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	nodes, err := ctx.executeBody(el.Nodes)
	if err != nil {
		return nil, err
	}
	str := textContent(nodes)
	for strings.Contains(str, "--") {
		str = strings.ReplaceAll(str, "--", "- -")
	}
	if strings.HasSuffix(str, "-") {
		str += " "
	}
	return []xml.Node{xml.NewComment(str)}, nil
}

func executePI(ctx *Context) ([]xml.Node, error) {
	el, err := ctx.element()
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	name, _, err := ctx.evalAvt("name")
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	name = strings.TrimSpace(name)
	if !xml.IsName(name) || strings.Contains(name, ":") || strings.EqualFold(name, "xml") {
		return nil, ctx.errorWithContext(fmt.Errorf("%s: invalid processing instruction name", name))
	}
	nodes, err := ctx.executeBody(el.Nodes)
	if err != nil {
		return nil, err
	}
	str := strings.ReplaceAll(textContent(nodes), "?>", "? >")
	return []xml.Node{xml.NewInstruction(name, strings.TrimLeft(str, " \t\r\n"))}, nil
}

func executeMessage(ctx *Context) ([]xml.Node, error) {
	el, err := ctx.element()
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	nodes, err := ctx.executeBody(el.Nodes)
	if err != nil {
		return nil, err
	}
	var str strings.Builder
	for _, n := range nodes {
		if n.Type() == xml.TypeText {
			str.WriteString(n.Value())
			continue
		}
		if n.Type() == xml.TypeAttribute {
			continue
		}
		str.WriteString(xml.WriteNode(n))
	}
	msg := str.String()
	terminate := strings.TrimSpace(attrValue(el, "terminate")) == "yes"
	ctx.Logger.Info("xsl:message", "message", msg, "terminate", terminate)
	if terminate {
		return nil, fmt.Errorf("%w: %s", ErrTerminate, msg)
	}
	return nil, nil
}

// withParams evaluates the xsl:with-param children of el. The last
// parameter of a given name wins.
func (c *Context) withParams(el *xml.Element) (map[string]xpath.Sequence, error) {
	params := make(map[string]xpath.Sequence)
	for _, n := range el.Nodes {
		if !isXsl(n, "with-param") {
			continue
		}
		p := n.(*xml.Element)
		name, err := expandName(p, attrValue(p, "name"))
		if err != nil {
			return nil, c.WithXsl(p).errorWithContext(err)
		}
		seq, err := c.valueOf(p)
		if err != nil {
			return nil, err
		}
		params[name] = seq
	}
	return params, nil
}

func textContent(nodes []xml.Node) string {
	var str strings.Builder
	for _, n := range nodes {
		if n.Type() == xml.TypeText {
			str.WriteString(n.Value())
		}
	}
	return str.String()
}
