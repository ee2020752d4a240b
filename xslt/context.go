package xslt

import (
	"fmt"

	"github.com/midbel/xslchain/environ"
	"github.com/midbel/xslchain/xml"
	"github.com/midbel/xslchain/xpath"
)

// Context is the state in which an instruction is executed: the instruction
// itself, the node being processed with its position, the current template
// rule and the variables in scope.
type Context struct {
	XslNode     xml.Node
	ContextNode xml.Node
	CurrentNode xml.Node
	Mode        string

	Index int
	Size  int
	Depth int

	Template *Template
	Vars     environ.Environ[xpath.Expr]

	*transformer
}

func (c *Context) errorWithContext(err error) error {
	if c.XslNode == nil {
		return err
	}
	return errorWithContext(c.XslNode.QualifiedName(), err)
}

func (c *Context) WithXsl(xslNode xml.Node) *Context {
	child := c.clone()
	child.XslNode = xslNode
	return child
}

// WithNode changes the node being processed. The current node follows the
// context node outside of XPath evaluation.
func (c *Context) WithNode(node xml.Node, pos, size int) *Context {
	child := c.clone()
	child.ContextNode = node
	child.CurrentNode = node
	child.Index = pos
	child.Size = size
	return child
}

func (c *Context) WithMode(mode string) *Context {
	child := c.clone()
	child.Mode = mode
	return child
}

// Nest opens a new scope for local variables.
func (c *Context) Nest() *Context {
	child := c.clone()
	child.Vars = environ.Enclosed(c.Vars)
	return child
}

func (c *Context) clone() *Context {
	child := *c
	child.Depth = c.Depth + 1
	return &child
}

func (c *Context) element() (*xml.Element, error) {
	el, ok := c.XslNode.(*xml.Element)
	if !ok {
		return nil, fmt.Errorf("element expected")
	}
	return el, nil
}

func (c *Context) xpathContext() xpath.Context {
	ctx := xpath.Context{
		Node:     c.ContextNode,
		Index:    c.Index,
		Size:     c.Size,
		Current:  c.CurrentNode,
		Environ:  c.Vars,
		Builtins: c.builtins,
	}
	if el, ok := c.XslNode.(*xml.Element); ok {
		ctx.Namespaces = el.LookupNamespace
	}
	return ctx
}

// eval evaluates the expression compiled for the attribute name of the
// current instruction.
func (c *Context) eval(name string) (xpath.Sequence, error) {
	el, err := c.element()
	if err != nil {
		return nil, err
	}
	q, err := c.query(el, name)
	if err != nil {
		return nil, err
	}
	return q.Find(c.xpathContext())
}

func (c *Context) evalString(name string) (string, error) {
	seq, err := c.eval(name)
	if err != nil {
		return "", err
	}
	return xpath.AsString(seq), nil
}

func (c *Context) evalBool(name string) (bool, error) {
	seq, err := c.eval(name)
	if err != nil {
		return false, err
	}
	return seq.True(), nil
}

// evalAvt returns the value of an attribute value template of the current
// instruction and reports whether the attribute exists.
func (c *Context) evalAvt(name string) (string, bool, error) {
	el, err := c.element()
	if err != nil {
		return "", false, err
	}
	attr, ok := el.GetAttribute(name)
	if !ok {
		return "", false, nil
	}
	str, err := c.evalAttr(attr)
	return str, true, err
}

func (c *Context) evalAttr(attr *xml.Attribute) (string, error) {
	avt, ok := c.avts[attr]
	if !ok {
		return attr.Datum, nil
	}
	return avt.Eval(c.xpathContext())
}

func (c *Context) query(el *xml.Element, name string) (*xpath.Query, error) {
	attr, ok := el.GetAttribute(name)
	if !ok {
		return nil, fmt.Errorf("%s: missing attribute", name)
	}
	q, ok := c.queries[attr]
	if !ok {
		return nil, fmt.Errorf("%s: expression not compiled", name)
	}
	return q, nil
}

func (c *Context) hasAttr(name string) bool {
	el, ok := c.XslNode.(*xml.Element)
	if !ok {
		return false
	}
	_, ok = el.GetAttribute(name)
	return ok
}

// valueOf evaluates the variable binding element el: its select attribute,
// its content as a result tree fragment or the empty string.
func (c *Context) valueOf(el *xml.Element) (xpath.Sequence, error) {
	ctx := c.WithXsl(el)
	if _, ok := el.GetAttribute("select"); ok {
		return ctx.eval("select")
	}
	if len(el.Nodes) == 0 {
		return xpath.Singleton(""), nil
	}
	nodes, err := ctx.executeBody(el.Nodes)
	if err != nil {
		return nil, err
	}
	doc := xml.EmptyDocument()
	doc.URI = c.source.URI
	for _, n := range nodes {
		if n.Type() == xml.TypeAttribute {
			continue
		}
		doc.Append(n)
	}
	return xpath.Sequence{xpath.Fragment(doc)}, nil
}

func (c *Context) defineVariable(el *xml.Element) error {
	name, err := expandName(el, attrValue(el, "name"))
	if err != nil {
		return c.errorWithContext(err)
	}
	seq, err := c.valueOf(el)
	if err != nil {
		return err
	}
	c.Vars.Define(name, xpath.NewValue(seq))
	return nil
}
