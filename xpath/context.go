package xpath

import (
	"errors"
	"fmt"

	"github.com/midbel/xslchain/environ"
	"github.com/midbel/xslchain/xml"
)

var (
	ErrType     = errors.New("invalid type")
	ErrArgument = errors.New("invalid number of arguments")
	ErrFunction = errors.New("unknown function")
	ErrVariable = errors.New("undefined variable")
)

type BuiltinFunc func(Context, []Expr) (Sequence, error)

// Context is the dynamic context of an evaluation: the context node, its
// position and the size of the node-set it comes from, the variables in scope
// and the available functions.
type Context struct {
	xml.Node
	Index int
	Size  int

	// Current is the node returned by the current() function.
	Current xml.Node
	// Namespaces resolves the prefixes of the QNames given as string
	// arguments to functions.
	Namespaces func(string) (string, bool)

	environ.Environ[Expr]
	Builtins environ.Environ[BuiltinFunc]
}

func DefaultContext(n xml.Node) Context {
	return Context{
		Node:     n,
		Index:    1,
		Size:     1,
		Current:  n,
		Environ:  environ.Empty[Expr](),
		Builtins: DefaultBuiltins(),
	}
}

// Sub derives a context for node at position pos in a set of size items.
func (c Context) Sub(node xml.Node, pos, size int) Context {
	child := c
	child.Node = node
	child.Index = pos
	child.Size = size
	return child
}

// WithNode changes the context node and resets the position.
func (c Context) WithNode(node xml.Node) Context {
	return c.Sub(node, 1, 1)
}

func (c Context) Root() xml.Node {
	return xml.TopOf(c.Node)
}

func (c Context) resolveVariable(name string) (Sequence, error) {
	if c.Environ == nil {
		return nil, fmt.Errorf("%s: %w", name, ErrVariable)
	}
	expr, err := c.Resolve(name)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, ErrVariable)
	}
	return expr.Find(c)
}

func (c Context) resolveFunction(name string) (BuiltinFunc, error) {
	if c.Builtins == nil {
		return nil, fmt.Errorf("%s: %w", name, ErrFunction)
	}
	fn, err := c.Builtins.Resolve(name)
	if err != nil || fn == nil {
		return nil, fmt.Errorf("%s: %w", name, ErrFunction)
	}
	return fn, nil
}

// ResolveName expands a QName given at runtime.
func (c Context) ResolveName(name string) (xml.QName, error) {
	qn, err := xml.ParseName(name)
	if err != nil || qn.Space == "" {
		return qn, err
	}
	if qn.Space == "xml" {
		qn.Uri = xml.NamespaceXML
		return qn, nil
	}
	if c.Namespaces == nil {
		return qn, fmt.Errorf("%s: undeclared namespace prefix", qn.Space)
	}
	uri, ok := c.Namespaces(qn.Space)
	if !ok || uri == "" {
		return qn, fmt.Errorf("%s: undeclared namespace prefix", qn.Space)
	}
	qn.Uri = uri
	return qn, nil
}

// Value is an already evaluated expression.
type Value struct {
	seq Sequence
}

func NewValue(seq Sequence) Expr {
	return Value{
		seq: seq,
	}
}

func (v Value) Find(_ Context) (Sequence, error) {
	return v.seq, nil
}

func (v Value) String() string {
	return AsString(v.seq)
}
