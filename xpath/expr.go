package xpath

import (
	"fmt"
	"math"
	"slices"

	"github.com/midbel/xslchain/xml"
)

type Expr interface {
	Find(Context) (Sequence, error)
}

// Query is a compiled expression. It can also be used as a match pattern.
type Query struct {
	expr   Expr
	Source string
}

func (q *Query) Find(ctx Context) (Sequence, error) {
	seq, err := q.expr.Find(ctx)
	if err != nil {
		return nil, err
	}
	return seq.Sort(), nil
}

func (q *Query) String() string {
	return q.Source
}

type root struct{}

func (root) Find(ctx Context) (Sequence, error) {
	if ctx.Node == nil {
		return nil, fmt.Errorf("root: no context node")
	}
	return Singleton(xml.TopOf(ctx.Node)), nil
}

type axisStep struct {
	axis  string
	test  nodeTest
	preds []Expr
}

func descendantOrSelf() Expr {
	return axisStep{
		axis: axisDescendantSelf,
		test: typeTest{kind: xml.TypeNode},
	}
}

func (a axisStep) Find(ctx Context) (Sequence, error) {
	if ctx.Node == nil {
		return nil, fmt.Errorf("%s: no context node", a.axis)
	}
	var (
		list      = walkAxis(a.axis, ctx.Node)
		principal = principalType(a.axis)
		nodes     []xml.Node
	)
	for _, n := range list {
		if a.test.Test(n, principal) {
			nodes = append(nodes, n)
		}
	}
	seq := NodeSet(nodes)
	for _, p := range a.preds {
		res, err := applyPredicate(ctx, seq, p)
		if err != nil {
			return nil, err
		}
		seq = res
	}
	if isReverse(a.axis) {
		slices.Reverse(seq)
	}
	return seq, nil
}

func (a axisStep) dos() bool {
	t, ok := a.test.(typeTest)
	return ok && a.axis == axisDescendantSelf && t.kind == xml.TypeNode && len(a.preds) == 0
}

type step struct {
	left  Expr
	right Expr
}

func (s step) Find(ctx Context) (Sequence, error) {
	left, err := s.left.Find(ctx)
	if err != nil {
		return nil, err
	}
	if !left.Nodes() {
		return nil, fmt.Errorf("step: %w: node-set expected", ErrType)
	}
	var list Sequence
	for i, item := range left {
		res, err := s.right.Find(ctx.Sub(item.Node(), i+1, len(left)))
		if err != nil {
			return nil, err
		}
		list.Concat(res)
	}
	return list.Sort(), nil
}

type filter struct {
	expr  Expr
	preds []Expr
}

func (f filter) Find(ctx Context) (Sequence, error) {
	seq, err := f.expr.Find(ctx)
	if err != nil {
		return nil, err
	}
	if !seq.Nodes() {
		return nil, fmt.Errorf("predicate: %w: node-set expected", ErrType)
	}
	for _, p := range f.preds {
		seq, err = applyPredicate(ctx, seq, p)
		if err != nil {
			return nil, err
		}
	}
	return seq, nil
}

func applyPredicate(ctx Context, seq Sequence, pred Expr) (Sequence, error) {
	var list Sequence
	for i, item := range seq {
		res, err := pred.Find(ctx.Sub(item.Node(), i+1, len(seq)))
		if err != nil {
			return nil, err
		}
		if keepItem(res, i+1) {
			list.Append(item)
		}
	}
	return list, nil
}

func keepItem(res Sequence, pos int) bool {
	if len(res) == 1 && res[0].Atomic() {
		if f, ok := res[0].Value().(float64); ok {
			return f == float64(pos)
		}
	}
	return res.True()
}

type union struct {
	all []Expr
}

func (u union) Find(ctx Context) (Sequence, error) {
	var list Sequence
	for _, e := range u.all {
		res, err := e.Find(ctx)
		if err != nil {
			return nil, err
		}
		if !res.Nodes() {
			return nil, fmt.Errorf("union: %w: node-set expected", ErrType)
		}
		list.Concat(res)
	}
	return list.Sort(), nil
}

type group struct {
	expr Expr
}

func (g group) Find(ctx Context) (Sequence, error) {
	seq, err := g.expr.Find(ctx)
	if err != nil {
		return nil, err
	}
	return seq.Sort(), nil
}

type reverse struct {
	expr Expr
}

func (r reverse) Find(ctx Context) (Sequence, error) {
	seq, err := r.expr.Find(ctx)
	if err != nil {
		return nil, err
	}
	return Singleton(-AsNumber(seq)), nil
}

type literal struct {
	expr string
}

func (i literal) Find(_ Context) (Sequence, error) {
	return Singleton(i.expr), nil
}

type number struct {
	expr float64
}

func (n number) Find(_ Context) (Sequence, error) {
	return Singleton(n.expr), nil
}

type identifier struct {
	ident string
}

func (i identifier) Find(ctx Context) (Sequence, error) {
	return ctx.resolveVariable(i.ident)
}

type call struct {
	ident string
	args  []Expr
}

func (c call) Find(ctx Context) (Sequence, error) {
	fn, err := ctx.resolveFunction(c.ident)
	if err != nil {
		return nil, err
	}
	return fn(ctx, c.args)
}

type binary struct {
	left  Expr
	right Expr
	op    rune
}

func (b binary) Find(ctx Context) (Sequence, error) {
	left, err := b.left.Find(ctx)
	if err != nil {
		return nil, err
	}
	switch b.op {
	case opAnd:
		if !left.True() {
			return Singleton(false), nil
		}
		right, err := b.right.Find(ctx)
		if err != nil {
			return nil, err
		}
		return Singleton(right.True()), nil
	case opOr:
		if left.True() {
			return Singleton(true), nil
		}
		right, err := b.right.Find(ctx)
		if err != nil {
			return nil, err
		}
		return Singleton(right.True()), nil
	}
	right, err := b.right.Find(ctx)
	if err != nil {
		return nil, err
	}
	switch b.op {
	case opAdd, opSub, opMul, opDiv, opMod:
		return Singleton(arithmetic(b.op, AsNumber(left), AsNumber(right))), nil
	case opEq, opNe, opLt, opLe, opGt, opGe:
		return Singleton(compareSequences(b.op, left, right)), nil
	default:
		return nil, fmt.Errorf("unsupported operator")
	}
}

func arithmetic(op rune, left, right float64) float64 {
	switch op {
	case opAdd:
		return left + right
	case opSub:
		return left - right
	case opMul:
		return left * right
	case opDiv:
		return left / right
	case opMod:
		return math.Mod(left, right)
	default:
		return math.NaN()
	}
}

func compareSequences(op rune, left, right Sequence) bool {
	var (
		lnodes = left.Nodes()
		rnodes = right.Nodes()
	)
	switch {
	case lnodes && rnodes:
		for _, l := range left {
			for _, r := range right {
				if compareAtoms(op, l.Node().Value(), r.Node().Value()) {
					return true
				}
			}
		}
		return false
	case lnodes:
		return compareNodes(op, left, right[0].Value(), false)
	case rnodes:
		return compareNodes(op, right, left[0].Value(), true)
	default:
		return compareAtoms(op, left[0].Value(), right[0].Value())
	}
}

func compareNodes(op rune, nodes Sequence, value any, swap bool) bool {
	if b, ok := value.(bool); ok {
		if swap {
			return compareAtoms(op, b, nodes.True())
		}
		return compareAtoms(op, nodes.True(), b)
	}
	for _, n := range nodes {
		var other any = n.Node().Value()
		if f, ok := value.(float64); ok {
			other = toNumber(other)
			value = f
		}
		var res bool
		if swap {
			res = compareAtoms(op, value, other)
		} else {
			res = compareAtoms(op, other, value)
		}
		if res {
			return true
		}
	}
	return false
}

func compareAtoms(op rune, left, right any) bool {
	if op == opEq || op == opNe {
		var eq bool
		_, lb := left.(bool)
		_, rb := right.(bool)
		_, lf := left.(float64)
		_, rf := right.(float64)
		switch {
		case lb || rb:
			eq = toBool(left) == toBool(right)
		case lf || rf:
			eq = toNumber(left) == toNumber(right)
		default:
			eq = toString(left) == toString(right)
		}
		if op == opNe {
			if lf || rf {
				l, r := toNumber(left), toNumber(right)
				if math.IsNaN(l) || math.IsNaN(r) {
					return true
				}
			}
			return !eq
		}
		return eq
	}
	l, r := toNumber(left), toNumber(right)
	switch op {
	case opLt:
		return l < r
	case opLe:
		return l <= r
	case opGt:
		return l > r
	case opGe:
		return l >= r
	default:
		return false
	}
}
