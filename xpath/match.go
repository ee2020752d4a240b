package xpath

import (
	"slices"

	"github.com/midbel/xslchain/xml"
)

// Alternatives splits a pattern on its top level union operator. Each
// alternative is matched and prioritized on its own.
func (q *Query) Alternatives() []*Query {
	u, ok := q.expr.(union)
	if !ok {
		return []*Query{q}
	}
	var list []*Query
	for _, e := range u.all {
		list = append(list, &Query{
			expr:   e,
			Source: q.Source,
		})
	}
	return list
}

// Priority gives the default priority of a pattern made of a single
// alternative.
func (q *Query) Priority() float64 {
	s, ok := q.expr.(axisStep)
	if !ok || len(s.preds) > 0 || (s.axis != axisChild && s.axis != axisAttribute) {
		return 0.5
	}
	switch t := s.test.(type) {
	case nameTest:
		switch {
		case t.any:
			return -0.5
		case t.anyName:
			return -0.25
		default:
			return 0
		}
	case typeTest:
		if t.named {
			return 0
		}
		return -0.5
	default:
		return 0.5
	}
}

// IsPattern reports whether the expression only uses the constructs allowed
// in a match pattern.
func (q *Query) IsPattern() bool {
	return isPattern(q.expr)
}

func isPattern(expr Expr) bool {
	switch e := expr.(type) {
	case root:
		return true
	case union:
		for _, a := range e.all {
			if !isPattern(a) {
				return false
			}
		}
		return true
	case axisStep:
		return e.axis == axisChild || e.axis == axisAttribute || e.dos()
	case step:
		return isPattern(e.left) && isPattern(e.right)
	case call:
		return e.ident == "id" || e.ident == "key"
	default:
		return false
	}
}

// Match reports whether node matches the pattern.
func (q *Query) Match(node xml.Node, ctx Context) (bool, error) {
	return matchExpr(q.expr, node, ctx)
}

func matchExpr(expr Expr, node xml.Node, ctx Context) (bool, error) {
	if node == nil {
		return false, nil
	}
	switch e := expr.(type) {
	case root:
		return node.Type() == xml.TypeDocument, nil
	case union:
		for _, a := range e.all {
			ok, err := matchExpr(a, node, ctx)
			if ok || err != nil {
				return ok, err
			}
		}
		return false, nil
	case axisStep:
		return matchStep(e, node, ctx)
	case step:
		ok, err := matchExpr(e.right, node, ctx)
		if !ok || err != nil {
			return ok, err
		}
		if left, ok := e.left.(step); ok {
			if s, ok := left.right.(axisStep); ok && s.dos() {
				for p := node.Parent(); p != nil; p = p.Parent() {
					ok, err := matchExpr(left.left, p, ctx)
					if ok || err != nil {
						return ok, err
					}
				}
				return false, nil
			}
		}
		return matchExpr(e.left, node.Parent(), ctx)
	default:
		return matchFind(expr, node, ctx)
	}
}

func matchStep(s axisStep, node xml.Node, ctx Context) (bool, error) {
	switch s.axis {
	case axisChild:
		if node.Type() == xml.TypeAttribute || node.Type() == xml.TypeDocument {
			return false, nil
		}
		if !s.test.Test(node, xml.TypeElement) {
			return false, nil
		}
	case axisAttribute:
		if node.Type() != xml.TypeAttribute || !s.test.Test(node, xml.TypeAttribute) {
			return false, nil
		}
	default:
		return matchFind(s, node, ctx)
	}
	if len(s.preds) == 0 {
		return true, nil
	}
	parent := node.Parent()
	if parent == nil {
		return false, nil
	}
	seq, err := s.Find(ctx.WithNode(parent))
	if err != nil {
		return false, err
	}
	return contains(seq, node), nil
}

// matchFind evaluates expr with node and each of its ancestors as context
// node and checks whether node belongs to one of the results.
func matchFind(expr Expr, node xml.Node, ctx Context) (bool, error) {
	for curr := node; curr != nil; curr = curr.Parent() {
		seq, err := expr.Find(ctx.WithNode(curr))
		if err != nil {
			return false, err
		}
		if contains(seq, node) {
			return true, nil
		}
	}
	return false, nil
}

func contains(seq Sequence, node xml.Node) bool {
	return slices.ContainsFunc(seq, func(i Item) bool {
		return !i.Atomic() && i.Node() == node
	})
}
