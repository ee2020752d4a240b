package xpath

import (
	"slices"

	"github.com/midbel/xslchain/xml"
)

const (
	axisChild          = "child"
	axisDescendant     = "descendant"
	axisDescendantSelf = "descendant-or-self"
	axisParent         = "parent"
	axisAncestor       = "ancestor"
	axisAncestorSelf   = "ancestor-or-self"
	axisSelf           = "self"
	axisFollowing      = "following"
	axisFollowingSib   = "following-sibling"
	axisPreceding      = "preceding"
	axisPrecedingSib   = "preceding-sibling"
	axisAttribute      = "attribute"
	axisNamespace      = "namespace"
)

func isAxis(name string) bool {
	switch name {
	case axisChild, axisDescendant, axisDescendantSelf, axisParent,
		axisAncestor, axisAncestorSelf, axisSelf, axisFollowing,
		axisFollowingSib, axisPreceding, axisPrecedingSib, axisAttribute,
		axisNamespace:
		return true
	default:
		return false
	}
}

func isReverse(axis string) bool {
	switch axis {
	case axisAncestor, axisAncestorSelf, axisPreceding, axisPrecedingSib:
		return true
	default:
		return false
	}
}

func principalType(axis string) xml.NodeType {
	if axis == axisAttribute {
		return xml.TypeAttribute
	}
	return xml.TypeElement
}

type nodeTest interface {
	Test(xml.Node, xml.NodeType) bool
}

type nameTest struct {
	xml.QName
	any     bool
	anyName bool
}

func (n nameTest) Test(node xml.Node, principal xml.NodeType) bool {
	if node.Type() != principal {
		return false
	}
	switch {
	case n.any:
		return true
	case n.anyName:
		return node.NamespaceURI() == n.Uri
	default:
		return node.LocalName() == n.Name && node.NamespaceURI() == n.Uri
	}
}

type typeTest struct {
	kind   xml.NodeType
	target string
	named  bool
}

func (t typeTest) Test(node xml.Node, _ xml.NodeType) bool {
	if t.kind == xml.TypeNode {
		return true
	}
	if node.Type() != t.kind {
		return false
	}
	if t.named {
		return node.LocalName() == t.target
	}
	return true
}

// walkAxis returns the nodes of axis from node, in axis order.
func walkAxis(axis string, node xml.Node) []xml.Node {
	switch axis {
	case axisChild:
		return children(node)
	case axisSelf:
		return []xml.Node{node}
	case axisParent:
		if p := node.Parent(); p != nil {
			return []xml.Node{p}
		}
		return nil
	case axisAttribute:
		el, ok := node.(*xml.Element)
		if !ok {
			return nil
		}
		list := make([]xml.Node, 0, len(el.Attrs))
		for _, a := range el.Attrs {
			list = append(list, a)
		}
		return list
	case axisDescendant:
		return descendants(node, nil)
	case axisDescendantSelf:
		return descendants(node, []xml.Node{node})
	case axisAncestor:
		return ancestors(node, nil)
	case axisAncestorSelf:
		return ancestors(node, []xml.Node{node})
	case axisFollowingSib:
		return followingSiblings(node)
	case axisPrecedingSib:
		return precedingSiblings(node)
	case axisFollowing:
		return following(node)
	case axisPreceding:
		return preceding(node)
	default:
		return nil
	}
}

func children(node xml.Node) []xml.Node {
	c, ok := node.(xml.Container)
	if !ok {
		return nil
	}
	return c.Children()
}

func descendants(node xml.Node, list []xml.Node) []xml.Node {
	for _, c := range children(node) {
		list = append(list, c)
		list = descendants(c, list)
	}
	return list
}

func ancestors(node xml.Node, list []xml.Node) []xml.Node {
	for p := node.Parent(); p != nil; p = p.Parent() {
		list = append(list, p)
	}
	return list
}

func siblings(node xml.Node) []xml.Node {
	if node.Type() == xml.TypeAttribute {
		return nil
	}
	p := node.Parent()
	if p == nil {
		return nil
	}
	return children(p)
}

func followingSiblings(node xml.Node) []xml.Node {
	list := siblings(node)
	if pos := node.Position() + 1; pos < len(list) {
		return list[pos:]
	}
	return nil
}

func precedingSiblings(node xml.Node) []xml.Node {
	list := siblings(node)
	if len(list) == 0 {
		return nil
	}
	list = slices.Clone(list[:node.Position()])
	slices.Reverse(list)
	return list
}

func following(node xml.Node) []xml.Node {
	var list []xml.Node
	if node.Type() == xml.TypeAttribute {
		node = node.Parent()
		if node == nil {
			return nil
		}
		list = descendants(node, list)
	}
	for curr := node; curr != nil; curr = curr.Parent() {
		for _, s := range followingSiblings(curr) {
			list = append(list, s)
			list = descendants(s, list)
		}
	}
	return list
}

func preceding(node xml.Node) []xml.Node {
	var list []xml.Node
	if node.Type() == xml.TypeAttribute {
		node = node.Parent()
		if node == nil {
			return nil
		}
	}
	for curr := node; curr != nil; curr = curr.Parent() {
		for _, s := range precedingSiblings(curr) {
			sub := descendants(s, nil)
			slices.Reverse(sub)
			list = append(list, sub...)
			list = append(list, s)
		}
	}
	return list
}
