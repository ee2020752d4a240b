package xpath

import (
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/midbel/xslchain/xml"
)

type Item interface {
	Node() xml.Node
	Value() any
	True() bool
	Atomic() bool
}

type Sequence []Item

func NewSequence() Sequence {
	var seq Sequence
	return seq
}

func Singleton(value any) Sequence {
	var seq Sequence
	seq.Append(createItem(value))
	return seq
}

// NodeSet builds a sequence from a list of nodes without reordering them.
func NodeSet(nodes []xml.Node) Sequence {
	seq := make(Sequence, 0, len(nodes))
	for _, n := range nodes {
		seq = append(seq, createNode(n))
	}
	return seq
}

func (s *Sequence) Append(item Item) {
	*s = append(*s, item)
}

func (s *Sequence) Concat(other Sequence) {
	*s = append(*s, other...)
}

func (s *Sequence) Len() int {
	return len(*s)
}

func (s *Sequence) Empty() bool {
	return len(*s) == 0
}

// Nodes reports whether every item of s is a node. An empty sequence is an
// empty node-set.
func (s Sequence) Nodes() bool {
	for _, i := range s {
		if i.Atomic() {
			return false
		}
	}
	return true
}

func (s Sequence) NodeList() []xml.Node {
	list := make([]xml.Node, 0, len(s))
	for _, i := range s {
		if i.Atomic() {
			continue
		}
		list = append(list, i.Node())
	}
	return list
}

func (s Sequence) First() (Item, bool) {
	if len(s) == 0 {
		return nil, false
	}
	return s[0], true
}

// Sort orders a node-set in document order and removes duplicates.
func (s Sequence) Sort() Sequence {
	if len(s) < 2 || !s.Nodes() {
		return s
	}
	slices.SortStableFunc(s, func(a, b Item) int {
		return xml.Compare(a.Node(), b.Node())
	})
	return slices.CompactFunc(s, func(a, b Item) bool {
		return a.Node() == b.Node()
	})
}

func (s Sequence) True() bool {
	if len(s) == 0 {
		return false
	}
	if s.Nodes() {
		return true
	}
	return s[0].True()
}

type nodeItem struct {
	node xml.Node
}

func createNode(n xml.Node) Item {
	return nodeItem{
		node: n,
	}
}

func (i nodeItem) Node() xml.Node {
	return i.node
}

func (i nodeItem) Value() any {
	return i.node.Value()
}

func (i nodeItem) True() bool {
	return true
}

func (i nodeItem) Atomic() bool {
	return false
}

type literalItem struct {
	value any
}

func createLiteral(value any) Item {
	return literalItem{
		value: value,
	}
}

func createItem(value any) Item {
	switch v := value.(type) {
	case Item:
		return v
	case xml.Node:
		return createNode(v)
	case int:
		return createLiteral(float64(v))
	case int64:
		return createLiteral(float64(v))
	case float32:
		return createLiteral(float64(v))
	default:
		return createLiteral(value)
	}
}

func (i literalItem) Node() xml.Node {
	return xml.NewText(toString(i.value))
}

func (i literalItem) Value() any {
	return i.value
}

func (i literalItem) True() bool {
	return toBool(i.value)
}

func (i literalItem) Atomic() bool {
	return true
}

// fragmentItem wraps a result tree fragment: it behaves as a single root
// node in a node-set context.
type fragmentItem struct {
	doc *xml.Document
}

func Fragment(doc *xml.Document) Item {
	return fragmentItem{
		doc: doc,
	}
}

func (i fragmentItem) Node() xml.Node {
	return i.doc
}

func (i fragmentItem) Value() any {
	return i.doc.Value()
}

func (i fragmentItem) True() bool {
	return true
}

func (i fragmentItem) Atomic() bool {
	return false
}

// AsString converts a sequence to a string following the rules of the
// string() function.
func AsString(seq Sequence) string {
	if len(seq) == 0 {
		return ""
	}
	if seq.Nodes() {
		return seq[0].Node().Value()
	}
	return toString(seq[0].Value())
}

func AsNumber(seq Sequence) float64 {
	if len(seq) == 0 {
		return math.NaN()
	}
	if seq.Nodes() {
		return toNumber(seq[0].Node().Value())
	}
	return toNumber(seq[0].Value())
}

func AsBool(seq Sequence) bool {
	return seq.True()
}

func toString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return FormatNumber(v)
	case bool:
		if v {
			return "true"
		}
		return "false"
	case xml.Node:
		return v.Value()
	case nil:
		return ""
	default:
		return ""
	}
}

func toNumber(value any) float64 {
	switch v := value.(type) {
	case float64:
		return v
	case bool:
		if v {
			return 1
		}
		return 0
	case string:
		return parseNumber(v)
	case xml.Node:
		return parseNumber(v.Value())
	default:
		return math.NaN()
	}
}

func toBool(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		return v != ""
	case float64:
		return v != 0 && !math.IsNaN(v)
	case xml.Node:
		return true
	default:
		return false
	}
}

// parseNumber accepts the XPath 1.0 Number production surrounded by
// whitespace. Anything else is NaN.
func parseNumber(str string) float64 {
	str = strings.Trim(str, " \t\r\n")
	if str == "" {
		return math.NaN()
	}
	body := strings.TrimPrefix(str, "-")
	if body == "" || body == "." {
		return math.NaN()
	}
	dot := false
	for _, c := range body {
		if c == '.' {
			if dot {
				return math.NaN()
			}
			dot = true
			continue
		}
		if c < '0' || c > '9' {
			return math.NaN()
		}
	}
	f, err := strconv.ParseFloat(str, 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

// FormatNumber renders a number the way string() does.
func FormatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		return "0"
	case f == math.Trunc(f) && math.Abs(f) < 1e15:
		return strconv.FormatFloat(f, 'f', 0, 64)
	default:
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
}
