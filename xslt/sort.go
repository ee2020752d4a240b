package xslt

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/midbel/xslchain/xml"
	"github.com/midbel/xslchain/xpath"
)

type sortKey struct {
	numeric    bool
	descending bool
	upperFirst bool
	collator   *collate.Collator
}

func (k sortKey) compare(a, b any) int {
	var res int
	if k.numeric {
		res = compareNumbers(a.(float64), b.(float64))
	} else {
		x, y := a.(string), b.(string)
		res = k.collator.CompareString(x, y)
		if res == 0 && x != y {
			res = compareCase(x, y, k.upperFirst)
		}
	}
	if k.descending {
		res = -res
	}
	return res
}

// compareNumbers orders NaN before any other number.
func compareNumbers(a, b float64) int {
	switch {
	case math.IsNaN(a) && math.IsNaN(b):
		return 0
	case math.IsNaN(a):
		return -1
	case math.IsNaN(b):
		return 1
	default:
		return cmp.Compare(a, b)
	}
}

func compareCase(a, b string, upper bool) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] == b[i] {
			continue
		}
		x, y := a[i] >= 'A' && a[i] <= 'Z', b[i] >= 'A' && b[i] <= 'Z'
		if x == y {
			return cmp.Compare(a[i], b[i])
		}
		if x == upper {
			return -1
		}
		return 1
	}
	return cmp.Compare(len(a), len(b))
}

// sortNodes orders seq with the xsl:sort children of el. Without any sort
// key the sequence is returned as is.
func (c *Context) sortNodes(el *xml.Element, seq xpath.Sequence) (xpath.Sequence, error) {
	var sorts []*xml.Element
	for _, n := range el.Nodes {
		if isXsl(n, "sort") {
			sorts = append(sorts, n.(*xml.Element))
		}
	}
	if len(sorts) == 0 || len(seq) < 2 {
		return seq, nil
	}
	var (
		keys   = make([]sortKey, len(sorts))
		values = make([][]any, len(seq))
	)
	for i, s := range sorts {
		ctx := c.WithXsl(s)
		k, err := ctx.sortKey()
		if err != nil {
			return nil, ctx.errorWithContext(err)
		}
		keys[i] = k
		for j, item := range seq {
			sub := ctx.WithNode(item.Node(), j+1, len(seq))
			var res xpath.Sequence
			if sub.hasAttr("select") {
				res, err = sub.eval("select")
			} else {
				res = xpath.Singleton(item.Node().Value())
			}
			if err != nil {
				return nil, sub.errorWithContext(err)
			}
			if k.numeric {
				values[j] = append(values[j], xpath.AsNumber(res))
			} else {
				values[j] = append(values[j], xpath.AsString(res))
			}
		}
	}
	index := make([]int, len(seq))
	for i := range index {
		index[i] = i
	}
	slices.SortStableFunc(index, func(a, b int) int {
		for i, k := range keys {
			if res := k.compare(values[a][i], values[b][i]); res != 0 {
				return res
			}
		}
		return 0
	})
	res := make(xpath.Sequence, len(seq))
	for i, j := range index {
		res[i] = seq[j]
	}
	return res, nil
}

func (c *Context) sortKey() (sortKey, error) {
	var k sortKey
	order, _, err := c.evalAvt("order")
	if err != nil {
		return k, err
	}
	switch order {
	case "", "ascending":
	case "descending":
		k.descending = true
	default:
		return k, fmt.Errorf("%s: invalid sort order", order)
	}
	kind, _, err := c.evalAvt("data-type")
	if err != nil {
		return k, err
	}
	switch kind {
	case "", "text":
	case "number":
		k.numeric = true
	default:
		if !strings.Contains(kind, ":") {
			return k, fmt.Errorf("%s: invalid sort data type", kind)
		}
	}
	caseOrder, _, err := c.evalAvt("case-order")
	if err != nil {
		return k, err
	}
	k.upperFirst = caseOrder == "upper-first"
	lang, _, err := c.evalAvt("lang")
	if err != nil {
		return k, err
	}
	tag := language.Und
	if lang != "" {
		if t, err := language.Parse(lang); err == nil {
			tag = t
		}
	}
	k.collator = collate.New(tag)
	return k, nil
}
