package xslt

import (
	"fmt"
	"strings"

	"github.com/midbel/xslchain/environ"
	"github.com/midbel/xslchain/xml"
	"github.com/midbel/xslchain/xpath"
)

func (t *transformer) createBuiltins() environ.Environ[xpath.BuiltinFunc] {
	env := environ.Enclosed(t.scripts.scope(xpath.DefaultBuiltins()))
	env.Define("current", callCurrent)
	env.Define("document", t.callDocument)
	env.Define("key", t.callKey)
	env.Define("format-number", t.callFormatNumber)
	env.Define("generate-id", t.callGenerateId)
	env.Define("system-property", callSystemProperty)
	env.Define("element-available", callElementAvailable)
	env.Define("function-available", t.callFunctionAvailable)
	env.Define("unparsed-entity-uri", t.callUnparsedEntityUri)
	return env
}

func callCurrent(ctx xpath.Context, args []xpath.Expr) (xpath.Sequence, error) {
	if len(args) != 0 {
		return nil, fmt.Errorf("current: %w", xpath.ErrArgument)
	}
	if ctx.Current == nil {
		return xpath.NewSequence(), nil
	}
	return xpath.NodeSet([]xml.Node{ctx.Current}), nil
}

func (t *transformer) callDocument(ctx xpath.Context, args []xpath.Expr) (xpath.Sequence, error) {
	if !t.AllowDocumentFunction {
		return nil, ErrDocumentDisabled
	}
	if len(args) < 1 || len(args) > 2 {
		return nil, fmt.Errorf("document: %w", xpath.ErrArgument)
	}
	seq, err := args[0].Find(ctx)
	if err != nil {
		return nil, err
	}
	var base string
	if len(args) == 2 {
		other, err := xpath.EvalNodes(ctx, args[1])
		if err != nil {
			return nil, fmt.Errorf("document: %w", err)
		}
		if other = other.Sort(); len(other) > 0 {
			base = documentURI(other[0].Node(), t.File)
		}
	}
	var res []xml.Node
	if !seq.Nodes() {
		if base == "" {
			base = t.File
		}
		doc, err := t.loadDocument(base, xpath.AsString(seq))
		if err != nil {
			return nil, err
		}
		return xpath.NodeSet([]xml.Node{doc}), nil
	}
	for _, item := range seq {
		href := base
		if href == "" {
			href = documentURI(item.Node(), t.File)
		}
		doc, err := t.loadDocument(href, item.Node().Value())
		if err != nil {
			return nil, err
		}
		res = append(res, doc)
	}
	return xpath.NodeSet(res).Sort(), nil
}

// loadDocument returns the document referenced by href. The same URI always
// gives the same document within a transformation.
func (t *transformer) loadDocument(base, href string) (*xml.Document, error) {
	href, _, _ = strings.Cut(strings.TrimSpace(href), "#")
	if href == "" {
		if doc, ok := t.modules[base]; ok {
			return doc, nil
		}
		href = base
	}
	uri, err := t.Resolve(base, href)
	if err != nil {
		return nil, err
	}
	if doc, ok := t.documents[uri]; ok {
		return doc, nil
	}
	rc, err := t.Open(uri)
	if err != nil {
		return nil, fmt.Errorf("document: %w", err)
	}
	defer rc.Close()

	p := xml.NewParser(rc)
	p.URI = uri
	doc, err := p.Parse()
	if err != nil {
		return nil, fmt.Errorf("document: %s: %w", uri, err)
	}
	t.documents[uri] = doc
	return doc, nil
}

func (t *transformer) callKey(ctx xpath.Context, args []xpath.Expr) (xpath.Sequence, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("key: %w", xpath.ErrArgument)
	}
	str, err := args[0].Find(ctx)
	if err != nil {
		return nil, err
	}
	qn, err := ctx.ResolveName(strings.TrimSpace(xpath.AsString(str)))
	if err != nil {
		return nil, fmt.Errorf("key: %w", err)
	}
	name := qn.ExpandedName()
	if _, ok := t.keys[name]; !ok {
		return nil, fmt.Errorf("key: %s: %w", name, ErrUndefined)
	}
	index, err := t.keyIndex(name, xml.TopOf(ctx.Node))
	if err != nil {
		return nil, err
	}
	seq, err := args[1].Find(ctx)
	if err != nil {
		return nil, err
	}
	var (
		res  []xml.Node
		vals []string
	)
	if seq.Nodes() {
		for _, item := range seq {
			vals = append(vals, item.Node().Value())
		}
	} else {
		vals = append(vals, xpath.AsString(seq))
	}
	for _, v := range vals {
		res = append(res, index[v]...)
	}
	return xpath.NodeSet(res).Sort(), nil
}

// keyIndex builds, once per document, the table of the nodes selected by
// the key declarations of name.
func (t *transformer) keyIndex(name string, top xml.Node) (map[string][]xml.Node, error) {
	byDoc, ok := t.indexes[name]
	if !ok {
		byDoc = make(map[xml.Node]map[string][]xml.Node)
		t.indexes[name] = byDoc
	}
	if index, ok := byDoc[top]; ok {
		return index, nil
	}
	var (
		index = make(map[string][]xml.Node)
		base  = t.createContext(top).xpathContext()
	)
	add := func(value string, node xml.Node) {
		for _, n := range index[value] {
			if n == node {
				return
			}
		}
		index[value] = append(index[value], node)
	}
	visit := func(node xml.Node) error {
		for _, k := range t.keys[name] {
			ctx := base
			ctx.Node, ctx.Current = node, node
			ok, err := k.Match.Match(node, ctx)
			if err != nil || !ok {
				return err
			}
			seq, err := k.Use.Find(ctx)
			if err != nil {
				return err
			}
			if seq.Nodes() {
				for _, item := range seq {
					add(item.Node().Value(), node)
				}
			} else {
				add(xpath.AsString(seq), node)
			}
		}
		return nil
	}
	if err := walkUntil(top, nil, visit); err != nil {
		return nil, err
	}
	byDoc[top] = index
	return index, nil
}

func (t *transformer) callFormatNumber(ctx xpath.Context, args []xpath.Expr) (xpath.Sequence, error) {
	if len(args) < 2 || len(args) > 3 {
		return nil, fmt.Errorf("format-number: %w", xpath.ErrArgument)
	}
	num, err := args[0].Find(ctx)
	if err != nil {
		return nil, err
	}
	pattern, err := args[1].Find(ctx)
	if err != nil {
		return nil, err
	}
	var name string
	if len(args) == 3 {
		seq, err := args[2].Find(ctx)
		if err != nil {
			return nil, err
		}
		qn, err := ctx.ResolveName(strings.TrimSpace(xpath.AsString(seq)))
		if err != nil {
			return nil, fmt.Errorf("format-number: %w", err)
		}
		name = qn.ExpandedName()
	}
	df, ok := t.formats[name]
	if !ok {
		return nil, fmt.Errorf("format-number: %s: decimal format %w", name, ErrUndefined)
	}
	str, err := df.FormatNumber(xpath.AsNumber(num), xpath.AsString(pattern))
	if err != nil {
		return nil, fmt.Errorf("format-number: %w", err)
	}
	return xpath.Singleton(str), nil
}

func (t *transformer) callGenerateId(ctx xpath.Context, args []xpath.Expr) (xpath.Sequence, error) {
	node := ctx.Node
	if len(args) > 1 {
		return nil, fmt.Errorf("generate-id: %w", xpath.ErrArgument)
	}
	if len(args) == 1 {
		seq, err := xpath.EvalNodes(ctx, args[0])
		if err != nil {
			return nil, fmt.Errorf("generate-id: %w", err)
		}
		if seq = seq.Sort(); len(seq) == 0 {
			return xpath.Singleton(""), nil
		}
		node = seq[0].Node()
	}
	if node == nil {
		return xpath.Singleton(""), nil
	}
	id, ok := t.ids[node]
	if !ok {
		str, err := t.namer.Next()
		if err != nil {
			return nil, fmt.Errorf("generate-id: %w", err)
		}
		id = "id" + str
		t.ids[node] = id
	}
	return xpath.Singleton(id), nil
}

func callSystemProperty(ctx xpath.Context, args []xpath.Expr) (xpath.Sequence, error) {
	qn, err := nameArg(ctx, "system-property", args)
	if err != nil {
		return nil, err
	}
	if qn.Uri != xsltNamespaceUri {
		return xpath.Singleton(""), nil
	}
	switch qn.Name {
	case "version":
		return xpath.Singleton(1.0), nil
	case "vendor":
		return xpath.Singleton(XslVendor), nil
	case "vendor-url":
		return xpath.Singleton(XslVendorUrl), nil
	default:
		return xpath.Singleton(""), nil
	}
}

func callElementAvailable(ctx xpath.Context, args []xpath.Expr) (xpath.Sequence, error) {
	qn, err := nameArg(ctx, "element-available", args)
	if err != nil {
		return nil, err
	}
	_, ok := executers[qn.Name]
	return xpath.Singleton(ok && qn.Uri == xsltNamespaceUri), nil
}

func (t *transformer) callFunctionAvailable(ctx xpath.Context, args []xpath.Expr) (xpath.Sequence, error) {
	qn, err := nameArg(ctx, "function-available", args)
	if err != nil {
		return nil, err
	}
	return xpath.Singleton(environ.Defined(t.builtins, qn.ExpandedName())), nil
}

func (t *transformer) callUnparsedEntityUri(ctx xpath.Context, args []xpath.Expr) (xpath.Sequence, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("unparsed-entity-uri: %w", xpath.ErrArgument)
	}
	seq, err := args[0].Find(ctx)
	if err != nil {
		return nil, err
	}
	doc := xml.Owner(ctx.Node)
	if doc == nil || doc.DocType == nil || doc.DocType.Decls == nil {
		return xpath.Singleton(""), nil
	}
	ent, ok := doc.DocType.Decls.Unparsed[xpath.AsString(seq)]
	if !ok {
		return xpath.Singleton(""), nil
	}
	return xpath.Singleton(ent), nil
}

func nameArg(ctx xpath.Context, fn string, args []xpath.Expr) (xml.QName, error) {
	if len(args) != 1 {
		return xml.QName{}, fmt.Errorf("%s: %w", fn, xpath.ErrArgument)
	}
	seq, err := args[0].Find(ctx)
	if err != nil {
		return xml.QName{}, err
	}
	qn, err := ctx.ResolveName(strings.TrimSpace(xpath.AsString(seq)))
	if err != nil {
		return qn, fmt.Errorf("%s: %w", fn, err)
	}
	return qn, nil
}
