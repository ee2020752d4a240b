package xslt

import (
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"github.com/midbel/xslchain/xml"
	"github.com/midbel/xslchain/xpath"
)

const (
	XslVersion   = "1.0"
	XslVendor    = "xslchain"
	XslVendorUrl = "https://github.com/midbel/xslchain"
)

const (
	xsltNamespaceUri    = "http://www.w3.org/1999/XSL/Transform"
	xsltNamespacePrefix = "xsl"
	msxslNamespaceUri   = "urn:schemas-microsoft-com:xslt"
)

type Option func(*Stylesheet)

func WithResolver(r Resolver) Option {
	return func(s *Stylesheet) {
		if r != nil {
			s.Resolver = r
		}
	}
}

func WithDocumentFunction(allow bool) Option {
	return func(s *Stylesheet) {
		s.AllowDocumentFunction = allow
	}
}

func WithScripts(allow bool) Option {
	return func(s *Stylesheet) {
		s.AllowEmbeddedScript = allow
	}
}

func WithTracer(t Tracer) Option {
	return func(s *Stylesheet) {
		if t != nil {
			s.Tracer = t
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Stylesheet) {
		if logger != nil {
			s.Logger = logger
		}
	}
}

type AttributeSet struct {
	Name  string
	Use   []string
	Attrs []*xml.Element
}

type Key struct {
	Name  string
	Match *xpath.Query
	Use   *xpath.Query
}

type spaceRule struct {
	pattern    *xpath.Query
	strip      bool
	precedence int
	priority   float64
}

type global struct {
	Name  string
	Elem  *xml.Element
	Param bool

	precedence int
}

type module struct {
	file       string
	precedence int
	lowest     int
}

type Template struct {
	Name     string
	Mode     string
	Match    *xpath.Query
	Priority float64
	File     string

	Params []*xml.Element
	Nodes  []xml.Node
	Elem   *xml.Element

	precedence int
	lowest     int
	position   int
}

type rule struct {
	*Template
	pattern  *xpath.Query
	priority float64
}

// Stylesheet is a compiled stylesheet with all its imported and included
// modules.
type Stylesheet struct {
	File string
	Resolver
	Tracer
	Logger *slog.Logger

	AllowDocumentFunction bool
	AllowEmbeddedScript   bool

	output   Output
	rules    []*rule
	named    map[string]*Template
	globals  map[string]*global
	keys     map[string][]*Key
	attrSets map[string][]*AttributeSet
	formats  map[string]*DecimalFormat
	aliases  map[string]xml.NS
	spaces   []*spaceRule
	scripts  *scriptEnv
	params   map[string]string

	queries map[*xml.Attribute]*xpath.Query
	avts    map[*xml.Attribute]*AVT
	modules map[string]*xml.Document

	precedence int
	position   int
	loading    []string
}

// Load compiles the stylesheet in file and the modules it imports or
// includes. Failures to open or parse file itself are returned as is, any
// other problem is reported as a CompileError.
func Load(file string, options ...Option) (*Stylesheet, error) {
	s := Stylesheet{
		File:     file,
		Resolver: DefaultResolver(),
		Tracer:   NoopTracer(),
		Logger:   slog.New(slog.DiscardHandler),
		output:   defaultOutput(),
		named:    make(map[string]*Template),
		globals:  make(map[string]*global),
		keys:     make(map[string][]*Key),
		attrSets: make(map[string][]*AttributeSet),
		formats:  make(map[string]*DecimalFormat),
		aliases:  make(map[string]xml.NS),
		params:   make(map[string]string),
		queries:  make(map[*xml.Attribute]*xpath.Query),
		avts:     make(map[*xml.Attribute]*AVT),
		modules:  make(map[string]*xml.Document),
	}
	for _, o := range options {
		o(&s)
	}
	s.scripts = createScriptEnv(s.AllowEmbeddedScript)
	s.formats[""] = defaultDecimalFormat()

	uri, err := s.Resolve("", file)
	if err != nil {
		return nil, err
	}
	s.File = uri
	if err := s.loadModule(uri, true); err != nil {
		return nil, err
	}
	slices.SortStableFunc(s.rules, func(r1, r2 *rule) int {
		if r1.precedence != r2.precedence {
			return r2.precedence - r1.precedence
		}
		if r1.priority != r2.priority {
			if r1.priority > r2.priority {
				return -1
			}
			return 1
		}
		return r2.position - r1.position
	})
	return &s, nil
}

// SetParam overrides the value of a top level parameter. The name is
// taken in the null namespace and unknown names are ignored.
func (s *Stylesheet) SetParam(name, value string) {
	s.params[name] = value
}

func (s *Stylesheet) Params() []string {
	var list []string
	for _, g := range s.globals {
		if g.Param {
			list = append(list, g.Name)
		}
	}
	slices.Sort(list)
	return list
}

func (s *Stylesheet) Output() Output {
	return s.output
}

// Execute transforms doc and serializes the result to w according to the
// output settings of the stylesheet.
func (s *Stylesheet) Execute(w io.Writer, doc *xml.Document) error {
	res, err := s.Transform(doc)
	if err != nil {
		return err
	}
	return s.output.Serialize(w, res)
}

func (s *Stylesheet) loadModule(uri string, main bool) error {
	if slices.Contains(s.loading, uri) {
		return CompileError{
			File:    uri,
			Message: "circular import or include",
		}
	}
	s.loading = append(s.loading, uri)
	defer func() {
		s.loading = s.loading[:len(s.loading)-1]
	}()

	top, err := s.collect(uri, main)
	if err != nil {
		return err
	}
	lowest := s.precedence
	var rest []*xml.Element
	for _, el := range top {
		if !isXsl(el, "import") {
			rest = append(rest, el)
			continue
		}
		href, err := requireAttr(el, "href")
		if err != nil {
			return compileError(uri, el.QualifiedName(), err)
		}
		other, err := s.Resolve(documentURI(el, uri), href)
		if err != nil {
			return compileError(uri, el.QualifiedName(), err)
		}
		if err := s.loadModule(other, false); err != nil {
			return compileError(uri, el.QualifiedName(), err)
		}
	}
	mod := module{
		file:       uri,
		precedence: s.precedence,
		lowest:     lowest,
	}
	s.precedence++
	for _, el := range rest {
		if err := s.compileTopLevel(mod, el); err != nil {
			return compileError(documentURI(el, uri), el.QualifiedName(), err)
		}
	}
	return nil
}

// collect returns the top level elements of the module in uri, the ones of
// included modules taking the place of their xsl:include.
func (s *Stylesheet) collect(uri string, main bool) ([]*xml.Element, error) {
	doc, err := s.readModule(uri)
	if err != nil {
		if main {
			return nil, fmt.Errorf("%s: %w", uri, err)
		}
		return nil, compileError(uri, "", err)
	}
	root, err := s.stylesheetRoot(doc)
	if err != nil {
		return nil, compileError(uri, "", err)
	}
	s.modules[uri] = doc

	var (
		list  []*xml.Element
		other bool
	)
	for _, n := range root.Nodes {
		switch n := n.(type) {
		case *xml.Text:
			return nil, CompileError{File: uri, Message: "text is not allowed at the top level"}
		case *xml.Element:
			switch {
			case isXsl(n, "import"):
				if other {
					return nil, CompileError{File: uri, Element: n.QualifiedName(), Message: "import must precede other top level elements"}
				}
				list = append(list, n)
			case isXsl(n, "include"):
				other = true
				others, err := s.include(uri, n)
				if err != nil {
					return nil, err
				}
				list = append(list, others...)
			default:
				other = true
				list = append(list, n)
			}
		}
	}
	return list, nil
}

func (s *Stylesheet) include(uri string, el *xml.Element) ([]*xml.Element, error) {
	href, err := requireAttr(el, "href")
	if err != nil {
		return nil, compileError(uri, el.QualifiedName(), err)
	}
	other, err := s.Resolve(uri, href)
	if err != nil {
		return nil, compileError(uri, el.QualifiedName(), err)
	}
	if slices.Contains(s.loading, other) {
		return nil, CompileError{File: uri, Element: el.QualifiedName(), Message: "circular import or include"}
	}
	s.loading = append(s.loading, other)
	defer func() {
		s.loading = s.loading[:len(s.loading)-1]
	}()
	return s.collect(other, false)
}

func (s *Stylesheet) readModule(uri string) (*xml.Document, error) {
	rc, err := s.Open(uri)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	p := xml.NewParser(rc)
	p.URI = uri
	p.TrimSpace = true
	p.KeepSpace = keepStylesheetSpace
	p.SetDoctype(xml.DoctypeParse, nil)
	return p.Parse()
}

func keepStylesheetSpace(el *xml.Element) bool {
	if isXsl(el, "text") {
		return true
	}
	return preserveSpace(el)
}

// preserveSpace looks for the closest xml:space attribute.
func preserveSpace(el *xml.Element) bool {
	space := xml.QName{Uri: xml.NamespaceXML, Name: "space"}
	var node xml.Node = el
	for node != nil {
		if e, ok := node.(*xml.Element); ok {
			if a, ok := e.GetAttributeNS(space); ok {
				return a.Datum == "preserve"
			}
		}
		node = node.Parent()
	}
	return false
}

// stylesheetRoot returns the xsl:stylesheet element of doc. A literal result
// element used as stylesheet is wrapped into a template matching the root.
func (s *Stylesheet) stylesheetRoot(doc *xml.Document) (*xml.Element, error) {
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("empty stylesheet")
	}
	if isXsl(root, "stylesheet") || isXsl(root, "transform") {
		if _, ok := root.GetAttribute("version"); !ok {
			return nil, fmt.Errorf("%s: missing version attribute", root.QualifiedName())
		}
		return root, nil
	}
	if _, ok := root.GetAttributeNS(xslName("version")); !ok {
		return nil, fmt.Errorf("%s: not a stylesheet", root.QualifiedName())
	}
	var (
		top   = xml.EmptyDocument()
		sheet = xml.NewElement(xslName("stylesheet"))
		tpl   = xml.NewElement(xslName("template"))
	)
	top.URI = doc.URI
	sheet.DeclareNamespace(xsltNamespacePrefix, xsltNamespaceUri)
	sheet.SetAttribute(xml.NewAttribute(xml.LocalName("version"), XslVersion))
	tpl.SetAttribute(xml.NewAttribute(xml.LocalName("match"), "/"))
	tpl.Append(root)
	sheet.Append(tpl)
	top.Append(sheet)
	return sheet, nil
}

func (s *Stylesheet) compileTopLevel(mod module, el *xml.Element) error {
	switch el.Uri {
	case xsltNamespaceUri:
	case msxslNamespaceUri:
		if el.Name == "script" {
			return s.loadScript(el)
		}
		return nil
	case "":
		return fmt.Errorf("top level element must have a non null namespace")
	default:
		return nil
	}
	if err := s.prepare(el); err != nil {
		return err
	}
	switch el.Name {
	case "template":
		return s.loadTemplate(mod, el)
	case "output":
		return s.loadOutput(el)
	case "param", "variable":
		return s.loadGlobal(mod, el)
	case "key":
		return s.loadKey(el)
	case "strip-space", "preserve-space":
		return s.loadSpace(mod, el)
	case "attribute-set":
		return s.loadAttributeSet(el)
	case "decimal-format":
		return s.loadDecimalFormat(el)
	case "namespace-alias":
		return s.loadNamespaceAlias(el)
	default:
		if forwardsCompatible(el) {
			return nil
		}
		return fmt.Errorf("unknown top level element")
	}
}

func (s *Stylesheet) loadTemplate(mod module, el *xml.Element) error {
	tpl := Template{
		Elem:       el,
		File:       mod.file,
		precedence: mod.precedence,
		lowest:     mod.lowest,
		position:   s.position,
		Priority:   0,
	}
	s.position++
	var err error
	if name, ok := el.GetAttribute("name"); ok {
		if tpl.Name, err = expandName(el, name.Datum); err != nil {
			return err
		}
	}
	if mode, ok := el.GetAttribute("mode"); ok {
		if tpl.Mode, err = expandName(el, mode.Datum); err != nil {
			return err
		}
	}
	if match, ok := el.GetAttribute("match"); ok {
		tpl.Match = s.queries[match]
	}
	if tpl.Match == nil && tpl.Name == "" {
		return fmt.Errorf("template must have a name or a match attribute")
	}
	explicit := false
	if prio, ok := el.GetAttribute("priority"); ok {
		tpl.Priority, err = strconv.ParseFloat(strings.TrimSpace(prio.Datum), 64)
		if err != nil {
			return fmt.Errorf("%s: invalid priority", prio.Datum)
		}
		explicit = true
	}
	for i, n := range el.Nodes {
		if !isXsl(n, "param") {
			tpl.Nodes = el.Nodes[i:]
			break
		}
		tpl.Params = append(tpl.Params, n.(*xml.Element))
	}
	if tpl.Match != nil {
		for _, alt := range tpl.Match.Alternatives() {
			r := rule{
				Template: &tpl,
				pattern:  alt,
				priority: tpl.Priority,
			}
			if !explicit {
				r.priority = alt.Priority()
			}
			s.rules = append(s.rules, &r)
		}
	}
	if tpl.Name != "" {
		other, ok := s.named[tpl.Name]
		if ok && other.precedence == tpl.precedence {
			return fmt.Errorf("%s: template already defined", tpl.Name)
		}
		s.named[tpl.Name] = &tpl
	}
	return nil
}

func (s *Stylesheet) loadGlobal(mod module, el *xml.Element) error {
	name, err := expandName(el, attrValue(el, "name"))
	if err != nil {
		return err
	}
	other, ok := s.globals[name]
	if ok && other.precedence == mod.precedence {
		return fmt.Errorf("%s: global variable already defined", name)
	}
	s.globals[name] = &global{
		Name:       name,
		Elem:       el,
		Param:      el.Name == "param",
		precedence: mod.precedence,
	}
	return nil
}

func (s *Stylesheet) loadKey(el *xml.Element) error {
	name, err := expandName(el, attrValue(el, "name"))
	if err != nil {
		return err
	}
	match, _ := el.GetAttribute("match")
	use, _ := el.GetAttribute("use")
	k := Key{
		Name:  name,
		Match: s.queries[match],
		Use:   s.queries[use],
	}
	s.keys[name] = append(s.keys[name], &k)
	return nil
}

func (s *Stylesheet) loadSpace(mod module, el *xml.Element) error {
	ns := namespaces(el)
	for _, name := range strings.Fields(attrValue(el, "elements")) {
		q, err := xpath.CompileWith(name, ns)
		if err != nil {
			return err
		}
		r := spaceRule{
			pattern:    q,
			strip:      el.Name == "strip-space",
			precedence: mod.precedence,
			priority:   q.Priority(),
		}
		s.spaces = append(s.spaces, &r)
	}
	return nil
}

func (s *Stylesheet) loadAttributeSet(el *xml.Element) error {
	name, err := expandName(el, attrValue(el, "name"))
	if err != nil {
		return err
	}
	set := AttributeSet{
		Name: name,
	}
	if set.Use, err = expandNames(el, attrValue(el, "use-attribute-sets")); err != nil {
		return err
	}
	for _, n := range el.Nodes {
		if !isXsl(n, "attribute") {
			return fmt.Errorf("only xsl:attribute is allowed in attribute-set")
		}
		set.Attrs = append(set.Attrs, n.(*xml.Element))
	}
	s.attrSets[name] = append(s.attrSets[name], &set)
	return nil
}

func (s *Stylesheet) loadNamespaceAlias(el *xml.Element) error {
	lookup := func(prefix string) (xml.NS, error) {
		if prefix == "#default" {
			prefix = ""
		}
		uri, ok := el.LookupNamespace(prefix)
		if !ok {
			return xml.NS{}, fmt.Errorf("%s: undeclared namespace prefix", prefix)
		}
		return xml.NS{Prefix: prefix, Uri: uri}, nil
	}
	from, err := lookup(attrValue(el, "stylesheet-prefix"))
	if err != nil {
		return err
	}
	to, err := lookup(attrValue(el, "result-prefix"))
	if err != nil {
		return err
	}
	s.aliases[from.Uri] = to
	return nil
}

func (s *Stylesheet) loadOutput(el *xml.Element) error {
	return s.output.merge(el)
}

func documentURI(node xml.Node, fallback string) string {
	if doc := xml.Owner(node); doc != nil && doc.URI != "" {
		return doc.URI
	}
	return fallback
}

func xslName(name string) xml.QName {
	return xml.ExpandedName(name, xsltNamespacePrefix, xsltNamespaceUri)
}

func isXsl(node xml.Node, name string) bool {
	return node.Type() == xml.TypeElement && node.NamespaceURI() == xsltNamespaceUri && node.LocalName() == name
}

func attrValue(el *xml.Element, name string) string {
	a, ok := el.GetAttribute(name)
	if !ok {
		return ""
	}
	return a.Datum
}

func requireAttr(el *xml.Element, name string) (string, error) {
	a, ok := el.GetAttribute(name)
	if !ok {
		return "", fmt.Errorf("%s: missing required attribute", name)
	}
	return a.Datum, nil
}

// namespaces returns the prefixed namespaces in scope for el. The default
// namespace never applies to XPath names.
func namespaces(el *xml.Element) map[string]string {
	ns := make(map[string]string)
	for _, n := range el.InScopeNamespaces() {
		if n.Prefix == "" {
			continue
		}
		ns[n.Prefix] = n.Uri
	}
	return ns
}

// expandName resolves a QName used as the value of an attribute.
func expandName(el *xml.Element, name string) (string, error) {
	qn, err := xml.ParseName(strings.TrimSpace(name))
	if err != nil {
		return "", err
	}
	if qn.Space != "" {
		uri, ok := el.LookupNamespace(qn.Space)
		if !ok {
			return "", fmt.Errorf("%s: undeclared namespace prefix", qn.Space)
		}
		qn.Uri = uri
	}
	return qn.ExpandedName(), nil
}

func expandNames(el *xml.Element, names string) ([]string, error) {
	var list []string
	for _, n := range strings.Fields(names) {
		x, err := expandName(el, n)
		if err != nil {
			return nil, err
		}
		list = append(list, x)
	}
	return list, nil
}

// forwardsCompatible reports whether el belongs to a module whose version
// is not 1.0.
func forwardsCompatible(el xml.Node) bool {
	for node := el; node != nil; node = node.Parent() {
		e, ok := node.(*xml.Element)
		if !ok {
			continue
		}
		var version string
		if isXsl(e, "stylesheet") || isXsl(e, "transform") {
			version = attrValue(e, "version")
		} else if a, ok := e.GetAttributeNS(xslName("version")); ok {
			version = a.Datum
		} else {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(version), 64)
		return err != nil || v != 1.0
	}
	return false
}
