package xml

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"
)

type NodeType int8

const (
	TypeDocument NodeType = 1 << iota
	TypeElement
	TypeComment
	TypeAttribute
	TypeInstruction
	TypeText
)

const TypeNode = TypeDocument | TypeElement | TypeComment | TypeAttribute | TypeInstruction | TypeText

func (n NodeType) String() string {
	switch n {
	default:
		return "<>"
	case TypeDocument:
		return "document"
	case TypeElement:
		return "element"
	case TypeComment:
		return "comment"
	case TypeAttribute:
		return "attribute"
	case TypeInstruction:
		return "pi"
	case TypeText:
		return "text"
	case TypeNode:
		return "node"
	}
}

const (
	NamespaceXML   = "http://www.w3.org/XML/1998/namespace"
	NamespaceXMLNS = "http://www.w3.org/2000/xmlns/"
)

var ErrElement = errors.New("element expected")

type Node interface {
	Type() NodeType
	LocalName() string
	QualifiedName() string
	NamespaceURI() string
	Position() int
	Parent() Node
	Value() string
	Identity() string

	setParent(Node)
	setPosition(int)
	path() []int
}

// Container is implemented by the nodes that can have children: documents
// and elements.
type Container interface {
	Node
	Children() []Node
	Append(Node)
}

type Cloner interface {
	Clone() Node
}

type NS struct {
	Prefix string
	Uri    string
}

func (n NS) Default() bool {
	return n.Prefix == ""
}

type QName struct {
	Uri   string
	Space string
	Name  string
}

func ParseName(name string) (QName, error) {
	var (
		qn QName
		ok bool
	)
	qn.Space, qn.Name, ok = strings.Cut(name, ":")
	if !ok {
		qn.Name, qn.Space = qn.Space, ""
	}
	if ok && (qn.Space == "" || qn.Name == "") {
		return qn, fmt.Errorf("%s: invalid qualified name", name)
	}
	if !isName(qn.Name) || strings.Contains(qn.Name, ":") || (qn.Space != "" && !isName(qn.Space)) {
		return qn, fmt.Errorf("%s: invalid qualified name", name)
	}
	return qn, nil
}

func ExpandedName(name, space, uri string) QName {
	return QName{
		Name:  name,
		Space: space,
		Uri:   uri,
	}
}

func LocalName(name string) QName {
	return ExpandedName(name, "", "")
}

func QualifiedName(name, space string) QName {
	return ExpandedName(name, space, "")
}

func (q QName) Zero() bool {
	return q.Space == "" && q.Name == ""
}

// Equal compares expanded names: the prefix is irrelevant.
func (q QName) Equal(other QName) bool {
	return q.Uri == other.Uri && q.Name == other.Name
}

func (q QName) LocalName() string {
	return q.Name
}

func (q QName) NamespaceURI() string {
	return q.Uri
}

func (q QName) ExpandedName() string {
	if q.Uri == "" {
		return q.LocalName()
	}
	return fmt.Sprintf("{%s}%s", q.Uri, q.Name)
}

func (q QName) QualifiedName() string {
	if q.Space == "" {
		return q.LocalName()
	}
	return fmt.Sprintf("%s:%s", q.Space, q.Name)
}

func (q QName) String() string {
	return q.QualifiedName()
}

var serial atomic.Int64

type DocType struct {
	Name     string
	PublicID string
	SystemID string
	Subset   string

	Decls *Declarations
}

type Document struct {
	Version    string
	Encoding   string
	Standalone string
	URI        string
	DocType    *DocType

	Nodes  []Node
	serial int64
}

func NewDocument(root Node) *Document {
	doc := EmptyDocument()
	if root != nil {
		doc.Append(root)
	}
	return doc
}

func EmptyDocument() *Document {
	return &Document{
		Version:  SupportedVersion,
		Encoding: SupportedEncoding,
		serial:   serial.Add(1),
	}
}

func (d *Document) Root() *Element {
	for _, n := range d.Nodes {
		if e, ok := n.(*Element); ok {
			return e
		}
	}
	return nil
}

func (d *Document) Append(node Node) {
	d.Nodes = appendNode(d, d.Nodes, node)
}

func (d *Document) Children() []Node {
	return d.Nodes
}

func (_ *Document) Type() NodeType {
	return TypeDocument
}

func (_ *Document) LocalName() string {
	return ""
}

func (_ *Document) QualifiedName() string {
	return ""
}

func (_ *Document) NamespaceURI() string {
	return ""
}

func (_ *Document) Position() int {
	return 0
}

func (_ *Document) Parent() Node {
	return nil
}

func (d *Document) Value() string {
	return textValue(d.Nodes)
}

func (d *Document) Identity() string {
	return fmt.Sprintf("document[%d]", d.serial)
}

func (d *Document) Clone() Node {
	c := *d
	c.Nodes = nil
	c.serial = serial.Add(1)
	for _, n := range d.Nodes {
		c.Append(CloneNode(n))
	}
	return &c
}

func (_ *Document) setParent(_ Node) {}

func (_ *Document) setPosition(_ int) {}

func (_ *Document) path() []int {
	return nil
}

type Attribute struct {
	QName
	Datum string

	parent   Node
	position int
}

func NewAttribute(name QName, value string) *Attribute {
	return &Attribute{
		QName: name,
		Datum: value,
	}
}

func (_ *Attribute) Type() NodeType {
	return TypeAttribute
}

func (a *Attribute) Position() int {
	return a.position
}

func (a *Attribute) Parent() Node {
	return a.parent
}

func (a *Attribute) Value() string {
	return a.Datum
}

func (a *Attribute) Identity() string {
	return fmt.Sprintf("attr(%s)[%s]", a.QualifiedName(), joinPath(a.path()))
}

func (a *Attribute) Clone() Node {
	return NewAttribute(a.QName, a.Datum)
}

// attributes sort after their element and before its children, hence the
// negative step relative to the number of attributes of the parent.
func (a *Attribute) path() []int {
	if a.parent == nil {
		return []int{a.position}
	}
	size := 0
	if e, ok := a.parent.(*Element); ok {
		size = len(e.Attrs)
	}
	return append(a.parent.path(), a.position-size)
}

func (a *Attribute) setParent(node Node) {
	a.parent = node
}

func (a *Attribute) setPosition(pos int) {
	a.position = pos
}

type Element struct {
	QName
	Attrs      []*Attribute
	Nodes      []Node
	Namespaces []NS

	parent   Node
	position int
}

func NewElement(name QName) *Element {
	return &Element{
		QName: name,
	}
}

func (_ *Element) Type() NodeType {
	return TypeElement
}

func (e *Element) Children() []Node {
	return e.Nodes
}

func (e *Element) Append(node Node) {
	if a, ok := node.(*Attribute); ok {
		e.SetAttribute(a)
		return
	}
	e.Nodes = appendNode(e, e.Nodes, node)
}

func (e *Element) Position() int {
	return e.position
}

func (e *Element) Parent() Node {
	return e.parent
}

func (e *Element) Value() string {
	return textValue(e.Nodes)
}

func (e *Element) Identity() string {
	return fmt.Sprintf("element(%s)[%s]", e.QualifiedName(), joinPath(e.path()))
}

func (e *Element) Empty() bool {
	return len(e.Nodes) == 0
}

// DeclareNamespace records a namespace declaration on e, replacing any
// previous declaration of the same prefix.
func (e *Element) DeclareNamespace(prefix, uri string) {
	ix := slices.IndexFunc(e.Namespaces, func(n NS) bool {
		return n.Prefix == prefix
	})
	if ix >= 0 {
		e.Namespaces[ix].Uri = uri
		return
	}
	e.Namespaces = append(e.Namespaces, NS{Prefix: prefix, Uri: uri})
}

// LookupNamespace resolves prefix against the declarations in scope for e.
func (e *Element) LookupNamespace(prefix string) (string, bool) {
	switch prefix {
	case "xml":
		return NamespaceXML, true
	case "xmlns":
		return NamespaceXMLNS, true
	}
	var node Node = e
	for node != nil {
		el, ok := node.(*Element)
		if !ok {
			break
		}
		for _, n := range el.Namespaces {
			if n.Prefix == prefix {
				return n.Uri, n.Uri != "" || prefix == ""
			}
		}
		node = el.parent
	}
	if prefix == "" {
		return "", true
	}
	return "", false
}

// InScopeNamespaces returns all the namespaces visible from e, the closest
// declaration winning.
func (e *Element) InScopeNamespaces() []NS {
	var (
		list []NS
		seen = make(map[string]struct{})
	)
	var node Node = e
	for node != nil {
		el, ok := node.(*Element)
		if !ok {
			break
		}
		for _, n := range el.Namespaces {
			if _, ok := seen[n.Prefix]; ok {
				continue
			}
			seen[n.Prefix] = struct{}{}
			if n.Uri != "" {
				list = append(list, n)
			}
		}
		node = el.parent
	}
	return list
}

func (e *Element) Attributes() []*Attribute {
	return e.Attrs
}

func (e *Element) GetAttribute(name string) (*Attribute, bool) {
	for _, a := range e.Attrs {
		if a.QualifiedName() == name {
			return a, true
		}
	}
	return nil, false
}

// GetAttributeNS finds an attribute by its expanded name.
func (e *Element) GetAttributeNS(name QName) (*Attribute, bool) {
	for _, a := range e.Attrs {
		if a.QName.Equal(name) {
			return a, true
		}
	}
	return nil, false
}

func (e *Element) SetAttribute(attr *Attribute) {
	for i, a := range e.Attrs {
		if a.QName.Equal(attr.QName) {
			attr.setParent(e)
			attr.setPosition(i)
			e.Attrs[i] = attr
			return
		}
	}
	attr.setParent(e)
	attr.setPosition(len(e.Attrs))
	e.Attrs = append(e.Attrs, attr)
}

func (e *Element) RemoveAttribute(name QName) {
	e.Attrs = slices.DeleteFunc(e.Attrs, func(a *Attribute) bool {
		return a.QName.Equal(name)
	})
	for i := range e.Attrs {
		e.Attrs[i].setPosition(i)
	}
}

// Copy returns a detached copy of e with its attributes and namespaces but
// without its children.
func (e *Element) Copy() *Element {
	c := NewElement(e.QName)
	c.Namespaces = slices.Clone(e.Namespaces)
	for _, a := range e.Attrs {
		c.SetAttribute(NewAttribute(a.QName, a.Datum))
	}
	return c
}

func (e *Element) Clone() Node {
	c := e.Copy()
	for _, n := range e.Nodes {
		c.Append(CloneNode(n))
	}
	return c
}

func (e *Element) path() []int {
	if e.parent == nil {
		return []int{e.position}
	}
	return append(e.parent.path(), e.position)
}

func (e *Element) setPosition(pos int) {
	e.position = pos
}

func (e *Element) setParent(parent Node) {
	e.parent = parent
}

type Instruction struct {
	Name    string
	Content string

	parent   Node
	position int
}

func NewInstruction(name, content string) *Instruction {
	return &Instruction{
		Name:    name,
		Content: content,
	}
}

func (_ *Instruction) Type() NodeType {
	return TypeInstruction
}

func (i *Instruction) LocalName() string {
	return i.Name
}

func (i *Instruction) QualifiedName() string {
	return i.Name
}

func (_ *Instruction) NamespaceURI() string {
	return ""
}

func (i *Instruction) Value() string {
	return i.Content
}

func (i *Instruction) Position() int {
	return i.position
}

func (i *Instruction) Parent() Node {
	return i.parent
}

func (i *Instruction) Identity() string {
	return fmt.Sprintf("pi(%s)[%s]", i.Name, joinPath(i.path()))
}

func (i *Instruction) Clone() Node {
	return NewInstruction(i.Name, i.Content)
}

func (i *Instruction) path() []int {
	if i.parent == nil {
		return []int{i.position}
	}
	return append(i.parent.path(), i.position)
}

func (i *Instruction) setPosition(pos int) {
	i.position = pos
}

func (i *Instruction) setParent(parent Node) {
	i.parent = parent
}

type Text struct {
	Content string
	CData   bool

	parent   Node
	position int
}

func NewText(text string) *Text {
	return &Text{
		Content: text,
	}
}

func NewCharacterData(chardata string) *Text {
	return &Text{
		Content: chardata,
		CData:   true,
	}
}

func (_ *Text) Type() NodeType {
	return TypeText
}

func (_ *Text) LocalName() string {
	return ""
}

func (_ *Text) QualifiedName() string {
	return ""
}

func (_ *Text) NamespaceURI() string {
	return ""
}

func (t *Text) Value() string {
	return t.Content
}

func (t *Text) Position() int {
	return t.position
}

func (t *Text) Parent() Node {
	return t.parent
}

func (t *Text) Identity() string {
	return fmt.Sprintf("text[%s]", joinPath(t.path()))
}

func (t *Text) Clone() Node {
	return &Text{
		Content: t.Content,
		CData:   t.CData,
	}
}

func (t *Text) path() []int {
	if t.parent == nil {
		return []int{t.position}
	}
	return append(t.parent.path(), t.position)
}

func (t *Text) setPosition(pos int) {
	t.position = pos
}

func (t *Text) setParent(parent Node) {
	t.parent = parent
}

type Comment struct {
	Content string

	parent   Node
	position int
}

func NewComment(comment string) *Comment {
	return &Comment{
		Content: comment,
	}
}

func (_ *Comment) Type() NodeType {
	return TypeComment
}

func (_ *Comment) LocalName() string {
	return ""
}

func (_ *Comment) QualifiedName() string {
	return ""
}

func (_ *Comment) NamespaceURI() string {
	return ""
}

func (c *Comment) Value() string {
	return c.Content
}

func (c *Comment) Position() int {
	return c.position
}

func (c *Comment) Parent() Node {
	return c.parent
}

func (c *Comment) Identity() string {
	return fmt.Sprintf("comment[%s]", joinPath(c.path()))
}

func (c *Comment) Clone() Node {
	return NewComment(c.Content)
}

func (c *Comment) path() []int {
	if c.parent == nil {
		return []int{c.position}
	}
	return append(c.parent.path(), c.position)
}

func (c *Comment) setPosition(pos int) {
	c.position = pos
}

func (c *Comment) setParent(parent Node) {
	c.parent = parent
}

// CloneNode returns a deep, detached copy of node.
func CloneNode(node Node) Node {
	if c, ok := node.(Cloner); ok {
		return c.Clone()
	}
	return node
}

// Owner returns the document node at the top of the tree node belongs to,
// or nil for a detached tree.
func Owner(node Node) *Document {
	top := TopOf(node)
	doc, _ := top.(*Document)
	return doc
}

// TopOf returns the outermost ancestor of node, node itself if it has no
// parent.
func TopOf(node Node) Node {
	for node != nil {
		p := node.Parent()
		if p == nil {
			break
		}
		node = p
	}
	return node
}

// Compare orders nodes in document order. Nodes from different trees are
// ordered by the creation order of their documents.
func Compare(left, right Node) int {
	if left == right {
		return 0
	}
	l, r := TopOf(left), TopOf(right)
	if l != r {
		var ls, rs int64
		if d, ok := l.(*Document); ok {
			ls = d.serial
		}
		if d, ok := r.(*Document); ok {
			rs = d.serial
		}
		if ls != rs {
			if ls < rs {
				return -1
			}
			return 1
		}
		return strings.Compare(l.Identity(), r.Identity())
	}
	p1, p2 := left.path(), right.path()
	for i := 0; i < len(p1) && i < len(p2); i++ {
		if p1[i] < p2[i] {
			return -1
		} else if p1[i] > p2[i] {
			return 1
		}
	}
	switch {
	case len(p1) < len(p2):
		return -1
	case len(p1) > len(p2):
		return 1
	default:
		return 0
	}
}

func Before(left, right Node) bool {
	return Compare(left, right) < 0
}

func appendNode(parent Node, list []Node, node Node) []Node {
	if node == nil {
		return list
	}
	if d, ok := node.(*Document); ok {
		for _, n := range slices.Clone(d.Nodes) {
			list = appendNode(parent, list, n)
		}
		return list
	}
	if t, ok := node.(*Text); ok {
		if t.Content == "" {
			return list
		}
		if n := len(list); n > 0 {
			if prev, ok := list[n-1].(*Text); ok {
				prev.Content += t.Content
				prev.CData = prev.CData && t.CData
				return list
			}
		}
	}
	node.setParent(parent)
	node.setPosition(len(list))
	return append(list, node)
}

func textValue(nodes []Node) string {
	var str strings.Builder
	for _, n := range nodes {
		switch n := n.(type) {
		case *Text:
			str.WriteString(n.Content)
		case *Element:
			str.WriteString(n.Value())
		}
	}
	return str.String()
}

func joinPath(path []int) string {
	list := make([]string, 0, len(path))
	for _, p := range path {
		list = append(list, strconv.Itoa(p))
	}
	return strings.Join(list, "/")
}
