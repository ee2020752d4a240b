package xpath

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/midbel/xslchain/xml"
)

var ErrSyntax = errors.New("syntax error")

type SyntaxError struct {
	Expr   string
	Offset int
	Cause  string
}

func (e SyntaxError) Error() string {
	return fmt.Sprintf("%s at offset %d: %s", e.Expr, e.Offset, e.Cause)
}

func (e SyntaxError) Unwrap() error {
	return ErrSyntax
}

const (
	powLowest int = iota
	powOr
	powAnd
	powEq
	powCmp
	powAdd
	powMul
	powPrefix
	powUnion
	powStep
	powPred
)

var bindings = map[rune]int{
	opOr:      powOr,
	opAnd:     powAnd,
	opEq:      powEq,
	opNe:      powEq,
	opLt:      powCmp,
	opLe:      powCmp,
	opGt:      powCmp,
	opGe:      powCmp,
	opAdd:     powAdd,
	opSub:     powAdd,
	opMul:     powMul,
	opDiv:     powMul,
	opMod:     powMul,
	opUnion:   powUnion,
	currLevel: powStep,
	anyLevel:  powStep,
	begPred:   powPred,
}

// Compiler turns an expression into an evaluable tree. Namespaces maps the
// prefixes usable in name tests, function names and variable references.
type Compiler struct {
	scan *Scanner
	curr Token
	peek Token
	expr string

	Namespaces map[string]string

	infix  map[rune]func(Expr) (Expr, error)
	prefix map[rune]func() (Expr, error)
}

func NewCompiler(namespaces map[string]string) *Compiler {
	c := &Compiler{
		Namespaces: namespaces,
	}
	c.prefix = map[rune]func() (Expr, error){
		Literal:    c.compileLiteral,
		Digit:      c.compileNumber,
		variable:   c.compileVariable,
		begGrp:     c.compileGroup,
		opSub:      c.compileReverse,
		currLevel:  c.compileRoot,
		anyLevel:   c.compileDescendantRoot,
		Name:       c.compileName,
		axisName:   c.compileAxis,
		attrNode:   c.compileAttr,
		wildcard:   c.compileWildcard,
		currNode:   c.compileCurrent,
		parentNode: c.compileParent,
	}
	c.infix = map[rune]func(Expr) (Expr, error){
		opOr:      c.compileBinary,
		opAnd:     c.compileBinary,
		opEq:      c.compileBinary,
		opNe:      c.compileBinary,
		opLt:      c.compileBinary,
		opLe:      c.compileBinary,
		opGt:      c.compileBinary,
		opGe:      c.compileBinary,
		opAdd:     c.compileBinary,
		opSub:     c.compileBinary,
		opMul:     c.compileBinary,
		opDiv:     c.compileBinary,
		opMod:     c.compileBinary,
		opUnion:   c.compileUnion,
		currLevel: c.compileStep,
		anyLevel:  c.compileDescendantStep,
		begPred:   c.compileFilter,
	}
	return c
}

func (c *Compiler) Compile(expr string) (*Query, error) {
	c.expr = expr
	c.scan = Scan(expr)
	c.next()
	c.next()
	if c.done() {
		return nil, c.syntaxError("empty expression")
	}
	e, err := c.compileExpr(powLowest)
	if err != nil {
		return nil, err
	}
	if !c.done() {
		return nil, c.unexpected()
	}
	q := Query{
		expr:   e,
		Source: expr,
	}
	return &q, nil
}

func Compile(expr string) (*Query, error) {
	return NewCompiler(nil).Compile(expr)
}

// CompileWith compiles expr resolving prefixes with namespaces.
func CompileWith(expr string, namespaces map[string]string) (*Query, error) {
	return NewCompiler(namespaces).Compile(expr)
}

func (c *Compiler) compileExpr(pow int) (Expr, error) {
	fn, ok := c.prefix[c.curr.Type]
	if !ok {
		return nil, c.unexpected()
	}
	left, err := fn()
	if err != nil {
		return nil, err
	}
	for !c.done() && pow < c.power() {
		fn, ok := c.infix[c.curr.Type]
		if !ok {
			return nil, c.unexpected()
		}
		left, err = fn(left)
		if err != nil {
			return nil, err
		}
	}
	return left, nil
}

func (c *Compiler) compileBinary(left Expr) (Expr, error) {
	bin := binary{
		left: left,
		op:   c.curr.Type,
	}
	pow := c.power()
	c.next()
	right, err := c.compileExpr(pow)
	if err != nil {
		return nil, err
	}
	bin.right = right
	return bin, nil
}

func (c *Compiler) compileUnion(left Expr) (Expr, error) {
	c.next()
	right, err := c.compileExpr(powUnion)
	if err != nil {
		return nil, err
	}
	u := union{
		all: []Expr{left},
	}
	if x, ok := right.(union); ok {
		u.all = append(u.all, x.all...)
	} else {
		u.all = append(u.all, right)
	}
	return u, nil
}

func (c *Compiler) compileStep(left Expr) (Expr, error) {
	c.next()
	right, err := c.compileRelativeStep()
	if err != nil {
		return nil, err
	}
	s := step{
		left:  left,
		right: right,
	}
	return s, nil
}

func (c *Compiler) compileDescendantStep(left Expr) (Expr, error) {
	c.next()
	right, err := c.compileRelativeStep()
	if err != nil {
		return nil, err
	}
	s := step{
		left: step{
			left:  left,
			right: descendantOrSelf(),
		},
		right: right,
	}
	return s, nil
}

func (c *Compiler) compileRelativeStep() (Expr, error) {
	if !c.startStep() {
		return nil, c.unexpected()
	}
	return c.compileExpr(powStep)
}

func (c *Compiler) compileFilter(left Expr) (Expr, error) {
	var preds []Expr
	for c.is(begPred) {
		c.next()
		p, err := c.compileExpr(powLowest)
		if err != nil {
			return nil, err
		}
		if !c.is(endPred) {
			return nil, c.syntaxError("missing closing ']'")
		}
		c.next()
		preds = append(preds, p)
	}
	if s, ok := left.(axisStep); ok {
		s.preds = append(s.preds, preds...)
		return s, nil
	}
	f := filter{
		expr:  left,
		preds: preds,
	}
	return f, nil
}

func (c *Compiler) compileRoot() (Expr, error) {
	c.next()
	if !c.startStep() {
		return root{}, nil
	}
	right, err := c.compileExpr(powStep)
	if err != nil {
		return nil, err
	}
	s := step{
		left:  root{},
		right: right,
	}
	return s, nil
}

func (c *Compiler) compileDescendantRoot() (Expr, error) {
	c.next()
	if !c.startStep() {
		return nil, c.unexpected()
	}
	right, err := c.compileExpr(powStep)
	if err != nil {
		return nil, err
	}
	s := step{
		left: step{
			left:  root{},
			right: descendantOrSelf(),
		},
		right: right,
	}
	return s, nil
}

func (c *Compiler) compileReverse() (Expr, error) {
	c.next()
	right, err := c.compileExpr(powPrefix)
	if err != nil {
		return nil, err
	}
	return reverse{expr: right}, nil
}

func (c *Compiler) compileGroup() (Expr, error) {
	c.next()
	expr, err := c.compileExpr(powLowest)
	if err != nil {
		return nil, err
	}
	if !c.is(endGrp) {
		return nil, c.syntaxError("missing closing ')'")
	}
	c.next()
	return group{expr: expr}, nil
}

func (c *Compiler) compileLiteral() (Expr, error) {
	defer c.next()
	return literal{expr: c.curr.Literal}, nil
}

func (c *Compiler) compileNumber() (Expr, error) {
	defer c.next()
	f, err := strconv.ParseFloat(c.curr.Literal, 64)
	if err != nil {
		return nil, c.syntaxError(fmt.Sprintf("%s: invalid number", c.curr.Literal))
	}
	return number{expr: f}, nil
}

func (c *Compiler) compileVariable() (Expr, error) {
	defer c.next()
	qn, err := c.resolveName(c.curr.Literal)
	if err != nil {
		return nil, err
	}
	return identifier{ident: qn.ExpandedName()}, nil
}

func (c *Compiler) compileName() (Expr, error) {
	if c.peek.Type == begGrp {
		if kind, ok := nodeTypes[c.curr.Literal]; ok {
			test, err := c.compileTypeTest(kind)
			if err != nil {
				return nil, err
			}
			return c.createStep(axisChild, test), nil
		}
		return c.compileCall()
	}
	test, err := c.compileNameTest()
	if err != nil {
		return nil, err
	}
	return c.createStep(axisChild, test), nil
}

func (c *Compiler) compileAxis() (Expr, error) {
	axis := c.curr.Literal
	if !isAxis(axis) {
		return nil, c.syntaxError(fmt.Sprintf("%s: unknown axis", axis))
	}
	c.next()
	test, err := c.compileNodeTest()
	if err != nil {
		return nil, err
	}
	return c.createStep(axis, test), nil
}

func (c *Compiler) compileAttr() (Expr, error) {
	c.next()
	test, err := c.compileNodeTest()
	if err != nil {
		return nil, err
	}
	return c.createStep(axisAttribute, test), nil
}

func (c *Compiler) compileWildcard() (Expr, error) {
	c.next()
	return c.createStep(axisChild, nameTest{any: true}), nil
}

func (c *Compiler) compileCurrent() (Expr, error) {
	c.next()
	return c.createStep(axisSelf, typeTest{kind: xml.TypeNode}), nil
}

func (c *Compiler) compileParent() (Expr, error) {
	c.next()
	return c.createStep(axisParent, typeTest{kind: xml.TypeNode}), nil
}

func (c *Compiler) createStep(axis string, test nodeTest) Expr {
	return axisStep{
		axis: axis,
		test: test,
	}
}

func (c *Compiler) compileNodeTest() (nodeTest, error) {
	switch {
	case c.is(wildcard):
		c.next()
		return nameTest{any: true}, nil
	case c.is(Name) && c.peek.Type == begGrp:
		kind, ok := nodeTypes[c.curr.Literal]
		if !ok {
			return nil, c.syntaxError(fmt.Sprintf("%s: node type expected", c.curr.Literal))
		}
		return c.compileTypeTest(kind)
	case c.is(Name):
		return c.compileNameTest()
	default:
		return nil, c.unexpected()
	}
}

func (c *Compiler) compileNameTest() (nodeTest, error) {
	defer c.next()
	name := c.curr.Literal
	if prefix, ok := strings.CutSuffix(name, ":*"); ok {
		uri, err := c.resolvePrefix(prefix)
		if err != nil {
			return nil, err
		}
		test := nameTest{
			QName:   xml.QName{Space: prefix, Uri: uri},
			anyName: true,
		}
		return test, nil
	}
	qn, err := c.resolveName(name)
	if err != nil {
		return nil, err
	}
	return nameTest{QName: qn}, nil
}

func (c *Compiler) compileTypeTest(kind xml.NodeType) (nodeTest, error) {
	c.next()
	c.next()
	test := typeTest{
		kind: kind,
	}
	if kind == xml.TypeInstruction && c.is(Literal) {
		test.target = c.curr.Literal
		test.named = true
		c.next()
	}
	if !c.is(endGrp) {
		return nil, c.syntaxError("missing closing ')'")
	}
	c.next()
	return test, nil
}

func (c *Compiler) compileCall() (Expr, error) {
	qn, err := c.resolveName(c.curr.Literal)
	if err != nil {
		return nil, err
	}
	fn := call{
		ident: qn.ExpandedName(),
	}
	c.next()
	c.next()
	for !c.done() && !c.is(endGrp) {
		arg, err := c.compileExpr(powLowest)
		if err != nil {
			return nil, err
		}
		fn.args = append(fn.args, arg)
		switch {
		case c.is(comma):
			c.next()
			if c.is(endGrp) {
				return nil, c.unexpected()
			}
		case c.is(endGrp):
		default:
			return nil, c.unexpected()
		}
	}
	if !c.is(endGrp) {
		return nil, c.syntaxError("missing closing ')'")
	}
	c.next()
	return fn, nil
}

func (c *Compiler) resolveName(name string) (xml.QName, error) {
	qn, err := xml.ParseName(name)
	if err != nil {
		return qn, c.syntaxError(err.Error())
	}
	if qn.Space != "" {
		qn.Uri, err = c.resolvePrefix(qn.Space)
	}
	return qn, err
}

func (c *Compiler) resolvePrefix(prefix string) (string, error) {
	if prefix == "xml" {
		return xml.NamespaceXML, nil
	}
	uri, ok := c.Namespaces[prefix]
	if !ok || uri == "" {
		return "", c.syntaxError(fmt.Sprintf("%s: undeclared namespace prefix", prefix))
	}
	return uri, nil
}

func (c *Compiler) startStep() bool {
	switch c.curr.Type {
	case Name:
		_, ok := nodeTypes[c.curr.Literal]
		return c.peek.Type != begGrp || ok
	case axisName, attrNode, wildcard, currNode, parentNode:
		return true
	default:
		return false
	}
}

func (c *Compiler) power() int {
	return bindings[c.curr.Type]
}

func (c *Compiler) is(kind rune) bool {
	return c.curr.Type == kind
}

func (c *Compiler) done() bool {
	return c.is(EOF)
}

func (c *Compiler) next() {
	c.curr = c.peek
	c.peek = c.scan.Scan()
}

func (c *Compiler) unexpected() error {
	if c.is(Invalid) {
		return c.syntaxError(fmt.Sprintf("invalid token %q", c.curr.Literal))
	}
	return c.syntaxError(fmt.Sprintf("unexpected token %s", c.curr))
}

func (c *Compiler) syntaxError(cause string) error {
	return SyntaxError{
		Expr:   c.expr,
		Offset: c.curr.Offset,
		Cause:  cause,
	}
}

var nodeTypes = map[string]xml.NodeType{
	"node":                   xml.TypeNode,
	"text":                   xml.TypeText,
	"comment":                xml.TypeComment,
	"processing-instruction": xml.TypeInstruction,
}
