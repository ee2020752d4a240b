package xpath

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

type Position struct {
	Line   int
	Column int
}

const (
	kwAnd = "and"
	kwOr  = "or"
	kwDiv = "div"
	kwMod = "mod"
)

const (
	EOF rune = -(1 + iota)
	Name
	Literal
	Digit
	Invalid
)

const (
	currNode = -(iota + 1000)
	parentNode
	attrNode
	variable
	axisName
	currLevel
	anyLevel
	begPred
	endPred
	begGrp
	endGrp
	comma
	wildcard
	opUnion
	opAdd
	opSub
	opMul
	opDiv
	opMod
	opEq
	opNe
	opGt
	opGe
	opLt
	opLe
	opAnd
	opOr
)

type Token struct {
	Literal string
	Type    rune
	Offset  int
}

func (t Token) String() string {
	switch t.Type {
	case EOF:
		return "<eof>"
	case Name:
		return "<name(" + t.Literal + ")>"
	case Literal:
		return "<literal(" + t.Literal + ")>"
	case Digit:
		return "<number(" + t.Literal + ")>"
	case variable:
		return "<variable(" + t.Literal + ")>"
	case axisName:
		return "<axis(" + t.Literal + ")>"
	case Invalid:
		return "<invalid(" + t.Literal + ")>"
	default:
		if t.Literal != "" {
			return "<" + t.Literal + ">"
		}
		return "<punct>"
	}
}

// Scanner splits an XPath 1.0 expression into tokens, applying the lexical
// disambiguation rules of the recommendation: '*' and the operator names are
// operators only when they follow a token that can end an operand.
type Scanner struct {
	input string
	pos   int
	last  rune
}

func Scan(str string) *Scanner {
	return &Scanner{
		input: str,
		last:  Invalid,
	}
}

func (s *Scanner) Scan() Token {
	s.skipBlank()
	var tok Token
	tok.Offset = s.pos
	if s.pos >= len(s.input) {
		tok.Type = EOF
		return tok
	}
	c, size := utf8.DecodeRuneInString(s.input[s.pos:])
	switch {
	case c == '"' || c == '\'':
		s.scanLiteral(c, &tok)
	case isDigit(c) || (c == '.' && isDigit(s.peekAt(1))):
		s.scanNumber(&tok)
	case c == '$':
		s.pos += size
		tok.Type = variable
		tok.Literal = s.scanQName()
		if tok.Literal == "" {
			tok.Type = Invalid
		}
	case isNameStart(c):
		s.scanName(&tok)
	default:
		s.scanPunct(c, &tok)
	}
	s.last = tok.Type
	return tok
}

func (s *Scanner) operatorContext() bool {
	switch s.last {
	case Invalid, attrNode, axisName, begGrp, begPred, comma,
		opUnion, opAdd, opSub, opMul, opDiv, opMod, opEq, opNe,
		opGt, opGe, opLt, opLe, opAnd, opOr, currLevel, anyLevel:
		return false
	default:
		return true
	}
}

func (s *Scanner) scanName(tok *Token) {
	name := s.scanQName()
	if s.operatorContext() {
		switch name {
		case kwAnd:
			tok.Type, tok.Literal = opAnd, name
			return
		case kwOr:
			tok.Type, tok.Literal = opOr, name
			return
		case kwDiv:
			tok.Type, tok.Literal = opDiv, name
			return
		case kwMod:
			tok.Type, tok.Literal = opMod, name
			return
		}
	}
	tok.Literal = name
	tok.Type = Name
	save := s.pos
	s.skipBlank()
	if strings.HasPrefix(s.input[s.pos:], "::") {
		s.pos += 2
		tok.Type = axisName
		return
	}
	s.pos = save
}

func (s *Scanner) scanQName() string {
	start := s.pos
	s.scanNCName()
	if s.pos == start {
		return ""
	}
	if s.peekAt(0) == ':' && s.peekAt(1) != ':' {
		next := s.peekAt(1)
		if next == '*' {
			s.pos += 2
		} else if isNameStart(next) {
			s.pos++
			s.scanNCName()
		}
	}
	return s.input[start:s.pos]
}

func (s *Scanner) scanNCName() {
	for s.pos < len(s.input) {
		c, size := utf8.DecodeRuneInString(s.input[s.pos:])
		if !isNameChar(c) {
			break
		}
		s.pos += size
	}
}

func (s *Scanner) scanLiteral(quote rune, tok *Token) {
	s.pos++
	end := strings.IndexRune(s.input[s.pos:], quote)
	if end < 0 {
		tok.Type = Invalid
		tok.Literal = s.input[s.pos-1:]
		s.pos = len(s.input)
		return
	}
	tok.Type = Literal
	tok.Literal = s.input[s.pos : s.pos+end]
	s.pos += end + 1
}

func (s *Scanner) scanNumber(tok *Token) {
	start := s.pos
	for s.pos < len(s.input) && isDigit(rune(s.input[s.pos])) {
		s.pos++
	}
	if s.pos < len(s.input) && s.input[s.pos] == '.' {
		s.pos++
		for s.pos < len(s.input) && isDigit(rune(s.input[s.pos])) {
			s.pos++
		}
	}
	tok.Type = Digit
	tok.Literal = s.input[start:s.pos]
}

func (s *Scanner) scanPunct(c rune, tok *Token) {
	next := s.peekAt(1)
	s.pos++
	tok.Literal = string(c)
	switch c {
	case '.':
		tok.Type = currNode
		if next == '.' {
			s.pos++
			tok.Type = parentNode
			tok.Literal = ".."
		}
	case '@':
		tok.Type = attrNode
	case '/':
		tok.Type = currLevel
		if next == '/' {
			s.pos++
			tok.Type = anyLevel
			tok.Literal = "//"
		}
	case '[':
		tok.Type = begPred
	case ']':
		tok.Type = endPred
	case '(':
		tok.Type = begGrp
	case ')':
		tok.Type = endGrp
	case ',':
		tok.Type = comma
	case '|':
		tok.Type = opUnion
	case '+':
		tok.Type = opAdd
	case '-':
		tok.Type = opSub
	case '*':
		if s.operatorContext() {
			tok.Type = opMul
		} else {
			tok.Type = wildcard
		}
	case '=':
		tok.Type = opEq
	case '!':
		if next != '=' {
			tok.Type = Invalid
			break
		}
		s.pos++
		tok.Type = opNe
		tok.Literal = "!="
	case '<':
		tok.Type = opLt
		if next == '=' {
			s.pos++
			tok.Type = opLe
			tok.Literal = "<="
		}
	case '>':
		tok.Type = opGt
		if next == '=' {
			s.pos++
			tok.Type = opGe
			tok.Literal = ">="
		}
	default:
		tok.Type = Invalid
		_, size := utf8.DecodeRuneInString(s.input[s.pos-1:])
		s.pos += size - 1
		tok.Literal = s.input[s.pos-size : s.pos]
	}
}

func (s *Scanner) peekAt(n int) rune {
	if s.pos+n >= len(s.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(s.input[s.pos+n:])
	return r
}

func (s *Scanner) skipBlank() {
	for s.pos < len(s.input) {
		c := s.input[s.pos]
		if c != ' ' && c != '\t' && c != '\n' && c != '\r' {
			break
		}
		s.pos++
	}
}

func isDigit(c rune) bool {
	return c >= '0' && c <= '9'
}

func isNameStart(c rune) bool {
	return c == '_' || unicode.IsLetter(c)
}

func isNameChar(c rune) bool {
	return isNameStart(c) || isDigit(c) || c == '-' || c == '.' || unicode.In(c, unicode.Mn, unicode.Mc, unicode.Nd)
}
