package alpha

import (
	"errors"
	"io"
	"strings"
	"unicode/utf8"
)

// Namer produces a finite sequence of distinct names. Next returns io.EOF
// once the sequence is exhausted.
type Namer interface {
	Next() (string, error)
	Reset()
}

const (
	lowerA  = 'a'
	lowerZ  = 'z'
	upperA  = 'A'
	upperZ  = 'Z'
	number0 = '0'
	number9 = '9'
)

type Char struct {
	step int
	curr rune
	min  rune
	max  rune
}

func Create(min, max rune, step int) *Char {
	if step <= 0 {
		step = 1
	}
	return &Char{
		step: step,
		curr: min,
		min:  min,
		max:  max,
	}
}

func Lower() *Char {
	return Create(lowerA, lowerZ, 1)
}

func Upper() *Char {
	return Create(upperA, upperZ, 1)
}

func Number() *Char {
	return Create(number0, number9, 1)
}

func (c *Char) Get() rune {
	return c.curr
}

func (c *Char) Next() rune {
	if c.Done() {
		return c.Get()
	}
	c.curr += rune(c.step)
	if c.curr > c.max {
		c.curr = utf8.RuneError
	}
	return c.curr
}

func (c *Char) Done() bool {
	return c.curr == utf8.RuneError
}

func (c *Char) Reset() {
	c.curr = c.min
}

type chain struct {
	list []*Char
}

func NewLowerString(size int) Namer {
	return createChain(size, Lower)
}

func NewUpperString(size int) Namer {
	return createChain(size, Upper)
}

func NewNumberString(size int) Namer {
	return createChain(size, Number)
}

func createChain(size int, create func() *Char) Namer {
	var c chain
	for i := 0; i < size; i++ {
		c.list = append(c.list, create())
	}
	return &c
}

func (c *chain) Next() (string, error) {
	if len(c.list) == 0 || c.list[0].Done() {
		return "", io.EOF
	}
	chars := make([]rune, 0, len(c.list))
	for _, a := range c.list {
		chars = append(chars, a.Get())
	}
	for i := len(c.list) - 1; i >= 0; i-- {
		c.list[i].Next()
		if !c.list[i].Done() {
			for j := i + 1; j < len(c.list); j++ {
				c.list[j].Reset()
			}
			break
		}
	}
	return string(chars), nil
}

func (c *chain) Reset() {
	for i := range c.list {
		c.list[i].Reset()
	}
}

type compose struct {
	list []Namer
	buf  []string
	sep  string
	done bool
}

// Compose joins the names of each part with sep. The last part varies the
// fastest, like the digits of a counter.
func Compose(sep string, parts ...Namer) Namer {
	c := compose{
		list: parts,
		sep:  sep,
	}
	c.Reset()
	return &c
}

func (c *compose) Next() (string, error) {
	if c.done || len(c.list) == 0 {
		return "", io.EOF
	}
	str := strings.Join(c.buf, c.sep)
	c.advance()
	return str, nil
}

func (c *compose) advance() {
	for i := len(c.list) - 1; i >= 0; i-- {
		str, err := c.list[i].Next()
		if err == nil {
			c.buf[i] = str
			return
		}
		if !errors.Is(err, io.EOF) {
			c.done = true
			return
		}
		c.list[i].Reset()
		str, _ = c.list[i].Next()
		c.buf[i] = str
	}
	c.done = true
}

func (c *compose) Reset() {
	c.buf = c.buf[:0]
	c.done = false
	for i := range c.list {
		c.list[i].Reset()
		str, err := c.list[i].Next()
		if err != nil {
			c.done = true
		}
		c.buf = append(c.buf, str)
	}
}
