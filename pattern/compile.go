package pattern

import "strings"

// MaxCaptures is the largest number of captures one pattern may define.
const MaxCaptures = 32

// specials are the bytes that give a pattern any meaning beyond a literal
// substring.
const specials = "^$*+?.([%-"

type itemKind uint8

const (
	itemSingle itemKind = iota
	itemOpen
	itemPosition
	itemClose
	itemBalance
	itemFrontier
	itemBackref
	itemEnd
)

type item struct {
	kind  itemKind
	cls   class
	quant rune // 0, '*', '+', '-' or '?'
	idx   int  // capture index for open, position, close and backref
	open  rune // %b delimiters
	close rune
	set   *set // %f
}

// Pattern is a compiled Lua pattern. It is immutable and safe for
// concurrent use.
type Pattern struct {
	src      string
	items    []item
	anchored bool
	ncap     int
	unicode  bool
}

// Option configures Compile.
type Option func(*compileConfig)

type compileConfig struct {
	unicode  bool
	noAnchor bool
}

// Unicode makes %a, %l, %u and friends use Unicode categories instead of
// the C locale.
func Unicode() Option {
	return func(c *compileConfig) {
		c.unicode = true
	}
}

// NoAnchor treats a leading '^' as a literal character.
func NoAnchor() Option {
	return func(c *compileConfig) {
		c.noAnchor = true
	}
}

// HasSpecials reports whether p contains any pattern syntax. Patterns
// without it can be searched for as plain substrings.
func HasSpecials(p string) bool {
	return strings.ContainsAny(p, specials)
}

// Compile parses p. Every syntax problem is reported here rather than
// at match time.
func Compile(p Text, opts ...Option) (*Pattern, error) {
	var cfg compileConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	c := &compiler{
		p:   p,
		n:   p.Len(),
		pat: &Pattern{src: p.String(), unicode: cfg.unicode},
	}
	if !cfg.noAnchor && c.n > 0 && p.At(0) == '^' {
		c.pat.anchored = true
		c.i = 1
	}
	if err := c.parse(); err != nil {
		return nil, err
	}
	return c.pat, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(p Text, opts ...Option) *Pattern {
	pat, err := Compile(p, opts...)
	if err != nil {
		panic(err)
	}
	return pat
}

// String returns the pattern source.
func (p *Pattern) String() string { return p.src }

// Anchored reports whether the pattern only matches at the start offset.
func (p *Pattern) Anchored() bool { return p.anchored }

// NumCaptures returns the number of captures, position captures included.
func (p *Pattern) NumCaptures() int { return p.ncap }

type compiler struct {
	p     Text
	n     int
	i     int
	pat   *Pattern
	open  []int // indices of captures not yet closed
	items []item
}

func (c *compiler) parse() error {
	for c.i < c.n {
		ch := c.p.At(c.i)
		switch {
		case ch == '(':
			if c.pat.ncap >= MaxCaptures {
				return syntaxErr(c.p, "too many captures")
			}
			if c.i+1 < c.n && c.p.At(c.i+1) == ')' {
				c.items = append(c.items, item{kind: itemPosition, idx: c.pat.ncap})
				c.i += 2
			} else {
				c.open = append(c.open, c.pat.ncap)
				c.items = append(c.items, item{kind: itemOpen, idx: c.pat.ncap})
				c.i++
			}
			c.pat.ncap++
		case ch == ')':
			if len(c.open) == 0 {
				return syntaxErr(c.p, "invalid pattern capture")
			}
			idx := c.open[len(c.open)-1]
			c.open = c.open[:len(c.open)-1]
			c.items = append(c.items, item{kind: itemClose, idx: idx})
			c.i++
		case ch == '$' && c.i == c.n-1:
			c.items = append(c.items, item{kind: itemEnd})
			c.i++
		case ch == '%' && c.i+1 < c.n && c.p.At(c.i+1) == 'b':
			if c.i+3 >= c.n {
				return syntaxErr(c.p, "malformed pattern (missing arguments to '%%b')")
			}
			c.items = append(c.items, item{
				kind:  itemBalance,
				open:  c.p.At(c.i + 2),
				close: c.p.At(c.i + 3),
			})
			c.i += 4
		case ch == '%' && c.i+1 < c.n && c.p.At(c.i+1) == 'f':
			c.i += 2
			if c.i >= c.n || c.p.At(c.i) != '[' {
				return syntaxErr(c.p, "missing '[' after '%%f' in pattern")
			}
			s, err := c.parseSet()
			if err != nil {
				return err
			}
			c.items = append(c.items, item{kind: itemFrontier, set: s})
		case ch == '%' && c.i+1 < c.n && isDigit(c.p.At(c.i+1)):
			l := int(c.p.At(c.i+1) - '1')
			if l < 0 || l >= c.pat.ncap || c.isOpen(l) {
				return syntaxErr(c.p, "invalid capture index %%%d", l+1)
			}
			c.items = append(c.items, item{kind: itemBackref, idx: l})
			c.i += 2
		default:
			cls, err := c.parseClass()
			if err != nil {
				return err
			}
			it := item{kind: itemSingle, cls: cls}
			if c.i < c.n {
				switch q := c.p.At(c.i); q {
				case '*', '+', '-', '?':
					it.quant = q
					c.i++
				}
			}
			c.items = append(c.items, it)
		}
	}
	if len(c.open) > 0 {
		return syntaxErr(c.p, "unfinished capture")
	}
	c.pat.items = c.items
	return nil
}

func (c *compiler) isOpen(idx int) bool {
	for _, o := range c.open {
		if o == idx {
			return true
		}
	}
	return false
}

// parseClass consumes one single-element class at c.i.
func (c *compiler) parseClass() (class, error) {
	ch := c.p.At(c.i)
	switch ch {
	case '.':
		c.i++
		return class{kind: classAny}, nil
	case '%':
		if c.i+1 >= c.n {
			return class{}, syntaxErr(c.p, "malformed pattern (ends with '%%')")
		}
		r := c.p.At(c.i + 1)
		c.i += 2
		return class{kind: classEscape, r: r}, nil
	case '[':
		s, err := c.parseSet()
		if err != nil {
			return class{}, err
		}
		return class{kind: classSet, set: s}, nil
	default:
		c.i++
		return class{kind: classLiteral, r: ch}, nil
	}
}

// parseSet consumes a bracket set starting at the '[' at c.i. A ']' right
// after '[' or '[^' is a literal, and '-' at either edge is a literal.
func (c *compiler) parseSet() (*set, error) {
	c.i++
	s := &set{}
	if c.i < c.n && c.p.At(c.i) == '^' {
		s.negate = true
		c.i++
	}
	start := c.i
	j := c.i
	for {
		if j >= c.n {
			return nil, syntaxErr(c.p, "malformed pattern (missing ']')")
		}
		ch := c.p.At(j)
		j++
		if ch == '%' && j < c.n {
			j++
		}
		if j < c.n && c.p.At(j) == ']' {
			break
		}
	}
	end := j
	for k := start; k < end; k++ {
		ch := c.p.At(k)
		switch {
		case ch == '%':
			k++
			s.items = append(s.items, setItem{kind: setClass, lo: c.p.At(k)})
		case k+2 < end && c.p.At(k+1) == '-':
			s.items = append(s.items, setItem{kind: setRange, lo: ch, hi: c.p.At(k + 2)})
			k += 2
		default:
			s.items = append(s.items, setItem{kind: setLiteral, lo: ch})
		}
	}
	c.i = end + 1
	return s, nil
}

func isDigit(r rune) bool {
	return '0' <= r && r <= '9'
}
