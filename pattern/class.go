package pattern

import "unicode"

type classKind uint8

const (
	classAny classKind = iota
	classLiteral
	classEscape
	classSet
)

// class is the element test of a single pattern item.
type class struct {
	kind classKind
	r    rune // literal, or the letter after '%'
	set  *set
}

type setItemKind uint8

const (
	setLiteral setItemKind = iota
	setRange
	setClass
)

type setItem struct {
	kind   setItemKind
	lo, hi rune
}

type set struct {
	negate bool
	items  []setItem
}

func (p *Pattern) single(c *class, r rune) bool {
	switch c.kind {
	case classAny:
		return true
	case classLiteral:
		return c.r == r
	case classEscape:
		return p.escape(c.r, r)
	default:
		return p.inSet(c.set, r)
	}
}

func (p *Pattern) inSet(s *set, r rune) bool {
	for _, it := range s.items {
		var ok bool
		switch it.kind {
		case setLiteral:
			ok = it.lo == r
		case setRange:
			ok = it.lo <= r && r <= it.hi
		case setClass:
			ok = p.escape(it.lo, r)
		}
		if ok {
			return !s.negate
		}
	}
	return s.negate
}

// escape reports whether r matches %cl. Letters that name no class, and
// all punctuation, match themselves.
func (p *Pattern) escape(cl, r rune) bool {
	lower := cl
	if 'A' <= cl && cl <= 'Z' {
		lower = cl + ('a' - 'A')
	}
	var res bool
	if p.unicode {
		switch lower {
		case 'a':
			res = unicode.IsLetter(r)
		case 'c':
			res = unicode.IsControl(r)
		case 'd':
			res = unicode.Is(unicode.Nd, r)
		case 'l':
			res = unicode.IsLower(r)
		case 'p':
			res = unicode.IsPunct(r)
		case 's':
			res = unicode.IsSpace(r)
		case 'u':
			res = unicode.IsUpper(r)
		case 'w':
			res = unicode.IsLetter(r) || unicode.Is(unicode.Nd, r)
		case 'x':
			res = isXDigit(r)
		case 'z':
			res = r == 0
		default:
			return cl == r
		}
	} else {
		if r > 0xff {
			return false
		}
		switch lower {
		case 'a':
			res = isAlpha(r)
		case 'c':
			res = r < 0x20 || r == 0x7f
		case 'd':
			res = '0' <= r && r <= '9'
		case 'l':
			res = 'a' <= r && r <= 'z'
		case 'p':
			res = isPunct(r)
		case 's':
			res = r == ' ' || ('\t' <= r && r <= '\r')
		case 'u':
			res = 'A' <= r && r <= 'Z'
		case 'w':
			res = isAlpha(r) || ('0' <= r && r <= '9')
		case 'x':
			res = isXDigit(r)
		case 'z':
			res = r == 0
		default:
			return cl == r
		}
	}
	if lower != cl {
		return !res
	}
	return res
}

func isAlpha(r rune) bool {
	return ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z')
}

func isXDigit(r rune) bool {
	return ('0' <= r && r <= '9') || ('a' <= r && r <= 'f') || ('A' <= r && r <= 'F')
}

// isPunct is C-locale ispunct: printable, not space, not alphanumeric.
func isPunct(r rune) bool {
	return r > 0x20 && r < 0x7f && !isAlpha(r) && !('0' <= r && r <= '9')
}
