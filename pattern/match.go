package pattern

// maxCalls bounds matcher recursion.
const maxCalls = 200

const (
	capUnfinished = -1
	capPosition   = -2
)

// Capture is one captured span, in elements. A position capture has
// Start == End and Position set.
type Capture struct {
	Start    int
	End      int
	Position bool
}

// Match is the result of a successful search. Offsets are 0-based element
// indices; End is exclusive.
type Match struct {
	Start    int
	End      int
	Captures []Capture
}

// Value is the scripting-level value of a capture: a substring, or for a
// position capture the 1-based position.
type Value struct {
	Str      string
	Pos      int
	Position bool
}

// Values returns the capture values of m, or the whole match when the
// pattern defines no captures.
func (m *Match) Values(s Text) []Value {
	if len(m.Captures) == 0 {
		return []Value{{Str: s.Slice(m.Start, m.End)}}
	}
	vals := make([]Value, len(m.Captures))
	for i, c := range m.Captures {
		vals[i] = captureValue(s, c)
	}
	return vals
}

func captureValue(s Text, c Capture) Value {
	if c.Position {
		return Value{Pos: c.Start + 1, Position: true}
	}
	return Value{Str: s.Slice(c.Start, c.End)}
}

type capture struct {
	start int
	len   int
}

type matcher struct {
	p     *Pattern
	s     Text
	n     int
	level int
	depth int
	caps  [MaxCaptures]capture
}

// Find searches s for the first match at or after element init.
// It returns nil when there is none.
func (p *Pattern) Find(s Text, init int) (*Match, error) {
	n := s.Len()
	if init < 0 {
		init = 0
	}
	if init > n {
		return nil, nil
	}
	m := &matcher{p: p, s: s, n: n}
	for start := init; ; start++ {
		m.level = 0
		m.depth = 0
		end, err := m.match(start, 0)
		if err != nil {
			return nil, err
		}
		if end >= 0 {
			return m.result(start, end), nil
		}
		if p.anchored || start >= n {
			return nil, nil
		}
	}
}

func (m *matcher) result(start, end int) *Match {
	res := &Match{Start: start, End: end}
	if m.level > 0 {
		res.Captures = make([]Capture, m.level)
		for i := 0; i < m.level; i++ {
			c := m.caps[i]
			if c.len == capPosition {
				res.Captures[i] = Capture{Start: c.start, End: c.start, Position: true}
			} else {
				res.Captures[i] = Capture{Start: c.start, End: c.start + c.len}
			}
		}
	}
	return res
}

func (m *matcher) at(si int) (rune, bool) {
	if si >= m.n {
		return 0, false
	}
	return m.s.At(si), true
}

func (m *matcher) single(si int, c *class) bool {
	r, ok := m.at(si)
	return ok && m.p.single(c, r)
}

// match tries items[pi:] at si and returns the end of the match or -1.
func (m *matcher) match(si, pi int) (int, error) {
	m.depth++
	if m.depth > maxCalls {
		return -1, ErrTooComplex
	}
	defer func() { m.depth-- }()

	items := m.p.items
	for {
		if pi == len(items) {
			return si, nil
		}
		it := &items[pi]
		switch it.kind {
		case itemOpen:
			return m.startCapture(si, pi+1, capUnfinished)
		case itemPosition:
			return m.startCapture(si, pi+1, capPosition)
		case itemClose:
			return m.endCapture(si, pi+1, it.idx)
		case itemEnd:
			if si == m.n {
				return si, nil
			}
			return -1, nil
		case itemBalance:
			si = m.balance(si, it.open, it.close)
			if si < 0 {
				return -1, nil
			}
			pi++
		case itemFrontier:
			var prev, cur rune
			if si > 0 {
				prev = m.s.At(si - 1)
			}
			if si < m.n {
				cur = m.s.At(si)
			}
			if m.p.inSet(it.set, prev) || !m.p.inSet(it.set, cur) {
				return -1, nil
			}
			pi++
		case itemBackref:
			si = m.backref(si, it.idx)
			if si < 0 {
				return -1, nil
			}
			pi++
		default:
			ok := m.single(si, &it.cls)
			switch it.quant {
			case '?':
				if ok {
					end, err := m.match(si+1, pi+1)
					if err != nil || end >= 0 {
						return end, err
					}
				}
				pi++
			case '+':
				if !ok {
					return -1, nil
				}
				return m.maxExpand(si+1, it, pi)
			case '*':
				return m.maxExpand(si, it, pi)
			case '-':
				return m.minExpand(si, it, pi)
			default:
				if !ok {
					return -1, nil
				}
				si++
				pi++
			}
		}
	}
}

func (m *matcher) maxExpand(si int, it *item, pi int) (int, error) {
	i := 0
	for m.single(si+i, &it.cls) {
		i++
	}
	for ; i >= 0; i-- {
		end, err := m.match(si+i, pi+1)
		if err != nil || end >= 0 {
			return end, err
		}
	}
	return -1, nil
}

func (m *matcher) minExpand(si int, it *item, pi int) (int, error) {
	for {
		end, err := m.match(si, pi+1)
		if err != nil || end >= 0 {
			return end, err
		}
		if !m.single(si, &it.cls) {
			return -1, nil
		}
		si++
	}
}

func (m *matcher) startCapture(si, pi, what int) (int, error) {
	m.caps[m.level] = capture{start: si, len: what}
	m.level++
	end, err := m.match(si, pi)
	if end < 0 {
		m.level--
	}
	return end, err
}

func (m *matcher) endCapture(si, pi, idx int) (int, error) {
	m.caps[idx].len = si - m.caps[idx].start
	end, err := m.match(si, pi)
	if end < 0 {
		m.caps[idx].len = capUnfinished
	}
	return end, err
}

func (m *matcher) balance(si int, open, close rune) int {
	if r, ok := m.at(si); !ok || r != open {
		return -1
	}
	depth := 1
	for i := si + 1; i < m.n; i++ {
		r := m.s.At(i)
		if r == close {
			depth--
			if depth == 0 {
				return i + 1
			}
		} else if r == open {
			depth++
		}
	}
	return -1
}

func (m *matcher) backref(si, idx int) int {
	c := m.caps[idx]
	if c.len < 0 || m.n-si < c.len {
		return -1
	}
	for i := 0; i < c.len; i++ {
		if m.s.At(c.start+i) != m.s.At(si+i) {
			return -1
		}
	}
	return si + c.len
}
