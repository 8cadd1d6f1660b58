package pattern

import (
	"math"
	"strings"
)

// Unlimited is the replacement budget of a GSub with no maximum.
const Unlimited = math.MaxInt

// GSub drives a global substitution one match at a time. The caller
// alternates Next and Replace, then calls Finish:
//
//	g := pattern.NewGSub(p, -1)
//	for {
//	    m, err := g.Next(s)
//	    if err != nil || m == nil {
//	        break
//	    }
//	    g.Replace(s, &repl)
//	}
//	out, n := g.Finish(s)
//
// Text is only ever appended to the output; a zero-width match copies one
// element through so the scan always advances.
type GSub struct {
	p            *Pattern
	remaining    int
	count        int
	out          strings.Builder
	lastPos      int
	lastReplaced int
	cur          *Match
	done         bool
}

// NewGSub returns a driver that performs at most n replacements; n < 0
// means no limit. An anchored pattern can only match once.
func NewGSub(p *Pattern, n int) *GSub {
	if n < 0 {
		n = Unlimited
	}
	if p.anchored && n > 1 {
		n = 1
	}
	return &GSub{p: p, remaining: n}
}

// Next finds the next match, or returns nil when the budget is spent or
// the text has no more matches. A match left pending by the previous call
// is kept as it is.
func (g *GSub) Next(s Text) (*Match, error) {
	if g.cur != nil {
		g.Replace(s, nil)
	}
	if g.done || g.remaining <= 0 || g.lastPos > s.Len() {
		g.done = true
		return nil, nil
	}
	m, err := g.p.Find(s, g.lastPos)
	if err != nil {
		return nil, err
	}
	if m == nil {
		g.done = true
		return nil, nil
	}
	g.remaining--
	g.count++
	g.cur = m
	return m, nil
}

// Replace commits the current match. A nil repl keeps the matched text.
func (g *GSub) Replace(s Text, repl *string) {
	m := g.cur
	if m == nil {
		return
	}
	g.cur = nil
	g.out.WriteString(s.Slice(g.lastReplaced, m.Start))
	if repl != nil {
		g.out.WriteString(*repl)
	} else {
		g.out.WriteString(s.Slice(m.Start, m.End))
	}
	g.lastReplaced = m.End
	switch {
	case m.End > m.Start:
		g.lastPos = m.End
	case m.End < s.Len():
		g.out.WriteString(s.Slice(m.End, m.End+1))
		g.lastReplaced = m.End + 1
		g.lastPos = m.End + 1
	default:
		g.lastPos = s.Len() + 1
	}
	if g.p.anchored {
		g.done = true
	}
}

// Count returns the number of matches so far.
func (g *GSub) Count() int { return g.count }

// Finish flushes the rest of s and returns the result and match count.
func (g *GSub) Finish(s Text) (string, int) {
	if g.cur != nil {
		g.Replace(s, nil)
	}
	if g.lastReplaced < s.Len() {
		g.out.WriteString(s.Slice(g.lastReplaced, s.Len()))
		g.lastReplaced = s.Len()
	}
	g.done = true
	return g.out.String(), g.count
}

// Replace substitutes repl, a replacement template, for at most n matches
// of p in s. It is the whole loop for the common string case.
func Replace(p *Pattern, s Text, repl string, n int) (string, int, error) {
	g := NewGSub(p, n)
	for {
		m, err := g.Next(s)
		if err != nil {
			return "", 0, err
		}
		if m == nil {
			break
		}
		out, err := ExpandTemplate(repl, s, m)
		if err != nil {
			return "", 0, err
		}
		g.Replace(s, &out)
	}
	out, count := g.Finish(s)
	return out, count, nil
}
