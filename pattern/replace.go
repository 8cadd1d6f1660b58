package pattern

import (
	"strconv"
	"strings"
)

// ExpandTemplate expands a gsub replacement string for match m of s.
// %0 is the whole match, %1 to %9 the captures, %% a percent sign.
// %1 also means the whole match when the pattern has no captures.
func ExpandTemplate(tmpl string, s Text, m *Match) (string, error) {
	if strings.IndexByte(tmpl, '%') < 0 {
		return tmpl, nil
	}
	var b strings.Builder
	b.Grow(len(tmpl))
	for i := 0; i < len(tmpl); i++ {
		c := tmpl[i]
		if c != '%' {
			b.WriteByte(c)
			continue
		}
		i++
		if i >= len(tmpl) {
			return "", &ReplacementError{Msg: "invalid use of '%' in replacement string"}
		}
		c = tmpl[i]
		switch {
		case c == '%':
			b.WriteByte('%')
		case c == '0':
			b.WriteString(s.Slice(m.Start, m.End))
		case '1' <= c && c <= '9':
			idx := int(c - '0')
			if idx > len(m.Captures) {
				if idx == 1 && len(m.Captures) == 0 {
					b.WriteString(s.Slice(m.Start, m.End))
					continue
				}
				return "", &CaptureIndexError{Index: idx}
			}
			v := captureValue(s, m.Captures[idx-1])
			if v.Position {
				b.WriteString(strconv.Itoa(v.Pos))
			} else {
				b.WriteString(v.Str)
			}
		default:
			return "", &ReplacementError{Msg: "invalid use of '%' in replacement string"}
		}
	}
	return b.String(), nil
}
