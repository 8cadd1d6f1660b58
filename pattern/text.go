package pattern

import (
	"sort"
	"unicode/utf8"
)

// Text is a string viewed as a sequence of elements.
type Text interface {
	// Len returns the number of elements.
	Len() int
	// At returns element i.
	At(i int) rune
	// Offset returns the byte offset of element i. Offset(Len()) is the
	// length of the underlying string in bytes.
	Offset(i int) int
	// Index returns the element that starts at byte offset off.
	Index(off int) int
	// Slice returns the underlying bytes of elements [i, j).
	Slice(i, j int) string
	// String returns the whole text.
	String() string
}

// Bytes is text whose elements are bytes.
type Bytes string

func (b Bytes) Len() int              { return len(b) }
func (b Bytes) At(i int) rune         { return rune(b[i]) }
func (b Bytes) Offset(i int) int      { return i }
func (b Bytes) Index(off int) int     { return off }
func (b Bytes) Slice(i, j int) string { return string(b[i:j]) }
func (b Bytes) String() string        { return string(b) }

// Runes is text whose elements are Unicode code points. Invalid UTF-8
// sequences decode to one utf8.RuneError element per byte.
type Runes struct {
	s     string
	runes []rune
	offs  []int
}

// NewRunes decodes s into code points.
func NewRunes(s string) *Runes {
	r := &Runes{
		s:     s,
		runes: make([]rune, 0, len(s)),
		offs:  make([]int, 0, len(s)+1),
	}
	for off := 0; off < len(s); {
		c, size := utf8.DecodeRuneInString(s[off:])
		r.runes = append(r.runes, c)
		r.offs = append(r.offs, off)
		off += size
	}
	r.offs = append(r.offs, len(s))
	return r
}

func (r *Runes) Len() int         { return len(r.runes) }
func (r *Runes) At(i int) rune    { return r.runes[i] }
func (r *Runes) Offset(i int) int { return r.offs[i] }
func (r *Runes) String() string   { return r.s }

func (r *Runes) Index(off int) int {
	return sort.SearchInts(r.offs, off)
}

func (r *Runes) Slice(i, j int) string {
	return r.s[r.offs[i]:r.offs[j]]
}
