package render

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/caffeineduck/wikilua/hostfunc"
	"github.com/caffeineduck/wikilua/memcache"
	"github.com/caffeineduck/wikilua/pattern"
)

const (
	kindNoWiki  = "nowiki"
	kindGeneral = "general"
)

var (
	markerPattern = pattern.MustCompile(pattern.Bytes(
		"\x7f'\"`UNIQ%-%-(%l+)%-%x+%-QINU`\"'\x7f"))
	nowikiPattern = pattern.MustCompile(pattern.Bytes(
		"<[Nn][Oo][Ww][Ii][Kk][Ii]>(.-)</[Nn][Oo][Ww][Ii][Kk][Ii]>"))
	refPattern = pattern.MustCompile(pattern.Bytes("<ref[^>]*>.-</ref>"))
)

// Marker formats a strip marker.
func Marker(kind string, n uint32) string {
	return fmt.Sprintf("\x7f'\"`UNIQ--%s-%08x-QINU`\"'\x7f", kind, n)
}

// strips holds the text behind strip markers. Markers outlive the
// execution that created them, so the table is bounded by bytes rather
// than scoped to one render.
type strips struct {
	next  atomic.Uint32
	items *memcache.Shared[string, string]
}

func newStrips(maxBytes int, logger *slog.Logger) *strips {
	return &strips{
		items: memcache.NewShared[string, string](maxBytes,
			func(s string) int { return len(s) + 48 },
			memcache.WithLogger[string, string](logger)),
	}
}

func (s *strips) add(kind, text string) string {
	m := Marker(kind, s.next.Add(1))
	_ = s.items.Insert(m, text)
	return m
}

// strip replaces nowiki sections and ref tags with markers.
func (s *strips) strip(text string) (string, error) {
	out, err := substitute(nowikiPattern, text, func(vals []pattern.Value, _ string) (string, bool) {
		return s.add(kindNoWiki, vals[0].Str), true
	})
	if err != nil {
		return "", err
	}
	return substitute(refPattern, out, func(_ []pattern.Value, whole string) (string, bool) {
		return s.add(kindGeneral, whole), true
	})
}

// unstrip restores markers in text according to mode. Markers that are not
// in the table, including evicted ones, count as general markers.
func (s *strips) unstrip(text string, mode hostfunc.UnstripMode) (string, error) {
	return substitute(markerPattern, text, func(vals []pattern.Value, whole string) (string, bool) {
		content, ok := s.items.Get(whole)
		if ok && vals[0].Str == kindNoWiki {
			switch mode {
			case hostfunc.ModeOrigText:
				return "<nowiki>" + content + "</nowiki>", true
			default:
				return content, true
			}
		}
		if mode == hostfunc.ModeUnstrip {
			return "", true
		}
		return "", false
	})
}

// finalize resolves every marker for output: nowiki content is restored
// and general content is put back as it was.
func (s *strips) finalize(text string) (string, error) {
	return substitute(markerPattern, text, func(_ []pattern.Value, whole string) (string, bool) {
		content, ok := s.items.Get(whole)
		return content, ok
	})
}

type stripEntry struct {
	marker, text string
}

// capture returns the entries behind the markers in text. It reports false
// when a marker is no longer in the table.
func (s *strips) capture(text string) ([]stripEntry, bool) {
	var entries []stripEntry
	complete := true
	_, err := substitute(markerPattern, text, func(_ []pattern.Value, whole string) (string, bool) {
		content, ok := s.items.Peek(whole)
		if !ok {
			complete = false
		}
		entries = append(entries, stripEntry{marker: whole, text: content})
		return "", false
	})
	return entries, err == nil && complete
}

// restore puts captured entries back into the table.
func (s *strips) restore(entries []stripEntry) {
	for _, e := range entries {
		_ = s.items.Insert(e.marker, e.text)
	}
}

// substitute replaces every match of p in text with the result of fn. When
// fn reports false the match is kept.
func substitute(p *pattern.Pattern, text string, fn func(vals []pattern.Value, whole string) (string, bool)) (string, error) {
	s := pattern.Bytes(text)
	g := pattern.NewGSub(p, -1)
	for {
		m, err := g.Next(s)
		if err != nil {
			return "", err
		}
		if m == nil {
			break
		}
		if repl, ok := fn(m.Values(s), s.Slice(m.Start, m.End)); ok {
			g.Replace(s, &repl)
		}
	}
	out, _ := g.Finish(s)
	return out, nil
}
