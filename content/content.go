// Package content stores the wikitext pages, templates and modules a render
// reads. Pages are addressed by title; module source is also addressed by
// content id, the key of the executor's module cache.
package content

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/cespare/xxhash/v2"
)

// ErrNotFound is returned for a title or id with no page behind it.
var ErrNotFound = errors.New("page not found")

// Page is a stored revision.
type Page struct {
	Title string
	Text  string
	// ID identifies the text; equal texts have equal ids.
	ID string
}

// Store reads and writes pages.
type Store interface {
	Page(ctx context.Context, title string) (Page, error)
	// Source returns the text with content id id.
	Source(ctx context.Context, id string) (string, error)
	Put(ctx context.Context, title, text string) (Page, error)
}

// ID returns the content id of text.
func ID(text string) string {
	return strconv.FormatUint(xxhash.Sum64String(text), 16)
}

// NewPage builds a page with a normalized title and its content id.
func NewPage(title, text string) Page {
	return Page{Title: NormalizeTitle(title), Text: text, ID: ID(text)}
}

// NormalizeTitle trims a title, turns underscores into spaces, collapses
// runs of spaces and upper-cases the first letter of the namespace and of
// the name.
func NormalizeTitle(title string) string {
	title = strings.Join(strings.Fields(strings.ReplaceAll(title, "_", " ")), " ")
	ns, name, ok := strings.Cut(title, ":")
	if !ok {
		return upperFirst(title)
	}
	return upperFirst(strings.TrimSpace(ns)) + ":" + upperFirst(strings.TrimSpace(name))
}

func upperFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
