package hostfunc

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// RegisterBuiltins adds the parser functions modules most commonly call
// through frame:callParserFunction.
func RegisterBuiltins(r *Registry) {
	r.Register("lc", caseFunc(func(s string) string { return cases.Lower(language.Und).String(s) }))
	r.Register("uc", caseFunc(func(s string) string { return cases.Upper(language.Und).String(s) }))
	r.Register("lcfirst", caseFunc(func(s string) string { return mapFirst(s, cases.Lower(language.Und)) }))
	r.Register("ucfirst", caseFunc(func(s string) string { return mapFirst(s, cases.Upper(language.Und)) }))
	r.Register("#if", ifFunc)
	r.Register("#ifeq", ifEqFunc)
	r.Register("#tag", tagFunc)
}

func caseFunc(fn func(string) string) Func {
	return func(_ context.Context, _ *Frame, args []string) (string, error) {
		return fn(arg(args, 0)), nil
	}
}

func mapFirst(s string, c cases.Caser) string {
	if s == "" {
		return s
	}
	_, size := utf8.DecodeRuneInString(s)
	return c.String(s[:size]) + s[size:]
}

func ifFunc(_ context.Context, _ *Frame, args []string) (string, error) {
	if arg(args, 0) != "" {
		return arg(args, 1), nil
	}
	return arg(args, 2), nil
}

func ifEqFunc(_ context.Context, _ *Frame, args []string) (string, error) {
	if equalValues(arg(args, 0), arg(args, 1)) {
		return arg(args, 2), nil
	}
	return arg(args, 3), nil
}

// equalValues compares numerically when both sides parse as numbers.
func equalValues(a, b string) bool {
	fa, errA := strconv.ParseFloat(a, 64)
	fb, errB := strconv.ParseFloat(b, 64)
	if errA == nil && errB == nil {
		return fa == fb
	}
	return a == b
}

func tagFunc(_ context.Context, _ *Frame, args []string) (string, error) {
	name := strings.ToLower(arg(args, 0))
	if name == "" {
		return "", errors.New("#tag: missing tag name")
	}
	var b strings.Builder
	b.WriteByte('<')
	b.WriteString(name)
	for _, attr := range args[min(2, len(args)):] {
		k, v, ok := strings.Cut(attr, "=")
		if !ok {
			continue
		}
		b.WriteByte(' ')
		b.WriteString(strings.TrimSpace(k))
		b.WriteString(`="`)
		b.WriteString(strings.ReplaceAll(strings.TrimSpace(v), `"`, "&quot;"))
		b.WriteByte('"')
	}
	b.WriteByte('>')
	if len(args) > 1 {
		b.WriteString(args[1])
	}
	b.WriteString("</")
	b.WriteString(name)
	b.WriteByte('>')
	return b.String(), nil
}

// arg returns the trimmed i-th argument or "".
func arg(args []string, i int) string {
	if i >= len(args) {
		return ""
	}
	return strings.TrimSpace(args[i])
}
