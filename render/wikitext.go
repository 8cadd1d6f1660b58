package render

import (
	"context"
	"strconv"
	"strings"

	"github.com/caffeineduck/wikilua/hostfunc"
	"github.com/caffeineduck/wikilua/pattern"
)

var (
	// {{{name}}} or {{{name|default}}}
	paramPattern = pattern.MustCompile(pattern.Bytes("{{{([^{}|]*)(|?)([^{}]*)}}}"))
	// A body that is nothing but an invocation.
	invokeBodyPattern = pattern.MustCompile(pattern.Bytes("^%s*{{#invoke:([^|}]*)|([^|}]*)(.-)}}%s*$"))
	invokePattern     = pattern.MustCompile(pattern.Bytes("{{#invoke:([^|}]*)|([^|}]*)([^{}]*)}}"))
	parserFnPattern   = pattern.MustCompile(pattern.Bytes("{{(#?[%w_]+):([^{}]*)}}"))
)

// invocation is a parsed {{#invoke:Module|function|args}}.
type invocation struct {
	module   string
	function string
	args     map[string]string
}

func newInvocation(vals []pattern.Value) invocation {
	return invocation{
		module:   "Module:" + strings.TrimSpace(vals[0].Str),
		function: strings.TrimSpace(vals[1].Str),
		args:     parseArgs(strings.TrimPrefix(vals[2].Str, "|")),
	}
}

// parseInvokeBody reports whether text is a single invocation.
func parseInvokeBody(text string) (invocation, bool, error) {
	s := pattern.Bytes(text)
	m, err := invokeBodyPattern.Find(s, 0)
	if err != nil || m == nil {
		return invocation{}, false, err
	}
	return newInvocation(m.Values(s)), true, nil
}

// parseArgs splits pipe-separated arguments. "name=value" arguments are
// named and trimmed; the rest are numbered from 1 and kept as written.
func parseArgs(s string) map[string]string {
	args := map[string]string{}
	if s == "" {
		return args
	}
	n := 0
	for _, part := range strings.Split(s, "|") {
		if k, v, ok := strings.Cut(part, "="); ok {
			args[strings.TrimSpace(k)] = strings.TrimSpace(v)
			continue
		}
		n++
		args[strconv.Itoa(n)] = part
	}
	return args
}

// substituteParams replaces template parameters with frame arguments.
// A missing parameter without a default is left in place.
func substituteParams(text string, args map[string]string) (string, error) {
	return substitute(paramPattern, text, func(vals []pattern.Value, _ string) (string, bool) {
		if v, ok := args[strings.TrimSpace(vals[0].Str)]; ok {
			return v, true
		}
		if vals[1].Str != "" {
			return vals[2].Str, true
		}
		return "", false
	})
}

// callParserFunctions expands {{name:args}} calls to registered parser
// functions. Unknown names are left as written.
func (r *Renderer) callParserFunctions(ctx context.Context, frame *hostfunc.Frame, text string) (string, error) {
	var callErr error
	out, err := substitute(parserFnPattern, text, func(vals []pattern.Value, _ string) (string, bool) {
		name := vals[0].Str
		if _, ok := r.registry.Get(name); !ok || callErr != nil {
			return "", false
		}
		res, err := r.registry.Call(ctx, frame, name, strings.Split(vals[1].Str, "|"))
		if err != nil {
			callErr = err
			return "", false
		}
		return res, true
	})
	if err != nil {
		return "", err
	}
	return out, callErr
}
