package hostfunc

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Func is a parser function. args are the pipe-separated arguments, with
// the text after the colon in the name as the first one.
type Func func(ctx context.Context, frame *Frame, args []string) (string, error)

// ErrUnknownFunction is returned for a parser function that is not
// registered.
var ErrUnknownFunction = errors.New("unknown parser function")

type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]Func)}
}

func (r *Registry) Register(name string, fn Func) {
	r.mu.Lock()
	r.funcs[normalizeName(name)] = fn
	r.mu.Unlock()
}

func (r *Registry) Get(name string) (Func, bool) {
	r.mu.RLock()
	fn, ok := r.funcs[normalizeName(name)]
	r.mu.RUnlock()
	return fn, ok
}

func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Call runs the parser function name. A name of the form "#tag:nowiki"
// is split at the colon and the remainder becomes the first argument.
func (r *Registry) Call(ctx context.Context, frame *Frame, name string, args []string) (string, error) {
	if i := strings.IndexByte(name, ':'); i >= 0 {
		args = append([]string{strings.TrimSpace(name[i+1:])}, args...)
		name = name[:i]
	}
	fn, ok := r.Get(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownFunction, strings.TrimSpace(name))
	}
	return fn(ctx, frame, args)
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSuffix(strings.TrimSpace(name), ":"))
}
