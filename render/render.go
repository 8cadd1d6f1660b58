// Package render is a small wikitext host for template modules. It stores
// nothing of its own: templates and modules come from a content.Store and
// parser functions from a hostfunc.Registry. It understands just enough
// wikitext to exercise the executor: template parameters, invocations,
// parser function calls and nowiki sections.
package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/cespare/xxhash/v2"

	"github.com/caffeineduck/wikilua/content"
	"github.com/caffeineduck/wikilua/executor"
	"github.com/caffeineduck/wikilua/hostfunc"
	"github.com/caffeineduck/wikilua/memcache"
	"github.com/caffeineduck/wikilua/pattern"
)

// ErrorPlaceholder replaces the output of a failed invocation.
const ErrorPlaceholder = `<strong class="error">Script error</strong>`

// Runner runs module functions. *executor.Executor implements it; use
// PoolRunner for a pool.
type Runner interface {
	Run(ctx context.Context, req executor.Request, opts ...executor.Option) executor.Result
}

// PoolRunner adapts an executor.Pool to Runner.
type PoolRunner struct {
	Pool *executor.Pool
}

func (p PoolRunner) Run(ctx context.Context, req executor.Request, opts ...executor.Option) executor.Result {
	return p.Pool.Submit(ctx, req, opts...)
}

// Option configures a Renderer.
type Option func(*config)

type config struct {
	logger      *slog.Logger
	outputBytes int
	stripBytes  int
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithOutputCacheSize sets the byte budget of the rendered output cache.
// Zero disables the cache.
func WithOutputCacheSize(bytes int) Option {
	return func(c *config) {
		c.outputBytes = bytes
	}
}

// WithStripCacheSize sets the byte budget of the strip marker table.
func WithStripCacheSize(bytes int) Option {
	return func(c *config) {
		c.stripBytes = bytes
	}
}

// Renderer serves host calls and renders module invocations. It is safe
// for concurrent use.
type Renderer struct {
	store    content.Store
	registry *hostfunc.Registry
	outputs  *memcache.Shared[uint64, output]
	strips   *strips
	logger   *slog.Logger
}

// New creates a Renderer. A nil registry gets the builtin parser
// functions.
func New(store content.Store, registry *hostfunc.Registry, opts ...Option) *Renderer {
	cfg := config{outputBytes: 16 << 20, stripBytes: 16 << 20}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	if registry == nil {
		registry = hostfunc.NewRegistry()
		hostfunc.RegisterBuiltins(registry)
	}
	r := &Renderer{
		store:    store,
		registry: registry,
		strips:   newStrips(cfg.stripBytes, cfg.logger),
		logger:   cfg.logger,
	}
	if cfg.outputBytes > 0 {
		r.outputs = memcache.NewShared[uint64, output](cfg.outputBytes, output.size,
			memcache.WithLogger[uint64, output](cfg.logger))
	}
	return r
}

// Render runs function from module with args and returns the finished
// output. On failure the output is ErrorPlaceholder and the error says
// why; budget violations and fatal host errors never leave partial
// output behind.
func (r *Renderer) Render(ctx context.Context, runner Runner, module, function string, args map[string]string) (string, error) {
	out, err := r.invoke(ctx, runner, module, function, args)
	if err != nil {
		return out, err
	}
	return r.strips.finalize(out)
}

// invoke runs one top-level invocation. The output still holds strip
// markers.
func (r *Renderer) invoke(ctx context.Context, runner Runner, module, function string, args map[string]string) (string, error) {
	page, err := r.store.Page(ctx, module)
	if err != nil {
		return ErrorPlaceholder, fmt.Errorf("load %s: %w", module, err)
	}
	key := outputKey(page.ID, function, args)
	if r.outputs != nil {
		if out, ok := r.outputs.Get(key); ok {
			r.strips.restore(out.strips)
			return out.text, nil
		}
	}

	res := runner.Run(ctx, executor.Request{
		Module:   page.Title,
		ID:       page.ID,
		Function: function,
		Frame:    &hostfunc.Frame{Title: page.Title, Args: args},
	})
	if res.Error != nil {
		level := slog.LevelInfo
		if executor.IsResourceExceeded(res.Error) || hostfunc.IsFatal(res.Error) {
			level = slog.LevelWarn
		}
		r.logger.Log(ctx, level, "invocation failed",
			"module", page.Title, "function", function, "error", res.Error)
		return ErrorPlaceholder, res.Error
	}
	if r.outputs != nil {
		if entries, ok := r.strips.capture(res.Output); ok {
			_ = r.outputs.Insert(key, output{text: res.Output, strips: entries})
		}
	}
	return res.Output, nil
}

// output is a cached invocation result. The text behind its strip markers
// is kept with it, since the marker table may drop entries first.
type output struct {
	text   string
	strips []stripEntry
}

func (o output) size() int {
	n := len(o.text) + 8
	for _, e := range o.strips {
		n += len(e.marker) + len(e.text)
	}
	return n
}

// RenderPage renders a stored page: nowiki sections are set aside first,
// then invocations and parser function calls are expanded. Failed
// invocations become ErrorPlaceholder and the first failure is returned
// alongside the text.
func (r *Renderer) RenderPage(ctx context.Context, runner Runner, title string) (string, error) {
	page, err := r.store.Page(ctx, title)
	if err != nil {
		return "", err
	}
	text, err := r.strips.strip(page.Text)
	if err != nil {
		return "", err
	}

	var firstErr error
	text, err = substitute(invokePattern, text, func(vals []pattern.Value, _ string) (string, bool) {
		inv := newInvocation(vals)
		out, err := r.invoke(ctx, runner, inv.module, inv.function, inv.args)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		return out, true
	})
	if err != nil {
		return "", err
	}
	frame := &hostfunc.Frame{Title: page.Title, Args: map[string]string{}}
	if text, err = r.callParserFunctions(ctx, frame, text); err != nil {
		return "", err
	}
	if text, err = r.strips.strip(text); err != nil {
		return "", err
	}
	if text, err = r.strips.finalize(text); err != nil {
		return "", err
	}
	return text, firstErr
}

// Strip replaces nowiki sections in text with strip markers.
func (r *Renderer) Strip(text string) (string, error) {
	return r.strips.strip(text)
}

// Finalize resolves the strip markers left in output produced outside
// Render, such as a raw executor result.
func (r *Renderer) Finalize(text string) (string, error) {
	return r.strips.finalize(text)
}

// Invalidate drops every cached output.
func (r *Renderer) Invalidate() {
	if r.outputs != nil {
		r.outputs.Clear()
	}
}

func outputKey(id, function string, args map[string]string) uint64 {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	d := xxhash.New()
	_, _ = d.WriteString(id)
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(function)
	for _, k := range keys {
		_, _ = d.WriteString("\x00")
		_, _ = d.WriteString(k)
		_, _ = d.WriteString("=")
		_, _ = d.WriteString(args[k])
	}
	return d.Sum64()
}

// notFound converts a store miss into a catchable host error and any
// other store failure into a fatal one.
func notFound(kind hostfunc.Kind, title string, err error) error {
	if errors.Is(err, content.ErrNotFound) {
		return &hostfunc.CallError{Kind: kind, Err: fmt.Errorf("%w: %s", hostfunc.ErrNotFound, title)}
	}
	return hostfunc.Fatal(&hostfunc.CallError{Kind: kind, Err: err})
}
