// Package sandbox runs one module source once. It sets up a throwaway
// executor and renderer around the code, so callers need neither.
package sandbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/caffeineduck/wikilua/content"
	"github.com/caffeineduck/wikilua/executor"
	"github.com/caffeineduck/wikilua/hostfunc"
	"github.com/caffeineduck/wikilua/render"
)

// Title is the page the code is stored under while it runs.
const Title = "Module:Sandbox"

type Result = executor.Result

type Config struct {
	Timeout     time.Duration
	MemoryLimit uint64
	// Pages holds the templates and modules the code may reach. Nil means
	// none.
	Pages  content.Store
	Logger *slog.Logger
}

func DefaultConfig() Config {
	return Config{
		Timeout:     executor.DefaultTimeout,
		MemoryLimit: executor.DefaultMemoryLimit,
	}
}

// Run compiles code as a module and calls function with args. Strip
// markers in the output are resolved.
func Run(ctx context.Context, code, function string, args map[string]string, cfg Config) Result {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	store := content.Overlay{Top: content.NewMemoryStore(), Base: cfg.Pages}
	page, err := store.Put(ctx, Title, code)
	if err != nil {
		return Result{Error: err}
	}

	r := render.New(store, nil, render.WithLogger(cfg.Logger), render.WithOutputCacheSize(0))
	exec, err := executor.New(r, store,
		executor.WithLogger(cfg.Logger),
		executor.WithGCMeasurement(false),
		executor.WithModuleCacheSize(0),
		executor.WithDefaults(
			executor.WithTimeout(cfg.Timeout),
			executor.WithMemoryLimit(cfg.MemoryLimit),
		))
	if err != nil {
		return Result{Error: err}
	}
	defer exec.Close()

	if args == nil {
		args = map[string]string{}
	}
	res := exec.Run(ctx, executor.Request{
		Module:   page.Title,
		ID:       page.ID,
		Function: function,
		Frame:    &hostfunc.Frame{Title: page.Title, Args: args},
	})
	if res.Error == nil {
		res.Output, res.Error = r.Finalize(res.Output)
	}
	return res
}
