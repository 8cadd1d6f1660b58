package executor

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"

	"github.com/caffeineduck/wikilua/hostfunc"
	"github.com/caffeineduck/wikilua/memcache"
	"github.com/caffeineduck/wikilua/stdlib"
)

//go:embed trampoline.lua
var trampolineSource string

// Request names the module function to run and the frame it runs in.
type Request = hostfunc.Invocation

// Result holds the output and metadata from an execution.
type Result struct {
	Output   string
	Duration time.Duration
	// Quanta is the number of fuel quanta the execution used up.
	Quanta int64
	Error  error
}

// SourceProvider returns module source by content id.
type SourceProvider interface {
	Source(ctx context.Context, id string) (string, error)
}

// SourceFunc adapts a function to SourceProvider.
type SourceFunc func(ctx context.Context, id string) (string, error)

func (f SourceFunc) Source(ctx context.Context, id string) (string, error) { return f(ctx, id) }

// EnvFactory builds the global table of a freshly compiled module.
type EnvFactory interface {
	NewEnv(L *lua.LState) (*lua.LTable, error)
}

// Unit is a compiled module bound to its environment. Executions run
// against a copy of Env, so a cached Unit does not change.
type Unit struct {
	ID     string
	Module string
	Fn     *lua.LFunction
	Env    *lua.LTable
	Size   int
}

// Stats counts module cache activity.
type Stats struct {
	Compiles     int
	Hits         int
	Misses       int
	CacheBytes   int
	CacheEntries int
}

// Executor owns one Lua VM and the compiled modules cached for it. It is
// not safe for concurrent use; run one Executor per worker.
type Executor struct {
	L          *lua.LState
	host       hostfunc.Host
	src        SourceProvider
	envs       EnvFactory
	cfg        executorConfig
	logger     *slog.Logger
	modules    *memcache.Cache[string, *Unit]
	trampoline *lua.LFunction
	active     []*Execution
	stats      Stats
	closed     bool
}

// New creates an Executor that fetches module source from src and serves
// host calls through host.
func New(host hostfunc.Host, src SourceProvider, opts ...ExecutorOption) (*Executor, error) {
	if src == nil {
		return nil, errors.New("executor: nil source provider")
	}
	cfg := defaultExecutorConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	L := lua.NewState(lua.Options{
		SkipOpenLibs:        true,
		CallStackSize:       1024,
		RegistrySize:        1024 * 4,
		RegistryMaxSize:     1024 * 256,
		RegistryGrowStep:    32,
		MinimizeStackMemory: true,
	})
	if err := stdlib.OpenLibs(L); err != nil {
		L.Close()
		return nil, fmt.Errorf("open libraries: %w", err)
	}

	e := &Executor{
		L:      L,
		host:   host,
		src:    src,
		cfg:    cfg,
		logger: logger,
		envs:   cfg.envs,
	}
	e.modules = memcache.New[string, *Unit](cfg.moduleCacheSize,
		func(u *Unit) int { return u.Size },
		memcache.WithLogger[string, *Unit](logger),
	)

	if e.envs == nil {
		sb, err := stdlib.NewSandbox(L, e)
		if err != nil {
			L.Close()
			return nil, fmt.Errorf("create sandbox: %w", err)
		}
		e.envs = sb
	}

	tramp, err := L.LoadString(trampolineSource)
	if err != nil {
		L.Close()
		return nil, fmt.Errorf("load trampoline: %w", err)
	}
	e.trampoline = tramp
	return e, nil
}

// Run executes req.Function from module req.Module, compiling the module
// unless a unit for req.ID is cached. Budget violations and fatal host
// errors discard all output.
func (e *Executor) Run(ctx context.Context, req Request, opts ...Option) Result {
	cfg := e.cfg.run
	for _, opt := range opts {
		opt(&cfg)
	}
	return e.run(ctx, req, nil, cfg)
}

func (e *Executor) run(ctx context.Context, req Request, parent *Execution, cfg runConfig) Result {
	start := time.Now()
	if e.closed {
		return Result{Error: ErrClosed}
	}
	if len(e.active) >= e.cfg.maxDepth {
		return Result{Error: ErrDepthExceeded}
	}
	if req.Frame == nil {
		req.Frame = &hostfunc.Frame{Title: req.Module, Args: map[string]string{}}
	}

	x := &Execution{
		ID:      uuid.Must(uuid.NewV7()),
		Request: req,
		exec:    e,
		ctx:     ctx,
		state:   StateLoaded,
	}
	unit, err := e.load(ctx, req)
	if err != nil {
		return Result{Error: err, Duration: time.Since(start)}
	}
	x.unit = unit

	var up *governor
	resumer := e.L
	if parent != nil {
		up = parent.gov
		if parent.running != nil {
			resumer = parent.running
		}
	}
	x.gov = newGovernor(ctx, up, cfg)
	defer x.gov.release()

	th, cancel := e.L.NewThread()
	if cancel != nil {
		defer cancel()
	}
	th.SetContext(x.gov)
	x.thread, x.running = th, th

	e.active = append(e.active, x)
	defer func() { e.active = e.active[:len(e.active)-1] }()

	out, err := x.start(resumer)
	res := Result{
		Duration: time.Since(start),
		Quanta:   x.gov.quanta.Load(),
	}
	if err != nil {
		x.state = StateFailed
		res.Error = err
		if IsResourceExceeded(err) {
			e.logger.Warn("execution exceeded budget",
				"execution", x.ID, "module", req.Module, "function", req.Function, "error", err)
		} else {
			e.logger.Debug("execution failed",
				"execution", x.ID, "module", req.Module, "function", req.Function, "error", err)
		}
		return res
	}
	x.state = StateCompleted
	res.Output = out
	return res
}

// load returns the cached unit for req.ID, compiling it on a miss.
func (e *Executor) load(ctx context.Context, req Request) (*Unit, error) {
	if req.ID == "" {
		return nil, fmt.Errorf("executor: no content id for module %q", req.Module)
	}
	if u, ok := e.modules.Get(req.ID); ok {
		e.stats.Hits++
		return u, nil
	}
	e.stats.Misses++

	src, err := e.src.Source(ctx, req.ID)
	if err != nil {
		return nil, fmt.Errorf("fetch module %s: %w", req.Module, err)
	}
	u, err := e.compile(req, src)
	if err != nil {
		return nil, err
	}
	if err := e.modules.Insert(req.ID, u); err != nil {
		e.logger.Debug("module not cached", "module", req.Module, "size", u.Size, "error", err)
	}
	return u, nil
}

func (e *Executor) compile(req Request, src string) (*Unit, error) {
	var before uint64
	if e.cfg.measureSize {
		before = settledHeap()
	}

	env, err := e.envs.NewEnv(e.L)
	if err != nil {
		return nil, fmt.Errorf("build environment for %s: %w", req.Module, err)
	}
	chunk, err := parse.Parse(strings.NewReader(src), req.Module)
	if err != nil {
		return nil, &ScriptError{Module: req.Module, Message: err.Error()}
	}
	proto, err := lua.Compile(chunk, req.Module)
	if err != nil {
		return nil, &ScriptError{Module: req.Module, Message: err.Error()}
	}
	fn := e.L.NewFunctionFromProto(proto)
	fn.Env = env

	u := &Unit{ID: req.ID, Module: req.Module, Fn: fn, Env: env}
	u.Size = len(src)
	if e.cfg.measureSize {
		// The delta is approximate and can come out negative when the
		// collector reclaims unrelated garbage in between.
		if after := settledHeap(); after > before && int(after-before) > u.Size {
			u.Size = int(after - before)
		}
	}
	e.stats.Compiles++
	e.logger.Debug("compiled module", "module", req.Module, "id", req.ID, "size", u.Size)
	return u, nil
}

// HostCall hands call to the host on behalf of the running execution.
// The execution is Yielded until the host returns. Fatal errors and
// budget violations abort the execution; other errors are raised in the
// script by the caller.
func (e *Executor) HostCall(L *lua.LState, call hostfunc.Call) error {
	x := e.current()
	if x == nil {
		return ErrNoExecution
	}
	if e.host == nil {
		return &hostfunc.CallError{Kind: call.Kind(), Err: ErrNoHost}
	}

	prev := x.running
	x.state, x.pending, x.running = StateYielded, call, L
	e.logger.Debug("host call", "execution", x.ID, "kind", call.Kind())
	err := e.host.Dispatch(x.ctx, x, call)
	x.state, x.pending, x.running = StateRunning, nil, prev

	if err != nil && (hostfunc.IsFatal(err) || IsResourceExceeded(err) || x.ctx.Err() != nil) {
		x.gov.abort(err)
	}
	return err
}

// Frame resolves a frame id for the running execution.
func (e *Executor) Frame(_ *lua.LState, id hostfunc.FrameID) (*hostfunc.Frame, bool) {
	x := e.current()
	if x == nil {
		return nil, false
	}
	return x.Frame(id)
}

// Logger returns the executor's logger.
func (e *Executor) Logger() *slog.Logger { return e.logger }

func (e *Executor) current() *Execution {
	if len(e.active) == 0 {
		return nil
	}
	return e.active[len(e.active)-1]
}

// Stats returns module cache counters.
func (e *Executor) Stats() Stats {
	s := e.stats
	s.CacheBytes = e.modules.Size()
	s.CacheEntries = e.modules.Len()
	return s
}

// Evict drops the cached unit for a content id.
func (e *Executor) Evict(id string) bool {
	return e.modules.Remove(id)
}

// Close releases the VM. Run fails with ErrClosed afterwards.
func (e *Executor) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	e.modules.Clear()
	e.L.Close()
	return nil
}
