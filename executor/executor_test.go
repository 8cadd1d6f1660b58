package executor_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/caffeineduck/wikilua/executor"
	"github.com/caffeineduck/wikilua/hostfunc"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// argsHost resolves frame arguments and hands every other call to next.
func argsHost(next func(ctx context.Context, s hostfunc.Session, call hostfunc.Call) error) hostfunc.Host {
	return hostfunc.HostFunc(func(ctx context.Context, s hostfunc.Session, call hostfunc.Call) error {
		switch c := call.(type) {
		case *hostfunc.GetExpandedArgument:
			f, ok := s.Frame(c.Frame)
			if !ok {
				return hostfunc.ErrNoSuchFrame
			}
			c.Result, c.Found = f.Args[c.Key]
			return nil
		case *hostfunc.GetAllExpandedArguments:
			f, ok := s.Frame(c.Frame)
			if !ok {
				return hostfunc.ErrNoSuchFrame
			}
			c.Result = f.Args
			return nil
		}
		if next == nil {
			return errors.New("unexpected call")
		}
		return next(ctx, s, call)
	})
}

func newExecutor(t *testing.T, host hostfunc.Host, modules map[string]string, opts ...executor.ExecutorOption) *executor.Executor {
	t.Helper()
	src := executor.MapSource{}
	for name, code := range modules {
		src[name] = code
	}
	opts = append([]executor.ExecutorOption{
		executor.WithGCMeasurement(false),
		executor.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}, opts...)
	e, err := executor.New(host, src, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func request(module, fn string, args map[string]string) executor.Request {
	if args == nil {
		args = map[string]string{}
	}
	return executor.Request{
		Module:   module,
		ID:       module,
		Function: fn,
		Frame:    &hostfunc.Frame{Title: module, Args: args},
	}
}

// =============================================================================
// Results
// =============================================================================

func TestRunReturnsOutput(t *testing.T) {
	e := newExecutor(t, argsHost(nil), map[string]string{
		"Module:Hello": `
local p = {}
function p.hello(frame)
	return "Hello, " .. frame.args.name .. "!"
end
return p`,
	})

	res := e.Run(context.Background(), request("Module:Hello", "hello", map[string]string{"name": "World"}))
	require.NoError(t, res.Error)
	assert.Equal(t, "Hello, World!", res.Output)
	assert.Greater(t, res.Duration, time.Duration(0))
}

func TestRunConcatenatesResults(t *testing.T) {
	e := newExecutor(t, nil, map[string]string{
		"Module:M": `return { main = function() return "a", 1, nil, "b" end }`,
	})

	res := e.Run(context.Background(), request("Module:M", "main", nil))
	require.NoError(t, res.Error)
	assert.Equal(t, "a1b", res.Output)
}

func TestRunResultErrors(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		fn      string
		check   func(t *testing.T, err error)
		message string
	}{
		{
			name: "table result",
			code: `return { main = function() return {} end }`,
			check: func(t *testing.T, err error) {
				var te *executor.TypeError
				assert.ErrorAs(t, err, &te)
			},
			message: "cannot render a table result",
		},
		{
			name: "top-level yield",
			code: `return { main = function() coroutine.yield("x") return "y" end }`,
			check: func(t *testing.T, err error) {
				var te *executor.TypeError
				assert.ErrorAs(t, err, &te)
			},
			message: "yielded",
		},
		{
			name: "script error",
			code: `return { main = function() error("boom") end }`,
			check: func(t *testing.T, err error) {
				var se *executor.ScriptError
				assert.ErrorAs(t, err, &se)
			},
			message: "boom",
		},
		{
			name: "syntax error",
			code: `return {`,
			check: func(t *testing.T, err error) {
				var se *executor.ScriptError
				assert.ErrorAs(t, err, &se)
			},
		},
		{
			name: "missing function",
			code: `return {}`,
			check: func(t *testing.T, err error) {
				var se *executor.ScriptError
				assert.ErrorAs(t, err, &se)
			},
			message: "does not exist",
		},
		{
			name: "module without exports",
			code: `return 42`,
			check: func(t *testing.T, err error) {
				var se *executor.ScriptError
				assert.ErrorAs(t, err, &se)
			},
			message: "did not return a table",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newExecutor(t, nil, map[string]string{"Module:M": tt.code})
			res := e.Run(context.Background(), request("Module:M", "main", nil))
			require.Error(t, res.Error)
			assert.Empty(t, res.Output)
			tt.check(t, res.Error)
			if tt.message != "" {
				assert.Contains(t, res.Error.Error(), tt.message)
			}
		})
	}
}

func TestRunWithoutSource(t *testing.T) {
	e := newExecutor(t, nil, nil)
	res := e.Run(context.Background(), request("Module:Missing", "main", nil))
	require.Error(t, res.Error)
	assert.Contains(t, res.Error.Error(), "Module:Missing")
}

// =============================================================================
// Host calls
// =============================================================================

func TestHostCallRoundTrip(t *testing.T) {
	var calls []*hostfunc.ExpandTemplate
	host := argsHost(func(_ context.Context, _ hostfunc.Session, call hostfunc.Call) error {
		c, ok := call.(*hostfunc.ExpandTemplate)
		if !ok {
			return errors.New("unexpected call")
		}
		calls = append(calls, c)
		c.Result = "X"
		return nil
	})
	e := newExecutor(t, host, map[string]string{
		"Module:T": `
local p = {}
function p.main(frame)
	return frame:expandTemplate{ title = "T", args = { "a", k = "v" } }
end
return p`,
	})

	res := e.Run(context.Background(), request("Module:T", "main", nil))
	require.NoError(t, res.Error)
	assert.Equal(t, "X", res.Output)
	require.Len(t, calls, 1)
	assert.Equal(t, "T", calls[0].Title)
	assert.Equal(t, map[string]string{"1": "a", "k": "v"}, calls[0].Args)

	res = e.Run(context.Background(), request("Module:T", "main", nil))
	require.NoError(t, res.Error)
	assert.Equal(t, "X", res.Output)

	stats := e.Stats()
	assert.Equal(t, 1, stats.Compiles)
	assert.Equal(t, 1, stats.Hits)
	assert.Equal(t, 1, stats.Misses)
	assert.Equal(t, 1, stats.CacheEntries)
}

func TestExecutionStateDuringHostCall(t *testing.T) {
	var seen []executor.State
	var pending hostfunc.Call
	host := argsHost(func(_ context.Context, s hostfunc.Session, call hostfunc.Call) error {
		x := s.(*executor.Execution)
		seen = append(seen, x.State())
		pending = x.Pending()
		call.(*hostfunc.Preprocess).Result = "ok"
		return nil
	})
	e := newExecutor(t, host, map[string]string{
		"Module:S": `return { main = function(frame) return frame:preprocess("x") end }`,
	})

	res := e.Run(context.Background(), request("Module:S", "main", nil))
	require.NoError(t, res.Error)
	assert.Equal(t, []executor.State{executor.StateYielded}, seen)
	assert.IsType(t, &hostfunc.Preprocess{}, pending)
}

func TestHostErrors(t *testing.T) {
	tests := []struct {
		name    string
		hostErr error
		want    string
		fatal   bool
	}{
		{name: "catchable", hostErr: hostfunc.ErrNotFound, want: "caught"},
		{name: "fatal", hostErr: hostfunc.Fatal(errors.New("store unavailable")), fatal: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host := argsHost(func(context.Context, hostfunc.Session, hostfunc.Call) error {
				return tt.hostErr
			})
			e := newExecutor(t, host, map[string]string{
				"Module:E": `
local p = {}
function p.main(frame)
	local ok = pcall(frame.expandTemplate, frame, { title = "Gone" })
	if not ok then
		return "caught"
	end
	return "expanded"
end
return p`,
			})

			res := e.Run(context.Background(), request("Module:E", "main", nil))
			if tt.fatal {
				require.Error(t, res.Error)
				assert.True(t, hostfunc.IsFatal(res.Error))
				assert.Empty(t, res.Output)
				return
			}
			require.NoError(t, res.Error)
			assert.Equal(t, tt.want, res.Output)
		})
	}
}

func TestNestedInvoke(t *testing.T) {
	host := argsHost(func(ctx context.Context, s hostfunc.Session, call hostfunc.Call) error {
		c := call.(*hostfunc.ExpandTemplate)
		parent, _ := s.Frame(c.Frame)
		out, err := s.Invoke(ctx, hostfunc.Invocation{
			Module:   "Module:Inner",
			ID:       "Module:Inner",
			Function: "main",
			Frame:    parent.Child("Template:"+c.Title, c.Args),
		})
		c.Result = out
		return err
	})
	e := newExecutor(t, host, map[string]string{
		"Module:Outer": `
local p = {}
function p.main(frame)
	return "outer(" .. frame:expandTemplate{ title = "Inner", args = { "v" } } .. ")"
end
return p`,
		"Module:Inner": `
local p = {}
function p.main(frame)
	return "inner:" .. frame.args[1] .. "@" .. frame:getParent():getTitle()
end
return p`,
	})

	res := e.Run(context.Background(), request("Module:Outer", "main", nil))
	require.NoError(t, res.Error)
	assert.Equal(t, "outer(inner:v@Module:Outer)", res.Output)
}

func TestNestedDepthLimit(t *testing.T) {
	host := argsHost(func(ctx context.Context, s hostfunc.Session, call hostfunc.Call) error {
		c := call.(*hostfunc.ExpandTemplate)
		out, err := s.Invoke(ctx, hostfunc.Invocation{
			Module:   "Module:Self",
			ID:       "Module:Self",
			Function: "main",
		})
		c.Result = out
		return err
	})
	e := newExecutor(t, host, map[string]string{
		"Module:Self": `
local p = {}
function p.main(frame)
	local ok, res = pcall(frame.expandTemplate, frame, { title = "Self" })
	if not ok then
		return "bottom"
	end
	return "(" .. res .. ")"
end
return p`,
	}, executor.WithMaxDepth(5))

	res := e.Run(context.Background(), request("Module:Self", "main", nil))
	require.NoError(t, res.Error)
	assert.Equal(t, "((((bottom))))", res.Output)
}

// =============================================================================
// Budgets
// =============================================================================

func TestTimeout(t *testing.T) {
	tests := []struct {
		name string
		code string
	}{
		{name: "plain loop", code: `return { main = function() while true do end end }`},
		{name: "loop inside pcall", code: `return { main = function()
			while true do pcall(function() while true do end end) end
		end }`},
		{name: "script coroutine", code: `return { main = function()
			local co = coroutine.create(function() while true do end end)
			coroutine.resume(co)
			return "escaped"
		end }`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newExecutor(t, nil, map[string]string{"Module:Loop": tt.code})

			start := time.Now()
			res := e.Run(context.Background(), request("Module:Loop", "main", nil),
				executor.WithTimeout(200*time.Millisecond))
			require.Error(t, res.Error)
			assert.Less(t, time.Since(start), 5*time.Second)
			assert.Empty(t, res.Output)

			var re *executor.ResourceExceededError
			require.ErrorAs(t, res.Error, &re)
			assert.Equal(t, executor.ResourceTime, re.Kind)
		})
	}
}

func TestNestedTimeoutAbortsCaller(t *testing.T) {
	host := argsHost(func(ctx context.Context, s hostfunc.Session, call hostfunc.Call) error {
		c := call.(*hostfunc.ExpandTemplate)
		out, err := s.Invoke(ctx, hostfunc.Invocation{Module: "Module:Spin", ID: "Module:Spin", Function: "main"})
		c.Result = out
		return err
	})
	e := newExecutor(t, host, map[string]string{
		"Module:Outer": `return { main = function(frame)
			pcall(frame.expandTemplate, frame, { title = "Spin" })
			return "recovered"
		end }`,
		"Module:Spin": `return { main = function() while true do end end }`,
	})

	res := e.Run(context.Background(), request("Module:Outer", "main", nil),
		executor.WithTimeout(200*time.Millisecond))
	require.Error(t, res.Error)
	assert.True(t, executor.IsResourceExceeded(res.Error))
	assert.Empty(t, res.Output)
}

func TestMemoryLimit(t *testing.T) {
	e := newExecutor(t, nil, map[string]string{
		"Module:Hog": `return { main = function()
			local t, i = {}, 0
			while true do
				i = i + 1
				t[i] = string.rep("x", 64) .. i
			end
		end }`,
	})

	res := e.Run(context.Background(), request("Module:Hog", "main", nil),
		executor.WithTimeout(30*time.Second),
		executor.WithMemoryLimit(executor.MemoryLimit16MB))
	require.Error(t, res.Error)

	var re *executor.ResourceExceededError
	require.ErrorAs(t, res.Error, &re)
	assert.Equal(t, executor.ResourceMemory, re.Kind)
	assert.Empty(t, res.Output)
}

func TestCoroutinesSpendExecutionBudgets(t *testing.T) {
	e := newExecutor(t, nil, map[string]string{
		"Module:Hog": `return { main = function()
			local co = coroutine.create(function()
				local t, i = {}, 0
				while true do
					i = i + 1
					t[i] = string.rep("x", 64) .. i
				end
			end)
			coroutine.resume(co)
			return "escaped"
		end }`,
		"Module:Spin": `return { main = function()
			local spin = coroutine.wrap(function() while true do end end)
			pcall(spin)
			return "escaped"
		end }`,
	})

	t.Run("memory", func(t *testing.T) {
		res := e.Run(context.Background(), request("Module:Hog", "main", nil),
			executor.WithTimeout(30*time.Second),
			executor.WithMemoryLimit(executor.MemoryLimit16MB))
		var re *executor.ResourceExceededError
		require.ErrorAs(t, res.Error, &re)
		assert.Equal(t, executor.ResourceMemory, re.Kind)
		assert.Positive(t, res.Quanta)
		assert.Empty(t, res.Output)
	})

	t.Run("cancel", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		start := time.Now()
		res := e.Run(ctx, request("Module:Spin", "main", nil), executor.WithTimeout(30*time.Second))
		assert.ErrorIs(t, res.Error, context.DeadlineExceeded)
		assert.Less(t, time.Since(start), 5*time.Second)
	})
}

// ballast is live host memory that is no concern of the scripts.
var ballast [][]byte

func TestMemoryLimitIgnoresHostGarbage(t *testing.T) {
	for i := 0; i < 8; i++ {
		ballast = append(ballast, make([]byte, 16<<20))
	}
	defer func() { ballast = nil }()

	e := newExecutor(t, nil, map[string]string{
		"Module:Churn": `return { main = function()
			local n = 0
			for i = 1, 20000 do
				local s = string.rep("x", 10000) .. i
				n = n + #s
			end
			return n
		end }`,
	})

	res := e.Run(context.Background(), request("Module:Churn", "main", nil),
		executor.WithTimeout(30*time.Second),
		executor.WithMemoryLimit(executor.MemoryLimit16MB))
	require.NoError(t, res.Error)
	assert.Equal(t, "200088894", res.Output)
}

func TestContextCancel(t *testing.T) {
	e := newExecutor(t, nil, map[string]string{
		"Module:Loop": `return { main = function() while true do end end }`,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	res := e.Run(ctx, request("Module:Loop", "main", nil))
	require.Error(t, res.Error)
	assert.ErrorIs(t, res.Error, context.DeadlineExceeded)
}

func TestQuantaCounted(t *testing.T) {
	e := newExecutor(t, nil, map[string]string{
		"Module:Count": `return { main = function()
			local n = 0
			for i = 1, 100000 do n = n + i end
			return n
		end }`,
	})

	res := e.Run(context.Background(), request("Module:Count", "main", nil), executor.WithQuantum(1000))
	require.NoError(t, res.Error)
	assert.Equal(t, "5000050000", res.Output)
	assert.Greater(t, res.Quanta, int64(50))
}

// =============================================================================
// Module cache
// =============================================================================

func TestModuleTooLargeForCache(t *testing.T) {
	e := newExecutor(t, nil, map[string]string{
		"Module:Big": `return { main = function() return "big" end }`,
	}, executor.WithModuleCacheSize(8))

	for i := 0; i < 2; i++ {
		res := e.Run(context.Background(), request("Module:Big", "main", nil))
		require.NoError(t, res.Error)
		assert.Equal(t, "big", res.Output)
	}
	stats := e.Stats()
	assert.Equal(t, 2, stats.Compiles)
	assert.Zero(t, stats.CacheEntries)
}

func TestModuleCacheEvicts(t *testing.T) {
	a := `return { main = function() return "a" end }`
	b := `return { main = function() return "b" end }`
	e := newExecutor(t, nil, map[string]string{"Module:A": a, "Module:B": b},
		executor.WithModuleCacheSize(len(a)+len(b)/2))

	for _, m := range []string{"Module:A", "Module:B", "Module:A"} {
		res := e.Run(context.Background(), request(m, "main", nil))
		require.NoError(t, res.Error)
	}
	stats := e.Stats()
	assert.Equal(t, 3, stats.Compiles)
	assert.Equal(t, 1, stats.CacheEntries)
	assert.LessOrEqual(t, stats.CacheBytes, len(a)+len(b)/2)
}

func TestGCMeasuredSize(t *testing.T) {
	src := `return { main = function() return "m" end }`
	e := newExecutor(t, nil, map[string]string{"Module:M": src}, executor.WithGCMeasurement(true))

	res := e.Run(context.Background(), request("Module:M", "main", nil))
	require.NoError(t, res.Error)
	assert.GreaterOrEqual(t, e.Stats().CacheBytes, len(src))
}

func TestClosedExecutor(t *testing.T) {
	e := newExecutor(t, nil, nil)
	require.NoError(t, e.Close())
	res := e.Run(context.Background(), request("Module:M", "main", nil))
	assert.ErrorIs(t, res.Error, executor.ErrClosed)
}

func TestEnvironmentIsSandboxed(t *testing.T) {
	e := newExecutor(t, nil, map[string]string{
		"Module:Probe": `return { main = function()
			return tostring(io) .. tostring(require) .. tostring(os.exit) .. type(string.find)
		end }`,
	})

	res := e.Run(context.Background(), request("Module:Probe", "main", nil))
	require.NoError(t, res.Error)
	assert.Equal(t, "nilnilnilfunction", res.Output)
}

func TestGlobalsStayInOneExecution(t *testing.T) {
	e := newExecutor(t, nil, map[string]string{
		"Module:Messy": `
local p = {}
function p.set()
	seen = (seen or 0) + 1
	mw = nil
	string.upper = nil
	return seen
end
function p.upper()
	return string.upper("a") .. tostring(seen)
end
return p`,
	})

	for i := 0; i < 2; i++ {
		res := e.Run(context.Background(), request("Module:Messy", "set", nil))
		require.NoError(t, res.Error)
		assert.Equal(t, "1", res.Output)
	}
	res := e.Run(context.Background(), request("Module:Messy", "upper", nil))
	require.NoError(t, res.Error)
	assert.Equal(t, "Anil", res.Output)
	assert.Equal(t, 1, e.Stats().Compiles)
}

func TestErrorMessagesNameModule(t *testing.T) {
	e := newExecutor(t, nil, map[string]string{
		"Module:Fail": `return { main = function() local x = nil; return x.y end }`,
	})
	res := e.Run(context.Background(), request("Module:Fail", "main", nil))
	require.Error(t, res.Error)
	assert.True(t, strings.Contains(res.Error.Error(), "Module:Fail"))
}
