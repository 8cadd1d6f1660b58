package stdlib

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"

	"github.com/caffeineduck/wikilua/hostfunc"
	"github.com/caffeineduck/wikilua/memcache"
	"github.com/caffeineduck/wikilua/pattern"
)

//go:embed mw.lua
var mwSource string

// patternCacheBytes bounds the compiled pattern cache of one Sandbox.
const patternCacheBytes = 1 << 20

// Hooks connects the library to the execution that is running it.
type Hooks interface {
	// HostCall hands call to the host and returns once its result fields
	// are filled in.
	HostCall(L *lua.LState, call hostfunc.Call) error
	// Frame resolves a frame id for the running execution.
	Frame(L *lua.LState, id hostfunc.FrameID) (*hostfunc.Frame, bool)
	Logger() *slog.Logger
}

// safeGlobals are the base library functions a sandbox gets.
var safeGlobals = []string{
	"assert", "error", "getmetatable", "ipairs", "next", "pairs", "pcall",
	"rawequal", "rawget", "rawset", "select", "setmetatable", "tonumber",
	"tostring", "type", "unpack", "xpcall", "_VERSION",
}

var safeOS = []string{"clock", "date", "difftime", "time"}

// OpenLibs opens the libraries sandboxes are built from. The global
// environment of L itself is never handed to scripts.
func OpenLibs(L *lua.LState) error {
	for _, lib := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
		{lua.OsLibName, lua.OpenOs},
		{lua.CoroutineLibName, lua.OpenCoroutine},
	} {
		if err := L.CallByParam(lua.P{
			Fn:      L.NewFunction(lib.fn),
			NRet:    0,
			Protect: true,
		}, lua.LString(lib.name)); err != nil {
			return fmt.Errorf("open %s: %w", lib.name, err)
		}
	}
	return nil
}

// Sandbox builds script environments for one VM. It is not safe for
// concurrent use; neither is the VM.
type Sandbox struct {
	hooks    Hooks
	patterns *memcache.Cache[patternKey, *pattern.Pattern]
	mwProto  *lua.FunctionProto
}

type patternKey struct {
	src      string
	unicode  bool
	noAnchor bool
}

// NewSandbox replaces the pattern functions of L's shared string library
// and prepares the mw library. L must have been set up with OpenLibs.
func NewSandbox(L *lua.LState, hooks Hooks) (*Sandbox, error) {
	if hooks == nil {
		return nil, errors.New("stdlib: nil hooks")
	}
	chunk, err := parse.Parse(strings.NewReader(mwSource), "mw.lua")
	if err != nil {
		return nil, fmt.Errorf("parse mw.lua: %w", err)
	}
	proto, err := lua.Compile(chunk, "mw.lua")
	if err != nil {
		return nil, fmt.Errorf("compile mw.lua: %w", err)
	}

	sb := &Sandbox{
		hooks:   hooks,
		mwProto: proto,
		patterns: memcache.New[patternKey, *pattern.Pattern](patternCacheBytes, func(p *pattern.Pattern) int {
			return 64 + 16*len(p.String())
		}),
	}

	// The string metatable is the string library table itself, so method
	// calls on strings pick these up too.
	str, ok := L.GetGlobal(lua.StringLibName).(*lua.LTable)
	if !ok {
		return nil, errors.New("stdlib: string library not opened")
	}
	for name, fn := range sb.stringFuncs() {
		str.RawSetString(name, L.NewFunction(fn))
	}
	str.RawSetString("gfind", lua.LNil)
	str.RawSetString("__metatable", lua.LFalse)

	co, ok := L.GetGlobal(lua.CoroutineLibName).(*lua.LTable)
	if !ok {
		return nil, errors.New("stdlib: coroutine library not opened")
	}
	for _, name := range []string{"create", "wrap"} {
		fn, ok := co.RawGetString(name).(*lua.LFunction)
		if !ok || fn.GFunction == nil {
			return nil, fmt.Errorf("stdlib: coroutine.%s missing", name)
		}
		co.RawSetString(name, L.NewFunction(inheritContext(fn.GFunction)))
	}
	return sb, nil
}

// inheritContext makes the threads create returns run under the context
// of the calling thread. gopher-lua derives a new context for every
// thread, and instructions polling that one never reach the governor of
// the running execution.
func inheritContext(create lua.LGFunction) lua.LGFunction {
	return func(L *lua.LState) int {
		n := create(L)
		ctx := L.Context()
		if ctx == nil {
			return n
		}
		var th *lua.LState
		switch v := L.Get(-1).(type) {
		case *lua.LState:
			th = v
		case *lua.LFunction:
			// coroutine.wrap keeps its thread as the only upvalue.
			if len(v.Upvalues) > 0 {
				th, _ = v.Upvalues[0].Value().(*lua.LState)
			}
		}
		if th != nil {
			th.SetContext(ctx)
		}
		return n
	}
}

// NewEnv returns a fresh global table for one script unit.
func (sb *Sandbox) NewEnv(L *lua.LState) (*lua.LTable, error) {
	env := L.NewTable()
	for _, name := range safeGlobals {
		env.RawSetString(name, L.GetGlobal(name))
	}
	for _, lib := range []string{lua.StringLibName, lua.TabLibName, lua.MathLibName, lua.CoroutineLibName} {
		src, ok := L.GetGlobal(lib).(*lua.LTable)
		if !ok {
			return nil, fmt.Errorf("stdlib: %s library not opened", lib)
		}
		env.RawSetString(lib, copyTable(L, src))
	}
	osLib := L.NewTable()
	if src, ok := L.GetGlobal(lua.OsLibName).(*lua.LTable); ok {
		for _, name := range safeOS {
			osLib.RawSetString(name, src.RawGetString(name))
		}
	}
	env.RawSetString(lua.OsLibName, osLib)
	env.RawSetString("_G", env)

	fn := L.NewFunctionFromProto(sb.mwProto)
	fn.Env = env
	if err := L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, sb.ifaceTable(L), env); err != nil {
		return nil, fmt.Errorf("load mw library: %w", err)
	}
	mw := L.Get(-1)
	L.Pop(1)
	env.RawSetString("mw", mw)
	return env, nil
}

// copyTable copies the functions and values of a library table, leaving
// out metamethod keys.
func copyTable(L *lua.LState, src *lua.LTable) *lua.LTable {
	dst := L.NewTable()
	src.ForEach(func(k, v lua.LValue) {
		if s, ok := k.(lua.LString); ok && strings.HasPrefix(string(s), "__") {
			return
		}
		dst.RawSet(k, v)
	})
	return dst
}

func (sb *Sandbox) compile(L *lua.LState, src string, unicode, noAnchor bool) *pattern.Pattern {
	key := patternKey{src: src, unicode: unicode, noAnchor: noAnchor}
	if p, ok := sb.patterns.Get(key); ok {
		return p
	}
	var text pattern.Text = pattern.Bytes(src)
	var opts []pattern.Option
	if unicode {
		text = pattern.NewRunes(src)
		opts = append(opts, pattern.Unicode())
	}
	if noAnchor {
		opts = append(opts, pattern.NoAnchor())
	}
	p, err := pattern.Compile(text, opts...)
	if err != nil {
		L.RaiseError("%s", err.Error())
	}
	_ = sb.patterns.Insert(key, p)
	return p
}

func (sb *Sandbox) hostCall(L *lua.LState, call hostfunc.Call) {
	if err := sb.hooks.HostCall(L, call); err != nil {
		L.RaiseError("%s", err.Error())
	}
}
