package executor

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	lua "github.com/yuin/gopher-lua"

	"github.com/caffeineduck/wikilua/hostfunc"
)

// State is the lifecycle position of an Execution.
type State int

const (
	StateLoaded State = iota
	StateRunning
	StateYielded
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateLoaded:
		return "loaded"
	case StateRunning:
		return "running"
	case StateYielded:
		return "yielded"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Execution is one run of a module function. It is the hostfunc.Session
// the host sees while serving the execution's calls.
type Execution struct {
	ID      uuid.UUID
	Request Request

	exec    *Executor
	ctx     context.Context
	unit    *Unit
	gov     *governor
	thread  *lua.LState
	running *lua.LState
	state   State
	pending hostfunc.Call
}

// State returns the current state.
func (x *Execution) State() State { return x.state }

// Pending returns the host call the execution is suspended on, if any.
func (x *Execution) Pending() hostfunc.Call { return x.pending }

// Frame resolves a frame id against the execution's frame.
func (x *Execution) Frame(id hostfunc.FrameID) (*hostfunc.Frame, bool) {
	f := x.Request.Frame
	switch id {
	case hostfunc.CurrentFrame:
	case hostfunc.ParentFrame:
		f = f.Parent
	default:
		return nil, false
	}
	return f, f != nil
}

// Invoke runs another module function nested inside this execution. The
// nested execution shares this one's budgets.
func (x *Execution) Invoke(ctx context.Context, inv hostfunc.Invocation) (string, error) {
	res := x.exec.run(ctx, inv, x, x.exec.cfg.run)
	return res.Output, res.Error
}

// start runs the trampoline on the execution thread to completion, to a
// top-level yield or to an error.
func (x *Execution) start(resumer *lua.LState) (string, error) {
	x.state = StateRunning
	env := cloneEnv(x.exec.L, x.unit.Env)
	chunk := x.exec.L.NewFunctionFromProto(x.unit.Fn.Proto)
	chunk.Env = env
	st, err, vals := resumer.Resume(x.thread, x.exec.trampoline,
		chunk, env, lua.LString(x.Request.Function))

	if gerr := x.gov.tripped(); gerr != nil {
		return "", gerr
	}
	switch st {
	case lua.ResumeError:
		return "", &ScriptError{Module: x.Request.Module, Message: luaErrorMessage(err)}
	case lua.ResumeYield:
		return "", &TypeError{Module: x.Request.Module, Msg: "module function yielded instead of returning"}
	}
	return render(x.Request.Module, vals)
}

// render concatenates the values returned by a module function.
func render(module string, vals []lua.LValue) (string, error) {
	var b strings.Builder
	for _, v := range vals {
		switch v.Type() {
		case lua.LTNil:
		case lua.LTString, lua.LTNumber:
			b.WriteString(lua.LVAsString(v))
		default:
			return "", &TypeError{Module: module, Msg: "cannot render a " + v.Type().String() + " result"}
		}
	}
	return b.String(), nil
}

func luaErrorMessage(err error) string {
	var apiErr *lua.ApiError
	if errors.As(err, &apiErr) && apiErr.Object != nil {
		return apiErr.Object.String()
	}
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}

// cloneEnv copies a unit's environment for one execution, so globals a
// module sets or removes stay out of later executions of the unit. Nested
// tables are copied; functions and metatables are shared.
func cloneEnv(L *lua.LState, env *lua.LTable) *lua.LTable {
	seen := map[*lua.LTable]*lua.LTable{}
	var clone func(t *lua.LTable) *lua.LTable
	clone = func(t *lua.LTable) *lua.LTable {
		if c, ok := seen[t]; ok {
			return c
		}
		c := L.NewTable()
		seen[t] = c
		t.ForEach(func(k, v lua.LValue) {
			if vt, ok := v.(*lua.LTable); ok {
				v = clone(vt)
			}
			c.RawSet(k, v)
		})
		c.Metatable = t.Metatable
		return c
	}
	return clone(env)
}
