package stdlib

import (
	"strconv"

	lua "github.com/yuin/gopher-lua"

	"github.com/caffeineduck/wikilua/hostfunc"
)

var unstripModes = map[string]hostfunc.UnstripMode{
	"orig":   hostfunc.ModeOrigText,
	"nowiki": hostfunc.ModeUnstripNoWiki,
	"all":    hostfunc.ModeUnstrip,
}

// ifaceTable builds the private interface mw.lua is loaded with.
func (sb *Sandbox) ifaceTable(L *lua.LState) *lua.LTable {
	t := L.NewTable()
	for name, fn := range map[string]lua.LGFunction{
		"frameExists":             sb.frameExists,
		"frameTitle":              sb.frameTitle,
		"getAllExpandedArguments": sb.getAllExpandedArguments,
		"getExpandedArgument":     sb.getExpandedArgument,
		"expandTemplate":          sb.expandTemplate,
		"callParserFunction":      sb.callParserFunction,
		"preprocess":              sb.preprocess,
		"unstrip":                 sb.unstrip,
		"log":                     sb.log,
	} {
		t.RawSetString(name, L.NewFunction(fn))
	}
	t.RawSetString("ustring", sb.ustringTable(L))
	return t
}

func checkFrameID(L *lua.LState, n int) hostfunc.FrameID {
	id := hostfunc.FrameID(L.CheckString(n))
	if id != hostfunc.CurrentFrame && id != hostfunc.ParentFrame {
		L.ArgError(n, "invalid frame id")
	}
	return id
}

func (sb *Sandbox) frameExists(L *lua.LState) int {
	_, ok := sb.hooks.Frame(L, checkFrameID(L, 1))
	L.Push(lua.LBool(ok))
	return 1
}

func (sb *Sandbox) frameTitle(L *lua.LState) int {
	f, ok := sb.hooks.Frame(L, checkFrameID(L, 1))
	if !ok {
		L.RaiseError("frame not found")
	}
	L.Push(lua.LString(f.Title))
	return 1
}

func (sb *Sandbox) getAllExpandedArguments(L *lua.LState) int {
	call := &hostfunc.GetAllExpandedArguments{Frame: checkFrameID(L, 1)}
	sb.hostCall(L, call)
	L.Push(argsTable(L, call.Result))
	return 1
}

func (sb *Sandbox) getExpandedArgument(L *lua.LState) int {
	call := &hostfunc.GetExpandedArgument{
		Frame: checkFrameID(L, 1),
		Key:   L.CheckString(2),
	}
	sb.hostCall(L, call)
	if !call.Found {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(lua.LString(call.Result))
	return 1
}

func (sb *Sandbox) expandTemplate(L *lua.LState) int {
	call := &hostfunc.ExpandTemplate{
		Frame: checkFrameID(L, 1),
		Title: L.CheckString(2),
		Args:  tableArgs(L, 3),
	}
	sb.hostCall(L, call)
	L.Push(lua.LString(call.Result))
	return 1
}

func (sb *Sandbox) callParserFunction(L *lua.LState) int {
	call := &hostfunc.CallParserFunction{
		Frame: checkFrameID(L, 1),
		Name:  L.CheckString(2),
	}
	list := L.CheckTable(3)
	for i := 1; i <= list.Len(); i++ {
		v := list.RawGetInt(i)
		if !isStringLike(v) {
			L.ArgError(3, "arguments must be strings or numbers")
		}
		call.Args = append(call.Args, lua.LVAsString(v))
	}
	sb.hostCall(L, call)
	L.Push(lua.LString(call.Result))
	return 1
}

func (sb *Sandbox) preprocess(L *lua.LState) int {
	call := &hostfunc.Preprocess{
		Frame: checkFrameID(L, 1),
		Text:  L.CheckString(2),
	}
	sb.hostCall(L, call)
	L.Push(lua.LString(call.Result))
	return 1
}

func (sb *Sandbox) unstrip(L *lua.LState) int {
	text := L.CheckString(1)
	mode, ok := unstripModes[L.OptString(2, "all")]
	if !ok {
		L.ArgError(2, "invalid unstrip mode")
	}
	call := &hostfunc.Unstrip{Text: text, Mode: mode}
	sb.hostCall(L, call)
	L.Push(lua.LString(call.Result))
	return 1
}

func (sb *Sandbox) log(L *lua.LState) int {
	sb.hooks.Logger().Debug("mw.log", "message", L.CheckString(1))
	return 0
}

// argsTable converts frame arguments to a table, with keys that are
// canonical integers stored as numbers.
func argsTable(L *lua.LState, args map[string]string) *lua.LTable {
	t := L.CreateTable(0, len(args))
	for k, v := range args {
		if n, err := strconv.Atoi(k); err == nil && len(k) < 16 && strconv.Itoa(n) == k {
			t.RawSetInt(n, lua.LString(v))
			continue
		}
		t.RawSetString(k, lua.LString(v))
	}
	return t
}

// tableArgs converts the optional table at n to template arguments.
func tableArgs(L *lua.LState, n int) map[string]string {
	args := map[string]string{}
	t := L.OptTable(n, nil)
	if t == nil {
		return args
	}
	t.ForEach(func(k, v lua.LValue) {
		if !isStringLike(k) {
			L.ArgError(n, "argument keys must be strings or numbers")
		}
		if !isStringLike(v) {
			L.ArgError(n, "invalid type "+v.Type().String()+" for argument '"+lua.LVAsString(k)+"'")
		}
		args[lua.LVAsString(k)] = lua.LVAsString(v)
	})
	return args
}

func isStringLike(v lua.LValue) bool {
	t := v.Type()
	return t == lua.LTString || t == lua.LTNumber
}
