package stdlib

import (
	"strings"
	"unicode/utf8"

	lua "github.com/yuin/gopher-lua"

	"github.com/caffeineduck/wikilua/pattern"
)

func (sb *Sandbox) stringFuncs() map[string]lua.LGFunction {
	return map[string]lua.LGFunction{
		"find":   func(L *lua.LState) int { return sb.find(L, false, true) },
		"match":  func(L *lua.LState) int { return sb.find(L, false, false) },
		"gmatch": func(L *lua.LState) int { return sb.gmatch(L, false) },
		"gsub":   func(L *lua.LState) int { return sb.gsub(L, false) },
	}
}

// posrelat converts a possibly negative 1-based position to a
// non-negative one.
func posrelat(pos, n int) int {
	if pos >= 0 {
		return pos
	}
	if -pos > n {
		return 0
	}
	return n + pos + 1
}

func toText(s string, unicode bool) pattern.Text {
	if unicode {
		return pattern.NewRunes(s)
	}
	return pattern.Bytes(s)
}

func checkUTF8(L *lua.LState, n int, s string) {
	if !utf8.ValidString(s) {
		L.ArgError(n, "string is not UTF-8")
	}
}

// subject reads the string and pattern arguments shared by the pattern
// family.
func subject(L *lua.LState, unicode bool) (string, string, pattern.Text) {
	s := L.CheckString(1)
	pat := L.CheckString(2)
	if unicode {
		checkUTF8(L, 1, s)
		checkUTF8(L, 2, pat)
	}
	return s, pat, toText(s, unicode)
}

// initArg reads the optional init argument at n as a 0-based element
// offset clamped to [0, len].
func initArg(L *lua.LState, n int, text pattern.Text) int {
	l := text.Len()
	init := posrelat(L.OptInt(n, 1), l) - 1
	if init < 0 {
		return 0
	}
	if init > l {
		return l
	}
	return init
}

func pushValues(L *lua.LState, vals []pattern.Value) int {
	for _, v := range vals {
		L.Push(luaValue(v))
	}
	return len(vals)
}

func luaValue(v pattern.Value) lua.LValue {
	if v.Position {
		return lua.LNumber(v.Pos)
	}
	return lua.LString(v.Str)
}

// find implements both find and match.
func (sb *Sandbox) find(L *lua.LState, unicode, isFind bool) int {
	s, pat, text := subject(L, unicode)
	init := initArg(L, 3, text)

	if isFind && (lua.LVAsBool(L.Get(4)) || !pattern.HasSpecials(pat)) {
		off := text.Offset(init)
		idx := strings.Index(s[off:], pat)
		if idx < 0 {
			L.Push(lua.LNil)
			return 1
		}
		L.Push(lua.LNumber(text.Index(off+idx) + 1))
		L.Push(lua.LNumber(text.Index(off + idx + len(pat))))
		return 2
	}

	p := sb.compile(L, pat, unicode, false)
	m, err := p.Find(text, init)
	if err != nil {
		L.RaiseError("%s", err.Error())
	}
	if m == nil {
		L.Push(lua.LNil)
		return 1
	}
	if !isFind {
		return pushValues(L, m.Values(text))
	}
	L.Push(lua.LNumber(m.Start + 1))
	L.Push(lua.LNumber(m.End))
	if len(m.Captures) == 0 {
		return 2
	}
	return 2 + pushValues(L, m.Values(text))
}

// gmatch returns an iterator over successive matches. A leading '^' is a
// literal here, and an empty match right where the previous match ended
// is skipped.
func (sb *Sandbox) gmatch(L *lua.LState, unicode bool) int {
	_, pat, text := subject(L, unicode)
	n := text.Len()
	src := posrelat(L.OptInt(3, 1), n) - 1
	if src < 0 {
		src = 0
	}
	p := sb.compile(L, pat, unicode, true)
	last := -1

	L.Push(L.NewFunction(func(L *lua.LState) int {
		for src <= n {
			m, err := p.Find(text, src)
			if err != nil {
				L.RaiseError("%s", err.Error())
			}
			if m == nil {
				src = n + 1
				break
			}
			if m.End == last {
				src = m.Start + 1
				continue
			}
			src, last = m.End, m.End
			return pushValues(L, m.Values(text))
		}
		return 0
	}))
	return 1
}

// gsub substitutes with a template string, a table or a function. Table
// lookups go through metamethods when the table has a metatable, and
// functions are called on the running thread, so both run under the
// same budget as the script.
func (sb *Sandbox) gsub(L *lua.LState, unicode bool) int {
	_, pat, text := subject(L, unicode)
	repl := L.Get(3)
	switch repl.Type() {
	case lua.LTString, lua.LTNumber, lua.LTTable, lua.LTFunction:
	default:
		L.ArgError(3, "string/function/table expected")
	}
	max := -1
	if L.Get(4) != lua.LNil {
		if max = L.CheckInt(4); max < 0 {
			max = 0
		}
	}

	p := sb.compile(L, pat, unicode, false)
	g := pattern.NewGSub(p, max)
	tmpl := lua.LVAsString(repl)
	for {
		m, err := g.Next(text)
		if err != nil {
			L.RaiseError("%s", err.Error())
		}
		if m == nil {
			break
		}

		var v lua.LValue
		switch r := repl.(type) {
		case *lua.LTable:
			key := luaValue(m.Values(text)[0])
			if r.Metatable == nil || r.Metatable == lua.LNil {
				v = r.RawGet(key)
			} else {
				v = L.GetTable(r, key)
			}
		case *lua.LFunction:
			vals := m.Values(text)
			args := make([]lua.LValue, len(vals))
			for i, val := range vals {
				args[i] = luaValue(val)
			}
			L.CallByParam(lua.P{Fn: r, NRet: 1, Protect: false}, args...)
			v = L.Get(-1)
			L.Pop(1)
		default:
			out, err := pattern.ExpandTemplate(tmpl, text, m)
			if err != nil {
				L.RaiseError("%s", err.Error())
			}
			g.Replace(text, &out)
			continue
		}

		switch v.Type() {
		case lua.LTNil:
			g.Replace(text, nil)
		case lua.LTBool:
			if v == lua.LFalse {
				g.Replace(text, nil)
				break
			}
			L.RaiseError("invalid replacement value (a %s)", v.Type().String())
		case lua.LTString, lua.LTNumber:
			out := lua.LVAsString(v)
			g.Replace(text, &out)
		default:
			L.RaiseError("invalid replacement value (a %s)", v.Type().String())
		}
	}
	out, count := g.Finish(text)
	L.Push(lua.LString(out))
	L.Push(lua.LNumber(count))
	return 2
}
