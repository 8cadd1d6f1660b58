package stdlib

import (
	"strings"
	"unicode/utf8"

	lua "github.com/yuin/gopher-lua"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"github.com/caffeineduck/wikilua/pattern"
)

// ustringTable builds mw.ustring: the string library over code points.
func (sb *Sandbox) ustringTable(L *lua.LState) *lua.LTable {
	t := L.NewTable()
	for name, fn := range map[string]lua.LGFunction{
		"find":      func(L *lua.LState) int { return sb.find(L, true, true) },
		"match":     func(L *lua.LState) int { return sb.find(L, true, false) },
		"gmatch":    func(L *lua.LState) int { return sb.gmatch(L, true) },
		"gsub":      func(L *lua.LState) int { return sb.gsub(L, true) },
		"len":       ustrLen,
		"sub":       ustrSub,
		"upper":     ustrCase(func() cases.Caser { return cases.Upper(language.Und) }),
		"lower":     ustrCase(func() cases.Caser { return cases.Lower(language.Und) }),
		"char":      ustrChar,
		"codepoint": ustrCodepoint,
		"isutf8":    ustrIsUTF8,
		"toNFC":     ustrNorm(norm.NFC),
		"toNFD":     ustrNorm(norm.NFD),
	} {
		t.RawSetString(name, L.NewFunction(fn))
	}
	return t
}

// ustrLen returns nil for invalid UTF-8.
func ustrLen(L *lua.LState) int {
	s := L.CheckString(1)
	if !utf8.ValidString(s) {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(lua.LNumber(utf8.RuneCountInString(s)))
	return 1
}

func ustrSub(L *lua.LState) int {
	s := L.CheckString(1)
	checkUTF8(L, 1, s)
	r := pattern.NewRunes(s)
	l := r.Len()
	i := posrelat(L.OptInt(2, 1), l)
	j := posrelat(L.OptInt(3, -1), l)
	if i < 1 {
		i = 1
	}
	if j > l {
		j = l
	}
	if i > j {
		L.Push(lua.LString(""))
		return 1
	}
	L.Push(lua.LString(r.Slice(i-1, j)))
	return 1
}

func ustrCase(caser func() cases.Caser) lua.LGFunction {
	return func(L *lua.LState) int {
		s := L.CheckString(1)
		checkUTF8(L, 1, s)
		L.Push(lua.LString(caser().String(s)))
		return 1
	}
}

func ustrChar(L *lua.LState) int {
	var b strings.Builder
	for i := 1; i <= L.GetTop(); i++ {
		c := L.CheckInt(i)
		if c < 0 || c > utf8.MaxRune {
			L.ArgError(i, "value out of range")
		}
		b.WriteRune(rune(c))
	}
	L.Push(lua.LString(b.String()))
	return 1
}

func ustrCodepoint(L *lua.LState) int {
	s := L.CheckString(1)
	checkUTF8(L, 1, s)
	r := pattern.NewRunes(s)
	l := r.Len()
	i := posrelat(L.OptInt(2, 1), l)
	j := posrelat(L.OptInt(3, i), l)
	if i < 1 {
		i = 1
	}
	if j > l {
		j = l
	}
	n := 0
	for k := i; k <= j; k++ {
		L.Push(lua.LNumber(r.At(k - 1)))
		n++
	}
	return n
}

func ustrIsUTF8(L *lua.LState) int {
	L.Push(lua.LBool(utf8.ValidString(L.CheckString(1))))
	return 1
}

func ustrNorm(form norm.Form) lua.LGFunction {
	return func(L *lua.LState) int {
		s := L.CheckString(1)
		if !utf8.ValidString(s) {
			L.Push(lua.LNil)
			return 1
		}
		L.Push(lua.LString(form.String(s)))
		return 1
	}
}
