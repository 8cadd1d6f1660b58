// Package stdlib builds the sandboxed environment template modules run in.
//
// A [Sandbox] is created once per VM. It swaps the pattern functions of the
// VM's shared string library (find, match, gmatch, gsub) for ones built on
// package pattern, and compiles the embedded mw library. [Sandbox.NewEnv]
// then returns a fresh global table for each module: the safe subset of the
// base library, copies of string, table, math and coroutine, a reduced os
// table (clock, date, difftime, time) and mw.
//
// Everything that needs the renderer goes through [Hooks.HostCall] as a
// hostfunc.Call; the executor implements Hooks.
package stdlib
