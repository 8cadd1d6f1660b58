// Package executor runs Lua template modules under CPU and memory budgets.
//
// # Overview
//
// An [Executor] owns one gopher-lua VM and a cache of compiled modules
// keyed by content id. Each [Executor.Run] looks the module up (compiling
// it on a miss), starts a fresh thread for the execution and runs the
// requested export with the current frame.
//
// The thread's context is a governor. The VM polls it before every
// instruction, and every poll burns fuel; after each quantum of
// instructions the governor checks elapsed time, heap growth and the
// caller's context. A violation is final: the execution fails with
// [ResourceExceededError] and its output is discarded, even if the script
// wraps the work in pcall.
//
// # Basic Usage
//
//	exec, err := executor.New(host, store)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer exec.Close()
//
//	res := exec.Run(ctx, executor.Request{
//	    Module:   "Module:Hello",
//	    ID:       id,
//	    Function: "hello",
//	    Frame:    frame,
//	})
//	fmt.Println(res.Output)
//
// # Host Calls
//
// Library code such as frame:expandTemplate issues a hostfunc.Call through
// [Executor.HostCall]. The execution moves to StateYielded, the host fills
// in the call, and the script continues with the result. Hosts may run
// other modules from inside a call through hostfunc.Session.Invoke; the
// nested execution shares its caller's budgets.
//
// # Pools
//
// An Executor is single-goroutine. [Pool] gives each worker its own
// Executor and feeds them from a queue.
package executor
