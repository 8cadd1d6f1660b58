// Package wikilua runs wiki template modules written in Lua outside the
// wiki, under per-execution time and memory budgets.
//
// # Overview
//
// A module is a Lua chunk stored as a page in the Module namespace. It
// returns a table of functions; an invocation calls one of them with a
// frame carrying the invocation arguments. Modules reach back into the
// wiki through six host calls: argument lookup, template expansion,
// parser functions, preprocessing and strip marker handling.
//
// # Basic Usage
//
//	store := content.NewMemoryStore()
//	store.Put(ctx, "Module:Greet", src)
//
//	r := render.New(store, nil)
//	exec, _ := executor.New(r, store)
//	defer exec.Close()
//
//	out, err := r.Render(ctx, exec, "Module:Greet", "hello",
//	    map[string]string{"1": "world"})
//
// Compiled modules are cached per executor by content id, so a module is
// compiled once however often it is invoked. Use an [executor.Pool] to
// render on several goroutines.
//
// See the [executor], [render], [stdlib], [pattern], [memcache], [content]
// and [hostfunc] packages for detailed API documentation.
package wikilua
