// Package hostfunc defines the boundary between running template modules and
// the renderer that hosts them.
//
// Scripts cannot reach anything outside their sandbox on their own. Every
// operation that needs the renderer (expanding a template, reading frame
// arguments, restoring strip markers) is issued as a [Call], a closed set of
// request types that also carry their result fields. The executor hands the
// call to a [Host], which fills in the result before the script continues.
//
// # Calls
//
// The six variants are [CallParserFunction], [ExpandTemplate],
// [GetAllExpandedArguments], [GetExpandedArgument], [Preprocess] and
// [Unstrip]. A host switches on the concrete type:
//
//	func (r *Renderer) Dispatch(ctx context.Context, s hostfunc.Session, call hostfunc.Call) error {
//	    switch c := call.(type) {
//	    case *hostfunc.ExpandTemplate:
//	        c.Result, err = r.expand(ctx, s, c.Title, c.Args)
//	    ...
//	    }
//	}
//
// Errors returned from Dispatch are raised in the script as ordinary errors
// that pcall can catch. Wrap an error with [Fatal] to abort the whole
// execution instead.
//
// # Parser functions
//
// The [Registry] holds parser functions by name. [RegisterBuiltins] adds lc,
// uc, lcfirst, ucfirst, #if, #ifeq and #tag:
//
//	registry := hostfunc.NewRegistry()
//	hostfunc.RegisterBuiltins(registry)
//	registry.Register("#len", func(ctx context.Context, f *hostfunc.Frame, args []string) (string, error) {
//	    return strconv.Itoa(utf8.RuneCountInString(args[0])), nil
//	})
package hostfunc
