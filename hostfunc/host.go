package hostfunc

import (
	"context"
	"errors"
	"fmt"
)

// Frame is the context a module function runs in: the page or template
// being rendered and the arguments it was called with. Args are already
// expanded; positional arguments use the keys "1", "2" and so on.
type Frame struct {
	Title  string
	Args   map[string]string
	Parent *Frame
}

// Child returns a new frame whose parent is f.
func (f *Frame) Child(title string, args map[string]string) *Frame {
	if args == nil {
		args = map[string]string{}
	}
	return &Frame{Title: title, Args: args, Parent: f}
}

// Invocation names a module function to run.
type Invocation struct {
	Module   string
	ID       string
	Function string
	Frame    *Frame
}

// Session is the view of a running execution the host gets while it
// serves a call.
type Session interface {
	// Frame resolves a frame id against the execution's current frame.
	Frame(id FrameID) (*Frame, bool)
	// Invoke runs another module function nested inside the current
	// execution and returns its output.
	Invoke(ctx context.Context, inv Invocation) (string, error)
}

// Host performs calls on behalf of scripts. Dispatch fills in the result
// fields of call. A returned error is raised in the script; errors marked
// with Fatal abort the whole execution instead.
type Host interface {
	Dispatch(ctx context.Context, s Session, call Call) error
}

// HostFunc adapts a function to Host.
type HostFunc func(ctx context.Context, s Session, call Call) error

func (f HostFunc) Dispatch(ctx context.Context, s Session, call Call) error {
	return f(ctx, s, call)
}

// CallError is a failed host call.
type CallError struct {
	Kind  Kind
	Err   error
	Fatal bool
}

func (e *CallError) Error() string {
	if e.Kind == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

// Fatal marks err so that it cannot be caught by the script.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	var ce *CallError
	if errors.As(err, &ce) {
		return &CallError{Kind: ce.Kind, Err: ce.Err, Fatal: true}
	}
	return &CallError{Err: err, Fatal: true}
}

// IsFatal reports whether err was marked with Fatal.
func IsFatal(err error) bool {
	var ce *CallError
	return errors.As(err, &ce) && ce.Fatal
}

// ErrNoSuchFrame is returned for a frame id with no frame behind it, such
// as the parent of a top-level invocation.
var ErrNoSuchFrame = errors.New("no such frame")

// ErrNotFound is returned when a template or module does not exist.
var ErrNotFound = errors.New("page not found")
