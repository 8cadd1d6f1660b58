package executor

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrClosed is returned by Run after Close.
	ErrClosed = errors.New("executor closed")
	// ErrDepthExceeded is returned when nested invocations go deeper than
	// the configured maximum.
	ErrDepthExceeded = errors.New("too many nested module invocations")
	// ErrNoHost is returned for host calls made by an executor built
	// without a host.
	ErrNoHost = errors.New("no host configured")
	// ErrNoExecution is returned for host calls made while nothing runs.
	ErrNoExecution = errors.New("no running execution")
)

// ResourceKind names the budget an execution ran out of.
type ResourceKind int

const (
	ResourceTime ResourceKind = iota + 1
	ResourceMemory
)

func (k ResourceKind) String() string {
	switch k {
	case ResourceTime:
		return "time"
	case ResourceMemory:
		return "memory"
	default:
		return "unknown"
	}
}

// ResourceExceededError is a budget violation. It cannot be caught by the
// script and discards all output of the execution.
type ResourceExceededError struct {
	Kind ResourceKind
	// Limit and Used are nanoseconds for ResourceTime and heap bytes for
	// ResourceMemory.
	Limit int64
	Used  int64
}

func (e *ResourceExceededError) Error() string {
	if e.Kind == ResourceTime {
		return fmt.Sprintf("resource exceeded: time (%v elapsed, limit %v)",
			time.Duration(e.Used).Round(time.Millisecond), time.Duration(e.Limit))
	}
	return fmt.Sprintf("resource exceeded: %s (%d bytes, limit %d)", e.Kind, e.Used, e.Limit)
}

// IsResourceExceeded reports whether err is or wraps a ResourceExceededError.
func IsResourceExceeded(err error) bool {
	var re *ResourceExceededError
	return errors.As(err, &re)
}

// TypeError is a module function result that cannot be rendered, or a
// yield out of the top-level function.
type TypeError struct {
	Module string
	Msg    string
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("%s: %s", e.Module, e.Msg)
}

// ScriptError is an error raised by the script or by the library code it
// called, including syntax errors found while compiling the module.
type ScriptError struct {
	Module  string
	Message string
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("script error in %s: %s", e.Module, e.Message)
}
