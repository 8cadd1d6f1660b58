package pattern

import (
	"errors"
	"fmt"
)

// ErrTooComplex is returned when matching recurses deeper than the
// matcher allows.
var ErrTooComplex = errors.New("pattern too complex")

// SyntaxError reports a malformed pattern. Msg carries the message the
// scripting language itself uses for the same mistake.
type SyntaxError struct {
	Pattern string
	Msg     string
}

func (e *SyntaxError) Error() string {
	return e.Msg
}

// CaptureIndexError reports a %N in a replacement string that refers to a
// capture the pattern does not have.
type CaptureIndexError struct {
	Index int
}

func (e *CaptureIndexError) Error() string {
	return fmt.Sprintf("invalid capture index %%%d in replacement string", e.Index)
}

// ReplacementError reports a malformed replacement string or a replacement
// value of the wrong type.
type ReplacementError struct {
	Msg string
}

func (e *ReplacementError) Error() string {
	return e.Msg
}

func syntaxErr(p Text, format string, args ...any) error {
	return &SyntaxError{Pattern: p.String(), Msg: fmt.Sprintf(format, args...)}
}
