package link

import (
	"errors"
	"fmt"
)

// ErrorKind classifies link I/O failures so callers can fold them into domain state.
type ErrorKind int

const (
	Timeout ErrorKind = iota + 1
	LinkFailure
	Closed
)

func (k ErrorKind) String() string {
	switch k {
	case Timeout:
		return "timeout"
	case LinkFailure:
		return "link failure"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Error is returned by every Link operation.
type Error struct {
	Op   string
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("link %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("link %s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrTimeout) works
// regardless of the operation.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrTimeout     = &Error{Op: "any", Kind: Timeout}
	ErrLinkFailure = &Error{Op: "any", Kind: LinkFailure}
	ErrClosed      = &Error{Op: "any", Kind: Closed}
)

// KindOf reports the ErrorKind of err, or zero if err is not a link error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
