package tooling

import "fmt"

// ErrorKind classifies tool execution failures.
type ErrorKind string

const (
	ErrNotFound         ErrorKind = "not_found"
	ErrInvalidArguments ErrorKind = "invalid_arguments"
	ErrExecution        ErrorKind = "execution"
	ErrTimeout          ErrorKind = "timeout"
	ErrUnauthorized     ErrorKind = "unauthorized"
	ErrOther            ErrorKind = "other"
)

// Error is a classified tool failure carrying the tool and call it
// belongs to.
type Error struct {
	Kind    ErrorKind
	Tool    string
	CallID  string
	Message string
	Err     error
}

func (e *Error) Error() string {
	name := e.Tool
	if name == "" {
		name = "<unknown>"
	}
	if e.Err != nil {
		return fmt.Sprintf("tool %s: %s (%s): %v", name, e.Message, e.Kind, e.Err)
	}
	return fmt.Sprintf("tool %s: %s (%s)", name, e.Message, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether re-running the call could succeed.
func (e *Error) Retryable() bool { return e.Kind == ErrTimeout }

// UserFacing reports whether the failure should be surfaced to the model
// as an error tool result rather than aborting the turn.
func (e *Error) UserFacing() bool {
	switch e.Kind {
	case ErrNotFound, ErrInvalidArguments, ErrExecution, ErrUnauthorized:
		return true
	}
	return false
}
