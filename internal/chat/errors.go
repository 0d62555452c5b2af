package chat

import "fmt"

// ErrorKind classifies turn failures.
type ErrorKind string

const (
	ErrInvalidRequest ErrorKind = "invalid_request"
	ErrProvider       ErrorKind = "provider"
	ErrStore          ErrorKind = "store"
	ErrTooling        ErrorKind = "tooling"
)

// Phase marks where in the turn a failure happened.
type Phase string

const (
	PhasePrepare  Phase = "prepare"
	PhaseComplete Phase = "complete"
	PhaseTooling  Phase = "tooling"
	PhasePersist  Phase = "persist"
	PhaseStream   Phase = "stream"
)

// Error is a classified turn failure.
type Error struct {
	Kind    ErrorKind
	Phase   Phase
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("chat %s: %s (%s): %v", e.Phase, e.Message, e.Kind, e.Err)
	}
	return fmt.Sprintf("chat %s: %s (%s)", e.Phase, e.Message, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(kind ErrorKind, phase Phase, msg string, err error) *Error {
	return &Error{Kind: kind, Phase: phase, Message: msg, Err: err}
}
