package harness

import (
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/harnessd/internal/memory"
)

// ErrorKind classifies run failures.
type ErrorKind string

const (
	ErrInvalidRequest ErrorKind = "invalid_request"
	ErrMemory         ErrorKind = "memory"
	ErrChat           ErrorKind = "chat"
	ErrValidation     ErrorKind = "validation"
	ErrHealthCheck    ErrorKind = "health_check"
	ErrNotReady       ErrorKind = "not_ready"
)

// Error is a classified run failure.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("harness: %s (%s): %v", e.Message, e.Kind, e.Err)
	}
	return fmt.Sprintf("harness: %s (%s)", e.Message, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(kind ErrorKind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// fromMemoryErr maps backend failures onto the run taxonomy. A missing
// session surfaces as NotReady so callers know to initialize first.
func fromMemoryErr(msg string, err error) *Error {
	var merr *memory.Error
	if errors.As(err, &merr) && merr.Kind == memory.ErrNotFound {
		return newErr(ErrNotReady, msg, err)
	}
	return newErr(ErrMemory, msg, err)
}

func fromChatErr(msg string, err error) *Error {
	return newErr(ErrChat, msg, err)
}
