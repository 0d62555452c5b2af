package memory

import "fmt"

// ErrorKind classifies backend failures.
type ErrorKind string

const (
	ErrStorage        ErrorKind = "storage"
	ErrNotFound       ErrorKind = "not_found"
	ErrInvalidRequest ErrorKind = "invalid_request"
	ErrOther          ErrorKind = "other"
)

// Error is a classified backend failure.
type Error struct {
	Kind    ErrorKind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("memory %s: %s (%s): %v", e.Op, e.Message, e.Kind, e.Err)
	}
	return fmt.Sprintf("memory %s: %s (%s)", e.Op, e.Message, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

func storageErr(op, msg string, err error) *Error {
	return &Error{Kind: ErrStorage, Op: op, Message: msg, Err: err}
}

func notFoundErr(op, msg string) *Error {
	return &Error{Kind: ErrNotFound, Op: op, Message: msg}
}

func invalidErr(op, msg string) *Error {
	return &Error{Kind: ErrInvalidRequest, Op: op, Message: msg}
}
