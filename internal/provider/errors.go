package provider

import "fmt"

// ErrorKind classifies provider failures.
type ErrorKind string

const (
	ErrInvalidRequest ErrorKind = "invalid_request"
	ErrAuth           ErrorKind = "auth"
	ErrRateLimited    ErrorKind = "rate_limited"
	ErrTimeout        ErrorKind = "timeout"
	ErrTransport      ErrorKind = "transport"
	ErrProvider       ErrorKind = "provider"
	ErrOther          ErrorKind = "other"
)

// Error is a classified provider failure.
type Error struct {
	Kind     ErrorKind
	Provider ID
	Message  string
	Err      error
}

func (e *Error) Error() string {
	prefix := "provider"
	if e.Provider != "" {
		prefix = fmt.Sprintf("provider %s", e.Provider)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%s): %v", prefix, e.Message, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s (%s)", prefix, e.Message, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether a retry of the same request could succeed.
// Retry policy itself is owned by the caller.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case ErrRateLimited, ErrTimeout, ErrTransport:
		return true
	}
	return false
}

func wrapErr(id ID, kind ErrorKind, msg string, err error) *Error {
	return &Error{Kind: kind, Provider: id, Message: msg, Err: err}
}
