package provider

import (
	"context"
	"errors"
	"strings"
)

// classifyTransportErr maps an SDK transport error onto the local taxonomy.
// The SDKs do not expose stable typed errors across versions, so this
// matches on status text.
func classifyTransportErr(err error) ErrorKind {
	if err == nil {
		return ErrOther
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrTimeout
	}
	s := strings.ToLower(err.Error())
	switch {
	case strings.Contains(s, "401") || strings.Contains(s, "unauthorized") ||
		strings.Contains(s, "invalid api key") || strings.Contains(s, "authentication"):
		return ErrAuth
	case strings.Contains(s, "429") || strings.Contains(s, "rate limit") ||
		strings.Contains(s, "too many requests") || strings.Contains(s, "overloaded"):
		return ErrRateLimited
	case strings.Contains(s, "timeout") || strings.Contains(s, "deadline"):
		return ErrTimeout
	case strings.Contains(s, "400") || strings.Contains(s, "invalid request") ||
		strings.Contains(s, "invalid_request"):
		return ErrInvalidRequest
	case strings.Contains(s, "500") || strings.Contains(s, "502") ||
		strings.Contains(s, "503") || strings.Contains(s, "504") ||
		strings.Contains(s, "bad gateway") || strings.Contains(s, "unavailable"):
		return ErrTransport
	}
	return ErrProvider
}
