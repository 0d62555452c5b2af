package tooling

import "time"

// Hooks observe tool executions. Implementations contain their own
// failures and are never consulted for control flow.
type Hooks interface {
	OnToolStart(tool, callID string)
	OnToolSuccess(tool, callID string, elapsed time.Duration)
	OnToolFailure(tool, callID string, err error, elapsed time.Duration)
}

// NoopHooks discards all events.
type NoopHooks struct{}

func (NoopHooks) OnToolStart(string, string)                         {}
func (NoopHooks) OnToolSuccess(string, string, time.Duration)        {}
func (NoopHooks) OnToolFailure(string, string, error, time.Duration) {}
