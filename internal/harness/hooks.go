package harness

import "time"

// RuntimeHooks observe run phases. They are fire and forget: the harness
// never consults them for control flow, and fault isolation is the
// implementation's responsibility.
type RuntimeHooks interface {
	OnPhaseStart(phase Phase, sessionID, runID string)
	OnPhaseSuccess(phase Phase, sessionID, runID string, elapsed time.Duration)
	OnPhaseFailure(phase Phase, sessionID, runID string, err error, elapsed time.Duration)
}

// NoopRuntimeHooks discards all events.
type NoopRuntimeHooks struct{}

func (NoopRuntimeHooks) OnPhaseStart(Phase, string, string)                         {}
func (NoopRuntimeHooks) OnPhaseSuccess(Phase, string, string, time.Duration)        {}
func (NoopRuntimeHooks) OnPhaseFailure(Phase, string, string, error, time.Duration) {}
