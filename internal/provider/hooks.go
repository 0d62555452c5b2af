package provider

import "time"

// OperationHooks observe individual provider calls. Implementations must
// not block and must contain their own failures; the caller never consults
// them for control flow.
type OperationHooks interface {
	OnCallStart(provider ID, model string)
	OnCallSuccess(provider ID, model string, usage Usage, elapsed time.Duration)
	OnCallFailure(provider ID, model string, err error, elapsed time.Duration)
}

// NoopOperationHooks discards all events.
type NoopOperationHooks struct{}

func (NoopOperationHooks) OnCallStart(ID, string)                         {}
func (NoopOperationHooks) OnCallSuccess(ID, string, Usage, time.Duration) {}
func (NoopOperationHooks) OnCallFailure(ID, string, error, time.Duration) {}
