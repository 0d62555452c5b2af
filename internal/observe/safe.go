package observe

import (
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/harnessd/internal/harness"
)

// SafeRuntimeHooks wraps another hook set and swallows panics, so a
// faulty observer can never take a run down with it.
type SafeRuntimeHooks struct {
	inner  harness.RuntimeHooks
	logger *zap.Logger
}

// NewSafeRuntimeHooks wraps inner. A nil inner becomes a no-op.
func NewSafeRuntimeHooks(inner harness.RuntimeHooks, logger *zap.Logger) *SafeRuntimeHooks {
	if inner == nil {
		inner = harness.NoopRuntimeHooks{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SafeRuntimeHooks{inner: inner, logger: logger}
}

func (h *SafeRuntimeHooks) guard(event string) {
	if r := recover(); r != nil {
		h.logger.Error("runtime hook panicked",
			zap.String("event", event),
			zap.Any("panic", r),
		)
	}
}

func (h *SafeRuntimeHooks) OnPhaseStart(phase harness.Phase, sessionID, runID string) {
	defer h.guard("phase_start")
	h.inner.OnPhaseStart(phase, sessionID, runID)
}

func (h *SafeRuntimeHooks) OnPhaseSuccess(phase harness.Phase, sessionID, runID string, elapsed time.Duration) {
	defer h.guard("phase_success")
	h.inner.OnPhaseSuccess(phase, sessionID, runID, elapsed)
}

func (h *SafeRuntimeHooks) OnPhaseFailure(phase harness.Phase, sessionID, runID string, err error, elapsed time.Duration) {
	defer h.guard("phase_failure")
	h.inner.OnPhaseFailure(phase, sessionID, runID, err, elapsed)
}

// FanoutRuntimeHooks forwards each event to every hook set in order.
type FanoutRuntimeHooks struct {
	hooks []harness.RuntimeHooks
}

// NewFanoutRuntimeHooks combines hook sets.
func NewFanoutRuntimeHooks(hooks ...harness.RuntimeHooks) *FanoutRuntimeHooks {
	return &FanoutRuntimeHooks{hooks: hooks}
}

func (h *FanoutRuntimeHooks) OnPhaseStart(phase harness.Phase, sessionID, runID string) {
	for _, hook := range h.hooks {
		hook.OnPhaseStart(phase, sessionID, runID)
	}
}

func (h *FanoutRuntimeHooks) OnPhaseSuccess(phase harness.Phase, sessionID, runID string, elapsed time.Duration) {
	for _, hook := range h.hooks {
		hook.OnPhaseSuccess(phase, sessionID, runID, elapsed)
	}
}

func (h *FanoutRuntimeHooks) OnPhaseFailure(phase harness.Phase, sessionID, runID string, err error, elapsed time.Duration) {
	for _, hook := range h.hooks {
		hook.OnPhaseFailure(phase, sessionID, runID, err, elapsed)
	}
}
