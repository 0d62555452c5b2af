package observe

import (
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/harnessd/internal/harness"
	"github.com/fyrsmithlabs/harnessd/internal/provider"
)

// LoggingRuntimeHooks emits one structured log line per phase event.
type LoggingRuntimeHooks struct {
	logger *zap.Logger
}

// NewLoggingRuntimeHooks builds logging hooks; a nil logger logs nowhere.
func NewLoggingRuntimeHooks(logger *zap.Logger) *LoggingRuntimeHooks {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoggingRuntimeHooks{logger: logger}
}

func (h *LoggingRuntimeHooks) OnPhaseStart(phase harness.Phase, sessionID, runID string) {
	h.logger.Info("phase started",
		zap.String("phase", string(phase)),
		zap.String("session_id", sessionID),
		zap.String("run_id", runID),
	)
}

func (h *LoggingRuntimeHooks) OnPhaseSuccess(phase harness.Phase, sessionID, runID string, elapsed time.Duration) {
	h.logger.Info("phase succeeded",
		zap.String("phase", string(phase)),
		zap.String("session_id", sessionID),
		zap.String("run_id", runID),
		zap.Duration("elapsed", elapsed),
	)
}

func (h *LoggingRuntimeHooks) OnPhaseFailure(phase harness.Phase, sessionID, runID string, err error, elapsed time.Duration) {
	h.logger.Error("phase failed",
		zap.String("phase", string(phase)),
		zap.String("session_id", sessionID),
		zap.String("run_id", runID),
		zap.Duration("elapsed", elapsed),
		zap.Error(err),
	)
}

// LoggingOperationHooks logs provider calls.
type LoggingOperationHooks struct {
	logger *zap.Logger
}

// NewLoggingOperationHooks builds provider call logging hooks.
func NewLoggingOperationHooks(logger *zap.Logger) *LoggingOperationHooks {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoggingOperationHooks{logger: logger}
}

func (h *LoggingOperationHooks) OnCallStart(id provider.ID, model string) {
	h.logger.Debug("provider call started",
		zap.String("provider", string(id)),
		zap.String("model", model),
	)
}

func (h *LoggingOperationHooks) OnCallSuccess(id provider.ID, model string, usage provider.Usage, elapsed time.Duration) {
	h.logger.Debug("provider call succeeded",
		zap.String("provider", string(id)),
		zap.String("model", model),
		zap.Int("input_tokens", usage.InputTokens),
		zap.Int("output_tokens", usage.OutputTokens),
		zap.Duration("elapsed", elapsed),
	)
}

func (h *LoggingOperationHooks) OnCallFailure(id provider.ID, model string, err error, elapsed time.Duration) {
	h.logger.Warn("provider call failed",
		zap.String("provider", string(id)),
		zap.String("model", model),
		zap.Duration("elapsed", elapsed),
		zap.Error(err),
	)
}

// LoggingToolHooks logs tool executions.
type LoggingToolHooks struct {
	logger *zap.Logger
}

// NewLoggingToolHooks builds tool execution logging hooks.
func NewLoggingToolHooks(logger *zap.Logger) *LoggingToolHooks {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoggingToolHooks{logger: logger}
}

func (h *LoggingToolHooks) OnToolStart(tool, callID string) {
	h.logger.Debug("tool started",
		zap.String("tool", tool),
		zap.String("call_id", callID),
	)
}

func (h *LoggingToolHooks) OnToolSuccess(tool, callID string, elapsed time.Duration) {
	h.logger.Debug("tool succeeded",
		zap.String("tool", tool),
		zap.String("call_id", callID),
		zap.Duration("elapsed", elapsed),
	)
}

func (h *LoggingToolHooks) OnToolFailure(tool, callID string, err error, elapsed time.Duration) {
	h.logger.Warn("tool failed",
		zap.String("tool", tool),
		zap.String("call_id", callID),
		zap.Duration("elapsed", elapsed),
		zap.Error(err),
	)
}
