package tooling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/harnessd/internal/provider"
	"go.uber.org/zap"
)

// Runtime executes model-issued tool calls.
type Runtime interface {
	// Execute runs one tool call. Failures that the model should see
	// come back as a classified *Error with UserFacing() true.
	Execute(ctx context.Context, call provider.ToolCall, ec ExecutionContext) (ExecutionResult, error)

	// Definitions lists the tools available to the model.
	Definitions() []provider.ToolDefinition
}

// RegistryRuntime executes calls against a Registry.
type RegistryRuntime struct {
	registry *Registry
	hooks    Hooks
	logger   *zap.Logger
}

// NewRegistryRuntime builds a runtime over the given registry.
func NewRegistryRuntime(registry *Registry, hooks Hooks, logger *zap.Logger) (*RegistryRuntime, error) {
	if registry == nil {
		return nil, errors.New("tooling: registry is required")
	}
	if hooks == nil {
		hooks = NoopHooks{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RegistryRuntime{registry: registry, hooks: hooks, logger: logger}, nil
}

// Execute implements Runtime.
func (r *RegistryRuntime) Execute(ctx context.Context, call provider.ToolCall, ec ExecutionContext) (ExecutionResult, error) {
	tool, ok := r.registry.Get(call.Name)
	if !ok {
		err := &Error{Kind: ErrNotFound, Tool: call.Name, CallID: call.ID,
			Message: "tool is not registered"}
		r.hooks.OnToolFailure(call.Name, call.ID, err, 0)
		return ExecutionResult{}, err
	}

	r.hooks.OnToolStart(call.Name, call.ID)
	start := time.Now()
	output, err := tool.Invoke(ctx, call.ArgumentsJSON, ec)
	elapsed := time.Since(start)
	if err != nil {
		terr := classifyInvokeErr(call, err)
		r.hooks.OnToolFailure(call.Name, call.ID, terr, elapsed)
		r.logger.Warn("tool invocation failed",
			zap.String("tool", call.Name),
			zap.String("call_id", call.ID),
			zap.Duration("elapsed", elapsed),
			zap.Error(terr),
		)
		return ExecutionResult{}, terr
	}

	r.hooks.OnToolSuccess(call.Name, call.ID, elapsed)
	return ExecutionResult{
		CallID:   call.ID,
		ToolName: call.Name,
		Content:  output,
	}, nil
}

// Definitions implements Runtime.
func (r *RegistryRuntime) Definitions() []provider.ToolDefinition {
	return r.registry.Definitions()
}

func classifyInvokeErr(call provider.ToolCall, err error) *Error {
	var terr *Error
	if errors.As(err, &terr) {
		if terr.Tool == "" {
			terr.Tool = call.Name
		}
		if terr.CallID == "" {
			terr.CallID = call.ID
		}
		return terr
	}
	kind := ErrExecution
	if errors.Is(err, context.DeadlineExceeded) {
		kind = ErrTimeout
	}
	return &Error{Kind: kind, Tool: call.Name, CallID: call.ID,
		Message: fmt.Sprintf("invocation failed: %v", err), Err: err}
}
