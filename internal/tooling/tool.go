package tooling

import (
	"context"

	"github.com/fyrsmithlabs/harnessd/internal/provider"
)

// Tool is an invocable capability exposed to the model.
type Tool interface {
	// Definition describes the tool for inclusion in provider requests.
	Definition() provider.ToolDefinition

	// Invoke runs the tool with raw JSON arguments and returns its output.
	Invoke(ctx context.Context, argsJSON string, ec ExecutionContext) (string, error)
}

// ExecutionContext carries ambient identity for a tool invocation.
type ExecutionContext struct {
	SessionID string
	RunID     string
	Metadata  map[string]string
}

// ExecutionResult is the outcome of one tool call, shaped for feeding
// back to the model.
type ExecutionResult struct {
	CallID   string
	ToolName string
	Content  string
	IsError  bool
}

// FuncTool wraps a plain function as a Tool.
type FuncTool struct {
	Def provider.ToolDefinition
	Fn  func(ctx context.Context, argsJSON string, ec ExecutionContext) (string, error)
}

func (t *FuncTool) Definition() provider.ToolDefinition { return t.Def }

func (t *FuncTool) Invoke(ctx context.Context, argsJSON string, ec ExecutionContext) (string, error) {
	return t.Fn(ctx, argsJSON, ec)
}
