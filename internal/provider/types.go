package provider

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ID identifies a model provider.
type ID string

const (
	IDAnthropic ID = "anthropic"
	IDOpenAI    ID = "openai"
)

// Role is a conversational message role.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry in a conversation transcript.
type Message struct {
	Role       Role   `json:"role"`
	Content    string `json:"content"`
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// ToolDefinition describes a tool the model may call.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

// ToolCall is a model-issued request to invoke a tool.
type ToolCall struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	ArgumentsJSON string `json:"arguments_json"`
}

// ToolResult carries the outcome of a tool invocation back to the model.
type ToolResult struct {
	CallID  string `json:"call_id"`
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`
}

// StopReason reports why the model stopped generating.
type StopReason string

const (
	StopEndTurn   StopReason = "end_turn"
	StopToolUse   StopReason = "tool_use"
	StopMaxTokens StopReason = "max_tokens"
	StopOther     StopReason = "other"
)

// Usage is token accounting for a single completion.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Request is a single completion request.
type Request struct {
	Model       string
	Messages    []Message
	Temperature *float64
	MaxTokens   int
	Tools       []ToolDefinition
	ToolResults []ToolResult
	Metadata    map[string]string
}

// Validate checks the request for structural problems before dispatch.
func (r *Request) Validate() error {
	if strings.TrimSpace(r.Model) == "" {
		return &Error{Kind: ErrInvalidRequest, Message: "model is required"}
	}
	if len(r.Messages) == 0 {
		return &Error{Kind: ErrInvalidRequest, Message: "at least one message is required"}
	}
	for i, m := range r.Messages {
		if m.Role == "" {
			return &Error{Kind: ErrInvalidRequest, Message: fmt.Sprintf("message %d has no role", i)}
		}
	}
	if r.Temperature != nil && (*r.Temperature < 0 || *r.Temperature > 2) {
		return &Error{Kind: ErrInvalidRequest, Message: fmt.Sprintf("temperature %v out of range [0, 2]", *r.Temperature)}
	}
	if r.MaxTokens < 0 {
		return &Error{Kind: ErrInvalidRequest, Message: "max_tokens cannot be negative"}
	}
	for i, t := range r.Tools {
		if strings.TrimSpace(t.Name) == "" {
			return &Error{Kind: ErrInvalidRequest, Message: fmt.Sprintf("tool %d has no name", i)}
		}
	}
	return nil
}

// Response is the assistant output of a single completion.
type Response struct {
	Provider   ID
	Model      string
	Message    string
	ToolCalls  []ToolCall
	StopReason StopReason
	Usage      Usage
}
