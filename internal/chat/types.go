package chat

import "github.com/fyrsmithlabs/harnessd/internal/provider"

// Session identifies the conversation a turn belongs to.
type Session struct {
	ID           string
	Model        string
	SystemPrompt string
}

// TurnRequest asks for one conversational turn.
type TurnRequest struct {
	Session     Session
	UserInput   string
	Temperature *float64
	MaxTokens   int
}

// TurnResult is the outcome of one completed turn.
type TurnResult struct {
	SessionID             string
	AssistantMessage      string
	ToolCalls             []provider.ToolCall
	StopReason            provider.StopReason
	Usage                 provider.Usage
	ToolRoundLimitReached bool
}

// EventKind discriminates streaming turn events.
type EventKind string

const (
	EventTextDelta     EventKind = "text_delta"
	EventToolCallDelta EventKind = "tool_call_delta"
	EventToolStart     EventKind = "tool_start"
	EventToolFinish    EventKind = "tool_finish"
	EventTurnComplete  EventKind = "turn_complete"
	EventError         EventKind = "error"
)

// Event is one item on a streaming turn. The channel is closed after a
// terminal event (EventTurnComplete or EventError).
type Event struct {
	Kind     EventKind
	Text     string
	ToolCall *provider.ToolCall
	ToolName string
	Turn     *TurnResult
	Err      error
}
