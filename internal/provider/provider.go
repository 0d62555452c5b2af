package provider

import "context"

// Provider is a model backend capable of one-shot and streaming completions.
type Provider interface {
	// ID reports which backend this provider talks to.
	ID() ID

	// Complete runs a single completion and returns the full response.
	Complete(ctx context.Context, req Request) (*Response, error)

	// Stream runs a completion and emits events on the returned channel.
	// The channel is closed after a terminal event (StreamResponseComplete
	// or StreamError). Event order: zero or more deltas, then
	// StreamMessageComplete, then the terminal event.
	Stream(ctx context.Context, req Request) (<-chan StreamEvent, error)
}

// StreamEventKind discriminates stream events.
type StreamEventKind string

const (
	StreamTextDelta        StreamEventKind = "text_delta"
	StreamToolCallDelta    StreamEventKind = "tool_call_delta"
	StreamMessageComplete  StreamEventKind = "message_complete"
	StreamResponseComplete StreamEventKind = "response_complete"
	StreamError            StreamEventKind = "error"
)

// StreamEvent is one incremental event from a streaming completion.
// Exactly one payload field is set, matching Kind.
type StreamEvent struct {
	Kind      StreamEventKind
	TextDelta string
	ToolCall  *ToolCall
	Message   *Message
	Response  *Response
	Err       error
}

// CollectStream drains a stream to its final response. It returns the
// response from the terminal StreamResponseComplete event, the error from
// a StreamError event, or a transport error if the channel closes without
// either.
func CollectStream(ctx context.Context, events <-chan StreamEvent) (*Response, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, &Error{Kind: ErrTimeout, Message: "stream cancelled", Err: ctx.Err()}
		case ev, ok := <-events:
			if !ok {
				return nil, &Error{Kind: ErrTransport, Message: "stream ended without a terminal event"}
			}
			switch ev.Kind {
			case StreamResponseComplete:
				return ev.Response, nil
			case StreamError:
				return nil, ev.Err
			}
		}
	}
}

// replayStream adapts a one-shot completion into the streaming contract:
// the full assistant text as one delta, each tool call as a delta, then
// message and response completion.
func replayStream(ctx context.Context, p Provider, req Request) (<-chan StreamEvent, error) {
	out := make(chan StreamEvent, 8)
	go func() {
		defer close(out)
		resp, err := p.Complete(ctx, req)
		if err != nil {
			out <- StreamEvent{Kind: StreamError, Err: err}
			return
		}
		if resp.Message != "" {
			out <- StreamEvent{Kind: StreamTextDelta, TextDelta: resp.Message}
		}
		for i := range resp.ToolCalls {
			out <- StreamEvent{Kind: StreamToolCallDelta, ToolCall: &resp.ToolCalls[i]}
		}
		out <- StreamEvent{Kind: StreamMessageComplete, Message: &Message{
			Role:    RoleAssistant,
			Content: resp.Message,
		}}
		out <- StreamEvent{Kind: StreamResponseComplete, Response: resp}
	}()
	return out, nil
}
