package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicMaxTokens = 4096

// AnthropicConfig configures the Anthropic adapter.
type AnthropicConfig struct {
	APIKey  string
	BaseURL string
}

// Anthropic adapts the official Anthropic SDK to the Provider interface.
type Anthropic struct {
	client anthropic.Client
	hooks  OperationHooks
}

// NewAnthropic builds an Anthropic provider.
func NewAnthropic(cfg AnthropicConfig, hooks OperationHooks) (*Anthropic, error) {
	if cfg.APIKey == "" {
		return nil, &Error{Kind: ErrInvalidRequest, Provider: IDAnthropic, Message: "api key is required"}
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if hooks == nil {
		hooks = NoopOperationHooks{}
	}
	return &Anthropic{client: anthropic.NewClient(opts...), hooks: hooks}, nil
}

// ID implements Provider.
func (p *Anthropic) ID() ID { return IDAnthropic }

// Complete implements Provider.
func (p *Anthropic) Complete(ctx context.Context, req Request) (*Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	params, err := p.buildParams(req)
	if err != nil {
		return nil, err
	}

	p.hooks.OnCallStart(IDAnthropic, req.Model)
	start := time.Now()
	msg, err := p.client.Messages.New(ctx, *params)
	if err != nil {
		werr := wrapErr(IDAnthropic, classifyTransportErr(err), "message request failed", err)
		p.hooks.OnCallFailure(IDAnthropic, req.Model, werr, time.Since(start))
		return nil, werr
	}

	resp := &Response{
		Provider:   IDAnthropic,
		Model:      string(msg.Model),
		StopReason: mapAnthropicStop(string(msg.StopReason)),
		Usage: Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
	}
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			resp.Message += block.Text
		case "tool_use":
			resp.ToolCalls = append(resp.ToolCalls, ToolCall{
				ID:            block.ID,
				Name:          block.Name,
				ArgumentsJSON: string(block.Input),
			})
		}
	}
	p.hooks.OnCallSuccess(IDAnthropic, req.Model, resp.Usage, time.Since(start))
	return resp, nil
}

// Stream implements Provider by replaying a one-shot completion as events.
func (p *Anthropic) Stream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return replayStream(ctx, p, req)
}

func (p *Anthropic) buildParams(req Request) (*anthropic.MessageNewParams, error) {
	var systemPrompt string
	messages := make([]anthropic.MessageParam, 0, len(req.Messages)+1)

	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			systemPrompt = m.Content
		case RoleUser:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case RoleAssistant:
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		case RoleTool:
			messages = append(messages, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false),
			))
		default:
			return nil, &Error{Kind: ErrInvalidRequest, Provider: IDAnthropic,
				Message: fmt.Sprintf("unsupported role %q", m.Role)}
		}
	}

	if len(req.ToolResults) > 0 {
		blocks := make([]anthropic.ContentBlockParamUnion, 0, len(req.ToolResults))
		for _, tr := range req.ToolResults {
			blocks = append(blocks, anthropic.NewToolResultBlock(tr.CallID, tr.Content, tr.IsError))
		}
		messages = append(messages, anthropic.NewUserMessage(blocks...))
	}

	maxTokens := int64(req.MaxTokens)
	if maxTokens == 0 {
		maxTokens = defaultAnthropicMaxTokens
	}
	params := &anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: maxTokens,
		Messages:  messages,
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}

	if len(req.Tools) > 0 {
		tools := make([]anthropic.ToolUnionParam, 0, len(req.Tools))
		for _, t := range req.Tools {
			schema := anthropic.ToolInputSchemaParam{}
			if len(t.InputSchema) > 0 {
				var full map[string]any
				if err := json.Unmarshal(t.InputSchema, &full); err != nil {
					return nil, &Error{Kind: ErrInvalidRequest, Provider: IDAnthropic,
						Message: fmt.Sprintf("tool %q has invalid input schema", t.Name), Err: err}
				}
				schema.Properties = full["properties"]
			}
			tools = append(tools, anthropic.ToolUnionParam{
				OfTool: &anthropic.ToolParam{
					Name:        t.Name,
					Description: anthropic.String(t.Description),
					InputSchema: schema,
				},
			})
		}
		params.Tools = tools
	}
	return params, nil
}

func mapAnthropicStop(reason string) StopReason {
	switch reason {
	case "end_turn", "stop_sequence":
		return StopEndTurn
	case "tool_use":
		return StopToolUse
	case "max_tokens":
		return StopMaxTokens
	}
	return StopOther
}
