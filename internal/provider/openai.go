package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// OpenAIConfig configures the OpenAI adapter.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
}

// OpenAI adapts the official OpenAI SDK to the Provider interface.
type OpenAI struct {
	client openai.Client
	hooks  OperationHooks
}

// NewOpenAI builds an OpenAI provider.
func NewOpenAI(cfg OpenAIConfig, hooks OperationHooks) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, &Error{Kind: ErrInvalidRequest, Provider: IDOpenAI, Message: "api key is required"}
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if hooks == nil {
		hooks = NoopOperationHooks{}
	}
	return &OpenAI{client: openai.NewClient(opts...), hooks: hooks}, nil
}

// ID implements Provider.
func (p *OpenAI) ID() ID { return IDOpenAI }

// Complete implements Provider.
func (p *OpenAI) Complete(ctx context.Context, req Request) (*Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	params, err := p.buildParams(req)
	if err != nil {
		return nil, err
	}

	p.hooks.OnCallStart(IDOpenAI, req.Model)
	start := time.Now()
	completion, err := p.client.Chat.Completions.New(ctx, *params)
	if err != nil {
		werr := wrapErr(IDOpenAI, classifyTransportErr(err), "chat completion failed", err)
		p.hooks.OnCallFailure(IDOpenAI, req.Model, werr, time.Since(start))
		return nil, werr
	}

	resp := &Response{
		Provider: IDOpenAI,
		Model:    completion.Model,
		Usage: Usage{
			InputTokens:  int(completion.Usage.PromptTokens),
			OutputTokens: int(completion.Usage.CompletionTokens),
		},
	}
	if len(completion.Choices) > 0 {
		choice := completion.Choices[0]
		resp.Message = choice.Message.Content
		resp.StopReason = mapOpenAIFinish(string(choice.FinishReason))
		for _, tc := range choice.Message.ToolCalls {
			resp.ToolCalls = append(resp.ToolCalls, ToolCall{
				ID:            tc.ID,
				Name:          tc.Function.Name,
				ArgumentsJSON: tc.Function.Arguments,
			})
		}
	}
	p.hooks.OnCallSuccess(IDOpenAI, req.Model, resp.Usage, time.Since(start))
	return resp, nil
}

// Stream implements Provider by replaying a one-shot completion as events.
func (p *OpenAI) Stream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return replayStream(ctx, p, req)
}

func (p *OpenAI) buildParams(req Request) (*openai.ChatCompletionNewParams, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			messages = append(messages, openai.SystemMessage(m.Content))
		case RoleUser:
			messages = append(messages, openai.UserMessage(m.Content))
		case RoleAssistant:
			messages = append(messages, openai.AssistantMessage(m.Content))
		case RoleTool:
			messages = append(messages, openai.ToolMessage(m.Content, m.ToolCallID))
		default:
			return nil, &Error{Kind: ErrInvalidRequest, Provider: IDOpenAI,
				Message: fmt.Sprintf("unsupported role %q", m.Role)}
		}
	}
	for _, tr := range req.ToolResults {
		messages = append(messages, openai.ToolMessage(tr.Content, tr.CallID))
	}

	params := &openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(req.Model),
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}

	if len(req.Tools) > 0 {
		tools := make([]openai.ChatCompletionToolParam, 0, len(req.Tools))
		for _, t := range req.Tools {
			var schema shared.FunctionParameters
			if len(t.InputSchema) > 0 {
				if err := json.Unmarshal(t.InputSchema, &schema); err != nil {
					return nil, &Error{Kind: ErrInvalidRequest, Provider: IDOpenAI,
						Message: fmt.Sprintf("tool %q has invalid input schema", t.Name), Err: err}
				}
			}
			tools = append(tools, openai.ChatCompletionToolParam{
				Function: shared.FunctionDefinitionParam{
					Name:        t.Name,
					Description: openai.String(t.Description),
					Parameters:  schema,
				},
			})
		}
		params.Tools = tools
	}
	return params, nil
}

func mapOpenAIFinish(reason string) StopReason {
	switch reason {
	case "stop":
		return StopEndTurn
	case "tool_calls":
		return StopToolUse
	case "length":
		return StopMaxTokens
	}
	return StopOther
}
