package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/harnessd/internal/provider"
	"github.com/fyrsmithlabs/harnessd/internal/tooling"
)

const instrumentationName = "github.com/fyrsmithlabs/harnessd/internal/chat"

// DefaultMaxToolRoundTrips bounds the tool-call loop within one turn.
const DefaultMaxToolRoundTrips = 4

// Config holds turn execution policy.
type Config struct {
	MaxToolRoundTrips  int
	DefaultTemperature *float64
	DefaultMaxTokens   int
}

// Service runs conversational turns against a provider.
type Service struct {
	cfg      Config
	provider provider.Provider
	store    ConversationStore
	tools    tooling.Runtime
	logger   *zap.Logger

	tracer       trace.Tracer
	meter        metric.Meter
	turnsTotal   metric.Int64Counter
	toolRounds   metric.Int64Counter
	turnFailures metric.Int64Counter
}

// Option customizes a Service.
type Option func(*Service)

// WithToolRuntime attaches a tool runtime. Without one, tool calls are
// returned on the result but never executed.
func WithToolRuntime(rt tooling.Runtime) Option {
	return func(s *Service) { s.tools = rt }
}

// NewService builds a turn executor.
func NewService(cfg Config, p provider.Provider, store ConversationStore, logger *zap.Logger, opts ...Option) (*Service, error) {
	if p == nil {
		return nil, fmt.Errorf("chat: provider is required")
	}
	if store == nil {
		return nil, fmt.Errorf("chat: conversation store is required")
	}
	if cfg.MaxToolRoundTrips < 0 {
		return nil, fmt.Errorf("chat: max tool round trips cannot be negative")
	}
	if cfg.MaxToolRoundTrips == 0 {
		cfg.MaxToolRoundTrips = DefaultMaxToolRoundTrips
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		cfg:      cfg,
		provider: p,
		store:    store,
		logger:   logger,
		tracer:   otel.Tracer(instrumentationName),
		meter:    otel.Meter(instrumentationName),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.initMetrics(); err != nil {
		return nil, fmt.Errorf("chat: init metrics: %w", err)
	}
	return s, nil
}

func (s *Service) initMetrics() error {
	var err error
	s.turnsTotal, err = s.meter.Int64Counter("harnessd.chat.turns",
		metric.WithDescription("Completed conversational turns"))
	if err != nil {
		return err
	}
	s.toolRounds, err = s.meter.Int64Counter("harnessd.chat.tool_rounds",
		metric.WithDescription("Tool-call round trips executed"))
	if err != nil {
		return err
	}
	s.turnFailures, err = s.meter.Int64Counter("harnessd.chat.turn_failures",
		metric.WithDescription("Turns that ended in an error"))
	return err
}

// RunTurn executes one turn and returns the final result.
func (s *Service) RunTurn(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	ctx, span := s.tracer.Start(ctx, "chat.RunTurn",
		trace.WithAttributes(
			attribute.String("session.id", req.Session.ID),
			attribute.String("model", req.Session.Model),
		))
	defer span.End()

	result, err := s.runTurn(ctx, req, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.turnFailures.Add(ctx, 1)
		return nil, err
	}
	s.turnsTotal.Add(ctx, 1)
	return result, nil
}

// StreamTurn executes one turn, emitting incremental events. The returned
// channel is closed after EventTurnComplete or EventError.
func (s *Service) StreamTurn(ctx context.Context, req TurnRequest) (<-chan Event, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}
	out := make(chan Event, 16)
	go func() {
		defer close(out)
		ctx, span := s.tracer.Start(ctx, "chat.StreamTurn",
			trace.WithAttributes(attribute.String("session.id", req.Session.ID)))
		defer span.End()

		result, err := s.runTurn(ctx, req, out)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			s.turnFailures.Add(ctx, 1)
			out <- Event{Kind: EventError, Err: err}
			return
		}
		s.turnsTotal.Add(ctx, 1)
		out <- Event{Kind: EventTurnComplete, Turn: result}
	}()
	return out, nil
}

func (s *Service) validate(req TurnRequest) error {
	if strings.TrimSpace(req.Session.ID) == "" {
		return newErr(ErrInvalidRequest, PhasePrepare, "session id is required", nil)
	}
	if strings.TrimSpace(req.Session.Model) == "" {
		return newErr(ErrInvalidRequest, PhasePrepare, "model is required", nil)
	}
	if strings.TrimSpace(req.UserInput) == "" {
		return newErr(ErrInvalidRequest, PhasePrepare, "user input cannot be empty", nil)
	}
	return nil
}

// runTurn is the shared turn body. When events is non-nil, incremental
// events are emitted as the turn progresses.
func (s *Service) runTurn(ctx context.Context, req TurnRequest, events chan<- Event) (*TurnResult, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}

	prior, err := s.store.LoadMessages(ctx, req.Session.ID)
	if err != nil {
		return nil, newErr(ErrStore, PhasePrepare, "load transcript", err)
	}

	userMsg := provider.Message{Role: provider.RoleUser, Content: req.UserInput}
	window := make([]provider.Message, 0, len(prior)+2)
	if req.Session.SystemPrompt != "" {
		window = append(window, provider.Message{Role: provider.RoleSystem, Content: req.Session.SystemPrompt})
	}
	window = append(window, prior...)
	window = append(window, userMsg)

	preq := provider.Request{
		Model:       req.Session.Model,
		Messages:    window,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if preq.Temperature == nil {
		preq.Temperature = s.cfg.DefaultTemperature
	}
	if preq.MaxTokens == 0 {
		preq.MaxTokens = s.cfg.DefaultMaxTokens
	}
	if s.tools != nil {
		preq.Tools = s.tools.Definitions()
	}

	resp, err := s.complete(ctx, preq, events)
	if err != nil {
		return nil, err
	}

	result := &TurnResult{SessionID: req.Session.ID}
	result.ToolCalls = append(result.ToolCalls, resp.ToolCalls...)

	rounds := 0
	for s.tools != nil && len(resp.ToolCalls) > 0 {
		if rounds >= s.cfg.MaxToolRoundTrips {
			result.ToolRoundLimitReached = true
			s.logger.Warn("tool round limit reached",
				zap.String("session_id", req.Session.ID),
				zap.Int("limit", s.cfg.MaxToolRoundTrips))
			break
		}
		rounds++
		s.toolRounds.Add(ctx, 1)

		results, err := s.executeToolCalls(ctx, req, resp.ToolCalls, events)
		if err != nil {
			return nil, err
		}

		preq.ToolResults = results
		resp, err = s.complete(ctx, preq, events)
		if err != nil {
			return nil, err
		}
		result.ToolCalls = append(result.ToolCalls, resp.ToolCalls...)
	}

	result.AssistantMessage = resp.Message
	result.StopReason = resp.StopReason
	result.Usage = resp.Usage

	assistantMsg := provider.Message{Role: provider.RoleAssistant, Content: resp.Message}
	if err := s.store.AppendMessages(ctx, req.Session.ID, []provider.Message{userMsg, assistantMsg}); err != nil {
		return nil, newErr(ErrStore, PhasePersist, "persist turn transcript", err)
	}

	s.logger.Debug("turn completed",
		zap.String("session_id", req.Session.ID),
		zap.String("stop_reason", string(result.StopReason)),
		zap.Int("tool_rounds", rounds),
		zap.Bool("tool_round_limit_reached", result.ToolRoundLimitReached),
	)
	return result, nil
}

// complete runs one provider call, streaming when an event sink is given.
func (s *Service) complete(ctx context.Context, preq provider.Request, events chan<- Event) (*provider.Response, error) {
	if events == nil {
		resp, err := s.provider.Complete(ctx, preq)
		if err != nil {
			return nil, newErr(ErrProvider, PhaseComplete, "provider completion failed", err)
		}
		return resp, nil
	}

	stream, err := s.provider.Stream(ctx, preq)
	if err != nil {
		return nil, newErr(ErrProvider, PhaseStream, "provider stream failed to open", err)
	}
	for ev := range stream {
		switch ev.Kind {
		case provider.StreamTextDelta:
			events <- Event{Kind: EventTextDelta, Text: ev.TextDelta}
		case provider.StreamToolCallDelta:
			events <- Event{Kind: EventToolCallDelta, ToolCall: ev.ToolCall}
		case provider.StreamResponseComplete:
			return ev.Response, nil
		case provider.StreamError:
			return nil, newErr(ErrProvider, PhaseStream, "provider stream failed", ev.Err)
		}
	}
	return nil, newErr(ErrProvider, PhaseStream, "provider stream ended without completion", nil)
}

// executeToolCalls runs one round of tool calls. User-facing tool failures
// become error-marked results fed back to the model; infrastructure
// failures abort the turn.
func (s *Service) executeToolCalls(ctx context.Context, req TurnRequest, calls []provider.ToolCall, events chan<- Event) ([]provider.ToolResult, error) {
	ec := tooling.ExecutionContext{SessionID: req.Session.ID}
	results := make([]provider.ToolResult, 0, len(calls))
	for _, call := range calls {
		if events != nil {
			events <- Event{Kind: EventToolStart, ToolName: call.Name}
		}
		res, err := s.tools.Execute(ctx, call, ec)
		if err != nil {
			var terr *tooling.Error
			if errors.As(err, &terr) && terr.UserFacing() {
				results = append(results, provider.ToolResult{
					CallID:  call.ID,
					Content: terr.Error(),
					IsError: true,
				})
				if events != nil {
					events <- Event{Kind: EventToolFinish, ToolName: call.Name}
				}
				continue
			}
			return nil, newErr(ErrTooling, PhaseTooling, fmt.Sprintf("tool %q failed", call.Name), err)
		}
		results = append(results, provider.ToolResult{
			CallID:  res.CallID,
			Content: res.Content,
			IsError: res.IsError,
		})
		if events != nil {
			events <- Event{Kind: EventToolFinish, ToolName: call.Name}
		}
	}
	return results, nil
}
