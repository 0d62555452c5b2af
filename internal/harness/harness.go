package harness

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/harnessd/internal/chat"
	"github.com/fyrsmithlabs/harnessd/internal/memory"
	"github.com/fyrsmithlabs/harnessd/internal/provider"
	"github.com/fyrsmithlabs/harnessd/internal/tooling"
)

const instrumentationName = "github.com/fyrsmithlabs/harnessd/internal/harness"

const defaultSystemPrompt = "You are a focused engineering agent. Work on exactly one feature, keep changes small, and leave a clean handoff."

// TurnExecutor runs conversational turns. *chat.Service satisfies it;
// tests substitute fakes.
type TurnExecutor interface {
	RunTurn(ctx context.Context, req chat.TurnRequest) (*chat.TurnResult, error)
	StreamTurn(ctx context.Context, req chat.TurnRequest) (<-chan chat.Event, error)
}

// Harness orchestrates checkpointed runs over a session.
type Harness struct {
	memory    memory.Backend
	turns     TurnExecutor
	health    HealthChecker
	validator OutcomeValidator
	selector  FeatureSelector
	policy    RunPolicy
	hooks     RuntimeHooks
	logger    *zap.Logger

	model         string
	systemPrompt  string
	schemaVersion int

	tracer       trace.Tracer
	meter        metric.Meter
	runsTotal    metric.Int64Counter
	runFailures  metric.Int64Counter
	featuresDone metric.Int64Counter
	runDuration  metric.Float64Histogram
}

// Builder assembles a Harness.
type Builder struct {
	memory       memory.Backend
	provider     provider.Provider
	toolRuntime  tooling.Runtime
	turns        TurnExecutor
	chatCfg      chat.Config
	model        string
	systemPrompt string
	health       HealthChecker
	validator    OutcomeValidator
	selector     FeatureSelector
	policy       *RunPolicy
	hooks        RuntimeHooks
	logger       *zap.Logger
}

// NewBuilder starts a harness build.
func NewBuilder() *Builder { return &Builder{} }

func (b *Builder) WithMemory(backend memory.Backend) *Builder {
	b.memory = backend
	return b
}

func (b *Builder) WithProvider(p provider.Provider) *Builder {
	b.provider = p
	return b
}

func (b *Builder) WithToolRuntime(rt tooling.Runtime) *Builder {
	b.toolRuntime = rt
	return b
}

// WithTurnExecutor bypasses provider wiring and uses the given executor
// directly.
func (b *Builder) WithTurnExecutor(t TurnExecutor) *Builder {
	b.turns = t
	return b
}

func (b *Builder) WithChatConfig(cfg chat.Config) *Builder {
	b.chatCfg = cfg
	return b
}

func (b *Builder) WithModel(model string) *Builder {
	b.model = model
	return b
}

func (b *Builder) WithSystemPrompt(prompt string) *Builder {
	b.systemPrompt = prompt
	return b
}

func (b *Builder) WithHealthChecker(h HealthChecker) *Builder {
	b.health = h
	return b
}

func (b *Builder) WithValidator(v OutcomeValidator) *Builder {
	b.validator = v
	return b
}

func (b *Builder) WithSelector(s FeatureSelector) *Builder {
	b.selector = s
	return b
}

func (b *Builder) WithPolicy(p RunPolicy) *Builder {
	b.policy = &p
	return b
}

func (b *Builder) WithHooks(h RuntimeHooks) *Builder {
	b.hooks = h
	return b
}

func (b *Builder) WithLogger(l *zap.Logger) *Builder {
	b.logger = l
	return b
}

// Build validates the wiring and returns a ready harness.
func (b *Builder) Build() (*Harness, error) {
	if b.memory == nil {
		return nil, newErr(ErrInvalidRequest, "a memory backend is required", nil)
	}
	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	turns := b.turns
	if turns == nil {
		if b.provider == nil {
			return nil, newErr(ErrNotReady, "a provider is required to execute turns", nil)
		}
		if strings.TrimSpace(b.model) == "" {
			return nil, newErr(ErrInvalidRequest, "a model is required when building from a provider", nil)
		}
		store := memory.NewConversationStore(b.memory)
		var opts []chat.Option
		if b.toolRuntime != nil {
			opts = append(opts, chat.WithToolRuntime(b.toolRuntime))
		}
		svc, err := chat.NewService(b.chatCfg, b.provider, store, logger, opts...)
		if err != nil {
			return nil, newErr(ErrInvalidRequest, "build turn executor", err)
		}
		turns = svc
	}

	policy := DefaultRunPolicy()
	if b.policy != nil {
		policy = *b.policy
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	h := &Harness{
		memory:        b.memory,
		turns:         turns,
		health:        b.health,
		validator:     b.validator,
		selector:      b.selector,
		policy:        policy,
		hooks:         b.hooks,
		logger:        logger,
		model:         b.model,
		systemPrompt:  b.systemPrompt,
		schemaVersion: memory.DefaultSchemaVersion,
		tracer:        otel.Tracer(instrumentationName),
		meter:         otel.Meter(instrumentationName),
	}
	if h.health == nil {
		h.health = NoopHealthChecker{}
	}
	if h.validator == nil {
		h.validator = AcceptAllValidator{}
	}
	if h.selector == nil {
		h.selector = FirstPendingSelector{}
	}
	if h.hooks == nil {
		h.hooks = NoopRuntimeHooks{}
	}
	if h.systemPrompt == "" {
		h.systemPrompt = defaultSystemPrompt
	}
	if err := h.initMetrics(); err != nil {
		return nil, newErr(ErrInvalidRequest, "init metrics", err)
	}
	return h, nil
}

func (h *Harness) initMetrics() error {
	var err error
	h.runsTotal, err = h.meter.Int64Counter("harnessd.runs",
		metric.WithDescription("Harness runs by phase and outcome"))
	if err != nil {
		return err
	}
	h.runFailures, err = h.meter.Int64Counter("harnessd.run_failures",
		metric.WithDescription("Harness runs that ended in an error"))
	if err != nil {
		return err
	}
	h.featuresDone, err = h.meter.Int64Counter("harnessd.features_validated",
		metric.WithDescription("Features validated and marked passing"))
	if err != nil {
		return err
	}
	h.runDuration, err = h.meter.Float64Histogram("harnessd.run_duration_seconds",
		metric.WithDescription("Wall time of harness runs"))
	return err
}

// Policy returns the run policy the harness was built with.
func (h *Harness) Policy() RunPolicy { return h.policy }

// SelectPhase decides what a run should do based purely on whether the
// session is initialized.
func (h *Harness) SelectPhase(ctx context.Context, sessionID string) (Phase, error) {
	initialized, err := h.memory.IsInitialized(ctx, sessionID)
	if err != nil {
		return "", fromMemoryErr("determine session state", err)
	}
	if initialized {
		return PhaseTaskIteration, nil
	}
	return PhaseInitializer, nil
}

// Run selects a phase and executes it.
func (h *Harness) Run(ctx context.Context, req RunRequest) (*RunOutcome, error) {
	phase, err := h.SelectPhase(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	switch phase {
	case PhaseInitializer:
		res, err := h.RunInitializer(ctx, req)
		if err != nil {
			return nil, err
		}
		return &RunOutcome{Phase: PhaseInitializer, Initializer: res}, nil
	default:
		res, err := h.RunTaskIteration(ctx, req)
		if err != nil {
			return nil, err
		}
		return &RunOutcome{Phase: PhaseTaskIteration, TaskIteration: res}, nil
	}
}

// RunInitializer bootstraps the session: manifest, feature checklist,
// init plan, and the run's own finalized checkpoint. It is idempotent;
// re-running against an existing session changes nothing.
func (h *Harness) RunInitializer(ctx context.Context, req RunRequest) (*InitializerResult, error) {
	ctx, span := h.tracer.Start(ctx, "harness.RunInitializer",
		trace.WithAttributes(attribute.String("session.id", req.SessionID)))
	defer span.End()

	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	start := time.Now()
	h.hooks.OnPhaseStart(PhaseInitializer, req.SessionID, runID)

	result, err := h.runInitializer(ctx, req, runID, start)
	elapsed := time.Since(start)
	h.runDuration.Record(ctx, elapsed.Seconds(),
		metric.WithAttributes(attribute.String("phase", string(PhaseInitializer))))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.runFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("phase", string(PhaseInitializer))))
		h.hooks.OnPhaseFailure(PhaseInitializer, req.SessionID, runID, err, elapsed)
		return nil, err
	}
	h.runsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("phase", string(PhaseInitializer))))
	h.hooks.OnPhaseSuccess(PhaseInitializer, req.SessionID, runID, elapsed)
	return result, nil
}

func (h *Harness) runInitializer(ctx context.Context, req RunRequest, runID string, start time.Time) (*InitializerResult, error) {
	if strings.TrimSpace(req.SessionID) == "" {
		return nil, newErr(ErrInvalidRequest, "session id is required", nil)
	}
	if strings.TrimSpace(req.Objective) == "" {
		return nil, newErr(ErrInvalidRequest, "objective is required", nil)
	}
	if err := validateFeatureList(req.Features); err != nil {
		return nil, err
	}

	features := req.Features
	if len(features) == 0 {
		features = starterFeatureList(req.Objective)
	}
	plan := req.InitPlan
	if plan == nil {
		plan = defaultInitPlan()
	}
	if err := plan.Validate(); err != nil {
		return nil, newErr(ErrInvalidRequest, "init plan", err)
	}

	manifest := memory.SessionManifest{
		SessionID:        req.SessionID,
		SchemaVersion:    h.schemaVersion,
		HarnessVersion:   Version,
		ActiveBranch:     req.ActiveBranch,
		CurrentObjective: req.Objective,
		InitPlan:         plan,
		Metadata:         req.Metadata,
	}
	progress := memory.ProgressEntry{
		RunID:     runID,
		Summary:   "Session initialized; objective and feature list recorded",
		CreatedAt: start,
	}
	checkpoint := memory.Started(runID, start)

	created, err := h.memory.InitializeSessionIfMissing(ctx, manifest, features, &progress, &checkpoint)
	if err != nil {
		return nil, newErr(ErrMemory, "initialize session", err)
	}

	if created {
		// The initializer's own run is complete; close its checkpoint.
		final := checkpoint.Finalized(memory.RunSucceeded,
			"Session initialized; feature list seeded and init plan recorded", time.Now())
		if err := h.memory.RecordRunCheckpoint(ctx, req.SessionID, final); err != nil {
			return nil, newErr(ErrMemory, "finalize initializer checkpoint", err)
		}
	}

	state, err := h.memory.LoadBootstrapState(ctx, req.SessionID)
	if err != nil {
		return nil, newErr(ErrMemory, "reload bootstrap state", err)
	}
	if state.Manifest == nil {
		return nil, newErr(ErrMemory, "session vanished after initialization", nil)
	}

	h.logger.Info("initializer completed",
		zap.String("session_id", req.SessionID),
		zap.String("run_id", runID),
		zap.Bool("created", created),
		zap.Int("feature_count", len(state.Features)),
	)
	return &InitializerResult{
		SessionID:      req.SessionID,
		RunID:          runID,
		Created:        created,
		SchemaVersion:  state.Manifest.SchemaVersion,
		HarnessVersion: state.Manifest.HarnessVersion,
		FeatureCount:   len(state.Features),
	}, nil
}

// RunTaskIteration performs one increment of work: bearings, health
// check, completion gate, one feature, one turn, validation. Whatever
// happens after the run's checkpoint opens, exactly one terminal
// checkpoint and one progress entry are written.
func (h *Harness) RunTaskIteration(ctx context.Context, req RunRequest) (*TaskIterationResult, error) {
	ctx, span := h.tracer.Start(ctx, "harness.RunTaskIteration",
		trace.WithAttributes(attribute.String("session.id", req.SessionID)))
	defer span.End()

	if strings.TrimSpace(req.SessionID) == "" {
		return nil, newErr(ErrInvalidRequest, "session id is required", nil)
	}
	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	start := time.Now()
	h.hooks.OnPhaseStart(PhaseTaskIteration, req.SessionID, runID)

	finish := func(result *TaskIterationResult, err error) (*TaskIterationResult, error) {
		elapsed := time.Since(start)
		h.runDuration.Record(ctx, elapsed.Seconds(),
			metric.WithAttributes(attribute.String("phase", string(PhaseTaskIteration))))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			h.runFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("phase", string(PhaseTaskIteration))))
			h.hooks.OnPhaseFailure(PhaseTaskIteration, req.SessionID, runID, err, elapsed)
			return nil, err
		}
		h.runsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("phase", string(PhaseTaskIteration))))
		h.hooks.OnPhaseSuccess(PhaseTaskIteration, req.SessionID, runID, elapsed)
		return result, nil
	}

	if err := h.memory.RecordRunCheckpoint(ctx, req.SessionID, memory.Started(runID, start)); err != nil {
		return finish(nil, fromMemoryErr("open run checkpoint", err))
	}

	result, runErr := h.iterate(ctx, req, runID)

	// The terminal checkpoint is the run's last durable action: the
	// progress entry lands first so a crash between the writes leaves a
	// non-terminal checkpoint, never a terminal one without its note.
	status, note := handoffNote(result, runErr)
	if err := h.memory.AppendProgress(ctx, req.SessionID, memory.ProgressEntry{
		RunID:     runID,
		Summary:   note,
		CreatedAt: time.Now(),
	}); err != nil {
		return finish(nil, joinRunErr(runErr, newErr(ErrMemory, "append progress entry", err)))
	}
	final := memory.RunCheckpoint{RunID: runID}.Finalized(status, note, time.Now())
	if err := h.memory.RecordRunCheckpoint(ctx, req.SessionID, final); err != nil {
		return finish(nil, joinRunErr(runErr, newErr(ErrMemory, "finalize run checkpoint", err)))
	}

	if runErr != nil {
		return finish(nil, runErr)
	}
	result.RunID = runID
	if result.Validated {
		h.featuresDone.Add(ctx, 1)
	}
	return finish(result, nil)
}

// iterate is the body of a task iteration, between the opening and
// terminal checkpoint writes.
func (h *Harness) iterate(ctx context.Context, req RunRequest, runID string) (*TaskIterationResult, error) {
	state, err := h.memory.LoadBootstrapState(ctx, req.SessionID)
	if err != nil {
		return nil, newErr(ErrMemory, "load bootstrap state", err)
	}
	if state.Manifest == nil {
		return nil, newErr(ErrNotReady, "session manifest is missing; run the initializer first", nil)
	}

	if err := h.reconcileAbandonedRuns(ctx, req.SessionID, runID, state.Checkpoints); err != nil {
		return nil, err
	}

	if err := h.health.Check(ctx, req.SessionID, state.Manifest.InitPlan); err != nil {
		return nil, newErr(ErrHealthCheck, "workspace health check failed", err)
	}

	result := &TaskIterationResult{SessionID: req.SessionID}

	if memory.AllRequiredFeaturesPass(state.Features) {
		result.NoPendingFeatures = true
		result.SessionCompleted = true
		h.logger.Info("completion gate already satisfied",
			zap.String("session_id", req.SessionID),
			zap.String("run_id", runID))
		return result, nil
	}

	feature := h.selector.Select(state.Features)
	if feature == nil {
		return nil, newErr(ErrValidation,
			"feature selector returned no work while pending features remain", nil)
	}
	if feature.Passes {
		return nil, newErr(ErrValidation,
			fmt.Sprintf("feature selector picked %q, which already passes", feature.ID), nil)
	}
	result.SelectedFeatureID = feature.ID

	prompt := req.PromptOverride
	if prompt == "" {
		prompt = buildFeaturePrompt(state.Manifest.CurrentObjective, *feature)
	}

	turn, err := h.executeTurn(ctx, req, prompt)
	if err != nil {
		return nil, fromChatErr(fmt.Sprintf("turn for feature %q failed", feature.ID), err)
	}
	result.AssistantMessage = turn.AssistantMessage
	result.ToolRoundLimitReached = turn.ToolRoundLimitReached

	ok, reason, err := h.validator.Validate(ctx, *feature, turn)
	if err != nil {
		return nil, newErr(ErrValidation,
			fmt.Sprintf("validator failed for feature %q", feature.ID), err)
	}
	result.Validated = ok
	result.ValidationReason = reason

	if ok {
		if err := h.memory.SetFeaturePassing(ctx, req.SessionID, feature.ID, true); err != nil {
			return nil, newErr(ErrMemory,
				fmt.Sprintf("mark feature %q passing", feature.ID), err)
		}
		// Completion is always recomputed from live state, never cached.
		fresh, err := h.memory.LoadBootstrapState(ctx, req.SessionID)
		if err != nil {
			return nil, newErr(ErrMemory, "recompute completion", err)
		}
		result.SessionCompleted = memory.AllRequiredFeaturesPass(fresh.Features)
	}

	h.logger.Info("task iteration finished",
		zap.String("session_id", req.SessionID),
		zap.String("run_id", runID),
		zap.String("feature_id", feature.ID),
		zap.Bool("validated", ok),
		zap.Bool("session_completed", result.SessionCompleted),
	)
	return result, nil
}

// reconcileAbandonedRuns closes checkpoints left open by runs that died
// without reaching their terminal write.
func (h *Harness) reconcileAbandonedRuns(ctx context.Context, sessionID, runID string, checkpoints []memory.RunCheckpoint) error {
	for _, cp := range checkpoints {
		if cp.RunID == runID || cp.Status.Terminal() {
			continue
		}
		final := cp.Finalized(memory.RunFailed,
			"Run abandoned without a terminal checkpoint; closed during later bearings", time.Now())
		if err := h.memory.RecordRunCheckpoint(ctx, sessionID, final); err != nil {
			return newErr(ErrMemory,
				fmt.Sprintf("reconcile abandoned run %q", cp.RunID), err)
		}
		h.logger.Warn("closed abandoned run checkpoint",
			zap.String("session_id", sessionID),
			zap.String("abandoned_run_id", cp.RunID))
	}
	return nil
}

func (h *Harness) executeTurn(ctx context.Context, req RunRequest, prompt string) (*chat.TurnResult, error) {
	treq := chat.TurnRequest{
		Session: chat.Session{
			ID:           req.SessionID,
			Model:        h.model,
			SystemPrompt: h.systemPrompt,
		},
		UserInput: prompt,
	}
	if !req.Stream {
		return h.turns.RunTurn(ctx, treq)
	}
	events, err := h.turns.StreamTurn(ctx, treq)
	if err != nil {
		return nil, err
	}
	var turn *chat.TurnResult
	for ev := range events {
		switch ev.Kind {
		case chat.EventTurnComplete:
			turn = ev.Turn
		case chat.EventError:
			return nil, ev.Err
		}
	}
	if turn == nil {
		return nil, fmt.Errorf("turn stream ended without completion")
	}
	return turn, nil
}

// handoffNote derives the terminal checkpoint status and handoff summary
// from how the iteration ended.
func handoffNote(result *TaskIterationResult, runErr error) (memory.RunStatus, string) {
	if runErr != nil {
		return memory.RunFailed, fmt.Sprintf("Run failed: %v", runErr)
	}
	switch {
	case result.NoPendingFeatures:
		return memory.RunSucceeded, "All required features pass; completion gate satisfied"
	case result.Validated && result.SessionCompleted:
		return memory.RunSucceeded, fmt.Sprintf(
			"Feature %q validated and marked passing; completion gate satisfied", result.SelectedFeatureID)
	case result.Validated:
		return memory.RunSucceeded, fmt.Sprintf(
			"Feature %q validated and marked passing; remaining required features still pending", result.SelectedFeatureID)
	default:
		// An unvalidated turn is a failed run; anything short of a
		// validated increment never records success.
		return memory.RunFailed, fmt.Sprintf(
			"Feature %q was not validated; left failing for the next run", result.SelectedFeatureID)
	}
}

func joinRunErr(runErr error, writeErr *Error) error {
	if runErr == nil {
		return writeErr
	}
	return errors.Join(runErr, writeErr)
}

func validateFeatureList(features []memory.FeatureRecord) error {
	seen := make(map[string]struct{}, len(features))
	for i, f := range features {
		if strings.TrimSpace(f.ID) == "" {
			return newErr(ErrInvalidRequest, fmt.Sprintf("feature %d has no id", i), nil)
		}
		if _, dup := seen[f.ID]; dup {
			return newErr(ErrInvalidRequest, fmt.Sprintf("duplicate feature id %q", f.ID), nil)
		}
		seen[f.ID] = struct{}{}
		if strings.TrimSpace(f.Description) == "" {
			return newErr(ErrInvalidRequest, fmt.Sprintf("feature %q has no description", f.ID), nil)
		}
		if len(f.Steps) == 0 {
			return newErr(ErrInvalidRequest, fmt.Sprintf("feature %q has no validation steps", f.ID), nil)
		}
		if f.Passes {
			return newErr(ErrInvalidRequest, fmt.Sprintf("feature %q cannot start as passing", f.ID), nil)
		}
	}
	return nil
}

// starterFeatureList seeds a checklist when the caller supplies none.
func starterFeatureList(objective string) []memory.FeatureRecord {
	return []memory.FeatureRecord{
		{
			ID:          "deliver-objective",
			Category:    "core",
			Description: "Deliver the stated objective: " + objective,
			Steps:       []string{"Demonstrate the objective working end to end"},
		},
	}
}

// defaultInitPlan takes bearings in a git workspace.
func defaultInitPlan() *memory.InitPlan {
	return &memory.InitPlan{Steps: []memory.InitStep{
		{Name: "git status", Command: []string{"git", "status", "--short"}},
		{Name: "recent history", Command: []string{"git", "log", "--oneline", "-10"}},
	}}
}

func buildFeaturePrompt(objective string, f memory.FeatureRecord) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Objective: %s\n\n", objective)
	sb.WriteString("Work on one feature incrementally and leave a clean handoff.\n\n")
	fmt.Fprintf(&sb, "Feature: %s\n", f.ID)
	if f.Category != "" {
		fmt.Fprintf(&sb, "Category: %s\n", f.Category)
	}
	fmt.Fprintf(&sb, "Description: %s\n", f.Description)
	sb.WriteString("Validation steps:\n")
	for _, step := range f.Steps {
		fmt.Fprintf(&sb, "- %s\n", step)
	}
	return sb.String()
}
