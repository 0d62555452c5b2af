package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/harnessd/internal/config"
	"github.com/fyrsmithlabs/harnessd/internal/harness"
	"github.com/fyrsmithlabs/harnessd/internal/logging"
	"github.com/fyrsmithlabs/harnessd/internal/memory"
	"github.com/fyrsmithlabs/harnessd/internal/observe"
	"github.com/fyrsmithlabs/harnessd/internal/telemetry"
	"github.com/fyrsmithlabs/harnessd/internal/tooling"
)

var (
	runSessionID    string
	runRunID        string
	runObjective    string
	runFeaturesPath string
	runBranch       string
	runPrompt       string
	runStream       bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Perform one harness run against a session",
	Long: `Perform exactly one run. If the session has no durable state yet this
initializes it from --objective and --features; otherwise it selects the
next pending feature, executes one turn, and checkpoints the result.

Examples:
  # First run: bootstrap the session
  harnessd run --session widget --objective "ship the widget" --features features.json

  # Later runs: one increment each
  harnessd run --session widget

  # Override the iteration prompt
  harnessd run --session widget --prompt "fix the failing login test first"`,
	RunE: runRun,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show session state",
	Long: `Print the session manifest, feature checklist counts, recent progress,
and run checkpoints as JSON.`,
	RunE: runStatus,
}

func init() {
	runCmd.Flags().StringVar(&runSessionID, "session", "", "session id (required)")
	runCmd.Flags().StringVar(&runRunID, "run-id", "", "run id (generated when empty)")
	runCmd.Flags().StringVar(&runObjective, "objective", "", "session objective (initializer only)")
	runCmd.Flags().StringVar(&runFeaturesPath, "features", "", "path to a JSON feature checklist (initializer only)")
	runCmd.Flags().StringVar(&runBranch, "branch", "", "active branch recorded in the manifest (initializer only)")
	runCmd.Flags().StringVar(&runPrompt, "prompt", "", "override the iteration prompt (task iteration only)")
	runCmd.Flags().BoolVar(&runStream, "stream", false, "stream turn events instead of waiting for completion")
	_ = runCmd.MarkFlagRequired("session")

	statusCmd.Flags().StringVar(&runSessionID, "session", "", "session id (required)")
	_ = statusCmd.MarkFlagRequired("session")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logging.WithSessionID(ctx, runSessionID)

	tel, err := telemetry.New(ctx, cfg.Telemetry)
	if err != nil {
		return err
	}
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()
	if tel.Degraded() {
		logger.Warn("telemetry degraded, continuing without export")
	}

	h, backend, err := buildHarness(cfg, logger)
	if err != nil {
		return err
	}
	defer backend.Close() //nolint:errcheck

	req := harness.RunRequest{
		SessionID:      runSessionID,
		RunID:          runRunID,
		Objective:      runObjective,
		ActiveBranch:   runBranch,
		PromptOverride: runPrompt,
		Stream:         runStream,
	}
	if runFeaturesPath != "" {
		features, err := loadFeatures(runFeaturesPath)
		if err != nil {
			return err
		}
		req.Features = features
	}

	outcome, runErr := h.Run(ctx, req)
	if runErr != nil {
		return runErr
	}
	return printJSON(outcome)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return err
	}

	backend, err := memory.Open(cfg.Memory)
	if err != nil {
		return err
	}
	defer backend.Close() //nolint:errcheck

	ctx := context.Background()
	state, err := backend.LoadBootstrapState(ctx, runSessionID)
	if err != nil {
		return err
	}
	if state.Manifest == nil {
		return fmt.Errorf("session %q is not initialized", runSessionID)
	}

	pending := memory.PendingFeatures(state.Features)
	summary := struct {
		Manifest        *memory.SessionManifest `json:"manifest"`
		FeatureCount    int                     `json:"feature_count"`
		PendingFeatures []string                `json:"pending_features"`
		Completed       bool                    `json:"completed"`
		RecentProgress  []memory.ProgressEntry  `json:"recent_progress"`
		Checkpoints     []memory.RunCheckpoint  `json:"checkpoints"`
	}{
		Manifest:       state.Manifest,
		FeatureCount:   len(state.Features),
		Completed:      memory.AllRequiredFeaturesPass(state.Features),
		RecentProgress: state.RecentProgress,
		Checkpoints:    state.Checkpoints,
	}
	for _, f := range pending {
		summary.PendingFeatures = append(summary.PendingFeatures, f.ID)
	}
	return printJSON(summary)
}

// buildHarness wires the configured backend, provider, tool runtime, and
// observers into a harness.
func buildHarness(cfg *config.Config, logger *zap.Logger) (*harness.Harness, memory.Backend, error) {
	backend, err := memory.Open(cfg.Memory)
	if err != nil {
		return nil, nil, err
	}

	prov, err := cfg.BuildProvider(observe.NewLoggingOperationHooks(logger))
	if err != nil {
		backend.Close() //nolint:errcheck
		return nil, nil, err
	}

	registry := tooling.NewRegistry()
	toolRuntime, err := tooling.NewRegistryRuntime(registry, observe.NewLoggingToolHooks(logger), logger)
	if err != nil {
		backend.Close() //nolint:errcheck
		return nil, nil, err
	}

	metricsHooks, err := observe.NewMetricsRuntimeHooks()
	if err != nil {
		backend.Close() //nolint:errcheck
		return nil, nil, err
	}
	hooks := observe.NewSafeRuntimeHooks(observe.NewFanoutRuntimeHooks(
		observe.NewLoggingRuntimeHooks(logger),
		metricsHooks,
	), logger)

	builder := harness.NewBuilder().
		WithMemory(backend).
		WithProvider(prov).
		WithModel(cfg.Provider.Model).
		WithToolRuntime(toolRuntime).
		WithChatConfig(cfg.ChatSettings()).
		WithPolicy(cfg.Policy).
		WithHealthChecker(&harness.ExecHealthChecker{Dir: cfg.Workdir}).
		WithHooks(hooks).
		WithLogger(logger)
	if cfg.SystemPrompt != "" {
		builder = builder.WithSystemPrompt(cfg.SystemPrompt)
	}

	h, err := builder.Build()
	if err != nil {
		backend.Close() //nolint:errcheck
		return nil, nil, err
	}
	return h, backend, nil
}

// loadFeatures reads a JSON array of feature records.
func loadFeatures(path string) ([]memory.FeatureRecord, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read features file %s: %w", path, err)
	}
	var features []memory.FeatureRecord
	if err := json.Unmarshal(content, &features); err != nil {
		return nil, fmt.Errorf("failed to parse features file %s: %w", path, err)
	}
	return features, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
