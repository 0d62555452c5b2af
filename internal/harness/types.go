package harness

import "github.com/fyrsmithlabs/harnessd/internal/memory"

// Version is the harness version stamped into session manifests.
const Version = "0.1.0"

// Phase is the unit of work one run performs.
type Phase string

const (
	PhaseInitializer   Phase = "initializer"
	PhaseTaskIteration Phase = "task_iteration"
)

// RunRequest describes one harness invocation. Objective, Features,
// InitPlan, ActiveBranch, and Metadata only apply to the initializer
// phase; PromptOverride and Stream only to task iteration.
type RunRequest struct {
	SessionID string
	// RunID is generated when empty.
	RunID string

	Objective    string
	Features     []memory.FeatureRecord
	InitPlan     *memory.InitPlan
	ActiveBranch string
	Metadata     map[string]string

	PromptOverride string
	Stream         bool
}

// InitializerResult reports session bootstrap.
type InitializerResult struct {
	SessionID      string
	RunID          string
	Created        bool
	SchemaVersion  int
	HarnessVersion string
	FeatureCount   int
}

// TaskIterationResult reports one increment of work.
type TaskIterationResult struct {
	SessionID         string
	RunID             string
	SelectedFeatureID string
	Validated         bool
	ValidationReason  string
	// NoPendingFeatures is set when the completion gate was already
	// satisfied at bearings and no turn was executed.
	NoPendingFeatures bool
	// SessionCompleted is set when every feature passes after this run,
	// recomputed from live state.
	SessionCompleted      bool
	AssistantMessage      string
	ToolRoundLimitReached bool
}

// RunOutcome is the phase-tagged result of Run.
type RunOutcome struct {
	Phase         Phase
	Initializer   *InitializerResult
	TaskIteration *TaskIterationResult
}

// PolicyMode selects how much work one run may claim.
type PolicyMode string

const (
	// StrictIncremental allows exactly one feature per run.
	StrictIncremental PolicyMode = "strict_incremental"
	// BoundedBatch allows up to MaxFeaturesPerRun features per run.
	BoundedBatch PolicyMode = "bounded_batch"
	// UnlimitedBatch does not bound features per run.
	UnlimitedBatch PolicyMode = "unlimited_batch"
)

// RunPolicy bounds a single run. A run executes one logical turn, so
// MaxTurnsPerRun, like RetryBudget, is carried for callers that loop
// over the harness; the harness itself never retries or re-enters.
type RunPolicy struct {
	Mode              PolicyMode `koanf:"mode"`
	MaxTurnsPerRun    int        `koanf:"max_turns_per_run"`
	MaxFeaturesPerRun int        `koanf:"max_features_per_run"`
	RetryBudget       int        `koanf:"retry_budget"`
}

// DefaultRunPolicy is strict single-feature increments.
func DefaultRunPolicy() RunPolicy {
	return RunPolicy{
		Mode:              StrictIncremental,
		MaxTurnsPerRun:    8,
		MaxFeaturesPerRun: 1,
		RetryBudget:       0,
	}
}

// Validate checks the policy for contradictions.
func (p *RunPolicy) Validate() error {
	switch p.Mode {
	case StrictIncremental, BoundedBatch, UnlimitedBatch:
	default:
		return newErr(ErrInvalidRequest, "unknown policy mode "+string(p.Mode), nil)
	}
	if p.MaxTurnsPerRun < 1 {
		return newErr(ErrInvalidRequest, "max turns per run must be >= 1", nil)
	}
	if p.MaxFeaturesPerRun < 1 {
		return newErr(ErrInvalidRequest, "max features per run must be >= 1", nil)
	}
	if p.Mode == StrictIncremental && p.MaxFeaturesPerRun != 1 {
		return newErr(ErrInvalidRequest, "strict incremental mode requires max features per run = 1", nil)
	}
	if p.RetryBudget < 0 {
		return newErr(ErrInvalidRequest, "retry budget cannot be negative", nil)
	}
	return nil
}
