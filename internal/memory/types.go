package memory

import (
	"fmt"
	"strings"
	"time"
)

// DefaultSchemaVersion is the current durable-state schema version.
const DefaultSchemaVersion = 1

// InitStep is one step of a session initialization plan: either an
// argv-style command or a shell script, never both.
type InitStep struct {
	Name    string   `json:"name,omitempty"`
	Command []string `json:"command,omitempty"`
	Shell   string   `json:"shell,omitempty"`
	Script  string   `json:"script,omitempty"`
}

// Validate checks a step for structural problems.
func (s *InitStep) Validate() error {
	hasCommand := len(s.Command) > 0
	hasScript := strings.TrimSpace(s.Script) != ""
	if hasCommand == hasScript {
		return fmt.Errorf("init step must set exactly one of command or script")
	}
	return nil
}

// InitPlan is the ordered set of commands run to take bearings in a
// session workspace.
type InitPlan struct {
	Steps []InitStep `json:"steps"`
}

// Validate checks every step.
func (p *InitPlan) Validate() error {
	for i := range p.Steps {
		if err := p.Steps[i].Validate(); err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
	}
	return nil
}

// SessionManifest is the durable identity of a task session.
type SessionManifest struct {
	SessionID           string            `json:"session_id"`
	SchemaVersion       int               `json:"schema_version"`
	HarnessVersion      string            `json:"harness_version"`
	ActiveBranch        string            `json:"active_branch,omitempty"`
	CurrentObjective    string            `json:"current_objective"`
	LastKnownGoodCommit string            `json:"last_known_good_commit,omitempty"`
	InitPlan            *InitPlan         `json:"init_plan,omitempty"`
	Metadata            map[string]string `json:"metadata,omitempty"`
}

// Validate checks the manifest for structural problems.
func (m *SessionManifest) Validate() error {
	if strings.TrimSpace(m.SessionID) == "" {
		return fmt.Errorf("session id is required")
	}
	if strings.TrimSpace(m.CurrentObjective) == "" {
		return fmt.Errorf("current objective is required")
	}
	if m.SchemaVersion < 1 {
		return fmt.Errorf("schema version must be >= 1, got %d", m.SchemaVersion)
	}
	if m.InitPlan != nil {
		if err := m.InitPlan.Validate(); err != nil {
			return fmt.Errorf("init plan: %w", err)
		}
	}
	return nil
}

// FeatureRecord is one entry on the session's feature checklist.
type FeatureRecord struct {
	ID          string   `json:"id"`
	Category    string   `json:"category,omitempty"`
	Description string   `json:"description"`
	Steps       []string `json:"steps"`
	Passes      bool     `json:"passes"`
}

// ProgressEntry is the one-line handoff summary a run leaves behind.
type ProgressEntry struct {
	RunID     string    `json:"run_id"`
	Summary   string    `json:"summary"`
	CreatedAt time.Time `json:"created_at"`
}

// RunStatus is the lifecycle state of a run checkpoint.
type RunStatus string

const (
	RunStarted   RunStatus = "started"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// Terminal reports whether the status closes the run.
func (s RunStatus) Terminal() bool {
	return s == RunSucceeded || s == RunFailed
}

// RunCheckpoint records the lifecycle of one run within a session.
// There is exactly one checkpoint per run id; once it carries a terminal
// status it can never be rewritten.
type RunCheckpoint struct {
	RunID       string     `json:"run_id"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Status      RunStatus  `json:"status"`
	Note        string     `json:"note,omitempty"`
}

// Started builds a fresh non-terminal checkpoint.
func Started(runID string, at time.Time) RunCheckpoint {
	return RunCheckpoint{RunID: runID, StartedAt: at, Status: RunStarted}
}

// Finalized closes a checkpoint with a terminal status and note.
func (c RunCheckpoint) Finalized(status RunStatus, note string, at time.Time) RunCheckpoint {
	c.Status = status
	c.Note = note
	c.CompletedAt = &at
	return c
}

// AllRequiredFeaturesPass reports whether every feature on the list has
// been validated. An empty list counts as passing.
func AllRequiredFeaturesPass(features []FeatureRecord) bool {
	for _, f := range features {
		if !f.Passes {
			return false
		}
	}
	return true
}

// PendingFeatures returns the features that have not passed yet, in
// list order.
func PendingFeatures(features []FeatureRecord) []FeatureRecord {
	var out []FeatureRecord
	for _, f := range features {
		if !f.Passes {
			out = append(out, f)
		}
	}
	return out
}

// BootstrapState is everything a run needs to take bearings.
type BootstrapState struct {
	Manifest       *SessionManifest `json:"manifest"`
	Features       []FeatureRecord  `json:"features"`
	RecentProgress []ProgressEntry  `json:"recent_progress"`
	Checkpoints    []RunCheckpoint  `json:"checkpoints"`
}
