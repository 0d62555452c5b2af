package harness

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/fyrsmithlabs/harnessd/internal/chat"
	"github.com/fyrsmithlabs/harnessd/internal/memory"
)

// HealthChecker verifies the session workspace before any turn runs.
type HealthChecker interface {
	Check(ctx context.Context, sessionID string, plan *memory.InitPlan) error
}

// OutcomeValidator judges whether a turn actually delivered the feature.
type OutcomeValidator interface {
	Validate(ctx context.Context, feature memory.FeatureRecord, result *chat.TurnResult) (ok bool, reason string, err error)
}

// FeatureSelector picks the feature a run works on.
type FeatureSelector interface {
	Select(features []memory.FeatureRecord) *memory.FeatureRecord
}

// NoopHealthChecker accepts every workspace.
type NoopHealthChecker struct{}

func (NoopHealthChecker) Check(context.Context, string, *memory.InitPlan) error { return nil }

// AcceptAllValidator marks every turn as passing. It is a test seam and
// the default; production callers supply a real validator.
type AcceptAllValidator struct{}

func (AcceptAllValidator) Validate(context.Context, memory.FeatureRecord, *chat.TurnResult) (bool, string, error) {
	return true, "accepted without verification", nil
}

// FirstPendingSelector picks the first feature that has not passed.
type FirstPendingSelector struct{}

func (FirstPendingSelector) Select(features []memory.FeatureRecord) *memory.FeatureRecord {
	for i := range features {
		if !features[i].Passes {
			f := features[i]
			return &f
		}
	}
	return nil
}

// DefaultStepTimeout bounds each init plan step in ExecHealthChecker.
const DefaultStepTimeout = 30 * time.Second

// ExecHealthChecker runs the session's init plan commands and fails the
// health check when any step exits non-zero, with captured output as the
// diagnostic.
type ExecHealthChecker struct {
	// Dir is the working directory for every step.
	Dir string
	// StepTimeout bounds each step; DefaultStepTimeout when zero.
	StepTimeout time.Duration
}

func (c *ExecHealthChecker) Check(ctx context.Context, sessionID string, plan *memory.InitPlan) error {
	if plan == nil || len(plan.Steps) == 0 {
		return nil
	}
	timeout := c.StepTimeout
	if timeout <= 0 {
		timeout = DefaultStepTimeout
	}
	for i, step := range plan.Steps {
		if err := step.Validate(); err != nil {
			return fmt.Errorf("init plan step %d: %w", i, err)
		}
		stepCtx, cancel := context.WithTimeout(ctx, timeout)
		err := c.runStep(stepCtx, step)
		cancel()
		if err != nil {
			return fmt.Errorf("init plan step %d (%s): %w", i, stepName(step), err)
		}
	}
	return nil
}

func (c *ExecHealthChecker) runStep(ctx context.Context, step memory.InitStep) error {
	var cmd *exec.Cmd
	if len(step.Command) > 0 {
		cmd = exec.CommandContext(ctx, step.Command[0], step.Command[1:]...)
	} else {
		shell := step.Shell
		if shell == "" {
			shell = "sh"
		}
		cmd = exec.CommandContext(ctx, shell, "-c", step.Script)
	}
	cmd.Dir = c.Dir
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output
	if err := cmd.Run(); err != nil {
		out := strings.TrimSpace(output.String())
		if out != "" {
			return fmt.Errorf("%w: %s", err, out)
		}
		return err
	}
	return nil
}

func stepName(step memory.InitStep) string {
	if step.Name != "" {
		return step.Name
	}
	if len(step.Command) > 0 {
		return strings.Join(step.Command, " ")
	}
	return "script"
}
