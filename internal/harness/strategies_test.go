package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/harnessd/internal/memory"
)

func TestExecHealthChecker(t *testing.T) {
	ctx := context.Background()

	t.Run("nil or empty plan passes", func(t *testing.T) {
		c := &ExecHealthChecker{}
		require.NoError(t, c.Check(ctx, "s1", nil))
		require.NoError(t, c.Check(ctx, "s1", &memory.InitPlan{}))
	})

	t.Run("command steps run", func(t *testing.T) {
		c := &ExecHealthChecker{Dir: t.TempDir()}
		plan := &memory.InitPlan{Steps: []memory.InitStep{
			{Name: "noop", Command: []string{"true"}},
		}}
		require.NoError(t, c.Check(ctx, "s1", plan))
	})

	t.Run("script steps run through the shell", func(t *testing.T) {
		c := &ExecHealthChecker{Dir: t.TempDir()}
		plan := &memory.InitPlan{Steps: []memory.InitStep{
			{Name: "probe", Script: "test -d ."},
		}}
		require.NoError(t, c.Check(ctx, "s1", plan))
	})

	t.Run("failing step reports its name", func(t *testing.T) {
		c := &ExecHealthChecker{Dir: t.TempDir()}
		plan := &memory.InitPlan{Steps: []memory.InitStep{
			{Name: "first", Command: []string{"true"}},
			{Name: "doomed", Command: []string{"false"}},
		}}
		err := c.Check(ctx, "s1", plan)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "doomed")
	})

	t.Run("captured output rides the error", func(t *testing.T) {
		c := &ExecHealthChecker{Dir: t.TempDir()}
		plan := &memory.InitPlan{Steps: []memory.InitStep{
			{Script: "echo workspace is broken; exit 1"},
		}}
		err := c.Check(ctx, "s1", plan)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "workspace is broken")
	})

	t.Run("malformed step is rejected before running", func(t *testing.T) {
		c := &ExecHealthChecker{}
		plan := &memory.InitPlan{Steps: []memory.InitStep{{}}}
		require.Error(t, c.Check(ctx, "s1", plan))
	})
}
