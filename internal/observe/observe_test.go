package observe

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/fyrsmithlabs/harnessd/internal/harness"
)

type panickingHooks struct{}

func (panickingHooks) OnPhaseStart(harness.Phase, string, string) { panic("observer bug") }
func (panickingHooks) OnPhaseSuccess(harness.Phase, string, string, time.Duration) {
	panic("observer bug")
}
func (panickingHooks) OnPhaseFailure(harness.Phase, string, string, error, time.Duration) {
	panic("observer bug")
}

type countingHooks struct {
	starts, successes, failures int
}

func (c *countingHooks) OnPhaseStart(harness.Phase, string, string) { c.starts++ }
func (c *countingHooks) OnPhaseSuccess(harness.Phase, string, string, time.Duration) {
	c.successes++
}
func (c *countingHooks) OnPhaseFailure(harness.Phase, string, string, error, time.Duration) {
	c.failures++
}

func TestSafeRuntimeHooksSwallowsPanics(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	safe := NewSafeRuntimeHooks(panickingHooks{}, zap.New(core))

	require.NotPanics(t, func() {
		safe.OnPhaseStart(harness.PhaseInitializer, "s1", "r1")
		safe.OnPhaseSuccess(harness.PhaseTaskIteration, "s1", "r1", time.Second)
		safe.OnPhaseFailure(harness.PhaseTaskIteration, "s1", "r1", errors.New("boom"), time.Second)
	})
	assert.Equal(t, 3, logs.FilterMessage("runtime hook panicked").Len())
}

func TestSafeRuntimeHooksNilInner(t *testing.T) {
	safe := NewSafeRuntimeHooks(nil, nil)
	require.NotPanics(t, func() {
		safe.OnPhaseStart(harness.PhaseInitializer, "s1", "r1")
	})
}

func TestFanoutRuntimeHooks(t *testing.T) {
	a := &countingHooks{}
	b := &countingHooks{}
	fan := NewFanoutRuntimeHooks(a, b)

	fan.OnPhaseStart(harness.PhaseInitializer, "s1", "r1")
	fan.OnPhaseSuccess(harness.PhaseInitializer, "s1", "r1", time.Second)
	fan.OnPhaseFailure(harness.PhaseTaskIteration, "s1", "r2", errors.New("x"), time.Second)

	for _, c := range []*countingHooks{a, b} {
		assert.Equal(t, 1, c.starts)
		assert.Equal(t, 1, c.successes)
		assert.Equal(t, 1, c.failures)
	}
}

func TestLoggingRuntimeHooks(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	hooks := NewLoggingRuntimeHooks(zap.New(core))

	hooks.OnPhaseStart(harness.PhaseInitializer, "s1", "r1")
	hooks.OnPhaseSuccess(harness.PhaseInitializer, "s1", "r1", 2*time.Second)
	hooks.OnPhaseFailure(harness.PhaseTaskIteration, "s1", "r2", errors.New("boom"), time.Second)

	assert.Equal(t, 1, logs.FilterMessage("phase started").Len())
	assert.Equal(t, 1, logs.FilterMessage("phase succeeded").Len())
	assert.Equal(t, 1, logs.FilterMessage("phase failed").Len())

	entry := logs.FilterMessage("phase started").All()[0]
	fields := entry.ContextMap()
	assert.Equal(t, string(harness.PhaseInitializer), fields["phase"])
	assert.Equal(t, "s1", fields["session_id"])
}

func TestMetricsRuntimeHooks(t *testing.T) {
	hooks, err := NewMetricsRuntimeHooks()
	require.NoError(t, err)
	require.NotPanics(t, func() {
		hooks.OnPhaseStart(harness.PhaseTaskIteration, "s1", "r1")
		hooks.OnPhaseSuccess(harness.PhaseTaskIteration, "s1", "r1", time.Second)
		hooks.OnPhaseFailure(harness.PhaseTaskIteration, "s1", "r1", errors.New("x"), time.Second)
	})
}
