package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	cfg := NewDefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Enabled = true
	cfg.Endpoint = ""
	require.Error(t, cfg.Validate())

	cfg = NewDefaultConfig()
	cfg.SampleRatio = 1.5
	require.Error(t, cfg.Validate())
}

func TestNewDisabled(t *testing.T) {
	tel, err := New(context.Background(), NewDefaultConfig())
	require.NoError(t, err)
	require.NotNil(t, tel)
	assert.False(t, tel.Degraded())

	// Disabled instances hand out global (no-op) providers and shut
	// down cleanly.
	assert.NotNil(t, tel.Tracer("test"))
	assert.NotNil(t, tel.Meter("test"))
	require.NoError(t, tel.Shutdown(context.Background()))
	require.NoError(t, tel.ForceFlush(context.Background()))
}

func TestNewInvalidConfig(t *testing.T) {
	_, err := New(context.Background(), Config{Enabled: true, SampleRatio: -1})
	require.Error(t, err)
}

func TestNilReceiverSafe(t *testing.T) {
	var tel *Telemetry
	require.NoError(t, tel.Shutdown(context.Background()))
	require.NoError(t, tel.ForceFlush(context.Background()))
	assert.False(t, tel.Degraded())
	assert.NotNil(t, tel.Tracer("test"))
	assert.NotNil(t, tel.Meter("test"))
}
