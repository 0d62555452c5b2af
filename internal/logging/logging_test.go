package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	cfg := NewDefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Level = "shout"
	require.Error(t, cfg.Validate())

	cfg = NewDefaultConfig()
	cfg.Format = "xml"
	require.Error(t, cfg.Validate())
}

func TestNew(t *testing.T) {
	logger, err := New(NewDefaultConfig())
	require.NoError(t, err)
	require.NotNil(t, logger)
	logger.Sync()

	_, err = New(Config{Level: "nope", Format: "json"})
	require.Error(t, err)
}

func TestContextFields(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, ContextFields(ctx))

	ctx = WithSessionID(ctx, "s1")
	ctx = WithRunID(ctx, "r1")
	fields := ContextFields(ctx)
	require.Len(t, fields, 2)
	assert.Equal(t, "s1", SessionIDFromContext(ctx))
	assert.Equal(t, "r1", RunIDFromContext(ctx))
}
