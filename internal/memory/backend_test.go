package memory

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/harnessd/internal/provider"
)

// backendsUnderTest builds one of each backend against temp storage.
func backendsUnderTest(t *testing.T) map[string]Backend {
	t.Helper()
	fs, err := NewFilesystem(t.TempDir())
	require.NoError(t, err)
	sq, err := NewSQLite(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sq.Close() })
	return map[string]Backend{
		"inmemory":   NewInMemory(),
		"filesystem": fs,
		"sqlite":     sq,
	}
}

func testManifest(sessionID string) SessionManifest {
	return SessionManifest{
		SessionID:        sessionID,
		SchemaVersion:    DefaultSchemaVersion,
		HarnessVersion:   "0.1.0",
		ActiveBranch:     "main",
		CurrentObjective: "ship the widget",
	}
}

func testFeatures() []FeatureRecord {
	return []FeatureRecord{
		{ID: "f1", Category: "core", Description: "first feature", Steps: []string{"run it"}},
		{ID: "f2", Category: "core", Description: "second feature", Steps: []string{"check it"}},
	}
}

func TestBackendInitialization(t *testing.T) {
	for name, b := range backendsUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			ok, err := b.IsInitialized(ctx, "s1")
			require.NoError(t, err)
			assert.False(t, ok)

			created, err := b.InitializeSessionIfMissing(ctx, testManifest("s1"), testFeatures(), nil, nil)
			require.NoError(t, err)
			assert.True(t, created)

			ok, err = b.IsInitialized(ctx, "s1")
			require.NoError(t, err)
			assert.True(t, ok)

			// A second initialization must not touch existing state.
			altered := testManifest("s1")
			altered.CurrentObjective = "something else entirely"
			created, err = b.InitializeSessionIfMissing(ctx, altered, nil, nil, nil)
			require.NoError(t, err)
			assert.False(t, created)

			state, err := b.LoadBootstrapState(ctx, "s1")
			require.NoError(t, err)
			require.NotNil(t, state.Manifest)
			assert.Equal(t, "ship the widget", state.Manifest.CurrentObjective)
			assert.Len(t, state.Features, 2)
		})
	}
}

func TestBackendInitializationSeedsProgressAndCheckpoint(t *testing.T) {
	for name, b := range backendsUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now().UTC().Truncate(time.Millisecond)
			progress := &ProgressEntry{RunID: "r0", Summary: "session created", CreatedAt: now}
			checkpoint := &RunCheckpoint{RunID: "r0", StartedAt: now, Status: RunStarted}

			created, err := b.InitializeSessionIfMissing(ctx, testManifest("s1"), testFeatures(), progress, checkpoint)
			require.NoError(t, err)
			require.True(t, created)

			state, err := b.LoadBootstrapState(ctx, "s1")
			require.NoError(t, err)
			require.Len(t, state.RecentProgress, 1)
			assert.Equal(t, "session created", state.RecentProgress[0].Summary)
			require.Len(t, state.Checkpoints, 1)
			assert.Equal(t, RunStarted, state.Checkpoints[0].Status)
		})
	}
}

func TestBackendRejectsInvalidManifest(t *testing.T) {
	for name, b := range backendsUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			bad := testManifest("")
			_, err := b.InitializeSessionIfMissing(ctx, bad, nil, nil, nil)
			require.Error(t, err)
			var merr *Error
			require.ErrorAs(t, err, &merr)
			assert.Equal(t, ErrInvalidRequest, merr.Kind)
		})
	}
}

func TestBackendLoadBootstrapUninitialized(t *testing.T) {
	for name, b := range backendsUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			state, err := b.LoadBootstrapState(context.Background(), "ghost")
			require.NoError(t, err)
			assert.Nil(t, state.Manifest)
			assert.Empty(t, state.Features)
		})
	}
}

func TestBackendFeaturePassing(t *testing.T) {
	for name, b := range backendsUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := b.InitializeSessionIfMissing(ctx, testManifest("s1"), testFeatures(), nil, nil)
			require.NoError(t, err)

			require.NoError(t, b.SetFeaturePassing(ctx, "s1", "f1", true))

			state, err := b.LoadBootstrapState(ctx, "s1")
			require.NoError(t, err)
			assert.True(t, state.Features[0].Passes)
			assert.False(t, state.Features[1].Passes)
			assert.False(t, AllRequiredFeaturesPass(state.Features))

			require.NoError(t, b.SetFeaturePassing(ctx, "s1", "f2", true))
			state, err = b.LoadBootstrapState(ctx, "s1")
			require.NoError(t, err)
			assert.True(t, AllRequiredFeaturesPass(state.Features))

			err = b.SetFeaturePassing(ctx, "s1", "nope", true)
			require.Error(t, err)
			var merr *Error
			require.ErrorAs(t, err, &merr)
			assert.Equal(t, ErrNotFound, merr.Kind)
		})
	}
}

func TestBackendCheckpointLifecycle(t *testing.T) {
	for name, b := range backendsUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := b.InitializeSessionIfMissing(ctx, testManifest("s1"), nil, nil, nil)
			require.NoError(t, err)

			started := time.Now().UTC().Truncate(time.Millisecond)
			require.NoError(t, b.RecordRunCheckpoint(ctx, "s1", Started("r1", started)))

			// Finalizing without a start time keeps the recorded one.
			final := RunCheckpoint{RunID: "r1"}.Finalized(RunSucceeded, "all good", started.Add(time.Minute))
			require.NoError(t, b.RecordRunCheckpoint(ctx, "s1", final))

			state, err := b.LoadBootstrapState(ctx, "s1")
			require.NoError(t, err)
			require.Len(t, state.Checkpoints, 1)
			cp := state.Checkpoints[0]
			assert.Equal(t, RunSucceeded, cp.Status)
			assert.Equal(t, "all good", cp.Note)
			assert.Equal(t, started, cp.StartedAt)
			require.NotNil(t, cp.CompletedAt)

			// Terminal checkpoints can never be rewritten.
			err = b.RecordRunCheckpoint(ctx, "s1", Started("r1", time.Now()))
			require.Error(t, err)
			var merr *Error
			require.ErrorAs(t, err, &merr)
			assert.Equal(t, ErrInvalidRequest, merr.Kind)

			err = b.RecordRunCheckpoint(ctx, "s1",
				RunCheckpoint{RunID: "r1"}.Finalized(RunFailed, "second terminal write", time.Now()))
			require.Error(t, err)

			// Other runs are unaffected.
			require.NoError(t, b.RecordRunCheckpoint(ctx, "s1", Started("r2", time.Now())))
			state, err = b.LoadBootstrapState(ctx, "s1")
			require.NoError(t, err)
			assert.Len(t, state.Checkpoints, 2)
		})
	}
}

func TestBackendCheckpointRequiresRunID(t *testing.T) {
	for name, b := range backendsUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := b.InitializeSessionIfMissing(ctx, testManifest("s1"), nil, nil, nil)
			require.NoError(t, err)
			err = b.RecordRunCheckpoint(ctx, "s1", RunCheckpoint{Status: RunStarted})
			require.Error(t, err)
		})
	}
}

func TestBackendProgressWindow(t *testing.T) {
	for name, b := range backendsUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := b.InitializeSessionIfMissing(ctx, testManifest("s1"), nil, nil, nil)
			require.NoError(t, err)

			base := time.Now().UTC().Truncate(time.Millisecond)
			for i := 0; i < maxRecentProgress+5; i++ {
				require.NoError(t, b.AppendProgress(ctx, "s1", ProgressEntry{
					RunID:     fmt.Sprintf("r%d", i),
					Summary:   fmt.Sprintf("run %d", i),
					CreatedAt: base.Add(time.Duration(i) * time.Second),
				}))
			}

			state, err := b.LoadBootstrapState(ctx, "s1")
			require.NoError(t, err)
			require.Len(t, state.RecentProgress, maxRecentProgress)
			// Newest entries win; the oldest five fall off.
			assert.Equal(t, "run 5", state.RecentProgress[0].Summary)
			assert.Equal(t, fmt.Sprintf("run %d", maxRecentProgress+4),
				state.RecentProgress[len(state.RecentProgress)-1].Summary)
		})
	}
}

func TestBackendTranscript(t *testing.T) {
	for name, b := range backendsUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := b.InitializeSessionIfMissing(ctx, testManifest("s1"), nil, nil, nil)
			require.NoError(t, err)

			msgs, err := b.LoadTranscript(ctx, "s1")
			require.NoError(t, err)
			assert.Empty(t, msgs)

			require.NoError(t, b.AppendTranscript(ctx, "s1", []provider.Message{
				{Role: provider.RoleUser, Content: "hello"},
				{Role: provider.RoleAssistant, Content: "hi"},
			}))
			require.NoError(t, b.AppendTranscript(ctx, "s1", []provider.Message{
				{Role: provider.RoleTool, Content: "ok", ToolCallID: "c1"},
			}))

			msgs, err = b.LoadTranscript(ctx, "s1")
			require.NoError(t, err)
			require.Len(t, msgs, 3)
			assert.Equal(t, provider.RoleUser, msgs[0].Role)
			assert.Equal(t, "c1", msgs[2].ToolCallID)
		})
	}
}

func TestBackendWritesToUninitializedSession(t *testing.T) {
	for name, b := range backendsUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			var merr *Error

			err := b.AppendProgress(ctx, "ghost", ProgressEntry{RunID: "r1", Summary: "x", CreatedAt: time.Now()})
			require.ErrorAs(t, err, &merr)
			assert.Equal(t, ErrNotFound, merr.Kind)

			err = b.RecordRunCheckpoint(ctx, "ghost", Started("r1", time.Now()))
			require.ErrorAs(t, err, &merr)

			err = b.SetFeaturePassing(ctx, "ghost", "f1", true)
			require.ErrorAs(t, err, &merr)

			err = b.SaveManifest(ctx, testManifest("ghost"))
			require.ErrorAs(t, err, &merr)
		})
	}
}

func TestOpenFactory(t *testing.T) {
	t.Run("defaults to inmemory", func(t *testing.T) {
		b, err := Open(Config{})
		require.NoError(t, err)
		_, ok := b.(*InMemory)
		assert.True(t, ok)
	})

	t.Run("filesystem requires a path", func(t *testing.T) {
		_, err := Open(Config{Driver: DriverFilesystem})
		require.Error(t, err)
	})

	t.Run("sqlite requires a path", func(t *testing.T) {
		_, err := Open(Config{Driver: DriverSQLite})
		require.Error(t, err)
	})

	t.Run("rejects unknown drivers", func(t *testing.T) {
		_, err := Open(Config{Driver: "redis"})
		require.Error(t, err)
	})
}

func TestInitStepValidate(t *testing.T) {
	cases := []struct {
		name    string
		step    InitStep
		wantErr bool
	}{
		{"command only", InitStep{Command: []string{"git", "status"}}, false},
		{"script only", InitStep{Shell: "sh", Script: "git log --oneline -10"}, false},
		{"neither", InitStep{}, true},
		{"both", InitStep{Command: []string{"ls"}, Script: "ls"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.step.Validate()
			if tc.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}
