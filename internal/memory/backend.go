package memory

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/harnessd/internal/provider"
)

// maxRecentProgress bounds how many progress entries LoadBootstrapState
// returns, newest last.
const maxRecentProgress = 20

// Backend is the durable store for session state.
//
// InitializeSessionIfMissing is the idempotency anchor: the first call
// for a session id creates it and returns true; every later call leaves
// the existing state untouched and returns false.
type Backend interface {
	IsInitialized(ctx context.Context, sessionID string) (bool, error)
	InitializeSessionIfMissing(ctx context.Context, manifest SessionManifest, features []FeatureRecord, progress *ProgressEntry, checkpoint *RunCheckpoint) (bool, error)
	LoadBootstrapState(ctx context.Context, sessionID string) (*BootstrapState, error)
	SaveManifest(ctx context.Context, manifest SessionManifest) error
	ReplaceFeatureList(ctx context.Context, sessionID string, features []FeatureRecord) error
	SetFeaturePassing(ctx context.Context, sessionID, featureID string, passes bool) error
	AppendProgress(ctx context.Context, sessionID string, entry ProgressEntry) error
	RecordRunCheckpoint(ctx context.Context, sessionID string, checkpoint RunCheckpoint) error
	LoadTranscript(ctx context.Context, sessionID string) ([]provider.Message, error)
	AppendTranscript(ctx context.Context, sessionID string, msgs []provider.Message) error
	Close() error
}

// Driver names a backend implementation.
type Driver string

const (
	DriverInMemory   Driver = "inmemory"
	DriverFilesystem Driver = "filesystem"
	DriverSQLite     Driver = "sqlite"
)

// Config selects and configures a backend.
type Config struct {
	Driver Driver `koanf:"driver"`
	// Path is the state directory for the filesystem driver or the
	// database file for the sqlite driver.
	Path string `koanf:"path"`
}

// Open builds a backend from config.
func Open(cfg Config) (Backend, error) {
	switch cfg.Driver {
	case DriverInMemory, "":
		return NewInMemory(), nil
	case DriverFilesystem:
		return NewFilesystem(cfg.Path)
	case DriverSQLite:
		return NewSQLite(cfg.Path)
	default:
		return nil, fmt.Errorf("memory: unknown driver %q", cfg.Driver)
	}
}

// checkUpsert enforces checkpoint upsert semantics against the existing
// record for the same run id, shared by all backends.
func checkUpsert(existing *RunCheckpoint, incoming RunCheckpoint) error {
	if incoming.RunID == "" {
		return invalidErr("record_run_checkpoint", "checkpoint run id is required")
	}
	if existing != nil && existing.Status.Terminal() {
		return invalidErr("record_run_checkpoint",
			fmt.Sprintf("checkpoint for run %q is already terminal (%s)", incoming.RunID, existing.Status))
	}
	return nil
}

// mergeUpsert preserves the original start time when the incoming record
// does not carry one.
func mergeUpsert(existing *RunCheckpoint, incoming RunCheckpoint) RunCheckpoint {
	if existing != nil && incoming.StartedAt.IsZero() {
		incoming.StartedAt = existing.StartedAt
	}
	return incoming
}

// recentProgress trims a full progress history to the reporting window.
func recentProgress(entries []ProgressEntry) []ProgressEntry {
	if len(entries) <= maxRecentProgress {
		out := make([]ProgressEntry, len(entries))
		copy(out, entries)
		return out
	}
	out := make([]ProgressEntry, maxRecentProgress)
	copy(out, entries[len(entries)-maxRecentProgress:])
	return out
}
