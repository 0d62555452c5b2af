package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/fyrsmithlabs/harnessd/internal/provider"
)

// sessionState is the full durable state of one session.
type sessionState struct {
	manifest    SessionManifest
	features    []FeatureRecord
	progress    []ProgressEntry
	checkpoints []RunCheckpoint
	transcript  []provider.Message
}

func (s *sessionState) clone() *sessionState {
	out := &sessionState{manifest: s.manifest}
	out.features = append([]FeatureRecord(nil), s.features...)
	out.progress = append([]ProgressEntry(nil), s.progress...)
	out.checkpoints = append([]RunCheckpoint(nil), s.checkpoints...)
	out.transcript = append([]provider.Message(nil), s.transcript...)
	return out
}

// InMemory is a map-backed Backend for tests and ephemeral sessions.
type InMemory struct {
	mu       sync.RWMutex
	sessions map[string]*sessionState
}

// NewInMemory returns an empty in-memory backend.
func NewInMemory() *InMemory {
	return &InMemory{sessions: make(map[string]*sessionState)}
}

// IsInitialized implements Backend.
func (b *InMemory) IsInitialized(_ context.Context, sessionID string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.sessions[sessionID]
	return ok, nil
}

// InitializeSessionIfMissing implements Backend.
func (b *InMemory) InitializeSessionIfMissing(_ context.Context, manifest SessionManifest, features []FeatureRecord, progress *ProgressEntry, checkpoint *RunCheckpoint) (bool, error) {
	if err := manifest.Validate(); err != nil {
		return false, invalidErr("initialize_session", err.Error())
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.sessions[manifest.SessionID]; ok {
		return false, nil
	}
	st := &sessionState{manifest: manifest}
	st.features = append(st.features, features...)
	if progress != nil {
		st.progress = append(st.progress, *progress)
	}
	if checkpoint != nil {
		st.checkpoints = append(st.checkpoints, *checkpoint)
	}
	b.sessions[manifest.SessionID] = st
	return true, nil
}

// LoadBootstrapState implements Backend.
func (b *InMemory) LoadBootstrapState(_ context.Context, sessionID string) (*BootstrapState, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	st, ok := b.sessions[sessionID]
	if !ok {
		return &BootstrapState{}, nil
	}
	c := st.clone()
	manifest := c.manifest
	return &BootstrapState{
		Manifest:       &manifest,
		Features:       c.features,
		RecentProgress: recentProgress(c.progress),
		Checkpoints:    c.checkpoints,
	}, nil
}

// SaveManifest implements Backend.
func (b *InMemory) SaveManifest(_ context.Context, manifest SessionManifest) error {
	if err := manifest.Validate(); err != nil {
		return invalidErr("save_manifest", err.Error())
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.sessions[manifest.SessionID]
	if !ok {
		return notFoundErr("save_manifest", fmt.Sprintf("session %q is not initialized", manifest.SessionID))
	}
	st.manifest = manifest
	return nil
}

// ReplaceFeatureList implements Backend.
func (b *InMemory) ReplaceFeatureList(_ context.Context, sessionID string, features []FeatureRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.sessions[sessionID]
	if !ok {
		return notFoundErr("replace_feature_list", fmt.Sprintf("session %q is not initialized", sessionID))
	}
	st.features = append([]FeatureRecord(nil), features...)
	return nil
}

// SetFeaturePassing implements Backend.
func (b *InMemory) SetFeaturePassing(_ context.Context, sessionID, featureID string, passes bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.sessions[sessionID]
	if !ok {
		return notFoundErr("set_feature_passing", fmt.Sprintf("session %q is not initialized", sessionID))
	}
	for i := range st.features {
		if st.features[i].ID == featureID {
			st.features[i].Passes = passes
			return nil
		}
	}
	return notFoundErr("set_feature_passing", fmt.Sprintf("feature %q not found", featureID))
}

// AppendProgress implements Backend.
func (b *InMemory) AppendProgress(_ context.Context, sessionID string, entry ProgressEntry) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.sessions[sessionID]
	if !ok {
		return notFoundErr("append_progress", fmt.Sprintf("session %q is not initialized", sessionID))
	}
	st.progress = append(st.progress, entry)
	return nil
}

// RecordRunCheckpoint implements Backend.
func (b *InMemory) RecordRunCheckpoint(_ context.Context, sessionID string, checkpoint RunCheckpoint) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.sessions[sessionID]
	if !ok {
		return notFoundErr("record_run_checkpoint", fmt.Sprintf("session %q is not initialized", sessionID))
	}
	for i := range st.checkpoints {
		if st.checkpoints[i].RunID == checkpoint.RunID {
			existing := st.checkpoints[i]
			if err := checkUpsert(&existing, checkpoint); err != nil {
				return err
			}
			st.checkpoints[i] = mergeUpsert(&existing, checkpoint)
			return nil
		}
	}
	if err := checkUpsert(nil, checkpoint); err != nil {
		return err
	}
	st.checkpoints = append(st.checkpoints, checkpoint)
	return nil
}

// LoadTranscript implements Backend.
func (b *InMemory) LoadTranscript(_ context.Context, sessionID string) ([]provider.Message, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	st, ok := b.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	out := make([]provider.Message, len(st.transcript))
	copy(out, st.transcript)
	return out, nil
}

// AppendTranscript implements Backend.
func (b *InMemory) AppendTranscript(_ context.Context, sessionID string, msgs []provider.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.sessions[sessionID]
	if !ok {
		return notFoundErr("append_transcript", fmt.Sprintf("session %q is not initialized", sessionID))
	}
	st.transcript = append(st.transcript, msgs...)
	return nil
}

// Close implements Backend.
func (b *InMemory) Close() error { return nil }
