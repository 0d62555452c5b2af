package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/fyrsmithlabs/harnessd/internal/provider"
)

// sessionDocument is the on-disk shape of one session's state.
type sessionDocument struct {
	Manifest    SessionManifest    `json:"manifest"`
	Features    []FeatureRecord    `json:"features"`
	Progress    []ProgressEntry    `json:"progress"`
	Checkpoints []RunCheckpoint    `json:"checkpoints"`
	Transcript  []provider.Message `json:"transcript"`
}

var sessionFileUnsafe = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// Filesystem stores each session as a JSON document under a root
// directory. Writes go through a temp file and rename so a crash never
// leaves a torn document.
type Filesystem struct {
	root string
	mu   sync.Mutex
}

// NewFilesystem builds a filesystem backend rooted at dir, creating it
// if needed.
func NewFilesystem(dir string) (*Filesystem, error) {
	if dir == "" {
		return nil, invalidErr("open", "filesystem backend requires a root directory")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, storageErr("open", "create state directory", err)
	}
	return &Filesystem{root: dir}, nil
}

func (b *Filesystem) sessionPath(sessionID string) string {
	safe := sessionFileUnsafe.ReplaceAllString(sessionID, "_")
	return filepath.Join(b.root, safe+".json")
}

// load reads a session document; missing sessions return (nil, nil).
func (b *Filesystem) load(sessionID string) (*sessionDocument, error) {
	data, err := os.ReadFile(b.sessionPath(sessionID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, storageErr("load", "read session document", err)
	}
	var doc sessionDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, storageErr("load", "decode session document", err)
	}
	return &doc, nil
}

func (b *Filesystem) store(sessionID string, doc *sessionDocument) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return storageErr("store", "encode session document", err)
	}
	path := b.sessionPath(sessionID)
	tmp, err := os.CreateTemp(b.root, ".session-*.tmp")
	if err != nil {
		return storageErr("store", "create temp file", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return storageErr("store", "write temp file", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return storageErr("store", "close temp file", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return storageErr("store", "replace session document", err)
	}
	return nil
}

// mutate loads, transforms, and atomically rewrites one session document.
func (b *Filesystem) mutate(op, sessionID string, fn func(*sessionDocument) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	doc, err := b.load(sessionID)
	if err != nil {
		return err
	}
	if doc == nil {
		return notFoundErr(op, fmt.Sprintf("session %q is not initialized", sessionID))
	}
	if err := fn(doc); err != nil {
		return err
	}
	return b.store(sessionID, doc)
}

// IsInitialized implements Backend.
func (b *Filesystem) IsInitialized(_ context.Context, sessionID string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	doc, err := b.load(sessionID)
	if err != nil {
		return false, err
	}
	return doc != nil, nil
}

// InitializeSessionIfMissing implements Backend.
func (b *Filesystem) InitializeSessionIfMissing(_ context.Context, manifest SessionManifest, features []FeatureRecord, progress *ProgressEntry, checkpoint *RunCheckpoint) (bool, error) {
	if err := manifest.Validate(); err != nil {
		return false, invalidErr("initialize_session", err.Error())
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	doc, err := b.load(manifest.SessionID)
	if err != nil {
		return false, err
	}
	if doc != nil {
		return false, nil
	}
	doc = &sessionDocument{Manifest: manifest, Features: features}
	if progress != nil {
		doc.Progress = append(doc.Progress, *progress)
	}
	if checkpoint != nil {
		doc.Checkpoints = append(doc.Checkpoints, *checkpoint)
	}
	if err := b.store(manifest.SessionID, doc); err != nil {
		return false, err
	}
	return true, nil
}

// LoadBootstrapState implements Backend.
func (b *Filesystem) LoadBootstrapState(_ context.Context, sessionID string) (*BootstrapState, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	doc, err := b.load(sessionID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return &BootstrapState{}, nil
	}
	manifest := doc.Manifest
	return &BootstrapState{
		Manifest:       &manifest,
		Features:       doc.Features,
		RecentProgress: recentProgress(doc.Progress),
		Checkpoints:    doc.Checkpoints,
	}, nil
}

// SaveManifest implements Backend.
func (b *Filesystem) SaveManifest(_ context.Context, manifest SessionManifest) error {
	if err := manifest.Validate(); err != nil {
		return invalidErr("save_manifest", err.Error())
	}
	return b.mutate("save_manifest", manifest.SessionID, func(doc *sessionDocument) error {
		doc.Manifest = manifest
		return nil
	})
}

// ReplaceFeatureList implements Backend.
func (b *Filesystem) ReplaceFeatureList(_ context.Context, sessionID string, features []FeatureRecord) error {
	return b.mutate("replace_feature_list", sessionID, func(doc *sessionDocument) error {
		doc.Features = append([]FeatureRecord(nil), features...)
		return nil
	})
}

// SetFeaturePassing implements Backend.
func (b *Filesystem) SetFeaturePassing(_ context.Context, sessionID, featureID string, passes bool) error {
	return b.mutate("set_feature_passing", sessionID, func(doc *sessionDocument) error {
		for i := range doc.Features {
			if doc.Features[i].ID == featureID {
				doc.Features[i].Passes = passes
				return nil
			}
		}
		return notFoundErr("set_feature_passing", fmt.Sprintf("feature %q not found", featureID))
	})
}

// AppendProgress implements Backend.
func (b *Filesystem) AppendProgress(_ context.Context, sessionID string, entry ProgressEntry) error {
	return b.mutate("append_progress", sessionID, func(doc *sessionDocument) error {
		doc.Progress = append(doc.Progress, entry)
		return nil
	})
}

// RecordRunCheckpoint implements Backend.
func (b *Filesystem) RecordRunCheckpoint(_ context.Context, sessionID string, checkpoint RunCheckpoint) error {
	return b.mutate("record_run_checkpoint", sessionID, func(doc *sessionDocument) error {
		for i := range doc.Checkpoints {
			if doc.Checkpoints[i].RunID == checkpoint.RunID {
				existing := doc.Checkpoints[i]
				if err := checkUpsert(&existing, checkpoint); err != nil {
					return err
				}
				doc.Checkpoints[i] = mergeUpsert(&existing, checkpoint)
				return nil
			}
		}
		if err := checkUpsert(nil, checkpoint); err != nil {
			return err
		}
		doc.Checkpoints = append(doc.Checkpoints, checkpoint)
		return nil
	})
}

// LoadTranscript implements Backend.
func (b *Filesystem) LoadTranscript(_ context.Context, sessionID string) ([]provider.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	doc, err := b.load(sessionID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, nil
	}
	return doc.Transcript, nil
}

// AppendTranscript implements Backend.
func (b *Filesystem) AppendTranscript(_ context.Context, sessionID string, msgs []provider.Message) error {
	return b.mutate("append_transcript", sessionID, func(doc *sessionDocument) error {
		doc.Transcript = append(doc.Transcript, msgs...)
		return nil
	})
}

// Close implements Backend.
func (b *Filesystem) Close() error { return nil }
