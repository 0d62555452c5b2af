package chat

import (
	"context"
	"sync"

	"github.com/fyrsmithlabs/harnessd/internal/provider"
)

// ConversationStore persists per-session transcripts.
type ConversationStore interface {
	LoadMessages(ctx context.Context, sessionID string) ([]provider.Message, error)
	AppendMessages(ctx context.Context, sessionID string, msgs []provider.Message) error
}

// InMemoryStore is a transcript store backed by a map. It is safe for
// concurrent use and intended for tests and ephemeral sessions.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]provider.Message
}

// NewInMemoryStore returns an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string][]provider.Message)}
}

// LoadMessages implements ConversationStore.
func (s *InMemoryStore) LoadMessages(_ context.Context, sessionID string) ([]provider.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.sessions[sessionID]
	out := make([]provider.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// AppendMessages implements ConversationStore.
func (s *InMemoryStore) AppendMessages(_ context.Context, sessionID string, msgs []provider.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = append(s.sessions[sessionID], msgs...)
	return nil
}
