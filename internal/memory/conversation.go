package memory

import (
	"context"

	"github.com/fyrsmithlabs/harnessd/internal/chat"
	"github.com/fyrsmithlabs/harnessd/internal/provider"
)

// ConversationStore adapts a Backend to the chat transcript contract so
// turns persist through the same durable store as the rest of the
// session state.
type ConversationStore struct {
	backend Backend
}

var _ chat.ConversationStore = (*ConversationStore)(nil)

// NewConversationStore wraps a backend.
func NewConversationStore(backend Backend) *ConversationStore {
	return &ConversationStore{backend: backend}
}

// LoadMessages implements chat.ConversationStore.
func (s *ConversationStore) LoadMessages(ctx context.Context, sessionID string) ([]provider.Message, error) {
	return s.backend.LoadTranscript(ctx, sessionID)
}

// AppendMessages implements chat.ConversationStore.
func (s *ConversationStore) AppendMessages(ctx context.Context, sessionID string, msgs []provider.Message) error {
	return s.backend.AppendTranscript(ctx, sessionID, msgs)
}
