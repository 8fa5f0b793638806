package store

import (
	"context"
	"log/slog"

	"github.com/BTreeMap/ScanDesk/internal/models"
)

// ResilientStore wraps a primary store and shields callers from its
// failures. When the primary errors, reads and writes fall back to an
// in-process memory store so a flaky backend degrades the agent to
// per-process persistence instead of taking turns down.
type ResilientStore struct {
	primary  Store
	fallback *InMemoryStore
}

// NewResilientStore wraps the given primary store.
func NewResilientStore(primary Store) *ResilientStore {
	return &ResilientStore{
		primary:  primary,
		fallback: NewInMemoryStore(),
	}
}

// SaveConversation writes to the primary and mirrors into the fallback so a
// later primary outage can still serve recent state.
func (s *ResilientStore) SaveConversation(ctx context.Context, conversationID string, state *models.ConversationState) error {
	if err := s.fallback.SaveConversation(ctx, conversationID, state); err != nil {
		return err
	}
	if err := s.primary.SaveConversation(ctx, conversationID, state); err != nil {
		slog.Warn("ResilientStore.SaveConversation: primary store failed, state kept in memory", "error", err, "conversationID", conversationID)
	}
	return nil
}

// LoadConversation reads from the primary, falling back to the mirrored
// in-memory copy when the primary errors.
func (s *ResilientStore) LoadConversation(ctx context.Context, conversationID string) (*models.ConversationState, error) {
	state, err := s.primary.LoadConversation(ctx, conversationID)
	if err != nil {
		slog.Warn("ResilientStore.LoadConversation: primary store failed, using in-memory copy", "error", err, "conversationID", conversationID)
		return s.fallback.LoadConversation(ctx, conversationID)
	}
	return state, nil
}

// DeleteConversation removes the conversation from both stores.
func (s *ResilientStore) DeleteConversation(ctx context.Context, conversationID string) error {
	if err := s.fallback.DeleteConversation(ctx, conversationID); err != nil {
		return err
	}
	if err := s.primary.DeleteConversation(ctx, conversationID); err != nil {
		slog.Warn("ResilientStore.DeleteConversation: primary store failed", "error", err, "conversationID", conversationID)
	}
	return nil
}

// Close closes the primary store.
func (s *ResilientStore) Close() error {
	return s.primary.Close()
}
