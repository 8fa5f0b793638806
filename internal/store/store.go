// Package store provides conversation state persistence backends for
// ScanDesk.
//
// The core operates fully in-memory; the SQL and Redis backends add
// best-effort cross-process continuity. Serialized state is flat JSON with
// enumerations by name.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/BTreeMap/ScanDesk/internal/models"
)

// Store persists serialized conversation state between turns. Load returns
// (nil, nil) when no state exists for the conversation.
type Store interface {
	SaveConversation(ctx context.Context, conversationID string, state *models.ConversationState) error
	LoadConversation(ctx context.Context, conversationID string) (*models.ConversationState, error)
	DeleteConversation(ctx context.Context, conversationID string) error
	Close() error
}

// Opts holds common configuration for storage backends.
type Opts struct {
	DSN string
}

// Option configures a storage backend.
type Option func(*Opts)

// WithDSN sets the backend connection string or file path.
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType reports which backend a DSN selects: "postgres", "redis", or
// "sqlite" (the fallback for plain file paths).
func DetectDSNType(dsn string) string {
	switch {
	case strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host="):
		return "postgres"
	case strings.HasPrefix(dsn, "redis://") || strings.HasPrefix(dsn, "rediss://"):
		return "redis"
	default:
		return "sqlite"
	}
}

// encodeState serializes conversation state to its flat JSON form.
func encodeState(state *models.ConversationState) ([]byte, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("failed to encode conversation state: %w", err)
	}
	return data, nil
}

// decodeState deserializes conversation state from its flat JSON form.
func decodeState(data []byte) (*models.ConversationState, error) {
	var state models.ConversationState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to decode conversation state: %w", err)
	}
	return &state, nil
}

// InMemoryStore keeps serialized conversation state for the process's
// lifetime. Storing the serialized form keeps behavior identical to the
// persistent backends and prevents aliasing of the mutable state.
type InMemoryStore struct {
	mu            sync.RWMutex
	conversations map[string][]byte
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{conversations: make(map[string][]byte)}
}

// SaveConversation stores the serialized state under the conversation id.
func (s *InMemoryStore) SaveConversation(ctx context.Context, conversationID string, state *models.ConversationState) error {
	data, err := encodeState(state)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[conversationID] = data
	slog.Debug("InMemoryStore.SaveConversation succeeded", "conversationID", conversationID, "bytes", len(data))
	return nil
}

// LoadConversation retrieves the state for a conversation, or nil when absent.
func (s *InMemoryStore) LoadConversation(ctx context.Context, conversationID string) (*models.ConversationState, error) {
	s.mu.RLock()
	data, ok := s.conversations[conversationID]
	s.mu.RUnlock()
	if !ok {
		slog.Debug("InMemoryStore.LoadConversation not found", "conversationID", conversationID)
		return nil, nil
	}
	return decodeState(data)
}

// DeleteConversation removes the state for a conversation.
func (s *InMemoryStore) DeleteConversation(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conversations, conversationID)
	slog.Debug("InMemoryStore.DeleteConversation succeeded", "conversationID", conversationID)
	return nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
