package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/BTreeMap/ScanDesk/internal/models"
)

// DefaultRedisKeyPrefix namespaces conversation keys in Redis.
const DefaultRedisKeyPrefix = "scandesk:conversation:"

// RedisStore persists conversation state in Redis. Entries may carry a TTL
// so idle conversations expire on their own.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithRedisTTL sets the expiration for stored conversations. Zero means no
// expiration.
func WithRedisTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		s.ttl = ttl
	}
}

// WithRedisPrefix sets the key prefix for stored conversations.
func WithRedisPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// NewRedisStore creates a Redis store connected to the given address.
func NewRedisStore(address, password string, db int, opts ...RedisOption) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewRedisStoreFromClient(client, opts...)
}

// NewRedisStoreFromURL creates a Redis store from a redis:// DSN.
func NewRedisStoreFromURL(dsn string, opts ...RedisOption) (*RedisStore, error) {
	parsed, err := redis.ParseURL(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis DSN: %w", err)
	}
	return NewRedisStoreFromClient(redis.NewClient(parsed), opts...), nil
}

// NewRedisStoreFromClient creates a Redis store from an existing client.
func NewRedisStoreFromClient(client *redis.Client, opts ...RedisOption) *RedisStore {
	store := &RedisStore{
		client: client,
		prefix: DefaultRedisKeyPrefix,
		ttl:    0,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (s *RedisStore) key(conversationID string) string {
	return s.prefix + conversationID
}

// SaveConversation persists the serialized state under the conversation key.
func (s *RedisStore) SaveConversation(ctx context.Context, conversationID string, state *models.ConversationState) error {
	data, err := encodeState(state)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(conversationID), data, s.ttl).Err(); err != nil {
		slog.Error("RedisStore SaveConversation failed", "error", err, "conversationID", conversationID)
		return fmt.Errorf("failed to save conversation %s: %w", conversationID, err)
	}
	slog.Debug("RedisStore SaveConversation succeeded", "conversationID", conversationID)
	return nil
}

// LoadConversation retrieves the state for a conversation, or nil when absent.
func (s *RedisStore) LoadConversation(ctx context.Context, conversationID string) (*models.ConversationState, error) {
	val, err := s.client.Get(ctx, s.key(conversationID)).Result()
	if err == redis.Nil {
		slog.Debug("RedisStore LoadConversation not found", "conversationID", conversationID)
		return nil, nil
	}
	if err != nil {
		slog.Error("RedisStore LoadConversation failed", "error", err, "conversationID", conversationID)
		return nil, fmt.Errorf("failed to load conversation %s: %w", conversationID, err)
	}
	return decodeState([]byte(val))
}

// DeleteConversation removes the state for a conversation.
func (s *RedisStore) DeleteConversation(ctx context.Context, conversationID string) error {
	if err := s.client.Del(ctx, s.key(conversationID)).Err(); err != nil {
		slog.Error("RedisStore DeleteConversation failed", "error", err, "conversationID", conversationID)
		return fmt.Errorf("failed to delete conversation %s: %w", conversationID, err)
	}
	return nil
}

// Close closes the redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
