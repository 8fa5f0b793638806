package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"github.com/BTreeMap/ScanDesk/internal/models"
	"github.com/BTreeMap/ScanDesk/internal/store"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *backend.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := backend.NewClient(&backend.Options{
		Addr: mr.Addr(),
	})
	return mr, client
}

func TestRedisStore_RoundTrip(t *testing.T) {
	_, client := newTestRedis(t)
	s := store.NewRedisStoreFromClient(client)
	ctx := context.Background()

	state := models.NewConversationState()
	state.Intent = models.IntentDeletePatient
	state.ConfirmationRequired = true
	state.AwaitingConfirmationType = models.ConfirmationTypeDelete

	err := s.SaveConversation(ctx, "conv-1", state)
	assert.NoError(t, err)

	loaded, err := s.LoadConversation(ctx, "conv-1")
	assert.NoError(t, err)
	assert.NotNil(t, loaded)
	assert.Equal(t, models.IntentDeletePatient, loaded.Intent)
	assert.True(t, loaded.ConfirmationRequired)

	missing, err := s.LoadConversation(ctx, "absent")
	assert.NoError(t, err)
	assert.Nil(t, missing)

	err = s.DeleteConversation(ctx, "conv-1")
	assert.NoError(t, err)
	gone, err := s.LoadConversation(ctx, "conv-1")
	assert.NoError(t, err)
	assert.Nil(t, gone)
}

func TestRedisStore_TTLExpiration(t *testing.T) {
	mr, client := newTestRedis(t)
	s := store.NewRedisStoreFromClient(client, store.WithRedisTTL(1*time.Second))
	ctx := context.Background()

	err := s.SaveConversation(ctx, "conv-ttl", models.NewConversationState())
	assert.NoError(t, err)

	mr.FastForward(2 * time.Second)

	loaded, err := s.LoadConversation(ctx, "conv-ttl")
	assert.NoError(t, err)
	assert.Nil(t, loaded, "expected conversation to expire")
}

func TestRedisStore_Prefix(t *testing.T) {
	mr, client := newTestRedis(t)
	s := store.NewRedisStoreFromClient(client, store.WithRedisPrefix("custom:app:"))
	ctx := context.Background()

	err := s.SaveConversation(ctx, "conv-1", models.NewConversationState())
	assert.NoError(t, err)

	assert.True(t, mr.Exists("custom:app:conv-1"), "expected key with custom prefix to exist")
}
