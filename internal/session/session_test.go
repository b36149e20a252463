package session

import (
	"context"
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ilyushechek/secretar/internal/model"
)

func newTestStore() *Store {
	logger := zerolog.New(io.Discard)
	return NewStore(NewMemoryRepository(), &logger)
}

func TestStore_UnknownUserIsIdle(t *testing.T) {
	store := newTestStore()

	sess, err := store.Get(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, StateIdle, sess.State)
	assert.Empty(t, sess.Payload)
}

func TestStore_SetReplacesStateAndMergesPayload(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, 42, State("booking_service"), map[string]string{
		KeyRole:     "provider",
		"client_id": "100",
	}))
	require.NoError(t, store.Set(ctx, 42, State("booking_cost"), map[string]string{
		"service_name": "Стрижка",
	}))

	sess, err := store.Get(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, State("booking_cost"), sess.State)
	// Earlier steps' data stays visible to later steps.
	assert.Equal(t, "100", sess.Value("client_id"))
	assert.Equal(t, "Стрижка", sess.Value("service_name"))

	role, ok := sess.Role()
	assert.True(t, ok)
	assert.Equal(t, model.RoleProvider, role)
}

func TestStore_ClearResetsEverything(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, 42, State("chat_active"), map[string]string{"partner_id": "7"}))
	require.NoError(t, store.Clear(ctx, 42))

	sess, err := store.Get(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, StateIdle, sess.State)
	assert.Empty(t, sess.Payload)
}

func TestSession_Int64(t *testing.T) {
	s := Session{Payload: map[string]string{"chat_id": "17", "bad": "x"}}

	id, ok := s.Int64("chat_id")
	assert.True(t, ok)
	assert.Equal(t, int64(17), id)

	_, ok = s.Int64("bad")
	assert.False(t, ok)
	_, ok = s.Int64("missing")
	assert.False(t, ok)
}

func TestMemoryRepository_DoesNotAliasPayload(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	original := &Session{UserID: 1, State: State("x"), Payload: map[string]string{"k": "v"}}
	require.NoError(t, repo.Set(ctx, original))
	original.Payload["k"] = "mutated"

	got, err := repo.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "v", got.Payload["k"])

	// Mutating the returned copy must not leak back either.
	got.Payload["k"] = "mutated again"
	again, err := repo.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "v", again.Payload["k"])
}
