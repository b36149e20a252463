package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisRepo(t *testing.T) *RedisRepository {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisRepository(client, time.Hour)
}

func TestRedisRepository_RoundTrip(t *testing.T) {
	repo := newRedisRepo(t)
	ctx := context.Background()

	in := &Session{
		UserID: 42,
		State:  State("booking_date"),
		Payload: map[string]string{
			KeyRole:   "provider",
			"cost":    "1500",
			"address": "Ленина, 1",
		},
	}
	require.NoError(t, repo.Set(ctx, in))

	out, err := repo.Get(ctx, 42)
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, in.State, out.State)
	assert.Equal(t, in.Payload, out.Payload)
}

func TestRedisRepository_MissReturnsNil(t *testing.T) {
	repo := newRedisRepo(t)

	out, err := repo.Get(context.Background(), 99)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestRedisRepository_Clear(t *testing.T) {
	repo := newRedisRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, &Session{UserID: 7, State: State("chat_active")}))
	require.NoError(t, repo.Clear(ctx, 7))

	out, err := repo.Get(ctx, 7)
	require.NoError(t, err)
	assert.Nil(t, out)
}
