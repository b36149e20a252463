package session

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) Get(ctx context.Context, userID int64) (*Session, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Session), args.Error(1)
}

func (m *mockRepo) Set(ctx context.Context, s *Session) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

func (m *mockRepo) Clear(ctx context.Context, userID int64) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func TestFailoverRepository(t *testing.T) {
	primary := new(mockRepo)
	fallback := new(mockRepo)
	logger := zerolog.New(io.Discard)
	repo := NewFailoverRepository(primary, fallback, &logger)
	ctx := context.Background()

	t.Run("PrimarySuccess", func(t *testing.T) {
		sess := &Session{UserID: 1}
		primary.On("Get", ctx, int64(1)).Return(sess, nil).Once()

		got, err := repo.Get(ctx, 1)
		assert.NoError(t, err)
		assert.Equal(t, sess, got)
		primary.AssertExpectations(t)
	})

	t.Run("PrimaryFailFallbackSuccess", func(t *testing.T) {
		sess := &Session{UserID: 2}
		primary.On("Get", ctx, int64(2)).Return(nil, errors.New("fail")).Once()
		fallback.On("Get", ctx, int64(2)).Return(sess, nil).Once()

		got, err := repo.Get(ctx, 2)
		assert.NoError(t, err)
		assert.Equal(t, sess, got)
		assert.True(t, repo.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("WhileDownWritesGoToFallback", func(t *testing.T) {
		repo.isDown.Store(true)
		repo.lastCheck = time.Now()

		sess := &Session{UserID: 2, State: State("chat_active")}
		fallback.On("Set", ctx, sess).Return(nil).Once()

		assert.NoError(t, repo.Set(ctx, sess))
		fallback.AssertExpectations(t)
	})

	t.Run("RecoveryAttempt", func(t *testing.T) {
		repo.isDown.Store(true)
		repo.lastCheck = time.Now().Add(-2 * time.Minute)

		sess := &Session{UserID: 3}
		primary.On("Get", ctx, int64(3)).Return(sess, nil).Once()

		got, err := repo.Get(ctx, 3)
		assert.NoError(t, err)
		assert.Equal(t, sess, got)
		assert.False(t, repo.isDown.Load())
		primary.AssertExpectations(t)
	})
}
