package reviews

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Ilyushechek/secretar/internal/model"
	"github.com/Ilyushechek/secretar/internal/storage"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) GetRecord(ctx context.Context, id int64) (*model.ServiceRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ServiceRecord), args.Error(1)
}

func (m *mockStore) CreateReview(ctx context.Context, recordID, clientID, providerID int64, rating int) error {
	return m.Called(ctx, recordID, clientID, providerID, rating).Error(0)
}

func (m *mockStore) ProviderRating(ctx context.Context, providerID int64) (*storage.RatingSummary, error) {
	args := m.Called(ctx, providerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storage.RatingSummary), args.Error(1)
}

type mockQueue struct {
	mock.Mock
}

func (m *mockQueue) Enqueue(ctx context.Context, userID int64, role model.Role, text string) error {
	return m.Called(ctx, userID, role, text).Error(0)
}

func newService(store *mockStore, queue *mockQueue) *Service {
	logger := zerolog.New(io.Discard)
	return NewService(store, queue, &logger)
}

func completedRecord() *model.ServiceRecord {
	return &model.ServiceRecord{
		ID:          5,
		ProviderID:  20,
		ClientID:    10,
		ServiceName: "Стрижка",
		Status:      model.RecordCompleted,
	}
}

func TestService_Rate(t *testing.T) {
	ctx := context.Background()

	t.Run("StoresAndNotifiesProvider", func(t *testing.T) {
		store := new(mockStore)
		queue := new(mockQueue)
		svc := newService(store, queue)
		store.On("GetRecord", ctx, int64(5)).Return(completedRecord(), nil).Once()
		store.On("CreateReview", ctx, int64(5), int64(10), int64(20), 4).Return(nil).Once()
		queue.On("Enqueue", ctx, int64(20), model.RoleProvider,
			"⭐ Новый отзыв!\nУслуга: Стрижка\nОценка: ⭐⭐⭐⭐").Return(nil).Once()
		store.On("ProviderRating", ctx, int64(20)).
			Return(&storage.RatingSummary{Average: 4.5, Count: 12}, nil).Once()

		summary, err := svc.Rate(ctx, 5, 10, 4)
		require.NoError(t, err)
		require.NotNil(t, summary)
		assert.InDelta(t, 4.5, summary.Average, 0.001)
		assert.Equal(t, 12, summary.Count)
		store.AssertExpectations(t)
		queue.AssertExpectations(t)
	})

	t.Run("RatingOutOfRange", func(t *testing.T) {
		store := new(mockStore)
		svc := newService(store, new(mockQueue))
		for _, rating := range []int{0, -1, 6, 100} {
			_, err := svc.Rate(ctx, 5, 10, rating)
			assert.ErrorIs(t, err, ErrBadRating, "rating %d", rating)
		}
		store.AssertNotCalled(t, "GetRecord", mock.Anything, mock.Anything)
	})

	t.Run("ForeignRecord", func(t *testing.T) {
		store := new(mockStore)
		svc := newService(store, new(mockQueue))
		store.On("GetRecord", ctx, int64(5)).Return(completedRecord(), nil).Once()

		_, err := svc.Rate(ctx, 5, 99, 4)
		assert.ErrorIs(t, err, ErrNotReviewable)
		store.AssertNotCalled(t, "CreateReview",
			mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("ActiveRecordNotReviewable", func(t *testing.T) {
		store := new(mockStore)
		svc := newService(store, new(mockQueue))
		rec := completedRecord()
		rec.Status = model.RecordActive
		store.On("GetRecord", ctx, int64(5)).Return(rec, nil).Once()

		_, err := svc.Rate(ctx, 5, 10, 4)
		assert.ErrorIs(t, err, ErrNotReviewable)
	})

	t.Run("DuplicatePassesThrough", func(t *testing.T) {
		store := new(mockStore)
		queue := new(mockQueue)
		svc := newService(store, queue)
		store.On("GetRecord", ctx, int64(5)).Return(completedRecord(), nil).Once()
		store.On("CreateReview", ctx, int64(5), int64(10), int64(20), 4).
			Return(storage.ErrDuplicateReview).Once()

		_, err := svc.Rate(ctx, 5, 10, 4)
		assert.ErrorIs(t, err, storage.ErrDuplicateReview)
		queue.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("SummaryFailureStillSucceeds", func(t *testing.T) {
		store := new(mockStore)
		queue := new(mockQueue)
		svc := newService(store, queue)
		store.On("GetRecord", ctx, int64(5)).Return(completedRecord(), nil).Once()
		store.On("CreateReview", ctx, int64(5), int64(10), int64(20), 5).Return(nil).Once()
		queue.On("Enqueue", ctx, int64(20), model.RoleProvider, mock.Anything).Return(nil).Once()
		store.On("ProviderRating", ctx, int64(20)).Return(nil, errors.New("db gone")).Once()

		summary, err := svc.Rate(ctx, 5, 10, 5)
		require.NoError(t, err)
		assert.Nil(t, summary)
	})
}

func TestStars(t *testing.T) {
	assert.Equal(t, "⭐", Stars(1))
	assert.Equal(t, "⭐⭐⭐⭐⭐", Stars(5))
}
