package requests

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Ilyushechek/secretar/internal/events"
	"github.com/Ilyushechek/secretar/internal/model"
	"github.com/Ilyushechek/secretar/internal/storage"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) GetUser(ctx context.Context, telegramID int64) (*model.User, error) {
	args := m.Called(ctx, telegramID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *mockStore) ProvidersFromHistory(ctx context.Context, clientID int64) ([]storage.HistoryProvider, error) {
	args := m.Called(ctx, clientID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]storage.HistoryProvider), args.Error(1)
}

func (m *mockStore) CreateRepeatRequest(ctx context.Context, clientID, providerID int64, message string) (int64, error) {
	args := m.Called(ctx, clientID, providerID, message)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockStore) GetRepeatRequest(ctx context.Context, id int64) (*model.RepeatRequest, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.RepeatRequest), args.Error(1)
}

func (m *mockStore) PendingRequestsForProvider(ctx context.Context, providerID int64) ([]model.RepeatRequest, error) {
	args := m.Called(ctx, providerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.RepeatRequest), args.Error(1)
}

func (m *mockStore) AcceptRepeatRequest(ctx context.Context, requestID, providerID int64) error {
	return m.Called(ctx, requestID, providerID).Error(0)
}

func (m *mockStore) RejectRepeatRequest(ctx context.Context, requestID, providerID int64) error {
	return m.Called(ctx, requestID, providerID).Error(0)
}

type mockQueue struct {
	mock.Mock
}

func (m *mockQueue) Enqueue(ctx context.Context, userID int64, role model.Role, text string) error {
	return m.Called(ctx, userID, role, text).Error(0)
}

type mockBus struct {
	mock.Mock
}

func (m *mockBus) Publish(event events.Event) {
	m.Called(event)
}

func newService(store *mockStore, queue *mockQueue, bus *mockBus) *Service {
	logger := zerolog.New(io.Discard)
	return NewService(store, queue, bus, &logger)
}

func TestService_Create(t *testing.T) {
	ctx := context.Background()
	client := &model.User{TelegramID: 10, PublicCode: "111222", FirstName: "Анна", LastName: "Иванова"}

	t.Run("QueuesProviderNotification", func(t *testing.T) {
		store := new(mockStore)
		queue := new(mockQueue)
		svc := newService(store, queue, new(mockBus))
		store.On("GetUser", ctx, int64(10)).Return(client, nil).Once()
		store.On("CreateRepeatRequest", ctx, int64(10), int64(20), "Хочу на стрижку в пятницу").
			Return(int64(7), nil).Once()
		queue.On("Enqueue", ctx, int64(20), model.RoleProvider,
			"📥 Новый запрос на повторную запись от Анна Иванова (ID: 111222):\n\nХочу на стрижку в пятницу").
			Return(nil).Once()

		id, err := svc.Create(ctx, 10, 20, "Хочу на стрижку в пятницу")
		require.NoError(t, err)
		assert.Equal(t, int64(7), id)
		store.AssertExpectations(t)
		queue.AssertExpectations(t)
	})

	t.Run("QueueFailureStillFiles", func(t *testing.T) {
		store := new(mockStore)
		queue := new(mockQueue)
		svc := newService(store, queue, new(mockBus))
		store.On("GetUser", ctx, int64(10)).Return(client, nil).Once()
		store.On("CreateRepeatRequest", ctx, int64(10), int64(20), "привет").Return(int64(8), nil).Once()
		queue.On("Enqueue", ctx, int64(20), model.RoleProvider, mock.Anything).
			Return(errors.New("queue down")).Once()

		id, err := svc.Create(ctx, 10, 20, "привет")
		require.NoError(t, err)
		assert.Equal(t, int64(8), id)
	})

	t.Run("InsertFailureQueuesNothing", func(t *testing.T) {
		store := new(mockStore)
		queue := new(mockQueue)
		svc := newService(store, queue, new(mockBus))
		store.On("GetUser", ctx, int64(10)).Return(client, nil).Once()
		store.On("CreateRepeatRequest", ctx, int64(10), int64(20), "привет").
			Return(int64(0), errors.New("insert failed")).Once()

		_, err := svc.Create(ctx, 10, 20, "привет")
		assert.Error(t, err)
		queue.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestService_Accept(t *testing.T) {
	ctx := context.Background()
	provider := &model.User{TelegramID: 20, PublicCode: "333444", FirstName: "Олег", LastName: "Петров"}
	req := &model.RepeatRequest{ID: 5, ClientID: 10, ProviderID: 20, Status: model.RequestAccepted}

	t.Run("NotifiesClientAndPublishes", func(t *testing.T) {
		store := new(mockStore)
		queue := new(mockQueue)
		bus := new(mockBus)
		svc := newService(store, queue, bus)
		store.On("AcceptRepeatRequest", ctx, int64(5), int64(20)).Return(nil).Once()
		store.On("GetRepeatRequest", ctx, int64(5)).Return(req, nil).Once()
		store.On("GetUser", ctx, int64(20)).Return(provider, nil).Once()
		queue.On("Enqueue", ctx, int64(10), model.RoleClient,
			"✅ Мастер Олег Петров принял ваш запрос на повторную запись!").Return(nil).Once()
		bus.On("Publish", mock.MatchedBy(func(e events.Event) bool {
			return e.Type == events.RequestAccepted && e.ActorID == 20 && e.SubjectID == 5
		})).Once()

		got, err := svc.Accept(ctx, 5, 20)
		require.NoError(t, err)
		assert.Equal(t, req, got)
		queue.AssertExpectations(t)
		bus.AssertExpectations(t)
	})

	t.Run("StaleLeavesEverythingQuiet", func(t *testing.T) {
		store := new(mockStore)
		queue := new(mockQueue)
		bus := new(mockBus)
		svc := newService(store, queue, bus)
		store.On("AcceptRepeatRequest", ctx, int64(5), int64(20)).Return(storage.ErrStaleRequest).Once()

		_, err := svc.Accept(ctx, 5, 20)
		assert.ErrorIs(t, err, storage.ErrStaleRequest)
		queue.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		bus.AssertNotCalled(t, "Publish", mock.Anything)
	})

	t.Run("ProviderProfileMissingStillNotifies", func(t *testing.T) {
		store := new(mockStore)
		queue := new(mockQueue)
		bus := new(mockBus)
		svc := newService(store, queue, bus)
		store.On("AcceptRepeatRequest", ctx, int64(5), int64(20)).Return(nil).Once()
		store.On("GetRepeatRequest", ctx, int64(5)).Return(req, nil).Once()
		store.On("GetUser", ctx, int64(20)).Return(nil, storage.ErrUserNotFound).Once()
		queue.On("Enqueue", ctx, int64(10), model.RoleClient,
			"✅ Мастер принял ваш запрос на повторную запись!").Return(nil).Once()
		bus.On("Publish", mock.Anything).Once()

		_, err := svc.Accept(ctx, 5, 20)
		require.NoError(t, err)
		queue.AssertExpectations(t)
	})
}

func TestService_Reject(t *testing.T) {
	ctx := context.Background()
	provider := &model.User{TelegramID: 20, FirstName: "Олег", LastName: "Петров"}
	req := &model.RepeatRequest{ID: 5, ClientID: 10, ProviderID: 20, Status: model.RequestRejected}

	t.Run("NotifiesClientWithoutEvent", func(t *testing.T) {
		store := new(mockStore)
		queue := new(mockQueue)
		bus := new(mockBus)
		svc := newService(store, queue, bus)
		store.On("RejectRepeatRequest", ctx, int64(5), int64(20)).Return(nil).Once()
		store.On("GetRepeatRequest", ctx, int64(5)).Return(req, nil).Once()
		store.On("GetUser", ctx, int64(20)).Return(provider, nil).Once()
		queue.On("Enqueue", ctx, int64(10), model.RoleClient,
			"❌ Мастер Олег Петров отклонил ваш запрос на повторную запись.").Return(nil).Once()

		got, err := svc.Reject(ctx, 5, 20)
		require.NoError(t, err)
		assert.Equal(t, req, got)
		bus.AssertNotCalled(t, "Publish", mock.Anything)
	})

	t.Run("StalePassesThrough", func(t *testing.T) {
		store := new(mockStore)
		svc := newService(store, new(mockQueue), new(mockBus))
		store.On("RejectRepeatRequest", ctx, int64(5), int64(20)).Return(storage.ErrStaleRequest).Once()

		_, err := svc.Reject(ctx, 5, 20)
		assert.ErrorIs(t, err, storage.ErrStaleRequest)
	})
}

func TestService_History(t *testing.T) {
	ctx := context.Background()
	store := new(mockStore)
	svc := newService(store, new(mockQueue), new(mockBus))
	list := []storage.HistoryProvider{
		{User: model.User{TelegramID: 20, FirstName: "Олег"}, Records: 3},
		{User: model.User{TelegramID: 30, FirstName: "Ирина"}, Records: 1},
	}
	store.On("ProvidersFromHistory", ctx, int64(10)).Return(list, nil).Once()

	got, err := svc.History(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, list, got)
}
