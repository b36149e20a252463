package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ilyushechek/secretar/internal/model"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(":memory:")
	require.NoError(t, err)
	// Keep the single connection alive; every new connection to :memory:
	// would otherwise see an empty database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func mustUser(t *testing.T, db *DB, id int64, first, last string) *model.User {
	t.Helper()
	u, err := db.CreateUser(context.Background(), id, first, last)
	require.NoError(t, err)
	return u
}

func TestCreateUser_AssignsPublicCode(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	u := mustUser(t, db, 100, "Анна", "Иванова")
	assert.Len(t, u.PublicCode, 6)
	assert.Equal(t, "Анна", u.FirstName)

	found, err := db.GetUserByCode(ctx, u.PublicCode)
	require.NoError(t, err)
	assert.Equal(t, int64(100), found.TelegramID)

	other := mustUser(t, db, 200, "Пётр", "Смирнов")
	assert.NotEqual(t, u.PublicCode, other.PublicCode)
}

func TestGetUserByCode_Unknown(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetUserByCode(context.Background(), "999999")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestCreateChat_RejectsSecondOpenChat(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	mustUser(t, db, 1, "Клиент", "")
	mustUser(t, db, 2, "Мастер", "")
	mustUser(t, db, 3, "Мастер", "Второй")

	_, err := db.CreateChat(ctx, 1, 2)
	require.NoError(t, err)

	// Same client, different provider: still blocked while pending.
	_, err = db.CreateChat(ctx, 1, 3)
	assert.ErrorIs(t, err, ErrChatConflict)

	// The provider of the pending chat is blocked too.
	mustUser(t, db, 4, "Клиент", "Второй")
	_, err = db.CreateChat(ctx, 4, 2)
	assert.ErrorIs(t, err, ErrChatConflict)
}

func TestActivateChat_CompareAndVerify(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	mustUser(t, db, 1, "Клиент", "")
	mustUser(t, db, 2, "Мастер", "")

	chatID, err := db.CreateChat(ctx, 1, 2)
	require.NoError(t, err)

	require.NoError(t, db.ActivateChat(ctx, chatID, 2))

	chat, err := db.GetChat(ctx, chatID)
	require.NoError(t, err)
	assert.Equal(t, model.ChatActive, chat.Status)

	// A duplicate accept finds no pending row and must not change anything.
	err = db.ActivateChat(ctx, chatID, 2)
	assert.ErrorIs(t, err, ErrStaleChat)

	// A late reject loses the same way.
	err = db.RejectChat(ctx, chatID, 2)
	assert.ErrorIs(t, err, ErrStaleChat)

	chat, err = db.GetChat(ctx, chatID)
	require.NoError(t, err)
	assert.Equal(t, model.ChatActive, chat.Status)
}

func TestActivateChat_WrongProvider(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	mustUser(t, db, 1, "Клиент", "")
	mustUser(t, db, 2, "Мастер", "")

	chatID, err := db.CreateChat(ctx, 1, 2)
	require.NoError(t, err)

	err = db.ActivateChat(ctx, chatID, 999)
	assert.ErrorIs(t, err, ErrStaleChat)
}

func TestCloseChat_Idempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	mustUser(t, db, 1, "Клиент", "")
	mustUser(t, db, 2, "Мастер", "")

	chatID, err := db.CreateChat(ctx, 1, 2)
	require.NoError(t, err)
	require.NoError(t, db.ActivateChat(ctx, chatID, 2))

	closed, err := db.CloseChat(ctx, chatID)
	require.NoError(t, err)
	assert.True(t, closed)

	closed, err = db.CloseChat(ctx, chatID)
	require.NoError(t, err)
	assert.False(t, closed)

	// A closed chat frees both participants for new pairings.
	_, err = db.GetActiveChatFor(ctx, 1, model.RoleClient)
	assert.ErrorIs(t, err, ErrChatNotFound)
	_, err = db.CreateChat(ctx, 1, 2)
	assert.NoError(t, err)
}

func TestGetActiveChatFor_SeesPendingAndActive(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	mustUser(t, db, 1, "Клиент", "")
	mustUser(t, db, 2, "Мастер", "")

	chatID, err := db.CreateChat(ctx, 1, 2)
	require.NoError(t, err)

	chat, err := db.GetActiveChatFor(ctx, 2, model.RoleProvider)
	require.NoError(t, err)
	assert.Equal(t, chatID, chat.ID)
	assert.Equal(t, model.ChatPending, chat.Status)

	require.NoError(t, db.ActivateChat(ctx, chatID, 2))
	chat, err = db.GetActiveChatFor(ctx, 1, model.RoleClient)
	require.NoError(t, err)
	assert.Equal(t, model.ChatActive, chat.Status)
}

func TestNotifications_FIFOAndDrain(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.CreateNotification(ctx, 7, model.RoleClient, "первое"))
	require.NoError(t, db.CreateNotification(ctx, 7, model.RoleClient, "второе"))
	require.NoError(t, db.CreateNotification(ctx, 7, model.RoleProvider, "для мастера"))

	pending, err := db.PendingNotifications(ctx, 7, model.RoleClient)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "первое", pending[0].Text)
	assert.Equal(t, "второе", pending[1].Text)

	count, err := db.UnreadCount(ctx, 7, model.RoleClient)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.NoError(t, db.MarkNotificationsRead(ctx, 7, model.RoleClient))

	pending, err = db.PendingNotifications(ctx, 7, model.RoleClient)
	require.NoError(t, err)
	assert.Empty(t, pending)

	// The other role's queue is untouched.
	count, err = db.UnreadCount(ctx, 7, model.RoleProvider)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRecordLifecycle(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	mustUser(t, db, 1, "Анна", "Иванова")
	mustUser(t, db, 2, "Пётр", "Смирнов")

	id, err := db.CreateRecord(ctx, &model.ServiceRecord{
		ProviderID:  2,
		ClientID:    1,
		ServiceName: "Стрижка",
		Cost:        1500,
		Address:     "ул. Ленина, 1",
		Date:        "2026-03-07",
		Time:        "14:30",
		Comments:    "Комментариев нет",
	})
	require.NoError(t, err)

	active, err := db.ActiveRecordsForProvider(ctx, 2)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "Анна Иванова", active[0].ClientName)

	require.NoError(t, db.CompleteRecord(ctx, id, 2, 45, true, "всё хорошо"))

	rec, err := db.GetRecord(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.RecordCompleted, rec.Status)
	assert.Equal(t, 45, rec.DurationMinutes)

	// Completed records resist further transitions.
	assert.ErrorIs(t, db.CompleteRecord(ctx, id, 2, 10, false, ""), ErrStaleRecord)
	assert.ErrorIs(t, db.CancelRecord(ctx, id, 2), ErrStaleRecord)
}

func TestCancelRecord_WrongProvider(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	mustUser(t, db, 1, "Анна", "")
	mustUser(t, db, 2, "Пётр", "")

	id, err := db.CreateRecord(ctx, &model.ServiceRecord{
		ProviderID: 2, ClientID: 1, ServiceName: "Маникюр", Cost: 900,
		Address: "а", Date: "2026-03-08", Time: "10:00",
	})
	require.NoError(t, err)

	assert.ErrorIs(t, db.CancelRecord(ctx, id, 999), ErrStaleRecord)
	require.NoError(t, db.CancelRecord(ctx, id, 2))
}

func TestRecordsOnDate_OnlyActive(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	mustUser(t, db, 1, "Анна", "")
	mustUser(t, db, 2, "Пётр", "")

	first, err := db.CreateRecord(ctx, &model.ServiceRecord{
		ProviderID: 2, ClientID: 1, ServiceName: "Стрижка", Cost: 100,
		Address: "а", Date: "2026-03-07", Time: "09:00",
	})
	require.NoError(t, err)
	_, err = db.CreateRecord(ctx, &model.ServiceRecord{
		ProviderID: 2, ClientID: 1, ServiceName: "Укладка", Cost: 100,
		Address: "а", Date: "2026-03-07", Time: "11:00",
	})
	require.NoError(t, err)

	require.NoError(t, db.CancelRecord(ctx, first, 2))

	onDate, err := db.RecordsOnDate(ctx, 2, "2026-03-07")
	require.NoError(t, err)
	require.Len(t, onDate, 1)
	assert.Equal(t, "Укладка", onDate[0].ServiceName)
}

func TestRecordCalendarSlices(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	mustUser(t, db, 1, "Анна", "")
	mustUser(t, db, 2, "Пётр", "")

	for _, d := range []string{"2025-12-31", "2026-01-05", "2026-01-20", "2026-03-07"} {
		_, err := db.CreateRecord(ctx, &model.ServiceRecord{
			ProviderID: 2, ClientID: 1, ServiceName: "Стрижка", Cost: 100,
			Address: "а", Date: d, Time: "10:00",
		})
		require.NoError(t, err)
	}

	years, err := db.RecordYears(ctx, 1, model.RoleClient)
	require.NoError(t, err)
	assert.Equal(t, []int{2025, 2026}, years)

	months, err := db.RecordMonths(ctx, 1, model.RoleClient, 2026)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, months)

	days, err := db.RecordDays(ctx, 1, model.RoleClient, 2026, 1)
	require.NoError(t, err)
	assert.Equal(t, []DayCount{{Day: 5, Records: 1}, {Day: 20, Records: 1}}, days)

	onDay, err := db.RecordsByDay(ctx, 1, model.RoleClient, "2026-01-05")
	require.NoError(t, err)
	assert.Len(t, onDay, 1)
}

func TestProviderStats(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	mustUser(t, db, 1, "Анна", "")
	mustUser(t, db, 2, "Пётр", "")

	done, err := db.CreateRecord(ctx, &model.ServiceRecord{
		ProviderID: 2, ClientID: 1, ServiceName: "Стрижка", Cost: 1500,
		Address: "а", Date: "2026-03-01", Time: "10:00",
	})
	require.NoError(t, err)
	require.NoError(t, db.CompleteRecord(ctx, done, 2, 30, true, ""))

	_, err = db.CreateRecord(ctx, &model.ServiceRecord{
		ProviderID: 2, ClientID: 1, ServiceName: "Укладка", Cost: 700,
		Address: "а", Date: "2026-03-02", Time: "10:00",
	})
	require.NoError(t, err)

	stats, err := db.ProviderStats(ctx, 2, "2026-03-01")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Completed)
	assert.Equal(t, 1, stats.Active)
	assert.Equal(t, 0, stats.Cancelled)
	assert.Equal(t, int64(1500), stats.Income)

	// Records before the period start are excluded.
	stats, err = db.ProviderStats(ctx, 2, "2026-03-02")
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Completed)
}

func TestProvidersFromHistory(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	mustUser(t, db, 1, "Анна", "")
	often := mustUser(t, db, 2, "Пётр", "Смирнов")
	rare := mustUser(t, db, 3, "Ирина", "Кузнецова")

	for i, providerID := range []int64{2, 2, 3} {
		_, err := db.CreateRecord(ctx, &model.ServiceRecord{
			ProviderID: providerID, ClientID: 1, ServiceName: "Стрижка", Cost: 100,
			Address: "а", Date: "2026-03-07", Time: "10:00",
		})
		require.NoError(t, err, i)
	}

	providers, err := db.ProvidersFromHistory(ctx, 1)
	require.NoError(t, err)
	require.Len(t, providers, 2)
	assert.Equal(t, often.TelegramID, providers[0].User.TelegramID)
	assert.Equal(t, 2, providers[0].Records)
	assert.Equal(t, rare.TelegramID, providers[1].User.TelegramID)
}

func TestRepeatRequest_GuardedResolve(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	mustUser(t, db, 1, "Анна", "")
	mustUser(t, db, 2, "Пётр", "")

	id, err := db.CreateRepeatRequest(ctx, 1, 2, "Можно на следующей неделе?")
	require.NoError(t, err)

	pending, err := db.PendingRequestsForProvider(ctx, 2)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, db.AcceptRepeatRequest(ctx, id, 2))

	// Whoever resolves second loses, whichever way they vote.
	assert.ErrorIs(t, db.AcceptRepeatRequest(ctx, id, 2), ErrStaleRequest)
	assert.ErrorIs(t, db.RejectRepeatRequest(ctx, id, 2), ErrStaleRequest)

	req, err := db.GetRepeatRequest(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.RequestAccepted, req.Status)
}

func TestCreateReview_OncePerRecord(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	mustUser(t, db, 1, "Анна", "")
	mustUser(t, db, 2, "Пётр", "")

	id, err := db.CreateRecord(ctx, &model.ServiceRecord{
		ProviderID: 2, ClientID: 1, ServiceName: "Стрижка", Cost: 100,
		Address: "а", Date: "2026-03-07", Time: "10:00",
	})
	require.NoError(t, err)

	require.NoError(t, db.CreateReview(ctx, id, 1, 2, 5))
	assert.ErrorIs(t, db.CreateReview(ctx, id, 1, 2, 4), ErrDuplicateReview)

	summary, err := db.ProviderRating(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 5.0, summary.Average)
	assert.Equal(t, 1, summary.Count)
}
