// Package booking implements the record creation pipeline: a strictly
// ordered sequence of input steps that ends in a committed service record.
// Each step validates its own input and re-prompts on failure without
// touching earlier answers; the counterpart step is skipped when a client id
// was prefilled by a closed chat or an accepted repeat request.
package booking

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Ilyushechek/secretar/internal/events"
	"github.com/Ilyushechek/secretar/internal/model"
	"github.com/Ilyushechek/secretar/internal/notify"
	"github.com/Ilyushechek/secretar/internal/session"
	"github.com/Ilyushechek/secretar/internal/storage"
)

// Session states the workflow parks the user in, one per collecting step.
const (
	StateClientCode  = session.State("record_client_code")
	StateServiceName = session.State("record_service_name")
	StateCost        = session.State("record_cost")
	StateAddress     = session.State("record_address")
	StateDate        = session.State("record_date")
	StateTime        = session.State("record_time")
	StateComments    = session.State("record_comments")
)

// Payload keys for the collected step values.
const (
	KeyServiceName = "service_name"
	KeyCost        = "cost"
	KeyAddress     = "address"
	KeyDate        = "date"
	KeyTime        = "time"
)

// ValidationError rejects one step's input. Prompt is sent back verbatim and
// the step repeats; everything collected so far stays in the session.
type ValidationError struct {
	Prompt string
}

func (e *ValidationError) Error() string {
	return "booking: " + e.Prompt
}

// IsValidation reports whether err is a step input rejection.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

type store interface {
	GetUser(ctx context.Context, telegramID int64) (*model.User, error)
	GetUserByCode(ctx context.Context, code string) (*model.User, error)
	GetActiveChatFor(ctx context.Context, userID int64, role model.Role) (*model.Chat, error)
	CreateRecord(ctx context.Context, rec *model.ServiceRecord) (int64, error)
	GetRecord(ctx context.Context, id int64) (*model.ServiceRecord, error)
	RecordsOnDate(ctx context.Context, providerID int64, date string) ([]model.ServiceRecord, error)
	ActiveRecordsForProvider(ctx context.Context, providerID int64) ([]model.ServiceRecord, error)
	CompleteRecord(ctx context.Context, recordID, providerID int64, durationMinutes int, wentWell bool, notes string) error
	CancelRecord(ctx context.Context, recordID, providerID int64) error
}

type queue interface {
	Enqueue(ctx context.Context, userID int64, role model.Role, text string) error
}

type eventPublisher interface {
	Publish(event events.Event)
}

// Workflow validates step inputs and commits finished drafts.
type Workflow struct {
	store  store
	queue  queue
	bus    eventPublisher
	logger *zerolog.Logger
}

func NewWorkflow(store store, queue queue, bus eventPublisher, logger *zerolog.Logger) *Workflow {
	return &Workflow{store: store, queue: queue, bus: bus, logger: logger}
}

// Result is one transition's outcome: the state to park the session in, the
// payload values to merge, and the reply for the acting provider. Record is
// set only by the final step.
type Result struct {
	Next   session.State
	Patch  map[string]string
	Reply  string
	Record *model.ServiceRecord
}

// Start enters the pipeline. The counterpart step is skipped when the
// session already carries a client id (chat close offer, accepted repeat
// request) or when the provider still has an active chat to take it from.
func (w *Workflow) Start(ctx context.Context, providerID int64, sess *session.Session) (*Result, error) {
	if _, ok := sess.Int64(session.KeyClientID); ok {
		return &Result{Next: StateServiceName, Reply: "Введите название услуги:"}, nil
	}

	c, err := w.store.GetActiveChatFor(ctx, providerID, model.RoleProvider)
	if err == nil && c.Status == model.ChatActive {
		return &Result{
			Next:  StateServiceName,
			Patch: map[string]string{session.KeyClientID: strconv.FormatInt(c.ClientID, 10)},
			Reply: "Введите название услуги:",
		}, nil
	}
	if err != nil && !errors.Is(err, storage.ErrChatNotFound) {
		return nil, err
	}

	return &Result{Next: StateClientCode, Reply: "Введите 6-значный ID клиента:"}, nil
}

// Advance feeds one text input to the step the session is parked in. A
// *ValidationError re-prompts the same step with everything kept; any other
// error leaves the session untouched for a retry.
func (w *Workflow) Advance(ctx context.Context, providerID int64, sess *session.Session, input string) (*Result, error) {
	switch sess.State {
	case StateClientCode:
		client, err := w.ResolveClient(ctx, input)
		if err != nil {
			return nil, err
		}
		return &Result{
			Next:  StateServiceName,
			Patch: map[string]string{session.KeyClientID: strconv.FormatInt(client.TelegramID, 10)},
			Reply: "Введите название услуги:",
		}, nil

	case StateServiceName:
		return &Result{
			Next:  StateCost,
			Patch: map[string]string{KeyServiceName: input},
			Reply: "Введите стоимость услуги (в рублях):",
		}, nil

	case StateCost:
		cost, err := w.ParseCost(input)
		if err != nil {
			return nil, err
		}
		return &Result{
			Next:  StateAddress,
			Patch: map[string]string{KeyCost: strconv.FormatInt(cost, 10)},
			Reply: "Введите адрес проведения услуги:",
		}, nil

	case StateAddress:
		return &Result{
			Next:  StateDate,
			Patch: map[string]string{KeyAddress: input},
			Reply: "Введите дату (например, 15.12.2025):",
		}, nil

	case StateDate:
		date, err := w.ParseDate(input)
		if err != nil {
			return nil, err
		}
		reply, err := w.DateContext(ctx, providerID, date)
		if err != nil {
			return nil, err
		}
		return &Result{
			Next:  StateTime,
			Patch: map[string]string{KeyDate: date},
			Reply: reply,
		}, nil

	case StateTime:
		t, err := w.ParseTime(input)
		if err != nil {
			return nil, err
		}
		return &Result{
			Next:  StateComments,
			Patch: map[string]string{KeyTime: t},
			Reply: "Введите комментарии (или '-' если нет):",
		}, nil

	case StateComments:
		return w.commitStep(ctx, providerID, sess, input)
	}
	return nil, fmt.Errorf("booking: no step for state %q", sess.State)
}

func (w *Workflow) commitStep(ctx context.Context, providerID int64, sess *session.Session, input string) (*Result, error) {
	clientID, ok := sess.Int64(session.KeyClientID)
	if !ok {
		return nil, fmt.Errorf("booking: session lost the client id")
	}
	cost, err := w.ParseCost(sess.Value(KeyCost))
	if err != nil {
		return nil, fmt.Errorf("booking: session lost the cost: %w", err)
	}

	rec, err := w.Commit(ctx, Draft{
		ProviderID:  providerID,
		ClientID:    clientID,
		ServiceName: sess.Value(KeyServiceName),
		Cost:        cost,
		Address:     sess.Value(KeyAddress),
		Date:        sess.Value(KeyDate),
		Time:        sess.Value(KeyTime),
		Comments:    w.NormalizeComments(input),
	})
	if err != nil {
		return nil, err
	}

	reply := "✅ Запись сохранена. Клиент получит уведомление при входе как клиент."
	if clientID == providerID {
		reply = "✅ Запись сохранена."
	}
	return &Result{Next: session.StateIdle, Reply: reply, Record: rec}, nil
}

// InPipeline reports whether the state belongs to this workflow, so the
// dispatcher can route text and the global cancel to it.
func InPipeline(state session.State) bool {
	switch state {
	case StateClientCode, StateServiceName, StateCost, StateAddress, StateDate, StateTime, StateComments:
		return true
	}
	return false
}

// ResolveClient checks the 6-digit code and looks the client up. Both a bad
// format and an unknown code re-prompt the same step.
func (w *Workflow) ResolveClient(ctx context.Context, rawCode string) (*model.User, error) {
	code := strings.TrimSpace(rawCode)
	if len(code) != 6 || !allDigits(code) {
		return nil, &ValidationError{Prompt: "Неверный формат ID. Введите 6 цифр:"}
	}
	client, err := w.store.GetUserByCode(ctx, code)
	if errors.Is(err, storage.ErrUserNotFound) {
		return nil, &ValidationError{Prompt: "Клиент с таким ID не найден. Попробуйте снова:"}
	}
	if err != nil {
		return nil, err
	}
	return client, nil
}

// ParseCost accepts a bare number of rubles.
func (w *Workflow) ParseCost(raw string) (int64, error) {
	text := strings.TrimSpace(raw)
	if text == "" || !allDigits(text) {
		return 0, &ValidationError{Prompt: "Введите число (без букв и символов):"}
	}
	var cost int64
	for _, r := range text {
		cost = cost*10 + int64(r-'0')
	}
	return cost, nil
}

// ParseDate accepts ДД.ММ.ГГГГ or ГГГГ-ММ-ДД and returns the canonical
// storage form (2006-01-02).
func (w *Workflow) ParseDate(raw string) (string, error) {
	text := strings.TrimSpace(raw)
	for _, layout := range []string{"02.01.2006", "2006-01-02"} {
		if d, err := time.Parse(layout, text); err == nil {
			return d.Format("2006-01-02"), nil
		}
	}
	return "", &ValidationError{Prompt: "Неверный формат даты. Используйте ДД.ММ.ГГГГ или ГГГГ-ММ-ДД:"}
}

// ParseTime accepts ЧЧ:ММ and returns it normalized.
func (w *Workflow) ParseTime(raw string) (string, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(raw))
	if err != nil {
		return "", &ValidationError{Prompt: "Неверный формат времени. Используйте ЧЧ:ММ:"}
	}
	return t.Format("15:04"), nil
}

// NormalizeComments maps the skip marker to the stored no-comments text.
func (w *Workflow) NormalizeComments(raw string) string {
	if strings.TrimSpace(raw) == "-" {
		return "Комментариев нет"
	}
	return raw
}

// DateContext builds the message shown after a date parses: the provider's
// existing records on that date as read-only context, then the time prompt.
// The listing is advisory; nothing blocks booking the same slot twice.
func (w *Workflow) DateContext(ctx context.Context, providerID int64, date string) (string, error) {
	records, err := w.store.RecordsOnDate(ctx, providerID, date)
	if err != nil {
		return "", fmt.Errorf("records on date: %w", err)
	}
	if len(records) == 0 {
		return "На эту дату нет записей.\nВведите время (например, 14:30):", nil
	}
	var b strings.Builder
	b.WriteString("На эту дату уже есть записи:\n")
	for _, r := range records {
		fmt.Fprintf(&b, "• %s — %s\n", r.Time, r.ServiceName)
	}
	b.WriteString("\nВведите время (например, 14:30):")
	return b.String(), nil
}

// Draft carries one run's collected answers, ready to commit.
type Draft struct {
	ProviderID  int64
	ClientID    int64
	ServiceName string
	Cost        int64
	Address     string
	Date        string // 2006-01-02
	Time        string // 15:04
	Comments    string
}

// Commit persists the record and informs both parties through the
// notification queue. The counterpart may be offline, so commit never sends
// over the transport directly; the text reaches them on their next role
// entry. Queue trouble after the insert is logged, not returned: the record
// exists and the actor still gets their confirmation.
func (w *Workflow) Commit(ctx context.Context, d Draft) (*model.ServiceRecord, error) {
	client, err := w.store.GetUser(ctx, d.ClientID)
	if err != nil {
		return nil, fmt.Errorf("load client: %w", err)
	}

	rec := &model.ServiceRecord{
		ProviderID:  d.ProviderID,
		ClientID:    d.ClientID,
		ServiceName: d.ServiceName,
		Cost:        d.Cost,
		Address:     d.Address,
		Date:        d.Date,
		Time:        d.Time,
		Comments:    d.Comments,
		Status:      model.RecordActive,
	}
	id, err := w.store.CreateRecord(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("create record: %w", err)
	}
	rec.ID = id

	text := notify.Truncate(recordText(rec, client))
	if err := w.queue.Enqueue(ctx, d.ProviderID, model.RoleProvider, text); err != nil {
		w.logger.Error().Err(err).Int64("record_id", id).Msg("enqueue provider notification")
	}
	if d.ClientID != d.ProviderID {
		if err := w.queue.Enqueue(ctx, d.ClientID, model.RoleClient, text); err != nil {
			w.logger.Error().Err(err).Int64("record_id", id).Msg("enqueue client notification")
		}
	}

	w.bus.Publish(events.Event{Type: events.BookingCreated, ActorID: d.ProviderID, SubjectID: id})
	w.logger.Info().Int64("record_id", id).Int64("provider_id", d.ProviderID).Msg("record created")
	return rec, nil
}

func recordText(rec *model.ServiceRecord, client *model.User) string {
	name := strings.TrimSpace(client.FirstName + " " + client.LastName)
	if name == "" {
		name = "Клиент"
	}
	return fmt.Sprintf(
		"📄 <b>Новая запись на услугу</b>\n\n"+
			"🔹 Услуга: %s\n"+
			"🔹 Стоимость: %d руб.\n"+
			"🔹 Клиент: %s (ID: %s)\n"+
			"🔹 Адрес: %s\n"+
			"🔹 Дата: %s\n"+
			"🔹 Время: %s\n"+
			"🔹 Комментарии: %s",
		rec.ServiceName, rec.Cost, name, client.PublicCode,
		rec.Address, rec.DateLabel(), rec.Time, rec.Comments,
	)
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
