package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/Ilyushechek/secretar/internal/booking"
	"github.com/Ilyushechek/secretar/internal/chat"
	"github.com/Ilyushechek/secretar/internal/metrics"
	"github.com/Ilyushechek/secretar/internal/model"
	"github.com/Ilyushechek/secretar/internal/notify"
	"github.com/Ilyushechek/secretar/internal/requests"
	"github.com/Ilyushechek/secretar/internal/reviews"
	"github.com/Ilyushechek/secretar/internal/roles"
	"github.com/Ilyushechek/secretar/internal/session"
	"github.com/Ilyushechek/secretar/internal/storage"
)

type telegramClient interface {
	Send(tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	SelfUser() tgbotapi.User
}

type realTelegramClient struct {
	api *tgbotapi.BotAPI
}

func (c *realTelegramClient) Send(msg tgbotapi.Chattable) (tgbotapi.Message, error) {
	return c.api.Send(msg)
}

func (c *realTelegramClient) Request(msg tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return c.api.Request(msg)
}

func (c *realTelegramClient) GetUpdatesChan(cfg tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return c.api.GetUpdatesChan(cfg)
}

func (c *realTelegramClient) SelfUser() tgbotapi.User {
	return c.api.Self
}

// ErrRecipientUnreachable reports that Telegram refused delivery because the
// recipient blocked the bot. Flows that depend on the other party being
// reachable branch on it.
var ErrRecipientUnreachable = errors.New("recipient blocked the bot")

// Telegram allows ~30 messages per second bot-wide; staying under that with
// headroom for retries.
const (
	sendRatePerSecond = 20
	sendBurst         = 30
)

const copyGenericError = "Произошла ошибка. Попробуйте снова."

// Deps bundles the services the dispatcher routes updates to.
type Deps struct {
	Store    *storage.DB
	Sessions *session.Store
	Queue    *notify.Queue
	Chats    *chat.Service
	Bookings *booking.Workflow
	Requests *requests.Service
	Reviews  *reviews.Service
	Roles    *roles.Resolver
}

// Bot is a thin Telegram front over the session, chat and booking services.
type Bot struct {
	tg       telegramClient
	store    *storage.DB
	sessions *session.Store
	queue    *notify.Queue
	chats    *chat.Service
	bookings *booking.Workflow
	requests *requests.Service
	reviews  *reviews.Service
	roles    *roles.Resolver
	limiter  *rate.Limiter
	logger   *zerolog.Logger
}

func New(token string, deps Deps, logger *zerolog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return newBot(&realTelegramClient{api: api}, deps, logger)
}

// NewWithTelegramClient allows injecting a mocked Telegram client for tests.
func NewWithTelegramClient(tg telegramClient, deps Deps, logger *zerolog.Logger) (*Bot, error) {
	return newBot(tg, deps, logger)
}

func newBot(tg telegramClient, deps Deps, logger *zerolog.Logger) (*Bot, error) {
	if tg == nil {
		return nil, fmt.Errorf("telegram client is nil")
	}
	return &Bot{
		tg:       tg,
		store:    deps.Store,
		sessions: deps.Sessions,
		queue:    deps.Queue,
		chats:    deps.Chats,
		bookings: deps.Bookings,
		requests: deps.Requests,
		reviews:  deps.Reviews,
		roles:    deps.Roles,
		limiter:  rate.NewLimiter(rate.Limit(sendRatePerSecond), sendBurst),
		logger:   logger,
	}, nil
}

// Start begins polling updates and dispatches them until ctx is done.
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.tg.GetUpdatesChan(u)
	b.logger.Info().Str("username", b.tg.SelfUser().UserName).Msg("bot authorized")

	for {
		select {
		case <-ctx.Done():
			return
		case update := <-updates:
			requestID := uuid.New().String()
			l := b.logger.With().Str("request_id", requestID).Logger()
			updateCtx := l.WithContext(ctx)
			b.handleUpdate(updateCtx, &update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update *tgbotapi.Update) {
	l := zerolog.Ctx(ctx)
	if update.CallbackQuery != nil {
		metrics.IncUpdate("callback")
		l.Debug().
			Int64("user_id", update.CallbackQuery.From.ID).
			Str("data", update.CallbackQuery.Data).
			Msg("Handling callback query")
		b.handleCallback(ctx, update.CallbackQuery)
		return
	}
	if update.Message != nil {
		metrics.IncUpdate("message")
		l.Debug().
			Int64("user_id", update.Message.From.ID).
			Str("text", update.Message.Text).
			Msg("Handling message")
		b.handleMessage(ctx, update.Message)
		return
	}
	metrics.IncUpdate("other")
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg == nil || msg.From == nil {
		return
	}
	userID := msg.From.ID
	chatID := msg.Chat.ID
	text := strings.TrimSpace(msg.Text)

	sess, err := b.sessions.Get(ctx, userID)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Int64("user_id", userID).Msg("session load failed")
		b.reply(ctx, chatID, copyGenericError)
		return
	}

	// Inside an open chat every message belongs to the partner; only the
	// close button escapes.
	if sess.State == stateChatActive {
		if text == btnEndChat {
			b.endChat(ctx, msg, sess)
			return
		}
		b.relayChat(ctx, msg, sess)
		return
	}

	// Commands and menu buttons take priority and interrupt any active flow.
	switch {
	case strings.HasPrefix(text, "/start"):
		b.handleStart(ctx, msg)
		return
	case text == btnMenu:
		b.returnToMenu(ctx, chatID, userID)
		return
	case text == btnRegister:
		b.startRegistration(ctx, msg)
		return
	case strings.HasPrefix(text, btnEnterClient):
		b.enterRole(ctx, msg, model.RoleClient)
		return
	case strings.HasPrefix(text, btnEnterProvider):
		b.enterRole(ctx, msg, model.RoleProvider)
		return
	case text == btnLogout:
		b.logout(ctx, msg)
		return
	case text == btnContactMaster:
		b.startContact(ctx, msg)
		return
	case text == btnRepeatRequest:
		b.startRepeatRequest(ctx, msg)
		return
	case text == btnHistory:
		b.showHistory(ctx, msg)
		return
	case text == btnCalendar:
		b.showCalendar(ctx, msg)
		return
	case text == btnAddRecord:
		b.startBooking(ctx, msg, sess)
		return
	case text == btnCompleteRecord:
		b.startCompletion(ctx, msg)
		return
	case text == btnCancelRecord:
		b.startCancellation(ctx, msg)
		return
	case text == btnStatistics:
		b.askStatsPeriod(ctx, msg)
		return
	case text == btnRequests:
		b.showRequestInbox(ctx, msg)
		return
	}

	if booking.InPipeline(sess.State) {
		b.advanceBooking(ctx, msg, sess, text)
		return
	}

	switch sess.State {
	case stateFirstName:
		b.handleFirstName(ctx, msg, text)
	case stateLastName:
		b.handleLastName(ctx, msg, sess, text)
	case stateProviderCode:
		b.handleProviderCode(ctx, msg, text)
	case stateCompletionPick:
		b.handleCompletionPick(ctx, msg, sess, text)
	case stateCompletionDuration:
		b.handleCompletionDuration(ctx, msg, text)
	case stateCompletionWentWell:
		b.handleCompletionWentWell(ctx, msg, text)
	case stateCompletionNotes:
		b.handleCompletionNotes(ctx, msg, sess, text)
	case stateCancellationPick:
		b.handleCancellationPick(ctx, msg, sess, text)
	case stateRequestProviderPick:
		b.handleRequestProviderPick(ctx, msg, sess, text)
	case stateRequestMessage:
		b.handleRequestMessage(ctx, msg, sess, text)
	case stateRequestInbox:
		b.handleRequestInbox(ctx, msg, sess, text)
	case stateStatsPeriod:
		b.handleStatsPeriod(ctx, msg, text)
	}
	// Idle text outside any flow is dropped.
}

func (b *Bot) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	if cq == nil || cq.Message == nil {
		return
	}
	data := cq.Data
	if data == "ignore" {
		_ = b.answerCallback(cq.ID)
		return
	}

	switch {
	case strings.HasPrefix(data, "accept_chat_"):
		b.acceptChat(ctx, cq)
	case strings.HasPrefix(data, "reject_chat_"):
		b.rejectChat(ctx, cq)
	case strings.HasPrefix(data, "create_record_yes_"):
		b.recordOfferAccepted(ctx, cq)
	case strings.HasPrefix(data, "create_record_no_"):
		b.recordOfferDeclined(ctx, cq)
	case strings.HasPrefix(data, "rate_"):
		b.handleRating(ctx, cq)
	case strings.HasPrefix(data, "hist_page_"):
		b.handleHistoryPage(ctx, cq)
	case strings.HasPrefix(data, "cal_"):
		b.handleCalendarCallback(ctx, cq)
	default:
		_ = b.answerCallback(cq.ID)
	}
}

// send pushes one outgoing message through the shared rate limiter and maps
// a 403 from Telegram onto ErrRecipientUnreachable.
func (b *Bot) send(ctx context.Context, c tgbotapi.Chattable) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return err
	}
	if _, err := b.tg.Send(c); err != nil {
		var tgErr *tgbotapi.Error
		if errors.As(err, &tgErr) && tgErr.Code == 403 {
			metrics.IncSend("unreachable")
			return ErrRecipientUnreachable
		}
		metrics.IncSend("error")
		return err
	}
	metrics.IncSend("ok")
	return nil
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	if err := b.send(ctx, tgbotapi.NewMessage(chatID, text)); err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Int64("chat_id", chatID).Msg("reply failed")
	}
}

func (b *Bot) replyWithKeyboard(ctx context.Context, chatID int64, text string, kb interface{}) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = kb
	if err := b.send(ctx, msg); err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Int64("chat_id", chatID).Msg("reply failed")
	}
}

func (b *Bot) editText(ctx context.Context, chatID int64, messageID int, text string) {
	if err := b.send(ctx, tgbotapi.NewEditMessageText(chatID, messageID, text)); err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Int64("chat_id", chatID).Msg("edit failed")
	}
}

func (b *Bot) answerCallback(id string) error {
	_, err := b.tg.Request(tgbotapi.NewCallback(id, ""))
	return err
}

func (b *Bot) alertCallback(id, text string) {
	if _, err := b.tg.Request(tgbotapi.NewCallbackWithAlert(id, text)); err != nil {
		b.logger.Debug().Err(err).Msg("callback alert failed")
	}
}

// resetToRole clears the session and re-anchors it at the role menu. Clear
// first: Set merges payload, and leftovers like a prefilled client id must
// not leak into the next flow.
func (b *Bot) resetToRole(ctx context.Context, userID int64, role model.Role) {
	if err := b.sessions.Clear(ctx, userID); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Int64("user_id", userID).Msg("session clear failed")
	}
	if err := b.sessions.Set(ctx, userID, session.StateIdle, map[string]string{session.KeyRole: string(role)}); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Int64("user_id", userID).Msg("session set failed")
	}
}

func (b *Bot) roleMenu(role model.Role) tgbotapi.ReplyKeyboardMarkup {
	if role == model.RoleProvider {
		return providerMenu
	}
	return clientMenu
}

func roleMenuNotice(role model.Role) string {
	if role == model.RoleProvider {
		return "Вы в меню мастера."
	}
	return "Вы в меню клиента."
}

// returnToMenu handles the universal «В меню» button: back to the role menu
// when the role is known, otherwise to role selection.
func (b *Bot) returnToMenu(ctx context.Context, chatID, userID int64) {
	role, ok, err := b.roles.Resolve(ctx, userID)
	if err != nil {
		b.reply(ctx, chatID, copyGenericError)
		return
	}
	if !ok {
		if err := b.sessions.Clear(ctx, userID); err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Int64("user_id", userID).Msg("session clear failed")
		}
		exists, err := b.store.UserExists(ctx, userID)
		if err != nil {
			b.reply(ctx, chatID, copyGenericError)
			return
		}
		if !exists {
			b.replyWithKeyboard(ctx, chatID, "Вы в главном меню.", mainMenuUnregistered)
			return
		}
		b.sendMainMenu(ctx, chatID, userID, "Выберите роль для входа:")
		return
	}
	b.resetToRole(ctx, userID, role)
	b.replyWithKeyboard(ctx, chatID, roleMenuNotice(role), b.roleMenu(role))
}

// sendMainMenu shows the role selection keyboard with unread counts.
func (b *Bot) sendMainMenu(ctx context.Context, chatID, userID int64, text string) {
	client, provider, err := b.queue.UnreadCounts(ctx, userID)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Int64("user_id", userID).Msg("unread counts failed")
		client, provider = 0, 0
	}
	b.replyWithKeyboard(ctx, chatID, text, mainMenuRegistered(client, provider))
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

func splitIDs(s string) []int64 {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// parsePickerIndex maps a 1-based human answer onto a slice index.
func parsePickerIndex(text string, n int) (int, bool) {
	idx, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil || idx < 1 || idx > n {
		return 0, false
	}
	return idx - 1, true
}
