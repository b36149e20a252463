package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/Ilyushechek/secretar/internal/booking"
	"github.com/Ilyushechek/secretar/internal/model"
	"github.com/Ilyushechek/secretar/internal/session"
	"github.com/Ilyushechek/secretar/internal/storage"
)

// startRepeatRequest lets the client message a provider they already
// visited without opening a chat.
func (b *Bot) startRepeatRequest(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID
	provs, err := b.requests.History(ctx, userID)
	if err != nil {
		b.reply(ctx, msg.Chat.ID, copyGenericError)
		return
	}
	if len(provs) == 0 {
		b.replyWithKeyboard(ctx, msg.Chat.ID, "У вас нет истории записей к мастерам. Сначала запишитесь на услугу.", clientMenu)
		return
	}

	var sb strings.Builder
	sb.WriteString("📋 Выберите мастера из истории:\n\n")
	ids := make([]int64, len(provs))
	for i, p := range provs {
		ids[i] = p.User.TelegramID
		fmt.Fprintf(&sb, "%d. %s (ID: %s)\n   Записей: %d\n\n", i+1, p.User.FullName(), p.User.PublicCode, p.Records)
	}
	sb.WriteString("Введите номер мастера для отправки запроса:")

	patch := map[string]string{
		payloadProviderIDs: joinIDs(ids),
		session.KeyRole:    string(model.RoleClient),
	}
	if err := b.sessions.Set(ctx, userID, stateRequestProviderPick, patch); err != nil {
		b.reply(ctx, msg.Chat.ID, copyGenericError)
		return
	}
	b.replyWithKeyboard(ctx, msg.Chat.ID, sb.String(), cancelMenu)
}

func (b *Bot) handleRequestProviderPick(ctx context.Context, msg *tgbotapi.Message, sess *session.Session, text string) {
	ids := splitIDs(sess.Value(payloadProviderIDs))
	idx, ok := parsePickerIndex(text, len(ids))
	if !ok {
		b.replyWithKeyboard(ctx, msg.Chat.ID, fmt.Sprintf("Неверный номер. Введите число от 1 до %d:", len(ids)), cancelMenu)
		return
	}

	provider, err := b.store.GetUser(ctx, ids[idx])
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Int64("user_id", ids[idx]).Msg("provider lookup failed")
		b.reply(ctx, msg.Chat.ID, copyGenericError)
		return
	}

	patch := map[string]string{
		payloadTargetProvider: strconv.FormatInt(provider.TelegramID, 10),
		payloadTargetName:     provider.FullName(),
	}
	if err := b.sessions.Set(ctx, msg.From.ID, stateRequestMessage, patch); err != nil {
		b.reply(ctx, msg.Chat.ID, copyGenericError)
		return
	}
	b.replyWithKeyboard(ctx, msg.Chat.ID,
		fmt.Sprintf("Вы выбрали мастера: %s (ID: %s)\n\nНапишите сообщение мастеру (например, предложите дату и время):",
			provider.FullName(), provider.PublicCode),
		cancelMenu)
}

func (b *Bot) handleRequestMessage(ctx context.Context, msg *tgbotapi.Message, sess *session.Session, text string) {
	userID := msg.From.ID
	providerID, ok := sess.Int64(payloadTargetProvider)
	if !ok || text == "" {
		b.reply(ctx, msg.Chat.ID, "Ошибка сессии.")
		b.returnToMenu(ctx, msg.Chat.ID, userID)
		return
	}

	if _, err := b.requests.Create(ctx, userID, providerID, text); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Int64("provider_id", providerID).Msg("repeat request create failed")
		b.reply(ctx, msg.Chat.ID, copyGenericError)
		return
	}

	b.resetToRole(ctx, userID, model.RoleClient)
	b.replyWithKeyboard(ctx, msg.Chat.ID,
		fmt.Sprintf("✅ Запрос отправлен мастеру %s!\nВы получите уведомление, когда мастер ответит.", sess.Value(payloadTargetName)),
		clientMenu)
}

// showRequestInbox lists the provider's pending repeat requests.
func (b *Bot) showRequestInbox(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID
	reqs, err := b.requests.PendingFor(ctx, userID)
	if err != nil {
		b.reply(ctx, msg.Chat.ID, copyGenericError)
		return
	}
	if len(reqs) == 0 {
		b.replyWithKeyboard(ctx, msg.Chat.ID, "У вас нет новых запросов.", providerMenu)
		return
	}

	var sb strings.Builder
	sb.WriteString("📥 Новые запросы:\n\n")
	ids := make([]int64, len(reqs))
	for i, req := range reqs {
		ids[i] = req.ID
		name, code := b.clientLabel(ctx, req.ClientID)
		fmt.Fprintf(&sb, "%d. %s (ID: %s)\n   Сообщение: %s\n   Отправлено: %s\n\n",
			i+1, name, code, preview(req.Message, 60), req.CreatedAt.Format("02.01.2006 15:04"))
	}
	sb.WriteString("Введите номер запроса:")

	patch := map[string]string{
		payloadRequestIDs: joinIDs(ids),
		session.KeyRole:   string(model.RoleProvider),
	}
	if err := b.sessions.Set(ctx, userID, stateRequestInbox, patch); err != nil {
		b.reply(ctx, msg.Chat.ID, copyGenericError)
		return
	}
	b.replyWithKeyboard(ctx, msg.Chat.ID, sb.String(), cancelMenu)
}

func (b *Bot) handleRequestInbox(ctx context.Context, msg *tgbotapi.Message, sess *session.Session, text string) {
	switch text {
	case btnAcceptRequest:
		b.acceptRequest(ctx, msg, sess)
	case btnRejectRequest:
		b.rejectRequest(ctx, msg, sess)
	case btnRecordFromReq:
		b.recordFromRequest(ctx, msg, sess)
	default:
		b.pickRequest(ctx, msg, sess, text)
	}
}

func (b *Bot) pickRequest(ctx context.Context, msg *tgbotapi.Message, sess *session.Session, text string) {
	ids := splitIDs(sess.Value(payloadRequestIDs))
	idx, ok := parsePickerIndex(text, len(ids))
	if !ok {
		b.replyWithKeyboard(ctx, msg.Chat.ID, fmt.Sprintf("Неверный номер. Введите число от 1 до %d:", len(ids)), cancelMenu)
		return
	}

	req, err := b.store.GetRepeatRequest(ctx, ids[idx])
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Int64("request_id", ids[idx]).Msg("request lookup failed")
		b.reply(ctx, msg.Chat.ID, copyGenericError)
		return
	}
	name, _ := b.clientLabel(ctx, req.ClientID)

	patch := map[string]string{
		payloadRequestID:         strconv.FormatInt(req.ID, 10),
		payloadRequestClient:     strconv.FormatInt(req.ClientID, 10),
		payloadRequestClientName: name,
	}
	if err := b.sessions.Set(ctx, msg.From.ID, stateRequestInbox, patch); err != nil {
		b.reply(ctx, msg.Chat.ID, copyGenericError)
		return
	}
	b.replyWithKeyboard(ctx, msg.Chat.ID, fmt.Sprintf("💬 Запрос от %s:\n\n%s", name, req.Message), requestActionMenu)
}

func (b *Bot) acceptRequest(ctx context.Context, msg *tgbotapi.Message, sess *session.Session) {
	userID := msg.From.ID
	requestID, ok := sess.Int64(payloadRequestID)
	if !ok {
		b.replyWithKeyboard(ctx, msg.Chat.ID, "Сначала выберите запрос.", cancelMenu)
		return
	}

	req, err := b.requests.Accept(ctx, requestID, userID)
	if errors.Is(err, storage.ErrStaleRequest) {
		b.resetToRole(ctx, userID, model.RoleProvider)
		b.replyWithKeyboard(ctx, msg.Chat.ID, "❌ Не удалось принять запрос. Возможно, он уже обработан.", providerMenu)
		return
	}
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Int64("request_id", requestID).Msg("request accept failed")
		b.reply(ctx, msg.Chat.ID, copyGenericError)
		return
	}

	// Keep the picked client in the payload so «Создать запись» still works.
	patch := map[string]string{payloadRequestClient: strconv.FormatInt(req.ClientID, 10)}
	if err := b.sessions.Set(ctx, userID, stateRequestInbox, patch); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Int64("user_id", userID).Msg("session set failed")
	}
	b.replyWithKeyboard(ctx, msg.Chat.ID,
		"✅ Запрос принят!\nКлиент получит уведомление. Вы можете создать запись для клиента.",
		requestActionMenu)
}

func (b *Bot) rejectRequest(ctx context.Context, msg *tgbotapi.Message, sess *session.Session) {
	userID := msg.From.ID
	requestID, ok := sess.Int64(payloadRequestID)
	if !ok {
		b.replyWithKeyboard(ctx, msg.Chat.ID, "Сначала выберите запрос.", cancelMenu)
		return
	}

	_, err := b.requests.Reject(ctx, requestID, userID)
	if errors.Is(err, storage.ErrStaleRequest) {
		b.resetToRole(ctx, userID, model.RoleProvider)
		b.replyWithKeyboard(ctx, msg.Chat.ID, "❌ Не удалось отклонить запрос. Возможно, он уже обработан.", providerMenu)
		return
	}
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Int64("request_id", requestID).Msg("request reject failed")
		b.reply(ctx, msg.Chat.ID, copyGenericError)
		return
	}

	b.resetToRole(ctx, userID, model.RoleProvider)
	b.replyWithKeyboard(ctx, msg.Chat.ID, "❌ Запрос отклонён.\nКлиент получит уведомление.", providerMenu)
}

// recordFromRequest jumps into the booking pipeline with the requesting
// client prefilled.
func (b *Bot) recordFromRequest(ctx context.Context, msg *tgbotapi.Message, sess *session.Session) {
	userID := msg.From.ID
	clientID, ok := sess.Int64(payloadRequestClient)
	if !ok {
		b.replyWithKeyboard(ctx, msg.Chat.ID, "Сначала выберите запрос.", cancelMenu)
		return
	}
	name := sess.Value(payloadRequestClientName)
	if name == "" {
		name = "Клиент"
	}

	patch := map[string]string{
		session.KeyClientID: strconv.FormatInt(clientID, 10),
		session.KeyRole:     string(model.RoleProvider),
	}
	if err := b.sessions.Set(ctx, userID, booking.StateServiceName, patch); err != nil {
		b.reply(ctx, msg.Chat.ID, copyGenericError)
		return
	}
	b.replyWithKeyboard(ctx, msg.Chat.ID,
		fmt.Sprintf("Создание записи для клиента: %s\nВведите название услуги:", name),
		cancelMenu)
}

// clientLabel resolves a display name and public code, tolerating a missing
// user row.
func (b *Bot) clientLabel(ctx context.Context, clientID int64) (name, code string) {
	user, err := b.store.GetUser(ctx, clientID)
	if err != nil {
		return "Клиент", "—"
	}
	return user.FullName(), user.PublicCode
}

// preview clips long request texts for the inbox list.
func preview(text string, limit int) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= limit {
		return string(runes)
	}
	return string(runes[:limit-3]) + "..."
}
