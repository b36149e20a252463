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
	"github.com/Ilyushechek/secretar/internal/chat"
	"github.com/Ilyushechek/secretar/internal/model"
	"github.com/Ilyushechek/secretar/internal/session"
	"github.com/Ilyushechek/secretar/internal/storage"
)

func (b *Bot) startContact(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID
	open, err := b.chats.HasOpenChat(ctx, userID, model.RoleClient)
	if err != nil {
		b.reply(ctx, msg.Chat.ID, copyGenericError)
		return
	}
	if open {
		b.reply(ctx, msg.Chat.ID, "У вас уже есть активный чат с мастером.")
		return
	}
	patch := map[string]string{session.KeyRole: string(model.RoleClient)}
	if err := b.sessions.Set(ctx, userID, stateProviderCode, patch); err != nil {
		b.reply(ctx, msg.Chat.ID, copyGenericError)
		return
	}
	b.replyWithKeyboard(ctx, msg.Chat.ID, "Введите 6-значный ID мастера:", cancelMenu)
}

// handleProviderCode opens the pending chat and pings the provider. The
// client stays in the flow until the input resolves to a reachable provider.
func (b *Bot) handleProviderCode(ctx context.Context, msg *tgbotapi.Message, text string) {
	userID := msg.From.ID
	chatID := msg.Chat.ID

	pendingID, provider, err := b.chats.Initiate(ctx, userID, text)
	switch {
	case errors.Is(err, chat.ErrInvalidCode):
		b.replyWithKeyboard(ctx, chatID, "Неверный формат ID. Введите 6 цифр:", cancelMenu)
		return
	case errors.Is(err, storage.ErrUserNotFound):
		b.replyWithKeyboard(ctx, chatID, "Мастер с таким ID не найден. Попробуйте снова:", cancelMenu)
		return
	case errors.Is(err, chat.ErrSelfChat):
		b.replyWithKeyboard(ctx, chatID, "Вы не можете связаться сами с собой.", cancelMenu)
		return
	case errors.Is(err, storage.ErrChatConflict):
		b.replyWithKeyboard(ctx, chatID, "Мастер сейчас занят другим чатом. Попробуйте позже или введите другой ID:", cancelMenu)
		return
	case err != nil:
		b.reply(ctx, chatID, copyGenericError)
		return
	}

	client, err := b.store.GetUser(ctx, userID)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Int64("user_id", userID).Msg("client lookup failed")
		b.reply(ctx, chatID, copyGenericError)
		return
	}

	prompt := tgbotapi.NewMessage(provider.TelegramID, fmt.Sprintf("🔔 Запрос от клиента (ID: %s)\nПринять?", client.PublicCode))
	prompt.ReplyMarkup = chatRequestKeyboard(pendingID)
	if err := b.send(ctx, prompt); err != nil {
		if errors.Is(err, ErrRecipientUnreachable) {
			if _, _, cerr := b.chats.Close(ctx, pendingID, userID); cerr != nil {
				zerolog.Ctx(ctx).Error().Err(cerr).Int64("chat_id", pendingID).Msg("chat close failed")
			}
			b.resetToRole(ctx, userID, model.RoleClient)
			b.replyWithKeyboard(ctx, chatID, "Не удалось отправить запрос: мастер заблокировал бота.", clientMenu)
			return
		}
		zerolog.Ctx(ctx).Error().Err(err).Int64("chat_id", provider.TelegramID).Msg("chat request delivery failed")
		b.reply(ctx, chatID, copyGenericError)
		return
	}

	b.reply(ctx, chatID, "Запрос отправлен мастеру. Ожидайте ответа.")
	patch := map[string]string{
		session.KeyChatID:    strconv.FormatInt(pendingID, 10),
		session.KeyPartnerID: strconv.FormatInt(provider.TelegramID, 10),
		session.KeyRole:      string(model.RoleClient),
	}
	if err := b.sessions.Set(ctx, userID, stateChatActive, patch); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Int64("user_id", userID).Msg("session set failed")
		b.reply(ctx, chatID, copyGenericError)
		return
	}
	b.replyWithKeyboard(ctx, chatID, "Чат начат. Нажмите «Завершить чат», чтобы остановить общение.", chatActiveMenu)
}

func (b *Bot) acceptChat(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	id, ok := parseTrailingID(cq.Data, "accept_chat_")
	if !ok {
		b.alertCallback(cq.ID, "Ошибка обработки данных.")
		return
	}
	providerID := cq.From.ID

	c, err := b.chats.Accept(ctx, id, providerID)
	switch {
	case errors.Is(err, storage.ErrStaleChat), errors.Is(err, storage.ErrChatNotFound):
		b.alertCallback(cq.ID, "Чат уже закрыт или не найден.")
		return
	case err != nil:
		b.alertCallback(cq.ID, copyGenericError)
		return
	}

	// Tell the client first: if they blocked the bot meanwhile, the chat
	// dies before the provider commits to it.
	note := tgbotapi.NewMessage(c.ClientID, "✅ Мастер принял ваш запрос! Теперь вы можете писать друг другу.")
	if err := b.send(ctx, note); err != nil {
		if errors.Is(err, ErrRecipientUnreachable) {
			b.alertCallback(cq.ID, "Клиент заблокировал бота.")
			if _, _, cerr := b.chats.Close(ctx, c.ID, providerID); cerr != nil {
				zerolog.Ctx(ctx).Error().Err(cerr).Int64("chat_id", c.ID).Msg("chat close failed")
			}
			b.editText(ctx, cq.Message.Chat.ID, cq.Message.MessageID, "Чат завершён: клиент недоступен.")
			return
		}
		zerolog.Ctx(ctx).Error().Err(err).Int64("chat_id", c.ClientID).Msg("accept notice delivery failed")
	}

	_ = b.answerCallback(cq.ID)
	b.editText(ctx, cq.Message.Chat.ID, cq.Message.MessageID, "Чат активен.")

	patch := map[string]string{
		session.KeyChatID:    strconv.FormatInt(c.ID, 10),
		session.KeyPartnerID: strconv.FormatInt(c.ClientID, 10),
		session.KeyRole:      string(model.RoleProvider),
	}
	if err := b.sessions.Set(ctx, providerID, stateChatActive, patch); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Int64("user_id", providerID).Msg("session set failed")
	}
	b.replyWithKeyboard(ctx, cq.Message.Chat.ID,
		"✅ Вы приняли запрос! Теперь вы можете писать клиенту.\nНажмите «Завершить чат», чтобы остановить общение.",
		chatActiveMenu)
}

func (b *Bot) rejectChat(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	id, ok := parseTrailingID(cq.Data, "reject_chat_")
	if !ok {
		b.alertCallback(cq.ID, "Ошибка обработки данных.")
		return
	}
	providerID := cq.From.ID

	c, err := b.chats.Reject(ctx, id, providerID)
	switch {
	case errors.Is(err, storage.ErrStaleChat), errors.Is(err, storage.ErrChatNotFound):
		b.alertCallback(cq.ID, "Чат уже закрыт или не найден.")
		return
	case err != nil:
		b.alertCallback(cq.ID, copyGenericError)
		return
	}

	b.alertCallback(cq.ID, "Запрос отклонён.")
	b.editText(ctx, cq.Message.Chat.ID, cq.Message.MessageID, "Запрос отклонён.")

	// The client was parked in the chat state since the request went out.
	b.resetToRole(ctx, c.ClientID, model.RoleClient)
	note := tgbotapi.NewMessage(c.ClientID, "❌ Мастер отклонил ваш запрос.")
	note.ReplyMarkup = clientMenu
	if err := b.send(ctx, note); err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Int64("chat_id", c.ClientID).Msg("reject notice delivery failed")
	}
}

// relayChat forwards text and photos to the chat partner with a role prefix.
func (b *Bot) relayChat(ctx context.Context, msg *tgbotapi.Message, sess *session.Session) {
	userID := msg.From.ID
	partnerID, okPartner := sess.Int64(session.KeyPartnerID)
	chatRef, okChat := sess.Int64(session.KeyChatID)
	role, okRole := sess.Role()
	if !okPartner || !okChat || !okRole {
		b.reply(ctx, msg.Chat.ID, "Ошибка сессии.")
		b.returnToMenu(ctx, msg.Chat.ID, userID)
		return
	}

	var out tgbotapi.Chattable
	switch {
	case len(msg.Photo) > 0:
		photo := msg.Photo[len(msg.Photo)-1]
		pc := tgbotapi.NewPhoto(partnerID, tgbotapi.FileID(photo.FileID))
		pc.Caption = chat.RelayCaption(role, msg.Caption)
		out = pc
	case msg.Text != "":
		out = tgbotapi.NewMessage(partnerID, chat.RelayText(role, msg.Text))
	default:
		b.reply(ctx, msg.Chat.ID, "Можно отправлять только текст и фото.")
		return
	}

	err := b.send(ctx, out)
	if err == nil {
		return
	}
	if errors.Is(err, ErrRecipientUnreachable) {
		b.closeChatAfterBlock(ctx, msg.Chat.ID, userID, chatRef, role)
		return
	}
	zerolog.Ctx(ctx).Error().Err(err).Int64("chat_id", partnerID).Msg("relay delivery failed")
}

// closeChatAfterBlock ends the chat when the partner turned out to be
// unreachable mid-conversation. The dead side gets no delivery attempts.
func (b *Bot) closeChatAfterBlock(ctx context.Context, replyTo, userID, chatRef int64, role model.Role) {
	c, transitioned, err := b.chats.Close(ctx, chatRef, userID)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Int64("chat_id", chatRef).Msg("chat close failed")
		b.reply(ctx, replyTo, copyGenericError)
		return
	}
	if transitioned {
		b.resetToRole(ctx, c.Partner(userID), role.Opposite())
	}
	b.resetToRole(ctx, userID, role)
	if role == model.RoleProvider {
		b.offerRecord(ctx, replyTo, c)
		b.replyWithKeyboard(ctx, replyTo, "Клиент заблокировал бота. Чат завершён.", providerMenu)
		return
	}
	b.replyWithKeyboard(ctx, replyTo, "Мастер заблокировал бота. Чат завершён.", clientMenu)
}

func (b *Bot) endChat(ctx context.Context, msg *tgbotapi.Message, sess *session.Session) {
	userID := msg.From.ID
	chatRef, ok := sess.Int64(session.KeyChatID)
	if !ok {
		b.reply(ctx, msg.Chat.ID, "Ошибка сессии.")
		b.returnToMenu(ctx, msg.Chat.ID, userID)
		return
	}

	c, transitioned, err := b.chats.Close(ctx, chatRef, userID)
	if errors.Is(err, storage.ErrChatNotFound) {
		b.reply(ctx, msg.Chat.ID, "Ошибка сессии.")
		b.returnToMenu(ctx, msg.Chat.ID, userID)
		return
	}
	if err != nil {
		b.reply(ctx, msg.Chat.ID, copyGenericError)
		return
	}

	role := model.RoleClient
	if userID == c.ProviderID {
		role = model.RoleProvider
	}

	if transitioned {
		b.notifyChatClosed(ctx, c)
		b.resetToRole(ctx, c.Partner(userID), role.Opposite())
	}
	b.resetToRole(ctx, userID, role)
	b.replyWithKeyboard(ctx, msg.Chat.ID, "Вы вышли из чата.", b.roleMenu(role))
}

// notifyChatClosed fans out the closure: the provider is offered a booking
// for the just-served client, the client gets a plain notice.
func (b *Bot) notifyChatClosed(ctx context.Context, c *model.Chat) {
	b.offerRecord(ctx, c.ProviderID, c)

	note := tgbotapi.NewMessage(c.ClientID, "Чат с мастером завершён.")
	note.ReplyMarkup = clientMenu
	if err := b.send(ctx, note); err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Int64("chat_id", c.ClientID).Msg("closure notice delivery failed")
	}
}

// offerRecord asks the provider whether to book the client from a finished
// chat right away.
func (b *Bot) offerRecord(ctx context.Context, chatID int64, c *model.Chat) {
	name := "Клиент"
	if client, err := b.store.GetUser(ctx, c.ClientID); err == nil {
		name = client.FullName()
	}
	offer := tgbotapi.NewMessage(chatID, fmt.Sprintf("Чат с %s завершён.\nХотите создать запись на услугу для этого клиента?", name))
	offer.ReplyMarkup = recordOfferKeyboard(c.ID)
	if err := b.send(ctx, offer); err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Int64("chat_id", chatID).Msg("record offer delivery failed")
	}
}

func (b *Bot) recordOfferAccepted(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	id, ok := parseTrailingID(cq.Data, "create_record_yes_")
	if !ok {
		b.alertCallback(cq.ID, "Ошибка обработки данных.")
		return
	}
	c, err := b.store.GetChat(ctx, id)
	if errors.Is(err, storage.ErrChatNotFound) {
		b.alertCallback(cq.ID, "Чат не найден.")
		return
	}
	if err != nil {
		b.alertCallback(cq.ID, copyGenericError)
		return
	}

	patch := map[string]string{
		session.KeyClientID: strconv.FormatInt(c.ClientID, 10),
		session.KeyRole:     string(model.RoleProvider),
	}
	if err := b.sessions.Set(ctx, cq.From.ID, booking.StateServiceName, patch); err != nil {
		b.alertCallback(cq.ID, copyGenericError)
		return
	}
	_ = b.answerCallback(cq.ID)
	b.editText(ctx, cq.Message.Chat.ID, cq.Message.MessageID, "Введите название услуги:")
}

func (b *Bot) recordOfferDeclined(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	_ = b.answerCallback(cq.ID)
	b.editText(ctx, cq.Message.Chat.ID, cq.Message.MessageID, "Вы вернулись в меню.")
	b.resetToRole(ctx, cq.From.ID, model.RoleProvider)
	b.replyWithKeyboard(ctx, cq.Message.Chat.ID, "Вы в меню мастера.", providerMenu)
}

// parseTrailingID extracts the numeric suffix of a prefixed callback.
func parseTrailingID(data, prefix string) (int64, bool) {
	raw := strings.TrimPrefix(data, prefix)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
