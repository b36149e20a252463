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

func (b *Bot) startBooking(ctx context.Context, msg *tgbotapi.Message, sess *session.Session) {
	res, err := b.bookings.Start(ctx, msg.From.ID, sess)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Int64("user_id", msg.From.ID).Msg("booking start failed")
		b.reply(ctx, msg.Chat.ID, copyGenericError)
		return
	}
	b.applyBookingResult(ctx, msg.Chat.ID, msg.From.ID, res)
}

func (b *Bot) advanceBooking(ctx context.Context, msg *tgbotapi.Message, sess *session.Session, text string) {
	res, err := b.bookings.Advance(ctx, msg.From.ID, sess, text)
	if booking.IsValidation(err) {
		var ve *booking.ValidationError
		errors.As(err, &ve)
		b.replyWithKeyboard(ctx, msg.Chat.ID, ve.Prompt, cancelMenu)
		return
	}
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Int64("user_id", msg.From.ID).Msg("booking step failed")
		b.reply(ctx, msg.Chat.ID, copyGenericError)
		return
	}
	b.applyBookingResult(ctx, msg.Chat.ID, msg.From.ID, res)
}

func (b *Bot) applyBookingResult(ctx context.Context, chatID, userID int64, res *booking.Result) {
	if res.Record != nil {
		b.reply(ctx, chatID, res.Reply)
		b.resetToRole(ctx, userID, model.RoleProvider)
		b.replyWithKeyboard(ctx, chatID, "Вы вернулись в меню.", providerMenu)
		return
	}
	patch := res.Patch
	if patch == nil {
		patch = map[string]string{}
	}
	patch[session.KeyRole] = string(model.RoleProvider)
	if err := b.sessions.Set(ctx, userID, res.Next, patch); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Int64("user_id", userID).Msg("session set failed")
		b.reply(ctx, chatID, copyGenericError)
		return
	}
	b.replyWithKeyboard(ctx, chatID, res.Reply, cancelMenu)
}

// recordPickerText renders a numbered list of records so the provider can
// answer with an index.
func recordPickerText(title string, recs []model.ServiceRecord) string {
	var sb strings.Builder
	sb.WriteString(title)
	sb.WriteString("\n\n")
	for i, rec := range recs {
		name := rec.ClientName
		if name == "" {
			name = "Клиент"
		}
		fmt.Fprintf(&sb, "%d. %s\n   Клиент: %s\n\n", i+1, rec.Summary(), name)
	}
	sb.WriteString("Введите номер записи:")
	return sb.String()
}

func recordIDs(recs []model.ServiceRecord) []int64 {
	ids := make([]int64, len(recs))
	for i, rec := range recs {
		ids[i] = rec.ID
	}
	return ids
}

func (b *Bot) startCompletion(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID
	recs, err := b.bookings.ActiveRecords(ctx, userID)
	if err != nil {
		b.reply(ctx, msg.Chat.ID, copyGenericError)
		return
	}
	if len(recs) == 0 {
		b.reply(ctx, msg.Chat.ID, "У вас нет активных записей для завершения.")
		return
	}
	patch := map[string]string{
		payloadRecordIDs: joinIDs(recordIDs(recs)),
		session.KeyRole:  string(model.RoleProvider),
	}
	if err := b.sessions.Set(ctx, userID, stateCompletionPick, patch); err != nil {
		b.reply(ctx, msg.Chat.ID, copyGenericError)
		return
	}
	b.replyWithKeyboard(ctx, msg.Chat.ID, recordPickerText("Выберите запись для завершения:", recs), cancelMenu)
}

func (b *Bot) handleCompletionPick(ctx context.Context, msg *tgbotapi.Message, sess *session.Session, text string) {
	ids := splitIDs(sess.Value(payloadRecordIDs))
	idx, ok := parsePickerIndex(text, len(ids))
	if !ok {
		b.replyWithKeyboard(ctx, msg.Chat.ID, fmt.Sprintf("Неверный номер. Введите число от 1 до %d:", len(ids)), cancelMenu)
		return
	}
	patch := map[string]string{payloadRecordID: strconv.FormatInt(ids[idx], 10)}
	if err := b.sessions.Set(ctx, msg.From.ID, stateCompletionDuration, patch); err != nil {
		b.reply(ctx, msg.Chat.ID, copyGenericError)
		return
	}
	b.replyWithKeyboard(ctx, msg.Chat.ID, "Сколько минут длилась услуга?", cancelMenu)
}

func (b *Bot) handleCompletionDuration(ctx context.Context, msg *tgbotapi.Message, text string) {
	minutes, err := strconv.Atoi(text)
	if err != nil || minutes <= 0 {
		b.replyWithKeyboard(ctx, msg.Chat.ID, "Введите положительное число минут:", cancelMenu)
		return
	}
	patch := map[string]string{payloadDuration: strconv.Itoa(minutes)}
	if err := b.sessions.Set(ctx, msg.From.ID, stateCompletionWentWell, patch); err != nil {
		b.reply(ctx, msg.Chat.ID, copyGenericError)
		return
	}
	b.replyWithKeyboard(ctx, msg.Chat.ID, "Хорошо ли прошла услуга?", yesNoMenu)
}

func (b *Bot) handleCompletionWentWell(ctx context.Context, msg *tgbotapi.Message, text string) {
	wentWell := "0"
	if text == btnYes {
		wentWell = "1"
	}
	patch := map[string]string{payloadWentWell: wentWell}
	if err := b.sessions.Set(ctx, msg.From.ID, stateCompletionNotes, patch); err != nil {
		b.reply(ctx, msg.Chat.ID, copyGenericError)
		return
	}
	b.replyWithKeyboard(ctx, msg.Chat.ID, "Добавьте комментарии (или '-' если нет):", cancelMenu)
}

func (b *Bot) handleCompletionNotes(ctx context.Context, msg *tgbotapi.Message, sess *session.Session, text string) {
	userID := msg.From.ID
	notes := text
	if notes == "-" {
		notes = ""
	}
	recordID, okID := sess.Int64(payloadRecordID)
	minutes, errDur := strconv.Atoi(sess.Value(payloadDuration))
	if !okID || errDur != nil {
		b.reply(ctx, msg.Chat.ID, "Ошибка сессии.")
		b.returnToMenu(ctx, msg.Chat.ID, userID)
		return
	}

	rec, err := b.bookings.Complete(ctx, booking.CompletionReport{
		RecordID:        recordID,
		ProviderID:      userID,
		DurationMinutes: minutes,
		WentWell:        sess.Value(payloadWentWell) == "1",
		Notes:           notes,
	})
	if errors.Is(err, storage.ErrStaleRecord) || errors.Is(err, storage.ErrRecordNotFound) {
		b.reply(ctx, msg.Chat.ID, "❌ Не удалось завершить услугу. Возможно, запись уже отменена или завершена.")
		b.resetToRole(ctx, userID, model.RoleProvider)
		b.replyWithKeyboard(ctx, msg.Chat.ID, "Вы в меню мастера.", providerMenu)
		return
	}
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Int64("record_id", recordID).Msg("completion failed")
		b.reply(ctx, msg.Chat.ID, copyGenericError)
		return
	}

	status := "завершена с замечаниями"
	if sess.Value(payloadWentWell) == "1" {
		status = "успешно завершена"
	}
	b.reply(ctx, msg.Chat.ID, fmt.Sprintf("✅ Услуга %s!\nДлительность: %d мин\nКомментарии: %s", status, minutes, notes))
	b.sendRatingPrompt(ctx, rec)
	b.resetToRole(ctx, userID, model.RoleProvider)
	b.replyWithKeyboard(ctx, msg.Chat.ID, "Вы в меню мастера.", providerMenu)
}

// sendRatingPrompt invites the client to review a completed record. Failure
// is non-fatal: the queued completion notice already reached the client's
// mailbox.
func (b *Bot) sendRatingPrompt(ctx context.Context, rec *model.ServiceRecord) {
	prompt := tgbotapi.NewMessage(rec.ClientID, "⭐ Оцените мастера (1-5 звёзд):\nЧем выше оценка, тем лучше качество услуги.")
	prompt.ReplyMarkup = ratingKeyboard(rec.ID)
	if err := b.send(ctx, prompt); err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Int64("chat_id", rec.ClientID).Msg("rating prompt delivery failed")
	}
}

func (b *Bot) startCancellation(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID
	recs, err := b.bookings.ActiveRecords(ctx, userID)
	if err != nil {
		b.reply(ctx, msg.Chat.ID, copyGenericError)
		return
	}
	if len(recs) == 0 {
		b.reply(ctx, msg.Chat.ID, "У вас нет активных записей для отмены.")
		return
	}
	patch := map[string]string{
		payloadRecordIDs: joinIDs(recordIDs(recs)),
		session.KeyRole:  string(model.RoleProvider),
	}
	if err := b.sessions.Set(ctx, userID, stateCancellationPick, patch); err != nil {
		b.reply(ctx, msg.Chat.ID, copyGenericError)
		return
	}
	b.replyWithKeyboard(ctx, msg.Chat.ID, recordPickerText("Выберите запись для отмены:", recs), cancelMenu)
}

func (b *Bot) handleCancellationPick(ctx context.Context, msg *tgbotapi.Message, sess *session.Session, text string) {
	userID := msg.From.ID
	ids := splitIDs(sess.Value(payloadRecordIDs))
	idx, ok := parsePickerIndex(text, len(ids))
	if !ok {
		b.replyWithKeyboard(ctx, msg.Chat.ID, fmt.Sprintf("Неверный номер. Введите число от 1 до %d:", len(ids)), cancelMenu)
		return
	}

	_, err := b.bookings.Cancel(ctx, ids[idx], userID)
	switch {
	case errors.Is(err, storage.ErrStaleRecord), errors.Is(err, storage.ErrRecordNotFound):
		b.reply(ctx, msg.Chat.ID, "❌ Не удалось отменить запись. Возможно, она уже завершена или отменена.")
	case err != nil:
		zerolog.Ctx(ctx).Error().Err(err).Int64("record_id", ids[idx]).Msg("cancellation failed")
		b.reply(ctx, msg.Chat.ID, copyGenericError)
		return
	default:
		b.reply(ctx, msg.Chat.ID, "✅ Запись отменена!")
	}
	b.resetToRole(ctx, userID, model.RoleProvider)
	b.replyWithKeyboard(ctx, msg.Chat.ID, "Вы в меню мастера.", providerMenu)
}
