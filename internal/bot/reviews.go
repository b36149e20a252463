package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Ilyushechek/secretar/internal/reviews"
	"github.com/Ilyushechek/secretar/internal/storage"
)

// handleRating saves a one-press review. Editing the prompt away removes
// the buttons, so a second press needs the duplicate guard only for races.
func (b *Bot) handleRating(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	recordID, rating, ok := parseRateCallback(cq.Data)
	if !ok {
		b.alertCallback(cq.ID, "Ошибка обработки данных.")
		return
	}

	summary, err := b.reviews.Rate(ctx, recordID, cq.From.ID, rating)
	switch {
	case errors.Is(err, storage.ErrDuplicateReview):
		b.alertCallback(cq.ID, "Отзыв уже сохранён.")
		return
	case errors.Is(err, reviews.ErrNotReviewable), errors.Is(err, storage.ErrRecordNotFound):
		b.alertCallback(cq.ID, "Оценка недоступна для этой записи.")
		return
	case errors.Is(err, reviews.ErrBadRating):
		b.alertCallback(cq.ID, "Ошибка обработки данных.")
		return
	case err != nil:
		b.alertCallback(cq.ID, copyGenericError)
		return
	}

	_ = b.answerCallback(cq.ID)
	text := "✅ Спасибо за отзыв!\nВаша оценка: " + reviews.Stars(rating)
	if summary != nil {
		text += fmt.Sprintf("\n\nСтатистика мастера обновлена:\nСредняя оценка: %.1f ⭐\nОтзывов: %d", summary.Average, summary.Count)
	}
	b.editText(ctx, cq.Message.Chat.ID, cq.Message.MessageID, text)
}

// parseRateCallback splits rate_{recordID}_{rating}.
func parseRateCallback(data string) (recordID int64, rating int, ok bool) {
	parts := strings.Split(strings.TrimPrefix(data, "rate_"), "_")
	if len(parts) != 2 {
		return 0, 0, false
	}
	recordID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || recordID <= 0 {
		return 0, 0, false
	}
	rating, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, false
	}
	return recordID, rating, true
}
