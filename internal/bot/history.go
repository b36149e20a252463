package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/Ilyushechek/secretar/internal/model"
)

const historyPageSize = 8

func (b *Bot) showHistory(ctx context.Context, msg *tgbotapi.Message) {
	b.renderHistory(ctx, msg.Chat.ID, msg.From.ID, 0, 0)
}

func (b *Bot) handleHistoryPage(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	page, err := strconv.Atoi(strings.TrimPrefix(cq.Data, "hist_page_"))
	if err != nil || page < 0 {
		b.alertCallback(cq.ID, "Ошибка обработки данных.")
		return
	}
	_ = b.answerCallback(cq.ID)
	b.renderHistory(ctx, cq.Message.Chat.ID, cq.From.ID, page, cq.Message.MessageID)
}

// renderHistory shows one page of the client's records, newest first. With
// messageID set it edits the already shown page in place.
func (b *Bot) renderHistory(ctx context.Context, chatID, userID int64, page, messageID int) {
	recs, err := b.store.RecordsForUser(ctx, userID, model.RoleClient)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Int64("user_id", userID).Msg("history load failed")
		b.reply(ctx, chatID, copyGenericError)
		return
	}
	if len(recs) == 0 {
		b.reply(ctx, chatID, "У вас нет записей.")
		return
	}

	total := pageCount(len(recs), historyPageSize)
	if page >= total {
		page = total - 1
	}
	start, end := pageBounds(page, historyPageSize, len(recs))

	var sb strings.Builder
	sb.WriteString("📖 История записей\n\n")
	fmt.Fprintf(&sb, "Страница %d из %d\n\n", page+1, total)
	for i, rec := range recs[start:end] {
		name := rec.ProviderName
		if name == "" {
			name = "Мастер"
		}
		fmt.Fprintf(&sb, "%d. %s\n   Мастер: %s\n   Статус: %s\n\n",
			start+i+1, rec.Summary(), name, recordStatusLabel(rec.Status))
	}

	var navButtons []tgbotapi.InlineKeyboardButton
	if page > 0 {
		navButtons = append(navButtons, tgbotapi.NewInlineKeyboardButtonData("⬅️ Назад", fmt.Sprintf("hist_page_%d", page-1)))
	}
	if end < len(recs) {
		navButtons = append(navButtons, tgbotapi.NewInlineKeyboardButtonData("Вперед ➡️", fmt.Sprintf("hist_page_%d", page+1)))
	}

	if messageID != 0 {
		if len(navButtons) > 0 {
			markup := tgbotapi.NewInlineKeyboardMarkup(navButtons)
			edit := tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, sb.String(), markup)
			if err := b.send(ctx, edit); err != nil {
				zerolog.Ctx(ctx).Debug().Err(err).Int64("chat_id", chatID).Msg("history edit failed")
			}
			return
		}
		b.editText(ctx, chatID, messageID, sb.String())
		return
	}

	out := tgbotapi.NewMessage(chatID, sb.String())
	if len(navButtons) > 0 {
		out.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(navButtons)
	}
	if err := b.send(ctx, out); err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Int64("chat_id", chatID).Msg("history send failed")
	}
}

func recordStatusLabel(status model.RecordStatus) string {
	switch status {
	case model.RecordActive:
		return "Активна"
	case model.RecordCompleted:
		return "Завершена"
	case model.RecordCancelled:
		return "Отменена"
	default:
		return string(status)
	}
}

func pageCount(items, perPage int) int {
	return (items + perPage - 1) / perPage
}

func pageBounds(page, perPage, items int) (start, end int) {
	start = page * perPage
	if start > items {
		start = items
	}
	end = start + perPage
	if end > items {
		end = items
	}
	return start, end
}
