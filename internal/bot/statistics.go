package bot

import (
	"context"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/Ilyushechek/secretar/internal/export"
	"github.com/Ilyushechek/secretar/internal/model"
	"github.com/Ilyushechek/secretar/internal/session"
	"github.com/Ilyushechek/secretar/internal/storage"
)

func (b *Bot) askStatsPeriod(ctx context.Context, msg *tgbotapi.Message) {
	patch := map[string]string{session.KeyRole: string(model.RoleProvider)}
	if err := b.sessions.Set(ctx, msg.From.ID, stateStatsPeriod, patch); err != nil {
		b.reply(ctx, msg.Chat.ID, copyGenericError)
		return
	}
	b.replyWithKeyboard(ctx, msg.Chat.ID, "Выберите период:", statsPeriodMenu)
}

// handleStatsPeriod answers with a status breakdown and attaches an xlsx
// report when the period has records.
func (b *Bot) handleStatsPeriod(ctx context.Context, msg *tgbotapi.Message, text string) {
	userID := msg.From.ID
	p, ok := export.ParsePeriod(text)
	if !ok {
		b.replyWithKeyboard(ctx, msg.Chat.ID, "Выберите период кнопками ниже:", statsPeriodMenu)
		return
	}

	now := time.Now()
	from := p.From(now)
	stats, err := b.store.ProviderStats(ctx, userID, from)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Int64("user_id", userID).Msg("stats load failed")
		b.reply(ctx, msg.Chat.ID, copyGenericError)
		return
	}
	b.reply(ctx, msg.Chat.ID, statsText(p, stats))

	b.sendStatsWorkbook(ctx, msg.Chat.ID, userID, p, from, now)

	b.resetToRole(ctx, userID, model.RoleProvider)
	b.replyWithKeyboard(ctx, msg.Chat.ID, "Вы в меню мастера.", providerMenu)
}

// sendStatsWorkbook is best effort: the text summary already answered the
// provider, a failed attachment only costs the spreadsheet.
func (b *Bot) sendStatsWorkbook(ctx context.Context, chatID, userID int64, p export.Period, from string, now time.Time) {
	recs, err := b.store.RecordsForProviderSince(ctx, userID, from)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Int64("user_id", userID).Msg("stats records load failed")
		return
	}
	if len(recs) == 0 {
		return
	}
	buf, err := export.Workbook(fmt.Sprintf("Статистика за %s", p.Label()), recs)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Int64("user_id", userID).Msg("stats workbook build failed")
		return
	}
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{
		Name:  export.Filename(p, now),
		Bytes: buf.Bytes(),
	})
	if err := b.send(ctx, doc); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Int64("chat_id", chatID).Msg("stats workbook delivery failed")
	}
}

func statsText(p export.Period, stats *storage.PeriodStats) string {
	return fmt.Sprintf("📈 Статистика за %s:\n\nАктивных записей: %d\nЗавершено: %d\nОтменено: %d\nДоход (завершённые): %d руб.",
		p.Label(), stats.Active, stats.Completed, stats.Cancelled, stats.Income)
}
