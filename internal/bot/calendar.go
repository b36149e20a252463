package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/Ilyushechek/secretar/internal/model"
	"github.com/Ilyushechek/secretar/internal/storage"
)

var monthNames = [...]string{
	"Январь", "Февраль", "Март", "Апрель", "Май", "Июнь",
	"Июль", "Август", "Сентябрь", "Октябрь", "Ноябрь", "Декабрь",
}

var weekdayHeader = [...]string{"Пн", "Вт", "Ср", "Чт", "Пт", "Сб", "Вс"}

// showCalendar opens the year → month → day drill-down for whichever role
// the user is acting under.
func (b *Bot) showCalendar(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID
	role, ok, err := b.roles.Resolve(ctx, userID)
	if err != nil {
		b.reply(ctx, msg.Chat.ID, copyGenericError)
		return
	}
	if !ok {
		b.reply(ctx, msg.Chat.ID, "Сначала войдите в аккаунт.")
		return
	}

	years, err := b.store.RecordYears(ctx, userID, role)
	if err != nil {
		b.reply(ctx, msg.Chat.ID, copyGenericError)
		return
	}
	if len(years) == 0 {
		b.reply(ctx, msg.Chat.ID, "У вас нет записей.")
		return
	}

	out := tgbotapi.NewMessage(msg.Chat.ID, "Выберите год:")
	out.ReplyMarkup = yearsKeyboard(years)
	if err := b.send(ctx, out); err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Int64("chat_id", msg.Chat.ID).Msg("calendar send failed")
	}
}

// handleCalendarCallback routes every cal_* press. The callbacks carry the
// full year/month/day path, so navigation needs no session state.
func (b *Bot) handleCalendarCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	data := cq.Data

	if data == "cal_menu" {
		_ = b.answerCallback(cq.ID)
		b.editText(ctx, cq.Message.Chat.ID, cq.Message.MessageID, "Вы вернулись в главное меню.")
		b.returnToMenu(ctx, cq.Message.Chat.ID, cq.From.ID)
		return
	}

	role, ok, err := b.roles.Resolve(ctx, cq.From.ID)
	if err != nil {
		b.alertCallback(cq.ID, copyGenericError)
		return
	}
	if !ok {
		b.alertCallback(cq.ID, "Сначала войдите в аккаунт.")
		return
	}

	switch {
	case data == "cal_back_year":
		b.showYears(ctx, cq, role)
	case strings.HasPrefix(data, "cal_back_month_"):
		if path, ok := parseCalendarPath(data, "cal_back_month_", 1); ok {
			b.showMonths(ctx, cq, role, path[0])
			return
		}
		b.alertCallback(cq.ID, "Ошибка обработки данных.")
	case strings.HasPrefix(data, "cal_year_"):
		if path, ok := parseCalendarPath(data, "cal_year_", 1); ok {
			b.showMonths(ctx, cq, role, path[0])
			return
		}
		b.alertCallback(cq.ID, "Ошибка обработки данных.")
	case strings.HasPrefix(data, "cal_month_"):
		if path, ok := parseCalendarPath(data, "cal_month_", 2); ok {
			b.showDayGrid(ctx, cq, role, path[0], path[1])
			return
		}
		b.alertCallback(cq.ID, "Ошибка обработки данных.")
	case strings.HasPrefix(data, "cal_day_"):
		if path, ok := parseCalendarPath(data, "cal_day_", 3); ok {
			b.showDayRecords(ctx, cq, role, path[0], path[1], path[2])
			return
		}
		b.alertCallback(cq.ID, "Ошибка обработки данных.")
	default:
		_ = b.answerCallback(cq.ID)
	}
}

func (b *Bot) showYears(ctx context.Context, cq *tgbotapi.CallbackQuery, role model.Role) {
	years, err := b.store.RecordYears(ctx, cq.From.ID, role)
	if err != nil {
		b.alertCallback(cq.ID, copyGenericError)
		return
	}
	if len(years) == 0 {
		b.alertCallback(cq.ID, "У вас нет записей.")
		return
	}
	_ = b.answerCallback(cq.ID)
	edit := tgbotapi.NewEditMessageTextAndMarkup(cq.Message.Chat.ID, cq.Message.MessageID, "Выберите год:", yearsKeyboard(years))
	if err := b.send(ctx, edit); err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Int64("chat_id", cq.Message.Chat.ID).Msg("calendar edit failed")
	}
}

func (b *Bot) showMonths(ctx context.Context, cq *tgbotapi.CallbackQuery, role model.Role, year int) {
	months, err := b.store.RecordMonths(ctx, cq.From.ID, role, year)
	if err != nil {
		b.alertCallback(cq.ID, copyGenericError)
		return
	}
	if len(months) == 0 {
		b.alertCallback(cq.ID, "В этом году нет записей.")
		return
	}
	_ = b.answerCallback(cq.ID)
	edit := tgbotapi.NewEditMessageTextAndMarkup(cq.Message.Chat.ID, cq.Message.MessageID, "Выберите месяц:", monthsKeyboard(year, months))
	if err := b.send(ctx, edit); err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Int64("chat_id", cq.Message.Chat.ID).Msg("calendar edit failed")
	}
}

func (b *Bot) showDayGrid(ctx context.Context, cq *tgbotapi.CallbackQuery, role model.Role, year, month int) {
	if month < 1 || month > 12 {
		b.alertCallback(cq.ID, "Ошибка обработки данных.")
		return
	}
	days, err := b.store.RecordDays(ctx, cq.From.ID, role, year, month)
	if err != nil {
		b.alertCallback(cq.ID, copyGenericError)
		return
	}
	_ = b.answerCallback(cq.ID)
	text := fmt.Sprintf("📅 %s %d\n\nВыберите день:", monthNames[month-1], year)
	edit := tgbotapi.NewEditMessageTextAndMarkup(cq.Message.Chat.ID, cq.Message.MessageID, text, dayGridKeyboard(year, month, days))
	if err := b.send(ctx, edit); err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Int64("chat_id", cq.Message.Chat.ID).Msg("calendar edit failed")
	}
}

func (b *Bot) showDayRecords(ctx context.Context, cq *tgbotapi.CallbackQuery, role model.Role, year, month, day int) {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		b.alertCallback(cq.ID, "Ошибка обработки данных.")
		return
	}
	date := fmt.Sprintf("%04d-%02d-%02d", year, month, day)
	recs, err := b.store.RecordsByDay(ctx, cq.From.ID, role, date)
	if err != nil {
		b.alertCallback(cq.ID, copyGenericError)
		return
	}
	if len(recs) == 0 {
		b.alertCallback(cq.ID, "На эту дату записей нет.")
		return
	}
	_ = b.answerCallback(cq.ID)

	var sb strings.Builder
	fmt.Fprintf(&sb, "📅 Записи на %02d.%02d.%d:\n\n", day, month, year)
	for _, rec := range recs {
		fmt.Fprintf(&sb, "🔹 %s\n   Время: %s\n   Адрес: %s\n   Комментарии: %s\n\n",
			rec.ServiceName, rec.Time, rec.Address, rec.Comments)
	}

	nav := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("◀️ Назад", fmt.Sprintf("cal_month_%d_%d", year, month)),
			tgbotapi.NewInlineKeyboardButtonData("🏠 В меню", "cal_menu"),
		),
	)
	edit := tgbotapi.NewEditMessageTextAndMarkup(cq.Message.Chat.ID, cq.Message.MessageID, strings.TrimSpace(sb.String()), nav)
	if err := b.send(ctx, edit); err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Int64("chat_id", cq.Message.Chat.ID).Msg("calendar edit failed")
	}
}

// parseCalendarPath splits the numeric tail of a cal_* callback.
func parseCalendarPath(data, prefix string, n int) ([]int, bool) {
	parts := strings.Split(strings.TrimPrefix(data, prefix), "_")
	if len(parts) != n {
		return nil, false
	}
	out := make([]int, n)
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}

func yearsKeyboard(years []int) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(years)+1)
	for i := len(years) - 1; i >= 0; i-- {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(strconv.Itoa(years[i]), fmt.Sprintf("cal_year_%d", years[i])),
		))
	}
	rows = append(rows, calMenuRow())
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func monthsKeyboard(year int, months []int) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	var row []tgbotapi.InlineKeyboardButton
	for _, m := range months {
		if m < 1 || m > 12 {
			continue
		}
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(monthNames[m-1], fmt.Sprintf("cal_month_%d_%d", year, m)))
		if len(row) == 2 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("◀️ Назад к выбору года", "cal_back_year"),
	))
	rows = append(rows, calMenuRow())
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// dayGridKeyboard lays the month out Monday-first; cells with records carry
// their count, every real day is clickable.
func dayGridKeyboard(year, month int, days []storage.DayCount) tgbotapi.InlineKeyboardMarkup {
	counts := make(map[int]int, len(days))
	for _, d := range days {
		counts[d.Day] = d.Records
	}

	header := make([]tgbotapi.InlineKeyboardButton, 0, 7)
	for _, dow := range weekdayHeader {
		header = append(header, tgbotapi.NewInlineKeyboardButtonData(dow, "ignore"))
	}
	rows := [][]tgbotapi.InlineKeyboardButton{header}

	first := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	lead := (int(first.Weekday()) + 6) % 7
	numDays := first.AddDate(0, 1, -1).Day()

	row := make([]tgbotapi.InlineKeyboardButton, 0, 7)
	for i := 0; i < lead; i++ {
		row = append(row, blankCell())
	}
	for day := 1; day <= numDays; day++ {
		label := strconv.Itoa(day)
		if n, ok := counts[day]; ok {
			label = fmt.Sprintf("%d (%d)", day, n)
		}
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(label, fmt.Sprintf("cal_day_%d_%d_%d", year, month, day)))
		if len(row) == 7 {
			rows = append(rows, row)
			row = make([]tgbotapi.InlineKeyboardButton, 0, 7)
		}
	}
	if len(row) > 0 {
		for len(row) < 7 {
			row = append(row, blankCell())
		}
		rows = append(rows, row)
	}

	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("◀️ Назад к месяцу", fmt.Sprintf("cal_back_month_%d", year)),
		tgbotapi.NewInlineKeyboardButtonData("🏠 В меню", "cal_menu"),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func blankCell() tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardButtonData(" ", "ignore")
}

func calMenuRow() []tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("🏠 В меню", "cal_menu"),
	)
}
