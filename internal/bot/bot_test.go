package bot

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Ilyushechek/secretar/internal/export"
	"github.com/Ilyushechek/secretar/internal/model"
	"github.com/Ilyushechek/secretar/internal/storage"
)

func TestParsePickerIndex(t *testing.T) {
	tests := []struct {
		input string
		n     int
		idx   int
		ok    bool
	}{
		{"1", 3, 0, true},
		{" 3 ", 3, 2, true},
		{"4", 3, 0, false},
		{"0", 3, 0, false},
		{"-1", 3, 0, false},
		{"abc", 3, 0, false},
		{"", 3, 0, false},
	}

	for _, tt := range tests {
		idx, ok := parsePickerIndex(tt.input, tt.n)
		assert.Equal(t, tt.ok, ok, "input: %q", tt.input)
		assert.Equal(t, tt.idx, idx, "input: %q", tt.input)
	}
}

func TestJoinSplitIDs(t *testing.T) {
	ids := []int64{5, 7, 42}
	joined := joinIDs(ids)
	assert.Equal(t, "5,7,42", joined)
	assert.Equal(t, ids, splitIDs(joined))

	assert.Nil(t, splitIDs(""))
	assert.Equal(t, []int64{3}, splitIDs("3,abc"))
}

func TestParseTrailingID(t *testing.T) {
	id, ok := parseTrailingID("accept_chat_17", "accept_chat_")
	assert.True(t, ok)
	assert.Equal(t, int64(17), id)

	_, ok = parseTrailingID("accept_chat_", "accept_chat_")
	assert.False(t, ok)
	_, ok = parseTrailingID("accept_chat_-3", "accept_chat_")
	assert.False(t, ok)
	_, ok = parseTrailingID("accept_chat_x", "accept_chat_")
	assert.False(t, ok)
}

func TestParseRateCallback(t *testing.T) {
	tests := []struct {
		data   string
		record int64
		rating int
		ok     bool
	}{
		{"rate_12_5", 12, 5, true},
		{"rate_3_1", 3, 1, true},
		{"rate_12", 0, 0, false},
		{"rate_12_5_9", 0, 0, false},
		{"rate_x_5", 0, 0, false},
		{"rate_0_5", 0, 0, false},
	}

	for _, tt := range tests {
		record, rating, ok := parseRateCallback(tt.data)
		assert.Equal(t, tt.ok, ok, "data: %s", tt.data)
		assert.Equal(t, tt.record, record, "data: %s", tt.data)
		assert.Equal(t, tt.rating, rating, "data: %s", tt.data)
	}
}

func TestParseCalendarPath(t *testing.T) {
	path, ok := parseCalendarPath("cal_month_2025_9", "cal_month_", 2)
	assert.True(t, ok)
	assert.Equal(t, []int{2025, 9}, path)

	path, ok = parseCalendarPath("cal_day_2025_9_14", "cal_day_", 3)
	assert.True(t, ok)
	assert.Equal(t, []int{2025, 9, 14}, path)

	_, ok = parseCalendarPath("cal_month_2025", "cal_month_", 2)
	assert.False(t, ok)
	_, ok = parseCalendarPath("cal_month_2025_x", "cal_month_", 2)
	assert.False(t, ok)
}

func TestRoleEntryLabel(t *testing.T) {
	assert.Equal(t, "Войти как клиент", roleEntryLabel("Войти как клиент", 0))
	assert.Equal(t, "Войти как клиент (3)", roleEntryLabel("Войти как клиент", 3))
}

func TestMainMenuRegistered(t *testing.T) {
	kb := mainMenuRegistered(2, 0)
	assert.Len(t, kb.Keyboard, 2)
	assert.Equal(t, "Войти как предоставитель услуги", kb.Keyboard[0][0].Text)
	assert.Equal(t, "Войти как клиент (2)", kb.Keyboard[1][0].Text)
}

func TestPageBounds(t *testing.T) {
	assert.Equal(t, 2, pageCount(9, 8))
	assert.Equal(t, 1, pageCount(8, 8))
	assert.Equal(t, 1, pageCount(1, 8))

	start, end := pageBounds(0, 8, 9)
	assert.Equal(t, 0, start)
	assert.Equal(t, 8, end)

	start, end = pageBounds(1, 8, 9)
	assert.Equal(t, 8, start)
	assert.Equal(t, 9, end)

	start, end = pageBounds(5, 8, 9)
	assert.Equal(t, 9, end)
	assert.LessOrEqual(t, start, end)
}

func TestRecordStatusLabel(t *testing.T) {
	assert.Equal(t, "Активна", recordStatusLabel(model.RecordActive))
	assert.Equal(t, "Завершена", recordStatusLabel(model.RecordCompleted))
	assert.Equal(t, "Отменена", recordStatusLabel(model.RecordCancelled))
}

func TestRecordPickerText(t *testing.T) {
	recs := []model.ServiceRecord{
		{ID: 5, ServiceName: "Стрижка", Date: "2025-09-14", Time: "10:00", ClientName: "Анна Иванова"},
		{ID: 7, ServiceName: "Маникюр", Date: "2025-09-15", Time: "12:30"},
	}

	text := recordPickerText("Выберите запись для завершения:", recs)
	assert.True(t, strings.HasPrefix(text, "Выберите запись для завершения:"))
	assert.Contains(t, text, "1. Стрижка — 14.09.2025 10:00")
	assert.Contains(t, text, "Клиент: Анна Иванова")
	assert.Contains(t, text, "2. Маникюр — 15.09.2025 12:30")
	assert.Contains(t, text, "Клиент: Клиент")
	assert.True(t, strings.HasSuffix(text, "Введите номер записи:"))
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "короткий текст", preview("короткий текст", 60))

	long := strings.Repeat("я", 80)
	clipped := preview(long, 60)
	assert.Equal(t, 60, len([]rune(clipped)))
	assert.True(t, strings.HasSuffix(clipped, "..."))
}

func TestStatsText(t *testing.T) {
	text := statsText(export.PeriodWeek, &storage.PeriodStats{Active: 2, Completed: 5, Cancelled: 1, Income: 7500})
	assert.Contains(t, text, "Статистика за неделю")
	assert.Contains(t, text, "Активных записей: 2")
	assert.Contains(t, text, "Завершено: 5")
	assert.Contains(t, text, "Отменено: 1")
	assert.Contains(t, text, "Доход (завершённые): 7500 руб.")
}

func TestMonthsKeyboard(t *testing.T) {
	kb := monthsKeyboard(2025, []int{1, 2, 9})

	// two per row plus back and menu rows
	assert.Len(t, kb.InlineKeyboard, 4)
	assert.Equal(t, "Январь", kb.InlineKeyboard[0][0].Text)
	assert.Equal(t, "Февраль", kb.InlineKeyboard[0][1].Text)
	assert.Equal(t, "Сентябрь", kb.InlineKeyboard[1][0].Text)
	assert.Equal(t, "cal_month_2025_9", *kb.InlineKeyboard[1][0].CallbackData)
	assert.Equal(t, "cal_back_year", *kb.InlineKeyboard[2][0].CallbackData)
	assert.Equal(t, "cal_menu", *kb.InlineKeyboard[3][0].CallbackData)
}

func TestYearsKeyboard(t *testing.T) {
	kb := yearsKeyboard([]int{2024, 2025})

	// newest year first, menu row last
	assert.Len(t, kb.InlineKeyboard, 3)
	assert.Equal(t, "2025", kb.InlineKeyboard[0][0].Text)
	assert.Equal(t, "cal_year_2025", *kb.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, "2024", kb.InlineKeyboard[1][0].Text)
	assert.Equal(t, "cal_menu", *kb.InlineKeyboard[2][0].CallbackData)
}

func TestDayGridKeyboard(t *testing.T) {
	t.Run("MondayStart", func(t *testing.T) {
		// September 2025 opens on a Monday
		kb := dayGridKeyboard(2025, 9, []storage.DayCount{{Day: 1, Records: 2}, {Day: 14, Records: 1}})

		header := kb.InlineKeyboard[0]
		assert.Equal(t, "Пн", header[0].Text)
		assert.Equal(t, "Вс", header[6].Text)
		assert.Equal(t, "ignore", *header[0].CallbackData)

		firstWeek := kb.InlineKeyboard[1]
		assert.Equal(t, "1 (2)", firstWeek[0].Text)
		assert.Equal(t, "cal_day_2025_9_1", *firstWeek[0].CallbackData)
		assert.Equal(t, "2", firstWeek[1].Text)

		secondWeek := kb.InlineKeyboard[2]
		assert.Equal(t, "14 (1)", secondWeek[6].Text)

		footer := kb.InlineKeyboard[len(kb.InlineKeyboard)-1]
		assert.Equal(t, "cal_back_month_2025", *footer[0].CallbackData)
		assert.Equal(t, "cal_menu", *footer[1].CallbackData)
	})

	t.Run("SundayStart", func(t *testing.T) {
		// December 2024 opens on a Sunday: six leading blanks
		kb := dayGridKeyboard(2024, 12, nil)

		firstWeek := kb.InlineKeyboard[1]
		for i := 0; i < 6; i++ {
			assert.Equal(t, "ignore", *firstWeek[i].CallbackData)
		}
		assert.Equal(t, "1", firstWeek[6].Text)

		// 31 days, trailing cells padded to a full week
		lastWeek := kb.InlineKeyboard[len(kb.InlineKeyboard)-2]
		assert.Len(t, lastWeek, 7)
		assert.Equal(t, "31", lastWeek[1].Text)
		assert.Equal(t, "ignore", *lastWeek[2].CallbackData)
	})
}
