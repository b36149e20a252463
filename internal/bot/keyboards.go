package bot

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Ilyushechek/secretar/internal/reviews"
)

// Button labels double as dispatch keys in handleMessage, so they live in
// one place.
const (
	btnRegister       = "Зарегистрироваться"
	btnEnterProvider  = "Войти как предоставитель услуги"
	btnEnterClient    = "Войти как клиент"
	btnLogout         = "Выйти из аккаунта"
	btnMenu           = "В меню"
	btnContactMaster  = "Связаться с мастером"
	btnCalendar       = "Календарь"
	btnHistory        = "История записей"
	btnRepeatRequest  = "Повторная запись"
	btnAddRecord      = "Добавить запись"
	btnCompleteRecord = "Завершить услугу"
	btnCancelRecord   = "Отменить запись"
	btnStatistics     = "Статистика"
	btnRequests       = "📥 Запросы"
	btnEndChat        = "Завершить чат"
	btnYes            = "✅ Да"
	btnNo             = "❌ Нет"
	btnAcceptRequest  = "✅ Принять"
	btnRejectRequest  = "❌ Отклонить"
	btnRecordFromReq  = "📄 Создать запись"
)

var (
	mainMenuUnregistered = tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnRegister),
		),
	)

	clientMenu = tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnContactMaster),
			tgbotapi.NewKeyboardButton(btnCalendar),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnHistory),
			tgbotapi.NewKeyboardButton(btnRepeatRequest),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnLogout),
		),
	)

	providerMenu = tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnAddRecord),
			tgbotapi.NewKeyboardButton(btnCompleteRecord),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnCancelRecord),
			tgbotapi.NewKeyboardButton(btnStatistics),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnRequests),
			tgbotapi.NewKeyboardButton(btnCalendar),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnLogout),
		),
	)

	chatActiveMenu = tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnEndChat),
		),
	)

	cancelMenu = tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnMenu),
		),
	)

	yesNoMenu = tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnYes),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnNo),
		),
	)

	statsPeriodMenu = tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("📊 За день"),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("📅 За неделю"),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("📆 За месяц"),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnMenu),
		),
	)

	requestActionMenu = tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnAcceptRequest),
			tgbotapi.NewKeyboardButton(btnRejectRequest),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnRecordFromReq),
			tgbotapi.NewKeyboardButton(btnMenu),
		),
	)
)

// mainMenuRegistered labels the role entry buttons with unread counts so
// the user sees waiting notifications before picking a role.
func mainMenuRegistered(clientUnread, providerUnread int) tgbotapi.ReplyKeyboardMarkup {
	return tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(roleEntryLabel(btnEnterProvider, providerUnread)),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(roleEntryLabel(btnEnterClient, clientUnread)),
		),
	)
}

func roleEntryLabel(base string, unread int) string {
	if unread <= 0 {
		return base
	}
	return fmt.Sprintf("%s (%d)", base, unread)
}

func chatRequestKeyboard(chatID int64) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Принять", fmt.Sprintf("accept_chat_%d", chatID)),
			tgbotapi.NewInlineKeyboardButtonData("❌ Отклонить", fmt.Sprintf("reject_chat_%d", chatID)),
		),
	)
}

func recordOfferKeyboard(chatID int64) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Да", fmt.Sprintf("create_record_yes_%d", chatID)),
			tgbotapi.NewInlineKeyboardButtonData("❌ Нет", fmt.Sprintf("create_record_no_%d", chatID)),
		),
	)
}

// ratingKeyboard offers one button per score, one press is the whole review.
func ratingKeyboard(recordID int64) tgbotapi.InlineKeyboardMarkup {
	row := make([]tgbotapi.InlineKeyboardButton, 0, 5)
	for score := 1; score <= 5; score++ {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(
			reviews.Stars(score),
			fmt.Sprintf("rate_%d_%d", recordID, score),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(row)
}
