package bot

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/Ilyushechek/secretar/internal/metrics"
	"github.com/Ilyushechek/secretar/internal/model"
	"github.com/Ilyushechek/secretar/internal/notify"
	"github.com/Ilyushechek/secretar/internal/session"
	"github.com/Ilyushechek/secretar/internal/storage"
)

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID
	if err := b.sessions.Clear(ctx, userID); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Int64("user_id", userID).Msg("session clear failed")
	}
	exists, err := b.store.UserExists(ctx, userID)
	if err != nil {
		b.reply(ctx, msg.Chat.ID, copyGenericError)
		return
	}
	if !exists {
		b.replyWithKeyboard(ctx, msg.Chat.ID, "Добро пожаловать! Зарегистрируйтесь, чтобы начать.", mainMenuUnregistered)
		return
	}
	b.sendMainMenu(ctx, msg.Chat.ID, userID, "Выберите действие:")
}

func (b *Bot) startRegistration(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID
	exists, err := b.store.UserExists(ctx, userID)
	if err != nil {
		b.reply(ctx, msg.Chat.ID, copyGenericError)
		return
	}
	if exists {
		b.sendMainMenu(ctx, msg.Chat.ID, userID, "Вы уже зарегистрированы!")
		return
	}
	if err := b.sessions.Set(ctx, userID, stateFirstName, nil); err != nil {
		b.reply(ctx, msg.Chat.ID, copyGenericError)
		return
	}
	b.replyWithKeyboard(ctx, msg.Chat.ID, "Введите ваше имя:", cancelMenu)
}

func (b *Bot) handleFirstName(ctx context.Context, msg *tgbotapi.Message, text string) {
	if text == "" {
		b.replyWithKeyboard(ctx, msg.Chat.ID, "Введите ваше имя:", cancelMenu)
		return
	}
	patch := map[string]string{payloadFirstName: text}
	if err := b.sessions.Set(ctx, msg.From.ID, stateLastName, patch); err != nil {
		b.reply(ctx, msg.Chat.ID, copyGenericError)
		return
	}
	b.replyWithKeyboard(ctx, msg.Chat.ID, "Введите вашу фамилию:", cancelMenu)
}

func (b *Bot) handleLastName(ctx context.Context, msg *tgbotapi.Message, sess *session.Session, text string) {
	if text == "" {
		b.replyWithKeyboard(ctx, msg.Chat.ID, "Введите вашу фамилию:", cancelMenu)
		return
	}
	userID := msg.From.ID
	user, err := b.store.CreateUser(ctx, userID, sess.Value(payloadFirstName), text)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Int64("user_id", userID).Msg("user create failed")
		b.reply(ctx, msg.Chat.ID, copyGenericError)
		return
	}
	if err := b.sessions.Clear(ctx, userID); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Int64("user_id", userID).Msg("session clear failed")
	}
	done := tgbotapi.NewMessage(msg.Chat.ID, fmt.Sprintf("✅ Регистрация завершена!\nВаш персональный ID: <b>%s</b>", user.PublicCode))
	done.ParseMode = tgbotapi.ModeHTML
	done.ReplyMarkup = mainMenuRegistered(0, 0)
	if err := b.send(ctx, done); err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Int64("chat_id", msg.Chat.ID).Msg("reply failed")
	}
}

// enterRole flushes the queued notifications for the chosen role and drops
// the user at the role menu. Delivery precedes the drain so a crash between
// the two re-delivers instead of losing messages.
func (b *Bot) enterRole(ctx context.Context, msg *tgbotapi.Message, role model.Role) {
	userID := msg.From.ID
	chatID := msg.Chat.ID

	if _, err := b.store.GetUser(ctx, userID); err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			b.replyWithKeyboard(ctx, chatID, "Вы не зарегистрированы. Сначала зарегистрируйтесь.", mainMenuUnregistered)
			return
		}
		b.reply(ctx, chatID, copyGenericError)
		return
	}

	pending, err := b.queue.Pending(ctx, userID, role)
	if err != nil {
		b.reply(ctx, chatID, copyGenericError)
		return
	}
	if len(pending) > 0 {
		b.reply(ctx, chatID, "У вас есть непрочитанные уведомления:")
		for _, n := range pending {
			b.deliverNotification(ctx, chatID, n.Text)
		}
		if err := b.queue.Drain(ctx, userID, role); err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Int64("user_id", userID).Msg("notification drain failed")
		}
		metrics.AddNotificationsDelivered(len(pending))
	}

	b.resetToRole(ctx, userID, role)
	b.replyWithKeyboard(ctx, chatID, fmt.Sprintf("✅ Добро пожаловать, %s!", role.Title()), b.roleMenu(role))
}

// deliverNotification sends one queued text as HTML; when the markup does
// not render it falls back to a stripped plain-text copy.
func (b *Bot) deliverNotification(ctx context.Context, chatID int64, text string) {
	text = notify.Truncate(text)
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	err := b.send(ctx, msg)
	if err == nil || errors.Is(err, ErrRecipientUnreachable) {
		return
	}
	plain := tgbotapi.NewMessage(chatID, notify.StripMarkup(text))
	if err := b.send(ctx, plain); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Int64("chat_id", chatID).Msg("notification delivery failed")
	}
}

func (b *Bot) logout(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID
	if err := b.sessions.Clear(ctx, userID); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Int64("user_id", userID).Msg("session clear failed")
	}
	exists, err := b.store.UserExists(ctx, userID)
	if err != nil {
		b.reply(ctx, msg.Chat.ID, copyGenericError)
		return
	}
	if !exists {
		b.replyWithKeyboard(ctx, msg.Chat.ID, "Вы в главном меню.", mainMenuUnregistered)
		return
	}
	b.sendMainMenu(ctx, msg.Chat.ID, userID, "Вы вышли из аккаунта.")
}
