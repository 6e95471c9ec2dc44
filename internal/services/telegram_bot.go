package services

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Notifier delivers a short HTML message to a chat.
type Notifier interface {
	SendMessage(chatID int64, text string) error
}

type TelegramService struct {
	bot *tgbotapi.BotAPI
	log *zap.SugaredLogger
}

// NewTelegramService authorizes the bot token against the Telegram API.
func NewTelegramService(botToken string, log *zap.SugaredLogger) (*TelegramService, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("telegram auth failed: %w", err)
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	log.Infow("[tg][init] authorized", "bot", bot.Self.UserName)
	return &TelegramService{bot: bot, log: log}, nil
}

func (t *TelegramService) SendMessage(chatID int64, text string) error {
	if t == nil || t.bot == nil || chatID == 0 {
		return nil
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true

	if _, err := t.bot.Send(msg); err != nil {
		t.log.Warnw("[tg][send][err]", "chat_id", chatID, "error", err)
		return fmt.Errorf("telegram sendMessage failed: %w", err)
	}
	t.log.Debugw("[tg][send][ok]", "chat_id", chatID)
	return nil
}
