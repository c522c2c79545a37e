package notify

import (
	"fmt"
	"log"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramMessenger delivers narration to a Telegram chat. Send-only:
// this system narrates, it does not converse.
type TelegramMessenger struct {
	Bot *tgbotapi.BotAPI
}

func NewTelegramMessenger(token string) (*TelegramMessenger, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}

	log.Printf("Authorized on account %s", bot.Self.UserName)

	return &TelegramMessenger{Bot: bot}, nil
}

func (tg *TelegramMessenger) Send(chatID string, text string) error {
	id := int64(0)
	fmt.Sscanf(chatID, "%d", &id)
	if id == 0 {
		return fmt.Errorf("invalid chat ID: %s", chatID)
	}

	msg := tgbotapi.NewMessage(id, text)
	msg.ParseMode = "HTML" // narration is sanitized HTML
	_, err := tg.Bot.Send(msg)
	return err
}
