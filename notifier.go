package main

import (
	"log"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Notifier pushes order outcomes to Telegram. Optional: without a bot token
// NewNotifier returns nil and every method is a no-op on the nil receiver.
type Notifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

func NewNotifier(token string, chatID int64) *Notifier {
	if token == "" {
		return nil
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		log.Printf("⚠️ Failed to init Telegram bot: %v. Notifications disabled.", err)
		return nil
	}
	if chatID == 0 {
		log.Println("⚠️ TELEGRAM_CHAT_ID not set. Notifications disabled.")
		return nil
	}
	log.Printf("✅ Telegram notifier authorized as %s", bot.Self.UserName)
	return &Notifier{bot: bot, chatID: chatID}
}

// Notify sends one Markdown message. Fire-and-forget: delivery failures are
// logged, never propagated into the order path.
func (n *Notifier) Notify(text string) {
	if n == nil {
		return
	}
	go func() {
		msg := tgbotapi.NewMessage(n.chatID, text)
		msg.ParseMode = tgbotapi.ModeMarkdown
		if _, err := n.bot.Send(msg); err != nil {
			log.Printf("⚠️ Telegram send failed: %v", err)
		}
	}()
}
