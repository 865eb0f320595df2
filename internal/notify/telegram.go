package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"
)

type TelegramConfig struct {
	Token  string `koanf:"token"`
	ChatID int64  `koanf:"chat_id"`

	// APIURL overrides the Bot API endpoint.
	APIURL  string        `koanf:"api_url"`
	Timeout time.Duration `koanf:"timeout"`
}

// Telegram sends notifications to one chat through a bot.
type Telegram struct {
	bot  *tele.Bot
	chat *tele.Chat
}

// NewTelegram builds the bot without contacting Telegram; a bad token
// surfaces on the first send.
func NewTelegram(cfg TelegramConfig) (*Telegram, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat_id is not set")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		URL:     cfg.APIURL,
		Token:   cfg.Token,
		Offline: true,
		Client:  &http.Client{Timeout: cfg.Timeout},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return &Telegram{bot: b, chat: &tele.Chat{ID: cfg.ChatID}}, nil
}

func (t *Telegram) Notify(ctx context.Context, n Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	text := "<b>" + html.EscapeString(n.Title) + "</b>"
	if n.Body != "" {
		text += "\n" + html.EscapeString(n.Body)
	}
	_, err := t.bot.Send(t.chat, text, &tele.SendOptions{
		ParseMode:             tele.ModeHTML,
		DisableWebPagePreview: true,
	})
	if err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	return nil
}
