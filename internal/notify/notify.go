// Package notify delivers care reminders to the user.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

var ErrUnknownDriver = errors.New("unknown notify driver")

// Notification is one message. Key identifies what it is about so that
// repeats can be suppressed.
type Notification struct {
	Key   string
	Title string
	Body  string
}

// Notifier delivers a Notification.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Config selects and configures the driver.
type Config struct {
	Driver        string         `koanf:"driver" validate:"omitempty,oneof=none log telegram"`
	CheckSchedule string         `koanf:"check_schedule"`
	RatePerSec    float64        `koanf:"rate_per_sec" validate:"gte=0"`
	Telegram      TelegramConfig `koanf:"telegram"`
}

// Open builds the configured Notifier. An empty driver means log.
func Open(cfg Config, log *slog.Logger) (Notifier, error) {
	if log == nil {
		log = slog.Default()
	}
	switch cfg.Driver {
	case "", "log":
		return NewLog(log), nil
	case "none":
		return Nop{}, nil
	case "telegram":
		return NewTelegram(cfg.Telegram)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}

// Log writes notifications to a logger.
type Log struct {
	log *slog.Logger
}

func NewLog(log *slog.Logger) *Log {
	return &Log{log: log.With("component", "notify")}
}

func (l *Log) Notify(_ context.Context, n Notification) error {
	l.log.Info(n.Title, "key", n.Key, "body", n.Body)
	return nil
}

// Nop discards notifications.
type Nop struct{}

func (Nop) Notify(context.Context, Notification) error { return nil }
