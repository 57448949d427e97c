package notify

import (
	"context"
	"fmt"
	"html"
	"log/slog"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// Notifier pushes a short alert about a message
type Notifier interface {
	Notify(ctx context.Context, alert Alert) error
}

// Alert is the content of a notification
type Alert struct {
	Kind    string
	From    string
	Subject string
	Reason  string
}

// Telegram sends alerts to a single chat through the Bot API
type Telegram struct {
	bot    *bot.Bot
	chatID int64
	logger *slog.Logger
}

// TelegramConfig holds bot credentials
type TelegramConfig struct {
	Token     string
	ChatID    int64
	ServerURL string
}

// NewTelegram creates a Telegram notifier
func NewTelegram(config TelegramConfig, logger *slog.Logger) (*Telegram, error) {
	if config.Token == "" {
		return nil, fmt.Errorf("telegram token is required")
	}
	if config.ChatID == 0 {
		return nil, fmt.Errorf("telegram chat id is required")
	}

	opts := []bot.Option{bot.WithSkipGetMe()}
	if config.ServerURL != "" {
		opts = append(opts, bot.WithServerURL(config.ServerURL))
	}

	tgBot, err := bot.New(config.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	return &Telegram{
		bot:    tgBot,
		chatID: config.ChatID,
		logger: logger.With("component", "telegram"),
	}, nil
}

// Notify sends alert to the configured chat
func (t *Telegram) Notify(ctx context.Context, alert Alert) error {
	params := &bot.SendMessageParams{
		ChatID:    t.chatID,
		Text:      FormatAlert(alert),
		ParseMode: models.ParseModeHTML,
	}

	if _, err := t.bot.SendMessage(ctx, params); err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}

	t.logger.Debug("Sent notification", "kind", alert.Kind, "from", alert.From)
	return nil
}

// FormatAlert renders alert as Telegram HTML
func FormatAlert(alert Alert) string {
	text := fmt.Sprintf("<b>%s</b>\nFrom: %s\nSubject: %s",
		html.EscapeString(alert.Kind),
		html.EscapeString(alert.From),
		html.EscapeString(alert.Subject))
	if alert.Reason != "" {
		text += "\n<i>" + html.EscapeString(alert.Reason) + "</i>"
	}
	return text
}
