package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/go-telegram/bot"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/candymint/internal/logger"
)

// TelegramSink sends mint notifications to one Telegram chat.
type TelegramSink struct {
	bot    *bot.Bot
	chatID string
	logger *zap.Logger
}

// NewTelegramSink creates a sink for chatID. Extra options (e.g. a custom
// server URL) are passed to the bot client.
func NewTelegramSink(token, chatID string, logger *zap.Logger, opts ...bot.Option) (*TelegramSink, error) {
	opts = append([]bot.Option{bot.WithSkipGetMe()}, opts...)
	b, err := bot.New(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return &TelegramSink{
		bot:    b,
		chatID: chatID,
		logger: logger.Named("telegram"),
	}, nil
}

// Deliver implements Sink.
func (t *TelegramSink) Deliver(ctx context.Context, n Notification) error {
	_, err := t.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: t.chatID,
		Text:   FormatText(n),
	})
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	t.logger.Debug("Notification sent", zap.String("tier", n.Tier))
	return nil
}

// FormatText renders n as a short plain-text message.
func FormatText(n Notification) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s\n%s", n.Tier, strings.ToUpper(string(n.Severity)), n.Message)
	if n.Signature != (solana.Signature{}) {
		fmt.Fprintf(&sb, "\ntx: %s", logger.ShortAddress(n.Signature.String()))
	}
	return sb.String()
}

var _ Sink = (*TelegramSink)(nil)
