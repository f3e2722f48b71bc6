// Package telegram provides a client for sending notifications via Telegram Bot API.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// ParseModeMarkdownV2 is the only rich parse mode the client emits.
const ParseModeMarkdownV2 = tgbotapi.ModeMarkdownV2

// Client handles Telegram notifications.
type Client struct {
	bot       *tgbotapi.BotAPI
	chatID    int64
	parseMode string
}

type options struct {
	endpoint  string
	timeout   time.Duration
	parseMode string
}

// Option configures a Client.
type Option func(*options)

// WithEndpoint overrides the Bot API endpoint format, e.g. "http://host/bot%s/%s".
func WithEndpoint(endpoint string) Option {
	return func(o *options) {
		o.endpoint = endpoint
	}
}

// WithTimeout bounds each Bot API request.
func WithTimeout(timeout time.Duration) Option {
	return func(o *options) {
		o.timeout = timeout
	}
}

// WithParseMode sets the parse mode of notifications. Empty means plain text.
func WithParseMode(mode string) Option {
	return func(o *options) {
		o.parseMode = mode
	}
}

// NewClient creates a new Telegram client. The chat ID is validated before the
// bot token is checked against the API.
func NewClient(botToken, chatID string, opts ...Option) (*Client, error) {
	chatIDInt, err := strconv.ParseInt(strings.TrimSpace(chatID), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}
	if botToken == "" {
		return nil, errors.New("bot token is required")
	}

	o := options{
		endpoint:  tgbotapi.APIEndpoint,
		timeout:   10 * time.Second,
		parseMode: ParseModeMarkdownV2,
	}
	for _, opt := range opts {
		opt(&o)
	}

	bot, err := tgbotapi.NewBotAPIWithClient(botToken, o.endpoint, &http.Client{Timeout: o.timeout})
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	return &Client{
		bot:       bot,
		chatID:    chatIDInt,
		parseMode: o.parseMode,
	}, nil
}

// ParseMode returns the parse mode notifications are sent with.
func (c *Client) ParseMode() string {
	return c.parseMode
}

// Notify sends text to the configured chat once. It returns early if ctx is
// done before the Bot API answers.
func (c *Client) Notify(ctx context.Context, text string) error {
	return c.send(ctx, text, c.parseMode)
}

// SendError sends a run failure notification.
func (c *Client) SendError(runErr error) error {
	text := fmt.Sprintf("⚠️ *Market snapshot failed*\n`%s`", EscapeMarkdownV2(runErr.Error()))
	return c.send(context.Background(), text, ParseModeMarkdownV2)
}

func (c *Client) send(ctx context.Context, text, parseMode string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = parseMode
	msg.DisableWebPagePreview = true

	done := make(chan error, 1)
	go func() {
		_, err := c.bot.Send(msg)
		done <- err
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("telegram send: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("telegram send: %w", err)
		}
		return nil
	}
}

// EscapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func EscapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4) // pre-allocate with room for escapes
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
