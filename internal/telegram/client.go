// Package telegram provides a client for sending notifications via Telegram Bot API.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rewired-gh/spendcast/internal/models"
)

// QuoteFunc answers a /quote command.
type QuoteFunc func(pair string) (*models.Quote, error)

// Client handles Telegram notifications.
type Client struct {
	bot            *tgbotapi.BotAPI
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
	quote          QuoteFunc
}

// NewClient creates a new Telegram client.
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}

	return &Client{
		bot:            bot,
		chatID:         chatIDInt,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}, nil
}

// WithQuotes enables the /quote command.
func (c *Client) WithQuotes(fn QuoteFunc) *Client {
	c.quote = fn
	return c
}

// ListenForCommands starts a goroutine that polls for Telegram updates and handles bot commands.
// It returns immediately; the goroutine stops when ctx is cancelled.
func (c *Client) ListenForCommands(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := c.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.bot.StopReceivingUpdates()
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message != nil && update.Message.IsCommand() {
					c.handleCommand(update.Message)
				}
			}
		}
	}()
}

func (c *Client) handleCommand(msg *tgbotapi.Message) {
	text := commandReply(msg.Command(), msg.CommandArguments(), c.quote)
	if text == "" {
		return
	}
	reply := tgbotapi.NewMessage(msg.Chat.ID, text)
	reply.ParseMode = "MarkdownV2"
	c.bot.Send(reply) //nolint:errcheck
}

// commandReply returns the MarkdownV2 reply for a command, or "" to ignore it.
func commandReply(command, args string, quote QuoteFunc) string {
	switch command {
	case "ping":
		return "Pong"
	case "quote":
		if quote == nil {
			return ""
		}
		pair := strings.TrimSpace(args)
		if pair == "" {
			return escapeMarkdownV2("Usage: /quote BASE/QUOTE")
		}
		q, err := quote(pair)
		if err != nil {
			return fmt.Sprintf("⚠️ `%s`", escapeMarkdownV2(err.Error()))
		}
		return formatQuote(q)
	}
	return ""
}

// sendMarkdownV2 sends a MarkdownV2 message with linear-backoff retry.
func (c *Client) sendMarkdownV2(text string) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = "MarkdownV2"

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		if _, err := c.bot.Send(msg); err == nil {
			return nil
		} else {
			lastErr = err
		}
		time.Sleep(c.retryDelayBase * time.Duration(i+1))
	}
	return fmt.Errorf("failed after %d retries: %w", c.maxRetries, lastErr)
}

// SendError sends a monitoring error notification.
// Call this only on the first occurrence of a consecutive error sequence.
func (c *Client) SendError(cycleErr error) error {
	text := fmt.Sprintf("⚠️ *Budget monitor error*\n`%s`", escapeMarkdownV2(cycleErr.Error()))
	return c.sendMarkdownV2(text)
}

// SendRecovery sends a recovery notification after consecutive failures.
func (c *Client) SendRecovery(failureCount int) error {
	text := fmt.Sprintf("✅ *Budget monitor recovered* after %d consecutive failure\\(s\\)", failureCount)
	return c.sendMarkdownV2(text)
}

// Send sends a notification with the budgets forecast to overrun.
func (c *Client) Send(alerts []models.BudgetAlert) error {
	return c.sendMarkdownV2(formatMessage(alerts))
}

// formatMessage formats budget alerts into a Telegram MarkdownV2 message.
func formatMessage(alerts []models.BudgetAlert) string {
	var b strings.Builder
	b.WriteString("🚨 *Budgets forecast to overrun*\n\n")

	if len(alerts) > 0 {
		dateStr := escapeMarkdownV2(alerts[0].DetectedAt.Format("2006-01-02 15:04:05"))
		fmt.Fprintf(&b, "📅 Evaluated: %s\n\n", dateStr)
	}

	for i, alert := range alerts {
		p := alert.Prediction
		name := escapeMarkdownV2(alert.BudgetName)
		category := escapeMarkdownV2(alert.Category)

		fmt.Fprintf(&b, "%d\\. *%s* \\(%s\\)\n", i+1, name, category)

		total := escapeMarkdownV2(fmt.Sprintf("%.2f %s", p.PredictedTotal, alert.Currency))
		limit := escapeMarkdownV2(fmt.Sprintf("%.2f %s", alert.BudgetAmount, alert.Currency))
		fmt.Fprintf(&b, "   💸 forecast %s of %s\n", total, limit)

		over := escapeMarkdownV2(fmt.Sprintf("+%.2f (%.1f%%)", p.PredictedExceed, alert.ExceedRatio*100))
		conf := escapeMarkdownV2(fmt.Sprintf("%.0f%%", p.Confidence*100))
		fmt.Fprintf(&b, "   📈 *%s* over, confidence %s\n\n", over, conf)
	}

	return b.String()
}

func formatQuote(q *models.Quote) string {
	rate := escapeMarkdownV2(fmt.Sprintf("%.6f", q.Rate))
	conf := escapeMarkdownV2(fmt.Sprintf("%.2f%%", q.Confidence*100))
	return fmt.Sprintf("💱 *%s* %s\nconfidence %s from %d source\\(s\\)",
		escapeMarkdownV2(q.Pair), rate, conf, q.Sources)
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4) // pre-allocate with room for escapes
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
