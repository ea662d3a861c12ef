// Package telegram delivers prompts and confirmations to a single Telegram
// chat and feeds button presses back into the engine.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/cashwatch/cashwatch/pkg/api"
	"github.com/cashwatch/cashwatch/pkg/engine"
)

// updateTimeout is the long-poll timeout in seconds. Kept short so callback
// latency stays well under a second.
const updateTimeout = 1

// errorBackoff is the fixed delay after a failed update cycle.
const errorBackoff = 5 * time.Second

// Notifier implements api.Notifier over the Telegram Bot API, addressing a
// single fixed chat.
type Notifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	logger *slog.Logger
}

// New authenticates the bot token and returns a notifier bound to chatID.
func New(token string, chatID int64, logger *slog.Logger) (*Notifier, error) {
	if logger == nil {
		logger = slog.Default()
	}

	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("creating telegram bot: %w", err)
	}

	logger.Info("telegram bot authorized", "username", bot.Self.UserName, "chat_id", chatID)
	return &Notifier{bot: bot, chatID: chatID, logger: logger}, nil
}

// Notify sends a plain text message.
func (n *Notifier) Notify(ctx context.Context, text string) error {
	_, err := n.send(ctx, tgbotapi.NewMessage(n.chatID, text))
	return err
}

// Prompt sends a message with one inline button per offered percent.
func (n *Notifier) Prompt(ctx context.Context, text string, percents []int, callbackData func(int) string) (int, error) {
	buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(percents))
	for _, p := range percents {
		buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("%d%%", p), callbackData(p)))
	}

	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(buttons)

	sent, err := n.send(ctx, msg)
	if err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

// Edit replaces a prompt's text and clears its buttons.
func (n *Notifier) Edit(ctx context.Context, messageID int, text string) error {
	edit := tgbotapi.NewEditMessageTextAndMarkup(n.chatID, messageID, text,
		tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}})
	_, err := n.send(ctx, edit)
	return err
}

// Ack answers a callback query so the client stops showing a spinner.
func (n *Notifier) Ack(ctx context.Context, callbackID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := n.bot.Request(tgbotapi.NewCallback(callbackID, "")); err != nil {
		return fmt.Errorf("answering callback: %w", err)
	}
	return nil
}

// send delivers a message with a short retry on Telegram rate limiting.
func (n *Notifier) send(ctx context.Context, c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if err := ctx.Err(); err != nil {
		return tgbotapi.Message{}, err
	}

	var sent tgbotapi.Message
	err := retry.Do(
		func() error {
			var err error
			sent, err = n.bot.Send(c)
			return err
		},
		retry.RetryIf(func(err error) bool {
			var apiErr *tgbotapi.Error
			if errors.As(err, &apiErr) && apiErr.Code == 429 {
				n.logger.Warn("telegram rate limited, retrying", "retry_after", apiErr.RetryAfter)
				return true
			}
			return false
		}),
		retry.Attempts(3),
		retry.Delay(2*time.Second),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return tgbotapi.Message{}, fmt.Errorf("sending telegram message: %w", err)
	}
	return sent, nil
}

// Listen long-polls for updates and hands rate button presses to handle,
// until the context is canceled. Presses from other chats and payloads this
// bot did not produce are ignored. Failures are logged and followed by a
// fixed backoff; the loop never dies.
func (n *Notifier) Listen(ctx context.Context, handle func(context.Context, api.ResponseEvent)) {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = updateTimeout

	updates := n.bot.GetUpdatesChan(cfg)
	defer n.bot.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			n.logger.Info("telegram listener stopping", "reason", ctx.Err())
			return
		case update, ok := <-updates:
			if !ok {
				n.logger.Error("telegram update channel closed")
				select {
				case <-ctx.Done():
				case <-time.After(errorBackoff):
				}
				updates = n.bot.GetUpdatesChan(cfg)
				continue
			}
			n.handleUpdate(ctx, update, handle)
		}
	}
}

func (n *Notifier) handleUpdate(ctx context.Context, update tgbotapi.Update, handle func(context.Context, api.ResponseEvent)) {
	cb := update.CallbackQuery
	if cb == nil {
		return
	}
	if cb.Message == nil || cb.Message.Chat == nil || cb.Message.Chat.ID != n.chatID {
		n.logger.Debug("ignoring callback from foreign chat")
		return
	}

	correlationID, percent, ok := engine.ParseCallbackData(cb.Data)
	if !ok {
		n.logger.Debug("ignoring unrecognized callback payload", "data", cb.Data)
		return
	}

	handle(ctx, api.ResponseEvent{
		CallbackID:    cb.ID,
		CorrelationID: correlationID,
		Percent:       percent,
	})
}
