// Package telegram sends attendance polls and decodes the updates Telegram
// posts back to the webhook.
package telegram

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/warp/sholat-ledger/attendance"
)

// Dispatcher delivers a poll to the group chat.
type Dispatcher interface {
	SendPoll(ctx context.Context, question string, options []string) (Sent, error)
}

// Sent identifies a delivered poll.
type Sent struct {
	PollID    string
	ChatID    int64
	MessageID int
}

// ErrNoPoll is returned when Telegram accepted the message but echoed no poll.
var ErrNoPoll = errors.New("telegram returned no poll")

// api is the subset of *tgbotapi.BotAPI the bot uses.
type api interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Bot is a Dispatcher backed by the Bot API.
type Bot struct {
	api    api
	chatID int64
	logger *zap.Logger
}

// NewBot logs in with token. Polls go to chatID.
func NewBot(token string, chatID int64, logger *zap.Logger) (*Bot, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: TELEGRAM_BOT_TOKEN not configured", attendance.ErrConfiguration)
	}
	if chatID == 0 {
		return nil, fmt.Errorf("%w: TELEGRAM_CHAT_ID not configured", attendance.ErrConfiguration)
	}
	botAPI, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram login: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("telegram bot ready", zap.String("username", botAPI.Self.UserName))
	return &Bot{api: botAPI, chatID: chatID, logger: logger}, nil
}

// SendPoll posts a non-anonymous, single-answer poll.
func (b *Bot) SendPoll(ctx context.Context, question string, options []string) (Sent, error) {
	if err := ctx.Err(); err != nil {
		return Sent{}, err
	}
	cfg := tgbotapi.NewPoll(b.chatID, question, options...)
	cfg.IsAnonymous = false
	cfg.AllowsMultipleAnswers = false

	msg, err := b.api.Send(cfg)
	if err != nil {
		return Sent{}, fmt.Errorf("send poll: %w", err)
	}
	if msg.Poll == nil {
		return Sent{}, ErrNoPoll
	}
	b.logger.Info("poll sent",
		zap.String("poll_id", msg.Poll.ID),
		zap.Int64("chat_id", b.chatID),
		zap.Int("message_id", msg.MessageID))
	return Sent{PollID: msg.Poll.ID, ChatID: b.chatID, MessageID: msg.MessageID}, nil
}

// SetWebhook registers url as the update endpoint.
func (b *Bot) SetWebhook(url string) error {
	wh, err := tgbotapi.NewWebhook(url)
	if err != nil {
		return fmt.Errorf("%w: webhook url %q: %v", attendance.ErrConfiguration, url, err)
	}
	wh.AllowedUpdates = []string{"poll_answer", "poll"}
	if _, err := b.api.Request(wh); err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}
	b.logger.Info("webhook registered", zap.String("url", url))
	return nil
}
