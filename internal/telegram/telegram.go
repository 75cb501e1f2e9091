// Package telegram hosts the long-polling bot client and outbound sends.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"tg_weather_bot/internal/config"
	"tg_weather_bot/internal/domain"
	"tg_weather_bot/internal/logging"
)

type botAPI interface {
	Start(ctx context.Context)
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// EventHandler consumes inbound text messages.
type EventHandler interface {
	HandleEvent(ctx context.Context, event domain.InboundEvent) error
}

var (
	defaultAllowedUpdates = bot.AllowedUpdates{
		"message",
	}
	createBot = func(token string, options ...bot.Option) (botAPI, error) {
		return bot.New(token, options...)
	}
)

// Client wraps the Telegram bot instance and logging dependencies.
type Client struct {
	bot     botAPI
	logger  *logrus.Entry
	handler EventHandler
}

// NewClient initializes the Telegram bot with long polling and default handlers.
func NewClient(cfg config.Config, logger *logrus.Entry) (*Client, error) {
	if strings.TrimSpace(cfg.TelegramToken) == "" {
		return nil, errors.New("telegram token is required")
	}

	if logger == nil {
		logger = logging.Logger()
	}

	client := &Client{logger: logger}

	tgBot, err := createBot(cfg.TelegramToken,
		bot.WithAllowedUpdates(defaultAllowedUpdates),
		bot.WithDefaultHandler(client.handleUpdate),
		bot.WithErrorsHandler(errorHandler(logger)),
	)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot client: %w", err)
	}

	client.bot = tgBot

	return client, nil
}

// Start routes inbound messages to handler and receives updates via long
// polling until the context is canceled. Handlers share ctx, so cancellation
// also reaches in-flight lookups.
func (c *Client) Start(ctx context.Context, handler EventHandler) {
	if ctx == nil {
		ctx = context.Background()
	}

	c.handler = handler

	c.logger.WithFields(logging.Fields{
		"event":           "telegram_listen",
		"allowed_updates": defaultAllowedUpdates,
	}).Info("starting telegram long polling")

	c.bot.Start(ctx)

	c.logger.WithField("event", "telegram_stopped").Info("telegram polling stopped")
}

// SendText delivers reply to the chat. Failures are logged and returned.
func (c *Client) SendText(ctx context.Context, chatID int64, reply domain.Reply) error {
	if c == nil || c.bot == nil {
		return errors.New("telegram client is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	params := &bot.SendMessageParams{
		ChatID: chatID,
		Text:   reply.Text,
	}
	if reply.Markdown {
		params.ParseMode = models.ParseModeMarkdownV1
	}
	if len(reply.QuickReplies) > 0 {
		params.ReplyMarkup = replyKeyboard(reply.QuickReplies)
	}

	if _, err := c.bot.SendMessage(ctx, params); err != nil {
		c.logger.WithFields(logging.Fields{
			"event":   "telegram_send_error",
			"chat_id": chatID,
		}).WithError(err).Error("failed to send telegram message")
		return fmt.Errorf("send message to chat %d: %w", chatID, err)
	}

	return nil
}

func replyKeyboard(labels []string) *models.ReplyKeyboardMarkup {
	row := make([]models.KeyboardButton, 0, len(labels))
	for _, label := range labels {
		row = append(row, models.KeyboardButton{Text: label})
	}

	return &models.ReplyKeyboardMarkup{
		Keyboard:       [][]models.KeyboardButton{row},
		ResizeKeyboard: true,
	}
}

type updateMeta struct {
	userID     int64
	chatID     int64
	username   string
	text       string
	updateType string
}

func (c *Client) handleUpdate(ctx context.Context, _ *bot.Bot, update *models.Update) {
	if update == nil {
		return
	}

	meta := extractUpdateMeta(update)

	fields := logging.Fields{
		"event":       "telegram_update",
		"update_type": meta.updateType,
	}
	if meta.text != "" {
		fields["text"] = meta.text
	}
	if meta.userID != 0 {
		fields["user_id"] = meta.userID
	}
	if meta.chatID != 0 {
		fields["chat_id"] = meta.chatID
	}

	c.logger.WithFields(fields).Info("telegram update received")

	if meta.updateType != "message" || update.Message.Text == "" {
		return
	}

	if c.handler == nil {
		c.logger.WithField("event", "telegram_handler_missing").Warn("no event handler configured, dropping message")
		return
	}

	event := domain.InboundEvent{
		ChatID:       meta.chatID,
		FromUsername: meta.username,
		Text:         update.Message.Text,
	}

	if err := c.handler.HandleEvent(ctx, event); err != nil {
		c.logger.WithFields(logging.Fields{
			"event":   "telegram_handler_error",
			"chat_id": meta.chatID,
		}).WithError(err).Error("failed to handle telegram message")
	}
}

func extractUpdateMeta(update *models.Update) updateMeta {
	switch {
	case update.Message != nil:
		return updateMeta{
			userID:     userID(update.Message.From),
			chatID:     update.Message.Chat.ID,
			username:   username(update.Message.From),
			text:       strings.TrimSpace(update.Message.Text),
			updateType: "message",
		}
	case update.EditedMessage != nil:
		return updateMeta{
			userID:     userID(update.EditedMessage.From),
			chatID:     update.EditedMessage.Chat.ID,
			username:   username(update.EditedMessage.From),
			text:       strings.TrimSpace(update.EditedMessage.Text),
			updateType: "edited_message",
		}
	default:
		return updateMeta{updateType: "unknown"}
	}
}

func errorHandler(logger *logrus.Entry) bot.ErrorsHandler {
	if logger == nil {
		logger = logging.Logger()
	}

	return func(err error) {
		if err == nil {
			return
		}

		logger.WithField("event", "telegram_error").WithError(err).Error("telegram polling error")
	}
}

func userID(user *models.User) int64 {
	if user == nil {
		return 0
	}
	return user.ID
}

func username(user *models.User) string {
	if user == nil {
		return ""
	}
	return user.Username
}
