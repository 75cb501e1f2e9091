// Package dispatch classifies inbound chat messages and carries out the
// matching bot action.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"tg_weather_bot/internal/domain"
	"tg_weather_bot/internal/feature/lookup"
	"tg_weather_bot/internal/logging"
)

// Commands and reply-keyboard labels recognised by the bot.
const (
	CommandStart   = "/start"
	CommandWeather = "/weather"

	ButtonKyiv = "Погода в Києві"
	ButtonLviv = "Погода у Львові"

	welcomeText = "Оберіть місто для отримання погоди або використовуйте команду `/weather Місто`."
	usageText   = "Введіть місто після команди /weather, наприклад: `/weather Kyiv`"
)

var buttonCities = map[string]string{
	ButtonKyiv: "Kyiv",
	ButtonLviv: "Lviv",
}

// Action is what the bot does in response to a message.
type Action int

const (
	ActionNone Action = iota
	ActionWelcome
	ActionUsage
	ActionLookup
)

func (a Action) String() string {
	switch a {
	case ActionWelcome:
		return "welcome"
	case ActionUsage:
		return "usage"
	case ActionLookup:
		return "lookup"
	default:
		return "none"
	}
}

// Command is a classified message. City is set for ActionLookup only.
type Command struct {
	Action Action
	City   string
}

// Classify maps message text to a Command. Matching is exact except for the
// "/weather <city>" form; first match wins. A "/weather " with nothing after
// it is answered with usage instead of an empty lookup.
func Classify(text string) Command {
	switch text {
	case CommandStart:
		return Command{Action: ActionWelcome}
	case CommandWeather:
		return Command{Action: ActionUsage}
	}

	if city, ok := buttonCities[text]; ok {
		return Command{Action: ActionLookup, City: city}
	}

	if strings.HasPrefix(text, CommandWeather+" ") {
		city := strings.TrimSpace(strings.TrimPrefix(text, CommandWeather))
		if city == "" {
			return Command{Action: ActionUsage}
		}
		return Command{Action: ActionLookup, City: city}
	}

	return Command{Action: ActionNone}
}

// Registrar upserts the sender of a message.
type Registrar interface {
	EnsureUser(ctx context.Context, profile domain.Profile) (int64, error)
}

// Deliverer runs a weather lookup for a user.
type Deliverer interface {
	Deliver(ctx context.Context, userID, chatID int64, city string) (lookup.Delivery, error)
}

// Dispatcher handles each inbound event independently; it keeps no
// conversation state.
type Dispatcher struct {
	users   Registrar
	lookups Deliverer
	sender  lookup.Sender
	logger  *logrus.Entry
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(users Registrar, lookups Deliverer, sender lookup.Sender, logger *logrus.Entry) *Dispatcher {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Dispatcher{
		users:   users,
		lookups: lookups,
		sender:  sender,
		logger:  logger,
	}
}

// HandleEvent registers the sender and performs the action for the message.
// Events without text are ignored. Unrecognised text produces no reply.
func (d *Dispatcher) HandleEvent(ctx context.Context, event domain.InboundEvent) error {
	if d == nil || d.users == nil || d.lookups == nil || d.sender == nil {
		return errors.New("dispatcher is not initialized")
	}
	if event.Text == "" {
		return nil
	}

	// Private chats map one-to-one to users, so the chat id doubles as the user id.
	userID, err := d.users.EnsureUser(ctx, domain.Profile{
		UserID:   event.ChatID,
		UserName: event.FromUsername,
		ChatID:   event.ChatID,
	})
	if err != nil {
		return fmt.Errorf("register user: %w", err)
	}

	cmd := Classify(event.Text)

	d.logger.WithFields(logging.Fields{
		"event":   "message_dispatched",
		"chat_id": event.ChatID,
		"action":  cmd.Action.String(),
	}).Debug("classified message")

	switch cmd.Action {
	case ActionWelcome:
		return d.sender.SendText(ctx, event.ChatID, domain.Reply{
			Text:         welcomeText,
			QuickReplies: []string{ButtonKyiv, ButtonLviv},
			Markdown:     true,
		})
	case ActionUsage:
		return d.sender.SendText(ctx, event.ChatID, domain.Reply{
			Text:     usageText,
			Markdown: true,
		})
	case ActionLookup:
		if _, err := d.lookups.Deliver(ctx, userID, event.ChatID, cmd.City); err != nil {
			return fmt.Errorf("weather lookup for %q: %w", cmd.City, err)
		}
		return nil
	default:
		return nil
	}
}
