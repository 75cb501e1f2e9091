// Package broadcast pushes weather for a city to every known user or to a
// single user on operator request.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"tg_weather_bot/internal/domain"
	"tg_weather_bot/internal/feature/lookup"
	"tg_weather_bot/internal/logging"
)

var (
	// ErrCityRequired is returned when a broadcast is requested without a city.
	ErrCityRequired = errors.New("city is required")
	// ErrDeliveryFailed wraps failures to hand the message to the chat
	// transport, as opposed to storage failures while loading recipients.
	ErrDeliveryFailed = errors.New("weather delivery failed")
)

// UserLister reads broadcast recipients.
type UserLister interface {
	List(ctx context.Context) ([]domain.User, error)
	GetByID(ctx context.Context, userID int64) (domain.User, error)
}

// Sender fetches weather and sends it to a chat without recording history.
type Sender interface {
	Send(ctx context.Context, chatID int64, city string) (lookup.Delivery, error)
}

// Summary reports the outcome of a fan-out. Delivered counts messages the
// chat transport accepted, including rendered provider errors; WeatherErrors
// counts how many of those carried an error text instead of a report.
type Summary struct {
	RunID         string `json:"runId"`
	City          string `json:"city"`
	Attempted     int    `json:"attempted"`
	Delivered     int    `json:"delivered"`
	Failed        int    `json:"failed"`
	WeatherErrors int    `json:"weatherErrors"`
}

// Service fans weather out to users. Recipients are processed sequentially so
// the weather provider sees at most one request per broadcast at a time.
// Broadcasts never write lookup history.
type Service struct {
	users   UserLister
	lookups Sender
	logger  *logrus.Entry
	newID   func() string
}

// NewService constructs a broadcast Service.
func NewService(users UserLister, lookups Sender, logger *logrus.Entry) *Service {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Service{
		users:   users,
		lookups: lookups,
		logger:  logger,
		newID:   func() string { return uuid.NewString() },
	}
}

// SendToAll delivers weather for city to every stored user. A failure for one
// user is logged and counted; the remaining users are still attempted. The
// returned error is non-nil only when the run could not start.
func (s *Service) SendToAll(ctx context.Context, city string) (Summary, error) {
	if err := s.ready(); err != nil {
		return Summary{}, err
	}

	city = strings.TrimSpace(city)
	if city == "" {
		return Summary{}, ErrCityRequired
	}

	users, err := s.users.List(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("list users: %w", err)
	}

	summary := Summary{RunID: s.newID(), City: city}
	log := logging.WithContext(s.logger, logging.Context{RunID: summary.RunID, City: city})

	log.WithFields(logging.Fields{
		"event":      "broadcast_started",
		"recipients": len(users),
	}).Info("broadcast started")

	for _, user := range users {
		if err := ctx.Err(); err != nil {
			log.WithError(err).WithField("event", "broadcast_cancelled").Warn("broadcast cancelled")
			break
		}

		summary.Attempted++

		delivery, err := s.lookups.Send(ctx, user.ChatID, city)
		if !delivery.Result.OK() {
			summary.WeatherErrors++
		}
		if !delivery.Sent {
			summary.Failed++
			log.WithFields(logging.Fields{
				"event":   "broadcast_delivery_error",
				"user_id": user.UserID,
				"chat_id": user.ChatID,
			}).WithError(err).Warn("broadcast delivery failed")
			continue
		}

		summary.Delivered++
	}

	log.WithFields(logging.Fields{
		"event":          "broadcast_finished",
		"attempted":      summary.Attempted,
		"delivered":      summary.Delivered,
		"failed":         summary.Failed,
		"weather_errors": summary.WeatherErrors,
	}).Info("broadcast finished")

	return summary, nil
}

// SendToUser sends weather for city to one stored user. It wraps
// domain.ErrNotFound when the user is unknown, in which case no lookup runs,
// and ErrDeliveryFailed when the message could not be sent. Other errors come
// from loading the user.
func (s *Service) SendToUser(ctx context.Context, userID int64, city string) (lookup.Delivery, error) {
	if err := s.ready(); err != nil {
		return lookup.Delivery{}, err
	}

	city = strings.TrimSpace(city)
	if city == "" {
		return lookup.Delivery{}, ErrCityRequired
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return lookup.Delivery{}, fmt.Errorf("load user %d: %w", userID, err)
	}

	delivery, err := s.lookups.Send(ctx, user.ChatID, city)
	if err != nil {
		return delivery, fmt.Errorf("%w: user %d: %w", ErrDeliveryFailed, userID, err)
	}

	return delivery, nil
}

func (s *Service) ready() error {
	if s == nil || s.users == nil || s.lookups == nil {
		return errors.New("broadcast service is not initialized")
	}
	return nil
}
