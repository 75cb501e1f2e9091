// Package lookup performs a weather lookup for a user: fetch, record, deliver.
package lookup

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"tg_weather_bot/internal/domain"
	"tg_weather_bot/internal/logging"
	"tg_weather_bot/internal/weather"
)

// Fetcher retrieves current weather for a city.
type Fetcher interface {
	Fetch(ctx context.Context, city string) weather.Result
}

// Recorder appends a lookup to the user's history.
type Recorder interface {
	Record(ctx context.Context, lookup domain.WeatherLookup) (domain.WeatherLookup, error)
}

// Sender delivers a reply to a chat.
type Sender interface {
	SendText(ctx context.Context, chatID int64, reply domain.Reply) error
}

// Delivery describes what happened during one lookup.
type Delivery struct {
	Result   weather.Result
	Recorded bool
	Sent     bool
}

// Service runs lookups. It holds no per-user state and is safe for concurrent use.
type Service struct {
	fetcher  Fetcher
	recorder Recorder
	sender   Sender
	logger   *logrus.Entry
}

// NewService constructs a lookup Service.
func NewService(fetcher Fetcher, recorder Recorder, sender Sender, logger *logrus.Entry) *Service {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Service{
		fetcher:  fetcher,
		recorder: recorder,
		sender:   sender,
		logger:   logger,
	}
}

// Deliver fetches weather for city, records the outcome for userID and sends
// the rendered text to chatID. The record and the send are independent: both
// are attempted and their errors are joined.
func (s *Service) Deliver(ctx context.Context, userID, chatID int64, city string) (Delivery, error) {
	if s == nil || s.fetcher == nil || s.recorder == nil || s.sender == nil {
		return Delivery{}, errors.New("lookup service is not initialized")
	}

	log := logging.WithContext(s.logger, logging.Context{UserID: userID, ChatID: chatID, City: city})

	result := s.fetcher.Fetch(ctx, city)
	delivery := Delivery{Result: result}

	var recordErr error
	if _, err := s.recorder.Record(ctx, domain.WeatherLookup{
		UserID:  userID,
		City:    city,
		Summary: result.Text(),
		Failed:  !result.OK(),
	}); err != nil {
		recordErr = fmt.Errorf("record lookup: %w", err)
		log.WithField("event", "lookup_record_error").
			WithError(err).
			Error("failed to record weather lookup")
	} else {
		delivery.Recorded = true
	}

	sendErr := s.send(ctx, chatID, &delivery)

	log.WithFields(logging.Fields{
		"event":    "lookup_delivered",
		"ok":       result.OK(),
		"recorded": delivery.Recorded,
		"sent":     delivery.Sent,
	}).Info("weather lookup processed")

	return delivery, errors.Join(recordErr, sendErr)
}

// Send fetches weather for city and sends it to chatID without touching the
// lookup history. The only error it returns is a failed send.
func (s *Service) Send(ctx context.Context, chatID int64, city string) (Delivery, error) {
	if s == nil || s.fetcher == nil || s.sender == nil {
		return Delivery{}, errors.New("lookup service is not initialized")
	}

	delivery := Delivery{Result: s.fetcher.Fetch(ctx, city)}
	err := s.send(ctx, chatID, &delivery)

	logging.WithContext(s.logger, logging.Context{ChatID: chatID, City: city, Event: "lookup_sent"}).
		WithFields(logging.Fields{
			"ok":   delivery.Result.OK(),
			"sent": delivery.Sent,
		}).Info("weather sent without recording")

	return delivery, err
}

func (s *Service) send(ctx context.Context, chatID int64, delivery *Delivery) error {
	if err := s.sender.SendText(ctx, chatID, domain.Reply{Text: delivery.Result.Text()}); err != nil {
		return err
	}
	delivery.Sent = true
	return nil
}
