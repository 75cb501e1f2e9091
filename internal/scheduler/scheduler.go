// Package scheduler runs the periodic weather broadcast.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"tg_weather_bot/internal/feature/broadcast"
	"tg_weather_bot/internal/logging"
)

const jobTimeout = 10 * time.Minute

// Broadcaster sends weather for a city to every user.
type Broadcaster interface {
	SendToAll(ctx context.Context, city string) (broadcast.Summary, error)
}

// Scheduler wraps a cron runner holding a single broadcast job.
type Scheduler struct {
	cron   *cron.Cron
	logger *logrus.Entry
	city   string
	spec   string
	sender Broadcaster
	entry  cron.EntryID
}

// New registers a broadcast of city on the standard five-field cron spec.
// Overlapping runs are skipped rather than queued.
func New(spec, city string, sender Broadcaster, logger *logrus.Entry) (*Scheduler, error) {
	if logger == nil {
		logger = logging.Logger()
	}
	if sender == nil {
		return nil, errors.New("broadcaster is required")
	}

	spec = strings.TrimSpace(spec)
	city = strings.TrimSpace(city)
	if spec == "" || city == "" {
		return nil, errors.New("cron spec and city are required")
	}

	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		logger: logging.Component(logger, "scheduler"),
		city:   city,
		spec:   spec,
		sender: sender,
	}

	id, err := s.cron.AddFunc(spec, s.run)
	if err != nil {
		return nil, fmt.Errorf("parse cron spec %q: %w", spec, err)
	}
	s.entry = id

	return s, nil
}

// Start runs the cron loop in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()

	s.logger.WithFields(logging.Fields{
		"event":    "scheduler_started",
		"spec":     s.spec,
		"city":     s.city,
		"next_run": s.cron.Entry(s.entry).Next,
	}).Info("broadcast scheduler started")
}

// Stop prevents new runs and waits for a running broadcast to finish or for
// ctx to expire, whichever comes first.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()

	select {
	case <-done.Done():
		s.logger.WithField("event", "scheduler_stopped").Info("broadcast scheduler stopped")
	case <-ctx.Done():
		s.logger.WithField("event", "scheduler_stop_timeout").Warn("broadcast still running at shutdown")
	}
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	summary, err := s.sender.SendToAll(ctx, s.city)
	if err != nil {
		s.logger.WithFields(logging.Fields{
			"event": "scheduled_broadcast_error",
			"city":  s.city,
		}).WithError(err).Error("scheduled broadcast failed")
		return
	}

	s.logger.WithFields(logging.Fields{
		"event":     "scheduled_broadcast",
		"run_id":    summary.RunID,
		"city":      s.city,
		"attempted": summary.Attempted,
		"delivered": summary.Delivered,
		"failed":    summary.Failed,
	}).Info("scheduled broadcast finished")
}
