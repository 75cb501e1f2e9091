// Package api exposes the operator HTTP surface: user history lookups and
// on-demand weather broadcasts.
package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"

	"tg_weather_bot/internal/config"
	"tg_weather_bot/internal/health"
	"tg_weather_bot/internal/logging"
)

const (
	appName      = "weather-bot"
	readTimeout  = 10 * time.Second
	writeTimeout = 60 * time.Second
)

// Server owns the fiber app and its listen address.
type Server struct {
	app    *fiber.App
	addr   string
	logger *logrus.Entry
}

// NewServer builds the fiber app with the API routes and /healthz mounted.
// The write timeout is generous because a broadcast responds only after every
// user has been attempted.
func NewServer(cfg config.Config, deps Deps, logger *logrus.Entry) *Server {
	if logger == nil {
		logger = logging.Logger()
	}

	app := fiber.New(fiber.Config{
		AppName:               appName,
		DisableStartupMessage: true,
		ReadTimeout:           readTimeout,
		WriteTimeout:          writeTimeout,
		ErrorHandler:          errorHandler(logger),
	})

	app.Use(recover.New())
	app.Use(requestLogger(logger))

	health.NewHandler(deps.Health, logger).Register(app)
	newRoutes(deps, logger).register(app)

	return &Server{
		app:    app,
		addr:   fmt.Sprintf(":%d", cfg.HTTPPort),
		logger: logger,
	}
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// ListenAndServe blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	s.logger.WithFields(logging.Fields{
		"event": "http_listen",
		"addr":  s.addr,
	}).Info("starting http server")

	if err := s.app.Listen(s.addr); err != nil {
		return fmt.Errorf("http server listen: %w", err)
	}

	s.logger.WithField("event", "http_stopped").Info("http server stopped")
	return nil
}

// Shutdown gracefully stops the server, waiting for in-flight requests until
// ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil || s.app == nil {
		return nil
	}

	return s.app.ShutdownWithContext(ctx)
}

func errorHandler(logger *logrus.Entry) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := "internal server error"

		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			code = fiberErr.Code
			message = fiberErr.Message
		}

		if code >= fiber.StatusInternalServerError {
			logger.WithFields(logging.Fields{
				"event":  "http_error",
				"method": c.Method(),
				"path":   c.Path(),
				"status": code,
			}).WithError(err).Error("request failed")
		}

		return c.Status(code).JSON(fiber.Map{"message": message})
	}
}

func requestLogger(logger *logrus.Entry) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		var fiberErr *fiber.Error
		if err != nil {
			status = fiber.StatusInternalServerError
			if errors.As(err, &fiberErr) {
				status = fiberErr.Code
			}
		}

		logger.WithFields(logging.Fields{
			"event":       "http_request",
			"method":      c.Method(),
			"path":        c.Path(),
			"status":      status,
			"duration_ms": time.Since(start).Milliseconds(),
		}).Debug("handled request")

		return err
	}
}
