package api

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"tg_weather_bot/internal/domain"
	"tg_weather_bot/internal/feature/broadcast"
	"tg_weather_bot/internal/feature/lookup"
	"tg_weather_bot/internal/health"
	"tg_weather_bot/internal/logging"
	"tg_weather_bot/internal/store"
)

var validate = validator.New()

// UserReader loads a single user.
type UserReader interface {
	GetByID(ctx context.Context, userID int64) (domain.User, error)
}

// HistoryReader loads a user's lookups, most recent first.
type HistoryReader interface {
	ListByUser(ctx context.Context, userID int64) ([]domain.WeatherLookup, error)
}

// Broadcaster sends weather on operator request.
type Broadcaster interface {
	SendToAll(ctx context.Context, city string) (broadcast.Summary, error)
	SendToUser(ctx context.Context, userID int64, city string) (lookup.Delivery, error)
}

// StatsReader reports collection sizes.
type StatsReader interface {
	Snapshot(ctx context.Context) (store.Stats, error)
}

// Deps are the services the HTTP surface calls into.
type Deps struct {
	Users     UserReader
	History   HistoryReader
	Broadcast Broadcaster
	Stats     StatsReader
	Health    health.MongoChecker
}

type routes struct {
	deps   Deps
	logger *logrus.Entry
}

func newRoutes(deps Deps, logger *logrus.Entry) *routes {
	return &routes{deps: deps, logger: logger}
}

func (r *routes) register(app *fiber.App) {
	api := app.Group("/api")

	api.Get("/users/:userId", r.getUser)
	api.Get("/stats", r.getStats)

	weather := api.Group("/weather")
	weather.Post("/sendWeatherToAll", r.sendToAll)
	weather.Post("/sendWeatherToUser/:userId", r.sendToUser)
}

type cityRequest struct {
	City string `json:"city" validate:"required"`
}

type userResponse struct {
	User           domain.User            `json:"user"`
	WeatherHistory []domain.WeatherLookup `json:"weatherHistory"`
}

type broadcastResponse struct {
	Message       string `json:"message"`
	RunID         string `json:"runId"`
	Attempted     int    `json:"attempted"`
	Delivered     int    `json:"delivered"`
	Failed        int    `json:"failed"`
	WeatherErrors int    `json:"weatherErrors"`
}

func (r *routes) getUser(c *fiber.Ctx) error {
	userID, err := parseUserID(c)
	if err != nil {
		return err
	}

	ctx := c.UserContext()

	user, err := r.deps.Users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "User not found")
		}
		return err
	}

	history, err := r.deps.History.ListByUser(ctx, userID)
	if err != nil {
		return err
	}

	return c.JSON(userResponse{User: user, WeatherHistory: history})
}

func (r *routes) getStats(c *fiber.Ctx) error {
	stats, err := r.deps.Stats.Snapshot(c.UserContext())
	if err != nil {
		return err
	}

	return c.JSON(stats)
}

func (r *routes) sendToAll(c *fiber.Ctx) error {
	req, err := bindCity(c)
	if err != nil {
		return err
	}

	summary, err := r.deps.Broadcast.SendToAll(c.UserContext(), req.City)
	if err != nil {
		if errors.Is(err, broadcast.ErrCityRequired) {
			return fiber.NewError(fiber.StatusBadRequest, "City is required")
		}
		return err
	}

	return c.JSON(broadcastResponse{
		Message:       "Weather sent to all users.",
		RunID:         summary.RunID,
		Attempted:     summary.Attempted,
		Delivered:     summary.Delivered,
		Failed:        summary.Failed,
		WeatherErrors: summary.WeatherErrors,
	})
}

func (r *routes) sendToUser(c *fiber.Ctx) error {
	userID, err := parseUserID(c)
	if err != nil {
		return err
	}

	req, err := bindCity(c)
	if err != nil {
		return err
	}

	_, err = r.deps.Broadcast.SendToUser(c.UserContext(), userID, req.City)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, "User not found")
	case errors.Is(err, broadcast.ErrCityRequired):
		return fiber.NewError(fiber.StatusBadRequest, "City is required")
	case errors.Is(err, broadcast.ErrDeliveryFailed):
		r.logger.WithFields(logging.Fields{
			"event":   "api_send_error",
			"user_id": userID,
			"city":    req.City,
		}).WithError(err).Warn("failed to deliver weather to user")
		return fiber.NewError(fiber.StatusBadGateway, "Failed to deliver weather to user")
	default:
		return err
	}

	return c.JSON(fiber.Map{"message": "Weather sent to user."})
}

func parseUserID(c *fiber.Ctx) (int64, error) {
	userID, err := strconv.ParseInt(c.Params("userId"), 10, 64)
	if err != nil || userID == 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "Invalid user id")
	}
	return userID, nil
}

func bindCity(c *fiber.Ctx) (cityRequest, error) {
	var req cityRequest
	if err := c.BodyParser(&req); err != nil {
		return req, fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	req.City = strings.TrimSpace(req.City)
	if err := validate.Struct(req); err != nil {
		return req, fiber.NewError(fiber.StatusBadRequest, "City is required")
	}

	return req, nil
}
