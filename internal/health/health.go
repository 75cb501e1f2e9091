// Package health serves the /healthz endpoint used by container orchestration.
package health

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"tg_weather_bot/internal/logging"
)

const (
	Path             = "/healthz"
	mongoPingTimeout = 2 * time.Second
)

// MongoChecker defines the subset of MongoDB client behavior required for health.
type MongoChecker interface {
	Ping(ctx context.Context) error
}

// Handler answers health checks. It always responds 200 and reports a
// degraded status when Mongo cannot be reached.
type Handler struct {
	logger       *logrus.Entry
	mongoChecker MongoChecker
}

type response struct {
	Status string `json:"status"`
	Mongo  string `json:"mongo,omitempty"`
}

// NewHandler constructs a health Handler.
func NewHandler(mongoChecker MongoChecker, logger *logrus.Entry) *Handler {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Handler{
		logger:       logger,
		mongoChecker: mongoChecker,
	}
}

// Register mounts GET /healthz on the router.
func (h *Handler) Register(router fiber.Router) {
	router.Get(Path, h.handleHealth)
}

func (h *Handler) handleHealth(c *fiber.Ctx) error {
	resp := response{Status: "ok"}

	if err := h.pingMongo(c.UserContext()); err != nil {
		resp.Status = "degraded"
		resp.Mongo = "error"
	}

	return c.JSON(resp)
}

func (h *Handler) pingMongo(ctx context.Context) error {
	if h.mongoChecker == nil {
		h.logger.WithField("event", "health_mongo_missing").Warn("mongo checker is not configured for health endpoint")
		return errMongoMissing
	}

	if ctx == nil {
		ctx = context.Background()
	}

	pingCtx, cancel := context.WithTimeout(ctx, mongoPingTimeout)
	defer cancel()

	if err := h.mongoChecker.Ping(pingCtx); err != nil {
		h.logger.WithFields(logging.Fields{
			"event": "health_mongo_error",
		}).WithError(err).Warn("mongo ping failed during health check")
		return err
	}

	return nil
}

var errMongoMissing = errors.New("mongo checker is not configured")
