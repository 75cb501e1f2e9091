// Package user provides helpers for user registration and profile refreshes.
package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"tg_weather_bot/internal/domain"
	"tg_weather_bot/internal/logging"
)

type userCollection interface {
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
}

// Registrar ensures users are present in the database and keeps their name and
// chat destination current on every interaction.
type Registrar struct {
	users  userCollection
	logger *logrus.Entry
}

// NewRegistrar constructs a Registrar for the provided users collection.
func NewRegistrar(users userCollection, logger *logrus.Entry) *Registrar {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Registrar{
		users:  users,
		logger: logger,
	}
}

// EnsureUser inserts the user when missing or refreshes user_name/chat_id in
// place, returning the user id. The write is a single upsert so concurrent
// first contact from the same user cannot produce duplicates.
func (r *Registrar) EnsureUser(ctx context.Context, profile domain.Profile) (int64, error) {
	if r == nil || r.users == nil {
		return 0, errors.New("user registrar is not initialized")
	}
	if ctx == nil {
		return 0, errors.New("context is required")
	}
	if profile.UserID == 0 {
		return 0, errors.New("user id is required")
	}

	userName := strings.TrimSpace(profile.UserName)
	if userName == "" {
		userName = domain.UnknownUserName
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	update := bson.M{
		"$set": bson.M{
			"user_name":  userName,
			"chat_id":    profile.ChatID,
			"updated_at": now,
		},
		"$setOnInsert": bson.M{
			"user_id":    profile.UserID,
			"created_at": now,
		},
	}

	result, err := r.users.UpdateOne(ctx,
		bson.M{"user_id": profile.UserID},
		update,
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return 0, fmt.Errorf("ensure user: %w", err)
	}

	if result != nil && result.UpsertedCount > 0 {
		r.logger.WithFields(logging.Fields{
			"event":   "user_registered",
			"user_id": profile.UserID,
			"chat_id": profile.ChatID,
		}).Info("registered new user")
		return profile.UserID, nil
	}

	r.logger.WithFields(logging.Fields{
		"event":   "user_seen",
		"user_id": profile.UserID,
	}).Debug("refreshed user profile")

	return profile.UserID, nil
}
