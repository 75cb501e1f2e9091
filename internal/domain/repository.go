package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrNotFound is returned when a requested record does not exist. Connectivity
// and decoding failures are returned as other errors.
var ErrNotFound = errors.New("not found")

type findCollection interface {
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
}

type insertFindCollection interface {
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
}

// UserRepository reads users from MongoDB. Writes go through the user
// registrar, which owns the upsert.
type UserRepository struct {
	collection findCollection
}

// NewUserRepository constructs a UserRepository.
func NewUserRepository(collection findCollection) *UserRepository {
	return &UserRepository{collection: collection}
}

// GetByID fetches a user by Telegram user_id. It wraps ErrNotFound when the
// user does not exist.
func (r *UserRepository) GetByID(ctx context.Context, userID int64) (User, error) {
	if r == nil || r.collection == nil {
		return User{}, errors.New("user repository is not initialized")
	}
	if ctx == nil {
		return User{}, errors.New("context is required")
	}
	if userID == 0 {
		return User{}, errors.New("user_id is required")
	}

	result := r.collection.FindOne(ctx, bson.M{"user_id": userID})
	if result == nil {
		return User{}, errors.New("find user returned no result")
	}
	if err := result.Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return User{}, fmt.Errorf("find user %d: %w", userID, ErrNotFound)
		}
		return User{}, fmt.Errorf("find user: %w", err)
	}

	var user User
	if err := result.Decode(&user); err != nil {
		return User{}, fmt.Errorf("decode user: %w", err)
	}

	return user, nil
}

// List returns every known user in insertion order.
func (r *UserRepository) List(ctx context.Context) ([]User, error) {
	if r == nil || r.collection == nil {
		return nil, errors.New("user repository is not initialized")
	}
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	cursor, err := r.collection.Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("find users: %w", err)
	}

	users := make([]User, 0)
	if err := cursor.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}

	return users, nil
}

// LookupRepository appends and reads weather lookup history in MongoDB.
type LookupRepository struct {
	collection insertFindCollection
	now        func() time.Time
}

// NewLookupRepository constructs a LookupRepository.
func NewLookupRepository(collection insertFindCollection) *LookupRepository {
	return &LookupRepository{
		collection: collection,
		now:        time.Now,
	}
}

// Record inserts a lookup, stamping RequestedAt with the current time when it
// is not already set.
func (r *LookupRepository) Record(ctx context.Context, lookup WeatherLookup) (WeatherLookup, error) {
	if r == nil || r.collection == nil {
		return WeatherLookup{}, errors.New("lookup repository is not initialized")
	}
	if ctx == nil {
		return WeatherLookup{}, errors.New("context is required")
	}
	if lookup.UserID == 0 {
		return WeatherLookup{}, errors.New("user_id is required")
	}

	if lookup.RequestedAt.IsZero() {
		lookup.RequestedAt = r.now().UTC().Truncate(time.Millisecond)
	}

	result, err := r.collection.InsertOne(ctx, lookup)
	if err != nil {
		return WeatherLookup{}, fmt.Errorf("insert weather lookup: %w", err)
	}

	if result != nil {
		if id, ok := result.InsertedID.(primitive.ObjectID); ok {
			lookup.ID = id
		}
	}

	return lookup, nil
}

// ListByUser returns all lookups for the user, most recent first.
func (r *LookupRepository) ListByUser(ctx context.Context, userID int64) ([]WeatherLookup, error) {
	if r == nil || r.collection == nil {
		return nil, errors.New("lookup repository is not initialized")
	}
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	if userID == 0 {
		return nil, errors.New("user_id is required")
	}

	cursor, err := r.collection.Find(ctx, bson.M{"user_id": userID},
		options.Find().SetSort(bson.D{{Key: "requested_at", Value: -1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("find weather history: %w", err)
	}

	lookups := make([]WeatherLookup, 0)
	if err := cursor.All(ctx, &lookups); err != nil {
		return nil, fmt.Errorf("decode weather history: %w", err)
	}

	return lookups, nil
}
