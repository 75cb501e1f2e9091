package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type countCollection interface {
	CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error)
}

// Stats is a snapshot of collection sizes.
type Stats struct {
	Users   int64 `json:"users"`
	Lookups int64 `json:"lookups"`
}

// StatsProvider reports collection counts for diagnostics.
type StatsProvider struct {
	users   countCollection
	lookups countCollection
}

// NewStatsProvider constructs a StatsProvider backed by the users and weather
// history collections.
func NewStatsProvider(users, lookups countCollection) *StatsProvider {
	return &StatsProvider{
		users:   users,
		lookups: lookups,
	}
}

// CountUsers returns the number of documents in the users collection.
func (p *StatsProvider) CountUsers(ctx context.Context) (int64, error) {
	if ctx == nil {
		return 0, errors.New("context is required")
	}
	if p == nil || p.users == nil {
		return 0, errors.New("stats provider is not initialized")
	}

	count, err := p.users.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}

	return count, nil
}

// CountLookups returns the number of recorded weather lookups.
func (p *StatsProvider) CountLookups(ctx context.Context) (int64, error) {
	if ctx == nil {
		return 0, errors.New("context is required")
	}
	if p == nil || p.lookups == nil {
		return 0, errors.New("stats provider is not initialized")
	}

	count, err := p.lookups.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("count weather lookups: %w", err)
	}

	return count, nil
}

// Snapshot returns both counts.
func (p *StatsProvider) Snapshot(ctx context.Context) (Stats, error) {
	users, err := p.CountUsers(ctx)
	if err != nil {
		return Stats{}, err
	}

	lookups, err := p.CountLookups(ctx)
	if err != nil {
		return Stats{}, err
	}

	return Stats{Users: users, Lookups: lookups}, nil
}
