// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/ashureev/goal-coach/internal/domain"
)

// Repository defines the interface for persisting users and saved goals.
type Repository interface {
	// GetUser retrieves a user by their user ID.
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// UpsertUser creates or updates a user record.
	UpsertUser(ctx context.Context, user *domain.User) error

	// UpdateLastSeen updates the last_seen_at timestamp for a user.
	UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error

	// InsertGoal persists an accepted goal for a user.
	InsertGoal(ctx context.Context, goal *domain.Goal) error

	// ListGoals returns a user's saved goals, newest first.
	ListGoals(ctx context.Context, userID string, limit, offset int) ([]*domain.Goal, error)

	// CountGoals returns the number of saved goals for a user.
	CountGoals(ctx context.Context, userID string) (int64, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
