// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/facturai/facturai/internal/domain"
)

// Repository defines the interface for persisting users and
// conversation sessions.
type Repository interface {
	// GetUserByPhone retrieves a user by their phone number.
	// Returns nil when no user matches.
	GetUserByPhone(ctx context.Context, phone string) (*domain.User, error)

	// GetUserByID retrieves a user by their internal ID.
	// Returns nil when no user matches.
	GetUserByID(ctx context.Context, userID string) (*domain.User, error)

	// CreateUser persists a new user record. Fails when the phone
	// number is already taken.
	CreateUser(ctx context.Context, user *domain.User) error

	// ListUsers returns all registered users.
	ListUsers(ctx context.Context) ([]*domain.User, error)

	// LatestSession returns the user's most recent session ordered by
	// last_activity_at descending; ties are broken by created_at
	// descending (most recently created wins). Returns nil when the
	// user has no sessions.
	LatestSession(ctx context.Context, userID string) (*domain.Session, error)

	// CreateSession durably persists a new session before returning.
	CreateSession(ctx context.Context, session *domain.Session) error

	// TouchSession updates last_activity_at for the given session id.
	TouchSession(ctx context.Context, sessionID string, at time.Time) error

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
