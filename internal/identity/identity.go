// Package identity maps external sender identifiers to user records.
package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/facturai/facturai/internal/domain"
	"github.com/facturai/facturai/internal/store"
)

// ErrUserNotFound is returned when no user matches the external
// identifier. The request cannot proceed without a known identity.
var ErrUserNotFound = errors.New("user not found")

// Resolver looks up users by their channel-supplied identifier.
type Resolver struct {
	repo store.Repository
}

// NewResolver creates a resolver backed by the given repository.
func NewResolver(repo store.Repository) *Resolver {
	return &Resolver{repo: repo}
}

// Resolve maps a phone number to its user record. The phone number is
// treated as an opaque string; no normalization is attempted. Resolve
// has no side effects.
func (r *Resolver) Resolve(ctx context.Context, phone string) (*domain.User, error) {
	user, err := r.repo.GetUserByPhone(ctx, phone)
	if err != nil {
		return nil, fmt.Errorf("lookup user by phone: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("%w: phone %s", ErrUserNotFound, phone)
	}
	return user, nil
}
