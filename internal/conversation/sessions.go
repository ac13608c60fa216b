// Package conversation implements session lifecycle and message
// orchestration for the assistant.
package conversation

import (
	"context"
	"fmt"
	"time"

	"github.com/facturai/facturai/internal/domain"
	"github.com/facturai/facturai/internal/store"
	"github.com/google/uuid"
)

// DefaultSessionTimeout is the inactivity threshold after which a
// session is retired and a new one created.
const DefaultSessionTimeout = 30 * time.Minute

// sessionKeyTimeFormat mirrors the thread id layout the engine's
// checkpoint storage has always been addressed with.
const sessionKeyTimeFormat = "2006-01-02-15-04-05"

// Sessions applies the freshness policy over the session store.
type Sessions struct {
	repo    store.Repository
	timeout time.Duration
	now     func() time.Time
}

// NewSessions creates the session service. A non-positive timeout
// falls back to DefaultSessionTimeout.
func NewSessions(repo store.Repository, timeout time.Duration) *Sessions {
	if timeout <= 0 {
		timeout = DefaultSessionTimeout
	}
	return &Sessions{
		repo:    repo,
		timeout: timeout,
		now:     time.Now,
	}
}

// GetOrCreateActive returns the user's active session, creating a new
// one when none exists or the most recent one has gone stale. A newly
// created session is durably stored before it is returned; callers
// must never proceed with a session key that was not committed.
func (s *Sessions) GetOrCreateActive(ctx context.Context, userID string) (*domain.Session, error) {
	latest, err := s.repo.LatestSession(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load latest session: %w", err)
	}

	now := s.now()
	if latest != nil && latest.Active(s.timeout, now) {
		return latest, nil
	}

	session := &domain.Session{
		ID:             uuid.NewString(),
		UserID:         userID,
		SessionKey:     fmt.Sprintf("%s-%s", userID, now.Format(sessionKeyTimeFormat)),
		CreatedAt:      now,
		LastActivityAt: now,
	}
	if err := s.repo.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

// Touch records activity on the session. It is called after a full
// round trip to the engine succeeds, never before, so a failed turn
// does not mark the session fresh.
func (s *Sessions) Touch(ctx context.Context, sessionID string) error {
	if err := s.repo.TouchSession(ctx, sessionID, s.now()); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

// Timeout returns the configured inactivity threshold.
func (s *Sessions) Timeout() time.Duration {
	return s.timeout
}
