package domain

import (
	"time"
)

// Session is one logical conversation span for a user. The SessionKey
// addresses the checkpoint timeline in the reasoning engine's storage
// and is immutable once created.
type Session struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	SessionKey     string    `json:"session_key"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

// Active reports whether the session is still fresh at the given
// instant under the inactivity timeout.
func (s *Session) Active(timeout time.Duration, now time.Time) bool {
	return now.Sub(s.LastActivityAt) < timeout
}
