// Package domain contains core domain types for the FacturAI assistant.
package domain

import (
	"time"
)

// User represents a registered assistant user, identified externally by
// their phone number.
type User struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	PhoneNumber string    `json:"phone_number"`
	UserToken   string    `json:"user_token,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// BillingToken returns the token used against the billing provider,
// falling back to the given default when the user has none of their own.
func (u *User) BillingToken(fallback string) string {
	if u.UserToken != "" {
		return u.UserToken
	}
	return fallback
}
