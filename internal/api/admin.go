package api

import (
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/facturai/facturai/internal/domain"
	"github.com/facturai/facturai/internal/store"
	"github.com/google/uuid"
)

// AdminKeyHeader authenticates administrative requests.
const AdminKeyHeader = "X-Admin-API-Key"

func (h *Handler) requireAdminKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.adminAPIKey == "" {
			Error(w, http.StatusServiceUnavailable, "admin API is not configured")
			return
		}
		key := r.Header.Get(AdminKeyHeader)
		if subtle.ConstantTimeCompare([]byte(key), []byte(h.adminAPIKey)) != 1 {
			Error(w, http.StatusUnauthorized, "invalid admin API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// CreateUserRequest registers a new assistant user.
type CreateUserRequest struct {
	Name        string `json:"name" validate:"required"`
	Email       string `json:"email" validate:"required,email"`
	PhoneNumber string `json:"phone_number" validate:"required"`
	UserToken   string `json:"user_token"`
}

// CreateUser registers a user so their phone number resolves on
// inbound messages.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.validate.Struct(req); err != nil {
		Error(w, http.StatusBadRequest, "name, email and phone_number are required")
		return
	}

	now := time.Now()
	user := &domain.User{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Email:       req.Email,
		PhoneNumber: req.PhoneNumber,
		UserToken:   req.UserToken,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := h.repo.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, store.ErrDuplicatePhone) {
			Error(w, http.StatusBadRequest, "user with this phone number already exists")
			return
		}
		slog.Error("failed to create user", "error", err)
		Error(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	JSON(w, http.StatusCreated, user)
}

// ListUsers returns all registered users.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.repo.ListUsers(r.Context())
	if err != nil {
		slog.Error("failed to list users", "error", err)
		Error(w, http.StatusInternalServerError, "failed to list users")
		return
	}
	if users == nil {
		users = []*domain.User{}
	}
	JSON(w, http.StatusOK, users)
}
