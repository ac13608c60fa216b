// Package api provides HTTP handlers for the FacturAI server.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/facturai/facturai/internal/billing"
	"github.com/facturai/facturai/internal/channel"
	"github.com/facturai/facturai/internal/checkpoint"
	"github.com/facturai/facturai/internal/conversation"
	"github.com/facturai/facturai/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// maxRequestBodySize caps inbound request bodies (1MB).
const maxRequestBodySize = 1 << 20

// Handler carries the dependencies shared by all HTTP endpoints.
type Handler struct {
	orchestrator *conversation.Orchestrator
	gateway      *channel.WhatsApp
	repo         store.Repository
	checkpoints  *checkpoint.Store
	billing      *billing.Client
	adminAPIKey  string
	validate     *validator.Validate
}

// NewHandler creates the API handler. The billing client may be nil
// when the invoicing capability is not configured.
func NewHandler(
	orchestrator *conversation.Orchestrator,
	gateway *channel.WhatsApp,
	repo store.Repository,
	checkpoints *checkpoint.Store,
	billingClient *billing.Client,
	adminAPIKey string,
) *Handler {
	return &Handler{
		orchestrator: orchestrator,
		gateway:      gateway,
		repo:         repo,
		checkpoints:  checkpoints,
		billing:      billingClient,
		adminAPIKey:  adminAPIKey,
		validate:     validator.New(),
	}
}

// RegisterRoutes mounts all endpoints on the router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/webhook/whatsapp", h.VerifyWebhook)
	r.Post("/webhook/whatsapp", h.HandleWebhook)
	r.Post("/chat/send", h.SendChat)
	r.Post("/chat/create-invoice", h.CreateInvoice)
	r.Get("/health/db", h.HealthDB)

	r.Route("/admin", func(r chi.Router) {
		r.Use(h.requireAdminKey)
		r.Post("/users", h.CreateUser)
		r.Get("/users", h.ListUsers)
	})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		Error(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}
