package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/facturai/facturai/internal/billing"
	"github.com/facturai/facturai/internal/domain"
	"github.com/facturai/facturai/internal/identity"
)

// ChatRequest is the direct API path into the assistant, bypassing the
// messaging channel. The phone number plays the same external-identity
// role as the webhook sender.
type ChatRequest struct {
	PhoneNumber string `json:"phone_number" validate:"required"`
	Message     string `json:"message" validate:"required"`
}

// SendChat runs one conversation turn and returns the reply inline.
func (h *Handler) SendChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.validate.Struct(req); err != nil {
		Error(w, http.StatusBadRequest, "phone_number and message are required")
		return
	}

	result, err := h.orchestrator.HandleMessage(r.Context(), req.PhoneNumber, req.Message)
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			Error(w, http.StatusNotFound, "user not found")
			return
		}
		slog.Error("chat turn failed", "error", err)
		Error(w, http.StatusBadGateway, "failed to process message")
		return
	}

	JSON(w, http.StatusOK, result)
}

// CreateInvoiceRequest submits collected invoice data for issuance.
type CreateInvoiceRequest struct {
	PhoneNumber string         `json:"phone_number" validate:"required"`
	Invoice     domain.Invoice `json:"invoice" validate:"required"`
}

// CreateInvoice issues an invoice through the billing provider using
// data assembled in a previous chat turn.
func (h *Handler) CreateInvoice(w http.ResponseWriter, r *http.Request) {
	if h.billing == nil {
		Error(w, http.StatusServiceUnavailable, "billing is not configured")
		return
	}

	var req CreateInvoiceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.validate.Struct(req); err != nil {
		Error(w, http.StatusBadRequest, "invalid invoice payload")
		return
	}

	user, err := h.repo.GetUserByPhone(r.Context(), req.PhoneNumber)
	if err != nil {
		slog.Error("failed to look up user", "error", err)
		Error(w, http.StatusInternalServerError, "failed to look up user")
		return
	}
	if user == nil {
		Error(w, http.StatusNotFound, "user not found")
		return
	}

	doc, err := h.billing.GenerateInvoice(r.Context(), &req.Invoice, user)
	if err != nil {
		var apiErr *billing.APIError
		if errors.As(err, &apiErr) {
			// Business rejection: validation messages go back to the
			// caller, the process keeps running.
			JSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
				"error":  "invoice rejected",
				"detail": apiErr.Messages,
			})
			return
		}
		slog.Error("invoice generation failed", "error", err)
		Error(w, http.StatusBadGateway, "failed to generate invoice")
		return
	}

	JSON(w, http.StatusOK, doc)
}
