package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/facturai/facturai/internal/channel"
	"github.com/facturai/facturai/internal/conversation"
	"github.com/facturai/facturai/internal/identity"
)

// VerifyWebhook answers the channel's subscription handshake.
func (h *Handler) VerifyWebhook(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("hub.mode")
	token := r.URL.Query().Get("hub.verify_token")
	challenge := r.URL.Query().Get("hub.challenge")

	if mode != "subscribe" || !h.gateway.VerifyToken(token) {
		Error(w, http.StatusForbidden, "verification failed")
		return
	}

	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(challenge)); err != nil {
		slog.Warn("failed to write webhook challenge", "error", err)
	}
}

// HandleWebhook processes one inbound channel delivery: verify the
// signature, parse the message, run the conversation turn, and send
// the reply back through the gateway.
func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBodySize))
	if err != nil {
		Error(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	if !h.gateway.VerifySignature(r.Header.Get("X-Hub-Signature-256"), body) {
		Error(w, http.StatusForbidden, "invalid webhook signature")
		return
	}

	inbound, err := channel.ParseWebhook(body)
	if err != nil {
		if errors.Is(err, channel.ErrNoMessage) {
			JSON(w, http.StatusOK, map[string]string{"status": "ignored"})
			return
		}
		Error(w, http.StatusBadRequest, "malformed webhook payload")
		return
	}

	ctx := r.Context()
	var result *conversation.TurnResult

	switch inbound.Type {
	case channel.MessageTypeText:
		result, err = h.orchestrator.HandleMessage(ctx, inbound.SenderPhone, inbound.Text)
	case channel.MessageTypeAudio:
		audio, contentType, downloadErr := h.gateway.DownloadMedia(ctx, inbound.MediaID)
		if downloadErr != nil {
			slog.Error("failed to download voice message", "error", downloadErr)
			Error(w, http.StatusBadGateway, "failed to download voice message")
			return
		}
		result, err = h.orchestrator.HandleVoice(ctx, inbound.SenderPhone, audio, contentType)
	case channel.MessageTypeImage:
		if sendErr := h.gateway.SendMessage(ctx, inbound.SenderPhone,
			"Recibí tu imagen. El procesamiento de imágenes estará disponible pronto."); sendErr != nil {
			slog.Error("failed to acknowledge image message", "error", sendErr)
		}
		JSON(w, http.StatusOK, map[string]string{"status": "success"})
		return
	default:
		JSON(w, http.StatusOK, map[string]string{
			"status":  "ignored",
			"message": "Not a supported message type",
		})
		return
	}

	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			Error(w, http.StatusNotFound, "user not found")
			return
		}
		slog.Error("failed to process inbound message",
			"sender", inbound.SenderPhone, "error", err)
		Error(w, http.StatusBadGateway, "failed to process message")
		return
	}

	if sendErr := h.gateway.SendMessage(ctx, inbound.SenderPhone, result.Reply); sendErr != nil {
		slog.Error("failed to deliver reply", "sender", inbound.SenderPhone, "error", sendErr)
		Error(w, http.StatusBadGateway, "failed to deliver reply")
		return
	}

	JSON(w, http.StatusOK, map[string]string{"status": "success"})
}
