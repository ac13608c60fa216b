// Package channel implements the messaging channel gateway (WhatsApp
// Cloud API): webhook payload parsing, signature verification, and
// outbound delivery.
package channel

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// MessageType classifies inbound webhook messages.
type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeAudio MessageType = "audio"
	MessageTypeImage MessageType = "image"
)

// ErrNoMessage is returned when a webhook delivery carries no inbound
// message (status updates and other non-message events).
var ErrNoMessage = errors.New("webhook payload contains no message")

// InboundMessage is one parsed inbound message from the channel.
type InboundMessage struct {
	SenderPhone string
	Type        MessageType
	Text        string
	MediaID     string
}

// Config holds WhatsApp Cloud API settings.
type Config struct {
	AccessToken   string
	VerifyToken   string
	PhoneNumberID string
	BaseURL       string
}

// WhatsApp is the Cloud API client.
type WhatsApp struct {
	httpClient *http.Client
	cfg        Config
	logger     *slog.Logger
}

// NewWhatsApp builds the gateway client. BaseURL defaults to the Graph
// API v22.0 endpoint.
func NewWhatsApp(cfg Config, logger *slog.Logger) *WhatsApp {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://graph.facebook.com/v22.0"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WhatsApp{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		cfg:        cfg,
		logger:     logger,
	}
}

type webhookMessage struct {
	From string      `json:"from"`
	Type MessageType `json:"type"`
	Text *struct {
		Body string `json:"body"`
	} `json:"text"`
	Audio *struct {
		ID string `json:"id"`
	} `json:"audio"`
	Image *struct {
		ID string `json:"id"`
	} `json:"image"`
}

type webhookPayload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Messages []webhookMessage `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// ParseWebhook extracts the first inbound message from a webhook
// delivery.
func ParseWebhook(body []byte) (*InboundMessage, error) {
	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode webhook payload: %w", err)
	}
	if len(payload.Entry) == 0 || len(payload.Entry[0].Changes) == 0 {
		return nil, ErrNoMessage
	}
	messages := payload.Entry[0].Changes[0].Value.Messages
	if len(messages) == 0 {
		return nil, ErrNoMessage
	}

	msg := messages[0]
	inbound := &InboundMessage{SenderPhone: msg.From, Type: msg.Type}
	switch msg.Type {
	case MessageTypeText:
		if msg.Text != nil {
			inbound.Text = msg.Text.Body
		}
	case MessageTypeAudio:
		if msg.Audio != nil {
			inbound.MediaID = msg.Audio.ID
		}
	case MessageTypeImage:
		if msg.Image != nil {
			inbound.MediaID = msg.Image.ID
		}
	}
	return inbound, nil
}

// VerifySignature checks the X-Hub-Signature-256 header against the
// request body using a constant-time compare.
func (w *WhatsApp) VerifySignature(signature string, body []byte) bool {
	if signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(w.cfg.VerifyToken))
	mac.Write(body)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(signature), []byte(expected))
}

// VerifyToken returns whether the subscription handshake token matches.
func (w *WhatsApp) VerifyToken(token string) bool {
	return token != "" && token == w.cfg.VerifyToken
}

type outboundText struct {
	MessagingProduct string `json:"messaging_product"`
	To               string `json:"to"`
	Type             string `json:"type"`
	Text             struct {
		Body string `json:"body"`
	} `json:"text"`
}

// SendMessage delivers a text reply to the user.
func (w *WhatsApp) SendMessage(ctx context.Context, to, body string) error {
	msg := outboundText{MessagingProduct: "whatsapp", To: to, Type: "text"}
	msg.Text.Body = body

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode outbound message: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", w.cfg.BaseURL, w.cfg.PhoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build send request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+w.cfg.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer w.closeBody(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("send message: status %d", resp.StatusCode)
	}
	return nil
}

// DownloadMedia fetches a media object (voice note, image) by id and
// returns its bytes and content type.
func (w *WhatsApp) DownloadMedia(ctx context.Context, mediaID string) ([]byte, string, error) {
	url := fmt.Sprintf("%s/%s", w.cfg.BaseURL, mediaID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build media request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+w.cfg.AccessToken)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download media: %w", err)
	}
	defer w.closeBody(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download media: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read media body: %w", err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

func (w *WhatsApp) closeBody(body io.ReadCloser) {
	if err := body.Close(); err != nil {
		w.logger.Warn("failed to close response body", "error", err)
	}
}
