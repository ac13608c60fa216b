package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/facturai/facturai/internal/checkpoint"
)

var (
	errEngineNotReady = errors.New("engine service not ready")
	errEngineResponse = errors.New("engine returned error status")
)

// ClientConfig holds configuration for the engine HTTP client.
type ClientConfig struct {
	Address        string
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
}

// DefaultClientConfig returns default configuration.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Address:        "http://localhost:8000",
		ConnectTimeout: 5 * time.Second,
		RequestTimeout: 60 * time.Second,
	}
}

// Client talks to the reasoning engine service over HTTP and records
// completed turns in the checkpoint store it was handed at
// construction.
type Client struct {
	httpClient  *http.Client
	addr        string
	checkpoints *checkpoint.Store
	logger      *slog.Logger
}

// Ensure Client implements Invoker.
var _ Invoker = (*Client)(nil)

// NewClient creates an engine client and forces a readiness probe so
// startup fails fast on a bad engine endpoint.
func NewClient(cfg ClientConfig, checkpoints *checkpoint.Store, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Address == "" {
		cfg = DefaultClientConfig()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultClientConfig().RequestTimeout
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultClientConfig().ConnectTimeout
	}

	c := &Client{
		httpClient:  &http.Client{Timeout: cfg.RequestTimeout},
		addr:        cfg.Address,
		checkpoints: checkpoints,
		logger:      logger,
	}

	readyCtx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := c.waitForReady(readyCtx); err != nil {
		return nil, fmt.Errorf("engine at %s not ready: %w", cfg.Address, err)
	}

	logger.Info("Connected to reasoning engine", "address", cfg.Address)
	return c, nil
}

func (c *Client) waitForReady(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.addr+"/healthz", nil)
	if err != nil {
		return fmt.Errorf("build readiness request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", errEngineNotReady, err)
	}
	defer drainAndClose(resp.Body, c.logger)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", errEngineNotReady, resp.StatusCode)
	}
	return nil
}

type invokeRequest struct {
	ThreadID string `json:"thread_id"`
	Message  string `json:"message"`
}

// Invoke sends one user message to the engine under the session's
// checkpoint partition and records the completed turn.
func (c *Client) Invoke(ctx context.Context, sessionKey, text string) (*RawResult, error) {
	body, err := json.Marshal(invokeRequest{ThreadID: sessionKey, Message: text})
	if err != nil {
		return nil, fmt.Errorf("encode invoke request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.addr+"/invoke", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build invoke request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("invoke engine: %w", err)
	}
	defer drainAndClose(resp.Body, c.logger)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", errEngineResponse, resp.StatusCode)
	}

	var result RawResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode engine result: %w", err)
	}

	if err := c.recordTurn(ctx, sessionKey, text, result.Reply()); err != nil {
		return nil, err
	}

	return &result, nil
}

// recordTurn appends the exchanged messages to the session's checkpoint
// timeline. A provisioning failure here is fatal for the turn so the
// timeline never silently diverges from delivered replies.
func (c *Client) recordTurn(ctx context.Context, sessionKey, userText, reply string) error {
	if c.checkpoints == nil {
		return nil
	}
	if err := c.checkpoints.AppendTurn(ctx, sessionKey, "user", userText); err != nil {
		return fmt.Errorf("record user turn: %w", err)
	}
	if err := c.checkpoints.AppendTurn(ctx, sessionKey, "assistant", reply); err != nil {
		return fmt.Errorf("record assistant turn: %w", err)
	}
	return nil
}

// Transcribe converts a voice recording into text via the engine's
// transcription endpoint. The audio bytes pass through untouched.
func (c *Client) Transcribe(ctx context.Context, audio []byte, contentType string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.addr+"/transcribe", bytes.NewReader(audio))
	if err != nil {
		return "", fmt.Errorf("build transcribe request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcribe audio: %w", err)
	}
	defer drainAndClose(resp.Body, c.logger)

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", errEngineResponse, resp.StatusCode)
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode transcription: %w", err)
	}
	return out.Text, nil
}

func drainAndClose(body io.ReadCloser, logger *slog.Logger) {
	if _, err := io.Copy(io.Discard, body); err != nil {
		logger.Debug("failed to drain response body", "error", err)
	}
	if err := body.Close(); err != nil {
		logger.Warn("failed to close response body", "error", err)
	}
}
