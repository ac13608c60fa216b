package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/facturai/facturai/internal/engine"
	"github.com/facturai/facturai/internal/identity"
)

// DefaultEngineTimeout bounds a single reasoning engine round trip. On
// timeout the turn fails whole: no activity touch, no reply.
const DefaultEngineTimeout = 90 * time.Second

// TurnResult is the outcome of one processed inbound message.
type TurnResult struct {
	Reply       string              `json:"reply"`
	SessionKey  string              `json:"session_key"`
	ToolOutputs []engine.ToolOutput `json:"tool_outputs,omitempty"`
}

// Orchestrator coordinates one conversation turn: identity before
// session, session before engine call, engine call before activity
// update. It holds no state of its own beyond the per-user locks.
type Orchestrator struct {
	resolver      *identity.Resolver
	sessions      *Sessions
	engine        engine.Invoker
	locks         *userLocks
	engineTimeout time.Duration
	logger        *slog.Logger
}

// NewOrchestrator wires the orchestrator. A non-positive engine
// timeout falls back to DefaultEngineTimeout.
func NewOrchestrator(resolver *identity.Resolver, sessions *Sessions, invoker engine.Invoker, engineTimeout time.Duration, logger *slog.Logger) *Orchestrator {
	if engineTimeout <= 0 {
		engineTimeout = DefaultEngineTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		resolver:      resolver,
		sessions:      sessions,
		engine:        invoker,
		locks:         newUserLocks(),
		engineTimeout: engineTimeout,
		logger:        logger,
	}
}

// HandleMessage processes one inbound text message from the given
// external identity and returns the assistant's reply.
func (o *Orchestrator) HandleMessage(ctx context.Context, externalID, text string) (*TurnResult, error) {
	user, err := o.resolver.Resolve(ctx, externalID)
	if err != nil {
		return nil, err
	}

	// Serialize session selection through activity update per user so
	// concurrent messages cannot fork the conversation into two
	// checkpoint timelines.
	o.locks.lock(user.ID)
	defer o.locks.unlock(user.ID)

	session, err := o.sessions.GetOrCreateActive(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	engineCtx, cancel := context.WithTimeout(ctx, o.engineTimeout)
	defer cancel()

	raw, err := o.engine.Invoke(engineCtx, session.SessionKey, text)
	if err != nil {
		return nil, fmt.Errorf("engine turn failed: %w", err)
	}

	// The session stays addressable even if the touch fails; activity
	// is then stale until the next successful turn, which is preferable
	// to dropping a reply the engine already produced.
	if touchErr := o.sessions.Touch(ctx, session.ID); touchErr != nil {
		o.logger.Warn("failed to record session activity",
			"session_id", session.ID, "error", touchErr)
	}

	return &TurnResult{
		Reply:       raw.Reply(),
		SessionKey:  session.SessionKey,
		ToolOutputs: raw.ToolOutputs(),
	}, nil
}

// HandleVoice transcribes a voice recording and processes the result
// as a regular text turn.
func (o *Orchestrator) HandleVoice(ctx context.Context, externalID string, audio []byte, contentType string) (*TurnResult, error) {
	text, err := o.engine.Transcribe(ctx, audio, contentType)
	if err != nil {
		return nil, fmt.Errorf("transcribe voice message: %w", err)
	}
	return o.HandleMessage(ctx, externalID, text)
}
