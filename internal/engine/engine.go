// Package engine provides the client to the external reasoning engine
// that turns user messages into replies and tool invocations.
package engine

import (
	"context"
	"encoding/json"
)

// Invoker defines the reasoning engine boundary. The engine resumes
// conversation state addressed by the session key; the caller passes
// the key through unchanged on every turn.
type Invoker interface {
	// Invoke processes one user message within the session's
	// checkpoint timeline and returns the raw engine result.
	Invoke(ctx context.Context, sessionKey, text string) (*RawResult, error)

	// Transcribe converts a voice recording into text.
	Transcribe(ctx context.Context, audio []byte, contentType string) (string, error)
}

// rawMessage is one entry in the engine's message list. Only the
// content field is contractually present.
type rawMessage struct {
	Content string `json:"content"`
}

// RawResult is the semi-structured engine response. The message list
// appears either at the top level or nested under an "agent" wrapper;
// both shapes occur in the wild and no third shape is guessed.
type RawResult struct {
	Messages []rawMessage `json:"messages"`
	Agent    *struct {
		Messages []rawMessage `json:"messages"`
	} `json:"agent"`
	IntermediateSteps []json.RawMessage `json:"intermediate_steps"`
}

// ToolOutput is one structured tool invocation extracted from the
// engine result.
type ToolOutput struct {
	Tool   string          `json:"tool"`
	Input  json.RawMessage `json:"input,omitempty"`
	Output json.RawMessage `json:"output,omitempty"`
}

// Reply extracts the visible reply: the last message's content from
// the top-level list, falling back to the agent-nested list, defaulting
// to the empty string when no message content is present.
func (r *RawResult) Reply() string {
	messages := r.Messages
	if len(messages) == 0 && r.Agent != nil {
		messages = r.Agent.Messages
	}
	if len(messages) == 0 {
		return ""
	}
	return messages[len(messages)-1].Content
}

// ToolOutputs extracts structured tool invocations from the
// intermediate steps. Each step is a (tool descriptor, tool result)
// pair; malformed steps are skipped rather than failing the turn.
func (r *RawResult) ToolOutputs() []ToolOutput {
	var outputs []ToolOutput
	for _, step := range r.IntermediateSteps {
		var pair []json.RawMessage
		if err := json.Unmarshal(step, &pair); err != nil || len(pair) < 2 {
			continue
		}

		var call struct {
			Tool      string          `json:"tool"`
			ToolInput json.RawMessage `json:"tool_input"`
		}
		out := ToolOutput{Output: pair[1]}
		if err := json.Unmarshal(pair[0], &call); err == nil && call.Tool != "" {
			out.Tool = call.Tool
			out.Input = call.ToolInput
		} else {
			// Descriptor with no recognizable tool field: keep its raw
			// form so the invocation is still reported.
			out.Tool = string(pair[0])
		}
		outputs = append(outputs, out)
	}
	return outputs
}
