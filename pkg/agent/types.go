package agent

import (
	"github.com/sawane/loom/pkg/convstore"
	"github.com/sawane/loom/pkg/provider"
)

// Params describe one chat turn.
type Params struct {
	// Input is the user's utterance. Must be non-empty.
	Input string

	// ConversationID targets an existing conversation. Empty creates one.
	ConversationID string

	// FocusMessageID anchors the turn at an earlier message, growing a new
	// branch from that point. Empty anchors at the latest message.
	FocusMessageID string

	// RequestID deduplicates blocking turns: a retried request with the
	// same id returns the first run's result instead of running again.
	RequestID string

	// Meta is attached to the user message; on conversation creation the
	// title key is also picked up for the conversation record.
	Meta map[string]interface{}
}

// Turn is the result of a completed blocking chat turn.
type Turn struct {
	Conversation     *convstore.Conversation
	UserMessage      *convstore.Message
	AssistantMessage *convstore.Message
}

// EventKind discriminates streamed turn events.
type EventKind string

const (
	// EventStatus is a human-readable progress marker around tool dispatch.
	EventStatus EventKind = "status"
	// EventDelta carries an incremental fragment of the assistant's answer.
	// Concatenating all deltas in emission order yields the final content.
	EventDelta EventKind = "delta"
	// EventFinal carries the persisted assistant message and aggregate
	// usage. Exactly one per successful turn, always last.
	EventFinal EventKind = "final"
)

// Event is one element of a streamed turn. Every event carries the owning
// conversation id, the user message id and the assistant message id; the
// assistant id is assigned before any content exists so consumers can
// correlate mid-stream.
type Event struct {
	Kind EventKind `json:"kind"`

	ConversationID     string `json:"conversation_id"`
	UserMessageID      string `json:"user_message_id"`
	AssistantMessageID string `json:"assistant_message_id"`

	// Status is set on status events.
	Status string `json:"status,omitempty"`

	// Delta is set on delta events.
	Delta string `json:"delta,omitempty"`

	// Message and Usage are set on the final event.
	Message *convstore.Message `json:"message,omitempty"`
	Usage   provider.Usage     `json:"usage,omitempty"`
}

// Options configure an agent's model and tool behavior.
type Options struct {
	Provider     string
	Model        string
	SystemPrompt string
	Temperature  float64
	MaxTokens    int

	// MaxSteps bounds the number of model calls per turn. A turn that hits
	// the ceiling still finalizes, with a truncation marker in its meta.
	MaxSteps int

	// ProjectRoot scopes file tools. Empty disables them regardless of
	// ToolsEnabled.
	ProjectRoot  string
	ToolsEnabled bool
}

const (
	defaultMaxSteps     = 10
	defaultMaxTokens    = 4096
	defaultSystemPrompt = "You are a helpful assistant."
	defaultAgentType    = "chat"

	titleMaxRunes = 64
)
