package convstore

import (
	"fmt"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// NewMessageID generates a message id. Exposed so callers can pre-assign an
// id before the message content exists.
func NewMessageID() (string, error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("failed to generate message id: %w", err)
	}
	return id, nil
}

// Role identifies who produced a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Valid reports whether the role is one the store accepts.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem, RoleTool:
		return true
	}
	return false
}

// Conversation is the root record of a message tree.
type Conversation struct {
	ID        string                 `json:"id"`
	Title     string                 `json:"title,omitempty"`
	AgentType string                 `json:"agent_type"`
	Meta      map[string]interface{} `json:"meta,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// Message is a single node in a conversation tree. ParentID is empty for a
// conversation's root. Assistant messages carry usage and tool-call traces
// in Meta.
type Message struct {
	ID             string                 `json:"id"`
	ConversationID string                 `json:"conversation_id"`
	Role           Role                   `json:"role"`
	Content        string                 `json:"content"`
	ParentID       string                 `json:"parent_id,omitempty"`
	Depth          int                    `json:"depth"`
	CreatedAt      time.Time              `json:"created_at"`
	Meta           map[string]interface{} `json:"meta,omitempty"`
}

// Meta keys the core itself reads or writes. Meta bags remain open for
// provider-specific extension fields.
const (
	MetaKeyUsage       = "usage"
	MetaKeyTitle       = "title"
	MetaKeyProvider    = "provider"
	MetaKeyModel       = "model"
	MetaKeyProjectRoot = "project_root"
	MetaKeyToolCalls   = "tool_calls"
	MetaKeyTruncated   = "truncated"
)
