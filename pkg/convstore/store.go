package convstore

import (
	"context"
)

// Store is the conversation tree contract, polymorphic over the storage
// medium. Implementations must keep mutations on the same conversation
// atomic with respect to each other; cross-conversation operations are
// independent.
type Store interface {
	// CreateConversation allocates a fresh id, sets both timestamps to now
	// and persists immediately.
	CreateConversation(ctx context.Context, agentType string, meta map[string]interface{}) (*Conversation, error)

	// GetConversation fails with ErrNotFound if the id is absent.
	GetConversation(ctx context.Context, id string) (*Conversation, error)

	// ListConversations returns all conversations in creation order.
	ListConversations(ctx context.Context) ([]*Conversation, error)

	// ListMessages returns the full message set in insertion order, which is
	// parent-before-child because the tree is append-only.
	ListMessages(ctx context.Context, conversationID string) ([]*Message, error)

	// AppendMessage computes depth from the parent (0 when parentID is
	// empty), assigns a new id and bumps the conversation's UpdatedAt. It
	// fails with ErrNotFound when the conversation or a non-empty parentID
	// does not exist.
	AppendMessage(ctx context.Context, conversationID string, role Role, content string, parentID string, meta map[string]interface{}) (*Message, error)

	// AppendMessageWithID is AppendMessage with a caller-supplied message
	// id, for callers that hand the id out before the content exists (a
	// streaming turn announces its assistant message id up front).
	AppendMessageWithID(ctx context.Context, conversationID, id string, role Role, content string, parentID string, meta map[string]interface{}) (*Message, error)

	// UpdateConversationTitle fails with ErrNotFound on a missing id.
	UpdateConversationTitle(ctx context.Context, id, title string) error

	// DeleteConversation removes the conversation and all of its messages.
	DeleteConversation(ctx context.Context, id string) error
}
