package convstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/sawane/loom/internal/observability"
	"github.com/sawane/loom/internal/tracing"
)

const (
	conversationFile = "conversation.json"
	messagesFile     = "messages.json"
)

// JSONStore is the reference Store medium: a JSON file tree with one
// directory per conversation. Every mutation replaces a conversation's whole
// record through a temp file and rename.
type JSONStore struct {
	root       string
	writeLocks map[string]*sync.Mutex
	locksMu    sync.Mutex
}

// NewJSONStore creates a JSON file store rooted at dir.
func NewJSONStore(dir string) (*JSONStore, error) {
	observability.EnsureRegistered()

	if dir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(homeDir, ".loom", "conversations")
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, writeErrf(err, "failed to create store root %s", dir)
	}

	s := &JSONStore{
		root:       dir,
		writeLocks: make(map[string]*sync.Mutex),
	}

	log.Info().Str("dir", dir).Msg("Conversation store initialized")
	s.updateActiveConversationsMetric()

	return s, nil
}

// Root returns the directory backing the store.
func (s *JSONStore) Root() string {
	return s.root
}

func (s *JSONStore) conversationDir(id string) string {
	return filepath.Join(s.root, id)
}

// getWriteLock gets or creates the single-writer lock for a conversation
func (s *JSONStore) getWriteLock(id string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	if lock, exists := s.writeLocks[id]; exists {
		return lock
	}

	lock := &sync.Mutex{}
	s.writeLocks[id] = lock
	return lock
}

func (s *JSONStore) releaseWriteLock(id string) {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	delete(s.writeLocks, id)
}

func (s *JSONStore) updateActiveConversationsMetric() {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return
	}
	count := 0
	for _, entry := range entries {
		if entry.IsDir() {
			count++
		}
	}
	observability.SetActiveConversations(count)
}

// validateID rejects ids that could escape the store root.
func validateID(id string) error {
	if id == "" {
		return notFoundf("conversation id cannot be empty")
	}
	if strings.Contains(id, "..") || strings.ContainsAny(id, "/\\\x00") {
		return notFoundf("conversation id %q is not path-safe", id)
	}
	return nil
}

// writeJSONAtomic replaces path with the serialized value via temp+rename.
func writeJSONAtomic(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return writeErrf(err, "failed to marshal %s", filepath.Base(path))
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return writeErrf(err, "failed to write %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return writeErrf(err, "failed to replace %s", path)
	}
	return nil
}

func (s *JSONStore) loadConversation(id string) (*Conversation, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(s.conversationDir(id), conversationFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, notFoundf("conversation %s", id)
		}
		return nil, fmt.Errorf("failed to read conversation %s: %w", id, err)
	}

	var conv Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, fmt.Errorf("failed to parse conversation %s: %w", id, err)
	}
	return &conv, nil
}

func (s *JSONStore) loadMessages(id string) ([]*Message, error) {
	data, err := os.ReadFile(filepath.Join(s.conversationDir(id), messagesFile))
	if err != nil {
		if os.IsNotExist(err) {
			return []*Message{}, nil
		}
		return nil, fmt.Errorf("failed to read messages for %s: %w", id, err)
	}

	var messages []*Message
	if err := json.Unmarshal(data, &messages); err != nil {
		return nil, fmt.Errorf("failed to parse messages for %s: %w", id, err)
	}
	return messages, nil
}

// CreateConversation allocates a fresh id and persists the empty tree.
func (s *JSONStore) CreateConversation(ctx context.Context, agentType string, meta map[string]interface{}) (*Conversation, error) {
	ctx, span := tracing.StartSpan(
		ctx,
		"loom.convstore",
		"store.create_conversation",
		attribute.String("agent_type", agentType),
	)
	defer span.End()
	start := time.Now()
	defer func() {
		observability.RecordStoreWrite("create_conversation", time.Since(start))
	}()

	now := time.Now().UTC()
	conv := &Conversation{
		ID:        uuid.New().String(),
		AgentType: agentType,
		Meta:      copyMeta(meta),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if title, ok := conv.Meta[MetaKeyTitle].(string); ok && title != "" {
		conv.Title = title
	}

	dir := s.conversationDir(conv.ID)
	if err := os.MkdirAll(dir, 0700); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		observability.RecordStoreError("create_conversation")
		return nil, writeErrf(err, "failed to create conversation dir %s", dir)
	}

	if err := writeJSONAtomic(filepath.Join(dir, conversationFile), conv); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		observability.RecordStoreError("create_conversation")
		return nil, err
	}
	if err := writeJSONAtomic(filepath.Join(dir, messagesFile), []*Message{}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		observability.RecordStoreError("create_conversation")
		return nil, err
	}

	logger := tracing.LoggerFromContext(ctx, log.Logger)
	logger.Info().Str("conversation_id", conv.ID).Str("agent_type", agentType).Msg("Conversation created")
	s.updateActiveConversationsMetric()

	return conv, nil
}

// GetConversation returns the conversation record for id.
func (s *JSONStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	start := time.Now()
	defer func() {
		observability.RecordStoreRead("get_conversation", time.Since(start))
	}()

	return s.loadConversation(id)
}

// ListConversations returns every conversation in creation order.
func (s *JSONStore) ListConversations(ctx context.Context) ([]*Conversation, error) {
	start := time.Now()
	defer func() {
		observability.RecordStoreRead("list_conversations", time.Since(start))
	}()

	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("failed to read store root: %w", err)
	}

	conversations := make([]*Conversation, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		conv, err := s.loadConversation(entry.Name())
		if err != nil {
			log.Warn().Str("dir", entry.Name()).Err(err).Msg("Skipping unreadable conversation")
			continue
		}
		conversations = append(conversations, conv)
	}

	sort.Slice(conversations, func(i, j int) bool {
		if conversations[i].CreatedAt.Equal(conversations[j].CreatedAt) {
			return conversations[i].ID < conversations[j].ID
		}
		return conversations[i].CreatedAt.Before(conversations[j].CreatedAt)
	})

	return conversations, nil
}

// ListMessages returns all messages of a conversation in insertion order.
func (s *JSONStore) ListMessages(ctx context.Context, conversationID string) ([]*Message, error) {
	start := time.Now()
	defer func() {
		observability.RecordStoreRead("list_messages", time.Since(start))
	}()

	if _, err := s.loadConversation(conversationID); err != nil {
		return nil, err
	}
	return s.loadMessages(conversationID)
}

// AppendMessage appends a message under parentID and bumps UpdatedAt.
func (s *JSONStore) AppendMessage(ctx context.Context, conversationID string, role Role, content string, parentID string, meta map[string]interface{}) (*Message, error) {
	id, err := NewMessageID()
	if err != nil {
		return nil, err
	}
	return s.AppendMessageWithID(ctx, conversationID, id, role, content, parentID, meta)
}

// AppendMessageWithID appends a message with a caller-supplied id.
func (s *JSONStore) AppendMessageWithID(ctx context.Context, conversationID, id string, role Role, content string, parentID string, meta map[string]interface{}) (*Message, error) {
	ctx, span := tracing.StartSpan(
		ctx,
		"loom.convstore",
		"store.append_message",
		attribute.String("conversation_id", conversationID),
		attribute.String("role", string(role)),
	)
	defer span.End()
	start := time.Now()
	defer func() {
		observability.RecordStoreWrite("append_message", time.Since(start))
	}()

	if !role.Valid() {
		return nil, fmt.Errorf("invalid message role %q", role)
	}
	if id == "" {
		return nil, fmt.Errorf("message id cannot be empty")
	}

	lock := s.getWriteLock(conversationID)
	lock.Lock()
	defer lock.Unlock()

	conv, err := s.loadConversation(conversationID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	messages, err := s.loadMessages(conversationID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	depth := 0
	if parentID != "" {
		parent := findMessage(messages, parentID)
		if parent == nil {
			err := notFoundf("parent message %s in conversation %s", parentID, conversationID)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		depth = parent.Depth + 1
	}

	msg := &Message{
		ID:             id,
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		ParentID:       parentID,
		Depth:          depth,
		CreatedAt:      time.Now().UTC(),
		Meta:           copyMeta(meta),
	}

	messages = append(messages, msg)
	dir := s.conversationDir(conversationID)
	if err := writeJSONAtomic(filepath.Join(dir, messagesFile), messages); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		observability.RecordStoreError("append_message")
		return nil, err
	}

	// UpdatedAt is monotonically non-decreasing.
	if msg.CreatedAt.After(conv.UpdatedAt) {
		conv.UpdatedAt = msg.CreatedAt
	}
	if err := writeJSONAtomic(filepath.Join(dir, conversationFile), conv); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		observability.RecordStoreError("append_message")
		return nil, err
	}

	logger := tracing.LoggerFromContext(ctx, log.Logger)
	logger.Debug().
		Str("conversation_id", conversationID).
		Str("message_id", msg.ID).
		Str("role", string(role)).
		Int("depth", depth).
		Msg("Message appended")

	return msg, nil
}

// UpdateConversationTitle sets the display title.
func (s *JSONStore) UpdateConversationTitle(ctx context.Context, id, title string) error {
	start := time.Now()
	defer func() {
		observability.RecordStoreWrite("update_title", time.Since(start))
	}()

	lock := s.getWriteLock(id)
	lock.Lock()
	defer lock.Unlock()

	conv, err := s.loadConversation(id)
	if err != nil {
		return err
	}

	conv.Title = title
	now := time.Now().UTC()
	if now.After(conv.UpdatedAt) {
		conv.UpdatedAt = now
	}
	return writeJSONAtomic(filepath.Join(s.conversationDir(id), conversationFile), conv)
}

// DeleteConversation removes a conversation and cascades to its messages.
func (s *JSONStore) DeleteConversation(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(
		ctx,
		"loom.convstore",
		"store.delete_conversation",
		attribute.String("conversation_id", id),
	)
	defer span.End()
	start := time.Now()
	defer func() {
		observability.RecordStoreWrite("delete_conversation", time.Since(start))
	}()

	lock := s.getWriteLock(id)
	lock.Lock()
	defer lock.Unlock()

	if _, err := s.loadConversation(id); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if err := os.RemoveAll(s.conversationDir(id)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		observability.RecordStoreError("delete_conversation")
		return writeErrf(err, "failed to delete conversation %s", id)
	}

	s.releaseWriteLock(id)
	s.updateActiveConversationsMetric()
	observability.RecordStoreAudit(ctx, "delete_conversation", id, "success", nil)

	logger := tracing.LoggerFromContext(ctx, log.Logger)
	logger.Info().Str("conversation_id", id).Msg("Conversation deleted")

	return nil
}

func findMessage(messages []*Message, id string) *Message {
	for _, msg := range messages {
		if msg.ID == id {
			return msg
		}
	}
	return nil
}

func copyMeta(meta map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}
