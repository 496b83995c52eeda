package convstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS conversations (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL DEFAULT '',
	agent_type TEXT NOT NULL,
	meta       TEXT NOT NULL DEFAULT '{}',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	id              TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	role            TEXT NOT NULL,
	content         TEXT NOT NULL,
	parent_id       TEXT NOT NULL DEFAULT '',
	depth           INTEGER NOT NULL,
	created_at      TEXT NOT NULL,
	meta            TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id);
`

// SQLiteStore is an alternative Store medium backed by a single SQLite
// database. Mutations run in transactions so per-conversation atomicity is
// inherited from the database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and migrates) a SQLite-backed store at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite store: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, writeErrf(err, "failed to migrate sqlite store %s", path)
	}

	log.Info().Str("path", path).Msg("SQLite conversation store initialized")

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateConversation(ctx context.Context, agentType string, meta map[string]interface{}) (*Conversation, error) {
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

	metaJSON, err := json.Marshal(conv.Meta)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal conversation meta: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, title, agent_type, meta, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		conv.ID, conv.Title, conv.AgentType, string(metaJSON),
		conv.CreatedAt.Format(time.RFC3339Nano), conv.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, writeErrf(err, "failed to insert conversation %s", conv.ID)
	}

	return conv, nil
}

func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, agent_type, meta, created_at, updated_at FROM conversations WHERE id = ?`, id)
	return scanConversation(row)
}

func (s *SQLiteStore) ListConversations(ctx context.Context) ([]*Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, agent_type, meta, created_at, updated_at FROM conversations ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var conversations []*Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, conv)
	}
	return conversations, rows.Err()
}

func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID string) ([]*Message, error) {
	if _, err := s.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, role, content, parent_id, depth, created_at, meta
		 FROM messages WHERE conversation_id = ? ORDER BY rowid`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages for %s: %w", conversationID, err)
	}
	defer rows.Close()

	messages := []*Message{}
	for rows.Next() {
		var msg Message
		var role, createdAt, metaJSON string
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &role, &msg.Content, &msg.ParentID, &msg.Depth, &createdAt, &metaJSON); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.Role = Role(role)
		msg.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		if err := json.Unmarshal([]byte(metaJSON), &msg.Meta); err != nil {
			return nil, fmt.Errorf("failed to parse message meta: %w", err)
		}
		messages = append(messages, &msg)
	}
	return messages, rows.Err()
}

func (s *SQLiteStore) AppendMessage(ctx context.Context, conversationID string, role Role, content string, parentID string, meta map[string]interface{}) (*Message, error) {
	id, err := NewMessageID()
	if err != nil {
		return nil, err
	}
	return s.AppendMessageWithID(ctx, conversationID, id, role, content, parentID, meta)
}

func (s *SQLiteStore) AppendMessageWithID(ctx context.Context, conversationID, id string, role Role, content string, parentID string, meta map[string]interface{}) (*Message, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("invalid message role %q", role)
	}
	if id == "" {
		return nil, fmt.Errorf("message id cannot be empty")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, writeErrf(err, "failed to begin append transaction")
	}
	defer tx.Rollback()

	var updatedAt string
	err = tx.QueryRowContext(ctx, `SELECT updated_at FROM conversations WHERE id = ?`, conversationID).Scan(&updatedAt)
	if err == sql.ErrNoRows {
		return nil, notFoundf("conversation %s", conversationID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation %s: %w", conversationID, err)
	}

	depth := 0
	if parentID != "" {
		var parentDepth int
		err = tx.QueryRowContext(ctx,
			`SELECT depth FROM messages WHERE id = ? AND conversation_id = ?`, parentID, conversationID).Scan(&parentDepth)
		if err == sql.ErrNoRows {
			return nil, notFoundf("parent message %s in conversation %s", parentID, conversationID)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load parent %s: %w", parentID, err)
		}
		depth = parentDepth + 1
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

	metaJSON, err := json.Marshal(msg.Meta)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message meta: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, role, content, parent_id, depth, created_at, meta)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.ConversationID, string(msg.Role), msg.Content, msg.ParentID, msg.Depth,
		msg.CreatedAt.Format(time.RFC3339Nano), string(metaJSON),
	)
	if err != nil {
		return nil, writeErrf(err, "failed to insert message into %s", conversationID)
	}

	// UpdatedAt stays monotonically non-decreasing.
	prev, _ := time.Parse(time.RFC3339Nano, updatedAt)
	next := msg.CreatedAt
	if prev.After(next) {
		next = prev
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE conversations SET updated_at = ? WHERE id = ?`,
		next.Format(time.RFC3339Nano), conversationID,
	)
	if err != nil {
		return nil, writeErrf(err, "failed to touch conversation %s", conversationID)
	}

	if err := tx.Commit(); err != nil {
		return nil, writeErrf(err, "failed to commit append for %s", conversationID)
	}

	return msg, nil
}

func (s *SQLiteStore) UpdateConversationTitle(ctx context.Context, id, title string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE conversations SET title = ? WHERE id = ?`, title, id)
	if err != nil {
		return writeErrf(err, "failed to update title for %s", id)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check title update for %s: %w", id, err)
	}
	if affected == 0 {
		return notFoundf("conversation %s", id)
	}
	return nil
}

func (s *SQLiteStore) DeleteConversation(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return writeErrf(err, "failed to delete conversation %s", id)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete for %s: %w", id, err)
	}
	if affected == 0 {
		return notFoundf("conversation %s", id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanConversation(row rowScanner) (*Conversation, error) {
	var conv Conversation
	var createdAt, updatedAt, metaJSON string
	err := row.Scan(&conv.ID, &conv.Title, &conv.AgentType, &metaJSON, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, notFoundf("conversation")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan conversation: %w", err)
	}
	conv.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	conv.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	if err := json.Unmarshal([]byte(metaJSON), &conv.Meta); err != nil {
		return nil, fmt.Errorf("failed to parse conversation meta: %w", err)
	}
	return &conv, nil
}
