package convstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "loom.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	conv, err := store.CreateConversation(ctx, "ide_helper", map[string]interface{}{"title": "DB chat"})
	require.NoError(t, err)
	assert.Equal(t, "DB chat", conv.Title)

	got, err := store.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, got.ID)
	assert.Equal(t, "ide_helper", got.AgentType)
}

func TestSQLiteStoreAppendMessage(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	conv, err := store.CreateConversation(ctx, "ide_helper", nil)
	require.NoError(t, err)

	t.Run("depth should follow the parent chain", func(t *testing.T) {
		root, err := store.AppendMessage(ctx, conv.ID, RoleUser, "root", "", nil)
		require.NoError(t, err)
		assert.Equal(t, 0, root.Depth)

		child, err := store.AppendMessage(ctx, conv.ID, RoleAssistant, "child", root.ID, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, child.Depth)

		sibling, err := store.AppendMessage(ctx, conv.ID, RoleUser, "fork", root.ID, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, sibling.Depth)
	})

	t.Run("should fail with ErrNotFound for unknown parent", func(t *testing.T) {
		_, err := store.AppendMessage(ctx, conv.ID, RoleUser, "orphan", "missing-parent", nil)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("should fail with ErrNotFound for unknown conversation", func(t *testing.T) {
		_, err := store.AppendMessage(ctx, "missing-conv", RoleUser, "hello", "", nil)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("should preserve insertion order", func(t *testing.T) {
		messages, err := store.ListMessages(ctx, conv.ID)
		require.NoError(t, err)
		require.Len(t, messages, 3)
		assert.Equal(t, "root", messages[0].Content)
		assert.Equal(t, "child", messages[1].Content)
		assert.Equal(t, "fork", messages[2].Content)
	})
}

func TestSQLiteStoreDeleteCascades(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	conv, err := store.CreateConversation(ctx, "ide_helper", nil)
	require.NoError(t, err)
	_, err = store.AppendMessage(ctx, conv.ID, RoleUser, "hello", "", nil)
	require.NoError(t, err)

	require.NoError(t, store.DeleteConversation(ctx, conv.ID))

	_, err = store.GetConversation(ctx, conv.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.ListMessages(ctx, conv.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStoreUpdateTitle(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	conv, err := store.CreateConversation(ctx, "ide_helper", nil)
	require.NoError(t, err)

	require.NoError(t, store.UpdateConversationTitle(ctx, conv.ID, "renamed"))
	got, err := store.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Title)

	assert.ErrorIs(t, store.UpdateConversationTitle(ctx, "missing", "x"), ErrNotFound)
}
