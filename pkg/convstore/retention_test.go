package convstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetentionPrune(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	stale, err := store.CreateConversation(ctx, "ide_helper", nil)
	require.NoError(t, err)

	// Give the stale conversation time to fall behind the cutoff, then
	// create a fresh one that must survive.
	time.Sleep(20 * time.Millisecond)
	retention := NewRetention(store, RetentionConfig{MaxAge: 10 * time.Millisecond})

	fresh, err := store.CreateConversation(ctx, "ide_helper", nil)
	require.NoError(t, err)

	pruned, err := retention.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pruned)

	_, err = store.GetConversation(ctx, stale.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.GetConversation(ctx, fresh.ID)
	assert.NoError(t, err)
}

func TestRetentionDefaults(t *testing.T) {
	retention := NewRetention(newTestStore(t), RetentionConfig{})
	assert.Equal(t, DefaultRetentionAge, retention.maxAge)
	assert.Equal(t, DefaultRetentionSchedule, retention.schedule)
}

func TestRetentionStartStop(t *testing.T) {
	retention := NewRetention(newTestStore(t), RetentionConfig{Schedule: "@hourly"})

	require.NoError(t, retention.Start())
	assert.Error(t, retention.Start())
	require.NoError(t, retention.Stop())
}
