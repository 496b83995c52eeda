package convstore

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestWatcherNotifiesOnChange(t *testing.T) {
	store := newTestStore(t)

	changed := make(chan struct{}, 1)
	watcher, err := NewWatcher(store, zerolog.Nop(), func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	require.NoError(t, err)
	defer watcher.Stop()

	_, err = store.CreateConversation(context.Background(), "ide_helper", nil)
	require.NoError(t, err)

	select {
	case <-changed:
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not report the store change")
	}
}

func TestWatcherStopIsIdempotent(t *testing.T) {
	store := newTestStore(t)

	watcher, err := NewWatcher(store, zerolog.Nop(), func() {})
	require.NoError(t, err)

	require.NoError(t, watcher.Stop())
	// Second stop must not panic on the closed channel.
	watcher.Stop()
}
