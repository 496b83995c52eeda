package commandqueue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandQueue_BasicEnqueue(t *testing.T) {
	cq := New()
	defer cq.Close()

	executed := false
	task := func(ctx context.Context) (interface{}, error) {
		executed = true
		return "result", nil
	}

	result, err := cq.Enqueue(ConversationLane("c1"), task, nil)

	assert.NoError(t, err)
	assert.Equal(t, "result", result)
	assert.True(t, executed)
}

func TestCommandQueue_TaskError(t *testing.T) {
	cq := New()
	defer cq.Close()

	expectedErr := errors.New("task failed")
	task := func(ctx context.Context) (interface{}, error) {
		return nil, expectedErr
	}

	result, err := cq.Enqueue(ConversationLane("c1"), task, nil)

	assert.Error(t, err)
	assert.Equal(t, expectedErr, err)
	assert.Nil(t, result)
}

func TestCommandQueue_ConversationLaneIsSerial(t *testing.T) {
	cq := New()
	defer cq.Close()

	var running int32
	var maxRunning int32
	var wg sync.WaitGroup

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			task := func(ctx context.Context) (interface{}, error) {
				now := atomic.AddInt32(&running, 1)
				for {
					max := atomic.LoadInt32(&maxRunning)
					if now <= max || atomic.CompareAndSwapInt32(&maxRunning, max, now) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				atomic.AddInt32(&running, -1)
				return nil, nil
			}
			_, _ = cq.Enqueue(ConversationLane("serial"), task, nil)
		}()
	}

	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&maxRunning))
}

func TestCommandQueue_DifferentConversationsRunInParallel(t *testing.T) {
	cq := New()
	defer cq.Close()

	started := make(chan string, 2)
	release := make(chan struct{})
	var wg sync.WaitGroup

	for _, conv := range []string{"c1", "c2"} {
		conv := conv
		wg.Add(1)
		go func() {
			defer wg.Done()
			task := func(ctx context.Context) (interface{}, error) {
				started <- conv
				<-release
				return nil, nil
			}
			_, _ = cq.Enqueue(ConversationLane(conv), task, nil)
		}()
	}

	// Both tasks must start before either finishes.
	for i := 0; i < 2; i++ {
		select {
		case <-started:
		case <-time.After(2 * time.Second):
			t.Fatal("tasks in distinct lanes did not run concurrently")
		}
	}
	close(release)
	wg.Wait()
}

func TestCommandQueue_EnqueueIdempotent(t *testing.T) {
	cq := New()
	defer cq.Close()

	var calls int32
	task := func(ctx context.Context) (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		return "once", nil
	}

	first, err := cq.EnqueueIdempotent(context.Background(), ConversationLane("c1"), "req-1", task, nil)
	assert.NoError(t, err)
	second, err := cq.EnqueueIdempotent(context.Background(), ConversationLane("c1"), "req-1", task, nil)
	assert.NoError(t, err)

	assert.Equal(t, "once", first)
	assert.Equal(t, "once", second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestCommandQueue_ClearLane(t *testing.T) {
	cq := New()
	defer cq.Close()

	release := make(chan struct{})
	go func() {
		_, _ = cq.Enqueue("blocked", func(ctx context.Context) (interface{}, error) {
			<-release
			return nil, nil
		}, nil)
	}()

	// Wait for the blocker to start, then queue one behind it.
	for cq.GetRunningCount("blocked") == 0 {
		time.Sleep(time.Millisecond)
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := cq.Enqueue("blocked", func(ctx context.Context) (interface{}, error) {
			return nil, nil
		}, nil)
		errCh <- err
	}()

	for cq.GetQueueSize("blocked") == 0 {
		time.Sleep(time.Millisecond)
	}

	cleared := cq.ClearLane("blocked")
	assert.Equal(t, 1, cleared)
	assert.Error(t, <-errCh)

	close(release)
}

func TestCommandQueue_GetStats(t *testing.T) {
	cq := New()
	defer cq.Close()

	_, _ = cq.Enqueue(ConversationLane("c1"), func(ctx context.Context) (interface{}, error) {
		return nil, nil
	}, nil)

	stats := cq.GetStats()
	assert.Contains(t, stats, MaintenanceLane)
	assert.Contains(t, stats, ConversationLane("c1"))
	assert.Equal(t, 1, stats[ConversationLane("c1")]["concurrency"])
}

func TestCommandQueue_WaitForActive(t *testing.T) {
	cq := New()
	defer cq.Close()

	go func() {
		_, _ = cq.Enqueue(ConversationLane("c1"), func(ctx context.Context) (interface{}, error) {
			time.Sleep(50 * time.Millisecond)
			return nil, nil
		}, nil)
	}()

	time.Sleep(10 * time.Millisecond)
	assert.True(t, cq.WaitForActive(2*time.Second))
}

func TestDedupCache_Expiry(t *testing.T) {
	cache := newDedupCache(context.Background(), 20*time.Millisecond)
	defer cache.Stop()

	cache.Set("req", taskResult{value: "v"})

	got, ok := cache.Get("req")
	assert.True(t, ok)
	assert.Equal(t, "v", got.value)

	time.Sleep(30 * time.Millisecond)
	_, ok = cache.Get("req")
	assert.False(t, ok)
}

func TestCommandQueue_Events(t *testing.T) {
	cq := New()
	defer cq.Close()

	var mu sync.Mutex
	var seen []string
	cq.On("completed", func(event Event) {
		mu.Lock()
		seen = append(seen, event.Lane)
		mu.Unlock()
	})

	_, err := cq.Enqueue(ConversationLane("c1"), func(ctx context.Context) (interface{}, error) {
		return nil, nil
	}, nil)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 1 && seen[0] == ConversationLane("c1")
	}, 2*time.Second, 10*time.Millisecond)

	cq.Off("completed")
}

func TestCommandQueue_SetConcurrency(t *testing.T) {
	cq := New()
	defer cq.Close()

	cq.SetConcurrency("bulk", 3)

	var running, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = cq.Enqueue("bulk", func(ctx context.Context) (interface{}, error) {
				n := atomic.AddInt32(&running, 1)
				for {
					p := atomic.LoadInt32(&peak)
					if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
						break
					}
				}
				time.Sleep(30 * time.Millisecond)
				atomic.AddInt32(&running, -1)
				return nil, nil
			}, nil)
		}()
	}
	wg.Wait()

	assert.Greater(t, atomic.LoadInt32(&peak), int32(1))
}
