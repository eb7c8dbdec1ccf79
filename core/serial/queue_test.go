package serial

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestQueueRunsSameKeyInOrder(t *testing.T) {
	q := New[string]("test")
	defer q.Close()

	var (
		mu  sync.Mutex
		got []int
		wg  sync.WaitGroup
	)
	for i := 0; i < 50; i++ {
		i := i
		wg.Add(1)
		require.NoError(t, q.Submit("k", func() {
			defer wg.Done()
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		}))
	}
	wg.Wait()

	require.Len(t, got, 50)
	for i, v := range got {
		require.Equal(t, i, v)
	}
}

func TestQueueSameKeyNeverOverlaps(t *testing.T) {
	q := New[int]("test")
	defer q.Close()

	var running, maxRunning atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		require.NoError(t, q.Submit(1, func() {
			defer wg.Done()
			n := running.Add(1)
			for {
				m := maxRunning.Load()
				if n <= m || maxRunning.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			running.Add(-1)
		}))
	}
	wg.Wait()
	require.Equal(t, int32(1), maxRunning.Load())
}

func TestQueueDistinctKeysRunConcurrently(t *testing.T) {
	q := New[string]("test")
	defer q.Close()

	release := make(chan struct{})
	started := make(chan string, 2)
	for _, key := range []string{"a", "b"} {
		key := key
		require.NoError(t, q.Submit(key, func() {
			started <- key
			<-release
		}))
	}

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case k := <-started:
			seen[k] = true
		case <-time.After(time.Second):
			t.Fatal("second key blocked behind the first")
		}
	}
	close(release)
	require.True(t, seen["a"] && seen["b"])
}

func TestQueueDoReturnsTaskError(t *testing.T) {
	q := New[string]("test")
	defer q.Close()

	err := q.Do(context.Background(), "k", func() error { return context.Canceled })
	require.ErrorIs(t, err, context.Canceled)
}

func TestQueueDoSkipsCancelledTask(t *testing.T) {
	q := New[string]("test")
	defer q.Close()

	block := make(chan struct{})
	require.NoError(t, q.Submit("k", func() { <-block }))

	ctx, cancel := context.WithCancel(context.Background())
	var ran atomic.Bool
	errCh := make(chan error, 1)
	go func() {
		errCh <- q.Do(ctx, "k", func() error {
			ran.Store(true)
			return nil
		})
	}()
	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)
	close(block)

	require.NoError(t, q.Do(context.Background(), "k", func() error { return nil }))
	require.False(t, ran.Load())
}

func TestQueueRecoversPanicAndKeepsLane(t *testing.T) {
	q := New[string]("test")
	defer q.Close()

	require.NoError(t, q.Submit("k", func() { panic("boom") }))
	require.NoError(t, q.Do(context.Background(), "k", func() error { return nil }))
}

func TestQueueDropsIdleLanes(t *testing.T) {
	q := New[string]("test")
	require.NoError(t, q.Do(context.Background(), "k", func() error { return nil }))
	q.Close()
	require.Equal(t, 0, q.Active())
	require.ErrorIs(t, q.Submit("k", func() {}), ErrClosed)
}
