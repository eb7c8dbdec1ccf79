package state

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var key11 = Key{ChatID: 1, FromID: 1}

func TestWaitTimesOutNoEarlierThanDeadline(t *testing.T) {
	r := NewRegistry[string]()
	defer r.Close()

	start := time.Now()
	e, err := r.Wait(Wait[string]{Key: key11, Kind: "message", Type: "text", Timeout: time.Second})
	require.NoError(t, err)

	select {
	case <-e.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("wait did not expire")
	}
	elapsed := time.Since(start)

	_, err = e.Result()
	require.ErrorIs(t, err, ErrResponseTimeout)
	require.GreaterOrEqual(t, elapsed, time.Second)
	require.Less(t, elapsed, 2*time.Second)
	require.Equal(t, 0, r.Len())
}

func TestWaitResolveStopsTimer(t *testing.T) {
	var calls atomic.Int32
	r := NewRegistry[string]()
	defer r.Close()

	e, err := r.Wait(Wait[string]{
		Key:     key11,
		Kind:    "message",
		Timeout: 50 * time.Millisecond,
		Then: func(v string, err error) {
			calls.Add(1)
		},
	})
	require.NoError(t, err)

	got, ok := r.Resolve(key11, nil, "@foo")
	require.True(t, ok)
	require.Same(t, e, got)
	got.Continue()
	got.Continue()

	v, err := e.Result()
	require.NoError(t, err)
	require.Equal(t, "@foo", v)

	time.Sleep(120 * time.Millisecond)
	require.Equal(t, int32(1), calls.Load())
	_, err = e.Result()
	require.NoError(t, err)
}

func TestWaitSupersededByCommand(t *testing.T) {
	r := NewRegistry[string]()
	defer r.Close()

	e, err := r.Wait(Wait[string]{Key: key11, Kind: "message", Timeout: time.Minute, CancelOnCommand: true})
	require.NoError(t, err)

	cancelable := func(e *Entry[string]) bool { return e.CancelOnCommand() }
	_, ok := r.Reject(key11, cancelable, ErrResponseCommand)
	require.True(t, ok)

	select {
	case <-e.Done():
	default:
		t.Fatal("supersession must settle immediately")
	}
	_, err = e.Result()
	require.ErrorIs(t, err, ErrResponseCommand)
	require.True(t, IsConversationError(err))

	var coded interface{ Code() string }
	require.ErrorAs(t, err, &coded)
	require.Equal(t, CodeResponseCommand, coded.Code())
}

func TestMatchFilterLeavesEntryUntouched(t *testing.T) {
	r := NewRegistry[string]()
	defer r.Close()

	_, err := r.Wait(Wait[string]{Key: key11, Kind: "message", Type: "text", Timeout: time.Minute})
	require.NoError(t, err)

	onlyCallbacks := func(e *Entry[string]) bool { return e.Kind() == "callback_query" }
	_, ok := r.Resolve(key11, onlyCallbacks, "x")
	require.False(t, ok)

	live, ok := r.Peek(key11)
	require.True(t, ok)
	require.Equal(t, "text", live.Type())
}

func TestSecondWaitForSameKeyFails(t *testing.T) {
	r := NewRegistry[string]()
	defer r.Close()

	_, err := r.Wait(Wait[string]{Key: key11, Timeout: time.Minute})
	require.NoError(t, err)
	_, err = r.Wait(Wait[string]{Key: key11, Timeout: time.Minute})
	require.ErrorIs(t, err, ErrWaitExists)

	_, err = r.Wait(Wait[string]{Key: Key{ChatID: 1, FromID: 2}, Timeout: time.Minute})
	require.NoError(t, err)
	require.Equal(t, 2, r.Len())
}

func TestWaitRejectsNonPositiveTimeout(t *testing.T) {
	r := NewRegistry[string]()
	_, err := r.Wait(Wait[string]{Key: key11})
	require.ErrorIs(t, err, ErrInvalidTimeout)
}

func TestSettlesAtMostOnceUnderRace(t *testing.T) {
	for i := 0; i < 100; i++ {
		var (
			calls   atomic.Int32
			expired atomic.Int32
		)
		r := NewRegistry[int](WithExpireHook(func(e *Entry[int]) {
			expired.Add(1)
			e.Continue()
		}))
		e, err := r.Wait(Wait[int]{
			Key:     key11,
			Timeout: time.Millisecond,
			Then:    func(int, error) { calls.Add(1) },
		})
		require.NoError(t, err)

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			time.Sleep(time.Millisecond)
			if got, ok := r.Resolve(key11, nil, 42); ok {
				got.Continue()
			}
		}()
		wg.Wait()
		<-e.Done()
		// Let a late timer run if it is going to.
		time.Sleep(20 * time.Millisecond)

		require.Equal(t, int32(1), calls.Load())
		v, err := e.Result()
		if err != nil {
			require.ErrorIs(t, err, ErrResponseTimeout)
			require.Equal(t, int32(1), expired.Load())
		} else {
			require.Equal(t, 42, v)
			require.Equal(t, int32(0), expired.Load())
		}
		r.Close()
	}
}

func TestCloseRejectsPending(t *testing.T) {
	r := NewRegistry[string]()
	e, err := r.Wait(Wait[string]{Key: key11, Timeout: time.Minute})
	require.NoError(t, err)

	r.Close()
	_, err = e.Result()
	require.ErrorIs(t, err, ErrClosed)

	_, err = r.Wait(Wait[string]{Key: key11, Timeout: time.Minute})
	require.ErrorIs(t, err, ErrClosed)
}
