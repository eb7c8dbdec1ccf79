package sender

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/m3rciful/streambot/core/telegram/netutil"
)

func TestDispatcherRetriesTransientFailures(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, MaxRetries: 2, RetryBackoff: time.Millisecond})
	var calls atomic.Int32
	require.NoError(t, d.Enqueue(context.Background(), "track", "collect", func() error {
		if calls.Add(1) < 3 {
			return &netutil.StatusError{Code: http.StatusBadGateway}
		}
		return nil
	}))
	d.Close()
	require.Equal(t, int32(3), calls.Load())
	require.Zero(t, d.ErrorCount())
}

func TestDispatcherStopsOnPermanentFailure(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, MaxRetries: 4, RetryBackoff: time.Millisecond})
	var calls atomic.Int32
	require.NoError(t, d.Enqueue(context.Background(), "track", "", func() error {
		calls.Add(1)
		return errors.New("bad request")
	}))
	d.Close()
	require.Equal(t, int32(1), calls.Load())
	require.Equal(t, uint64(1), d.ErrorCount())
}

func TestDispatcherRetryAll(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, MaxRetries: 4, RetryBackoff: time.Millisecond, FixedBackoff: true, RetryAll: true})
	var calls atomic.Int32
	require.NoError(t, d.Enqueue(context.Background(), "track", "", func() error {
		calls.Add(1)
		return errors.New("always")
	}))
	d.Close()
	require.Equal(t, int32(5), calls.Load())
	require.Equal(t, uint64(1), d.ErrorCount())
}

func TestDispatcherRejectsAfterClose(t *testing.T) {
	d := NewDispatcher(Options{})
	d.Close()
	require.ErrorIs(t, d.Enqueue(context.Background(), "a", "", func() error { return nil }), ErrQueueClosed)
	require.Error(t, d.Enqueue(context.Background(), "a", "", nil))
}

func TestSanitizeErrorMessage(t *testing.T) {
	msg := sanitizeErrorMessage(errors.New(`Post "https://api.telegram.org/bot123:ABC-def/sendMessage": timeout`))
	require.NotContains(t, msg, "ABC-def")
	require.Contains(t, msg, "bot<redacted>")
}
