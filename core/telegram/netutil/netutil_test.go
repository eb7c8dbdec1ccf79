package netutil

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestShouldRetry(t *testing.T) {
	require.False(t, ShouldRetry(nil))
	require.False(t, ShouldRetry(errors.New("boom")))
	require.True(t, ShouldRetry(&StatusError{Code: http.StatusBadGateway}))
	require.True(t, ShouldRetry(&StatusError{Code: http.StatusTooManyRequests}))
	require.False(t, ShouldRetry(&StatusError{Code: http.StatusBadRequest}))
	require.True(t, ShouldRetry(&net.OpError{Op: "dial", Err: errors.New("refused")}))
}

func TestCheckStatus(t *testing.T) {
	require.NoError(t, CheckStatus(&http.Response{StatusCode: http.StatusNoContent}))

	err := CheckStatus(&http.Response{StatusCode: http.StatusServiceUnavailable, Status: "503 Service Unavailable"})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	require.Equal(t, http.StatusServiceUnavailable, se.Code)
	require.Contains(t, err.Error(), "503")
}

func TestSleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	require.ErrorIs(t, Sleep(ctx, time.Second), context.Canceled)
	require.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestNewClientServesRequests(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewClient(ClientOptions{Retries: -1, Timeout: time.Second})
	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, CheckStatus(resp))
}
