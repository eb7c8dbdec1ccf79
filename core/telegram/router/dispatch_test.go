package router

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/m3rciful/streambot/core/telegram/state"
)

func textEvent(text string) Event {
	return Event{Kind: KindMessage, UpdateID: 1, ChatID: 1, FromID: 1, MessageID: 10, Text: text}
}

func callbackEvent(data string) Event {
	return Event{Kind: KindCallbackQuery, UpdateID: 2, ChatID: 1, FromID: 1, MessageID: 10, CallbackID: "cb", Data: data}
}

func record(calls *[]string, name string, callNext bool) HandlerFunc {
	return func(ctx context.Context, req *Request, next func() error) error {
		*calls = append(*calls, name)
		if callNext {
			return next()
		}
		return nil
	}
}

func TestRouteShortCircuit(t *testing.T) {
	var calls []string
	table := NewTable()
	table.Text(`/ping`, record(&calls, "first", false))
	table.Text(`/ping`, record(&calls, "second", false))

	d := NewDispatcher(table, Options{})
	defer d.Close()
	d.Dispatch(context.Background(), textEvent("/ping"))
	require.Equal(t, []string{"first"}, calls)
}

func TestNextContinuesIntoNextRoute(t *testing.T) {
	var calls []string
	table := NewTable()
	table.TextOrCallbackQuery("", record(&calls, "track", true))
	table.Text(`/ping`, record(&calls, "auth", true), record(&calls, "ping", false))
	table.Text(`/pong`, record(&calls, "pong", false))
	table.Text(`/ping`, record(&calls, "second", false))

	d := NewDispatcher(table, Options{})
	defer d.Close()
	d.Dispatch(context.Background(), textEvent("/ping"))
	require.Equal(t, []string{"track", "auth", "ping"}, calls)

	calls = nil
	d.Dispatch(context.Background(), textEvent("/pong"))
	require.Equal(t, []string{"track", "pong"}, calls)
}

func TestNextRunsFollowingHandlerExactlyOnce(t *testing.T) {
	var calls []string
	table := NewTable()
	table.Text(`/ping`, func(ctx context.Context, req *Request, next func() error) error {
		calls = append(calls, "first")
		require.NoError(t, next())
		return next()
	})
	table.Text(`/ping`, record(&calls, "second", false))

	d := NewDispatcher(table, Options{})
	defer d.Close()
	d.Dispatch(context.Background(), textEvent("/ping"))
	require.Equal(t, []string{"first", "second"}, calls)
}

func TestParameterExtraction(t *testing.T) {
	var got []map[string]string
	table := NewTable()
	table.Text(`/setChannel(?:\s+(?<channelId>.+))?`, func(ctx context.Context, req *Request, next func() error) error {
		got = append(got, req.Params)
		return nil
	})

	d := NewDispatcher(table, Options{})
	defer d.Close()
	d.Dispatch(context.Background(), textEvent("/setChannel @foo"))
	d.Dispatch(context.Background(), textEvent("/setChannel"))

	require.Len(t, got, 2)
	require.Equal(t, "@foo", got[0]["channelId"])
	_, ok := got[1]["channelId"]
	require.False(t, ok)
}

func TestParamsFollowExecutingRoute(t *testing.T) {
	table := NewTable()
	table.Text(`/add(?:\s+(?<query>.+))?`, func(ctx context.Context, req *Request, next func() error) error {
		require.Equal(t, "abc", req.Params["query"])
		require.NoError(t, next())
		require.Equal(t, "abc", req.Params["query"])
		return nil
	})
	table.Text(`/(?<command>\w+).*`, func(ctx context.Context, req *Request, next func() error) error {
		require.Equal(t, "add", req.Params["command"])
		_, ok := req.Params["query"]
		require.False(t, ok)
		return nil
	})

	d := NewDispatcher(table, Options{})
	defer d.Close()
	d.Dispatch(context.Background(), textEvent("/add abc"))
}

func TestPatternMatchesWholePath(t *testing.T) {
	var calls []string
	table := NewTable()
	table.Text(`/add`, record(&calls, "add", false))

	d := NewDispatcher(table, Options{})
	defer d.Close()
	d.Dispatch(context.Background(), textEvent("/addChannel"))
	require.Empty(t, calls)
}

func TestBotNameSuffixIsStripped(t *testing.T) {
	var got []string
	table := NewTable()
	table.Text(`/top`, func(ctx context.Context, req *Request, next func() error) error {
		got = append(got, req.Command)
		return nil
	})

	d := NewDispatcher(table, Options{BotName: "StreamBot"})
	defer d.Close()
	d.Dispatch(context.Background(), textEvent("/top@streambot"))
	d.Dispatch(context.Background(), textEvent("/top@otherbot"))
	require.Equal(t, []string{"/top"}, got)
}

func TestCallbackQueryParsing(t *testing.T) {
	var req *Request
	table := NewTable()
	table.CallbackQuery(`/delete`, func(ctx context.Context, r *Request, next func() error) error {
		req = r
		return nil
	})

	d := NewDispatcher(table, Options{})
	defer d.Close()
	d.Dispatch(context.Background(), callbackEvent("/delete?page=2&page=3&x=%2F"))

	require.NotNil(t, req)
	require.Equal(t, "/delete", req.Path)
	require.Equal(t, "/delete", req.Command)
	require.Equal(t, "2", req.QueryValue("page"))
	require.Equal(t, "/", req.QueryValue("x"))
}

func TestTextRouteIgnoresCallbacks(t *testing.T) {
	var calls []string
	table := NewTable()
	table.Text(`/menu`, record(&calls, "text", false))
	table.CallbackQuery(`/menu`, record(&calls, "callback", false))

	d := NewDispatcher(table, Options{})
	defer d.Close()
	d.Dispatch(context.Background(), callbackEvent("/menu"))
	require.Equal(t, []string{"callback"}, calls)
}

func TestAttachmentsAreSharedAcrossRoutes(t *testing.T) {
	var seen string
	table := NewTable()
	table.Text("", func(ctx context.Context, req *Request, next func() error) error {
		req.Set("chat", "record")
		return next()
	})
	table.Text(`/list`, func(ctx context.Context, req *Request, next func() error) error {
		seen, _ = Attachment[string](req, "chat")
		return nil
	})

	d := NewDispatcher(table, Options{})
	defer d.Close()
	d.Dispatch(context.Background(), textEvent("/list"))
	require.Equal(t, "record", seen)
}

func TestErrorsAndPanicsStopAtBoundary(t *testing.T) {
	var (
		mu   sync.Mutex
		errs []error
	)
	boom := errors.New("boom")
	table := NewTable()
	table.Text(`/fail`, func(ctx context.Context, req *Request, next func() error) error { return boom })
	table.Text(`/panic`, func(ctx context.Context, req *Request, next func() error) error { panic("oops") })

	d := NewDispatcher(table, Options{OnError: func(ctx context.Context, req *Request, err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}})
	defer d.Close()

	d.Dispatch(context.Background(), textEvent("/fail"))
	d.Dispatch(context.Background(), textEvent("/panic"))

	require.Len(t, errs, 2)
	require.ErrorIs(t, errs[0], boom)
	var pe *PanicError
	require.ErrorAs(t, errs[1], &pe)
	require.Equal(t, "oops", pe.Value)
}

func TestRegisterAfterDispatchIsRejected(t *testing.T) {
	table := NewTable()
	d := NewDispatcher(table, Options{})
	defer d.Close()
	d.Dispatch(context.Background(), textEvent("/x"))

	err := table.Register([]Kind{KindText}, "/y", func(ctx context.Context, req *Request, next func() error) error { return nil })
	require.ErrorIs(t, err, ErrTableFrozen)
}

func TestWaitConsumesReply(t *testing.T) {
	var (
		calls []string
		reply string
	)
	table := NewTable()
	table.Text(`/add`, func(ctx context.Context, req *Request, next func() error) error {
		calls = append(calls, "add")
		return req.WaitResponse(WaitOptions{CancelOnCommand: true}, func(ctx context.Context, r *Request, err error) error {
			require.NoError(t, err)
			reply = r.Text()
			return nil
		})
	})
	table.Text("", record(&calls, "any text", false))

	d := NewDispatcher(table, Options{})
	defer d.Close()
	d.Dispatch(context.Background(), textEvent("/add"))
	d.Dispatch(context.Background(), textEvent("my channel"))

	require.Equal(t, "my channel", reply)
	require.Equal(t, []string{"add"}, calls)
	require.Equal(t, 0, d.Waits().Len())
}

func TestWaitIgnoresOtherKindsAndUsers(t *testing.T) {
	var calls []string
	table := NewTable()
	table.Text(`/add`, func(ctx context.Context, req *Request, next func() error) error {
		return req.WaitResponse(WaitOptions{}, func(ctx context.Context, r *Request, err error) error {
			calls = append(calls, "reply:"+r.Text())
			return nil
		})
	})
	table.CallbackQuery(`/menu`, record(&calls, "menu", false))
	table.Text("", record(&calls, "text", false))

	d := NewDispatcher(table, Options{})
	defer d.Close()
	d.Dispatch(context.Background(), textEvent("/add"))
	d.Dispatch(context.Background(), callbackEvent("/menu"))

	other := textEvent("hello")
	other.FromID = 2
	d.Dispatch(context.Background(), other)

	d.Dispatch(context.Background(), textEvent("mine"))
	require.Equal(t, []string{"menu", "text", "reply:mine"}, calls)
}

func TestWaitSupersededByNewCommand(t *testing.T) {
	var (
		calls   []string
		waitErr error
	)
	table := NewTable()
	table.Text(`/add`, func(ctx context.Context, req *Request, next func() error) error {
		return req.WaitResponse(WaitOptions{CancelOnCommand: true, Timeout: time.Minute}, func(ctx context.Context, r *Request, err error) error {
			waitErr = err
			calls = append(calls, "cancelled")
			return err
		})
	})
	table.Text(`/list`, record(&calls, "list", false))

	d := NewDispatcher(table, Options{})
	defer d.Close()
	d.Dispatch(context.Background(), textEvent("/add"))
	d.Dispatch(context.Background(), textEvent("/list"))

	require.ErrorIs(t, waitErr, state.ErrResponseCommand)
	require.Equal(t, []string{"cancelled", "list"}, calls)
}

func TestWaitWithoutCancelTakesCommandAsReply(t *testing.T) {
	var got string
	table := NewTable()
	table.Text(`/add`, func(ctx context.Context, req *Request, next func() error) error {
		return req.WaitResponse(WaitOptions{}, func(ctx context.Context, r *Request, err error) error {
			got = r.Text()
			return nil
		})
	})

	d := NewDispatcher(table, Options{})
	defer d.Close()
	d.Dispatch(context.Background(), textEvent("/add"))
	d.Dispatch(context.Background(), textEvent("/list"))
	require.Equal(t, "/list", got)
}

func TestWaitTimeoutRunsContinuation(t *testing.T) {
	done := make(chan error, 1)
	table := NewTable()
	table.Text(`/add`, func(ctx context.Context, req *Request, next func() error) error {
		return req.WaitResponse(WaitOptions{Timeout: 20 * time.Millisecond}, func(ctx context.Context, r *Request, err error) error {
			require.Nil(t, r)
			done <- err
			return nil
		})
	})

	d := NewDispatcher(table, Options{})
	defer d.Close()
	require.NoError(t, d.Handle(context.Background(), textEvent("/add")))

	select {
	case err := <-done:
		require.ErrorIs(t, err, state.ErrResponseTimeout)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout continuation did not run")
	}
}

func TestSecondWaitFails(t *testing.T) {
	var second error
	table := NewTable()
	table.Text(`/add`, func(ctx context.Context, req *Request, next func() error) error {
		noop := func(context.Context, *Request, error) error { return nil }
		if err := req.WaitResponse(WaitOptions{}, noop); err != nil {
			return err
		}
		second = req.WaitResponse(WaitOptions{}, noop)
		return nil
	})

	d := NewDispatcher(table, Options{})
	defer d.Close()
	d.Dispatch(context.Background(), textEvent("/add"))
	require.ErrorIs(t, second, state.ErrWaitExists)
}

func TestHandleKeepsChatOrder(t *testing.T) {
	var (
		mu  sync.Mutex
		got []string
		wg  sync.WaitGroup
	)
	table := NewTable()
	table.Text("", func(ctx context.Context, req *Request, next func() error) error {
		defer wg.Done()
		if req.Text() == "first" {
			time.Sleep(20 * time.Millisecond)
		}
		mu.Lock()
		got = append(got, req.Text())
		mu.Unlock()
		return nil
	})

	d := NewDispatcher(table, Options{})
	defer d.Close()
	wg.Add(2)
	require.NoError(t, d.Handle(context.Background(), textEvent("first")))
	require.NoError(t, d.Handle(context.Background(), textEvent("second")))
	wg.Wait()
	require.Equal(t, []string{"first", "second"}, got)
}

func TestCancelWaitRejectsPendingWait(t *testing.T) {
	var got error
	table := NewTable()
	table.TextOrCallbackQuery(`/add`, func(ctx context.Context, req *Request, next func() error) error {
		req.CancelWait()
		return req.WaitResponse(WaitOptions{CancelOnCommand: true}, func(ctx context.Context, reply *Request, err error) error {
			got = err
			return err
		})
	})

	d := NewDispatcher(table, Options{})
	defer d.Close()
	d.Dispatch(context.Background(), textEvent("/add"))
	require.Equal(t, 1, d.Waits().Len())

	// The button press is not a command, so only CancelWait frees the key.
	d.Dispatch(context.Background(), callbackEvent("/add"))
	require.ErrorIs(t, got, state.ErrResponseCommand)
	require.Equal(t, 1, d.Waits().Len())

	req := NewRequest(context.Background(), textEvent("x"), "")
	require.False(t, req.CancelWait())
}
