package state

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/m3rciful/streambot/core/logger"
)

const component = "conversation"

// Key identifies the conversation partner of a wait.
type Key struct {
	ChatID int64
	FromID int64
}

// Wait describes what a handler is waiting for.
type Wait[T any] struct {
	Key Key
	// Kind is the event kind a reply must have, e.g. "message".
	Kind string
	// Type narrows Kind, e.g. "text"; empty accepts any shape of Kind.
	Type    string
	Timeout time.Duration
	// CancelOnCommand rejects the wait when a new command arrives first.
	CancelOnCommand bool
	// Then runs once after settlement with the reply or the rejection.
	Then func(value T, err error)
}

// Entry is a live or settled wait.
type Entry[T any] struct {
	id       string
	wait     Wait[T]
	deadline time.Time
	timer    *time.Timer

	settleOnce sync.Once
	thenOnce   sync.Once
	done       chan struct{}
	value      T
	err        error
}

// ID returns a unique identifier for logging.
func (e *Entry[T]) ID() string { return e.id }

// Key returns the key the entry waits on.
func (e *Entry[T]) Key() Key { return e.wait.Key }

// Kind returns the event kind filter.
func (e *Entry[T]) Kind() string { return e.wait.Kind }

// Type returns the event type filter.
func (e *Entry[T]) Type() string { return e.wait.Type }

// CancelOnCommand reports whether a new command rejects the wait.
func (e *Entry[T]) CancelOnCommand() bool { return e.wait.CancelOnCommand }

// Deadline returns the instant after which the wait rejects.
func (e *Entry[T]) Deadline() time.Time { return e.deadline }

// Done is closed once the entry settles.
func (e *Entry[T]) Done() <-chan struct{} { return e.done }

// Result returns the settled outcome; it blocks until Done is closed.
func (e *Entry[T]) Result() (T, error) {
	<-e.done
	return e.value, e.err
}

// Continue runs the Then callback with the settled outcome, at most once.
// It is a no-op before settlement or without a callback.
func (e *Entry[T]) Continue() {
	select {
	case <-e.done:
	default:
		return
	}
	if e.wait.Then == nil {
		return
	}
	e.thenOnce.Do(func() { e.wait.Then(e.value, e.err) })
}

func (e *Entry[T]) settle(value T, err error) bool {
	settled := false
	e.settleOnce.Do(func() {
		settled = true
		if e.timer != nil {
			e.timer.Stop()
		}
		e.value, e.err = value, err
		close(e.done)
	})
	return settled
}

// Registry owns the live waits, at most one per Key.
type Registry[T any] struct {
	mu       sync.Mutex
	entries  map[Key]*Entry[T]
	closed   bool
	onExpire func(*Entry[T])
	now      func() time.Time
}

// Option customises a Registry.
type Option[T any] func(*Registry[T])

// WithExpireHook sets the function receiving entries rejected by their deadline.
// Without a hook the Then callback runs on the timer goroutine.
func WithExpireHook[T any](fn func(*Entry[T])) Option[T] {
	return func(r *Registry[T]) { r.onExpire = fn }
}

// NewRegistry constructs an empty Registry.
func NewRegistry[T any](opts ...Option[T]) *Registry[T] {
	r := &Registry[T]{
		entries: make(map[Key]*Entry[T]),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Wait registers w and starts its deadline timer.
func (r *Registry[T]) Wait(w Wait[T]) (*Entry[T], error) {
	if w.Timeout <= 0 {
		return nil, ErrInvalidTimeout
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}
	if _, ok := r.entries[w.Key]; ok {
		logger.Warn(context.Background(), component, "wait.exists",
			slog.Int64("chat_id", w.Key.ChatID),
			slog.Int64("user_id", w.Key.FromID),
		)
		return nil, ErrWaitExists
	}

	e := &Entry[T]{
		id:       uuid.NewString(),
		wait:     w,
		deadline: r.now().Add(w.Timeout),
		done:     make(chan struct{}),
	}
	r.entries[w.Key] = e
	e.timer = time.AfterFunc(w.Timeout, func() { r.expire(e) })

	logger.Debug(context.Background(), component, "wait.open",
		slog.String("wait_id", e.id),
		slog.Int64("chat_id", w.Key.ChatID),
		slog.Int64("user_id", w.Key.FromID),
		slog.String("wait_kind", w.Kind),
		slog.Int64("timeout_ms", w.Timeout.Milliseconds()),
	)
	return e, nil
}

// Peek returns the live entry for key without settling it.
func (r *Registry[T]) Peek(key Key) (*Entry[T], bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key]
	return e, ok
}

// Resolve settles the live entry for key with value when match accepts it.
// A nil match accepts any entry.
func (r *Registry[T]) Resolve(key Key, match func(*Entry[T]) bool, value T) (*Entry[T], bool) {
	e, ok := r.take(key, match)
	if !ok || !e.settle(value, nil) {
		return nil, false
	}
	logger.Debug(context.Background(), component, "wait.resolved", slog.String("wait_id", e.id))
	return e, true
}

// Reject settles the live entry for key with err when match accepts it.
func (r *Registry[T]) Reject(key Key, match func(*Entry[T]) bool, err error) (*Entry[T], bool) {
	e, ok := r.take(key, match)
	if !ok {
		return nil, false
	}
	var zero T
	if !e.settle(zero, err) {
		return nil, false
	}
	logger.Debug(context.Background(), component, "wait.rejected",
		slog.String("wait_id", e.id),
		slog.String("err", err.Error()),
	)
	return e, true
}

// Len returns the number of live entries.
func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Close rejects every live entry with ErrClosed without running callbacks
// and refuses new waits.
func (r *Registry[T]) Close() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[Key]*Entry[T])
	r.closed = true
	r.mu.Unlock()

	var zero T
	for _, e := range entries {
		e.settle(zero, ErrClosed)
	}
}

func (r *Registry[T]) take(key Key, match func(*Entry[T]) bool) (*Entry[T], bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key]
	if !ok {
		return nil, false
	}
	if match != nil && !match(e) {
		return nil, false
	}
	delete(r.entries, key)
	return e, true
}

// expire fires from the timer; it only acts while e is still the live entry.
func (r *Registry[T]) expire(e *Entry[T]) {
	r.mu.Lock()
	if cur, ok := r.entries[e.wait.Key]; !ok || cur != e {
		r.mu.Unlock()
		return
	}
	delete(r.entries, e.wait.Key)
	r.mu.Unlock()

	var zero T
	if !e.settle(zero, ErrResponseTimeout) {
		return
	}
	logger.Debug(context.Background(), component, "wait.expired",
		slog.String("wait_id", e.id),
		slog.Int64("chat_id", e.wait.Key.ChatID),
		slog.Int64("user_id", e.wait.Key.FromID),
	)
	if r.onExpire != nil {
		r.onExpire(e)
		return
	}
	e.Continue()
}
