// Package serial runs tasks one at a time per key while distinct keys proceed
// concurrently. It backs per-key storage operations and per-chat dispatch.
package serial

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/m3rciful/streambot/core/logger"
)

// ErrClosed is returned when a task is submitted after Close.
var ErrClosed = errors.New("serial: queue closed")

// Queue owns one lane per active key. A lane exists only while it has work;
// its goroutine exits once the lane drains.
type Queue[K comparable] struct {
	name string

	mu     sync.Mutex
	lanes  map[K]*lane
	closed bool
	wg     sync.WaitGroup
}

type lane struct {
	tasks []func()
}

// New constructs an empty queue. The name is used as the log component suffix.
func New[K comparable](name string) *Queue[K] {
	return &Queue[K]{
		name:  name,
		lanes: make(map[K]*lane),
	}
}

// Submit appends task to the lane of key without waiting for it.
func (q *Queue[K]) Submit(key K, task func()) error {
	if task == nil {
		return nil
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	if l, ok := q.lanes[key]; ok {
		l.tasks = append(l.tasks, task)
		q.mu.Unlock()
		return nil
	}
	l := &lane{}
	q.lanes[key] = l
	q.wg.Add(1)
	q.mu.Unlock()

	go q.drain(key, l, task)
	return nil
}

// Do submits fn to the lane of key and waits for its result.
// A task whose context is already done when its turn comes is skipped.
func (q *Queue[K]) Do(ctx context.Context, key K, fn func() error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	done := make(chan error, 1)
	err := q.Submit(key, func() {
		if err := ctx.Err(); err != nil {
			done <- err
			return
		}
		done <- fn()
	})
	if err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Active reports the number of lanes currently holding work.
func (q *Queue[K]) Active() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.lanes)
}

// Close rejects new tasks and waits for queued ones to finish.
func (q *Queue[K]) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wg.Wait()
}

func (q *Queue[K]) drain(key K, l *lane, task func()) {
	defer q.wg.Done()
	for {
		q.run(key, task)

		q.mu.Lock()
		if len(l.tasks) == 0 {
			delete(q.lanes, key)
			q.mu.Unlock()
			return
		}
		task = l.tasks[0]
		l.tasks[0] = nil
		l.tasks = l.tasks[1:]
		q.mu.Unlock()
	}
}

func (q *Queue[K]) run(key K, task func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error(context.Background(), "serial."+q.name, "task.panic",
				slog.String("key", fmt.Sprint(key)),
				slog.Any("err", r),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()
	task()
}
