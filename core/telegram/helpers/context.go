package helpers

import (
	"context"
	"sync"

	"github.com/m3rciful/streambot/core/logger"
)

type countersKey struct{}

// Counters tracks what a dispatch sent back to the chat.
type Counters struct {
	mu       sync.Mutex
	messages int
	keyboard bool
}

// UpdateContext builds the per-update context carrying rid, update metadata,
// the tg component logger and fresh response counters.
func UpdateContext(parent context.Context, updateID int, chatID, userID int64) context.Context {
	if parent == nil {
		parent = context.Background()
	}
	rid := logger.BuildRID(updateID, chatID, userID)
	ctx := logger.WithRID(parent, rid)
	ctx = logger.WithUpdateMeta(ctx, updateID, userID, chatID)
	ctx = logger.WithLogger(ctx, logger.Component("tg"))
	return context.WithValue(ctx, countersKey{}, &Counters{})
}

// WithHandler enriches ctx with handler metadata for downstream logs.
func WithHandler(ctx context.Context, handler string) context.Context {
	return logger.WithHandler(ctx, handler)
}

// CountResponse records a message sent or edited on behalf of the update in ctx.
func CountResponse(ctx context.Context, keyboard bool) {
	if ctx == nil {
		return
	}
	c, ok := ctx.Value(countersKey{}).(*Counters)
	if !ok {
		return
	}
	c.mu.Lock()
	c.messages++
	if keyboard {
		c.keyboard = true
	}
	c.mu.Unlock()
}

// GetCounters reads message count and keyboard presence flags from ctx.
func GetCounters(ctx context.Context) (int, bool) {
	if ctx == nil {
		return 0, false
	}
	c, ok := ctx.Value(countersKey{}).(*Counters)
	if !ok {
		return 0, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.messages, c.keyboard
}
