package middleware

import (
	"context"
	"log/slog"
	"sync"
	"time"

	coreconfig "github.com/m3rciful/streambot/core/config"
	"github.com/m3rciful/streambot/core/logger"
	"github.com/m3rciful/streambot/core/telegram/router"
)

// RateLimitOptions configures behaviour of the rate limit handler.
type RateLimitOptions struct {
	Interval  time.Duration
	Exclude   map[string]struct{}
	OnLimited router.HandlerFunc
	now       func() time.Time
}

// RateLimit enforces a minimum interval between events of the same user.
// Limited events stop the dispatch.
func RateLimit(opts RateLimitOptions) router.HandlerFunc {
	var (
		userLastSeen   = make(map[int64]time.Time)
		userLastSeenMu sync.Mutex
	)
	now := opts.now
	if now == nil {
		now = time.Now
	}
	return func(ctx context.Context, req *router.Request, next func() error) error {
		if req.FromID == 0 || opts.Interval <= 0 {
			return next()
		}

		kind := coreconfig.UpdateMessage
		if req.Kind == router.KindCallbackQuery {
			kind = coreconfig.UpdateCallback
		}
		if _, skip := opts.Exclude[kind]; skip {
			return next()
		}

		ts := now()
		userLastSeenMu.Lock()
		if last, ok := userLastSeen[req.FromID]; ok && ts.Sub(last) < opts.Interval {
			userLastSeenMu.Unlock()
			logger.Warn(ctx, "tg", "tg.rate_limit",
				slog.String("status", "rate_limited"),
				slog.Int64("chat_id", req.ChatID),
				slog.Int64("user_id", req.FromID),
			)
			if opts.OnLimited != nil {
				return opts.OnLimited(ctx, req, next)
			}
			return nil
		}
		userLastSeen[req.FromID] = ts
		userLastSeenMu.Unlock()
		return next()
	}
}

// RateLimitFromConfig builds the handler from rate_limit settings; it returns
// nil when limiting is disabled.
func RateLimitFromConfig(cfg coreconfig.RateLimitConfig, onLimited router.HandlerFunc) router.HandlerFunc {
	interval := time.Duration(cfg.IntervalMS) * time.Millisecond
	if interval <= 0 {
		return nil
	}
	ex := make(map[string]struct{}, len(cfg.ExcludeUpdates))
	for _, t := range cfg.ExcludeUpdates {
		ex[t] = struct{}{}
	}
	return RateLimit(RateLimitOptions{Interval: interval, Exclude: ex, OnLimited: onLimited})
}
