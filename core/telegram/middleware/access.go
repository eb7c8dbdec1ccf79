package middleware

import (
	"context"
	"log/slog"

	"github.com/m3rciful/streambot/core/logger"
	"github.com/m3rciful/streambot/core/telegram/router"
)

// AdminOptions defines how admin-only checks should behave.
type AdminOptions struct {
	AdminIDs []int64
	OnReject router.HandlerFunc
}

// AdminOnly lets the dispatch continue only for configured admins. With no
// admins configured every sender is rejected.
func AdminOnly(opts AdminOptions) router.HandlerFunc {
	admins := make(map[int64]struct{}, len(opts.AdminIDs))
	for _, id := range opts.AdminIDs {
		admins[id] = struct{}{}
	}
	return func(ctx context.Context, req *router.Request, next func() error) error {
		if _, ok := admins[req.FromID]; ok {
			return next()
		}
		logger.Debug(ctx, "tg", "access.denied",
			slog.Int64("user_id", req.FromID),
			slog.String("command", req.Command),
		)
		if opts.OnReject != nil {
			return opts.OnReject(ctx, req, next)
		}
		return nil
	}
}
