package router

import (
	"context"
	"errors"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/m3rciful/streambot/core/logger"
	tghelpers "github.com/m3rciful/streambot/core/telegram/helpers"
	"github.com/m3rciful/streambot/core/telegram/state"
)

const (
	outcomeOK        = "ok"
	outcomeFail      = "fail"
	outcomeCancelled = "cancelled"
	outcomeConsumed  = "consumed"
	outcomeUnmatched = "unmatched"
)

func logHandlerSummary(ctx context.Context, handlerName string, start time.Time, outcomeOverride string, err error, extras ...slog.Attr) {
	ctx = tghelpers.WithHandler(ctx, handlerName)
	msgs, kb := tghelpers.GetCounters(ctx)

	status := "ok"
	outcome := outcomeOverride
	switch {
	case state.IsConversationError(err):
		status = "cancelled"
		if outcome == "" {
			outcome = outcomeCancelled
		}
	case err != nil:
		status = "fail"
		if outcome == "" {
			outcome = outcomeFail
		}
	case outcome == outcomeUnmatched:
		status = "skip"
	case outcome == "":
		outcome = outcomeOK
	}

	duration := logger.RoundMS(time.Since(start)).Milliseconds()
	attrs := []slog.Attr{
		slog.String("status", status),
		slog.String("handler", handlerName),
		slog.String("outcome", outcome),
		slog.Int("messages", msgs),
		slog.Bool("kb", kb),
		slog.Int64("duration_ms", duration),
	}
	level := slog.LevelInfo
	if err != nil {
		attrs = append(attrs,
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			slog.String("err_code", deriveErrorCode(err)),
		)
		if !state.IsConversationError(err) {
			attrs = append(attrs, slog.String("cause", handlerName))
			level = slog.LevelError
		}
	}
	if len(extras) > 0 {
		attrs = append(attrs, extras...)
	}
	logger.Event(ctx, "tg", level, "handler.handled", attrs...)
}

func normalizeHandlerName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "unknown"
	}
	name = strings.TrimPrefix(name, "/")
	name = strings.ReplaceAll(name, " ", "_")
	name = strings.ReplaceAll(name, "/", ".")
	return strings.ToLower(name)
}

func deriveErrorCode(err error) string {
	if err == nil {
		return ""
	}
	type coder interface{ Code() string }
	var c coder
	if errors.As(err, &c) {
		code := strings.TrimSpace(c.Code())
		if code != "" {
			return strings.ToUpper(strings.ReplaceAll(code, " ", "_"))
		}
	}
	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t != nil && t.Name() != "" {
		return strings.ToUpper(strings.ReplaceAll(t.Name(), " ", "_"))
	}
	return "UNKNOWN_ERROR"
}
