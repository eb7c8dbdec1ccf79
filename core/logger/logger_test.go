package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	coreconfig "github.com/m3rciful/streambot/core/config"
)

// installBase routes the package helpers into a buffer for the test.
func installBase(t *testing.T, format logFormat, level slog.Level) (*bytes.Buffer, *asyncWriter) {
	t.Helper()
	buf := &bytes.Buffer{}
	w := newAsyncWriter(buf)
	base.Store(slog.New(newHandler(w, level, format, defaultKeyOrder)))
	t.Cleanup(func() {
		base.Store(nil)
		_ = w.Close()
	})
	return buf, w
}

func updateCtx() context.Context {
	ctx := WithRID(context.Background(), BuildRID(42, 7, 9))
	return WithUpdateMeta(ctx, 42, 9, 7)
}

func TestKVLineOrder(t *testing.T) {
	buf, w := installBase(t, formatKV, slog.LevelInfo)

	Info(updateCtx(), "storage", "write.ok",
		slog.String("key", "liveTime"),
		slog.String("status", "OK"),
		slog.Duration("duration", 1500*time.Microsecond),
		slog.Int("bytes", 12),
	)
	require.NoError(t, w.Flush())

	line := strings.TrimSpace(buf.String())
	tokens := strings.Split(line, " ")
	require.True(t, strings.HasPrefix(tokens[0], "ts="))
	require.Equal(t, []string{
		"level=INFO",
		"component=storage",
		"event=write.ok",
		"status=ok",
		"rid=16.7.9",
		"update_id=42",
		"user_id=9",
		"chat_id=7",
		"key=liveTime",
		"duration_ms=2",
		"bytes=12",
	}, tokens[1:])
}

func TestJSONLineDropsUnknownEnumValues(t *testing.T) {
	buf, w := installBase(t, formatJSON, slog.LevelInfo)

	Warn(context.Background(), "conversation", "wait.expire_dropped",
		slog.String("wait_id", "w1"),
		slog.String("outcome", "exploded"),
		slog.String("cache", "HIT"),
		slog.Any("err", errors.New("serial: queue closed")),
		slog.String("empty", ""),
	)
	require.NoError(t, w.Flush())

	line := strings.TrimSpace(buf.String())
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &rec))
	require.Equal(t, "WARN", rec["level"])
	require.Equal(t, "conversation", rec["component"])
	require.Equal(t, "wait.expire_dropped", rec["event"])
	require.Equal(t, "hit", rec["cache"])
	require.Equal(t, "serial: queue closed", rec["err"])
	require.NotContains(t, rec, "outcome")
	require.NotContains(t, rec, "empty")
	require.NotContains(t, rec, "rid")

	require.Less(t, strings.Index(line, `"component"`), strings.Index(line, `"event"`))
	require.Less(t, strings.Index(line, `"wait_id"`), strings.Index(line, `"cache"`))
}

func TestLevelFiltering(t *testing.T) {
	buf, w := installBase(t, formatKV, slog.LevelWarn)

	Info(context.Background(), "storage", "read.skip")
	Debug(context.Background(), "storage", "read.skip")
	Error(context.Background(), "db", "db.connect", slog.String("status", "fail"))
	require.NoError(t, w.Flush())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	require.Contains(t, lines[0], "component=db event=db.connect status=fail")
	require.False(t, ShouldSampleDebug())
}

func TestContextLoggerAndGroups(t *testing.T) {
	buf, w := installBase(t, formatKV, slog.LevelInfo)

	ctx := WithLogger(updateCtx(), Component("tg").WithGroup("wire"))
	ctx = WithHandler(ctx, "cmd.add")
	Info(ctx, "", "update.received", slog.String("kind", "message"))
	require.NoError(t, w.Flush())

	line := strings.TrimSpace(buf.String())
	require.Contains(t, line, "component=tg event=update.received")
	require.Contains(t, line, "handler=cmd.add")
	require.Contains(t, line, "wire.kind=message")
}

func TestHelpersAreSilentBeforeInit(t *testing.T) {
	base.Store(nil)
	require.Nil(t, Component("storage"))
	require.Nil(t, FromContext(context.Background()))
	require.NotPanics(t, func() {
		Info(context.Background(), "storage", "write.ok")
		Error(updateCtx(), "storage", "write.fail")
	})
	require.False(t, ShouldSampleDebug())
}

func TestWriterAfterClose(t *testing.T) {
	buf := &bytes.Buffer{}
	w := newAsyncWriter(buf)
	require.NoError(t, w.Write([]byte("a\n")))
	require.NoError(t, w.Close())
	require.Equal(t, "a\n", buf.String())
	require.ErrorIs(t, w.Write([]byte("b\n")), errWriterClosed)
	require.NoError(t, w.Flush())
	require.NoError(t, w.Close())
}

func TestOptionsFromConfig(t *testing.T) {
	opts := optionsFrom(&coreconfig.Config{Logging: coreconfig.LoggingConfig{
		Level:       "warning",
		Profile:     "Dev",
		KeysOrder:   "event, component",
		DebugSample: "1/10",
	}})
	require.Equal(t, formatKV, opts.format)
	require.Equal(t, slog.LevelWarn, opts.level)
	require.Equal(t, []string{"event", "component"}, opts.order)
	require.Equal(t, int64(10), opts.debugEvery)

	opts = optionsFrom(&coreconfig.Config{Logging: coreconfig.LoggingConfig{Level: "debug", Format: "json"}})
	require.Equal(t, formatJSON, opts.format)
	require.Equal(t, slog.LevelDebug, opts.level)
	require.Equal(t, int64(defaultDebugEvery), opts.debugEvery)

	require.Equal(t, int64(1), parseDebugSample("off"))
	require.Equal(t, int64(1), parseDebugSample("0"))
	require.Equal(t, int64(20), parseDebugSample("20"))
	require.Equal(t, int64(defaultDebugEvery), parseDebugSample("x"))
}

func TestSampler(t *testing.T) {
	var s sampler
	s.every.Store(3)
	var kept int
	for i := 0; i < 9; i++ {
		if s.allow() {
			kept++
		}
	}
	require.Equal(t, 3, kept)
}

func TestCompactRID(t *testing.T) {
	require.Equal(t, "16.-2s.9", compactRID("42:-100:9"))
	require.Equal(t, "not-a-rid", compactRID("not-a-rid"))
	require.Equal(t, "1:x:2", compactRID("1:x:2"))
}

func TestSanitizeLimit(t *testing.T) {
	require.Equal(t, "ab\ncd", SanitizeLimit("a\x00b\n\u200bcd\x7f", 10))
	require.Equal(t, "привет", SanitizeLimit("привет мир", 6))
	require.Empty(t, SanitizeLimit("abc", 0))
}

func TestSummarizeStrings(t *testing.T) {
	got, cut := SummarizeStrings([]string{"a", "b", "c"}, 2)
	require.Equal(t, "a, b", got)
	require.True(t, cut)
	got, cut = SummarizeStrings([]string{"a"}, 2)
	require.Equal(t, "a", got)
	require.False(t, cut)
	require.Equal(t, time.Duration(0), RoundMS(-time.Second))
}
