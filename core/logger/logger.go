// Package logger writes one structured line per event. Every line names the
// component and the event; records logged while handling an update also carry
// the update metadata stored in the context.
package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/m3rciful/streambot/core/buildinfo"
	coreconfig "github.com/m3rciful/streambot/core/config"
)

const defaultDebugEvery = 50

var (
	lifecycleMu sync.Mutex
	started     bool
	stopped     bool
	sink        *asyncWriter
	logFiles    []io.Closer

	levelVar slog.LevelVar
	debugLog sampler

	// base is nil until InitLogger; every helper drops records then.
	base atomic.Pointer[slog.Logger]
)

// options is the part of the logging config the handler needs.
type options struct {
	format     logFormat
	order      []string
	level      slog.Level
	debugEvery int64
}

// InitLogger installs the process logger. Later calls are no-ops.
func InitLogger(cfg *coreconfig.Config) error {
	lifecycleMu.Lock()
	defer lifecycleMu.Unlock()
	if started {
		return nil
	}

	writers, closers, err := openOutputs(cfg)
	if err != nil {
		return err
	}
	opts := optionsFrom(cfg)
	levelVar.Set(opts.level)
	debugLog.every.Store(opts.debugEvery)

	sink = newAsyncWriter(io.MultiWriter(writers...))
	logFiles = closers
	l := slog.New(newHandler(sink, &levelVar, opts.format, opts.order))
	base.Store(l)
	slog.SetDefault(l)
	started = true

	Info(context.Background(), "app", "startup",
		slog.String("go_version", runtime.Version()),
		slog.String("build_version", buildinfo.Version),
		slog.String("build_commit", buildinfo.Commit),
		slog.String("build_time", buildinfo.Date),
		slog.String("cfg_profile", profileOf(cfg)),
	)
	return nil
}

// Shutdown flushes pending lines and closes the log files.
func Shutdown() error {
	lifecycleMu.Lock()
	defer lifecycleMu.Unlock()
	if !started || stopped {
		return nil
	}
	stopped = true

	var errs []error
	if sink != nil {
		errs = append(errs, sink.Close())
	}
	for _, c := range logFiles {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

func optionsFrom(cfg *coreconfig.Config) options {
	opts := options{format: formatJSON, order: defaultKeyOrder, level: slog.LevelInfo, debugEvery: defaultDebugEvery}
	if cfg == nil {
		return opts
	}
	lc := cfg.Logging

	switch strings.ToLower(strings.TrimSpace(lc.Format)) {
	case "kv", "text", "pretty":
		opts.format = formatKV
	case "json":
	default:
		if p := profileOf(cfg); p == "debug" || p == "dev" {
			opts.format = formatKV
		}
	}

	if raw := strings.TrimSpace(lc.KeysOrder); raw != "" && raw != "default" {
		var order []string
		for _, k := range strings.Split(raw, ",") {
			if k = strings.TrimSpace(k); k != "" {
				order = append(order, k)
			}
		}
		if len(order) > 0 {
			opts.order = order
		}
	}

	if raw := strings.TrimSpace(lc.Level); strings.EqualFold(raw, "warning") {
		opts.level = slog.LevelWarn
	} else if raw != "" {
		var l slog.Level
		if err := l.UnmarshalText([]byte(raw)); err == nil {
			opts.level = l
		}
	}

	opts.debugEvery = parseDebugSample(lc.DebugSample)
	return opts
}

// parseDebugSample reads "1/N" or "N" as "keep one of every N sampled debug
// lines". "0" and "off" keep all of them.
func parseDebugSample(raw string) int64 {
	raw = strings.ToLower(strings.TrimSpace(raw))
	switch raw {
	case "":
		return defaultDebugEvery
	case "off":
		return 1
	}
	raw = strings.TrimPrefix(raw, "1/")
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || n < 0 {
		return defaultDebugEvery
	}
	if n == 0 {
		return 1
	}
	return n
}

func profileOf(cfg *coreconfig.Config) string {
	if cfg == nil {
		return ""
	}
	if p := strings.TrimSpace(cfg.Logging.Profile); p != "" {
		return strings.ToLower(p)
	}
	return "prod"
}

func openOutputs(cfg *coreconfig.Config) ([]io.Writer, []io.Closer, error) {
	writers := []io.Writer{os.Stdout}
	if cfg == nil {
		return writers, nil, nil
	}
	dir := strings.TrimSpace(cfg.Logging.Dir)
	name := strings.TrimSpace(cfg.Logging.BotFile)
	if dir == "" || name == "" {
		return writers, nil, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("logger: create log dir %s: %w", dir, err)
	}
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("logger: open log file %s: %w", path, err)
	}
	return append(writers, f), []io.Closer{f}, nil
}

// sampler keeps one of every n calls.
type sampler struct {
	every atomic.Int64
	n     atomic.Int64
}

func (s *sampler) allow() bool {
	every := s.every.Load()
	if every <= 1 {
		return true
	}
	return (s.n.Add(1)-1)%every == 0
}

// ShouldSampleDebug reports whether a high-volume debug line should be
// written. It is false whenever debug logging is off.
func ShouldSampleDebug() bool {
	l := base.Load()
	if l == nil || !l.Enabled(context.Background(), slog.LevelDebug) {
		return false
	}
	return debugLog.allow()
}

// Component returns the base logger scoped to name, nil before InitLogger.
func Component(name string) *slog.Logger {
	l := base.Load()
	if l == nil {
		return nil
	}
	if name = strings.TrimSpace(name); name == "" {
		return l
	}
	return l.With(slog.String("component", name))
}

// Event logs event at level for component. The context logger is used when
// ctx carries one.
func Event(ctx context.Context, component string, level slog.Level, event string, attrs ...slog.Attr) {
	if ctx == nil {
		ctx = context.Background()
	}
	l := FromContext(ctx)
	if l == nil || !l.Enabled(ctx, level) {
		return
	}
	if component = strings.TrimSpace(component); component != "" {
		attrs = append([]slog.Attr{slog.String("component", component)}, attrs...)
	}
	l.LogAttrs(ctx, level, event, attrs...)
}

// Debug logs a debug-level event for component.
func Debug(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelDebug, event, attrs...)
}

// Info logs an info-level event for component.
func Info(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelInfo, event, attrs...)
}

// Warn logs a warn-level event for component.
func Warn(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelWarn, event, attrs...)
}

// Error logs an error-level event for component.
func Error(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelError, event, attrs...)
}
