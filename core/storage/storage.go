// Package storage is a durable key-value store keeping one JSON file per key.
//
// Every key owns a serial lane: operations on the same key run one at a time in
// submission order, operations on different keys run independently. Reads never
// fail because of a missing or unreadable record; they fall back to the caller's
// default and log the cause.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/m3rciful/streambot/core/logger"
	"github.com/m3rciful/streambot/core/serial"
)

const component = "storage"

var (
	// ErrInvalidKey reports a key that cannot be mapped to a record file.
	ErrInvalidKey = errors.New("storage: invalid key")
	// ErrEncodeFailed reports a value that cannot be serialized to JSON.
	ErrEncodeFailed = errors.New("storage: encode failed")
)

// Store persists values under Options.Dir.
type Store struct {
	opts  Options
	lanes *serial.Queue[string]
}

// Open prepares the storage directory and returns a ready Store.
func Open(opts Options) (*Store, error) {
	opts = normalizeOptions(opts)
	if opts.Dir == "" {
		return nil, fmt.Errorf("storage: empty directory")
	}
	if err := os.MkdirAll(opts.Dir, opts.DirPerm); err != nil {
		return nil, fmt.Errorf("storage: ensure dir %s: %w", opts.Dir, err)
	}
	return &Store{
		opts:  opts,
		lanes: serial.New[string](component),
	}, nil
}

// Dir returns the directory holding the records.
func (s *Store) Dir() string {
	return s.opts.Dir
}

// Close waits for queued operations and rejects new ones.
func (s *Store) Close() {
	s.lanes.Close()
}

// Get reads keys and returns the values that exist. Absent or unreadable
// records are simply missing from the result.
func (s *Store) Get(ctx context.Context, keys ...string) (map[string]any, error) {
	defaults := make(map[string]any, len(keys))
	for _, k := range keys {
		defaults[k] = nil
	}
	return s.GetWithDefaults(ctx, defaults)
}

// GetWithDefaults reads every key of defaults. A key whose record is absent or
// unreadable takes its default value; nil defaults are omitted from the result.
// Only context cancellation and a closed store are reported as errors.
func (s *Store) GetWithDefaults(ctx context.Context, defaults map[string]any) (map[string]any, error) {
	type result struct {
		key   string
		value any
		found bool
	}
	var (
		mu      sync.Mutex
		results = make([]*result, 0, len(defaults))
		pending = make([]<-chan error, 0, len(defaults))
	)
	for key := range defaults {
		r := &result{key: key}
		results = append(results, r)
		pending = append(pending, s.enqueueRead(ctx, key, func(found bool, decode func(any) bool) {
			if !found {
				return
			}
			var v any
			ok := decode(&v)
			mu.Lock()
			r.value, r.found = v, ok
			mu.Unlock()
		}))
	}
	if err := awaitAll(ctx, pending); err != nil {
		return nil, err
	}

	out := make(map[string]any, len(defaults))
	mu.Lock()
	defer mu.Unlock()
	for _, r := range results {
		value := r.value
		if !r.found {
			value = defaults[r.key]
		}
		if value != nil {
			out[r.key] = value
		}
	}
	return out, nil
}

// GetValue decodes a single key into T, returning def when the record is absent
// or cannot be decoded into T.
func GetValue[T any](ctx context.Context, s *Store, key string, def T) (T, error) {
	value := def
	done := s.enqueueRead(ctx, key, func(found bool, decode func(any) bool) {
		if !found {
			return
		}
		var v T
		if decode(&v) {
			value = v
		}
	})
	if err := awaitAll(ctx, []<-chan error{done}); err != nil {
		return def, err
	}
	return value, nil
}

// Set writes every item and waits for completion. See SetAsync.
func (s *Store) Set(ctx context.Context, items map[string]any) error {
	return await(ctx, s.SetAsync(ctx, items))
}

// SetAsync queues a write per item, fully replacing prior content, and returns
// a channel yielding the joined write errors once every write completed. A nil
// value removes the key. Writes are queued before SetAsync returns, so calls
// issued one after another apply in that order.
func (s *Store) SetAsync(ctx context.Context, items map[string]any) <-chan error {
	var (
		errs    []error
		pending = make([]<-chan error, 0, len(items))
	)
	for key, value := range items {
		if value == nil {
			pending = append(pending, s.enqueue(ctx, key, s.removeFn(ctx, key)))
			continue
		}
		// Encode at submission so later caller mutations are not observed.
		data, err := json.Marshal(value)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: %s: %v", ErrEncodeFailed, key, err))
			continue
		}
		pending = append(pending, s.enqueue(ctx, key, s.writeFn(ctx, key, data)))
	}
	return collect(pending, errs)
}

// Remove deletes the records of keys and waits for completion.
// Missing records are not an error.
func (s *Store) Remove(ctx context.Context, keys ...string) error {
	return await(ctx, s.RemoveAsync(ctx, keys...))
}

// RemoveAsync queues a delete per key. See SetAsync for ordering.
func (s *Store) RemoveAsync(ctx context.Context, keys ...string) <-chan error {
	pending := make([]<-chan error, 0, len(keys))
	for _, key := range keys {
		pending = append(pending, s.enqueue(ctx, key, s.removeFn(ctx, key)))
	}
	return collect(pending, nil)
}

// enqueue submits fn to the lane of key. The returned channel receives exactly
// one value.
func (s *Store) enqueue(ctx context.Context, key string, fn func() error) <-chan error {
	done := make(chan error, 1)
	if err := ValidateKey(key); err != nil {
		done <- err
		return done
	}
	err := s.lanes.Submit(key, func() {
		if err := ctx.Err(); err != nil {
			done <- err
			return
		}
		done <- fn()
	})
	if err != nil {
		done <- err
	}
	return done
}

// collect fans in per-key results; the group only tracks completion, every
// failure is kept and joined.
func collect(pending []<-chan error, initial []error) <-chan error {
	out := make(chan error, 1)
	var (
		mu   sync.Mutex
		errs = initial
		g    errgroup.Group
	)
	for _, ch := range pending {
		ch := ch
		g.Go(func() error {
			if err := <-ch; err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	go func() {
		_ = g.Wait()
		out <- errors.Join(errs...)
	}()
	return out
}

func await(ctx context.Context, ch <-chan error) error {
	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func awaitAll(ctx context.Context, pending []<-chan error) error {
	return await(ctx, collect(pending, nil))
}

// enqueueRead schedules a read of key. fn receives found=false for absent,
// empty or invalid records; decode reports whether the record decoded into the
// given target. Read failures are logged, never returned.
func (s *Store) enqueueRead(ctx context.Context, key string, fn func(found bool, decode func(any) bool)) <-chan error {
	path, err := s.pathFor(key)
	if err != nil {
		logger.Debug(ctx, component, "read.skip",
			slog.String("key", key),
			slog.String("err", err.Error()),
		)
		fn(false, nil)
		done := make(chan error, 1)
		done <- nil
		return done
	}
	return s.enqueue(ctx, key, func() error {
		data, err := os.ReadFile(path)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				logger.Warn(ctx, component, "read.fail",
					slog.String("key", key),
					slog.String("err", err.Error()),
				)
			}
			fn(false, nil)
			return nil
		}
		// An empty record or a JSON null holds no value.
		if raw := strings.TrimSpace(string(data)); raw == "" || raw == "null" {
			fn(false, nil)
			return nil
		}
		fn(true, func(target any) bool {
			if err := json.Unmarshal(data, target); err != nil {
				logger.Warn(ctx, component, "read.decode_fail",
					slog.String("key", key),
					slog.String("err", err.Error()),
				)
				return false
			}
			return true
		})
		return nil
	})
}

func (s *Store) writeFn(ctx context.Context, key string, data []byte) func() error {
	path := filepath.Join(s.opts.Dir, key)
	return func() error {
		var err error
		if s.opts.AtomicWrites {
			err = writeAtomic(path, data, s.opts)
		} else {
			err = os.WriteFile(path, data, s.opts.FilePerm)
		}
		if err != nil {
			logger.Error(ctx, component, "write.fail",
				slog.String("key", key),
				slog.String("err", err.Error()),
			)
			return fmt.Errorf("storage: write %s: %w", key, err)
		}
		logger.Debug(ctx, component, "write.ok",
			slog.String("key", key),
			slog.Int("bytes", len(data)),
		)
		return nil
	}
}

func (s *Store) removeFn(ctx context.Context, key string) func() error {
	path := filepath.Join(s.opts.Dir, key)
	return func() error {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Error(ctx, component, "remove.fail",
				slog.String("key", key),
				slog.String("err", err.Error()),
			)
			return fmt.Errorf("storage: remove %s: %w", key, err)
		}
		return nil
	}
}

func (s *Store) pathFor(key string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	return filepath.Join(s.opts.Dir, key), nil
}

// ValidateKey reports whether key can be used as a record file name.
func ValidateKey(key string) error {
	switch {
	case strings.TrimSpace(key) == "":
		return fmt.Errorf("%w: empty key", ErrInvalidKey)
	case key == "." || key == "..":
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	case strings.ContainsAny(key, "/\\\x00"):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidKey, key)
	}
	return nil
}
