// Package tracker forwards bot usage events to a Measurement Protocol
// collector.
package tracker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/maypok86/otter"

	"github.com/m3rciful/streambot/core/logger"
	"github.com/m3rciful/streambot/core/telegram/netutil"
	"github.com/m3rciful/streambot/core/telegram/sender"
)

const (
	component = "service.tracker"

	defaultEndpoint   = "https://www.google-analytics.com/collect"
	clientIDCacheSize = 100
)

// Config configures the tracker. An empty TrackingID disables it.
type Config struct {
	TrackingID string `yaml:"tracking_id" envconfig:"TRACKER_TRACKING_ID"`
	Endpoint   string `yaml:"endpoint" envconfig:"TRACKER_ENDPOINT"`
}

// SenderOptions is the retry policy for collector posts.
var SenderOptions = sender.Options{
	Workers:      2,
	MaxRetries:   4,
	RetryBackoff: 250 * time.Millisecond,
	FixedBackoff: true,
	RetryAll:     true,
}

// Event is one tracked hit.
type Event struct {
	Category string
	Action   string
	Label    string
}

// Enqueuer runs outbound jobs in the background.
type Enqueuer interface {
	Enqueue(ctx context.Context, action, endpoint string, run func() error) error
}

// Tracker posts events asynchronously. The zero value and a nil *Tracker
// drop every event.
type Tracker struct {
	trackingID string
	endpoint   string
	client     *http.Client
	queue      Enqueuer
	clientIDs  otter.Cache[int64, string]
	enabled    bool
}

// New builds a Tracker posting through queue.
func New(cfg Config, client *http.Client, queue Enqueuer) (*Tracker, error) {
	t := &Tracker{
		trackingID: strings.TrimSpace(cfg.TrackingID),
		endpoint:   strings.TrimSpace(cfg.Endpoint),
		client:     client,
		queue:      queue,
	}
	if t.trackingID == "" {
		logger.Info(context.Background(), component, "tracker.disabled")
		return t, nil
	}
	if t.endpoint == "" {
		t.endpoint = defaultEndpoint
	}
	if t.client == nil {
		t.client = netutil.NewClient(netutil.ClientOptions{Retries: -1, Timeout: 10 * time.Second})
	}
	cache, err := otter.MustBuilder[int64, string](clientIDCacheSize).Build()
	if err != nil {
		return nil, fmt.Errorf("tracker: build cache: %w", err)
	}
	t.clientIDs = cache
	t.enabled = true
	return t, nil
}

// Close releases the client id cache.
func (t *Tracker) Close() {
	if t != nil && t.enabled {
		t.clientIDs.Close()
	}
}

// Track queues ev for chatID. Failures are logged, never returned.
func (t *Tracker) Track(ctx context.Context, chatID int64, ev Event) {
	if t == nil || !t.enabled {
		return
	}
	form := url.Values{
		"v":   {"1"},
		"tid": {t.trackingID},
		"an":  {"bot"},
		"aid": {"bot"},
		"cid": {t.clientID(chatID)},
		"t":   {"event"},
		"ec":  {ev.Category},
		"ea":  {ev.Action},
		"el":  {ev.Label},
	}
	run := func() error { return t.post(ctx, form) }
	if t.queue == nil {
		if err := run(); err != nil {
			logger.Warn(ctx, component, "track.fail", slog.String("err", err.Error()))
		}
		return
	}
	if err := t.queue.Enqueue(ctx, "track", "collect", run); err != nil {
		logger.Warn(ctx, component, "track.dropped",
			slog.String("action", ev.Action),
			slog.String("err", err.Error()),
		)
	}
}

func (t *Tracker) post(ctx context.Context, form url.Values) error {
	req, err := http.NewRequestWithContext(context.WithoutCancel(ctx), http.MethodPost, t.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return netutil.CheckStatus(resp)
}

func (t *Tracker) clientID(chatID int64) string {
	if id, ok := t.clientIDs.Get(chatID); ok {
		return id
	}
	id := ClientID(chatID).String()
	t.clientIDs.Set(chatID, id)
	return id
}

// ClientID derives a stable version 4 UUID from a chat id. The decimal digits
// are read in reversed pairs into the trailing bytes; negative ids prefix each
// pair with 1.
func ClientID(chatID int64) uuid.UUID {
	var b [16]byte
	prefix := ""
	abs := uint64(chatID)
	if chatID < 0 {
		prefix = "1"
		abs = uint64(-chatID)
	}
	digits := []byte(strconv.FormatUint(abs, 10))
	for i, j := 0, len(digits)-1; i < j; i, j = i+1, j-1 {
		digits[i], digits[j] = digits[j], digits[i]
	}
	idx := len(b) - 1
	for i := 0; i < len(digits) && idx >= 0; i += 2 {
		end := min(i+2, len(digits))
		n, _ := strconv.Atoi(prefix + string(digits[i:end]))
		b[idx] = byte(n)
		idx--
	}
	b[6] = (b[6] & 0x0f) | 0x40
	b[8] = (b[8] & 0x3f) | 0x80
	return uuid.UUID(b)
}
