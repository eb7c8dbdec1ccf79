// Package youtube resolves YouTube channels through the Data API v3.
package youtube

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/maypok86/otter"
	"github.com/tidwall/gjson"

	"github.com/m3rciful/streambot/core/logger"
	"github.com/m3rciful/streambot/core/telegram/netutil"
	"github.com/m3rciful/streambot/providers"
)

const (
	component = "provider.youtube"

	// ServiceID is stored with every YouTube channel.
	ServiceID = "youtube"

	defaultBaseURL   = "https://www.googleapis.com/youtube/v3"
	defaultCacheSize = 1000
	defaultCacheTTL  = 10 * time.Minute
	maxBodyBytes     = 1 << 20
)

var (
	channelIDRe = regexp.MustCompile(`^UC[\w-]{22}$`)
	handleRe    = regexp.MustCompile(`^@[\w.-]{3,30}$`)
	videoIDRe   = regexp.MustCompile(`^[\w-]{11}$`)
)

// Config configures the client.
type Config struct {
	APIKey  string `yaml:"api_key" envconfig:"YOUTUBE_API_KEY"`
	BaseURL string `yaml:"base_url" envconfig:"YOUTUBE_BASE_URL"`
	// CacheTTLSeconds bounds how long resolved queries are reused; 0 selects
	// the default, negative disables caching.
	CacheTTLSeconds int `yaml:"cache_ttl_seconds" envconfig:"YOUTUBE_CACHE_TTL_SECONDS"`
}

// Client implements providers.Service for YouTube.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
	cache   *otter.CacheWithVariableTTL[string, providers.Channel]
	ttl     time.Duration
}

var _ providers.Service = (*Client)(nil)

// New builds a Client. A nil httpClient selects a retrying default.
func New(cfg Config, httpClient *http.Client) (*Client, error) {
	if httpClient == nil {
		httpClient = netutil.NewClient(netutil.ClientOptions{Timeout: 15 * time.Second})
	}
	c := &Client{
		apiKey:  strings.TrimSpace(cfg.APIKey),
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		http:    httpClient,
	}
	if c.baseURL == "" {
		c.baseURL = defaultBaseURL
	}
	switch {
	case cfg.CacheTTLSeconds > 0:
		c.ttl = time.Duration(cfg.CacheTTLSeconds) * time.Second
	case cfg.CacheTTLSeconds == 0:
		c.ttl = defaultCacheTTL
	}
	if c.ttl > 0 {
		cache, err := otter.MustBuilder[string, providers.Channel](defaultCacheSize).
			WithVariableTTL().
			Build()
		if err != nil {
			return nil, fmt.Errorf("youtube: build cache: %w", err)
		}
		c.cache = &cache
	}
	return c, nil
}

// ID implements providers.Service.
func (c *Client) ID() string { return ServiceID }

// Name implements providers.Service.
func (c *Client) Name() string { return "YouTube" }

// Close releases the lookup cache.
func (c *Client) Close() {
	if c.cache != nil {
		c.cache.Close()
	}
}

// FindChannel resolves a channel URL, id, @handle, video link or free-text
// query.
func (c *Client) FindChannel(ctx context.Context, query string) (providers.Channel, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return providers.Channel{}, providers.ErrChannelByQueryNotFound
	}
	if c.cache != nil {
		if ch, ok := c.cache.Get(query); ok {
			logger.Debug(ctx, component, "lookup.ok",
				slog.String("query", logger.SanitizeLimit(query, 128)),
				slog.String("cache", "hit"),
			)
			return ch, nil
		}
	}

	start := time.Now()
	ch, err := c.resolve(ctx, parseQuery(query))
	attrs := []slog.Attr{
		slog.String("query", logger.SanitizeLimit(query, 128)),
		slog.Int64("duration_ms", logger.RoundMS(time.Since(start)).Milliseconds()),
	}
	if c.cache != nil {
		attrs = append(attrs, slog.String("cache", "miss"))
	}
	if err != nil {
		attrs = append(attrs, slog.String("err", err.Error()))
		if providers.IsNotFound(err) {
			logger.Info(ctx, component, "lookup.miss", attrs...)
		} else {
			logger.Warn(ctx, component, "lookup.fail", attrs...)
		}
		return providers.Channel{}, err
	}
	logger.Info(ctx, component, "lookup.ok", append(attrs, slog.String("channel_id", ch.ID))...)
	if c.cache != nil {
		c.cache.Set(query, ch, c.ttl)
	}
	return ch, nil
}

type lookupKind int

const (
	byQuery lookupKind = iota
	byID
	byHandle
	byUsername
	byVideo
)

type lookup struct {
	kind  lookupKind
	value string
}

func parseQuery(query string) lookup {
	switch {
	case channelIDRe.MatchString(query):
		return lookup{byID, query}
	case handleRe.MatchString(query):
		return lookup{byHandle, query}
	}
	u, err := url.Parse(query)
	if err != nil || u.Host == "" {
		if !strings.Contains(query, "://") && strings.Contains(query, "youtu") {
			u, err = url.Parse("https://" + query)
		}
		if err != nil || u == nil || u.Host == "" {
			return lookup{byQuery, query}
		}
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	host = strings.TrimPrefix(host, "m.")
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	switch host {
	case "youtu.be":
		if videoIDRe.MatchString(parts[0]) {
			return lookup{byVideo, parts[0]}
		}
	case "youtube.com":
		switch {
		case len(parts) >= 2 && parts[0] == "channel" && channelIDRe.MatchString(parts[1]):
			return lookup{byID, parts[1]}
		case len(parts) >= 2 && parts[0] == "user":
			return lookup{byUsername, parts[1]}
		case len(parts) >= 2 && parts[0] == "c":
			return lookup{byQuery, parts[1]}
		case strings.HasPrefix(parts[0], "@"):
			return lookup{byHandle, parts[0]}
		case parts[0] == "watch" && videoIDRe.MatchString(u.Query().Get("v")):
			return lookup{byVideo, u.Query().Get("v")}
		}
	}
	return lookup{byQuery, query}
}

func (c *Client) resolve(ctx context.Context, l lookup) (providers.Channel, error) {
	switch l.kind {
	case byID:
		return c.channel(ctx, url.Values{"id": {l.value}})
	case byHandle:
		return c.channel(ctx, url.Values{"forHandle": {l.value}})
	case byUsername:
		return c.channel(ctx, url.Values{"forUsername": {l.value}})
	case byVideo:
		body, err := c.get(ctx, "videos", url.Values{"part": {"snippet"}, "id": {l.value}})
		if err != nil {
			return providers.Channel{}, err
		}
		channelID := gjson.GetBytes(body, "items.0.snippet.channelId").String()
		if channelID == "" {
			return providers.Channel{}, providers.ErrChannelNotFound
		}
		return c.channel(ctx, url.Values{"id": {channelID}})
	default:
		return c.search(ctx, l.value)
	}
}

func (c *Client) channel(ctx context.Context, params url.Values) (providers.Channel, error) {
	params.Set("part", "snippet")
	body, err := c.get(ctx, "channels", params)
	if err != nil {
		return providers.Channel{}, err
	}
	item := gjson.GetBytes(body, "items.0")
	id := item.Get("id").String()
	if !item.Exists() || id == "" {
		return providers.Channel{}, providers.ErrChannelNotFound
	}
	return providers.Channel{
		ID:    id,
		Title: item.Get("snippet.title").String(),
		URL:   ChannelURL(id),
	}, nil
}

func (c *Client) search(ctx context.Context, query string) (providers.Channel, error) {
	body, err := c.get(ctx, "search", url.Values{
		"part":       {"snippet"},
		"type":       {"channel"},
		"maxResults": {"1"},
		"q":          {query},
	})
	if err != nil {
		return providers.Channel{}, err
	}
	item := gjson.GetBytes(body, "items.0")
	id := item.Get("id.channelId").String()
	if id == "" {
		id = item.Get("snippet.channelId").String()
	}
	if id == "" {
		return providers.Channel{}, providers.ErrChannelByQueryNotFound
	}
	title := item.Get("snippet.channelTitle").String()
	if title == "" {
		title = item.Get("snippet.title").String()
	}
	return providers.Channel{ID: id, Title: title, URL: ChannelURL(id)}, nil
}

func (c *Client) get(ctx context.Context, method string, params url.Values) ([]byte, error) {
	if c.apiKey != "" {
		params.Set("key", c.apiKey)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+method+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("youtube: build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("youtube: %s: %w", method, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("youtube: read %s: %w", method, err)
	}
	if err := netutil.CheckStatus(resp); err != nil {
		if msg := gjson.GetBytes(body, "error.message").String(); msg != "" {
			return nil, fmt.Errorf("youtube: %s: %s: %w", method, msg, err)
		}
		return nil, fmt.Errorf("youtube: %s: %w", method, err)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("youtube: %s: malformed response", method)
	}
	return body, nil
}

// ChannelURL returns the canonical page of a channel.
func ChannelURL(id string) string {
	return "https://www.youtube.com/channel/" + id
}
