package bot

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/m3rciful/streambot/chats"
	"github.com/m3rciful/streambot/core/logger"
	"github.com/m3rciful/streambot/core/storage"
	"github.com/m3rciful/streambot/core/telegram"
	"github.com/m3rciful/streambot/core/telegram/router"
	"github.com/m3rciful/streambot/locale"
)

// Storage keys.
const (
	keyTopCache = "topCache"
	keyLiveTime = "liveTime"
)

const (
	topLimit    = 10
	topCacheTTL = 10 * time.Minute
)

var endTimeRe = regexp.MustCompile(`(\d{4}).(\d{2}).(\d{2})`)

type topCache struct {
	ExpiresAt int64  `json:"expiresAt"`
	Text      string `json:"text"`
}

// liveTime is the /about record. Message is a string or a list of lines.
type liveTime struct {
	EndTime string `json:"endTime"`
	Message any    `json:"message"`
}

func (b *Bot) registerMenu(t *router.Table) {
	t.Text(`/(?:start|menu|help)`+trailingText, b.showMenu)
	t.CallbackQuery(`/menu(?:/(?P<page>\d+))?`, b.turnMenuPage)
	t.TextOrCallbackQuery(`/top`+trailingText, b.showTop)
	t.TextOrCallbackQuery(`/about`+trailingText, b.showAbout)
}

func (b *Bot) showMenu(ctx context.Context, req *router.Request, _ func() error) error {
	_, err := b.send(ctx, req.ChatID, b.locale.GetMessage("help"), telegram.MessageOptions{
		DisablePreview: true,
		Keyboard:       menuKeyboard(0),
	})
	return err
}

func (b *Bot) turnMenuPage(ctx context.Context, req *router.Request, _ func() error) error {
	page := 0
	if raw, ok := req.Param("page"); ok {
		page, _ = strconv.Atoi(raw)
	}
	if page < 0 || page >= menuPages {
		page = 0
	}
	return b.editMarkup(ctx, req.ChatID, req.MessageID, menuKeyboard(page))
}

func (b *Bot) showTop(ctx context.Context, req *router.Request, _ func() error) error {
	text, err := b.topText(ctx)
	if err != nil {
		return err
	}
	_, err = b.send(ctx, req.ChatID, text, telegram.MessageOptions{DisablePreview: true})
	return err
}

// topText renders the subscription ranking, reusing a stored copy younger
// than topCacheTTL.
func (b *Bot) topText(ctx context.Context) (string, error) {
	now := b.now()
	cached, err := storage.GetValue(ctx, b.kv, keyTopCache, topCache{})
	if err != nil {
		return "", err
	}
	if cached.Text != "" && now.Unix() < cached.ExpiresAt {
		return cached.Text, nil
	}

	subs, err := b.chats.ListSubscriptions(ctx)
	if err != nil {
		return "", fmt.Errorf("list subscriptions: %w", err)
	}
	stats := chats.TopStats(subs, topLimit)

	var ids []string
	for _, s := range stats.Services {
		ids = append(ids, s.Top...)
	}
	titles := make(map[string]string, len(ids))
	if len(ids) > 0 {
		channels, err := b.chats.GetChannelsByIDs(ctx, ids)
		if err != nil {
			return "", fmt.Errorf("load top channels: %w", err)
		}
		for _, c := range channels {
			titles[c.ID] = c.Title
		}
	}

	lines := []string{
		b.locale.Format("users", "count", strconv.Itoa(stats.Chats)),
		b.locale.Format("channels", "count", strconv.Itoa(stats.Channels)),
	}
	for _, s := range stats.Services {
		lines = append(lines, "", fmt.Sprintf("%s (%d):", b.serviceName(s.Service), s.Channels))
		for i, id := range s.Top {
			title, ok := titles[id]
			if !ok {
				title = id
			}
			lines = append(lines, fmt.Sprintf("%d. %s", i+1, title))
		}
	}
	text := strings.Join(lines, "\n")

	done := b.kv.SetAsync(ctx, map[string]any{
		keyTopCache: topCache{ExpiresAt: now.Add(topCacheTTL).Unix(), Text: text},
	})
	go func() {
		if err := <-done; err != nil {
			logger.Warn(ctx, component, "top.cache_write_failed", slog.String("err", err.Error()))
		}
	}()
	return text, nil
}

func (b *Bot) showAbout(ctx context.Context, req *router.Request, _ func() error) error {
	lt, err := storage.GetValue(ctx, b.kv, keyLiveTime, liveTime{EndTime: "1970-01-01", Message: "{count}"})
	if err != nil {
		return err
	}
	text := locale.Replace(liveTimeMessage(lt.Message), "count", monthsLeft(lt.EndTime, b.now()))
	_, err = b.send(ctx, req.ChatID, text, telegram.MessageOptions{})
	return err
}

func liveTimeMessage(v any) string {
	switch m := v.(type) {
	case string:
		return m
	case []any:
		lines := make([]string, 0, len(m))
		for _, line := range m {
			lines = append(lines, fmt.Sprint(line))
		}
		return strings.Join(lines, "\n")
	}
	return "{count}"
}

// monthsLeft returns the 30-day months from now until endTime, truncated to
// one decimal. It is "" when endTime has no YYYY-MM-DD date.
func monthsLeft(endTime string, now time.Time) string {
	m := endTimeRe.FindStringSubmatch(endTime)
	if m == nil {
		return ""
	}
	year, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	day, _ := strconv.Atoi(m[3])
	end := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	months := end.Sub(now).Hours() / 24 / 30
	count := math.Trunc(months*10) / 10
	if count == 0 {
		// drop the sign of -0
		count = 0
	}
	return strconv.FormatFloat(count, 'f', -1, 64)
}
