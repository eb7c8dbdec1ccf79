package bot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/m3rciful/streambot/chats"
	"github.com/m3rciful/streambot/core/storage"
	"github.com/m3rciful/streambot/core/telegram"
	"github.com/m3rciful/streambot/core/telegram/keyboard"
	"github.com/m3rciful/streambot/core/telegram/router"
	"github.com/m3rciful/streambot/locale"
	"github.com/m3rciful/streambot/providers"
	"github.com/m3rciful/streambot/tracker"
)

const (
	userID  int64 = 1
	adminID int64 = 42
)

type apiCall struct {
	Method    string
	ChatID    int64
	Chat      string
	MessageID int
	Text      string
	Opts      telegram.MessageOptions
	Markup    keyboard.Markup
}

type fakeAPI struct {
	mu      sync.Mutex
	nextID  int
	calls   []apiCall
	editErr error
	chats   map[string]telegram.Chat
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{nextID: 100, chats: map[string]telegram.Chat{}}
}

func (a *fakeAPI) record(c apiCall) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, c)
}

func (a *fakeAPI) SendMessage(_ context.Context, chatID int64, text string, opts telegram.MessageOptions) (int, error) {
	a.mu.Lock()
	id := a.nextID
	a.nextID++
	a.mu.Unlock()
	a.record(apiCall{Method: "send", ChatID: chatID, MessageID: id, Text: text, Opts: opts})
	return id, nil
}

func (a *fakeAPI) EditMessageText(_ context.Context, chatID int64, messageID int, text string, opts telegram.MessageOptions) error {
	a.record(apiCall{Method: "edit", ChatID: chatID, MessageID: messageID, Text: text, Opts: opts})
	return a.editErr
}

func (a *fakeAPI) EditMessageReplyMarkup(_ context.Context, chatID int64, messageID int, markup keyboard.Markup) error {
	a.record(apiCall{Method: "markup", ChatID: chatID, MessageID: messageID, Markup: markup})
	return nil
}

func (a *fakeAPI) AnswerCallbackQuery(_ context.Context, callbackID, text string) error {
	a.record(apiCall{Method: "answer", Chat: callbackID, Text: text})
	return nil
}

func (a *fakeAPI) SendChatAction(_ context.Context, chat string, action string) error {
	a.record(apiCall{Method: "action", Chat: chat, Text: action})
	if _, ok := a.chats[chat]; !ok {
		return errors.New("telegram: Bad Request: chat not found (400)")
	}
	return nil
}

func (a *fakeAPI) GetChat(_ context.Context, chat string) (telegram.Chat, error) {
	c, ok := a.chats[chat]
	if !ok {
		return telegram.Chat{}, errors.New("telegram: Bad Request: chat not found (400)")
	}
	return c, nil
}

func (a *fakeAPI) reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = nil
}

func (a *fakeAPI) snapshot() []apiCall {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]apiCall(nil), a.calls...)
}

// without drops callback answers, which accompany every button press.
func (a *fakeAPI) without(method string) []apiCall {
	var out []apiCall
	for _, c := range a.snapshot() {
		if c.Method != method {
			out = append(out, c)
		}
	}
	return out
}

func (a *fakeAPI) last(t *testing.T) apiCall {
	t.Helper()
	calls := a.without("answer")
	require.NotEmpty(t, calls)
	return calls[len(calls)-1]
}

type fakeStore struct {
	mu        sync.Mutex
	chats     map[int64]chats.Chat
	channels  map[string]chats.Channel
	subs      []chats.Subscription
	migrated  [][2]int64
	failChats error
}

var _ ChatStore = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{chats: map[int64]chats.Chat{}, channels: map[string]chats.Channel{}}
}

func (s *fakeStore) EnsureChat(_ context.Context, id int64) (*chats.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failChats != nil {
		return nil, s.failChats
	}
	if c, ok := s.chats[id]; ok {
		return &c, nil
	}
	return &chats.Chat{ID: id, IsNew: true}, nil
}

func (s *fakeStore) SaveChat(_ context.Context, chat *chats.Chat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *chat
	c.IsNew = false
	chat.IsNew = false
	s.chats[c.ID] = c
	return nil
}

func (s *fakeStore) DeleteChat(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.chats, id)
	kept := s.subs[:0]
	for _, sub := range s.subs {
		if sub.ChatID != id {
			kept = append(kept, sub)
		}
	}
	s.subs = kept
	return nil
}

func (s *fakeStore) GetChatByChannelID(_ context.Context, channelID string) (*chats.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.chats {
		if c.Channel() == channelID {
			return &c, nil
		}
	}
	return nil, chats.ErrChatNotFound
}

func (s *fakeStore) ChangeChatID(_ context.Context, from, to int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.migrated = append(s.migrated, [2]int64{from, to})
	return nil
}

func (s *fakeStore) EnsureChannel(_ context.Context, service string, raw providers.Channel) (*chats.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := chats.Channel{ID: chats.ChannelKey(service, raw.ID), Service: service, Title: raw.Title, URL: raw.URL}
	s.channels[c.ID] = c
	return &c, nil
}

func (s *fakeStore) GetChannelByID(_ context.Context, id string) (*chats.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.channels[id]
	if !ok {
		return nil, chats.ErrChannelNotFound
	}
	return &c, nil
}

func (s *fakeStore) GetChannelsByIDs(_ context.Context, ids []string) ([]chats.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []chats.Channel
	for _, id := range ids {
		if c, ok := s.channels[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *fakeStore) GetChannelsByChatID(_ context.Context, chatID int64) ([]chats.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []chats.Channel
	for _, sub := range s.subs {
		if sub.ChatID == chatID {
			out = append(out, s.channels[sub.ChannelID])
		}
	}
	return out, nil
}

func (s *fakeStore) PutChatIDChannelID(_ context.Context, chatID int64, channelID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subs {
		if sub.ChatID == chatID && sub.ChannelID == channelID {
			return false, nil
		}
	}
	s.subs = append(s.subs, chats.Subscription{ChatID: chatID, ChannelID: channelID, Service: s.channels[channelID].Service})
	return true, nil
}

func (s *fakeStore) DeleteChatIDChannelID(_ context.Context, chatID int64, channelID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	kept := s.subs[:0]
	for _, sub := range s.subs {
		if sub.ChatID == chatID && sub.ChannelID == channelID {
			n++
			continue
		}
		kept = append(kept, sub)
	}
	s.subs = kept
	return n, nil
}

func (s *fakeStore) ListSubscriptions(context.Context) ([]chats.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]chats.Subscription(nil), s.subs...), nil
}

func (s *fakeStore) CleanChannels(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	used := map[string]bool{}
	for _, sub := range s.subs {
		used[sub.ChannelID] = true
	}
	var n int64
	for id := range s.channels {
		if !used[id] {
			delete(s.channels, id)
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) chat(id int64) (chats.Chat, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[id]
	return c, ok
}

type fakeService struct {
	channels map[string]providers.Channel
	err      error
}

func (s *fakeService) ID() string   { return "youtube" }
func (s *fakeService) Name() string { return "YouTube" }

func (s *fakeService) FindChannel(_ context.Context, query string) (providers.Channel, error) {
	if s.err != nil {
		return providers.Channel{}, s.err
	}
	c, ok := s.channels[query]
	if !ok {
		return providers.Channel{}, providers.ErrChannelByQueryNotFound
	}
	return c, nil
}

type fakeTracker struct {
	mu     sync.Mutex
	events []tracker.Event
}

func (t *fakeTracker) Track(_ context.Context, _ int64, ev tracker.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, ev)
}

func (t *fakeTracker) snapshot() []tracker.Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]tracker.Event(nil), t.events...)
}

func (t *fakeTracker) actions() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.events))
	for _, ev := range t.events {
		out = append(out, ev.Action)
	}
	return out
}

var (
	fooChannel = providers.Channel{ID: "UC1", Title: "Foo & Co", URL: "https://www.youtube.com/channel/UC1"}
	barChannel = providers.Channel{ID: "UC2", Title: "Bar", URL: "https://www.youtube.com/channel/UC2"}
)

type harness struct {
	api     *fakeAPI
	store   *fakeStore
	service *fakeService
	tracker *fakeTracker
	kv      *storage.Store
	bot     *Bot
	d       *router.Dispatcher
	now     time.Time
	nextMsg int

	errMu sync.Mutex
	errs  []error
}

func (h *harness) errors() []error {
	h.errMu.Lock()
	defer h.errMu.Unlock()
	return append([]error(nil), h.errs...)
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	kv, err := storage.Open(storage.Options{Dir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(kv.Close)

	h := &harness{
		api:     newFakeAPI(),
		store:   newFakeStore(),
		service: &fakeService{channels: map[string]providers.Channel{"foo": fooChannel, "bar": barChannel}},
		tracker: &fakeTracker{},
		kv:      kv,
		now:     time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
		nextMsg: 1,
	}
	h.bot = New(Deps{
		API:      h.api,
		Chats:    h.store,
		KV:       kv,
		Locale:   locale.Default(),
		Services: []providers.Service{h.service},
		Tracker:  h.tracker,
		AdminIDs: []int64{adminID},
		Now:      func() time.Time { return h.now },
	})
	table := router.NewTable()
	h.bot.Register(table)
	h.d = router.NewDispatcher(table, router.Options{
		BotName:      "streambot",
		ReplyTimeout: time.Minute,
		OnError: func(_ context.Context, _ *router.Request, err error) {
			h.errMu.Lock()
			h.errs = append(h.errs, err)
			h.errMu.Unlock()
		},
	})
	t.Cleanup(h.d.Close)
	return h
}

func (h *harness) text(chatID, fromID int64, text string) {
	h.nextMsg++
	h.d.Dispatch(context.Background(), router.Event{
		Kind:      router.KindMessage,
		UpdateID:  h.nextMsg,
		ChatID:    chatID,
		FromID:    fromID,
		MessageID: h.nextMsg,
		Text:      text,
	})
}

func (h *harness) press(chatID, fromID int64, messageID int, data string) {
	h.nextMsg++
	h.d.Dispatch(context.Background(), router.Event{
		Kind:       router.KindCallbackQuery,
		UpdateID:   h.nextMsg,
		ChatID:     chatID,
		FromID:     fromID,
		MessageID:  messageID,
		CallbackID: "cb",
		Data:       data,
	})
}

func telegramChannel(username string) telegram.Chat {
	return telegramChat(username, telegram.ChatTypeChannel)
}

func telegramChat(username, typ string) telegram.Chat {
	return telegram.Chat{ID: -100, Type: typ, Title: username, Username: username}
}

func storageTop(h *harness) (topCache, error) {
	return storage.GetValue(context.Background(), h.kv, keyTopCache, topCache{})
}

func migrationEvent(from, to int64) router.Event {
	return router.Event{Kind: router.KindMessage, ChatID: from, FromID: userID, MigrateToChatID: to}
}
