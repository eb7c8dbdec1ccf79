// Package bot implements the streambot commands on top of the core router.
package bot

import (
	"context"
	"time"

	"github.com/m3rciful/streambot/chats"
	"github.com/m3rciful/streambot/core/storage"
	"github.com/m3rciful/streambot/core/telegram"
	"github.com/m3rciful/streambot/core/telegram/commands"
	"github.com/m3rciful/streambot/core/telegram/router"
	"github.com/m3rciful/streambot/locale"
	"github.com/m3rciful/streambot/providers"
	"github.com/m3rciful/streambot/tracker"
)

const component = "bot"

// trailingText lets argument-less commands ignore whatever follows them.
const trailingText = `(?:\s(?s:.*))?`

// Request attachment keys.
const (
	keyChat     = "chat"
	keyChannels = "channels"
)

// ChatStore is the chat and subscription persistence used by the handlers.
type ChatStore interface {
	EnsureChat(ctx context.Context, id int64) (*chats.Chat, error)
	SaveChat(ctx context.Context, chat *chats.Chat) error
	DeleteChat(ctx context.Context, id int64) error
	GetChatByChannelID(ctx context.Context, channelID string) (*chats.Chat, error)
	ChangeChatID(ctx context.Context, from, to int64) error

	EnsureChannel(ctx context.Context, service string, raw providers.Channel) (*chats.Channel, error)
	GetChannelByID(ctx context.Context, id string) (*chats.Channel, error)
	GetChannelsByIDs(ctx context.Context, ids []string) ([]chats.Channel, error)
	GetChannelsByChatID(ctx context.Context, chatID int64) ([]chats.Channel, error)
	PutChatIDChannelID(ctx context.Context, chatID int64, channelID string) (bool, error)
	DeleteChatIDChannelID(ctx context.Context, chatID int64, channelID string) (int64, error)
	ListSubscriptions(ctx context.Context) ([]chats.Subscription, error)
	CleanChannels(ctx context.Context) (int64, error)
}

// Tracker records usage events.
type Tracker interface {
	Track(ctx context.Context, chatID int64, ev tracker.Event)
}

// AdminAction is a maintenance task started from the admin menu. Its result
// is reported back as JSON.
type AdminAction func(ctx context.Context) (any, error)

// Deps are the collaborators of a Bot. Services must not be empty; the first
// one serves /add.
type Deps struct {
	API      telegram.API
	Chats    ChatStore
	KV       *storage.Store
	Locale   *locale.Locale
	Services []providers.Service
	Tracker  Tracker
	AdminIDs []int64
	// Now is the clock, time.Now by default.
	Now func() time.Time
}

// Bot holds the command handlers.
type Bot struct {
	api      telegram.API
	chats    ChatStore
	kv       *storage.Store
	locale   *locale.Locale
	services map[string]providers.Service
	order    []string
	tracker  Tracker
	adminIDs []int64
	actions  map[string]AdminAction
	now      func() time.Time
}

// New builds a Bot.
func New(deps Deps) *Bot {
	b := &Bot{
		api:      deps.API,
		chats:    deps.Chats,
		kv:       deps.KV,
		locale:   deps.Locale,
		services: make(map[string]providers.Service, len(deps.Services)),
		tracker:  deps.Tracker,
		adminIDs: deps.AdminIDs,
		actions:  make(map[string]AdminAction),
		now:      deps.Now,
	}
	if b.locale == nil {
		b.locale = locale.Default()
	}
	if b.now == nil {
		b.now = time.Now
	}
	for _, s := range deps.Services {
		b.services[s.ID()] = s
		b.order = append(b.order, s.ID())
	}
	b.registerDefaultActions()
	return b
}

// Register adds the bot routes to table. Order matters: global routes come
// first and pass events on with next.
func (b *Bot) Register(table *router.Table) {
	b.registerBase(table)
	b.registerMenu(table)
	b.registerUser(table)
	b.registerAdmin(table)
}

// RegisterCommands advertises the commands in the Telegram menu.
func (b *Bot) RegisterCommands(reg *telegram.Registry) {
	reg.RegisterCommand("/start", commands.Command{Description: "Show the menu", Aliases: []string{"/menu", "/help"}})
	reg.RegisterCommand("/add", commands.Command{Description: "Add channel"})
	reg.RegisterCommand("/delete", commands.Command{Description: "Delete channel"})
	reg.RegisterCommand("/list", commands.Command{Description: "Show the channel list"})
	reg.RegisterCommand("/options", commands.Command{Description: "Notification options"})
	reg.RegisterCommand("/setChannel", commands.Command{Description: "Mirror notifications to a channel", Hidden: true})
	reg.RegisterCommand("/top", commands.Command{Description: "Top 10"})
	reg.RegisterCommand("/about", commands.Command{Description: "About"})
	reg.RegisterCommand("/clear", commands.Command{Description: "Remove all channels"})
	reg.RegisterCommand("/ping", commands.Command{Description: "Check the bot is alive", Hidden: true})
	reg.RegisterCommand("/admin", commands.Command{Description: "Admin menu", AdminOnly: true})
}

// defaultService serves /add.
func (b *Bot) defaultService() providers.Service {
	if len(b.order) == 0 {
		return nil
	}
	return b.services[b.order[0]]
}

func (b *Bot) serviceName(id string) string {
	if s, ok := b.services[id]; ok {
		return s.Name()
	}
	return id
}

func (b *Bot) track(ctx context.Context, chatID int64, command, label string) {
	if b.tracker == nil {
		return
	}
	b.tracker.Track(ctx, chatID, tracker.Event{Category: "command", Action: command, Label: label})
}

func chatOf(req *router.Request) *chats.Chat {
	chat, _ := router.Attachment[*chats.Chat](req, keyChat)
	return chat
}

func channelsOf(req *router.Request) []chats.Channel {
	list, _ := router.Attachment[[]chats.Channel](req, keyChannels)
	return list
}

// fromMenu reports a button press that should edit the message it belongs
// to. Buttons carrying rel open a new message instead.
func fromMenu(req *router.Request) bool {
	return req.Kind == router.KindCallbackQuery && req.QueryValue("rel") == ""
}
