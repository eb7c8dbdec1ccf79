// Package chats persists chats, channels and subscriptions in PostgreSQL.
package chats

import (
	"errors"
	"time"
)

var (
	// ErrChatNotFound reports an unknown chat.
	ErrChatNotFound = errors.New("chats: chat not found")
	// ErrChannelNotFound reports an unknown channel.
	ErrChannelNotFound = errors.New("chats: channel not found")
)

// Chat holds the notification settings of a Telegram chat.
type Chat struct {
	ID int64 `db:"id"`
	// ChannelID is the "@username" of a Telegram channel notifications are
	// mirrored to, nil when unset.
	ChannelID     *string   `db:"channel_id"`
	IsHidePreview bool      `db:"is_hide_preview"`
	IsMuted       bool      `db:"is_muted"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`

	// IsNew marks a chat returned by EnsureChat that is not stored yet.
	IsNew bool `db:"-"`
}

// Channel returns the mirrored channel username or "".
func (c *Chat) Channel() string {
	if c.ChannelID == nil {
		return ""
	}
	return *c.ChannelID
}

// SetChannel sets or, with "", clears the mirrored channel.
func (c *Chat) SetChannel(name string) {
	if name == "" {
		c.ChannelID = nil
		return
	}
	c.ChannelID = &name
}

// Channel is a stream source chats subscribe to.
type Channel struct {
	// ID is "<service>:<service channel id>".
	ID        string    `db:"id"`
	Service   string    `db:"service"`
	Title     string    `db:"title"`
	URL       string    `db:"url"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// ChannelKey builds a Channel ID.
func ChannelKey(service, rawID string) string {
	return service + ":" + rawID
}

// Subscription links a chat to a channel.
type Subscription struct {
	ChatID    int64  `db:"chat_id"`
	ChannelID string `db:"channel_id"`
	Service   string `db:"service"`
}
