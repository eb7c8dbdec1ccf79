package chats

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/m3rciful/streambot/core/logger"
	"github.com/m3rciful/streambot/providers"
)

const (
	component = "service.chats"

	pqUniqueViolation = "23505"
)

// Repository implements chat and subscription persistence on sqlx.
type Repository struct {
	db *sqlx.DB
}

// NewRepository wraps db.
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

const chatColumns = `id, channel_id, is_hide_preview, is_muted, created_at, updated_at`

// GetChat loads a stored chat.
func (r *Repository) GetChat(ctx context.Context, id int64) (*Chat, error) {
	var chat Chat
	err := r.db.GetContext(ctx, &chat, `SELECT `+chatColumns+` FROM chats WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrChatNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("chats: get chat %d: %w", id, err)
	}
	return &chat, nil
}

// EnsureChat returns the stored chat or a new unsaved one with IsNew set.
func (r *Repository) EnsureChat(ctx context.Context, id int64) (*Chat, error) {
	chat, err := r.GetChat(ctx, id)
	if errors.Is(err, ErrChatNotFound) {
		return &Chat{ID: id, IsNew: true}, nil
	}
	return chat, err
}

// SaveChat inserts or updates chat and clears IsNew.
func (r *Repository) SaveChat(ctx context.Context, chat *Chat) error {
	const q = `
INSERT INTO chats (id, channel_id, is_hide_preview, is_muted)
VALUES (:id, :channel_id, :is_hide_preview, :is_muted)
ON CONFLICT (id) DO UPDATE SET
    channel_id = EXCLUDED.channel_id,
    is_hide_preview = EXCLUDED.is_hide_preview,
    is_muted = EXCLUDED.is_muted,
    updated_at = NOW()`
	if _, err := r.db.NamedExecContext(ctx, q, chat); err != nil {
		return fmt.Errorf("chats: save chat %d: %w", chat.ID, err)
	}
	if chat.IsNew {
		logger.Info(ctx, component, "chat.created", slog.Int64("chat_id", chat.ID))
	}
	chat.IsNew = false
	return nil
}

// DeleteChat removes a chat with its subscriptions.
func (r *Repository) DeleteChat(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM chats WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("chats: delete chat %d: %w", id, err)
	}
	n, _ := res.RowsAffected()
	logger.Info(ctx, component, "chat.deleted",
		slog.Int64("chat_id", id),
		slog.Int64("count", n),
	)
	return nil
}

// GetChatByChannelID finds the chat mirroring to a Telegram channel.
func (r *Repository) GetChatByChannelID(ctx context.Context, channelID string) (*Chat, error) {
	var chat Chat
	err := r.db.GetContext(ctx, &chat, `SELECT `+chatColumns+` FROM chats WHERE channel_id = $1`, channelID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrChatNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("chats: get chat by channel %s: %w", channelID, err)
	}
	return &chat, nil
}

// ChangeChatID moves a chat and its subscriptions to a new id, as when a group
// becomes a supergroup. When the target already exists the old chat is
// dropped instead.
func (r *Repository) ChangeChatID(ctx context.Context, from, to int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE chats SET id = $2, updated_at = NOW() WHERE id = $1`, from, to)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
		logger.Warn(ctx, component, "chat.migrate.conflict",
			slog.Int64("from_chat_id", from),
			slog.Int64("to_chat_id", to),
		)
		return r.DeleteChat(ctx, from)
	}
	if err != nil {
		return fmt.Errorf("chats: change chat id %d -> %d: %w", from, to, err)
	}
	logger.Info(ctx, component, "chat.migrated",
		slog.Int64("from_chat_id", from),
		slog.Int64("to_chat_id", to),
	)
	return nil
}

const channelColumns = `id, service, title, url, created_at, updated_at`

// EnsureChannel stores or refreshes a channel found by a provider.
func (r *Repository) EnsureChannel(ctx context.Context, service string, raw providers.Channel) (*Channel, error) {
	const q = `
INSERT INTO channels (id, service, title, url)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE SET
    title = EXCLUDED.title,
    url = EXCLUDED.url,
    updated_at = NOW()
RETURNING ` + channelColumns
	var ch Channel
	if err := r.db.GetContext(ctx, &ch, q, ChannelKey(service, raw.ID), service, raw.Title, raw.URL); err != nil {
		return nil, fmt.Errorf("chats: ensure channel %s: %w", raw.ID, err)
	}
	return &ch, nil
}

// GetChannelByID loads a channel.
func (r *Repository) GetChannelByID(ctx context.Context, id string) (*Channel, error) {
	var ch Channel
	err := r.db.GetContext(ctx, &ch, `SELECT `+channelColumns+` FROM channels WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrChannelNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("chats: get channel %s: %w", id, err)
	}
	return &ch, nil
}

// GetChannelsByIDs loads the existing channels among ids.
func (r *Repository) GetChannelsByIDs(ctx context.Context, ids []string) ([]Channel, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var list []Channel
	err := r.db.SelectContext(ctx, &list,
		`SELECT `+channelColumns+` FROM channels WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("chats: get channels: %w", err)
	}
	return list, nil
}

// GetChannelsByChatID lists the channels a chat subscribed to, oldest first.
func (r *Repository) GetChannelsByChatID(ctx context.Context, chatID int64) ([]Channel, error) {
	const q = `
SELECT c.id, c.service, c.title, c.url, c.created_at, c.updated_at
FROM chat_channels cc
JOIN channels c ON c.id = cc.channel_id
WHERE cc.chat_id = $1
ORDER BY cc.created_at, c.id`
	var list []Channel
	if err := r.db.SelectContext(ctx, &list, q, chatID); err != nil {
		return nil, fmt.Errorf("chats: channels of chat %d: %w", chatID, err)
	}
	return list, nil
}

// PutChatIDChannelID subscribes a stored chat to a channel. It reports false
// when the subscription already existed.
func (r *Repository) PutChatIDChannelID(ctx context.Context, chatID int64, channelID string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO chat_channels (chat_id, channel_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		chatID, channelID)
	if err != nil {
		return false, fmt.Errorf("chats: subscribe %d to %s: %w", chatID, channelID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("chats: subscribe %d to %s: %w", chatID, channelID, err)
	}
	return n > 0, nil
}

// DeleteChatIDChannelID unsubscribes a chat and returns the removed count.
func (r *Repository) DeleteChatIDChannelID(ctx context.Context, chatID int64, channelID string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM chat_channels WHERE chat_id = $1 AND channel_id = $2`, chatID, channelID)
	if err != nil {
		return 0, fmt.Errorf("chats: unsubscribe %d from %s: %w", chatID, channelID, err)
	}
	return res.RowsAffected()
}

// ListSubscriptions returns every subscription in insertion order.
func (r *Repository) ListSubscriptions(ctx context.Context) ([]Subscription, error) {
	const q = `
SELECT cc.chat_id, cc.channel_id, c.service
FROM chat_channels cc
JOIN channels c ON c.id = cc.channel_id
ORDER BY cc.created_at, cc.chat_id, cc.channel_id`
	var list []Subscription
	if err := r.db.SelectContext(ctx, &list, q); err != nil {
		return nil, fmt.Errorf("chats: list subscriptions: %w", err)
	}
	return list, nil
}

// CleanChannels removes channels nobody subscribes to and returns the count.
func (r *Repository) CleanChannels(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM channels c WHERE NOT EXISTS (SELECT 1 FROM chat_channels cc WHERE cc.channel_id = c.id)`)
	if err != nil {
		return 0, fmt.Errorf("chats: clean channels: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	logger.Info(ctx, component, "channels.cleaned", slog.Int64("count", n))
	return n, nil
}
