package bot

import (
	"context"
	"log/slog"

	"github.com/m3rciful/streambot/core/logger"
	"github.com/m3rciful/streambot/core/telegram"
	"github.com/m3rciful/streambot/core/telegram/router"
)

func (b *Bot) registerBase(t *router.Table) {
	t.TextOrCallbackQuery("", b.trackCommand)
	t.CallbackQuery("", b.answerCallback)
	t.Message("", b.migrateChat)
	t.TextOrCallbackQuery(`/ping`+trailingText, b.ping)
}

// trackCommand records every command once the rest of the chain ran. Button
// presses are recorded under their full callback path.
func (b *Bot) trackCommand(ctx context.Context, req *router.Request, next func() error) error {
	err := next()
	action := req.Command
	if req.Kind == router.KindCallbackQuery {
		action = req.Path
	}
	if action != "" {
		b.track(ctx, req.ChatID, action, req.Text())
	}
	return err
}

// answerCallback acknowledges button presses so clients stop the spinner.
func (b *Bot) answerCallback(ctx context.Context, req *router.Request, next func() error) error {
	if err := b.api.AnswerCallbackQuery(ctx, req.Event.CallbackID, ""); err != nil {
		logger.Warn(ctx, component, "callback.answer_failed",
			slog.String("callback_id", req.Event.CallbackID),
			slog.String("err", err.Error()),
		)
	}
	return next()
}

// migrateChat moves a group's settings when it becomes a supergroup.
func (b *Bot) migrateChat(ctx context.Context, req *router.Request, next func() error) error {
	from, to := req.ChatID, req.Event.MigrateToChatID
	if to == 0 {
		return next()
	}
	if err := b.chats.ChangeChatID(ctx, from, to); err != nil {
		return err
	}
	logger.Info(ctx, component, "chat.migrated",
		slog.Int64("from", from),
		slog.Int64("to", to),
	)
	return nil
}

func (b *Bot) ping(ctx context.Context, req *router.Request, _ func() error) error {
	_, err := b.send(ctx, req.ChatID, "pong", telegram.MessageOptions{})
	return err
}
