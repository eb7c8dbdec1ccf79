package bot

import (
	"context"
	"errors"
	"log/slog"

	"github.com/m3rciful/streambot/core/logger"
	"github.com/m3rciful/streambot/core/telegram"
	"github.com/m3rciful/streambot/core/telegram/keyboard"
	"github.com/m3rciful/streambot/core/telegram/router"
	"github.com/m3rciful/streambot/core/telegram/state"
)

// replyFunc resumes a command with the text the user replied. promptID is the
// id of the prompt message, 0 when the command carried its argument inline.
type replyFunc func(ctx context.Context, reply *router.Request, promptID int) error

func (b *Bot) send(ctx context.Context, chatID int64, text string, opts telegram.MessageOptions) (int, error) {
	return b.api.SendMessage(ctx, chatID, text, opts)
}

// editOrSend edits messageID and falls back to a new message when there is
// nothing to edit.
func (b *Bot) editOrSend(ctx context.Context, chatID int64, messageID int, text string, opts telegram.MessageOptions) (int, error) {
	if messageID != 0 {
		err := b.api.EditMessageText(ctx, chatID, messageID, text, opts)
		switch {
		case err == nil:
			return messageID, nil
		case telegram.IsCantEdit(err), telegram.IsEditTargetMissing(err):
			logger.Debug(ctx, component, "edit.fallback", slog.String("err", err.Error()))
		default:
			return 0, err
		}
	}
	return b.send(ctx, chatID, text, opts)
}

// editMarkup swaps the keyboard of messageID. An unchanged keyboard is not an
// error.
func (b *Bot) editMarkup(ctx context.Context, chatID int64, messageID int, markup keyboard.Markup) error {
	err := b.api.EditMessageReplyMarkup(ctx, chatID, messageID, markup)
	if err != nil && telegram.IsNotModified(err) {
		return nil
	}
	return err
}

// requestData prompts for a text reply and runs then with it. A pending wait
// of the same sender is cancelled first so a repeated button press starts over.
// When the wait ends without a reply the prompt is replaced by cancelText.
func (b *Bot) requestData(ctx context.Context, req *router.Request, prompt, cancelText string, then replyFunc) error {
	req.CancelWait()

	opts := telegram.MessageOptions{}
	if req.ChatID < 0 {
		prompt += b.locale.GetMessage("groupNote")
		opts.ForceReply = true
	}
	promptID, err := b.send(ctx, req.ChatID, prompt, opts)
	if err != nil {
		return err
	}

	wait := router.WaitOptions{Kind: router.KindText, CancelOnCommand: true}
	return req.WaitResponse(wait, func(ctx context.Context, reply *router.Request, err error) error {
		if err != nil {
			if state.IsConversationError(err) {
				if _, eerr := b.editOrSend(ctx, req.ChatID, promptID, cancelText, telegram.MessageOptions{}); eerr != nil {
					return errors.Join(err, eerr)
				}
			}
			return err
		}
		return then(ctx, reply, promptID)
	})
}
