package telegram

import (
	"context"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"

	tghelpers "github.com/m3rciful/streambot/core/telegram/helpers"
	"github.com/m3rciful/streambot/core/telegram/keyboard"
)

// ChatTypeChannel is the chat type of broadcast channels.
const ChatTypeChannel = "channel"

// ActionTyping is the "typing…" chat action.
const ActionTyping = "typing"

// Chat is the subset of chat metadata handlers inspect.
type Chat struct {
	ID       int64
	Type     string
	Title    string
	Username string
}

// MessageOptions controls how a message is rendered.
type MessageOptions struct {
	HTML           bool
	DisablePreview bool
	Keyboard       keyboard.Markup
	ForceReply     bool
	ReplyTo        int
}

// API is the outbound capability handlers use to talk to Telegram. Chat
// references accept a numeric id or an "@username".
type API interface {
	SendMessage(ctx context.Context, chatID int64, text string, opts MessageOptions) (int, error)
	EditMessageText(ctx context.Context, chatID int64, messageID int, text string, opts MessageOptions) error
	EditMessageReplyMarkup(ctx context.Context, chatID int64, messageID int, markup keyboard.Markup) error
	AnswerCallbackQuery(ctx context.Context, callbackID, text string) error
	SendChatAction(ctx context.Context, chat string, action string) error
	GetChat(ctx context.Context, chat string) (Chat, error)
}

// BotAPI implements API on top of a telebot bot.
type BotAPI struct {
	bot *tele.Bot
}

var _ API = (*BotAPI)(nil)

// NewBotAPI wraps bot.
func NewBotAPI(bot *tele.Bot) *BotAPI {
	return &BotAPI{bot: bot}
}

// SendMessage sends text and returns the new message id.
func (a *BotAPI) SendMessage(ctx context.Context, chatID int64, text string, opts MessageOptions) (int, error) {
	msg, err := a.bot.Send(tele.ChatID(chatID), text, sendOptions(opts))
	if err != nil {
		return 0, err
	}
	tghelpers.CountResponse(ctx, len(opts.Keyboard) > 0)
	return msg.ID, nil
}

// EditMessageText replaces the text and keyboard of a message.
func (a *BotAPI) EditMessageText(ctx context.Context, chatID int64, messageID int, text string, opts MessageOptions) error {
	if _, err := a.bot.Edit(stored(chatID, messageID), text, sendOptions(opts)); err != nil {
		return err
	}
	tghelpers.CountResponse(ctx, len(opts.Keyboard) > 0)
	return nil
}

// EditMessageReplyMarkup replaces the inline keyboard of a message.
func (a *BotAPI) EditMessageReplyMarkup(ctx context.Context, chatID int64, messageID int, markup keyboard.Markup) error {
	if _, err := a.bot.EditReplyMarkup(stored(chatID, messageID), inlineMarkup(markup)); err != nil {
		return err
	}
	tghelpers.CountResponse(ctx, true)
	return nil
}

// AnswerCallbackQuery acknowledges a button press, optionally with a toast.
func (a *BotAPI) AnswerCallbackQuery(_ context.Context, callbackID, text string) error {
	var resp *tele.CallbackResponse
	if text != "" {
		resp = &tele.CallbackResponse{Text: text}
	} else {
		resp = &tele.CallbackResponse{}
	}
	return a.bot.Respond(&tele.Callback{ID: callbackID}, resp)
}

// SendChatAction broadcasts a chat action such as ActionTyping.
func (a *BotAPI) SendChatAction(_ context.Context, chat string, action string) error {
	return a.bot.Notify(recipient(chat), tele.ChatAction(action))
}

// GetChat resolves chat metadata.
func (a *BotAPI) GetChat(_ context.Context, chat string) (Chat, error) {
	c, err := a.bot.ChatByUsername(chat)
	if err != nil {
		return Chat{}, err
	}
	return Chat{ID: c.ID, Type: string(c.Type), Title: c.Title, Username: c.Username}, nil
}

type username string

func (u username) Recipient() string { return string(u) }

func recipient(chat string) tele.Recipient {
	if id, err := strconv.ParseInt(strings.TrimSpace(chat), 10, 64); err == nil {
		return tele.ChatID(id)
	}
	return username(chat)
}

func stored(chatID int64, messageID int) tele.StoredMessage {
	return tele.StoredMessage{MessageID: strconv.Itoa(messageID), ChatID: chatID}
}

func sendOptions(opts MessageOptions) *tele.SendOptions {
	so := &tele.SendOptions{DisableWebPagePreview: opts.DisablePreview}
	if opts.HTML {
		so.ParseMode = tele.ModeHTML
	}
	if opts.ReplyTo != 0 {
		so.ReplyTo = &tele.Message{ID: opts.ReplyTo}
	}
	switch {
	case opts.ForceReply:
		so.ReplyMarkup = &tele.ReplyMarkup{ForceReply: true, Selective: true}
	case opts.Keyboard != nil:
		so.ReplyMarkup = inlineMarkup(opts.Keyboard)
	}
	return so
}

func inlineMarkup(markup keyboard.Markup) *tele.ReplyMarkup {
	rows := make([][]tele.InlineButton, 0, len(markup))
	for _, row := range markup {
		r := make([]tele.InlineButton, 0, len(row))
		for _, b := range row {
			r = append(r, tele.InlineButton{Text: b.Text, Data: b.Data, URL: b.URL})
		}
		rows = append(rows, r)
	}
	return &tele.ReplyMarkup{InlineKeyboard: rows}
}
