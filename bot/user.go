package bot

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/m3rciful/streambot/chats"
	"github.com/m3rciful/streambot/core/telegram"
	"github.com/m3rciful/streambot/core/telegram/format"
	"github.com/m3rciful/streambot/core/telegram/keyboard"
	"github.com/m3rciful/streambot/core/telegram/router"
	"github.com/m3rciful/streambot/providers"
)

var channelNameRe = regexp.MustCompile(`^@\w+$`)

func (b *Bot) registerUser(t *router.Table) {
	t.CallbackQuery(`/cancel/(?P<command>\S+)`, b.cancelCommand)
	t.TextOrCallbackQuery(`/add(?:\s+(?P<query>(?s:.+)))?`, b.provideChat, b.addChannel)
	t.CallbackQuery(`/clear/confirmed`, b.clearChat)
	t.TextOrCallbackQuery(`/clear`+trailingText, b.confirmClear)
	t.CallbackQuery(`/delete/(?P<channelId>.+)`, b.deleteChannel)
	t.TextOrCallbackQuery(`/delete`+trailingText, b.provideChannels, b.withChannels, b.showDeleteList)
	t.CallbackQuery(`/deleteChannel`, b.provideChat, b.removeTelegramChannel)
	t.TextOrCallbackQuery(`/setChannel(?:\s+(?P<channelId>(?s:.+)))?`, b.provideChat, b.setTelegramChannel)
	t.CallbackQuery(`/options/(?P<key>[^/]+)/(?P<value>.+)`, b.provideChat, b.setOption)
	t.TextOrCallbackQuery(`/options`+trailingText, b.provideChat, b.showOptions)
	t.TextOrCallbackQuery(`/list`+trailingText, b.provideChannels, b.withChannels, b.showList)
}

// provideChat attaches the chat settings, a fresh unsaved record for unknown
// chats.
func (b *Bot) provideChat(ctx context.Context, req *router.Request, next func() error) error {
	chat, err := b.chats.EnsureChat(ctx, req.ChatID)
	if err != nil {
		b.sendSomethingWrong(ctx, req.ChatID)
		return fmt.Errorf("ensure chat: %w", err)
	}
	req.Set(keyChat, chat)
	return next()
}

func (b *Bot) provideChannels(ctx context.Context, req *router.Request, next func() error) error {
	list, err := b.chats.GetChannelsByChatID(ctx, req.ChatID)
	if err != nil {
		b.sendSomethingWrong(ctx, req.ChatID)
		return fmt.Errorf("load channels: %w", err)
	}
	req.Set(keyChannels, list)
	return next()
}

// withChannels stops the dispatch for chats without subscriptions.
func (b *Bot) withChannels(ctx context.Context, req *router.Request, next func() error) error {
	if len(channelsOf(req)) > 0 {
		return next()
	}
	_, err := b.send(ctx, req.ChatID, b.locale.GetMessage("emptyServiceList"), telegram.MessageOptions{})
	return err
}

func (b *Bot) sendSomethingWrong(ctx context.Context, chatID int64) {
	_, _ = b.send(ctx, chatID, b.locale.GetMessage("somethingWrong"), telegram.MessageOptions{})
}

func (b *Bot) cancelCommand(ctx context.Context, req *router.Request, _ func() error) error {
	command, _ := req.Param("command")
	text := b.locale.Format("commandCanceled", "command", command)
	return b.api.EditMessageText(ctx, req.ChatID, req.MessageID, text, telegram.MessageOptions{})
}

func (b *Bot) addChannel(ctx context.Context, req *router.Request, _ func() error) error {
	if query, _ := req.Param("query"); strings.TrimSpace(query) != "" {
		return b.subscribe(ctx, req, strings.TrimSpace(query), 0)
	}
	prompt := b.locale.GetMessage("enterChannelName")
	cancel := b.locale.Format("commandCanceled", "command", "add")
	return b.requestData(ctx, req, prompt, cancel, func(ctx context.Context, reply *router.Request, promptID int) error {
		b.track(ctx, req.ChatID, "/add", reply.Text())
		return b.subscribe(ctx, req, strings.TrimSpace(reply.Text()), promptID)
	})
}

// subscribe resolves query with the default service and links the channel to
// the chat. The outcome replaces the prompt when there is one.
func (b *Bot) subscribe(ctx context.Context, req *router.Request, query string, promptID int) error {
	service := b.defaultService()
	if service == nil {
		return errors.New("no stream service configured")
	}
	opts := telegram.MessageOptions{DisablePreview: true}

	channel, created, err := b.link(ctx, req, service, query)
	if err != nil {
		if providers.IsNotFound(err) {
			_, serr := b.editOrSend(ctx, req.ChatID, promptID, b.locale.Format("channelIsNotFound", "channelName", query), opts)
			return serr
		}
		_, _ = b.editOrSend(ctx, req.ChatID, promptID, b.locale.GetMessage("unexpectedError"), opts)
		return err
	}

	opts.HTML = true
	text := b.locale.GetMessage("channelExists")
	if created {
		text = b.locale.Format("channelAdded",
			"channelName", format.Link(channel.Title, channel.URL),
			"serviceName", format.EscapeHTML(service.Name()),
		)
	}
	_, err = b.editOrSend(ctx, req.ChatID, promptID, text, opts)
	return err
}

func (b *Bot) link(ctx context.Context, req *router.Request, service providers.Service, query string) (*chats.Channel, bool, error) {
	raw, err := service.FindChannel(ctx, query)
	if err != nil {
		return nil, false, err
	}
	channel, err := b.chats.EnsureChannel(ctx, service.ID(), raw)
	if err != nil {
		return nil, false, fmt.Errorf("ensure channel: %w", err)
	}
	if chat := chatOf(req); chat != nil && chat.IsNew {
		if err := b.chats.SaveChat(ctx, chat); err != nil {
			return nil, false, fmt.Errorf("save chat: %w", err)
		}
	}
	created, err := b.chats.PutChatIDChannelID(ctx, req.ChatID, channel.ID)
	if err != nil {
		return nil, false, fmt.Errorf("subscribe: %w", err)
	}
	return channel, created, nil
}

func (b *Bot) confirmClear(ctx context.Context, req *router.Request, _ func() error) error {
	_, err := b.send(ctx, req.ChatID, b.locale.GetMessage("clearSure"), telegram.MessageOptions{
		Keyboard: keyboard.Markup{{
			keyboard.Data("Yes", "/clear/confirmed"),
			keyboard.CancelButton("clear", "No"),
		}},
	})
	return err
}

func (b *Bot) clearChat(ctx context.Context, req *router.Request, _ func() error) error {
	if err := b.chats.DeleteChat(ctx, req.ChatID); err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}
	return b.api.EditMessageText(ctx, req.ChatID, req.MessageID, b.locale.GetMessage("cleared"), telegram.MessageOptions{})
}

func (b *Bot) deleteChannel(ctx context.Context, req *router.Request, _ func() error) error {
	id, _ := req.Param("channelId")
	channel, err := b.chats.GetChannelByID(ctx, id)
	if err == nil {
		_, err = b.chats.DeleteChatIDChannelID(ctx, req.ChatID, id)
	}
	switch {
	case err == nil:
		text := b.locale.Format("channelDeleted", "channelName", channel.Title)
		return b.api.EditMessageText(ctx, req.ChatID, req.MessageID, text, telegram.MessageOptions{})
	case errors.Is(err, chats.ErrChannelNotFound):
		return b.api.EditMessageText(ctx, req.ChatID, req.MessageID, b.locale.GetMessage("channelDontExist"), telegram.MessageOptions{})
	}
	if eerr := b.api.EditMessageText(ctx, req.ChatID, req.MessageID, b.locale.GetMessage("unexpectedError"), telegram.MessageOptions{}); eerr != nil {
		return errors.Join(err, eerr)
	}
	return err
}

func (b *Bot) showDeleteList(ctx context.Context, req *router.Request, _ func() error) error {
	list := channelsOf(req)
	items := make(keyboard.Markup, 0, len(list))
	for _, c := range list {
		items = append(items, keyboard.Row{keyboard.Data(c.Title, "/delete/"+c.ID)})
	}
	cancel := keyboard.CancelButton("delete")
	page := keyboard.PageList(req.Query, items, "/delete", &cancel)

	if fromMenu(req) {
		return b.editMarkup(ctx, req.ChatID, req.MessageID, page)
	}
	_, err := b.send(ctx, req.ChatID, b.locale.GetMessage("selectDelChannel"), telegram.MessageOptions{Keyboard: page})
	return err
}

func (b *Bot) removeTelegramChannel(ctx context.Context, req *router.Request, _ func() error) error {
	chat := chatOf(req)
	chat.SetChannel("")
	chat.IsMuted = false
	if err := b.chats.SaveChat(ctx, chat); err != nil {
		return fmt.Errorf("save chat: %w", err)
	}
	return b.editMarkup(ctx, req.ChatID, req.MessageID, optionsKeyboard(chat))
}

func (b *Bot) setTelegramChannel(ctx context.Context, req *router.Request, _ func() error) error {
	if name, _ := req.Param("channelId"); strings.TrimSpace(name) != "" {
		return b.applyTelegramChannel(ctx, req, strings.TrimSpace(name), 0)
	}
	prompt := b.locale.GetMessage("telegramChannelEnter")
	cancel := b.locale.Format("commandCanceled", "command", "/setChannel")
	return b.requestData(ctx, req, prompt, cancel, func(ctx context.Context, reply *router.Request, promptID int) error {
		b.track(ctx, req.ChatID, "/setChannel", reply.Text())
		return b.applyTelegramChannel(ctx, req, strings.TrimSpace(reply.Text()), promptID)
	})
}

// applyTelegramChannel mirrors the chat notifications to the channel name.
// Validation failures are reported to the user and not returned.
func (b *Bot) applyTelegramChannel(ctx context.Context, req *router.Request, name string, promptID int) error {
	chat := chatOf(req)
	if err := b.attachTelegramChannel(ctx, chat, name); err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			_, serr := b.editOrSend(ctx, req.ChatID, promptID, verr.Error(), telegram.MessageOptions{})
			return serr
		}
		_, _ = b.editOrSend(ctx, req.ChatID, promptID, b.locale.GetMessage("unexpectedError"), telegram.MessageOptions{})
		return err
	}

	text := b.locale.Format("telegramChannelSet", "channelName", chat.Channel())
	if _, err := b.editOrSend(ctx, req.ChatID, promptID, text, telegram.MessageOptions{}); err != nil {
		return err
	}
	if req.Kind == router.KindCallbackQuery {
		return b.editMarkup(ctx, req.ChatID, req.MessageID, optionsKeyboard(chat))
	}
	return nil
}

func (b *Bot) attachTelegramChannel(ctx context.Context, chat *chats.Chat, name string) error {
	if !channelNameRe.MatchString(name) {
		return newValidationError(CodeIncorrectChannelName, "Incorrect channel name")
	}
	_, err := b.chats.GetChatByChannelID(ctx, name)
	switch {
	case err == nil:
		return newValidationError(CodeChannelAlreadyUsed, "Channel already used")
	case !errors.Is(err, chats.ErrChatNotFound):
		return err
	}

	if err := b.api.SendChatAction(ctx, name, telegram.ActionTyping); err != nil {
		return unreachable(err)
	}
	tgChat, err := b.api.GetChat(ctx, name)
	if err != nil {
		return unreachable(err)
	}
	if tgChat.Type != telegram.ChatTypeChannel {
		return newValidationError(CodeIncorrectChatType, "This chat type is not supported")
	}

	chat.SetChannel("@" + tgChat.Username)
	chat.IsMuted = false
	if err := b.chats.SaveChat(ctx, chat); err != nil {
		return fmt.Errorf("save chat: %w", err)
	}
	return nil
}

// unreachable turns Telegram's answer for channels the bot cannot post to
// into a validation error.
func unreachable(err error) error {
	if telegram.IsChatNotFound(err) || telegram.IsNotMember(err) {
		return newValidationError(CodeChannelUnreachable, "Add the bot to the channel as an administrator first")
	}
	return err
}

func (b *Bot) setOption(ctx context.Context, req *router.Request, _ func() error) error {
	chat := chatOf(req)
	key, _ := req.Param("key")
	value, _ := req.Param("value")
	switch key {
	case "isHidePreview":
		chat.IsHidePreview = value == "true"
	case "isMuted":
		chat.IsMuted = value == "true"
	default:
		verr := newValidationError(CodeUnknownOption, "Unknown option "+strconv.Quote(key))
		_, err := b.send(ctx, req.ChatID, verr.Error(), telegram.MessageOptions{})
		return err
	}
	if err := b.chats.SaveChat(ctx, chat); err != nil {
		return fmt.Errorf("save chat: %w", err)
	}
	return b.editMarkup(ctx, req.ChatID, req.MessageID, optionsKeyboard(chat))
}

func (b *Bot) showOptions(ctx context.Context, req *router.Request, _ func() error) error {
	chat := chatOf(req)
	if fromMenu(req) {
		return b.editMarkup(ctx, req.ChatID, req.MessageID, optionsKeyboard(chat))
	}
	_, err := b.send(ctx, req.ChatID, b.locale.GetMessage("options"), telegram.MessageOptions{Keyboard: optionsKeyboard(chat)})
	return err
}

func (b *Bot) showList(ctx context.Context, req *router.Request, _ func() error) error {
	pages := format.SplitPages(b.listBody(channelsOf(req)), 0)
	page, _ := strconv.Atoi(req.QueryValue("page"))
	if page >= len(pages) {
		page = len(pages) - 1
	}
	if page < 0 {
		page = 0
	}

	opts := telegram.MessageOptions{
		HTML:           true,
		DisablePreview: true,
		Keyboard:       listControls(page, len(pages)),
	}
	if fromMenu(req) {
		return b.api.EditMessageText(ctx, req.ChatID, req.MessageID, pages[page], opts)
	}
	_, err := b.send(ctx, req.ChatID, pages[page], opts)
	return err
}

// listBody groups channels by service, larger groups first.
func (b *Bot) listBody(list []chats.Channel) string {
	var services []string
	groups := make(map[string][]chats.Channel)
	for _, c := range list {
		if _, ok := groups[c.Service]; !ok {
			services = append(services, c.Service)
		}
		groups[c.Service] = append(groups[c.Service], c)
	}
	sort.SliceStable(services, func(i, j int) bool {
		return len(groups[services[i]]) > len(groups[services[j]])
	})

	blocks := make([]string, 0, len(services))
	for _, service := range services {
		lines := []string{format.Bold(b.serviceName(service) + ":")}
		for _, c := range groups[service] {
			lines = append(lines, format.Link(c.Title, c.URL))
		}
		blocks = append(blocks, strings.Join(lines, "\n"))
	}
	return strings.Join(blocks, "\n\n")
}
