package telegram

import (
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/streambot/core/telegram/router"
)

// EventFromUpdate converts a telebot update into a router event. It reports
// false for update types the bot does not route.
func EventFromUpdate(u *tele.Update) (router.Event, bool) {
	switch {
	case u == nil:
		return router.Event{}, false
	case u.Callback != nil:
		return callbackEvent(u.ID, u.Callback), true
	case u.Message != nil:
		return messageEvent(u.ID, u.Message), true
	}
	return router.Event{}, false
}

func messageEvent(updateID int, m *tele.Message) router.Event {
	ev := router.Event{
		Kind:              router.KindMessage,
		UpdateID:          updateID,
		MessageID:         m.ID,
		Text:              m.Text,
		MigrateFromChatID: m.MigrateFrom,
		MigrateToChatID:   m.MigrateTo,
	}
	if m.Chat != nil {
		ev.ChatID = m.Chat.ID
		ev.ChatType = string(m.Chat.Type)
	}
	if m.Sender != nil {
		ev.FromID = m.Sender.ID
		ev.FromUsername = m.Sender.Username
	}
	if m.ReplyTo != nil {
		ev.ReplyToMessageID = m.ReplyTo.ID
	}
	return ev
}

func callbackEvent(updateID int, cb *tele.Callback) router.Event {
	ev := router.Event{
		Kind:       router.KindCallbackQuery,
		UpdateID:   updateID,
		CallbackID: cb.ID,
		Data:       callbackData(cb),
	}
	if cb.Sender != nil {
		ev.FromID = cb.Sender.ID
		ev.FromUsername = cb.Sender.Username
	}
	if cb.Message != nil {
		ev.MessageID = cb.Message.ID
		if cb.Message.Chat != nil {
			ev.ChatID = cb.Message.Chat.ID
			ev.ChatType = string(cb.Message.Chat.Type)
		}
	}
	return ev
}

// callbackData undoes telebot's split of "\f<unique>|<data>" payloads.
func callbackData(cb *tele.Callback) string {
	if cb.Unique == "" {
		return cb.Data
	}
	if cb.Data == "" {
		return cb.Unique
	}
	return cb.Unique + "|" + cb.Data
}
