package router

import "strings"

// Kind names an inbound event shape.
type Kind string

const (
	// KindMessage matches any chat message.
	KindMessage Kind = "message"
	// KindText matches messages carrying non-empty text.
	KindText Kind = "text"
	// KindCallbackQuery matches inline button presses.
	KindCallbackQuery Kind = "callback_query"
)

// Event is the transport-neutral form of an inbound update.
type Event struct {
	// Kind is KindMessage or KindCallbackQuery; KindText is derived.
	Kind     Kind
	UpdateID int

	ChatID       int64
	ChatType     string
	FromID       int64
	FromUsername string

	MessageID        int
	Text             string
	ReplyToMessageID int

	CallbackID string
	Data       string

	MigrateFromChatID int64
	MigrateToChatID   int64
}

// Is reports whether the event belongs to kind k.
func (e Event) Is(k Kind) bool {
	switch k {
	case KindText:
		return e.Kind == KindMessage && e.Text != ""
	default:
		return e.Kind == k
	}
}

// IsCommand reports whether the event is a new top-level command message.
func (e Event) IsCommand() bool {
	return e.Kind == KindMessage && strings.HasPrefix(e.Text, "/")
}
