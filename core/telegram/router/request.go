package router

import "context"

// Request is the per-dispatch view of an inbound event. Handlers of one event
// share it, so attachments set by an earlier handler are visible to later ones.
type Request struct {
	Event Event

	Kind      Kind
	ChatID    int64
	FromID    int64
	MessageID int

	// Command is the leading command token, e.g. "/setChannel" or "/delete".
	Command string
	// Path is the string routes match against.
	Path string
	// Params holds the named groups of the route currently executing.
	Params map[string]string
	// Query holds callback query-string values, first value per key.
	Query map[string]string

	ctx         context.Context
	dispatcher  *Dispatcher
	attachments map[string]any
}

// NewRequest builds a Request outside a Dispatcher, mostly for tests of
// handlers that do not wait for replies.
func NewRequest(ctx context.Context, ev Event, botName string) *Request {
	if ctx == nil {
		ctx = context.Background()
	}
	p := parseEvent(ev, botName)
	return &Request{
		Event:     ev,
		Kind:      ev.Kind,
		ChatID:    ev.ChatID,
		FromID:    ev.FromID,
		MessageID: ev.MessageID,
		Command:   p.command,
		Path:      p.path,
		Params:    map[string]string{},
		Query:     p.query,
		ctx:       ctx,
	}
}

// Context returns the context the request was dispatched with.
func (r *Request) Context() context.Context {
	return r.ctx
}

// Text returns the message text or the raw callback data.
func (r *Request) Text() string {
	if r.Kind == KindCallbackQuery {
		return r.Event.Data
	}
	return r.Event.Text
}

// IsCommand reports whether the request is a new top-level command.
func (r *Request) IsCommand() bool {
	return r.Event.IsCommand()
}

// Param returns a named group of the executing route. Groups that did not
// take part in the match are absent.
func (r *Request) Param(name string) (string, bool) {
	v, ok := r.Params[name]
	return v, ok
}

// QueryValue returns a callback query value or "".
func (r *Request) QueryValue(name string) string {
	return r.Query[name]
}

// Set attaches a value for later handlers of the same event.
func (r *Request) Set(key string, value any) {
	if r.attachments == nil {
		r.attachments = make(map[string]any)
	}
	r.attachments[key] = value
}

// Get returns an attached value.
func (r *Request) Get(key string) (any, bool) {
	v, ok := r.attachments[key]
	return v, ok
}

// Attachment returns the value attached under key when it has type T.
func Attachment[T any](r *Request, key string) (T, bool) {
	var zero T
	v, ok := r.Get(key)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}
