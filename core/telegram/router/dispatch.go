package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/m3rciful/streambot/core/logger"
	"github.com/m3rciful/streambot/core/serial"
	tghelpers "github.com/m3rciful/streambot/core/telegram/helpers"
	"github.com/m3rciful/streambot/core/telegram/state"
)

// DefaultReplyTimeout bounds WaitResponse when neither the call nor the
// dispatcher specify a timeout.
const DefaultReplyTimeout = 180 * time.Second

// ErrNoDispatcher is returned by WaitResponse on requests built without one.
var ErrNoDispatcher = errors.New("router: request has no dispatcher")

// PanicError carries a recovered handler panic.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string { return fmt.Sprintf("handler panic: %v", e.Value) }

// Code implements the coded error convention used in handler summaries.
func (e *PanicError) Code() string { return "PANIC" }

// ErrorHook observes errors that escaped a handler chain, after they are logged.
// Conversation cancellations are not reported.
type ErrorHook func(ctx context.Context, req *Request, err error)

// Options configures a Dispatcher.
type Options struct {
	// BotName is the bot username used to strip "/cmd@botname" suffixes.
	BotName string
	// ReplyTimeout is the default WaitResponse timeout.
	ReplyTimeout time.Duration
	OnError      ErrorHook
}

// WaitOptions selects the reply a handler waits for.
type WaitOptions struct {
	// Kind is KindText (default), KindMessage or KindCallbackQuery.
	Kind    Kind
	Timeout time.Duration
	// CancelOnCommand rejects the wait with state.ErrResponseCommand when the
	// user sends a new command instead of a reply.
	CancelOnCommand bool
}

// Continuation resumes a handler after WaitResponse settles. reply is nil when
// err is set.
type Continuation func(ctx context.Context, reply *Request, err error) error

// Dispatcher routes events through the Table, consulting pending waits first.
type Dispatcher struct {
	table        *Table
	botName      atomic.Pointer[string]
	replyTimeout time.Duration
	onError      ErrorHook

	waits *state.Registry[*Request]
	lanes *serial.Queue[int64]
}

// NewDispatcher binds a Dispatcher to table.
func NewDispatcher(table *Table, opts Options) *Dispatcher {
	if table == nil {
		table = NewTable()
	}
	if opts.ReplyTimeout <= 0 {
		opts.ReplyTimeout = DefaultReplyTimeout
	}
	d := &Dispatcher{
		table:        table,
		replyTimeout: opts.ReplyTimeout,
		onError:      opts.OnError,
		lanes:        serial.New[int64]("tg.chat"),
	}
	d.SetBotName(opts.BotName)
	d.waits = state.NewRegistry[*Request](state.WithExpireHook(d.onWaitExpired))
	return d
}

// SetBotName updates the username used for command suffix stripping.
func (d *Dispatcher) SetBotName(name string) {
	d.botName.Store(&name)
}

// Table returns the route table.
func (d *Dispatcher) Table() *Table {
	return d.table
}

// Waits exposes the wait registry, mostly for diagnostics and tests.
func (d *Dispatcher) Waits() *state.Registry[*Request] {
	return d.waits
}

// Handle queues ev on the lane of its chat: events of one chat are dispatched
// one at a time in arrival order, different chats independently.
func (d *Dispatcher) Handle(ctx context.Context, ev Event) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return d.lanes.Submit(ev.ChatID, func() { d.Dispatch(ctx, ev) })
}

// Close rejects pending waits and waits for queued events to finish.
func (d *Dispatcher) Close() {
	d.waits.Close()
	d.lanes.Close()
}

// Dispatch processes ev synchronously. Handler errors and panics are logged
// here and never returned.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) {
	start := time.Now()
	ctx = tghelpers.UpdateContext(ctx, ev.UpdateID, ev.ChatID, ev.FromID)
	req := NewRequest(ctx, ev, *d.botName.Load())
	req.dispatcher = d

	logReceived(ctx, req)

	if d.consumeWait(req) {
		return
	}

	steps := d.table.plan(req)
	name := normalizeHandlerName(req.Command)
	if len(steps) == 0 {
		logHandlerSummary(ctx, name, start, outcomeUnmatched, nil)
		return
	}

	err := d.guard(func() error { return run(ctx, req, steps) })
	logHandlerSummary(ctx, name, start, "", err, slog.Int("routes", countRoutes(steps)))
	d.reportError(ctx, req, err)
}

// consumeWait applies the pending wait of the sender, if any. It reports
// whether the event was consumed as a reply.
func (d *Dispatcher) consumeWait(req *Request) bool {
	key := state.Key{ChatID: req.ChatID, FromID: req.FromID}
	if req.IsCommand() {
		cancellable := func(e *state.Entry[*Request]) bool { return e.CancelOnCommand() }
		if e, ok := d.waits.Reject(key, cancellable, state.ErrResponseCommand); ok {
			e.Continue()
			return false
		}
	}
	matches := func(e *state.Entry[*Request]) bool { return waitAccepts(e, req) }
	e, ok := d.waits.Resolve(key, matches, req)
	if !ok {
		return false
	}
	e.Continue()
	return true
}

func waitAccepts(e *state.Entry[*Request], req *Request) bool {
	if e.Kind() != string(req.Kind) {
		return false
	}
	if e.Type() == string(KindText) {
		return req.Event.Is(KindText)
	}
	return true
}

// WaitResponse registers a wait for the next reply of req's sender in req's
// chat and returns immediately. then runs on the chat lane once the reply
// arrives, the timeout passes or a new command supersedes the wait.
func (d *Dispatcher) WaitResponse(req *Request, opts WaitOptions, then Continuation) error {
	if opts.Kind == "" {
		opts.Kind = KindText
	}
	if opts.Timeout <= 0 {
		opts.Timeout = d.replyTimeout
	}
	kind, typ := string(opts.Kind), ""
	if opts.Kind == KindText {
		kind, typ = string(KindMessage), string(KindText)
	}
	origin := req
	_, err := d.waits.Wait(state.Wait[*Request]{
		Key:             state.Key{ChatID: req.ChatID, FromID: req.FromID},
		Kind:            kind,
		Type:            typ,
		Timeout:         opts.Timeout,
		CancelOnCommand: opts.CancelOnCommand,
		Then: func(reply *Request, err error) {
			if then == nil {
				return
			}
			ctx := origin.ctx
			if reply != nil {
				ctx = reply.ctx
			}
			start := time.Now()
			name := "wait." + normalizeHandlerName(origin.Command)
			outcome := outcomeConsumed
			if err != nil {
				outcome = ""
			}
			cerr := d.guard(func() error { return then(ctx, reply, err) })
			logHandlerSummary(ctx, name, start, outcome, cerr)
			d.reportError(ctx, origin, cerr)
		},
	})
	return err
}

// CancelWait rejects the pending wait of req's sender with
// state.ErrResponseCommand and runs its continuation. It reports whether a wait
// was pending.
func (d *Dispatcher) CancelWait(req *Request) bool {
	e, ok := d.waits.Reject(state.Key{ChatID: req.ChatID, FromID: req.FromID}, nil, state.ErrResponseCommand)
	if !ok {
		return false
	}
	e.Continue()
	return true
}

// CancelWait is a shorthand for the dispatcher's CancelWait.
func (r *Request) CancelWait() bool {
	if r.dispatcher == nil {
		return false
	}
	return r.dispatcher.CancelWait(r)
}

// WaitResponse is a shorthand for the dispatcher's WaitResponse.
func (r *Request) WaitResponse(opts WaitOptions, then Continuation) error {
	if r.dispatcher == nil {
		return ErrNoDispatcher
	}
	return r.dispatcher.WaitResponse(r, opts, then)
}

// onWaitExpired moves a timed-out continuation onto its chat lane so it never
// overlaps dispatches of the same chat.
func (d *Dispatcher) onWaitExpired(e *state.Entry[*Request]) {
	if err := d.lanes.Submit(e.Key().ChatID, e.Continue); err != nil {
		logger.Warn(context.Background(), "conversation", "wait.expire_dropped",
			slog.String("wait_id", e.ID()),
			slog.String("err", err.Error()),
		)
	}
}

// run drives the plan with an index cursor. Each next closure advances once;
// the executing route's params are restored when a later step returns.
func run(ctx context.Context, req *Request, steps []step) error {
	var call func(i int) error
	call = func(i int) error {
		if i >= len(steps) {
			return nil
		}
		s := steps[i]
		prev := req.Params
		req.Params = s.params
		defer func() { req.Params = prev }()

		called := false
		next := func() error {
			if called {
				return nil
			}
			called = true
			err := call(i + 1)
			req.Params = s.params
			return err
		}
		return s.handler(ctx, req, next)
	}
	return call(0)
}

func (d *Dispatcher) guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return fn()
}

func (d *Dispatcher) reportError(ctx context.Context, req *Request, err error) {
	if err == nil || state.IsConversationError(err) {
		return
	}
	var pe *PanicError
	if errors.As(err, &pe) {
		logger.Error(ctx, "tg", "tg.panic",
			slog.Any("err", pe.Value),
			slog.String("stack", string(pe.Stack)),
		)
	}
	if d.onError != nil {
		_ = d.guard(func() error {
			d.onError(ctx, req, err)
			return nil
		})
	}
}

func countRoutes(steps []step) int {
	n := 0
	var last *Route
	for _, s := range steps {
		if s.route != last {
			n++
			last = s.route
		}
	}
	return n
}

func logReceived(ctx context.Context, req *Request) {
	if !logger.ShouldSampleDebug() {
		return
	}
	attrs := []slog.Attr{
		slog.String("status", "ok"),
		slog.Int("update_id", req.Event.UpdateID),
		slog.String("op", string(req.Kind)),
	}
	if req.Event.ChatType != "" {
		attrs = append(attrs, slog.String("chat_type", req.Event.ChatType))
	}
	if req.Event.FromUsername != "" {
		attrs = append(attrs, slog.String("username", logger.SanitizeLimit(req.Event.FromUsername, 64)))
	}
	if req.Command != "" {
		attrs = append(attrs, slog.String("command", req.Command))
	}
	if payload := req.Text(); payload != "" {
		attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(payload, 256)))
	}
	logger.Debug(ctx, "tg", "update.received", attrs...)
}
