package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"

	"github.com/m3rciful/streambot/core/logger"
)

// HandlerFunc handles one step of a dispatch. Calling next continues with the
// following handler of the route or, after the last one, the next matching
// route; returning without calling it stops the dispatch.
type HandlerFunc func(ctx context.Context, req *Request, next func() error) error

// ErrTableFrozen rejects registrations after dispatching started.
var ErrTableFrozen = errors.New("router: table is frozen")

// Route binds event kinds and a path pattern to a handler chain.
type Route struct {
	Kinds    []Kind
	Pattern  *regexp.Regexp
	Handlers []HandlerFunc
	// Source is the pattern as registered, "*" for any path.
	Source string
}

func (r *Route) accepts(ev Event) bool {
	for _, k := range r.Kinds {
		if ev.Is(k) {
			return true
		}
	}
	return false
}

// match returns the named groups of the route for path. Groups that did not
// participate in the match are left out.
func (r *Route) match(path string) (map[string]string, bool) {
	params := map[string]string{}
	if r.Pattern == nil {
		return params, true
	}
	loc := r.Pattern.FindStringSubmatchIndex(path)
	if loc == nil {
		return nil, false
	}
	for i, name := range r.Pattern.SubexpNames() {
		if i == 0 || name == "" || loc[2*i] < 0 {
			continue
		}
		params[name] = path[loc[2*i]:loc[2*i+1]]
	}
	return params, true
}

// Table is the ordered route list. It is filled at startup and read-only once
// the first event is dispatched.
type Table struct {
	mu     sync.Mutex
	routes []*Route
	frozen bool
}

// NewTable returns an empty Table.
func NewTable() *Table {
	return &Table{}
}

// Register appends a route. pattern is a regular expression matched against
// the whole command path; "" matches any path. Named groups become request
// params.
func (t *Table) Register(kinds []Kind, pattern string, handlers ...HandlerFunc) error {
	if len(kinds) == 0 {
		return fmt.Errorf("router: route %q has no event kinds", pattern)
	}
	if len(handlers) == 0 {
		return fmt.Errorf("router: route %q has no handlers", pattern)
	}
	for _, h := range handlers {
		if h == nil {
			return fmt.Errorf("router: route %q has a nil handler", pattern)
		}
	}
	route := &Route{
		Kinds:    append([]Kind(nil), kinds...),
		Handlers: append([]HandlerFunc(nil), handlers...),
		Source:   "*",
	}
	if pattern != "" {
		re, err := regexp.Compile(`^(?:` + pattern + `)$`)
		if err != nil {
			return fmt.Errorf("router: compile %q: %w", pattern, err)
		}
		route.Pattern = re
		route.Source = pattern
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.frozen {
		return ErrTableFrozen
	}
	t.routes = append(t.routes, route)
	logger.Debug(context.Background(), "tg.wire", "route.register",
		slog.String("route", route.Source),
		slog.Int("count", len(handlers)),
	)
	return nil
}

// MustRegister is Register that panics on error; meant for startup wiring.
func (t *Table) MustRegister(kinds []Kind, pattern string, handlers ...HandlerFunc) {
	if err := t.Register(kinds, pattern, handlers...); err != nil {
		panic(err)
	}
}

// Text registers a route for text messages.
func (t *Table) Text(pattern string, handlers ...HandlerFunc) {
	t.MustRegister([]Kind{KindText}, pattern, handlers...)
}

// Message registers a route for any message.
func (t *Table) Message(pattern string, handlers ...HandlerFunc) {
	t.MustRegister([]Kind{KindMessage}, pattern, handlers...)
}

// CallbackQuery registers a route for inline button presses.
func (t *Table) CallbackQuery(pattern string, handlers ...HandlerFunc) {
	t.MustRegister([]Kind{KindCallbackQuery}, pattern, handlers...)
}

// TextOrCallbackQuery registers a route shared by a command and its button.
func (t *Table) TextOrCallbackQuery(pattern string, handlers ...HandlerFunc) {
	t.MustRegister([]Kind{KindText, KindCallbackQuery}, pattern, handlers...)
}

// Len returns the number of registered routes.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.routes)
}

func (t *Table) freeze() []*Route {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.frozen = true
	return t.routes
}

// step is one handler of the flattened dispatch plan.
type step struct {
	route   *Route
	params  map[string]string
	handler HandlerFunc
}

// plan returns, in registration order, every handler of every route accepting
// the request.
func (t *Table) plan(req *Request) []step {
	var steps []step
	for _, route := range t.freeze() {
		if !route.accepts(req.Event) {
			continue
		}
		params, ok := route.match(req.Path)
		if !ok {
			continue
		}
		for _, h := range route.Handlers {
			steps = append(steps, step{route: route, params: params, handler: h})
		}
	}
	return steps
}
