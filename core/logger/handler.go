package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"
)

type logFormat int

const (
	formatJSON logFormat = iota
	formatKV
)

const tsLayout = "2006-01-02T15:04:05.000Z07:00"

type field struct {
	key string
	val any
}

// handler renders records as flat JSON objects or key=value lines. Group
// names become dotted key prefixes.
type handler struct {
	out    *asyncWriter
	level  slog.Leveler
	format logFormat
	order  []string
	fixed  []field
	prefix string
}

func newHandler(out *asyncWriter, level slog.Leveler, format logFormat, order []string) *handler {
	if level == nil {
		level = slog.LevelInfo
	}
	if order == nil {
		order = defaultKeyOrder
	}
	return &handler{out: out, level: level, format: format, order: order}
}

func (h *handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *handler) Handle(ctx context.Context, r slog.Record) error {
	rec := make(map[string]any, 16)
	rec["ts"] = r.Time.UTC().Format(tsLayout)
	rec["level"] = r.Level.String()
	rec["event"] = r.Message
	for _, f := range h.fixed {
		rec[f.key] = f.val
	}
	r.Attrs(func(a slog.Attr) bool {
		collect(h.prefix, a, func(f field) { rec[f.key] = f.val })
		return true
	})
	addMeta(ctx, rec)
	normalize(rec)
	return h.out.Write(h.encode(rec))
}

func (h *handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.fixed = append([]field(nil), h.fixed...)
	for _, a := range attrs {
		collect(h.prefix, a, func(f field) { c.fixed = append(c.fixed, f) })
	}
	return &c
}

func (h *handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := *h
	if c.prefix == "" {
		c.prefix = name
	} else {
		c.prefix += "." + name
	}
	return &c
}

func collect(prefix string, a slog.Attr, emit func(field)) {
	v := a.Value.Resolve()
	key := a.Key
	switch {
	case key == "":
		key = prefix
	case prefix != "":
		key = prefix + "." + key
	}
	if v.Kind() == slog.KindGroup {
		for _, child := range v.Group() {
			collect(key, child, emit)
		}
		return
	}
	if key == "" {
		return
	}
	if f, ok := convert(key, v); ok {
		emit(f)
	}
}

// convert flattens v to a JSON-friendly value. Durations are written in
// milliseconds under a key ending in "_ms".
func convert(key string, v slog.Value) (field, bool) {
	switch v.Kind() {
	case slog.KindString:
		return field{key, strings.TrimSpace(v.String())}, true
	case slog.KindInt64:
		return field{key, v.Int64()}, true
	case slog.KindUint64:
		return field{key, v.Uint64()}, true
	case slog.KindFloat64:
		return field{key, v.Float64()}, true
	case slog.KindBool:
		return field{key, v.Bool()}, true
	case slog.KindDuration:
		return field{msKey(key), RoundMS(v.Duration()).Milliseconds()}, true
	case slog.KindTime:
		return field{key, v.Time().UTC().Format(time.RFC3339Nano)}, true
	}
	switch x := v.Any().(type) {
	case nil:
		return field{}, false
	case error:
		return field{key, x.Error()}, true
	case time.Duration:
		return field{msKey(key), RoundMS(x).Milliseconds()}, true
	case fmt.Stringer:
		return field{key, x.String()}, true
	default:
		return field{key, fmt.Sprint(x)}, true
	}
}

func msKey(key string) string {
	if strings.HasSuffix(key, "_ms") {
		return key
	}
	return key + "_ms"
}

func addMeta(ctx context.Context, rec map[string]any) {
	m := metaFrom(ctx)
	setDefault(rec, "rid", m.rid, m.rid != "")
	setDefault(rec, "update_id", m.updateID, m.updateID != 0)
	setDefault(rec, "user_id", m.userID, m.userID != 0)
	setDefault(rec, "chat_id", m.chatID, m.chatID != 0)
	setDefault(rec, "handler", m.handler, m.handler != "")
	if rid, ok := rec["rid"].(string); ok {
		rec["rid"] = compactRID(rid)
	}
}

func setDefault(rec map[string]any, key string, val any, present bool) {
	if _, ok := rec[key]; ok || !present {
		return
	}
	rec[key] = val
}

func normalize(rec map[string]any) {
	if ev, _ := rec["event"].(string); ev == "" {
		rec["event"] = "unknown"
	}
	if comp, _ := rec["component"].(string); comp == "" {
		rec["component"] = "app"
	}
	if s, ok := rec["status"].(string); ok {
		rec["status"] = strings.ToLower(s)
	}
	for key, allowed := range enumFields {
		s, ok := rec[key].(string)
		if !ok {
			continue
		}
		if s = strings.ToLower(s); allowed[s] {
			rec[key] = s
		} else {
			delete(rec, key)
		}
	}
	for k, v := range rec {
		if s, ok := v.(string); ok && s == "" {
			delete(rec, k)
		}
	}
}

func (h *handler) encode(rec map[string]any) []byte {
	keys := orderKeys(rec, h.order)
	var b bytes.Buffer
	if h.format == formatJSON {
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(strconv.Quote(k))
			b.WriteByte(':')
			data, err := json.Marshal(rec[k])
			if err != nil {
				data, _ = json.Marshal(fmt.Sprint(rec[k]))
			}
			b.Write(data)
		}
		b.WriteString("}\n")
		return b.Bytes()
	}
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(kvValue(rec[k]))
	}
	b.WriteByte('\n')
	return b.Bytes()
}

// orderKeys lists the keys named by order first, then the rest sorted.
func orderKeys(rec map[string]any, order []string) []string {
	keys := make([]string, 0, len(rec))
	seen := make(map[string]bool, len(order))
	for _, k := range order {
		if _, ok := rec[k]; ok && !seen[k] {
			keys = append(keys, k)
			seen[k] = true
		}
	}
	rest := make([]string, 0, len(rec)-len(keys))
	for k := range rec {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}

func kvValue(v any) string {
	s, ok := v.(string)
	if !ok {
		s = fmt.Sprint(v)
	}
	if strings.IndexFunc(s, func(r rune) bool { return r <= ' ' || r == '=' || r == '"' }) >= 0 {
		return strconv.Quote(s)
	}
	return s
}
