package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"
)

type logFormat string

const (
	formatJSON logFormat = "json"
	formatKV   logFormat = "kv"

	timeLayout = "2006-01-02T15:04:05.000Z07:00"
)

type handlerConfig struct {
	level    slog.Leveler
	sink     lineSink
	format   logFormat
	keyOrder []string
}

// structuredHandler writes one flat line per record: well-known keys first in
// keyOrder, the rest sorted. Groups are flattened into dotted keys and turn
// metadata from the context fills in missing correlation fields.
type structuredHandler struct {
	cfg    handlerConfig
	preset []field
	prefix string
}

type field struct {
	key string
	val any
}

// entry holds the fields of a record being built; later values win.
type entry map[string]any

func newStructuredHandler(cfg handlerConfig) *structuredHandler {
	if cfg.level == nil {
		cfg.level = slog.LevelInfo
	}
	if len(cfg.keyOrder) == 0 {
		cfg.keyOrder = slices.Clone(defaultKeyOrder)
	}
	return &structuredHandler{cfg: cfg}
}

func (h *structuredHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.cfg.level.Level()
}

func (h *structuredHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.cfg.sink == nil {
		return errors.New("logger: no sink configured")
	}
	e := make(entry, 16+len(h.preset))
	for _, f := range h.preset {
		e[f.key] = f.val
	}
	r.Attrs(func(a slog.Attr) bool {
		flatten(h.prefix, a, func(f field) { e[f.key] = f.val })
		return true
	})

	jsonOut := h.cfg.format == formatJSON
	e.stamp(r, jsonOut)
	e.fillFromContext(ctx)
	e.compactRID(jsonOut)
	e.normalize(r.Message)

	var line []byte
	if jsonOut {
		var err error
		if line, err = e.encodeJSON(h.cfg.keyOrder); err != nil {
			return err
		}
	} else {
		line = e.encodeKV(h.cfg.keyOrder)
	}
	return h.cfg.sink.WriteLine(append(line, '\n'))
}

func (h *structuredHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	clone := *h
	clone.preset = slices.Clip(h.preset)
	for _, a := range attrs {
		flatten(h.prefix, a, func(f field) { clone.preset = append(clone.preset, f) })
	}
	return &clone
}

func (h *structuredHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.prefix = joinKey(h.prefix, name)
	return &clone
}

func joinKey(prefix, key string) string {
	switch {
	case prefix == "":
		return key
	case key == "":
		return prefix
	default:
		return prefix + "." + key
	}
}

func flatten(prefix string, a slog.Attr, emit func(field)) {
	key := joinKey(prefix, a.Key)
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		for _, child := range v.Group() {
			flatten(key, child, emit)
		}
		return
	}
	if key == "" {
		return
	}
	if val, ok := convert(v); ok {
		if isDuration(v) {
			key = durationKey(key)
		}
		emit(field{key: key, val: val})
	}
}

func isDuration(v slog.Value) bool {
	if v.Kind() == slog.KindDuration {
		return true
	}
	_, ok := v.Any().(time.Duration)
	return v.Kind() == slog.KindAny && ok
}

// convert turns a slog value into a plain JSON-friendly value. Durations become milliseconds.
func convert(v slog.Value) (any, bool) {
	switch v.Kind() {
	case slog.KindString:
		return strings.TrimSpace(v.String()), true
	case slog.KindBool:
		return v.Bool(), true
	case slog.KindInt64:
		return v.Int64(), true
	case slog.KindUint64:
		if u := v.Uint64(); u <= math.MaxInt64 {
			return int64(u), true
		}
		return v.Uint64(), true
	case slog.KindFloat64:
		return v.Float64(), true
	case slog.KindDuration:
		return RoundMS(v.Duration()).Milliseconds(), true
	case slog.KindTime:
		return v.Time().UTC().Format(time.RFC3339Nano), true
	}
	switch x := v.Any().(type) {
	case nil:
		return nil, false
	case time.Duration:
		return RoundMS(x).Milliseconds(), true
	case error:
		return x.Error(), true
	case fmt.Stringer:
		return x.String(), true
	case string:
		return strings.TrimSpace(x), true
	default:
		return fmt.Sprint(x), true
	}
}

// durationKey makes the millisecond unit visible: duration -> duration_ms, backoff -> backoff_ms.
func durationKey(key string) string {
	if strings.HasSuffix(key, "_ms") {
		return key
	}
	return key + "_ms"
}

func (e entry) stamp(r slog.Record, jsonOut bool) {
	ts := r.Time.UTC()
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	e["ts"] = ts.Truncate(time.Millisecond).Format(timeLayout)
	e["level"] = normalizeLevel(r.Level.String())
	if jsonOut {
		e["ts_unix_nano"] = ts.UnixNano()
	}
}

func (e entry) fillFromContext(ctx context.Context) {
	m := metaFrom(ctx)
	for _, f := range []field{
		{"rid", m.rid},
		{"channel", m.channel},
		{"conversation_id", m.conversation},
		{"user_id", m.user},
		{"handler", m.handler},
	} {
		if s, _ := f.val.(string); s != "" {
			if _, ok := e[f.key]; !ok {
				e[f.key] = s
			}
		}
	}
}

// compactRID shortens numeric RIDs; JSON output keeps the original as rid_full.
func (e entry) compactRID(jsonOut bool) {
	rid := e.str("rid")
	if rid == "" {
		return
	}
	compact := CompactRID(rid)
	if compact == rid {
		return
	}
	e["rid"] = compact
	if _, ok := e["rid_full"]; jsonOut && !ok {
		e["rid_full"] = rid
	}
}

func (e entry) normalize(msg string) {
	if e.str("event") == "" {
		if msg == "" {
			msg = "unknown"
		}
		e["event"] = msg
	}
	if e.str("component") == "" {
		e["component"] = "app"
	}
	if s := e.str("status"); s != "" {
		e["status"], _ = normalizeStatus(s)
	}
	if o := e.str("outcome"); o != "" {
		if v, ok := normalizeOutcome(o); ok {
			e["outcome"] = v
		} else {
			delete(e, "outcome")
		}
	}
	for k, v := range e {
		if v == nil || v == "" {
			delete(e, k)
		}
	}
}

func (e entry) str(key string) string {
	switch v := e[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// keys returns the keys of e: those in order first, the rest alphabetically.
func (e entry) keys(order []string) []string {
	out := make([]string, 0, len(e))
	known := make(map[string]bool, len(order))
	for _, k := range order {
		known[k] = true
		if _, ok := e[k]; ok {
			out = append(out, k)
		}
	}
	var rest []string
	for k := range e {
		if !known[k] {
			rest = append(rest, k)
		}
	}
	slices.Sort(rest)
	return append(out, rest...)
}

func (e entry) encodeJSON(order []string) ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('{')
	for i, k := range e.keys(order) {
		val, err := json.Marshal(e[k])
		if err != nil {
			return nil, fmt.Errorf("logger: encode %s: %w", k, err)
		}
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Quote(k))
		b.WriteByte(':')
		b.Write(val)
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

func (e entry) encodeKV(order []string) []byte {
	var b bytes.Buffer
	for i, k := range e.keys(order) {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(kvValue(e[k]))
	}
	return b.Bytes()
}

func kvValue(v any) string {
	var s string
	switch x := v.(type) {
	case string:
		s = x
	case bool:
		return strconv.FormatBool(x)
	case int64:
		return strconv.FormatInt(x, 10)
	default:
		s = fmt.Sprint(x)
	}
	if strings.IndexFunc(s, func(r rune) bool { return r <= ' ' || r == '=' || r == '"' }) >= 0 {
		return strconv.Quote(s)
	}
	return s
}
