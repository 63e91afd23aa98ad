package logger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"runtime"
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
	level     slog.Leveler
	writer    *asyncWriter
	errWriter *asyncWriter // receives a copy of ERROR records
	format    logFormat
	keyOrder  []string
	stacks    bool
}

// structuredHandler renders each record as one flat line: groups become
// dotted keys, durations become *_ms integers and request identifiers are
// taken from the context.
type structuredHandler struct {
	cfg    handlerConfig
	preset []field
	prefix string
}

type field struct {
	key string
	val any
}

func newStructuredHandler(cfg handlerConfig) *structuredHandler {
	if cfg.level == nil {
		cfg.level = slog.LevelInfo
	}
	if cfg.keyOrder == nil {
		cfg.keyOrder = defaultKeyOrder
	}
	return &structuredHandler{cfg: cfg}
}

// Enabled implements slog.Handler.
func (h *structuredHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.cfg.level.Level()
}

// Handle implements slog.Handler.
func (h *structuredHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.cfg.writer == nil {
		return errors.New("logger: writer not initialized")
	}

	fields := make(map[string]any, 16+len(h.preset))
	ts := r.Time.UTC()
	fields["ts"] = ts.Format(timeLayout)
	fields["level"] = normalizeLevel(r.Level.String())
	if h.cfg.format == formatJSON {
		fields["ts_unix_nano"] = ts.UnixNano()
	}
	for _, f := range h.preset {
		fields[f.key] = f.val
	}
	r.Attrs(func(a slog.Attr) bool {
		collect(h.prefix, a, func(f field) { fields[f.key] = f.val })
		return true
	})
	appendFields(ctx, fields)

	if s, _ := stringField(fields, "event"); s == "" {
		fields["event"] = firstNonEmpty(r.Message, "unknown")
	}
	if s, _ := stringField(fields, "component"); s == "" {
		fields["component"] = "app"
	}
	if h.cfg.stacks && r.Level >= slog.LevelError && r.PC != 0 {
		if _, ok := fields["caller"]; !ok {
			fields["caller"] = callerOf(r.PC)
		}
	}
	normalizeEnums(fields)
	dropEmpty(fields)

	line, err := encode(h.cfg.format, fields, h.cfg.keyOrder)
	if err != nil {
		return err
	}
	line = append(line, '\n')
	if h.cfg.errWriter != nil && r.Level >= slog.LevelError {
		if err := h.cfg.errWriter.Write(line); err != nil {
			return err
		}
	}
	return h.cfg.writer.Write(line)
}

// WithAttrs implements slog.Handler.
func (h *structuredHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.preset = append([]field(nil), h.preset...)
	for _, a := range attrs {
		collect(h.prefix, a, func(f field) { clone.preset = append(clone.preset, f) })
	}
	return &clone
}

// WithGroup implements slog.Handler.
func (h *structuredHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.prefix = h.prefix + name + "."
	return &clone
}

// collect flattens a into fields under prefix. Empty-keyed groups are
// inlined and nil values dropped.
func collect(prefix string, a slog.Attr, emit func(field)) {
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		inner := prefix
		if a.Key != "" {
			inner = prefix + a.Key + "."
		}
		for _, child := range v.Group() {
			collect(inner, child, emit)
		}
		return
	}
	if a.Key == "" {
		return
	}
	if key, val, ok := normalizeValue(prefix+a.Key, v); ok {
		emit(field{key: key, val: val})
	}
}

func normalizeValue(key string, v slog.Value) (string, any, bool) {
	switch v.Kind() {
	case slog.KindString:
		return key, strings.TrimSpace(v.String()), true
	case slog.KindBool:
		return key, v.Bool(), true
	case slog.KindInt64:
		return key, v.Int64(), true
	case slog.KindUint64:
		if u := v.Uint64(); u <= math.MaxInt64 {
			return key, int64(u), true
		}
		return key, v.Uint64(), true
	case slog.KindFloat64:
		return key, v.Float64(), true
	case slog.KindDuration:
		return msKey(key), RoundMS(v.Duration()).Milliseconds(), true
	case slog.KindTime:
		return key, v.Time().UTC().Format(time.RFC3339Nano), true
	}

	switch x := v.Any().(type) {
	case nil:
		return "", nil, false
	case error:
		return key, x.Error(), true
	case time.Duration:
		return msKey(key), RoundMS(x).Milliseconds(), true
	case fmt.Stringer:
		return key, x.String(), true
	default:
		return key, fmt.Sprint(x), true
	}
}

// msKey puts the unit into a duration key: duration -> duration_ms,
// kb_duration -> kb_duration_ms.
func msKey(key string) string {
	if strings.HasSuffix(key, "_ms") {
		return key
	}
	return key + "_ms"
}

func normalizeEnums(fields map[string]any) {
	if s, ok := stringField(fields, "status"); ok && s != "" {
		if v, known := normalizeStatus(s); known {
			fields["status"] = v
		}
	}
	if s, ok := stringField(fields, "cache"); ok && s != "" {
		if v, known := normalizeCache(s); known {
			fields["cache"] = v
		} else {
			delete(fields, "cache")
		}
	}
	if s, ok := stringField(fields, "outcome"); ok && s != "" {
		if v, known := normalizeOutcome(s); known {
			fields["outcome"] = v
		} else {
			delete(fields, "outcome")
		}
	}
}

func dropEmpty(fields map[string]any) {
	for k, v := range fields {
		if v == nil {
			delete(fields, k)
			continue
		}
		if s, ok := v.(string); ok && s == "" {
			delete(fields, k)
		}
	}
}

func stringField(fields map[string]any, key string) (string, bool) {
	s, ok := fields[key].(string)
	return s, ok
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func callerOf(pc uintptr) string {
	frame, _ := runtime.CallersFrames([]uintptr{pc}).Next()
	if frame.File == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d", filepath.Base(frame.File), frame.Line)
}
