package logging

import (
	"context"
	"log/slog"
	"time"
)

// LogCallback is called with every entry after it was buffered. main uses
// it to republish entries on the event bus without an import cycle.
type LogCallback func(entry LogEntry)

// BufferHandler is a slog.Handler that records entries in a RingBuffer for
// /api/logs and the log stream. Attributes are flattened into a map keyed
// by their dotted group path; the "module" attribute becomes the entry's
// Module instead.
type BufferHandler struct {
	buffer   *RingBuffer
	level    slog.Leveler
	callback LogCallback

	module string
	prefix string // dotted group path ending in "." or empty
	attrs  map[string]any
}

// NewBufferHandler creates a handler that writes to the given ring buffer.
func NewBufferHandler(buffer *RingBuffer, level slog.Leveler, callback LogCallback) *BufferHandler {
	return &BufferHandler{
		buffer:   buffer,
		level:    level,
		callback: callback,
		module:   "app",
	}
}

// Enabled implements slog.Handler.
func (h *BufferHandler) Enabled(_ context.Context, level slog.Level) bool {
	return h.buffer != nil && level >= h.level.Level()
}

// Handle implements slog.Handler.
func (h *BufferHandler) Handle(_ context.Context, r slog.Record) error {
	entry := LogEntry{
		Timestamp: r.Time,
		Level:     levelToString(r.Level),
		Module:    h.module,
		Message:   r.Message,
	}

	attrs := make(map[string]any, len(h.attrs)+r.NumAttrs())
	for k, v := range h.attrs {
		attrs[k] = v
	}
	r.Attrs(func(a slog.Attr) bool {
		if m, ok := moduleOf(a, h.prefix); ok {
			entry.Module = m
		} else {
			flattenAttr(attrs, h.prefix, a)
		}
		return true
	})
	if len(attrs) > 0 {
		entry.Attributes = attrs
	}

	entry = h.buffer.Write(entry)
	if h.callback != nil {
		h.callback(entry)
	}
	return nil
}

// WithAttrs implements slog.Handler. Attributes are flattened once here so
// Handle only copies them.
func (h *BufferHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	clone := *h
	clone.attrs = make(map[string]any, len(h.attrs)+len(attrs))
	for k, v := range h.attrs {
		clone.attrs[k] = v
	}
	for _, a := range attrs {
		if m, ok := moduleOf(a, h.prefix); ok {
			clone.module = m
			continue
		}
		flattenAttr(clone.attrs, h.prefix, a)
	}
	return &clone
}

// WithGroup implements slog.Handler.
func (h *BufferHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.prefix = h.prefix + name + "."
	return &clone
}

// moduleOf reports whether a is the top-level module attribute.
func moduleOf(a slog.Attr, prefix string) (string, bool) {
	if prefix != "" || a.Key != "module" {
		return "", false
	}
	return a.Value.Resolve().String(), true
}

// flattenAttr stores a under prefix+key, recursing into groups. Values are
// converted to forms that survive JSON encoding.
func flattenAttr(attrs map[string]any, prefix string, a slog.Attr) {
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		inner := prefix
		if a.Key != "" {
			inner = prefix + a.Key + "."
		}
		for _, ga := range v.Group() {
			flattenAttr(attrs, inner, ga)
		}
		return
	}
	if a.Key == "" {
		return
	}

	key := prefix + a.Key
	switch v.Kind() {
	case slog.KindTime:
		attrs[key] = v.Time().Format(time.RFC3339Nano)
	case slog.KindDuration:
		attrs[key] = v.Duration().String()
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			attrs[key] = err.Error()
		} else {
			attrs[key] = v.Any()
		}
	default:
		attrs[key] = v.Any()
	}
}

// levelToString converts slog.Level to a lowercase string.
func levelToString(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "error"
	case level >= slog.LevelWarn:
		return "warn"
	case level >= slog.LevelInfo:
		return "info"
	default:
		return "debug"
	}
}
