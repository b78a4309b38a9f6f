package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
)

// ColorTextHandler is a slog.Handler that writes human-readable lines,
// optionally colored:
//
//	[2026-01-02 15:04:05] [INFO] Stash server listening port=2000
type ColorTextHandler struct {
	opts     *slog.HandlerOptions
	w        io.Writer
	mu       *sync.Mutex
	attrs    []slog.Attr // pre-qualified via WithAttrs
	prefix   string      // dotted group path for record attrs
	useColor bool
}

// NewColorTextHandler creates a new ColorTextHandler
func NewColorTextHandler(w io.Writer, opts *slog.HandlerOptions, useColor bool) *ColorTextHandler {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}

	return &ColorTextHandler{
		opts:     opts,
		w:        w,
		mu:       &sync.Mutex{},
		useColor: useColor,
	}
}

// Enabled reports whether the handler handles records at the given level
func (h *ColorTextHandler) Enabled(_ context.Context, level slog.Level) bool {
	minLevel := slog.LevelInfo
	if h.opts.Level != nil {
		minLevel = h.opts.Level.Level()
	}
	return level >= minLevel
}

// Handle formats and writes a log record
func (h *ColorTextHandler) Handle(_ context.Context, r slog.Record) error {
	label, color := levelLabel(r.Level)

	// Assemble the line in a local buffer; the lock only covers the write
	var buf []byte
	buf = fmt.Appendf(buf, "[%s] ", r.Time.Format("2006-01-02 15:04:05"))
	if h.useColor {
		buf = fmt.Appendf(buf, "[%s%s%s] ", color, label, colorReset)
	} else {
		buf = fmt.Appendf(buf, "[%s] ", label)
	}
	buf = append(buf, r.Message...)

	for _, attr := range h.attrs {
		buf = h.appendKeyVal(buf, attr.Key, attr.Value)
	}

	r.Attrs(func(a slog.Attr) bool {
		buf = h.appendKeyVal(buf, h.qualify(a.Key), a.Value)
		return true
	})

	buf = append(buf, '\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf)
	return err
}

// levelLabel maps a slog level to its printed name and color.
func levelLabel(level slog.Level) (string, string) {
	switch {
	case level < slog.LevelInfo:
		return "DEBUG", colorGray
	case level < slog.LevelWarn:
		return "INFO", colorGreen
	case level < slog.LevelError:
		return "WARN", colorYellow
	default:
		return "ERROR", colorRed
	}
}

// qualify prepends the handler's group path to an attribute key.
func (h *ColorTextHandler) qualify(key string) string {
	if h.prefix == "" {
		return key
	}
	return h.prefix + "." + key
}

// appendKeyVal formats and appends one key=value pair.
func (h *ColorTextHandler) appendKeyVal(buf []byte, key string, v slog.Value) []byte {
	if key == "" {
		return buf
	}

	v = v.Resolve()

	if h.useColor {
		return fmt.Appendf(buf, " %s%s%s=%s", colorCyan, key, colorReset, formatValue(v))
	}
	return fmt.Appendf(buf, " %s=%s", key, formatValue(v))
}

// formatValue renders a slog.Value for the text format
func formatValue(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindInt64:
		return strconv.FormatInt(v.Int64(), 10)
	case slog.KindUint64:
		return strconv.FormatUint(v.Uint64(), 10)
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', 3, 64)
	case slog.KindBool:
		return strconv.FormatBool(v.Bool())
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", v.Any())
	}
}

// WithAttrs returns a handler that prepends attrs to every record. Keys are
// qualified with the group path in effect at the time of the call, matching
// slog's grouping contract.
func (h *ColorTextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	qualified := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	qualified = append(qualified, h.attrs...)
	for _, a := range attrs {
		a.Key = h.qualify(a.Key)
		qualified = append(qualified, a)
	}
	clone.attrs = qualified
	return &clone
}

// WithGroup returns a handler that qualifies subsequent attr keys with name.
func (h *ColorTextHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.prefix = clone.qualify(name)
	return &clone
}
