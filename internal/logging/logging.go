package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/fluent/fluent-logger-golang/fluent"
	"github.com/lmittmann/tint"

	"emlak-aggregator/internal/config"
)

// Poster is the subset of the fluent client the sink needs
type Poster interface {
	PostWithTime(tag string, tm time.Time, message interface{}) error
}

// New builds the process logger. Console output goes through tint unless
// JSON is requested; when Fluent is enabled every record is also forwarded
// to Fluent Bit. The returned closer releases the fluent connection.
func New(cfg config.LoggingConfig, w io.Writer) (*slog.Logger, func() error, error) {
	if w == nil {
		w = os.Stdout
	}
	level := ParseLevel(cfg.Level)

	var console slog.Handler
	if cfg.JSON {
		console = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level, AddSource: cfg.AddSource})
	} else {
		console = tint.NewHandler(w, &tint.Options{
			Level:      level,
			AddSource:  cfg.AddSource,
			TimeFormat: "2006-01-02 15:04:05",
		})
	}

	closer := func() error { return nil }
	if !cfg.Fluent.Enabled {
		return slog.New(console), closer, nil
	}

	client, err := fluent.New(fluent.Config{
		FluentHost: cfg.Fluent.Host,
		FluentPort: cfg.Fluent.Port,
		TagPrefix:  cfg.Fluent.TagPrefix,
		Async:      true,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create fluent logger: %w", err)
	}
	handler := fanout{console, NewFluentHandler(client, level)}
	return slog.New(handler), client.Close, nil
}

// ParseLevel maps a config string onto a slog level, defaulting to info
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Discard returns a logger that drops everything. Tests use it.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, l slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, l) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var first error
	for _, h := range f {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}

// FluentHandler posts each record as a flat map. The tag is the lowercase
// level name, matching the TagPrefix.level layout Fluent Bit routes on.
type FluentHandler struct {
	client Poster
	level  slog.Leveler
	attrs  []slog.Attr
	group  string
}

// NewFluentHandler creates a handler forwarding to the given client
func NewFluentHandler(client Poster, level slog.Leveler) *FluentHandler {
	return &FluentHandler{client: client, level: level}
}

func (h *FluentHandler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= h.level.Level()
}

func (h *FluentHandler) Handle(_ context.Context, r slog.Record) error {
	data := make(map[string]interface{}, len(h.attrs)+r.NumAttrs()+2)
	for _, a := range h.attrs {
		put(data, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		put(data, h.group, a)
		return true
	})
	data["level"] = r.Level.String()
	data["message"] = r.Message
	return h.client.PostWithTime(strings.ToLower(r.Level.String()), r.Time, data)
}

func put(data map[string]interface{}, group string, a slog.Attr) {
	key := a.Key
	if group != "" {
		key = group + "." + key
	}
	v := a.Value.Resolve()
	if err, ok := v.Any().(error); ok {
		data[key] = err.Error()
		return
	}
	data[key] = v.Any()
}

func (h *FluentHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append([]slog.Attr{}, h.attrs...)
	for _, a := range attrs {
		if h.group != "" {
			a.Key = h.group + "." + a.Key
		}
		clone.attrs = append(clone.attrs, a)
	}
	return &clone
}

func (h *FluentHandler) WithGroup(name string) slog.Handler {
	clone := *h
	if clone.group != "" {
		name = clone.group + "." + name
	}
	clone.group = name
	return &clone
}
