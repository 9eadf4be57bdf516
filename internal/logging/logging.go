// ABOUTME: slog setup shared by the inbox client and server binaries
// ABOUTME: Colorized text output for terminals, JSON on request, optional log file

package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/2389/coven-inbox/internal/config"
)

// ParseLevel maps a config level name to a slog.Level. Unknown names
// mean info.
func ParseLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New builds a logger writing to w. Colors are used only when color is
// true and the format is not json.
func New(cfg config.LoggingConfig, w io.Writer, colored bool) *slog.Logger {
	level := ParseLevel(cfg.Level)
	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = &colorHandler{
			mu:      &sync.Mutex{},
			w:       w,
			level:   level,
			noColor: !colored,
		}
	}

	return slog.New(handler)
}

// Setup builds the process logger. When cfg.File is set, logs are
// appended to that file and the returned close function closes it;
// otherwise they go to stderr.
func Setup(cfg config.LoggingConfig) (*slog.Logger, func() error, error) {
	if cfg.File == "" {
		return New(cfg, os.Stderr, !color.NoColor), func() error { return nil }, nil
	}

	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	return New(cfg, f, false), f.Close, nil
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu      *sync.Mutex
	w       io.Writer
	level   slog.Level
	noColor bool
	attrs   []slog.Attr
	groups  []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) paint(s string, attrs ...color.Attribute) string {
	if h.noColor {
		return s
	}
	c := color.New(attrs...)
	c.EnableColor()
	return c.Sprint(s)
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	var buf strings.Builder

	buf.WriteString(h.paint(r.Time.Format("15:04:05")+" ", color.FgHiBlack))

	switch {
	case r.Level >= slog.LevelError:
		buf.WriteString(h.paint("ERR ", color.FgRed, color.Bold))
	case r.Level >= slog.LevelWarn:
		buf.WriteString(h.paint("WRN ", color.FgYellow))
	case r.Level >= slog.LevelInfo:
		buf.WriteString(h.paint("INF ", color.FgCyan))
	default:
		buf.WriteString(h.paint("DBG ", color.FgMagenta))
	}

	buf.WriteString(r.Message)

	// Handler-level attrs first (from WithAttrs)
	for _, a := range h.attrs {
		h.writeAttr(&buf, a)
	}

	prefix := strings.Join(h.groups, ".")
	r.Attrs(func(a slog.Attr) bool {
		if prefix != "" {
			a.Key = prefix + "." + a.Key
		}
		h.writeAttr(&buf, a)
		return true
	})

	buf.WriteString("\n")

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, buf.String())
	return err
}

func (h *colorHandler) writeAttr(buf *strings.Builder, a slog.Attr) {
	buf.WriteString(h.paint(" "+a.Key+"=", color.FgHiBlack))
	buf.WriteString(a.Value.String())
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	prefix := strings.Join(h.groups, ".")
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	for _, a := range attrs {
		if prefix != "" {
			a.Key = prefix + "." + a.Key
		}
		newAttrs = append(newAttrs, a)
	}

	clone := *h
	clone.attrs = newAttrs
	return &clone
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)

	clone := *h
	clone.groups = newGroups
	return &clone
}
