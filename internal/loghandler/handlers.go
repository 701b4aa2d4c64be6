// Package loghandler builds the slog formatters selectable with log_format.
// Formatters accept every level; filtering is left to the instrumentation
// handler layered on top of them.
package loghandler

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/lkendrickd/httpapi/internal/loghandler/human"
	"github.com/lkendrickd/httpapi/log"
)

// Format names accepted by [New].
const (
	FormatAuto  = "auto"
	FormatJSON  = "json"
	FormatText  = "text"
	FormatHuman = "human"
)

// Keys used by the JSON formatter in place of slog's defaults.
const (
	TimestampKey = "timestamp"
	MessageKey   = "message"
)

// ParseFormat validates a format name, case-insensitively.
func ParseFormat(s string) (string, error) {
	switch f := strings.ToLower(strings.TrimSpace(s)); f {
	case FormatAuto, FormatJSON, FormatText, FormatHuman:
		return f, nil
	}
	return "", fmt.Errorf("invalid log format %q - valid formats: auto, json, text, human", s)
}

// New returns the formatter for a validated format name. Unknown names fall
// back to auto.
func New(format string, w io.Writer) slog.Handler {
	switch format {
	case FormatJSON:
		return NewJSON(w)
	case FormatText:
		return NewText(w)
	case FormatHuman:
		return NewHuman(w)
	default:
		return NewAuto(w)
	}
}

// NewJSON logs one JSON object per line with timestamp, level and message
// keys and DEBUG/INFO/WARNING/ERROR/CRITICAL level names.
func NewJSON(w io.Writer) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		AddSource: false,
		Level:     slog.LevelDebug,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) == 0 {
				switch a.Key {
				case slog.TimeKey:
					a.Key = TimestampKey
				case slog.MessageKey:
					a.Key = MessageKey
				}
			}
			return log.ReplaceLevelAttr(groups, a)
		},
	})
}

func NewText(w io.Writer) slog.Handler {
	return slog.NewTextHandler(w, &slog.HandlerOptions{
		AddSource:   false,
		Level:       slog.LevelDebug,
		ReplaceAttr: log.ReplaceLevelAttr,
	})
}

func NewHuman(w io.Writer) slog.Handler {
	return human.NewHandler(human.HandlerOpts{
		MinLevel: slog.LevelDebug,
		DoSource: false,
		// a person at a terminal knows which service they started
		IgnoreAttrs: []string{"service", "instance"},
	}, w)
}

// NewAuto picks the human formatter when w is a terminal and JSON otherwise.
func NewAuto(w io.Writer) slog.Handler {
	if isTerm(w) {
		return NewHuman(w)
	}
	return NewJSON(w)
}

func isTerm(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return false
}
