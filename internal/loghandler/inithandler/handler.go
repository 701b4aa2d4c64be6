// Package inithandler holds the bare handler used before configuration is
// resolved, when there is no formatter yet to report a startup failure with.
package inithandler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Handler only logs errors, as "<message> - <err> (key=value ...)".
type Handler struct {
	w io.Writer
}

// New returns a Handler writing to w, or os.Stderr if w is nil.
func New(w io.Writer) *Handler {
	if w == nil {
		w = os.Stderr
	}
	return &Handler{w}
}

func (*Handler) Enabled(_ context.Context, lvl slog.Level) bool {
	return lvl >= slog.LevelError
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	var errVal any
	var extra []string
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "err" {
			errVal = a.Value.Any()
			return true
		}
		extra = append(extra, a.Key+"="+a.Value.String())
		return true
	})
	var sb strings.Builder
	sb.WriteString(r.Message)
	if errVal != nil {
		fmt.Fprintf(&sb, " - %v", errVal)
	}
	if len(extra) > 0 {
		sb.WriteString(" (" + strings.Join(extra, " ") + ")")
	}
	sb.WriteByte('\n')
	_, err := io.WriteString(h.w, sb.String())
	return err
}

func (h *Handler) WithAttrs([]slog.Attr) slog.Handler {
	return h
}

func (h *Handler) WithGroup(string) slog.Handler {
	return h
}
