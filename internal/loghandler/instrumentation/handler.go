package instrumentation

import (
	"context"
	"encoding/json"
	stderr "errors"
	"log/slog"
	"sync/atomic"

	"github.com/go-kit/kit/metrics"

	"github.com/lkendrickd/httpapi/errors"
	"github.com/lkendrickd/httpapi/internal/logfmt"
	"github.com/lkendrickd/httpapi/log"
)

type HandlerOptions struct {
	Name           string
	MinLevel       slog.Level
	OverrideParent bool
	ShowLocation   bool
	TrimCode       bool
	ErrorCounter   metrics.Counter
	WarnCounter    metrics.Counter
	InfoCounter    metrics.Counter
}

// Handler wraps a formatter with a runtime-adjustable level, log line
// counters and expansion of [*errors.Error] values.
type Handler struct {
	name           string
	formatter      slog.Handler
	parent         *Handler
	leveler        *slog.LevelVar
	overrideParent *atomic.Bool
	doCode         bool
	trimCode       bool
	errorCounter   metrics.Counter
	warnCounter    metrics.Counter
	infoCounter    metrics.Counter
}

func NewHandler(h slog.Handler, options HandlerOptions) *Handler {
	leveler := &slog.LevelVar{}
	leveler.Set(options.MinLevel)

	newHandler := &Handler{
		name:           options.Name,
		formatter:      h,
		leveler:        leveler,
		overrideParent: &atomic.Bool{},
		doCode:         options.ShowLocation,
		trimCode:       options.TrimCode,
		errorCounter:   options.ErrorCounter,
		warnCounter:    options.WarnCounter,
		infoCounter:    options.InfoCounter,
	}
	newHandler.overrideParent.Store(options.OverrideParent)

	// Layered on another Handler (a sublogger): share its formatter rather
	// than chaining Handle calls, and keep it as parent so the root level
	// still gates output.
	if sh, ok := h.(*Handler); ok {
		newHandler.formatter = sh.formatter
		newHandler.parent = sh
	}
	return newHandler
}

// Enabled reports whether level passes this handler and, unless overridden,
// every parent up to the root.
func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	if h.parent == nil {
		return level >= h.leveler.Level()
	}
	return level >= h.leveler.Level() && (h.overrideParent.Load() || h.parent.Enabled(context.Background(), level))
}

// Handle counts the record, expands error attributes and adds the source
// location before passing the record to the formatter.
func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	var counter metrics.Counter
	switch {
	case r.Level >= slog.LevelError:
		counter = h.errorCounter
	case r.Level >= slog.LevelWarn:
		counter = h.warnCounter
	case r.Level >= slog.LevelInfo:
		counter = h.infoCounter
	}
	if counter != nil {
		counter.Add(1)
	}
	nr := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		err, isErr := a.Value.Any().(error)
		if !isErr {
			nr.AddAttrs(a)
			return true
		}
		if a.Key != "err" {
			a.Key = "err_" + a.Key
		}
		// errors render by message, not by struct fields
		nr.AddAttrs(slog.String(a.Key, err.Error()))
		var sErr *errors.Error
		if stderr.As(err, &sErr) {
			errData := make([]any, 0, 4+len(sErr.Fields()))
			errData = append(errData, "location", sErr.Location().String())
			errData = append(errData, sErr.Fields()...)
			if h.leveler.Level() <= slog.LevelDebug || r.Level >= slog.LevelError {
				errData = append(errData, "stacktrace", sErr.Stack().String())
			}
			nr.AddAttrs(slog.Group(a.Key+"_data", errData...))
		}
		return true
	})
	if h.doCode {
		if loc := logfmt.FmtRecord(nr, h.trimCode); loc != "" {
			nr.AddAttrs(slog.String(slog.SourceKey, loc))
		}
	}
	return h.formatter.Handle(ctx, nr)
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nh := h.clone()
	nh.formatter = h.formatter.WithAttrs(attrs)
	return nh
}

func (h *Handler) WithGroup(name string) slog.Handler {
	nh := h.clone()
	nh.formatter = h.formatter.WithGroup(name)
	return nh
}

func (h *Handler) Name() string {
	return h.name
}

// SetLevel changes the minimum level, and whether it may go below the
// parent's. It reports whether anything changed.
func (h *Handler) SetLevel(newLevel slog.Level, overrideParent bool) bool {
	changed := false
	if h.leveler.Level() != newLevel {
		changed = true
		h.leveler.Set(newLevel)
	}
	if h.overrideParent.Load() != overrideParent {
		changed = true
		h.overrideParent.Store(overrideParent)
	}
	return changed
}

func (h *Handler) GetLevel() (currentLevel slog.Level, override bool) {
	return h.leveler.Level(), h.overrideParent.Load()
}

func (h *Handler) MarshalJSON() ([]byte, error) {
	type handlerJSON struct {
		Name     string `json:"name,omitempty"`
		Level    string `json:"level"`
		Override bool   `json:"override_parent,omitempty"`
	}
	return json.Marshal(handlerJSON{
		Name:     h.name,
		Level:    log.LevelName(h.leveler.Level()),
		Override: h.overrideParent.Load(),
	})
}

// clone shares the level state, so level changes reach loggers derived with
// With or WithGroup.
func (h *Handler) clone() *Handler {
	clone := *h
	return &clone
}
