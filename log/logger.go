// Package log wraps [*slog.Logger] with the conveniences the service uses
// everywhere: printf-style variants, error-first attribute lists, explicit
// code locations for helpers, span tracing, and a bridge for dependencies that
// only accept a standard library logger.
package log

import (
	"context"
	"fmt"
	stdlog "log"
	"log/slog"
	"path/filepath"
	"runtime"
	"strconv"
	"time"
)

// Logger is a logging type with several extra convenience methods, including
// <METHOD>f variants for formatted output.
//
// Non-formatted methods take a list of attrs as key-value pairs, with one
// exception. If the first argument is an error value, it will be treated
// specially, and automatically given the "err" key.
type Logger struct {
	s *slog.Logger
}

var defaultCtx = context.Background()

// NewLogger returns a new logger wrapping an [*slog.Logger]
func NewLogger(slogger *slog.Logger) *Logger {
	return &Logger{slogger}
}

// Debug logs at LevelDebug.
func (l *Logger) Debug(msg string, attrs ...any) {
	l.Log(defaultCtx, slog.LevelDebug, Up(1), msg, attrs...)
}

// Debugf logs a formatted message at LevelDebug.
func (l *Logger) Debugf(format string, args ...any) {
	l.Logf(defaultCtx, slog.LevelDebug, Up(1), format, args...)
}

// Info logs at LevelInfo.
func (l *Logger) Info(msg string, attrs ...any) {
	l.Log(defaultCtx, slog.LevelInfo, Up(1), msg, attrs...)
}

// Infof logs a formatted message at LevelInfo.
func (l *Logger) Infof(format string, args ...any) {
	l.Logf(defaultCtx, slog.LevelInfo, Up(1), format, args...)
}

// Warn logs at LevelWarn.
func (l *Logger) Warn(msg string, attrs ...any) {
	l.Log(defaultCtx, slog.LevelWarn, Up(1), msg, attrs...)
}

// Warnf logs a formatted message at LevelWarn.
func (l *Logger) Warnf(format string, args ...any) {
	l.Logf(defaultCtx, slog.LevelWarn, Up(1), format, args...)
}

// Error logs at LevelError.
func (l *Logger) Error(msg string, attrs ...any) {
	l.Log(defaultCtx, slog.LevelError, Up(1), msg, attrs...)
}

// Errorf logs a formatted message at LevelError.
func (l *Logger) Errorf(format string, args ...any) {
	l.Logf(defaultCtx, slog.LevelError, Up(1), format, args...)
}

// Critical logs at [LevelCritical].
func (l *Logger) Critical(msg string, attrs ...any) {
	l.Log(defaultCtx, LevelCritical, Up(1), msg, attrs...)
}

// Trace tracks the duration of a function or span of code. It returns a
// closure, that, when called, will log the message along with a duration at the
// Info level.
//
//	func (s *Service) drain() error {
//	    defer s.logger.Trace("drained connections")()
//	    // ...
//	}
func (l *Logger) Trace(msg string, attrs ...any) TraceFn {
	return l.trace(slog.LevelInfo, msg, attrs...)
}

// TraceDebug is exactly like Trace, only it will log traces at the debug level.
func (l *Logger) TraceDebug(msg string, attrs ...any) TraceFn {
	return l.trace(slog.LevelDebug, msg, attrs...)
}

func (l *Logger) trace(lvl slog.Level, msg string, attrs ...any) TraceFn {
	if !l.Enabled(lvl) {
		return func() {}
	}
	started := time.Now()
	caller := Up(2)
	return func() {
		l.Log(defaultCtx, lvl, caller, msg, append(attrs, "duration", time.Since(started))...)
	}
}

// TraceErr tracks the duration of a function call by returning a function that,
// when called with an error value, will log the message along with a duration
// at either the Info or Error levels, depending on whether the error is nil.
func (l *Logger) TraceErr(msg string, attrs ...any) TraceErrFn {
	started := time.Now()
	caller := Up(1)
	return func(err error) {
		if err != nil {
			l.Log(defaultCtx, slog.LevelError, caller, msg, append(attrs, "duration", time.Since(started), "err", err)...)
			return
		}
		l.Log(defaultCtx, slog.LevelInfo, caller, msg, append(attrs, "duration", time.Since(started))...)
	}
}

// Enabled reports whether l emits log records at the given level.
func (l *Logger) Enabled(level slog.Level) bool {
	return l.s.Enabled(defaultCtx, level)
}

// With returns a Logger that includes the given attributes in each output
// operation. Arguments are converted to attributes as if by [Logger.Log].
func (l *Logger) With(args ...any) *Logger {
	return &Logger{l.s.With(args...)}
}

// WithGroup returns a Logger that qualifies all further attributes with name.
func (l *Logger) WithGroup(name string) *Logger {
	return &Logger{l.s.WithGroup(name)}
}

// Slogger returns the underlying [*slog.Logger]
func (l *Logger) Slogger() *slog.Logger {
	return l.s
}

// StdLogger returns a [*stdlog.Logger] suitable for passing to dependencies
// which consume the standard log type, such as [http.Server.ErrorLog].
func (l *Logger) StdLogger(leveler StdLogLeveler) *stdlog.Logger {
	return stdlog.New(&stdLogWrapper{
		logger:  l,
		leveler: leveler,
	}, "", 0)
}

// Log logs a message at the specified level, at the specified code location.
// This is a low-level logging method intended for wrapping and precise control
// of the logging location in cases such as wrapping or helper calls.
func (l *Logger) Log(ctx context.Context, lvl slog.Level, location CodeLocation, message string, attrs ...any) {
	if !l.s.Enabled(ctx, lvl) {
		return
	}
	r := slog.NewRecord(time.Now(), lvl, message, uintptr(location))
	if len(attrs) > 0 && attrIsErr(attrs[0]) {
		r.Add(slog.Attr{
			Key:   "err",
			Value: slog.AnyValue(attrs[0]),
		})
		attrs = attrs[1:]
	}
	r.Add(attrs...)
	_ = l.s.Handler().Handle(ctx, r)
}

// Logf logs a formatted message at the specified level and code location.
func (l *Logger) Logf(ctx context.Context, lvl slog.Level, location CodeLocation, format string, args ...any) {
	if !l.s.Enabled(ctx, lvl) {
		return
	}
	r := slog.NewRecord(time.Now(), lvl, fmt.Sprintf(format, args...), uintptr(location))
	_ = l.s.Handler().Handle(ctx, r)
}

// CodeLocation represents the source of a logging line.
type CodeLocation uintptr

func (cl CodeLocation) String() string {
	fs := runtime.CallersFrames([]uintptr{uintptr(cl)})
	f, _ := fs.Next()
	if f.Line > 0 {
		return filepath.Base(f.File) + `:` + strconv.Itoa(f.Line)
	}
	return ""
}

// NoLocation can be used in conjunction with [Logger.Log] and [Logger.Logf]
// to specify that the log should have no location.
const NoLocation CodeLocation = 0

// Up returns the location of the caller at skip levels above the current
// location.
func Up(skip int) CodeLocation {
	var pcs [1]uintptr
	runtime.Callers(skip+2, pcs[:])
	return CodeLocation(pcs[0])
}

func attrIsErr(v any) bool {
	_, ok := v.(error)
	return ok
}

// TraceFn is the closure returned from [Logger.Trace].
type TraceFn func()

// TraceErrFn is the closure returned from [Logger.TraceErr].
type TraceErrFn func(error)
