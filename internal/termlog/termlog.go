// Package termlog writes the container termination message: a short record of
// why the process exited that the orchestrator surfaces in pod status.
package termlog

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/lkendrickd/httpapi/log"
)

// DefaultPath is where Kubernetes reads the termination message from.
const DefaultPath = `/dev/termination-log`

// Log is a termination log. The zero value and a Log opened on a missing
// path both discard writes, so callers never need to check.
type Log struct {
	mu     sync.Mutex
	closer io.Closer
	logger *log.Logger
}

// Open appends to the file at path. A missing file is not an error, since
// outside a container there is nowhere to write.
func Open(path string) (*Log, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Log{}, nil
		}
		return nil, err
	}
	return &Log{closer: f, logger: newLogger(f)}, nil
}

func newLogger(w io.Writer) *log.Logger {
	return log.NewLogger(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		AddSource: true,
		Level:     slog.LevelDebug,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			switch a.Key {
			case slog.TimeKey, slog.LevelKey:
				return slog.Attr{}
			case slog.SourceKey:
				if src, ok := a.Value.Any().(*slog.Source); ok && src.File == "" {
					return slog.Attr{}
				}
			}
			return a
		},
	})))
}

// Enabled reports whether writes go anywhere.
func (l *Log) Enabled() bool {
	if l == nil {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.logger != nil
}

// Write records msg, attributed to the caller.
func (l *Log) Write(msg string, attrs ...any) {
	l.WriteAt(log.Up(1), msg, attrs...)
}

// WriteAt records msg attributed to loc.
func (l *Log) WriteAt(loc log.CodeLocation, msg string, attrs ...any) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.logger == nil {
		return
	}
	l.logger.Log(context.Background(), slog.LevelError, loc, msg, attrs...)
}

// Close closes the underlying file. Later writes are discarded.
func (l *Log) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logger = nil
	if l.closer == nil {
		return nil
	}
	err := l.closer.Close()
	l.closer = nil
	return err
}
