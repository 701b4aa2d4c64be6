package human

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/fatih/color"
)

func init() {
	color.NoColor = true
}

func TestHandlerLine(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(HandlerOpts{MinLevel: slog.LevelDebug}, &buf)).
		With("logger", "http")
	logger.Warn("slow request", "route", "/health", "err", errors.New("deadline"))

	line := buf.String()
	for _, want := range []string{"WRN", "[http]", " - slow request", "route=/health", "err=deadline"} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q missing %q", line, want)
		}
	}
	if strings.Index(line, "route=") < strings.Index(line, "err=") {
		t.Errorf("error attrs should precede plain attrs: %q", line)
	}
	if !strings.HasSuffix(line, "\n") || strings.Count(line, "\n") != 1 {
		t.Errorf("expected exactly one line, got %q", line)
	}
}

func TestHandlerLevelsAndFiltering(t *testing.T) {
	var buf bytes.Buffer
	h := NewHandler(HandlerOpts{MinLevel: slog.LevelInfo, IgnoreAttrs: []string{"service"}}, &buf)
	logger := slog.New(h).With("service", "httpapi")
	logger.Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug line should be filtered: %q", buf.String())
	}
	logger.Log(context.Background(), slog.Level(12), "gone")
	if !strings.Contains(buf.String(), "CRT") {
		t.Errorf("expected CRT level tag, got %q", buf.String())
	}
	if strings.Contains(buf.String(), "service=") {
		t.Errorf("ignored attr was printed: %q", buf.String())
	}
}

func TestHandlerQuotesControlCharacters(t *testing.T) {
	var buf bytes.Buffer
	slog.New(NewHandler(HandlerOpts{}, &buf)).Info("req", "url", "/a\nb")
	if strings.Count(buf.String(), "\n") != 1 {
		t.Errorf("raw newline leaked into output: %q", buf.String())
	}
	if !strings.Contains(buf.String(), `url="/a\nb"`) {
		t.Errorf("expected quoted value, got %q", buf.String())
	}
}

func TestHandlerGroup(t *testing.T) {
	var buf bytes.Buffer
	slog.New(NewHandler(HandlerOpts{}, &buf)).WithGroup("req").With("id", "abc").Info("done")
	if !strings.Contains(buf.String(), "req.id=abc") {
		t.Errorf("group not rendered: %q", buf.String())
	}
}
