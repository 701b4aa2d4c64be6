// Package srvtest holds logging helpers for tests of code that takes a
// [*log.Logger].
package srvtest

import (
	"log/slog"
	"testing"

	"github.com/lkendrickd/httpapi/log"
)

// ErrorStrategy defines what a [Logger] should do if a message is logged
// at the error level.
type ErrorStrategy int

const (
	// Ignore will take no action. This is the default.
	Ignore ErrorStrategy = iota
	// Fail will mark the test as failed, but continue.
	Fail
	// FailNow will mark the test as failed and exit immediately.
	FailNow
)

// NewLogger returns a [*log.Logger] that outputs all results using t.Log.
func NewLogger(t testing.TB, options ...LoggerOption) *log.Logger {
	return log.NewLogger(slog.New(newHandler(t, options...)))
}

// NewRecordingLogger returns a [*log.Logger] along with the [Recorder] that
// captures its output.
func NewRecordingLogger() (*log.Logger, *Recorder) {
	rec := NewRecorder()
	return log.NewLogger(slog.New(rec)), rec
}
