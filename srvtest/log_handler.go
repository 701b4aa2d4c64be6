package srvtest

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"testing"
	"unicode"
	"unicode/utf8"
)

type LoggerOption func(*testHandler)

func WithErrorStrategy(es ErrorStrategy) LoggerOption {
	return func(th *testHandler) {
		th.es = es
	}
}

// testHandler writes each record as one t.Log line. Attributes added with
// WithAttrs are pre-rendered; groups become dotted key prefixes.
type testHandler struct {
	t      testing.TB
	es     ErrorStrategy
	prefix string
	pre    string
}

func newHandler(t testing.TB, options ...LoggerOption) slog.Handler {
	th := &testHandler{
		t: t,
	}
	for _, o := range options {
		o(th)
	}
	return th
}

func (h *testHandler) Enabled(context.Context, slog.Level) bool {
	return true
}

func (h *testHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := *h
	h2.prefix += name + "."
	return &h2
}

func (h *testHandler) WithAttrs(as []slog.Attr) slog.Handler {
	h2 := *h
	var sb strings.Builder
	for _, a := range as {
		printattr(&sb, h.prefix, a)
	}
	h2.pre += sb.String()
	return &h2
}

func (h *testHandler) Handle(_ context.Context, r slog.Record) error {
	var sb strings.Builder
	sb.WriteString(r.Level.String() + ": " + r.Message)
	sb.WriteString(h.pre)
	r.Attrs(func(a slog.Attr) bool {
		printattr(&sb, h.prefix, a)
		return true
	})
	h.t.Helper()
	h.t.Log(sb.String())
	if r.Level >= slog.LevelError {
		switch h.es {
		case Fail:
			h.t.Fail()
		case FailNow:
			h.t.FailNow()
		}
	}
	return nil
}

func printattr(sb *strings.Builder, prefix string, a slog.Attr) {
	rv := a.Value.Resolve()
	if rv.Kind() == slog.KindGroup {
		p := prefix
		if a.Key != "" {
			p += a.Key + "."
		}
		for _, ga := range rv.Group() {
			printattr(sb, p, ga)
		}
		return
	}
	if a.Equal(slog.Attr{}) {
		return
	}
	fmt.Fprintf(sb, " %s=%s", qs(prefix+a.Key), qs(rv.String()))
}

func qs(s string) string {
	if needsQuoted(s) {
		return strconv.Quote(s)
	}
	return s
}

func needsQuoted(str string) bool {
	for len(str) > 0 {
		if str[0] < utf8.RuneSelf {
			switch str[0] {
			case '\n', '\t', ' ', '\r', '"', '=':
				return true
			}
			str = str[1:]
			continue
		}
		r, size := utf8.DecodeRuneInString(str)
		if unicode.IsSpace(r) {
			return true
		}
		str = str[size:]
	}
	return false
}

// Record is a captured log record with its attributes flattened to strings.
// Group members are keyed as "group.key".
type Record struct {
	Level   slog.Level
	Message string
	Attrs   map[string]string
}

// Recorder is an [slog.Handler] that keeps every record for later
// inspection. It is safe for concurrent use.
type Recorder struct {
	mu      *sync.Mutex
	records *[]Record
	prefix  string
	attrs   map[string]string
}

func NewRecorder() *Recorder {
	return &Recorder{
		mu:      &sync.Mutex{},
		records: &[]Record{},
		attrs:   map[string]string{},
	}
}

func (r *Recorder) Enabled(context.Context, slog.Level) bool {
	return true
}

func (r *Recorder) Handle(_ context.Context, rec slog.Record) error {
	attrs := make(map[string]string, len(r.attrs)+rec.NumAttrs())
	for k, v := range r.attrs {
		attrs[k] = v
	}
	rec.Attrs(func(a slog.Attr) bool {
		flatten(attrs, r.prefix, a)
		return true
	})
	r.mu.Lock()
	defer r.mu.Unlock()
	*r.records = append(*r.records, Record{Level: rec.Level, Message: rec.Message, Attrs: attrs})
	return nil
}

func (r *Recorder) WithAttrs(as []slog.Attr) slog.Handler {
	r2 := *r
	r2.attrs = make(map[string]string, len(r.attrs)+len(as))
	for k, v := range r.attrs {
		r2.attrs[k] = v
	}
	for _, a := range as {
		flatten(r2.attrs, r.prefix, a)
	}
	return &r2
}

func (r *Recorder) WithGroup(name string) slog.Handler {
	if name == "" {
		return r
	}
	r2 := *r
	r2.prefix += name + "."
	return &r2
}

// Records returns a copy of everything recorded so far.
func (r *Recorder) Records() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Record(nil), *r.records...)
}

// Messages returns the message of every record, in order.
func (r *Recorder) Messages() []string {
	recs := r.Records()
	msgs := make([]string, len(recs))
	for i := range recs {
		msgs[i] = recs[i].Message
	}
	return msgs
}

func flatten(dst map[string]string, prefix string, a slog.Attr) {
	rv := a.Value.Resolve()
	if rv.Kind() == slog.KindGroup {
		p := prefix
		if a.Key != "" {
			p += a.Key + "."
		}
		for _, ga := range rv.Group() {
			flatten(dst, p, ga)
		}
		return
	}
	if a.Key == "" {
		return
	}
	dst[prefix+a.Key] = rv.String()
}
