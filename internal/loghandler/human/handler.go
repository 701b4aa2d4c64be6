// Package human provides a colorized, single-line slog handler for people
// watching the service from a terminal.
package human

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/fatih/color"

	"github.com/lkendrickd/httpapi/internal/logfmt"
	"github.com/lkendrickd/httpapi/log"
)

type cPrinter func(io.Writer, ...any)

var (
	warnP  = color.New(color.FgYellow).FprintFunc()
	errorP = color.New(color.FgRed).FprintFunc()
	critP  = color.New(color.FgRed, color.Bold).FprintFunc()
	valP   = color.New(color.FgHiBlack).FprintFunc()
	msgP   = color.New(color.Bold).FprintFunc()
	keyP   = color.New(color.FgGreen).Add(color.Faint).FprintFunc()
)

const timeFormat = "Jan 02 15:04:05"

type HandlerOpts struct {
	MinLevel    slog.Leveler
	DoSource    bool
	IgnoreAttrs []string
}

// Handler makes logs easy to read from the CLI. Attributes whose key starts
// with "err" are printed last, in red, and the "logger" attribute becomes a
// bracketed prefix.
type Handler struct {
	mu        *sync.Mutex
	minlevel  slog.Leveler
	writer    io.Writer
	doSource  bool
	ignore    map[string]bool
	logger    string
	prefix    string
	static    string
	staticErr string
}

func NewHandler(options HandlerOpts, w io.Writer) *Handler {
	ignore := make(map[string]bool, len(options.IgnoreAttrs))
	for _, ignored := range options.IgnoreAttrs {
		ignore[ignored] = true
	}
	minlevel := options.MinLevel
	if minlevel == nil {
		minlevel = slog.LevelInfo
	}
	return &Handler{
		mu:       &sync.Mutex{},
		minlevel: minlevel,
		doSource: options.DoSource,
		ignore:   ignore,
		writer:   w,
	}
}

func (s *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= s.minlevel.Level()
}

func (s *Handler) Handle(_ context.Context, r slog.Record) error {
	var errAttrs []slog.Attr
	var manSource string

	buf := getBuf()
	defer putBuf(buf)

	r.Attrs(func(a slog.Attr) bool {
		switch {
		case a.Key == slog.SourceKey:
			manSource = a.Value.String()
		case a.Key == "logger":
		case strings.HasPrefix(a.Key, "err"):
			errAttrs = append(errAttrs, a)
		default:
			if s.ignore[a.Key] {
				return true
			}
			io.WriteString(buf, " ")
			printAttr(keyP, buf, s.prefix, a)
		}
		return true
	})

	buf.WriteString(s.static)

	out := getBuf()
	defer putBuf(out)

	valP(out, r.Time.Format(timeFormat))
	io.WriteString(out, " ")
	switch {
	case r.Level < slog.LevelInfo:
		valP(out, "DBG")
	case r.Level < slog.LevelWarn:
		io.WriteString(out, "INF")
	case r.Level < slog.LevelError:
		warnP(out, "WRN")
	case r.Level < log.LevelCritical:
		errorP(out, "ERR")
	default:
		critP(out, "CRT")
	}
	if len(s.logger) > 0 {
		valP(out, "[")
		valP(out, s.logger)
		valP(out, "]")
	}
	valP(out, " - ")

	if r.Message == "" {
		if r.NumAttrs() == 0 && len(errAttrs) == 0 {
			msgP(out, "<no message>")
		}
	} else {
		msgP(out, r.Message)
	}

	// source lines only matter for warnings and up
	if r.Level > slog.LevelInfo {
		loc := manSource
		if loc == "" && s.doSource {
			loc = logfmt.FmtRecord(r, false)
		}
		if loc != "" {
			io.WriteString(out, " ")
			valP(out, "("+loc+")")
		}
	}

	for i := range errAttrs {
		io.WriteString(out, " ")
		printAttr(errorP, out, s.prefix, errAttrs[i])
	}
	if s.staticErr != "" {
		io.WriteString(out, " ")
		io.WriteString(out, s.staticErr)
	}

	out.Write(buf.Bytes())
	io.WriteString(out, "\n")

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.writer.Write(out.Bytes())
	return err
}

func (s *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	attrs = slices.DeleteFunc(slices.Clone(attrs), func(a slog.Attr) bool {
		return s.ignore[a.Key]
	})
	return s.clone(attrs...)
}

// WithGroup qualifies the keys of all later attributes with name, joined by
// dots the way slog's text handler does it.
func (s *Handler) WithGroup(name string) slog.Handler {
	ns := s.clone()
	if name != "" {
		ns.prefix = s.prefix + name + "."
	}
	return ns
}

func (s *Handler) clone(newAttrs ...slog.Attr) *Handler {
	newHandler := &Handler{
		mu:        s.mu,
		writer:    s.writer,
		minlevel:  s.minlevel,
		doSource:  s.doSource,
		ignore:    s.ignore,
		logger:    s.logger,
		prefix:    s.prefix,
		static:    s.static,
		staticErr: s.staticErr,
	}
	if len(newAttrs) == 0 {
		return newHandler
	}
	abuf := getBuf()
	defer putBuf(abuf)
	errbuf := getBuf()
	defer putBuf(errbuf)
	for i := range newAttrs {
		switch {
		case newAttrs[i].Key == slog.SourceKey:
			continue
		case newAttrs[i].Key == "logger" && s.prefix == "":
			if newHandler.logger != "" {
				newHandler.logger += "/" + newAttrs[i].Value.String()
			} else {
				newHandler.logger = newAttrs[i].Value.String()
			}
		case strings.HasPrefix(newAttrs[i].Key, "err"):
			errbuf.WriteString(" ")
			printAttr(errorP, errbuf, s.prefix, newAttrs[i])
		default:
			abuf.WriteString(" ")
			printAttr(keyP, abuf, s.prefix, newAttrs[i])
		}
	}
	if errbuf.Len() > 0 {
		if len(newHandler.staticErr) > 0 {
			errbuf.WriteString(" ")
			errbuf.WriteString(newHandler.staticErr)
		}
		newHandler.staticErr = errbuf.String()
	}
	if abuf.Len() > 0 {
		if len(newHandler.static) > 0 {
			abuf.WriteString(" ")
			abuf.WriteString(newHandler.static)
		}
		newHandler.static = abuf.String()
	}
	return newHandler
}

func printAttr(cp cPrinter, w io.Writer, prefix string, a slog.Attr) {
	cp(w, qs(prefix+a.Key)+"=")
	r := a.Value.Resolve()
	switch r.Kind() {
	case slog.KindGroup:
		valP(w, "[ ")
		group := r.Group()
		for i, ga := range group {
			printAttr(keyP, w, "", ga)
			if i != len(group)-1 {
				io.WriteString(w, " ")
			}
		}
		valP(w, " ]")
	case slog.KindTime:
		valP(w, r.Time().Format(timeFormat))
	default:
		valP(w, qs(r.String()))
	}
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
			case '\n', '\r', '\t', ' ', '\x1b':
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
