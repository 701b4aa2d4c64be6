package log

import (
	"fmt"
	"log/slog"
	"strings"
)

// LevelCritical sits above [slog.LevelError] for failures that stop the
// service.
const LevelCritical = slog.Level(12)

// Level names as they appear in configuration and log output.
const (
	NameDebug    = "DEBUG"
	NameInfo     = "INFO"
	NameWarning  = "WARNING"
	NameError    = "ERROR"
	NameCritical = "CRITICAL"
)

// ParseLevel converts a level name to a [slog.Level]. Matching is
// case-insensitive, and WARN is accepted as an alias for WARNING.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case NameDebug:
		return slog.LevelDebug, nil
	case NameInfo:
		return slog.LevelInfo, nil
	case NameWarning, "WARN":
		return slog.LevelWarn, nil
	case NameError:
		return slog.LevelError, nil
	case NameCritical:
		return LevelCritical, nil
	}
	return 0, fmt.Errorf("invalid log level %q - valid levels: DEBUG, INFO, WARNING, ERROR, CRITICAL", name)
}

// LevelName returns the canonical name for lvl. Levels between the named ones
// are rendered like slog does, relative to the level below, e.g. "INFO+2".
func LevelName(lvl slog.Level) string {
	str := func(base string, val slog.Level) string {
		if val == 0 {
			return base
		}
		return fmt.Sprintf("%s%+d", base, val)
	}
	switch {
	case lvl < slog.LevelInfo:
		return str(NameDebug, lvl-slog.LevelDebug)
	case lvl < slog.LevelWarn:
		return str(NameInfo, lvl-slog.LevelInfo)
	case lvl < slog.LevelError:
		return str(NameWarning, lvl-slog.LevelWarn)
	case lvl < LevelCritical:
		return str(NameError, lvl-slog.LevelError)
	default:
		return str(NameCritical, lvl-LevelCritical)
	}
}

// ReplaceLevelAttr is a ReplaceAttr function for slog's builtin handlers that
// renders levels with [LevelName].
func ReplaceLevelAttr(groups []string, a slog.Attr) slog.Attr {
	if len(groups) == 0 && a.Key == slog.LevelKey {
		if lvl, ok := a.Value.Any().(slog.Level); ok {
			a.Value = slog.StringValue(LevelName(lvl))
		}
	}
	return a
}
