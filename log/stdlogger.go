package log

import (
	"log/slog"
	"regexp"
)

// StdLogLeveler decides the level, and possibly a trimmed message, for lines
// written by a [*stdlog.Logger].
type StdLogLeveler func(logMsg []byte) (newMsg []byte, level slog.Level)

// StdLogStatic returns a StdLogLeveler that will log all messages at the
// provided level.
func StdLogStatic(logLevel slog.Level) StdLogLeveler {
	return func(msg []byte) ([]byte, slog.Level) {
		return msg, logLevel
	}
}

var levelRx = regexp.MustCompile(`(?i)^\[?(info?|warn(?:ing)?|err(?:or)?|crit(?:ical)?|d(?:bg|ebug))(?:\]|\s?:|\s?-)\s*`)

// StdLogGuess is a StdLogLeveler that looks for a level prefix such as
// "LVL:", "LVL-" or "[LVL]" on each line, where LVL is one of dbg, debug, inf,
// info, warn, warning, err, error, crit or critical. The prefix is stripped.
// Lines without one are logged at Info.
func StdLogGuess(msg []byte) ([]byte, slog.Level) {
	if len(msg) > 0 {
		levelIdx := levelRx.FindSubmatchIndex(msg)
		if len(levelIdx) >= 4 {
			var foundLevel slog.Level
			switch msg[levelIdx[2]] {
			case 'D', 'd':
				foundLevel = slog.LevelDebug
			case 'I', 'i':
				foundLevel = slog.LevelInfo
			case 'W', 'w':
				foundLevel = slog.LevelWarn
			case 'E', 'e':
				foundLevel = slog.LevelError
			case 'C', 'c':
				foundLevel = LevelCritical
			}
			return msg[levelIdx[1]:], foundLevel
		}
	}
	return msg, slog.LevelInfo
}

// stdLogWrapper implements [io.Writer] for [*Logger.StdLogger].
type stdLogWrapper struct {
	logger  *Logger
	leveler StdLogLeveler
}

func (w *stdLogWrapper) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	n := len(p)
	if p[n-1] == '\n' {
		p = p[0 : n-1]
	}
	msg, level := w.leveler(p)
	w.logger.Log(defaultCtx, level, Up(3), string(msg))
	return n, nil
}
