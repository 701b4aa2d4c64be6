// Package logfmt renders program counters as short source locations.
package logfmt

import (
	"log/slog"
	"path/filepath"
	"runtime"
	"strconv"
)

// FmtRecord returns the source location of r, or "" if it has none.
func FmtRecord(r slog.Record, trim bool) string {
	return FmtLocation(r.PC, trim)
}

// FmtLocation formats pc as <file>:<line>, trimming the file to its base name
// when trim is set.
func FmtLocation(pc uintptr, trim bool) string {
	if pc == 0 {
		return ""
	}
	fs := runtime.CallersFrames([]uintptr{pc})
	f, _ := fs.Next()
	if f.Line > 0 {
		if trim {
			f.File = filepath.Base(f.File)
		}
		return f.File + `:` + strconv.Itoa(f.Line)
	}
	return ""
}
