package middleware

import (
	"regexp"
	"strings"
)

var ansiEscape = regexp.MustCompile(`\x1B\[[0-?]*[ -/]*[@-~]`)

const (
	alwaysSafe = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789_.-~"
	urlSafe    = ":/?=&%"
	paramsSafe = "/"
	upperhex   = "0123456789ABCDEF"
)

// SanitizeURL makes a request URL safe to interpolate into a log line.
// Reserved URL characters are left readable.
func SanitizeURL(s string) string {
	return sanitize(s, urlSafe)
}

// SanitizeParams makes an encoded query string safe to interpolate into a log
// line.
func SanitizeParams(s string) string {
	return sanitize(s, paramsSafe)
}

// sanitize drops ANSI CSI sequences and line breaks, then percent-encodes
// every byte outside the unreserved set and safe.
func sanitize(s, safe string) string {
	s = ansiEscape.ReplaceAllString(s, "")
	s = strings.NewReplacer("\n", "", "\r", "").Replace(s)
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if strings.IndexByte(alwaysSafe, c) >= 0 || strings.IndexByte(safe, c) >= 0 {
			sb.WriteByte(c)
			continue
		}
		sb.WriteByte('%')
		sb.WriteByte(upperhex[c>>4])
		sb.WriteByte(upperhex[c&15])
	}
	return sb.String()
}
