// Package middleware holds the application request middleware: request
// logging, HTTP metrics and the custom response header.
package middleware

import (
	"fmt"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/lkendrickd/httpapi/internal/pipeline"
	"github.com/lkendrickd/httpapi/log"
)

// RequestLogger logs every request once on the way in and once on the way
// out with its status and duration. URL and query are sanitized first since
// both are attacker controlled.
type RequestLogger struct {
	logger *log.Logger
}

func NewRequestLogger(logger *log.Logger) *RequestLogger {
	return &RequestLogger{logger: logger}
}

func (l *RequestLogger) Handle(w http.ResponseWriter, r *http.Request, next pipeline.HandlerFunc) error {
	info := pipeline.RequestInfoFrom(r)
	safeURL := SanitizeURL(info.URL.String())
	reqID := chimw.GetReqID(r.Context())
	l.logger.Info(
		fmt.Sprintf("Request details: method=%s, url=%s, params=%s", r.Method, safeURL, SanitizeParams(info.URL.RawQuery)),
		"request_id", reqID,
	)

	err := next(w, r)

	elapsed := info.Elapsed()
	status := info.Status(err)
	l.logger.Info(
		fmt.Sprintf("%s %s %d Completed in %.2f sec", r.Method, safeURL, status, elapsed.Seconds()),
		"request_id", reqID,
		"status", status,
		"duration", elapsed,
	)
	return err
}
