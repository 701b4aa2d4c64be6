package pipeline

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/lkendrickd/httpapi/errors"
)

type ctxKey struct{}

// RequestInfo is the per-request state shared along the pipeline. It lives in
// the request context and is never shared between requests.
type RequestInfo struct {
	Method string
	URL    *url.URL // absolute, including scheme and host
	Query  url.Values
	Start  time.Time
	// Route is the matched route pattern, set by the [Router]. It is empty
	// for unmatched requests.
	Route string

	writer middleware.WrapResponseWriter
}

func newRequestInfo(r *http.Request, w middleware.WrapResponseWriter) *RequestInfo {
	u := *r.URL
	if u.Scheme == "" {
		u.Scheme = "http"
		if r.TLS != nil {
			u.Scheme = "https"
		}
	}
	if u.Host == "" {
		u.Host = r.Host
	}
	return &RequestInfo{
		Method: r.Method,
		URL:    &u,
		Query:  r.URL.Query(),
		Start:  time.Now(),
		writer: w,
	}
}

// Status is the response status for this request: the one already written,
// or the one err will be translated to.
func (ri *RequestInfo) Status(err error) int {
	if ri.writer != nil && ri.writer.Status() != 0 {
		return ri.writer.Status()
	}
	return errors.StatusOf(err)
}

// Elapsed is the time since the request entered the pipeline.
func (ri *RequestInfo) Elapsed() time.Duration {
	return time.Since(ri.Start)
}

// WithRequestInfo returns ctx carrying ri.
func WithRequestInfo(ctx context.Context, ri *RequestInfo) context.Context {
	return context.WithValue(ctx, ctxKey{}, ri)
}

// RequestInfoFrom returns the request's info. Outside a [Translator] it
// builds one from r, which then has no written status to report.
func RequestInfoFrom(r *http.Request) *RequestInfo {
	if ri, ok := r.Context().Value(ctxKey{}).(*RequestInfo); ok {
		return ri
	}
	return newRequestInfo(r, nil)
}
