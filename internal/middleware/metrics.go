package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-kit/kit/metrics"

	"github.com/lkendrickd/httpapi/internal/pipeline"
)

// unmatchedRoute labels requests no route matched, keeping raw paths out of
// the label set.
const unmatchedRoute = "unmatched"

// RequestMetrics counts requests and observes their duration in seconds,
// labeled by method, route pattern and status.
type RequestMetrics struct {
	requests metrics.Counter
	duration metrics.Histogram
}

func NewRequestMetrics(requests metrics.Counter, duration metrics.Histogram) *RequestMetrics {
	return &RequestMetrics{requests: requests, duration: duration}
}

func (m *RequestMetrics) Handle(w http.ResponseWriter, r *http.Request, next pipeline.HandlerFunc) error {
	start := time.Now()
	err := next(w, r)

	info := pipeline.RequestInfoFrom(r)
	route := info.Route
	if route == "" {
		route = unmatchedRoute
	}
	lvs := []string{"method", r.Method, "route", route, "status", strconv.Itoa(info.Status(err))}
	m.requests.With(lvs...).Add(1)
	m.duration.With(lvs...).Observe(time.Since(start).Seconds())
	return err
}
