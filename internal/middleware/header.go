package middleware

import (
	"net/http"

	"github.com/lkendrickd/httpapi/internal/pipeline"
)

const (
	CustomHeaderName  = "X-Custom-Header"
	CustomHeaderValue = "processed by middleware"
)

// CustomHeader tags every response with [CustomHeaderName]. The header is set
// before the rest of the chain runs, since it cannot be added once the
// handler has written. Body and status are untouched.
func CustomHeader() pipeline.Middleware {
	return pipeline.MiddlewareFunc(func(w http.ResponseWriter, r *http.Request, next pipeline.HandlerFunc) error {
		w.Header().Set(CustomHeaderName, CustomHeaderValue)
		return next(w, r)
	})
}
