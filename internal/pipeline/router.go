package pipeline

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lkendrickd/httpapi/errors"
)

type resultKey struct{}

type result struct {
	err error
}

// Router matches requests to [HandlerFunc] routes. Unmatched paths get chi's
// default 404 and unsupported methods its 405.
type Router struct {
	mux *chi.Mux
}

func NewRouter() *Router {
	return &Router{mux: chi.NewRouter()}
}

// Handle registers h for method and a chi pattern such as "/items/{id}".
func (rt *Router) Handle(method, pattern string, h HandlerFunc) {
	rt.mux.Method(method, pattern, route(h))
}

func (rt *Router) Get(pattern string, h HandlerFunc) {
	rt.Handle(http.MethodGet, pattern, h)
}

// Dispatch routes the request and returns the matched handler's error. It is
// the innermost stage of the pipeline.
func (rt *Router) Dispatch(w http.ResponseWriter, r *http.Request) error {
	res := &result{}
	rt.mux.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), resultKey{}, res)))
	return res.err
}

type route HandlerFunc

func (h route) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		RequestInfoFrom(r).Route = rctx.RoutePattern()
	}
	err := call(HandlerFunc(h), w, r)
	if res, ok := r.Context().Value(resultKey{}).(*result); ok {
		res.err = err
		return
	}
	if err != nil {
		http.Error(w, http.StatusText(errors.StatusOf(err)), errors.StatusOf(err))
	}
}

// call runs h, turning a panic into an error that carries the panic site's
// stack. http.ErrAbortHandler is re-raised for net/http to handle.
func call(h HandlerFunc, w http.ResponseWriter, r *http.Request) (err error) {
	defer func() {
		if v := recover(); v != nil {
			if v == http.ErrAbortHandler {
				panic(v)
			}
			err = errors.Recovered(v, 1)
		}
	}()
	return h(w, r)
}
