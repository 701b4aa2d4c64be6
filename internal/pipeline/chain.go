// Package pipeline dispatches application requests: an ordered middleware
// chain around a chi router whose handlers return errors, with a translator
// at the outer edge that turns those errors into JSON responses.
package pipeline

import (
	"net/http"
)

// HandlerFunc handles a request. A nil return means the response has been
// written. A non-nil error is left for the [Translator] to answer, so the
// handler must not have written anything in that case.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

// Middleware is one stage of a [Chain]. Handle runs its inbound work, calls
// next to continue, and runs its outbound work once next returns.
type Middleware interface {
	Handle(w http.ResponseWriter, r *http.Request, next HandlerFunc) error
}

// MiddlewareFunc adapts a function to [Middleware].
type MiddlewareFunc func(w http.ResponseWriter, r *http.Request, next HandlerFunc) error

func (f MiddlewareFunc) Handle(w http.ResponseWriter, r *http.Request, next HandlerFunc) error {
	return f(w, r, next)
}

// Chain is an ordered list of middleware. The first one added runs first on
// the way in and last on the way out.
type Chain struct {
	mws []Middleware
}

func NewChain(mws ...Middleware) Chain {
	return Chain{mws: append([]Middleware(nil), mws...)}
}

// Append returns a new chain with mws added after the existing middleware.
func (c Chain) Append(mws ...Middleware) Chain {
	next := make([]Middleware, 0, len(c.mws)+len(mws))
	next = append(next, c.mws...)
	return Chain{mws: append(next, mws...)}
}

// Middlewares returns the chain in execution order.
func (c Chain) Middlewares() []Middleware {
	return append([]Middleware(nil), c.mws...)
}

// Then composes the chain around h.
func (c Chain) Then(h HandlerFunc) HandlerFunc {
	for i := len(c.mws) - 1; i >= 0; i-- {
		mw, next := c.mws[i], h
		h = func(w http.ResponseWriter, r *http.Request) error {
			return mw.Handle(w, r, next)
		}
	}
	return h
}

// Wrap adapts standard net/http middleware, such as chi's, into the chain.
// The wrapped middleware sees the request and writer it is given and passes
// through whatever error the rest of the chain returns.
func Wrap(std func(http.Handler) http.Handler) Middleware {
	return MiddlewareFunc(func(w http.ResponseWriter, r *http.Request, next HandlerFunc) error {
		var err error
		std(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			err = next(w, r)
		})).ServeHTTP(w, r)
		return err
	})
}
