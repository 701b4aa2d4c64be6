// Package health serves the orchestrator probes on the instrumentation port.
package health

import (
	"net/http"
	"sync/atomic"
)

// ReadinessHandler reports whether the service should receive traffic. The
// service flips it on once serving and off as soon as shutdown begins, so
// load balancers drain it before the listeners close.
type ReadinessHandler struct {
	ready atomic.Bool
}

func NewReadinessHandler() *ReadinessHandler {
	return &ReadinessHandler{}
}

func (h *ReadinessHandler) SetReady(ready bool) {
	h.ready.Store(ready)
}

func (h *ReadinessHandler) Ready() bool {
	return h.ready.Load()
}

func (h *ReadinessHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	writeStatus(w, h.ready.Load())
}

// NewLivenessHandler returns a handler that, if you can reach it, says the
// process is alive.
func NewLivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, true)
	})
}
