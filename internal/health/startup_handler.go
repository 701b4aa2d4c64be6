package health

import (
	"net/http"
	"sync/atomic"
)

// StartupHandler answers 503 until the service has bound its listeners and
// 200 from then on. It never goes back.
type StartupHandler struct {
	started atomic.Bool
}

func NewStartupHandler() *StartupHandler {
	return &StartupHandler{}
}

func (s *StartupHandler) SetStarted() {
	s.started.Store(true)
}

func (s *StartupHandler) Started() bool {
	return s.started.Load()
}

func (s *StartupHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	writeStatus(w, s.started.Load())
}

func writeStatus(w http.ResponseWriter, ok bool) {
	if ok {
		w.Write([]byte(http.StatusText(http.StatusOK)))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	w.Write([]byte(http.StatusText(http.StatusServiceUnavailable)))
}
