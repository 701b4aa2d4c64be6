// Package loglevelhandler serves the instrumentation routes that list service
// loggers and change their levels at runtime.
package loglevelhandler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/lkendrickd/httpapi/internal/loghandler/instrumentation"
	"github.com/lkendrickd/httpapi/log"
)

const maxBody = 64

type Handler struct {
	mu          sync.RWMutex
	logger      *log.Logger
	rootHandler *instrumentation.Handler
	handlers    map[string]*instrumentation.Handler
}

func NewHandler(rootHandler *instrumentation.Handler, logger *log.Logger) *Handler {
	return &Handler{
		logger:      logger,
		rootHandler: rootHandler,
		handlers:    map[string]*instrumentation.Handler{},
	}
}

// AddLogHandler registers a named sublogger handler. Names must be unique.
func (h *Handler) AddLogHandler(lh *instrumentation.Handler) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, found := h.handlers[lh.Name()]; found {
		return fmt.Errorf("duplicate logger: %s", lh.Name())
	}
	h.handlers[lh.Name()] = lh
	return nil
}

// RouteLevel reports (GET) or sets (POST, body is the level name) the level of
// the root logger, or of the logger named by the {logger} URL parameter. POST
// accepts ?override=<bool> for subloggers to go below the root level.
func (h *Handler) RouteLevel(w http.ResponseWriter, r *http.Request) {
	loggerName := chi.URLParam(r, "logger")
	target := h.rootHandler
	if loggerName != "" {
		h.mu.RLock()
		found, ok := h.handlers[loggerName]
		h.mu.RUnlock()
		if !ok {
			http.Error(w, fmt.Sprintf("no such logger: %s", loggerName), http.StatusNotFound)
			return
		}
		target = found
	}
	switch r.Method {
	case http.MethodGet:
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(target)
		return
	case http.MethodPost:
	default:
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	var override bool
	if r.URL.Query().Has("override") {
		if target == h.rootHandler {
			http.Error(w, "override not supported for root logger", http.StatusBadRequest)
			return
		}
		o, err := strconv.ParseBool(r.URL.Query().Get("override"))
		if err != nil {
			http.Error(w, "override param must be boolean", http.StatusBadRequest)
			return
		}
		override = o
	}
	b, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			http.Error(w, http.StatusText(http.StatusRequestEntityTooLarge), http.StatusRequestEntityTooLarge)
			return
		}
		h.logger.Error("loglevel - read body", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	newLevel, err := log.ParseLevel(string(b))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !target.SetLevel(newLevel, override) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	name := target.Name()
	if name == "" {
		name = "root"
	}
	h.logger.Info("log level set", "logger", name, "level", log.LevelName(newLevel), "override", override)
	w.Write([]byte(http.StatusText(http.StatusOK)))
}

// RouteList writes every registered logger and its level as JSON.
func (h *Handler) RouteList(w http.ResponseWriter, _ *http.Request) {
	type listResponse struct {
		Root       *instrumentation.Handler            `json:"root_logger"`
		SubLoggers map[string]*instrumentation.Handler `json:"subloggers"`
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(listResponse{
		Root:       h.rootHandler,
		SubLoggers: h.handlers,
	})
}
