package pipeline

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/lkendrickd/httpapi/errors"
	"github.com/lkendrickd/httpapi/log"
)

// InternalErrorMessage is the only detail clients see for unexpected errors.
const InternalErrorMessage = "An unexpected error occurred."

type errorBody struct {
	Message string `json:"message"`
}

// Translator is the outermost http.Handler of the application. It runs the
// pipeline and answers any error it returns:
//   - an [*errors.HTTPError] gets its own status and detail
//   - anything else is logged with its stack and answered with a 500 and
//     [InternalErrorMessage]
//
// Panics that escape the pipeline are handled the same way, so a failing
// request never takes the server down.
type Translator struct {
	next   HandlerFunc
	logger *log.Logger
}

func NewTranslator(next HandlerFunc, logger *log.Logger) *Translator {
	return &Translator{next: next, logger: logger}
}

func (t *Translator) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
	r = r.WithContext(WithRequestInfo(r.Context(), newRequestInfo(r, ww)))
	if err := call(t.next, ww, r); err != nil {
		t.translate(ww, r, err)
	}
}

func (t *Translator) translate(ww middleware.WrapResponseWriter, r *http.Request, err error) {
	status, detail := http.StatusInternalServerError, InternalErrorMessage
	var he *errors.HTTPError
	if errors.As(err, &he) {
		status, detail = he.Code, he.Detail
		t.logger.Debug("request failed", "err", err, "status", status, "method", r.Method, "path", r.URL.Path)
	} else {
		t.logger.Error("unhandled error", errors.Wrap(err), "method", r.Method, "path", r.URL.Path)
	}
	if ww.Status() != 0 {
		t.logger.Warn("response already started, dropping error response", "method", r.Method, "path", r.URL.Path, "status", ww.Status())
		return
	}
	WriteJSON(ww, status, errorBody{Message: detail})
}

// WriteJSON writes v as the JSON response body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return errors.Errorf("encode response: %w", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err = w.Write(b)
	return err
}
