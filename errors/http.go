package errors

import (
	stderr "errors"
	"net/http"
	"strconv"
)

// HTTPError is an error a handler returns to answer with a specific status
// code. Detail is sent to the client as-is, so it must not contain anything
// internal.
type HTTPError struct {
	Code   int
	Detail string
	cause  error
}

// HTTP returns an [*HTTPError] with the given status and client-facing detail.
// An empty detail is replaced by the status text.
func HTTP(code int, detail string) *HTTPError {
	if detail == "" {
		detail = http.StatusText(code)
	}
	return &HTTPError{Code: code, Detail: detail}
}

// HTTPCause is like [HTTP], but keeps an underlying error for logging.
func HTTPCause(code int, detail string, cause error) *HTTPError {
	he := HTTP(code, detail)
	he.cause = cause
	return he
}

func (e *HTTPError) Error() string {
	if e.cause != nil {
		return strconv.Itoa(e.Code) + " " + e.Detail + ": " + e.cause.Error()
	}
	return strconv.Itoa(e.Code) + " " + e.Detail
}

// Unwrap returns the cause given to [HTTPCause], if any.
func (e *HTTPError) Unwrap() error {
	return e.cause
}

// StatusOf reports the status code err will be translated to: the code of the
// first [*HTTPError] in its chain, 500 for any other error, and 200 for nil.
func StatusOf(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var he *HTTPError
	if stderr.As(err, &he) {
		return he.Code
	}
	return http.StatusInternalServerError
}
