package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/lkendrickd/httpapi/srvtest"
)

func gatherNames(t *testing.T, r *Registry) map[string]bool {
	t.Helper()
	mfs, err := r.Gather()
	if err != nil {
		t.Fatal(err)
	}
	names := map[string]bool{}
	for _, mf := range mfs {
		names[mf.GetName()] = true
	}
	return names
}

func TestRegistryCollectors(t *testing.T) {
	r := NewRegistry()
	r.LogErrors.With("logger", "root").Add(1)
	r.HTTPRequests.With("method", "GET", "route", "/", "status", "200").Add(1)
	r.HTTPDuration.With("method", "GET", "route", "/", "status", "200").Observe(0.1)

	names := gatherNames(t, r)
	for _, want := range []string{
		"request_processing_seconds",
		"error_messages",
		"http_requests_total",
		"http_request_duration_seconds",
		"go_goroutines",
	} {
		if !names[want] {
			t.Errorf("registry is missing %s", want)
		}
	}
}

func TestHandlerServesText(t *testing.T) {
	r := NewRegistry()
	r.RequestProcessing.Observe(0.25)
	logger, _ := srvtest.NewRecordingLogger()
	rec := httptest.NewRecorder()
	r.Handler(logger.Slogger()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(rec.Body)
	if err != nil {
		t.Fatal(err)
	}
	mf, ok := mfs["request_processing_seconds"]
	if !ok {
		t.Fatal("request_processing_seconds not served")
	}
	if got := mf.GetMetric()[0].GetSummary().GetSampleCount(); got != 1 {
		t.Errorf("sample count = %d", got)
	}
}

func TestPusherTargetsGroup(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		gotPath = req.URL.Path
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	r := NewRegistry()
	if err := Push(context.Background(), r.Pusher(srv.URL, "httpapi", "abc-123")); err != nil {
		t.Fatal(err)
	}
	if want := "/metrics/job/httpapi/instance/" + url.PathEscape("abc-123"); gotPath != want {
		t.Errorf("path = %q, want %q", gotPath, want)
	}
}

func TestPromhttpLoggerMultiError(t *testing.T) {
	logger, rec := srvtest.NewRecordingLogger()
	pl := &promhttpLogger{logger.Slogger()}
	pl.Println("error gathering metrics:", prometheus.MultiError{errors.New("one"), errors.New("two")})
	recs := rec.Records()
	if len(recs) != 2 {
		t.Fatalf("got %d records, want one per error", len(recs))
	}
	for i, r := range recs {
		if r.Level != slog.LevelError || !strings.HasPrefix(r.Message, "error gathering") {
			t.Errorf("record %d = %+v", i, r)
		}
		if r.Attrs["total_errors"] != "2" {
			t.Errorf("total_errors = %q", r.Attrs["total_errors"])
		}
	}
	if recs[1].Attrs["err"] != "two" {
		t.Errorf("second err = %q", recs[1].Attrs["err"])
	}
}
