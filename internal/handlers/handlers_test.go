package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/lkendrickd/httpapi/errors"
	"github.com/lkendrickd/httpapi/internal/config"
	"github.com/lkendrickd/httpapi/internal/metrics"
)

func serve(t *testing.T, h func(http.ResponseWriter, *http.Request) error, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	if err := h(rec, req); err != nil {
		t.Fatalf("handler returned %v", err)
	}
	return rec
}

func TestHealth(t *testing.T) {
	for i := 0; i < 3; i++ {
		rec := serve(t, Health(), httptest.NewRequest(http.MethodGet, "/health", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		if got := rec.Body.String(); got != `{"status":"ok"}` {
			t.Fatalf("body = %s", got)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
			t.Fatalf("content type = %q", ct)
		}
	}
}

func TestIndex(t *testing.T) {
	reg := metrics.NewRegistry()
	bi := config.BuildInfo{Version: "1.2.3", Commit: "abc1234", Branch: "release", BuildDate: "2024-05-01T00:00:00Z"}
	h := Index(bi, reg.RequestProcessing)
	rec := serve(t, h, httptest.NewRequest(http.MethodGet, "/", nil))
	serve(t, h, httptest.NewRequest(http.MethodGet, "/", nil))

	var body struct {
		Message   string            `json:"message"`
		BuildInfo map[string]string `json:"build_info"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Message != "online" {
		t.Errorf("message = %q", body.Message)
	}
	want := map[string]string{"version": "1.2.3", "commit": "abc1234", "branch": "release", "build_date": "2024-05-01T00:00:00Z"}
	for k, v := range want {
		if body.BuildInfo[k] != v {
			t.Errorf("build_info.%s = %q, want %q", k, body.BuildInfo[k], v)
		}
	}

	mf := gathered(t, reg, "request_processing_seconds")
	if got := mf.GetMetric()[0].GetSummary().GetSampleCount(); got != 2 {
		t.Errorf("sample count = %d, want 2", got)
	}
}

func gathered(t *testing.T, reg *metrics.Registry, name string) *dto.MetricFamily {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	t.Fatalf("metric %s not gathered", name)
	return nil
}

func TestMetricsText(t *testing.T) {
	reg := metrics.NewRegistry()
	rec := serve(t, Metrics(reg), httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != string(expfmt.FmtText) {
		t.Errorf("content type = %q", ct)
	}
	var p expfmt.TextParser
	mfs, err := p.TextToMetricFamilies(bytes.NewReader(rec.Body.Bytes()))
	if err != nil {
		t.Fatalf("unparseable exposition: %v", err)
	}
	for _, name := range []string{"request_processing_seconds", "go_goroutines"} {
		if _, ok := mfs[name]; !ok {
			t.Errorf("missing %s", name)
		}
	}
}

func TestMetricsProtobuf(t *testing.T) {
	reg := metrics.NewRegistry()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Accept", "application/vnd.google.protobuf;proto=io.prometheus.client.MetricFamily;encoding=delimited")
	rec := serve(t, Metrics(reg), req)
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/vnd.google.protobuf") {
		t.Errorf("content type = %q", ct)
	}
}

type failingGatherer struct{}

func (failingGatherer) Gather() ([]*dto.MetricFamily, error) {
	return nil, errors.New("collector exploded")
}

func TestMetricsGatherError(t *testing.T) {
	rec := httptest.NewRecorder()
	err := Metrics(failingGatherer{})(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if err == nil {
		t.Fatal("expected an error")
	}
	if errors.StatusOf(err) != http.StatusInternalServerError {
		t.Errorf("status of %v = %d", err, errors.StatusOf(err))
	}
	if rec.Body.Len() != 0 {
		t.Errorf("handler wrote %q before failing", rec.Body.String())
	}
}
