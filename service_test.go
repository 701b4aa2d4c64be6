package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lkendrickd/httpapi/errors"
	"github.com/lkendrickd/httpapi/internal/config"
	"github.com/lkendrickd/httpapi/internal/middleware"
	"github.com/lkendrickd/httpapi/internal/pipeline"
	"github.com/lkendrickd/httpapi/log"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// records decodes the JSON log lines written so far.
func (b *syncBuffer) records(t *testing.T) []map[string]any {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []map[string]any
	sc := bufio.NewScanner(bytes.NewReader(b.buf.Bytes()))
	for sc.Scan() {
		var rec map[string]any
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			t.Fatalf("log line %q: %v", sc.Text(), err)
		}
		out = append(out, rec)
	}
	return out
}

func testSettings(t *testing.T, env map[string]string) *config.Settings {
	t.Helper()
	base := map[string]string{
		"SERVICE_HOST":         "127.0.0.1",
		"SERVICE_PORT":         "0",
		"SERVICE_METRICS_PORT": "0",
		"SERVICE_LOG_FORMAT":   "json",
	}
	for k, v := range env {
		base[k] = v
	}
	s, err := config.Resolve(nil, config.WithEnviron(base))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	return s
}

func newTestService(t *testing.T, env map[string]string, opts ...Option) (*Service, *syncBuffer) {
	t.Helper()
	logs := &syncBuffer{}
	opts = append([]Option{WithLogOutput(logs), WithTerminationLog("")}, opts...)
	svc, err := New(testSettings(t, env), opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return svc, logs
}

func get(h http.Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHealthRoute(t *testing.T) {
	svc, _ := newTestService(t, nil)
	for i := 0; i < 3; i++ {
		rec := get(svc.Handler(), "/health")
		if rec.Code != http.StatusOK || rec.Body.String() != `{"status":"ok"}` {
			t.Fatalf("GET /health = %d %s", rec.Code, rec.Body.String())
		}
	}
}

func TestIndexReportsBuildInfo(t *testing.T) {
	svc, _ := newTestService(t, map[string]string{"VERSION": "1.2.3", "COMMIT": "deadbeef"})
	rec := get(svc.Handler(), "/")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Message   string           `json:"message"`
		BuildInfo config.BuildInfo `json:"build_info"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	want := svc.Settings().BuildInfo()
	if body.Message != "online" || body.BuildInfo != want {
		t.Errorf("got %+v, want build info %+v", body, want)
	}
	if body.BuildInfo.Version != "1.2.3" || body.BuildInfo.Commit != "deadbeef" {
		t.Errorf("build info = %+v", body.BuildInfo)
	}
}

func TestMetricsRoute(t *testing.T) {
	svc, _ := newTestService(t, nil)
	get(svc.Handler(), "/")
	rec := get(svc.Handler(), "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain; version=0.0.4") {
		t.Errorf("content type = %q", ct)
	}
	body := rec.Body.String()
	for _, want := range []string{"request_processing_seconds_count 1", `http_requests_total{method="GET",route="/",status="200"} 1`} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestBothMetricsEndpointsShareRegistry(t *testing.T) {
	svc, _ := newTestService(t, nil)
	get(svc.Handler(), "/health")
	want := `http_requests_total{method="GET",route="/health",status="200"} 1`
	if body := get(svc.Handler(), "/metrics").Body.String(); !strings.Contains(body, want) {
		t.Errorf("application /metrics missing %q", want)
	}
	if body := get(svc.InstrumentationHandler(), "/metrics").Body.String(); !strings.Contains(body, want) {
		t.Errorf("instrumentation /metrics missing %q", want)
	}
}

func TestUnmatchedPath(t *testing.T) {
	svc, _ := newTestService(t, nil)
	rec := get(svc.Handler(), "/no/such/thing")
	if rec.Code != http.StatusNotFound || rec.Body.String() != "404 page not found\n" {
		t.Errorf("got %d %q", rec.Code, rec.Body.String())
	}
}

func TestErrorTranslation(t *testing.T) {
	svc, logs := newTestService(t, nil)
	if err := svc.Handle(http.MethodGet, "/boom", func(http.ResponseWriter, *http.Request) error {
		panic("kaboom")
	}); err != nil {
		t.Fatal(err)
	}
	if err := svc.Handle(http.MethodGet, "/teapot", func(http.ResponseWriter, *http.Request) error {
		return errors.HTTP(http.StatusTeapot, "short and stout")
	}); err != nil {
		t.Fatal(err)
	}

	rec := get(svc.Handler(), "/boom")
	if rec.Code != http.StatusInternalServerError || rec.Body.String() != `{"message":"An unexpected error occurred."}` {
		t.Errorf("GET /boom = %d %s", rec.Code, rec.Body.String())
	}
	// the service keeps answering after a failed request
	if rec := get(svc.Handler(), "/health"); rec.Code != http.StatusOK {
		t.Errorf("GET /health after panic = %d", rec.Code)
	}
	rec = get(svc.Handler(), "/teapot")
	if rec.Code != http.StatusTeapot || rec.Body.String() != `{"message":"short and stout"}` {
		t.Errorf("GET /teapot = %d %s", rec.Code, rec.Body.String())
	}

	var found bool
	for _, r := range logs.records(t) {
		if r["message"] == "unhandled error" {
			found = true
			if r["level"] != "ERROR" || r["err"] != "panic: kaboom" || r["logger"] != "server" {
				t.Errorf("unhandled error record = %v", r)
			}
		}
	}
	if !found {
		t.Error("panic was not logged")
	}
}

func TestRequestLogLines(t *testing.T) {
	svc, logs := newTestService(t, nil)
	get(svc.Handler(), "/health?probe=1")
	var details, completed map[string]any
	for _, r := range logs.records(t) {
		msg, _ := r["message"].(string)
		switch {
		case strings.HasPrefix(msg, "Request details:"):
			details = r
		case strings.Contains(msg, "Completed in"):
			completed = r
		}
	}
	if details == nil || completed == nil {
		t.Fatalf("request log lines missing: %v", logs.records(t))
	}
	if want := "Request details: method=GET, url=http://example.com/health?probe=1, params=probe%3D1"; details["message"] != want {
		t.Errorf("details = %q", details["message"])
	}
	if details["logger"] != "http" || details["service"] != "FastAPI App" || details["request_id"] == nil {
		t.Errorf("details attrs = %v", details)
	}
	if !strings.HasPrefix(completed["message"].(string), "GET http://example.com/health?probe=1 200 Completed in ") {
		t.Errorf("completed = %q", completed["message"])
	}
}

func TestCustomHeaderSetting(t *testing.T) {
	off, _ := newTestService(t, nil)
	if h := get(off.Handler(), "/health").Header().Get(middleware.CustomHeaderName); h != "" {
		t.Errorf("header set while disabled: %q", h)
	}
	on, _ := newTestService(t, map[string]string{"SERVICE_CUSTOM_HEADER": "true"})
	rec := get(on.Handler(), "/health")
	if h := rec.Header().Get(middleware.CustomHeaderName); h != middleware.CustomHeaderValue {
		t.Errorf("header = %q", h)
	}
	if rec.Body.String() != `{"status":"ok"}` {
		t.Errorf("body altered: %s", rec.Body.String())
	}
}

func TestExtraMiddlewareRunsLast(t *testing.T) {
	var seen string
	mw := pipeline.MiddlewareFunc(func(w http.ResponseWriter, r *http.Request, next pipeline.HandlerFunc) error {
		seen = w.Header().Get(middleware.CustomHeaderName)
		return next(w, r)
	})
	svc, _ := newTestService(t, map[string]string{"SERVICE_CUSTOM_HEADER": "1"}, WithMiddleware(mw))
	get(svc.Handler(), "/health")
	if seen != middleware.CustomHeaderValue {
		t.Errorf("extra middleware saw header %q", seen)
	}
	if n := len(svc.Middlewares()); n != 6 {
		t.Errorf("chain length = %d, want 6", n)
	}
}

func TestInstrumentationRoutes(t *testing.T) {
	svc, _ := newTestService(t, nil)
	h := svc.InstrumentationHandler()

	index := get(h, "/").Body.String()
	for _, want := range []string{"/metrics", "/livez", "/readyz", "/startupz", "/loggers/list"} {
		if !strings.Contains(index, `href="`+want+`"`) {
			t.Errorf("index missing %s", want)
		}
	}
	if strings.Contains(index, "/debug/pprof/") {
		t.Error("profiling listed without debug")
	}
	if rec := get(h, "/debug/pprof/"); rec.Code != http.StatusNotFound {
		t.Errorf("pprof without debug = %d", rec.Code)
	}

	if rec := get(h, "/livez"); rec.Code != http.StatusOK {
		t.Errorf("livez = %d", rec.Code)
	}
	for _, probe := range []string{"/readyz", "/startupz"} {
		if rec := get(h, probe); rec.Code != http.StatusServiceUnavailable {
			t.Errorf("%s before Run = %d", probe, rec.Code)
		}
	}

	var list struct {
		Subloggers map[string]json.RawMessage `json:"subloggers"`
	}
	if err := json.Unmarshal(get(h, "/loggers/list").Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"http", "metrics", "server"} {
		if _, ok := list.Subloggers[name]; !ok {
			t.Errorf("sublogger %s not listed", name)
		}
	}
}

func TestLogLevelRoute(t *testing.T) {
	svc, logs := newTestService(t, nil)
	h := svc.InstrumentationHandler()
	req := httptest.NewRequest(http.MethodPost, "/loggers/level", strings.NewReader("ERROR"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST level = %d %s", rec.Code, rec.Body.String())
	}
	before := len(logs.records(t))
	get(svc.Handler(), "/health")
	if after := len(logs.records(t)); after != before {
		t.Errorf("request logged at INFO with root at ERROR: %d new lines", after-before)
	}
}

func TestProfilingWithDebug(t *testing.T) {
	svc, _ := newTestService(t, map[string]string{"SERVICE_DEBUG": "true"})
	h := svc.InstrumentationHandler()
	if !strings.Contains(get(h, "/").Body.String(), `href="/debug/pprof/"`) {
		t.Error("profiling not listed")
	}
	if rec := get(h, "/debug/pprof/"); rec.Code != http.StatusOK {
		t.Errorf("pprof index = %d", rec.Code)
	}
}

func TestNewLoggerDuplicate(t *testing.T) {
	svc, _ := newTestService(t, nil)
	if _, err := svc.NewLogger("jobs", 0); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.NewLogger("http", 0); err == nil {
		t.Error("duplicate logger name accepted")
	}
}

// startService runs svc in the background and waits for it to bind.
func startService(t *testing.T, svc *Service, ctx context.Context, jobs ...JobFn) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() {
		done <- svc.Run(ctx, jobs...)
	}()
	deadline := time.Now().Add(5 * time.Second)
	for svc.Addr() == nil {
		select {
		case err := <-done:
			t.Fatalf("Run returned early: %v", err)
		default:
		}
		if time.Now().After(deadline) {
			t.Fatal("service did not bind")
		}
		time.Sleep(10 * time.Millisecond)
	}
	return done
}

func waitRun(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(15 * time.Second):
		t.Fatal("Run did not return")
		return nil
	}
}

func termlogFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "termination-log")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func TestRunServesAndShutsDown(t *testing.T) {
	tlPath := termlogFile(t)
	svc, _ := newTestService(t, nil, WithTerminationLog(tlPath))
	var order []int
	err := svc.AddShutdownHandlers(
		func(context.Context, *log.Logger) error { order = append(order, 1); return nil },
		func(context.Context, *log.Logger) error { order = append(order, 2); return nil },
	)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := startService(t, svc, ctx)

	resp, err := http.Get("http://" + svc.Addr().String() + "/health")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != `{"status":"ok"}` {
		t.Errorf("GET /health = %d %s", resp.StatusCode, body)
	}

	resp, err = http.Get("http://" + svc.MetricsAddr().String() + "/readyz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("readyz while serving = %d", resp.StatusCode)
	}

	if err := svc.Run(ctx); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Run = %v", err)
	}
	if err := svc.AddShutdownHandlers(func(context.Context, *log.Logger) error { return nil }); err == nil {
		t.Error("shutdown handler accepted after Run")
	}

	cancel()
	if err := waitRun(t, done); err != nil {
		t.Fatalf("Run = %v", err)
	}
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Errorf("shutdown handler order = %v", order)
	}
	if tl := readFile(t, tlPath); !strings.Contains(tl, "SHUTDOWN - OK") {
		t.Errorf("termination log = %q", tl)
	}
}

func TestShutdownHandlerPanicSkipsRest(t *testing.T) {
	tlPath := termlogFile(t)
	svc, _ := newTestService(t, nil, WithTerminationLog(tlPath))
	var order []int
	svc.AddShutdownHandlers(
		func(context.Context, *log.Logger) error { order = append(order, 1); return nil },
		func(context.Context, *log.Logger) error { panic("shutdown exploded") },
		func(context.Context, *log.Logger) error { order = append(order, 3); return nil },
	)
	ctx, cancel := context.WithCancel(context.Background())
	done := startService(t, svc, ctx)
	cancel()
	if err := waitRun(t, done); !errors.Is(err, ErrUncleanShutdown) {
		t.Fatalf("Run = %v, want ErrUncleanShutdown", err)
	}
	if len(order) != 1 || order[0] != 1 {
		t.Errorf("handlers run = %v", order)
	}
	if tl := readFile(t, tlPath); !strings.Contains(tl, "SHUTDOWN - NOT OK") {
		t.Errorf("termination log = %q", tl)
	}
}

func TestJobsCompleteStopsService(t *testing.T) {
	svc, _ := newTestService(t, nil)
	release := make(chan struct{})
	job := Job(func(ctx context.Context, _ *log.Logger, c chan struct{}) error {
		select {
		case <-c:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}, release)
	done := startService(t, svc, context.Background(), job)
	close(release)
	if err := waitRun(t, done); err != nil {
		t.Fatalf("Run = %v", err)
	}
}

func TestJobFailureStopsService(t *testing.T) {
	tlPath := termlogFile(t)
	svc, _ := newTestService(t, nil, WithTerminationLog(tlPath))
	jobErr := errors.New("queue unreachable")
	block := make(chan struct{})
	failing := func(context.Context, *log.Logger) error {
		<-block
		return jobErr
	}
	waiting := func(ctx context.Context, _ *log.Logger) error {
		<-ctx.Done()
		return ctx.Err()
	}
	done := startService(t, svc, context.Background(), failing, waiting)
	close(block)
	err := waitRun(t, done)
	if !errors.Is(err, jobErr) {
		t.Fatalf("Run = %v, want job error", err)
	}
	if tl := readFile(t, tlPath); !strings.Contains(tl, "SHUTDOWN - NOT OK") || !strings.Contains(tl, "queue unreachable") {
		t.Errorf("termination log = %q", tl)
	}
}

func TestRunListenFailure(t *testing.T) {
	occupied := httptest.NewServer(http.NotFoundHandler())
	defer occupied.Close()
	port := occupied.Listener.Addr().String()[strings.LastIndex(occupied.Listener.Addr().String(), ":")+1:]
	svc, _ := newTestService(t, map[string]string{"SERVICE_METRICS_PORT": port})
	if err := svc.Run(context.Background()); err == nil {
		t.Fatal("Run succeeded on an occupied port")
	}
}
