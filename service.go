package httpapi

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/lkendrickd/httpapi/errors"
	"github.com/lkendrickd/httpapi/internal/config"
	"github.com/lkendrickd/httpapi/internal/handlers"
	"github.com/lkendrickd/httpapi/internal/health"
	"github.com/lkendrickd/httpapi/internal/loghandler"
	"github.com/lkendrickd/httpapi/internal/loghandler/instrumentation"
	"github.com/lkendrickd/httpapi/internal/loglevelhandler"
	"github.com/lkendrickd/httpapi/internal/metrics"
	"github.com/lkendrickd/httpapi/internal/middleware"
	"github.com/lkendrickd/httpapi/internal/pipeline"
	"github.com/lkendrickd/httpapi/internal/termlog"
	"github.com/lkendrickd/httpapi/log"
)

var (
	ErrAlreadyStarted  = errors.New("already started")
	ErrUncleanShutdown = errors.New("unclean shutdown")
)

// Option configures a [Service].
type Option func(*Service)

// WithLogOutput sends logs to w instead of os.Stderr.
func WithLogOutput(w io.Writer) Option {
	return func(s *Service) {
		s.logOutput = w
	}
}

// WithMiddleware appends mws to the application chain, after the built-in
// middleware.
func WithMiddleware(mws ...pipeline.Middleware) Option {
	return func(s *Service) {
		s.extraMiddleware = append(s.extraMiddleware, mws...)
	}
}

// WithTerminationLog writes the shutdown outcome to path instead of
// [termlog.DefaultPath]. An empty path disables it.
func WithTerminationLog(path string) Option {
	return func(s *Service) {
		s.termlogPath = path
	}
}

// Service is the HTTP API with its instrumentation. Build it with [New] and
// start it with [Service.Run].
type Service struct {
	mu         sync.Mutex
	settings   *config.Settings
	instanceID string

	// options
	logOutput       io.Writer
	termlogPath     string
	extraMiddleware []pipeline.Middleware

	// logging
	logHandler   *instrumentation.Handler
	logger       *log.Logger
	serverLogger *log.Logger
	levels       *loglevelhandler.Handler

	// metrics
	registry *metrics.Registry

	// application
	router  *pipeline.Router
	chain   pipeline.Chain
	handler http.Handler

	// instrumentation
	instrumentation *indexMux
	startup         *health.StartupHandler
	readiness       *health.ReadinessHandler

	// state
	started          bool
	addr             net.Addr
	metricsAddr      net.Addr
	shutdownHandlers []JobFn
}

// New builds the service from resolved settings: loggers, registry, routes
// and the middleware chain. Nothing listens until [Service.Run].
func New(settings *config.Settings, options ...Option) (*Service, error) {
	if settings == nil {
		return nil, errors.New("nil settings")
	}
	s := &Service{
		settings:    settings,
		instanceID:  uuid.NewString(),
		logOutput:   os.Stderr,
		termlogPath: termlog.DefaultPath,
		registry:    metrics.NewRegistry(),
		startup:     health.NewStartupHandler(),
		readiness:   health.NewReadinessHandler(),
	}
	for _, o := range options {
		o(s)
	}

	formatter := loghandler.New(string(settings.LogFormat), s.logOutput).WithAttrs([]slog.Attr{
		slog.String("service", settings.AppName),
		slog.String("instance", s.instanceID),
	})
	s.logHandler = instrumentation.NewHandler(formatter, instrumentation.HandlerOptions{
		MinLevel:     settings.LogLevel.Level(),
		ShowLocation: true,
		TrimCode:     true,
		ErrorCounter: s.registry.LogErrors.With("logger", "root"),
		WarnCounter:  s.registry.LogWarnings.With("logger", "root"),
		InfoCounter:  s.registry.LogInfos.With("logger", "root"),
	})
	s.logger = log.NewLogger(slog.New(s.logHandler))
	s.levels = loglevelhandler.NewHandler(s.logHandler, s.logger)

	httpLogger, err := s.NewLogger("http", slog.LevelDebug)
	if err != nil {
		return nil, err
	}
	metricsLogger, err := s.NewLogger("metrics", slog.LevelDebug)
	if err != nil {
		return nil, err
	}
	if s.serverLogger, err = s.NewLogger("server", slog.LevelDebug); err != nil {
		return nil, err
	}

	// application
	s.router = pipeline.NewRouter()
	s.router.Get("/metrics", handlers.Metrics(s.registry))
	s.router.Get("/health", handlers.Health())
	s.router.Get("/", handlers.Index(settings.BuildInfo(), s.registry.RequestProcessing))

	s.chain = pipeline.NewChain(
		pipeline.Wrap(chimw.RequestID),
		pipeline.Wrap(chimw.RealIP),
		middleware.NewRequestLogger(httpLogger),
		middleware.NewRequestMetrics(s.registry.HTTPRequests, s.registry.HTTPDuration),
	)
	if settings.CustomHeader {
		s.chain = s.chain.Append(middleware.CustomHeader())
	}
	s.chain = s.chain.Append(s.extraMiddleware...)
	s.handler = pipeline.NewTranslator(s.chain.Then(s.router.Dispatch), s.serverLogger)

	// instrumentation
	im := newIndexMux(fmt.Sprintf("%s v%s", settings.AppName, settings.Version))
	im.handle("/metrics", "Prometheus Metrics", s.registry.Handler(metricsLogger.Slogger()), http.MethodGet)
	im.handle("/livez", "liveness probe", health.NewLivenessHandler(), http.MethodGet)
	im.handle("/readyz", "readiness probe", s.readiness, http.MethodGet)
	im.handle("/startupz", "startup probe", s.startup, http.MethodGet)
	im.handle("/loggers/list", "list loggers and their levels", http.HandlerFunc(s.levels.RouteList), http.MethodGet)
	im.handle("/loggers/level", "get or set the root log level", http.HandlerFunc(s.levels.RouteLevel), http.MethodGet, http.MethodPost)
	im.handle("/loggers/level/{logger}", "get or set a sublogger level", http.HandlerFunc(s.levels.RouteLevel), http.MethodGet, http.MethodPost)
	if settings.Debug {
		im.mount("/debug", "/debug/pprof/", "profiling", chimw.Profiler())
	}
	s.instrumentation = im
	return s, nil
}

// NewLogger creates a named sublogger at level, gated by the root level, and
// registers it with the log level routes. Names must be unique.
func (s *Service) NewLogger(name string, level slog.Level) (*log.Logger, error) {
	h := instrumentation.NewHandler(s.logHandler, instrumentation.HandlerOptions{
		Name:         name,
		MinLevel:     level,
		ShowLocation: true,
		TrimCode:     true,
		ErrorCounter: s.registry.LogErrors.With("logger", name),
		WarnCounter:  s.registry.LogWarnings.With("logger", name),
		InfoCounter:  s.registry.LogInfos.With("logger", name),
	})
	if err := s.levels.AddLogHandler(h); err != nil {
		return nil, err
	}
	return log.NewLogger(slog.New(h)).With("logger", name), nil
}

// Handle registers an application route behind the same middleware chain and
// error translation as the built-in ones. Routes must be added before Run.
func (s *Service) Handle(method, pattern string, h pipeline.HandlerFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("can't add routes after Run() is called")
	}
	s.router.Handle(method, pattern, h)
	return nil
}

// Handler is the application handler: middleware chain, router and error
// translation.
func (s *Service) Handler() http.Handler {
	return s.handler
}

// InstrumentationHandler serves the routes of the metrics_port listener.
func (s *Service) InstrumentationHandler() http.Handler {
	return s.instrumentation
}

// Middlewares returns the application chain in execution order.
func (s *Service) Middlewares() []pipeline.Middleware {
	return s.chain.Middlewares()
}

func (s *Service) Logger() *log.Logger {
	return s.logger
}

func (s *Service) Registry() *metrics.Registry {
	return s.registry
}

func (s *Service) Settings() *config.Settings {
	return s.settings
}

// InstanceID identifies this process in logs and pushed metrics.
func (s *Service) InstanceID() string {
	return s.instanceID
}

// Addr is the bound application address, nil before Run has bound it.
func (s *Service) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// MetricsAddr is the bound instrumentation address, nil before Run has bound
// it.
func (s *Service) MetricsAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metricsAddr
}
