package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lkendrickd/httpapi/errors"
	"github.com/lkendrickd/httpapi/internal/metrics"
	"github.com/lkendrickd/httpapi/internal/termlog"
	"github.com/lkendrickd/httpapi/log"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// AddShutdownHandlers adds jobs that will be run when the service is shut
// down. Shutdown handlers are run synchronously, in the order they are
// added. If a shutdown handler panics, the rest of the handlers are skipped.
//
// All shutdown handlers must be added before [Service.Run] is called.
func (s *Service) AddShutdownHandlers(shutdownHandlers ...JobFn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("can't add shutdown handlers after Run() is called")
	}
	s.shutdownHandlers = append(s.shutdownHandlers, shutdownHandlers...)
	return nil
}

// Run binds the instrumentation listener and then the application listener,
// serves both and runs jobs until ctx is done, a job fails, a server fails
// or every job has completed. It then shuts the servers down gracefully, runs
// the shutdown handlers, pushes metrics if push_url is set and records the
// outcome in the termination log.
//
// A nil return means a clean shutdown. Run may only be called once.
func (s *Service) Run(ctx context.Context, jobs ...JobFn) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	s.mu.Unlock()

	tl := s.openTermlog()
	defer tl.Close()

	var lc net.ListenConfig
	metricsLn, err := lc.Listen(ctx, "tcp", s.settings.MetricsAddr())
	if err != nil {
		err = errors.Errorf("listen on metrics port: %w", err)
		s.logger.Error("failed to start", err)
		tl.Write("SHUTDOWN - NOT OK", "err", err)
		return err
	}
	appLn, err := lc.Listen(ctx, "tcp", s.settings.Addr())
	if err != nil {
		metricsLn.Close()
		err = errors.Errorf("listen on service port: %w", err)
		s.logger.Error("failed to start", err)
		tl.Write("SHUTDOWN - NOT OK", "err", err)
		return err
	}
	s.mu.Lock()
	s.addr, s.metricsAddr = appLn.Addr(), metricsLn.Addr()
	s.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	eg, egctx := errgroup.WithContext(runCtx)

	errorLog := s.serverLogger.StdLogger(log.StdLogStatic(slog.LevelError))
	baseContext := func(net.Listener) context.Context { return egctx }
	instrumentationSrv := &http.Server{
		Handler:           s.instrumentation,
		ErrorLog:          errorLog,
		BaseContext:       baseContext,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	appSrv := &http.Server{
		Handler:           s.handler,
		ErrorLog:          errorLog,
		BaseContext:       baseContext,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	eg.Go(func() error {
		return serve(instrumentationSrv, metricsLn, "instrumentation")
	})
	eg.Go(func() error {
		return serve(appSrv, appLn, "application")
	})
	if len(jobs) > 0 {
		eg.Go(func() error {
			if err := s.runJobs(egctx, jobs); err != nil {
				return err
			}
			s.logger.Info("all jobs complete, shutting down")
			cancel()
			return nil
		})
	}
	eg.Go(func() error {
		<-egctx.Done()
		// stop advertising before the listeners close
		s.readiness.SetReady(false)
		s.logger.Info("service is shutting down")
		sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer scancel()
		// the application drains first so probes and scrapes keep answering
		appErr := appSrv.Shutdown(sctx)
		if appErr != nil {
			appErr = errors.Errorf("shut down application server: %w", appErr)
		}
		instErr := instrumentationSrv.Shutdown(sctx)
		if instErr != nil {
			instErr = errors.Errorf("shut down instrumentation server: %w", instErr)
		}
		return errors.Join(appErr, instErr)
	})

	s.startup.SetStarted()
	s.readiness.SetReady(true)
	s.logger.Info("service has started", "addr", appLn.Addr().String(), "metrics_addr", metricsLn.Addr().String())

	runErr := eg.Wait()
	if runErr != nil {
		s.logger.Error("service stopped abnormally", runErr)
	}
	normal := s.shutdown() && runErr == nil
	if normal {
		tl.Write("SHUTDOWN - OK")
		return nil
	}
	if runErr != nil {
		tl.Write("SHUTDOWN - NOT OK", "err", runErr)
		return runErr
	}
	tl.Write("SHUTDOWN - NOT OK")
	return ErrUncleanShutdown
}

func serve(srv *http.Server, ln net.Listener, name string) error {
	if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return errors.Errorf("%s server: %w", name, err)
	}
	return nil
}

// runJobs runs jobs until all have returned. Errors caused by the service
// shutting down around them are not failures.
func (s *Service) runJobs(ctx context.Context, jobs []JobFn) error {
	jg, jctx := errgroup.WithContext(ctx)
	for _, job := range jobs {
		job := job
		jg.Go(func() error {
			return job(jctx, s.logger)
		})
	}
	err := jg.Wait()
	if err == nil || (ctx.Err() != nil && errors.Is(err, context.Canceled)) {
		return nil
	}
	return errors.Errorf("job failed: %w", err)
}

func (s *Service) openTermlog() *termlog.Log {
	if s.termlogPath == "" {
		return nil
	}
	tl, err := termlog.Open(s.termlogPath)
	if err != nil {
		s.logger.Warn(s.termlogPath+" exists, but couldn't be opened for writing", err)
		return nil
	}
	return tl
}

// shutdown runs the shutdown handlers and the metrics push, reporting
// whether all of them succeeded.
func (s *Service) shutdown() bool {
	normal := true

	s.mu.Lock()
	handlers := s.shutdownHandlers
	s.mu.Unlock()

	numHandlers := len(handlers)
	if numHandlers > 0 {
		s.logger.Info("running shutdown handlers", "num_handlers", numHandlers)
	}
	for i, sh := range handlers {
		s.logger.Debug(fmt.Sprintf("running shutdown handler %d/%d", i+1, numHandlers))
		panicked, err := s.runShutdownHandler(sh)
		if err != nil {
			s.logger.Error("shutdown handler failed", err, "handler_number", i+1, "total_handlers", numHandlers)
			normal = false
		}
		if panicked {
			if remaining := numHandlers - i - 1; remaining > 0 {
				s.logger.Warn("skipping remaining shutdown handlers due to panic", "skipped", remaining)
			}
			break
		}
	}

	if s.settings.PushURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		pusher := s.registry.Pusher(s.settings.PushURL, s.settings.AppName, s.instanceID)
		if err := metrics.Push(ctx, pusher); err != nil {
			s.logger.Error("failed to push metrics", err, "push_url", s.settings.PushURL)
			normal = false
		} else {
			s.logger.Debug("pushed metrics", "push_url", s.settings.PushURL)
		}
	}
	return normal
}

func (s *Service) runShutdownHandler(handler JobFn) (panicked bool, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	defer func() {
		if v := recover(); v != nil {
			panicked = true
			err = errors.Recovered(v, 1)
		}
	}()
	return false, handler(ctx, s.logger)
}
