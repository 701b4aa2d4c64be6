// Command httpapi serves the HTTP API and its instrumentation.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	_ "github.com/KimMachineGun/automemlimit"

	"github.com/lkendrickd/httpapi"
	"github.com/lkendrickd/httpapi/buildinfo"
	"github.com/lkendrickd/httpapi/internal/config"
	"github.com/lkendrickd/httpapi/internal/loghandler/inithandler"
	"github.com/lkendrickd/httpapi/internal/termlog"
	"github.com/lkendrickd/httpapi/log"
)

const about = "A minimal HTTP service exposing health, metrics and build information."

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	settings, err := config.Resolve(args)
	switch {
	case errors.Is(err, config.ErrHelp):
		config.PrintHelp(os.Stdout, "httpapi", about)
		return 0
	case errors.Is(err, config.ErrVersion):
		printVersion(settings)
		return 0
	case err != nil:
		// no formatter yet, so report through the bare init handler
		log.NewLogger(slog.New(inithandler.New(os.Stderr))).Error("configuration error", err)
		if tl, tlErr := termlog.Open(termlog.DefaultPath); tlErr == nil {
			tl.Write("configuration error", "err", err)
			tl.Close()
		}
		return 1
	}

	svc, err := httpapi.New(settings)
	if err != nil {
		log.NewLogger(slog.New(inithandler.New(os.Stderr))).Error("failed to build service", err)
		return 1
	}
	logger := svc.Logger()
	if err := settings.Validate(); err != nil {
		logger.Warn("questionable configuration", err)
	}
	banner(logger, settings)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Rather than using signal.NotifyContext, which would merely cancel a
	// context, handle the signals manually so a second one forces an exit
	// while a slow shutdown is in progress. Signal delivery is non-blocking,
	// hence room for both in the channel.
	signals := make(chan os.Signal, 2)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-signals
		logger.Info("received shutdown signal")
		cancel()
		<-signals
		logger.Info("forced shutdown")
		os.Exit(130) // manual ctrl-c exitcode
	}()

	if err := svc.Run(ctx); err != nil {
		return 1
	}
	return 0
}

func banner(logger *log.Logger, s *config.Settings) {
	logger.Info(fmt.Sprintf("Log level set to %s", s.LogLevel))
	logger.Info(fmt.Sprintf("Starting application: %s", s.AppName))
	logger.Info(fmt.Sprintf("Version: %s", s.Version))
	logger.Info(fmt.Sprintf("Commit: %s", s.Commit))
	logger.Info(fmt.Sprintf("Branch: %s", s.Branch))
	logger.Info(fmt.Sprintf("Build Date: %s", s.BuildDate))
	// automemlimit will have set a soft cap at init if a container limit
	// was found
	memlimit := "none"
	if limit := debug.SetMemoryLimit(-1); limit != math.MaxInt64 {
		memlimit = readableUnits(limit)
	}
	logger.Info(fmt.Sprintf("Memory limit: %s", memlimit))
	logger.Info(fmt.Sprintf("Starting metrics server on port %d", s.MetricsPort))
	logger.Info(fmt.Sprintf("Starting service on %s", s.Addr()), "settings", s)
}

func printVersion(s *config.Settings) {
	fmt.Printf("%s v%s (commit %s, branch %s, built %s)", s.AppName, s.Version, s.Commit, s.Branch, s.BuildDate)
	if rt := buildinfo.ReadRuntime().String(); rt != "" {
		fmt.Print(" " + rt)
	}
	fmt.Println()
}

func readableUnits(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB",
		float64(b)/float64(div), "KMGTPE"[exp])
}
