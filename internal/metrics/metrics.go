// Package metrics owns the service Prometheus registry and the collectors the
// service itself reports: log line counts, request timings and process stats.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-kit/kit/metrics"
	promkit "github.com/go-kit/kit/metrics/prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Registry is a Prometheus registry pre-loaded with the service collectors.
type Registry struct {
	*prometheus.Registry

	// Log line counters, labeled by logger.
	LogErrors   metrics.Counter
	LogWarnings metrics.Counter
	LogInfos    metrics.Counter

	// RequestProcessing times the index route.
	RequestProcessing metrics.Histogram

	// HTTPRequests and HTTPDuration are labeled by method, route and status.
	HTTPRequests metrics.Counter
	HTTPDuration metrics.Histogram
}

// NewRegistry creates a registry with the Go runtime and process collectors
// and the service metrics registered.
func NewRegistry() *Registry {
	r := &Registry{Registry: prometheus.NewRegistry()}

	// a fresh registry lets us skip the memstats-style Go metrics in favour of
	// the runtime/metrics driven ones
	r.MustRegister(
		collectors.NewGoCollector(
			collectors.WithGoCollectorMemStatsMetricsDisabled(),
			collectors.WithGoCollectorRuntimeMetrics(collectors.MetricsAll),
		),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	r.LogErrors = r.NewCounter("error_messages", "the total number of error messages logged", "logger")
	r.LogWarnings = r.NewCounter("warning_messages", "the total number of warning messages logged", "logger")
	r.LogInfos = r.NewCounter("info_messages", "the total number of info messages logged", "logger")

	processing := prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Name: "request_processing_seconds",
		Help: "Time spent processing request",
	}, nil)
	r.MustRegister(processing)
	// unlabeled, so create the child now and have it exported before the
	// first observation
	processing.WithLabelValues()
	r.RequestProcessing = promkit.NewSummary(processing)

	r.HTTPRequests = r.NewCounter("http_requests_total", "the total number of HTTP requests handled", "method", "route", "status")
	r.HTTPDuration = r.NewHistogram("http_request_duration_seconds", "time taken to handle HTTP requests", prometheus.DefBuckets, "method", "route", "status")
	return r
}

// NewCounter registers and returns a Prometheus counter.
//
// NOTE: label cardinality must match to use .With().
func (r *Registry) NewCounter(name, help string, labelNames ...string) metrics.Counter {
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: name,
		Help: help,
	}, labelNames)
	r.MustRegister(counter)
	return promkit.NewCounter(counter)
}

// NewGauge registers and returns a Prometheus gauge.
//
// NOTE: label cardinality must match to use .With().
func (r *Registry) NewGauge(name, help string, labelNames ...string) metrics.Gauge {
	gauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: name,
		Help: help,
	}, labelNames)
	r.MustRegister(gauge)
	return promkit.NewGauge(gauge)
}

// NewSummary registers and returns a Prometheus summary.
//
// NOTE: label cardinality must match to use .With().
func (r *Registry) NewSummary(name, help string, labelNames ...string) metrics.Histogram {
	summary := prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Name: name,
		Help: help,
	}, labelNames)
	r.MustRegister(summary)
	return promkit.NewSummary(summary)
}

// NewHistogram registers and returns a Prometheus histogram.
//
// NOTE: label cardinality must match to use .With().
func (r *Registry) NewHistogram(name, help string, buckets []float64, labelNames ...string) metrics.Histogram {
	histogram := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    name,
		Help:    help,
		Buckets: buckets,
	}, labelNames)
	r.MustRegister(histogram)
	return promkit.NewHistogram(histogram)
}

// Handler serves the registry for scrapers, including OpenMetrics when asked
// for. Collection errors are logged and the remaining metrics still served.
func (r *Registry) Handler(logger *slog.Logger) http.Handler {
	return promhttp.HandlerFor(r.Registry, promhttp.HandlerOpts{
		ErrorLog:          &promhttpLogger{logger},
		ErrorHandling:     promhttp.ContinueOnError,
		EnableOpenMetrics: true,
	})
}

// Pusher returns a Pushgateway client for url pushing everything in the
// registry under job, grouped by instance.
func (r *Registry) Pusher(url, job, instance string) *push.Pusher {
	return push.New(url, job).Gatherer(r.Registry).Grouping("instance", instance)
}

// Push adds the registry contents to the Pushgateway, bounded by ctx.
func Push(ctx context.Context, p *push.Pusher) error {
	if err := p.AddContext(ctx); err != nil {
		return fmt.Errorf("push to pushgateway: %w", err)
	}
	return nil
}

type promhttpLogger struct {
	logger *slog.Logger
}

func (pl *promhttpLogger) Println(v ...any) {
	// code inspection reveals that v is always [string, error], the latter of
	// which might be prometheus.MultiError, which is a []error. Still have a
	// fallback in case they change this signature.
	if len(v) == 2 {
		msg, mok := v[0].(string)
		err, eok := v[1].(error)
		if mok && eok {
			multiErr := prometheus.MultiError{}
			if errors.As(err, &multiErr) {
				// log them all at the exact same timestamp
				now := time.Now()
				numerr := len(multiErr)
				logRecord := slog.NewRecord(now, slog.LevelError, msg, 0)
				logRecord.AddAttrs(slog.Int("total_errors", numerr))
				for i, e := range multiErr {
					r := logRecord.Clone()
					r.AddAttrs(slog.String("err", e.Error()), slog.Int("error_number", i+1))
					pl.logger.Handler().Handle(context.Background(), r)
				}
				return
			}
			pl.logger.Error(msg, "err", err)
			return
		}
	}
	// fallback
	pl.logger.Error(fmt.Sprint(v...))
}
