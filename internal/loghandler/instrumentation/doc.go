// Package instrumentation provides the slog handler that sits between every
// service logger and its formatter. It owns the per-logger level, counts log
// lines into Prometheus counters and expands stack-carrying errors.
package instrumentation
