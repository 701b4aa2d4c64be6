package httpapi

import (
	"context"

	"github.com/lkendrickd/httpapi/log"
)

// JobFn is a job run alongside the servers, or at shutdown. The service runs
// until either a single job has returned an error or all jobs have completed
// successfully. A logger is supplied for logging messages.
type JobFn func(context.Context, *log.Logger) error

// Job creates a JobFn from a function that takes a context and a
// [*log.Logger] along with an additional argument of any type.
//
// Example:
//
//	func warmCache(ctx context.Context, logger *log.Logger, c *Cache) error {
//	  // ...
//	}
//
//	svc.Run(ctx, httpapi.Job(warmCache, cache))
func Job[T any](fn func(context.Context, *log.Logger, T) error, arg T) JobFn {
	return func(ctx context.Context, logger *log.Logger) error {
		return fn(ctx, logger, arg)
	}
}
