/*
Package httpapi is a minimal HTTP microservice: a health route, a Prometheus
metrics route and an index route reporting build provenance, behind request
logging middleware and centralized error translation.

A [Service] is built from resolved [config.Settings] and serves two
listeners. The application listener on host:port runs every request through
the middleware chain and into the route handlers. The instrumentation
listener on metrics_port carries the scrape endpoint, orchestrator probes,
runtime log level control and, with debug set, pprof.

	settings, err := config.Resolve(os.Args[1:])
	if err != nil {
		// ...
	}
	svc, err := httpapi.New(settings)
	if err != nil {
		// ...
	}
	if err := svc.Run(ctx); err != nil {
		os.Exit(1)
	}
*/
package httpapi
