// Package httpserver runs an http.Handler until its context is cancelled and
// then drains in-flight requests within ShutdownTimeout.
//
// Signal handling is left to the caller, which usually derives the context
// from signal.NotifyContext and runs the server next to other workers in an
// errgroup:
//
//	srv := httpserver.NewFromConfig(cfg, httpserver.WithLogger(log))
//	g.Go(func() error { return srv.Run(ctx, router) })
//
// LivenessHandler and ReadinessHandler back the /healthz and /readyz probes.
// Run joins listen failures with ErrStart and Shutdown joins drain failures
// with ErrShutdown.
package httpserver
