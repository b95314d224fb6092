// Package httpserver runs the public HTTP listener and exposes liveness and
// readiness handlers.
//
//	srv := httpserver.New(cfg, log)
//	g.Go(func() error { return srv.Run(ctx, router) })
//
// Shutdown is driven by context cancellation so the server composes with
// errgroup alongside the queue worker.
package httpserver
