// Package httpserver runs the admin HTTP surface with graceful shutdown
// and provides liveness and readiness handlers.
//
//	srv := httpserver.NewFromConfig(cfg, httpserver.WithLogger(log))
//	err := srv.Run(ctx, router)
//
// Run returns when ctx is cancelled, after in-flight requests finished or
// the shutdown timeout elapsed. Errors wrap ErrStart or ErrShutdown.
package httpserver
