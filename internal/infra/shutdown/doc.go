// Package shutdown provides graceful shutdown for webdock.
//
// A Handler waits for SIGINT or SIGTERM (or for its context to end, for
// example when a listener fails) and then runs the registered hooks in
// reverse registration order under a single deadline.
//
// Usage:
//
//	h := shutdown.NewHandler(30 * time.Second)
//	h.OnShutdown(func(ctx context.Context) error { return srv.Shutdown(ctx) })
//	err := h.Wait(ctx)
package shutdown
