// Package tcpserver serves HTTP/1.1 over raw TCP connections.
//
// The accept loop only accepts; every connection is served by its own
// goroutine, so a slow handler never delays requests on other connections.
// Each connection reads one request at a time, dispatches it to the
// configured handler, writes the response and then either waits for the
// next request (keep-alive) or closes.
//
// Timeouts:
//
//   - IdleTimeout bounds the wait for the first byte of a request; an idle
//     connection is closed without a response
//   - ReadTimeout bounds the rest of the request once its first byte has
//     arrived; hitting it answers 400 and closes
//   - WriteTimeout bounds writing the response
//
// Shutdown stops accepting, closes idle connections and waits for
// in-flight requests. When its context expires first, handler contexts are
// cancelled and remaining connections are closed.
package tcpserver
