// Package handler implements the request handlers served by webdock.
//
// Each handler turns one decoded wire.Request into a wire.Response:
//
//   - Echo returns the received request bytes unchanged
//   - Sleep waits a fixed duration before answering
//   - CRUD stores JSON-ish resources under /api/<collection>/<key>
//   - Markdown stores .md files and serves them rendered as HTML
//   - NotFound answers every request with 404
//
// Handlers never touch the network; framing and connection reuse belong to
// the tcpserver package, and routing to the router package.
package handler
