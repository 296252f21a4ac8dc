// Package main provides the entry point for webdock-server.
//
// webdock-server is a small HTTP/1.1 server speaking the protocol directly
// over TCP. It provides:
//
//   - /echo: returns the raw request bytes
//   - /sleep: answers after a configurable delay
//   - /api/<collection>[/<key>]: a JSON-friendly resource store
//   - /markdown/<name>.md: stores markdown and serves it rendered to HTML
//
// Usage:
//
//	webdock-server [flags]
//	webdock-server --config /etc/webdock-server/config.yaml
//
// The server loads configuration, opens the resource store, mounts the
// configured routes and serves until SIGINT or SIGTERM.
package main
