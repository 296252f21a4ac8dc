// Package metric provides Prometheus metrics for webdock.
//
// This package implements metrics collection and exposition:
//
//   - prometheus.go: the metric registry and its HTTP handler
//   - collector.go: a custom collector reporting build info and uptime
//
// Metrics include:
//
//   - Request counts and latency histograms per handler
//   - Open and accepted connection counts
//   - Malformed, rate-limited and panicked request counters
//   - Resource store operation counts and latencies
//
// Metrics are served by (*Registry).Handler on a separate listener.
package metric
