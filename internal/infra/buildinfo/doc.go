// Package buildinfo provides build information for webdock.
//
// This package exposes build-time information injected via ldflags:
//
//   - Version: Semantic version (e.g., "1.0.0")
//   - Commit: Git commit hash
//   - BuildTime: Build timestamp
//   - GoVersion: Go compiler version
//
// When ldflags are not set, Commit and GoVersion fall back to the module
// build information embedded by the Go toolchain.
//
// Usage:
//
//	go build -ldflags "-X github.com/yndnr/webdock-go/internal/infra/buildinfo.Version=v1.0.0"
package buildinfo
