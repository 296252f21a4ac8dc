// Package config defines the server configuration structure.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/yndnr/webdock-go/internal/telemetry/logger"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// Verify validates the configuration.
func Verify(cfg *ServerConfig) error {
	if err := verifyServer(&cfg.Server); err != nil {
		return err
	}
	if err := verifyHandlers(&cfg.Handlers); err != nil {
		return err
	}
	if err := verifyRoutes(cfg.Routes); err != nil {
		return err
	}
	if err := verifyStorage(&cfg.Storage); err != nil {
		return err
	}
	if err := verifyMetrics(&cfg.Metrics, &cfg.Server); err != nil {
		return err
	}
	return verifyLog(&cfg.Log)
}

func verifyServer(cfg *ServerSection) error {
	if cfg.Port < 0 || cfg.Port > 65535 {
		return invalid("server.port %d out of range", cfg.Port)
	}
	if cfg.ReadTimeout <= 0 {
		return invalid("server.read_timeout must be positive")
	}
	if cfg.WriteTimeout <= 0 {
		return invalid("server.write_timeout must be positive")
	}
	if cfg.IdleTimeout <= 0 {
		return invalid("server.idle_timeout must be positive")
	}
	if cfg.ShutdownTimeout <= 0 {
		return invalid("server.shutdown_timeout must be positive")
	}
	if cfg.MaxConnections < 0 {
		return invalid("server.max_connections must not be negative")
	}
	if cfg.Limits.MaxLineBytes < 0 || cfg.Limits.MaxHeaderBytes < 0 || cfg.Limits.MaxBodyBytes < 0 {
		return invalid("server.limits must not be negative")
	}
	if cfg.RateLimit.RequestsPerSecond < 0 {
		return invalid("server.rate_limit.requests_per_second must not be negative")
	}
	if cfg.RateLimit.Burst < 0 {
		return invalid("server.rate_limit.burst must not be negative")
	}
	return nil
}

func verifyHandlers(cfg *HandlersSection) error {
	if cfg.Sleep.Duration < 0 {
		return invalid("handlers.sleep.duration must not be negative")
	}
	return nil
}

func verifyRoutes(routes []Route) error {
	if len(routes) == 0 {
		return invalid("at least one route is required")
	}

	seen := make(map[string]struct{}, len(routes))
	for i, r := range routes {
		if !strings.HasPrefix(r.Prefix, "/") {
			return invalid("routes[%d].prefix %q must start with /", i, r.Prefix)
		}
		switch r.Handler {
		case HandlerEcho, HandlerSleep, HandlerCRUD, HandlerMarkdown:
		default:
			return invalid("routes[%d].handler %q is unknown", i, r.Handler)
		}

		p := strings.TrimRight(r.Prefix, "/")
		if _, dup := seen[p]; dup {
			return invalid("routes[%d].prefix %q is mounted twice", i, r.Prefix)
		}
		seen[p] = struct{}{}
	}
	return nil
}

func verifyStorage(cfg *StorageSection) error {
	switch cfg.Backend {
	case "fs", "badger":
	default:
		return invalid("storage.backend %q must be fs or badger", cfg.Backend)
	}
	if cfg.Root == "" {
		return invalid("storage.root is required")
	}
	for name, dir := range map[string]string{
		"storage.crud_dir":     cfg.CRUDDir,
		"storage.markdown_dir": cfg.MarkdownDir,
	} {
		if strings.ContainsAny(dir, `/\`) || dir == "." || dir == ".." {
			return invalid("%s %q must be a single directory name", name, dir)
		}
	}
	if cfg.CRUDDir != "" && cfg.CRUDDir == cfg.MarkdownDir {
		return invalid("storage.crud_dir and storage.markdown_dir must differ")
	}
	if cfg.Badger.GCThreshold < 0 || cfg.Badger.GCThreshold >= 1 {
		return invalid("storage.badger.gc_threshold must be in [0, 1)")
	}

	// Check if the root exists or can be created
	if err := os.MkdirAll(cfg.Root, 0o750); err != nil {
		return fmt.Errorf("%w: cannot create storage root: %w", ErrInvalid, err)
	}
	return nil
}

func verifyMetrics(cfg *MetricsSection, srv *ServerSection) error {
	if cfg.Addr == "" {
		return nil
	}
	if _, _, err := net.SplitHostPort(cfg.Addr); err != nil {
		return invalid("metrics.addr %q: %v", cfg.Addr, err)
	}
	if cfg.Addr == srv.Addr() && srv.Port != 0 {
		return invalid("metrics.addr must differ from the server address")
	}
	return nil
}

func verifyLog(cfg *LogSection) error {
	if !logger.ValidLevel(cfg.Level) {
		return invalid("log.level %q is unknown", cfg.Level)
	}
	switch strings.ToLower(cfg.Format) {
	case "json", "text", "console":
	default:
		return invalid("log.format %q must be json, text or console", cfg.Format)
	}
	return nil
}
