// Package config defines the server configuration structure.
package config

import (
	"net"
	"strconv"
	"time"
)

// ServerConfig is the root configuration for webdock-server.
type ServerConfig struct {
	Server   ServerSection   `koanf:"server"`
	Handlers HandlersSection `koanf:"handlers"`
	Routes   []Route         `koanf:"routes"`
	Storage  StorageSection  `koanf:"storage"`
	Metrics  MetricsSection  `koanf:"metrics"`
	Log      LogSection      `koanf:"log"`
}

// ServerSection configures the TCP listener and connection handling.
type ServerSection struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`

	// ReadTimeout bounds reading one request after its first byte.
	ReadTimeout time.Duration `koanf:"read_timeout"`
	// WriteTimeout bounds writing one response.
	WriteTimeout time.Duration `koanf:"write_timeout"`
	// IdleTimeout bounds waiting for the next request on a connection.
	IdleTimeout time.Duration `koanf:"idle_timeout"`
	// ShutdownTimeout bounds the graceful drain on SIGINT/SIGTERM.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// MaxConnections caps concurrently served connections (0 = unbounded).
	MaxConnections int `koanf:"max_connections"`

	Limits    LimitsConfig    `koanf:"limits"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
}

// Addr returns host:port.
func (s ServerSection) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// LimitsConfig bounds request framing.
type LimitsConfig struct {
	MaxLineBytes   int   `koanf:"max_line_bytes"`
	MaxHeaderBytes int   `koanf:"max_header_bytes"`
	MaxBodyBytes   int64 `koanf:"max_body_bytes"`
}

// RateLimitConfig configures the per-client request rate limit.
// A zero rate disables it.
type RateLimitConfig struct {
	RequestsPerSecond float64 `koanf:"requests_per_second"`
	Burst             int     `koanf:"burst"`
}

// HandlersSection tunes individual handlers.
type HandlersSection struct {
	Sleep SleepConfig `koanf:"sleep"`
}

// SleepConfig configures the sleep handler.
type SleepConfig struct {
	Duration time.Duration `koanf:"duration"`
}

// Route mounts a handler on a path prefix.
type Route struct {
	Prefix  string `koanf:"prefix"`
	Handler string `koanf:"handler"`
}

// StorageSection configures the resource store.
type StorageSection struct {
	// Backend is "fs" or "badger".
	Backend string `koanf:"backend"`
	// Root is the storage root directory.
	Root string `koanf:"root"`
	// CRUDDir and MarkdownDir name the per-namespace directories under Root
	// (fs backend).
	CRUDDir     string `koanf:"crud_dir"`
	MarkdownDir string `koanf:"markdown_dir"`

	Badger BadgerSection `koanf:"badger"`
}

// BadgerSection tunes the badger backend.
type BadgerSection struct {
	Dir         string        `koanf:"dir"`
	GCInterval  time.Duration `koanf:"gc_interval"`
	GCThreshold float64       `koanf:"gc_threshold"`
	CacheSize   int64         `koanf:"cache_size"`
	SyncWrites  bool          `koanf:"sync_writes"`
}

// MetricsSection configures the Prometheus endpoint.
type MetricsSection struct {
	// Addr is the scrape listener address. Empty disables it.
	Addr string `koanf:"addr"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}
