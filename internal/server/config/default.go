// Package config defines the server configuration structure.
package config

import (
	"time"

	"github.com/yndnr/webdock-go/internal/server/wire"
)

// Handler names usable in the route table.
const (
	HandlerEcho     = "echo"
	HandlerSleep    = "sleep"
	HandlerCRUD     = "crud"
	HandlerMarkdown = "markdown"
)

// Default configuration values.
const (
	DefaultHost            = "0.0.0.0"
	DefaultPort            = 80
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 2 * time.Minute
	DefaultShutdownTimeout = 30 * time.Second

	DefaultSleepDuration = 3 * time.Second

	DefaultStorageBackend = "fs"
	DefaultStorageRoot    = "/var/lib/webdock-server/data"
	DefaultCRUDDir        = "crud"
	DefaultMarkdownDir    = "markdown"

	DefaultBadgerDir         = "badger"
	DefaultBadgerGCInterval  = 10 * time.Minute
	DefaultBadgerGCThreshold = 0.5
	DefaultBadgerCacheSize   = 16 << 20

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// DefaultRoutes returns the built-in route table.
func DefaultRoutes() []Route {
	return []Route{
		{Prefix: "/echo", Handler: HandlerEcho},
		{Prefix: "/sleep", Handler: HandlerSleep},
		{Prefix: "/api", Handler: HandlerCRUD},
		{Prefix: "/markdown", Handler: HandlerMarkdown},
	}
}

// Default returns the default server configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		Server: ServerSection{
			Host:            DefaultHost,
			Port:            DefaultPort,
			ReadTimeout:     DefaultReadTimeout,
			WriteTimeout:    DefaultWriteTimeout,
			IdleTimeout:     DefaultIdleTimeout,
			ShutdownTimeout: DefaultShutdownTimeout,
			Limits: LimitsConfig{
				MaxLineBytes:   wire.DefaultMaxLineLen,
				MaxHeaderBytes: wire.DefaultMaxHeaderBytes,
				MaxBodyBytes:   wire.DefaultMaxBodyLen,
			},
		},
		Handlers: HandlersSection{
			Sleep: SleepConfig{Duration: DefaultSleepDuration},
		},
		Routes: DefaultRoutes(),
		Storage: StorageSection{
			Backend:     DefaultStorageBackend,
			Root:        DefaultStorageRoot,
			CRUDDir:     DefaultCRUDDir,
			MarkdownDir: DefaultMarkdownDir,
			Badger: BadgerSection{
				Dir:         DefaultBadgerDir,
				GCInterval:  DefaultBadgerGCInterval,
				GCThreshold: DefaultBadgerGCThreshold,
				CacheSize:   DefaultBadgerCacheSize,
				SyncWrites:  true,
			},
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
