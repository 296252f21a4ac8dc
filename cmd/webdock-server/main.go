package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/yndnr/webdock-go/internal/infra/buildinfo"
	"github.com/yndnr/webdock-go/internal/infra/confloader"
	"github.com/yndnr/webdock-go/internal/infra/shutdown"
	"github.com/yndnr/webdock-go/internal/server/config"
	"github.com/yndnr/webdock-go/internal/server/handler"
	"github.com/yndnr/webdock-go/internal/server/middleware"
	"github.com/yndnr/webdock-go/internal/server/router"
	"github.com/yndnr/webdock-go/internal/server/tcpserver"
	"github.com/yndnr/webdock-go/internal/server/wire"
	"github.com/yndnr/webdock-go/internal/storage"
	"github.com/yndnr/webdock-go/internal/telemetry/logger"
	"github.com/yndnr/webdock-go/internal/telemetry/metric"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "webdock-server",
		Usage:   "HTTP/1.1 echo, sleep, CRUD and markdown server",
		Version: buildinfo.String(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file (YAML)",
				EnvVars: []string{"WEBDOCK_CONFIG"},
			},
			&cli.StringFlag{Name: "host", Usage: "Listen host"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "Listen port"},
			&cli.StringFlag{Name: "storage-root", Usage: "Resource store root directory"},
			&cli.StringFlag{Name: "storage-backend", Usage: "Resource store backend: fs, badger"},
			&cli.IntFlag{Name: "max-connections", Usage: "Concurrent connection limit (0 = unbounded)"},
			&cli.StringFlag{Name: "metrics-addr", Usage: "Prometheus listen address (empty disables)"},
			&cli.StringFlag{Name: "log-level", Usage: "Log level: debug, info, warn, error"},
		},
		Action: run,
	}
}

// flagKeys maps command-line flags to configuration keys.
var flagKeys = map[string]string{
	"host":            "server.host",
	"port":            "server.port",
	"storage-root":    "storage.root",
	"storage-backend": "storage.backend",
	"max-connections": "server.max_connections",
	"metrics-addr":    "metrics.addr",
	"log-level":       "log.level",
}

// flagOverrides returns the configuration keys set on the command line.
func flagOverrides(c *cli.Context) map[string]any {
	out := make(map[string]any)
	for flag, key := range flagKeys {
		if c.IsSet(flag) {
			out[key] = c.Value(flag)
		}
	}
	return out
}

func run(c *cli.Context) error {
	configFile := c.String("config")

	cfg, err := loadConfig(configFile, flagOverrides(c))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := initLogger(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	log.Info("starting webdock-server",
		"version", buildinfo.Version,
		"commit", buildinfo.Commit,
		"config", configFile)

	reg := metric.Global()

	store, err := initStorage(cfg, log, reg)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	h, err := buildHandler(cfg, store, log, reg)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("build routes: %w", err)
	}

	srv := tcpserver.New(tcpConfig(cfg), h, log, tcpserver.WithObserver(reg))
	if err := srv.Listen(); err != nil {
		_ = store.Close()
		return err
	}

	var metricsSrv *http.Server
	if cfg.Metrics.Addr != "" {
		metricsSrv = &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           metricsMux(reg),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	g, gctx := errgroup.WithContext(context.Background())
	sh := shutdown.NewHandler(cfg.Server.ShutdownTimeout)

	// Hooks run in reverse order: listeners first, then the store.
	sh.OnShutdown(func(ctx context.Context) error {
		log.Info("closing resource store")
		return store.Close()
	})
	sh.OnShutdown(func(ctx context.Context) error {
		log.Info("shutting down TCP server")
		return srv.Shutdown(ctx)
	})
	if metricsSrv != nil {
		sh.OnShutdown(func(ctx context.Context) error {
			log.Info("shutting down metrics server")
			return metricsSrv.Shutdown(ctx)
		})
	}

	if configFile != "" {
		w, err := watchConfig(configFile, flagOverrides(c), log)
		if err != nil {
			log.Warn("config watcher disabled", "error", err)
		} else {
			sh.OnShutdown(func(context.Context) error { return w.Stop() })
		}
	}

	g.Go(func() error {
		if err := srv.Serve(gctx); err != nil && !errors.Is(err, tcpserver.ErrServerClosed) {
			return fmt.Errorf("tcp server: %w", err)
		}
		return nil
	})
	if metricsSrv != nil {
		g.Go(func() error {
			log.Info("metrics server listening", "address", cfg.Metrics.Addr)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	log.Info("server started, press Ctrl+C to stop", "address", srv.Addr().String())
	shutdownErr := sh.Wait(gctx)
	serveErr := g.Wait()

	if err := errors.Join(serveErr, shutdownErr); err != nil {
		log.Error("server stopped with errors", "error", err)
		return err
	}
	log.Info("server stopped gracefully")
	return nil
}

// loadConfig loads configuration from defaults, file, environment and
// flags, then validates it.
func loadConfig(configFile string, flags map[string]any) (*config.ServerConfig, error) {
	cfg := config.Default()
	// A configured route table replaces the defaults instead of merging
	// into them element by element.
	cfg.Routes = nil

	opts := []confloader.Option{confloader.WithFlags(flags)}
	if configFile != "" {
		opts = append(opts, confloader.WithConfigFile(configFile))
	}

	if err := confloader.NewLoader(opts...).Load(cfg); err != nil {
		return nil, err
	}
	if len(cfg.Routes) == 0 {
		cfg.Routes = config.DefaultRoutes()
	}

	if err := config.Verify(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// initLogger initializes the structured logger and makes it the default.
func initLogger(cfg *config.ServerConfig) (*slog.Logger, error) {
	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stdout,
	})
	if err != nil {
		return nil, err
	}
	slog.SetDefault(log)
	return log, nil
}

func storageConfig(cfg *config.ServerConfig, log *slog.Logger) storage.Config {
	sc := storage.DefaultConfig(cfg.Storage.Root)
	sc.Backend = cfg.Storage.Backend
	sc.Logger = log
	sc.Dirs = map[storage.Namespace]string{
		storage.NamespaceCRUD:     cfg.Storage.CRUDDir,
		storage.NamespaceMarkdown: cfg.Storage.MarkdownDir,
	}

	b := cfg.Storage.Badger
	if b.Dir != "" {
		sc.Badger.Dir = b.Dir
	}
	if b.GCInterval > 0 {
		sc.Badger.GCInterval = b.GCInterval
	}
	if b.GCThreshold > 0 {
		sc.Badger.GCThreshold = b.GCThreshold
	}
	if b.CacheSize > 0 {
		sc.Badger.CacheSize = b.CacheSize
	}
	sc.Badger.SyncWrites = b.SyncWrites
	return sc
}

// initStorage opens the resource store and instruments it.
func initStorage(cfg *config.ServerConfig, log *slog.Logger, reg *metric.Registry) (storage.Store, error) {
	store, err := storage.Open(storageConfig(cfg, log))
	if err != nil {
		return nil, err
	}
	if bs, ok := store.(*storage.BadgerStore); ok {
		if err := bs.RegisterMetrics(reg.Registerer()); err != nil {
			log.Warn("badger metrics unavailable", "error", err)
		}
	}
	return storage.Instrument(store, reg), nil
}

// buildHandler mounts the configured routes and wraps them in the
// middleware chain.
func buildHandler(cfg *config.ServerConfig, store storage.Store, log *slog.Logger, reg *metric.Registry) (handler.Handler, error) {
	r := router.New(nil)
	for _, rt := range cfg.Routes {
		var h handler.Handler
		switch rt.Handler {
		case config.HandlerEcho:
			h = handler.NewEcho()
		case config.HandlerSleep:
			h = handler.NewSleep(cfg.Handlers.Sleep.Duration, log)
		case config.HandlerCRUD:
			h = handler.NewCRUD(store, log)
		case config.HandlerMarkdown:
			h = handler.NewMarkdown(store, log)
		default:
			return nil, fmt.Errorf("route %s: unknown handler %q", rt.Prefix, rt.Handler)
		}
		r.Register(rt.Prefix, h)
	}
	log.Info("routes mounted", "prefixes", r.Prefixes())

	return middleware.Chain(r,
		middleware.Recover(log, reg.Panicked),
		middleware.RequestID(),
		middleware.AccessLog(log),
		middleware.Metrics(reg),
		middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.Server.RateLimit.RequestsPerSecond,
			Burst:             cfg.Server.RateLimit.Burst,
			OnLimit:           reg.Limited,
		}),
	), nil
}

func tcpConfig(cfg *config.ServerConfig) *tcpserver.Config {
	s := cfg.Server
	return &tcpserver.Config{
		Addr:           s.Addr(),
		ReadTimeout:    s.ReadTimeout,
		WriteTimeout:   s.WriteTimeout,
		IdleTimeout:    s.IdleTimeout,
		MaxConnections: s.MaxConnections,
		Limits: wire.Limits{
			MaxLineLen:     s.Limits.MaxLineBytes,
			MaxHeaderBytes: s.Limits.MaxHeaderBytes,
			MaxBodyLen:     s.Limits.MaxBodyBytes,
		},
	}
}

func metricsMux(reg *metric.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", reg.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("ok\n"))
	})
	return mux
}

// watchConfig re-reads the configuration file on change and applies a new
// log level. Other settings need a restart.
func watchConfig(path string, flags map[string]any, log *slog.Logger) (*confloader.Watcher, error) {
	w, err := confloader.NewWatcher(confloader.WithWatcherLogger(log))
	if err != nil {
		return nil, err
	}
	if err := w.Watch(path); err != nil {
		_ = w.Stop()
		return nil, err
	}

	w.OnChange(func(string) {
		reloadLogLevel(path, flags, log)
	})
	w.StartAsync()
	return w, nil
}

func reloadLogLevel(path string, flags map[string]any, log *slog.Logger) {
	cfg, err := loadConfig(path, flags)
	if err != nil {
		log.Warn("ignoring configuration change", "error", err)
		return
	}
	if cfg.Log.Level == logger.GetLevel() {
		return
	}
	logger.SetLevel(cfg.Log.Level)
	log.Info("log level changed", "level", logger.GetLevel())
}
