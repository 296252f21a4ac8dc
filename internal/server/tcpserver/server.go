package tcpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yndnr/webdock-go/internal/server/handler"
	"github.com/yndnr/webdock-go/internal/server/wire"
)

// Config holds the connection manager configuration.
type Config struct {
	// Addr is the TCP listen address (host:port).
	Addr string
	// ReadTimeout bounds reading a request after its first byte (default: 30s).
	ReadTimeout time.Duration
	// WriteTimeout bounds writing a response (default: 30s).
	WriteTimeout time.Duration
	// IdleTimeout bounds waiting for the next request (default: 2m).
	IdleTimeout time.Duration
	// MaxConnections caps concurrently served connections. Accepting waits
	// for a free slot. 0 means unbounded.
	MaxConnections int
	// Limits bounds request framing. Zero fields use wire defaults.
	Limits wire.Limits
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Addr:         "0.0.0.0:80",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  2 * time.Minute,
		Limits:       wire.DefaultLimits(),
	}
}

func (c *Config) withDefaults() *Config {
	out := *c
	d := DefaultConfig()
	if out.ReadTimeout <= 0 {
		out.ReadTimeout = d.ReadTimeout
	}
	if out.WriteTimeout <= 0 {
		out.WriteTimeout = d.WriteTimeout
	}
	if out.IdleTimeout <= 0 {
		out.IdleTimeout = d.IdleTimeout
	}
	if out.MaxConnections < 0 {
		out.MaxConnections = 0
	}
	return &out
}

// ConnObserver is notified of connection lifecycle events.
type ConnObserver interface {
	ConnOpened()
	ConnClosed()
	Malformed()
}

type nopObserver struct{}

func (nopObserver) ConnOpened() {}
func (nopObserver) ConnClosed() {}
func (nopObserver) Malformed()  {}

// Option configures a Server.
type Option func(*Server)

// WithObserver reports connection events to o.
func WithObserver(o ConnObserver) Option {
	return func(s *Server) {
		if o != nil {
			s.obs = o
		}
	}
}

// ErrServerClosed is returned by Serve after Shutdown.
var ErrServerClosed = errors.New("tcpserver: server closed")

// Server accepts TCP connections and serves HTTP/1.1 requests on them.
type Server struct {
	cfg     *Config
	handler handler.Handler
	logger  *slog.Logger
	obs     ConnObserver

	mu       sync.Mutex
	ln       net.Listener
	conns    map[*conn]struct{}
	serveCtx context.Context
	cancel   context.CancelFunc

	sem     chan struct{}
	running atomic.Bool
	done    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
}

// New creates a server dispatching every request to h.
func New(cfg *Config, h handler.Handler, logger *slog.Logger, opts ...Option) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:     cfg.withDefaults(),
		handler: h,
		logger:  logger,
		obs:     nopObserver{},
		conns:   make(map[*conn]struct{}),
		done:    make(chan struct{}),
	}
	if s.cfg.MaxConnections > 0 {
		s.sem = make(chan struct{}, s.cfg.MaxConnections)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Listen binds the configured address. It is called by ListenAndServe and
// may be called earlier to learn the bound address.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ln != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("tcpserver: listen %s: %w", s.cfg.Addr, err)
	}
	s.ln = ln
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// ListenAndServe binds the configured address and serves until Shutdown.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Serve accepts connections on the bound listener until Shutdown, which
// makes it return ErrServerClosed. Handlers receive a context derived from
// ctx that is cancelled when the server stops hard.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.ln
	if ln == nil {
		s.mu.Unlock()
		return errors.New("tcpserver: Serve called before Listen")
	}
	s.serveCtx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	select {
	case <-s.done:
		return ErrServerClosed
	default:
	}

	s.running.Store(true)
	s.logger.Info("tcp server listening",
		"address", ln.Addr().String(),
		"max_connections", s.cfg.MaxConnections,
		"idle_timeout", s.cfg.IdleTimeout,
		"read_timeout", s.cfg.ReadTimeout)

	return s.acceptLoop(ln)
}

func (s *Server) acceptLoop(ln net.Listener) error {
	var backoff time.Duration
	for {
		if !s.acquire() {
			return ErrServerClosed
		}

		nc, err := ln.Accept()
		if err != nil {
			s.release()
			if !s.running.Load() || errors.Is(err, net.ErrClosed) {
				return ErrServerClosed
			}
			// Transient failures such as EMFILE: back off and keep accepting.
			if backoff == 0 {
				backoff = 5 * time.Millisecond
			} else if backoff *= 2; backoff > time.Second {
				backoff = time.Second
			}
			s.logger.Warn("accept failed; retrying", "error", err, "backoff", backoff)
			select {
			case <-time.After(backoff):
			case <-s.done:
				return ErrServerClosed
			}
			continue
		}
		backoff = 0

		c := newConn(nc)
		if !s.track(c) {
			_ = nc.Close()
			s.release()
			return ErrServerClosed
		}

		s.obs.ConnOpened()
		go func() {
			defer s.wg.Done()
			defer s.release()
			defer s.obs.ConnClosed()
			defer s.untrack(c)
			s.serveConn(c)
		}()
	}
}

// acquire takes a connection slot, waiting while all are in use.
func (s *Server) acquire() bool {
	if s.sem == nil {
		select {
		case <-s.done:
			return false
		default:
			return true
		}
	}
	select {
	case s.sem <- struct{}{}:
		return true
	case <-s.done:
		return false
	}
}

func (s *Server) release() {
	if s.sem != nil {
		<-s.sem
	}
}

// track registers c and counts it in the wait group. It fails once
// shutdown has started.
func (s *Server) track(c *conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running.Load() {
		return false
	}
	s.conns[c] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(c *conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
	_ = c.Close()
}

// closeIdle closes every connection waiting for a request and reports
// whether any connection remains open.
func (s *Server) closeIdle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		if c.idle.Load() {
			_ = c.Close()
		}
	}
	return len(s.conns) > 0
}

func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		_ = c.Close()
	}
}

// Shutdown gracefully shuts down the server. It stops accepting, closes
// idle connections and waits for in-flight requests to finish. If ctx
// expires first, handler contexts are cancelled, remaining connections are
// closed and ctx's error is returned.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.running.Store(false)
	s.once.Do(func() { close(s.done) })
	ln := s.ln
	cancel := s.cancel
	s.mu.Unlock()

	var firstErr error
	if ln != nil {
		if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			firstErr = err
		}
	}

	drained := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(drained)
	}()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		s.closeIdle()
		select {
		case <-drained:
			if cancel != nil {
				cancel()
			}
			s.logger.Info("tcp server stopped")
			return firstErr
		case <-ctx.Done():
			s.logger.Warn("shutdown deadline reached; closing active connections")
			if cancel != nil {
				cancel()
			}
			s.closeAll()
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// context returns the handler context for this server.
func (s *Server) context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.serveCtx == nil {
		return context.Background()
	}
	return s.serveCtx
}
