// Package middleware wraps request handlers with cross-cutting behavior:
// request IDs, access logging, panic recovery, metrics and rate limiting.
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/time/rate"

	"github.com/yndnr/webdock-go/internal/server/handler"
	"github.com/yndnr/webdock-go/internal/server/wire"
	"github.com/yndnr/webdock-go/internal/telemetry/logger"
	"github.com/yndnr/webdock-go/pkg/cmap"
)

// Middleware wraps a handler with additional functionality.
type Middleware func(handler.Handler) handler.Handler

// Chain chains multiple middlewares together. The first middleware is the
// outermost.
func Chain(h handler.Handler, middlewares ...Middleware) handler.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		if middlewares[i] != nil {
			h = middlewares[i](h)
		}
	}
	return h
}

// RequestIDHeader is the request header whose value is reused as the
// request ID when present.
const RequestIDHeader = "X-Request-ID"

const maxRequestIDLen = 128

// RequestID attaches a request ID to the context, generating a ULID unless
// the client sent a usable X-Request-ID.
func RequestID() Middleware {
	return func(next handler.Handler) handler.Handler {
		return handler.HandlerFunc(func(ctx context.Context, req *wire.Request) *wire.Response {
			id := req.Headers.Get(RequestIDHeader)
			if id == "" || len(id) > maxRequestIDLen || strings.ContainsAny(id, " \t") {
				id = ulid.Make().String()
			}
			return next.Handle(logger.WithRequestID(ctx, id), req)
		})
	}
}

// route returns the context's route record, adding one when absent.
func route(ctx context.Context) (context.Context, *handler.Route) {
	if rt := handler.RouteFrom(ctx); rt != nil {
		return ctx, rt
	}
	return handler.WithRoute(ctx)
}

// AccessLog writes one line per request: info for success, warn for client
// errors and error for server errors. Request headers are included at debug
// level, with credentials masked by the logger. A logger built by
// logger.New tags the line with the request ID from ctx.
func AccessLog(log *slog.Logger) Middleware {
	if log == nil {
		log = slog.Default()
	}
	return func(next handler.Handler) handler.Handler {
		return handler.HandlerFunc(func(ctx context.Context, req *wire.Request) *wire.Response {
			ctx, rt := route(ctx)
			start := time.Now()

			resp := next.Handle(ctx, req)
			if resp == nil {
				log.ErrorContext(ctx, "handler returned no response", "path", req.Path)
				resp = noResponse()
			}

			attrs := []any{
				"method", req.Method,
				"target", req.Target,
				"handler", rt.Handler,
				"status", resp.Status,
				"bytes", len(resp.Body),
				"duration_ms", time.Since(start).Milliseconds(),
				"remote", req.RemoteAddr,
			}
			if log.Enabled(ctx, slog.LevelDebug) {
				attrs = append(attrs, headerGroup(req.Headers))
			}

			switch {
			case resp.Status >= 500:
				log.ErrorContext(ctx, "request completed with error", attrs...)
			case resp.Status >= 400:
				log.WarnContext(ctx, "request completed with client error", attrs...)
			default:
				log.InfoContext(ctx, "request completed", attrs...)
			}
			return resp
		})
	}
}

func headerGroup(h wire.Header) slog.Attr {
	attrs := make([]any, 0, len(h))
	for _, f := range h {
		attrs = append(attrs, slog.String(strings.ToLower(f.Name), f.Value))
	}
	return slog.Group("headers", attrs...)
}

// noResponse stands in for a handler that produced nothing.
func noResponse() *wire.Response {
	resp := wire.Empty(http.StatusInternalServerError)
	resp.Close = true
	return resp
}

// Recover turns a handler panic into a 500 that closes the connection.
// onPanic, when non-nil, is called after the panic is logged.
func Recover(log *slog.Logger, onPanic func()) Middleware {
	if log == nil {
		log = slog.Default()
	}
	return func(next handler.Handler) handler.Handler {
		return handler.HandlerFunc(func(ctx context.Context, req *wire.Request) (resp *wire.Response) {
			defer func() {
				if err := recover(); err != nil {
					log.ErrorContext(ctx, "panic recovered",
						"error", fmt.Sprint(err),
						"path", req.Path,
						"stack", string(debug.Stack()),
					)
					if onPanic != nil {
						onPanic()
					}
					resp = noResponse()
				}
			}()

			resp = next.Handle(ctx, req)
			if resp == nil {
				log.ErrorContext(ctx, "handler returned no response", "path", req.Path)
				resp = noResponse()
			}
			return resp
		})
	}
}

// RequestObserver receives one call per completed request.
type RequestObserver interface {
	ObserveRequest(handler, method string, status, bodyBytes int, elapsed time.Duration)
}

// Metrics reports every request to obs, labeled with the handler that
// served it.
func Metrics(obs RequestObserver) Middleware {
	return func(next handler.Handler) handler.Handler {
		if obs == nil {
			return next
		}
		return handler.HandlerFunc(func(ctx context.Context, req *wire.Request) *wire.Response {
			ctx, rt := route(ctx)
			start := time.Now()

			resp := next.Handle(ctx, req)
			if resp == nil {
				resp = noResponse()
			}

			name := rt.Handler
			if name == "" {
				name = "unknown"
			}
			obs.ObserveRequest(name, req.Method, resp.Status, len(resp.Body), time.Since(start))
			return resp
		})
	}
}

// RateLimitConfig configures RateLimit.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained per-client rate.
	RequestsPerSecond float64
	// Burst is the bucket size. Default: ceil(RequestsPerSecond).
	Burst int
	// IdleTTL drops a client's limiter after this long without requests.
	// Default: 5m
	IdleTTL time.Duration
	// OnLimit, when non-nil, is called for every rejected request.
	OnLimit func()
}

// RateLimit applies a token bucket per client IP and answers 429 when the
// bucket is empty. A non-positive rate disables limiting.
func RateLimit(cfg RateLimitConfig) Middleware {
	if cfg.RequestsPerSecond <= 0 {
		return nil
	}
	if cfg.Burst <= 0 {
		cfg.Burst = int(cfg.RequestsPerSecond)
		if float64(cfg.Burst) < cfg.RequestsPerSecond {
			cfg.Burst++
		}
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 5 * time.Minute
	}

	limiters := newClientLimiters(rate.Limit(cfg.RequestsPerSecond), cfg.Burst, cfg.IdleTTL)

	return func(next handler.Handler) handler.Handler {
		return handler.HandlerFunc(func(ctx context.Context, req *wire.Request) *wire.Response {
			if !limiters.allow(clientIP(req.RemoteAddr), time.Now()) {
				if cfg.OnLimit != nil {
					cfg.OnLimit()
				}
				resp := wire.Empty(http.StatusTooManyRequests)
				resp.Headers.Add("Retry-After", strconv.Itoa(1))
				return resp
			}
			return next.Handle(ctx, req)
		})
	}
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64 // unix nanoseconds
}

type clientLimiters struct {
	clients   *cmap.Map[*clientLimiter]
	limit     rate.Limit
	burst     int
	ttl       time.Duration
	lastSweep atomic.Int64
}

func newClientLimiters(limit rate.Limit, burst int, ttl time.Duration) *clientLimiters {
	c := &clientLimiters{
		clients: cmap.New[*clientLimiter](),
		limit:   limit,
		burst:   burst,
		ttl:     ttl,
	}
	c.lastSweep.Store(time.Now().UnixNano())
	return c
}

func (c *clientLimiters) allow(ip string, now time.Time) bool {
	c.sweep(now)

	cl, ok := c.clients.Get(ip)
	if !ok {
		cl, _ = c.clients.GetOrSet(ip, &clientLimiter{limiter: rate.NewLimiter(c.limit, c.burst)})
	}
	cl.lastSeen.Store(now.UnixNano())
	return cl.limiter.AllowN(now, 1)
}

// sweep drops limiters idle for longer than ttl, at most once per ttl.
func (c *clientLimiters) sweep(now time.Time) {
	last := c.lastSweep.Load()
	if now.UnixNano()-last <= int64(c.ttl) || !c.lastSweep.CompareAndSwap(last, now.UnixNano()) {
		return
	}
	cutoff := now.Add(-c.ttl).UnixNano()
	c.clients.DeleteFunc(func(_ string, cl *clientLimiter) bool {
		return cl.lastSeen.Load() < cutoff
	})
}

// clientIP extracts the host part of a remote address.
func clientIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
