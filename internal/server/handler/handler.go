package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/yndnr/webdock-go/internal/server/wire"
	"github.com/yndnr/webdock-go/internal/storage"
)

// Handler produces the response for one request.
//
// ctx is cancelled when the server stops hard; handlers doing long work
// should give up when it is done.
type Handler interface {
	Handle(ctx context.Context, req *wire.Request) *wire.Response
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, req *wire.Request) *wire.Response

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, req *wire.Request) *wire.Response {
	return f(ctx, req)
}

// Named is implemented by handlers that report a name for logs and metrics.
type Named interface {
	Name() string
}

// NameOf returns h's name, or "custom" when it has none.
func NameOf(h Handler) string {
	if n, ok := h.(Named); ok {
		return n.Name()
	}
	return "custom"
}

// Route describes the route a request was dispatched to.
type Route struct {
	// Prefix is the registered path prefix, without a trailing slash.
	Prefix string
	// Handler is the name of the handler serving the route.
	Handler string
}

type routeKey struct{}

// WithRoute returns a context carrying an empty Route for the router to fill.
func WithRoute(ctx context.Context) (context.Context, *Route) {
	r := &Route{}
	return context.WithValue(ctx, routeKey{}, r), r
}

// RouteFrom returns the Route stored in ctx, or nil.
func RouteFrom(ctx context.Context) *Route {
	r, _ := ctx.Value(routeKey{}).(*Route)
	return r
}

// mountPrefix returns the prefix the request was routed through, falling
// back to def when the handler is called directly.
func mountPrefix(ctx context.Context, def string) string {
	if r := RouteFrom(ctx); r != nil && r.Handler != "" {
		return r.Prefix
	}
	return def
}

// NotFound answers every request with an empty 404.
func NotFound() Handler {
	return notFound{}
}

type notFound struct{}

func (notFound) Handle(context.Context, *wire.Request) *wire.Response {
	return wire.Empty(http.StatusNotFound)
}

func (notFound) Name() string { return "not_found" }

// storeFailure maps a storage error to a response. Unexpected failures are
// logged and close the connection.
func storeFailure(ctx context.Context, logger *slog.Logger, req *wire.Request, err error) *wire.Response {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return wire.Empty(http.StatusNotFound)
	case errors.Is(err, storage.ErrInvalidKey):
		return wire.Empty(http.StatusBadRequest)
	case errors.Is(err, context.Canceled), errors.Is(err, storage.ErrClosed):
		resp := wire.Empty(http.StatusServiceUnavailable)
		resp.Close = true
		return resp
	}
	logger.ErrorContext(ctx, "storage operation failed",
		"method", req.Method,
		"path", req.Path,
		"error", err)
	resp := wire.Empty(http.StatusInternalServerError)
	resp.Close = true
	return resp
}

func orDefault(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
