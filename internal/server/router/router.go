// Package router dispatches requests to handlers by path prefix.
package router

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/yndnr/webdock-go/internal/server/handler"
	"github.com/yndnr/webdock-go/internal/server/wire"
)

// Router maps path prefixes to handlers. The longest registered prefix
// matching whole path segments wins; unmatched requests go to the fallback.
//
// A Router is itself a handler.Handler.
type Router struct {
	mu       sync.RWMutex
	routes   []route // sorted by descending prefix length
	fallback handler.Handler
}

type route struct {
	prefix string
	name   string
	h      handler.Handler
}

// New creates a router. A nil fallback answers misses with 404.
func New(fallback handler.Handler) *Router {
	if fallback == nil {
		fallback = handler.NotFound()
	}
	return &Router{fallback: fallback}
}

// Register registers h under prefix, replacing any handler already registered
// for the same prefix. Trailing slashes on prefix are ignored, so "/api/"
// and "/api" are the same route.
func (r *Router) Register(prefix string, h handler.Handler) {
	prefix = normalize(prefix)

	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.routes {
		if r.routes[i].prefix == prefix {
			r.routes[i].h = h
			r.routes[i].name = handler.NameOf(h)
			return
		}
	}
	r.routes = append(r.routes, route{prefix: prefix, name: handler.NameOf(h), h: h})
	sort.SliceStable(r.routes, func(i, j int) bool {
		return len(r.routes[i].prefix) > len(r.routes[j].prefix)
	})
}

// Prefixes returns the registered prefixes, longest first.
func (r *Router) Prefixes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, len(r.routes))
	for i, rt := range r.routes {
		out[i] = rt.prefix
		if out[i] == "" {
			out[i] = "/"
		}
	}
	return out
}

// Route returns the handler for path. Any query string is ignored.
func (r *Router) Route(path string) handler.Handler {
	h, _, _ := r.match(path)
	return h
}

func (r *Router) match(path string) (handler.Handler, string, string) {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, rt := range r.routes {
		if matches(path, rt.prefix) {
			return rt.h, rt.prefix, rt.name
		}
	}
	return r.fallback, "", handler.NameOf(r.fallback)
}

// Handle implements handler.Handler. The chosen route is recorded in the
// request context's handler.Route, creating one when absent.
func (r *Router) Handle(ctx context.Context, req *wire.Request) *wire.Response {
	h, prefix, name := r.match(req.Path)

	rt := handler.RouteFrom(ctx)
	if rt == nil {
		ctx, rt = handler.WithRoute(ctx)
	}
	rt.Prefix = prefix
	rt.Handler = name

	return h.Handle(ctx, req)
}

// Name implements handler.Named.
func (*Router) Name() string { return "router" }

func normalize(prefix string) string {
	prefix = strings.TrimRight(prefix, "/")
	if prefix != "" && prefix[0] != '/' {
		prefix = "/" + prefix
	}
	return prefix
}

// matches reports whether prefix covers path on a segment boundary.
// The empty prefix matches every path.
func matches(path, prefix string) bool {
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	return len(path) == len(prefix) || path[len(prefix)] == '/'
}
