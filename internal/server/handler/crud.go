package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/yndnr/webdock-go/internal/server/wire"
	"github.com/yndnr/webdock-go/internal/storage"
)

// DefaultCRUDPrefix is the path CRUD is mounted on by default.
const DefaultCRUDPrefix = "/api"

// CRUD serves resources addressed as <prefix>/<collection>[/<key>].
//
//	POST   /api/<c>       create, key assigned by the store
//	GET    /api/<c>       list keys
//	GET    /api/<c>/<k>   read
//	PUT    /api/<c>/<k>   create or replace
//	DELETE /api/<c>/<k>   remove (idempotent)
type CRUD struct {
	store  storage.Store
	logger *slog.Logger
}

// NewCRUD creates a CRUD handler backed by store.
func NewCRUD(store storage.Store, logger *slog.Logger) *CRUD {
	return &CRUD{store: store, logger: orDefault(logger)}
}

type createResponse struct {
	ID string `json:"id"`
}

type listResponse struct {
	Files []string `json:"files"`
}

// Handle implements Handler.
func (h *CRUD) Handle(ctx context.Context, req *wire.Request) *wire.Response {
	switch req.Method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete:
	default:
		return wire.Empty(http.StatusMethodNotAllowed)
	}

	segs, ok := splitSegments(req.Path, mountPrefix(ctx, DefaultCRUDPrefix))
	if !ok || len(segs) == 0 || len(segs) > 2 {
		return h.badRequest(req, "bad resource path")
	}
	collection := segs[0]

	if len(segs) == 1 {
		switch req.Method {
		case http.MethodPost:
			return h.create(ctx, req, collection)
		case http.MethodGet:
			return h.list(ctx, req, collection)
		default:
			return h.badRequest(req, "key required")
		}
	}

	key := segs[1]
	switch req.Method {
	case http.MethodGet:
		return h.get(ctx, req, collection, key)
	case http.MethodPut:
		return h.put(ctx, req, collection, key)
	case http.MethodDelete:
		return h.delete(ctx, req, collection, key)
	default:
		return h.badRequest(req, "key not allowed")
	}
}

// Name implements Named.
func (*CRUD) Name() string { return "crud" }

func (h *CRUD) create(ctx context.Context, req *wire.Request, collection string) *wire.Response {
	key, err := h.store.Create(ctx, storage.NamespaceCRUD, collection, &storage.Object{
		Data:        req.Body,
		ContentType: req.ContentType(),
	})
	if err != nil {
		return storeFailure(ctx, h.logger, req, err)
	}
	h.logger.DebugContext(ctx, "resource created", "collection", collection, "id", key)
	return h.json(ctx, req, createResponse{ID: key})
}

func (h *CRUD) list(ctx context.Context, req *wire.Request, collection string) *wire.Response {
	keys, err := h.store.List(ctx, storage.NamespaceCRUD, collection)
	if err != nil {
		return storeFailure(ctx, h.logger, req, err)
	}
	if keys == nil {
		keys = []string{}
	}
	return h.json(ctx, req, listResponse{Files: keys})
}

func (h *CRUD) get(ctx context.Context, req *wire.Request, collection, key string) *wire.Response {
	obj, err := h.store.Get(ctx, storage.NamespaceCRUD, collection, key)
	if err != nil {
		return storeFailure(ctx, h.logger, req, err)
	}
	ct := obj.ContentType
	if ct == "" {
		ct = wire.ContentTypeJSON
	}
	return wire.NewResponse(http.StatusOK, ct, obj.Data)
}

func (h *CRUD) put(ctx context.Context, req *wire.Request, collection, key string) *wire.Response {
	created, err := h.store.Put(ctx, storage.NamespaceCRUD, collection, key, &storage.Object{
		Data:        req.Body,
		ContentType: req.ContentType(),
	})
	if err != nil {
		return storeFailure(ctx, h.logger, req, err)
	}
	h.logger.DebugContext(ctx, "resource stored", "collection", collection, "id", key, "created", created)
	return wire.Empty(http.StatusOK)
}

func (h *CRUD) delete(ctx context.Context, req *wire.Request, collection, key string) *wire.Response {
	existed, err := h.store.Delete(ctx, storage.NamespaceCRUD, collection, key)
	if err != nil {
		return storeFailure(ctx, h.logger, req, err)
	}
	h.logger.DebugContext(ctx, "resource deleted", "collection", collection, "id", key, "existed", existed)
	return wire.Empty(http.StatusOK)
}

func (h *CRUD) json(ctx context.Context, req *wire.Request, v any) *wire.Response {
	body, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return storeFailure(ctx, h.logger, req, err)
	}
	body = append(body, '\n')
	return wire.NewResponse(http.StatusOK, wire.ContentTypeJSON, body)
}

func (h *CRUD) badRequest(req *wire.Request, reason string) *wire.Response {
	h.logger.Debug("rejected crud request", "method", req.Method, "path", req.Path, "reason", reason)
	return wire.Empty(http.StatusBadRequest)
}

// splitSegments returns the unescaped path segments below prefix. One
// trailing slash is ignored. ok is false when path is not under prefix, a
// segment is empty or not a valid store name, or unescaping fails.
func splitSegments(path, prefix string) ([]string, bool) {
	rest, found := strings.CutPrefix(path, prefix)
	if !found {
		return nil, false
	}
	if rest == "" || rest == "/" {
		return nil, true
	}
	if rest[0] != '/' {
		return nil, false
	}
	rest = strings.TrimSuffix(rest[1:], "/")

	raw := strings.Split(rest, "/")
	segs := make([]string, 0, len(raw))
	for _, s := range raw {
		u, err := url.PathUnescape(s)
		if err != nil || storage.ValidateName(u) != nil {
			return nil, false
		}
		segs = append(segs, u)
	}
	return segs, true
}
