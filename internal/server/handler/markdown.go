package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/yndnr/webdock-go/internal/server/wire"
	"github.com/yndnr/webdock-go/internal/storage"
	"github.com/yndnr/webdock-go/pkg/markdown"
)

// DefaultMarkdownPrefix is the path Markdown is mounted on by default.
const DefaultMarkdownPrefix = "/markdown"

// markdownExt is the only file extension the markdown handler accepts.
const markdownExt = ".md"

// Markdown stores markdown files and serves them rendered to HTML.
type Markdown struct {
	store  storage.Store
	logger *slog.Logger
}

// NewMarkdown creates a markdown handler backed by store.
func NewMarkdown(store storage.Store, logger *slog.Logger) *Markdown {
	return &Markdown{store: store, logger: orDefault(logger)}
}

// Handle implements Handler.
func (h *Markdown) Handle(ctx context.Context, req *wire.Request) *wire.Response {
	switch req.Method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete:
	default:
		return wire.Empty(http.StatusMethodNotAllowed)
	}

	segs, ok := splitSegments(req.Path, mountPrefix(ctx, DefaultMarkdownPrefix))
	if !ok || len(segs) != 1 {
		return h.badRequest(req, "expected a single file name")
	}
	name := segs[0]

	if req.Method == http.MethodPost && req.MediaType() != wire.ContentTypeMarkdown {
		h.logger.Debug("rejected markdown upload", "path", req.Path, "content_type", req.ContentType())
		return wire.Empty(http.StatusUnsupportedMediaType)
	}
	if !strings.HasSuffix(name, markdownExt) {
		return h.badRequest(req, "not a markdown file")
	}

	switch req.Method {
	case http.MethodGet:
		return h.get(ctx, req, name)
	case http.MethodDelete:
		return h.delete(ctx, req, name)
	default:
		return h.put(ctx, req, name)
	}
}

// Name implements Named.
func (*Markdown) Name() string { return "markdown" }

func (h *Markdown) get(ctx context.Context, req *wire.Request, name string) *wire.Response {
	obj, err := h.store.Get(ctx, storage.NamespaceMarkdown, "", name)
	if err != nil {
		return storeFailure(ctx, h.logger, req, err)
	}
	return wire.NewResponse(http.StatusOK, wire.ContentTypeHTML, markdown.Render(obj.Data))
}

func (h *Markdown) put(ctx context.Context, req *wire.Request, name string) *wire.Response {
	created, err := h.store.Put(ctx, storage.NamespaceMarkdown, "", name, &storage.Object{
		Data:        req.Body,
		ContentType: wire.ContentTypeMarkdown,
	})
	if err != nil {
		return storeFailure(ctx, h.logger, req, err)
	}
	h.logger.DebugContext(ctx, "markdown stored", "file", name, "created", created)
	return wire.Empty(http.StatusOK)
}

func (h *Markdown) delete(ctx context.Context, req *wire.Request, name string) *wire.Response {
	existed, err := h.store.Delete(ctx, storage.NamespaceMarkdown, "", name)
	if err != nil {
		return storeFailure(ctx, h.logger, req, err)
	}
	h.logger.DebugContext(ctx, "markdown deleted", "file", name, "existed", existed)
	return wire.Empty(http.StatusOK)
}

func (h *Markdown) badRequest(req *wire.Request, reason string) *wire.Response {
	h.logger.Debug("rejected markdown request", "method", req.Method, "path", req.Path, "reason", reason)
	return wire.Empty(http.StatusBadRequest)
}
