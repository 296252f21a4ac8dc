package handler

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yndnr/webdock-go/internal/server/wire"
	"github.com/yndnr/webdock-go/internal/storage"
)

// request builds a request by decoding its wire form, so Raw is populated.
func request(t *testing.T, method, target, contentType, body string) *wire.Request {
	t.Helper()

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s HTTP/1.1\r\nHost: test\r\n", method, target)
	if contentType != "" {
		fmt.Fprintf(&b, "Content-Type: %s\r\n", contentType)
	}
	if body != "" {
		fmt.Fprintf(&b, "Content-Length: %d\r\n", len(body))
	}
	b.WriteString("\r\n")
	b.WriteString(body)

	req, err := wire.ReadRequest(bufio.NewReader(strings.NewReader(b.String())), wire.DefaultLimits())
	require.NoError(t, err)
	return req
}

func newStore(t *testing.T) storage.Store {
	t.Helper()
	s, err := storage.OpenFileStore(t.TempDir(), nil, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestEcho(t *testing.T) {
	raw := "GET /echo HTTP/1.1\r\nHost: localhost\r\nUser-Agent: test\r\nAccept: */*\r\n\r\n"
	req, err := wire.ReadRequest(bufio.NewReader(strings.NewReader(raw)), wire.DefaultLimits())
	require.NoError(t, err)

	resp := NewEcho().Handle(context.Background(), req)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, wire.ContentTypeText, resp.ContentType)
	assert.Equal(t, raw, string(resp.Body))
}

func TestEcho_WithBody(t *testing.T) {
	req := request(t, "POST", "/echo?x=1", "application/octet-stream", "payload\r\nmore")

	resp := NewEcho().Handle(context.Background(), req)
	assert.Equal(t, string(req.Raw), string(resp.Body))
	assert.True(t, strings.HasSuffix(string(resp.Body), "\r\n\r\npayload\r\nmore"))
}

func TestSleep(t *testing.T) {
	h := NewSleep(20*time.Millisecond, nil)

	start := time.Now()
	resp := h.Handle(context.Background(), request(t, "GET", "/sleep", "", ""))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, wire.ContentTypeText, resp.ContentType)
	assert.Equal(t, SleepBody, string(resp.Body))
}

func TestSleep_DefaultDelay(t *testing.T) {
	assert.Equal(t, DefaultSleep, NewSleep(0, nil).delay)
}

func TestSleep_Cancelled(t *testing.T) {
	h := NewSleep(time.Hour, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp := h.Handle(ctx, request(t, "GET", "/sleep", "", ""))
	assert.Equal(t, http.StatusServiceUnavailable, resp.Status)
	assert.True(t, resp.Close)
}

func TestNotFound(t *testing.T) {
	resp := NotFound().Handle(context.Background(), request(t, "GET", "/nope", "", ""))
	assert.Equal(t, http.StatusNotFound, resp.Status)
	assert.Empty(t, resp.Body)
	assert.Equal(t, "not_found", NameOf(NotFound()))
}

func TestNameOf(t *testing.T) {
	assert.Equal(t, "echo", NameOf(NewEcho()))
	assert.Equal(t, "sleep", NameOf(NewSleep(0, nil)))
	assert.Equal(t, "custom", NameOf(HandlerFunc(func(context.Context, *wire.Request) *wire.Response { return nil })))
}

func TestCRUD_RoundTrip(t *testing.T) {
	h := NewCRUD(newStore(t), nil)
	ctx := context.Background()

	resp := h.Handle(ctx, request(t, "POST", "/api/shoes", "application/json", `{"a":1}`))
	require.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, wire.ContentTypeJSON, resp.ContentType)
	assert.Equal(t, "{\n  \"id\": \"1\"\n}\n", string(resp.Body))

	resp = h.Handle(ctx, request(t, "GET", "/api/shoes/1", "", ""))
	require.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, wire.ContentTypeJSON, resp.ContentType)
	assert.Equal(t, `{"a":1}`, string(resp.Body))

	resp = h.Handle(ctx, request(t, "DELETE", "/api/shoes/1", "", ""))
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Empty(t, resp.Body)

	resp = h.Handle(ctx, request(t, "GET", "/api/shoes/1", "", ""))
	assert.Equal(t, http.StatusNotFound, resp.Status)

	// Deleting again still succeeds.
	resp = h.Handle(ctx, request(t, "DELETE", "/api/shoes/1", "", ""))
	assert.Equal(t, http.StatusOK, resp.Status)
}

func TestCRUD_Upsert(t *testing.T) {
	h := NewCRUD(newStore(t), nil)
	ctx := context.Background()

	resp := h.Handle(ctx, request(t, "PUT", "/api/shoes/k2", "application/json", "B1"))
	assert.Equal(t, http.StatusOK, resp.Status)
	resp = h.Handle(ctx, request(t, "PUT", "/api/shoes/k2", "application/json", "B2"))
	assert.Equal(t, http.StatusOK, resp.Status)

	resp = h.Handle(ctx, request(t, "GET", "/api/shoes/k2", "", ""))
	require.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "B2", string(resp.Body))
}

func TestCRUD_StoredContentType(t *testing.T) {
	h := NewCRUD(newStore(t), nil)
	ctx := context.Background()

	h.Handle(ctx, request(t, "PUT", "/api/docs/a", "text/csv", "x,y"))
	resp := h.Handle(ctx, request(t, "GET", "/api/docs/a", "", ""))
	assert.Equal(t, "text/csv", resp.ContentType)

	// No content type on write defaults to JSON on read.
	h.Handle(ctx, request(t, "PUT", "/api/docs/b", "", "{}"))
	resp = h.Handle(ctx, request(t, "GET", "/api/docs/b", "", ""))
	assert.Equal(t, wire.ContentTypeJSON, resp.ContentType)
}

func TestCRUD_List(t *testing.T) {
	h := NewCRUD(newStore(t), nil)
	ctx := context.Background()

	resp := h.Handle(ctx, request(t, "GET", "/api/shoes", "", ""))
	require.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "{\n  \"files\": []\n}\n", string(resp.Body))

	h.Handle(ctx, request(t, "POST", "/api/shoes", "application/json", "{}"))
	h.Handle(ctx, request(t, "POST", "/api/shoes", "application/json", "{}"))

	resp = h.Handle(ctx, request(t, "GET", "/api/shoes/", "", ""))
	require.Equal(t, http.StatusOK, resp.Status)
	assert.JSONEq(t, `{"files":["1","2"]}`, string(resp.Body))

	h.Handle(ctx, request(t, "DELETE", "/api/shoes/1", "", ""))
	resp = h.Handle(ctx, request(t, "GET", "/api/shoes", "", ""))
	assert.JSONEq(t, `{"files":["2"]}`, string(resp.Body))
}

func TestCRUD_BadRequests(t *testing.T) {
	h := NewCRUD(newStore(t), nil)

	tests := []struct {
		method string
		target string
		want   int
	}{
		{"POST", "/api/shoes/1", http.StatusBadRequest},
		{"PUT", "/api/shoes", http.StatusBadRequest},
		{"DELETE", "/api/shoes", http.StatusBadRequest},
		{"GET", "/api", http.StatusBadRequest},
		{"GET", "/api/", http.StatusBadRequest},
		{"GET", "/api/a/b/c", http.StatusBadRequest},
		{"GET", "/api/a//b", http.StatusBadRequest},
		{"GET", "/api/../etc", http.StatusBadRequest},
		{"GET", "/api/shoes/.meta", http.StatusBadRequest},
		{"GET", "/api/shoes/a%2Fb", http.StatusBadRequest},
		{"GET", "/api/shoes/%zz", http.StatusBadRequest},
		{"PATCH", "/api/shoes/1", http.StatusMethodNotAllowed},
		{"HEAD", "/api/shoes", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.target, func(t *testing.T) {
			resp := h.Handle(context.Background(), request(t, tt.method, tt.target, "", ""))
			assert.Equal(t, tt.want, resp.Status)
			assert.Empty(t, resp.Body)
		})
	}
}

func TestCRUD_CustomMount(t *testing.T) {
	h := NewCRUD(newStore(t), nil)

	ctx, route := WithRoute(context.Background())
	route.Prefix = "/v2/data"
	route.Handler = "crud"

	resp := h.Handle(ctx, request(t, "PUT", "/v2/data/c/k", "", "x"))
	assert.Equal(t, http.StatusOK, resp.Status)

	resp = h.Handle(ctx, request(t, "GET", "/v2/data/c/k", "", ""))
	assert.Equal(t, "x", string(resp.Body))
}

func TestMarkdown_RoundTrip(t *testing.T) {
	h := NewMarkdown(newStore(t), nil)
	ctx := context.Background()

	resp := h.Handle(ctx, request(t, "POST", "/markdown/test.md", "text/markdown", "hello\n"))
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Empty(t, resp.Body)

	resp = h.Handle(ctx, request(t, "GET", "/markdown/test.md", "", ""))
	require.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, wire.ContentTypeHTML, resp.ContentType)
	assert.Equal(t, "<p>hello</p>\n", string(resp.Body))

	resp = h.Handle(ctx, request(t, "PUT", "/markdown/test.md", "", "# Title\n"))
	assert.Equal(t, http.StatusOK, resp.Status)
	resp = h.Handle(ctx, request(t, "GET", "/markdown/test.md", "", ""))
	assert.Equal(t, "<h1>Title</h1>\n", string(resp.Body))

	resp = h.Handle(ctx, request(t, "DELETE", "/markdown/test.md", "", ""))
	assert.Equal(t, http.StatusOK, resp.Status)

	resp = h.Handle(ctx, request(t, "GET", "/markdown/test.md", "", ""))
	assert.Equal(t, http.StatusNotFound, resp.Status)

	resp = h.Handle(ctx, request(t, "DELETE", "/markdown/test.md", "", ""))
	assert.Equal(t, http.StatusOK, resp.Status)
}

func TestMarkdown_PostReplacesExisting(t *testing.T) {
	h := NewMarkdown(newStore(t), nil)
	ctx := context.Background()

	resp := h.Handle(ctx, request(t, "POST", "/markdown/a.md", "text/markdown", "one\n"))
	require.Equal(t, http.StatusOK, resp.Status)
	resp = h.Handle(ctx, request(t, "POST", "/markdown/a.md", "text/markdown", "two\n"))
	require.Equal(t, http.StatusOK, resp.Status)

	resp = h.Handle(ctx, request(t, "GET", "/markdown/a.md", "", ""))
	require.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "<p>two</p>\n", string(resp.Body))
}

func TestMarkdown_Guards(t *testing.T) {
	h := NewMarkdown(newStore(t), nil)

	tests := []struct {
		name        string
		method      string
		target      string
		contentType string
		want        int
	}{
		{"post json", "POST", "/markdown/test.md", "application/json", http.StatusUnsupportedMediaType},
		{"post no type", "POST", "/markdown/test.md", "", http.StatusUnsupportedMediaType},
		{"post charset", "POST", "/markdown/test.md", "text/markdown; charset=utf-8", http.StatusOK},
		{"post upper case", "POST", "/markdown/test.md", "Text/Markdown", http.StatusOK},
		{"post not md", "POST", "/markdown/test.txt", "text/markdown", http.StatusBadRequest},
		{"put not md", "PUT", "/markdown/test", "text/markdown", http.StatusBadRequest},
		{"get not md", "GET", "/markdown/test.html", "", http.StatusBadRequest},
		{"get missing", "GET", "/markdown/missing.md", "", http.StatusNotFound},
		{"no name", "GET", "/markdown", "", http.StatusBadRequest},
		{"nested", "GET", "/markdown/a/b.md", "", http.StatusBadRequest},
		{"hidden", "GET", "/markdown/.md", "", http.StatusBadRequest},
		{"patch", "PATCH", "/markdown/test.md", "", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := h.Handle(context.Background(), request(t, tt.method, tt.target, tt.contentType, "x\n"))
			assert.Equal(t, tt.want, resp.Status)
		})
	}
}

func TestMarkdown_EmptyFile(t *testing.T) {
	h := NewMarkdown(newStore(t), nil)
	ctx := context.Background()

	resp := h.Handle(ctx, request(t, "PUT", "/markdown/empty.md", "", ""))
	assert.Equal(t, http.StatusOK, resp.Status)

	resp = h.Handle(ctx, request(t, "GET", "/markdown/empty.md", "", ""))
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Empty(t, resp.Body)
}

type failingStore struct {
	storage.Store
	err error
}

func (f failingStore) Get(context.Context, storage.Namespace, string, string) (*storage.Object, error) {
	return nil, f.err
}

func (f failingStore) Create(context.Context, storage.Namespace, string, *storage.Object) (string, error) {
	return "", f.err
}

func TestStoreFailure(t *testing.T) {
	h := NewCRUD(failingStore{err: errors.New("disk on fire")}, nil)

	resp := h.Handle(context.Background(), request(t, "GET", "/api/shoes/1", "", ""))
	assert.Equal(t, http.StatusInternalServerError, resp.Status)
	assert.True(t, resp.Close)

	resp = h.Handle(context.Background(), request(t, "POST", "/api/shoes", "", "{}"))
	assert.Equal(t, http.StatusInternalServerError, resp.Status)

	md := NewMarkdown(failingStore{err: fmt.Errorf("wrapped: %w", storage.ErrClosed)}, nil)
	resp = md.Handle(context.Background(), request(t, "GET", "/markdown/a.md", "", ""))
	assert.Equal(t, http.StatusServiceUnavailable, resp.Status)
}
