package wire

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"strings"
)

// Common content types.
const (
	ContentTypeText     = "text/plain"
	ContentTypeHTML     = "text/html"
	ContentTypeJSON     = "application/json"
	ContentTypeMarkdown = "text/markdown"
)

const crlf = "\r\n"

// Response is an HTTP/1.1 response ready to be encoded.
type Response struct {
	Status      int
	ContentType string
	// Headers are written after Content-Type and Content-Length. Fields
	// named Content-Type or Content-Length are ignored.
	Headers Header
	Body    []byte

	// Close asks the connection manager to close the connection after
	// writing this response. It is not serialized.
	Close bool
}

// NewResponse builds a response with the given status, content type and body.
func NewResponse(status int, contentType string, body []byte) *Response {
	return &Response{Status: status, ContentType: contentType, Body: body}
}

// Empty builds a text/plain response with no body.
func Empty(status int) *Response {
	return NewResponse(status, ContentTypeText, nil)
}

// Text builds a text/plain response.
func Text(status int, body string) *Response {
	return NewResponse(status, ContentTypeText, []byte(body))
}

// Bytes encodes the response.
func (r *Response) Bytes() []byte {
	var buf bytes.Buffer
	_, _ = r.WriteTo(&buf)
	return buf.Bytes()
}

// WriteTo encodes the response to w.
func (r *Response) WriteTo(w io.Writer) (int64, error) {
	ct := r.ContentType
	if ct == "" {
		ct = ContentTypeText
	}

	var b strings.Builder
	b.Grow(64 + len(ct))
	b.WriteString(Version)
	b.WriteByte(' ')
	b.WriteString(strconv.Itoa(r.Status))
	b.WriteByte(' ')
	b.WriteString(reason(r.Status))
	b.WriteString(crlf)
	b.WriteString("Content-Type: ")
	b.WriteString(ct)
	b.WriteString(crlf)
	b.WriteString("Content-Length: ")
	b.WriteString(strconv.Itoa(len(r.Body)))
	b.WriteString(crlf)
	for _, f := range r.Headers {
		if strings.EqualFold(f.Name, "Content-Type") || strings.EqualFold(f.Name, "Content-Length") {
			continue
		}
		b.WriteString(f.Name)
		b.WriteString(": ")
		b.WriteString(f.Value)
		b.WriteString(crlf)
	}
	b.WriteString(crlf)

	n, err := io.WriteString(w, b.String())
	total := int64(n)
	if err != nil || len(r.Body) == 0 {
		return total, err
	}
	m, err := w.Write(r.Body)
	return total + int64(m), err
}

func reason(status int) string {
	if s := http.StatusText(status); s != "" {
		return s
	}
	return "Unknown"
}
