package wire

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"strconv"
	"strings"
)

// Version is the only protocol version accepted on the request line.
const Version = "HTTP/1.1"

// Default protocol limits.
const (
	// DefaultMaxLineLen bounds the request line and every header line (64KB).
	// Header values of several kilobytes are common (cookies, tokens).
	DefaultMaxLineLen = 64 * 1024

	// DefaultMaxHeaderBytes bounds the whole header block (1MB).
	DefaultMaxHeaderBytes = 1024 * 1024

	// DefaultMaxBodyLen bounds a declared Content-Length (32MB).
	DefaultMaxBodyLen = 32 * 1024 * 1024

	// maxLeadingBlankLines is how many stray empty lines are skipped before
	// a request line (clients sometimes send CRLF after a body).
	maxLeadingBlankLines = 4
)

var (
	// ErrMalformed is returned when the input does not follow the grammar.
	ErrMalformed = errors.New("wire: malformed request")
	// ErrUnsupportedVersion is returned for a request line whose version is
	// not HTTP/1.1. It matches ErrMalformed with errors.Is.
	ErrUnsupportedVersion = fmt.Errorf("%w: unsupported version", ErrMalformed)
	// ErrLimitExceeded is returned when a line, the header block or the body
	// is larger than the configured limits.
	ErrLimitExceeded = errors.New("wire: limit exceeded")
	// ErrTruncated is returned when the peer stops sending (EOF or read
	// deadline) in the middle of a request.
	ErrTruncated = errors.New("wire: truncated request")
)

// Limits bounds what ReadRequest accepts from a peer.
type Limits struct {
	MaxLineLen     int
	MaxHeaderBytes int
	MaxBodyLen     int64
}

// DefaultLimits returns the default protocol limits.
func DefaultLimits() Limits {
	return Limits{
		MaxLineLen:     DefaultMaxLineLen,
		MaxHeaderBytes: DefaultMaxHeaderBytes,
		MaxBodyLen:     DefaultMaxBodyLen,
	}
}

func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.MaxLineLen <= 0 {
		l.MaxLineLen = d.MaxLineLen
	}
	if l.MaxHeaderBytes <= 0 {
		l.MaxHeaderBytes = d.MaxHeaderBytes
	}
	if l.MaxBodyLen <= 0 {
		l.MaxBodyLen = d.MaxBodyLen
	}
	return l
}

// Request is a decoded HTTP/1.1 request.
type Request struct {
	Method  string
	Target  string // request-target exactly as sent
	Path    string // Target without the query string
	Query   string
	Version string
	Headers Header
	Body    []byte

	// Raw holds the bytes of the request as received: request line, header
	// lines with their original terminators, the blank line and the body.
	Raw []byte

	// RemoteAddr is filled in by the connection manager.
	RemoteAddr string
}

// KeepAlive reports whether the client asked for the connection to stay open.
// Only an explicit "Connection: keep-alive" token keeps it; "close" wins.
func (r *Request) KeepAlive() bool {
	if r.Headers.hasToken("Connection", "close") {
		return false
	}
	return r.Headers.hasToken("Connection", "keep-alive")
}

// ContentType returns the raw Content-Type header value.
func (r *Request) ContentType() string {
	return r.Headers.Get("Content-Type")
}

// MediaType returns the lower-cased media type of Content-Type without
// parameters, or "" when absent or unparsable.
func (r *Request) MediaType() string {
	ct := r.ContentType()
	if ct == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return ""
	}
	return mt
}

// ReadRequest decodes one request from r.
//
// io.EOF is returned unchanged when the peer closes before sending anything.
// Any other failure wraps ErrMalformed, ErrLimitExceeded or ErrTruncated; in
// all of those cases the stream position is undefined and the connection
// should not be reused.
func ReadRequest(r *bufio.Reader, lim Limits) (*Request, error) {
	lim = lim.withDefaults()

	var (
		line []byte
		err  error
	)
	for i := 0; ; i++ {
		line, err = readLine(r, lim.MaxLineLen)
		if err != nil {
			// Plain EOF means nothing but blank lines arrived.
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, truncated(err)
		}
		if len(trimEOL(line)) > 0 {
			break
		}
		if i >= maxLeadingBlankLines {
			return nil, fmt.Errorf("%w: empty request line", ErrMalformed)
		}
	}

	req := &Request{}
	if err := req.parseRequestLine(string(trimEOL(line))); err != nil {
		return nil, err
	}

	var raw bytes.Buffer
	raw.Write(line)

	headerBytes := 0
	for {
		hl, err := readLine(r, lim.MaxLineLen)
		if err != nil {
			return nil, truncated(err)
		}
		raw.Write(hl)

		content := trimEOL(hl)
		if len(content) == 0 {
			break
		}

		headerBytes += len(hl)
		if headerBytes > lim.MaxHeaderBytes {
			return nil, fmt.Errorf("%w: header block exceeds %d bytes", ErrLimitExceeded, lim.MaxHeaderBytes)
		}

		f, err := parseField(string(content))
		if err != nil {
			return nil, err
		}
		req.Headers = append(req.Headers, f)
	}

	n := contentLength(req.Headers)
	if n > lim.MaxBodyLen {
		return nil, fmt.Errorf("%w: body length %d exceeds limit %d", ErrLimitExceeded, n, lim.MaxBodyLen)
	}
	if n > 0 {
		body := make([]byte, n)
		if _, err := io.ReadFull(r, body); err != nil {
			return nil, truncated(err)
		}
		req.Body = body
		raw.Write(body)
	}

	req.Raw = raw.Bytes()
	return req, nil
}

func (r *Request) parseRequestLine(line string) error {
	parts := strings.Split(line, " ")
	if len(parts) != 3 {
		return fmt.Errorf("%w: request line has %d tokens", ErrMalformed, len(parts))
	}
	for _, p := range parts {
		if p == "" {
			return fmt.Errorf("%w: empty token in request line", ErrMalformed)
		}
	}
	if parts[2] != Version {
		return fmt.Errorf("%w %q", ErrUnsupportedVersion, parts[2])
	}

	r.Method = parts[0]
	r.Target = parts[1]
	r.Version = parts[2]
	r.Path, r.Query, _ = strings.Cut(r.Target, "?")
	return nil
}

func parseField(line string) (Field, error) {
	name, value, ok := strings.Cut(line, ":")
	if !ok || name == "" {
		return Field{}, fmt.Errorf("%w: header line without name", ErrMalformed)
	}
	if strings.ContainsAny(name, " \t") {
		return Field{}, fmt.Errorf("%w: whitespace in header name %q", ErrMalformed, name)
	}
	return Field{Name: name, Value: strings.Trim(value, " \t")}, nil
}

// contentLength returns the declared body length. A missing, negative or
// non-numeric value means no body.
func contentLength(h Header) int64 {
	v := h.Get("Content-Length")
	if v == "" {
		return 0
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// readLine reads up to and including the next '\n'. The returned slice is a
// copy and keeps its terminator.
func readLine(r *bufio.Reader, maxLen int) ([]byte, error) {
	var buf []byte
	for {
		frag, err := r.ReadSlice('\n')
		if err == nil {
			buf = append(buf, frag...)
			break
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			buf = append(buf, frag...)
			if len(buf) > maxLen {
				return nil, fmt.Errorf("%w: line length exceeds limit %d", ErrLimitExceeded, maxLen)
			}
			continue
		}
		if len(buf)+len(frag) > 0 && errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}

	if len(buf) > maxLen {
		return nil, fmt.Errorf("%w: line length exceeds limit %d", ErrLimitExceeded, maxLen)
	}
	return buf, nil
}

func trimEOL(line []byte) []byte {
	line = bytes.TrimSuffix(line, []byte("\n"))
	return bytes.TrimSuffix(line, []byte("\r"))
}

// truncated classifies a read failure in the middle of a request. Limit
// violations are passed through as-is.
func truncated(err error) error {
	if errors.Is(err, ErrLimitExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrTruncated, err)
}
