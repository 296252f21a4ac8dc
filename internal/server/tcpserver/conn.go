package tcpserver

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/yndnr/webdock-go/internal/server/wire"
)

// conn is one client connection.
type conn struct {
	netConn net.Conn
	br      *bufio.Reader
	bw      *bufio.Writer
	remote  string

	// idle is set while the connection waits for the next request.
	idle   atomic.Bool
	closed atomic.Bool
}

func newConn(c net.Conn) *conn {
	cn := &conn{
		netConn: c,
		br:      bufio.NewReader(c),
		bw:      bufio.NewWriter(c),
		remote:  c.RemoteAddr().String(),
	}
	cn.idle.Store(true)
	return cn
}

func (c *conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.netConn.Close()
}

// lingerTimeout bounds how long unread client input is drained before a
// connection is closed after an error response.
const lingerTimeout = 250 * time.Millisecond

// lingerLimit caps how much unread input linger discards.
const lingerLimit = 256 << 10

// linger half-closes the connection and discards pending input so that the
// final close does not reset a response the peer has not read yet.
func (c *conn) linger(d time.Duration) {
	tc, ok := c.netConn.(*net.TCPConn)
	if !ok {
		return
	}
	if err := tc.CloseWrite(); err != nil {
		return
	}
	if err := tc.SetReadDeadline(time.Now().Add(d)); err != nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(c.br, lingerLimit))
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func (s *Server) serveConn(c *conn) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("connection handler panicked", "remote", c.remote, "error", fmt.Sprint(r))
			s.write(c, wire.Empty(http.StatusInternalServerError))
		}
	}()

	ctx := s.context()

	for {
		// First byte: allow the idle timeout.
		c.idle.Store(true)
		if !s.running.Load() {
			return
		}
		if err := c.netConn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout)); err != nil {
			return
		}
		if _, err := c.br.Peek(1); err != nil {
			switch {
			case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
			case isTimeout(err):
				s.logger.Debug("idle connection timed out", "remote", c.remote)
			default:
				s.logger.Debug("connection read error", "remote", c.remote, "error", err)
			}
			return
		}
		c.idle.Store(false)

		// After the first byte: tighten to the per-request read timeout.
		if err := c.netConn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout)); err != nil {
			return
		}

		req, err := wire.ReadRequest(c.br, s.cfg.Limits)
		if err != nil {
			if errors.Is(err, io.EOF) && !errors.Is(err, wire.ErrTruncated) {
				return
			}
			s.obs.Malformed()
			if errors.Is(err, wire.ErrLimitExceeded) {
				s.logger.Warn("request limit exceeded", "remote", c.remote, "error", err)
			} else {
				s.logger.Debug("malformed request", "remote", c.remote, "error", err)
			}
			if s.write(c, wire.Empty(http.StatusBadRequest)) == nil {
				c.linger(lingerTimeout)
			}
			return
		}
		req.RemoteAddr = c.remote

		resp := s.handler.Handle(ctx, req)
		if resp == nil {
			resp = wire.Empty(http.StatusInternalServerError)
			resp.Close = true
		}

		if err := s.write(c, resp); err != nil {
			s.logger.Debug("write failed", "remote", c.remote, "error", err)
			return
		}

		if resp.Close || resp.Status == http.StatusBadRequest || !req.KeepAlive() {
			return
		}
	}
}

// write encodes resp under the write deadline and flushes it.
func (s *Server) write(c *conn, resp *wire.Response) error {
	if err := c.netConn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
		return err
	}
	if _, err := resp.WriteTo(c.bw); err != nil {
		return err
	}
	return c.bw.Flush()
}
