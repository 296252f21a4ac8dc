package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/yndnr/webdock-go/internal/server/wire"
)

// DefaultSleep is the delay used when none is configured.
const DefaultSleep = 3 * time.Second

// SleepBody is the body returned after the delay.
const SleepBody = "Sleep handler test"

// Sleep simulates slow work by waiting before it answers.
type Sleep struct {
	delay  time.Duration
	logger *slog.Logger
}

// NewSleep creates a sleep handler. A non-positive delay uses DefaultSleep.
func NewSleep(delay time.Duration, logger *slog.Logger) *Sleep {
	if delay <= 0 {
		delay = DefaultSleep
	}
	return &Sleep{delay: delay, logger: orDefault(logger)}
}

// Handle implements Handler.
func (s *Sleep) Handle(ctx context.Context, req *wire.Request) *wire.Response {
	s.logger.DebugContext(ctx, "sleep started", "delay", s.delay, "remote", req.RemoteAddr)

	timer := time.NewTimer(s.delay)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
		s.logger.DebugContext(ctx, "sleep abandoned", "error", ctx.Err())
		resp := wire.Empty(http.StatusServiceUnavailable)
		resp.Close = true
		return resp
	}

	return wire.Text(http.StatusOK, SleepBody)
}

// Name implements Named.
func (*Sleep) Name() string { return "sleep" }
