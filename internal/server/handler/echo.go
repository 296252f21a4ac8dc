package handler

import (
	"context"
	"net/http"

	"github.com/yndnr/webdock-go/internal/server/wire"
)

// Echo returns the request exactly as it was received.
type Echo struct{}

// NewEcho creates an echo handler.
func NewEcho() *Echo {
	return &Echo{}
}

// Handle implements Handler.
func (*Echo) Handle(_ context.Context, req *wire.Request) *wire.Response {
	return wire.NewResponse(http.StatusOK, wire.ContentTypeText, req.Raw)
}

// Name implements Named.
func (*Echo) Name() string { return "echo" }
