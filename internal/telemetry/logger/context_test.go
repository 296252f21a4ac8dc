package logger

import (
	"context"
	"testing"
)

func TestWithRequestID(t *testing.T) {
	ctx := WithRequestID(context.Background(), "01HZX3V5M4Q8")

	if got := RequestIDFromContext(ctx); got != "01HZX3V5M4Q8" {
		t.Errorf("RequestIDFromContext() = %q, want %q", got, "01HZX3V5M4Q8")
	}
}

func TestRequestIDFromContext_Empty(t *testing.T) {
	if got := RequestIDFromContext(context.Background()); got != "" {
		t.Errorf("RequestIDFromContext() = %q, want empty string", got)
	}
}

func TestRequestIDFromContext_Overwrite(t *testing.T) {
	ctx := WithRequestID(context.Background(), "first")
	ctx = WithRequestID(ctx, "second")

	if got := RequestIDFromContext(ctx); got != "second" {
		t.Errorf("RequestIDFromContext() = %q, want %q", got, "second")
	}
}
