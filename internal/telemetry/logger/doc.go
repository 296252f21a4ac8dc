// Package logger builds the *slog.Logger every webdock component receives.
//
//   - logger.go: handler construction, shared dynamic level, request ID tagging
//   - context.go: request ID propagation through context.Context
//   - redact.go: masking of credentials and cookies in log attributes
//
// Records logged with a *Context method pick up the request ID stored by
// WithRequestID, so handler and access log lines for one request share it.
package logger
