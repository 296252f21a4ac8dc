// Package wire implements the HTTP/1.1 request and response framing used by
// webdock-server.
//
// Requests are decoded from a buffered connection reader with explicit size
// limits; the exact bytes received are kept alongside the parsed fields so
// that handlers can reproduce the request verbatim. Responses always carry
// Content-Type and Content-Length and are encoded with CRLF terminators.
//
// Only HTTP/1.1 is accepted. There is no chunked transfer coding: the body
// length is taken from Content-Length alone.
package wire
