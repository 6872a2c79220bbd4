package restcore

import (
	"context"
	"net/http"
	"time"
)

// Request is one HTTP operation to perform against the remote API.
// It is a plain value: retries re-send the same Request unchanged, so a
// Request must be fully built before it reaches the Executor and never
// mutated afterwards.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Response is the outcome of a single sent Request.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Transport sends one HTTP request and returns the raw response. It
// performs no retries, no rate limiting, and no status interpretation —
// that is the Executor's job. A Transport error means the request may or
// may not have reached the server (timeout, connection reset).
//
// Implementations must honor ctx cancellation.
type Transport interface {
	Send(ctx context.Context, req Request) (Response, error)
}

// TransportFunc adapts an ordinary function into a [Transport].
type TransportFunc func(ctx context.Context, req Request) (Response, error)

// Send calls the underlying function.
func (f TransportFunc) Send(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}

// RateInfo is a server-reported rate-limit observation parsed out of
// response headers: the plan limit (requests/second), the remaining
// budget in the current window, and the time until the window resets.
type RateInfo struct {
	Limit     float64
	Remaining float64
	Reset     time.Duration
}

// RateInfoParser extracts a rate-limit observation from a response.
// The exact header names are part of the external API's contract, so the
// parser is injected rather than fixed; the httpt subpackage provides a
// default. ok is false when the response carries no rate-limit headers.
type RateInfoParser func(resp Response) (info RateInfo, ok bool)
