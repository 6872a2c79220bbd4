package restcore

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// Test helpers: scripted transport
// ---------------------------------------------------------------------------

// step is one scripted transport outcome.
type step struct {
	resp Response
	err  error
}

// scriptedTransport replays a fixed sequence of outcomes; once the
// script runs out, the last step repeats.
type scriptedTransport struct {
	mu    sync.Mutex
	steps []step
	calls []Request
}

func (f *scriptedTransport) Send(_ context.Context, req Request) (Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	i := len(f.calls)
	f.calls = append(f.calls, req)

	if i >= len(f.steps) {
		i = len(f.steps) - 1
	}

	s := f.steps[i]

	return s.resp, s.err
}

func (f *scriptedTransport) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func status(code int) step {
	return step{resp: Response{Status: code}}
}

// unlimited returns a limiter that never makes a test wait.
func unlimited(clk Clock) *RateLimiter {
	return NewRateLimiter(FixedRate(1_000_000), clk, &Hooks{})
}

// resetHeaderParser reads a reset-seconds header for 429 handling.
func resetHeaderParser(resp Response) (RateInfo, bool) {
	if resp.Header == nil {
		return RateInfo{}, false
	}

	v := resp.Header.Get("X-RateLimit-Reset")
	if v == "" {
		return RateInfo{}, false
	}

	secs, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return RateInfo{}, false
	}

	return RateInfo{Reset: time.Duration(secs * float64(time.Second))}, true
}

// ---------------------------------------------------------------------------
// Tests: success and classification
// ---------------------------------------------------------------------------

func TestExecutorSuccessFirstAttempt(t *testing.T) {
	t.Parallel()

	clk := newImmediateTestClock()
	ft := &scriptedTransport{steps: []step{
		{resp: Response{Status: 200, Body: []byte(`{"ok":true}`)}},
	}}
	e := NewExecutor(ft, unlimited(clk), WithExecutorClock(clk))

	resp, err := e.Do(context.Background(), Request{Method: "GET", URL: "/things/1"})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if resp.Status != 200 {
		t.Fatalf("Do() status = %d, want 200", resp.Status)
	}
	if ft.callCount() != 1 {
		t.Fatalf("transport called %d times, want 1", ft.callCount())
	}
}

func TestExecutorRetriesServerErrorsThenSucceeds(t *testing.T) {
	t.Parallel()

	clk := newImmediateTestClock()
	ft := &scriptedTransport{steps: []step{
		status(503), status(502), status(200),
	}}

	var retries []int
	hooks := &Hooks{
		OnRetry: func(attempt int, _ time.Duration, _ error) {
			retries = append(retries, attempt)
		},
	}
	e := NewExecutor(ft, unlimited(clk),
		WithExecutorClock(clk),
		WithExecutorHooks(hooks),
		WithBackoff(ConstantBackoff(10*time.Millisecond)),
	)

	_, err := e.Do(context.Background(), Request{Method: "GET", URL: "/x"})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if ft.callCount() != 3 {
		t.Fatalf("transport called %d times, want 3", ft.callCount())
	}
	if len(retries) != 2 || retries[0] != 1 || retries[1] != 2 {
		t.Fatalf("OnRetry attempts = %v, want [1 2]", retries)
	}
}

func TestExecutorPermanentErrorNotRetried(t *testing.T) {
	t.Parallel()

	clk := newImmediateTestClock()
	ft := &scriptedTransport{steps: []step{
		{resp: Response{Status: 404, Body: []byte(`{"message":"no such entry"}`)}},
	}}
	e := NewExecutor(ft, unlimited(clk), WithExecutorClock(clk))

	_, err := e.Do(context.Background(), Request{Method: "GET", URL: "/x"})

	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("Do() error = %v, want NotFoundError", err)
	}
	if nf.Message != "no such entry" {
		t.Fatalf("NotFoundError.Message = %q, want server message", nf.Message)
	}
	if ft.callCount() != 1 {
		t.Fatalf("transport called %d times, want 1", ft.callCount())
	}
}

func TestExecutorValidationDetailSurfaced(t *testing.T) {
	t.Parallel()

	clk := newImmediateTestClock()
	body := `{"message":"validation failed","details":{"errors":[{"path":"fields.title","details":"required"}]}}`
	ft := &scriptedTransport{steps: []step{
		{resp: Response{Status: 422, Body: []byte(body)}},
	}}
	e := NewExecutor(ft, unlimited(clk), WithExecutorClock(clk))

	_, err := e.Do(context.Background(), Request{Method: "PUT", URL: "/x"})

	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("Do() error = %v, want ValidationError", err)
	}
	if len(ve.Fields) != 1 || ve.Fields[0].Path != "fields.title" {
		t.Fatalf("ValidationError.Fields = %+v, want fields.title detail", ve.Fields)
	}
}

func TestExecutorConflictSurfacedWithoutRetry(t *testing.T) {
	t.Parallel()

	clk := newImmediateTestClock()
	ft := &scriptedTransport{steps: []step{status(409)}}
	e := NewExecutor(ft, unlimited(clk), WithExecutorClock(clk))

	_, err := e.Do(context.Background(), Request{Method: "PUT", URL: "/x"})

	var ce *ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("Do() error = %v, want ConflictError", err)
	}
	if ft.callCount() != 1 {
		t.Fatalf("transport called %d times, want 1 (409 must not be retried here)", ft.callCount())
	}
}

// ---------------------------------------------------------------------------
// Tests: retry exhaustion
// ---------------------------------------------------------------------------

func TestExecutorExhaustsExactlyRetryLimitAttempts(t *testing.T) {
	t.Parallel()

	clk := newImmediateTestClock()
	ft := &scriptedTransport{steps: []step{status(503)}}
	e := NewExecutor(ft, unlimited(clk),
		WithExecutorClock(clk),
		WithRetryLimit(5),
		WithBackoff(ConstantBackoff(time.Millisecond)),
	)

	_, err := e.Do(context.Background(), Request{Method: "GET", URL: "/x"})

	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("Do() error = %v, want ErrRetriesExhausted", err)
	}

	var se *ServerError
	if !errors.As(err, &se) || se.Status != 503 {
		t.Fatalf("Do() error = %v, want wrapped ServerError 503", err)
	}
	if ft.callCount() != 5 {
		t.Fatalf("transport called %d times, want exactly 5", ft.callCount())
	}
}

func TestExecutorTransportFailureRetriedLikeServerError(t *testing.T) {
	t.Parallel()

	clk := newImmediateTestClock()
	ft := &scriptedTransport{steps: []step{
		{err: errors.New("connection reset")},
	}}
	e := NewExecutor(ft, unlimited(clk),
		WithExecutorClock(clk),
		WithRetryLimit(3),
		WithBackoff(ConstantBackoff(time.Millisecond)),
	)

	_, err := e.Do(context.Background(), Request{Method: "GET", URL: "/x"})

	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("Do() error = %v, want ErrRetriesExhausted", err)
	}

	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("Do() error = %v, want wrapped TransportError", err)
	}
	if ft.callCount() != 3 {
		t.Fatalf("transport called %d times, want 3", ft.callCount())
	}
}

func TestExecutorRetryDisabledSingleAttempt(t *testing.T) {
	t.Parallel()

	clk := newImmediateTestClock()
	ft := &scriptedTransport{steps: []step{status(503)}}
	e := NewExecutor(ft, unlimited(clk),
		WithExecutorClock(clk),
		WithRetryDisabled(),
	)

	_, err := e.Do(context.Background(), Request{Method: "GET", URL: "/x"})

	if errors.Is(err, ErrRetriesExhausted) {
		t.Fatal("retry-disabled error must not be wrapped in ErrRetriesExhausted")
	}

	var se *ServerError
	if !errors.As(err, &se) {
		t.Fatalf("Do() error = %v, want ServerError", err)
	}
	if ft.callCount() != 1 {
		t.Fatalf("transport called %d times, want 1", ft.callCount())
	}
}

// ---------------------------------------------------------------------------
// Tests: 429 handling and rate calibration
// ---------------------------------------------------------------------------

func TestExecutor429WaitsAtLeastServerReset(t *testing.T) {
	t.Parallel()

	clk := newImmediateTestClock()

	hdr := make(http.Header)
	hdr.Set("X-RateLimit-Reset", "3")
	ft := &scriptedTransport{steps: []step{
		{resp: Response{Status: 429, Header: hdr}},
		status(200),
	}}
	e := NewExecutor(ft, unlimited(clk),
		WithExecutorClock(clk),
		WithBackoff(ConstantBackoff(500*time.Millisecond)),
		WithMaxDelay(time.Second), // the cap must not shorten the server's reset
		WithRateInfoParser(resetHeaderParser),
	)

	_, err := e.Do(context.Background(), Request{Method: "GET", URL: "/x"})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}

	durations := clk.getDurations()
	if len(durations) != 1 {
		t.Fatalf("recorded %d waits, want 1", len(durations))
	}
	if durations[0] < 3*time.Second {
		t.Fatalf("wait after 429 = %v, want >= server reset 3s", durations[0])
	}
}

func TestExecutorMaxDelayCapsBackoff(t *testing.T) {
	t.Parallel()

	clk := newImmediateTestClock()
	ft := &scriptedTransport{steps: []step{status(503), status(200)}}
	e := NewExecutor(ft, unlimited(clk),
		WithExecutorClock(clk),
		WithBackoff(ConstantBackoff(5*time.Second)),
		WithMaxDelay(time.Second),
	)

	_, err := e.Do(context.Background(), Request{Method: "GET", URL: "/x"})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}

	durations := clk.getDurations()
	if len(durations) != 1 || durations[0] != time.Second {
		t.Fatalf("waits = %v, want [1s]", durations)
	}
}

func TestExecutorForwardsRateHeadersToLimiter(t *testing.T) {
	t.Parallel()

	clk := newImmediateTestClock()
	limiter := NewRateLimiter(AutoRate(), clk, &Hooks{})

	hdr := make(http.Header)
	hdr.Set("X-Plan-Limit", "10")
	ft := &scriptedTransport{steps: []step{
		{resp: Response{Status: 200, Header: hdr}},
	}}

	parser := func(resp Response) (RateInfo, bool) {
		if resp.Header == nil || resp.Header.Get("X-Plan-Limit") == "" {
			return RateInfo{}, false
		}
		return RateInfo{Limit: 10, Remaining: 4, Reset: time.Second}, true
	}

	e := NewExecutor(ft, limiter,
		WithExecutorClock(clk),
		WithRateInfoParser(parser),
	)

	if _, err := e.Do(context.Background(), Request{Method: "GET", URL: "/x"}); err != nil {
		t.Fatalf("Do() error = %v", err)
	}

	if got := limiter.Rate(); got != 4 {
		t.Fatalf("limiter.Rate() = %v after calibration, want 4", got)
	}
}

// ---------------------------------------------------------------------------
// Tests: cancellation and hooks
// ---------------------------------------------------------------------------

func TestExecutorCancelledContextShortCircuits(t *testing.T) {
	t.Parallel()

	clk := newImmediateTestClock()
	ft := &scriptedTransport{steps: []step{status(200)}}
	e := NewExecutor(ft, unlimited(clk), WithExecutorClock(clk))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Do(ctx, Request{Method: "GET", URL: "/x"})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Do() error = %v, want context.Canceled", err)
	}
	if ft.callCount() != 0 {
		t.Fatalf("transport called %d times after cancellation, want 0", ft.callCount())
	}
}

func TestExecutorEmitsRequestAndResponseHooks(t *testing.T) {
	t.Parallel()

	clk := newImmediateTestClock()
	ft := &scriptedTransport{steps: []step{status(200)}}

	var (
		requests  int
		responses int
		gotStatus int
	)
	hooks := &Hooks{
		OnRequest: func(method, url string) {
			requests++
			if method != "GET" || url != "/things/1" {
				t.Errorf("OnRequest(%q, %q), want GET /things/1", method, url)
			}
		},
		OnResponse: func(_, _ string, status int, _ time.Duration) {
			responses++
			gotStatus = status
		},
	}
	e := NewExecutor(ft, unlimited(clk),
		WithExecutorClock(clk),
		WithExecutorHooks(hooks),
	)

	if _, err := e.Do(context.Background(), Request{Method: "GET", URL: "/things/1"}); err != nil {
		t.Fatalf("Do() error = %v", err)
	}

	if requests != 1 || responses != 1 || gotStatus != 200 {
		t.Fatalf(
			"hooks: requests=%d responses=%d status=%d, want 1/1/200",
			requests, responses, gotStatus,
		)
	}
}
