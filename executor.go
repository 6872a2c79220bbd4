package restcore

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Default executor tuning.
const (
	// DefaultRetryLimit is the total attempt cap per logical request.
	DefaultRetryLimit = 5
	// DefaultBaseDelay seeds the backoff strategy.
	DefaultBaseDelay = time.Second
	// DefaultMaxDelay caps any single computed backoff delay.
	DefaultMaxDelay = 30 * time.Second
)

// executorConfig holds the optional configuration for an Executor.
type executorConfig struct {
	retryOnError      bool
	retryLimit        int
	strategy          BackoffStrategy
	maxDelay          time.Duration
	perAttemptTimeout time.Duration // 0 means no per-attempt timeout
	rateParser        RateInfoParser
	clock             Clock
	hooks             *Hooks
}

// ExecutorOption configures executor behavior.
type ExecutorOption func(*executorConfig)

// WithRetryLimit sets the total number of attempts per request.
func WithRetryLimit(n int) ExecutorOption {
	return func(cfg *executorConfig) {
		cfg.retryLimit = n
	}
}

// WithRetryDisabled makes the executor perform exactly one attempt and
// surface the first error untouched.
func WithRetryDisabled() ExecutorOption {
	return func(cfg *executorConfig) {
		cfg.retryOnError = false
	}
}

// WithBackoff sets the strategy used between transient-failure attempts.
func WithBackoff(strategy BackoffStrategy) ExecutorOption {
	return func(cfg *executorConfig) {
		cfg.strategy = strategy
	}
}

// WithMaxDelay caps the computed backoff delay. A server-advised
// rate-limit reset is honored even when it exceeds the cap.
func WithMaxDelay(d time.Duration) ExecutorOption {
	return func(cfg *executorConfig) {
		cfg.maxDelay = d
	}
}

// WithPerAttemptTimeout sets a timeout for each individual attempt.
func WithPerAttemptTimeout(d time.Duration) ExecutorOption {
	return func(cfg *executorConfig) {
		cfg.perAttemptTimeout = d
	}
}

// WithRateInfoParser sets the parser that extracts rate-limit
// observations from responses for limiter recalibration.
func WithRateInfoParser(p RateInfoParser) ExecutorOption {
	return func(cfg *executorConfig) {
		cfg.rateParser = p
	}
}

// WithExecutorClock sets the clock used for backoff sleeps and response
// timing.
func WithExecutorClock(c Clock) ExecutorOption {
	return func(cfg *executorConfig) {
		cfg.clock = c
	}
}

// WithExecutorHooks sets the lifecycle hooks the executor emits.
func WithExecutorHooks(h *Hooks) ExecutorOption {
	return func(cfg *executorConfig) {
		cfg.hooks = h
	}
}

// Executor is the single choke point through which every HTTP call
// passes. It fuses rate admission with retry: each attempt (including
// retries) first acquires a token from the shared RateLimiter, then goes
// to the Transport, and the response is classified into the client error
// taxonomy to decide between return, retry, and surface.
type Executor struct {
	transport Transport
	limiter   *RateLimiter
	cfg       executorConfig
}

// NewExecutor creates an Executor over the given transport and limiter.
func NewExecutor(transport Transport, limiter *RateLimiter, opts ...ExecutorOption) *Executor {
	cfg := executorConfig{
		retryOnError: true,
		retryLimit:   DefaultRetryLimit,
		maxDelay:     DefaultMaxDelay,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.retryLimit < 1 {
		cfg.retryLimit = 1
	}
	if cfg.strategy == nil {
		cfg.strategy = ExponentialJitterBackoff(DefaultBaseDelay)
	}
	if cfg.clock == nil {
		cfg.clock = RealClock{}
	}
	if cfg.hooks == nil {
		cfg.hooks = &Hooks{}
	}

	return &Executor{
		transport: transport,
		limiter:   limiter,
		cfg:       cfg,
	}
}

// Hooks returns the hooks the executor emits, for sharing with the
// layers built on top of it.
func (e *Executor) Hooks() *Hooks { return e.cfg.hooks }

// Clock returns the executor's clock, for sharing with the layers built
// on top of it.
func (e *Executor) Clock() Clock { return e.cfg.clock }

// Do executes one logical request. Transient failures (429, 5xx,
// transport errors) are retried with backoff up to the retry limit;
// permanent failures (4xx including version conflicts) are surfaced
// immediately. Rate-limit headers on any response, success or failure,
// are forwarded to the limiter for recalibration.
func (e *Executor) Do(ctx context.Context, req Request) (Response, error) {
	var lastErr error

	for attempt := 0; attempt < e.cfg.retryLimit; attempt++ {
		// Every attempt pays for admission, retries included.
		if err := e.limiter.Acquire(ctx); err != nil {
			return Response{}, err
		}

		resp, err := e.send(ctx, req)
		if err == nil {
			var reset time.Duration
			if e.cfg.rateParser != nil {
				if info, ok := e.cfg.rateParser(resp); ok {
					e.limiter.Observe(info)
					reset = info.Reset
				}
			}

			cerr := ClassifyResponse(resp, reset)
			if cerr == nil {
				return resp, nil
			}
			if IsPermanent(cerr) {
				return Response{}, cerr
			}

			lastErr = cerr
		} else {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Response{}, ctxErr
			}

			// Network-level failure before a response: retryable, same
			// as a 5xx.
			lastErr = Transient(&TransportError{Err: err})
		}

		if !e.cfg.retryOnError {
			return Response{}, lastErr
		}
		if attempt == e.cfg.retryLimit-1 {
			break
		}

		delay := e.cfg.strategy.Delay(attempt)
		if e.cfg.maxDelay > 0 && delay > e.cfg.maxDelay {
			delay = e.cfg.maxDelay
		}

		// A server-advised reset wins over the computed backoff, cap
		// included: the budget will not refill any sooner than the
		// server says it will.
		var rle *RateLimitedError
		if errors.As(lastErr, &rle) && rle.Reset > delay {
			delay = rle.Reset
		}

		e.cfg.hooks.emitRetry(attempt+1, delay, lastErr)

		if err := sleepCtx(ctx, e.cfg.clock, delay); err != nil {
			return Response{}, err
		}
	}

	return Response{}, fmt.Errorf("%w: %w", ErrRetriesExhausted, lastErr)
}

// send performs one attempt, emitting request/response hooks and
// applying the per-attempt timeout when configured.
func (e *Executor) send(ctx context.Context, req Request) (Response, error) {
	if e.cfg.perAttemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.perAttemptTimeout)
		defer cancel()
	}

	e.cfg.hooks.emitRequest(req.Method, req.URL)

	start := e.cfg.clock.Now()

	resp, err := e.transport.Send(ctx, req)
	if err != nil {
		return Response{}, err
	}

	e.cfg.hooks.emitResponse(req.Method, req.URL, resp.Status, e.cfg.clock.Since(start))

	return resp, nil
}
