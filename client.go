package restcore

import (
	"context"
	"time"
)

// clientSetup holds non-config wiring collected during NewClient.
type clientSetup struct {
	clock      Clock
	hooks      *Hooks
	codec      Codec
	rateParser RateInfoParser
}

// ClientOption configures the wiring of a Client.
type ClientOption func(*clientSetup)

// WithClock sets the clock used by every component of the client.
func WithClock(c Clock) ClientOption {
	return func(s *clientSetup) {
		s.clock = c
	}
}

// WithHooks sets the lifecycle hooks shared by every component of the
// client.
func WithHooks(h *Hooks) ClientOption {
	return func(s *clientSetup) {
		s.hooks = h
	}
}

// WithClientCodec sets the payload codec. Defaults to [JSONCodec].
func WithClientCodec(c Codec) ClientOption {
	return func(s *clientSetup) {
		s.codec = c
	}
}

// WithRateHeaders sets the parser extracting rate-limit observations
// from responses, per the external API's header contract.
func WithRateHeaders(p RateInfoParser) ClientOption {
	return func(s *clientSetup) {
		s.rateParser = p
	}
}

// Client bundles the core components wired against one immutable
// configuration: a shared RateLimiter, the Executor every call passes
// through, a Mutator for versioned updates, and a Poller for
// asynchronous resources. Construct it once per remote API client and
// share it freely across goroutines.
type Client struct {
	limiter *RateLimiter
	exec    *Executor
	mutator *Mutator
	poller  *Poller
	codec   Codec

	pollInterval     time.Duration
	pollMaxAttempts  int
	batchConcurrency int
}

// NewClient wires the full core over transport. cfg may be nil for all
// defaults: auto rate calibration, five attempts per request,
// exponential-jitter backoff.
func NewClient(transport Transport, cfg *Config, opts ...ClientOption) (*Client, error) {
	setup := clientSetup{
		clock: RealClock{},
		hooks: &Hooks{},
		codec: JSONCodec{},
	}
	for _, opt := range opts {
		opt(&setup)
	}

	execOpts, err := cfg.ExecutorOptions()
	if err != nil {
		return nil, err
	}

	pollInterval, pollAttempts, err := cfg.PollDefaults()
	if err != nil {
		return nil, err
	}

	limiter := NewRateLimiter(cfg.RateSpec(), setup.clock, setup.hooks)

	execOpts = append(execOpts,
		WithExecutorClock(setup.clock),
		WithExecutorHooks(setup.hooks),
	)
	if setup.rateParser != nil {
		execOpts = append(execOpts, WithRateInfoParser(setup.rateParser))
	}

	exec := NewExecutor(transport, limiter, execOpts...)

	mutOpts := []MutatorOption{WithCodec(setup.codec)}
	if cfg != nil && cfg.ConflictRetries != nil {
		mutOpts = append(mutOpts, WithConflictRetries(*cfg.ConflictRetries))
	}

	batchConcurrency := DefaultBatchConcurrency
	if cfg != nil && cfg.BatchConcurrency != nil && *cfg.BatchConcurrency > 0 {
		batchConcurrency = *cfg.BatchConcurrency
	}

	return &Client{
		limiter:          limiter,
		exec:             exec,
		mutator:          NewMutator(exec, mutOpts...),
		poller:           NewPoller(setup.clock, setup.hooks),
		codec:            setup.codec,
		pollInterval:     pollInterval,
		pollMaxAttempts:  pollAttempts,
		batchConcurrency: batchConcurrency,
	}, nil
}

// Do executes one request through the resilient executor.
func (c *Client) Do(ctx context.Context, req Request) (Response, error) {
	return c.exec.Do(ctx, req)
}

// Poll waits for the resource behind req to reach a terminal state,
// filling the spec's interval and attempt bound from the client
// configuration when unset.
func (c *Client) Poll(ctx context.Context, spec PollSpec, req Request) (string, error) {
	if spec.Interval <= 0 {
		spec.Interval = c.pollInterval
	}
	if spec.MaxAttempts <= 0 && spec.MaxDuration <= 0 {
		spec.MaxAttempts = c.pollMaxAttempts
	}

	return c.poller.Poll(ctx, spec, StatusVia(c.exec, c.codec, req))
}

// Executor returns the executor every call passes through, for layering
// custom operations on top of the client.
func (c *Client) Executor() *Executor { return c.exec }

// Mutator returns the versioned-update layer, for use with [Update] and
// [UpdateFrom].
func (c *Client) Mutator() *Mutator { return c.mutator }

// Limiter returns the shared rate limiter.
func (c *Client) Limiter() *RateLimiter { return c.limiter }

// BatchConcurrency returns the configured in-flight cap for [RunBatch].
func (c *Client) BatchConcurrency() int { return c.batchConcurrency }

// Hooks returns the hooks shared by every component of the client.
func (c *Client) Hooks() *Hooks { return c.exec.Hooks() }
