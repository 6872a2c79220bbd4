package restcore

import (
	"context"
	"errors"
	"time"
)

// DefaultPollInterval is the delay between poll ticks when PollSpec does
// not set one. Asynchronous server-side operations are expected to be
// short-lived, so the interval stays fixed; no backoff.
const DefaultPollInterval = time.Second

// PollSpec describes one asynchronous resource lifecycle: which
// server-reported statuses mean success or failure, how often to look,
// and when to give up. At least one of MaxAttempts and MaxDuration must
// be set; whichever trips first wins.
type PollSpec struct {
	// TerminalStates are the statuses that complete the operation
	// successfully.
	TerminalStates []string
	// FailureStates are the statuses that complete the operation in
	// error. A failed resource does not self-heal, so the poller stops
	// on the first failed observation.
	FailureStates []string
	// Interval is the fixed delay between polls. Zero means
	// [DefaultPollInterval].
	Interval time.Duration
	// MaxAttempts bounds the number of observations. Zero disables the
	// bound.
	MaxAttempts int
	// MaxDuration bounds the total polling time. Zero disables the
	// bound.
	MaxDuration time.Duration
}

// Validate reports whether the spec describes a bounded, decidable poll.
func (s PollSpec) Validate() error {
	if len(s.TerminalStates) == 0 {
		return errors.New("restcore: poll spec needs at least one terminal state")
	}
	if s.MaxAttempts <= 0 && s.MaxDuration <= 0 {
		return errors.New("restcore: poll spec needs a max-attempts or max-duration bound")
	}

	return nil
}

func (s PollSpec) isTerminal(status string) bool { return containsStatus(s.TerminalStates, status) }
func (s PollSpec) isFailure(status string) bool  { return containsStatus(s.FailureStates, status) }

func containsStatus(set []string, status string) bool {
	for _, v := range set {
		if v == status {
			return true
		}
	}

	return false
}

// StatusFunc observes the current server-reported status of a resource.
type StatusFunc func(ctx context.Context) (string, error)

// StatusVia returns a StatusFunc that fetches req through exec and reads
// the resource's sys.status field.
func StatusVia(exec *Executor, codec Codec, req Request) StatusFunc {
	return func(ctx context.Context) (string, error) {
		resp, err := exec.Do(ctx, req)
		if err != nil {
			return "", err
		}

		var doc struct {
			Sys Sys `json:"sys"`
		}
		if err := codec.Decode(resp.Body, &doc); err != nil {
			return "", err
		}

		return doc.Sys.Status, nil
	}
}

// Poller observes server-side asynchronous operations (environment
// cloning, asset processing) until they reach a terminal state. It holds
// no mutable state; one Poller may serve any number of concurrent polls.
type Poller struct {
	clock Clock
	hooks *Hooks
}

// NewPoller creates a Poller. A nil clock means [RealClock]; nil hooks
// mean no observation.
func NewPoller(clock Clock, hooks *Hooks) *Poller {
	if clock == nil {
		clock = RealClock{}
	}
	if hooks == nil {
		hooks = &Hooks{}
	}

	return &Poller{clock: clock, hooks: hooks}
}

// Poll fetches the resource status on each tick and maps it through
// spec: a terminal status returns it with a nil error, a failure status
// returns [PollFailedError], and exceeding the bounds returns
// [PollTimeoutError]. Any status in neither set — including ones this
// client has never heard of — counts as still in progress. Exactly one
// terminal result is delivered per invocation.
func (p *Poller) Poll(ctx context.Context, spec PollSpec, fetch StatusFunc) (string, error) {
	if err := spec.Validate(); err != nil {
		return "", err
	}

	if spec.Interval <= 0 {
		spec.Interval = DefaultPollInterval
	}

	start := p.clock.Now()

	for attempt := 1; ; attempt++ {
		status, err := fetch(ctx)
		if err != nil {
			return "", err
		}

		p.hooks.emitPollTick(attempt, status)

		switch {
		case spec.isTerminal(status):
			return status, nil
		case spec.isFailure(status):
			return "", &PollFailedError{Status: status, Attempts: attempt}
		}

		// The duration bound also trips when the next tick would land
		// beyond it; there is no point sleeping into a deadline.
		elapsed := p.clock.Since(start)
		if (spec.MaxAttempts > 0 && attempt >= spec.MaxAttempts) ||
			(spec.MaxDuration > 0 && elapsed+spec.Interval > spec.MaxDuration) {
			return "", &PollTimeoutError{
				LastStatus: status,
				Attempts:   attempt,
				Elapsed:    elapsed,
			}
		}

		if err := sleepCtx(ctx, p.clock, spec.Interval); err != nil {
			return "", err
		}
	}
}
