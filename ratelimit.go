package restcore

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ---------------------------------------------------------------------------
// Rate specification
// ---------------------------------------------------------------------------

// RateMode selects how the limiter derives its effective rate.
type RateMode int

const (
	// RateFixed uses a caller-supplied requests/second value and ignores
	// server-reported limits.
	RateFixed RateMode = iota
	// RatePercentage tracks a fraction of the server-reported plan limit,
	// recalculated whenever a fresh limit is observed.
	RatePercentage
	// RateAuto infers the sustainable rate from server-reported
	// remaining-budget and reset headers.
	RateAuto
)

// DefaultBootstrapRate is the conservative requests/second used by auto
// and percentage modes before the first server-reported limit arrives.
const DefaultBootstrapRate = 7.0

// minResetWindow guards the remaining/reset division against a zero or
// sub-granularity reset value.
const minResetWindow = 100 * time.Millisecond

// RateSpec describes the limiter configuration: a fixed rate, a
// percentage of the server's plan limit, or fully automatic calibration.
type RateSpec struct {
	Mode    RateMode
	Rate    float64 // RateFixed: requests per second
	Percent float64 // RatePercentage: fraction in (0, 1]
}

// FixedRate returns a RateSpec for a constant requests/second budget.
func FixedRate(perSecond float64) RateSpec {
	return RateSpec{Mode: RateFixed, Rate: perSecond}
}

// PercentageRate returns a RateSpec tracking fraction pct (in (0, 1]) of
// the server-reported limit.
func PercentageRate(pct float64) RateSpec {
	return RateSpec{Mode: RatePercentage, Percent: pct}
}

// AutoRate returns a RateSpec that calibrates itself from rate-limit
// response headers.
func AutoRate() RateSpec {
	return RateSpec{Mode: RateAuto}
}

// ParseRateSpec parses the configuration forms accepted for a rate limit:
// "auto", a percentage string such as "80%", or a plain number of
// requests per second such as "7" or "12.5".
func ParseRateSpec(s string) (RateSpec, error) {
	s = strings.TrimSpace(s)

	if strings.EqualFold(s, "auto") {
		return AutoRate(), nil
	}

	if pct, ok := strings.CutSuffix(s, "%"); ok {
		v, err := strconv.ParseFloat(strings.TrimSpace(pct), 64)
		if err != nil || v <= 0 || v > 100 {
			return RateSpec{}, fmt.Errorf("restcore: invalid rate percentage %q", s)
		}

		return PercentageRate(v / 100), nil
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		return RateSpec{}, fmt.Errorf("restcore: invalid rate %q", s)
	}

	return FixedRate(v), nil
}

// ---------------------------------------------------------------------------
// RateLimiter
// ---------------------------------------------------------------------------

// RateLimiter admits outgoing requests within a requests/second budget
// using a token bucket: capacity equals the effective rate, tokens refill
// continuously, and excess refill is discarded. Acquire never rejects; it
// only delays.
//
// All bucket state is guarded by one mutex. Recalibration replaces the
// rate and capacity together, so token consumption and refill must be
// serialized against it — a single-writer discipline rather than the
// atomics a fixed-rate bucket could get away with.
type RateLimiter struct {
	clock Clock
	hooks *Hooks

	mu          sync.Mutex
	mode        RateMode
	percent     float64
	rate        float64 // effective tokens per second
	capacity    float64
	tokens      float64
	last        time.Time // last refill instant
	serverLimit float64   // last server-reported plan limit, 0 if never seen
}

// NewRateLimiter creates a limiter for the given spec. Auto and
// percentage modes start at [DefaultBootstrapRate] until the first
// server-reported limit arrives.
func NewRateLimiter(spec RateSpec, clock Clock, hooks *Hooks) *RateLimiter {
	rate := spec.Rate
	if spec.Mode != RateFixed || rate <= 0 {
		rate = DefaultBootstrapRate
	}

	rl := &RateLimiter{
		clock:    clock,
		hooks:    hooks,
		mode:     spec.Mode,
		percent:  spec.Percent,
		rate:     rate,
		capacity: rate,
		tokens:   rate, // start with a full bucket
		last:     clock.Now(),
	}

	return rl
}

// Acquire consumes one token, suspending the caller until one is
// available. It returns ctx.Err() if the context is cancelled while
// waiting, and nil once a token has been consumed.
func (rl *RateLimiter) Acquire(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		rl.mu.Lock()
		rl.refillLocked()

		if rl.tokens >= 1 {
			rl.tokens--
			rl.mu.Unlock()

			return nil
		}

		// Not enough budget: compute how long until one token refills.
		deficit := 1 - rl.tokens
		wait := time.Duration(deficit / rl.rate * float64(time.Second))
		rl.mu.Unlock()

		if wait < time.Millisecond {
			wait = time.Millisecond
		}

		rl.hooks.emitRateLimited(wait)

		if err := sleepCtx(ctx, rl.clock, wait); err != nil {
			return err
		}
		// Recalibration may have changed the rate while we slept; loop
		// and re-evaluate rather than trusting the computed wait.
	}
}

// Observe feeds a server-reported rate-limit observation back into the
// limiter. Fixed mode ignores observations; percentage mode re-derives
// its rate from a fresh plan limit; auto mode recalibrates to
// remaining/reset, never above the last-known plan limit.
func (rl *RateLimiter) Observe(info RateInfo) {
	if rl.mode == RateFixed {
		return
	}

	rl.mu.Lock()

	if info.Limit > 0 {
		rl.serverLimit = info.Limit
	}

	newRate := rl.rate

	switch rl.mode {
	case RatePercentage:
		if rl.serverLimit > 0 {
			newRate = rl.serverLimit * rl.percent
		}
	case RateAuto:
		reset := info.Reset
		if reset < minResetWindow {
			reset = minResetWindow
		}

		newRate = info.Remaining / reset.Seconds()

		// Stay under the server's plan limit, and keep at least one
		// request per reset window so a drained budget cannot stall
		// the bucket forever.
		if rl.serverLimit > 0 && newRate > rl.serverLimit {
			newRate = rl.serverLimit
		}
		if floor := 1 / reset.Seconds(); newRate < floor {
			newRate = floor
		}
	case RateFixed:
		// Unreachable; handled above.
	}

	changed := newRate > 0 && newRate != rl.rate
	if changed {
		rl.refillLocked()
		rl.rate = newRate
		rl.capacity = newRate

		if rl.tokens > rl.capacity {
			rl.tokens = rl.capacity
		}
	}
	rl.mu.Unlock()

	// Emit outside the lock: hooks may call back into the limiter.
	if changed {
		rl.hooks.emitRateRecalibrated(newRate)
	}
}

// Rate returns the current effective requests/second.
func (rl *RateLimiter) Rate() float64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	return rl.rate
}

// refillLocked adds tokens for the time elapsed since the last refill,
// capped at capacity. Callers must hold rl.mu.
func (rl *RateLimiter) refillLocked() {
	now := rl.clock.Now()

	elapsed := now.Sub(rl.last)
	if elapsed <= 0 {
		return
	}

	rl.tokens += elapsed.Seconds() * rl.rate
	if rl.tokens > rl.capacity {
		rl.tokens = rl.capacity
	}

	rl.last = now
}
