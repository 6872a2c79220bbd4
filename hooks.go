package restcore

import "time"

// Hooks holds optional callback functions for client lifecycle events.
// All fields are nil by default; callers set only the hooks they care
// about. Once constructed, a Hooks value must not be mutated — emit
// methods read the function fields without synchronisation, which is safe
// as long as the struct is read-only after initialisation.
//
// Pattern: Observer — decouples event emission from consumers (logging,
// metrics, alerting) without the core knowing about observers. All hooks
// are invoked synchronously at the emission point.
type Hooks struct {
	// OnRequest fires before each attempt is handed to the Transport.
	OnRequest func(method, url string)
	// OnResponse fires after the Transport returns a response,
	// regardless of status code.
	OnResponse func(method, url string, status int, elapsed time.Duration)
	// OnRetry fires before the executor sleeps ahead of a retry.
	// attempt is 1-indexed.
	OnRetry func(attempt int, delay time.Duration, err error)
	// OnRateLimited fires when an Acquire call has to wait for a token.
	OnRateLimited func(wait time.Duration)
	// OnRateRecalibrated fires when observed response headers change the
	// limiter's effective rate.
	OnRateRecalibrated func(rate float64)
	// OnConflictRetry fires when the mutator loses an optimistic-lock
	// race and refetches. attempt is 1-indexed; version is the stale
	// version that was rejected.
	OnConflictRetry func(ref ResourceRef, attempt, version int)
	// OnPollTick fires after each poll observation with the
	// server-reported status.
	OnPollTick func(attempt int, status string)
	// OnBatchItemDone fires as each batch item completes, in completion
	// order. err is nil for successful items.
	OnBatchItemDone func(index int, err error)
}

func (h *Hooks) emitRequest(method, url string) {
	if h.OnRequest != nil {
		h.OnRequest(method, url)
	}
}

func (h *Hooks) emitResponse(method, url string, status int, elapsed time.Duration) {
	if h.OnResponse != nil {
		h.OnResponse(method, url, status, elapsed)
	}
}

func (h *Hooks) emitRetry(attempt int, delay time.Duration, err error) {
	if h.OnRetry != nil {
		h.OnRetry(attempt, delay, err)
	}
}

func (h *Hooks) emitRateLimited(wait time.Duration) {
	if h.OnRateLimited != nil {
		h.OnRateLimited(wait)
	}
}

func (h *Hooks) emitRateRecalibrated(rate float64) {
	if h.OnRateRecalibrated != nil {
		h.OnRateRecalibrated(rate)
	}
}

func (h *Hooks) emitConflictRetry(ref ResourceRef, attempt, version int) {
	if h.OnConflictRetry != nil {
		h.OnConflictRetry(ref, attempt, version)
	}
}

func (h *Hooks) emitPollTick(attempt int, status string) {
	if h.OnPollTick != nil {
		h.OnPollTick(attempt, status)
	}
}

func (h *Hooks) emitBatchItemDone(index int, err error) {
	if h.OnBatchItemDone != nil {
		h.OnBatchItemDone(index, err)
	}
}
