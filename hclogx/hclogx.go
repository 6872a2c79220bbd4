// Package hclogx adapts restcore lifecycle hooks to hashicorp/go-hclog
// structured logging. The core itself never logs; embedders who want a
// request/retry log wire these hooks in instead of implementing their
// own observer.
package hclogx

import (
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/skybit/restcore"
)

// Hooks returns a restcore.Hooks value that logs every lifecycle event
// through logger. Requests and responses log at Debug; retries,
// rate-limit waits, and conflict refetches at Warn; recalibrations and
// poll ticks at Debug.
func Hooks(logger hclog.Logger) *restcore.Hooks {
	return &restcore.Hooks{
		OnRequest: func(method, url string) {
			logger.Debug("sending request", "method", method, "url", url)
		},
		OnResponse: func(method, url string, status int, elapsed time.Duration) {
			logger.Debug("received response",
				"method", method, "url", url, "status", status, "elapsed", elapsed)
		},
		OnRetry: func(attempt int, delay time.Duration, err error) {
			logger.Warn("retrying request",
				"attempt", attempt, "delay", delay, "error", err)
		},
		OnRateLimited: func(wait time.Duration) {
			logger.Warn("waiting for rate budget", "wait", wait)
		},
		OnRateRecalibrated: func(rate float64) {
			logger.Debug("rate limit recalibrated", "rate", rate)
		},
		OnConflictRetry: func(ref restcore.ResourceRef, attempt, version int) {
			logger.Warn("version conflict, refetching",
				"resource", ref.String(), "attempt", attempt, "stale_version", version)
		},
		OnPollTick: func(attempt int, status string) {
			logger.Debug("polled async resource", "attempt", attempt, "status", status)
		},
		OnBatchItemDone: func(index int, err error) {
			if err != nil {
				logger.Warn("batch item failed", "index", index, "error", err)

				return
			}

			logger.Debug("batch item done", "index", index)
		},
	}
}
