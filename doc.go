// Package restcore provides a resilient client core for versioned,
// rate-limited REST APIs.
//
// The central type is Executor, which routes every HTTP call through a
// shared token-bucket RateLimiter and a retry loop with backoff. The
// layers above build on it: Mutator performs optimistic-concurrency
// updates with refetch-on-conflict, Poller waits for asynchronous
// server-side operations to reach a terminal state, and RunBatch
// executes large collections of independent calls under a hard
// concurrency cap.
package restcore
