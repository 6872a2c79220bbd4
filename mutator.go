package restcore

import (
	"context"
	"errors"
	"fmt"
)

// DefaultConflictRetries is the number of refetch-and-reapply rounds the
// mutator performs after losing an optimistic-lock race.
const DefaultConflictRetries = 3

// Endpoint describes how one kind of versioned resource is read and
// written on the wire. URL shapes and the placement of the version token
// (header or body) are part of the external API's contract, so they live
// behind this interface; the httpt subpackage provides a REST default.
type Endpoint interface {
	// Get builds the read request for ref.
	Get(ref ResourceRef) Request
	// Put builds the mutation request for ref, carrying the
	// optimistic-lock version observed at fetch time.
	Put(ref ResourceRef, version int, body []byte) Request
}

// MutatorOption configures mutator behavior.
type MutatorOption func(*Mutator)

// WithConflictRetries sets how many refetch-and-reapply rounds follow a
// version conflict before giving up.
func WithConflictRetries(n int) MutatorOption {
	return func(m *Mutator) {
		m.maxRetries = n
	}
}

// WithCodec sets the payload codec. Defaults to [JSONCodec].
func WithCodec(c Codec) MutatorOption {
	return func(m *Mutator) {
		m.codec = c
	}
}

// Mutator performs read-modify-write updates against version-locked
// resources, transparently recovering from lost-update races: a 409 on
// submit discards the stale payload, refetches, and reapplies the
// caller's change to the newer base state.
//
// Mutator holds no mutable state of its own; concurrent updates against
// the same resource are safe precisely because of refetch-on-conflict,
// not because of any ordering the mutator imposes.
type Mutator struct {
	exec       *Executor
	codec      Codec
	maxRetries int
}

// NewMutator creates a Mutator issuing its reads and writes through exec.
func NewMutator(exec *Executor, opts ...MutatorOption) *Mutator {
	m := &Mutator{
		exec:       exec,
		codec:      JSONCodec{},
		maxRetries: DefaultConflictRetries,
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.maxRetries < 0 {
		m.maxRetries = 0
	}

	return m
}

// Fetch reads the current versioned payload for ref.
func Fetch[T any](ctx context.Context, m *Mutator, ep Endpoint, ref ResourceRef) (VersionedPayload[T], error) {
	resp, err := m.exec.Do(ctx, ep.Get(ref))
	if err != nil {
		return VersionedPayload[T]{}, err
	}

	return DecodePayload[T](m.codec, resp.Body)
}

// Update fetches the current payload for ref, applies mutate, and
// submits the result under the fetched version. On a version conflict it
// refetches and reapplies, so mutate must be a pure function of its
// input: it may be invoked several times against successively newer base
// states.
//
// Exhausting the conflict retry budget returns a
// [ConflictExhaustedError] carrying the last observed version. No update
// is ever submitted under a version older than the most recent fetch.
func Update[T any](
	ctx context.Context,
	m *Mutator,
	ep Endpoint,
	ref ResourceRef,
	mutate func(T) (T, error),
) (VersionedPayload[T], error) {
	cur, err := Fetch[T](ctx, m, ep, ref)
	if err != nil {
		return VersionedPayload[T]{}, err
	}

	return UpdateFrom(ctx, m, ep, ref, cur, mutate)
}

// UpdateFrom is [Update] seeded with a payload the caller already holds,
// skipping the initial fetch. The seed must come from a fetch no older
// than this call.
func UpdateFrom[T any](
	ctx context.Context,
	m *Mutator,
	ep Endpoint,
	ref ResourceRef,
	seed VersionedPayload[T],
	mutate func(T) (T, error),
) (VersionedPayload[T], error) {
	var zero VersionedPayload[T]

	cur := seed

	for attempt := 0; ; attempt++ {
		next, err := mutate(cur.Data)
		if err != nil {
			return zero, fmt.Errorf("restcore: mutate: %w", err)
		}

		body, err := EncodePayload(m.codec, VersionedPayload[T]{Sys: cur.Sys, Data: next})
		if err != nil {
			return zero, err
		}

		resp, err := m.exec.Do(ctx, ep.Put(ref, cur.Sys.Version, body))
		if err == nil {
			return DecodePayload[T](m.codec, resp.Body)
		}

		var ce *ConflictError
		if !errors.As(err, &ce) {
			return zero, err
		}

		if attempt >= m.maxRetries {
			return zero, &ConflictExhaustedError{Ref: ref, LastVersion: cur.Sys.Version}
		}

		m.exec.Hooks().emitConflictRetry(ref, attempt+1, cur.Sys.Version)

		// Stale base: discard it and reapply against the current state.
		cur, err = Fetch[T](ctx, m, ep, ref)
		if err != nil {
			return zero, err
		}
	}
}
