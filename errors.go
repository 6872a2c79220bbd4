package restcore

import (
	"errors"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// ---------------------------------------------------------------------------
// Error classification wrappers
// ---------------------------------------------------------------------------.

type (
	// ClientError identifies errors produced by the client core itself,
	// as opposed to errors from caller-supplied functions.
	//nolint:iface // exported for use in tests and consumer error
	// classification.
	ClientError interface {
		error
		// IsClientError reports whether this error originates from the
		// client core.
		IsClientError() bool
	}

	// transientError marks a wrapped error as transient (retriable).
	transientError struct {
		err error
	}

	// permanentError marks a wrapped error as permanent (non-retriable).
	permanentError struct {
		err error
	}

	// clientError is the concrete type backing all sentinel errors.
	clientError string
)

// Sentinel client errors.
var (
	// ErrRetriesExhausted is returned when all retry attempts for a request
	// have been used.
	ErrRetriesExhausted error = clientError("retries exhausted")
	// ErrConflictRetriesExhausted is returned when a versioned update keeps
	// losing the optimistic-lock race past its retry budget.
	ErrConflictRetriesExhausted error = clientError("version conflict retries exhausted")
	// ErrPollFailed is returned when an asynchronous resource reaches a
	// failure state.
	ErrPollFailed error = clientError("asynchronous operation failed")
	// ErrPollTimedOut is returned when an asynchronous resource does not
	// reach a terminal state within the polling bounds.
	ErrPollTimedOut error = clientError("asynchronous operation timed out")
)

func (e *transientError) Error() string { return "transient: " + e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func (e *permanentError) Error() string { return "permanent: " + e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func (e clientError) Error() string { return string(e) }

// IsClientError reports whether the error is a client infrastructure error.
func (clientError) IsClientError() bool { return true }

// Transient wraps err to mark it as a transient (retriable) error.
// Returns nil if err is nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}

	return &transientError{err: err}
}

// Permanent wraps err to mark it as a permanent (non-retriable) error.
// Returns nil if err is nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}

	return &permanentError{err: err}
}

// IsTransient reports whether err is transient. Unclassified (unwrapped)
// errors are treated as transient. Returns false for nil.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	// Explicitly permanent errors are not transient.
	var pe *permanentError

	return !errors.As(err, &pe)
}

// IsPermanent reports whether err was explicitly marked as permanent.
// Returns false for nil and for unclassified errors.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}

	var pe *permanentError

	return errors.As(err, &pe)
}

// ---------------------------------------------------------------------------
// API error taxonomy
// ---------------------------------------------------------------------------

type (
	// FieldError is one field-level detail attached to a ValidationError.
	FieldError struct {
		// Path identifies the offending field, e.g. "fields.title".
		Path string `json:"path"`
		// Details is the server-provided description of the problem.
		Details string `json:"details"`
	}

	// ValidationError reports a request the server rejected as malformed
	// or semantically invalid (400/422). Permanent.
	ValidationError struct {
		Status  int
		Message string
		Fields  []FieldError
	}

	// AuthError reports a missing or invalid credential (401). Permanent.
	AuthError struct {
		Message string
	}

	// PermissionError reports a credential lacking access to the target
	// resource (403). Permanent.
	PermissionError struct {
		Message string
	}

	// NotFoundError reports a resource that does not exist (404). Permanent.
	NotFoundError struct {
		Message string
	}

	// ConflictError reports an optimistic-lock version mismatch (409).
	// The Executor never retries it; Mutator recovers by refetching.
	ConflictError struct {
		Message string
	}

	// RateLimitedError reports a request rejected by the server's rate
	// budget (429). Reset is the server-advised wait before the budget
	// refills; zero when the server gave no advice. Transient.
	RateLimitedError struct {
		Reset time.Duration
	}

	// ServerError reports a 5xx response. Transient.
	ServerError struct {
		Status  int
		Message string
	}

	// TransportError reports a network-level failure (timeout, connection
	// reset) before any response arrived. Transient.
	TransportError struct {
		Err error
	}

	// ConflictExhaustedError is returned by Mutator when every conflict
	// retry lost the optimistic-lock race. LastVersion is the newest
	// version the mutator observed before giving up.
	ConflictExhaustedError struct {
		Ref         ResourceRef
		LastVersion int
	}

	// PollFailedError is returned by Poller when the observed resource
	// reaches a failure state. Failure states do not self-heal, so the
	// poller surfaces this on the first failed tick.
	PollFailedError struct {
		Status   string
		Attempts int
	}

	// PollTimeoutError is returned by Poller when the resource never
	// reaches a terminal state within the configured bounds.
	PollTimeoutError struct {
		LastStatus string
		Attempts   int
		Elapsed    time.Duration
	}
)

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("validation failed (status %d): %s", e.Status, e.Message)
	}

	paths := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		paths = append(paths, f.Path)
	}

	return fmt.Sprintf(
		"validation failed (status %d): %s [%s]",
		e.Status, e.Message, strings.Join(paths, ", "),
	)
}

func (e *AuthError) Error() string {
	return "authentication failed: " + e.Message
}

func (e *PermissionError) Error() string {
	return "permission denied: " + e.Message
}

func (e *NotFoundError) Error() string {
	return "not found: " + e.Message
}

func (e *ConflictError) Error() string {
	return "version conflict: " + e.Message
}

func (e *RateLimitedError) Error() string {
	if e.Reset <= 0 {
		return "rate limited"
	}

	return fmt.Sprintf("rate limited, reset in %s", e.Reset)
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error (status %d): %s", e.Status, e.Message)
}

func (e *TransportError) Error() string {
	return "transport failure: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *ConflictExhaustedError) Error() string {
	return fmt.Sprintf(
		"%s: %s at version %d",
		ErrConflictRetriesExhausted, e.Ref, e.LastVersion,
	)
}

// Unwrap lets errors.Is match ErrConflictRetriesExhausted.
func (e *ConflictExhaustedError) Unwrap() error { return ErrConflictRetriesExhausted }

func (e *PollFailedError) Error() string {
	return fmt.Sprintf("%s: status %q after %d polls", ErrPollFailed, e.Status, e.Attempts)
}

// Unwrap lets errors.Is match ErrPollFailed.
func (e *PollFailedError) Unwrap() error { return ErrPollFailed }

func (e *PollTimeoutError) Error() string {
	return fmt.Sprintf(
		"%s: still %q after %d polls (%s)",
		ErrPollTimedOut, e.LastStatus, e.Attempts, e.Elapsed,
	)
}

// Unwrap lets errors.Is match ErrPollTimedOut.
func (e *PollTimeoutError) Unwrap() error { return ErrPollTimedOut }

func (*ValidationError) IsClientError() bool        { return true }
func (*AuthError) IsClientError() bool              { return true }
func (*PermissionError) IsClientError() bool        { return true }
func (*NotFoundError) IsClientError() bool          { return true }
func (*ConflictError) IsClientError() bool          { return true }
func (*RateLimitedError) IsClientError() bool       { return true }
func (*ServerError) IsClientError() bool            { return true }
func (*TransportError) IsClientError() bool         { return true }
func (*ConflictExhaustedError) IsClientError() bool { return true }
func (*PollFailedError) IsClientError() bool        { return true }
func (*PollTimeoutError) IsClientError() bool       { return true }

// ---------------------------------------------------------------------------
// Response classification
// ---------------------------------------------------------------------------

// errorBody is the wire shape of an API error document.
type errorBody struct {
	Message string `json:"message"`
	Details struct {
		Errors []FieldError `json:"errors"`
	} `json:"details"`
}

// decodeErrorBody extracts the server's error message and field details.
// A body that is not a JSON error document yields empty values.
func decodeErrorBody(body []byte) errorBody {
	var eb errorBody
	if len(body) > 0 {
		_ = json.Unmarshal(body, &eb)
	}

	return eb
}

// ClassifyResponse maps a non-2xx response into the client error taxonomy,
// wrapped with its transient/permanent classification. reset is the
// server-advised rate-limit reset for 429 responses, zero when unknown.
// Returns nil for 2xx.
func ClassifyResponse(resp Response, reset time.Duration) error {
	if resp.Status >= 200 && resp.Status < 300 {
		return nil
	}

	eb := decodeErrorBody(resp.Body)

	switch {
	case resp.Status == 400 || resp.Status == 422:
		return Permanent(&ValidationError{
			Status:  resp.Status,
			Message: eb.Message,
			Fields:  eb.Details.Errors,
		})
	case resp.Status == 401:
		return Permanent(&AuthError{Message: eb.Message})
	case resp.Status == 403:
		return Permanent(&PermissionError{Message: eb.Message})
	case resp.Status == 404:
		return Permanent(&NotFoundError{Message: eb.Message})
	case resp.Status == 409:
		// Not retried by the Executor; Mutator recovers via refetch.
		return Permanent(&ConflictError{Message: eb.Message})
	case resp.Status == 429:
		return Transient(&RateLimitedError{Reset: reset})
	case resp.Status >= 500:
		return Transient(&ServerError{Status: resp.Status, Message: eb.Message})
	default:
		// Unexpected status family: surface permanently rather than
		// burning retries on something we cannot interpret.
		return Permanent(&ServerError{Status: resp.Status, Message: eb.Message})
	}
}
