package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by store lookups that match no record.
var ErrNotFound = errors.New("payment record not found")

// ErrDuplicateRequest is returned when another request holding the same
// idempotency key is still in flight.
var ErrDuplicateRequest = errors.New("duplicate payment request in flight")

// ValidationError reports bad caller input. It is never retried and maps
// to a 400 response.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// AuthFailure means a bearer credential could not be obtained from the
// provider, either because the key/secret was rejected or because retries
// against a transient failure were exhausted.
type AuthFailure struct {
	Err error
}

func (e *AuthFailure) Error() string {
	return fmt.Sprintf("provider authentication failed: %v", e.Err)
}

func (e *AuthFailure) Unwrap() error { return e.Err }

// SubmissionFailure means the push-payment submission did not yield a
// provider reference. Retryable distinguishes timeouts and 5xx responses
// from permanent rejections.
type SubmissionFailure struct {
	Retryable bool
	Code      string
	Err       error
}

func (e *SubmissionFailure) Error() string {
	kind := "permanent"
	if e.Retryable {
		kind = "retryable"
	}
	return fmt.Sprintf("payment submission failed (%s): %v", kind, e.Err)
}

func (e *SubmissionFailure) Unwrap() error { return e.Err }

// MalformedCallback means a result notification was missing required
// fields or was not parseable. It is logged and acknowledged, never
// propagated back to the provider.
type MalformedCallback struct {
	Reason string
}

func (e *MalformedCallback) Error() string {
	return fmt.Sprintf("malformed callback: %s", e.Reason)
}

// StoreFailure means the record store was unavailable. It is the one
// failure surfaced as a 500, since without a durable record the payment
// cannot be tracked.
type StoreFailure struct {
	Op  string
	Err error
}

func (e *StoreFailure) Error() string {
	return fmt.Sprintf("payment store %s failed: %v", e.Op, e.Err)
}

func (e *StoreFailure) Unwrap() error { return e.Err }
