package eventlog

import (
	"errors"
	"fmt"

	"netfabric/internal/identity"
)

// ConcurrencyConflictError is returned when Append is called with a
// stale expected version. Recoverable: reload the aggregate and retry.
type ConcurrencyConflictError struct {
	AggregateID identity.AggregateID
	Expected    uint64
	Actual      uint64
}

func (e *ConcurrencyConflictError) Error() string {
	return fmt.Sprintf("concurrency conflict on aggregate %s: expected version %d, stream is at %d",
		e.AggregateID, e.Expected, e.Actual)
}

// MissingCorrelationError is returned when an event arrives without a
// correlation or causation id. Integrity violation.
type MissingCorrelationError struct {
	AggregateID identity.AggregateID
	EventID     identity.EventID
}

func (e *MissingCorrelationError) Error() string {
	return fmt.Sprintf("event %s on aggregate %s is missing correlation or causation id", e.EventID, e.AggregateID)
}

// UnknownCausationError is returned when a causation id references a
// message that is neither in the log nor in the batch being appended.
// Integrity violation.
type UnknownCausationError struct {
	AggregateID identity.AggregateID
	EventID     identity.EventID
	CausationID identity.CausationID
}

func (e *UnknownCausationError) Error() string {
	return fmt.Sprintf("event %s on aggregate %s cites unknown causation %s", e.EventID, e.AggregateID, e.CausationID)
}

// CausationCycleError is returned when the causation graph of a batch
// working set contains a cycle. Integrity violation.
type CausationCycleError struct {
	AggregateID identity.AggregateID
	MessageID   identity.MessageID
}

func (e *CausationCycleError) Error() string {
	return fmt.Sprintf("causation cycle detected on aggregate %s through message %s", e.AggregateID, e.MessageID)
}

// BrokenChainError is returned when a stored event no longer
// reproduces its content identifier. Integrity violation.
type BrokenChainError struct {
	AggregateID identity.AggregateID
	Sequence    uint64
}

func (e *BrokenChainError) Error() string {
	return fmt.Sprintf("content chain broken on aggregate %s at sequence %d", e.AggregateID, e.Sequence)
}

// StreamPoisonedError is returned for any append to a stream on which
// an integrity violation was previously detected.
type StreamPoisonedError struct {
	AggregateID identity.AggregateID
	Reason      string
}

func (e *StreamPoisonedError) Error() string {
	return fmt.Sprintf("aggregate %s stream is halted after integrity violation: %s", e.AggregateID, e.Reason)
}

// HaltsStream reports whether a rejected append must poison the
// stream: missing correlation identity and causation cycles halt
// further writes. An unknown causation reference only rejects the
// batch, since the cited message may legitimately be appended later.
func HaltsStream(err error) bool {
	var (
		missing *MissingCorrelationError
		cycle   *CausationCycleError
	)
	return errors.As(err, &missing) || errors.As(err, &cycle)
}

// IsIntegrityViolation reports whether err belongs to the fatal
// per-stream error class, as opposed to recoverable domain outcomes
// like a concurrency conflict.
func IsIntegrityViolation(err error) bool {
	var (
		missing  *MissingCorrelationError
		unknown  *UnknownCausationError
		cycle    *CausationCycleError
		broken   *BrokenChainError
		poisoned *StreamPoisonedError
	)
	return errors.As(err, &missing) ||
		errors.As(err, &unknown) ||
		errors.As(err, &cycle) ||
		errors.As(err, &broken) ||
		errors.As(err, &poisoned)
}
