// Package eventlog defines the append-only, content-addressed event
// store that every aggregate in netfabric is derived from.
//
// # Streams and Ordering
//
// Events are keyed by aggregate id. Within a stream, sequence numbers
// are assigned by the store starting at 1 and the expected-version
// check on Append enforces a strict total order: an append racing a
// concurrent writer fails with ConcurrencyConflictError and leaves the
// stream untouched. Across streams there is no ordering guarantee;
// cross-aggregate history is reconstructed through correlation ids,
// not timestamps.
//
// # Content Addressing
//
// The store computes each event's content identifier at append time:
// a keyed BLAKE3 digest over the event kind, the canonical payload
// bytes, and the previous event's identifier. Read verifies the chain
// and fails with BrokenChainError if any stored event no longer
// reproduces its identifier.
//
// # Causation Validation
//
// Every event must carry a correlation id and a causation id. The
// causation id must point at a message the log can see: the command
// that triggered the batch, another event in the same batch, an event
// already in the log, or the event itself (a root message). Forward
// references are rejected, and a causation cycle inside the batch
// working set fails with CausationCycleError instead of looping.
//
// # Integrity Failures Are Fatal Per Stream
//
// A broken chain or causation cycle marks the stream poisoned: further
// appends fail with StreamPoisonedError until an operator intervenes.
// Integrity violations indicate a bug or tampering, never a business
// outcome, so they are surfaced loudly rather than repaired.
package eventlog
