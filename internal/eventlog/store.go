package eventlog

import (
	"context"

	"netfabric/internal/codec"
	"netfabric/internal/identity"
)

// Store is the event log contract. One store instance exists per
// deployment; aggregates, the IPAM allocator, and projections all go
// through it.
//
// Append is the only operation that may block on I/O. A batch commits
// atomically or not at all: a partial append is never observable, and
// cancelling the context before Append returns leaves the stream
// either fully advanced or unchanged.
type Store interface {
	// Append validates and persists a batch of events on one stream.
	// expectedVersion must equal the stream's current highest sequence
	// number (0 for a new stream). trigger identifies the command that
	// produced the batch; pass a zero Envelope when the batch is
	// self-caused. The returned events carry their assigned sequence
	// numbers and content identifiers.
	Append(ctx context.Context, aggregateID identity.AggregateID, expectedVersion uint64, trigger identity.Envelope, events []Event) ([]Event, error)

	// Read returns the ordered event stream for one aggregate,
	// verifying the content chain along the way. An empty slice means
	// the aggregate does not exist.
	Read(ctx context.Context, aggregateID identity.AggregateID) ([]Event, error)

	// ReadByCorrelation returns all events sharing a correlation id,
	// across aggregates, ordered by (aggregate id, sequence). Used for
	// cross-aggregate audit; no cross-stream ordering is implied.
	ReadByCorrelation(ctx context.Context, correlationID identity.CorrelationID) ([]Event, error)

	Close() error
}

// ValidateBatch runs the append-time integrity checks shared by all
// store implementations: correlation/causation presence, causation
// reachability (no forward references), and cycle detection over the
// batch working set. known reports whether a message id is already in
// the log.
func ValidateBatch(aggregateID identity.AggregateID, trigger identity.Envelope, events []Event, known func(identity.MessageID) (bool, error)) error {
	// The working set: ids supplied in this batch.
	batch := make(map[identity.MessageID]identity.CausationID, len(events)+1)
	if trigger.ID != "" {
		if !trigger.Valid() {
			return &MissingCorrelationError{AggregateID: aggregateID}
		}
		batch[trigger.ID] = trigger.CausationID
	}
	for i := range events {
		ev := &events[i]
		if ev.ID == "" || ev.CorrelationID == "" || ev.CausationID == "" {
			return &MissingCorrelationError{AggregateID: aggregateID, EventID: ev.ID}
		}
		batch[ev.ID.MessageID()] = ev.CausationID
	}

	for i := range events {
		ev := &events[i]
		cause := identity.MessageID(ev.CausationID)

		// Self-causation marks a root message.
		if cause == ev.ID.MessageID() {
			continue
		}
		if _, ok := batch[cause]; ok {
			continue
		}
		exists, err := known(cause)
		if err != nil {
			return err
		}
		if !exists {
			return &UnknownCausationError{AggregateID: aggregateID, EventID: ev.ID, CausationID: ev.CausationID}
		}
	}

	return detectCycle(aggregateID, batch)
}

// detectCycle walks causation edges within the batch working set.
// Edges leaving the set point at already-persisted messages, which are
// acyclic by induction, so only in-set walks can loop. A self-edge is
// the root anchor, not a cycle.
func detectCycle(aggregateID identity.AggregateID, batch map[identity.MessageID]identity.CausationID) error {
	const (
		visiting = 1
		done     = 2
	)
	state := make(map[identity.MessageID]int, len(batch))

	var walk func(id identity.MessageID) error
	walk = func(id identity.MessageID) error {
		switch state[id] {
		case visiting:
			return &CausationCycleError{AggregateID: aggregateID, MessageID: id}
		case done:
			return nil
		}
		state[id] = visiting

		cause, ok := batch[id]
		if ok && identity.MessageID(cause) != id {
			if _, inSet := batch[identity.MessageID(cause)]; inSet {
				if err := walk(identity.MessageID(cause)); err != nil {
					return err
				}
			}
		}
		state[id] = done
		return nil
	}

	for id := range batch {
		if err := walk(id); err != nil {
			return err
		}
	}
	return nil
}

// Seal assigns sequence numbers and content identifiers to a validated
// batch, chaining onto prev (the content id of the stream's last
// event, or the zero hash for a new stream).
func Seal(events []Event, version uint64, prev codec.Hash) []Event {
	sealed := make([]Event, len(events))
	for i, ev := range events {
		ev.Sequence = version + uint64(i) + 1
		ev.PrevContentID = prev
		ev.ContentID = codec.ChainHash(ev.Kind, ev.Payload, prev)
		prev = ev.ContentID
		sealed[i] = ev
	}
	return sealed
}

// VerifyChain recomputes every content identifier in an ordered stream
// and returns BrokenChainError at the first event whose stored
// identifier does not match.
func VerifyChain(events []Event) error {
	prev := codec.ZeroHash
	for i := range events {
		ev := &events[i]
		if ev.PrevContentID != prev {
			return &BrokenChainError{AggregateID: ev.AggregateID, Sequence: ev.Sequence}
		}
		if codec.ChainHash(ev.Kind, ev.Payload, prev) != ev.ContentID {
			return &BrokenChainError{AggregateID: ev.AggregateID, Sequence: ev.Sequence}
		}
		prev = ev.ContentID
	}
	return nil
}
