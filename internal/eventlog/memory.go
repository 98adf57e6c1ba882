package eventlog

import (
	"context"
	"sort"
	"sync"

	"netfabric/internal/codec"
	"netfabric/internal/identity"
)

// MemoryStore is an in-process Store used by tests and embedded
// callers. It applies exactly the same validation as the durable
// store; only persistence differs.
type MemoryStore struct {
	mu       sync.RWMutex
	streams  map[identity.AggregateID][]Event
	messages map[identity.MessageID]struct{}
	poisoned map[identity.AggregateID]string
}

// NewMemoryStore creates an empty in-memory event store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		streams:  make(map[identity.AggregateID][]Event),
		messages: make(map[identity.MessageID]struct{}),
		poisoned: make(map[identity.AggregateID]string),
	}
}

// Append implements Store.
func (s *MemoryStore) Append(ctx context.Context, aggregateID identity.AggregateID, expectedVersion uint64, trigger identity.Envelope, events []Event) ([]Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if reason, ok := s.poisoned[aggregateID]; ok {
		return nil, &StreamPoisonedError{AggregateID: aggregateID, Reason: reason}
	}

	stream := s.streams[aggregateID]
	version := uint64(len(stream))
	if version != expectedVersion {
		return nil, &ConcurrencyConflictError{AggregateID: aggregateID, Expected: expectedVersion, Actual: version}
	}

	known := func(id identity.MessageID) (bool, error) {
		_, ok := s.messages[id]
		return ok, nil
	}
	if err := ValidateBatch(aggregateID, trigger, events, known); err != nil {
		if HaltsStream(err) {
			s.poisoned[aggregateID] = err.Error()
		}
		return nil, err
	}

	prev := codec.ZeroHash
	if len(stream) > 0 {
		prev = stream[len(stream)-1].ContentID
	}
	sealed := Seal(events, version, prev)

	s.streams[aggregateID] = append(stream, sealed...)
	if trigger.ID != "" {
		s.messages[trigger.ID] = struct{}{}
	}
	for i := range sealed {
		s.messages[sealed[i].ID.MessageID()] = struct{}{}
	}

	out := make([]Event, len(sealed))
	copy(out, sealed)
	return out, nil
}

// Read implements Store.
func (s *MemoryStore) Read(ctx context.Context, aggregateID identity.AggregateID) ([]Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	stream := s.streams[aggregateID]
	out := make([]Event, len(stream))
	copy(out, stream)
	s.mu.RUnlock()

	if err := VerifyChain(out); err != nil {
		s.poison(aggregateID, err.Error())
		return nil, err
	}
	return out, nil
}

// ReadByCorrelation implements Store.
func (s *MemoryStore) ReadByCorrelation(ctx context.Context, correlationID identity.CorrelationID) ([]Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Event
	for _, stream := range s.streams {
		for _, ev := range stream {
			if ev.CorrelationID == correlationID {
				out = append(out, ev)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AggregateID != out[j].AggregateID {
			return out[i].AggregateID < out[j].AggregateID
		}
		return out[i].Sequence < out[j].Sequence
	})
	return out, nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) poison(aggregateID identity.AggregateID, reason string) {
	s.mu.Lock()
	s.poisoned[aggregateID] = reason
	s.mu.Unlock()
}

// Corrupt overwrites the payload of one stored event in place. Only
// for tamper-evidence tests.
func (s *MemoryStore) Corrupt(aggregateID identity.AggregateID, sequence uint64, payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stream := s.streams[aggregateID]
	for i := range stream {
		if stream[i].Sequence == sequence {
			stream[i].Payload = payload
			return
		}
	}
}
