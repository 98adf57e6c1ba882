package eventlog

import (
	"context"
	"errors"
	"sync"
	"testing"

	"netfabric/internal/identity"
)

type testPayload struct {
	Name string `cbor:"name"`
}

// appendOne is a helper that appends a single root-command-caused
// event and returns the sealed result.
func appendOne(t *testing.T, store Store, agg identity.AggregateID, version uint64, kind string) Event {
	t.Helper()
	cmd := identity.NewRootEnvelope()
	ev, err := NewEvent(agg, kind, testPayload{Name: kind}, identity.DerivedEnvelope(cmd))
	if err != nil {
		t.Fatalf("build event: %v", err)
	}
	sealed, err := store.Append(context.Background(), agg, version, cmd, []Event{ev})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	return sealed[0]
}

func TestMemoryStoreAppendRead(t *testing.T) {
	store := NewMemoryStore()
	agg := identity.AggregateID("device-1")

	first := appendOne(t, store, agg, 0, "DeviceRegistered")
	second := appendOne(t, store, agg, 1, "StateTransitioned")

	if first.Sequence != 1 || second.Sequence != 2 {
		t.Errorf("expected sequences 1,2 got %d,%d", first.Sequence, second.Sequence)
	}
	if !first.PrevContentID.IsZero() {
		t.Error("first event must chain from the zero hash")
	}
	if second.PrevContentID != first.ContentID {
		t.Error("second event must chain from the first event's content id")
	}

	events, err := store.Read(context.Background(), agg)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}

	var payload testPayload
	if err := events[0].DecodePayload(&payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Name != "DeviceRegistered" {
		t.Errorf("expected payload name DeviceRegistered, got %s", payload.Name)
	}
}

func TestMemoryStoreConcurrencyConflict(t *testing.T) {
	store := NewMemoryStore()
	agg := identity.AggregateID("device-1")
	appendOne(t, store, agg, 0, "DeviceRegistered")

	cmd := identity.NewRootEnvelope()
	ev, _ := NewEvent(agg, "StateTransitioned", testPayload{}, identity.DerivedEnvelope(cmd))

	_, err := store.Append(context.Background(), agg, 0, cmd, []Event{ev})
	var conflict *ConcurrencyConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConcurrencyConflictError, got %v", err)
	}
	if conflict.Expected != 0 || conflict.Actual != 1 {
		t.Errorf("expected conflict versions 0/1, got %d/%d", conflict.Expected, conflict.Actual)
	}

	// The failed append must not be observable.
	events, err := store.Read(context.Background(), agg)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("expected stream unchanged at 1 event, got %d", len(events))
	}
}

func TestMemoryStoreConcurrentSameVersion(t *testing.T) {
	store := NewMemoryStore()
	agg := identity.AggregateID("device-1")
	appendOne(t, store, agg, 0, "DeviceRegistered")

	const writers = 8
	var wg sync.WaitGroup
	results := make([]error, writers)

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cmd := identity.NewRootEnvelope()
			ev, _ := NewEvent(agg, "StateTransitioned", testPayload{}, identity.DerivedEnvelope(cmd))
			_, results[i] = store.Append(context.Background(), agg, 1, cmd, []Event{ev})
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range results {
		if err == nil {
			winners++
			continue
		}
		var conflict *ConcurrencyConflictError
		if !errors.As(err, &conflict) {
			t.Errorf("loser got unexpected error: %v", err)
		}
	}
	if winners != 1 {
		t.Errorf("expected exactly one winner, got %d", winners)
	}
}

func TestMemoryStoreValidation(t *testing.T) {
	t.Run("missing correlation rejected and stream poisoned", func(t *testing.T) {
		store := NewMemoryStore()
		agg := identity.AggregateID("device-1")
		ev := Event{ID: identity.NewEventID(), AggregateID: agg, Kind: "DeviceRegistered"}

		_, err := store.Append(context.Background(), agg, 0, identity.Envelope{}, []Event{ev})
		var missing *MissingCorrelationError
		if !errors.As(err, &missing) {
			t.Fatalf("expected MissingCorrelationError, got %v", err)
		}

		// Missing identity halts the stream like a cycle does.
		cmd := identity.NewRootEnvelope()
		valid, _ := NewEvent(agg, "DeviceRegistered", testPayload{}, identity.DerivedEnvelope(cmd))
		_, err = store.Append(context.Background(), agg, 0, cmd, []Event{valid})
		var poisoned *StreamPoisonedError
		if !errors.As(err, &poisoned) {
			t.Fatalf("expected StreamPoisonedError after missing correlation, got %v", err)
		}
	})

	t.Run("unknown causation rejected", func(t *testing.T) {
		store := NewMemoryStore()
		agg := identity.AggregateID("device-1")
		ev, _ := NewEvent(agg, "DeviceRegistered", testPayload{}, identity.Envelope{
			ID:            identity.NewMessageID(),
			CorrelationID: "corr-1",
			CausationID:   "never-seen",
		})

		_, err := store.Append(context.Background(), agg, 0, identity.Envelope{}, []Event{ev})
		var unknown *UnknownCausationError
		if !errors.As(err, &unknown) {
			t.Fatalf("expected UnknownCausationError, got %v", err)
		}
		if unknown.CausationID != "never-seen" {
			t.Errorf("expected offending causation id in error, got %s", unknown.CausationID)
		}

		// The cited message may still arrive later, so the stream
		// stays writable.
		cmd := identity.NewRootEnvelope()
		valid, _ := NewEvent(agg, "DeviceRegistered", testPayload{}, identity.DerivedEnvelope(cmd))
		if _, err := store.Append(context.Background(), agg, 0, cmd, []Event{valid}); err != nil {
			t.Fatalf("append after unknown causation rejection: %v", err)
		}
	})

	t.Run("self-caused root accepted", func(t *testing.T) {
		store := NewMemoryStore()
		agg := identity.AggregateID("device-1")
		id := identity.NewMessageID()
		ev, _ := NewEvent(agg, "DeviceRegistered", testPayload{}, identity.Envelope{
			ID:            id,
			CorrelationID: identity.CorrelationID(id),
			CausationID:   identity.CausationID(id),
		})

		sealed, err := store.Append(context.Background(), agg, 0, identity.Envelope{}, []Event{ev})
		if err != nil {
			t.Fatalf("root event rejected: %v", err)
		}
		env := sealed[0].Envelope()
		if !env.IsRoot() {
			t.Error("expected stored event to satisfy root id algebra")
		}
	})

	t.Run("in-batch causation accepted", func(t *testing.T) {
		store := NewMemoryStore()
		agg := identity.AggregateID("device-1")
		cmd := identity.NewRootEnvelope()
		first, _ := NewEvent(agg, "DeviceRegistered", testPayload{}, identity.DerivedEnvelope(cmd))
		second, _ := NewEvent(agg, "InterfaceConfigured", testPayload{}, identity.DerivedEnvelope(first.Envelope()))

		if _, err := store.Append(context.Background(), agg, 0, cmd, []Event{first, second}); err != nil {
			t.Fatalf("in-batch causation rejected: %v", err)
		}
	})

	t.Run("causation cycle rejected and stream poisoned", func(t *testing.T) {
		store := NewMemoryStore()
		agg := identity.AggregateID("device-1")

		idA := identity.NewMessageID()
		idB := identity.NewMessageID()
		evA, _ := NewEvent(agg, "DeviceRegistered", testPayload{}, identity.Envelope{
			ID: idA, CorrelationID: "corr", CausationID: identity.CausationID(idB),
		})
		evB, _ := NewEvent(agg, "InterfaceConfigured", testPayload{}, identity.Envelope{
			ID: idB, CorrelationID: "corr", CausationID: identity.CausationID(idA),
		})

		_, err := store.Append(context.Background(), agg, 0, identity.Envelope{}, []Event{evA, evB})
		var cycle *CausationCycleError
		if !errors.As(err, &cycle) {
			t.Fatalf("expected CausationCycleError, got %v", err)
		}

		// Further writes to the stream must be halted.
		cmd := identity.NewRootEnvelope()
		ev, _ := NewEvent(agg, "DeviceRegistered", testPayload{}, identity.DerivedEnvelope(cmd))
		_, err = store.Append(context.Background(), agg, 0, cmd, []Event{ev})
		var poisoned *StreamPoisonedError
		if !errors.As(err, &poisoned) {
			t.Fatalf("expected StreamPoisonedError after cycle, got %v", err)
		}
	})
}

func TestMemoryStoreTamperEvidence(t *testing.T) {
	store := NewMemoryStore()
	agg := identity.AggregateID("device-1")
	appendOne(t, store, agg, 0, "DeviceRegistered")
	appendOne(t, store, agg, 1, "StateTransitioned")
	appendOne(t, store, agg, 2, "InterfaceConfigured")

	store.Corrupt(agg, 2, []byte{0xa0})

	_, err := store.Read(context.Background(), agg)
	var broken *BrokenChainError
	if !errors.As(err, &broken) {
		t.Fatalf("expected BrokenChainError, got %v", err)
	}
	if broken.Sequence != 2 {
		t.Errorf("expected break detected at sequence 2, got %d", broken.Sequence)
	}
	if !IsIntegrityViolation(err) {
		t.Error("broken chain must classify as integrity violation")
	}

	// Writes are halted once corruption is observed.
	cmd := identity.NewRootEnvelope()
	ev, _ := NewEvent(agg, "StateTransitioned", testPayload{}, identity.DerivedEnvelope(cmd))
	_, err = store.Append(context.Background(), agg, 3, cmd, []Event{ev})
	var poisoned *StreamPoisonedError
	if !errors.As(err, &poisoned) {
		t.Fatalf("expected StreamPoisonedError, got %v", err)
	}
}

func TestMemoryStoreReadByCorrelation(t *testing.T) {
	store := NewMemoryStore()
	cmd := identity.NewRootEnvelope()

	// One operation spanning two aggregates.
	evA, _ := NewEvent("vlan-100", "VlanCreated", testPayload{Name: "a"}, identity.DerivedEnvelope(cmd))
	if _, err := store.Append(context.Background(), "vlan-100", 0, cmd, []Event{evA}); err != nil {
		t.Fatalf("append vlan event: %v", err)
	}
	evB, _ := NewEvent("ipam/10.0.0.0/16", "SubnetAllocated", testPayload{Name: "b"}, identity.DerivedEnvelope(evA.Envelope()))
	if _, err := store.Append(context.Background(), "ipam/10.0.0.0/16", 0, identity.Envelope{}, []Event{evB}); err != nil {
		t.Fatalf("append ipam event: %v", err)
	}

	// Unrelated operation.
	other := identity.NewRootEnvelope()
	evC, _ := NewEvent("device-9", "DeviceRegistered", testPayload{}, identity.DerivedEnvelope(other))
	if _, err := store.Append(context.Background(), "device-9", 0, other, []Event{evC}); err != nil {
		t.Fatalf("append unrelated event: %v", err)
	}

	events, err := store.ReadByCorrelation(context.Background(), cmd.CorrelationID)
	if err != nil {
		t.Fatalf("read by correlation: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 correlated events, got %d", len(events))
	}
	for _, ev := range events {
		if ev.CorrelationID != cmd.CorrelationID {
			t.Errorf("event %s has foreign correlation %s", ev.ID, ev.CorrelationID)
		}
	}
}

func TestVerifyChainRecomputesAll(t *testing.T) {
	store := NewMemoryStore()
	agg := identity.AggregateID("device-1")
	for i := 0; i < 5; i++ {
		appendOne(t, store, agg, uint64(i), "StateTransitioned")
	}

	events, err := store.Read(context.Background(), agg)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if err := VerifyChain(events); err != nil {
		t.Fatalf("chain verification failed on clean stream: %v", err)
	}
}
