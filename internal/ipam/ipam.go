// Package ipam allocates non-overlapping child subnets out of parent
// address blocks. Allocation state lives in the event log: one stream
// per parent block, rebuilt by replay on every call. Selection is
// deterministic (the lowest-addressed free block of the requested
// size always wins), so identical histories produce identical results.
package ipam

import (
	"context"
	"fmt"
	"net/netip"
	"sync"

	"netfabric/internal/domain"
	"netfabric/internal/eventlog"
	"netfabric/internal/identity"
)

// NoAvailableSubnetError is returned when no child block of the
// requested size fits in the parent. Recoverable: the operator
// supplies a larger or alternate parent block.
type NoAvailableSubnetError struct {
	Parent    netip.Prefix
	PrefixLen int
}

func (e *NoAvailableSubnetError) Error() string {
	return fmt.Sprintf("no available /%d subnet in parent block %s", e.PrefixLen, e.Parent)
}

// StreamID returns the event stream key for a parent block.
func StreamID(parent netip.Prefix) identity.AggregateID {
	return identity.AggregateID("ipam/" + parent.Masked().String())
}

// Allocator carves subnets out of parent blocks. Safe for concurrent
// use; requests against the same parent are serialized, requests
// against different parents proceed in parallel.
type Allocator struct {
	store eventlog.Store

	mu    sync.Mutex
	locks map[netip.Prefix]*sync.Mutex
}

// New creates an allocator over the given event store.
func New(store eventlog.Store) *Allocator {
	return &Allocator{
		store: store,
		locks: make(map[netip.Prefix]*sync.Mutex),
	}
}

// Allocate returns the lowest-addressed free /prefixLen block within
// parent and records the allocation, causally linked to cause. Pass a
// zero Envelope when no triggering message exists; the allocation then
// starts its own correlation. The recorded event is returned so the
// caller can publish it or derive follow-up messages from it.
func (a *Allocator) Allocate(ctx context.Context, parent netip.Prefix, prefixLen int, purpose string, owner identity.AggregateID, cause identity.Envelope) (netip.Prefix, eventlog.Event, error) {
	parent = parent.Masked()
	if prefixLen < parent.Bits() || prefixLen > parent.Addr().BitLen() {
		return netip.Prefix{}, eventlog.Event{}, fmt.Errorf("requested prefix length /%d is not valid within parent %s", prefixLen, parent)
	}

	lock := a.parentLock(parent)
	lock.Lock()
	defer lock.Unlock()

	allocated, version, err := a.replay(ctx, parent)
	if err != nil {
		return netip.Prefix{}, eventlog.Event{}, err
	}

	block, ok := firstFree(parent, prefixLen, allocated)
	if !ok {
		return netip.Prefix{}, eventlog.Event{}, &NoAvailableSubnetError{Parent: parent, PrefixLen: prefixLen}
	}

	env := derive(cause)
	ev, err := eventlog.NewEvent(StreamID(parent), domain.KindSubnetAllocated, domain.SubnetAllocated{
		Parent:  parent.String(),
		Block:   block.String(),
		Purpose: purpose,
		Owner:   owner,
	}, env)
	if err != nil {
		return netip.Prefix{}, eventlog.Event{}, err
	}

	sealed, err := a.store.Append(ctx, StreamID(parent), version, cause, []eventlog.Event{ev})
	if err != nil {
		return netip.Prefix{}, eventlog.Event{}, err
	}
	return block, sealed[0], nil
}

// Release returns a block to its parent, recording the release
// causally linked to cause. The block becomes immediately reusable;
// objects already bound to it are not retroactively invalidated.
func (a *Allocator) Release(ctx context.Context, parent, block netip.Prefix, cause identity.Envelope) (eventlog.Event, error) {
	parent = parent.Masked()
	block = block.Masked()

	lock := a.parentLock(parent)
	lock.Lock()
	defer lock.Unlock()

	allocated, version, err := a.replay(ctx, parent)
	if err != nil {
		return eventlog.Event{}, err
	}
	if _, ok := allocated[block]; !ok {
		return eventlog.Event{}, fmt.Errorf("block %s is not allocated under parent %s", block, parent)
	}

	env := derive(cause)
	ev, err := eventlog.NewEvent(StreamID(parent), domain.KindSubnetReleased, domain.SubnetReleased{
		Parent: parent.String(),
		Block:  block.String(),
	}, env)
	if err != nil {
		return eventlog.Event{}, err
	}

	sealed, err := a.store.Append(ctx, StreamID(parent), version, cause, []eventlog.Event{ev})
	if err != nil {
		return eventlog.Event{}, err
	}
	return sealed[0], nil
}

// Allocated returns the current allocation set for a parent block, in
// address order.
func (a *Allocator) Allocated(ctx context.Context, parent netip.Prefix) ([]netip.Prefix, error) {
	allocated, _, err := a.replay(ctx, parent.Masked())
	if err != nil {
		return nil, err
	}
	out := make([]netip.Prefix, 0, len(allocated))
	for block := range allocated {
		out = append(out, block)
	}
	sortPrefixes(out)
	return out, nil
}

func (a *Allocator) parentLock(parent netip.Prefix) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()
	lock, ok := a.locks[parent]
	if !ok {
		lock = &sync.Mutex{}
		a.locks[parent] = lock
	}
	return lock
}

// replay rebuilds the allocation set from the parent's event stream.
func (a *Allocator) replay(ctx context.Context, parent netip.Prefix) (map[netip.Prefix]struct{}, uint64, error) {
	events, err := a.store.Read(ctx, StreamID(parent))
	if err != nil {
		return nil, 0, err
	}

	allocated := make(map[netip.Prefix]struct{})
	var version uint64
	for _, ev := range events {
		switch ev.Kind {
		case domain.KindSubnetAllocated:
			var p domain.SubnetAllocated
			if err := ev.DecodePayload(&p); err != nil {
				return nil, 0, err
			}
			block, err := identity.ParseSubnet(p.Block)
			if err != nil {
				return nil, 0, fmt.Errorf("replay allocation stream %s: %w", StreamID(parent), err)
			}
			allocated[block] = struct{}{}
		case domain.KindSubnetReleased:
			var p domain.SubnetReleased
			if err := ev.DecodePayload(&p); err != nil {
				return nil, 0, err
			}
			block, err := identity.ParseSubnet(p.Block)
			if err != nil {
				return nil, 0, fmt.Errorf("replay allocation stream %s: %w", StreamID(parent), err)
			}
			delete(allocated, block)
		default:
			return nil, 0, fmt.Errorf("unexpected event kind %s in allocation stream %s", ev.Kind, StreamID(parent))
		}
		version = ev.Sequence
	}
	return allocated, version, nil
}

func derive(cause identity.Envelope) identity.Envelope {
	if cause.Valid() {
		return identity.DerivedEnvelope(cause)
	}
	return identity.NewRootEnvelope()
}
