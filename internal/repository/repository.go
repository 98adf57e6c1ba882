// Package repository rebuilds aggregates from their event streams and
// saves new events back through the log's optimistic concurrency
// check. Every load produces a private copy; nothing is cached.
package repository

import (
	"context"
	"fmt"

	"netfabric/internal/domain"
	"netfabric/internal/eventlog"
	"netfabric/internal/identity"
)

// AggregateNotFoundError is returned when a stream is empty: no root
// event exists. Recoverable: the caller may choose to create.
type AggregateNotFoundError struct {
	AggregateID identity.AggregateID
}

func (e *AggregateNotFoundError) Error() string {
	return fmt.Sprintf("aggregate %s not found", e.AggregateID)
}

// Repository loads and saves aggregates against one event store.
type Repository struct {
	store eventlog.Store
}

// New creates a repository over the given event store.
func New(store eventlog.Store) *Repository {
	return &Repository{store: store}
}

// LoadDevice replays a device stream from sequence 0.
func (r *Repository) LoadDevice(ctx context.Context, id identity.DeviceID) (*domain.Device, error) {
	events, err := r.store.Read(ctx, id.AggregateID())
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, &AggregateNotFoundError{AggregateID: id.AggregateID()}
	}

	d := domain.NewDevice()
	for _, ev := range events {
		if err := d.Apply(ev); err != nil {
			return nil, fmt.Errorf("replay device %s: %w", id, err)
		}
	}
	return d, nil
}

// SaveDevice appends the device's new events at its loaded version and
// folds the sealed events back in, advancing the version. A
// ConcurrencyConflict from the log is surfaced unchanged; the caller
// reloads and retries. Returns the sealed events as stored.
func (r *Repository) SaveDevice(ctx context.Context, d *domain.Device, trigger identity.Envelope, events []eventlog.Event) ([]eventlog.Event, error) {
	if len(events) == 0 {
		return nil, nil
	}

	sealed, err := r.store.Append(ctx, events[0].AggregateID, d.Version, trigger, events)
	if err != nil {
		return nil, err
	}
	for _, ev := range sealed {
		if err := d.Apply(ev); err != nil {
			return nil, fmt.Errorf("apply saved event %s: %w", ev.ID, err)
		}
	}
	return sealed, nil
}

// LoadNetworkObject replays a network object stream from sequence 0.
func (r *Repository) LoadNetworkObject(ctx context.Context, id identity.NetworkObjectID) (*domain.NetworkObject, error) {
	events, err := r.store.Read(ctx, id.AggregateID())
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, &AggregateNotFoundError{AggregateID: id.AggregateID()}
	}

	n := domain.NewNetworkObject()
	for _, ev := range events {
		if err := n.Apply(ev); err != nil {
			return nil, fmt.Errorf("replay network object %s: %w", id, err)
		}
	}
	return n, nil
}

// SaveNetworkObject appends the object's new events at its loaded
// version, same contract as SaveDevice.
func (r *Repository) SaveNetworkObject(ctx context.Context, n *domain.NetworkObject, trigger identity.Envelope, events []eventlog.Event) ([]eventlog.Event, error) {
	if len(events) == 0 {
		return nil, nil
	}

	sealed, err := r.store.Append(ctx, events[0].AggregateID, n.Version, trigger, events)
	if err != nil {
		return nil, err
	}
	for _, ev := range sealed {
		if err := n.Apply(ev); err != nil {
			return nil, fmt.Errorf("apply saved event %s: %w", ev.ID, err)
		}
	}
	return sealed, nil
}
