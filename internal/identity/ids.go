package identity

import "github.com/google/uuid"

// DeviceID identifies a router or switch aggregate.
type DeviceID string

// NewDeviceID creates a new random device ID.
func NewDeviceID() DeviceID {
	return DeviceID(uuid.NewString())
}

// NetworkObjectID identifies a VLAN or container network aggregate.
type NetworkObjectID string

// NewNetworkObjectID creates a new random network object ID.
func NewNetworkObjectID() NetworkObjectID {
	return NetworkObjectID(uuid.NewString())
}

// AggregateID is the stream key in the event log. Device and network
// object ids convert into it; the IPAM allocator derives its own from
// the parent block.
type AggregateID string

// AggregateID converts a device ID to its stream key.
func (id DeviceID) AggregateID() AggregateID {
	return AggregateID(id)
}

// AggregateID converts a network object ID to its stream key.
func (id NetworkObjectID) AggregateID() AggregateID {
	return AggregateID(id)
}

// MessageID identifies a single message: a command or an event.
// Causation ids always point at a MessageID.
type MessageID string

// NewMessageID creates a new random message ID.
func NewMessageID() MessageID {
	return MessageID(uuid.NewString())
}

// EventID identifies an event in the log. Every EventID is also a
// valid MessageID for causation purposes.
type EventID string

// NewEventID creates a new random event ID.
func NewEventID() EventID {
	return EventID(uuid.NewString())
}

// MessageID returns the event ID as a causation target.
func (id EventID) MessageID() MessageID {
	return MessageID(id)
}

// CorrelationID groups every message belonging to one logical operation.
type CorrelationID string

// CausationID identifies the exact message that produced a message.
type CausationID string

// Envelope carries the identity of a single message: its own id plus
// the correlation/causation pair. Both pair members are mandatory.
type Envelope struct {
	ID            MessageID     `json:"id"`
	CorrelationID CorrelationID `json:"correlation_id"`
	CausationID   CausationID   `json:"causation_id"`
}

// NewRootEnvelope creates the envelope for a root message: its own id
// doubles as both correlation and causation id.
func NewRootEnvelope() Envelope {
	id := NewMessageID()
	return Envelope{
		ID:            id,
		CorrelationID: CorrelationID(id),
		CausationID:   CausationID(id),
	}
}

// DerivedEnvelope creates the envelope for a message produced by parent:
// the correlation id is inherited, the causation id is the parent's
// message id.
func DerivedEnvelope(parent Envelope) Envelope {
	return Envelope{
		ID:            NewMessageID(),
		CorrelationID: parent.CorrelationID,
		CausationID:   CausationID(parent.ID),
	}
}

// IsRoot reports whether the envelope belongs to a root message.
func (e Envelope) IsRoot() bool {
	return string(e.ID) == string(e.CorrelationID) && string(e.ID) == string(e.CausationID)
}

// Valid reports whether the envelope carries all three identifiers.
func (e Envelope) Valid() bool {
	return e.ID != "" && e.CorrelationID != "" && e.CausationID != ""
}
