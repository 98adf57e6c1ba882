package eventlog

import (
	"fmt"
	"time"

	"netfabric/internal/codec"
	"netfabric/internal/identity"
)

// Event is the atomic unit of truth. Sequence, ContentID, and
// PrevContentID are assigned by the store during Append; everything
// else is supplied by the producer.
type Event struct {
	ID            identity.EventID        `json:"id"`
	AggregateID   identity.AggregateID    `json:"aggregate_id"`
	Sequence      uint64                  `json:"sequence"`
	Kind          string                  `json:"kind"`
	Payload       codec.RawMessage        `json:"payload"`
	ContentID     codec.Hash              `json:"content_id"`
	PrevContentID codec.Hash              `json:"prev_content_id"`
	CorrelationID identity.CorrelationID  `json:"correlation_id"`
	CausationID   identity.CausationID    `json:"causation_id"`
	RecordedAt    time.Time               `json:"recorded_at"`
}

// NewEvent builds an unappended event from a kind, a payload value,
// and the message envelope that identifies it. The payload is encoded
// to canonical CBOR immediately so the bytes hashed at append time are
// the bytes stored.
func NewEvent(aggregate identity.AggregateID, kind string, payload any, env identity.Envelope) (Event, error) {
	raw, err := codec.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s payload: %w", kind, err)
	}
	return Event{
		ID:            identity.EventID(env.ID),
		AggregateID:   aggregate,
		Kind:          kind,
		Payload:       raw,
		CorrelationID: env.CorrelationID,
		CausationID:   env.CausationID,
		RecordedAt:    time.Now().UTC(),
	}, nil
}

// Envelope returns the event's message envelope, used to derive
// follow-up messages caused by this event.
func (e Event) Envelope() identity.Envelope {
	return identity.Envelope{
		ID:            e.ID.MessageID(),
		CorrelationID: e.CorrelationID,
		CausationID:   e.CausationID,
	}
}

// DecodePayload decodes the event payload into v.
func (e Event) DecodePayload(v any) error {
	if err := codec.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload (aggregate %s seq %d): %w", e.Kind, e.AggregateID, e.Sequence, err)
	}
	return nil
}
