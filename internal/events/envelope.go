package events

import (
	"encoding/json"
	"time"
)

// Envelope is the wire format for every event on the realtime feed,
// durable change notifications and ephemeral broadcasts alike.
type Envelope struct {
	EventType     string          `json:"event_type"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Payload       json.RawMessage `json:"payload"`
}

// NewEnvelope marshals payload and wraps it. Marshal failures are
// returned so callers never publish a half-built event.
func NewEnvelope(eventType, aggregateType, aggregateID string, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventType:     eventType,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		OccurredAt:    time.Now().UTC(),
		Payload:       data,
	}, nil
}
