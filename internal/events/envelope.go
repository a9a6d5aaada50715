// ABOUTME: Provenance envelope wrapped around every outward-facing event
// ABOUTME: Carries actor, UTC timestamp, optional correlation id and Lamport stamp

package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/2389/runi-mcp/internal/participant"
)

// Event names emitted by the tool service.
const (
	CollectionCreated = "collection:created"
	CollectionDeleted = "collection:deleted"
	RequestAdded      = "request:added"
	RequestUpdated    = "request:updated"
	RequestExecuted   = "request:executed"
)

// Envelope wraps an event payload with attribution and ordering data.
//
// Lamport is the causal order. A single tool service delivers envelopes in
// stamp order, but consumers merging several sources, or replaying the
// journal, must sort by Lamport rather than rely on arrival order.
type Envelope struct {
	Event         string                        `json:"event,omitempty"`
	Actor         participant.Actor             `json:"actor"`
	Timestamp     string                        `json:"timestamp"`
	CorrelationID string                        `json:"correlation_id,omitempty"`
	Lamport       *participant.LamportTimestamp `json:"lamport,omitempty"`
	Payload       json.RawMessage               `json:"payload"`
}

// NewEnvelope encodes payload and stamps the envelope with the current time.
func NewEnvelope(event string, actor participant.Actor, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encoding %s payload: %w", event, err)
	}
	return Envelope{
		Event:     event,
		Actor:     actor,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   data,
	}, nil
}

// WithCorrelation returns a copy of e carrying the correlation id.
func (e Envelope) WithCorrelation(id string) Envelope {
	e.CorrelationID = id
	return e
}

// WithLamport returns a copy of e carrying ts.
func (e Envelope) WithLamport(ts participant.LamportTimestamp) Envelope {
	e.Lamport = &ts
	return e
}
