// ABOUTME: Emitter adapter publishing envelopes onto named streams and topics
// ABOUTME: The stream is the event name prefix, e.g. "request" for request:added

package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/2389/runi-mcp/internal/events"
)

// Emitter publishes envelopes to a Broadcaster.
type Emitter struct {
	b *Broadcaster
}

// NewEmitter wraps b.
func NewEmitter(b *Broadcaster) *Emitter { return &Emitter{b: b} }

// Emit sends env on its stream and to matching topic subscribers.
func (e *Emitter) Emit(_ context.Context, env events.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encoding envelope: %w", err)
	}
	ev := Event{Type: env.Event, Data: string(data)}
	e.b.Broadcast(Name(env.Event), ev)
	e.b.BroadcastTopic(env.Event, ev)
	return nil
}

// Name returns the stream an event name belongs to.
func Name(event string) string {
	if i := strings.IndexByte(event, ':'); i > 0 {
		return event[:i]
	}
	return event
}
