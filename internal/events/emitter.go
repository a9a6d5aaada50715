// ABOUTME: Emitter port for publishing envelopes plus its in-process adapters
// ABOUTME: Recorder captures events for tests; Multi fans one emit out to many sinks

package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// Emitter publishes envelopes to some sink.
type Emitter interface {
	Emit(ctx context.Context, env Envelope) error
}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(ctx context.Context, env Envelope) error

func (f EmitterFunc) Emit(ctx context.Context, env Envelope) error { return f(ctx, env) }

// Discard drops every envelope.
var Discard Emitter = EmitterFunc(func(context.Context, Envelope) error { return nil })

// Multi forwards each envelope to every emitter and joins their errors.
type Multi []Emitter

func (m Multi) Emit(ctx context.Context, env Envelope) error {
	var errs []error
	for _, e := range m {
		if err := e.Emit(ctx, env); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// BroadcastEmitter publishes envelopes on a ring Broadcaster for SSE relay.
type BroadcastEmitter struct {
	b      *Broadcaster
	logger *slog.Logger
}

// NewBroadcastEmitter wraps b. Pass nil logger for default.
func NewBroadcastEmitter(b *Broadcaster, logger *slog.Logger) *BroadcastEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &BroadcastEmitter{b: b, logger: logger.With("component", "broadcast_emitter")}
}

// Emit never fails; having no connected receivers is normal.
func (e *BroadcastEmitter) Emit(_ context.Context, env Envelope) error {
	n := e.b.Send(env)
	e.logger.Debug("event broadcast", "event", env.Event, "receivers", n)
	return nil
}

// Recorder captures envelopes in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Envelope
}

func (r *Recorder) Emit(_ context.Context, env Envelope) error {
	r.mu.Lock()
	r.events = append(r.events, env)
	r.mu.Unlock()
	return nil
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Envelope, len(r.events))
	copy(out, r.events)
	return out
}

// Named returns the recorded envelopes whose event name matches.
func (r *Recorder) Named(event string) []Envelope {
	var out []Envelope
	for _, env := range r.Events() {
		if env.Event == event {
			out = append(out, env)
		}
	}
	return out
}

// Reset discards everything recorded.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}
