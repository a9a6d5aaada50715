// ABOUTME: Bounded single-producer multi-consumer ring for envelope fan-out
// ABOUTME: Slow receivers get a LaggedError and skip ahead instead of blocking senders

package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// DefaultCapacity is the number of envelopes retained for receivers.
const DefaultCapacity = 128

// ErrClosed is returned by Recv once the broadcaster is closed and the
// receiver has drained what was sent before the close, or once the
// receiver itself is closed.
var ErrClosed = errors.New("broadcaster closed")

// LaggedError reports envelopes a receiver missed because it fell more than
// one ring's worth behind the sender.
type LaggedError struct {
	Skipped uint64
}

func (e *LaggedError) Error() string {
	return fmt.Sprintf("receiver lagged, skipped %d events", e.Skipped)
}

// Broadcaster delivers every sent envelope to every receiver subscribed at
// the time of the send. It retains the last capacity envelopes; a receiver
// that falls further behind loses the oldest ones.
type Broadcaster struct {
	mu        sync.Mutex
	ring      []Envelope
	head      uint64 // total envelopes ever sent
	receivers int
	closed    bool
	wake      chan struct{} // closed and replaced on every send
	logger    *slog.Logger
}

// NewBroadcaster creates a broadcaster retaining capacity envelopes. A
// non-positive capacity means DefaultCapacity. Pass nil logger for default.
func NewBroadcaster(capacity int, logger *slog.Logger) *Broadcaster {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		ring:   make([]Envelope, capacity),
		wake:   make(chan struct{}),
		logger: logger.With("component", "event_broadcaster"),
	}
}

// Send publishes env and returns how many receivers were subscribed. Zero
// is a normal outcome. Send never blocks on receivers.
func (b *Broadcaster) Send(env Envelope) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0
	}

	b.ring[b.head%uint64(len(b.ring))] = env
	b.head++
	close(b.wake)
	b.wake = make(chan struct{})
	return b.receivers
}

// Subscribe returns a receiver that sees every envelope sent from now on.
func (b *Broadcaster) Subscribe() *Receiver {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.receivers++
	return &Receiver{b: b, next: b.head}
}

// ReceiverCount returns the number of open receivers.
func (b *Broadcaster) ReceiverCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.receivers
}

// Close stops delivery. Receivers drain what is buffered and then get
// ErrClosed.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	close(b.wake)
	b.logger.Debug("broadcaster closed", "receivers", b.receivers)
}

// Receiver reads envelopes from a Broadcaster. A Receiver must be used by a
// single goroutine; Close may be called from any goroutine.
type Receiver struct {
	b      *Broadcaster
	next   uint64
	closed bool
}

// Recv blocks until the next envelope is available, the receiver lagged,
// the broadcaster closed, or ctx is done.
func (r *Receiver) Recv(ctx context.Context) (Envelope, error) {
	b := r.b
	for {
		b.mu.Lock()
		if r.closed {
			b.mu.Unlock()
			return Envelope{}, ErrClosed
		}

		size := uint64(len(b.ring))
		var oldest uint64
		if b.head > size {
			oldest = b.head - size
		}
		if r.next < oldest {
			skipped := oldest - r.next
			r.next = oldest
			b.mu.Unlock()
			return Envelope{}, &LaggedError{Skipped: skipped}
		}
		if r.next < b.head {
			env := b.ring[r.next%size]
			r.next++
			b.mu.Unlock()
			return env, nil
		}
		if b.closed {
			b.mu.Unlock()
			return Envelope{}, ErrClosed
		}
		wake := b.wake
		b.mu.Unlock()

		select {
		case <-wake:
		case <-ctx.Done():
			return Envelope{}, ctx.Err()
		}
	}
}

// Close detaches the receiver. Later sends no longer count it.
func (r *Receiver) Close() {
	r.b.mu.Lock()
	defer r.b.mu.Unlock()

	if r.closed {
		return
	}
	r.closed = true
	r.b.receivers--
}
