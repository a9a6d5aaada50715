// ABOUTME: Named-stream and topic-filtered fan-out for SSE subscribers
// ABOUTME: Full subscriber buffers drop events; closed subscriptions are swept lazily

package stream

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

const (
	// DefaultBufferSize is the channel buffer for each subscriber.
	DefaultBufferSize = 256
)

// Event is one message delivered to stream subscribers.
type Event struct {
	Type string `json:"event_type"`
	Data string `json:"data"`
}

// Subscription is a single subscriber. Events arrive on C until the
// subscription is closed; C itself is never closed, so readers select on
// Done as well.
type Subscription struct {
	ID     string
	Stream string // empty for topic subscriptions
	C      <-chan Event

	ch     chan Event
	done   chan struct{}
	once   sync.Once
	filter *TopicFilter
}

func newSubscription(stream string, filter *TopicFilter, size int) *Subscription {
	ch := make(chan Event, size)
	return &Subscription{
		ID:     uuid.Must(uuid.NewV7()).String(),
		Stream: stream,
		C:      ch,
		ch:     ch,
		done:   make(chan struct{}),
		filter: filter,
	}
}

// Close marks the subscription closed. The broadcaster drops it on the next
// broadcast or cleanup sweep.
func (s *Subscription) Close() {
	s.once.Do(func() { close(s.done) })
}

// Done is closed once the subscription is closed.
func (s *Subscription) Done() <-chan struct{} { return s.done }

func (s *Subscription) isClosed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Broadcaster fans events out to subscribers of named streams and to
// subscribers holding topic filters.
type Broadcaster struct {
	mu         sync.RWMutex
	streams    map[string]map[string]*Subscription // stream -> subID -> sub
	topics     map[string]*Subscription            // subID -> sub
	bufferSize int
	logger     *slog.Logger
}

// NewBroadcaster creates a broadcaster. A non-positive bufferSize means
// DefaultBufferSize. Pass nil logger for default.
func NewBroadcaster(bufferSize int, logger *slog.Logger) *Broadcaster {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		streams:    make(map[string]map[string]*Subscription),
		topics:     make(map[string]*Subscription),
		bufferSize: bufferSize,
		logger:     logger.With("component", "stream_broadcaster"),
	}
}

// Subscribe registers a subscriber for a named stream. The subscription is
// closed automatically when ctx is cancelled.
func (b *Broadcaster) Subscribe(ctx context.Context, stream string) *Subscription {
	sub := newSubscription(stream, nil, b.bufferSize)

	b.mu.Lock()
	if _, ok := b.streams[stream]; !ok {
		b.streams[stream] = make(map[string]*Subscription)
	}
	b.streams[stream][sub.ID] = sub
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "stream", stream, "sub_id", sub.ID)
	b.closeOnDone(ctx, sub)
	return sub
}

// SubscribeTopics registers a subscriber receiving every topic broadcast
// whose topic matches one of patterns. An empty list or "*" matches all.
func (b *Broadcaster) SubscribeTopics(ctx context.Context, patterns []string) (*Subscription, error) {
	filter, err := NewTopicFilter(patterns)
	if err != nil {
		return nil, err
	}
	sub := newSubscription("", filter, b.bufferSize)

	b.mu.Lock()
	b.topics[sub.ID] = sub
	b.mu.Unlock()

	b.logger.Debug("topic subscriber added", "patterns", filter.Patterns(), "sub_id", sub.ID)
	b.closeOnDone(ctx, sub)
	return sub, nil
}

func (b *Broadcaster) closeOnDone(ctx context.Context, sub *Subscription) {
	if ctx.Done() == nil {
		return
	}
	go func() {
		select {
		case <-ctx.Done():
			b.Unsubscribe(sub.ID)
		case <-sub.done:
		}
	}()
}

// Broadcast delivers ev to every subscriber of stream and returns how many
// received it. Subscribers with full buffers miss the event.
func (b *Broadcaster) Broadcast(stream string, ev Event) int {
	b.mu.RLock()
	subs := b.streams[stream]
	targets := make([]*Subscription, 0, len(subs))
	for _, sub := range subs {
		targets = append(targets, sub)
	}
	b.mu.RUnlock()

	return b.deliver(targets, ev, "stream", stream)
}

// BroadcastTopic delivers ev to every topic subscriber whose filter matches
// topic and returns how many received it.
func (b *Broadcaster) BroadcastTopic(topic string, ev Event) int {
	b.mu.RLock()
	targets := make([]*Subscription, 0, len(b.topics))
	for _, sub := range b.topics {
		if sub.filter.Match(topic) {
			targets = append(targets, sub)
		}
	}
	b.mu.RUnlock()

	return b.deliver(targets, ev, "topic", topic)
}

// deliver sends without holding the lock, then removes any subscriptions
// found closed along the way.
func (b *Broadcaster) deliver(targets []*Subscription, ev Event, kind, name string) int {
	sent := 0
	var closed []*Subscription
	for _, sub := range targets {
		if sub.isClosed() {
			closed = append(closed, sub)
			continue
		}
		select {
		case sub.ch <- ev:
			sent++
		default:
			b.logger.Warn("dropped event for slow subscriber",
				kind, name,
				"sub_id", sub.ID,
				"event_type", ev.Type)
		}
	}

	if len(closed) > 0 {
		b.mu.Lock()
		for _, sub := range closed {
			b.removeLocked(sub)
		}
		b.mu.Unlock()
	}
	return sent
}

func (b *Broadcaster) removeLocked(sub *Subscription) {
	if sub.filter != nil {
		delete(b.topics, sub.ID)
		return
	}
	subs, ok := b.streams[sub.Stream]
	if !ok {
		return
	}
	delete(subs, sub.ID)
	if len(subs) == 0 {
		delete(b.streams, sub.Stream)
	}
}

// Unsubscribe closes and removes a subscription. It reports whether the id
// was known.
func (b *Broadcaster) Unsubscribe(subID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.topics[subID]
	if !ok {
		for _, subs := range b.streams {
			if s, found := subs[subID]; found {
				sub, ok = s, true
				break
			}
		}
	}
	if !ok {
		return false
	}

	sub.Close()
	b.removeLocked(sub)
	b.logger.Debug("subscriber removed", "stream", sub.Stream, "sub_id", subID)
	return true
}

// CleanupClosed removes every closed subscription and returns how many were
// removed.
func (b *Broadcaster) CleanupClosed() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	removed := 0
	for _, subs := range b.streams {
		for _, sub := range subs {
			if sub.isClosed() {
				b.removeLocked(sub)
				removed++
			}
		}
	}
	for _, sub := range b.topics {
		if sub.isClosed() {
			b.removeLocked(sub)
			removed++
		}
	}
	return removed
}

// SubscriberCount returns the number of subscriptions registered on stream.
func (b *Broadcaster) SubscriberCount(stream string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.streams[stream])
}

// TotalSubscriptions returns the number of stream and topic subscriptions.
func (b *Broadcaster) TotalSubscriptions() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := len(b.topics)
	for _, subs := range b.streams {
		n += len(subs)
	}
	return n
}

// Close closes and removes every subscription.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for stream, subs := range b.streams {
		for _, sub := range subs {
			sub.Close()
		}
		delete(b.streams, stream)
	}
	for id, sub := range b.topics {
		sub.Close()
		delete(b.topics, id)
	}

	b.logger.Debug("broadcaster closed")
}
