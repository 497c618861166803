// Package broadcast fans short change signals out to long-lived subscriber
// connections. Delivery is best-effort and at-most-once per publish per
// subscriber; a subscriber that cannot receive is closed and dropped.
package broadcast

import (
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultIdleTimeout closes subscribers that receive nothing for this
	// long. Zero disables the timeout.
	DefaultIdleTimeout = 15 * time.Minute

	// DefaultSendTimeout bounds how long one delivery attempt may block so
	// a stalled subscriber cannot starve a publish cycle.
	DefaultSendTimeout = 1 * time.Second

	defaultBuffer = 16
)

// ConnectedEvent is the synthetic handshake queued for every new subscriber
// before any domain event.
var ConnectedEvent = Event{Name: "connected", Payload: "listening"}

// Event is a named signal with an opaque string payload.
type Event struct {
	Name    string
	Payload string
}

// Subscriber is a unidirectional event sink. Its lifecycle is
// registered -> active -> closed; closed is terminal.
type Subscriber struct {
	events chan Event
	done   chan struct{}

	hub       *Hub
	closeOnce sync.Once
	idle      *time.Timer
}

// Events is the subscriber's receive channel. It is closed when the
// subscriber leaves the hub for any reason.
func (s *Subscriber) Events() <-chan Event {
	return s.events
}

// Done is closed when the subscriber is closed.
func (s *Subscriber) Done() <-chan struct{} {
	return s.done
}

// Close transitions the subscriber to its terminal state and removes it from
// the hub. Safe to call multiple times and from any goroutine.
func (s *Subscriber) Close() {
	s.closeOnce.Do(func() {
		if s.idle != nil {
			s.idle.Stop()
		}
		s.hub.remove(s)
		close(s.done)
		close(s.events)
	})
}

// Hub holds the live subscriber set. Register, Unregister and Publish may
// race freely: Publish iterates over a snapshot of the set so concurrent
// mutation never corrupts or starves a fan-out cycle.
type Hub struct {
	mu          sync.Mutex
	subscribers map[*Subscriber]struct{}

	idleTimeout time.Duration
	sendTimeout time.Duration
	buffer      int
}

// Option tweaks hub behavior.
type Option func(*Hub)

// WithIdleTimeout overrides the subscriber idle timeout. Zero means
// unbounded, for consumer classes that must never be reaped.
func WithIdleTimeout(d time.Duration) Option {
	return func(h *Hub) { h.idleTimeout = d }
}

// WithSendTimeout overrides the per-delivery blocking bound.
func WithSendTimeout(d time.Duration) Option {
	return func(h *Hub) { h.sendTimeout = d }
}

// WithBuffer sets how many undelivered events a subscriber may queue before
// deliveries to it start failing.
func WithBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

func NewHub(opts ...Option) *Hub {
	h := &Hub{
		subscribers: make(map[*Subscriber]struct{}),
		idleTimeout: DefaultIdleTimeout,
		sendTimeout: DefaultSendTimeout,
		buffer:      defaultBuffer,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register adds a subscriber and queues the connected handshake. The
// returned handle is immediately eligible for publishes.
func (h *Hub) Register() *Subscriber {
	sub := &Subscriber{
		events: make(chan Event, h.buffer),
		done:   make(chan struct{}),
		hub:    h,
	}
	// Buffered channel is empty here, so the handshake cannot fail.
	sub.events <- ConnectedEvent

	if h.idleTimeout > 0 {
		sub.idle = time.AfterFunc(h.idleTimeout, func() {
			slog.Debug("Closing idle subscriber")
			sub.Close()
		})
	}

	h.mu.Lock()
	h.subscribers[sub] = struct{}{}
	total := len(h.subscribers)
	h.mu.Unlock()

	slog.Debug("Subscriber registered", "active", total)
	return sub
}

// Unregister closes and removes a subscriber. Equivalent to sub.Close.
func (h *Hub) Unregister(sub *Subscriber) {
	sub.Close()
}

// Publish attempts delivery of one event to every active subscriber. A
// failed or timed-out delivery closes that subscriber only; the rest of the
// cycle continues. Delivery errors never propagate to the publisher.
func (h *Hub) Publish(name, payload string) {
	event := Event{Name: name, Payload: payload}

	h.mu.Lock()
	snapshot := make([]*Subscriber, 0, len(h.subscribers))
	for sub := range h.subscribers {
		snapshot = append(snapshot, sub)
	}
	h.mu.Unlock()

	delivered := 0
	for _, sub := range snapshot {
		if h.deliver(sub, event) {
			delivered++
		} else {
			slog.Debug("Removing stale subscriber", "event", name)
			sub.Close()
		}
	}

	slog.Debug("Event published", "event", name, "delivered", delivered, "attempted", len(snapshot))
}

// deliver performs one at-most-once delivery attempt, bounded by the send
// timeout. It reports false when the subscriber is closed or its buffer
// stays full past the bound.
func (h *Hub) deliver(sub *Subscriber, event Event) bool {
	// Sending and closing race by design; a send on a closed channel panics,
	// so treat that as the delivery failure it is.
	defer func() { _ = recover() }()

	select {
	case <-sub.done:
		return false
	default:
	}

	timeout := time.NewTimer(h.sendTimeout)
	defer timeout.Stop()

	select {
	case sub.events <- event:
		if sub.idle != nil {
			sub.idle.Reset(h.idleTimeout)
		}
		return true
	case <-sub.done:
		return false
	case <-timeout.C:
		return false
	}
}

// Count returns the number of active subscribers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

func (h *Hub) remove(sub *Subscriber) {
	h.mu.Lock()
	delete(h.subscribers, sub)
	h.mu.Unlock()
}
