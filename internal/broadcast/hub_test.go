package broadcast

import (
	"testing"
	"time"
)

// drainOne receives a single event or fails the test after a short wait.
func drainOne(t *testing.T, sub *Subscriber) Event {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		if !ok {
			t.Fatalf("subscriber channel closed unexpectedly")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for event")
	}
	return Event{}
}

func TestRegisterQueuesConnectedHandshake(t *testing.T) {
	hub := NewHub()
	sub := hub.Register()
	defer sub.Close()

	ev := drainOne(t, sub)
	if ev.Name != "connected" {
		t.Fatalf("first event = %q, want connected handshake", ev.Name)
	}
	if hub.Count() != 1 {
		t.Fatalf("count = %d, want 1", hub.Count())
	}
}

func TestPublishReachesAllSubscribers(t *testing.T) {
	hub := NewHub()
	a := hub.Register()
	b := hub.Register()
	defer a.Close()
	defer b.Close()
	drainOne(t, a)
	drainOne(t, b)

	hub.Publish("x", "refresh")

	for _, sub := range []*Subscriber{a, b} {
		ev := drainOne(t, sub)
		if ev.Name != "x" || ev.Payload != "refresh" {
			t.Fatalf("got %+v, want x/refresh", ev)
		}
	}
}

func TestFailedDeliveryIsIsolated(t *testing.T) {
	// Buffer of one and a short send bound: a subscriber that stops
	// draining fails on its second undelivered event.
	hub := NewHub(WithBuffer(1), WithSendTimeout(20*time.Millisecond))
	a := hub.Register()
	b := hub.Register()
	defer b.Close()
	drainOne(t, a)
	drainOne(t, b)

	hub.Publish("x", "refresh")
	drainOne(t, a)
	drainOne(t, b)

	// A's transport fails: it never drains again, so its buffer fills.
	hub.Publish("y", "refresh")
	drainOne(t, b) // b stays healthy

	// A still holds "y" in its buffer; the next publish cannot be
	// delivered to it and must remove exactly A.
	hub.Publish("z", "refresh")
	if ev := drainOne(t, b); ev.Name != "z" {
		t.Fatalf("b got %q, want z", ev.Name)
	}

	if hub.Count() != 1 {
		t.Fatalf("count = %d, want 1 after removing the failed subscriber", hub.Count())
	}
	select {
	case <-a.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("failed subscriber was not closed")
	}
}

func TestUnregisterRemovesSubscriber(t *testing.T) {
	hub := NewHub()
	a := hub.Register()
	b := hub.Register()
	defer b.Close()

	hub.Unregister(a)
	if hub.Count() != 1 {
		t.Fatalf("count = %d, want 1", hub.Count())
	}

	// Closing is terminal and idempotent.
	a.Close()
	hub.Unregister(a)
	if hub.Count() != 1 {
		t.Fatalf("count = %d after repeated close, want 1", hub.Count())
	}

	// Publishing after unregister must not panic or resurrect a.
	hub.Publish("x", "refresh")
	drainOne(t, b)
	drainOne(t, b)
	if hub.Count() != 1 {
		t.Fatalf("count = %d, want 1", hub.Count())
	}
}

func TestIdleTimeoutClosesSubscriber(t *testing.T) {
	hub := NewHub(WithIdleTimeout(30 * time.Millisecond))
	sub := hub.Register()
	drainOne(t, sub)

	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("idle subscriber was not reaped")
	}
	if hub.Count() != 0 {
		t.Fatalf("count = %d, want 0 after idle timeout", hub.Count())
	}
}

func TestDeliveryResetsIdleTimer(t *testing.T) {
	hub := NewHub(WithIdleTimeout(80 * time.Millisecond))
	sub := hub.Register()
	defer sub.Close()
	drainOne(t, sub)

	// Keep delivering below the idle threshold; the subscriber must stay
	// alive well past a single timeout window.
	deadline := time.Now().Add(250 * time.Millisecond)
	for time.Now().Before(deadline) {
		hub.Publish("tick", "refresh")
		drainOne(t, sub)
		time.Sleep(20 * time.Millisecond)
	}

	select {
	case <-sub.Done():
		t.Fatalf("active subscriber was reaped despite deliveries")
	default:
	}
}

func TestConcurrentRegisterPublishUnregister(t *testing.T) {
	hub := NewHub(WithSendTimeout(10 * time.Millisecond))
	done := make(chan struct{})

	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			sub := hub.Register()
			go func() {
				for range sub.Events() {
				}
			}()
			if i%2 == 0 {
				hub.Unregister(sub)
			}
		}
	}()

	for i := 0; i < 200; i++ {
		hub.Publish("churn", "refresh")
	}
	<-done
}
