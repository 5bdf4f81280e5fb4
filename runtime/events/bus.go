// Package events provides a lightweight pub/sub event bus used for session
// observability: logging, metrics and tracing hooks subscribe here, while the
// turn-taking core only publishes.
package events

import (
	"sync"
	"sync/atomic"
)

// Listener is a function that handles events.
type Listener func(*Event)

type registration struct {
	id       uint64
	listener Listener
}

// EventBus manages event distribution to listeners. Delivery is asynchronous
// and a panicking listener never affects the publisher.
type EventBus struct {
	mu              sync.RWMutex
	listeners       map[EventType][]registration
	globalListeners []registration
	nextID          atomic.Uint64
	closed          bool
	inflight        sync.WaitGroup
}

// NewEventBus creates a new event bus.
func NewEventBus() *EventBus {
	return &EventBus{
		listeners: make(map[EventType][]registration),
	}
}

// Subscribe registers a listener for a specific event type and returns a
// function that removes it.
func (eb *EventBus) Subscribe(eventType EventType, listener Listener) (unsubscribe func()) {
	id := eb.nextID.Add(1)

	eb.mu.Lock()
	eb.listeners[eventType] = append(eb.listeners[eventType], registration{id: id, listener: listener})
	eb.mu.Unlock()

	return func() {
		eb.mu.Lock()
		defer eb.mu.Unlock()
		eb.listeners[eventType] = without(eb.listeners[eventType], id)
	}
}

// SubscribeAll registers a listener for all event types and returns a
// function that removes it.
func (eb *EventBus) SubscribeAll(listener Listener) (unsubscribe func()) {
	id := eb.nextID.Add(1)

	eb.mu.Lock()
	eb.globalListeners = append(eb.globalListeners, registration{id: id, listener: listener})
	eb.mu.Unlock()

	return func() {
		eb.mu.Lock()
		defer eb.mu.Unlock()
		eb.globalListeners = without(eb.globalListeners, id)
	}
}

// Publish sends an event to all registered listeners asynchronously.
// Events published after Close are dropped.
func (eb *EventBus) Publish(event *Event) {
	eb.mu.RLock()
	if eb.closed {
		eb.mu.RUnlock()
		return
	}
	typeListeners := eb.listeners[event.Type]
	targets := make([]Listener, 0, len(typeListeners)+len(eb.globalListeners))
	for _, r := range typeListeners {
		targets = append(targets, r.listener)
	}
	for _, r := range eb.globalListeners {
		targets = append(targets, r.listener)
	}
	eb.inflight.Add(1)
	eb.mu.RUnlock()

	go func() {
		defer eb.inflight.Done()
		for _, listener := range targets {
			safeInvoke(listener, event)
		}
	}()
}

// Close stops delivery of new events and waits for in-flight deliveries.
func (eb *EventBus) Close() {
	eb.mu.Lock()
	eb.closed = true
	eb.mu.Unlock()
	eb.inflight.Wait()
}

// Clear removes all listeners (primarily for tests).
func (eb *EventBus) Clear() {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.listeners = make(map[EventType][]registration)
	eb.globalListeners = nil
}

func without(regs []registration, id uint64) []registration {
	out := regs[:0:0]
	for _, r := range regs {
		if r.id != id {
			out = append(out, r)
		}
	}
	return out
}

func safeInvoke(listener Listener, event *Event) {
	defer func() { _ = recover() }()
	listener(event)
}
