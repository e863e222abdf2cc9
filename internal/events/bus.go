// Package events provides the engine's typed publish/subscribe surface.
// Hosts subscribe in-process through Bus; the optional NATS bridge mirrors
// every event onto JetStream subjects for out-of-process consumers.
package events

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Type identifies the kind of engine event
type Type string

const (
	TypeResultCollected   Type = "result.collected"
	TypeCollectionSkipped Type = "collection.skipped"
	TypeTaskCompleted     Type = "task.completed"
	TypeTaskFailed        Type = "task.failed"
	TypeModeSwitched      Type = "mode.switched"
	TypeRuleFired         Type = "rule.fired"
	TypeAlertRaised       Type = "alert.raised"
)

// Event is a single engine event. Payload is the relevant model value
// (CollectionResult, Task, Alert, ...).
type Event struct {
	Type      Type        `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// Handler receives events. Handlers run synchronously on the publishing
// goroutine; slow handlers should hand off to their own goroutine.
type Handler func(Event)

// Bus is an in-process typed event bus with explicit unsubscribe
type Bus struct {
	logger *zap.Logger
	mu     sync.RWMutex
	nextID int
	subs   map[Type]map[int]Handler
	all    map[int]Handler
}

// NewBus creates a new event bus
func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		logger: logger.Named("events"),
		subs:   make(map[Type]map[int]Handler),
		all:    make(map[int]Handler),
	}
}

// Subscribe registers a handler for one event type and returns its
// unsubscribe function
func (b *Bus) Subscribe(t Type, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++

	if b.subs[t] == nil {
		b.subs[t] = make(map[int]Handler)
	}
	b.subs[t][id] = h

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[t], id)
	}
}

// SubscribeAll registers a handler for every event type
func (b *Bus) SubscribeAll(h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.all[id] = h

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.all, id)
	}
}

// Publish delivers an event to all matching subscribers. Delivery order
// between subscribers is unspecified.
func (b *Bus) Publish(t Type, payload interface{}) {
	evt := Event{
		Type:      t,
		Timestamp: time.Now(),
		Payload:   payload,
	}

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs[t])+len(b.all))
	for _, h := range b.subs[t] {
		handlers = append(handlers, h)
	}
	for _, h := range b.all {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(evt)
	}
}
