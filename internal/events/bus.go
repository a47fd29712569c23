// Package events provides the fleet-wide pub/sub bus. The manager emits one
// event per country lifecycle transition; the admin HTTP surface's /events
// websocket endpoint subscribes to it instead of polling the manager
// directly.
package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Type identifies a fleet event.
type Type string

const (
	CountryStarting Type = "country_starting"
	CountryStarted  Type = "country_started"
	CountryCrashed  Type = "country_crashed"
	CountryStopped  Type = "country_stopped"
)

// Event is a single fleet lifecycle notification.
type Event struct {
	Type        Type                   `json:"type"`
	CountryCode string                 `json:"country_code"`
	Timestamp   time.Time              `json:"timestamp"`
	Data        map[string]interface{} `json:"data,omitempty"`
}

// Handler receives published events. Handlers run concurrently and must not
// block the bus.
type Handler func(*Event)

// Subscription identifies a registered handler so it can be removed later.
type Subscription struct {
	id uint64
}

// Bus is a fan-out pub/sub hub with no buffering: every handler runs in its
// own goroutine so a slow subscriber never delays another, or the publisher.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[uint64]Handler
	nextID      uint64
	log         zerolog.Logger
}

// NewBus builds an empty bus.
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		subscribers: make(map[uint64]Handler),
		log:         log.With().Str("component", "events").Logger(),
	}
}

// Subscribe registers a handler invoked on every published event.
func (b *Bus) Subscribe(handler Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subscribers[id] = handler
	return Subscription{id: id}
}

// Unsubscribe removes a previously registered handler. Safe to call twice.
func (b *Bus) Unsubscribe(sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subscribers, sub.id)
}

// Publish fans an event out to every subscriber.
func (b *Bus) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subscribers))
	for _, h := range b.subscribers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		go h(&evt)
	}

	b.log.Debug().
		Str("event_type", string(evt.Type)).
		Str("country_code", evt.CountryCode).
		Int("subscribers", len(handlers)).
		Msg("event published")
}
