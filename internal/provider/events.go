package provider

import (
	"sync"

	"github.com/google/uuid"
)

// EventType names what happened to a provider's data.
type EventType string

const (
	// EventDataChanged is raised by raw change notifications; bursts are expected.
	EventDataChanged EventType = "data_changed"
	// EventDataReady is raised once a refresh has produced a complete result.
	EventDataReady EventType = "data_ready"
)

// Event is delivered to subscribers of one provider.
type Event struct {
	Type EventType
	Root string
}

// Subscription is a receive handle; call Broadcaster.Unsubscribe with its ID.
type Subscription struct {
	ID     string
	Events <-chan Event
}

// Broadcaster is a non-blocking pub/sub channel. A slow subscriber loses
// events instead of stalling the publisher.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]chan Event
	closed      bool
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subscribers: make(map[string]chan Event)}
}

// Subscribe registers a new subscriber.
func (b *Broadcaster) Subscribe() Subscription {
	ch := make(chan Event, 16)
	id := uuid.NewString()
	b.mu.Lock()
	if b.closed {
		close(ch)
	} else {
		b.subscribers[id] = ch
	}
	b.mu.Unlock()
	return Subscription{ID: id, Events: ch}
}

// Unsubscribe removes the subscriber and closes its channel.
func (b *Broadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subscribers[id]; ok {
		delete(b.subscribers, id)
		close(ch)
	}
}

// Publish delivers ev to every subscriber that has room for it.
func (b *Broadcaster) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Count returns the number of subscribers.
func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close unsubscribes everyone; later subscriptions are closed immediately.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for id, ch := range b.subscribers {
		delete(b.subscribers, id)
		close(ch)
	}
}
