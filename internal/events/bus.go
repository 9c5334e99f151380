// Package events is the in-process event bus used for cross-cutting
// notifications: suggestion results, asset completion, triggered narrative
// events. The core never consumes its own events; adjoining services
// subscribe.
package events

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Event types published by the workers.
const (
	TypeSuggestionReady = "suggestion_ready"
	TypeAssetReady      = "asset_ready"
	TypeEventTriggered  = "narrative_event_triggered"
)

type Event struct {
	Type      string    `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	Data      any       `json:"data,omitempty"`
	At        time.Time `json:"at"`
}

// Bus fans events out to subscribers. Publish never blocks: a subscriber
// whose buffer is full misses the event (and a warning is logged), so
// subscribers needing completeness must size their buffers accordingly.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]chan Event
	logger *zap.Logger
}

func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		subs:   make(map[int]chan Event),
		logger: logger,
	}
}

// Subscribe registers a buffered subscription. The returned cancel func
// removes it and closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

func (b *Bus) Publish(e Event) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.logger.Warn("event subscriber buffer full, dropping event",
				zap.String("type", e.Type))
		}
	}
}
