package events

import (
	"sync"
	"time"
)

// Event is one notification fanned out to subscribers.
type Event struct {
	Kind    string    `json:"kind"`
	Payload any       `json:"payload,omitempty"`
	At      time.Time `json:"at"`
}

// Broker fans events out to subscribers. Slow subscribers miss events rather
// than block publishers.
type Broker struct {
	mu        sync.RWMutex
	listeners map[chan Event]struct{}
	buffer    int
}

func NewBroker(buffer int) *Broker {
	if buffer <= 0 {
		buffer = 16
	}
	return &Broker{listeners: make(map[chan Event]struct{}), buffer: buffer}
}

func (b *Broker) Publish(kind string, payload any) {
	ev := Event{Kind: kind, Payload: payload, At: time.Now().UTC()}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.listeners {
		select {
		case ch <- ev:
		default:
			// drop for slow listener
		}
	}
}

// Subscribe returns a channel of events and a function that closes it.
func (b *Broker) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, b.buffer)
	b.mu.Lock()
	b.listeners[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.listeners, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
}

func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}
