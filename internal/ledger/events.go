package ledger

import (
	"sync"
	"time"
)

// EventKind names the mutation behind a ChangeEvent.
type EventKind string

const (
	EventForwardSync  EventKind = "forward_sync"
	EventBackwardSync EventKind = "backward_sync"
	EventRecalculated EventKind = "recalculated"
	EventRegistration EventKind = "registration"
)

// ChangeEvent is published after a mutation touched the ledger.
type ChangeEvent struct {
	Kind  EventKind `json:"kind"`
	At    time.Time `json:"at"`
	Count int       `json:"count"` // trades ingested or replayed
}

const subscriberBuffer = 16

// broker fans change events out to subscribers. Slow subscribers drop events.
type broker struct {
	mu   sync.Mutex
	next int
	subs map[int]chan ChangeEvent
}

func newBroker() *broker {
	return &broker{subs: make(map[int]chan ChangeEvent)}
}

func (b *broker) subscribe() (<-chan ChangeEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan ChangeEvent, subscriberBuffer)
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			close(ch)
		})
	}
}

func (b *broker) publish(ev ChangeEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
