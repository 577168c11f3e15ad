package lifecycle

import (
	"sync"
	"time"
)

// EventType classifies session events.
type EventType string

const (
	EventTransition           EventType = "transition"
	EventConfirmationRequired EventType = "confirmation_required"
	EventAutosaved            EventType = "autosaved"
	EventAutosaveFailed       EventType = "autosave_failed"
	EventClosed               EventType = "closed"
)

// Event is published to session subscribers.
type Event struct {
	Type         EventType            `json:"type"`
	Snapshot     Snapshot             `json:"snapshot"`
	Confirmation *ConfirmationRequest `json:"confirmation,omitempty"`
	Error        string               `json:"error,omitempty"`
	Time         time.Time            `json:"time"`
}

const subscriberBuffer = 64

// broker fans events out to subscribers. Slow subscribers lose events
// rather than blocking the session.
type broker struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	next   int
	closed bool
}

func newBroker() *broker {
	return &broker{subs: make(map[int]chan Event)}
}

func (b *broker) subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.next
	b.next++
	b.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
}

func (b *broker) publish(e Event) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	dropped := 0
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			dropped++
		}
	}
	return dropped
}

func (b *broker) close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
