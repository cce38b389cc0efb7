package jobs

import (
	"sync"
	"time"
)

// EventType identifies a job lifecycle event.
type EventType string

// Job event types published on the bus.
const (
	EventSubmitted EventType = "submitted"
	EventProgress  EventType = "progress"
	EventCompleted EventType = "completed"
	EventFailed    EventType = "failed"
	EventCancelled EventType = "cancelled"
	EventMissed    EventType = "missed"
)

// Event is a job lifecycle notification delivered to bus subscribers.
type Event struct {
	Type      EventType `json:"type"`
	JobID     string    `json:"job_id"`
	JobName   string    `json:"job_name,omitempty"`
	Progress  float64   `json:"progress,omitempty"`
	Message   string    `json:"message,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// subscriberQueueSize bounds each subscriber's backlog. Slow consumers lose
// their oldest events instead of blocking publishers.
const subscriberQueueSize = 20

// Bus fans job events out to subscribers. Publishing never blocks.
type Bus struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
}

// NewBus creates an event bus with no subscribers.
func NewBus() *Bus {
	return &Bus{subs: make(map[chan Event]struct{})}
}

// Subscribe registers a new subscriber and returns its channel together with
// an unsubscribe function. The channel is closed on unsubscribe.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberQueueSize)

	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber. When a subscriber's queue
// is full the oldest queued event is dropped to make room.
func (b *Bus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subs {
		for {
			select {
			case ch <- event:
			default:
				select {
				case <-ch:
				default:
				}
				continue
			}
			break
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
