// Package events implements the Status Event Bus (component Q): a
// best-effort publish/subscribe fan-out consumed by the Health & Control
// Surfaces' WebSocket stream and status endpoint. Publishing
// never blocks the caller and never fails; a full subscriber buffer simply
// drops the event.
package events

import "sync"

// GlobalTaskID is the special task ID for subscribing to all task events.
// Subscribers to this ID receive events for every task.
const GlobalTaskID = "*"

// historyLimit bounds how many recent events the bus retains for clients
// that want a snapshot of recent activity without having been connected
// when it happened (the recent events in the GET / status response).
const historyLimit = 64

// Publisher defines the interface for event publishing.
type Publisher interface {
	// Publish sends an event to all subscribers of the task.
	Publish(event Event)
	// Subscribe returns a channel that receives events for the given task.
	// Use GlobalTaskID ("*") to receive events for all tasks.
	Subscribe(taskID string) <-chan Event
	// Unsubscribe removes a subscription channel.
	Unsubscribe(taskID string, ch <-chan Event)
	// Close shuts down the publisher and all subscriptions.
	Close()
}

// Bus is the in-memory Publisher backing agentboard serve: one process,
// one Bus, fanned out to every WebSocket client and to the handful of
// in-process callers (taskrunner, specgen) that publish lifecycle events.
type Bus struct {
	mu          sync.Mutex
	subscribers map[string][]chan Event
	recent      []Event
	counts      map[EventType]int
	bufferSize  int
	closed      bool
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithBufferSize sets the channel buffer size for subscribers.
func WithBufferSize(size int) BusOption {
	return func(b *Bus) {
		b.bufferSize = size
	}
}

// NewMemoryPublisher creates a new in-memory Bus.
func NewMemoryPublisher(opts ...BusOption) *Bus {
	b := &Bus{
		subscribers: make(map[string][]chan Event),
		counts:      make(map[EventType]int),
		bufferSize:  100,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish fans event out to its task's subscribers and to every global
// subscriber, records it in the bus's bounded history, and bumps its
// type's lifetime count. It never blocks: a subscriber whose buffer is
// full simply misses the event.
func (b *Bus) Publish(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	b.recordLocked(event)

	deliver(b.subscribers[event.TaskID], event)
	if event.TaskID != GlobalTaskID {
		deliver(b.subscribers[GlobalTaskID], event)
	}
}

func (b *Bus) recordLocked(event Event) {
	b.counts[event.Type]++
	b.recent = append(b.recent, event)
	if over := len(b.recent) - historyLimit; over > 0 {
		b.recent = b.recent[over:]
	}
}

func deliver(subs []chan Event, event Event) {
	for _, ch := range subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribe returns a channel that receives events for the given task.
func (b *Bus) Subscribe(taskID string) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, b.bufferSize)
	b.subscribers[taskID] = append(b.subscribers[taskID], ch)
	return ch
}

// Unsubscribe removes a subscription channel and closes it.
func (b *Bus) Unsubscribe(taskID string, ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[taskID]
	for i, sub := range subs {
		if sub == ch {
			b.subscribers[taskID] = append(subs[:i], subs[i+1:]...)
			close(sub)
			break
		}
	}
	if len(b.subscribers[taskID]) == 0 {
		delete(b.subscribers, taskID)
	}
}

// Close shuts down the bus and closes every subscription channel.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for taskID, subs := range b.subscribers {
		for _, ch := range subs {
			close(ch)
		}
		delete(b.subscribers, taskID)
	}
}

// Recent returns up to the last historyLimit events published, oldest
// first. The caller must not mutate the returned slice.
func (b *Bus) Recent() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Event, len(b.recent))
	copy(out, b.recent)
	return out
}

// Counts returns the lifetime count of events published per type, for
// the status endpoint's diagnostic surface.
func (b *Bus) Counts() map[EventType]int {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[EventType]int, len(b.counts))
	for t, n := range b.counts {
		out[t] = n
	}
	return out
}

// SubscriberCount returns the number of subscribers for a task.
func (b *Bus) SubscriberCount(taskID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers[taskID])
}

// TaskCount returns the number of tasks with subscribers.
func (b *Bus) TaskCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

// NopPublisher is a no-op Publisher for tests or when the bus is disabled.
type NopPublisher struct{}

func (p *NopPublisher) Publish(event Event) {}

func (p *NopPublisher) Subscribe(taskID string) <-chan Event {
	ch := make(chan Event)
	close(ch)
	return ch
}

func (p *NopPublisher) Unsubscribe(taskID string, ch <-chan Event) {}

func (p *NopPublisher) Close() {}

// NewNopPublisher creates a no-op Publisher.
func NewNopPublisher() *NopPublisher {
	return &NopPublisher{}
}
