package events

import (
	"sync"
)

// GlobalTaskID is the special task ID for subscribing to all task events.
const GlobalTaskID = "*"

// Publisher defines the interface for event publishing.
type Publisher interface {
	// Publish sends an event to all subscribers of the task.
	Publish(event Event)
	// Subscribe returns a channel that receives events for the given
	// task. Use GlobalTaskID ("*") to receive events for all tasks.
	Subscribe(taskID string) <-chan Event
	// Unsubscribe removes a subscription channel.
	Unsubscribe(taskID string, ch <-chan Event)
	// Close shuts down the publisher and all subscriptions.
	Close()
}

// MemoryPublisher is an in-memory implementation of Publisher.
type MemoryPublisher struct {
	subscribers map[string][]chan Event
	mu          sync.RWMutex
	bufferSize  int
	closed      bool
}

// PublisherOption configures a MemoryPublisher.
type PublisherOption func(*MemoryPublisher)

// WithBufferSize sets the channel buffer size for subscribers.
func WithBufferSize(size int) PublisherOption {
	return func(p *MemoryPublisher) {
		p.bufferSize = size
	}
}

// NewMemoryPublisher creates a new in-memory publisher.
func NewMemoryPublisher(opts ...PublisherOption) *MemoryPublisher {
	p := &MemoryPublisher{
		subscribers: make(map[string][]chan Event),
		bufferSize:  100,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish sends an event to subscribers of the task and to global
// subscribers. Non-blocking: subscribers with full buffers are skipped.
func (p *MemoryPublisher) Publish(event Event) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return
	}

	for _, ch := range p.subscribers[event.TaskID] {
		select {
		case ch <- event:
		default:
		}
	}

	if event.TaskID != GlobalTaskID {
		for _, ch := range p.subscribers[GlobalTaskID] {
			select {
			case ch <- event:
			default:
			}
		}
	}
}

// Subscribe returns a channel that receives events for the given task.
func (p *MemoryPublisher) Subscribe(taskID string) <-chan Event {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, p.bufferSize)
	p.subscribers[taskID] = append(p.subscribers[taskID], ch)
	return ch
}

// Unsubscribe removes a subscription channel.
func (p *MemoryPublisher) Unsubscribe(taskID string, ch <-chan Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	subs := p.subscribers[taskID]
	for i, sub := range subs {
		if sub == ch {
			p.subscribers[taskID] = append(subs[:i], subs[i+1:]...)
			close(sub)
			break
		}
	}

	if len(p.subscribers[taskID]) == 0 {
		delete(p.subscribers, taskID)
	}
}

// Close shuts down the publisher and closes all subscription channels.
func (p *MemoryPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true

	for taskID, subs := range p.subscribers {
		for _, ch := range subs {
			close(ch)
		}
		delete(p.subscribers, taskID)
	}
}

// SubscriberCount returns the number of subscribers for a task.
func (p *MemoryPublisher) SubscriberCount(taskID string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.subscribers[taskID])
}

// NopPublisher is a no-op publisher for when events are disabled.
type NopPublisher struct{}

// NewNopPublisher creates a no-op publisher.
func NewNopPublisher() *NopPublisher {
	return &NopPublisher{}
}

// Publish does nothing.
func (p *NopPublisher) Publish(event Event) {}

// Subscribe returns a closed channel.
func (p *NopPublisher) Subscribe(taskID string) <-chan Event {
	ch := make(chan Event)
	close(ch)
	return ch
}

// Unsubscribe does nothing.
func (p *NopPublisher) Unsubscribe(taskID string, ch <-chan Event) {}

// Close does nothing.
func (p *NopPublisher) Close() {}
