package events

import (
	"sync"
	"time"
)

// GlobalTaskID subscribes a channel to events for every task.
const GlobalTaskID = "*"

// Publisher is the event fan-out contract shared by the in-memory
// broadcaster and its database-backed decorator.
type Publisher interface {
	Publish(event Event)
	Subscribe(taskID string) <-chan Event
	Unsubscribe(taskID string, ch <-chan Event)
	Close()
}

// blockingSendTimeout bounds how long Publish waits for a full buffer to
// drain before giving up on a High/Normal priority event, so a stalled
// subscriber can never wedge the engine's hot path indefinitely.
const blockingSendTimeout = 50 * time.Millisecond

// MemoryPublisher is an in-memory Publisher. Low priority events are
// dropped on a full buffer; Normal and High priority events get a bounded
// blocking send first.
type MemoryPublisher struct {
	subscribers map[string][]chan Event
	mu          sync.RWMutex
	bufferSize  int
	closed      bool
}

// PublisherOption configures a MemoryPublisher.
type PublisherOption func(*MemoryPublisher)

// WithBufferSize sets the channel buffer size for new subscribers.
func WithBufferSize(size int) PublisherOption {
	return func(p *MemoryPublisher) { p.bufferSize = size }
}

// NewMemoryPublisher constructs a MemoryPublisher.
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

// Publish sends an event to the task's subscribers and to global
// subscribers.
func (p *MemoryPublisher) Publish(event Event) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return
	}

	for _, ch := range p.subscribers[event.TaskID] {
		p.send(ch, event)
	}
	if event.TaskID != GlobalTaskID {
		for _, ch := range p.subscribers[GlobalTaskID] {
			p.send(ch, event)
		}
	}
}

func (p *MemoryPublisher) send(ch chan Event, event Event) {
	if event.Priority == PriorityLow {
		select {
		case ch <- event:
		default:
		}
		return
	}

	select {
	case ch <- event:
	case <-time.After(blockingSendTimeout):
	}
}

// Subscribe returns a channel receiving events for taskID (or all tasks,
// via GlobalTaskID).
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

// Unsubscribe removes and closes a subscription channel.
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

// Close shuts down the publisher and every subscription channel.
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

// SubscriberCount reports how many subscribers are registered for taskID.
func (p *MemoryPublisher) SubscriberCount(taskID string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.subscribers[taskID])
}

// NopPublisher discards every event; used when the engine runs with
// persistence and broadcast both disabled (e.g. unit tests).
type NopPublisher struct{}

func NewNopPublisher() *NopPublisher                               { return &NopPublisher{} }
func (p *NopPublisher) Publish(event Event)                        {}
func (p *NopPublisher) Subscribe(taskID string) <-chan Event {
	ch := make(chan Event)
	close(ch)
	return ch
}
func (p *NopPublisher) Unsubscribe(taskID string, ch <-chan Event) {}
func (p *NopPublisher) Close()                                     {}
