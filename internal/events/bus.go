package events

import (
	"sync"
)

const defaultBufSize = 256

// Bus is a channel-based pub-sub event bus with topic subscriptions and a
// SubscribeAll firehose. Publishing never blocks: a subscriber that falls
// behind loses events rather than stalling the scheduler's hot path.
type Bus struct {
	mu      sync.RWMutex
	subs    map[string][]chan Event
	allSubs []chan Event
	closed  bool
}

// NewBus creates a new event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string][]chan Event)}
}

// Subscribe creates a subscription to a single topic. bufSize <= 0 picks
// the default buffer. The returned channel closes when the bus closes.
func (b *Bus) Subscribe(topic string, bufSize int) <-chan Event {
	return b.add(topic, bufSize)
}

// SubscribeAll creates a subscription that receives events from every
// topic on one channel.
func (b *Bus) SubscribeAll(bufSize int) <-chan Event {
	return b.add("", bufSize)
}

func (b *Bus) add(topic string, bufSize int) <-chan Event {
	if bufSize <= 0 {
		bufSize = defaultBufSize
	}
	ch := make(chan Event, bufSize)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(ch)
		return ch
	}
	if topic == "" {
		b.allSubs = append(b.allSubs, ch)
	} else {
		b.subs[topic] = append(b.subs[topic], ch)
	}
	return ch
}

// Publish delivers an event to every subscriber of the topic and every
// firehose subscriber. Full channels drop the event for that subscriber.
func (b *Bus) Publish(topic string, event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	for _, ch := range b.subs[topic] {
		offer(ch, event)
	}
	for _, ch := range b.allSubs {
		offer(ch, event)
	}
}

func offer(ch chan Event, event Event) {
	select {
	case ch <- event:
	default:
		// Subscriber full; drop rather than block.
	}
}

// Close closes the bus and all subscriber channels. Idempotent.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for _, channels := range b.subs {
		for _, ch := range channels {
			close(ch)
		}
	}
	for _, ch := range b.allSubs {
		close(ch)
	}
}
