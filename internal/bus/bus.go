// Package bus carries daemon events between the sync engine, the network
// monitor and the control surfaces.
package bus

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Bus is an in-process publish/subscribe event bus. Subscribers pick
// events by kind prefix. Publishing never blocks: a subscriber whose
// buffer is full misses the event and the drop is counted.
type Bus struct {
	mu   sync.RWMutex
	subs map[*subscriber]struct{}

	dropped atomic.Uint64
	onDrop  func(kind string)
	now     func() time.Time
}

type subscriber struct {
	prefix string
	ch     chan Event
}

// Option configures a Bus.
type Option func(*Bus)

// WithDropHook calls fn with the event kind whenever a subscriber misses
// an event. fn runs on the publisher's goroutine and must not block.
func WithDropHook(fn func(kind string)) Option {
	return func(b *Bus) { b.onDrop = fn }
}

// WithClock overrides the time source used by Emit.
func WithClock(now func() time.Time) Option {
	return func(b *Bus) { b.now = now }
}

// New creates an event bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		subs: make(map[*subscriber]struct{}),
		now:  time.Now,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Publish delivers evt to every subscriber whose prefix matches evt.Kind.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs {
		if !strings.HasPrefix(evt.Kind, s.prefix) {
			continue
		}
		select {
		case s.ch <- evt:
		default:
			b.dropped.Add(1)
			if b.onDrop != nil {
				b.onDrop(evt.Kind)
			}
		}
	}
}

// Emit publishes an event of the given kind stamped with the bus clock.
func (b *Bus) Emit(kind string, payload any) {
	b.Publish(Event{Kind: kind, Timestamp: b.now(), Payload: payload})
}

// Subscribe returns a channel receiving events whose kind starts with
// prefix, buffered to bufSize, and a function that ends the subscription.
// The channel is never closed; callers stop reading after unsubscribing.
func (b *Bus) Subscribe(prefix string, bufSize int) (<-chan Event, func()) {
	s := &subscriber{prefix: prefix, ch: make(chan Event, bufSize)}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, s)
			b.mu.Unlock()
		})
	}
}

// Subscribers returns the number of live subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped returns how many deliveries were skipped because a subscriber
// was full.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}
