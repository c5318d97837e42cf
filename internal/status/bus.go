// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package status is the status channel between the overlay controller and
// control surfaces.
//
// The Bus is an in-process fan-out: Publish never blocks and never fails,
// even with zero subscribers. Each subscriber receives events in publish
// order through its own buffered channel. A subscriber that falls a full
// buffer behind is evicted and its channel closed, so a stalled control
// surface can never stall the controller.
//
// Events crossing a process boundary are encoded with a Codec (JSON or CBOR)
// and streamed by the server package over a websocket.
package status

import (
	"sync"
)

// DefaultBuffer is the per-subscriber queue length.
const DefaultBuffer = 32

// Bus publishes status events to any number of subscribers.
type Bus struct {
	mu     sync.Mutex
	subs   map[uint64]*Subscription
	nextID uint64
	seq    uint64
	last   *Event
	closed bool

	buffer   int
	onChange func(subscribers int)
}

// Option configures a Bus.
type Option func(*Bus)

// WithBuffer sets the per-subscriber queue length.
func WithBuffer(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.buffer = n
		}
	}
}

// WithSubscriberHook registers a callback invoked with the subscriber count
// whenever it changes. The callback runs with the bus lock held and must not
// call back into the Bus.
func WithSubscriberHook(fn func(subscribers int)) Option {
	return func(b *Bus) {
		b.onChange = fn
	}
}

// NewBus creates an empty Bus.
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		subs:   make(map[uint64]*Subscription),
		buffer: DefaultBuffer,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish assigns the next sequence number to e and delivers it to every
// subscriber. It returns the event as delivered.
func (b *Bus) Publish(e Event) Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	e.Seq = b.seq
	last := e
	b.last = &last

	if b.closed {
		return e
	}

	evicted := false
	for id, sub := range b.subs {
		select {
		case sub.ch <- e:
		default:
			sub.evicted = true
			close(sub.ch)
			delete(b.subs, id)
			evicted = true
		}
	}
	if evicted {
		b.notifyLocked()
	}
	return e
}

// Subscribe registers a new subscriber. With replay set, the most recent
// event (if any) is queued first so the subscriber starts from the current
// state.
func (b *Bus) Subscribe(replay bool) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscription{
		bus: b,
		ch:  make(chan Event, b.buffer),
	}
	if b.closed {
		close(sub.ch)
		return sub
	}

	b.nextID++
	sub.id = b.nextID
	if replay && b.last != nil {
		sub.ch <- *b.last
	}
	b.subs[sub.id] = sub
	b.notifyLocked()
	return sub
}

// Last returns the most recently published event.
func (b *Bus) Last() (Event, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.last == nil {
		return Event{}, false
	}
	return *b.last, true
}

// Subscribers returns the current subscriber count.
func (b *Bus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close closes every subscription. Publishing after Close only records the
// event as Last.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		close(sub.ch)
		delete(b.subs, id)
	}
	b.notifyLocked()
}

func (b *Bus) notifyLocked() {
	if b.onChange != nil {
		b.onChange(len(b.subs))
	}
}

func (b *Bus) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub.id]; !ok {
		return
	}
	delete(b.subs, sub.id)
	close(sub.ch)
	b.notifyLocked()
}

// Subscription is one subscriber's view of the Bus.
type Subscription struct {
	bus     *Bus
	id      uint64
	ch      chan Event
	evicted bool
}

// Events returns the delivery channel. It is closed when the subscription
// is closed, evicted, or the bus shuts down.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription) Close() {
	s.bus.remove(s)
}

// Evicted reports whether the bus dropped this subscriber for falling behind.
func (s *Subscription) Evicted() bool {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	return s.evicted
}
