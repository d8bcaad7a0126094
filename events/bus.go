// Package events provides the ordered, multi-subscriber notification
// channel through which the registry reports lifecycle and data changes.
package events

import (
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Bus broadcasts events to subscribers.
//
// Publish never blocks: every subscriber owns an unbounded FIFO queue drained
// by its own goroutine. Events reach each subscriber in publication order;
// there is no ordering between different subscribers.
//
// Thread Safety: Bus is safe for concurrent use.
type Bus struct {
	mu     sync.Mutex
	subs   map[string]*Subscription
	seq    uint64
	closed bool
	now    func() time.Time
}

// Option configures a Bus.
type Option func(*Bus)

// WithClock overrides the clock used to timestamp events.
func WithClock(now func() time.Time) Option {
	return func(b *Bus) {
		b.now = now
	}
}

// NewBus creates an empty bus.
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		subs: make(map[string]*Subscription),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a subscriber for the given types (none = all types).
func (b *Bus) Subscribe(types ...Type) *Subscription {
	s := &Subscription{
		ID:     uuid.NewString(),
		types:  types,
		bus:    b,
		signal: make(chan struct{}, 1),
		out:    make(chan Event),
		done:   make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		s.stop()
		close(s.out)
		return s
	}
	b.subs[s.ID] = s
	b.mu.Unlock()

	go s.pump()
	return s
}

// SubscribeFunc calls handler for every matching event from a dedicated
// goroutine. Close the returned subscription to stop it.
func (b *Bus) SubscribeFunc(handler func(Event), types ...Type) *Subscription {
	s := b.Subscribe(types...)
	go func() {
		for ev := range s.Events() {
			handler(ev)
		}
	}()
	return s
}

// Publish stamps ev and enqueues it for every matching subscriber.
func (b *Bus) Publish(ev Event) Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ev
	}
	b.seq++
	ev.Seq = b.seq
	ev.Time = b.now()
	for _, s := range b.subs {
		if s.matches(ev.Type) {
			s.enqueue(ev)
		}
	}
	return ev
}

// Close ends every subscription. Undelivered events are dropped.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := make([]*Subscription, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	clear(b.subs)
	b.mu.Unlock()

	for _, s := range subs {
		s.stop()
	}
}

func (b *Bus) remove(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, id)
}

// Subscription is one registered consumer of a Bus.
type Subscription struct {
	// ID uniquely identifies this subscription.
	ID string

	types []Type
	bus   *Bus

	mu     sync.Mutex
	queue  []Event
	signal chan struct{}
	out    chan Event
	done   chan struct{}
	once   sync.Once
}

// Events returns the delivery channel. It is closed when the subscription
// or the bus is closed.
func (s *Subscription) Events() <-chan Event {
	return s.out
}

// Close unregisters the subscription.
func (s *Subscription) Close() {
	s.bus.remove(s.ID)
	s.stop()
}

func (s *Subscription) stop() {
	s.once.Do(func() { close(s.done) })
}

func (s *Subscription) matches(t Type) bool {
	return len(s.types) == 0 || slices.Contains(s.types, t)
}

func (s *Subscription) enqueue(ev Event) {
	s.mu.Lock()
	s.queue = append(s.queue, ev)
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *Subscription) pump() {
	defer close(s.out)
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-s.signal:
				continue
			case <-s.done:
				return
			}
		}
		ev := s.queue[0]
		s.queue[0] = Event{}
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- ev:
		case <-s.done:
			return
		}
	}
}
