package store

import (
	"context"
	"slices"
	"sync"

	"github.com/yllada/vpn-registry/vpn"
)

// Update is one value delivered by a Feed.
type Update struct {
	// Profiles is the full store content at publication time.
	Profiles []vpn.Profile
	// Replay is true when the value was already current at subscription
	// time and has not been superseded since.
	Replay bool
}

// Feed is a replay-latest broadcast of store contents.
//
// Each subscriber owns a one-slot channel. A publication replaces a value
// the subscriber has not consumed yet, so slow consumers always see the most
// recent contents and publishers never block.
//
// Consumers that need an initial snapshot subscribe first, fetch second, and
// skip updates flagged Replay: anything published after the subscription
// arrives unflagged and cannot be lost between the fetch and the first
// receive.
type Feed struct {
	mu     sync.Mutex
	latest []vpn.Profile
	subs   map[*feedSub]struct{}
	closed bool
}

type feedSub struct {
	ch chan Update
}

// NewFeed creates a feed whose current value is initial.
func NewFeed(initial []vpn.Profile) *Feed {
	return &Feed{
		latest: slices.Clone(initial),
		subs:   make(map[*feedSub]struct{}),
	}
}

// Publish makes profiles the current value and delivers it to every
// subscriber.
func (f *Feed) Publish(profiles []vpn.Profile) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.latest = slices.Clone(profiles)
	for s := range f.subs {
		s.offer(Update{Profiles: slices.Clone(profiles)})
	}
}

// Latest returns a copy of the current value.
func (f *Feed) Latest() []vpn.Profile {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.latest)
}

// Subscribe registers a subscriber. The current value is delivered first,
// flagged Replay. The channel is closed when ctx is done or the feed is
// closed.
func (f *Feed) Subscribe(ctx context.Context) <-chan Update {
	s := &feedSub{ch: make(chan Update, 1)}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		close(s.ch)
		return s.ch
	}
	s.ch <- Update{Profiles: slices.Clone(f.latest), Replay: true}
	f.subs[s] = struct{}{}
	f.mu.Unlock()

	context.AfterFunc(ctx, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if _, ok := f.subs[s]; ok {
			delete(f.subs, s)
			close(s.ch)
		}
	})
	return s.ch
}

// Close ends every subscription. Later publications are dropped.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for s := range f.subs {
		close(s.ch)
	}
	clear(f.subs)
}

// offer performs a latest-wins send. Callers hold the feed lock, so no other
// sender can refill the slot between the drain and the send.
func (s *feedSub) offer(u Update) {
	select {
	case s.ch <- u:
	default:
		select {
		case <-s.ch:
		default:
		}
		s.ch <- u
	}
}
