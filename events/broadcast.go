// pubky-go is a self-sovereign identity and personal-storage platform.
// Copyright (C) 2024 The pubky-go Authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package events orchestrates the homeserver's append-only event log: a
// commit-then-broadcast write path (spec.md §4.9) so no subscriber can
// observe an event that isn't yet durable, and a bounded fan-out channel
// in place of the Rust original's tokio::sync::broadcast.
package events

import (
	"sync"
	"sync/atomic"

	"github.com/pubky-network/pubky-go/models"
)

// DefaultChannelCapacity is the per-subscriber buffer size used when none
// is configured.
const DefaultChannelCapacity = 100

// Subscription is a live handle on the event stream. A lagging subscriber
// (one whose buffer fills before it drains) observes a dropped event
// rather than blocking the publisher; Lagged reports how many times that
// has happened to this subscription.
type Subscription struct {
	events  <-chan models.Event
	lagged  *int64
	done    chan struct{}
	cleanup func()
}

// Events returns the channel new events arrive on.
func (s *Subscription) Events() <-chan models.Event {
	return s.events
}

// Lagged returns the number of events dropped because this subscription's
// buffer was full.
func (s *Subscription) Lagged() int64 {
	return atomic.LoadInt64(s.lagged)
}

// Close releases the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.cleanup()
}

// Broadcaster fans committed events out to every live subscriber. It is
// the arena described in spec.md §9: subscribers and the publisher share
// nothing but this struct, and every handoff is non-blocking from the
// publisher's side.
type Broadcaster struct {
	mu          sync.Mutex
	subscribers map[*subscriberState]struct{}
	capacity    int
}

type subscriberState struct {
	ch     chan models.Event
	lagged int64
}

// NewBroadcaster builds a Broadcaster whose subscriber channels buffer up
// to capacity events before lagging. capacity <= 0 uses
// DefaultChannelCapacity.
func NewBroadcaster(capacity int) *Broadcaster {
	if capacity <= 0 {
		capacity = DefaultChannelCapacity
	}
	return &Broadcaster{
		subscribers: make(map[*subscriberState]struct{}),
		capacity:    capacity,
	}
}

// Subscribe registers a new subscriber and returns its handle. Call
// Subscription.Close when done to avoid leaking the channel.
func (b *Broadcaster) Subscribe() *Subscription {
	st := &subscriberState{ch: make(chan models.Event, b.capacity)}

	b.mu.Lock()
	b.subscribers[st] = struct{}{}
	b.mu.Unlock()

	return &Subscription{
		events: st.ch,
		lagged: &st.lagged,
		done:   make(chan struct{}),
		cleanup: func() {
			b.mu.Lock()
			delete(b.subscribers, st)
			b.mu.Unlock()
		},
	}
}

// Publish fans ev out to every current subscriber. Publish must only be
// called after the event's transaction has committed, never before
// (spec.md §4.9: "broadcast after commit").
func (b *Broadcaster) Publish(ev models.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for st := range b.subscribers {
		select {
		case st.ch <- ev:
		default:
			atomic.AddInt64(&st.lagged, 1)
		}
	}
}

// SubscriberCount reports the number of live subscriptions.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}
