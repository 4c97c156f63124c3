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

package relay

import (
	"context"
)

// Consume registers the caller as the GET-side waiter for id and blocks
// until a Produce call delivers bytes, ctx is canceled, or the relay's
// idle timeout elapses. It satisfies spec.md §8 invariant 10 in both
// orderings: if Consume is called before Produce, it simply waits; if
// Produce is already waiting, its pending send on the unbuffered channel
// completes as soon as Consume receives.
func (r *Relay) Consume(ctx context.Context, id string) ([]byte, error) {
	ch := r.getOrCreate(id)

	r.mu.Lock()
	if ch.hasConsumer {
		r.mu.Unlock()
		return nil, ErrConflict
	}
	ch.hasConsumer = true
	r.mu.Unlock()

	timeout, cancel := context.WithTimeout(ctx, r.idleTimeout)
	defer cancel()

	select {
	case data := <-ch.data:
		ch.cleanup.Do(func() { r.destroy(id, ch) })
		return data, nil
	case <-timeout.Done():
		ch.cleanup.Do(func() { r.destroy(id, ch) })
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ErrTimeout
	}
}

// Produce registers the caller as the POST-side waiter for id and
// delivers body to whichever Consume call is (or later becomes) waiting,
// blocking until delivery completes, ctx is canceled, or the relay's
// idle timeout elapses.
func (r *Relay) Produce(ctx context.Context, id string, body []byte) error {
	if len(body) > r.maxPayloadSize {
		return ErrTooLarge
	}

	ch := r.getOrCreate(id)

	r.mu.Lock()
	if ch.hasProducer {
		r.mu.Unlock()
		return ErrConflict
	}
	ch.hasProducer = true
	r.mu.Unlock()

	timeout, cancel := context.WithTimeout(ctx, r.idleTimeout)
	defer cancel()

	select {
	case ch.data <- body:
		ch.cleanup.Do(func() { r.destroy(id, ch) })
		return nil
	case <-timeout.Done():
		ch.cleanup.Do(func() { r.destroy(id, ch) })
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrTimeout
	}
}
