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

package events

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strconv"

	"github.com/pubky-network/pubky-go/crypto"
	"github.com/pubky-network/pubky-go/models"
	"github.com/pubky-network/pubky-go/ptime"
)

// UserCursor pairs a user with the cursor to resume their stream from, for
// ByUserCursors.
type UserCursor struct {
	UserPubkey crypto.PublicKey
	Cursor     int64
}

// MaxListLimit and DefaultListLimit bound a by-cursor query's page size,
// mirroring storage's listing limits (spec.md §4.8/§4.9).
const (
	MaxListLimit     = 1000
	DefaultListLimit = 100
)

// Service orchestrates the event log: appending within a caller's write
// transaction, broadcasting after commit, and serving cursor-paginated
// reads.
type Service struct {
	events      *models.Events
	broadcaster *Broadcaster
}

// NewService builds a Service over events (already Prepared against the
// live *sql.DB) and a fresh Broadcaster.
func NewService(events *models.Events, channelCapacity int) *Service {
	return &Service{
		events:      events,
		broadcaster: NewBroadcaster(channelCapacity),
	}
}

// Append inserts ev within tx and returns it with ID populated. The
// caller must commit tx and then call Publish with the returned event -
// Append itself never broadcasts, so a subscriber can never observe an
// event that isn't yet durable.
func (s *Service) Append(ctx context.Context, tx *sql.Tx, ev models.Event) (models.Event, error) {
	return s.events.InsertTx(ctx, tx, ev)
}

// Publish fans ev out to live subscribers. Call only after the
// transaction that produced it has committed.
func (s *Service) Publish(ev models.Event) {
	s.broadcaster.Publish(ev)
}

// Subscribe registers a live subscriber on the event stream.
func (s *Service) Subscribe() *Subscription {
	return s.broadcaster.Subscribe()
}

// SubscriberCount reports the number of live subscriptions, for metrics.
func (s *Service) SubscriberCount() int {
	return s.broadcaster.SubscriberCount()
}

// ParseCursor resolves a cursor string: numeric strings are taken as
// event ids directly; anything else is tried as the legacy
// timestamp-formatted cursor (spec.md §4.9), resolving to the id of the
// first event committed at or after that instant.
func (s *Service) ParseCursor(ctx context.Context, cursor string) (int64, error) {
	if cursor == "" {
		return 0, nil
	}
	if id, err := strconv.ParseInt(cursor, 10, 64); err == nil {
		return id, nil
	}
	ts, err := ptime.Parse(cursor)
	if err != nil {
		return 0, errors.New("events: cursor is neither an event id nor a timestamp")
	}
	return s.events.FirstAtOrAfter(ctx, ts)
}

// ByCursor returns up to limit events after cursor (exclusive), clamping
// limit into [1, MaxListLimit] with DefaultListLimit when unset.
func (s *Service) ByCursor(ctx context.Context, cursor int64, limit int) ([]models.Event, error) {
	limit = clampLimit(limit)
	return s.events.ByCursor(ctx, cursor, limit)
}

// ByUserCursors resolves spec.md §4.9's by_user_cursors query: an
// independent per-user cursor position, multiplexed into a single
// id-ordered slice, optionally filtered to pathPrefix.
func (s *Service) ByUserCursors(ctx context.Context, cursors []UserCursor, reverse bool, pathPrefix string) ([]models.Event, error) {
	var all []models.Event
	for _, uc := range cursors {
		evs, err := s.events.ByUserCursor(ctx, uc.UserPubkey, uc.Cursor, reverse, pathPrefix)
		if err != nil {
			return nil, err
		}
		all = append(all, evs...)
	}
	if reverse {
		sort.SliceStable(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	} else {
		sort.SliceStable(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	}
	return all, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
