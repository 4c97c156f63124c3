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

package models

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pubky-network/pubky-go/ptime"
)

func TestEventsInsertAssignsMonotonicIDs(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	kp := testKeypair(t)
	_, err := h.Users.Create(ctx, kp.PublicKey(), 1<<20)
	require.NoError(t, err)

	hash := "abc"
	first, err := h.Events.Insert(ctx, Event{
		UserPubkey: kp.PublicKey(), Kind: EventPut, Path: "/pub/a.txt",
		ContentHash: &hash, CreatedAt: ptime.Now(),
	})
	require.NoError(t, err)
	require.NotZero(t, first.ID)

	second, err := h.Events.Insert(ctx, Event{
		UserPubkey: kp.PublicKey(), Kind: EventDelete, Path: "/pub/a.txt",
		CreatedAt: ptime.Now(),
	})
	require.NoError(t, err)
	require.Greater(t, second.ID, first.ID)
	require.Nil(t, second.ContentHash)
}

func TestEventsByCursor(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	kp := testKeypair(t)
	_, err := h.Users.Create(ctx, kp.PublicKey(), 1<<20)
	require.NoError(t, err)

	var ids []int64
	for i := 0; i < 5; i++ {
		ev, err := h.Events.Insert(ctx, Event{
			UserPubkey: kp.PublicKey(), Kind: EventPut, Path: "/pub/x.txt",
			CreatedAt: ptime.Now(),
		})
		require.NoError(t, err)
		ids = append(ids, ev.ID)
	}

	page, err := h.Events.ByCursor(ctx, 0, 100)
	require.NoError(t, err)
	require.Len(t, page, 5)

	page, err = h.Events.ByCursor(ctx, ids[1], 100)
	require.NoError(t, err)
	require.Len(t, page, 3)
	require.Equal(t, ids[2], page[0].ID)

	page, err = h.Events.ByCursor(ctx, 0, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
}

func TestEventsFirstAtOrAfter(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	kp := testKeypair(t)
	_, err := h.Users.Create(ctx, kp.PublicKey(), 1<<20)
	require.NoError(t, err)

	before := ptime.Now()
	ev, err := h.Events.Insert(ctx, Event{
		UserPubkey: kp.PublicKey(), Kind: EventPut, Path: "/pub/x.txt",
		CreatedAt: ptime.Now(),
	})
	require.NoError(t, err)

	id, err := h.Events.FirstAtOrAfter(ctx, before)
	require.NoError(t, err)
	require.Equal(t, ev.ID, id)

	_, err = h.Events.FirstAtOrAfter(ctx, ev.CreatedAt.Add(1<<30))
	require.ErrorIs(t, err, ErrNoSuchCursor)
}
