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
)

func TestUsersCreateAndFetch(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	kp := testKeypair(t)

	created, err := h.Users.Create(ctx, kp.PublicKey(), 1<<20)
	require.NoError(t, err)
	require.Equal(t, int64(1<<20), created.QuotaBytes)

	fetched, err := h.Users.ByPublicKey(ctx, kp.PublicKey())
	require.NoError(t, err)
	require.Equal(t, kp.PublicKey(), fetched.PublicKey)
	require.False(t, fetched.Disabled)
	require.Zero(t, fetched.UsedBytes)
}

func TestUsersByPublicKeyNotFound(t *testing.T) {
	h := newTestHarness(t)
	kp := testKeypair(t)

	_, err := h.Users.ByPublicKey(context.Background(), kp.PublicKey())
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestUsersSetDisabled(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	kp := testKeypair(t)

	_, err := h.Users.Create(ctx, kp.PublicKey(), 1<<20)
	require.NoError(t, err)

	require.NoError(t, h.Users.SetDisabled(ctx, kp.PublicKey(), true))
	fetched, err := h.Users.ByPublicKey(ctx, kp.PublicKey())
	require.NoError(t, err)
	require.True(t, fetched.Disabled)
}

func TestUsersAddUsedBytes(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	kp := testKeypair(t)

	_, err := h.Users.Create(ctx, kp.PublicKey(), 1<<20)
	require.NoError(t, err)

	require.NoError(t, h.Users.AddUsedBytes(ctx, kp.PublicKey(), 100))
	require.NoError(t, h.Users.AddUsedBytes(ctx, kp.PublicKey(), -40))

	fetched, err := h.Users.ByPublicKey(ctx, kp.PublicKey())
	require.NoError(t, err)
	require.Equal(t, int64(60), fetched.UsedBytes)
}
