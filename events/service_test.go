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
	"testing"

	_ "modernc.org/sqlite"

	"github.com/stretchr/testify/require"

	"github.com/pubky-network/pubky-go/crypto"
	"github.com/pubky-network/pubky-go/models"
	"github.com/pubky-network/pubky-go/ptime"
)

func newTestService(t *testing.T) (*Service, *sql.DB, crypto.Keypair) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	dialect := models.NewSqliteV0()
	users := &models.Users{}
	ev := &models.Events{}
	require.NoError(t, models.CreateTables(db, dialect, users, ev))

	kp, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	_, err = users.Create(context.Background(), kp.PublicKey(), 1<<20)
	require.NoError(t, err)

	return NewService(ev, 8), db, kp
}

func TestServiceAppendCommitsBeforePublish(t *testing.T) {
	svc, db, kp := newTestService(t)

	tx, err := db.Begin()
	require.NoError(t, err)
	ev, err := svc.Append(context.Background(), tx, models.Event{
		UserPubkey: kp.PublicKey(), Kind: models.EventPut, Path: "/pub/a.txt",
		CreatedAt: ptime.Now(),
	})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	svc.Publish(ev)

	page, err := svc.ByCursor(context.Background(), 0, 10)
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, ev.ID, page[0].ID)
}

func TestServiceParseCursorNumeric(t *testing.T) {
	svc, _, _ := newTestService(t)
	id, err := svc.ParseCursor(context.Background(), "42")
	require.NoError(t, err)
	require.Equal(t, int64(42), id)
}

func TestServiceParseCursorEmpty(t *testing.T) {
	svc, _, _ := newTestService(t)
	id, err := svc.ParseCursor(context.Background(), "")
	require.NoError(t, err)
	require.Zero(t, id)
}

func TestServiceByCursorClampsLimit(t *testing.T) {
	require.Equal(t, DefaultListLimit, clampLimit(0))
	require.Equal(t, MaxListLimit, clampLimit(1_000_000))
	require.Equal(t, 10, clampLimit(10))
}
