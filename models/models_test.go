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
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/stretchr/testify/require"

	"github.com/pubky-network/pubky-go/crypto"
)

// testHarness holds a fresh in-memory SQLite database, as opened by
// newTestHarness, with every repository prepared against it alongside the
// dialect used.
type testHarness struct {
	db          *sql.DB
	dialect     SqlDialect
	Users       *Users
	Sessions    *Sessions
	Entries     *Entries
	Events      *Events
	SignupCodes *SignupCodes
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	h := &testHarness{
		db:          db,
		dialect:     NewSqliteV0(),
		Users:       &Users{},
		Sessions:    &Sessions{},
		Entries:     &Entries{},
		Events:      &Events{},
		SignupCodes: &SignupCodes{},
	}
	require.NoError(t, CreateTables(db, h.dialect,
		h.Users, h.Sessions, h.Entries, h.Events, h.SignupCodes))
	return h
}

func testKeypair(t *testing.T) crypto.Keypair {
	t.Helper()
	kp, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	return kp
}
