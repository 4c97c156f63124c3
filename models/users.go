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
	"database/sql"
	"errors"

	"github.com/pubky-network/pubky-go/crypto"
	"github.com/pubky-network/pubky-go/ptime"
	"github.com/pubky-network/pubky-go/pubkey"
)

// ErrUserNotFound is returned when no user row matches the requested key.
var ErrUserNotFound = errors.New("models: user not found")

// User is one homeserver account, keyed by its owner's public key.
type User struct {
	PublicKey  crypto.PublicKey
	Disabled   bool
	QuotaBytes int64
	UsedBytes  int64
	CreatedAt  ptime.Timestamp
}

var _ Model = &Users{}

// Users is the repository for the users table.
type Users struct {
	insert          *sql.Stmt
	byPublicKey     *sql.Stmt
	setDisabled     *sql.Stmt
	addUsedBytes    *sql.Stmt
}

func (u *Users) Prepare(db *sql.DB, d SqlDialect) error {
	return prepareStmtPairs(db, stmtPairs{
		{&u.insert, d.InsertUser()},
		{&u.byPublicKey, d.UserByPublicKey()},
		{&u.setDisabled, d.SetUserDisabled()},
		{&u.addUsedBytes, d.AddUsedBytes()},
	})
}

func (u *Users) CreateTable(tx *sql.Tx, d SqlDialect) error {
	_, err := tx.Exec(d.CreateUsersTable())
	return err
}

func (u *Users) Close() {
	for _, s := range []*sql.Stmt{u.insert, u.byPublicKey, u.setDisabled, u.addUsedBytes} {
		if s != nil {
			s.Close()
		}
	}
}

// Create inserts a new user row with zero UsedBytes.
func (u *Users) Create(ctx context.Context, publicKey crypto.PublicKey, quotaBytes int64) (User, error) {
	now := ptime.Now()
	if _, err := u.insert.ExecContext(ctx, pubkey.Encode(publicKey), quotaBytes, int64(now)); err != nil {
		return User{}, err
	}
	return User{PublicKey: publicKey, QuotaBytes: quotaBytes, CreatedAt: now}, nil
}

// ByPublicKey fetches a user, returning ErrUserNotFound if absent.
func (u *Users) ByPublicKey(ctx context.Context, publicKey crypto.PublicKey) (User, error) {
	var encoded string
	var user User
	var disabled int
	var createdAt int64
	row := u.byPublicKey.QueryRowContext(ctx, pubkey.Encode(publicKey))
	if err := row.Scan(&encoded, &disabled, &user.QuotaBytes, &user.UsedBytes, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, err
	}
	pk, err := pubkey.Parse(encoded)
	if err != nil {
		return User{}, err
	}
	user.PublicKey = pk
	user.Disabled = disabled != 0
	user.CreatedAt = ptime.Timestamp(createdAt)
	return user, nil
}

// SetDisabled flips a user's disabled flag (an administrative action; a
// disabled user's session middleware rejects every request - see
// session_required_layer.rs's authorize()).
func (u *Users) SetDisabled(ctx context.Context, publicKey crypto.PublicKey, disabled bool) error {
	_, err := u.setDisabled.ExecContext(ctx, pubkey.Encode(publicKey), disabled)
	return err
}

// AddUsedBytes adjusts a user's used-bytes counter by delta, which may be
// negative (a delete or an overwrite that shrinks an entry).
func (u *Users) AddUsedBytes(ctx context.Context, publicKey crypto.PublicKey, delta int64) error {
	_, err := u.addUsedBytes.ExecContext(ctx, pubkey.Encode(publicKey), delta)
	return err
}

// AddUsedBytesTx is AddUsedBytes run against an in-flight transaction, so
// a write's quota adjustment commits atomically with its entry and event
// rows (spec.md §4.8/§4.9).
func (u *Users) AddUsedBytesTx(ctx context.Context, tx *sql.Tx, dialect SqlDialect, publicKey crypto.PublicKey, delta int64) error {
	_, err := tx.ExecContext(ctx, dialect.AddUsedBytes(), pubkey.Encode(publicKey), delta)
	return err
}
