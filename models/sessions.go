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

	"github.com/pubky-network/pubky-go/cap"
	"github.com/pubky-network/pubky-go/crypto"
	"github.com/pubky-network/pubky-go/ptime"
	"github.com/pubky-network/pubky-go/pubkey"
	"github.com/pubky-network/pubky-go/session"
)

var _ Model = &Sessions{}
var _ session.Store = &Sessions{}

// Sessions is the repository backing session.Store, the one this homeserver
// uses in production (see session.go for the in-memory shape).
type Sessions struct {
	dialect    SqlDialect
	insert     *sql.Stmt
	bySecret   *sql.Stmt
	delete     *sql.Stmt
	byUser     *sql.Stmt
}

func (s *Sessions) Prepare(db *sql.DB, d SqlDialect) error {
	s.dialect = d
	return prepareStmtPairs(db, stmtPairs{
		{&s.insert, d.InsertSession()},
		{&s.bySecret, d.SessionBySecret()},
		{&s.delete, d.DeleteSession()},
		{&s.byUser, d.SessionsByUser()},
	})
}

func (s *Sessions) CreateTable(tx *sql.Tx, d SqlDialect) error {
	_, err := tx.Exec(d.CreateSessionsTable())
	return err
}

func (s *Sessions) Close() {
	for _, st := range []*sql.Stmt{s.insert, s.bySecret, s.delete, s.byUser} {
		if st != nil {
			st.Close()
		}
	}
}

// Create persists sess, assigning its ID from the backend's identity
// mechanism (RETURNING id on Postgres, LastInsertId on SQLite - see
// SqlDialect.SupportsReturningID).
func (s *Sessions) Create(ctx context.Context, sess session.Session) (session.Session, error) {
	args := []interface{}{
		sess.Secret,
		pubkey.Encode(sess.UserPubkey),
		sess.Capabilities.String(),
		sess.UserAgent,
		int64(sess.CreatedAt),
	}
	if s.dialect.SupportsReturningID() {
		if err := s.insert.QueryRowContext(ctx, args...).Scan(&sess.ID); err != nil {
			return session.Session{}, err
		}
		return sess, nil
	}
	res, err := s.insert.ExecContext(ctx, args...)
	if err != nil {
		return session.Session{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return session.Session{}, err
	}
	sess.ID = id
	return sess, nil
}

// Get fetches the session for secret, returning session.ErrNotFound if
// absent.
func (s *Sessions) Get(ctx context.Context, secret string) (session.Session, error) {
	row := s.bySecret.QueryRowContext(ctx, secret)
	return scanSession(row)
}

// Delete removes the session for secret. Idempotent: deleting an
// already-absent secret is not an error (spec.md §8 invariant 11).
func (s *Sessions) Delete(ctx context.Context, secret string) error {
	_, err := s.delete.ExecContext(ctx, secret)
	return err
}

// ListByUser returns every session belonging to userPubkey, oldest first.
func (s *Sessions) ListByUser(ctx context.Context, userPubkey crypto.PublicKey) ([]session.Session, error) {
	rows, err := s.byUser.QueryContext(ctx, pubkey.Encode(userPubkey))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []session.Session
	for rows.Next() {
		sess, err := scanSessionRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (session.Session, error) {
	sess, err := scanSessionRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return session.Session{}, session.ErrNotFound
	}
	return sess, err
}

func scanSessionRow(row rowScanner) (session.Session, error) {
	var id int64
	var secret, encodedKey, capsStr, userAgent string
	var createdAt int64
	if err := row.Scan(&id, &secret, &encodedKey, &capsStr, &userAgent, &createdAt); err != nil {
		return session.Session{}, err
	}
	pk, err := pubkey.Parse(encodedKey)
	if err != nil {
		return session.Session{}, err
	}
	caps, err := cap.ParseCapabilities(capsStr)
	if err != nil {
		return session.Session{}, err
	}
	return session.Session{
		ID:           id,
		Secret:       secret,
		UserPubkey:   pk,
		Capabilities: caps,
		UserAgent:    userAgent,
		CreatedAt:    ptime.Timestamp(createdAt),
	}, nil
}
