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

// EventKind distinguishes a PUT (create/overwrite) from a DELETE in the
// append-only event log (spec.md §4.9).
type EventKind string

const (
	EventPut    EventKind = "PUT"
	EventDelete EventKind = "DELETE"
)

// ErrNoSuchCursor is returned by FirstAtOrAfter when no event exists at or
// after the requested timestamp.
var ErrNoSuchCursor = errors.New("models: no event at or after cursor")

// Event is one row of the monotonic log: every PUT and DELETE across every
// user, in commit order, so an indexer can replay the instance's history
// from any cursor.
type Event struct {
	ID          int64
	UserPubkey  crypto.PublicKey
	Kind        EventKind
	Path        string
	ContentHash *string
	CreatedAt   ptime.Timestamp
}

var _ Model = &Events{}

// Events is the repository for the events table.
type Events struct {
	insert          *sql.Stmt
	byCursor        *sql.Stmt
	firstAt         *sql.Stmt
	byUserCursorAsc  *sql.Stmt
	byUserCursorDesc *sql.Stmt
	dialect         SqlDialect
}

func (e *Events) Prepare(db *sql.DB, d SqlDialect) error {
	e.dialect = d
	return prepareStmtPairs(db, stmtPairs{
		{&e.insert, d.InsertEvent()},
		{&e.byCursor, d.EventsByCursor()},
		{&e.firstAt, d.FirstEventAtOrAfter()},
		{&e.byUserCursorAsc, d.EventsByUserCursorAsc()},
		{&e.byUserCursorDesc, d.EventsByUserCursorDesc()},
	})
}

func (e *Events) CreateTable(tx *sql.Tx, d SqlDialect) error {
	_, err := tx.Exec(d.CreateEventsTable())
	return err
}

func (e *Events) Close() {
	for _, s := range []*sql.Stmt{e.insert, e.byCursor, e.firstAt, e.byUserCursorAsc, e.byUserCursorDesc} {
		if s != nil {
			s.Close()
		}
	}
}

// Insert appends ev to the log and returns it with ID populated. Callers
// that need "commit the entry change and append the event atomically"
// (spec.md §4.9) should do so within the same *sql.Tx and use InsertTx
// instead - see events.Service.Append in package events for the
// orchestration.
func (e *Events) Insert(ctx context.Context, ev Event) (Event, error) {
	args := []interface{}{
		pubkey.Encode(ev.UserPubkey),
		string(ev.Kind),
		ev.Path,
		ev.ContentHash,
		int64(ev.CreatedAt),
	}
	if e.dialect.SupportsReturningID() {
		if err := e.insert.QueryRowContext(ctx, args...).Scan(&ev.ID); err != nil {
			return Event{}, err
		}
		return ev, nil
	}
	res, err := e.insert.ExecContext(ctx, args...)
	if err != nil {
		return Event{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Event{}, err
	}
	ev.ID = id
	return ev, nil
}

// InsertTx is Insert run against an in-flight transaction instead of a
// prepared statement, so the caller can commit the event and its
// triggering entry change atomically (spec.md §4.9).
func (e *Events) InsertTx(ctx context.Context, tx *sql.Tx, ev Event) (Event, error) {
	args := []interface{}{
		pubkey.Encode(ev.UserPubkey),
		string(ev.Kind),
		ev.Path,
		ev.ContentHash,
		int64(ev.CreatedAt),
	}
	if e.dialect.SupportsReturningID() {
		if err := tx.QueryRowContext(ctx, e.dialect.InsertEvent(), args...).Scan(&ev.ID); err != nil {
			return Event{}, err
		}
		return ev, nil
	}
	res, err := tx.ExecContext(ctx, e.dialect.InsertEvent(), args...)
	if err != nil {
		return Event{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Event{}, err
	}
	ev.ID = id
	return ev, nil
}

// ByCursor returns up to limit events with id strictly greater than
// cursor, oldest first. A cursor of 0 starts from the beginning of the
// log.
func (e *Events) ByCursor(ctx context.Context, cursor int64, limit int) ([]Event, error) {
	rows, err := e.byCursor.QueryContext(ctx, cursor, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// FirstAtOrAfter resolves the legacy timestamp-cursor fallback (spec.md
// §4.9): given a Unix-microsecond timestamp, it finds the id of the first
// event committed at or after it, for use as a ByCursor cursor.
func (e *Events) FirstAtOrAfter(ctx context.Context, at ptime.Timestamp) (int64, error) {
	var id int64
	if err := e.firstAt.QueryRowContext(ctx, int64(at)).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNoSuchCursor
		}
		return 0, err
	}
	return id, nil
}

// ByUserCursor returns a single user's events after (or, if reverse,
// before) cursor, optionally restricted to paths under pathPrefix. It is
// the single-user slice of the by_user_cursors query (spec.md §4.9);
// Service.ByUserCursors loops this per requested user and merges.
func (e *Events) ByUserCursor(ctx context.Context, userPubkey crypto.PublicKey, cursor int64, reverse bool, pathPrefix string) ([]Event, error) {
	stmt := e.byUserCursorAsc
	if reverse {
		stmt = e.byUserCursorDesc
	}
	likePattern := likeEscape(pathPrefix) + "%"
	rows, err := stmt.QueryContext(ctx, pubkey.Encode(userPubkey), cursor, likePattern)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func scanEvent(row rowScanner) (Event, error) {
	var id int64
	var encodedKey, kind, path string
	var hash sql.NullString
	var createdAt int64
	if err := row.Scan(&id, &encodedKey, &kind, &path, &hash, &createdAt); err != nil {
		return Event{}, err
	}
	pk, err := pubkey.Parse(encodedKey)
	if err != nil {
		return Event{}, err
	}
	ev := Event{
		ID:         id,
		UserPubkey: pk,
		Kind:       EventKind(kind),
		Path:       path,
		CreatedAt:  ptime.Timestamp(createdAt),
	}
	if hash.Valid {
		ev.ContentHash = &hash.String
	}
	return ev, nil
}
