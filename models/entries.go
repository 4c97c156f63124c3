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
	"strings"

	"github.com/pubky-network/pubky-go/crypto"
	"github.com/pubky-network/pubky-go/ptime"
	"github.com/pubky-network/pubky-go/pubkey"
)

// ErrEntryNotFound is returned when no entry row matches the requested path.
var ErrEntryNotFound = errors.New("models: entry not found")

// Entry is one stored object in a user's namespace (spec.md §4.8): a path,
// the content-addressed hash of its blob, and the metadata needed to serve
// or list it without touching the blob store.
type Entry struct {
	UserPubkey    crypto.PublicKey
	Path          string
	ContentHash   string
	ContentLength int64
	ContentType   string
	ModifiedAt    ptime.Timestamp
	CreatedAt     ptime.Timestamp
}

var _ Model = &Entries{}

// Entries is the repository for the entries table.
type Entries struct {
	upsert            *sql.Stmt
	byPath            *sql.Stmt
	delete            *sql.Stmt
	byPrefix          *sql.Stmt
	countByContentHash *sql.Stmt
}

func (e *Entries) Prepare(db *sql.DB, d SqlDialect) error {
	return prepareStmtPairs(db, stmtPairs{
		{&e.upsert, d.UpsertEntry()},
		{&e.byPath, d.EntryByPath()},
		{&e.delete, d.DeleteEntry()},
		{&e.byPrefix, d.EntriesByPrefix()},
		{&e.countByContentHash, d.CountEntriesByContentHash()},
	})
}

func (e *Entries) CreateTable(tx *sql.Tx, d SqlDialect) error {
	_, err := tx.Exec(d.CreateEntriesTable())
	return err
}

func (e *Entries) Close() {
	for _, s := range []*sql.Stmt{e.upsert, e.byPath, e.delete, e.byPrefix, e.countByContentHash} {
		if s != nil {
			s.Close()
		}
	}
}

// CountByContentHash reports how many entries (across every user) still
// reference hash. storage.Engine uses this as the blob's reference count:
// when it drops to zero after a delete or overwrite, the blob is GC'd.
func (e *Entries) CountByContentHash(ctx context.Context, hash string) (int64, error) {
	var n int64
	if err := e.countByContentHash.QueryRowContext(ctx, hash).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Upsert writes entry, replacing any existing row at the same
// (user, path). createdAt is only honored on first insert; an overwrite
// keeps the original CreatedAt by re-passing it unchanged.
func (e *Entries) Upsert(ctx context.Context, entry Entry) error {
	_, err := e.upsert.ExecContext(ctx,
		pubkey.Encode(entry.UserPubkey),
		entry.Path,
		entry.ContentHash,
		entry.ContentLength,
		entry.ContentType,
		int64(entry.ModifiedAt),
		int64(entry.CreatedAt),
	)
	return err
}

// UpsertTx is Upsert run against an in-flight transaction, so the caller
// can commit the entry change atomically with its triggering event
// (spec.md §4.9).
func (e *Entries) UpsertTx(ctx context.Context, tx *sql.Tx, dialect SqlDialect, entry Entry) error {
	_, err := tx.ExecContext(ctx, dialect.UpsertEntry(),
		pubkey.Encode(entry.UserPubkey),
		entry.Path,
		entry.ContentHash,
		entry.ContentLength,
		entry.ContentType,
		int64(entry.ModifiedAt),
		int64(entry.CreatedAt),
	)
	return err
}

// DeleteTx is Delete run against an in-flight transaction.
func (e *Entries) DeleteTx(ctx context.Context, tx *sql.Tx, dialect SqlDialect, userPubkey crypto.PublicKey, path string) error {
	_, err := tx.ExecContext(ctx, dialect.DeleteEntry(), pubkey.Encode(userPubkey), path)
	return err
}

// ByPath fetches a single entry, returning ErrEntryNotFound if absent.
func (e *Entries) ByPath(ctx context.Context, userPubkey crypto.PublicKey, path string) (Entry, error) {
	row := e.byPath.QueryRowContext(ctx, pubkey.Encode(userPubkey), path)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, ErrEntryNotFound
		}
		return Entry{}, err
	}
	return entry, nil
}

// Delete removes the entry at path. Idempotent: deleting an already-absent
// path is not an error (spec.md §4.8).
func (e *Entries) Delete(ctx context.Context, userPubkey crypto.PublicKey, path string) error {
	_, err := e.delete.ExecContext(ctx, pubkey.Encode(userPubkey), path)
	return err
}

// ByPrefix lists every entry whose path starts with prefix, in
// lexicographic order (the caller applies reverse/shallow/limit/cursor
// windowing - see storage.List).
func (e *Entries) ByPrefix(ctx context.Context, userPubkey crypto.PublicKey, prefix string) ([]Entry, error) {
	rows, err := e.byPrefix.QueryContext(ctx, pubkey.Encode(userPubkey), likeEscape(prefix)+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// likeEscape escapes LIKE metacharacters in prefix so a path containing a
// literal '%' or '_' cannot widen the match.
func likeEscape(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(prefix)
}

func scanEntry(row rowScanner) (Entry, error) {
	var encodedKey, path, hash, contentType string
	var length, modifiedAt, createdAt int64
	if err := row.Scan(&encodedKey, &path, &hash, &length, &contentType, &modifiedAt, &createdAt); err != nil {
		return Entry{}, err
	}
	pk, err := pubkey.Parse(encodedKey)
	if err != nil {
		return Entry{}, err
	}
	return Entry{
		UserPubkey:    pk,
		Path:          path,
		ContentHash:   hash,
		ContentLength: length,
		ContentType:   contentType,
		ModifiedAt:    ptime.Timestamp(modifiedAt),
		CreatedAt:     ptime.Timestamp(createdAt),
	}, nil
}
