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

var _ SqlDialect = &SqliteV0{}

// SqliteV0 is the SQLite counterpart of PostgresV0, used by the test
// suite (modernc.org/sqlite, a cgo-free driver).
type SqliteV0 struct{}

// NewSqliteV0 builds a SqliteV0 dialect.
func NewSqliteV0() *SqliteV0 {
	return &SqliteV0{}
}

func (s *SqliteV0) SupportsReturningID() bool {
	return false
}

func (s *SqliteV0) CreateUsersTable() string {
	return `
CREATE TABLE IF NOT EXISTS users
(
  public_key TEXT PRIMARY KEY,
  disabled INTEGER NOT NULL DEFAULT 0,
  quota_bytes INTEGER NOT NULL,
  used_bytes INTEGER NOT NULL DEFAULT 0,
  created_at INTEGER NOT NULL
);`
}

func (s *SqliteV0) InsertUser() string {
	return `INSERT INTO users (public_key, quota_bytes, used_bytes, created_at) VALUES (?, ?, 0, ?)`
}

func (s *SqliteV0) UserByPublicKey() string {
	return `SELECT public_key, disabled, quota_bytes, used_bytes, created_at FROM users WHERE public_key = ?`
}

func (s *SqliteV0) SetUserDisabled() string {
	return `UPDATE users SET disabled = (CASE WHEN ?2 THEN 1 ELSE 0 END) WHERE public_key = ?1`
}

func (s *SqliteV0) AddUsedBytes() string {
	return `UPDATE users SET used_bytes = used_bytes + ?2 WHERE public_key = ?1`
}

func (s *SqliteV0) CreateSessionsTable() string {
	return `
CREATE TABLE IF NOT EXISTS sessions
(
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  secret TEXT NOT NULL UNIQUE,
  user_public_key TEXT NOT NULL REFERENCES users (public_key),
  capabilities TEXT NOT NULL,
  user_agent TEXT NOT NULL DEFAULT '',
  created_at INTEGER NOT NULL
);`
}

func (s *SqliteV0) InsertSession() string {
	return `INSERT INTO sessions (secret, user_public_key, capabilities, user_agent, created_at) VALUES (?, ?, ?, ?, ?)`
}

func (s *SqliteV0) SessionBySecret() string {
	return `SELECT id, secret, user_public_key, capabilities, user_agent, created_at FROM sessions WHERE secret = ?`
}

func (s *SqliteV0) DeleteSession() string {
	return `DELETE FROM sessions WHERE secret = ?`
}

func (s *SqliteV0) SessionsByUser() string {
	return `SELECT id, secret, user_public_key, capabilities, user_agent, created_at FROM sessions WHERE user_public_key = ? ORDER BY created_at ASC`
}

func (s *SqliteV0) CreateEntriesTable() string {
	return `
CREATE TABLE IF NOT EXISTS entries
(
  user_public_key TEXT NOT NULL REFERENCES users (public_key),
  path TEXT NOT NULL,
  content_hash TEXT NOT NULL,
  content_length INTEGER NOT NULL,
  content_type TEXT NOT NULL,
  modified_at INTEGER NOT NULL,
  created_at INTEGER NOT NULL,
  PRIMARY KEY (user_public_key, path)
);`
}

func (s *SqliteV0) UpsertEntry() string {
	return `
INSERT INTO entries (user_public_key, path, content_hash, content_length, content_type, modified_at, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (user_public_key, path) DO UPDATE SET
  content_hash = excluded.content_hash,
  content_length = excluded.content_length,
  content_type = excluded.content_type,
  modified_at = excluded.modified_at`
}

func (s *SqliteV0) EntryByPath() string {
	return `SELECT user_public_key, path, content_hash, content_length, content_type, modified_at, created_at FROM entries WHERE user_public_key = ? AND path = ?`
}

func (s *SqliteV0) DeleteEntry() string {
	return `DELETE FROM entries WHERE user_public_key = ? AND path = ?`
}

func (s *SqliteV0) EntriesByPrefix() string {
	return `
SELECT user_public_key, path, content_hash, content_length, content_type, modified_at, created_at FROM entries
WHERE user_public_key = ? AND path LIKE ? ESCAPE '\'
ORDER BY path ASC`
}

func (s *SqliteV0) CountEntriesByContentHash() string {
	return `SELECT COUNT(*) FROM entries WHERE content_hash = ?`
}

func (s *SqliteV0) CreateEventsTable() string {
	return `
CREATE TABLE IF NOT EXISTS events
(
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  user_public_key TEXT NOT NULL,
  kind TEXT NOT NULL,
  path TEXT NOT NULL,
  content_hash TEXT,
  created_at INTEGER NOT NULL
);`
}

func (s *SqliteV0) InsertEvent() string {
	return `INSERT INTO events (user_public_key, kind, path, content_hash, created_at) VALUES (?, ?, ?, ?, ?)`
}

func (s *SqliteV0) EventsByCursor() string {
	return `
SELECT id, user_public_key, kind, path, content_hash, created_at FROM events
WHERE id > ?
ORDER BY id ASC
LIMIT ?`
}

func (s *SqliteV0) FirstEventAtOrAfter() string {
	return `SELECT id FROM events WHERE created_at >= ? ORDER BY id ASC LIMIT 1`
}

func (s *SqliteV0) EventsByUserCursorAsc() string {
	return `
SELECT id, user_public_key, kind, path, content_hash, created_at FROM events
WHERE user_public_key = ?1 AND id > ?2 AND path LIKE ?3 ESCAPE '\'
ORDER BY id ASC`
}

func (s *SqliteV0) EventsByUserCursorDesc() string {
	return `
SELECT id, user_public_key, kind, path, content_hash, created_at FROM events
WHERE user_public_key = ?1 AND (?2 <= 0 OR id < ?2) AND path LIKE ?3 ESCAPE '\'
ORDER BY id DESC`
}

func (s *SqliteV0) CreateSignupCodesTable() string {
	return `
CREATE TABLE IF NOT EXISTS signup_codes
(
  code TEXT PRIMARY KEY,
  used_by TEXT,
  created_at INTEGER NOT NULL
);`
}

func (s *SqliteV0) InsertSignupCode() string {
	return `INSERT INTO signup_codes (code, created_at) VALUES (?, ?)`
}

func (s *SqliteV0) ClaimSignupCode() string {
	return `UPDATE signup_codes SET used_by = ?2 WHERE code = ?1 AND used_by IS NULL`
}

func (s *SqliteV0) SignupCodeByCode() string {
	return `SELECT code, used_by, created_at FROM signup_codes WHERE code = ?`
}
