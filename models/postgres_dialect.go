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

var _ SqlDialect = &PostgresV0{}

// PostgresV0 is the first Postgres schema version of the pubky data model.
type PostgresV0 struct {
	schema string
}

// NewPostgresV0 builds a PostgresV0 dialect rooted at schema. An empty
// schema defaults to "public".
func NewPostgresV0(schema string) *PostgresV0 {
	p := &PostgresV0{schema: schema}
	if p.schema == "" {
		p.schema = "public"
	}
	p.schema += "."
	return p
}

func (p *PostgresV0) SupportsReturningID() bool {
	return true
}

func (p *PostgresV0) CreateUsersTable() string {
	return `
CREATE TABLE IF NOT EXISTS ` + p.schema + `users
(
  public_key text PRIMARY KEY,
  disabled boolean NOT NULL DEFAULT false,
  quota_bytes bigint NOT NULL,
  used_bytes bigint NOT NULL DEFAULT 0,
  created_at bigint NOT NULL
);`
}

func (p *PostgresV0) InsertUser() string {
	return `INSERT INTO ` + p.schema + `users (public_key, quota_bytes, used_bytes, created_at) VALUES ($1, $2, 0, $3)`
}

func (p *PostgresV0) UserByPublicKey() string {
	return `SELECT public_key, disabled, quota_bytes, used_bytes, created_at FROM ` + p.schema + `users WHERE public_key = $1`
}

func (p *PostgresV0) SetUserDisabled() string {
	return `UPDATE ` + p.schema + `users SET disabled = $2 WHERE public_key = $1`
}

func (p *PostgresV0) AddUsedBytes() string {
	return `UPDATE ` + p.schema + `users SET used_bytes = used_bytes + $2 WHERE public_key = $1`
}

func (p *PostgresV0) CreateSessionsTable() string {
	return `
CREATE TABLE IF NOT EXISTS ` + p.schema + `sessions
(
  id bigserial PRIMARY KEY,
  secret varchar(26) NOT NULL UNIQUE,
  user_public_key text NOT NULL REFERENCES ` + p.schema + `users (public_key),
  capabilities text NOT NULL,
  user_agent text NOT NULL DEFAULT '',
  created_at bigint NOT NULL
);`
}

func (p *PostgresV0) InsertSession() string {
	return `INSERT INTO ` + p.schema + `sessions (secret, user_public_key, capabilities, user_agent, created_at) VALUES ($1, $2, $3, $4, $5) RETURNING id`
}

func (p *PostgresV0) SessionBySecret() string {
	return `SELECT id, secret, user_public_key, capabilities, user_agent, created_at FROM ` + p.schema + `sessions WHERE secret = $1`
}

func (p *PostgresV0) DeleteSession() string {
	return `DELETE FROM ` + p.schema + `sessions WHERE secret = $1`
}

func (p *PostgresV0) SessionsByUser() string {
	return `SELECT id, secret, user_public_key, capabilities, user_agent, created_at FROM ` + p.schema + `sessions WHERE user_public_key = $1 ORDER BY created_at ASC`
}

func (p *PostgresV0) CreateEntriesTable() string {
	return `
CREATE TABLE IF NOT EXISTS ` + p.schema + `entries
(
  user_public_key text NOT NULL REFERENCES ` + p.schema + `users (public_key),
  path text NOT NULL,
  content_hash text NOT NULL,
  content_length bigint NOT NULL,
  content_type text NOT NULL,
  modified_at bigint NOT NULL,
  created_at bigint NOT NULL,
  PRIMARY KEY (user_public_key, path)
);`
}

func (p *PostgresV0) UpsertEntry() string {
	return `
INSERT INTO ` + p.schema + `entries (user_public_key, path, content_hash, content_length, content_type, modified_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (user_public_key, path) DO UPDATE SET
  content_hash = EXCLUDED.content_hash,
  content_length = EXCLUDED.content_length,
  content_type = EXCLUDED.content_type,
  modified_at = EXCLUDED.modified_at`
}

func (p *PostgresV0) EntryByPath() string {
	return `SELECT user_public_key, path, content_hash, content_length, content_type, modified_at, created_at FROM ` + p.schema + `entries WHERE user_public_key = $1 AND path = $2`
}

func (p *PostgresV0) DeleteEntry() string {
	return `DELETE FROM ` + p.schema + `entries WHERE user_public_key = $1 AND path = $2`
}

func (p *PostgresV0) EntriesByPrefix() string {
	return `
SELECT user_public_key, path, content_hash, content_length, content_type, modified_at, created_at FROM ` + p.schema + `entries
WHERE user_public_key = $1 AND path LIKE $2 ESCAPE '\'
ORDER BY path ASC`
}

func (p *PostgresV0) CountEntriesByContentHash() string {
	return `SELECT COUNT(*) FROM ` + p.schema + `entries WHERE content_hash = $1`
}

func (p *PostgresV0) CreateEventsTable() string {
	return `
CREATE TABLE IF NOT EXISTS ` + p.schema + `events
(
  id bigserial PRIMARY KEY,
  user_public_key text NOT NULL,
  kind text NOT NULL,
  path text NOT NULL,
  content_hash text,
  created_at bigint NOT NULL
);`
}

func (p *PostgresV0) InsertEvent() string {
	return `INSERT INTO ` + p.schema + `events (user_public_key, kind, path, content_hash, created_at) VALUES ($1, $2, $3, $4, $5) RETURNING id`
}

func (p *PostgresV0) EventsByCursor() string {
	return `
SELECT id, user_public_key, kind, path, content_hash, created_at FROM ` + p.schema + `events
WHERE id > $1
ORDER BY id ASC
LIMIT $2`
}

func (p *PostgresV0) FirstEventAtOrAfter() string {
	return `SELECT id FROM ` + p.schema + `events WHERE created_at >= $1 ORDER BY id ASC LIMIT 1`
}

func (p *PostgresV0) EventsByUserCursorAsc() string {
	return `
SELECT id, user_public_key, kind, path, content_hash, created_at FROM ` + p.schema + `events
WHERE user_public_key = $1 AND id > $2 AND path LIKE $3 ESCAPE '\'
ORDER BY id ASC`
}

func (p *PostgresV0) EventsByUserCursorDesc() string {
	return `
SELECT id, user_public_key, kind, path, content_hash, created_at FROM ` + p.schema + `events
WHERE user_public_key = $1 AND ($2 <= 0 OR id < $2) AND path LIKE $3 ESCAPE '\'
ORDER BY id DESC`
}

func (p *PostgresV0) CreateSignupCodesTable() string {
	return `
CREATE TABLE IF NOT EXISTS ` + p.schema + `signup_codes
(
  code text PRIMARY KEY,
  used_by text,
  created_at bigint NOT NULL
);`
}

func (p *PostgresV0) InsertSignupCode() string {
	return `INSERT INTO ` + p.schema + `signup_codes (code, created_at) VALUES ($1, $2)`
}

func (p *PostgresV0) ClaimSignupCode() string {
	return `UPDATE ` + p.schema + `signup_codes SET used_by = $2 WHERE code = $1 AND used_by IS NULL`
}

func (p *PostgresV0) SignupCodeByCode() string {
	return `SELECT code, used_by, created_at FROM ` + p.schema + `signup_codes WHERE code = $1`
}
