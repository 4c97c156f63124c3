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

// SqlDialect is a SQL dialect provider: the two supported backends
// (Postgres in production, SQLite in tests) differ in placeholder
// syntax and how an inserted row's generated id is recovered.
type SqlDialect interface {
	// SupportsReturningID reports whether Insert* statements use a
	// trailing "RETURNING id" clause (Postgres) whose value is read via
	// QueryRowContext, as opposed to sql.Result.LastInsertId() (SQLite).
	SupportsReturningID() bool

	/* Table creation */

	CreateUsersTable() string
	CreateSessionsTable() string
	CreateEntriesTable() string
	CreateEventsTable() string
	CreateSignupCodesTable() string

	/* Users */

	// InsertUser: Params(PublicKey string, QuotaBytes int64, CreatedAt int64)
	InsertUser() string
	// UserByPublicKey: Params(PublicKey string) Returns(PublicKey, Disabled, QuotaBytes, UsedBytes, CreatedAt)
	UserByPublicKey() string
	// SetUserDisabled: Params(PublicKey string, Disabled bool)
	SetUserDisabled() string
	// AddUsedBytes: Params(PublicKey string, Delta int64)
	AddUsedBytes() string

	/* Sessions */

	// InsertSession: Params(Secret, UserPublicKey, Capabilities, UserAgent string, CreatedAt int64) Returns(ID int64)
	InsertSession() string
	// SessionBySecret: Params(Secret string) Returns(ID, Secret, UserPublicKey, Capabilities, UserAgent, CreatedAt)
	SessionBySecret() string
	// DeleteSession: Params(Secret string)
	DeleteSession() string
	// SessionsByUser: Params(UserPublicKey string) Returns(ID, Secret, UserPublicKey, Capabilities, UserAgent, CreatedAt)
	SessionsByUser() string

	/* Entries */

	// UpsertEntry: Params(UserPublicKey, Path, ContentHash, ContentType string, ContentLength, ModifiedAt, CreatedAt int64)
	UpsertEntry() string
	// EntryByPath: Params(UserPublicKey, Path string) Returns(UserPublicKey, Path, ContentHash, ContentLength, ContentType, ModifiedAt, CreatedAt)
	EntryByPath() string
	// DeleteEntry: Params(UserPublicKey, Path string)
	DeleteEntry() string
	// EntriesByPrefix: Params(UserPublicKey, PathPrefix string) Returns(UserPublicKey, Path, ContentHash, ContentLength, ContentType, ModifiedAt, CreatedAt)
	EntriesByPrefix() string
	// CountEntriesByContentHash: Params(ContentHash string) Returns(Count int64)
	CountEntriesByContentHash() string

	/* Events */

	// InsertEvent: Params(UserPublicKey, Kind, Path string, ContentHash *string, CreatedAt int64) Returns(ID int64)
	InsertEvent() string
	// EventsByCursor: Params(Cursor int64, Limit int) Returns(ID, UserPublicKey, Kind, Path, ContentHash, CreatedAt)
	EventsByCursor() string
	// FirstEventAtOrAfter: Params(Timestamp int64) Returns(ID)
	FirstEventAtOrAfter() string
	// EventsByUserCursorAsc: Params(UserPublicKey string, Cursor int64, PathPrefix string) Returns(ID, UserPublicKey, Kind, Path, ContentHash, CreatedAt), ascending, id > Cursor
	EventsByUserCursorAsc() string
	// EventsByUserCursorDesc: Params(UserPublicKey string, Cursor int64, PathPrefix string) Returns(ID, UserPublicKey, Kind, Path, ContentHash, CreatedAt), descending, id < Cursor (Cursor of 0 or less means unbounded)
	EventsByUserCursorDesc() string

	/* Signup codes */

	// InsertSignupCode: Params(Code string, CreatedAt int64)
	InsertSignupCode() string
	// ClaimSignupCode: Params(Code, UsedBy string) Returns rows affected: 1 iff the code was unused
	ClaimSignupCode() string
	// SignupCodeByCode: Params(Code string) Returns(Code, UsedBy, CreatedAt)
	SignupCodeByCode() string
}
