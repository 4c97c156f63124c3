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

package storage

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/pubky-network/pubky-go/crypto"
	"github.com/pubky-network/pubky-go/events"
	"github.com/pubky-network/pubky-go/internal/apperr"
	"github.com/pubky-network/pubky-go/models"
	"github.com/pubky-network/pubky-go/ptime"
	"github.com/pubky-network/pubky-go/pubkey"
)

// PublicPrefix is the one path prefix readable by anyone, with or
// without a session (spec.md §4.8).
const PublicPrefix = "/pub/"

// sniffLen bounds how much of a body with no declared Content-Type is
// read for MIME sniffing (spec.md §4.8).
const sniffLen = 512

// MaxListLimit and DefaultListLimit bound a List call's page size (spec.md
// §4.8).
const (
	MaxListLimit     = 1000
	DefaultListLimit = 100
)

// errInsufficientStorage is wrapped into an apperr.Request with status 507
// (Insufficient Storage, spec.md §7) whenever a write would push the
// user's used_bytes over quota.
var errInsufficientStorage = errors.New("storage: insufficient storage")

// QuotaOverride grants a different quota than a user's own QuotaBytes to
// paths matching Pattern (a path.Match glob), the admin surface's
// hs_quota_override_patterns knob (e.g. "/pub/backups/*" given more room
// than the default per-user quota).
type QuotaOverride struct {
	Pattern string
	Bytes   int64
}

// ParseQuotaOverrides parses the "glob=bytes" pairs a HomeserverConfig's
// QuotaOverridePatterns carries, in listed order (first match wins).
func ParseQuotaOverrides(patterns []string) ([]QuotaOverride, error) {
	out := make([]QuotaOverride, 0, len(patterns))
	for _, p := range patterns {
		glob, bytesStr, ok := strings.Cut(p, "=")
		if !ok {
			return nil, fmt.Errorf("storage: malformed quota override %q, want glob=bytes", p)
		}
		n, err := strconv.ParseInt(bytesStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("storage: malformed quota override %q: %w", p, err)
		}
		if _, err := path.Match(glob, "/pub/probe"); err != nil {
			return nil, fmt.Errorf("storage: invalid quota override pattern %q: %w", glob, err)
		}
		out = append(out, QuotaOverride{Pattern: glob, Bytes: n})
	}
	return out, nil
}

// Engine is the homeserver's object store: the namespace, quota, and
// content-addressing rules layered over a BlobStore and the entries/users
// tables (spec.md §4.8), emitting one event per write via events.Service
// (spec.md §4.9).
type Engine struct {
	db        *sql.DB
	dialect   models.SqlDialect
	blobs     BlobStore
	users     *models.Users
	entries   *models.Entries
	events    *events.Service
	overrides []QuotaOverride
}

// NewEngine wires an Engine over already-Prepared repositories and a live
// events.Service.
func NewEngine(db *sql.DB, dialect models.SqlDialect, blobs BlobStore, users *models.Users, entries *models.Entries, ev *events.Service) *Engine {
	return &Engine{db: db, dialect: dialect, blobs: blobs, users: users, entries: entries, events: ev}
}

// WithQuotaOverrides attaches per-path quota overrides (first matching
// pattern wins over the user's own QuotaBytes) and returns e for chaining.
func (e *Engine) WithQuotaOverrides(overrides []QuotaOverride) *Engine {
	e.overrides = overrides
	return e
}

// quotaFor resolves the effective quota for a write at path: the first
// matching override, or the user's own QuotaBytes.
func (e *Engine) quotaFor(user models.User, path_ string) int64 {
	for _, o := range e.overrides {
		if ok, _ := path.Match(o.Pattern, path_); ok {
			return o.Bytes
		}
	}
	return user.QuotaBytes
}

// Put writes body at path in userPubkey's namespace, enforcing the
// namespace and quota rules and appending exactly one PUT event. If
// contentLength >= 0 it is used for an early quota check before body is
// read, per spec.md §4.8 ("the check runs before the body is read to
// fail fast" when a length hint is available).
func (e *Engine) Put(ctx context.Context, userPubkey crypto.PublicKey, path string, body io.Reader, contentType string, contentLength int64) (models.Entry, error) {
	if !strings.HasPrefix(path, PublicPrefix) {
		return models.Entry{}, apperr.Request(http.StatusForbidden, "writes are only permitted under "+PublicPrefix)
	}

	user, err := e.users.ByPublicKey(ctx, userPubkey)
	if err != nil {
		return models.Entry{}, err
	}

	existing, err := e.entries.ByPath(ctx, userPubkey, path)
	hadExisting := true
	if errors.Is(err, models.ErrEntryNotFound) {
		hadExisting = false
	} else if err != nil {
		return models.Entry{}, err
	}

	quota := e.quotaFor(user, path)
	if contentLength >= 0 {
		if err := checkQuota(user, quota, existing, hadExisting, contentLength); err != nil {
			return models.Entry{}, err
		}
	}

	sniffed, bodyAfterSniff, err := detectContentType(contentType, body)
	if err != nil {
		return models.Entry{}, err
	}

	hash, length, err := e.blobs.Put(bodyAfterSniff)
	if err != nil {
		return models.Entry{}, err
	}

	if contentLength < 0 {
		if err := checkQuota(user, quota, existing, hadExisting, length); err != nil {
			e.blobs.Delete(hash)
			return models.Entry{}, err
		}
	}

	now := ptime.Now()
	createdAt := now
	if hadExisting {
		createdAt = existing.CreatedAt
	}
	entry := models.Entry{
		UserPubkey:    userPubkey,
		Path:          path,
		ContentHash:   hash,
		ContentLength: length,
		ContentType:   sniffed,
		ModifiedAt:    now,
		CreatedAt:     createdAt,
	}

	delta := length
	if hadExisting {
		delta = length - existing.ContentLength
	}

	ev, err := e.commitWriteEvent(ctx, userPubkey, path, user, entry, delta, models.EventPut, &hash)
	if err != nil {
		return models.Entry{}, err
	}
	e.events.Publish(ev)

	if hadExisting && existing.ContentHash != hash {
		e.gcBlobIfUnreferenced(ctx, existing.ContentHash)
	}
	return entry, nil
}

// Get fetches the entry metadata and a reader over its bytes. Callers
// enforce the namespace-read rule (public GETs need no capability; any
// other path needs a scoped session) before calling this.
func (e *Engine) Get(ctx context.Context, userPubkey crypto.PublicKey, path string) (models.Entry, io.ReadCloser, error) {
	entry, err := e.entries.ByPath(ctx, userPubkey, path)
	if err != nil {
		return models.Entry{}, nil, err
	}
	r, err := e.blobs.Open(entry.ContentHash)
	if err != nil {
		return models.Entry{}, nil, err
	}
	return entry, r, nil
}

// Delete removes the entry at path and appends a DELETE event. Deleting
// an already-absent path is a no-op (spec.md §4.8), not an error.
func (e *Engine) Delete(ctx context.Context, userPubkey crypto.PublicKey, path string) error {
	existing, err := e.entries.ByPath(ctx, userPubkey, path)
	if errors.Is(err, models.ErrEntryNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	tx, err := e.db.Begin()
	if err != nil {
		return err
	}
	if err := e.entries.DeleteTx(ctx, tx, e.dialect, userPubkey, path); err != nil {
		tx.Rollback()
		return err
	}
	if err := e.users.AddUsedBytesTx(ctx, tx, e.dialect, userPubkey, -existing.ContentLength); err != nil {
		tx.Rollback()
		return err
	}
	ev, err := e.events.Append(ctx, tx, models.Event{
		UserPubkey: userPubkey,
		Kind:       models.EventDelete,
		Path:       path,
		CreatedAt:  ptime.Now(),
	})
	if err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.events.Publish(ev)

	e.gcBlobIfUnreferenced(ctx, existing.ContentHash)
	return nil
}

// ListOptions windows a List call (spec.md §4.8): Reverse walks the
// namespace from the end, Shallow collapses everything past the first
// path segment after prefix into one synthetic directory entry, Limit
// clamps into [1, MaxListLimit] (DefaultListLimit when unset), and Cursor
// resumes after (or, if Reverse, before) the given identifier.
type ListOptions struct {
	Reverse bool
	Shallow bool
	Limit   int
	Cursor  string
}

// List returns the identifiers under prefix in userPubkey's namespace, as
// absolute `pubky://<user>/<path>` addresses, lexicographically ordered.
func (e *Engine) List(ctx context.Context, userPubkey crypto.PublicKey, prefix string, opts ListOptions) ([]string, error) {
	entries, err := e.entries.ByPrefix(ctx, userPubkey, prefix)
	if err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(entries))
	for _, entry := range entries {
		paths = append(paths, entry.Path)
	}
	sort.Strings(paths)

	if opts.Shallow {
		paths = shallowen(paths, prefix)
	}
	if opts.Reverse {
		reverseStrings(paths)
	}
	if opts.Cursor != "" {
		paths = afterCursor(paths, opts.Cursor, opts.Reverse)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	} else if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if len(paths) > limit {
		paths = paths[:limit]
	}

	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = pubkey.Identifier(userPubkey, p)
	}
	return out, nil
}

// shallowen collapses every path into at most the first segment following
// prefix, deduplicating adjacent repeats, so a listing of a directory
// doesn't recurse into its subdirectories (spec.md §4.8's shallow=true).
func shallowen(paths []string, prefix string) []string {
	seen := make(map[string]struct{}, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		rest := strings.TrimPrefix(p, prefix)
		collapsed := p
		if idx := strings.Index(rest, "/"); idx >= 0 {
			collapsed = prefix + rest[:idx+1]
		}
		if _, ok := seen[collapsed]; ok {
			continue
		}
		seen[collapsed] = struct{}{}
		out = append(out, collapsed)
	}
	return out
}

func reverseStrings(s []string) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

// afterCursor drops every path up to and including cursor, honoring
// listing direction.
func afterCursor(paths []string, cursor string, reverse bool) []string {
	for i, p := range paths {
		if p == cursor {
			return paths[i+1:]
		}
		if !reverse && p > cursor {
			return paths[i:]
		}
		if reverse && p < cursor {
			return paths[i:]
		}
	}
	return nil
}

func (e *Engine) commitWriteEvent(ctx context.Context, userPubkey crypto.PublicKey, path string, user models.User, entry models.Entry, usedBytesDelta int64, kind models.EventKind, hash *string) (models.Event, error) {
	tx, err := e.db.Begin()
	if err != nil {
		return models.Event{}, err
	}
	if err := e.entries.UpsertTx(ctx, tx, e.dialect, entry); err != nil {
		tx.Rollback()
		return models.Event{}, err
	}
	if usedBytesDelta != 0 {
		if err := e.users.AddUsedBytesTx(ctx, tx, e.dialect, userPubkey, usedBytesDelta); err != nil {
			tx.Rollback()
			return models.Event{}, err
		}
	}
	ev, err := e.events.Append(ctx, tx, models.Event{
		UserPubkey:  userPubkey,
		Kind:        kind,
		Path:        path,
		ContentHash: hash,
		CreatedAt:   ptime.Now(),
	})
	if err != nil {
		tx.Rollback()
		return models.Event{}, err
	}
	return ev, tx.Commit()
}

// gcBlobIfUnreferenced deletes a blob once no entry references it anymore
// (spec.md §4.8's "body reference counts decrement and the body is GC'd
// when the count reaches zero").
func (e *Engine) gcBlobIfUnreferenced(ctx context.Context, hash string) {
	n, err := e.entries.CountByContentHash(ctx, hash)
	if err != nil || n > 0 {
		return
	}
	e.blobs.Delete(hash)
}

func checkQuota(user models.User, quota int64, existing models.Entry, hadExisting bool, newLength int64) error {
	var growth int64
	if hadExisting {
		growth = newLength - existing.ContentLength
	} else {
		growth = newLength
	}
	if growth < 0 {
		growth = 0
	}
	if user.UsedBytes+growth > quota {
		return apperr.Request(http.StatusInsufficientStorage, errInsufficientStorage.Error())
	}
	return nil
}

// detectContentType returns declared if non-empty, otherwise sniffs up to
// sniffLen bytes of body via net/http.DetectContentType, returning a
// reader that still yields the full original stream.
func detectContentType(declared string, body io.Reader) (string, io.Reader, error) {
	if declared != "" {
		return declared, body, nil
	}
	buf := make([]byte, sniffLen)
	n, err := io.ReadFull(body, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", nil, err
	}
	mime := http.DetectContentType(buf[:n])
	return mime, io.MultiReader(bytes.NewReader(buf[:n]), body), nil
}
