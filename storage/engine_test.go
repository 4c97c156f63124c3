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
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/stretchr/testify/require"

	"github.com/pubky-network/pubky-go/crypto"
	"github.com/pubky-network/pubky-go/events"
	"github.com/pubky-network/pubky-go/internal/apperr"
	"github.com/pubky-network/pubky-go/models"
)

type testHarness struct {
	engine *Engine
	user   crypto.Keypair
}

func newTestHarness(t *testing.T, quotaBytes int64) *testHarness {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	dialect := models.NewSqliteV0()
	users := &models.Users{}
	entries := &models.Entries{}
	evModel := &models.Events{}
	require.NoError(t, models.CreateTables(db, dialect, users, entries, evModel))

	blobs, err := NewFileBlobStore(t.TempDir())
	require.NoError(t, err)

	kp, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	_, err = users.Create(context.Background(), kp.PublicKey(), quotaBytes)
	require.NoError(t, err)

	svc := events.NewService(evModel, 8)
	engine := NewEngine(db, dialect, blobs, users, entries, svc)
	return &testHarness{engine: engine, user: kp}
}

func TestEnginePutAndGetRoundTrip(t *testing.T) {
	h := newTestHarness(t, 1<<20)
	ctx := context.Background()

	entry, err := h.engine.Put(ctx, h.user.PublicKey(), "/pub/hello.txt", strings.NewReader("hello world"), "text/plain", 11)
	require.NoError(t, err)
	require.Equal(t, int64(11), entry.ContentLength)
	require.Equal(t, "text/plain", entry.ContentType)

	got, r, err := h.engine.Get(ctx, h.user.PublicKey(), "/pub/hello.txt")
	require.NoError(t, err)
	defer r.Close()
	require.Equal(t, entry.ContentHash, got.ContentHash)
}

func TestEnginePutRejectsOutsidePublicPrefix(t *testing.T) {
	h := newTestHarness(t, 1<<20)
	_, err := h.engine.Put(context.Background(), h.user.PublicKey(), "/private/secret.txt", strings.NewReader("x"), "text/plain", 1)
	require.Error(t, err)
	var appErr *apperr.Error
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, 403, appErr.Status)
}

func TestEnginePutSniffsContentType(t *testing.T) {
	h := newTestHarness(t, 1<<20)
	body := "<html><body>hi</body></html>"
	entry, err := h.engine.Put(context.Background(), h.user.PublicKey(), "/pub/page.html", strings.NewReader(body), "", int64(len(body)))
	require.NoError(t, err)
	require.Contains(t, entry.ContentType, "text/html")
}

func TestEnginePutEnforcesQuota(t *testing.T) {
	h := newTestHarness(t, 5)
	_, err := h.engine.Put(context.Background(), h.user.PublicKey(), "/pub/big.txt", strings.NewReader("way too big for the quota"), "text/plain", 26)
	require.Error(t, err)
	var appErr *apperr.Error
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, 507, appErr.Status)
}

func TestEnginePutOverwriteChargesOnlyDelta(t *testing.T) {
	h := newTestHarness(t, 15)
	ctx := context.Background()
	_, err := h.engine.Put(ctx, h.user.PublicKey(), "/pub/a.txt", strings.NewReader("0123456789"), "text/plain", 10)
	require.NoError(t, err)
	// Overwriting with an equal-length body must not double-charge the quota.
	_, err = h.engine.Put(ctx, h.user.PublicKey(), "/pub/a.txt", strings.NewReader("9876543210"), "text/plain", 10)
	require.NoError(t, err)
}

func TestEngineDeleteIsIdempotent(t *testing.T) {
	h := newTestHarness(t, 1<<20)
	ctx := context.Background()
	_, err := h.engine.Put(ctx, h.user.PublicKey(), "/pub/a.txt", strings.NewReader("data"), "text/plain", 4)
	require.NoError(t, err)

	require.NoError(t, h.engine.Delete(ctx, h.user.PublicKey(), "/pub/a.txt"))
	require.NoError(t, h.engine.Delete(ctx, h.user.PublicKey(), "/pub/a.txt"))

	_, _, err = h.engine.Get(ctx, h.user.PublicKey(), "/pub/a.txt")
	require.ErrorIs(t, err, models.ErrEntryNotFound)
}

func TestEngineDeleteGCsUnreferencedBlob(t *testing.T) {
	h := newTestHarness(t, 1<<20)
	ctx := context.Background()
	entry, err := h.engine.Put(ctx, h.user.PublicKey(), "/pub/a.txt", strings.NewReader("data"), "text/plain", 4)
	require.NoError(t, err)

	require.NoError(t, h.engine.Delete(ctx, h.user.PublicKey(), "/pub/a.txt"))

	_, err = h.engine.blobs.Open(entry.ContentHash)
	require.ErrorIs(t, err, ErrBlobNotFound)
}

func TestEngineListOrdersAndPaginates(t *testing.T) {
	h := newTestHarness(t, 1<<20)
	ctx := context.Background()
	for _, p := range []string{"/pub/b.txt", "/pub/a.txt", "/pub/c.txt"} {
		_, err := h.engine.Put(ctx, h.user.PublicKey(), p, strings.NewReader("x"), "text/plain", 1)
		require.NoError(t, err)
	}

	ids, err := h.engine.List(ctx, h.user.PublicKey(), "/pub/", ListOptions{})
	require.NoError(t, err)
	require.Len(t, ids, 3)
	require.Contains(t, ids[0], "/pub/a.txt")
	require.Contains(t, ids[2], "/pub/c.txt")

	page, err := h.engine.List(ctx, h.user.PublicKey(), "/pub/", ListOptions{Limit: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Contains(t, page[0], "/pub/a.txt")
}

func TestEngineListReverse(t *testing.T) {
	h := newTestHarness(t, 1<<20)
	ctx := context.Background()
	for _, p := range []string{"/pub/a.txt", "/pub/b.txt"} {
		_, err := h.engine.Put(ctx, h.user.PublicKey(), p, strings.NewReader("x"), "text/plain", 1)
		require.NoError(t, err)
	}

	ids, err := h.engine.List(ctx, h.user.PublicKey(), "/pub/", ListOptions{Reverse: true})
	require.NoError(t, err)
	require.Len(t, ids, 2)
	require.Contains(t, ids[0], "/pub/b.txt")
	require.Contains(t, ids[1], "/pub/a.txt")
}

func TestEnginePutQuotaOverrideGrantsMoreRoom(t *testing.T) {
	h := newTestHarness(t, 5)
	h.engine.WithQuotaOverrides([]QuotaOverride{{Pattern: "/pub/backups/*", Bytes: 1 << 20}})

	// Still over the user's own 5-byte quota, but within the override for
	// this path, so it must succeed.
	_, err := h.engine.Put(context.Background(), h.user.PublicKey(), "/pub/backups/archive.tar", strings.NewReader("way too big for the base quota"), "application/octet-stream", 31)
	require.NoError(t, err)

	// A sibling path outside the override pattern still obeys the base quota.
	_, err = h.engine.Put(context.Background(), h.user.PublicKey(), "/pub/big.txt", strings.NewReader("also too big"), "text/plain", 12)
	require.Error(t, err)
	var appErr *apperr.Error
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, 507, appErr.Status)
}

func TestParseQuotaOverridesRejectsMalformedPairs(t *testing.T) {
	_, err := ParseQuotaOverrides([]string{"/pub/backups/*"})
	require.Error(t, err)

	overrides, err := ParseQuotaOverrides([]string{"/pub/backups/*=10737418240"})
	require.NoError(t, err)
	require.Equal(t, []QuotaOverride{{Pattern: "/pub/backups/*", Bytes: 10737418240}}, overrides)
}

func TestEngineListShallowCollapsesSubdirectories(t *testing.T) {
	h := newTestHarness(t, 1<<20)
	ctx := context.Background()
	for _, p := range []string{"/pub/dir/x.txt", "/pub/dir/y.txt", "/pub/top.txt"} {
		_, err := h.engine.Put(ctx, h.user.PublicKey(), p, strings.NewReader("x"), "text/plain", 1)
		require.NoError(t, err)
	}

	ids, err := h.engine.List(ctx, h.user.PublicKey(), "/pub/", ListOptions{Shallow: true})
	require.NoError(t, err)
	require.Len(t, ids, 2)
	require.Contains(t, ids[0], "/pub/dir/")
	require.Contains(t, ids[1], "/pub/top.txt")
}
