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

package workers

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/stretchr/testify/require"

	"github.com/pubky-network/pubky-go/models"
)

func TestBackupWorkerWritesSnapshot(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "pubky.db")
	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, err = db.Exec("CREATE TABLE t (id INTEGER PRIMARY KEY)")
	require.NoError(t, err)

	backupDir := t.TempDir()
	w := NewBackupWorker(db, models.NewSqliteV0(), backupDir, 0)
	w.backupOnce(context.Background())

	entries, err := os.ReadDir(backupDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestBackupWorkerIsNoopForPostgres(t *testing.T) {
	w := NewBackupWorker(nil, models.NewPostgresV0("public"), t.TempDir(), 0)
	w.backupOnce(context.Background()) // must not panic on a nil *sql.DB
}
