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
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v4/stdlib"
	_ "modernc.org/sqlite"

	"github.com/pubky-network/pubky-go/internal/applog"
	"github.com/pubky-network/pubky-go/internal/config"
)

// Open establishes the *sql.DB for c's configured backend and returns the
// matching SqlDialect. No connection attempt is made yet (sql.Open only
// validates the DSN); call MustPing to force one.
func Open(c *config.Config) (db *sql.DB, dialect SqlDialect, err error) {
	switch c.Database.Kind {
	case "postgres":
		dialect = NewPostgresV0("public")
		db, err = sql.Open("pgx", postgresDSN(c.Database.Postgres))
	case "sqlite":
		dialect = NewSqliteV0()
		db, err = sql.Open("sqlite", c.Database.SQLitePath)
	default:
		err = fmt.Errorf("models: unsupported database kind %q", c.Database.Kind)
	}
	if err != nil {
		return nil, nil, err
	}

	if c.Database.MaxOpenConns > 0 {
		db.SetMaxOpenConns(c.Database.MaxOpenConns)
	}
	if c.Database.MaxIdleConns >= 0 {
		db.SetMaxIdleConns(c.Database.MaxIdleConns)
	}
	applog.Info.Infof("models: opened %s database", c.Database.Kind)
	return db, dialect, nil
}

// MustPing forces a connection, surfacing DSN or network errors eagerly
// instead of at the first query.
func MustPing(db *sql.DB) error {
	start := time.Now()
	if err := db.Ping(); err != nil {
		applog.Error.Errorf("models: ping failed: %s", err)
		return err
	}
	applog.Info.Infof("models: ping succeeded in %s", time.Since(start))
	return nil
}

func postgresDSN(pg config.PostgresConfig) string {
	s := fmt.Sprintf("dbname=%s user=%s", pg.DatabaseName, pg.UserName)
	if pg.Host != "" {
		s = fmt.Sprintf("%s host=%s", s, pg.Host)
	}
	if pg.Port > 0 {
		s = fmt.Sprintf("%s port=%d", s, pg.Port)
	}
	if pg.SSLMode != "" {
		s = fmt.Sprintf("%s sslmode=%s", s, pg.SSLMode)
	}
	return s
}

// CreateTables runs every registered Model's CreateTable within a single
// transaction, then Prepares each against db.
func CreateTables(db *sql.DB, dialect SqlDialect, models ...Model) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	for _, m := range models {
		if err := m.CreateTable(tx, dialect); err != nil {
			tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	for _, m := range models {
		if err := m.Prepare(db, dialect); err != nil {
			return err
		}
	}
	return nil
}
