/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	applog "gochatpresenter/internal/log"
	"gochatpresenter/internal/playback"
	"gochatpresenter/internal/version"

	// Pure-Go SQLite driver (CGO-free)
	_ "modernc.org/sqlite"
)

const (
	SQLiteFileName = "state.sqlite"

	// sqliteSchemaVersion tracks the embedded schema. Bump it together with a
	// new case in runSQLiteMigrations.
	sqliteSchemaVersion = 2

	// DefaultLogLimit is how many saved revisions per key SQLiteStore keeps.
	DefaultLogLimit = 200
)

// language=SQL
// dialect=SQLite
const upsertStateSQL = `INSERT INTO playback_state(key, data, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`

// language=SQL
// dialect=SQLite
const selectStateSQL = `SELECT data FROM playback_state WHERE key = ?`

// language=SQL
// dialect=SQLite
const deleteStateSQL = `DELETE FROM playback_state WHERE key = ?`

// language=SQL
// dialect=SQLite
const insertLogSQL = `INSERT INTO playback_log(key, ts, data) VALUES (?, ?, ?)`

// language=SQL
// dialect=SQLite
const listLogSQL = `SELECT ts, data FROM playback_log WHERE key = ? ORDER BY id DESC LIMIT ?`

// language=SQL
// dialect=SQLite
const pruneLogSQL = `DELETE FROM playback_log WHERE key = ? AND id NOT IN (
	SELECT id FROM playback_log WHERE key = ? ORDER BY id DESC LIMIT ?
)`

// Revision is one saved snapshot from the history log.
type Revision struct {
	TS   time.Time
	Data []byte
}

// SQLiteStore saves snapshots in <dir>/state.sqlite and appends every save
// to a bounded per-key history log.
type SQLiteStore struct {
	db       *sql.DB
	path     string
	logLimit int
}

// OpenSQLite opens or creates the database in dir, enables WAL mode and
// brings the schema up to date.
func OpenSQLite(dir string) (*SQLiteStore, error) {
	l := applog.WithOperation(applog.WithComponent("storage"), "sqlite_open").With(slog.String("dir", dir))
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("storage dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	path := filepath.Join(dir, SQLiteFileName)
	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=busy_timeout(5000)", filepath.ToSlash(path))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		l.Error("sqlite open failed", slog.Any("err", err))
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		l.Error("enable WAL failed", slog.Any("err", err))
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	for _, step := range []func(context.Context, *sql.DB) error{ensureVersionTable, ensureStateSchema, runSQLiteMigrations} {
		if err := step(ctx, db); err != nil {
			_ = db.Close()
			l.Error("prepare schema failed", slog.Any("err", err))
			return nil, err
		}
	}
	l.Debug("state database ready", slog.String("path", path))
	return &SQLiteStore{db: db, path: path, logLimit: DefaultLogLimit}, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string { return s.path }

// SetLogLimit changes how many revisions per key are kept; 0 keeps all.
func (s *SQLiteStore) SetLogLimit(n int) { s.logLimit = n }

// SchemaVersion returns the schema recorded in the version table.
func (s *SQLiteStore) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	err := s.db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&v)
	return v, err
}

func ensureVersionTable(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS version (
			id          INTEGER PRIMARY KEY CHECK(id=1),
			schema      INTEGER NOT NULL,
			app         TEXT,
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		);`); err != nil {
		return fmt.Errorf("create version table: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	var cur int
	err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&cur)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// Fresh databases start at schema 1 and migrate forward.
		if _, err := db.ExecContext(ctx, `INSERT INTO version (id, schema, app, created_at, updated_at) VALUES(1, 1, ?, ?, ?)`, version.String(), now, now); err != nil {
			return fmt.Errorf("insert version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read version: %w", err)
	default:
		if _, err := db.ExecContext(ctx, `UPDATE version SET app=?, updated_at=? WHERE id=1`, version.String(), now); err != nil {
			return fmt.Errorf("update version: %w", err)
		}
	}
	return nil
}

func ensureStateSchema(ctx context.Context, db *sql.DB) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS playback_state (
			key        TEXT PRIMARY KEY,
			data       BLOB NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS playback_log (
			id   INTEGER PRIMARY KEY,
			key  TEXT NOT NULL,
			ts   TEXT NOT NULL,
			data BLOB NOT NULL
		);`,
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("create state schema: %w", err)
		}
	}
	return nil
}

// runSQLiteMigrations applies incremental migrations up to sqliteSchemaVersion.
func runSQLiteMigrations(ctx context.Context, db *sql.DB) error {
	var cur int
	if err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&cur); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	for cur < sqliteSchemaVersion {
		next := cur + 1
		var stmts []string
		switch next {
		case 2:
			stmts = []string{`CREATE INDEX IF NOT EXISTS idx_playback_log_key ON playback_log(key, id);`}
		}
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", next, err)
		}
		for _, q := range stmts {
			if _, err := tx.ExecContext(ctx, q); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("migration %d stmt failed: %w", next, err)
			}
		}
		if _, err := tx.ExecContext(ctx, `UPDATE version SET schema=?, updated_at=? WHERE id=1`, next, time.Now().UTC().Format(time.RFC3339)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d update version: %w", next, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d commit: %w", next, err)
		}
		cur = next
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, selectStateSQL, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, playback.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Save upserts the current snapshot and appends it to the history log in
// one transaction.
func (s *SQLiteStore) Save(ctx context.Context, key string, data []byte) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, upsertStateSQL, key, data, now); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("upsert state: %w", err)
	}
	if _, err := tx.ExecContext(ctx, insertLogSQL, key, now, data); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("append state log: %w", err)
	}
	if s.logLimit > 0 {
		if _, err := tx.ExecContext(ctx, pruneLogSQL, key, key, s.logLimit); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("prune state log: %w", err)
		}
	}
	return tx.Commit()
}

// Delete removes the current snapshot. The history log is kept.
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, deleteStateSQL, key)
	return err
}

// History returns up to limit revisions for key, newest first.
func (s *SQLiteStore) History(ctx context.Context, key string, limit int) ([]Revision, error) {
	if limit <= 0 {
		limit = DefaultLogLimit
	}
	rows, err := s.db.QueryContext(ctx, listLogSQL, key, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []Revision
	for rows.Next() {
		var ts string
		var data []byte
		if err := rows.Scan(&ts, &data); err != nil {
			return nil, err
		}
		t, _ := time.Parse(time.RFC3339Nano, ts)
		out = append(out, Revision{TS: t, Data: data})
	}
	return out, rows.Err()
}

// Prune keeps the newest keep revisions of key and reports how many were
// deleted.
func (s *SQLiteStore) Prune(ctx context.Context, key string, keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx, pruneLogSQL, key, key, keep)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
