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
	"fmt"
	"path/filepath"
	"testing"
	"time"
)

func TestSQLiteMigrationsUpgradeV1ToV2(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, SQLiteFileName)
	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=busy_timeout(2000)", filepath.ToSlash(path))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	// A v1 database has the tables but not the history index.
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`CREATE TABLE version (id INTEGER PRIMARY KEY CHECK(id=1), schema INTEGER NOT NULL, app TEXT, created_at TEXT NOT NULL, updated_at TEXT NOT NULL);`,
		`INSERT INTO version(id, schema, app, created_at, updated_at) VALUES(1, 1, 'test', '2020-01-01T00:00:00Z', '2020-01-01T00:00:00Z');`,
		`CREATE TABLE playback_state (key TEXT PRIMARY KEY, data BLOB NOT NULL, updated_at TEXT NOT NULL);`,
		`CREATE TABLE playback_log (id INTEGER PRIMARY KEY, key TEXT NOT NULL, ts TEXT NOT NULL, data BLOB NOT NULL);`,
		`INSERT INTO playback_state(key, data, updated_at) VALUES('default', '{"current_step":3}', '2020-01-01T00:00:00Z');`,
	}
	for _, q := range stmts {
		if _, err := db.ExecContext(ctx, q); err != nil {
			t.Fatalf("seed v1 schema: %v (q=%s)", err, q)
		}
	}
	_ = db.Close()

	s, err := OpenSQLite(dir)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer s.Close()
	v, err := s.SchemaVersion(ctx)
	if err != nil || v != sqliteSchemaVersion {
		t.Fatalf("schema = %d, %v; want %d", v, err, sqliteSchemaVersion)
	}
	var cnt int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name='idx_playback_log_key'`).Scan(&cnt); err != nil {
		t.Fatalf("query indexes: %v", err)
	}
	if cnt != 1 {
		t.Fatalf("expected history index after migration, got %d", cnt)
	}
	data, err := s.Load(ctx, "default")
	if err != nil {
		t.Fatalf("Load after migration: %v", err)
	}
	if string(data) != `{"current_step":3}` {
		t.Fatalf("data = %s", data)
	}
}
