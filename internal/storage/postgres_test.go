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
	"errors"
	"os"
	"testing"
	"time"

	"gochatpresenter/internal/playback"
)

// openPGForTest connects to GCP_PG_DSN and skips when it is unset or the
// server cannot be reached.
func openPGForTest(t *testing.T) *PostgresStore {
	t.Helper()
	dsn := os.Getenv("GCP_PG_DSN")
	if dsn == "" {
		t.Skip("GCP_PG_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, err := OpenPostgres(ctx, dsn)
	if err != nil {
		t.Skipf("postgres not available: %v", err)
	}
	return s
}

func TestPostgresStoreRoundTrip(t *testing.T) {
	s := openPGForTest(t)
	defer func() { _ = s.Close() }()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	key := "test-" + time.Now().Format("150405.000000000")
	defer func() { _ = s.Delete(context.Background(), key) }()
	if _, err := s.Load(ctx, key); !errors.Is(err, playback.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.Save(ctx, key, []byte(`{"currentStep":1}`)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Save(ctx, key, []byte(`{"currentStep":2}`)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	b, err := s.Load(ctx, key)
	if err != nil || string(b) != `{"currentStep": 2}` {
		t.Fatalf("Load = %q, %v", b, err)
	}
	revs, err := s.History(ctx, key, 5)
	if err != nil || len(revs) != 2 {
		t.Fatalf("History = %d, %v", len(revs), err)
	}
	// Migrations are recorded and not applied twice.
	if err := applyMigrations(ctx, s.db); err != nil {
		t.Fatalf("re-apply migrations: %v", err)
	}
}
