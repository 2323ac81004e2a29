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
	"fmt"
	"log/slog"

	"gochatpresenter/internal/config"
	applog "gochatpresenter/internal/log"
	"gochatpresenter/internal/playback"
)

// Backend is a playback.Store that owns resources.
type Backend interface {
	playback.Store
	Close() error
}

// Historian is implemented by backends that keep a revision log.
type Historian interface {
	History(ctx context.Context, key string, limit int) ([]Revision, error)
}

var (
	_ Backend   = (*FileStore)(nil)
	_ Backend   = (*MemoryStore)(nil)
	_ Backend   = (*SQLiteStore)(nil)
	_ Backend   = (*PostgresStore)(nil)
	_ Historian = (*SQLiteStore)(nil)
	_ Historian = (*PostgresStore)(nil)
)

// Open builds the backend named by cfg.Backend.
func Open(ctx context.Context, cfg config.StorageConfig) (Backend, error) {
	l := applog.WithOperation(applog.WithComponent("storage"), "open").With(slog.String("backend", cfg.Backend))
	var (
		b   Backend
		err error
	)
	switch cfg.Backend {
	case "", "file":
		dir, derr := cfg.StorageDir()
		if derr != nil {
			return nil, derr
		}
		b, err = NewFileStore(dir)
	case "sqlite":
		dir, derr := cfg.StorageDir()
		if derr != nil {
			return nil, derr
		}
		b, err = OpenSQLite(dir)
	case "postgres":
		b, err = OpenPostgres(ctx, cfg.DSN)
	case "memory":
		b = NewMemoryStore()
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
	if err != nil {
		l.Error("open storage failed", slog.Any("err", err))
		return nil, err
	}
	l.Debug("storage ready")
	return b, nil
}
