/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package playback

import (
	"context"
	"time"
)

// Bookmark marks a step with a label. Timestamp is Unix milliseconds.
type Bookmark struct {
	Step      int    `json:"step"`
	Label     string `json:"label"`
	Timestamp int64  `json:"timestamp"`
}

// State is a copy of the machine's fields.
type State struct {
	CurrentStep   int
	History       []int
	Bookmarks     []Bookmark
	StartTime     *time.Time
	PausedTime    time.Duration
	PresenterMode bool
}

// PersistedSnapshot is the auto-saved record. It is always written whole.
type PersistedSnapshot struct {
	Version     string     `json:"version"`
	CurrentStep int        `json:"currentStep"`
	History     []int      `json:"history"`
	Bookmarks   []Bookmark `json:"bookmarks"`
	StartTime   *int64     `json:"startTime"`
	PausedTime  int64      `json:"pausedTime"`
	Timestamp   int64      `json:"timestamp"`
}

// ExportedSnapshot is produced by ExportState and accepted by ImportState.
type ExportedSnapshot struct {
	Version     string     `json:"version"`
	CurrentStep int        `json:"currentStep"`
	History     []int      `json:"history"`
	Bookmarks   []Bookmark `json:"bookmarks"`
	ExportDate  string     `json:"exportDate"`
}

// Store persists snapshots by key. Load returns ErrNotFound when the key has
// never been saved or was deleted.
type Store interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}

func millis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms) }
