/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package transcript records the chat messages rendered during a
// presentation so they can be replayed to late viewers and exported.
package transcript

import (
	"sync"
	"time"

	"gochatpresenter/internal/script"
)

// Message is one rendered chat bubble. Markup holds the final text including
// inline tags.
type Message struct {
	Step   int         `json:"step"`
	Role   script.Role `json:"role"`
	Markup string      `json:"markup"`
	At     time.Time   `json:"at"`
}

// Transcript is an append-only message log safe for concurrent use.
type Transcript struct {
	mu   sync.RWMutex
	msgs []Message
}

func New() *Transcript { return &Transcript{} }

// Append adds m and returns its index.
func (t *Transcript) Append(m Message) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.msgs = append(t.msgs, m)
	return len(t.msgs) - 1
}

// Reset drops every message.
func (t *Transcript) Reset() {
	t.mu.Lock()
	t.msgs = nil
	t.mu.Unlock()
}

// Messages returns a copy of the log.
func (t *Transcript) Messages() []Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Message, len(t.msgs))
	copy(out, t.msgs)
	return out
}

func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.msgs)
}
