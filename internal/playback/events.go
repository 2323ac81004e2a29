/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package playback

import "sync"

// Kind is a playback notification kind.
type Kind int

const (
	StepChanged Kind = iota + 1
	Reset
	TimerStarted
	TimerPaused
	BookmarkAdded
	BookmarkRemoved
	PresenterModeChanged
	StateLoaded
	StateImported
)

var kindNames = map[Kind]string{
	StepChanged:          "stepChanged",
	Reset:                "reset",
	TimerStarted:         "timerStarted",
	TimerPaused:          "timerPaused",
	BookmarkAdded:        "bookmarkAdded",
	BookmarkRemoved:      "bookmarkRemoved",
	PresenterModeChanged: "presenterModeChanged",
	StateLoaded:          "stateLoaded",
	StateImported:        "stateImported",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Event is delivered to listeners. Only the fields relevant to Kind are set.
type Event struct {
	Kind Kind
	// Step is the new current step for StepChanged.
	Step int
	// Bookmark is the added or removed bookmark; Index its position.
	Bookmark Bookmark
	Index    int
	// PresenterMode is the new value for PresenterModeChanged.
	PresenterMode bool
	Loaded        *PersistedSnapshot
	Imported      *ExportedSnapshot
}

// Listener receives events synchronously on the emitting goroutine.
type Listener func(Event)

// Subscription identifies a registered listener.
type Subscription struct {
	kind Kind
	id   uint64
}

type subscriber struct {
	id uint64
	fn Listener
}

// Bus is a typed publish/subscribe registry. Listeners for a kind run in
// registration order. Listeners registered during an Emit are not called for
// that emission.
type Bus struct {
	mu   sync.Mutex
	next uint64
	subs map[Kind][]subscriber
}

// On registers fn for events of kind k.
func (b *Bus) On(k Kind, fn Listener) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs == nil {
		b.subs = map[Kind][]subscriber{}
	}
	b.next++
	b.subs[k] = append(b.subs[k], subscriber{id: b.next, fn: fn})
	return Subscription{kind: k, id: b.next}
}

// Off removes a listener. Unknown subscriptions are ignored.
func (b *Bus) Off(s Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.subs[s.kind]
	for i, sub := range list {
		if sub.id == s.id {
			b.subs[s.kind] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

// Emit delivers e to the listeners of e.Kind.
func (b *Bus) Emit(e Event) {
	b.mu.Lock()
	list := append([]subscriber(nil), b.subs[e.Kind]...)
	b.mu.Unlock()
	for _, sub := range list {
		sub.fn(e)
	}
}
