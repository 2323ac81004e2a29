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
	"encoding/json"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"gochatpresenter/internal/clock"
	applog "gochatpresenter/internal/log"
)

type memStore struct {
	mu       sync.Mutex
	data     map[string][]byte
	saves    int
	deletes  int
	failSave error
}

func newMemStore() *memStore { return &memStore{data: map[string][]byte{}} }

func (s *memStore) Load(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), b...), nil
}

func (s *memStore) Save(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSave != nil {
		return s.failSave
	}
	s.saves++
	s.data[key] = append([]byte(nil), data...)
	return nil
}

func (s *memStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes++
	delete(s.data, key)
	return nil
}

const testKey = "test-state"

func newMachine(t *testing.T, autoSave bool, store Store) (*Machine, *clock.Fake) {
	t.Helper()
	c := clock.NewFake(time.UnixMilli(1_700_000_000_000))
	m := New(Options{Key: testKey, Version: "1.0.0", AutoSave: autoSave, Clock: c, Logger: applog.Discard()}, store)
	return m, c
}

func TestHistoryPushPop(t *testing.T) {
	m, _ := newMachine(t, false, nil)
	m.SetStep(1, true)
	m.SetStep(2, true)
	if got := m.State().History; !reflect.DeepEqual(got, []int{0, 1}) {
		t.Fatalf("history = %v, want [0 1]", got)
	}
	if !m.GoBack() {
		t.Fatalf("GoBack = false, want true")
	}
	s := m.State()
	if s.CurrentStep != 1 || !reflect.DeepEqual(s.History, []int{0}) {
		t.Fatalf("after back: step %d history %v", s.CurrentStep, s.History)
	}
}

func TestSetStepWithoutHistory(t *testing.T) {
	m, _ := newMachine(t, false, nil)
	m.SetStep(1, false)
	m.SetStep(2, false)
	if got := m.State().History; len(got) != 0 {
		t.Fatalf("history = %v, want empty", got)
	}
}

func TestSetStepSameStepDoesNotPush(t *testing.T) {
	m, _ := newMachine(t, false, nil)
	m.SetStep(0, true)
	if got := m.State().History; len(got) != 0 {
		t.Fatalf("history = %v, want empty", got)
	}
}

func TestGoBackEmptyHistory(t *testing.T) {
	m, _ := newMachine(t, false, nil)
	var events int
	m.On(StepChanged, func(Event) { events++ })
	if m.GoBack() {
		t.Fatalf("GoBack on empty history = true")
	}
	if events != 0 || m.Step() != 0 {
		t.Fatalf("state changed on failed GoBack")
	}
}

func TestGoForwardBoundary(t *testing.T) {
	m, _ := newMachine(t, false, nil)
	if !m.GoForward(3) || m.Step() != 1 {
		t.Fatalf("GoForward from 0 of 3 should move to 1, at %d", m.Step())
	}
	m.SetStep(2, true)
	before := m.State()
	if m.GoForward(3) {
		t.Fatalf("GoForward at last step = true")
	}
	if after := m.State(); !reflect.DeepEqual(before, after) {
		t.Fatalf("state changed: %+v -> %+v", before, after)
	}
}

func TestBookmarks(t *testing.T) {
	m, _ := newMachine(t, false, nil)
	m.AddBookmark(5, "A")
	m.AddBookmark(7, "B")
	if !m.GoToBookmark(0) || m.Step() != 5 {
		t.Fatalf("GoToBookmark(0) -> step %d, want 5", m.Step())
	}
	if !m.RemoveBookmark(0) {
		t.Fatalf("RemoveBookmark(0) = false")
	}
	bs := m.State().Bookmarks
	if len(bs) != 1 || bs[0].Label != "B" || bs[0].Step != 7 {
		t.Fatalf("bookmarks = %+v, want only B", bs)
	}
	if m.RemoveBookmark(3) || m.RemoveBookmark(-1) || m.GoToBookmark(9) {
		t.Fatalf("out-of-range bookmark operations must be no-ops")
	}
}

func TestBookmarkTimestamp(t *testing.T) {
	m, c := newMachine(t, false, nil)
	b := m.AddBookmark(1, "x")
	if b.Timestamp != c.Now().UnixMilli() {
		t.Fatalf("timestamp = %d, want %d", b.Timestamp, c.Now().UnixMilli())
	}
}

func TestResetKeepsBookmarks(t *testing.T) {
	m, _ := newMachine(t, false, nil)
	m.SetStep(3, true)
	m.StartTimer()
	m.AddBookmark(3, "keep")
	m.Reset()
	s := m.State()
	if s.CurrentStep != 0 || len(s.History) != 0 || s.StartTime != nil || s.PausedTime != 0 {
		t.Fatalf("reset state = %+v", s)
	}
	if len(s.Bookmarks) != 1 {
		t.Fatalf("bookmarks cleared by reset: %+v", s.Bookmarks)
	}
}

func TestTimer(t *testing.T) {
	m, c := newMachine(t, false, nil)
	if m.ElapsedTime() != 0 {
		t.Fatalf("elapsed before start = %v", m.ElapsedTime())
	}
	started := 0
	m.On(TimerStarted, func(Event) { started++ })
	if !m.StartTimer() {
		t.Fatal("first StartTimer should start the clock")
	}
	c.Advance(2 * time.Second)
	if m.StartTimer() {
		t.Fatal("StartTimer on a running clock should report false")
	}
	if started != 1 {
		t.Fatalf("timerStarted emitted %d times, want 1", started)
	}
	if got := m.ElapsedTime(); got != 2*time.Second {
		t.Fatalf("elapsed = %v, want 2s", got)
	}
	if got := m.EstimatedTimeRemaining(15 * time.Minute); got != 15*time.Minute-2*time.Second {
		t.Fatalf("remaining = %v", got)
	}
	if got := m.EstimatedTimeRemaining(time.Second); got != 0 {
		t.Fatalf("remaining past estimate = %v, want 0", got)
	}
}

func TestPauseAndResumeTimer(t *testing.T) {
	m, c := newMachine(t, false, nil)
	m.StartTimer()
	c.Advance(3 * time.Second)
	m.PauseTimer()
	c.Advance(time.Minute)
	if got := m.ElapsedTime(); got != 0 {
		t.Fatalf("elapsed while paused = %v, want 0", got)
	}
	if got := m.State().PausedTime; got != 3*time.Second {
		t.Fatalf("paused offset = %v, want 3s", got)
	}
	m.StartTimer()
	c.Advance(time.Second)
	if got := m.ElapsedTime(); got != 4*time.Second {
		t.Fatalf("elapsed after resume = %v, want 4s", got)
	}
}

func TestPresenterModeToggle(t *testing.T) {
	m, _ := newMachine(t, false, nil)
	var got []bool
	m.On(PresenterModeChanged, func(e Event) { got = append(got, e.PresenterMode) })
	m.TogglePresenterMode()
	m.TogglePresenterMode()
	if !reflect.DeepEqual(got, []bool{true, false}) {
		t.Fatalf("events = %v", got)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	m, _ := newMachine(t, false, nil)
	m.SetStep(8, true)
	m.AddBookmark(2, "a")
	m.AddBookmark(8, "b")
	data, err := m.ExportState()
	if err != nil {
		t.Fatalf("ExportState: %v", err)
	}
	var exp map[string]any
	if err := json.Unmarshal(data, &exp); err != nil {
		t.Fatalf("export is not JSON: %v", err)
	}
	for _, k := range []string{"version", "currentStep", "history", "bookmarks", "exportDate"} {
		if _, ok := exp[k]; !ok {
			t.Fatalf("export missing %q: %s", k, data)
		}
	}

	other, _ := newMachine(t, false, nil)
	imported := 0
	other.On(StateImported, func(Event) { imported++ })
	if err := other.ImportState(data); err != nil {
		t.Fatalf("ImportState: %v", err)
	}
	s := other.State()
	if s.CurrentStep != 8 || len(s.Bookmarks) != 2 || !reflect.DeepEqual(s.History, []int{0}) {
		t.Fatalf("imported state = %+v", s)
	}
	if imported != 1 {
		t.Fatalf("stateImported emitted %d times", imported)
	}
}

func TestImportInvalidLeavesState(t *testing.T) {
	m, _ := newMachine(t, false, nil)
	m.SetStep(4, true)
	before := m.State()
	for _, in := range []string{"", "not json", "null", "[1,2]", `{"currentStep": "x"}`, `{"currentStep": -1}`, `{"history": [0, -2]}`} {
		err := m.ImportState([]byte(in))
		var ie *ImportError
		if !errors.As(err, &ie) {
			t.Fatalf("ImportState(%q) err = %v, want *ImportError", in, err)
		}
	}
	if after := m.State(); !reflect.DeepEqual(before, after) {
		t.Fatalf("state mutated by failed import: %+v -> %+v", before, after)
	}
}

func TestImportAcceptsAnyBookmarkStep(t *testing.T) {
	m, _ := newMachine(t, false, nil)
	if err := m.ImportState([]byte(`{"currentStep": 2, "bookmarks": [{"step": -3, "label": "before start", "timestamp": 1}]}`)); err != nil {
		t.Fatalf("ImportState: %v", err)
	}
	s := m.State()
	if s.CurrentStep != 2 || len(s.Bookmarks) != 1 || s.Bookmarks[0].Step != -3 {
		t.Fatalf("state = %+v", s)
	}
}

func TestImportDefaultsMissingFields(t *testing.T) {
	m, _ := newMachine(t, false, nil)
	m.SetStep(3, true)
	m.AddBookmark(1, "x")
	if err := m.ImportState([]byte(`{"currentStep": 2}`)); err != nil {
		t.Fatalf("ImportState: %v", err)
	}
	s := m.State()
	if s.CurrentStep != 2 || s.History == nil || len(s.History) != 0 || len(s.Bookmarks) != 0 {
		t.Fatalf("state = %+v, want step 2 and empty lists", s)
	}
}

func TestAutoSavePersistsAndRestores(t *testing.T) {
	store := newMemStore()
	m, c := newMachine(t, true, store)
	m.StartTimer()
	c.Advance(5 * time.Second)
	m.SetStep(1, true)
	m.SetStep(4, true)
	m.AddBookmark(4, "here")

	var snap PersistedSnapshot
	if err := json.Unmarshal(store.data[testKey], &snap); err != nil {
		t.Fatalf("persisted snapshot: %v", err)
	}
	if snap.Version != "1.0.0" || snap.CurrentStep != 4 || snap.StartTime == nil || snap.Timestamp == 0 {
		t.Fatalf("snapshot = %+v", snap)
	}

	restored := New(Options{Key: testKey, Version: "1.0.0", AutoSave: true, Clock: c, Logger: applog.Discard()}, store)
	s := restored.State()
	if s.CurrentStep != 4 || !reflect.DeepEqual(s.History, []int{0, 1}) || len(s.Bookmarks) != 1 {
		t.Fatalf("restored state = %+v", s)
	}
	if got := restored.ElapsedTime(); got != 5*time.Second {
		t.Fatalf("restored elapsed = %v, want 5s", got)
	}
}

func TestSetStepWithoutAutoSaveDoesNotPersist(t *testing.T) {
	store := newMemStore()
	m, _ := newMachine(t, false, store)
	m.SetStep(2, true)
	if store.saves != 0 {
		t.Fatalf("SetStep persisted with auto-save off")
	}
	m.AddBookmark(2, "b")
	if store.saves != 1 {
		t.Fatalf("AddBookmark saves = %d, want 1", store.saves)
	}
}

func TestLoadVersionMismatchDiscards(t *testing.T) {
	store := newMemStore()
	store.data[testKey] = []byte(`{"version":"0.9.0","currentStep":6,"history":[0,5],"bookmarks":[],"startTime":null,"pausedTime":0,"timestamp":1}`)
	m, _ := newMachine(t, true, store)
	if s := m.State(); s.CurrentStep != 0 || len(s.History) != 0 {
		t.Fatalf("mismatched snapshot was applied: %+v", s)
	}
	if store.deletes != 1 {
		t.Fatalf("deletes = %d, want 1", store.deletes)
	}
	var snap PersistedSnapshot
	_ = json.Unmarshal(store.data[testKey], &snap)
	if snap.Version != "1.0.0" {
		t.Fatalf("store not rewritten with current version: %s", store.data[testKey])
	}
}

func TestLoadCorruptDiscards(t *testing.T) {
	store := newMemStore()
	store.data[testKey] = []byte(`{"version": "1.0.0", "currentStep": `)
	m, _ := newMachine(t, true, store)
	if m.Step() != 0 || store.deletes != 1 {
		t.Fatalf("corrupt snapshot not discarded: step %d deletes %d", m.Step(), store.deletes)
	}
}

func TestLoadMissingFieldsDefault(t *testing.T) {
	store := newMemStore()
	store.data[testKey] = []byte(`{"version":"1.0.0","currentStep":3}`)
	m, _ := newMachine(t, true, store)
	s := m.State()
	if s.CurrentStep != 3 || s.History == nil || s.Bookmarks == nil || s.StartTime != nil {
		t.Fatalf("state = %+v", s)
	}
}

func TestLoadKeepsUnvalidatedBookmarks(t *testing.T) {
	store := newMemStore()
	store.data[testKey] = []byte(`{"version":"1.0.0","currentStep":1,"bookmarks":[{"step":-1,"label":"x","timestamp":5}]}`)
	m, _ := newMachine(t, true, store)
	s := m.State()
	if s.CurrentStep != 1 || len(s.Bookmarks) != 1 || s.Bookmarks[0].Step != -1 {
		t.Fatalf("state = %+v", s)
	}
}

func TestLoadedPausedOffsetIsNotElapsed(t *testing.T) {
	store := newMemStore()
	store.data[testKey] = []byte(`{"version":"1.0.0","currentStep":2,"startTime":null,"pausedTime":7000}`)
	m, c := newMachine(t, true, store)
	if got := m.ElapsedTime(); got != 0 {
		t.Fatalf("elapsed before start = %v, want 0", got)
	}
	m.StartTimer()
	c.Advance(time.Second)
	if got := m.ElapsedTime(); got != 8*time.Second {
		t.Fatalf("elapsed after start = %v, want 8s", got)
	}
}

func TestWriteFailureIsSwallowed(t *testing.T) {
	store := newMemStore()
	store.failSave = errors.New("quota exceeded")
	m, _ := newMachine(t, true, store)
	m.SetStep(1, true)
	if m.Step() != 1 {
		t.Fatalf("playback did not continue after write failure")
	}
	var we *WriteError
	if err := m.Save(); !errors.As(err, &we) {
		t.Fatalf("Save err = %v, want *WriteError", err)
	}
}

func TestBusOrderAndOff(t *testing.T) {
	var b Bus
	var got []string
	b.On(StepChanged, func(Event) { got = append(got, "a") })
	sub := b.On(StepChanged, func(Event) { got = append(got, "b") })
	b.On(StepChanged, func(Event) { got = append(got, "c") })
	b.On(Reset, func(Event) { got = append(got, "reset") })
	b.Emit(Event{Kind: StepChanged})
	b.Off(sub)
	b.Off(sub)
	b.Emit(Event{Kind: StepChanged})
	want := []string{"a", "b", "c", "a", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("delivery = %v, want %v", got, want)
	}
}

func TestStepChangedCarriesStep(t *testing.T) {
	m, _ := newMachine(t, false, nil)
	var steps []int
	m.On(StepChanged, func(e Event) { steps = append(steps, e.Step) })
	m.SetStep(3, true)
	m.GoBack()
	if !reflect.DeepEqual(steps, []int{3, 0}) {
		t.Fatalf("steps = %v, want [3 0]", steps)
	}
}

func TestKindString(t *testing.T) {
	if StepChanged.String() != "stepChanged" || Kind(99).String() != "unknown" {
		t.Fatalf("Kind.String mismatch")
	}
}
