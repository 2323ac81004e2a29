/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package playback owns the presentation position: the current step, the
// back-navigation history, bookmarks, the elapsed-time clock and presenter
// mode. Every mutation is synchronous and announces itself on a typed event
// bus; selected mutations are written through to a Store.
package playback

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"gochatpresenter/internal/clock"
)

const persistTimeout = 5 * time.Second

// Options configures a Machine.
type Options struct {
	// Key names the persisted snapshot in the Store.
	Key string
	// Version is written into snapshots; a stored snapshot with another
	// version is discarded on load.
	Version string
	// AutoSave loads saved state at construction and persists SetStep.
	AutoSave bool
	Clock    clock.Clock
	Logger   *slog.Logger
}

// Machine is the playback state machine. It is safe for concurrent use;
// events are emitted after the internal lock is released.
type Machine struct {
	Bus

	opts  Options
	store Store
	clk   clock.Clock
	log   *slog.Logger

	mu    sync.Mutex
	state State
}

// New builds a Machine. A nil store disables persistence. With AutoSave on,
// previously saved state is loaded before New returns.
func New(opts Options, store Store) *Machine {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	m := &Machine{
		opts:  opts,
		store: store,
		clk:   opts.Clock,
		log:   opts.Logger.With(slog.String("component", "playback")),
		state: State{History: []int{}, Bookmarks: []Bookmark{}},
	}
	if opts.AutoSave && store != nil {
		m.loadState()
	}
	return m
}

// State returns a deep copy of the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.copyLocked()
}

func (m *Machine) copyLocked() State {
	s := m.state
	s.History = append([]int{}, m.state.History...)
	s.Bookmarks = append([]Bookmark{}, m.state.Bookmarks...)
	if m.state.StartTime != nil {
		t := *m.state.StartTime
		s.StartTime = &t
	}
	return s
}

// Step returns the current step.
func (m *Machine) Step() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.CurrentStep
}

// SetStep moves to step. With addToHistory the previous step is pushed onto
// the history unless the step does not change.
func (m *Machine) SetStep(step int, addToHistory bool) {
	m.mu.Lock()
	if addToHistory && step != m.state.CurrentStep {
		m.state.History = append(m.state.History, m.state.CurrentStep)
	}
	m.state.CurrentStep = step
	m.mu.Unlock()

	m.Emit(Event{Kind: StepChanged, Step: step})
	if m.opts.AutoSave {
		m.persist()
	}
}

// GoBack pops the most recent history entry into the current step. It
// reports false when there is no history.
func (m *Machine) GoBack() bool {
	m.mu.Lock()
	n := len(m.state.History)
	if n == 0 {
		m.mu.Unlock()
		return false
	}
	step := m.state.History[n-1]
	m.state.History = m.state.History[:n-1]
	m.state.CurrentStep = step
	m.mu.Unlock()

	m.Emit(Event{Kind: StepChanged, Step: step})
	m.persist()
	return true
}

// GoForward advances one step with history when a later step exists.
func (m *Machine) GoForward(totalSteps int) bool {
	m.mu.Lock()
	cur := m.state.CurrentStep
	m.mu.Unlock()
	if cur >= totalSteps-1 {
		return false
	}
	m.SetStep(cur+1, true)
	return true
}

// Reset returns to step 0 and clears history and the timer. Bookmarks and
// presenter mode are kept.
func (m *Machine) Reset() {
	m.mu.Lock()
	m.resetLocked()
	m.mu.Unlock()
	m.Emit(Event{Kind: Reset})
	m.persist()
}

func (m *Machine) resetLocked() {
	m.state.CurrentStep = 0
	m.state.History = []int{}
	m.state.StartTime = nil
	m.state.PausedTime = 0
}

// StartTimer starts the presentation clock, resuming from any paused
// offset. It reports false and does nothing when the clock is already
// running.
func (m *Machine) StartTimer() bool {
	m.mu.Lock()
	if m.state.StartTime != nil {
		m.mu.Unlock()
		return false
	}
	t := m.clk.Now().Add(-m.state.PausedTime)
	m.state.StartTime = &t
	m.mu.Unlock()
	m.Emit(Event{Kind: TimerStarted})
	return true
}

// PauseTimer stops the clock and remembers the elapsed time so a later
// StartTimer continues from it.
func (m *Machine) PauseTimer() {
	m.mu.Lock()
	if m.state.StartTime == nil {
		m.mu.Unlock()
		return
	}
	m.state.PausedTime = m.clk.Now().Sub(*m.state.StartTime)
	m.state.StartTime = nil
	m.mu.Unlock()
	m.Emit(Event{Kind: TimerPaused})
}

// ElapsedTime is the running time of the presentation. It is zero while
// the timer is not running; a paused offset is kept in State().PausedTime
// and counted again once StartTimer resumes.
func (m *Machine) ElapsedTime() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.StartTime == nil {
		return 0
	}
	return m.clk.Now().Sub(*m.state.StartTime)
}

// EstimatedTimeRemaining subtracts the elapsed time from estimated, never
// going below zero.
func (m *Machine) EstimatedTimeRemaining(estimated time.Duration) time.Duration {
	if estimated <= 0 {
		return 0
	}
	rem := estimated - m.ElapsedTime()
	if rem < 0 {
		return 0
	}
	return rem
}

// AddBookmark appends a bookmark for step.
func (m *Machine) AddBookmark(step int, label string) Bookmark {
	m.mu.Lock()
	b := Bookmark{Step: step, Label: label, Timestamp: millis(m.clk.Now())}
	m.state.Bookmarks = append(m.state.Bookmarks, b)
	idx := len(m.state.Bookmarks) - 1
	m.mu.Unlock()
	m.Emit(Event{Kind: BookmarkAdded, Bookmark: b, Index: idx})
	m.persist()
	return b
}

// RemoveBookmark deletes the bookmark at index. Out-of-range indexes are
// ignored.
func (m *Machine) RemoveBookmark(index int) bool {
	m.mu.Lock()
	if index < 0 || index >= len(m.state.Bookmarks) {
		m.mu.Unlock()
		return false
	}
	b := m.state.Bookmarks[index]
	m.state.Bookmarks = append(m.state.Bookmarks[:index:index], m.state.Bookmarks[index+1:]...)
	m.mu.Unlock()
	m.Emit(Event{Kind: BookmarkRemoved, Bookmark: b, Index: index})
	m.persist()
	return true
}

// GoToBookmark jumps to the bookmarked step with history.
func (m *Machine) GoToBookmark(index int) bool {
	m.mu.Lock()
	if index < 0 || index >= len(m.state.Bookmarks) {
		m.mu.Unlock()
		return false
	}
	step := m.state.Bookmarks[index].Step
	m.mu.Unlock()
	m.SetStep(step, true)
	return true
}

// TogglePresenterMode flips presenter mode and returns the new value.
func (m *Machine) TogglePresenterMode() bool {
	m.mu.Lock()
	m.state.PresenterMode = !m.state.PresenterMode
	on := m.state.PresenterMode
	m.mu.Unlock()
	m.Emit(Event{Kind: PresenterModeChanged, PresenterMode: on})
	return on
}

// ExportState returns an indented JSON export of the navigation state.
func (m *Machine) ExportState() ([]byte, error) {
	m.mu.Lock()
	s := m.copyLocked()
	m.mu.Unlock()
	snap := ExportedSnapshot{
		Version:     m.opts.Version,
		CurrentStep: s.CurrentStep,
		History:     s.History,
		Bookmarks:   s.Bookmarks,
		ExportDate:  m.clk.Now().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	}
	return json.MarshalIndent(snap, "", "  ")
}

// importedSnapshot uses pointers so absent fields can be told apart from
// zero values.
type importedSnapshot struct {
	Version     *string    `json:"version"`
	CurrentStep *int       `json:"currentStep"`
	History     []int      `json:"history"`
	Bookmarks   []Bookmark `json:"bookmarks"`
	ExportDate  *string    `json:"exportDate"`
}

// ImportState replaces step, history and bookmarks from an exported
// snapshot. Missing fields default to zero or empty. On error nothing
// changes and an *ImportError is returned.
func (m *Machine) ImportState(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return &ImportError{Reason: "snapshot is not a JSON object"}
	}
	var in importedSnapshot
	if err := json.Unmarshal(trimmed, &in); err != nil {
		return &ImportError{Reason: "malformed snapshot", Err: err}
	}
	snap := ExportedSnapshot{History: []int{}, Bookmarks: []Bookmark{}}
	if in.Version != nil {
		snap.Version = *in.Version
	}
	if in.CurrentStep != nil {
		snap.CurrentStep = *in.CurrentStep
	}
	if in.History != nil {
		snap.History = in.History
	}
	if in.Bookmarks != nil {
		snap.Bookmarks = in.Bookmarks
	}
	if in.ExportDate != nil {
		snap.ExportDate = *in.ExportDate
	}
	if err := validateSteps(snap.CurrentStep, snap.History); err != nil {
		return &ImportError{Reason: "invalid snapshot", Err: err}
	}

	m.mu.Lock()
	m.state.CurrentStep = snap.CurrentStep
	m.state.History = append([]int{}, snap.History...)
	m.state.Bookmarks = append([]Bookmark{}, snap.Bookmarks...)
	m.mu.Unlock()

	m.Emit(Event{Kind: StateImported, Imported: &snap})
	m.persist()
	return nil
}

var errNegativeStep = errors.New("step indexes must not be negative")

// validateSteps checks the navigation fields. Bookmark steps are taken as
// they are.
func validateSteps(cur int, history []int) error {
	if cur < 0 {
		return errNegativeStep
	}
	for _, h := range history {
		if h < 0 {
			return errNegativeStep
		}
	}
	return nil
}

// Snapshot returns the record that persistence writes.
func (m *Machine) Snapshot() PersistedSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Machine) snapshotLocked() PersistedSnapshot {
	s := m.copyLocked()
	snap := PersistedSnapshot{
		Version:     m.opts.Version,
		CurrentStep: s.CurrentStep,
		History:     s.History,
		Bookmarks:   s.Bookmarks,
		PausedTime:  s.PausedTime.Milliseconds(),
		Timestamp:   millis(m.clk.Now()),
	}
	if s.StartTime != nil {
		ms := millis(*s.StartTime)
		snap.StartTime = &ms
	}
	return snap
}

// Save writes the current snapshot to the store regardless of AutoSave.
// Failures are logged and also returned.
func (m *Machine) Save() error {
	if m.store == nil {
		return nil
	}
	data, err := json.Marshal(m.Snapshot())
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := m.store.Save(ctx, m.opts.Key, data); err != nil {
		werr := &WriteError{Key: m.opts.Key, Err: err}
		m.log.Error("persist state failed", slog.Any("err", werr))
		return werr
	}
	return nil
}

func (m *Machine) persist() { _ = m.Save() }

// ClearState deletes the persisted snapshot and resets.
func (m *Machine) ClearState() {
	if m.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		if err := m.store.Delete(ctx, m.opts.Key); err != nil && !errors.Is(err, ErrNotFound) {
			m.log.Warn("delete saved state failed", slog.Any("err", &WriteError{Key: m.opts.Key, Err: err}))
		}
		cancel()
	}
	m.Reset()
}

func (m *Machine) loadState() {
	l := m.log.With(slog.String("op", "loadState"), slog.String("key", m.opts.Key))
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	data, err := m.store.Load(ctx, m.opts.Key)
	cancel()
	if errors.Is(err, ErrNotFound) {
		return
	}
	if err != nil {
		l.Warn("saved state unavailable", slog.Any("err", &ReadError{Key: m.opts.Key, Reason: "store read failed", Err: err}))
		return
	}
	var snap PersistedSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		l.Error("discarding corrupt saved state", slog.Any("err", &ReadError{Key: m.opts.Key, Reason: "corrupt snapshot", Err: err}))
		m.ClearState()
		return
	}
	if snap.Version != m.opts.Version {
		l.Warn("discarding saved state of another version",
			slog.Any("err", &ReadError{Key: m.opts.Key, Reason: "version mismatch"}),
			slog.String("saved", snap.Version), slog.String("want", m.opts.Version))
		m.ClearState()
		return
	}
	if err := validateSteps(snap.CurrentStep, snap.History); err != nil || snap.PausedTime < 0 {
		l.Error("discarding invalid saved state", slog.Any("err", &ReadError{Key: m.opts.Key, Reason: "invalid snapshot", Err: err}))
		m.ClearState()
		return
	}

	m.mu.Lock()
	m.state.CurrentStep = snap.CurrentStep
	m.state.History = append([]int{}, snap.History...)
	m.state.Bookmarks = append([]Bookmark{}, snap.Bookmarks...)
	m.state.PausedTime = time.Duration(snap.PausedTime) * time.Millisecond
	m.state.StartTime = nil
	if snap.StartTime != nil {
		t := fromMillis(*snap.StartTime)
		m.state.StartTime = &t
	}
	m.mu.Unlock()

	l.Info("restored saved state", slog.Int("step", snap.CurrentStep))
	m.Emit(Event{Kind: StateLoaded, Loaded: &snap})
}
