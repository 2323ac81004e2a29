/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package typing

import (
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"gochatpresenter/internal/clock"
	applog "gochatpresenter/internal/log"
)

type recordTarget struct {
	mu      sync.Mutex
	content string
	writes  int
}

func (r *recordTarget) SetContent(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.content = s
	r.writes++
}

func (r *recordTarget) Content() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.content
}

func newTestScheduler(mod func(*Options)) (*Scheduler, *clock.Fake) {
	c := clock.NewFake(time.Unix(1700000000, 0))
	o := DefaultOptions()
	o.Rand = func() float64 { return 0.5 } // zero jitter
	if mod != nil {
		mod(&o)
	}
	return New(c, o, applog.Discard()), c
}

func TestStartDisabledRendersImmediately(t *testing.T) {
	for _, mod := range []func(*Options){
		func(o *Options) { o.Enabled = false },
		func(o *Options) { o.ReducedMotion = true },
	} {
		s, _ := newTestScheduler(mod)
		tgt := &recordTarget{}
		called := false
		h := s.Start(tgt, "X <b>y</b>", func() { called = true }, nil)
		if tgt.Content() != "X <b>y</b>" {
			t.Fatalf("content = %q, want full markup", tgt.Content())
		}
		if !called {
			t.Fatalf("onComplete not invoked synchronously")
		}
		if h == 0 || s.Active(h) {
			t.Fatalf("handle %d should be valid and inactive", h)
		}
	}
}

func TestStartRevealsCharactersWithCursor(t *testing.T) {
	s, c := newTestScheduler(nil)
	tgt := &recordTarget{}
	done := false
	h := s.Start(tgt, "ab", func() { done = true }, nil)

	if got := tgt.Content(); got != "a"+CursorMarker {
		t.Fatalf("after start content = %q", got)
	}
	c.Advance(30 * time.Millisecond)
	if got := tgt.Content(); got != "ab"+CursorMarker {
		t.Fatalf("after 30ms content = %q", got)
	}
	c.Advance(30 * time.Millisecond)
	if got := tgt.Content(); got != "ab" {
		t.Fatalf("final content = %q, want %q", got, "ab")
	}
	if s.Active(h) {
		t.Fatalf("handle still active after final render")
	}
	if done {
		t.Fatalf("onComplete ran before the grace delay")
	}
	c.Advance(10 * time.Millisecond)
	if !done {
		t.Fatalf("onComplete did not run after the grace delay")
	}
}

func TestTagsAppearAtomically(t *testing.T) {
	s, c := newTestScheduler(nil)
	tgt := &recordTarget{}
	var seen []string
	s.Start(tgt, "<b>hi</b>", nil, nil)
	seen = append(seen, tgt.Content())
	for i := 0; i < 3; i++ {
		c.Advance(30 * time.Millisecond)
		seen = append(seen, tgt.Content())
	}
	want := []string{
		"<b>h" + CursorMarker,
		"<b>hi" + CursorMarker,
		"<b>hi</b>",
		"<b>hi</b>",
	}
	if !reflect.DeepEqual(seen, want) {
		t.Fatalf("frames = %q, want %q", seen, want)
	}
	for _, f := range seen {
		if strings.Contains(f, "<b"+CursorMarker) || strings.Contains(f, "</"+CursorMarker) {
			t.Fatalf("partial tag rendered: %q", f)
		}
	}
}

func TestPunctuationPause(t *testing.T) {
	s, c := newTestScheduler(nil)
	tgt := &recordTarget{}
	s.Start(tgt, "a.b", nil, nil)
	c.Advance(30 * time.Millisecond) // reveals "."
	if got := tgt.Content(); got != "a."+CursorMarker {
		t.Fatalf("content = %q", got)
	}
	c.Advance(329 * time.Millisecond)
	if got := tgt.Content(); got != "a."+CursorMarker {
		t.Fatalf("next char revealed before the punctuation pause: %q", got)
	}
	c.Advance(time.Millisecond)
	if got := tgt.Content(); got != "a.b"+CursorMarker {
		t.Fatalf("content after pause = %q", got)
	}
}

func TestJitterBounds(t *testing.T) {
	o := Options{BaseDelay: 30 * time.Millisecond, Variation: 20 * time.Millisecond, PunctuationPause: 300 * time.Millisecond}
	o.Rand = func() float64 { return 0 }
	if d := delayFor(o, "x"); d != 20*time.Millisecond {
		t.Fatalf("min delay = %v, want 20ms", d)
	}
	o.Rand = func() float64 { return 0.999999 }
	if d := delayFor(o, "x"); d < 39*time.Millisecond || d > 40*time.Millisecond {
		t.Fatalf("max delay = %v, want ~40ms", d)
	}
	o.Rand = func() float64 { return 0.5 }
	if d := delayFor(o, "?"); d != 330*time.Millisecond {
		t.Fatalf("punctuation delay = %v, want 330ms", d)
	}
	o = Options{Variation: 100 * time.Millisecond, Rand: func() float64 { return 0 }}
	if d := delayFor(o, "x"); d != 0 {
		t.Fatalf("negative delay not clamped: %v", d)
	}
}

func TestProgressReportsFractions(t *testing.T) {
	s, c := newTestScheduler(nil)
	tgt := &recordTarget{}
	var got []float64
	s.Start(tgt, "a<br>bcd", nil, func(p float64) { got = append(got, p) })
	c.Advance(time.Second)
	want := []float64{0.25, 0.5, 0.75, 1}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("progress = %v, want %v", got, want)
	}
}

func TestGraphemeClustersRevealWhole(t *testing.T) {
	s, _ := newTestScheduler(nil)
	tgt := &recordTarget{}
	s.Start(tgt, "👩‍💻ok", nil, nil)
	if got := tgt.Content(); got != "👩‍💻"+CursorMarker {
		t.Fatalf("first frame = %q", got)
	}
}

func TestCancelStopsMutation(t *testing.T) {
	s, c := newTestScheduler(nil)
	tgt := &recordTarget{}
	done := false
	h := s.Start(tgt, "hello", func() { done = true }, nil)
	s.Cancel(h)
	writes, content := tgt.writes, tgt.Content()
	c.Advance(10 * time.Second)
	if tgt.writes != writes || tgt.Content() != content {
		t.Fatalf("target mutated after cancel: %q", tgt.Content())
	}
	if done || s.Active(h) {
		t.Fatalf("cancelled handle completed or still active")
	}
	s.Cancel(h)
	s.Cancel(Handle(9999))
}

func TestCancelAll(t *testing.T) {
	s, c := newTestScheduler(nil)
	a, b := &recordTarget{}, &recordTarget{}
	s.Start(a, "first", nil, nil)
	s.Start(b, "second", nil, nil)
	if s.Running() != 2 {
		t.Fatalf("Running = %d, want 2", s.Running())
	}
	s.CancelAll()
	if s.Running() != 0 {
		t.Fatalf("Running after CancelAll = %d", s.Running())
	}
	c.Advance(time.Second)
	if a.Content() != "f"+CursorMarker || b.Content() != "s"+CursorMarker {
		t.Fatalf("contents changed after CancelAll: %q %q", a.Content(), b.Content())
	}
}

func TestSkipRendersFinal(t *testing.T) {
	s, c := newTestScheduler(nil)
	tgt := &recordTarget{}
	h := s.Start(tgt, "a long message", nil, nil)
	done := 0
	if !s.Skip(h, tgt, "Final", func() { done++ }) {
		t.Fatalf("Skip on active handle = false")
	}
	if got := tgt.Content(); got != "Final" {
		t.Fatalf("content = %q, want Final", got)
	}
	if s.Active(h) {
		t.Fatalf("skipped handle still active")
	}
	c.Advance(10 * time.Millisecond)
	if done != 1 {
		t.Fatalf("onComplete calls = %d, want 1", done)
	}
	if s.Skip(h, tgt, "Again", func() { done++ }) {
		t.Fatalf("Skip on retired handle = true")
	}
	c.Advance(time.Second)
	if tgt.Content() != "Final" || done != 1 {
		t.Fatalf("retired skip had effects: %q %d", tgt.Content(), done)
	}
}

func TestSkipStripsCursorFromFinal(t *testing.T) {
	s, _ := newTestScheduler(nil)
	tgt := &recordTarget{}
	h := s.Start(tgt, "abc", nil, nil)
	s.Skip(h, tgt, "ab"+CursorMarker, nil)
	if got := tgt.Content(); got != "ab" {
		t.Fatalf("content = %q, want cursor stripped", got)
	}
}

func TestTagHeavyInput(t *testing.T) {
	s, c := newTestScheduler(nil)
	tgt := &recordTarget{}
	in := strings.Repeat("<i></i>", 50000) + "z"
	s.Start(tgt, in, nil, nil)
	c.Advance(time.Second)
	if got := tgt.Content(); got != in {
		t.Fatalf("tag-heavy input not fully rendered (len %d, want %d)", len(got), len(in))
	}
}

func TestOnlyTagsCompletes(t *testing.T) {
	s, c := newTestScheduler(nil)
	tgt := &recordTarget{}
	done := false
	progressCalls := 0
	h := s.Start(tgt, "<br><hr>", func() { done = true }, func(float64) { progressCalls++ })
	if tgt.Content() != "<br><hr>" || s.Active(h) {
		t.Fatalf("tag-only markup should render at once: %q", tgt.Content())
	}
	c.Advance(10 * time.Millisecond)
	if !done || progressCalls != 0 {
		t.Fatalf("done=%v progressCalls=%d", done, progressCalls)
	}
}

func TestHandlesAreUnique(t *testing.T) {
	s, _ := newTestScheduler(func(o *Options) { o.Enabled = false })
	seen := map[Handle]bool{}
	for i := 0; i < 100; i++ {
		h := s.Start(&recordTarget{}, "x", nil, nil)
		if seen[h] {
			t.Fatalf("handle %d reused", h)
		}
		seen[h] = true
	}
}
