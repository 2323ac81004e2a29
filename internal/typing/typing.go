/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package typing reveals chat message markup progressively, one grapheme
// cluster at a time for text and one whole tag at a time for markup, with a
// jittered human-like rhythm.
//
// A Scheduler is safe for concurrent use. Target writes for a handle happen
// while the scheduler lock is held, so once Cancel returns the target is no
// longer touched on behalf of that handle. Callbacks run without the lock.
package typing

import (
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"gochatpresenter/internal/clock"
	"gochatpresenter/internal/markup"

	"github.com/rivo/uniseg"
)

// CursorMarker is appended to partial output while an animation is running.
const CursorMarker = `<span class="typing-cursor">|</span>`

// Target is a region whose visible content the scheduler rewrites.
type Target interface {
	SetContent(markup string)
	Content() string
}

// Options are read once per Start call.
type Options struct {
	Enabled          bool
	ReducedMotion    bool
	BaseDelay        time.Duration
	Variation        time.Duration
	PunctuationPause time.Duration
	// Grace is the pause between the final render and onComplete.
	Grace time.Duration
	// Rand returns a value in [0,1). Nil uses math/rand/v2.
	Rand func() float64
}

// DefaultOptions mirrors the shipped configuration defaults.
func DefaultOptions() Options {
	return Options{
		Enabled:          true,
		BaseDelay:        30 * time.Millisecond,
		Variation:        20 * time.Millisecond,
		PunctuationPause: 300 * time.Millisecond,
		Grace:            10 * time.Millisecond,
	}
}

// Handle identifies one animation. Handles are never reused.
type Handle uint64

// Scheduler runs typing animations.
type Scheduler struct {
	mu     sync.Mutex
	clock  clock.Clock
	opts   Options
	last   Handle
	active map[Handle]*animation
	log    *slog.Logger
}

type animation struct {
	target     Target
	segs       []markup.Segment
	seg        int
	clusters   []string
	pos        int
	out        strings.Builder
	revealed   int
	total      int
	timer      clock.Timer
	opts       Options
	onComplete func()
	onProgress func(float64)
}

// New returns a Scheduler using c for all delays.
func New(c clock.Clock, opts Options, l *slog.Logger) *Scheduler {
	if c == nil {
		c = clock.Real()
	}
	if l == nil {
		l = slog.Default()
	}
	return &Scheduler{clock: c, opts: opts, active: map[Handle]*animation{}, log: l}
}

// SetOptions replaces the options used by subsequent Start calls.
func (s *Scheduler) SetOptions(o Options) {
	s.mu.Lock()
	s.opts = o
	s.mu.Unlock()
}

// Options returns the current options.
func (s *Scheduler) Options() Options {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opts
}

// Start begins revealing text into target. The first character is rendered
// before Start returns. When typing is disabled or reduced motion is on the
// whole text is rendered and onComplete runs synchronously; the returned
// handle is then already retired.
func (s *Scheduler) Start(target Target, text string, onComplete func(), onProgress func(float64)) Handle {
	s.mu.Lock()
	s.last++
	h := s.last
	opts := s.opts
	if !opts.Enabled || opts.ReducedMotion {
		s.mu.Unlock()
		target.SetContent(text)
		if onComplete != nil {
			onComplete()
		}
		return h
	}
	a := &animation{
		target:     target,
		segs:       markup.Split(text),
		opts:       opts,
		onComplete: onComplete,
		onProgress: onProgress,
	}
	for _, seg := range a.segs {
		if seg.Kind == markup.Text {
			a.total += uniseg.GraphemeClusterCount(seg.Content)
		}
	}
	s.active[h] = a
	s.mu.Unlock()
	s.log.Debug("typing started", slog.Uint64("handle", uint64(h)), slog.Int("chars", a.total))
	s.step(h)
	return h
}

// step runs one tick of the animation for h.
func (s *Scheduler) step(h Handle) {
	s.mu.Lock()
	a, ok := s.active[h]
	if !ok {
		s.mu.Unlock()
		return
	}
	a.timer = nil
	if c, more := a.advance(); more {
		a.target.SetContent(a.out.String() + CursorMarker)
		a.timer = s.clock.AfterFunc(delayFor(a.opts, c), func() { s.step(h) })
		progress, total, cb := a.revealed, a.total, a.onProgress
		s.mu.Unlock()
		if cb != nil && total > 0 {
			cb(float64(progress) / float64(total))
		}
		return
	}
	a.target.SetContent(a.out.String())
	delete(s.active, h)
	s.mu.Unlock()
	s.afterGrace(a.opts.Grace, a.onComplete)
}

// advance appends tags until the next grapheme cluster and reveals it. It
// reports false once every segment has been consumed.
func (a *animation) advance() (string, bool) {
	for a.seg < len(a.segs) {
		seg := a.segs[a.seg]
		if seg.Kind == markup.Tag {
			a.out.WriteString(seg.Content)
			a.seg++
			continue
		}
		if a.clusters == nil {
			a.clusters = clusters(seg.Content)
		}
		if a.pos < len(a.clusters) {
			c := a.clusters[a.pos]
			a.pos++
			a.revealed++
			a.out.WriteString(c)
			return c, true
		}
		a.seg++
		a.clusters = nil
		a.pos = 0
	}
	return "", false
}

func clusters(s string) []string {
	out := make([]string, 0, len(s))
	g := uniseg.NewGraphemes(s)
	for g.Next() {
		out = append(out, g.Str())
	}
	return out
}

// delayFor is the pause after revealing c: base delay, uniform jitter of
// ±variation/2, plus the punctuation pause after sentence marks.
func delayFor(o Options, c string) time.Duration {
	r := o.Rand
	if r == nil {
		r = rand.Float64
	}
	v := o.Variation
	d := o.BaseDelay + time.Duration(r()*float64(v)) - v/2
	if isPause(c) {
		d += o.PunctuationPause
	}
	if d < 0 {
		d = 0
	}
	return d
}

func isPause(c string) bool {
	switch c {
	case ".", "!", "?", ",", ";", ":":
		return true
	}
	return false
}

func (s *Scheduler) afterGrace(grace time.Duration, f func()) {
	if f == nil {
		return
	}
	s.clock.AfterFunc(grace, f)
}

// Cancel stops h. Partial output stays on the target and no callback fires.
// Unknown or finished handles are ignored.
func (s *Scheduler) Cancel(h Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked(h)
}

func (s *Scheduler) cancelLocked(h Handle) bool {
	a, ok := s.active[h]
	if !ok {
		return false
	}
	if a.timer != nil {
		a.timer.Stop()
	}
	delete(s.active, h)
	return true
}

// CancelAll cancels every running animation.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for h := range s.active {
		s.cancelLocked(h)
	}
}

// Skip cancels h, renders final on target without a cursor marker and
// schedules onComplete after the grace delay. It reports false and does
// nothing when h is not running.
func (s *Scheduler) Skip(h Handle, target Target, final string, onComplete func()) bool {
	s.mu.Lock()
	a, ok := s.active[h]
	if !ok {
		s.mu.Unlock()
		return false
	}
	s.cancelLocked(h)
	grace := a.opts.Grace
	target.SetContent(final)
	if c := target.Content(); strings.Contains(c, CursorMarker) {
		target.SetContent(strings.ReplaceAll(c, CursorMarker, ""))
	}
	s.mu.Unlock()
	s.log.Debug("typing skipped", slog.Uint64("handle", uint64(h)))
	s.afterGrace(grace, onComplete)
	return true
}

// Active reports whether h is still running.
func (s *Scheduler) Active(h Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.active[h]
	return ok
}

// Running returns the number of running animations.
func (s *Scheduler) Running() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}
