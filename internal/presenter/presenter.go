/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package presenter drives a scripted chat through a Surface: it plays user
// and AI scenes in order, types AI replies, waits for branch choices and keeps
// the playback machine in step.
package presenter

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"gochatpresenter/internal/branch"
	"gochatpresenter/internal/clock"
	"gochatpresenter/internal/playback"
	"gochatpresenter/internal/script"
	"gochatpresenter/internal/telemetry"
	"gochatpresenter/internal/transcript"
	"gochatpresenter/internal/typing"
)

// Surface renders a presentation. Implementations must be safe for use from
// several goroutines; the presenter never holds its own lock while calling
// into a Surface.
type Surface interface {
	// AddMessage appends an empty bubble for the scene at step and returns
	// the region its content is written to.
	AddMessage(step int, role script.Role) typing.Target
	ShowThinking()
	HideThinking()
	ShowButtons(buttons []script.Button)
	HideButtons()
	// ShowNotes displays presenter notes; "" hides them.
	ShowNotes(notes string)
	PresenterMode(on bool)
	Progress(current, total int)
	// Effect forwards a sound or visual cue; kind is "sound" or "effect".
	Effect(kind, name string)
	Complete()
	Clear()
}

// Options are the presentation timings and switches.
type Options struct {
	ThinkingDelay time.Duration
	ButtonFadeIn  time.Duration
	ChoiceAdvance time.Duration
	SkipEnabled   bool
	ShowNotes     bool
}

// Deps wires a Presenter.
type Deps struct {
	Script    script.Script
	Machine   *playback.Machine
	Scheduler *typing.Scheduler
	Surface   Surface
	Clock     clock.Clock
	Logger    *slog.Logger
	Telemetry telemetry.Sink
	Options   Options
}

// ErrBusy is returned when an action needs an idle presenter.
var ErrBusy = errors.New("presenter: a scene is playing")

// Presenter is safe for concurrent use.
type Presenter struct {
	script   script.Script
	machine  *playback.Machine
	resolver *branch.Resolver
	sched    *typing.Scheduler
	surface  Surface
	clk      clock.Clock
	log      *slog.Logger
	tel      telemetry.Sink
	opts     Options
	tr       *transcript.Transcript

	mu        sync.Mutex
	gen       uint64
	playing   bool
	typing    *typingRun
	timers    []clock.Timer
	completed bool
	subs      []playback.Subscription
}

// typingRun is the AI message currently being typed.
type typingRun struct {
	handle typing.Handle
	target typing.Target
	final  string
	done   func()
}

// New builds a Presenter and subscribes it to machine events.
func New(d Deps) *Presenter {
	if d.Clock == nil {
		d.Clock = clock.Real()
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Scheduler == nil {
		d.Scheduler = typing.New(d.Clock, typing.DefaultOptions(), d.Logger)
	}
	p := &Presenter{
		script:   d.Script,
		machine:  d.Machine,
		resolver: branch.New(d.Script, d.Machine),
		sched:    d.Scheduler,
		surface:  d.Surface,
		clk:      d.Clock,
		log:      d.Logger.With(slog.String("component", "presenter")),
		tel:      d.Telemetry,
		opts:     d.Options,
		tr:       transcript.New(),
	}
	total := d.Script.Len()
	p.subs = append(p.subs,
		d.Machine.On(playback.StepChanged, func(e playback.Event) { p.surface.Progress(e.Step, total) }),
		d.Machine.On(playback.Reset, func(playback.Event) { p.surface.Progress(0, total) }),
		d.Machine.On(playback.StateImported, func(e playback.Event) { p.surface.Progress(e.Imported.CurrentStep, total) }),
		d.Machine.On(playback.PresenterModeChanged, p.onPresenterMode),
	)
	return p
}

// Close unsubscribes from the machine and stops pending work.
func (p *Presenter) Close() {
	p.interrupt()
	p.mu.Lock()
	subs := p.subs
	p.subs = nil
	p.mu.Unlock()
	for _, s := range subs {
		p.machine.Off(s)
	}
}

func (p *Presenter) Script() script.Script { return p.script }
func (p *Presenter) Machine() *playback.Machine { return p.machine }
func (p *Presenter) Transcript() []transcript.Message { return p.tr.Messages() }
func (p *Presenter) PendingChoices() []script.Button { return p.resolver.Pending() }
func (p *Presenter) Status() Status { return p.status() }

// Status summarises what the presenter is doing.
type Status struct {
	Step          int             `json:"step"`
	Total         int             `json:"total"`
	Playing       bool            `json:"playing"`
	Typing        bool            `json:"typing"`
	Completed     bool            `json:"completed"`
	PresenterMode bool            `json:"presenterMode"`
	Choices       []script.Button `json:"choices,omitempty"`
	ElapsedMs     int64           `json:"elapsedMs"`
}

func (p *Presenter) status() Status {
	st := p.machine.State()
	p.mu.Lock()
	s := Status{
		Step:          st.CurrentStep,
		Total:         p.script.Len(),
		Playing:       p.playing,
		Typing:        p.typing != nil,
		Completed:     p.completed,
		PresenterMode: st.PresenterMode,
	}
	p.mu.Unlock()
	s.Choices = p.resolver.Pending()
	s.ElapsedMs = p.machine.ElapsedTime().Milliseconds()
	return s
}

// Begin starts or resumes the presentation. Unless resume is set, saved
// progress is discarded first.
func (p *Presenter) Begin(resume bool) {
	if !resume && p.machine.Step() > 0 {
		p.log.Info("discarding saved progress", slog.Int("step", p.machine.Step()))
		p.machine.ClearState()
	}
	p.surface.Progress(p.machine.Step(), p.script.Len())
	p.Play()
}

// Play plays the scene at the current step. It is ignored while a scene is
// playing or a choice is pending.
func (p *Presenter) Play() {
	p.mu.Lock()
	if p.playing {
		p.mu.Unlock()
		p.log.Debug("play ignored, scene in progress")
		return
	}
	if len(p.resolver.Pending()) > 0 {
		p.mu.Unlock()
		p.log.Debug("play ignored, waiting for a choice")
		return
	}
	scene, d, ok := p.resolver.Current()
	if !ok {
		first := !p.completed
		p.completed = true
		p.mu.Unlock()
		p.complete(first)
		return
	}
	p.playing = true
	p.completed = false
	gen := p.gen
	p.mu.Unlock()

	step := d.Step
	if step == 0 && p.machine.StartTimer() {
		p.event(telemetry.EventPresentationStarted, map[string]any{"scenes": p.script.Len()})
	}
	l := p.log.With(slog.Int("step", step), slog.String("role", string(scene.Role)))
	if scene.Role == script.RoleUser {
		l.Debug("playing user scene")
		p.playUser(gen, step, scene)
		return
	}
	l.Debug("playing ai scene")
	p.playAI(gen, step, scene)
}

func (p *Presenter) playUser(gen uint64, step int, scene script.Scene) {
	content := scene.Content()
	p.surface.AddMessage(step, script.RoleUser).SetContent(content)
	p.tr.Append(transcript.Message{Step: step, Role: script.RoleUser, Markup: content, At: p.clk.Now()})
	p.machine.SetStep(step+1, true)
	p.surface.ShowThinking()
	p.after(gen, p.opts.ThinkingDelay, func() {
		p.surface.HideThinking()
		p.mu.Lock()
		p.playing = false
		p.mu.Unlock()
		p.Play()
	})
}

func (p *Presenter) playAI(gen uint64, step int, scene script.Scene) {
	if scene.Sound != "" {
		p.surface.Effect("sound", scene.Sound)
	}
	if scene.Effect != "" {
		p.surface.Effect("effect", scene.Effect)
	}
	if p.opts.ShowNotes && p.machine.State().PresenterMode {
		p.surface.ShowNotes(scene.Notes)
	}
	content := scene.Content()
	target := p.surface.AddMessage(step, script.RoleAI)
	p.tr.Append(transcript.Message{Step: step, Role: script.RoleAI, Markup: content, At: p.clk.Now()})

	run := &typingRun{target: target, final: content}
	run.done = func() { p.typed(gen, run, scene) }
	p.mu.Lock()
	p.typing = run
	p.mu.Unlock()

	h := p.sched.Start(target, content, run.done, nil)

	p.mu.Lock()
	current := p.typing == run
	if current {
		run.handle = h
	}
	p.mu.Unlock()
	if !current {
		// Interrupted before the handle was recorded.
		p.sched.Cancel(h)
	}
}

// typed runs once the AI message is fully shown.
func (p *Presenter) typed(gen uint64, run *typingRun, scene script.Scene) {
	p.mu.Lock()
	if gen != p.gen || p.typing != run {
		p.mu.Unlock()
		return
	}
	p.typing = nil
	p.mu.Unlock()

	d := p.resolver.Resolve(scene)
	p.log.Debug("scene resolved", slog.String("outcome", d.Outcome.String()), slog.Int("step", d.Step))

	p.mu.Lock()
	p.playing = false
	p.mu.Unlock()
	if d.Outcome == branch.AwaitChoice {
		p.after(gen, p.opts.ButtonFadeIn, func() { p.surface.ShowButtons(d.Buttons) })
	}
}

// Skip shows the message being typed in full. It reports false when nothing
// is being typed or skipping is disabled.
func (p *Presenter) Skip() bool {
	if !p.opts.SkipEnabled {
		return false
	}
	p.mu.Lock()
	run := p.typing
	var h typing.Handle
	if run != nil {
		h = run.handle
	}
	p.mu.Unlock()
	if h == 0 {
		return false
	}
	return p.sched.Skip(h, run.target, run.final, run.done)
}

// Choose commits the pending button at position (1-based) and plays the
// chosen scene after the choice delay.
func (p *Presenter) Choose(position int) (script.Button, error) {
	p.mu.Lock()
	if p.playing {
		p.mu.Unlock()
		return script.Button{}, ErrBusy
	}
	p.playing = true
	gen := p.gen
	p.mu.Unlock()

	b, err := p.resolver.ChooseAt(position - 1)
	if err != nil {
		p.mu.Lock()
		p.playing = false
		p.mu.Unlock()
		return script.Button{}, err
	}
	p.log.Info("choice made", slog.String("label", b.Label), slog.Int("next", b.NextIndex))
	p.event(telemetry.EventChoiceMade, map[string]any{"position": position})
	p.surface.HideButtons()
	p.after(gen, p.opts.ChoiceAdvance, func() {
		p.mu.Lock()
		p.playing = false
		p.mu.Unlock()
		p.Play()
	})
	return b, nil
}

// Back returns to the previous step. Anything in flight is stopped.
func (p *Presenter) Back() bool {
	p.interrupt()
	return p.machine.GoBack()
}

// GoToBookmark jumps to a bookmark. Anything in flight is stopped.
func (p *Presenter) GoToBookmark(index int) bool {
	p.interrupt()
	return p.machine.GoToBookmark(index)
}

// AddBookmark marks the current step.
func (p *Presenter) AddBookmark(label string) playback.Bookmark {
	return p.machine.AddBookmark(p.machine.Step(), label)
}

// ImportState replaces navigation state from an export. The chat is
// cleared; playback continues from the imported step on the next Play.
func (p *Presenter) ImportState(data []byte) error {
	if err := p.machine.ImportState(data); err != nil {
		return err
	}
	p.interrupt()
	p.clearView()
	return nil
}

// Reset stops everything, clears the chat and rewinds to the first scene.
// Bookmarks and presenter mode survive.
func (p *Presenter) Reset() {
	p.interrupt()
	p.machine.Reset()
	p.clearView()
	p.log.Info("presentation reset")
}

func (p *Presenter) clearView() {
	p.tr.Reset()
	p.mu.Lock()
	p.completed = false
	p.mu.Unlock()
	p.surface.Clear()
}

// TogglePresenterMode flips presenter mode and returns the new value.
func (p *Presenter) TogglePresenterMode() bool { return p.machine.TogglePresenterMode() }

func (p *Presenter) onPresenterMode(e playback.Event) {
	p.surface.PresenterMode(e.PresenterMode)
	if !p.opts.ShowNotes {
		return
	}
	if !e.PresenterMode {
		p.surface.ShowNotes("")
		return
	}
	if scene, ok := p.script.Scene(p.machine.Step()); ok && scene.Notes != "" {
		p.surface.ShowNotes(scene.Notes)
	}
}

// interrupt cancels typing, pending timers and any pending choice.
func (p *Presenter) interrupt() {
	p.mu.Lock()
	p.gen++
	timers := p.timers
	p.timers = nil
	var h typing.Handle
	if p.typing != nil {
		h = p.typing.handle
	}
	p.typing = nil
	p.playing = false
	p.mu.Unlock()

	for _, t := range timers {
		t.Stop()
	}
	if h != 0 {
		p.sched.Cancel(h)
	}
	p.resolver.Clear()
	p.surface.HideThinking()
	p.surface.HideButtons()
}

// after runs f once d has passed unless the presenter was interrupted.
func (p *Presenter) after(gen uint64, d time.Duration, f func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.gen {
		return
	}
	var t clock.Timer
	t = p.clk.AfterFunc(d, func() {
		p.mu.Lock()
		if gen != p.gen {
			p.mu.Unlock()
			return
		}
		for i, x := range p.timers {
			if x == t {
				p.timers = append(p.timers[:i], p.timers[i+1:]...)
				break
			}
		}
		p.mu.Unlock()
		f()
	})
	p.timers = append(p.timers, t)
}

func (p *Presenter) complete(first bool) {
	p.surface.Complete()
	if !first {
		return
	}
	p.log.Info("presentation complete", slog.Duration("elapsed", p.machine.ElapsedTime()))
	p.event(telemetry.EventPresentationCompleted, map[string]any{
		"scenes":    p.script.Len(),
		"elapsedMs": p.machine.ElapsedTime().Milliseconds(),
	})
}

func (p *Presenter) event(name string, props map[string]any) {
	if p.tel != nil {
		p.tel.Event(name, props)
	}
}
