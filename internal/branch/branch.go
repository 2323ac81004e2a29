/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package branch decides where playback goes once a scene has finished
// typing: wait for a button, follow an authored redirect or advance.
package branch

import (
	"errors"
	"sync"

	"gochatpresenter/internal/script"
)

var (
	ErrNoChoicePending = errors.New("branch: no choice is pending")
	ErrInvalidChoice   = errors.New("branch: choice is not offered by the current scene")
)

// Outcome is the kind of a Decision.
type Outcome int

const (
	// Advance moved to the next scene and recorded history.
	Advance Outcome = iota
	// Redirect followed autoNext without recording history.
	Redirect
	// AwaitChoice paused until Choose is called.
	AwaitChoice
	// Complete means there is no scene at the current step.
	Complete
)

func (o Outcome) String() string {
	switch o {
	case Advance:
		return "advance"
	case Redirect:
		return "redirect"
	case AwaitChoice:
		return "await-choice"
	case Complete:
		return "complete"
	}
	return "unknown"
}

// Decision is the result of resolving a scene.
type Decision struct {
	Outcome Outcome
	// Step is the step playback moved to, or the current step for
	// AwaitChoice and Complete.
	Step    int
	Buttons []script.Button
}

// Stepper is the part of the playback machine the resolver drives.
type Stepper interface {
	Step() int
	SetStep(step int, addToHistory bool)
}

// Resolver applies branching rules of a script to a Stepper.
type Resolver struct {
	steps  Stepper
	script script.Script

	mu      sync.Mutex
	pending []script.Button
}

// New returns a Resolver for s driving steps.
func New(s script.Script, steps Stepper) *Resolver {
	return &Resolver{steps: steps, script: s}
}

// Script returns the script being resolved.
func (r *Resolver) Script() script.Script { return r.script }

// Current returns the scene at the current step. When the step is past the
// last scene it returns a Complete decision and ok is false; nothing changes.
func (r *Resolver) Current() (scene script.Scene, d Decision, ok bool) {
	step := r.steps.Step()
	sc, ok := r.script.Scene(step)
	if !ok {
		return script.Scene{}, Decision{Outcome: Complete, Step: step}, false
	}
	return sc, Decision{Step: step}, true
}

// Resolve applies the branching rules of scene after its animation
// completed.
func (r *Resolver) Resolve(scene script.Scene) Decision {
	step := r.steps.Step()
	if len(scene.Buttons) > 0 {
		r.mu.Lock()
		r.pending = append([]script.Button(nil), scene.Buttons...)
		r.mu.Unlock()
		return Decision{Outcome: AwaitChoice, Step: step, Buttons: append([]script.Button(nil), scene.Buttons...)}
	}
	if scene.AutoNext != nil {
		r.steps.SetStep(*scene.AutoNext, false)
		return Decision{Outcome: Redirect, Step: *scene.AutoNext}
	}
	r.steps.SetStep(step+1, true)
	return Decision{Outcome: Advance, Step: step + 1}
}

// Pending returns the buttons awaiting a choice.
func (r *Resolver) Pending() []script.Button {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]script.Button(nil), r.pending...)
}

// Choose commits the pending button leading to nextIndex, recording history.
func (r *Resolver) Choose(nextIndex int) error {
	r.mu.Lock()
	if len(r.pending) == 0 {
		r.mu.Unlock()
		return ErrNoChoicePending
	}
	found := false
	for _, b := range r.pending {
		if b.NextIndex == nextIndex {
			found = true
			break
		}
	}
	if !found {
		r.mu.Unlock()
		return ErrInvalidChoice
	}
	r.pending = nil
	r.mu.Unlock()
	r.steps.SetStep(nextIndex, true)
	return nil
}

// ChooseAt commits the pending button at position (0-based).
func (r *Resolver) ChooseAt(position int) (script.Button, error) {
	r.mu.Lock()
	if len(r.pending) == 0 {
		r.mu.Unlock()
		return script.Button{}, ErrNoChoicePending
	}
	if position < 0 || position >= len(r.pending) {
		r.mu.Unlock()
		return script.Button{}, ErrInvalidChoice
	}
	b := r.pending[position]
	r.pending = nil
	r.mu.Unlock()
	r.steps.SetStep(b.NextIndex, true)
	return b, nil
}

// Clear drops any pending choice.
func (r *Resolver) Clear() {
	r.mu.Lock()
	r.pending = nil
	r.mu.Unlock()
}
