/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"gochatpresenter/internal/presenter"
	"gochatpresenter/internal/script"
	"gochatpresenter/internal/typing"
)

// Frame types sent to browser clients.
const (
	FrameSnapshot  = "snapshot"
	FrameMessage   = "message"
	FrameContent   = "content"
	FrameThinking  = "thinking"
	FrameButtons   = "buttons"
	FrameNotes     = "notes"
	FramePresenter = "presenter"
	FrameProgress  = "progress"
	FrameEffect    = "effect"
	FrameComplete  = "complete"
	FrameClear     = "clear"
)

// Frame is one JSON websocket message. Only the fields of its Type are set.
type Frame struct {
	Type    string          `json:"type"`
	ID      int             `json:"id"`
	Step    int             `json:"step,omitempty"`
	Role    script.Role     `json:"role,omitempty"`
	Markup  string          `json:"markup,omitempty"`
	On      bool            `json:"on,omitempty"`
	Buttons []script.Button `json:"buttons,omitempty"`
	Notes   string          `json:"notes,omitempty"`
	Current int             `json:"current,omitempty"`
	Total   int             `json:"total,omitempty"`
	Kind    string          `json:"kind,omitempty"`
	Name    string          `json:"name,omitempty"`
	View    *View           `json:"view,omitempty"`
}

// MessageView is one rendered chat bubble.
type MessageView struct {
	ID     int         `json:"id"`
	Step   int         `json:"step"`
	Role   script.Role `json:"role"`
	Markup string      `json:"markup"`
}

// View is everything a new client needs to draw the current screen.
type View struct {
	Messages      []MessageView   `json:"messages"`
	Thinking      bool            `json:"thinking"`
	Buttons       []script.Button `json:"buttons"`
	Notes         string          `json:"notes"`
	PresenterMode bool            `json:"presenterMode"`
	Current       int             `json:"current"`
	Total         int             `json:"total"`
	Complete      bool            `json:"complete"`
}

// WebSurface renders a presentation to websocket clients. It keeps the
// current view so late joiners get a snapshot before live frames.
type WebSurface struct {
	hub *Hub
	log *slog.Logger

	mu    sync.Mutex
	view  View
	epoch int
}

var _ presenter.Surface = (*WebSurface)(nil)

// NewWebSurface returns a surface that broadcasts through hub.
func NewWebSurface(hub *Hub, l *slog.Logger) *WebSurface {
	if l == nil {
		l = slog.Default()
	}
	return &WebSurface{
		hub:  hub,
		log:  l.With(slog.String("component", "websurface")),
		view: View{Messages: []MessageView{}, Buttons: []script.Button{}},
	}
}

// Hub returns the hub the surface broadcasts through.
func (s *WebSurface) Hub() *Hub { return s.hub }

// View returns a copy of the current view.
func (s *WebSurface) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyLocked()
}

func (s *WebSurface) copyLocked() View {
	v := s.view
	v.Messages = append([]MessageView(nil), s.view.Messages...)
	v.Buttons = append([]script.Button(nil), s.view.Buttons...)
	return v
}

// ServeHTTP upgrades to a websocket and sends a snapshot followed by live
// frames.
func (s *WebSurface) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.hub.upgrade(w, r, func(c *wsClient) {
		s.mu.Lock()
		defer s.mu.Unlock()
		v := s.copyLocked()
		data, err := json.Marshal(Frame{Type: FrameSnapshot, View: &v})
		if err != nil {
			s.log.Error("encode snapshot", slog.Any("err", err))
			s.hub.add(c)
			return
		}
		s.hub.add(c, data)
	})
}

// update applies f to the view and broadcasts fr while holding the lock so
// that snapshots and live frames never interleave.
func (s *WebSurface) update(fr Frame, f func(v *View)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f != nil {
		f(&s.view)
	}
	s.broadcastLocked(fr)
}

func (s *WebSurface) broadcastLocked(fr Frame) {
	data, err := json.Marshal(fr)
	if err != nil {
		s.log.Error("encode frame", slog.String("type", fr.Type), slog.Any("err", err))
		return
	}
	s.hub.Broadcast(data)
}

// bubble is the typing target of one message.
// Bubbles created before a Clear are dead.
type bubble struct {
	s     *WebSurface
	id    int
	epoch int
}

func (b *bubble) SetContent(markup string) {
	s := b.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.epoch != s.epoch || b.id >= len(s.view.Messages) {
		return
	}
	s.view.Messages[b.id].Markup = markup
	s.broadcastLocked(Frame{Type: FrameContent, ID: b.id, Markup: markup})
}

func (b *bubble) Content() string {
	b.s.mu.Lock()
	defer b.s.mu.Unlock()
	if b.epoch != b.s.epoch || b.id >= len(b.s.view.Messages) {
		return ""
	}
	return b.s.view.Messages[b.id].Markup
}

func (s *WebSurface) AddMessage(step int, role script.Role) typing.Target {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := len(s.view.Messages)
	s.view.Messages = append(s.view.Messages, MessageView{ID: id, Step: step, Role: role})
	s.view.Complete = false
	s.broadcastLocked(Frame{Type: FrameMessage, ID: id, Step: step, Role: role})
	return &bubble{s: s, id: id, epoch: s.epoch}
}

func (s *WebSurface) ShowThinking() {
	s.update(Frame{Type: FrameThinking, On: true}, func(v *View) { v.Thinking = true })
}

func (s *WebSurface) HideThinking() {
	s.update(Frame{Type: FrameThinking}, func(v *View) { v.Thinking = false })
}

func (s *WebSurface) ShowButtons(buttons []script.Button) {
	bs := append([]script.Button(nil), buttons...)
	s.update(Frame{Type: FrameButtons, Buttons: bs}, func(v *View) { v.Buttons = bs })
}

func (s *WebSurface) HideButtons() {
	s.update(Frame{Type: FrameButtons}, func(v *View) { v.Buttons = []script.Button{} })
}

func (s *WebSurface) ShowNotes(notes string) {
	s.update(Frame{Type: FrameNotes, Notes: notes}, func(v *View) { v.Notes = notes })
}

func (s *WebSurface) PresenterMode(on bool) {
	s.update(Frame{Type: FramePresenter, On: on}, func(v *View) { v.PresenterMode = on })
}

func (s *WebSurface) Progress(current, total int) {
	s.update(Frame{Type: FrameProgress, Current: current, Total: total}, func(v *View) {
		v.Current, v.Total = current, total
	})
}

func (s *WebSurface) Effect(kind, name string) {
	s.update(Frame{Type: FrameEffect, Kind: kind, Name: name}, nil)
}

func (s *WebSurface) Complete() {
	s.update(Frame{Type: FrameComplete}, func(v *View) { v.Complete = true })
}

func (s *WebSurface) Clear() {
	s.update(Frame{Type: FrameClear}, func(v *View) {
		s.epoch++
		v.Messages = []MessageView{}
		v.Buttons = []script.Button{}
		v.Thinking = false
		v.Notes = ""
		v.Complete = false
	})
}
