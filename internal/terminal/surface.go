/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package terminal plays a presentation in an ANSI terminal: an append-only
// Surface and a raw-mode key reader.
package terminal

import (
	"fmt"
	"html"
	"io"
	"strings"
	"sync"

	"gochatpresenter/internal/i18n"
	"gochatpresenter/internal/markup"
	"gochatpresenter/internal/presenter"
	"gochatpresenter/internal/script"
	"gochatpresenter/internal/typing"

	"github.com/gookit/color"
)

var (
	styleUser     = color.Style{color.FgCyan, color.OpBold}
	styleAI       = color.Style{color.FgGreen, color.OpBold}
	styleBold     = color.Style{color.OpBold}
	styleItalic   = color.Style{color.OpItalic}
	styleBoldItal = color.Style{color.OpBold, color.OpItalic}
	styleSubtle   = color.Style{color.FgGray}
	styleButton   = color.Style{color.FgYellow, color.OpBold}
	styleNotes    = color.Style{color.FgMagenta}
)

const (
	eraseLine   = "\r\x1b[2K"
	clearScreen = "\x1b[2J\x1b[H"
)

// Options tune the terminal surface.
type Options struct {
	// RawMode makes every newline a CRLF; set while the terminal is raw.
	RawMode bool
	// ANSI enables cursor control sequences (line erase, screen clear).
	ANSI bool
	// Width is used for separators; zero means 40 columns.
	Width int
}

// Surface renders to w. Output is append-only: a message being typed only
// ever gets its new tail written.
type Surface struct {
	opts Options

	mu       sync.Mutex
	w        io.Writer
	active   *bubble
	thinking bool
	current  int
	total    int
}

var _ presenter.Surface = (*Surface)(nil)

// New returns a Surface writing to w.
func New(w io.Writer, opts Options) *Surface {
	return &Surface{w: w, opts: opts}
}

// SetRawMode switches CRLF translation.
func (s *Surface) SetRawMode(on bool) {
	s.mu.Lock()
	s.opts.RawMode = on
	s.mu.Unlock()
}

// Position returns the last reported progress.
func (s *Surface) Position() (current, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, s.total
}

func (s *Surface) writeLocked(text string) {
	if s.opts.RawMode {
		text = strings.ReplaceAll(text, "\n", "\r\n")
	}
	_, _ = io.WriteString(s.w, text)
}

// Println writes a status line below the chat.
func (s *Surface) Println(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.breakLocked()
	s.writeLocked(styleSubtle.Sprint(text) + "\n")
}

// breakLocked ends a message still open on the current line.
func (s *Surface) breakLocked() {
	s.hideThinkingLocked()
	if s.active != nil && !s.active.closed {
		s.writeLocked("\n")
		s.active.closed = true
	}
}

// run is a piece of visible text and the style it is drawn with.
type run struct {
	text  string
	style *color.Style
}

// render flattens markup into styled runs: b/strong bold, i/em italic,
// br a newline and every other tag dropped.
func render(m string) []run {
	m = strings.ReplaceAll(m, typing.CursorMarker, "")
	var (
		out          []run
		bold, italic int
	)
	for _, seg := range markup.Split(m) {
		if seg.Kind == markup.Text {
			out = append(out, run{text: html.UnescapeString(seg.Content), style: pick(bold > 0, italic > 0)})
			continue
		}
		name, closing := seg.TagName()
		d := 1
		if closing {
			d = -1
		}
		switch name {
		case "b", "strong":
			bold = max(0, bold+d)
		case "i", "em":
			italic = max(0, italic+d)
		case "br":
			out = append(out, run{text: "\n"})
		case "p", "div", "li":
			if closing {
				out = append(out, run{text: "\n"})
			}
		}
	}
	return out
}

func pick(bold, italic bool) *color.Style {
	switch {
	case bold && italic:
		return &styleBoldItal
	case bold:
		return &styleBold
	case italic:
		return &styleItalic
	}
	return nil
}

// tail renders runs after the first skip bytes of plain text.
func tail(runs []run, skip int) string {
	var b strings.Builder
	for _, r := range runs {
		t := r.text
		if skip >= len(t) {
			skip -= len(t)
			continue
		}
		t = t[skip:]
		skip = 0
		if r.style != nil {
			t = r.style.Sprint(t)
		}
		b.WriteString(t)
	}
	return b.String()
}

func plain(runs []run) string {
	var b strings.Builder
	for _, r := range runs {
		b.WriteString(r.text)
	}
	return b.String()
}

type bubble struct {
	s       *Surface
	content string
	printed string
	closed  bool
}

func (b *bubble) SetContent(m string) {
	s := b.s
	s.mu.Lock()
	defer s.mu.Unlock()
	b.content = m
	if s.active != b || b.closed {
		return
	}
	s.hideThinkingLocked()
	runs := render(m)
	text := plain(runs)
	if strings.HasPrefix(text, b.printed) {
		s.writeLocked(tail(runs, len(b.printed)))
	} else {
		// Content was replaced rather than extended; reprint it whole.
		s.writeLocked("\n" + tail(runs, 0))
	}
	b.printed = text
}

func (b *bubble) Content() string {
	b.s.mu.Lock()
	defer b.s.mu.Unlock()
	return b.content
}

func (s *Surface) AddMessage(_ int, role script.Role) typing.Target {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.breakLocked()
	label := styleAI.Sprint("🤖 " + i18n.T("ROLE_AI"))
	if role == script.RoleUser {
		label = styleUser.Sprint("👨🏻‍💻 " + i18n.T("ROLE_USER"))
	}
	s.writeLocked("\n" + label + "\n")
	b := &bubble{s: s}
	s.active = b
	return b
}

func (s *Surface) ShowThinking() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.thinking {
		return
	}
	s.breakLocked()
	s.thinking = true
	s.writeLocked(styleSubtle.Sprint(i18n.T("THINKING")))
}

func (s *Surface) HideThinking() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hideThinkingLocked()
}

func (s *Surface) hideThinkingLocked() {
	if !s.thinking {
		return
	}
	s.thinking = false
	if s.opts.ANSI {
		s.writeLocked(eraseLine)
		return
	}
	s.writeLocked("\n")
}

func (s *Surface) ShowButtons(buttons []script.Button) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.breakLocked()
	parts := make([]string, len(buttons))
	for i, b := range buttons {
		parts[i] = styleButton.Sprintf("[%d]", i+1) + " " + b.Label
	}
	s.writeLocked("\n" + strings.Join(parts, "   ") + "\n")
	s.writeLocked(styleSubtle.Sprint(i18n.Tf("CHOOSE_PROMPT", len(buttons))) + "\n")
}

// HideButtons is a no-op: printed choices stay in the scrollback.
func (s *Surface) HideButtons() {}

func (s *Surface) ShowNotes(notes string) {
	if notes == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.breakLocked()
	s.writeLocked(styleNotes.Sprint("📝 "+i18n.T("PRESENTER_NOTES")+": "+markup.StripTags(notes)) + "\n")
}

func (s *Surface) PresenterMode(on bool) {
	msg := i18n.T("PRESENTER_MODE_OFF")
	if on {
		msg = i18n.T("PRESENTER_MODE_ON")
	}
	s.Println(msg)
}

func (s *Surface) Progress(current, total int) {
	s.mu.Lock()
	s.current, s.total = current, total
	s.mu.Unlock()
}

func (s *Surface) Effect(kind, name string) {
	icon := "✨"
	if kind == "sound" {
		icon = "♪"
	}
	s.Println(fmt.Sprintf("%s %s", icon, name))
}

func (s *Surface) Complete() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.breakLocked()
	s.writeLocked("\n" + styleBold.Sprint("✔ "+i18n.T("PRESENTATION_COMPLETE")) + "\n")
}

func (s *Surface) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.thinking = false
	s.active = nil
	if s.opts.ANSI {
		s.writeLocked(clearScreen)
		return
	}
	w := s.opts.Width
	if w <= 0 {
		w = 40
	}
	s.writeLocked("\n" + strings.Repeat("─", w) + "\n")
}
