/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package terminal

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"gochatpresenter/internal/clock"
	applog "gochatpresenter/internal/log"
	"gochatpresenter/internal/playback"
	"gochatpresenter/internal/presenter"
	"gochatpresenter/internal/script"
	"gochatpresenter/internal/typing"

	"github.com/gookit/color"
)

// syncBuffer is written from timer callbacks and read by the test.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return color.ClearCode(b.buf.String())
}

func TestKeysDecode(t *testing.T) {
	in := "\r \x1b[C\x1b[DsRpbe7x\x1bOCq\x03"
	want := []Key{
		{Action: ActNext}, {Action: ActNext}, {Action: ActNext}, {Action: ActBack},
		{Action: ActSkip}, {Action: ActReset}, {Action: ActPresenter}, {Action: ActBookmark},
		{Action: ActExport}, {Action: ActChoose, Choice: 7}, {Action: ActNone}, {Action: ActNext},
		{Action: ActQuit}, {Action: ActQuit},
	}
	k := NewKeys(strings.NewReader(in))
	for i, w := range want {
		got, err := k.Read()
		if err != nil {
			t.Fatalf("key %d: %v", i, err)
		}
		if got != w {
			t.Fatalf("key %d: got %+v (%s), want %+v (%s)", i, got, got.Action, w, w.Action)
		}
	}
	if _, err := k.Read(); !errors.Is(err, io.EOF) {
		t.Fatalf("want EOF, got %v", err)
	}
}

func TestRenderFlattensMarkup(t *testing.T) {
	runs := render("Hi <b>bold <i>both</i></b><br>x &amp; y<span>z</span>" + typing.CursorMarker)
	if got := plain(runs); got != "Hi bold both\nx & yz" {
		t.Fatalf("plain: %q", got)
	}
	if runs[1].style != &styleBold || runs[2].style != &styleBoldItal {
		t.Fatalf("styles not tracked: %+v", runs)
	}
	if got := color.ClearCode(tail(runs, 3)); got != "bold both\nx & yz" {
		t.Fatalf("tail: %q", got)
	}
}

func TestSurfaceWritesOnlyNewText(t *testing.T) {
	var out syncBuffer
	s := New(&out, Options{})
	b := s.AddMessage(0, script.RoleAI)
	b.SetContent("Hel" + typing.CursorMarker)
	b.SetContent("Hello <b>wo" + typing.CursorMarker)
	b.SetContent("Hello <b>world</b>")
	got := out.String()
	if strings.Count(got, "Hel") != 1 || !strings.Contains(got, "Hello world") {
		t.Fatalf("output not incremental: %q", got)
	}
	if b.Content() != "Hello <b>world</b>" {
		t.Fatalf("content: %q", b.Content())
	}
}

func TestSurfaceRawModeUsesCRLF(t *testing.T) {
	var out syncBuffer
	s := New(&out, Options{RawMode: true})
	s.AddMessage(0, script.RoleUser).SetContent("a<br>b")
	got := out.String()
	if strings.Contains(strings.ReplaceAll(got, "\r\n", ""), "\n") {
		t.Fatalf("bare newline in raw mode: %q", got)
	}
}

func TestSurfaceThinkingAndButtons(t *testing.T) {
	var out syncBuffer
	s := New(&out, Options{})
	s.ShowThinking()
	s.HideThinking()
	s.ShowButtons([]script.Button{{Label: "Yes", NextIndex: 1}, {Label: "No", NextIndex: 2}})
	s.ShowNotes("mention <b>latency</b>")
	s.Effect("sound", "applause")
	s.Complete()
	got := out.String()
	for _, want := range []string{"AI is typing...", "[1] Yes", "[2] No", "Press 1-2 to choose", "latency", "♪ applause", "Presentation complete"} {
		if !strings.Contains(got, want) {
			t.Fatalf("missing %q in %q", want, got)
		}
	}
}

func TestSurfaceIgnoresStaleBubbles(t *testing.T) {
	var out syncBuffer
	s := New(&out, Options{})
	old := s.AddMessage(0, script.RoleAI)
	s.Clear()
	old.SetContent("late")
	if strings.Contains(out.String(), "late") {
		t.Fatalf("stale bubble was printed")
	}
}

func newSession(t *testing.T) (*Session, *clock.Fake, *syncBuffer) {
	t.Helper()
	clk := clock.NewFake(time.Unix(1700000000, 0))
	m := playback.New(playback.Options{Key: "k", Version: "1", Clock: clk, Logger: applog.Discard()}, nil)
	out := &syncBuffer{}
	surface := New(out, Options{})
	p := presenter.New(presenter.Deps{
		Script: script.Script{Scenes: []script.Scene{
			{Role: script.RoleUser, Text: "Hi"},
			{Role: script.RoleAI, Text: "Pick <b>one</b>", Buttons: []script.Button{{Label: "A", NextIndex: 2}, {Label: "B", NextIndex: 3}}},
			{Role: script.RoleAI, Text: "Path A"},
			{Role: script.RoleAI, Text: "Path B"},
		}},
		Machine:   m,
		Scheduler: typing.New(clk, typing.Options{Enabled: true, BaseDelay: 10 * time.Millisecond, Rand: func() float64 { return 0.5 }}, applog.Discard()),
		Surface:   surface,
		Clock:     clk,
		Logger:    applog.Discard(),
		Options:   presenter.Options{ThinkingDelay: 100 * time.Millisecond, ChoiceAdvance: 50 * time.Millisecond, SkipEnabled: true},
	})
	t.Cleanup(p.Close)
	return &Session{
		Presenter: p,
		Surface:   surface,
		ExportDir: t.TempDir(),
		Estimated: 10 * time.Minute,
		Now:       clk.Now,
		Logger:    applog.Discard(),
	}, clk, out
}

func TestSessionHandlesKeys(t *testing.T) {
	s, clk, out := newSession(t)
	s.Handle(Key{Action: ActNext})
	clk.Advance(5 * time.Second)
	if got := out.String(); !strings.Contains(got, "Hi") || !strings.Contains(got, "Pick one") || !strings.Contains(got, "[2] B") {
		t.Fatalf("first exchange not shown: %q", got)
	}
	s.Handle(Key{Action: ActChoose, Choice: 2})
	clk.Advance(5 * time.Second)
	if !strings.Contains(out.String(), "Path B") {
		t.Fatalf("chosen branch not played: %q", out.String())
	}
	s.Handle(Key{Action: ActBookmark})
	if !strings.Contains(out.String(), "Bookmark added at scene 4") {
		t.Fatalf("bookmark not reported: %q", out.String())
	}
	s.Handle(Key{Action: ActPresenter})
	if !strings.Contains(out.String(), "Presenter mode on") || !strings.Contains(out.String(), "Elapsed 0:10") {
		t.Fatalf("presenter mode not reported: %q", out.String())
	}
	s.Handle(Key{Action: ActExport})
	data, err := os.ReadFile(filepath.Join(s.ExportDir, "conversation.md"))
	if err != nil {
		t.Fatalf("export not written: %v", err)
	}
	if !strings.Contains(string(data), "Pick **one**") {
		t.Fatalf("export content: %s", data)
	}
	if !s.Handle(Key{Action: ActQuit}) {
		t.Fatalf("quit not reported")
	}
}

func TestSessionBackAtStart(t *testing.T) {
	s, _, out := newSession(t)
	s.Handle(Key{Action: ActBack})
	if !strings.Contains(out.String(), "No previous scene") {
		t.Fatalf("missing notice: %q", out.String())
	}
}

func TestSessionRunStopsAtEOF(t *testing.T) {
	s, _, out := newSession(t)
	s.Keys = NewKeys(strings.NewReader("\r"))
	if err := s.Run(t.Context()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out.String(), "Enter/Space next") {
		t.Fatalf("help not shown: %q", out.String())
	}
}

func TestClockTime(t *testing.T) {
	if got := clockTime(90*time.Second + 400*time.Millisecond); got != "1:30" {
		t.Fatalf("clockTime: %q", got)
	}
}
