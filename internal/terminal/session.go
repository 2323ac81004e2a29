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
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gochatpresenter/internal/export"
	"gochatpresenter/internal/i18n"
	"gochatpresenter/internal/presenter"
)

// Session maps key presses onto a presenter.
type Session struct {
	Presenter *presenter.Presenter
	Surface   *Surface
	Keys      *Keys
	// ExportDir receives the markdown export; empty means the working dir.
	ExportDir string
	// Estimated is the planned talk length shown with presenter mode.
	Estimated time.Duration
	Now       func() time.Time
	Logger    *slog.Logger
}

// Run handles keys until quit, end of input or ctx is done.
func (s *Session) Run(ctx context.Context) error {
	keys := make(chan Key)
	errs := make(chan error, 1)
	go func() {
		for {
			k, err := s.Keys.Read()
			if err != nil {
				errs <- err
				return
			}
			select {
			case keys <- k:
			case <-ctx.Done():
				return
			}
		}
	}()
	s.Surface.Println(i18n.T("KEY_HELP"))
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errs:
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		case k := <-keys:
			if s.Handle(k) {
				return nil
			}
		}
	}
}

// Handle applies one key and reports whether the session should end.
func (s *Session) Handle(k Key) (quit bool) {
	p := s.Presenter
	l := s.logger()
	switch k.Action {
	case ActNext:
		p.Play()
	case ActBack:
		if !p.Back() {
			s.Surface.Println(i18n.T("NO_PREVIOUS_STEP"))
		}
	case ActSkip:
		p.Skip()
	case ActReset:
		p.Reset()
		s.Surface.Println(i18n.T("RESET_DONE"))
	case ActPresenter:
		if p.TogglePresenterMode() {
			m := p.Machine()
			s.Surface.Println(i18n.Tf("ELAPSED", clockTime(m.ElapsedTime()), clockTime(m.EstimatedTimeRemaining(s.Estimated))))
		}
	case ActBookmark:
		b := p.AddBookmark("")
		s.Surface.Println(i18n.Tf("BOOKMARK_ADDED", b.Step))
	case ActExport:
		path, err := s.exportMarkdown()
		if err != nil {
			l.Error("export failed", slog.Any("err", err))
			s.Surface.Println(err.Error())
			break
		}
		s.Surface.Println(i18n.Tf("EXPORTED_TO", path))
	case ActChoose:
		if _, err := p.Choose(k.Choice); err != nil {
			l.Debug("choice ignored", slog.Int("position", k.Choice), slog.Any("err", err))
		}
	case ActQuit:
		return true
	}
	return false
}

func (s *Session) exportMarkdown() (string, error) {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	p := s.Presenter
	var buf bytes.Buffer
	doc := export.NewDocument(p.Script(), p.Transcript(), now())
	if err := export.Write(&buf, export.FormatMarkdown, doc, p.Machine()); err != nil {
		return "", err
	}
	dir := s.ExportDir
	if dir == "" {
		dir = "."
	}
	path := filepath.Join(dir, export.FormatMarkdown.Filename())
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

func (s *Session) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// clockTime formats d as m:ss.
func clockTime(d time.Duration) string {
	d = d.Round(time.Second)
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}
