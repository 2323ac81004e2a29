/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"log/slog"

	"gochatpresenter/internal/config"
	applog "gochatpresenter/internal/log"
	"gochatpresenter/internal/playback"
	"gochatpresenter/internal/presenter"
	"gochatpresenter/internal/script"
	"gochatpresenter/internal/storage"
	"gochatpresenter/internal/telemetry"
	"gochatpresenter/internal/typing"
)

// app carries what every subcommand shares.
type app struct {
	cfg   config.AppConfig
	token string
	tel   *telemetry.Client
	saver *lateSaver
	log   *slog.Logger
}

// lateSaver lets the crash handler save a machine created after it was
// deferred.
type lateSaver struct{ m *playback.Machine }

func (s *lateSaver) Save() error {
	if s.m == nil {
		return nil
	}
	return s.m.Save()
}

func loadScript(path string) (script.Script, error) {
	if path == "" {
		return script.Demo(), nil
	}
	return script.Load(path)
}

// openMachine opens the configured backend and a machine on top of it. The
// machine loads saved state when auto-save is on.
func (a *app) openMachine(ctx context.Context, autoSave bool) (*playback.Machine, storage.Backend, error) {
	b, err := storage.Open(ctx, a.cfg.Storage)
	if err != nil {
		return nil, nil, err
	}
	m := playback.New(playback.Options{
		Key:      a.cfg.Storage.Key,
		Version:  a.cfg.Storage.Version,
		AutoSave: autoSave,
		Logger:   applog.L(),
	}, b)
	a.saver.m = m
	return m, b, nil
}

func (a *app) newPresenter(sc script.Script, m *playback.Machine, surface presenter.Surface) *presenter.Presenter {
	t := a.cfg.Timing
	sched := typing.New(nil, typing.Options{
		Enabled:          a.cfg.UX.TypingAnimation,
		ReducedMotion:    a.cfg.Accessibility.ReducedMotion,
		BaseDelay:        t.TypingSpeed(),
		Variation:        t.TypingVariation(),
		PunctuationPause: t.PunctuationPause(),
		Grace:            t.CompletionGrace(),
	}, applog.WithComponent("typing"))
	return presenter.New(presenter.Deps{
		Script:    sc,
		Machine:   m,
		Scheduler: sched,
		Surface:   surface,
		Logger:    applog.L(),
		Telemetry: a.tel,
		Options: presenter.Options{
			ThinkingDelay: t.ThinkingDelay(),
			ButtonFadeIn:  t.ButtonFadeIn(),
			ChoiceAdvance: t.ChoiceAdvance(),
			SkipEnabled:   a.cfg.UX.SkipTyping,
			ShowNotes:     a.cfg.Presenter.ShowNotes,
		},
	})
}

func closeBackend(l *slog.Logger, b storage.Backend) {
	if err := b.Close(); err != nil {
		l.Warn("close storage", slog.Any("err", err))
	}
}
