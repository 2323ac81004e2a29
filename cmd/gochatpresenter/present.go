/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"gochatpresenter/internal/i18n"
	applog "gochatpresenter/internal/log"
	"gochatpresenter/internal/server"
	"gochatpresenter/internal/terminal"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

func (a *app) playCmd() *cobra.Command {
	var (
		scriptPath string
		fresh      bool
	)
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Present in this terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.play(ctx, scriptPath, fresh)
		},
	}
	cmd.Flags().StringVarP(&scriptPath, "script", "s", "", "script file (.json, .yaml); the built-in demo when empty")
	cmd.Flags().BoolVar(&fresh, "fresh", false, "ignore saved progress")
	return cmd
}

func (a *app) play(ctx context.Context, scriptPath string, fresh bool) error {
	l := applog.WithOperation(a.log, "play")
	sc, err := loadScript(scriptPath)
	if err != nil {
		return err
	}
	m, backend, err := a.openMachine(ctx, a.cfg.UX.AutoSave)
	if err != nil {
		return err
	}
	defer closeBackend(l, backend)

	interactive := isatty.IsTerminal(os.Stdin.Fd())
	ansi := isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
	resume := false
	if saved := m.Step(); saved > 0 && !fresh && interactive {
		resume = askResume(saved)
	}

	surface := terminal.New(os.Stdout, terminal.Options{ANSI: ansi, Width: terminal.Width(os.Stdout)})
	p := a.newPresenter(sc, m, surface)
	defer p.Close()

	restore, err := terminal.MakeRaw(os.Stdin)
	switch {
	case err == nil:
		surface.SetRawMode(true)
		defer func() {
			restore()
			surface.SetRawMode(false)
		}()
	case errors.Is(err, terminal.ErrNotTerminal):
		l.Debug("stdin is not a terminal, reading keys without raw mode")
	default:
		return fmt.Errorf("raw mode: %w", err)
	}

	l.Info("presentation starting", slog.Int("scenes", sc.Len()), slog.Bool("resume", resume))
	p.Begin(resume)
	sess := &terminal.Session{
		Presenter: p,
		Surface:   surface,
		Keys:      terminal.NewKeys(os.Stdin),
		Estimated: a.cfg.Presenter.EstimatedDuration(),
		Logger:    l,
	}
	return sess.Run(ctx)
}

// askResume asks on the cooked terminal whether to continue saved progress.
func askResume(step int) bool {
	fmt.Print(i18n.Tf("RESTORE_PROMPT", step))
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes", "s", "si", "sì":
		return true
	}
	return false
}

func (a *app) serveCmd() *cobra.Command {
	var (
		scriptPath string
		addr       string
		fresh      bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Present in the browser with a remote-control API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx, scriptPath, addr, fresh)
		},
	}
	cmd.Flags().StringVarP(&scriptPath, "script", "s", "", "script file (.json, .yaml); the built-in demo when empty")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config server.addr)")
	cmd.Flags().BoolVar(&fresh, "fresh", false, "discard saved progress before serving")
	return cmd
}

func (a *app) serve(ctx context.Context, scriptPath, addr string, fresh bool) error {
	l := applog.WithOperation(a.log, "serve")
	sc, err := loadScript(scriptPath)
	if err != nil {
		return err
	}
	m, backend, err := a.openMachine(ctx, a.cfg.UX.AutoSave)
	if err != nil {
		return err
	}
	defer closeBackend(l, backend)
	if fresh {
		m.ClearState()
	}

	surface := server.NewWebSurface(server.NewHub(applog.L()), applog.L())
	p := a.newPresenter(sc, m, surface)
	defer p.Close()
	surface.Progress(m.Step(), sc.Len())

	if addr == "" {
		addr = a.cfg.Server.Addr
	}
	srv := server.New(p, surface, server.Options{
		Addr:      addr,
		TLSCert:   a.cfg.Server.TLSCert,
		TLSKey:    a.cfg.Server.TLSKey,
		Token:     a.token,
		Estimated: a.cfg.Presenter.EstimatedDuration(),
		Logger:    applog.L(),
	})
	fmt.Printf("Serving %q (%d scenes) on %s\n", sc.Title, sc.Len(), addr)
	return srv.Run(ctx)
}
