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
	"errors"
	"fmt"
	"log/slog"
	"os"

	"gochatpresenter/internal/config"
	"gochatpresenter/internal/crash"
	"gochatpresenter/internal/i18n"
	applog "gochatpresenter/internal/log"
	"gochatpresenter/internal/telemetry"
	"gochatpresenter/internal/version"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// errSilent is returned after a command has already reported its failure.
var errSilent = errors.New("")

func main() {
	// .env is optional; real environment variables win.
	envErr := godotenv.Load()

	cfg, token, cfgErr := config.Load()
	applog.Init(cfg.Logging.Options())
	l := applog.WithComponent("cli")
	if envErr == nil {
		l.Debug("loaded .env")
	}
	if cfgErr != nil {
		l.Warn("config path unavailable, using defaults", slog.Any("err", cfgErr))
	}
	if err := i18n.Init(cfg.General.Language); err != nil {
		l.Warn("language fallback", slog.Any("err", err))
	}

	tcfg := telemetry.FromEnv()
	tcfg.OptIn = tcfg.OptIn || cfg.General.TelemetryOptIn
	tel := telemetry.NewDefault(tcfg)
	defer tel.Close()
	defer tel.Flush(context.Background())

	a := &app{cfg: cfg, token: token, tel: tel, saver: &lateSaver{}, log: l}
	defer crash.Handler{Saver: a.saver}.Recover()

	root := &cobra.Command{
		Use:           "gochatpresenter",
		Short:         "Scripted, branchable chat presentations for the terminal and the browser",
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		versionCmd(),
		a.playCmd(),
		a.serveCmd(),
		a.validateCmd(),
		a.exportStateCmd(),
		a.importStateCmd(),
		a.historyCmd(),
		a.tokenCmd(),
		a.remoteCmd(),
		a.configCmd(),
	)
	if err := root.Execute(); err != nil {
		if !errors.Is(err, errSilent) {
			l.Error("command failed", slog.Any("err", err))
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		tel.Flush(context.Background())
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "Go Chat Presenter")
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}
