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
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gochatpresenter/internal/config"
	applog "gochatpresenter/internal/log"
	"gochatpresenter/internal/playback"
	"gochatpresenter/internal/script"
	"gochatpresenter/internal/storage"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func (a *app) validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <script>",
		Short: "Check a script against the schema and lint its branches",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			sc, err := script.Load(args[0])
			if err != nil {
				fmt.Fprintln(out, err)
				return errSilent
			}
			issues := sc.Lint()
			for _, is := range issues {
				fmt.Fprintln(out, "warning:", is)
			}
			fmt.Fprintf(out, "ok: %d scenes, %d warnings\n", sc.Len(), len(issues))
			return nil
		},
	}
}

func (a *app) exportStateCmd() *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "export-state",
		Short: "Write the saved playback state as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			l := applog.WithOperation(a.log, "export-state")
			m, backend, err := a.openMachine(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer closeBackend(l, backend)
			data, err := m.ExportState()
			if err != nil {
				return err
			}
			if outPath == "" || outPath == "-" {
				_, err = cmd.OutOrStdout().Write(append(data, '\n'))
				return err
			}
			if err := os.WriteFile(outPath, data, 0o644); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Exported to", outPath)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outPath, "output", "o", "", "output file; stdout when empty")
	return cmd
}

func (a *app) importStateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import-state <file>",
		Short: "Replace the saved playback state with an export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l := applog.WithOperation(a.log, "import-state")
			var (
				data []byte
				err  error
			)
			if args[0] == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(args[0])
			}
			if err != nil {
				return err
			}
			m, backend, err := a.openMachine(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer closeBackend(l, backend)
			if err := m.ImportState(data); err != nil {
				return err
			}
			if err := m.Save(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported state at scene %d\n", m.Step())
			return nil
		},
	}
}

type pruner interface {
	Prune(ctx context.Context, key string, keep int) (int64, error)
}

func (a *app) historyCmd() *cobra.Command {
	var (
		limit int
		keep  int
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List saved revisions (sqlite and postgres backends)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			l := applog.WithOperation(a.log, "history")
			ctx := cmd.Context()
			backend, err := storage.Open(ctx, a.cfg.Storage)
			if err != nil {
				return err
			}
			defer closeBackend(l, backend)
			key := a.cfg.Storage.Key
			out := cmd.OutOrStdout()
			if keep > 0 {
				p, ok := backend.(pruner)
				if !ok {
					return fmt.Errorf("storage backend %q cannot prune", a.cfg.Storage.Backend)
				}
				n, err := p.Prune(ctx, key, keep)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Pruned %d revisions\n", n)
			}
			h, ok := backend.(storage.Historian)
			if !ok {
				return fmt.Errorf("storage backend %q keeps no history", a.cfg.Storage.Backend)
			}
			revs, err := h.History(ctx, key, limit)
			if err != nil {
				return err
			}
			for _, r := range revs {
				var snap playback.PersistedSnapshot
				if err := json.Unmarshal(r.Data, &snap); err != nil {
					fmt.Fprintf(out, "%s  (unreadable: %v)\n", r.TS.Local().Format(time.DateTime), err)
					continue
				}
				fmt.Fprintf(out, "%s  scene %d  history %d  bookmarks %d\n",
					r.TS.Local().Format(time.DateTime), snap.CurrentStep, len(snap.History), len(snap.Bookmarks))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "revisions to show")
	cmd.Flags().IntVar(&keep, "prune", 0, "keep only the newest N revisions first")
	return cmd
}

func (a *app) tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage the remote-control token in the OS keyring",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "set <value>",
			Short: "Store the token",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				v := strings.TrimSpace(args[0])
				if v == "" {
					return fmt.Errorf("token must not be empty")
				}
				if err := config.SetToken(v); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Token stored in the OS keyring")
				return nil
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Remove the token",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				if err := config.ClearToken(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Token removed")
				return nil
			},
		},
	)
	return cmd
}

func (a *app) configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if p, err := config.ConfigPath(); err == nil {
				fmt.Fprintln(out, "# file:", p)
			}
			for _, key := range []string{"storage.backend", "storage.dsn", "server.addr", "general.language", "logging.level"} {
				if env, ok := config.EnvOverrideFor(key); ok {
					fmt.Fprintf(out, "# %s overridden by %s\n", key, env)
				}
			}
			shown := a.cfg
			if shown.Storage.DSN != "" {
				shown.Storage.DSN = "<redacted>"
			}
			b, err := yaml.Marshal(shown)
			if err != nil {
				return err
			}
			_, _ = out.Write(b)
			if a.token != "" {
				fmt.Fprintln(out, "# remote token: set")
			}
			if err := a.cfg.Validate(); err != nil {
				fmt.Fprintln(out, "# invalid:", err)
				return errSilent
			}
			return nil
		},
	}
}
