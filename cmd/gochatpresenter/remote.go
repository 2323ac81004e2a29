/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gochatpresenter/internal/server"

	"github.com/spf13/cobra"
)

func (a *app) remoteCmd() *cobra.Command {
	var baseURL string
	cmd := &cobra.Command{
		Use:   "remote <action> [arg]",
		Short: "Control a running 'serve' instance",
		Long: "Actions: state, begin, next, skip, back, reset, presenter, choose <n>,\n" +
			"bookmark [label], goto <index>, export <format> [file], import <file>.",
		Args: cobra.RangeArgs(1, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if baseURL == "" {
				baseURL = "http://" + localAddr(a.cfg.Server.Addr)
			}
			c := server.NewClient(baseURL, a.token)
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			arg := func(i int) (string, error) {
				if len(args) <= i {
					return "", fmt.Errorf("%s needs an argument", args[0])
				}
				return args[i], nil
			}
			num := func(i int) (int, error) {
				v, err := arg(i)
				if err != nil {
					return 0, err
				}
				return strconv.Atoi(v)
			}

			switch action := args[0]; action {
			case "state":
				st, err := c.State(ctx)
				if err != nil {
					return err
				}
				return printJSON(out, st)
			case "begin", "next", "skip", "back", "reset", "presenter":
				raw, err := c.Command(ctx, action)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(out, string(raw))
				return err
			case "choose":
				n, err := num(1)
				if err != nil {
					return err
				}
				return c.Choose(ctx, n)
			case "bookmark":
				label := strings.Join(args[1:], " ")
				b, err := c.AddBookmark(ctx, label)
				if err != nil {
					return err
				}
				return printJSON(out, b)
			case "goto":
				n, err := num(1)
				if err != nil {
					return err
				}
				return c.GoToBookmark(ctx, n)
			case "export":
				format, err := arg(1)
				if err != nil {
					return err
				}
				if len(args) < 3 {
					return c.Export(ctx, format, out)
				}
				f, err := os.Create(args[2])
				if err != nil {
					return err
				}
				if err := c.Export(ctx, format, f); err != nil {
					_ = f.Close()
					return err
				}
				return f.Close()
			case "import":
				path, err := arg(1)
				if err != nil {
					return err
				}
				data, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				return c.ImportState(ctx, data)
			default:
				return fmt.Errorf("unknown remote action %q", action)
			}
		},
	}
	cmd.Flags().StringVar(&baseURL, "url", "", "server base URL (default from config server.addr)")
	return cmd
}

// localAddr turns a listen address like ":8080" into a dialable one.
func localAddr(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "localhost" + addr
	}
	return addr
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
