/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gochatpresenter/internal/config"
)

func TestLocalAddr(t *testing.T) {
	cases := map[string]string{
		":8080":          "localhost:8080",
		"0.0.0.0:9000":   "0.0.0.0:9000",
		"example.org:80": "example.org:80",
	}
	for in, want := range cases {
		if got := localAddr(in); got != want {
			t.Fatalf("localAddr(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLateSaverWithoutMachine(t *testing.T) {
	if err := (&lateSaver{}).Save(); err != nil {
		t.Fatalf("save: %v", err)
	}
}

func TestLoadScriptDefaultsToDemo(t *testing.T) {
	sc, err := loadScript("")
	if err != nil {
		t.Fatalf("demo: %v", err)
	}
	if sc.Len() == 0 || sc.Title == "" {
		t.Fatalf("demo script empty: %+v", sc)
	}
}

func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.yaml")
	if err := os.WriteFile(good, []byte("scenes:\n  - role: user\n    text: hi\n  - role: ai\n    text: hello\n    autoNext: 9\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte(`{"scenes":[{"role":"robot","text":"x"}]}`), 0o644); err != nil {
		t.Fatal(err)
	}

	a := &app{cfg: config.Defaults(), saver: &lateSaver{}}
	var out bytes.Buffer
	cmd := a.validateCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{good})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("validate good: %v", err)
	}
	if !strings.Contains(out.String(), "ok: 2 scenes, 1 warnings") {
		t.Fatalf("output: %q", out.String())
	}

	out.Reset()
	cmd = a.validateCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{bad})
	if err := cmd.Execute(); !errors.Is(err, errSilent) {
		t.Fatalf("validate bad: want errSilent, got %v", err)
	}
	if out.Len() == 0 {
		t.Fatalf("schema errors not printed")
	}
}

func TestStateRoundTripThroughFileBackend(t *testing.T) {
	cfg := config.Defaults()
	cfg.Storage.Dir = t.TempDir()
	a := &app{cfg: cfg, saver: &lateSaver{}}

	src := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(src, []byte(`{"currentStep":3,"history":[0,1,2],"bookmarks":[],"presenterMode":false}`), 0o644); err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	imp := a.importStateCmd()
	imp.SetOut(&out)
	imp.SetArgs([]string{src})
	if err := imp.Execute(); err != nil {
		t.Fatalf("import: %v", err)
	}
	if !strings.Contains(out.String(), "scene 3") {
		t.Fatalf("import output: %q", out.String())
	}

	out.Reset()
	exp := a.exportStateCmd()
	exp.SetOut(&out)
	exp.SetArgs(nil)
	if err := exp.Execute(); err != nil {
		t.Fatalf("export: %v", err)
	}
	if !strings.Contains(out.String(), `"currentStep": 3`) && !strings.Contains(out.String(), `"currentStep":3`) {
		t.Fatalf("export output: %q", out.String())
	}
}
