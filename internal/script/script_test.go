/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package script

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestParseJSON(t *testing.T) {
	doc := `{"title":"t","scenes":[
		{"role":"user","text":"hi"},
		{"role":"ai","text":"Hello <b>there</b>","extraContent":"<br>!","buttons":[{"label":"A","nextIndex":0}]},
		{"role":"ai","text":"redirect","autoNext":0}
	]}`
	s, err := Parse([]byte(doc), FormatJSON)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if s.Len() != 3 || s.Title != "t" {
		t.Fatalf("script = %+v", s)
	}
	if got := s.Scenes[1].Content(); got != "Hello <b>there</b><br>!" {
		t.Fatalf("Content = %q", got)
	}
	if s.Scenes[2].AutoNext == nil || *s.Scenes[2].AutoNext != 0 {
		t.Fatalf("autoNext not decoded: %+v", s.Scenes[2])
	}
	if s.Scenes[0].AutoNext != nil {
		t.Fatalf("absent autoNext decoded as %v", *s.Scenes[0].AutoNext)
	}
}

func TestParseYAMLMatchesJSON(t *testing.T) {
	y := `
scenes:
  - role: user
    text: hi
  - role: ai
    text: there
    buttons:
      - label: Go
        nextIndex: 1
`
	j := `{"scenes":[{"role":"user","text":"hi"},{"role":"ai","text":"there","buttons":[{"label":"Go","nextIndex":1}]}]}`
	ys, err := Parse([]byte(y), FormatYAML)
	if err != nil {
		t.Fatalf("Parse yaml: %v", err)
	}
	js, err := Parse([]byte(j), FormatJSON)
	if err != nil {
		t.Fatalf("Parse json: %v", err)
	}
	if !reflect.DeepEqual(ys, js) {
		t.Fatalf("yaml %+v != json %+v", ys, js)
	}
}

func TestParseRejectsSchemaViolations(t *testing.T) {
	cases := []string{
		`{"scenes":[{"role":"robot","text":"x"}]}`,
		`{"scenes":[{"role":"ai"}]}`,
		`{"scenes":[{"role":"ai","text":"x","buttons":[{"label":"a","nextIndex":-1}]}]}`,
		`{"scenes":[{"role":"ai","text":"x","autoNext":"two"}]}`,
		`{"scenes":[{"role":"ai","text":"x","colour":"red"}]}`,
		`{"title":"no scenes"}`,
	}
	for _, c := range cases {
		_, err := Parse([]byte(c), FormatJSON)
		var verr *ValidationError
		if !errors.As(err, &verr) || len(verr.Errors) == 0 {
			t.Fatalf("Parse(%s) err = %v, want *ValidationError", c, err)
		}
	}
}

func TestLoadByExtension(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "talk.yml")
	if err := os.WriteFile(p, []byte("scenes:\n  - role: ai\n    text: hello\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Len() != 1 || s.Scenes[0].Role != RoleAI {
		t.Fatalf("script = %+v", s)
	}
	if _, err := Load(filepath.Join(dir, "talk.txt")); err == nil {
		t.Fatalf("Load with unsupported extension succeeded")
	}
}

func TestDemoIsCleanAndReachable(t *testing.T) {
	s := Demo()
	if s.Len() == 0 {
		t.Fatalf("demo script is empty")
	}
	if issues := s.Lint(); len(issues) != 0 {
		t.Fatalf("demo lint issues: %v", issues)
	}
	if got := s.Reachable().Size(); got != s.Len() {
		t.Fatalf("reachable = %d, want %d", got, s.Len())
	}
}

func TestLintReportsProblems(t *testing.T) {
	far := 9
	s := Script{Scenes: []Scene{
		{Role: RoleAI, Text: "start", Buttons: []Button{{Label: "end", NextIndex: 7}, {Label: "next", NextIndex: 2}}},
		{Role: RoleAI, Text: "orphan"},
		{Role: RoleAI, Text: "jump", AutoNext: &far},
		{Role: RoleUser, Text: "ignored", AutoNext: &far},
	}}
	var msgs []string
	for _, is := range s.Lint() {
		msgs = append(msgs, is.String())
	}
	joined := strings.Join(msgs, "\n")
	for _, want := range []string{
		`scene 0: button "end" targets scene 7`,
		"scene 2: autoNext targets scene 9",
		"scene 3: buttons and autoNext are ignored",
		"scene 1: unreachable",
		"scene 3: unreachable",
	} {
		if !strings.Contains(joined, want) {
			t.Fatalf("lint output missing %q:\n%s", want, joined)
		}
	}
}

func TestSuccessors(t *testing.T) {
	one := 1
	s := Script{Scenes: []Scene{
		{Role: RoleUser, Text: "u", Buttons: []Button{{Label: "x", NextIndex: 3}}},
		{Role: RoleAI, Text: "a", AutoNext: &one},
		{Role: RoleAI, Text: "b", Buttons: []Button{{Label: "x", NextIndex: 0}, {Label: "y", NextIndex: 1}}},
	}}
	if got := s.Successors(0); !reflect.DeepEqual(got, []int{1}) {
		t.Fatalf("user successors = %v", got)
	}
	if got := s.Successors(1); !reflect.DeepEqual(got, []int{1}) {
		t.Fatalf("autoNext successors = %v", got)
	}
	if got := s.Successors(2); !reflect.DeepEqual(got, []int{0, 1}) {
		t.Fatalf("button successors = %v", got)
	}
	if got := s.Successors(5); got != nil {
		t.Fatalf("out of range successors = %v", got)
	}
}
