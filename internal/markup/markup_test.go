/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package markup

import (
	"reflect"
	"testing"
)

func TestSplitMixedMarkup(t *testing.T) {
	got := Split("Hi <b>there</b>!")
	want := []Segment{
		{Text, "Hi "},
		{Tag, "<b>"},
		{Text, "there"},
		{Tag, "</b>"},
		{Text, "!"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Split = %v, want %v", got, want)
	}
}

func TestSplitUnterminatedTagIsText(t *testing.T) {
	got := Split("a < b and c")
	want := []Segment{{Text, "a < b and c"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Split = %v, want %v", got, want)
	}

	got = Split("x<br>y<i")
	want = []Segment{{Text, "x"}, {Tag, "<br>"}, {Text, "y<i"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Split = %v, want %v", got, want)
	}
}

func TestSplitEmptyAngleBracketsAreText(t *testing.T) {
	got := Split("<><b>x")
	want := []Segment{{Text, "<>"}, {Tag, "<b>"}, {Text, "x"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Split = %v, want %v", got, want)
	}
}

func TestSplitTagRunsToNextClosingBracket(t *testing.T) {
	got := Split("<a<b>c")
	want := []Segment{{Tag, "<a<b>"}, {Text, "c"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Split = %v, want %v", got, want)
	}
}

func TestSplitEmptyInput(t *testing.T) {
	if got := Split(""); len(got) != 0 {
		t.Fatalf("Split(\"\") = %v, want empty", got)
	}
}

func TestSplitRoundTrip(t *testing.T) {
	inputs := []string{
		"",
		"plain",
		"<b>bold</b> and <i>italic</i><br>",
		`<img src="a.png" alt="x">tail`,
		"<<>>",
		"trailing <",
		"🎉 <b>ünïcode</b> 👩‍💻",
		"<p>a</p><p>b</p>",
	}
	for _, in := range inputs {
		segs := Split(in)
		if got := Join(segs); got != in {
			t.Fatalf("Join(Split(%q)) = %q", in, got)
		}
		for i, s := range segs {
			if s.Kind == Text && s.Content == "" {
				t.Fatalf("Split(%q) produced empty text segment at %d", in, i)
			}
			if i > 0 && s.Kind == Text && segs[i-1].Kind == Text {
				t.Fatalf("Split(%q) produced adjacent text segments at %d", in, i)
			}
		}
	}
}

func TestTagName(t *testing.T) {
	cases := []struct {
		tag     string
		name    string
		closing bool
	}{
		{"<b>", "b", false},
		{"</B>", "b", true},
		{"<br/>", "br", false},
		{"<br />", "br", false},
		{`<img src="x.png">`, "img", false},
	}
	for _, c := range cases {
		name, closing := Segment{Kind: Tag, Content: c.tag}.TagName()
		if name != c.name || closing != c.closing {
			t.Fatalf("TagName(%q) = %q,%v want %q,%v", c.tag, name, closing, c.name, c.closing)
		}
	}
}

func TestStripTags(t *testing.T) {
	got := StripTags("Hello <b>world</b><br>line two &amp; more")
	if want := "Hello world\nline two & more"; got != want {
		t.Fatalf("StripTags = %q, want %q", got, want)
	}
}

func TestTextLenIgnoresTagsAndCountsGraphemes(t *testing.T) {
	if got := TextLen(Split("Hi <b>there</b> 👍🏽!")); got != 11 {
		t.Fatalf("TextLen = %d, want 11", got)
	}
	if got := TextLen(nil); got != 0 {
		t.Fatalf("TextLen(nil) = %d", got)
	}
}
