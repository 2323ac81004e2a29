/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package markup splits chat message markup into text runs and inline tags.
//
// A tag is a '<' followed by at least one character other than '>' and closed
// by the next '>'. Anything else, including a '<' that is never closed, is
// text. Joining the segments of an input always reproduces the input exactly.
package markup

import (
	"html"
	"strings"

	"github.com/rivo/uniseg"
)

// Kind distinguishes text runs from tags.
type Kind int

const (
	Text Kind = iota
	Tag
)

func (k Kind) String() string {
	if k == Tag {
		return "tag"
	}
	return "text"
}

// Segment is one contiguous piece of markup.
type Segment struct {
	Kind    Kind
	Content string
}

// Split returns the ordered segments of input. Text segments are never empty
// and two text segments are never adjacent.
func Split(input string) []Segment {
	var segs []Segment
	textStart := 0
	i := 0
	for i < len(input) {
		if input[i] != '<' {
			i++
			continue
		}
		if i+1 >= len(input) || input[i+1] == '>' {
			// "<" at the end or "<>" cannot start a tag.
			i++
			continue
		}
		end := strings.IndexByte(input[i+1:], '>')
		if end < 0 {
			break
		}
		end += i + 1
		if i > textStart {
			segs = append(segs, Segment{Kind: Text, Content: input[textStart:i]})
		}
		segs = append(segs, Segment{Kind: Tag, Content: input[i : end+1]})
		i = end + 1
		textStart = i
	}
	if textStart < len(input) {
		segs = append(segs, Segment{Kind: Text, Content: input[textStart:]})
	}
	return segs
}

// Join concatenates segment contents; Join(Split(s)) == s.
func Join(segs []Segment) string {
	var b strings.Builder
	for _, s := range segs {
		b.WriteString(s.Content)
	}
	return b.String()
}

// TextLen counts the user-perceived characters in the text segments.
func TextLen(segs []Segment) int {
	n := 0
	for _, s := range segs {
		if s.Kind == Text {
			n += uniseg.GraphemeClusterCount(s.Content)
		}
	}
	return n
}

// TagName returns the lower-case element name of a tag segment and whether it
// is a closing tag. Text segments return "".
func (s Segment) TagName() (name string, closing bool) {
	if s.Kind != Tag {
		return "", false
	}
	inner := strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(s.Content, "<"), ">"))
	if strings.HasPrefix(inner, "/") {
		closing = true
		inner = strings.TrimSpace(inner[1:])
	}
	inner = strings.TrimSuffix(inner, "/")
	if i := strings.IndexAny(inner, " \t\n/"); i >= 0 {
		inner = inner[:i]
	}
	return strings.ToLower(inner), closing
}

// StripTags renders markup as plain text: line-breaking tags become newlines,
// every other tag is dropped and HTML entities are decoded.
func StripTags(s string) string {
	var b strings.Builder
	for _, seg := range Split(s) {
		if seg.Kind == Text {
			b.WriteString(seg.Content)
			continue
		}
		switch name, closing := seg.TagName(); {
		case name == "br":
			b.WriteString("\n")
		case closing && (name == "p" || name == "div" || name == "li"):
			b.WriteString("\n")
		}
	}
	return html.UnescapeString(b.String())
}
