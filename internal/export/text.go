/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"bufio"
	"fmt"
	"html"
	"io"
	"strings"

	"gochatpresenter/internal/markup"
)

// Text writes a plain transcript with tags removed.
func Text(w io.Writer, d Document) error {
	bw := bufio.NewWriter(w)
	_, _ = fmt.Fprintf(bw, "# %s\n\n%s\n\n---\n\n", d.Title, d.dateLine())
	for _, m := range d.Messages {
		_, _ = fmt.Fprintf(bw, "%s: %s\n\n", strings.ToUpper(roleLabel(m.Role)), strings.TrimSpace(markup.StripTags(m.Markup)))
	}
	return bw.Flush()
}

// Markdown writes the transcript with <b> and <i> mapped to emphasis and line
// breaks kept.
func Markdown(w io.Writer, d Document) error {
	bw := bufio.NewWriter(w)
	_, _ = fmt.Fprintf(bw, "# %s\n\n**%s**\n\n---\n\n", d.Title, d.dateLine())
	for _, m := range d.Messages {
		_, _ = fmt.Fprintf(bw, "%s **%s**:\n\n%s\n\n---\n\n", roleIcon(m.Role), roleLabel(m.Role), ToMarkdown(m.Markup))
	}
	return bw.Flush()
}

// ToMarkdown converts chat markup to Markdown. Tags other than b, strong, i,
// em and br are dropped.
func ToMarkdown(s string) string {
	var b strings.Builder
	for _, seg := range markup.Split(s) {
		if seg.Kind == markup.Text {
			b.WriteString(html.UnescapeString(seg.Content))
			continue
		}
		name, _ := seg.TagName()
		switch name {
		case "b", "strong":
			b.WriteString("**")
		case "i", "em":
			b.WriteString("*")
		case "br":
			b.WriteString("\n")
		}
	}
	return strings.TrimSpace(b.String())
}
