/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package export writes a presentation transcript as text, Markdown, HTML,
// PDF or EPUB, and the navigation state as JSON.
package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"gochatpresenter/internal/i18n"
	"gochatpresenter/internal/script"
	"gochatpresenter/internal/transcript"
)

// Format names an export format.
type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
	FormatPDF      Format = "pdf"
	FormatEPUB     Format = "epub"
	FormatJSON     Format = "json"
)

// Formats lists every supported format.
var Formats = []Format{FormatText, FormatMarkdown, FormatHTML, FormatPDF, FormatEPUB, FormatJSON}

// ParseFormat accepts format names and common file extensions.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), ".")) {
	case "text", "txt":
		return FormatText, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "html", "htm":
		return FormatHTML, nil
	case "pdf":
		return FormatPDF, nil
	case "epub":
		return FormatEPUB, nil
	case "json", "state":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unsupported export format %q", s)
}

// Filename is the default download name for f.
func (f Format) Filename() string {
	switch f {
	case FormatText:
		return "conversation.txt"
	case FormatMarkdown:
		return "conversation.md"
	case FormatHTML:
		return "conversation.html"
	case FormatPDF:
		return "conversation.pdf"
	case FormatEPUB:
		return "conversation.epub"
	case FormatJSON:
		return "state.json"
	}
	return "export"
}

// ContentType is the MIME type for f.
func (f Format) ContentType() string {
	switch f {
	case FormatText:
		return "text/plain; charset=utf-8"
	case FormatMarkdown:
		return "text/markdown; charset=utf-8"
	case FormatHTML:
		return "text/html; charset=utf-8"
	case FormatPDF:
		return "application/pdf"
	case FormatEPUB:
		return "application/epub+zip"
	case FormatJSON:
		return "application/json"
	}
	return "application/octet-stream"
}

// Document is what the transcript exporters render.
type Document struct {
	Title    string
	Language string
	Date     time.Time
	Messages []transcript.Message
}

// NewDocument fills Title and Language from the active catalogue and the
// script title.
func NewDocument(s script.Script, msgs []transcript.Message, now time.Time) Document {
	title := s.Title
	if title == "" {
		title = i18n.T("TRANSCRIPT_TITLE")
	}
	return Document{Title: title, Language: i18n.Language(), Date: now, Messages: msgs}
}

func (d Document) dateLine() string {
	return i18n.Tf("EXPORT_DATE", d.Date.Format("2006-01-02 15:04"))
}

func roleLabel(r script.Role) string {
	if r == script.RoleUser {
		return i18n.T("ROLE_USER")
	}
	return i18n.T("ROLE_AI")
}

func roleIcon(r script.Role) string {
	if r == script.RoleUser {
		return "👨🏻‍💻"
	}
	return "🤖"
}

// StateExporter is implemented by *playback.Machine.
type StateExporter interface {
	ExportState() ([]byte, error)
}

// Write renders d (or, for FormatJSON, the state) to w.
func Write(w io.Writer, f Format, d Document, state StateExporter) error {
	switch f {
	case FormatText:
		return Text(w, d)
	case FormatMarkdown:
		return Markdown(w, d)
	case FormatHTML:
		return HTML(w, d)
	case FormatPDF:
		return PDF(w, d)
	case FormatEPUB:
		return EPUB(w, d)
	case FormatJSON:
		if state == nil {
			return fmt.Errorf("no state to export")
		}
		b, err := state.ExportState()
		if err != nil {
			return err
		}
		_, err = w.Write(b)
		return err
	}
	return fmt.Errorf("unsupported export format %q", f)
}
