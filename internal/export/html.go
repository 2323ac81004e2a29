/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"html/template"
	"io"
	"strings"
)

var htmlDoc = template.Must(template.New("transcript").Parse(`<!DOCTYPE html>
<html lang="{{.Lang}}">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}}</title>
    <style>
        body { font-family: 'Segoe UI', sans-serif; max-width: 800px; margin: 0 auto; padding: 20px; background: #f5f5f5; }
        .message { margin: 20px 0; padding: 15px; border-radius: 8px; }
        .user-message { background: #e3f2fd; }
        .ai-message { background: #f1f3f4; }
        .avatar { font-size: 24px; margin-bottom: 10px; }
        .content { line-height: 1.6; }
        h1 { color: #333; }
        .metadata { color: #666; font-size: 0.9em; margin-bottom: 20px; }
    </style>
</head>
<body>
    <h1>{{.Title}}</h1>
    <div class="metadata">{{.Date}}</div>
{{- range .Messages}}
    <div class="message {{.Role}}-message">
        <div class="avatar" title="{{.Label}}">{{.Icon}}</div>
        <div class="content">{{.Content}}</div>
    </div>
{{- end}}
</body>
</html>
`))

type htmlMessage struct {
	Role    string
	Label   string
	Icon    string
	Content template.HTML
}

// HTML writes a standalone page. Message markup is authored by the script
// writer and is embedded unescaped.
func HTML(w io.Writer, d Document) error {
	lang := d.Language
	if lang == "" {
		lang = "en"
	}
	data := struct {
		Lang, Title, Date string
		Messages          []htmlMessage
	}{Lang: lang, Title: d.Title, Date: d.dateLine()}
	for _, m := range d.Messages {
		data.Messages = append(data.Messages, htmlMessage{
			Role:    string(m.Role),
			Label:   roleLabel(m.Role),
			Icon:    roleIcon(m.Role),
			Content: template.HTML(strings.TrimSpace(m.Markup)),
		})
	}
	return htmlDoc.Execute(w, data)
}
