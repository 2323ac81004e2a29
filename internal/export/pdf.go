/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"fmt"
	"io"
	"strings"

	"gochatpresenter/internal/markup"
	"gochatpresenter/internal/script"

	"github.com/jung-kurt/gofpdf"
)

// PDF writes an A4 transcript using the built-in Helvetica, so no fonts are
// embedded. Text outside cp1252 is replaced.
func PDF(w io.Writer, d Document) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(d.Title, true)
	pdf.SetAuthor("Go Chat Presenter", false)
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(true, 20)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.MultiCell(0, 9, tr(d.Title), "", "L", false)
	pdf.SetFont("Helvetica", "", 10)
	pdf.SetTextColor(102, 102, 102)
	pdf.CellFormat(0, 6, tr(d.dateLine()), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	for _, m := range d.Messages {
		pdf.SetTextColor(0, 0, 0)
		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(0, 7, tr(roleLabel(m.Role)), "", 1, "L", false, 0, "")
		if m.Role == script.RoleUser {
			pdf.SetFillColor(227, 242, 253)
		} else {
			pdf.SetFillColor(241, 243, 244)
		}
		pdf.SetFont("Helvetica", "", 11)
		pdf.MultiCell(0, 6, tr(strings.TrimSpace(markup.StripTags(m.Markup))), "", "L", true)
		pdf.Ln(3)
	}
	if err := pdf.Error(); err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	return pdf.Output(w)
}
