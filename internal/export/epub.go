/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"archive/zip"
	"bytes"
	"fmt"
	"html"
	"io"
	"strings"
	"time"

	"gochatpresenter/internal/markup"
)

// EPUB writes a reflowable EPUB 3 book with the transcript as one chapter.
func EPUB(w io.Writer, d Document) error {
	zw := zip.NewWriter(w)
	lang := d.Language
	if lang == "" {
		lang = "en"
	}
	files := []struct {
		name  string
		data  []byte
		store bool
	}{
		{"mimetype", []byte("application/epub+zip"), true},
		{"META-INF/container.xml", []byte(containerXML), false},
		{"OEBPS/styles/chat.css", []byte(chatCSS), false},
		{"OEBPS/nav.xhtml", navXHTML(d), false},
		{"OEBPS/chat.xhtml", chatXHTML(d, lang), false},
		{"OEBPS/content.opf", contentOPF(d, lang), false},
	}
	for _, f := range files {
		var err error
		if f.store {
			err = addStoredZipFile(zw, f.name, f.data)
		} else {
			err = addZipFile(zw, f.name, f.data)
		}
		if err != nil {
			_ = zw.Close()
			return fmt.Errorf("write %s: %w", f.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("close zip: %w", err)
	}
	return nil
}

const containerXML = "<?xml version=\"1.0\" encoding=\"utf-8\"?>\n" +
	"<container version=\"1.0\" xmlns=\"urn:oasis:names:tc:opendocument:xmlns:container\">\n" +
	"  <rootfiles>\n" +
	"    <rootfile full-path=\"OEBPS/content.opf\" media-type=\"application/oebps-package+xml\"/>\n" +
	"  </rootfiles>\n" +
	"</container>\n"

const chatCSS = "body { font-family: sans-serif; line-height: 1.5; }\n" +
	".message { margin: 1em 0; padding: 0.6em; border-radius: 6px; }\n" +
	".user { background: #e3f2fd; }\n" +
	".ai { background: #f1f3f4; }\n" +
	".role { font-weight: bold; margin: 0 0 0.3em 0; }\n"

func navXHTML(d Document) []byte {
	var b bytes.Buffer
	b.WriteString("<?xml version=\"1.0\" encoding=\"utf-8\"?>\n")
	b.WriteString("<html xmlns=\"http://www.w3.org/1999/xhtml\" xmlns:epub=\"http://www.idpf.org/2007/ops\">\n")
	fmt.Fprintf(&b, "<head><title>%s</title></head>\n<body>\n", xmlEsc(d.Title))
	fmt.Fprintf(&b, "<nav epub:type=\"toc\" id=\"toc\"><ol><li><a href=\"chat.xhtml\">%s</a></li></ol></nav>\n", xmlEsc(d.Title))
	b.WriteString("</body>\n</html>\n")
	return b.Bytes()
}

func chatXHTML(d Document, lang string) []byte {
	var b bytes.Buffer
	b.WriteString("<?xml version=\"1.0\" encoding=\"utf-8\"?>\n")
	fmt.Fprintf(&b, "<html xmlns=\"http://www.w3.org/1999/xhtml\" xml:lang=\"%s\">\n<head>\n", xmlEsc(lang))
	fmt.Fprintf(&b, "<meta charset=\"utf-8\"/>\n<title>%s</title>\n", xmlEsc(d.Title))
	b.WriteString("<link rel=\"stylesheet\" type=\"text/css\" href=\"styles/chat.css\"/>\n</head>\n<body>\n")
	fmt.Fprintf(&b, "<h1>%s</h1>\n<p>%s</p>\n", xmlEsc(d.Title), xmlEsc(d.dateLine()))
	for _, m := range d.Messages {
		fmt.Fprintf(&b, "<div class=\"message %s\">\n<p class=\"role\">%s</p>\n<p>%s</p>\n</div>\n",
			xmlEsc(string(m.Role)), xmlEsc(roleLabel(m.Role)), xhtmlText(m.Markup))
	}
	b.WriteString("</body>\n</html>\n")
	return b.Bytes()
}

// xhtmlText flattens markup to escaped text with <br/> line breaks; script
// markup is HTML, not XML, and cannot be embedded as is.
func xhtmlText(s string) string {
	lines := strings.Split(strings.TrimSpace(markup.StripTags(s)), "\n")
	for i, l := range lines {
		lines[i] = xmlEsc(l)
	}
	return strings.Join(lines, "<br/>")
}

func contentOPF(d Document, lang string) []byte {
	var b bytes.Buffer
	b.WriteString("<?xml version=\"1.0\" encoding=\"utf-8\"?>\n")
	b.WriteString("<package version=\"3.0\" unique-identifier=\"pub-id\" xmlns=\"http://www.idpf.org/2007/opf\">\n")
	b.WriteString("  <metadata xmlns:dc=\"http://purl.org/dc/elements/1.1/\">\n")
	fmt.Fprintf(&b, "    <dc:identifier id=\"pub-id\">urn:gochatpresenter:%d</dc:identifier>\n", d.Date.UnixNano())
	fmt.Fprintf(&b, "    <dc:title>%s</dc:title>\n", xmlEsc(d.Title))
	fmt.Fprintf(&b, "    <dc:language>%s</dc:language>\n", xmlEsc(lang))
	fmt.Fprintf(&b, "    <meta property=\"dcterms:modified\">%s</meta>\n", d.Date.UTC().Format("2006-01-02T15:04:05Z"))
	b.WriteString("  </metadata>\n  <manifest>\n")
	b.WriteString("    <item id=\"nav\" href=\"nav.xhtml\" media-type=\"application/xhtml+xml\" properties=\"nav\"/>\n")
	b.WriteString("    <item id=\"css\" href=\"styles/chat.css\" media-type=\"text/css\"/>\n")
	b.WriteString("    <item id=\"chat\" href=\"chat.xhtml\" media-type=\"application/xhtml+xml\"/>\n")
	b.WriteString("  </manifest>\n  <spine>\n    <itemref idref=\"chat\"/>\n  </spine>\n</package>\n")
	return b.Bytes()
}

// addStoredZipFile writes an uncompressed entry, as EPUB requires for
// mimetype.
func addStoredZipFile(zw *zip.Writer, name string, data []byte) error {
	hdr := &zip.FileHeader{Name: name, Method: zip.Store, Modified: time.Now()}
	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func addZipFile(zw *zip.Writer, name string, data []byte) error {
	hdr := &zip.FileHeader{Name: name, Method: zip.Deflate, Modified: time.Now()}
	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, bytes.NewReader(data))
	return err
}

func xmlEsc(s string) string { return html.EscapeString(s) }
