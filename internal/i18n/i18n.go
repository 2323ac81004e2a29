/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package i18n holds the user-facing strings of the terminal, the browser
// view and the exports. Catalogues are gettext .po files embedded at build
// time; message ids are UPPER_SNAKE keys.
package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/leonelquinteros/gotext"
)

const Fallback = "en"

//go:embed locales/*.po
var locales embed.FS

var (
	mu      sync.RWMutex
	current = mustLoad(Fallback)
	lang    = Fallback
)

func load(name string) (*gotext.Po, error) {
	b, err := locales.ReadFile(path.Join("locales", name+".po"))
	if err != nil {
		return nil, err
	}
	po := gotext.NewPo()
	po.Parse(b)
	return po, nil
}

func mustLoad(name string) *gotext.Po {
	po, err := load(name)
	if err != nil {
		panic(fmt.Sprintf("i18n: embedded catalogue %s: %v", name, err))
	}
	return po
}

// normalize maps "it_IT.UTF-8" or "it-IT" to "it".
func normalize(l string) string {
	l = strings.ToLower(strings.TrimSpace(l))
	if i := strings.IndexAny(l, "_-."); i >= 0 {
		l = l[:i]
	}
	return l
}

// Init selects the catalogue for language l. Unknown languages fall back to
// English and return an error naming the request.
func Init(l string) error {
	name := normalize(l)
	if name == "" {
		name = Fallback
	}
	po, err := load(name)
	if err != nil {
		po, name = mustLoad(Fallback), Fallback
		err = fmt.Errorf("i18n: no catalogue for %q, using %s", l, Fallback)
	}
	mu.Lock()
	current, lang = po, name
	mu.Unlock()
	return err
}

// Language returns the active catalogue name.
func Language() string {
	mu.RLock()
	defer mu.RUnlock()
	return lang
}

// Available lists the embedded catalogues.
func Available() []string {
	entries, _ := fs.ReadDir(locales, "locales")
	var out []string
	for _, e := range entries {
		if n, ok := strings.CutSuffix(e.Name(), ".po"); ok {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}

// T returns the translation of msgid, or msgid itself when the catalogue
// has none.
func T(msgid string) string {
	mu.RLock()
	get := current.Get
	mu.RUnlock()
	// Keys are looked up at runtime, so the call goes through a function
	// value instead of a constant format string.
	return get(msgid)
}

// Tf translates msgid and formats args into the translated text.
func Tf(msgid string, args ...any) string {
	return fmt.Sprintf(T(msgid), args...)
}
