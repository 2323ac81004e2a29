/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package terminal

import (
	"bufio"
	"errors"
	"io"
	"os"

	"golang.org/x/term"
)

// Action is what a key press asks for.
type Action int

const (
	ActNone Action = iota
	ActNext
	ActBack
	ActSkip
	ActReset
	ActPresenter
	ActBookmark
	ActExport
	ActChoose
	ActQuit
)

func (a Action) String() string {
	switch a {
	case ActNext:
		return "next"
	case ActBack:
		return "back"
	case ActSkip:
		return "skip"
	case ActReset:
		return "reset"
	case ActPresenter:
		return "presenter"
	case ActBookmark:
		return "bookmark"
	case ActExport:
		return "export"
	case ActChoose:
		return "choose"
	case ActQuit:
		return "quit"
	}
	return "none"
}

// Key is a decoded key press. Choice is the 1-based button for ActChoose.
type Key struct {
	Action Action
	Choice int
}

// ErrNotTerminal is returned by MakeRaw for redirected input.
var ErrNotTerminal = errors.New("terminal: input is not a terminal")

// Keys decodes single key presses from a raw-mode input stream.
type Keys struct {
	r *bufio.Reader
}

// NewKeys reads keys from r.
func NewKeys(r io.Reader) *Keys { return &Keys{r: bufio.NewReader(r)} }

// Read blocks for the next key press. Unmapped keys yield ActNone.
func (k *Keys) Read() (Key, error) {
	b, err := k.r.ReadByte()
	if err != nil {
		return Key{}, err
	}
	switch {
	case b == 0x1b:
		return k.readEscape()
	case b == '\r' || b == '\n' || b == ' ':
		return Key{Action: ActNext}, nil
	case b >= '1' && b <= '9':
		return Key{Action: ActChoose, Choice: int(b - '0')}, nil
	case b == 3 || b == 4: // Ctrl-C, Ctrl-D
		return Key{Action: ActQuit}, nil
	}
	switch b | 0x20 {
	case 's':
		return Key{Action: ActSkip}, nil
	case 'r':
		return Key{Action: ActReset}, nil
	case 'p':
		return Key{Action: ActPresenter}, nil
	case 'b':
		return Key{Action: ActBookmark}, nil
	case 'e':
		return Key{Action: ActExport}, nil
	case 'q':
		return Key{Action: ActQuit}, nil
	}
	return Key{}, nil
}

// readEscape decodes CSI (ESC [) and SS3 (ESC O) arrow sequences.
func (k *Keys) readEscape() (Key, error) {
	b2, err := k.r.ReadByte()
	if err != nil {
		return Key{}, err
	}
	if b2 != '[' && b2 != 'O' {
		return Key{}, nil
	}
	b3, err := k.r.ReadByte()
	if err != nil {
		return Key{}, err
	}
	switch b3 {
	case 'C':
		return Key{Action: ActNext}, nil
	case 'D':
		return Key{Action: ActBack}, nil
	}
	return Key{}, nil
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool { return term.IsTerminal(int(f.Fd())) }

// MakeRaw puts f into raw mode. The returned func restores the previous
// state.
func MakeRaw(f *os.File) (restore func(), err error) {
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return func() {}, ErrNotTerminal
	}
	old, err := term.MakeRaw(fd)
	if err != nil {
		return func() {}, err
	}
	return func() { _ = term.Restore(fd, old) }, nil
}

// Width returns the width of the terminal on f, or 80.
func Width(f *os.File) int {
	w, _, err := term.GetSize(int(f.Fd()))
	if err != nil || w <= 0 {
		return 80
	}
	return w
}
