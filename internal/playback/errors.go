/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package playback

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by a Store when nothing is saved under a key.
var ErrNotFound = errors.New("playback: no saved state")

// ImportError reports a snapshot that ImportState could not accept. State is
// left untouched when it is returned.
type ImportError struct {
	Reason string
	Err    error
}

func (e *ImportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("import state: %s: %v", e.Reason, e.Err)
	}
	return "import state: " + e.Reason
}

func (e *ImportError) Unwrap() error { return e.Err }

// ReadError describes a persisted snapshot that was unreadable, corrupt or of
// another version. It is logged, never returned to callers.
type ReadError struct {
	Key    string
	Reason string
	Err    error
}

func (e *ReadError) Error() string {
	msg := fmt.Sprintf("read state %q: %s", e.Key, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ReadError) Unwrap() error { return e.Err }

// WriteError describes a failed persistence write. It is logged and playback
// continues.
type WriteError struct {
	Key string
	Err error
}

func (e *WriteError) Error() string { return fmt.Sprintf("write state %q: %v", e.Key, e.Err) }

func (e *WriteError) Unwrap() error { return e.Err }
