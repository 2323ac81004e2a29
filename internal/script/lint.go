/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package script

import (
	"fmt"
	"sort"

	"github.com/zyedidia/generic/mapset"
)

// Issue is an authoring warning. Issues never prevent a script from playing.
type Issue struct {
	Step    int
	Message string
}

func (i Issue) String() string { return fmt.Sprintf("scene %d: %s", i.Step, i.Message) }

// Successors returns the steps playback can move to after step. User scenes
// always advance linearly; AI scenes follow their buttons, then autoNext,
// then the next scene.
func (s Script) Successors(step int) []int {
	sc, ok := s.Scene(step)
	if !ok {
		return nil
	}
	switch {
	case sc.Role == RoleUser:
		return []int{step + 1}
	case len(sc.Buttons) > 0:
		out := make([]int, 0, len(sc.Buttons))
		for _, b := range sc.Buttons {
			out = append(out, b.NextIndex)
		}
		return out
	case sc.AutoNext != nil:
		return []int{*sc.AutoNext}
	default:
		return []int{step + 1}
	}
}

// Reachable returns the set of scene indexes reachable from scene 0.
func (s Script) Reachable() mapset.Set[int] {
	seen := mapset.New[int]()
	if len(s.Scenes) == 0 {
		return seen
	}
	queue := []int{0}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur >= len(s.Scenes) || seen.Has(cur) {
			continue
		}
		seen.Put(cur)
		for _, next := range s.Successors(cur) {
			if next < len(s.Scenes) && !seen.Has(next) {
				queue = append(queue, next)
			}
		}
	}
	return seen
}

// Lint reports branches past the end of the script, branching data that is
// ignored on user scenes and scenes nothing leads to.
func (s Script) Lint() []Issue {
	if len(s.Scenes) == 0 {
		return []Issue{{Step: 0, Message: "script has no scenes"}}
	}
	var issues []Issue
	n := len(s.Scenes)
	for i, sc := range s.Scenes {
		if sc.Role == RoleUser && (len(sc.Buttons) > 0 || sc.AutoNext != nil) {
			issues = append(issues, Issue{Step: i, Message: "buttons and autoNext are ignored on user scenes"})
			continue
		}
		for _, b := range sc.Buttons {
			if b.NextIndex >= n {
				issues = append(issues, Issue{Step: i, Message: fmt.Sprintf("button %q targets scene %d past the end; choosing it ends the presentation", b.Label, b.NextIndex)})
			}
		}
		if sc.AutoNext != nil && len(sc.Buttons) == 0 && *sc.AutoNext >= n {
			issues = append(issues, Issue{Step: i, Message: fmt.Sprintf("autoNext targets scene %d past the end; the presentation ends there", *sc.AutoNext)})
		}
	}
	reach := s.Reachable()
	var unreachable []int
	for i := range s.Scenes {
		if !reach.Has(i) {
			unreachable = append(unreachable, i)
		}
	}
	sort.Ints(unreachable)
	for _, i := range unreachable {
		issues = append(issues, Issue{Step: i, Message: "unreachable from the first scene"})
	}
	return issues
}
