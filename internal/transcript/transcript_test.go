/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package transcript

import (
	"sync"
	"testing"
	"time"

	"gochatpresenter/internal/script"
)

func TestAppendMessagesReset(t *testing.T) {
	tr := New()
	at := time.Unix(100, 0)
	if i := tr.Append(Message{Step: 0, Role: script.RoleUser, Markup: "hi", At: at}); i != 0 {
		t.Fatalf("first index = %d", i)
	}
	if i := tr.Append(Message{Step: 1, Role: script.RoleAI, Markup: "<b>hello</b>", At: at}); i != 1 {
		t.Fatalf("second index = %d", i)
	}
	msgs := tr.Messages()
	if len(msgs) != 2 || msgs[1].Markup != "<b>hello</b>" {
		t.Fatalf("unexpected messages: %+v", msgs)
	}
	msgs[0].Markup = "changed"
	if tr.Messages()[0].Markup != "hi" {
		t.Fatal("Messages must return a copy")
	}
	tr.Reset()
	if tr.Len() != 0 {
		t.Fatalf("Len after reset = %d", tr.Len())
	}
}

func TestConcurrentAppend(t *testing.T) {
	tr := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tr.Append(Message{Step: i})
		}(i)
	}
	wg.Wait()
	if tr.Len() != 50 {
		t.Fatalf("Len = %d, want 50", tr.Len())
	}
}
