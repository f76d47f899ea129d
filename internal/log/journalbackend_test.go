// Copyright 2019-2020 Intel Corporation. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import "testing"

// Test environments have no /run/systemd/journal socket, so Enabled()
// is false and every call below exercises journalBackend's stdout
// fallback path rather than journal.Send itself.
func TestJournalBackendName(t *testing.T) {
	b := createJournalBackend()
	if b.Name() != JournalBackendName {
		t.Errorf("expected name %q, got %q", JournalBackendName, b.Name())
	}
}

func TestJournalBackendFallsBackWithoutSocket(t *testing.T) {
	b := createJournalBackend()

	// None of these must panic when journal.Enabled() is false.
	b.Log(LevelInfo, "zram", "pool grew to %d devices", 3)
	b.Block(LevelWarn, "swapfc", "->", "line one\nline two")
	b.Flush()
	b.Sync()
	b.Stop()
	b.SetSourceAlignment(8)
}

func TestJournalBackendRegistered(t *testing.T) {
	fn, ok := log.backend[JournalBackendName]
	if !ok {
		t.Fatal("journal backend not registered")
	}
	if fn() == nil {
		t.Error("journal backend factory returned nil")
	}
}

func TestCountsTracksWarnAndError(t *testing.T) {
	l := NewLogger("counts-test")

	before, beforeErr := Counts()
	l.Warn("test warning")
	l.Error("test error")
	after, afterErr := Counts()

	if after != before+1 {
		t.Errorf("expected warning count to increase by 1, got %d -> %d", before, after)
	}
	if afterErr != beforeErr+1 {
		t.Errorf("expected error count to increase by 1, got %d -> %d", beforeErr, afterErr)
	}
}
