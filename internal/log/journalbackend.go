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

import (
	"fmt"
	"strings"

	"github.com/coreos/go-systemd/v22/journal"
)

// JournalBackendName is the name of the systemd-journal-native Backend,
// selectable with --logger=journal.
const JournalBackendName = "journal"

// journalPriority maps a Level to the syslog priority SD_JOURNAL_SEND
// expects.
var journalPriority = map[Level]journal.Priority{
	LevelDebug: journal.PriDebug,
	LevelInfo:  journal.PriInfo,
	LevelWarn:  journal.PriWarning,
	LevelError: journal.PriErr,
	LevelPanic: journal.PriCrit,
	LevelFatal: journal.PriCrit,
}

// journalBackend sends log messages straight to the systemd journal over
// its native datagram protocol instead of formatting a line for stdout.
// Unlike fmtBackend it attaches the source as a structured field
// (SWAPD_SOURCE) rather than a "[ zram ]"-style text prefix, so
// `journalctl -u swapd SWAPD_SOURCE=zram` filters directly on it. It has
// no internal queue: journal.Send is itself a single syscall, so there is
// nothing worth buffering.
type journalBackend struct {
	align int
}

func createJournalBackend() Backend {
	return &journalBackend{}
}

func (*journalBackend) Name() string {
	return JournalBackendName
}

func (j *journalBackend) Log(level Level, source, format string, args ...interface{}) {
	j.send(level, source, fmt.Sprintf(format, args...))
}

func (j *journalBackend) Block(level Level, source, prefix, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if prefix == "" {
		j.send(level, source, msg)
		return
	}
	lines := strings.Split(msg, "\n")
	for i, line := range lines {
		lines[i] = prefix + " " + line
	}
	j.send(level, source, strings.Join(lines, "\n"))
}

// send emits msg to the journal, falling back to stdout when no journal
// socket is reachable (not running under systemd, e.g. in a dev shell or
// a container without /run/systemd/journal).
func (j *journalBackend) send(level Level, source, msg string) {
	if !journal.Enabled() {
		fmt.Println(fmtTags[level], "["+source+"]", msg)
		return
	}
	pri, ok := journalPriority[level]
	if !ok {
		pri = journal.PriInfo
	}
	vars := map[string]string{"SWAPD_SOURCE": source}
	if err := journal.Send(msg, pri, vars); err != nil {
		fmt.Println(fmtTags[LevelWarn], "[log]", "journal send failed, message lost:", err)
	}
}

func (j *journalBackend) Flush() {}
func (j *journalBackend) Sync()  {}
func (j *journalBackend) Stop()  {}

func (j *journalBackend) SetSourceAlignment(n int) {
	j.align = n
}

func init() {
	RegisterBackend(JournalBackendName, createJournalBackend)
}
