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

// Package sdnotify reports daemon lifecycle state to systemd over
// NOTIFY_SOCKET. Running without a supervising systemd (a plain shell,
// a container) is not an error: every call degrades to a no-op.
package sdnotify

import (
	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/swapd/swapd/internal/log"
)

var logger = log.NewLogger("sdnotify")

// Ready reports READY=1: the daemon has finished mode setup and its
// controllers are running.
func Ready() {
	notify("READY=1")
}

// Stopping reports STOPPING=1: shutdown has begun and systemd should
// not expect further readiness before the process exits.
func Stopping() {
	notify("STOPPING=1")
}

// Status reports a free-form STATUS= line, surfaced by
// `systemctl status`.
func Status(text string) {
	notify("STATUS=" + text)
}

// Watchdog pings WATCHDOG=1. It only has an effect when the unit sets
// WatchdogSec=; the supervisor does not call it.
func Watchdog() {
	notify("WATCHDOG=1")
}

func notify(state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		logger.Warn("sd_notify(%q) failed: %v", state, err)
		return
	}
	if !sent {
		logger.Debug("sd_notify(%q) skipped: no NOTIFY_SOCKET", state)
	}
}
