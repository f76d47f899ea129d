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

// Package runtimedir manages the daemon's runtime directory: an exclusive
// start lock guaranteeing a single live instance, the resolved config
// snapshot, and per-component state files written atomically so a reader
// never observes a partial write.
package runtimedir

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// DefaultDir is the runtime directory used when RUNTIME_DIR is unset.
const DefaultDir = "/run/systemd-swap"

const lockFileName = ".lock"

// Dir is a held runtime directory: Acquire succeeded and lockFile is
// flock'd for the lifetime of the process.
type Dir struct {
	path     string
	lockFile *os.File
}

// Path returns the configured runtime directory, honoring RUNTIME_DIR for
// tests and non-standard installs.
func Path() string {
	if v := os.Getenv("RUNTIME_DIR"); v != "" {
		return v
	}
	return DefaultDir
}

// Acquire creates path if necessary and takes an exclusive, non-blocking
// flock on its lock file. A second instance calling Acquire against the
// same path fails immediately instead of blocking, since a second
// daemon instance must never silently queue behind the first.
func Acquire(path string) (*Dir, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, errors.Wrapf(err, "failed to create runtime directory %q", path)
	}

	lockPath := filepath.Join(path, lockFileName)
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open lock file %q", lockPath)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if err == unix.EWOULDBLOCK {
			return nil, errors.Errorf("another instance already holds the lock in %q", path)
		}
		return nil, errors.Wrapf(err, "failed to lock %q", lockPath)
	}

	return &Dir{path: path, lockFile: f}, nil
}

// Release drops the lock and closes the lock file. The lock file itself
// is left in place; flock state disappears with the close regardless.
func (d *Dir) Release() error {
	if d.lockFile == nil {
		return nil
	}
	unix.Flock(int(d.lockFile.Fd()), unix.LOCK_UN)
	err := d.lockFile.Close()
	d.lockFile = nil
	if err != nil {
		return errors.Wrap(err, "failed to close lock file")
	}
	return nil
}

// Path returns the held runtime directory.
func (d *Dir) Path() string {
	return d.path
}

// ConfigSnapshotPath is where the fully resolved configuration is
// written at start, for post-mortem inspection without re-running the
// resolver. The `status` command does not read it.
func (d *Dir) ConfigSnapshotPath() string {
	return filepath.Join(d.path, "swap.conf")
}

// StatePath returns the path of a named state file under the runtime
// directory, for controllers to track what they created (e.g. the set
// of zram devices or swap files currently active).
func (d *Dir) StatePath(name string) string {
	return filepath.Join(d.path, name)
}

// WriteState atomically replaces the named state file's content via a
// temp-file-then-rename, so a crash mid-write never leaves a reader
// with truncated or mixed-version content.
func (d *Dir) WriteState(name, content string) error {
	target := d.StatePath(name)
	tmp := target + ".tmp"

	if err := os.WriteFile(tmp, []byte(content), 0644); err != nil {
		return errors.Wrapf(err, "failed to write %q", tmp)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return errors.Wrapf(err, "failed to rename %q to %q", tmp, target)
	}
	return nil
}

// ReadState reads a named state file. A missing file is not an error;
// it reports an empty string, since "never written" and "empty" are the
// same fact for every caller of this package.
func (d *Dir) ReadState(name string) (string, error) {
	buf, err := os.ReadFile(d.StatePath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", errors.Wrapf(err, "failed to read %q", d.StatePath(name))
	}
	return string(buf), nil
}

// RemoveState deletes a named state file. A missing file is not an
// error.
func (d *Dir) RemoveState(name string) error {
	if err := os.Remove(d.StatePath(name)); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "failed to remove %q", d.StatePath(name))
	}
	return nil
}
