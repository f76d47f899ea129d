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

package runtimedir

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAcquireCreatesDirectory(t *testing.T) {
	base := t.TempDir()
	target := filepath.Join(base, "nested", "swapd")

	d, err := Acquire(target)
	require.NoError(t, err)
	defer d.Release()

	info, err := os.Stat(target)
	require.NoError(t, err)
	require.True(t, info.IsDir())
	require.Equal(t, target, d.Path())
}

func TestAcquireTwiceFails(t *testing.T) {
	dir := t.TempDir()

	first, err := Acquire(dir)
	require.NoError(t, err)
	defer first.Release()

	_, err = Acquire(dir)
	require.Error(t, err)
}

func TestReleaseThenReacquire(t *testing.T) {
	dir := t.TempDir()

	first, err := Acquire(dir)
	require.NoError(t, err)
	require.NoError(t, first.Release())

	second, err := Acquire(dir)
	require.NoError(t, err)
	defer second.Release()
}

func TestWriteReadRemoveState(t *testing.T) {
	dir := t.TempDir()
	d, err := Acquire(dir)
	require.NoError(t, err)
	defer d.Release()

	v, err := d.ReadState("zram.devices")
	require.NoError(t, err)
	require.Equal(t, "", v, "unwritten state file is not an error")

	require.NoError(t, d.WriteState("zram.devices", "zram0\nzram1\n"))

	v, err = d.ReadState("zram.devices")
	require.NoError(t, err)
	require.Equal(t, "zram0\nzram1\n", v)

	_, err = os.Stat(d.StatePath("zram.devices") + ".tmp")
	require.True(t, os.IsNotExist(err), "temp file must not survive a successful WriteState")

	require.NoError(t, d.RemoveState("zram.devices"))
	v, err = d.ReadState("zram.devices")
	require.NoError(t, err)
	require.Equal(t, "", v)
}

func TestRemoveStateMissingIsNotError(t *testing.T) {
	dir := t.TempDir()
	d, err := Acquire(dir)
	require.NoError(t, err)
	defer d.Release()

	require.NoError(t, d.RemoveState("never-written"))
}

func TestConfigSnapshotPath(t *testing.T) {
	dir := t.TempDir()
	d, err := Acquire(dir)
	require.NoError(t, err)
	defer d.Release()

	require.Equal(t, filepath.Join(dir, "swap.conf"), d.ConfigSnapshotPath())
}

func TestPathHonorsEnvOverride(t *testing.T) {
	t.Setenv("RUNTIME_DIR", "/tmp/custom-swapd-runtime")
	require.Equal(t, "/tmp/custom-swapd-runtime", Path())
}

func TestPathDefault(t *testing.T) {
	t.Setenv("RUNTIME_DIR", "")
	require.Equal(t, DefaultDir, Path())
}
