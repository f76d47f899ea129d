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

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, name, content string) string {
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadFilesBasic(t *testing.T) {
	path := writeTemp(t, "swap.conf", "zram_size=150%\n# a comment\nzram_alg=zstd\n\nzram_prio=32767\n")

	r, err := LoadFiles([]string{path})
	require.NoError(t, err)

	v, err := r.GetString("zram_alg")
	require.NoError(t, err)
	require.Equal(t, "zstd", v)

	n, err := r.GetInt("zram_prio")
	require.NoError(t, err)
	require.EqualValues(t, 32767, n)
}

func TestLaterFileOverrides(t *testing.T) {
	p1 := writeTemp(t, "a.conf", "mode=zram\n")
	p2 := writeTemp(t, "b.conf", "mode=zram+swapfc\n")

	r, err := LoadFiles([]string{p1, p2})
	require.NoError(t, err)

	v, err := r.GetString("mode")
	require.NoError(t, err)
	require.Equal(t, "zram+swapfc", v)
}

func TestDuplicateKeyWithinFileTakesLastValue(t *testing.T) {
	path := writeTemp(t, "swap.conf", "k=first\nk=second\n")

	r, err := LoadFiles([]string{path})
	require.NoError(t, err)

	v, err := r.GetString("k")
	require.NoError(t, err)
	require.Equal(t, "second", v)
}

func TestVarExpansion(t *testing.T) {
	path := writeTemp(t, "swap.conf", "ncpu_copy=${NCPU}\n")

	r, err := LoadFiles([]string{path})
	require.NoError(t, err)

	v, err := r.GetString("ncpu_copy")
	require.NoError(t, err)
	require.False(t, strings.Contains(v, "${"))
	require.NotEmpty(t, v)
}

func TestUnresolvedVarIsConfigError(t *testing.T) {
	path := writeTemp(t, "swap.conf", "bad=${DOES_NOT_EXIST}\n")

	_, err := LoadFiles([]string{path})
	require.Error(t, err)
}

func TestArithExpansion(t *testing.T) {
	path := writeTemp(t, "swap.conf", "x=$((2 + 3 * 4))\ny=$(( (2 + 3) * 4 ))\n")

	r, err := LoadFiles([]string{path})
	require.NoError(t, err)

	x, err := r.GetInt("x")
	require.NoError(t, err)
	require.EqualValues(t, 14, x)

	y, err := r.GetInt("y")
	require.NoError(t, err)
	require.EqualValues(t, 20, y)
}

func TestArithExpansionWithVariables(t *testing.T) {
	path := writeTemp(t, "swap.conf", "half_cpu=$(( ${NCPU} / 2 ))\nram_mult=$(( $RAM_SIZE * 3 / 2 ))\n")

	r, err := LoadFiles([]string{path})
	require.NoError(t, err)

	ncpu, err := r.GetInt("NCPU")
	require.NoError(t, err)
	halfCPU, err := r.GetInt("half_cpu")
	require.NoError(t, err)
	require.EqualValues(t, ncpu/2, halfCPU)

	ramSize, err := r.GetInt("RAM_SIZE")
	require.NoError(t, err)
	ramMult, err := r.GetInt("ram_mult")
	require.NoError(t, err)
	require.EqualValues(t, ramSize*3/2, ramMult)
}

func TestArithOverflowIsError(t *testing.T) {
	_, err := evalArith("9223372036854775807 + 1")
	require.Error(t, err)
}

func TestGetBoolVariants(t *testing.T) {
	r := LoadMap(map[string]string{"a": "yes", "b": "0", "c": "On", "d": "bogus"})

	v, err := r.GetBool("a")
	require.NoError(t, err)
	require.True(t, v)

	v, err = r.GetBool("b")
	require.NoError(t, err)
	require.False(t, v)

	v, err = r.GetBool("c")
	require.NoError(t, err)
	require.True(t, v)

	_, err = r.GetBool("d")
	require.Error(t, err)
}

func TestGetEnumRejectsUnknown(t *testing.T) {
	r := LoadMap(map[string]string{"mode": "bogus"})
	_, err := r.GetEnum("mode", "auto", "zram", "zram+swapfc")
	require.Error(t, err)
}

func TestSizeRoundTrip(t *testing.T) {
	for _, n := range []uint64{0, 1024, 1536, 512 * 1024 * 1024, 8 * 1024 * 1024 * 1024} {
		serialized := SerializeSize(n)
		parsed, err := ParseSize(serialized, 0)
		require.NoError(t, err)
		require.Equal(t, n, parsed, "round trip for %d via %q", n, serialized)
	}
}

func TestSizePercentOfRAM(t *testing.T) {
	n, err := ParseSize("150%", 1024)
	require.NoError(t, err)
	require.EqualValues(t, 1536, n)
}

func TestSizeDecimalSuffix(t *testing.T) {
	n, err := ParseSize("1.5G", 0)
	require.NoError(t, err)
	require.EqualValues(t, uint64(1.5*1024*1024*1024), n)
}

func TestSetIfMissingRespectsExplicitValue(t *testing.T) {
	path := writeTemp(t, "swap.conf", "zram_alg=lz4\n")
	r, err := LoadFiles([]string{path})
	require.NoError(t, err)

	r.SetIfMissing("zram_alg", "zstd")
	r.SetIfMissing("zram_prio", "32767")

	v, err := r.GetString("zram_alg")
	require.NoError(t, err)
	require.Equal(t, "lz4", v, "explicit user value must win over autoconfig")

	v, err = r.GetString("zram_prio")
	require.NoError(t, err)
	require.Equal(t, "32767", v)
}

func TestSnapshotRoundTrip(t *testing.T) {
	path := writeTemp(t, "swap.conf", "mode=zram+swapfc\nzram_alg=zstd\n")
	r, err := LoadFiles([]string{path})
	require.NoError(t, err)

	snap := r.Snapshot()
	require.False(t, strings.Contains(snap, "${"))

	snapPath := filepath.Join(t.TempDir(), "swap.conf")
	require.NoError(t, os.WriteFile(snapPath, []byte(snap), 0644))

	r2, err := LoadFiles([]string{snapPath})
	require.NoError(t, err)

	v1, _ := r.GetString("mode")
	v2, err := r2.GetString("mode")
	require.NoError(t, err)
	require.Equal(t, v1, v2)
}

func TestFragmentPrecedenceLexicographic(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "10-a.conf"), []byte("k=a\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "20-b.conf"), []byte("k=b\n"), 0644))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	r, err := LoadFiles([]string{
		filepath.Join(dir, "10-a.conf"),
		filepath.Join(dir, "20-b.conf"),
	})
	require.NoError(t, err)

	v, err := r.GetString("k")
	require.NoError(t, err)
	require.Equal(t, "b", v)
}
