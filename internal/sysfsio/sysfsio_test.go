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

package sysfsio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "scan")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestScanKeyValueColonForm(t *testing.T) {
	path := writeTemp(t, "MemTotal:        8124528 kB\nMemFree:         1048576 kB\n")

	var total, free string
	err := ScanKeyValue(path, map[string]*string{
		"MemTotal": &total,
		"MemFree":  &free,
	}, nil)
	require.NoError(t, err)
	require.Equal(t, "8124528 kB", total)
	require.Equal(t, "1048576 kB", free)
}

func TestScanKeyValueStopsOnceWantSatisfiedWithoutPick(t *testing.T) {
	path := writeTemp(t, "a: 1\nb: 2\nc: 3\n")

	var a, b string
	err := ScanKeyValue(path, map[string]*string{"a": &a, "b": &b}, nil)
	require.NoError(t, err)
	require.Equal(t, "1", a)
	require.Equal(t, "2", b)
}

func TestScanKeyValueWithPickScansEveryLineUntilDone(t *testing.T) {
	path := writeTemp(t, "a: 1\nb: 2\nc: 3\n")

	seen := []string{}
	var a string
	err := ScanKeyValue(path, map[string]*string{"a": &a}, func(key, value string) bool {
		seen = append(seen, key)
		return false
	})
	require.NoError(t, err)
	require.Equal(t, "1", a)
	// a non-nil pick overrides the remaining==0 early exit, so every line
	// is still offered to it even after "a" has been filled.
	require.Equal(t, []string{"a", "b", "c"}, seen)
}

func TestScanKeyValuePickCanStopEarly(t *testing.T) {
	path := writeTemp(t, "zram0: active\nzram1: idle\nzram2: idle\n")

	var stoppedAt string
	err := ScanKeyValue(path, nil, func(key, value string) bool {
		if value == "idle" {
			stoppedAt = key
			return true
		}
		return false
	})
	require.NoError(t, err)
	require.Equal(t, "zram1", stoppedAt)
}

func TestScanKeyValueMissingFile(t *testing.T) {
	err := ScanKeyValue(filepath.Join(t.TempDir(), "missing"), nil, nil)
	require.Error(t, err)
}

func TestParseSizeUnitWithSuffix(t *testing.T) {
	n, unit, err := ParseSizeUnit("8124528 kB")
	require.NoError(t, err)
	require.EqualValues(t, 8124528, n)
	require.Equal(t, "kB", unit)
}

func TestParseSizeUnitWithoutSuffix(t *testing.T) {
	n, unit, err := ParseSizeUnit("32767")
	require.NoError(t, err)
	require.EqualValues(t, 32767, n)
	require.Equal(t, "", unit)
}

func TestParseSizeUnitEmpty(t *testing.T) {
	_, _, err := ParseSizeUnit("")
	require.Error(t, err)
}

func TestParseSizeUnitNotANumber(t *testing.T) {
	_, _, err := ParseSizeUnit("nope kB")
	require.Error(t, err)
}
