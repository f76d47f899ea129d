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

// Package sysfsio provides the small set of direct-I/O primitives the
// controllers use against sysfs and procfs: reading and writing a
// single scalar parameter file, and scanning a multi-line key: value
// file (/proc/meminfo's shape) with an early exit once every requested
// key has been seen.
package sysfsio

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ReadString reads a sysfs/procfs entry and returns its trimmed content.
func ReadString(path string) (string, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrapf(err, "failed to read %q", path)
	}
	return strings.TrimSpace(string(buf)), nil
}

// ReadInt reads a sysfs/procfs entry and parses it as a signed integer.
func ReadInt(path string) (int64, error) {
	s, err := ReadString(path)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to parse %q as integer", path)
	}
	return v, nil
}

// ReadUint reads a sysfs/procfs entry and parses it as an unsigned integer.
func ReadUint(path string) (uint64, error) {
	s, err := ReadString(path)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to parse %q as unsigned integer", path)
	}
	return v, nil
}

// WriteString writes value, as given and with no newline appended, to a
// sysfs/procfs entry.
func WriteString(path, value string) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return errors.Wrapf(err, "failed to open %q for writing", path)
	}
	defer f.Close()

	if _, err := f.WriteString(value); err != nil {
		return errors.Wrapf(err, "failed to write %q to %q", value, path)
	}
	return nil
}

// WriteInt writes an integer value to a sysfs/procfs entry.
func WriteInt(path string, value int64) error {
	return WriteString(path, strconv.FormatInt(value, 10))
}

// Exists reports whether path exists on the filesystem.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// SelectedBracketed parses a kernel "[chosen] other other" style value
// (e.g. /sys/block/zram0/comp_algorithm) and returns the bracketed entry.
func SelectedBracketed(raw string) (string, bool) {
	for _, field := range strings.Fields(raw) {
		if strings.HasPrefix(field, "[") && strings.HasSuffix(field, "]") {
			return strings.Trim(field, "[]"), true
		}
	}
	return "", false
}

// PickFn decides, given a key seen in a scanned file, whether the scan's
// caller still wants more lines read.
type PickFn func(key, value string) (done bool)

// ScanKeyValue scans a "key: value" or "key value" file (procfs's usual
// shape) line by line, storing the value of every key present in want
// (want maps key to a *string destination) and, when pick is non-nil,
// calling pick for every parsed line. Scanning stops when pick reports
// done or, when pick is nil, as soon as every key in want has been filled.
func ScanKeyValue(path string, want map[string]*string, pick PickFn) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "failed to open %q", path)
	}
	defer f.Close()

	remaining := len(want)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		idx := strings.IndexAny(line, ":")
		var key, value string
		if idx >= 0 {
			key = strings.TrimSpace(line[:idx])
			value = strings.TrimSpace(line[idx+1:])
		} else {
			fields := strings.Fields(line)
			if len(fields) < 2 {
				continue
			}
			key, value = fields[0], strings.Join(fields[1:], " ")
		}

		dst, ok := want[key]
		if ok {
			*dst = value
			remaining--
		}

		if pick != nil {
			if pick(key, value) {
				return nil
			}
		}
		if remaining <= 0 && pick == nil {
			return nil
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "failed to scan %q", path)
	}
	return nil
}

// ParseSizeUnit splits a kernel-reported "NNNN kB"-style value into its
// numeric part and unit suffix.
func ParseSizeUnit(raw string) (int64, string, error) {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return 0, "", fmt.Errorf("empty size value")
	}
	n, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return 0, "", errors.Wrapf(err, "failed to parse size %q", raw)
	}
	unit := ""
	if len(fields) > 1 {
		unit = fields[1]
	}
	return n, unit, nil
}
