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

// Package meminfo samples /proc/meminfo on demand. It holds no state:
// every call is a fresh read, cheap enough to call on every monitor tick.
package meminfo

import (
	"runtime"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/swapd/swapd/internal/sysfsio"
)

const procMeminfo = "/proc/meminfo"

// Stats is a snapshot of the fields the controllers need from
// /proc/meminfo, normalized to bytes.
type Stats struct {
	MemTotal     uint64
	MemFree      uint64
	MemAvailable uint64
	SwapTotal    uint64
	SwapFree     uint64
	// Zswap and Zswapped report the compressed and original size
	// (bytes) of pages currently held in the zswap pool, when the
	// running kernel exposes them (>= 5.x).
	Zswap    uint64
	Zswapped uint64
}

// FreeRAMPercent returns free RAM as a percentage of total RAM: free /
// total * 100. This deliberately reads MemFree, not MemAvailable — the
// latter folds in reclaimable cache/buffers that zram and swapfc would
// rather treat as pressure, not headroom.
func (s Stats) FreeRAMPercent() float64 {
	if s.MemTotal == 0 {
		return 100
	}
	return float64(s.MemFree) * 100 / float64(s.MemTotal)
}

// FreeSwapPercent returns free swap as a percentage of total swap,
// defined as 100 when there is no swap configured at all.
func (s Stats) FreeSwapPercent() float64 {
	if s.SwapTotal == 0 {
		return 100
	}
	return float64(s.SwapFree) * 100 / float64(s.SwapTotal)
}

// Sampler reads /proc/meminfo. The zero value is ready to use.
type Sampler struct {
	path string
}

// NewSampler creates a Sampler reading the real /proc/meminfo.
func NewSampler() *Sampler {
	return &Sampler{path: procMeminfo}
}

// Snapshot reads and parses /proc/meminfo, stopping as soon as every
// field Stats needs has been seen.
func (s *Sampler) Snapshot() (Stats, error) {
	path := s.path
	if path == "" {
		path = procMeminfo
	}

	raw, err := readFields(path, []string{
		"MemTotal", "MemFree", "MemAvailable", "SwapTotal", "SwapFree", "Zswap", "Zswapped",
	})
	if err != nil {
		return Stats{}, err
	}

	required := []string{"MemTotal", "MemFree", "SwapTotal", "SwapFree"}
	for _, key := range required {
		if _, ok := raw[key]; !ok {
			return Stats{}, errors.Errorf("meminfo: missing required field %q", key)
		}
	}

	available, ok := raw["MemAvailable"]
	if !ok {
		available = raw["MemFree"]
	}

	return Stats{
		MemTotal:     raw["MemTotal"],
		MemFree:      raw["MemFree"],
		MemAvailable: available,
		SwapTotal:    raw["SwapTotal"],
		SwapFree:     raw["SwapFree"],
		Zswap:        raw["Zswap"],
		Zswapped:     raw["Zswapped"],
	}, nil
}

// readFields scans path for "Key: value [kB]" lines via sysfsio.ScanKeyValue,
// stopping once every entry in want has been seen. Values are normalized to
// bytes.
func readFields(path string, want []string) (map[string]uint64, error) {
	dest := make(map[string]*string, len(want))
	for _, k := range want {
		dest[k] = new(string)
	}

	if err := sysfsio.ScanKeyValue(path, dest, nil); err != nil {
		return nil, err
	}

	found := make(map[string]uint64, len(want))
	for key, ptr := range dest {
		if *ptr == "" {
			continue
		}
		n, unit, err := sysfsio.ParseSizeUnit(*ptr)
		if err != nil {
			return nil, errors.Wrapf(err, "meminfo: field %q", key)
		}
		if unit == "kB" {
			n *= 1024
		}
		found[key] = uint64(n)
	}

	return found, nil
}

// NumCPU returns the number of CPUs the daemon may use, seeding NCPU.
func NumCPU() int {
	return runtime.NumCPU()
}

// PageSize returns the kernel's page size in bytes.
func PageSize() int {
	return unix.Getpagesize()
}
