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
	"fmt"
	"strconv"
	"strings"
)

// ParseSize parses a size literal into a byte count. Recognized forms:
// a bare integer (bytes), a decimal mantissa with a K/M/G/T suffix
// (power of 1024, case-insensitive), or a trailing '%' meaning a
// percentage of ramBytes.
func ParseSize(s string, ramBytes uint64) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty size value")
	}

	if strings.HasSuffix(s, "%") {
		pct, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
		if err != nil {
			return 0, fmt.Errorf("invalid percentage %q: %w", s, err)
		}
		return uint64(pct / 100 * float64(ramBytes)), nil
	}

	mult := uint64(1)
	mantissa := s
	switch last := s[len(s)-1]; last {
	case 'k', 'K':
		mult = 1024
		mantissa = s[:len(s)-1]
	case 'm', 'M':
		mult = 1024 * 1024
		mantissa = s[:len(s)-1]
	case 'g', 'G':
		mult = 1024 * 1024 * 1024
		mantissa = s[:len(s)-1]
	case 't', 'T':
		mult = 1024 * 1024 * 1024 * 1024
		mantissa = s[:len(s)-1]
	}

	f, err := strconv.ParseFloat(mantissa, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	if f < 0 {
		return 0, fmt.Errorf("negative size %q", s)
	}

	return uint64(f * float64(mult)), nil
}

// SerializeSize formats a byte count using the largest whole K/M/G/T
// suffix that represents it exactly, falling back to a bare byte count.
// Chosen so that ParseSize(SerializeSize(x), _) == x for every x this
// daemon produces internally (the round-trip law).
func SerializeSize(n uint64) string {
	units := []struct {
		suffix string
		factor uint64
	}{
		{"T", 1024 * 1024 * 1024 * 1024},
		{"G", 1024 * 1024 * 1024},
		{"M", 1024 * 1024},
		{"K", 1024},
	}
	for _, u := range units {
		if n != 0 && n%u.factor == 0 {
			return strconv.FormatUint(n/u.factor, 10) + u.suffix
		}
	}
	return strconv.FormatUint(n, 10)
}
