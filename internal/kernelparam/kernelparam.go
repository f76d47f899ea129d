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

// Package kernelparam optionally tunes THP mode, MGLRU's min_ttl_ms,
// and a handful of vm.* sysctls, snapshotting the prior values at
// start so a clean stop restores them exactly.
package kernelparam

import (
	"strconv"

	"github.com/hashicorp/go-multierror"
	"github.com/swapd/swapd/internal/config"
	"github.com/swapd/swapd/internal/log"
	"github.com/swapd/swapd/internal/swapderr"
	"github.com/swapd/swapd/internal/sysfsio"
)

const (
	thpPath   = "/sys/kernel/mm/transparent_hugepage/enabled"
	mglruPath = "/sys/kernel/mm/lru_gen/min_ttl_ms"
)

var logger = log.NewLogger("kernelparam")

// sysctl names to value-file paths. sysctlOrder below is the write order
// used at start (reversed at stop). THP and MGLRU are written before any
// sysctl.
var sysctlPaths = map[string]string{
	"vm.swappiness":             "/proc/sys/vm/swappiness",
	"vm.page-cluster":           "/proc/sys/vm/page-cluster",
	"vm.watermark_scale_factor": "/proc/sys/vm/watermark_scale_factor",
}

var sysctlOrder = []string{"vm.swappiness", "vm.page-cluster", "vm.watermark_scale_factor"}

// Desired is the set of parameters the daemon wants to apply, resolved
// from configuration. Any field left at its zero value for a string
// (empty) or pointer (nil) is left untouched.
type Desired struct {
	THPMode     string // e.g. "madvise", "never"; empty means leave alone
	MGLRUMinTTL *int64 // nil means leave alone
	Sysctls     map[string]string
}

// FromResolver builds a Desired from the resolved configuration. Every
// knob is optional: omitting a key leaves the running kernel's value
// untouched.
func FromResolver(cfg *config.Resolver) Desired {
	d := Desired{Sysctls: make(map[string]string, len(sysctlOrder))}

	if cfg.Has("thp_mode") {
		d.THPMode = cfg.GetStringDefault("thp_mode", "")
	}
	if cfg.Has("mglru_min_ttl_ms") {
		v := cfg.GetIntDefault("mglru_min_ttl_ms", 0)
		d.MGLRUMinTTL = &v
	}
	for _, name := range sysctlOrder {
		key := sysctlConfigKey(name)
		if cfg.Has(key) {
			d.Sysctls[name] = strconv.FormatInt(cfg.GetIntDefault(key, 0), 10)
		}
	}
	return d
}

func sysctlConfigKey(sysctl string) string {
	switch sysctl {
	case "vm.swappiness":
		return "vm_swappiness"
	case "vm.page-cluster":
		return "vm_page_cluster"
	case "vm.watermark_scale_factor":
		return "vm_watermark_scale_factor"
	default:
		return ""
	}
}

// Snapshot is the prior value of every parameter the daemon touched.
type Snapshot struct {
	thp     string
	mglru   string
	sysctl  map[string]string
}

// Apply writes the desired parameters in order (THP, then MGLRU, then
// sysctls), snapshotting each prior value first. A write failure on any
// single parameter is logged and skipped; it never aborts the rest.
func Apply(desired Desired) *Snapshot {
	snap := &Snapshot{sysctl: make(map[string]string, len(desired.Sysctls))}

	if desired.THPMode != "" {
		if sysfsio.Exists(thpPath) {
			if prior, err := sysfsio.ReadString(thpPath); err == nil {
				snap.thp = selectedValue(prior)
			} else {
				logger.Warn("failed to read prior THP mode: %v", err)
			}
			if err := sysfsio.WriteString(thpPath, desired.THPMode); err != nil {
				logger.Warn("failed to set THP mode %q: %v", desired.THPMode, err)
			} else {
				logger.Info("THP mode set to %q", desired.THPMode)
			}
		} else {
			logger.Warn("THP control not present at %s, skipping", thpPath)
		}
	}

	if desired.MGLRUMinTTL != nil {
		if sysfsio.Exists(mglruPath) {
			if prior, err := sysfsio.ReadString(mglruPath); err == nil {
				snap.mglru = prior
			} else {
				logger.Warn("failed to read prior MGLRU min_ttl_ms: %v", err)
			}
			v := strconv.FormatInt(*desired.MGLRUMinTTL, 10)
			if err := sysfsio.WriteString(mglruPath, v); err != nil {
				logger.Warn("failed to set MGLRU min_ttl_ms=%s: %v", v, err)
			} else {
				logger.Info("MGLRU min_ttl_ms set to %s", v)
			}
		} else {
			logger.Debug("MGLRU control not present at %s (kernel < 6.1?), skipping", mglruPath)
		}
	}

	for _, name := range sysctlOrder {
		value, ok := desired.Sysctls[name]
		if !ok {
			continue
		}
		path := sysctlPaths[name]
		if prior, err := sysfsio.ReadString(path); err == nil {
			snap.sysctl[name] = prior
		} else {
			logger.Warn("failed to read prior %s: %v", name, err)
		}
		if err := sysfsio.WriteString(path, value); err != nil {
			logger.Warn("failed to set %s=%s: %v", name, value, err)
			continue
		}
		logger.Info("%s set to %s", name, value)
	}

	return snap
}

// selectedValue parses THP's "[chosen] other other" reporting format
// down to the bracketed mode name, falling back to the raw string for
// kernels that report a plain value.
func selectedValue(raw string) string {
	if v, ok := sysfsio.SelectedBracketed(raw); ok {
		return v
	}
	return raw
}

// Restore writes back every snapshotted value, in reverse of the write
// order (sysctls, then MGLRU, then THP). A failure does not stop the
// remaining writes; each is logged, and all are returned together as one
// aggregated error.
func Restore(snap *Snapshot) error {
	if snap == nil {
		return nil
	}

	var result *multierror.Error

	for i := len(sysctlOrder) - 1; i >= 0; i-- {
		name := sysctlOrder[i]
		prior, ok := snap.sysctl[name]
		if !ok {
			continue
		}
		if err := sysfsio.WriteString(sysctlPaths[name], prior); err != nil {
			werr := swapderr.ShutdownError("kernelparam restore "+name, err)
			logger.Warn("%v", werr)
			result = multierror.Append(result, werr)
		}
	}

	if snap.mglru != "" {
		if err := sysfsio.WriteString(mglruPath, snap.mglru); err != nil {
			werr := swapderr.ShutdownError("kernelparam restore mglru_min_ttl_ms", err)
			logger.Warn("%v", werr)
			result = multierror.Append(result, werr)
		}
	}

	if snap.thp != "" {
		if err := sysfsio.WriteString(thpPath, snap.thp); err != nil {
			werr := swapderr.ShutdownError("kernelparam restore thp", err)
			logger.Warn("%v", werr)
			result = multierror.Append(result, werr)
		}
	}

	if result != nil {
		return result.ErrorOrNil()
	}
	return nil
}
