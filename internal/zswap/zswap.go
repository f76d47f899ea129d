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

// Package zswap configures the kernel's zswap compressed page cache by
// reading and writing /sys/module/zswap/parameters/*, snapshotting the
// prior values so a clean stop restores them exactly.
package zswap

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/swapd/swapd/internal/config"
	"github.com/swapd/swapd/internal/log"
	"github.com/swapd/swapd/internal/sysfsio"
	"github.com/swapd/swapd/internal/swapderr"
)

const (
	moduleDir = "/sys/module/zswap"
	paramsDir = "/sys/module/zswap/parameters"
	debugDir  = "/sys/kernel/debug/zswap"
)

// criticalParams must write successfully at start or the mode aborts;
// the rest log a warning and continue.
var criticalParams = map[string]bool{
	"enabled":    true,
	"compressor": true,
}

// orderedParams is the write order at start: enabled is written last.
var orderedParams = []string{
	"compressor", "zpool", "max_pool_percent", "accept_threshold_percent", "shrinker_enabled", "enabled",
}

var logger = log.NewLogger("zswap")

// Available reports whether the zswap kernel module is loaded.
func Available() bool {
	info, err := os.Stat(moduleDir)
	return err == nil && info.IsDir()
}

// Snapshot is the prior value of every zswap parameter the daemon
// touched, captured at start and replayed at stop.
type Snapshot struct {
	prior map[string]string
}

// Configurator applies the configured zswap parameters and can later
// restore the snapshot it captured.
type Configurator struct {
	desired map[string]string
}

// New builds a Configurator from the resolved configuration, applying
// the same adaptive defaults as the rest of the daemon.
func New(cfg *config.Resolver) *Configurator {
	maxPool := cfg.GetIntDefault("zswap_max_pool_percent", 45)

	return &Configurator{desired: map[string]string{
		"compressor":               cfg.GetStringDefault("zswap_compressor", "zstd"),
		"zpool":                    cfg.GetStringDefault("zswap_zpool", "zsmalloc"),
		"max_pool_percent":         strconv.FormatInt(maxPool, 10),
		"accept_threshold_percent": cfg.GetStringDefault("zswap_accept_threshold", "80"),
		"shrinker_enabled":         boolParam(cfg.GetBoolDefault("zswap_shrinker_enabled", true)),
		"enabled":                  boolParam(cfg.GetBoolDefault("zswap_enabled", true)),
	}}
}

func boolParam(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// Start backs up every current parameter and writes the configured
// values, writing "enabled" last. A failure writing a critical
// parameter aborts with an *EnvironmentError; failures on non-critical
// parameters are logged and skipped.
func (c *Configurator) Start() (*Snapshot, error) {
	if !Available() {
		return nil, swapderr.EnvironmentError("zswap start", errNotSupported)
	}

	snap := &Snapshot{prior: make(map[string]string, len(orderedParams))}

	for _, name := range orderedParams {
		path := paramsDir + "/" + name
		if !sysfsio.Exists(path) {
			logger.Warn("parameter %s not supported by this kernel, skipping", name)
			continue
		}

		prior, err := sysfsio.ReadString(path)
		if err != nil {
			logger.Warn("failed to read prior value of %s: %v", name, err)
		} else {
			snap.prior[name] = prior
		}

		if err := sysfsio.WriteString(path, c.desired[name]); err != nil {
			if criticalParams[name] {
				return nil, swapderr.EnvironmentError("zswap write "+name, err)
			}
			logger.Warn("failed to write %s=%s: %v", name, c.desired[name], err)
			continue
		}
		logger.Debug("set %s=%s", name, c.desired[name])
	}

	return snap, nil
}

// Stop restores every previously captured parameter, writing "enabled"
// first. A failure does not stop the remaining writes; each is logged,
// and all are returned together as one aggregated error.
func Stop(snap *Snapshot) error {
	if snap == nil {
		return nil
	}

	var result *multierror.Error

	restoreOrder := []string{"enabled"}
	for i := len(orderedParams) - 1; i >= 0; i-- {
		if orderedParams[i] != "enabled" {
			restoreOrder = append(restoreOrder, orderedParams[i])
		}
	}

	for _, name := range restoreOrder {
		prior, ok := snap.prior[name]
		if !ok {
			continue
		}
		path := paramsDir + "/" + name
		if err := sysfsio.WriteString(path, prior); err != nil {
			werr := swapderr.ShutdownError("zswap restore "+name, err)
			logger.Warn("%v", werr)
			result = multierror.Append(result, werr)
		}
	}

	if result != nil {
		return result.ErrorOrNil()
	}
	return nil
}

// Status is a point-in-time read of the live zswap parameters and, when
// debugfs is mounted, its pool usage counters.
type Status struct {
	Enabled                bool
	Compressor             string
	Zpool                  string
	MaxPoolPercent         int
	ShrinkerEnabled        bool
	AcceptThresholdPercent int

	// Debug-counter fields are zero when debugfs is unavailable; that
	// is never an error, only a reduced report.
	StoredPages       uint64
	PoolTotalSize     uint64
	WrittenBackPages  uint64
	RejectReclaimFail uint64
	SameFilledPages   uint64
	PoolLimitHit      uint64
}

// ReadStatus reports the live zswap configuration and, best-effort, its
// debugfs counters.
func ReadStatus() (*Status, error) {
	if !Available() {
		return nil, swapderr.EnvironmentError("zswap status", errNotSupported)
	}

	s := &Status{}

	if v, err := sysfsio.ReadString(paramsDir + "/enabled"); err == nil {
		s.Enabled = isTrue(v)
	}
	if v, err := sysfsio.ReadString(paramsDir + "/compressor"); err == nil {
		s.Compressor = v
	}
	if v, err := sysfsio.ReadString(paramsDir + "/zpool"); err == nil {
		s.Zpool = v
	}
	if v, err := sysfsio.ReadInt(paramsDir + "/max_pool_percent"); err == nil {
		s.MaxPoolPercent = int(v)
	}
	if v, err := sysfsio.ReadString(paramsDir + "/shrinker_enabled"); err == nil {
		s.ShrinkerEnabled = isTrue(v)
	}
	if v, err := sysfsio.ReadInt(paramsDir + "/accept_threshold_percent"); err == nil {
		s.AcceptThresholdPercent = int(v)
	}

	if info, err := os.Stat(debugDir); err == nil && info.IsDir() {
		s.StoredPages = readDebugStat("stored_pages")
		s.PoolTotalSize = readDebugStat("pool_total_size")
		s.WrittenBackPages = readDebugStat("written_back_pages")
		s.RejectReclaimFail = readDebugStat("reject_reclaim_fail")
		s.SameFilledPages = readDebugStat("same_filled_pages")
		s.PoolLimitHit = readDebugStat("pool_limit_hit")
	}

	return s, nil
}

func readDebugStat(name string) uint64 {
	v, err := sysfsio.ReadUint(debugDir + "/" + name)
	if err != nil {
		return 0
	}
	return v
}

func isTrue(v string) bool {
	v = strings.TrimSpace(v)
	return v == "Y" || v == "1" || strings.EqualFold(v, "yes")
}

var errNotSupported = errors.New("zswap module not loaded")
