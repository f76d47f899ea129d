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

// Package automode resolves Mode "auto" to a concrete swap strategy by
// inspecting the host: root filesystem type, swap-directory filesystem
// type, and free disk space versus total RAM.
package automode

import (
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/swapd/swapd/internal/log"
	"golang.org/x/sys/unix"
)

var logger = log.NewLogger("automode")

// liveFilesystems are root filesystem types indicating a live/installer
// image, where persistent on-disk swap files make no sense.
var liveFilesystems = map[string]bool{
	"tmpfs":    true,
	"squashfs": true,
	"overlay":  true,
}

// swapfileFilesystems are the filesystem types SwapFC supports.
var swapfileFilesystems = map[string]bool{
	"btrfs": true,
	"ext4":  true,
	"xfs":   true,
}

// Capabilities summarizes the host facts the decision tree needs.
type Capabilities struct {
	RootFSType     string
	SwapDirFSType  string
	FreeDiskBytes  uint64
	TotalRAMBytes  uint64
	IsLiveImage    bool
	CPUCount       int
}

// Detect probes the host for Capabilities. swapDir is the configured
// SwapFC directory (its nearest existing ancestor is used if it does
// not exist yet).
func Detect(swapDir string, totalRAMBytes uint64, cpuCount int) Capabilities {
	root := fsType("/")
	swapFS := fsType(swapDir)
	if swapFS == "" {
		swapFS = root
	}

	free := freeDiskBytes(swapDir)

	return Capabilities{
		RootFSType:    root,
		SwapDirFSType: swapFS,
		FreeDiskBytes: free,
		TotalRAMBytes: totalRAMBytes,
		IsLiveImage:   liveFilesystems[root],
		CPUCount:      cpuCount,
	}
}

// fsType invokes findmnt to determine the filesystem type backing path,
// walking up to the nearest existing ancestor first.
func fsType(path string) string {
	check := nearestExisting(path)

	out, err := exec.Command("findmnt", "-n", "-o", "FSTYPE", "--target", check).Output()
	if err != nil {
		logger.Warn("findmnt failed for %s: %v", check, err)
		return ""
	}
	return strings.ToLower(strings.TrimSpace(string(out)))
}

func nearestExisting(path string) string {
	for p := path; p != ""; {
		if _, err := os.Stat(p); err == nil {
			return p
		}
		parent := filepath.Dir(p)
		if parent == p {
			break
		}
		p = parent
	}
	return "/"
}

func freeDiskBytes(path string) uint64 {
	check := nearestExisting(path)

	var stat unix.Statfs_t
	if err := unix.Statfs(check, &stat); err != nil {
		logger.Warn("statfs failed for %s: %v", check, err)
		return 0
	}
	return stat.Bavail * uint64(stat.Bsize)
}

// SwapMode is the concrete mode "auto" resolves to.
type SwapMode string

const (
	ModeZramOnly   SwapMode = "zram"
	ModeZramSwapFC SwapMode = "zram+swapfc"
	ModeZswapSwapFC SwapMode = "zswap+swapfc"
)

// RecommendedConfig is the set of config keys autoconfig would inject
// for the detected Capabilities, used both to answer the `autoconfig`
// CLI command and to pre-populate any key the user left unset.
type RecommendedConfig struct {
	Mode SwapMode

	ZramAlgorithm    string
	ZramSizePercent  int
	ZramPriority     int

	ZswapCompressor       string
	ZswapMaxPoolPercent   int

	MGLRUMinTTLMs int

	SwapFCChunkSize           string
	SwapFCMaxCount            int
	SwapFCFreeRAMPercent      int
	SwapFCFreeSwapPercent     int
	SwapFCRemoveFreeSwapPercent int
}

// Recommend runs the decision tree from spec.md §4.3 and returns the
// configuration auto mode would apply. preferZswap reflects whether the
// user's configuration explicitly requested zswap+swapfc over
// zram+swapfc for the disk-backed branch.
func Recommend(caps Capabilities, preferZswap bool) RecommendedConfig {
	if caps.IsLiveImage {
		logger.Info("autoconfig: live image root (%s), using zram only", caps.RootFSType)
		return zramOnly()
	}

	if !swapfileFilesystems[caps.SwapDirFSType] {
		logger.Info("autoconfig: swap directory filesystem %q unsupported, using zram only", caps.SwapDirFSType)
		return zramOnly()
	}

	if caps.FreeDiskBytes < caps.TotalRAMBytes {
		logger.Info("autoconfig: insufficient free disk space (%d < %d), using zram only",
			caps.FreeDiskBytes, caps.TotalRAMBytes)
		return zramOnly()
	}

	if preferZswap {
		logger.Info("autoconfig: disk-backed swapfc with zswap")
		rc := diskBacked()
		rc.Mode = ModeZswapSwapFC
		return rc
	}

	logger.Info("autoconfig: disk-backed swapfc with zram")
	rc := diskBacked()
	rc.Mode = ModeZramSwapFC
	return rc
}

func zramOnly() RecommendedConfig {
	return RecommendedConfig{
		Mode:                 ModeZramOnly,
		ZramAlgorithm:        "zstd",
		ZramSizePercent:      150,
		ZramPriority:         32767,
		ZswapCompressor:      "zstd",
		ZswapMaxPoolPercent:  45,
		MGLRUMinTTLMs:        1000,
		SwapFCChunkSize:      "512M",
		SwapFCMaxCount:       0,
		SwapFCFreeRAMPercent: 20,
		SwapFCFreeSwapPercent: 40,
		SwapFCRemoveFreeSwapPercent: 70,
	}
}

func diskBacked() RecommendedConfig {
	rc := zramOnly()
	rc.SwapFCMaxCount = 28
	return rc
}

// Apply passes every recommended key to setIfMissing, which keeps any
// explicit value already present (set_if_missing semantics). The swapfc
// keys are passed only for the modes that use swap files.
func Apply(rc RecommendedConfig, setIfMissing func(key, value string)) {
	setIfMissing("zram_alg", rc.ZramAlgorithm)
	setIfMissing("zram_size", itoaPercent(rc.ZramSizePercent))
	setIfMissing("zram_prio", itoa(rc.ZramPriority))
	setIfMissing("zswap_compressor", rc.ZswapCompressor)
	setIfMissing("zswap_max_pool_percent", itoa(rc.ZswapMaxPoolPercent))
	setIfMissing("mglru_min_ttl_ms", itoa(rc.MGLRUMinTTLMs))

	if rc.Mode == ModeZramSwapFC || rc.Mode == ModeZswapSwapFC {
		setIfMissing("swapfc_chunk_size", rc.SwapFCChunkSize)
		setIfMissing("swapfc_max_count", itoa(rc.SwapFCMaxCount))
		setIfMissing("swapfc_free_ram_perc", itoa(rc.SwapFCFreeRAMPercent))
		setIfMissing("swapfc_free_swap_perc", itoa(rc.SwapFCFreeSwapPercent))
		setIfMissing("swapfc_remove_free_swap_perc", itoa(rc.SwapFCRemoveFreeSwapPercent))
	}
}

func itoa(n int) string        { return strconv.Itoa(n) }
func itoaPercent(n int) string { return strconv.Itoa(n) + "%" }
