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

// Package zram operates a dynamically sized pool of zram compressed-RAM
// swap devices: creation via the kernel's hot_add interface, mkswap and
// swapon, a monitor loop that expands the pool under pressure and
// contracts it when idle, and an ordered teardown that never leaves a
// device half-configured.
package zram

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/swapd/swapd/internal/config"
	"github.com/swapd/swapd/internal/log"
	"github.com/swapd/swapd/internal/meminfo"
	"github.com/swapd/swapd/internal/runtimedir"
	"github.com/swapd/swapd/internal/swapderr"
	"github.com/swapd/swapd/internal/sysfsio"
)

const (
	moduleDir = "/sys/module/zram"
	hotAdd    = "/sys/class/zram-control/hot_add"
	hotRemove = "/sys/class/zram-control/hot_remove"
	sysBlock  = "/sys/block"
)

var logger = log.NewLogger("zram")

// skipLogger carries the same messages as logger but rate-limited, for the
// handful of skip-reason lines a tick loop would otherwise repeat once per
// poll interval for as long as the condition persists.
var skipLogger = log.RateLimit(logger, log.Interval(time.Minute))

// Available reports whether the zram kernel module is loaded.
func Available() bool {
	info, err := os.Stat(moduleDir)
	return err == nil && info.IsDir()
}

// DeviceState is a device's position in the created→active→idle→removing
// lifecycle.
type DeviceState int

const (
	StateCreated DeviceState = iota
	StateActive
	StateIdle
	StateRemoving
)

func (s DeviceState) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateActive:
		return "active"
	case StateIdle:
		return "idle"
	case StateRemoving:
		return "removing"
	default:
		return "unknown"
	}
}

// Device is one zram block device the pool owns.
type Device struct {
	Index     int
	Path      string // /dev/zram<N>
	SysfsPath string // /sys/block/zram<N>
	DiskSize  uint64
	Algorithm string
	Priority  int
	Writeback string
	State     DeviceState
	IdleSince time.Time
	// UtilPercent is this device's own OrigDataSize/DiskSize, sampled on
	// the last monitor tick. It gates the per-device idle transition and
	// breaks ties when more than one idle device is eligible for removal.
	UtilPercent int
}

// Stats are the per-device mm_stat counters, read fresh on every sample.
type Stats struct {
	OrigDataSize  uint64
	ComprDataSize uint64
	MemUsedTotal  uint64
	SamePages     uint64
	PagesCompacted uint64
}

// CompressionRatio is OrigDataSize/ComprDataSize, 0 when nothing is stored.
func (s Stats) CompressionRatio() float64 {
	if s.ComprDataSize == 0 {
		return 0
	}
	return float64(s.OrigDataSize) / float64(s.ComprDataSize)
}

// PoolStats aggregates Stats across every active device.
type PoolStats struct {
	DeviceCount       int
	TotalDiskSize     uint64
	TotalOrigData     uint64
	TotalComprData    uint64
	TotalMemUsed      uint64
	CompressionRatio  float64
	UtilizationPercent int
}

// PoolConfig is the resolved tuning for a Pool, grounded on the original
// daemon's zram_* configuration keys.
type PoolConfig struct {
	SizePercent      int // zram_size, e.g. 150 for "150%"
	FixedDeviceSize  uint64 // zram_device_size, 0 = derive from SizePercent
	Algorithm        string
	Priority         int
	MinCount         int
	MaxCount         int
	ExpandThreshold  int // pool utilization % that triggers expansion
	ContractThreshold int
	ExpandMinRatio   float64
	ExpandCooldown   time.Duration
	ContractStability time.Duration
	MinFreeRAMPercent int
	CheckInterval     time.Duration
}

// ConfigFromResolver builds a PoolConfig from the resolved configuration,
// the same way every other controller derives its tuning.
func ConfigFromResolver(cfg *config.Resolver, ramBytes uint64, cpuCount int) (PoolConfig, error) {
	sizeStr := cfg.GetStringDefault("zram_size", "150%")
	sizePercent := 150
	if strings.HasSuffix(sizeStr, "%") {
		if n, err := strconv.Atoi(strings.TrimSuffix(sizeStr, "%")); err == nil {
			sizePercent = n
		}
	}

	var fixedSize uint64
	if !strings.HasSuffix(sizeStr, "%") {
		n, err := config.ParseSize(sizeStr, ramBytes)
		if err != nil {
			return PoolConfig{}, swapderr.ConfigError("zram_size", err)
		}
		fixedSize = n
	}

	maxCount := int(cfg.GetIntDefault("zram_max_count", 8))
	if maxCount < 1 {
		maxCount = 1
	}
	if maxCount > 32 {
		maxCount = 32
	}
	minCount := int(cfg.GetIntDefault("zram_min_count", 1))
	if minCount < 1 {
		minCount = 1
	}
	if minCount > maxCount {
		minCount = maxCount
	}

	return PoolConfig{
		SizePercent:       sizePercent,
		FixedDeviceSize:   fixedSize,
		Algorithm:         cfg.GetStringDefault("zram_alg", "zstd"),
		Priority:          int(cfg.GetIntDefault("zram_prio", 32767)),
		MinCount:          minCount,
		MaxCount:          maxCount,
		ExpandThreshold:   int(cfg.GetIntDefault("zram_expand_threshold", 85)),
		ContractThreshold: int(cfg.GetIntDefault("zram_contract_threshold", 20)),
		ExpandMinRatio:    2.0,
		ExpandCooldown:    time.Duration(cfg.GetIntDefault("zram_expand_cooldown", 10)) * time.Second,
		ContractStability: time.Duration(cfg.GetIntDefault("zram_contract_stability", 120)) * time.Second,
		MinFreeRAMPercent: int(cfg.GetIntDefault("zram_min_free_ram", 15)),
		CheckInterval:     time.Duration(cfg.GetIntDefault("zram_check_interval", 5)) * time.Second,
	}, nil
}

// Pool manages a set of zram devices the daemon owns, expanding and
// contracting it against live memory pressure.
type Pool struct {
	mu      sync.Mutex
	cfg     PoolConfig
	ramSize uint64
	cpus    int
	dir     *runtimedir.Dir

	devices []*Device

	lastExpansion   time.Time
	lastContraction time.Time
}

// New builds a Pool. It does not touch the kernel; call Start to create
// or adopt devices.
func New(cfg PoolConfig, ramSize uint64, cpuCount int, dir *runtimedir.Dir) *Pool {
	return &Pool{cfg: cfg, ramSize: ramSize, cpus: cpuCount, dir: dir}
}

// Start adopts any matching devices left by a previous instance, then
// creates new devices up to the initial pool size: min(NCPU, max_count)
// clamped to at least min_count.
func (p *Pool) Start() error {
	if !Available() {
		return swapderr.EnvironmentError("zram start", errors.New("zram module not loaded"))
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.adoptExisting()

	initial := p.cpus
	if initial > p.cfg.MaxCount {
		initial = p.cfg.MaxCount
	}
	if initial < p.cfg.MinCount {
		initial = p.cfg.MinCount
	}

	perDevice := p.perDeviceSize(initial)

	for len(p.devices) < initial {
		if err := p.createDevice(perDevice); err != nil {
			logger.Warn("initial device creation stopped at %d/%d: %v", len(p.devices), initial, err)
			break
		}
	}

	if len(p.devices) == 0 {
		return swapderr.ResourceError("zram start", errors.New("failed to create any zram device"))
	}

	p.saveState()
	return nil
}

func (p *Pool) perDeviceSize(count int) uint64 {
	if p.cfg.FixedDeviceSize > 0 {
		return p.cfg.FixedDeviceSize
	}
	total := p.ramSize * uint64(p.cfg.SizePercent) / 100
	if count <= 0 {
		count = 1
	}
	return total / uint64(count)
}

// adoptExisting adopts existing /sys/block/zram* devices left by a prior
// instance: a device is adopted only when it is listed in the persisted
// runtime state, is swapped on according to /proc/swaps, has a non-zero
// disksize and uses the configured algorithm. Its disksize is not
// compared with the configured device size.
func (p *Pool) adoptExisting() {
	persisted := p.loadPersistedPaths()
	if len(persisted) == 0 {
		return
	}

	entries, err := os.ReadDir(sysBlock)
	if err != nil {
		return
	}

	active := activeSwapPaths()

	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, "zram") {
			continue
		}
		idx, err := strconv.Atoi(strings.TrimPrefix(name, "zram"))
		if err != nil {
			continue
		}
		devPath := "/dev/" + name
		sysfsPath := filepath.Join(sysBlock, name)

		if !persisted[devPath] {
			continue
		}
		if !active[devPath] {
			continue
		}

		diskSize, err := sysfsio.ReadUint(filepath.Join(sysfsPath, "disksize"))
		if err != nil || diskSize == 0 {
			continue
		}
		alg, _ := sysfsio.ReadString(filepath.Join(sysfsPath, "comp_algorithm"))
		if sel, ok := sysfsio.SelectedBracketed(alg); ok {
			alg = sel
		}
		if alg != p.cfg.Algorithm {
			logger.Warn("zram%d algorithm %q does not match configured %q, leaving unadopted", idx, alg, p.cfg.Algorithm)
			continue
		}

		p.devices = append(p.devices, &Device{
			Index:     idx,
			Path:      devPath,
			SysfsPath: sysfsPath,
			DiskSize:  diskSize,
			Algorithm: alg,
			Priority:  p.cfg.Priority,
			State:     StateActive,
		})
		logger.Info("adopted zram%d (disksize=%dMiB)", idx, diskSize/(1024*1024))
	}
}

func (p *Pool) loadPersistedPaths() map[string]bool {
	result := map[string]bool{}
	if p.dir == nil {
		return result
	}
	content, err := p.dir.ReadState("zram.devices")
	if err != nil || content == "" {
		return result
	}
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			result[line] = true
		}
	}
	return result
}

func activeSwapPaths() map[string]bool {
	result := map[string]bool{}
	content, err := os.ReadFile("/proc/swaps")
	if err != nil {
		return result
	}
	lines := strings.Split(string(content), "\n")
	for _, line := range lines[1:] {
		fields := strings.Fields(line)
		if len(fields) > 0 {
			result[fields[0]] = true
		}
	}
	return result
}

// createDevice runs the full device creation sequence from spec.md §4.5:
// obtain a free index via hot_add, write algorithm/disksize, mkswap,
// swapon. A partial failure triggers immediate best-effort teardown of
// that device.
func (p *Pool) createDevice(diskSize uint64) error {
	if len(p.devices) >= p.cfg.MaxCount {
		return errors.New("pool at max_count")
	}
	if !sysfsio.Exists(hotAdd) {
		return swapderr.EnvironmentError("zram hot_add", errors.New("kernel does not support zram hot_add"))
	}

	raw, err := sysfsio.ReadString(hotAdd)
	if err != nil {
		return swapderr.ResourceError("zram hot_add", err)
	}
	idx, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return swapderr.ResourceError("zram hot_add", errors.Errorf("unexpected hot_add response %q", raw))
	}

	devPath := "/dev/zram" + strconv.Itoa(idx)
	sysfsPath := filepath.Join(sysBlock, "zram"+strconv.Itoa(idx))

	dev := &Device{
		Index:     idx,
		Path:      devPath,
		SysfsPath: sysfsPath,
		DiskSize:  diskSize,
		Algorithm: p.cfg.Algorithm,
		Priority:  p.cfg.Priority,
		State:     StateCreated,
	}

	if err := sysfsio.WriteString(filepath.Join(sysfsPath, "comp_algorithm"), p.cfg.Algorithm); err != nil {
		p.teardownFailedDevice(dev)
		return swapderr.ResourceError("zram comp_algorithm", err)
	}

	if err := sysfsio.WriteInt(filepath.Join(sysfsPath, "disksize"), int64(diskSize)); err != nil {
		p.teardownFailedDevice(dev)
		return swapderr.ResourceError("zram disksize", err)
	}

	if out, err := exec.Command("mkswap", devPath).CombinedOutput(); err != nil {
		logger.Warn("mkswap %s failed: %s", devPath, strings.TrimSpace(string(out)))
		p.teardownFailedDevice(dev)
		return swapderr.ResourceError("mkswap", err)
	}

	if err := swapon(devPath, p.cfg.Priority); err != nil {
		p.teardownFailedDevice(dev)
		return swapderr.ResourceError("swapon", err)
	}

	dev.State = StateActive
	p.devices = append(p.devices, dev)
	logger.Info("zram%d created (disksize=%dMiB) — pool now has %d device(s)", idx, diskSize/(1024*1024), len(p.devices))
	return nil
}

func (p *Pool) teardownFailedDevice(dev *Device) {
	exec.Command("swapoff", dev.Path).Run()
	sysfsio.WriteString(filepath.Join(dev.SysfsPath, "reset"), "1")
	if sysfsio.Exists(hotRemove) {
		sysfsio.WriteString(hotRemove, strconv.Itoa(dev.Index))
	}
}

func swapon(path string, priority int) error {
	args := []string{"-p", strconv.Itoa(priority), path}
	out, err := exec.Command("swapon", args...).CombinedOutput()
	if err != nil {
		return errors.Errorf("swapon %s: %v: %s", path, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// DeviceStats reads a single device's mm_stat counters.
func DeviceStats(sysfsPath string) (Stats, error) {
	raw, err := sysfsio.ReadString(filepath.Join(sysfsPath, "mm_stat"))
	if err != nil {
		return Stats{}, err
	}
	fields := strings.Fields(raw)
	parse := func(i int) uint64 {
		if i >= len(fields) {
			return 0
		}
		n, _ := strconv.ParseUint(fields[i], 10, 64)
		return n
	}
	return Stats{
		OrigDataSize:   parse(0),
		ComprDataSize:  parse(1),
		MemUsedTotal:   parse(2),
		SamePages:      parse(5),
		PagesCompacted: parse(6),
	}, nil
}

// PoolStats aggregates statistics across every active device.
func (p *Pool) PoolStats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.poolStatsLocked()
}

func (p *Pool) poolStatsLocked() PoolStats {
	var out PoolStats
	for _, dev := range p.devices {
		if dev.State != StateActive && dev.State != StateIdle {
			continue
		}
		st, err := DeviceStats(dev.SysfsPath)
		if err != nil {
			continue
		}
		out.DeviceCount++
		out.TotalDiskSize += dev.DiskSize
		out.TotalOrigData += st.OrigDataSize
		out.TotalComprData += st.ComprDataSize
		out.TotalMemUsed += st.MemUsedTotal
	}
	if out.TotalComprData > 0 {
		out.CompressionRatio = float64(out.TotalOrigData) / float64(out.TotalComprData)
	}
	if out.TotalDiskSize > 0 {
		out.UtilizationPercent = int(float64(out.TotalOrigData) * 100 / float64(out.TotalDiskSize))
	}
	return out
}

// deviceStateSummaryLocked formats every device's state/utilization for a
// single debug line. Building it walks the whole pool and is only worth
// the cost when debug logging is actually enabled, hence the log.Delay
// wrapping at the call site.
func (p *Pool) deviceStateSummaryLocked() string {
	parts := make([]string, 0, len(p.devices))
	for _, dev := range p.devices {
		parts = append(parts, fmt.Sprintf("zram%d=%s(%d%%)", dev.Index, dev.State, dev.UtilPercent))
	}
	return strings.Join(parts, " ")
}

// Run executes the monitor loop until stop is closed, expanding and
// contracting the pool against live pressure. It is meant to run on its
// own goroutine, one per Pool.
func (p *Pool) Run(stop <-chan struct{}) {
	logger.Info("monitor started (max_count=%d, expand_threshold=%d%%, contract_threshold=%d%%)",
		p.cfg.MaxCount, p.cfg.ExpandThreshold, p.cfg.ContractThreshold)

	ticker := time.NewTicker(p.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			p.tick()
		}
	}
}

func (p *Pool) tick() {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := p.poolStatsLocked()
	if stats.DeviceCount == 0 {
		return
	}

	logger.Debug("pool state: %s", log.Delay(func() string { return p.deviceStateSummaryLocked() }))

	p.updateIdleStateLocked()

	if p.shouldExpand(stats) {
		if err := p.expand(stats); err != nil {
			logger.Warn("expansion failed: %v", err)
		}
	}

	if p.shouldContract() {
		if err := p.contractOne(); err != nil {
			logger.Warn("contraction failed: %v", err)
		}
	}
}

// deviceUtilizationLocked samples a device's own OrigDataSize against
// its configured disksize. A device that cannot be read, or has no
// configured size, is treated as unloaded (0%).
func (p *Pool) deviceUtilizationLocked(dev *Device) int {
	if dev.DiskSize == 0 {
		return 0
	}
	st, err := DeviceStats(dev.SysfsPath)
	if err != nil {
		return 0
	}
	return int(float64(st.OrigDataSize) * 100 / float64(dev.DiskSize))
}

// updateIdleStateLocked transitions each live device between active and
// idle based on its own utilization, per spec.md's per-device idle
// tracking: active → idle when a device's own utilization drops to or
// below ContractThreshold, idle → active the instant it recovers. This
// replaces a pool-wide aggregate timer with per-device state, since two
// devices can trade load back and forth while the pool average stays
// flat.
func (p *Pool) updateIdleStateLocked() {
	for _, dev := range p.devices {
		if dev.State != StateActive && dev.State != StateIdle {
			continue
		}
		dev.UtilPercent = p.deviceUtilizationLocked(dev)

		switch {
		case dev.State == StateActive && dev.UtilPercent <= p.cfg.ContractThreshold:
			dev.State = StateIdle
			dev.IdleSince = time.Now()
		case dev.State == StateIdle && dev.UtilPercent > p.cfg.ContractThreshold:
			dev.State = StateActive
			dev.IdleSince = time.Time{}
		}
	}
}

// shouldExpand mirrors the layered gating from spec.md §4.5: pool-size
// ceiling, no device currently removing, utilization above threshold, a
// compression-ratio floor, an adaptive free-RAM guard that relaxes as
// observed compression improves, and a cooldown between expansions.
func (p *Pool) shouldExpand(stats PoolStats) bool {
	if len(p.devices) >= p.cfg.MaxCount {
		return false
	}
	for _, dev := range p.devices {
		if dev.State == StateRemoving {
			return false
		}
	}
	if stats.UtilizationPercent < p.cfg.ExpandThreshold {
		return false
	}
	if stats.CompressionRatio < p.cfg.ExpandMinRatio {
		skipLogger.Info("expansion skipped: ratio %.2fx < min %.1fx", stats.CompressionRatio, p.cfg.ExpandMinRatio)
		return false
	}

	sampler := meminfo.NewSampler()
	if snap, err := sampler.Snapshot(); err == nil {
		freeRAM := snap.FreeRAMPercent()
		adaptiveMin := adaptiveFreeRAMFloor(stats.CompressionRatio, p.cfg.MinFreeRAMPercent)
		if freeRAM < float64(adaptiveMin) {
			skipLogger.Info("expansion skipped: free RAM %.1f%% < min %d%% (ratio %.1fx)", freeRAM, adaptiveMin, stats.CompressionRatio)
			return false
		}
	}

	if !p.lastExpansion.IsZero() && time.Since(p.lastExpansion) < p.cfg.ExpandCooldown {
		return false
	}
	return true
}

// adaptiveFreeRAMFloor relaxes the required free-RAM percentage as the
// compression ratio improves, replacing base with a fixed floor from 8%
// at 2x down to 2% at ratio >= 10x, since the pages then compress almost
// for free. Below 2x the base applies.
func adaptiveFreeRAMFloor(ratio float64, base int) int {
	switch {
	case ratio >= 10:
		return 2
	case ratio >= 5:
		return 3
	case ratio >= 3:
		return 5
	case ratio >= 2:
		return 8
	default:
		return base
	}
}

func (p *Pool) expand(stats PoolStats) error {
	size := p.perDeviceSize(len(p.devices) + 1)
	logger.Info("expanding: adding device (disksize=%dMiB, util=%d%%, ratio=%.2fx)", size/(1024*1024), stats.UtilizationPercent, stats.CompressionRatio)
	if err := p.createDevice(size); err != nil {
		return err
	}
	p.lastExpansion = time.Now()
	p.saveState()
	return nil
}

// shouldContract reports whether the pool has a device eligible for
// removal: the pool is above MinCount, the inter-contraction cooldown
// has elapsed, and at least one device has been idle longer than
// ContractStability.
func (p *Pool) shouldContract() bool {
	if len(p.devices) <= p.cfg.MinCount {
		return false
	}
	if !p.lastContraction.IsZero() && time.Since(p.lastContraction) < 60*time.Second {
		return false
	}
	return p.leastLoadedIdleLocked() != nil
}

// leastLoadedIdleLocked returns the least-loaded device that has been
// idle at least ContractStability, or nil if none currently qualifies.
func (p *Pool) leastLoadedIdleLocked() *Device {
	var best *Device
	for _, dev := range p.devices {
		if dev.State != StateIdle || dev.IdleSince.IsZero() {
			continue
		}
		if time.Since(dev.IdleSince) < p.cfg.ContractStability {
			continue
		}
		if best == nil || dev.UtilPercent < best.UtilPercent {
			best = dev
		}
	}
	return best
}

// contractOne removes the least-loaded device that has been idle past
// ContractStability: swapoff, wait for stored pages to drop with a
// bounded retry (forcing on timeout), zramctl --reset, then hot_remove.
func (p *Pool) contractOne() error {
	dev := p.leastLoadedIdleLocked()
	if dev == nil {
		return nil
	}
	dev.State = StateRemoving
	logger.Info("contracting: removing zram%d (util=%d%%, idle since %s)", dev.Index, dev.UtilPercent, dev.IdleSince.Format(time.RFC3339))

	if err := p.removeDevice(dev); err != nil {
		dev.State = StateIdle
		return err
	}

	idx := -1
	for i, d := range p.devices {
		if d == dev {
			idx = i
			break
		}
	}
	if idx >= 0 {
		p.devices = append(p.devices[:idx:idx], p.devices[idx+1:]...)
	}
	p.lastContraction = time.Now()
	logger.Info("zram%d removed — pool now has %d device(s)", dev.Index, len(p.devices))
	p.saveState()
	return nil
}

func (p *Pool) removeDevice(dev *Device) error {
	if err := exec.Command("swapoff", dev.Path).Run(); err != nil {
		return swapderr.ResourceError("swapoff "+dev.Path, err)
	}

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		st, err := DeviceStats(dev.SysfsPath)
		if err != nil || st.OrigDataSize == 0 {
			break
		}
		time.Sleep(200 * time.Millisecond)
	}

	exec.Command("zramctl", "--reset", dev.Path).Run()
	if sysfsio.Exists(hotRemove) {
		sysfsio.WriteString(hotRemove, strconv.Itoa(dev.Index))
	}
	return nil
}

func (p *Pool) saveState() {
	if p.dir == nil {
		return
	}
	var lines []string
	for _, dev := range p.devices {
		if dev.State == StateActive {
			lines = append(lines, dev.Path)
		}
	}
	if err := p.dir.WriteState("zram.devices", strings.Join(lines, "\n")); err != nil {
		logger.Warn("failed to persist device list: %v", err)
	}
}

// Stop removes every device the pool still owns, in reverse creation
// order, best-effort: a failure on one device does not stop the rest.
func (p *Pool) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var lastErr error
	for i := len(p.devices) - 1; i >= 0; i-- {
		dev := p.devices[i]
		if err := p.removeDevice(dev); err != nil {
			logger.Warn("failed to remove zram%d at shutdown: %v", dev.Index, err)
			lastErr = err
		}
	}
	p.devices = nil
	if p.dir != nil {
		p.dir.RemoveState("zram.devices")
	}
	return lastErr
}

// Devices returns a snapshot of the pool's current devices, for `status`.
func (p *Pool) Devices() []Device {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Device, len(p.devices))
	for i, d := range p.devices {
		out[i] = *d
	}
	return out
}
