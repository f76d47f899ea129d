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

// Package swapfc operates the on-disk swap-file pool: a btrfs (or ext4/
// xfs) directory holding a growable, shrinkable set of swap files,
// created and removed in response to live memory and swap pressure.
package swapfc

import (
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
	"golang.org/x/sys/unix"
)

var logger = log.NewLogger("swapfc")

var supportedFilesystems = map[string]bool{"btrfs": true, "ext4": true, "xfs": true}

// FileState is a swap file's position in its lifecycle.
type FileState int

const (
	StateCreating FileState = iota
	StateActive
	StateRemoving
)

// File is one on-disk swap file the controller owns.
type File struct {
	Index    int
	Path     string
	Size     uint64
	Priority int
	State    FileState
	LoopDev  string // set only in sparse+loop mode
}

// Config is the resolved SwapFC tuning, grounded on the original
// daemon's swapfc_*/swapfile_* configuration keys.
type Config struct {
	Dir                  string
	ChunkSize            uint64
	MaxCount             int
	MinCount             int
	CreateRAMThreshold   int // free-RAM% below which creation is allowed
	CreateSwapThreshold  int // free-swap% below which a new file is created
	EmergencyThreshold   int // free-RAM% that bypasses the creation cooldown
	RemoveThreshold      int // free-swap% above which removal is considered
	SafeHeadroomPercent  int
	Priority             int
	Frequency            time.Duration
	ForceUseLoop         bool
	DirectIO             bool
	NoCOW                bool
}

// ConfigFromResolver builds a Config the way every other controller
// derives its tuning, from the resolved configuration.
func ConfigFromResolver(cfg *config.Resolver) (Config, error) {
	path := strings.TrimSuffix(cfg.GetStringDefault("swapfc_path", "/swapfc/swapfile"), "/")

	chunk, err := cfg.GetSizeDefault("swapfc_chunk_size", "512M")
	if err != nil {
		return Config{}, swapderr.ConfigError("swapfc_chunk_size", err)
	}

	maxCount := int(cfg.GetIntDefault("swapfc_max_count", 28))
	if maxCount < 1 {
		maxCount = 1
	}
	if maxCount > 28 {
		maxCount = 28
	}
	minCount := int(cfg.GetIntDefault("swapfc_min_count", 1))
	if minCount < 1 {
		minCount = 1
	}
	if minCount > maxCount {
		minCount = maxCount
	}

	freq := time.Duration(cfg.GetIntDefault("swapfc_frequency", 2)) * time.Second
	if freq < time.Second {
		freq = time.Second
	}

	return Config{
		Dir:                 path,
		ChunkSize:           chunk,
		MaxCount:            maxCount,
		MinCount:            minCount,
		CreateRAMThreshold:  int(cfg.GetIntDefault("swapfc_free_ram_perc", 20)),
		CreateSwapThreshold: int(cfg.GetIntDefault("swapfc_free_swap_perc", 40)),
		EmergencyThreshold:  int(cfg.GetIntDefault("swapfc_emergency_threshold", 10)),
		RemoveThreshold:     int(cfg.GetIntDefault("swapfc_remove_free_swap_perc", 70)),
		SafeHeadroomPercent: int(cfg.GetIntDefault("swapfc_safe_headroom", 40)),
		Priority:            int(cfg.GetIntDefault("swapfc_priority", -1)),
		Frequency:           freq,
		ForceUseLoop:        cfg.GetBoolDefault("swapfc_force_use_loop", false),
		DirectIO:            cfg.GetBoolDefault("swapfc_directio", true),
		NoCOW:               cfg.GetBoolDefault("swapfc_nocow", true),
	}, nil
}

// Controller owns the swap-file pool's lifecycle.
type Controller struct {
	mu  sync.Mutex
	cfg Config
	dir *runtimedir.Dir

	isBtrfs      bool
	files        []*File
	lastCreation time.Time
	cooldown     time.Duration
	backoff      time.Duration
	diskFull     bool
}

// New builds a Controller. Call Start to run the precondition check and
// create the initial files.
func New(cfg Config, dir *runtimedir.Dir) *Controller {
	return &Controller{cfg: cfg, dir: dir, cooldown: 15 * time.Second, backoff: time.Second}
}

// Precondition checks the target filesystem is supported and, for
// btrfs, that the directory is a subvolume with copy-on-write disabled.
// A failure here is never fatal: the caller degrades to zram-only.
func (c *Controller) Precondition() error {
	if err := os.MkdirAll(filepath.Dir(c.cfg.Dir), 0755); err != nil {
		return swapderr.EnvironmentError("swapfc mkdir parent", err)
	}

	fstype := fsType(c.cfg.Dir)
	if !supportedFilesystems[fstype] {
		return swapderr.EnvironmentError("swapfc precondition", errors.Errorf("unsupported filesystem %q (need btrfs, ext4, or xfs)", fstype))
	}
	c.isBtrfs = fstype == "btrfs"

	if c.isBtrfs {
		if !isBtrfsSubvolume(c.cfg.Dir) {
			if _, err := os.Stat(c.cfg.Dir); err == nil {
				os.RemoveAll(c.cfg.Dir)
			}
			if out, err := exec.Command("btrfs", "subvolume", "create", c.cfg.Dir).CombinedOutput(); err != nil {
				logger.Warn("btrfs subvolume create failed (%s), falling back to plain directory", strings.TrimSpace(string(out)))
				if err := os.MkdirAll(c.cfg.Dir, 0755); err != nil {
					return swapderr.EnvironmentError("swapfc mkdir", err)
				}
			}
		}
		if c.cfg.NoCOW {
			if err := exec.Command("chattr", "+C", c.cfg.Dir).Run(); err != nil {
				return swapderr.EnvironmentError("swapfc chattr +C", err)
			}
		}
		return nil
	}

	return os.MkdirAll(c.cfg.Dir, 0755)
}

func fsType(path string) string {
	out, err := exec.Command("findmnt", "-n", "-o", "FSTYPE", "--target", nearestExisting(path)).Output()
	if err != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(string(out)))
}

func isBtrfsSubvolume(path string) bool {
	if _, err := os.Stat(path); err != nil {
		return false
	}
	return exec.Command("btrfs", "subvolume", "show", path).Run() == nil
}

// Start adopts existing swap files under Dir, then creates files up to
// min_count.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.adoptExisting()

	for len(c.activeFilesLocked()) < c.cfg.MinCount {
		if err := c.createFileLocked(c.cfg.ChunkSize); err != nil {
			logger.Warn("initial swap file creation stopped at %d/%d: %v", len(c.files), c.cfg.MinCount, err)
			break
		}
	}

	if len(c.activeFilesLocked()) == 0 {
		return swapderr.ResourceError("swapfc start", errors.New("failed to create any swap file"))
	}
	c.saveState()
	return nil
}

func (c *Controller) activeFilesLocked() []*File {
	var out []*File
	for _, f := range c.files {
		if f.State == StateActive {
			out = append(out, f)
		}
	}
	return out
}

// adoptExisting adopts every swap file listed in /proc/swaps whose path
// lies under Dir and whose base name is a number, so a restart keeps
// managing files a previous instance created. The persisted runtime
// state is not consulted.
func (c *Controller) adoptExisting() {
	active := activeSwapInfo()
	maxIdx := 0
	for _, info := range active {
		if !strings.HasPrefix(info.path, c.cfg.Dir) {
			continue
		}
		idx, err := strconv.Atoi(filepath.Base(info.path))
		if err != nil {
			continue
		}
		c.files = append(c.files, &File{Index: idx, Path: info.path, Size: info.size, Priority: info.priority, State: StateActive})
		if idx > maxIdx {
			maxIdx = idx
		}
	}
	if maxIdx > 0 {
		logger.Info("adopted %d existing swap file(s), max index %d", len(c.files), maxIdx)
	}
}

type swapInfo struct {
	path     string
	size     uint64
	used     uint64
	priority int
}

func activeSwapInfo() []swapInfo {
	content, err := os.ReadFile("/proc/swaps")
	if err != nil {
		return nil
	}
	var out []swapInfo
	lines := strings.Split(string(content), "\n")
	for _, line := range lines[1:] {
		fields := strings.Fields(line)
		if len(fields) < 5 {
			continue
		}
		sizeKB, _ := strconv.ParseUint(fields[2], 10, 64)
		usedKB, _ := strconv.ParseUint(fields[3], 10, 64)
		prio, _ := strconv.Atoi(fields[4])
		out = append(out, swapInfo{path: fields[0], size: sizeKB * 1024, used: usedKB * 1024, priority: prio})
	}
	return out
}

func (c *Controller) nextIndex() int {
	max := 0
	for _, f := range c.files {
		if f.Index > max {
			max = f.Index
		}
	}
	return max + 1
}

// createFileLocked runs the file creation sequence: fallocate/truncate,
// optional loop+mkswap for sparse mode, then swapon with derived
// priority and discard.
func (c *Controller) createFileLocked(size uint64) error {
	if !c.hasEnoughSpace(size) {
		if !c.diskFull {
			logger.Warn("ENOSPC (need %dMiB) — pausing expansion", size/(1024*1024))
			c.diskFull = true
		}
		return swapderr.ResourceError("swapfc create", errors.New("insufficient free disk space"))
	}

	idx := c.nextIndex()
	path := filepath.Join(c.cfg.Dir, strconv.Itoa(idx))
	os.Remove(path)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return swapderr.ResourceError("swapfc open", err)
	}
	f.Close()

	if c.isBtrfs && c.cfg.NoCOW {
		exec.Command("chattr", "+C", path).Run()
	}

	var swapTarget, loopDev string
	if c.cfg.ForceUseLoop {
		if err := exec.Command("truncate", "-s", strconv.FormatUint(size, 10), path).Run(); err != nil {
			os.Remove(path)
			return swapderr.ResourceError("truncate", err)
		}
		args := []string{"-f", "--show"}
		if c.cfg.DirectIO {
			args = append(args, "--direct-io=on")
		}
		args = append(args, path)
		out, err := exec.Command("losetup", args...).Output()
		if err != nil {
			os.Remove(path)
			return swapderr.ResourceError("losetup", err)
		}
		loopDev = strings.TrimSpace(string(out))
		swapTarget = loopDev
	} else {
		if err := fallocate(path, size); err != nil {
			os.Remove(path)
			return swapderr.ResourceError("fallocate", err)
		}
		swapTarget = path
	}

	if out, err := exec.Command("mkswap", swapTarget).CombinedOutput(); err != nil {
		if loopDev != "" {
			exec.Command("losetup", "-d", loopDev).Run()
		}
		os.Remove(path)
		return swapderr.ResourceError("mkswap", errors.Wrap(err, strings.TrimSpace(string(out))))
	}

	priority := c.derivePriority(idx)
	if err := swaponDiscard(swapTarget, priority); err != nil {
		if loopDev != "" {
			exec.Command("losetup", "-d", loopDev).Run()
		}
		os.Remove(path)
		return swapderr.ResourceError("swapon", err)
	}

	c.files = append(c.files, &File{Index: idx, Path: path, Size: size, Priority: priority, State: StateActive, LoopDev: loopDev})
	logger.Info("created swap file #%d (%dMiB)", idx, size/(1024*1024))
	return nil
}

// derivePriority keeps every swap file's priority strictly below any
// zram device's priority, per spec.md's cross-mode invariant, and
// strictly decreasing by creation order within the pool itself (idx 1
// gets the highest priority, each later file one less) so the kernel
// prefers the first-created file and removal naturally drains from the
// most recently created one first.
func (c *Controller) derivePriority(idx int) int {
	return c.cfg.Priority - (idx - 1)
}

func fallocate(path string, size uint64) error {
	return exec.Command("fallocate", "-l", strconv.FormatUint(size, 10), path).Run()
}

func swaponDiscard(path string, priority int) error {
	out, err := exec.Command("swapon", "--discard", "-p", strconv.Itoa(priority), path).CombinedOutput()
	if err != nil {
		return errors.Errorf("swapon %s: %v: %s", path, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (c *Controller) hasEnoughSpace(required uint64) bool {
	var stat unix.Statfs_t
	if err := unix.Statfs(nearestExisting(c.cfg.Dir), &stat); err != nil {
		return false
	}
	free := stat.Bavail * uint64(stat.Bsize)
	return free >= required*2
}

func nearestExisting(path string) string {
	p := path
	for {
		if _, err := os.Stat(p); err == nil {
			return p
		}
		parent := filepath.Dir(p)
		if parent == p {
			return "/"
		}
		p = parent
	}
}

// Run executes the monitor loop until stop is closed.
func (c *Controller) Run(stop <-chan struct{}) {
	logger.Info("monitor started (chunk=%dMiB, max_count=%d, min_count=%d)", c.cfg.ChunkSize/(1024*1024), c.cfg.MaxCount, c.cfg.MinCount)

	ticker := time.NewTicker(c.cfg.Frequency)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.tick()
		}
	}
}

// shouldCreate decides whether a new swap file is warranted: either
// urgently, bypassing the creation cooldown, when free RAM has dropped
// below EmergencyThreshold; or normally, subject to cooldown, when
// either free RAM is below CreateRAMThreshold or free swap is below
// CreateSwapThreshold — spec.md's explicit OR of the two signals.
func shouldCreate(cfg Config, freeRAM, freeSwap float64, cooldownOK bool) (emergency, normal bool) {
	emergency = freeRAM < float64(cfg.EmergencyThreshold)
	normal = (freeRAM < float64(cfg.CreateRAMThreshold) || freeSwap < float64(cfg.CreateSwapThreshold)) && cooldownOK
	return emergency, normal
}

func (c *Controller) tick() {
	c.mu.Lock()
	defer c.mu.Unlock()

	sampler := meminfo.NewSampler()
	snap, err := sampler.Snapshot()
	if err != nil {
		return
	}
	freeRAM := snap.FreeRAMPercent()
	freeSwap := snap.FreeSwapPercent()

	cooldownOK := c.lastCreation.IsZero() || time.Since(c.lastCreation) >= c.cooldown

	if len(c.activeFilesLocked()) < c.cfg.MaxCount && !c.diskFull {
		emergency, normal := shouldCreate(c.cfg, freeRAM, freeSwap, cooldownOK)

		if emergency || normal {
			if emergency {
				logger.Info("emergency: free_ram=%.1f%% free_swap=%.1f%% — creating swap file urgently", freeRAM, freeSwap)
			} else {
				logger.Info("memory pressure: free_ram=%.1f%% free_swap=%.1f%% — expanding", freeRAM, freeSwap)
			}
			if err := c.createFileLocked(c.cfg.ChunkSize); err == nil {
				c.lastCreation = time.Now()
				if emergency {
					c.cooldown = 5 * time.Second
				} else {
					c.cooldown = minDuration(c.cooldown*2, 120*time.Second)
				}
				c.backoff = time.Second
				c.diskFull = false
			} else if swapderr.Of(err, swapderr.Resource) {
				c.backoff = minDuration(c.backoff*2, 2*time.Minute)
			}
			return
		}
	}

	if len(c.activeFilesLocked()) > c.cfg.MinCount && freeSwap > float64(c.cfg.RemoveThreshold) {
		if candidate := c.findSafeRemovalCandidateLocked(); candidate != nil {
			logger.Info("free_swap=%.1f%% > %d%% — removing swap file #%d", freeSwap, c.cfg.RemoveThreshold, candidate.Index)
			if err := c.removeFileLocked(candidate); err != nil {
				logger.Warn("removal of #%d failed: %v", candidate.Index, err)
			}
		}
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

// findSafeRemovalCandidateLocked picks the lowest-priority active file
// whose used bytes can be absorbed by the others while leaving
// safe_headroom% free, never dropping below min_count.
func (c *Controller) findSafeRemovalCandidateLocked() *File {
	active := c.activeFilesLocked()
	if len(active) <= c.cfg.MinCount {
		return nil
	}

	var best *File
	for _, f := range active {
		if best == nil || f.Priority < best.Priority {
			if c.canSafelyRemoveLocked(f, active) {
				best = f
			}
		}
	}
	return best
}

func (c *Controller) canSafelyRemoveLocked(target *File, all []*File) bool {
	var otherSize, otherUsed uint64
	info := activeSwapInfo()
	usedOf := map[string]uint64{}
	for _, i := range info {
		usedOf[i.path] = i.used
	}

	for _, f := range all {
		if f.Index == target.Index {
			continue
		}
		otherSize += f.Size
		otherUsed += usedOf[f.Path]
	}
	if otherSize == 0 {
		return false
	}
	otherFree := otherSize - otherUsed
	if otherUsed > otherSize {
		otherFree = 0
	}
	required := usedOf[target.Path] + otherSize*uint64(c.cfg.SafeHeadroomPercent)/100
	return otherFree >= required
}

// removeFileLocked swaps off a file, with best-effort EBUSY retry, then
// removes its backing storage (file or loop device).
func (c *Controller) removeFileLocked(target *File) error {
	target.State = StateRemoving

	swapTarget := target.Path
	if target.LoopDev != "" {
		swapTarget = target.LoopDev
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if out, err := exec.Command("swapoff", swapTarget).CombinedOutput(); err != nil {
			lastErr = errors.Errorf("swapoff: %v: %s", err, strings.TrimSpace(string(out)))
			time.Sleep(time.Duration(attempt+1) * time.Second)
			continue
		}
		lastErr = nil
		break
	}
	if lastErr != nil {
		target.State = StateActive
		return swapderr.ResourceError("swapoff", lastErr)
	}

	if target.LoopDev != "" {
		exec.Command("losetup", "-d", target.LoopDev).Run()
	}
	os.Remove(target.Path)

	idx := -1
	for i, f := range c.files {
		if f.Index == target.Index {
			idx = i
			break
		}
	}
	if idx >= 0 {
		c.files = append(c.files[:idx:idx], c.files[idx+1:]...)
	}
	c.saveState()
	return nil
}

func (c *Controller) saveState() {
	if c.dir == nil {
		return
	}
	var lines []string
	for _, f := range c.activeFilesLocked() {
		lines = append(lines, f.Path)
	}
	if err := c.dir.WriteState("swapfc.files", strings.Join(lines, "\n")); err != nil {
		logger.Warn("failed to persist file list: %v", err)
	}
}

// Stop removes every swap file the controller created, best-effort.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var lastErr error
	for _, f := range c.activeFilesLocked() {
		if err := c.removeFileLocked(f); err != nil {
			lastErr = err
		}
	}
	if c.dir != nil {
		c.dir.RemoveState("swapfc.files")
	}
	return lastErr
}

// Files returns a snapshot of the controller's current files, for
// `status`.
func (c *Controller) Files() []File {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]File, len(c.files))
	for i, f := range c.files {
		out[i] = *f
	}
	return out
}
