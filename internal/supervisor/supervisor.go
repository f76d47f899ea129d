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

// Package supervisor dispatches the daemon's CLI commands and, for
// start, owns the process lifecycle: acquiring the runtime lock,
// resolving configuration, starting controllers in dependency order,
// and tearing them down in reverse on shutdown.
package supervisor

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/swapd/swapd/internal/automode"
	"github.com/swapd/swapd/internal/config"
	"github.com/swapd/swapd/internal/kernelparam"
	"github.com/swapd/swapd/internal/log"
	"github.com/swapd/swapd/internal/meminfo"
	"github.com/swapd/swapd/internal/runtimedir"
	"github.com/swapd/swapd/internal/sdnotify"
	"github.com/swapd/swapd/internal/swapfc"
	"github.com/swapd/swapd/internal/sysfsio"
	"github.com/swapd/swapd/internal/version"
	"github.com/swapd/swapd/internal/zram"
	"github.com/swapd/swapd/internal/zswap"
)

var logger = log.NewLogger("supervisor")

// Run dispatches args[0] (the subcommand) to its handler. args is the
// command line with the program name already stripped.
func Run(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: swapd {start|stop|status|compression|autoconfig}")
		return 2
	}

	switch args[0] {
	case "start":
		return runStart()
	case "stop":
		return runStop()
	case "status":
		return runStatus()
	case "compression":
		return runCompression()
	case "autoconfig":
		return runAutoconfig()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", args[0])
		return 2
	}
}

// controller is the common lifecycle every mode component satisfies,
// so startup/shutdown can walk a plain slice instead of branching on
// concrete types at every step.
type controller struct {
	name  string
	run   func(stop <-chan struct{})
	stop  func() error
	doneC chan struct{}
}

func runStart() int {
	logger.Info("swapd %s (build %s) starting", version.Version, version.Build)

	dir, err := runtimedir.Acquire(runtimedir.Path())
	if err != nil {
		logger.Error("failed to acquire runtime lock: %v", err)
		return 1
	}
	defer dir.Release()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to resolve configuration: %v", err)
		return 1
	}

	ramStats, err := meminfo.NewSampler().Snapshot()
	if err != nil {
		logger.Error("failed to read /proc/meminfo: %v", err)
		return 1
	}
	cpuCount := meminfo.NumCPU()

	mode, err := resolveMode(cfg, ramStats.MemTotal, cpuCount)
	if err != nil {
		logger.Error("failed to resolve swap mode: %v", err)
		return 1
	}
	logger.Info("starting in mode %q", mode)

	if err := dir.WriteState("swap.conf", cfg.Snapshot()); err != nil {
		logger.Warn("failed to persist configuration snapshot: %v", err)
	}
	if err := dir.WriteState("pid", strconv.Itoa(os.Getpid())); err != nil {
		logger.Warn("failed to persist pid: %v", err)
	}

	log.SetupDebugToggleSignal(syscall.SIGHUP)
	defer log.ClearDebugToggleSignal()

	sdnotify.Status("starting controllers")

	kpDesired := kernelparam.FromResolver(cfg)
	kpSnapshot := kernelparam.Apply(kpDesired)

	var controllers []controller
	var zswapSnap *zswap.Snapshot

	if strings.HasPrefix(mode, "zswap") {
		zc := zswap.New(cfg)
		snap, err := zc.Start()
		if err != nil {
			logger.Error("zswap start failed: %v", err)
			kernelparam.Restore(kpSnapshot)
			return 1
		}
		zswapSnap = snap
	}

	zramCfg, err := zram.ConfigFromResolver(cfg, ramStats.MemTotal, cpuCount)
	if err != nil {
		logger.Error("failed to resolve zram configuration: %v", err)
		zswap.Stop(zswapSnap)
		kernelparam.Restore(kpSnapshot)
		return 1
	}
	zpool := zram.New(zramCfg, ramStats.MemTotal, cpuCount, dir)
	if err := zpool.Start(); err != nil {
		logger.Error("zram pool start failed: %v", err)
		zswap.Stop(zswapSnap)
		kernelparam.Restore(kpSnapshot)
		return 1
	}
	controllers = append(controllers, controller{name: "zram", run: zpool.Run, stop: zpool.Stop})

	var fc *swapfc.Controller
	if strings.Contains(mode, "swapfc") {
		fcCfg, err := swapfc.ConfigFromResolver(cfg)
		if err != nil {
			logger.Error("failed to resolve swapfc configuration: %v", err)
		} else {
			fc = swapfc.New(fcCfg, dir)
			if err := fc.Precondition(); err != nil {
				logger.Warn("swapfc precondition failed, running zram-only: %v", err)
				fc = nil
			} else if err := fc.Start(); err != nil {
				logger.Warn("swapfc start failed, running zram-only: %v", err)
				fc = nil
			} else {
				controllers = append(controllers, controller{name: "swapfc", run: fc.Run, stop: fc.Stop})
			}
		}
	}

	// SHUTDOWN is the process's single piece of shared mutable state;
	// every controller's monitor loop selects on the channel derived
	// from it rather than polling the flag directly. Teardown below
	// walks controllers in reverse of this start order: SwapFC, zram,
	// zswap, kernel parameters.
	var shutdown atomic.Bool
	shutdownC := make(chan struct{})
	sigC := make(chan os.Signal, 1)
	signal.Notify(sigC, syscall.SIGTERM, syscall.SIGINT)

	for i := range controllers {
		c := &controllers[i]
		c.doneC = make(chan struct{})
		go func(c *controller) {
			defer close(c.doneC)
			c.run(shutdownC)
		}(c)
	}

	sdnotify.Status(fmt.Sprintf("running %s (build %s), mode=%s", version.Version, version.Build, mode))
	sdnotify.Ready()
	logger.Info("ready")

	<-sigC
	shutdown.Store(true)
	close(shutdownC)
	sdnotify.Stopping()
	logger.Info("stopping")

	// Further signals during teardown are expected (a supervisor may
	// retry); shutdown.Load() lets any late-arriving code path confirm
	// we are already unwinding instead of starting a second teardown.
	go func() {
		for range sigC {
			if shutdown.Load() {
				logger.Debug("shutdown already in progress, ignoring repeated signal")
			}
		}
	}()

	for i := range controllers {
		<-controllers[i].doneC
	}

	for i := len(controllers) - 1; i >= 0; i-- {
		c := controllers[i]
		logger.Info("tearing down %s", c.name)
		if err := c.stop(); err != nil {
			logger.Warn("%s teardown reported errors: %v", c.name, err)
		}
	}

	if err := zswap.Stop(zswapSnap); err != nil {
		logger.Warn("zswap restore reported errors: %v", err)
	}
	if err := kernelparam.Restore(kpSnapshot); err != nil {
		logger.Warn("kernel parameter restore reported errors: %v", err)
	}

	warnings, errors := log.Counts()
	logger.Info("stopped, %d warning(s), %d error(s) logged this run", warnings, errors)

	return 0
}

// resolveMode returns the concrete mode string ("zram", "zram+swapfc",
// "zswap+swapfc") honoring swap_mode=auto via internal/automode.
func resolveMode(cfg *config.Resolver, ramBytes uint64, cpuCount int) (string, error) {
	requested, err := cfg.GetEnumDefault("swap_mode", "auto", "auto", "zram", "zram+swapfc", "zswap+swapfc")
	if err != nil {
		return "", err
	}
	if requested != "auto" {
		return requested, nil
	}

	swapDir := cfg.GetStringDefault("swapfc_path", "/swapfc/swapfile")
	caps := automode.Detect(swapDir, ramBytes, cpuCount)
	preferZswap := cfg.GetBoolDefault("swap_mode_prefer_zswap", false)
	rc := automode.Recommend(caps, preferZswap)
	automode.Apply(rc, cfg.SetIfMissing)
	return string(rc.Mode), nil
}

func runStop() int {
	path := runtimedir.Path()
	pidStr, err := os.ReadFile(path + "/pid")
	if err != nil {
		logger.Info("not running")
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(pidStr)))
	if err != nil {
		logger.Error("runtime state has a malformed pid: %v", err)
		return 1
	}
	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
		if err == syscall.ESRCH {
			logger.Info("not running")
			return 0
		}
		logger.Error("failed to signal pid %d: %v", pid, err)
		return 1
	}
	return 0
}

func runStatus() int {
	fmt.Println("swapd status")

	sampler := meminfo.NewSampler()
	stats, err := sampler.Snapshot()
	if err != nil {
		fmt.Printf("  meminfo: unavailable (%v)\n", err)
	} else {
		fmt.Printf("  free RAM:  %.1f%%\n", stats.FreeRAMPercent())
		fmt.Printf("  free swap: %.1f%%\n", stats.FreeSwapPercent())
	}

	if zswap.Available() {
		if zs, err := zswap.ReadStatus(); err == nil {
			fmt.Printf("  zswap: enabled=%v compressor=%s pool=%d%%\n", zs.Enabled, zs.Compressor, zs.MaxPoolPercent)
		}
	} else {
		fmt.Println("  zswap: module not loaded")
	}

	dir, err := runtimedir.Acquire(runtimedir.Path())
	if err != nil {
		fmt.Println("  daemon: running (runtime lock held)")
		return 0
	}
	defer dir.Release()
	fmt.Println("  daemon: not running")
	return 0
}

// runCompression lists the compression algorithms the running kernel's
// crypto API reports, by scanning /proc/crypto for entries whose type
// names a (a|s)comp transform. If zswap is loaded, its currently
// selected compressor is marked.
func runCompression() int {
	current := ""
	if zswap.Available() {
		current, _ = sysfsio.ReadString("/sys/module/zswap/parameters/compressor")
	}

	content, err := os.ReadFile("/proc/crypto")
	if err != nil {
		fmt.Println("unable to determine available compressors")
		return 0
	}

	seen := map[string]bool{}
	for _, block := range strings.Split(string(content), "\n\n") {
		name, typ := "", ""
		for _, line := range strings.Split(block, "\n") {
			parts := strings.SplitN(line, ":", 2)
			if len(parts) != 2 {
				continue
			}
			key, value := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
			switch key {
			case "name":
				name = value
			case "type":
				typ = value
			}
		}
		if name == "" || !strings.Contains(typ, "comp") || seen[name] {
			continue
		}
		seen[name] = true
		if name == current {
			fmt.Printf("%s (active)\n", name)
		} else {
			fmt.Println(name)
		}
	}
	return 0
}

func runAutoconfig() int {
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to resolve configuration: %v", err)
		return 1
	}
	ramStats, err := meminfo.NewSampler().Snapshot()
	if err != nil {
		logger.Error("failed to read /proc/meminfo: %v", err)
		return 1
	}

	swapDir := cfg.GetStringDefault("swapfc_path", "/swapfc/swapfile")
	caps := automode.Detect(swapDir, ramStats.MemTotal, meminfo.NumCPU())
	preferZswap := cfg.GetBoolDefault("swap_mode_prefer_zswap", false)
	rc := automode.Recommend(caps, preferZswap)

	fmt.Printf("mode: %s\n", rc.Mode)
	fmt.Printf("zram_alg: %s\n", rc.ZramAlgorithm)
	fmt.Printf("zram_size: %d%%\n", rc.ZramSizePercent)
	fmt.Printf("zram_prio: %d\n", rc.ZramPriority)
	fmt.Printf("zswap_compressor: %s\n", rc.ZswapCompressor)
	fmt.Printf("zswap_max_pool_percent: %d\n", rc.ZswapMaxPoolPercent)
	fmt.Printf("mglru_min_ttl_ms: %d\n", rc.MGLRUMinTTLMs)
	if rc.Mode != automode.ModeZramOnly {
		fmt.Printf("swapfc_chunk_size: %s\n", rc.SwapFCChunkSize)
		fmt.Printf("swapfc_max_count: %d\n", rc.SwapFCMaxCount)
		fmt.Printf("swapfc_free_ram_perc: %d\n", rc.SwapFCFreeRAMPercent)
		fmt.Printf("swapfc_free_swap_perc: %d\n", rc.SwapFCFreeSwapPercent)
		fmt.Printf("swapfc_remove_free_swap_perc: %d\n", rc.SwapFCRemoveFreeSwapPercent)
	}
	return 0
}
