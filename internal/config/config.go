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

// Package config resolves the daemon's layered key=value configuration:
// built-in defaults, the primary override file, and fragment
// directories, with ${VAR}/$VAR and $(( expr )) expansion seeded from
// the host's CPU count and RAM size. A Resolver is immutable once
// loaded.
package config

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/swapd/swapd/internal/meminfo"
	"github.com/swapd/swapd/internal/swapderr"
)

// Default search locations, per the daemon's external-interfaces contract.
const (
	DefaultConfigPath = "/usr/share/systemd-swap/swap-default.conf"
	EtcConfigPath     = "/etc/systemd/swap.conf"

	libFragmentDir = "/usr/lib/systemd/swap.conf.d"
	runFragmentDir = "/run/systemd/swap.conf.d"
	etcFragmentDir = "/etc/systemd/swap.conf.d"
)

// fragmentDirs lists fragment directories in increasing precedence order
// (later entries override earlier ones for the same basename): lib < run < etc.
var fragmentDirs = []string{libFragmentDir, runFragmentDir, etcFragmentDir}

// Resolver holds a fully resolved, immutable key=value configuration.
type Resolver struct {
	values map[string]string
	// order preserves first-insertion order, used only for Snapshot
	// output stability; it does not affect precedence.
	order []string
}

// Load resolves the configuration from the standard locations: built-in
// defaults, then /etc/systemd/swap.conf, then fragment directories in
// lib < run < etc precedence (lexicographic within a directory).
func Load() (*Resolver, error) {
	files := []string{DefaultConfigPath, EtcConfigPath}
	files = append(files, fragmentFiles()...)
	return LoadFiles(files)
}

// fragmentFiles enumerates *.conf files under fragmentDirs in the
// required precedence order: lib, then run, then etc; lexicographic by
// basename within each directory.
func fragmentFiles() []string {
	var files []string
	for _, dir := range fragmentDirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		var names []string
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".conf") {
				continue
			}
			names = append(names, e.Name())
		}
		sort.Strings(names)
		for _, n := range names {
			files = append(files, filepath.Join(dir, n))
		}
	}
	return files
}

// LoadFiles resolves the configuration from an explicit, precedence-ordered
// list of file paths (earlier files have lower precedence). Missing files
// are skipped; files present but unreadable for other reasons are a
// ConfigError.
func LoadFiles(paths []string) (*Resolver, error) {
	seed, err := seedEnv()
	if err != nil {
		return nil, err
	}

	r := &Resolver{values: seed}
	for k := range seed {
		r.order = append(r.order, k)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := r.loadFile(path); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// LoadMap builds a Resolver directly from a pre-resolved map, for tests
// and for reconstructing a snapshot without touching the filesystem.
func LoadMap(values map[string]string) *Resolver {
	r := &Resolver{values: make(map[string]string, len(values))}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		r.values[k] = values[k]
		r.order = append(r.order, k)
	}
	return r
}

// seedEnv builds the expansion environment required at bootstrap:
// NCPU (online CPU count) and RAM_SIZE (total RAM in kiB).
func seedEnv() (map[string]string, error) {
	ncpu := meminfo.NumCPU()

	var ramKiB uint64
	stats, err := meminfo.NewSampler().Snapshot()
	if err == nil {
		ramKiB = stats.MemTotal / 1024
	}

	return map[string]string{
		"NCPU":     strconv.Itoa(ncpu),
		"RAM_SIZE": strconv.FormatUint(ramKiB, 10),
	}, nil
}

// loadFile parses a single key=value file and merges it into r, later
// keys (including duplicates within the same file) overriding earlier
// ones.
func (r *Resolver) loadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return swapderr.ConfigError("load "+path, err)
	}

	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		idx := strings.IndexByte(line, '=')
		if idx < 0 {
			continue
		}

		key := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+1:])
		value = unquote(value)

		expanded, err := r.expand(value)
		if err != nil {
			return swapderr.ConfigError("parse "+path+": key "+key, err)
		}

		if !contains(r.order, key) {
			r.order = append(r.order, key)
		}
		r.values[key] = expanded
	}

	return nil
}

func contains(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

// unquote strips a single layer of matching surrounding quotes.
func unquote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

// Has reports whether key was set explicitly (by a file or SetIfMissing),
// as opposed to being absent from the resolved configuration.
func (r *Resolver) Has(key string) bool {
	_, ok := r.values[key]
	return ok
}

// GetString returns the resolved string value of key, or an error if unset.
func (r *Resolver) GetString(key string) (string, error) {
	v, ok := r.values[key]
	if !ok {
		return "", swapderr.Newf(swapderr.Config, "get "+key, "missing required key %q", key)
	}
	return v, nil
}

// GetStringDefault returns key's value, or def if key is unset.
func (r *Resolver) GetStringDefault(key, def string) string {
	if v, ok := r.values[key]; ok {
		return v
	}
	return def
}

// GetBool coerces key to a boolean: 0/1, true/false, yes/no, on/off,
// case-insensitively.
func (r *Resolver) GetBool(key string) (bool, error) {
	v, err := r.GetString(key)
	if err != nil {
		return false, err
	}
	return parseBool(v, key)
}

// GetBoolDefault is GetBool with a default for an unset key.
func (r *Resolver) GetBoolDefault(key string, def bool) bool {
	if !r.Has(key) {
		return def
	}
	v, err := r.GetBool(key)
	if err != nil {
		return def
	}
	return v
}

func parseBool(v, key string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	default:
		return false, swapderr.Newf(swapderr.Config, "get "+key, "invalid bool value %q", v)
	}
}

// GetInt coerces key to a signed 64-bit integer.
func (r *Resolver) GetInt(key string) (int64, error) {
	v, err := r.GetString(key)
	if err != nil {
		return 0, err
	}
	n, perr := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if perr != nil {
		return 0, swapderr.Newf(swapderr.Config, "get "+key, "invalid integer value %q", v)
	}
	return n, nil
}

// GetIntDefault is GetInt with a default for an unset key.
func (r *Resolver) GetIntDefault(key string, def int64) int64 {
	if !r.Has(key) {
		return def
	}
	v, err := r.GetInt(key)
	if err != nil {
		return def
	}
	return v
}

// GetEnum coerces key to one of allowed, rejecting any other value.
func (r *Resolver) GetEnum(key string, allowed ...string) (string, error) {
	v, err := r.GetString(key)
	if err != nil {
		return "", err
	}
	for _, a := range allowed {
		if v == a {
			return v, nil
		}
	}
	return "", swapderr.Newf(swapderr.Config, "get "+key,
		"value %q is not one of %v", v, allowed)
}

// GetEnumDefault is GetEnum with a default for an unset key.
func (r *Resolver) GetEnumDefault(key, def string, allowed ...string) (string, error) {
	if !r.Has(key) {
		return def, nil
	}
	return r.GetEnum(key, allowed...)
}

// GetSize coerces key to a byte count: K/M/G/T suffixes are powers of
// 1024 and may carry a decimal mantissa (e.g. "1.5G"); a trailing '%'
// means "percentage of RAM_SIZE".
func (r *Resolver) GetSize(key string) (uint64, error) {
	v, err := r.GetString(key)
	if err != nil {
		return 0, err
	}
	ramKiB, _ := strconv.ParseUint(r.values["RAM_SIZE"], 10, 64)
	n, serr := ParseSize(v, ramKiB*1024)
	if serr != nil {
		return 0, swapderr.ConfigError("get "+key, serr)
	}
	return n, nil
}

// GetSizeDefault is GetSize with a default for an unset key.
func (r *Resolver) GetSizeDefault(key, def string) (uint64, error) {
	if !r.Has(key) {
		ramKiB, _ := strconv.ParseUint(r.values["RAM_SIZE"], 10, 64)
		return ParseSize(def, ramKiB*1024)
	}
	return r.GetSize(key)
}

// SetIfMissing injects value for key only if the key was not already
// present in the resolved configuration (set_if_missing semantics used
// to layer autoconfig recommendations without overriding explicit user
// settings).
func (r *Resolver) SetIfMissing(key, value string) {
	if _, ok := r.values[key]; ok {
		return
	}
	r.values[key] = value
	r.order = append(r.order, key)
}

// Snapshot serializes the resolved configuration back to key=value text
// using the same grammar LoadFiles parses, so a later Load of the
// snapshot reproduces identical values (the round-trip law).
func (r *Resolver) Snapshot() string {
	keys := append([]string(nil), r.order...)
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(r.values[k])
		b.WriteByte('\n')
	}
	return b.String()
}

// All returns a copy of every resolved key/value pair.
func (r *Resolver) All() map[string]string {
	out := make(map[string]string, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}
