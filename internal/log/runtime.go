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

package log

import (
	"fmt"
	"sort"
	"sync"
)

// runtime is the shared, lockable state behind every logger instance.
type runtime struct {
	sync.RWMutex
	backend  map[string]BackendFn // registered backend constructors
	active   Backend              // currently active backend
	level    Level                // lowest severity passed through by default
	forced   bool                 // signal-toggled (SIGHUP in swapd) "debug everything" override
	configs  map[logger]config    // per-logger enable/debug bits
	sources  map[logger]string    // logger id to source name
	bySource map[string]logger    // source name to logger id
	next     uint16               // next logger id to hand out
}

var log = &runtime{
	backend:  make(map[string]BackendFn),
	level:    LevelInfo,
	configs:  make(map[logger]config),
	sources:  make(map[logger]string),
	bySource: make(map[string]logger),
}

// get returns the logger for source, creating it (enabled, non-debugging) if needed.
func (rt *runtime) get(source string) logger {
	rt.Lock()
	defer rt.Unlock()

	if id, ok := rt.bySource[source]; ok {
		return id
	}

	if rt.active == nil {
		rt.activateLocked(FmtBackendName)
	}

	id := logger(rt.next)
	rt.next++

	rt.sources[id] = source
	rt.bySource[source] = id
	rt.configs[id] = mkConfig(id, true, false)

	rt.alignLocked()

	return id
}

// activateLocked selects name as the active backend, creating it on first use.
func (rt *runtime) activateLocked(name string) {
	fn, ok := rt.backend[name]
	if !ok {
		fn = rt.backend[FmtBackendName]
	}
	rt.active = fn()
}

// setBackend switches the active backend by name.
func (rt *runtime) setBackend(name string) error {
	rt.Lock()
	defer rt.Unlock()

	if _, ok := rt.backend[name]; !ok {
		return loggerError("unknown logger backend %q", name)
	}
	rt.activateLocked(name)
	return nil
}

// setLevel sets the lowest severity level passed through.
func (rt *runtime) setLevel(level Level) {
	rt.Lock()
	defer rt.Unlock()
	rt.level = level
}

// alignLocked recomputes the source-name alignment width for the active backend.
func (rt *runtime) alignLocked() {
	longest := 0
	for _, source := range rt.sources {
		if len(source) > longest {
			longest = len(source)
		}
	}
	if rt.active != nil {
		rt.active.SetSourceAlignment(longest)
	}
}

// update applies enable/debug source maps to every known logger.
func (rt *runtime) update(enable, debug srcmap) {
	rt.Lock()
	defer rt.Unlock()

	for id, source := range rt.sources {
		cfg := rt.configs[id]
		en, de := cfg.isLogging(), cfg.isDebugging()
		if enable != nil {
			if v, ok := matchSrcmap(enable, source); ok {
				en = v
			}
		}
		if debug != nil {
			if v, ok := matchSrcmap(debug, source); ok {
				de = v
			}
		}
		cfg.setEnabled(en, de)
		rt.configs[id] = cfg
	}
}

// matchSrcmap resolves the enable/disable state for source from a srcmap,
// honoring a literal "*" wildcard entry as the fallback.
func matchSrcmap(m srcmap, source string) (bool, bool) {
	if v, ok := m[source]; ok {
		return v, true
	}
	if v, ok := m["*"]; ok {
		return v, true
	}
	return false, false
}

// SetLevel sets the lowest severity level passed through by every logger.
func SetLevel(level Level) {
	log.setLevel(level)
}

// SetBackend switches the globally active logging backend by name.
func SetBackend(name string) error {
	return log.setBackend(name)
}

// Sources returns the names of all loggers created so far, sorted.
func Sources() []string {
	log.RLock()
	defer log.RUnlock()

	names := make([]string, 0, len(log.sources))
	for _, s := range log.sources {
		names = append(names, s)
	}
	sort.Strings(names)
	return names
}

// loggerError formats an error local to the logging package itself.
func loggerError(format string, args ...interface{}) error {
	return fmt.Errorf("log: "+format, args...)
}

// NewLogger creates a new Logger for the given source.
func NewLogger(source string) Logger {
	return log.get(source)
}

// Get is an alias for NewLogger, returning the Logger for source.
func Get(source string) Logger {
	return log.get(source)
}
