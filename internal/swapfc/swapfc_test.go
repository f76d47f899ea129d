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

package swapfc

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDerivePriorityDefaultsBelowZram(t *testing.T) {
	c := &Controller{cfg: Config{Priority: -1}}
	require.Equal(t, -1, c.derivePriority(1))
}

func TestDerivePriorityDecreasesByCreationOrder(t *testing.T) {
	c := &Controller{cfg: Config{Priority: -1}}
	require.Equal(t, -1, c.derivePriority(1))
	require.Equal(t, -2, c.derivePriority(2))
	require.Equal(t, -4, c.derivePriority(4))
}

func TestDerivePriorityHonorsExplicitValue(t *testing.T) {
	c := &Controller{cfg: Config{Priority: 3}}
	require.Equal(t, 3, c.derivePriority(1))
	require.Equal(t, 2, c.derivePriority(2))
}

func TestActiveFilesLockedFiltersState(t *testing.T) {
	c := &Controller{files: []*File{
		{Index: 1, State: StateActive},
		{Index: 2, State: StateRemoving},
		{Index: 3, State: StateActive},
	}}
	active := c.activeFilesLocked()
	require.Len(t, active, 2)
	require.Equal(t, 1, active[0].Index)
	require.Equal(t, 3, active[1].Index)
}

func TestNextIndexIsOneBeyondMax(t *testing.T) {
	c := &Controller{files: []*File{{Index: 1}, {Index: 4}, {Index: 2}}}
	require.Equal(t, 5, c.nextIndex())
}

func TestNextIndexOnEmptyPool(t *testing.T) {
	c := &Controller{}
	require.Equal(t, 1, c.nextIndex())
}

func TestFindSafeRemovalCandidateRespectsMinCount(t *testing.T) {
	c := &Controller{
		cfg:   Config{MinCount: 2},
		files: []*File{{Index: 1, State: StateActive}, {Index: 2, State: StateActive}},
	}
	require.Nil(t, c.findSafeRemovalCandidateLocked())
}

func TestFindSafeRemovalCandidatePicksLowestPriority(t *testing.T) {
	c := &Controller{
		cfg: Config{MinCount: 1, SafeHeadroomPercent: 0},
		files: []*File{
			{Index: 1, Path: "/swapfc/1", Size: 1 << 30, Priority: 10, State: StateActive},
			{Index: 2, Path: "/swapfc/2", Size: 1 << 30, Priority: 5, State: StateActive},
		},
	}
	candidate := c.findSafeRemovalCandidateLocked()
	require.NotNil(t, candidate)
	require.Equal(t, 2, candidate.Index)
}

// TestFindSafeRemovalCandidateFollowsCreationOrder builds the pool the
// way createFileLocked does — priorities assigned by derivePriority in
// strictly decreasing creation order, not artificially spread out — and
// checks removal still prefers the most recently created file.
func TestFindSafeRemovalCandidateFollowsCreationOrder(t *testing.T) {
	c := &Controller{cfg: Config{Priority: -1, MinCount: 1, SafeHeadroomPercent: 0}}
	for idx := 1; idx <= 3; idx++ {
		c.files = append(c.files, &File{
			Index:    idx,
			Path:     fmt.Sprintf("/swapfc/%d", idx),
			Size:     1 << 30,
			Priority: c.derivePriority(idx),
			State:    StateActive,
		})
	}

	candidate := c.findSafeRemovalCandidateLocked()
	require.NotNil(t, candidate)
	require.Equal(t, 3, candidate.Index, "removal should prefer the highest-numbered (most recently created) file")

	c.files = c.files[:2]
	candidate = c.findSafeRemovalCandidateLocked()
	require.NotNil(t, candidate)
	require.Equal(t, 2, candidate.Index)
}

func TestShouldCreateOnLowFreeRAMAlone(t *testing.T) {
	cfg := Config{EmergencyThreshold: 10, CreateRAMThreshold: 20, CreateSwapThreshold: 40}
	emergency, normal := shouldCreate(cfg, 15, 90, true)
	require.False(t, emergency)
	require.True(t, normal, "low free RAM alone should trigger creation even with plenty of free swap")
}

func TestShouldCreateOnLowFreeSwapAlone(t *testing.T) {
	cfg := Config{EmergencyThreshold: 10, CreateRAMThreshold: 20, CreateSwapThreshold: 40}
	emergency, normal := shouldCreate(cfg, 90, 30, true)
	require.False(t, emergency)
	require.True(t, normal)
}

func TestShouldCreateNoneWhenBothHealthy(t *testing.T) {
	cfg := Config{EmergencyThreshold: 10, CreateRAMThreshold: 20, CreateSwapThreshold: 40}
	emergency, normal := shouldCreate(cfg, 90, 90, true)
	require.False(t, emergency)
	require.False(t, normal)
}

func TestShouldCreateRespectsCooldown(t *testing.T) {
	cfg := Config{EmergencyThreshold: 10, CreateRAMThreshold: 20, CreateSwapThreshold: 40}
	_, normal := shouldCreate(cfg, 15, 90, false)
	require.False(t, normal, "normal creation is cooldown-gated")
}

func TestShouldCreateEmergencyIgnoresCooldown(t *testing.T) {
	cfg := Config{EmergencyThreshold: 10, CreateRAMThreshold: 20, CreateSwapThreshold: 40}
	emergency, _ := shouldCreate(cfg, 5, 90, false)
	require.True(t, emergency)
}

func TestMinDuration(t *testing.T) {
	require.Equal(t, 1, int(minDuration(1, 2)))
	require.Equal(t, 1, int(minDuration(2, 1)))
}
