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

package zram

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAdaptiveFreeRAMFloor(t *testing.T) {
	require.Equal(t, 2, adaptiveFreeRAMFloor(12, 15))
	require.Equal(t, 3, adaptiveFreeRAMFloor(5, 15))
	require.Equal(t, 5, adaptiveFreeRAMFloor(3, 15))
	require.Equal(t, 8, adaptiveFreeRAMFloor(2, 15))
	require.Equal(t, 15, adaptiveFreeRAMFloor(1, 15))
}

func TestPerDeviceSizeFromPercent(t *testing.T) {
	p := &Pool{cfg: PoolConfig{SizePercent: 200}, ramSize: 8 << 30}
	require.EqualValues(t, 4<<30, p.perDeviceSize(4))
}

func TestPerDeviceSizeFixed(t *testing.T) {
	p := &Pool{cfg: PoolConfig{FixedDeviceSize: 512 << 20}, ramSize: 8 << 30}
	require.EqualValues(t, 512<<20, p.perDeviceSize(4))
}

func TestShouldExpandRespectsMaxCount(t *testing.T) {
	p := &Pool{
		cfg:     PoolConfig{MaxCount: 2, ExpandThreshold: 50, ExpandMinRatio: 1.0},
		devices: []*Device{{State: StateActive}, {State: StateActive}},
	}
	require.False(t, p.shouldExpand(PoolStats{UtilizationPercent: 90, CompressionRatio: 3}))
}

func TestShouldExpandBlockedByRemovingDevice(t *testing.T) {
	p := &Pool{
		cfg:     PoolConfig{MaxCount: 4, ExpandThreshold: 50, ExpandMinRatio: 1.0},
		devices: []*Device{{State: StateRemoving}},
	}
	require.False(t, p.shouldExpand(PoolStats{UtilizationPercent: 90, CompressionRatio: 3}))
}

func TestShouldExpandRatioFloor(t *testing.T) {
	p := &Pool{
		cfg:     PoolConfig{MaxCount: 4, ExpandThreshold: 50, ExpandMinRatio: 2.0},
		devices: []*Device{{State: StateActive}},
	}
	require.False(t, p.shouldExpand(PoolStats{UtilizationPercent: 90, CompressionRatio: 1.2}))
}

func TestShouldContractRespectsMinCount(t *testing.T) {
	p := &Pool{
		cfg: PoolConfig{MinCount: 2, ContractThreshold: 20, ContractStability: time.Second},
		devices: []*Device{
			{Index: 0, State: StateIdle, IdleSince: time.Now().Add(-time.Hour)},
			{Index: 1, State: StateIdle, IdleSince: time.Now().Add(-time.Hour)},
		},
	}
	require.False(t, p.shouldContract())
}

func TestShouldContractRequiresStability(t *testing.T) {
	p := &Pool{
		cfg: PoolConfig{MinCount: 1, ContractThreshold: 20, ContractStability: time.Hour},
		devices: []*Device{
			{Index: 0, State: StateIdle, IdleSince: time.Now()},
			{Index: 1, State: StateActive},
		},
	}
	require.False(t, p.shouldContract())
}

func TestShouldContractTrueWhenDeviceIdleLongEnough(t *testing.T) {
	p := &Pool{
		cfg: PoolConfig{MinCount: 1, ContractThreshold: 20, ContractStability: time.Second},
		devices: []*Device{
			{Index: 0, State: StateIdle, IdleSince: time.Now().Add(-time.Hour)},
			{Index: 1, State: StateActive},
		},
	}
	require.True(t, p.shouldContract())
}

func TestLeastLoadedIdleLockedPicksLowestUtilization(t *testing.T) {
	p := &Pool{
		cfg: PoolConfig{ContractStability: time.Second},
		devices: []*Device{
			{Index: 0, State: StateIdle, IdleSince: time.Now().Add(-time.Hour), UtilPercent: 15},
			{Index: 1, State: StateIdle, IdleSince: time.Now().Add(-time.Hour), UtilPercent: 3},
			{Index: 2, State: StateActive, UtilPercent: 0},
		},
	}
	candidate := p.leastLoadedIdleLocked()
	require.NotNil(t, candidate)
	require.Equal(t, 1, candidate.Index)
}

func TestLeastLoadedIdleLockedIgnoresDevicesNotYetStable(t *testing.T) {
	p := &Pool{
		cfg: PoolConfig{ContractStability: time.Hour},
		devices: []*Device{
			{Index: 0, State: StateIdle, IdleSince: time.Now()},
		},
	}
	require.Nil(t, p.leastLoadedIdleLocked())
}

func TestDeviceStateString(t *testing.T) {
	require.Equal(t, "active", StateActive.String())
	require.Equal(t, "idle", StateIdle.String())
	require.Equal(t, "removing", StateRemoving.String())
}
