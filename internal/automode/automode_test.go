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

package automode

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecommendLiveImage(t *testing.T) {
	caps := Capabilities{RootFSType: "squashfs", IsLiveImage: true}
	rc := Recommend(caps, false)
	require.Equal(t, ModeZramOnly, rc.Mode)
}

func TestRecommendUnsupportedSwapDirFS(t *testing.T) {
	caps := Capabilities{SwapDirFSType: "vfat"}
	rc := Recommend(caps, false)
	require.Equal(t, ModeZramOnly, rc.Mode)
}

func TestRecommendInsufficientDiskSpace(t *testing.T) {
	caps := Capabilities{
		SwapDirFSType: "btrfs",
		FreeDiskBytes: 1 << 30,
		TotalRAMBytes: 8 << 30,
	}
	rc := Recommend(caps, false)
	require.Equal(t, ModeZramOnly, rc.Mode)
}

func TestRecommendDiskBackedZram(t *testing.T) {
	caps := Capabilities{
		SwapDirFSType: "btrfs",
		FreeDiskBytes: 100 << 30,
		TotalRAMBytes: 8 << 30,
	}
	rc := Recommend(caps, false)
	require.Equal(t, ModeZramSwapFC, rc.Mode)
	require.Equal(t, 28, rc.SwapFCMaxCount)
}

func TestRecommendDiskBackedZswap(t *testing.T) {
	caps := Capabilities{
		SwapDirFSType: "ext4",
		FreeDiskBytes: 100 << 30,
		TotalRAMBytes: 8 << 30,
	}
	rc := Recommend(caps, true)
	require.Equal(t, ModeZswapSwapFC, rc.Mode)
}

func TestApplyRespectsExplicitValue(t *testing.T) {
	rc := zramOnly()
	applied := map[string]string{"zram_alg": "lz4"}

	Apply(rc, func(key, value string) {
		if _, ok := applied[key]; !ok {
			applied[key] = value
		}
	})

	require.Equal(t, "lz4", applied["zram_alg"])
	require.Equal(t, "32767", applied["zram_prio"])
}
