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

package meminfo

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSnapshot(t *testing.T) {
	s := &Sampler{path: "testdata/meminfo.sample"}

	stats, err := s.Snapshot()
	require.NoError(t, err)

	require.EqualValues(t, 8124528*1024, stats.MemTotal)
	require.EqualValues(t, 1048576*1024, stats.MemFree)
	require.EqualValues(t, 3145728*1024, stats.MemAvailable)
	require.EqualValues(t, 4194304*1024, stats.SwapTotal)
	require.EqualValues(t, 4194304*1024, stats.SwapFree)
	require.EqualValues(t, 2048*1024, stats.Zswap)
	require.EqualValues(t, 8192*1024, stats.Zswapped)
}

func TestFreeSwapPercentNoSwap(t *testing.T) {
	stats := Stats{SwapTotal: 0, SwapFree: 0}
	require.Equal(t, 100.0, stats.FreeSwapPercent())
}

func TestFreeRAMPercent(t *testing.T) {
	stats := Stats{MemTotal: 1000, MemFree: 250, MemAvailable: 700}
	require.Equal(t, 25.0, stats.FreeRAMPercent())
}

func TestSnapshotMissingFile(t *testing.T) {
	s := &Sampler{path: "testdata/does-not-exist"}
	_, err := s.Snapshot()
	require.Error(t, err)
}
