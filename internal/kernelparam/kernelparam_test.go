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

package kernelparam

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/swapd/swapd/internal/config"
)

func TestSelectedValueParsesBracketed(t *testing.T) {
	require.Equal(t, "madvise", selectedValue("always [madvise] never"))
}

func TestSelectedValueFallsBackToRaw(t *testing.T) {
	require.Equal(t, "60", selectedValue("60"))
}

func TestFromResolverLeavesUnsetKnobsAlone(t *testing.T) {
	r := config.LoadMap(map[string]string{})
	d := FromResolver(r)
	require.Equal(t, "", d.THPMode)
	require.Nil(t, d.MGLRUMinTTL)
	require.Empty(t, d.Sysctls)
}

func TestFromResolverPicksUpConfiguredKnobs(t *testing.T) {
	r := config.LoadMap(map[string]string{
		"thp_mode":         "madvise",
		"mglru_min_ttl_ms": "1000",
		"vm_swappiness":    "10",
	})
	d := FromResolver(r)
	require.Equal(t, "madvise", d.THPMode)
	require.NotNil(t, d.MGLRUMinTTL)
	require.EqualValues(t, 1000, *d.MGLRUMinTTL)
	require.Equal(t, "10", d.Sysctls["vm.swappiness"])
	_, hasPageCluster := d.Sysctls["vm.page-cluster"]
	require.False(t, hasPageCluster)
}

func TestApplyAndRestoreNoopWithoutKnobs(t *testing.T) {
	snap := Apply(Desired{})
	require.NoError(t, Restore(snap))
}

func TestRestoreNilSnapshotIsNoop(t *testing.T) {
	require.NoError(t, Restore(nil))
}

func TestSysctlConfigKey(t *testing.T) {
	require.Equal(t, "vm_swappiness", sysctlConfigKey("vm.swappiness"))
	require.Equal(t, "vm_page_cluster", sysctlConfigKey("vm.page-cluster"))
	require.Equal(t, "", sysctlConfigKey("vm.unknown"))
}
