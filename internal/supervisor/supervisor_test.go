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

package supervisor

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/swapd/swapd/internal/config"
)

func TestResolveModeHonorsExplicitValue(t *testing.T) {
	cfg := config.LoadMap(map[string]string{"swap_mode": "zswap+swapfc"})
	mode, err := resolveMode(cfg, 8<<30, 4)
	require.NoError(t, err)
	require.Equal(t, "zswap+swapfc", mode)
}

func TestResolveModeRejectsUnknownValue(t *testing.T) {
	cfg := config.LoadMap(map[string]string{"swap_mode": "bogus"})
	_, err := resolveMode(cfg, 8<<30, 4)
	require.Error(t, err)
}

func TestRunUnknownCommandReturnsUsageError(t *testing.T) {
	require.Equal(t, 2, Run(nil))
	require.Equal(t, 2, Run([]string{"bogus"}))
}
