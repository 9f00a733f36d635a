/*
 * Copyright (c) 2024, NVIDIA CORPORATION.  All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package names

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSortNatural(t *testing.T) {
	testCases := []struct {
		name     string
		input    []string
		expected []string
	}{
		{
			name: "Case 1: empty list",
		},
		{
			name:     "Case 2: interface names",
			input:    []string{"Ethernet1/10", "Ethernet1/2", "Ethernet1/1", "Ethernet2/1", "Ethernet1/20"},
			expected: []string{"Ethernet1/1", "Ethernet1/2", "Ethernet1/10", "Ethernet1/20", "Ethernet2/1"},
		},
		{
			name:     "Case 3: device names with padding",
			input:    []string{"leaf-10", "leaf-02", "leaf-1", "leaf-001"},
			expected: []string{"leaf-001", "leaf-1", "leaf-02", "leaf-10"},
		},
		{
			name:     "Case 4: mixed prefixes",
			input:    []string{"spine2", "leaf10", "leaf9", "spine1", "mgmt"},
			expected: []string{"leaf9", "leaf10", "mgmt", "spine1", "spine2"},
		},
		{
			name:     "Case 5: prefix of another name",
			input:    []string{"Ethernet1/1.100", "Ethernet1/1", "Ethernet1"},
			expected: []string{"Ethernet1", "Ethernet1/1", "Ethernet1/1.100"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			SortNatural(tc.input)
			require.Equal(t, tc.expected, tc.input)
		})
	}
}

func TestNaturalLess(t *testing.T) {
	require.True(t, NaturalLess("swp2", "swp10"))
	require.False(t, NaturalLess("swp10", "swp2"))
	require.False(t, NaturalLess("swp1", "swp1"))
	// equal numerically, lexical tie-break
	require.True(t, NaturalLess("swp01", "swp1"))
	require.True(t, NaturalLess("99999999999999999999", "100000000000000000000"))
}

func TestCompare(t *testing.T) {
	require.Negative(t, Compare("leaf-2", "leaf-10"))
	require.Positive(t, Compare("leaf-10", "leaf-2"))
	require.Zero(t, Compare("leaf-1", "leaf-1"))
	require.Negative(t, Compare("leaf-01", "leaf-1"))
}

func TestCompactExpand(t *testing.T) {
	testCases := []struct {
		name                string
		expanded, compacted []string
	}{
		{
			name: "Case 1: empty list",
		},
		{
			name:      "Case 2: ranges",
			expanded:  []string{"leaf0507", "leaf0509", "leaf0482", "124", "leaf0483", "leaf0508", "leaf0484", "123"},
			compacted: []string{"[123-124]", "leaf[0482-0484,0507-0509]"},
		},
		{
			name:      "Case 3: singles",
			expanded:  []string{"leaf0507", "leaf0509", "spine0482"},
			compacted: []string{"leaf[0507,0509]", "spine0482"},
		},
		{
			name:      "Case 4: names without numbers",
			expanded:  []string{"tor-07", "tor-09", "mgmt", "tor-08"},
			compacted: []string{"mgmt", "tor-[07-09]"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.compacted, Compact(tc.expanded))
			require.ElementsMatch(t, tc.expanded, Expand(tc.compacted))
		})
	}
}
