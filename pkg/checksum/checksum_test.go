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

package checksum

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// sha256 of the empty input
const empty = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

func TestCompute(t *testing.T) {
	require.Equal(t, empty, Compute())
	require.Len(t, Compute("a"), 64)

	require.Equal(t, Compute("a", "b", "c"), Compute("c", "a", "b"))
	require.Equal(t, Compute("a", "b"), Compute("b", "a", "b", "a"))
	require.NotEqual(t, Compute("a", "b"), Compute("a", "c"))
	require.NotEqual(t, Compute("ab"), Compute("a", "b"))
	require.NotEqual(t, empty, Compute(""))

	ids := []string{"z", "y"}
	Compute(ids...)
	require.Equal(t, []string{"z", "y"}, ids)
}

func TestGate(t *testing.T) {
	testCases := []struct {
		name    string
		stored  string
		ids     []string
		changed bool
	}{
		{
			name:    "Case 1: never generated",
			ids:     []string{"s1", "s2"},
			changed: true,
		},
		{
			name:   "Case 2: same inputs in another order",
			stored: Compute("s1", "s2"),
			ids:    []string{"s2", "s1"},
		},
		{
			name:    "Case 3: input added",
			stored:  Compute("s1", "s2"),
			ids:     []string{"s1", "s2", "s3"},
			changed: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			current, changed := Gate(tc.stored, tc.ids...)
			require.Equal(t, Compute(tc.ids...), current)
			require.Equal(t, tc.changed, changed)
		})
	}
}
