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

// Package checksum fingerprints the set of objects a generator derived its output from.
// The fingerprint is stored on downstream objects so that regeneration can be skipped
// while the inputs are unchanged.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
)

// Compute returns the hex SHA-256 of the sorted, de-duplicated IDs joined by newlines
func Compute(ids ...string) string {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	h := sha256.New()
	for _, id := range sorted {
		h.Write([]byte(id))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Gate computes the current checksum and reports whether it differs from the stored one
func Gate(stored string, ids ...string) (string, bool) {
	current := Compute(ids...)
	return current, current != stored
}
