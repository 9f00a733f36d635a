/*
 * Copyright 2025 NVIDIA CORPORATION
 * SPDX-License-Identifier: Apache-2.0
 */

package transforms

import (
	"cmp"
	"fmt"
	"math"
	"net/netip"
	"slices"
)

// Percent returns used as a percentage of total, or 0 if total is not positive
func Percent(used, total float64) float64 {
	if total <= 0 {
		return 0
	}
	return used * 100 / total
}

func FormatPercent(p float64) string {
	return fmt.Sprintf("%.1f%%", p)
}

// PoolUtilization returns the share of the pool address space covered by the allocated prefixes.
// Single addresses are passed as host prefixes. Duplicate and nested prefixes are counted once.
func PoolUtilization(pool netip.Prefix, allocated []netip.Prefix) (float64, error) {
	if !pool.IsValid() {
		return 0, fmt.Errorf("invalid pool prefix")
	}
	pool = pool.Masked()

	prefixes := make([]netip.Prefix, 0, len(allocated))
	for _, prefix := range allocated {
		if prefix.Addr().Is4() != pool.Addr().Is4() || prefix.Bits() < pool.Bits() || !pool.Contains(prefix.Addr()) {
			return 0, fmt.Errorf("prefix %s is outside of pool %s", prefix, pool)
		}
		prefixes = append(prefixes, prefix.Masked())
	}
	slices.SortFunc(prefixes, func(a, b netip.Prefix) int {
		if c := a.Addr().Compare(b.Addr()); c != 0 {
			return c
		}
		return cmp.Compare(a.Bits(), b.Bits())
	})

	var used float64
	var last netip.Prefix
	for _, prefix := range prefixes {
		if last.IsValid() && last.Contains(prefix.Addr()) {
			continue
		}
		used += size(prefix)
		last = prefix
	}

	return Percent(used, size(pool)), nil
}

func size(prefix netip.Prefix) float64 {
	return math.Exp2(float64(prefix.Addr().BitLen() - prefix.Bits()))
}
