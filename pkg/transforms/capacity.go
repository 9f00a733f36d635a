/*
 * Copyright 2025 NVIDIA CORPORATION
 * SPDX-License-Identifier: Apache-2.0
 */

package transforms

import (
	"fmt"
	"io"
	"net/netip"
	"text/tabwriter"

	"github.com/NVIDIA/fabricgen/pkg/design"
)

// PoolUsage describes how much of a resource pool is allocated
type PoolUsage struct {
	Name        string  `json:"name"`
	Prefix      string  `json:"prefix"`
	Allocated   int     `json:"allocated"`
	Utilization float64 `json:"utilization"`
}

// NewPoolUsage computes the utilization of a pool from its allocated prefixes
func NewPoolUsage(name string, pool netip.Prefix, allocated []netip.Prefix) (*PoolUsage, error) {
	util, err := PoolUtilization(pool, allocated)
	if err != nil {
		return nil, fmt.Errorf("pool %s: %v", name, err)
	}
	return &PoolUsage{Name: name, Prefix: pool.Masked().String(), Allocated: len(allocated), Utilization: util}, nil
}

// CapacityReport writes the used and maximum amount of every role of the design pattern
func CapacityReport(w io.Writer, name string, pattern *design.Pattern, counts design.Counts) error {
	if _, err := fmt.Fprintf(w, "# %s: design pattern %s\n", name, pattern.Name); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "ROLE\tUSED\tMAXIMUM\tUTILIZATION")
	for _, u := range pattern.Utilization(counts) {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", u.Role, u.Used, u.Maximum, FormatPercent(Percent(float64(u.Used), float64(u.Maximum))))
	}
	return tw.Flush()
}

// PoolReport writes the utilization of resource pools
func PoolReport(w io.Writer, pools []*PoolUsage) error {
	if len(pools) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "POOL\tPREFIX\tALLOCATED\tUTILIZATION")
	for _, p := range pools {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", p.Name, p.Prefix, p.Allocated, FormatPercent(p.Utilization))
	}
	return tw.Flush()
}
