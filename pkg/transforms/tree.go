/*
 * Copyright 2025 NVIDIA CORPORATION
 * SPDX-License-Identifier: Apache-2.0
 */

package transforms

import (
	"fmt"
	"io"
	"strings"

	"github.com/NVIDIA/fabricgen/internal/names"
)

// Switch is a location of the fabric with its child locations and devices
type Switch struct {
	Name     string
	Switches []*Switch
	Nodes    []string
}

// SwitchTree writes the location hierarchy breadth first, one line per child kind.
// Locations without children are omitted.
func SwitchTree(w io.Writer, root *Switch) error {
	if root == nil {
		return nil
	}

	queue := []*Switch{root}
	for len(queue) > 0 {
		sw := queue[0]
		queue = queue[1:]
		if err := writeSwitch(w, sw); err != nil {
			return err
		}
		queue = append(queue, sw.Switches...)
	}
	return nil
}

func writeSwitch(w io.Writer, sw *Switch) error {
	if len(sw.Switches) != 0 {
		switches := make([]string, 0, len(sw.Switches))
		for _, child := range sw.Switches {
			switches = append(switches, child.Name)
		}
		if _, err := fmt.Fprintf(w, "SwitchName=%s Switches=%s\n", sw.Name, strings.Join(names.Compact(switches), ",")); err != nil {
			return err
		}
	}

	if len(sw.Nodes) != 0 {
		if _, err := fmt.Fprintf(w, "SwitchName=%s Nodes=%s\n", sw.Name, strings.Join(names.Compact(sw.Nodes), ",")); err != nil {
			return err
		}
	}
	return nil
}
