/*
 * Copyright 2025 NVIDIA CORPORATION
 * SPDX-License-Identifier: Apache-2.0
 */

// Package transforms renders reports of a generated data center:
// design pattern capacity, cabling exports and the switch hierarchy.
package transforms

import (
	"errors"
	"fmt"
	"io"
)

const (
	NameCapacity    = "capacity"
	NameCablingCSV  = "cabling-csv"
	NameCablingYAML = "cabling-yaml"
	NameTree        = "tree"
)

var ErrUnsupportedTransform = errors.New("unsupported transform")

// Validate checks that the named transform exists
func Validate(name string) error {
	switch name {
	case NameCapacity, NameCablingCSV, NameCablingYAML, NameTree:
		return nil
	default:
		return fmt.Errorf("%w %q", ErrUnsupportedTransform, name)
	}
}

// ContentType returns the media type of a transform output
func ContentType(name string) string {
	switch name {
	case NameCablingCSV:
		return "text/csv"
	case NameCablingYAML:
		return "application/yaml"
	default:
		return "text/plain"
	}
}

// Render writes the named report of the fabric
func Render(w io.Writer, name string, f *Fabric) error {
	if err := Validate(name); err != nil {
		return err
	}

	switch name {
	case NameCapacity:
		if err := CapacityReport(w, f.Name, f.Pattern, f.Counts); err != nil {
			return err
		}
		if len(f.Pools) == 0 {
			return nil
		}
		if _, err := io.WriteString(w, "\n"); err != nil {
			return err
		}
		return PoolReport(w, f.Pools)
	case NameCablingCSV:
		return CablingCSV(w, f.Cables)
	case NameCablingYAML:
		data, err := CablingYAML(f.Cables)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	case NameTree:
		return SwitchTree(w, f.Tree)
	}
	return nil
}
