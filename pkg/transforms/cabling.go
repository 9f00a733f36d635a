/*
 * Copyright 2025 NVIDIA CORPORATION
 * SPDX-License-Identifier: Apache-2.0
 */

package transforms

import (
	"encoding/csv"
	"io"
	"slices"

	"sigs.k8s.io/yaml"

	"github.com/NVIDIA/fabricgen/internal/names"
)

var csvHeader = []string{"source_device", "source_interface", "destination_device", "destination_interface", "cable"}

// Row is a single cable of the cabling export
type Row struct {
	SourceDevice         string `json:"source_device"`
	SourceInterface      string `json:"source_interface"`
	DestinationDevice    string `json:"destination_device"`
	DestinationInterface string `json:"destination_interface"`
	Cable                string `json:"cable"`
}

func (r *Row) record() []string {
	return []string{r.SourceDevice, r.SourceInterface, r.DestinationDevice, r.DestinationInterface, r.Cable}
}

// sortRows returns the rows in natural order of source and destination endpoints
func sortRows(rows []Row) []Row {
	sorted := slices.Clone(rows)
	slices.SortStableFunc(sorted, func(a, b Row) int {
		ra, rb := a.record(), b.record()
		for i := range ra {
			if c := names.Compare(ra[i], rb[i]); c != 0 {
				return c
			}
		}
		return 0
	})
	return sorted
}

// CablingCSV writes the cabling plan as CSV, one cable per line
func CablingCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, row := range sortRows(rows) {
		if err := cw.Write(row.record()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// CablingYAML returns the cabling plan as a YAML list
func CablingYAML(rows []Row) ([]byte, error) {
	sorted := sortRows(rows)
	if sorted == nil {
		sorted = []Row{}
	}
	return yaml.Marshal(sorted)
}
