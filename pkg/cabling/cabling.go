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

// Package cabling computes deterministic cabling plans between two layers of switches.
//
// Source device i is connected to every destination device j. The source side uses
// port j of source i. The destination side uses port (offset+i) mod n of destination j,
// where n is the port count of destination j and offset shifts the window of
// destination ports so that consecutive pods or racks land on distinct ports.
// Devices and ports are ordered by natural name order before planning, so the
// plan does not depend on the order the inputs were read in.
package cabling

import (
	"errors"
	"fmt"
	"slices"

	"k8s.io/klog/v2"

	"github.com/NVIDIA/fabricgen/internal/names"
)

type Scenario string

const (
	// ScenarioPod connects the spines of a pod to the super-spines of the data center
	ScenarioPod Scenario = "pod"
	// ScenarioRack connects the leafs of a rack to the spines of its pod
	ScenarioRack Scenario = "rack"
	// ScenarioIntraRack connects the ToRs of a rack to the leafs of the same rack
	ScenarioIntraRack Scenario = "intra_rack"
)

type Port struct {
	ID      string
	Name    string
	CableID string
}

type Device struct {
	ID    string
	Name  string
	Ports []Port
}

type Endpoint struct {
	DeviceID string
	Device   string
	PortID   string
	Port     string
	CableID  string
}

type Connection struct {
	Source      Endpoint
	Destination Endpoint
}

// CableName names the cable after both of its endpoints
func (c *Connection) CableName() string {
	return fmt.Sprintf("%s:%s__%s:%s", c.Source.Device, c.Source.Port, c.Destination.Device, c.Destination.Port)
}

func (c *Connection) String() string {
	return fmt.Sprintf("%s %s -> %s %s", c.Source.Device, c.Source.Port, c.Destination.Device, c.Destination.Port)
}

type Planner struct {
	sources      []Device
	destinations []Device
}

// NewPlanner copies the devices and orders devices and ports by name
func NewPlanner(sources, destinations []Device) *Planner {
	return &Planner{
		sources:      sortDevices(sources),
		destinations: sortDevices(destinations),
	}
}

func sortDevices(devices []Device) []Device {
	res := make([]Device, 0, len(devices))
	for _, dev := range devices {
		ports := slices.Clone(dev.Ports)
		slices.SortStableFunc(ports, func(a, b Port) int { return names.Compare(a.Name, b.Name) })
		res = append(res, Device{ID: dev.ID, Name: dev.Name, Ports: ports})
	}
	slices.SortStableFunc(res, func(a, b Device) int { return names.Compare(a.Name, b.Name) })
	return res
}

// Offset returns the destination port offset for the 1-based index of a pod or rack
func Offset(scenario Scenario, index, sourcesPerGroup int) (int, error) {
	switch scenario {
	case ScenarioPod, ScenarioRack:
		if index < 1 {
			return 0, fmt.Errorf("invalid %s index %d", scenario, index)
		}
		if sourcesPerGroup < 0 {
			return 0, fmt.Errorf("invalid number of devices per %s: %d", scenario, sourcesPerGroup)
		}
		return (index - 1) * sourcesPerGroup, nil
	case ScenarioIntraRack:
		return 0, nil
	default:
		return 0, fmt.Errorf("unsupported cabling scenario %q", scenario)
	}
}

// Validate checks that every device has enough ports for a full mesh between the layers
func (p *Planner) Validate(offset int) error {
	var errs []error
	if offset < 0 {
		errs = append(errs, fmt.Errorf("invalid negative offset %d", offset))
	}

	errs = append(errs, checkNames("source", p.sources)...)
	errs = append(errs, checkNames("destination", p.destinations)...)

	for _, dev := range p.sources {
		if len(dev.Ports) < len(p.destinations) {
			errs = append(errs, fmt.Errorf("source %s has %d ports, needs %d to reach every destination",
				dev.Name, len(dev.Ports), len(p.destinations)))
		}
	}
	for _, dev := range p.destinations {
		if len(dev.Ports) < len(p.sources) {
			errs = append(errs, fmt.Errorf("destination %s has %d ports, needs %d to reach every source",
				dev.Name, len(dev.Ports), len(p.sources)))
		}
	}

	return errors.Join(errs...)
}

func checkNames(side string, devices []Device) []error {
	var errs []error
	seen := make(map[string]bool, len(devices))
	for _, dev := range devices {
		if seen[dev.Name] {
			errs = append(errs, fmt.Errorf("duplicate %s device %s", side, dev.Name))
		}
		seen[dev.Name] = true

		ports := make(map[string]bool, len(dev.Ports))
		for _, port := range dev.Ports {
			if ports[port.Name] {
				errs = append(errs, fmt.Errorf("duplicate port %s on %s device %s", port.Name, side, dev.Name))
			}
			ports[port.Name] = true
		}
	}
	return errs
}

// Plan returns the connections ordered by source, then destination
func (p *Planner) Plan(offset int) ([]Connection, error) {
	if err := p.Validate(offset); err != nil {
		return nil, err
	}

	plan := make([]Connection, 0, len(p.sources)*len(p.destinations))
	for i, src := range p.sources {
		for j, dst := range p.destinations {
			n := len(dst.Ports)
			k := (offset + i) % n
			if offset+i >= n {
				klog.V(4).Infof("Destination %s wraps around to port %s for source %s", dst.Name, dst.Ports[k].Name, src.Name)
			}
			plan = append(plan, Connection{
				Source:      endpoint(&src, &src.Ports[j]),
				Destination: endpoint(&dst, &dst.Ports[k]),
			})
		}
	}

	return plan, nil
}

func endpoint(dev *Device, port *Port) Endpoint {
	return Endpoint{
		DeviceID: dev.ID,
		Device:   dev.Name,
		PortID:   port.ID,
		Port:     port.Name,
		CableID:  port.CableID,
	}
}

// ErrPortConflict is returned when a planned port is cabled to a device outside the planned sources
var ErrPortConflict = errors.New("port is cabled to another group")

// Changes is the difference between a plan and the cables already in place
type Changes struct {
	// Unchanged connections are already cabled as planned
	Unchanged []Connection
	// New connections need a cable
	New []Connection
	// Stale cables of the planned sources occupy a planned port without matching the plan
	Stale []string
}

// Diff compares a plan with the cables recorded on its endpoints.
// A cable is stale only when one of its ends is a port of the planner's sources.
// A planned destination port held by a cable of another group is a conflict,
// and cables on ports outside the plan are left alone.
func (p *Planner) Diff(plan []Connection) (*Changes, error) {
	owned := make(map[string]bool)
	for _, dev := range p.sources {
		for _, port := range dev.Ports {
			if len(port.CableID) != 0 {
				owned[port.CableID] = true
			}
		}
	}

	changes := &Changes{}
	keep := make(map[string]bool)
	for _, conn := range plan {
		if cable := conn.Source.CableID; len(cable) != 0 && cable == conn.Destination.CableID {
			changes.Unchanged = append(changes.Unchanged, conn)
			keep[cable] = true
		} else {
			changes.New = append(changes.New, conn)
		}
	}

	var errs []error
	stale := make(map[string]bool)
	for _, conn := range changes.New {
		if cable := conn.Destination.CableID; len(cable) != 0 && !owned[cable] {
			errs = append(errs, fmt.Errorf("%w: %s %s is held by cable %s, planned for %s %s",
				ErrPortConflict, conn.Destination.Device, conn.Destination.Port, cable, conn.Source.Device, conn.Source.Port))
			continue
		}
		for _, cable := range []string{conn.Source.CableID, conn.Destination.CableID} {
			if len(cable) != 0 && !keep[cable] && !stale[cable] {
				stale[cable] = true
				changes.Stale = append(changes.Stale, cable)
			}
		}
	}
	if len(errs) != 0 {
		return nil, errors.Join(errs...)
	}

	return changes, nil
}
