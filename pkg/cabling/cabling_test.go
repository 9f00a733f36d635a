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

package cabling

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func device(name, prefix string, n int) Device {
	dev := Device{ID: "id-" + name, Name: name}
	for k := 1; k <= n; k++ {
		port := fmt.Sprintf("%s%d", prefix, k)
		dev.Ports = append(dev.Ports, Port{ID: name + ":" + port, Name: port})
	}
	return dev
}

func layer(prefix string, count int, portPrefix string, ports int) []Device {
	devices := make([]Device, 0, count)
	for i := 1; i <= count; i++ {
		devices = append(devices, device(fmt.Sprintf("%s-%d", prefix, i), portPrefix, ports))
	}
	return devices
}

func shuffle(devices []Device, seed int64) []Device {
	r := rand.New(rand.NewSource(seed))
	res := make([]Device, 0, len(devices))
	for _, dev := range devices {
		ports := append([]Port{}, dev.Ports...)
		r.Shuffle(len(ports), func(i, j int) { ports[i], ports[j] = ports[j], ports[i] })
		res = append(res, Device{ID: dev.ID, Name: dev.Name, Ports: ports})
	}
	r.Shuffle(len(res), func(i, j int) { res[i], res[j] = res[j], res[i] })
	return res
}

func describe(plan []Connection) []string {
	res := make([]string, 0, len(plan))
	for _, conn := range plan {
		res = append(res, conn.String())
	}
	return res
}

func TestOffset(t *testing.T) {
	testCases := []struct {
		name     string
		scenario Scenario
		index    int
		perGroup int
		offset   int
		err      string
	}{
		{
			name:     "Case 1: first pod",
			scenario: ScenarioPod,
			index:    1,
			perGroup: 4,
			offset:   0,
		},
		{
			name:     "Case 2: third pod",
			scenario: ScenarioPod,
			index:    3,
			perGroup: 4,
			offset:   8,
		},
		{
			name:     "Case 3: second rack",
			scenario: ScenarioRack,
			index:    2,
			perGroup: 2,
			offset:   2,
		},
		{
			name:     "Case 4: intra rack ignores the index",
			scenario: ScenarioIntraRack,
			index:    7,
			perGroup: 2,
			offset:   0,
		},
		{
			name:     "Case 5: zero index",
			scenario: ScenarioRack,
			perGroup: 2,
			err:      "invalid rack index 0",
		},
		{
			name:     "Case 6: negative group size",
			scenario: ScenarioPod,
			index:    1,
			perGroup: -1,
			err:      "invalid number of devices per pod: -1",
		},
		{
			name:     "Case 7: unknown scenario",
			scenario: "row",
			index:    1,
			err:      `unsupported cabling scenario "row"`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			offset, err := Offset(tc.scenario, tc.index, tc.perGroup)
			if len(tc.err) != 0 {
				require.EqualError(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.offset, offset)
		})
	}
}

func TestPlan(t *testing.T) {
	testCases := []struct {
		name         string
		sources      []Device
		destinations []Device
		offset       int
		plan         []string
		err          string
	}{
		{
			name:         "Case 1: second pod of two spines",
			sources:      layer("spine", 2, "Ethernet1/", 2),
			destinations: layer("super-spine", 2, "Ethernet1/", 8),
			offset:       2,
			plan: []string{
				"spine-1 Ethernet1/1 -> super-spine-1 Ethernet1/3",
				"spine-1 Ethernet1/2 -> super-spine-2 Ethernet1/3",
				"spine-2 Ethernet1/1 -> super-spine-1 Ethernet1/4",
				"spine-2 Ethernet1/2 -> super-spine-2 Ethernet1/4",
			},
		},
		{
			name:         "Case 2: ports are ordered naturally",
			sources:      layer("leaf", 2, "Ethernet", 1),
			destinations: []Device{device("spine-1", "Ethernet1/", 10)},
			offset:       8,
			plan: []string{
				"leaf-1 Ethernet1 -> spine-1 Ethernet1/9",
				"leaf-2 Ethernet1 -> spine-1 Ethernet1/10",
			},
		},
		{
			name:         "Case 3: destination ports wrap around",
			sources:      layer("leaf", 2, "Ethernet", 1),
			destinations: []Device{device("spine-1", "Ethernet1/", 10)},
			offset:       9,
			plan: []string{
				"leaf-1 Ethernet1 -> spine-1 Ethernet1/10",
				"leaf-2 Ethernet1 -> spine-1 Ethernet1/1",
			},
		},
		{
			name:         "Case 4: devices are ordered naturally",
			sources:      []Device{device("tor-10", "eth", 1), device("tor-2", "eth", 1)},
			destinations: []Device{device("leaf-1", "swp", 2)},
			plan: []string{
				"tor-2 eth1 -> leaf-1 swp1",
				"tor-10 eth1 -> leaf-1 swp2",
			},
		},
		{
			name:         "Case 5: no sources",
			destinations: layer("spine", 2, "Ethernet", 4),
			plan:         []string{},
		},
		{
			name:    "Case 6: no destinations",
			sources: layer("leaf", 2, "Ethernet", 4),
			plan:    []string{},
		},
		{
			name:         "Case 7: not enough source ports",
			sources:      []Device{device("spine-1", "Ethernet", 1), device("spine-2", "Ethernet", 2)},
			destinations: layer("super-spine", 2, "Ethernet", 4),
			err:          "source spine-1 has 1 ports, needs 2 to reach every destination",
		},
		{
			name:         "Case 8: not enough destination ports",
			sources:      layer("leaf", 3, "Ethernet", 2),
			destinations: []Device{device("spine-1", "Ethernet", 2), device("spine-2", "Ethernet", 3)},
			err:          "destination spine-1 has 2 ports, needs 3 to reach every source",
		},
		{
			name:         "Case 9: duplicates and negative offset",
			sources:      []Device{device("leaf-1", "Ethernet", 1), device("leaf-1", "Ethernet", 1)},
			destinations: []Device{{Name: "spine-1", Ports: []Port{{Name: "Ethernet1"}, {Name: "Ethernet1"}}}},
			offset:       -1,
			err: `invalid negative offset -1
duplicate source device leaf-1
duplicate port Ethernet1 on destination device spine-1`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			plan, err := NewPlanner(tc.sources, tc.destinations).Plan(tc.offset)
			if len(tc.err) != 0 {
				require.EqualError(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.plan, describe(plan))
		})
	}
}

func TestPlanEndpoints(t *testing.T) {
	sources := layer("spine", 1, "Ethernet", 1)
	sources[0].Ports[0].CableID = "c1"
	plan, err := NewPlanner(sources, layer("super-spine", 1, "Ethernet", 1)).Plan(0)
	require.NoError(t, err)
	require.Equal(t, []Connection{{
		Source:      Endpoint{DeviceID: "id-spine-1", Device: "spine-1", PortID: "spine-1:Ethernet1", Port: "Ethernet1", CableID: "c1"},
		Destination: Endpoint{DeviceID: "id-super-spine-1", Device: "super-spine-1", PortID: "super-spine-1:Ethernet1", Port: "Ethernet1"},
	}}, plan)
	require.Equal(t, "spine-1:Ethernet1__super-spine-1:Ethernet1", plan[0].CableName())
}

func TestPlanDoesNotModifyInput(t *testing.T) {
	sources := []Device{device("leaf-2", "Ethernet", 1), device("leaf-1", "Ethernet", 1)}
	_, err := NewPlanner(sources, layer("spine", 1, "Ethernet", 2)).Plan(0)
	require.NoError(t, err)
	require.Equal(t, "leaf-2", sources[0].Name)
}

func TestPlanIsDeterministic(t *testing.T) {
	sources := layer("leaf", 4, "Ethernet1/", 4)
	destinations := layer("spine", 4, "Ethernet1/", 32)

	expected, err := NewPlanner(sources, destinations).Plan(12)
	require.NoError(t, err)

	for seed := int64(1); seed <= 5; seed++ {
		plan, err := NewPlanner(shuffle(sources, seed), shuffle(destinations, seed*7)).Plan(12)
		require.NoError(t, err)
		require.Equal(t, expected, plan)
	}
}

func TestPlanUsesEveryPortOnce(t *testing.T) {
	for _, size := range []struct{ sources, destinations, ports, offset int }{
		{2, 2, 8, 0}, {4, 2, 8, 6}, {3, 5, 7, 13}, {8, 8, 8, 0}, {1, 16, 4, 3},
	} {
		t.Run(fmt.Sprintf("%dx%d/%d+%d", size.sources, size.destinations, size.ports, size.offset), func(t *testing.T) {
			sources := layer("src", size.sources, "p", size.destinations)
			destinations := layer("dst", size.destinations, "p", size.ports)
			plan, err := NewPlanner(sources, destinations).Plan(size.offset)
			require.NoError(t, err)
			require.Len(t, plan, size.sources*size.destinations)

			used := make(map[string]bool)
			for _, conn := range plan {
				for _, id := range []string{conn.Source.PortID, conn.Destination.PortID} {
					require.False(t, used[id], "port %s used twice", id)
					used[id] = true
				}
			}
		})
	}
}

func TestDiff(t *testing.T) {
	conn := func(src, srcCable, dst, dstCable string) Connection {
		return Connection{
			Source:      Endpoint{Device: src, Port: "up", PortID: src + ":up", CableID: srcCable},
			Destination: Endpoint{Device: dst, Port: "down", PortID: dst + ":down", CableID: dstCable},
		}
	}

	testCases := []struct {
		name      string
		plan      []Connection
		extra     map[string]string
		unchanged int
		created   int
		stale     []string
		err       string
	}{
		{
			name:    "Case 1: nothing cabled yet",
			plan:    []Connection{conn("a", "", "x", ""), conn("b", "", "y", "")},
			created: 2,
		},
		{
			name:      "Case 2: everything in place",
			plan:      []Connection{conn("a", "c1", "x", "c1"), conn("b", "c2", "y", "c2")},
			unchanged: 2,
		},
		{
			name:    "Case 3: cables crossed",
			plan:    []Connection{conn("a", "c1", "x", "c2"), conn("b", "c2", "y", "c1")},
			created: 2,
			stale:   []string{"c1", "c2"},
		},
		{
			name: "Case 4: destination taken by a cable from another group",
			plan: []Connection{conn("a", "c1", "x", "c1"), conn("b", "", "y", "c9")},
			err:  "port is cabled to another group: y down is held by cable c9, planned for b up",
		},
		{
			name:    "Case 5: source moved to another destination port",
			plan:    []Connection{conn("a", "c1", "x", "")},
			created: 1,
			stale:   []string{"c1"},
		},
		{
			name:    "Case 6: destination taken by an unplanned port of a source",
			plan:    []Connection{conn("b", "", "y", "c7")},
			extra:   map[string]string{"b": "c7"},
			created: 1,
			stale:   []string{"c7"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var sources []Device
			for _, c := range tc.plan {
				dev := Device{Name: c.Source.Device, Ports: []Port{{ID: c.Source.PortID, Name: c.Source.Port, CableID: c.Source.CableID}}}
				if cable, ok := tc.extra[dev.Name]; ok {
					dev.Ports = append(dev.Ports, Port{ID: dev.Name + ":spare", Name: "spare", CableID: cable})
				}
				sources = append(sources, dev)
			}

			changes, err := NewPlanner(sources, nil).Diff(tc.plan)
			if len(tc.err) != 0 {
				require.ErrorIs(t, err, ErrPortConflict)
				require.EqualError(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			require.Len(t, changes.Unchanged, tc.unchanged)
			require.Len(t, changes.New, tc.created)
			require.Equal(t, tc.stale, changes.Stale)
		})
	}
}
