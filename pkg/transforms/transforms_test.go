/*
 * Copyright 2025 NVIDIA CORPORATION
 * SPDX-License-Identifier: Apache-2.0
 */

package transforms

import (
	"bytes"
	"context"
	"net/netip"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/NVIDIA/fabricgen/pkg/design"
	"github.com/NVIDIA/fabricgen/pkg/generators"
	"github.com/NVIDIA/fabricgen/pkg/infrahub"
	"github.com/NVIDIA/fabricgen/pkg/infrahub/memory"
	"github.com/NVIDIA/fabricgen/pkg/models"
)

func TestPercent(t *testing.T) {
	require.Equal(t, 50.0, Percent(1, 2))
	require.Equal(t, 0.0, Percent(3, 0))
	require.Equal(t, 150.0, Percent(3, 2))
	require.Equal(t, "0.8%", FormatPercent(Percent(2, 256)))
	require.Equal(t, "100.0%", FormatPercent(100))
}

func TestPoolUtilization(t *testing.T) {
	testCases := []struct {
		name      string
		pool      string
		allocated []string
		util      float64
		err       string
	}{
		{
			name: "Case 1: empty pool",
			pool: "10.0.0.0/24",
		},
		{
			name:      "Case 2: addresses",
			pool:      "10.0.0.0/24",
			allocated: []string{"10.0.0.1/32", "10.0.0.2/32"},
			util:      0.78125,
		},
		{
			name:      "Case 3: prefixes",
			pool:      "10.2.0.0/16",
			allocated: []string{"10.2.0.0/24", "10.2.2.0/23"},
			util:      1.171875,
		},
		{
			name:      "Case 4: unmasked pool",
			pool:      "2001:db8::1/126",
			allocated: []string{"2001:db8::1/128", "2001:db8::2/128"},
			util:      50,
		},
		{
			name:      "Case 5: outside of pool",
			pool:      "10.0.0.0/24",
			allocated: []string{"10.1.0.1/32"},
			err:       "prefix 10.1.0.1/32 is outside of pool 10.0.0.0/24",
		},
		{
			name:      "Case 6: larger than pool",
			pool:      "10.0.0.0/24",
			allocated: []string{"10.0.0.0/16"},
			err:       "prefix 10.0.0.0/16 is outside of pool 10.0.0.0/24",
		},
		{
			name:      "Case 7: other address family",
			pool:      "2001:db8::/64",
			allocated: []string{"10.0.0.1/32"},
			err:       "prefix 10.0.0.1/32 is outside of pool 2001:db8::/64",
		},
		{
			name:      "Case 8: duplicate addresses",
			pool:      "10.0.0.0/30",
			allocated: []string{"10.0.0.1/32", "10.0.0.1/32", "10.0.0.1/32"},
			util:      25,
		},
		{
			name:      "Case 9: nested prefixes",
			pool:      "10.2.0.0/16",
			allocated: []string{"10.2.3.0/24", "10.2.2.5/32", "10.2.2.0/23", "10.2.0.0/24"},
			util:      1.171875,
		},
		{
			name:      "Case 10: overlaps never exceed the pool",
			pool:      "10.0.0.0/31",
			allocated: []string{"10.0.0.1/32", "10.0.0.0/31", "10.0.0.0/32"},
			util:      100,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			allocated := make([]netip.Prefix, 0, len(tc.allocated))
			for _, s := range tc.allocated {
				allocated = append(allocated, netip.MustParsePrefix(s))
			}
			util, err := PoolUtilization(netip.MustParsePrefix(tc.pool), allocated)
			if len(tc.err) != 0 {
				require.EqualError(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			require.InDelta(t, tc.util, util, 1e-9)
		})
	}

	_, err := PoolUtilization(netip.Prefix{}, nil)
	require.EqualError(t, err, "invalid pool prefix")
}

func TestCapacityReport(t *testing.T) {
	pattern := &design.Pattern{
		Name:               "small",
		MaximumSuperSpines: 2,
		MaximumPods:        2,
		MaximumSpines:      4,
		MaximumRacks:       2,
		MaximumLeafs:       8,
	}
	counts := design.Counts{SuperSpines: 2, Pods: 1, Spines: 3, Racks: 2, Leafs: 6}

	expected := `# dc1: design pattern small
ROLE          USED  MAXIMUM  UTILIZATION
super spines  2     2        100.0%
pods          1     2        50.0%
spines        3     4        75.0%
racks         2     2        100.0%
leafs         6     8        75.0%
tors          0     0        0.0%
`
	buf := &bytes.Buffer{}
	require.NoError(t, CapacityReport(buf, "dc1", pattern, counts))
	require.Equal(t, expected, buf.String())

	loopbacks, err := NewPoolUsage("loopbacks", netip.MustParsePrefix("10.0.0.0/24"),
		[]netip.Prefix{netip.MustParsePrefix("10.0.0.1/32"), netip.MustParsePrefix("10.0.0.2/32")})
	require.NoError(t, err)
	links, err := NewPoolUsage("fabric-links", netip.MustParsePrefix("10.100.0.0/16"), nil)
	require.NoError(t, err)

	expected = `POOL          PREFIX         ALLOCATED  UTILIZATION
loopbacks     10.0.0.0/24    2          0.8%
fabric-links  10.100.0.0/16  0          0.0%
`
	buf.Reset()
	require.NoError(t, PoolReport(buf, []*PoolUsage{loopbacks, links}))
	require.Equal(t, expected, buf.String())

	buf.Reset()
	require.NoError(t, PoolReport(buf, nil))
	require.Empty(t, buf.String())

	_, err = NewPoolUsage("loopbacks", netip.MustParsePrefix("10.0.0.0/24"), []netip.Prefix{netip.MustParsePrefix("10.0.1.1/32")})
	require.EqualError(t, err, "pool loopbacks: prefix 10.0.1.1/32 is outside of pool 10.0.0.0/24")
}

var testRows = []Row{
	{SourceDevice: "leaf-10", SourceInterface: "eth1", DestinationDevice: "spine-1", DestinationInterface: "eth10", Cable: "c3"},
	{SourceDevice: "leaf-9", SourceInterface: "eth2", DestinationDevice: "spine-2", DestinationInterface: "eth9", Cable: "c2"},
	{SourceDevice: "leaf-9", SourceInterface: "eth1", DestinationDevice: "spine-1", DestinationInterface: "eth9", Cable: "c1"},
}

func TestCablingCSV(t *testing.T) {
	expected := `source_device,source_interface,destination_device,destination_interface,cable
leaf-9,eth1,spine-1,eth9,c1
leaf-9,eth2,spine-2,eth9,c2
leaf-10,eth1,spine-1,eth10,c3
`
	buf := &bytes.Buffer{}
	require.NoError(t, CablingCSV(buf, testRows))
	require.Equal(t, expected, buf.String())
	require.Equal(t, "c3", testRows[0].Cable)

	buf.Reset()
	require.NoError(t, CablingCSV(buf, nil))
	require.Equal(t, "source_device,source_interface,destination_device,destination_interface,cable\n", buf.String())
}

func TestCablingYAML(t *testing.T) {
	expected := `- cable: c1
  destination_device: spine-1
  destination_interface: eth9
  source_device: leaf-9
  source_interface: eth1
- cable: c2
  destination_device: spine-2
  destination_interface: eth9
  source_device: leaf-9
  source_interface: eth2
- cable: c3
  destination_device: spine-1
  destination_interface: eth10
  source_device: leaf-10
  source_interface: eth1
`
	data, err := CablingYAML(testRows)
	require.NoError(t, err)
	require.Equal(t, expected, string(data))

	data, err = CablingYAML(nil)
	require.NoError(t, err)
	require.Equal(t, "[]\n", string(data))
}

func TestSwitchTree(t *testing.T) {
	testCases := []struct {
		name     string
		root     *Switch
		expected string
	}{
		{
			name: "Case 1: no tree",
		},
		{
			name:     "Case 2: empty location",
			root:     &Switch{Name: "dc1"},
			expected: "",
		},
		{
			name: "Case 3: locations and devices",
			root: &Switch{
				Name:  "dc1",
				Nodes: []string{"ss-01", "ss-02"},
				Switches: []*Switch{
					{
						Name:  "pod-1",
						Nodes: []string{"spine-1", "spine-2", "spine-4"},
						Switches: []*Switch{
							{Name: "rack-1", Nodes: []string{"leaf-07", "leaf-08", "tor-1"}},
							{Name: "rack-2"},
						},
					},
					{Name: "pod-2", Nodes: []string{"spine-5"}},
				},
			},
			expected: `SwitchName=dc1 Switches=pod-[1-2]
SwitchName=dc1 Nodes=ss-[01-02]
SwitchName=pod-1 Switches=rack-[1-2]
SwitchName=pod-1 Nodes=spine-[1-2,4]
SwitchName=pod-2 Nodes=spine-5
SwitchName=rack-1 Nodes=leaf-[07-08],tor-1
`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			require.NoError(t, SwitchTree(buf, tc.root))
			require.Equal(t, tc.expected, buf.String())
		})
	}
}

func generate(t *testing.T, client infrahub.Client, dcID string) {
	queue := []*generators.Request{{Generator: generators.NameFabric, NodeID: dcID}}
	for len(queue) != 0 {
		res, err := generators.DefaultRegistry().Run(context.TODO(), generators.Config{Client: client}, queue[0])
		require.NoError(t, err)
		queue = append(queue[1:], res.Downstream...)
	}
}

func TestLoad(t *testing.T) {
	ctx := context.TODO()
	client, s, err := models.NewClientFromFile(ctx, "../../tests/models/small.yaml")
	require.NoError(t, err)
	dc, err := s.Get(infrahub.KindDataCenter, "dc1")
	require.NoError(t, err)

	// nothing generated yet
	f, err := Load(ctx, client, memory.DefaultBranch, dc.ID)
	require.NoError(t, err)
	require.Empty(t, f.Cables)
	require.Equal(t, 0, f.Pools[0].Allocated)

	generate(t, client, dc.ID)

	f, err = Load(ctx, client, memory.DefaultBranch, dc.ID)
	require.NoError(t, err)
	require.Equal(t, "dc1", f.Name)
	require.Equal(t, "small", f.Pattern.Name)
	require.Equal(t, design.Counts{SuperSpines: 2, Pods: 2, Spines: 2, Racks: 2, Leafs: 4, Tors: 4}, f.Counts)
	require.Len(t, f.Cables, 8+8+8+4)

	require.Len(t, f.Pools, 2)
	require.Equal(t, "loopbacks", f.Pools[0].Name)
	require.Equal(t, 12, f.Pools[0].Allocated)
	require.InDelta(t, 4.6875, f.Pools[0].Utilization, 1e-9)
	require.Equal(t, "management", f.Pools[1].Name)
	require.Equal(t, 16, f.Pools[1].Allocated)

	buf := &bytes.Buffer{}
	require.NoError(t, Render(buf, NameTree, f))
	require.Equal(t, `SwitchName=dc1 Switches=dc1-pod-[1-2]
SwitchName=dc1 Nodes=dc1-super-spine-[01-02]
SwitchName=dc1-pod-1 Switches=dc1-pod-1-rack-[1-2]
SwitchName=dc1-pod-1 Nodes=dc1-pod-1-spine-[01-02]
SwitchName=dc1-pod-2 Switches=dc1-pod-2-rack-1
SwitchName=dc1-pod-2 Nodes=dc1-pod-2-spine-[01-02]
SwitchName=dc1-pod-1-rack-1 Nodes=dc1-pod-1-rack-1-leaf-[01-02],dc1-pod-1-rack-1-tor-[01-02]
SwitchName=dc1-pod-1-rack-2 Nodes=dc1-pod-1-rack-2-leaf-[01-02],dc1-pod-1-rack-2-tor-[01-02]
SwitchName=dc1-pod-2-rack-1 Nodes=dc1-pod-2-rack-1-leaf-[01-02]
`, buf.String())

	buf.Reset()
	require.NoError(t, Render(buf, NameCablingCSV, f))
	lines := strings.Split(buf.String(), "\n")
	require.Len(t, lines, 1+28+1)
	require.Equal(t, []string{
		"source_device,source_interface,destination_device,destination_interface,cable",
		"dc1-pod-1-rack-1-leaf-01,Ethernet1/1,dc1-pod-1-spine-01,Ethernet1/3,dc1-pod-1-rack-1-leaf-01:Ethernet1/1__dc1-pod-1-spine-01:Ethernet1/3",
		"dc1-pod-1-rack-1-leaf-01,Ethernet1/2,dc1-pod-1-spine-02,Ethernet1/3,dc1-pod-1-rack-1-leaf-01:Ethernet1/2__dc1-pod-1-spine-02:Ethernet1/3",
	}, lines[:3])

	buf.Reset()
	require.NoError(t, Render(buf, NameCapacity, f))
	require.True(t, strings.HasPrefix(buf.String(), "# dc1: design pattern small\n"))
	require.Contains(t, buf.String(), "super spines  2     2        100.0%\n")
	require.Contains(t, buf.String(), "\nPOOL ")

	buf.Reset()
	require.NoError(t, Render(buf, NameCablingYAML, f))
	require.True(t, strings.HasPrefix(buf.String(), "- cable: dc1-pod-1-rack-1-leaf-01:Ethernet1/1__dc1-pod-1-spine-01:Ethernet1/3\n"))

	err = Render(buf, "graph", f)
	require.ErrorIs(t, err, ErrUnsupportedTransform)
	require.EqualError(t, err, `unsupported transform "graph"`)

	_, err = Load(ctx, client, memory.DefaultBranch, "missing")
	require.ErrorIs(t, err, infrahub.ErrNotFound)
}

func TestContentType(t *testing.T) {
	require.Equal(t, "text/csv", ContentType(NameCablingCSV))
	require.Equal(t, "application/yaml", ContentType(NameCablingYAML))
	require.Equal(t, "text/plain", ContentType(NameTree))
}
