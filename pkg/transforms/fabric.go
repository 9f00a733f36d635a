/*
 * Copyright 2025 NVIDIA CORPORATION
 * SPDX-License-Identifier: Apache-2.0
 */

package transforms

import (
	"context"
	"fmt"
	"net/netip"
	"slices"

	"k8s.io/klog/v2"

	"github.com/NVIDIA/fabricgen/internal/names"
	"github.com/NVIDIA/fabricgen/pkg/design"
	"github.com/NVIDIA/fabricgen/pkg/infrahub"
)

// Fabric is the generated inventory of a data center
type Fabric struct {
	Name    string
	Pattern *design.Pattern
	// Counts holds the data center amounts and the largest per-pod amounts
	Counts design.Counts
	Pools  []*PoolUsage
	Cables []Row
	Tree   *Switch
}

type podCounts struct {
	racks, leafs, tors int
}

// Load reads the data center with the given ID and everything located in it
func Load(ctx context.Context, c infrahub.Client, branch, id string) (*Fabric, error) {
	dc, err := infrahub.Get(ctx, c, branch, &infrahub.Query{
		Kind:       infrahub.KindDataCenter,
		IDs:        []string{id},
		Attributes: []string{infrahub.AttrName, infrahub.AttrSuperSpines},
		Peer:       []string{infrahub.RelDesignPattern, infrahub.RelLoopbackPool, infrahub.RelManagementPool},
	})
	if err != nil {
		return nil, err
	}
	patternID := dc.PeerID(infrahub.RelDesignPattern)
	if len(patternID) == 0 {
		return nil, fmt.Errorf("data center %s has no design pattern", dc.Name())
	}
	pattern, err := design.Get(ctx, c, branch, patternID)
	if err != nil {
		return nil, err
	}

	f := &Fabric{
		Name:    dc.Name(),
		Pattern: pattern,
		Counts:  design.Counts{SuperSpines: dc.Int(infrahub.AttrSuperSpines)},
		Tree:    &Switch{Name: dc.Name()},
	}

	locations := map[string]*Switch{dc.ID: f.Tree}
	if err := f.loadLocations(ctx, c, branch, dc, locations); err != nil {
		return nil, err
	}
	devices, err := f.loadDevices(ctx, c, branch, locations)
	if err != nil {
		return nil, err
	}
	if f.Cables, err = loadCables(ctx, c, branch, devices); err != nil {
		return nil, err
	}

	for _, poolID := range []string{dc.PeerID(infrahub.RelLoopbackPool), dc.PeerID(infrahub.RelManagementPool)} {
		if len(poolID) == 0 {
			continue
		}
		usage, err := loadPool(ctx, c, branch, poolID)
		if err != nil {
			return nil, err
		}
		f.Pools = append(f.Pools, usage)
	}

	sortTree(f.Tree)
	klog.V(4).Infof("Loaded data center %s with %d devices and %d cables", f.Name, len(devices), len(f.Cables))
	return f, nil
}

func (f *Fabric) loadLocations(ctx context.Context, c infrahub.Client, branch string, dc *infrahub.Node, locations map[string]*Switch) error {
	pods, err := c.Filter(ctx, branch, &infrahub.Query{
		Kind:       infrahub.KindPod,
		Filters:    map[string]any{infrahub.RelParent + "__ids": []string{dc.ID}},
		Attributes: []string{infrahub.AttrName, infrahub.AttrSpines},
	})
	if err != nil {
		return err
	}
	f.Counts.Pods = len(pods)
	if len(pods) == 0 {
		return nil
	}

	podIDs := make([]string, 0, len(pods))
	for _, pod := range pods {
		sw := &Switch{Name: pod.Name()}
		f.Tree.Switches = append(f.Tree.Switches, sw)
		locations[pod.ID] = sw
		podIDs = append(podIDs, pod.ID)
		f.Counts.Spines = max(f.Counts.Spines, pod.Int(infrahub.AttrSpines))
	}

	racks, err := c.Filter(ctx, branch, &infrahub.Query{
		Kind:       infrahub.KindRack,
		Filters:    map[string]any{infrahub.RelPod + "__ids": podIDs},
		Attributes: []string{infrahub.AttrName, infrahub.AttrLeafs, infrahub.AttrTors},
		Peer:       []string{infrahub.RelPod},
	})
	if err != nil {
		return err
	}

	perPod := make(map[string]*podCounts)
	for _, rack := range racks {
		podID := rack.PeerID(infrahub.RelPod)
		parent, ok := locations[podID]
		if !ok {
			continue
		}
		sw := &Switch{Name: rack.Name()}
		parent.Switches = append(parent.Switches, sw)
		locations[rack.ID] = sw

		pc, ok := perPod[podID]
		if !ok {
			pc = &podCounts{}
			perPod[podID] = pc
		}
		pc.racks++
		pc.leafs += rack.Int(infrahub.AttrLeafs)
		pc.tors += rack.Int(infrahub.AttrTors)
	}
	for _, pc := range perPod {
		f.Counts.Racks = max(f.Counts.Racks, pc.racks)
		f.Counts.Leafs = max(f.Counts.Leafs, pc.leafs)
		f.Counts.Tors = max(f.Counts.Tors, pc.tors)
	}
	return nil
}

func (f *Fabric) loadDevices(ctx context.Context, c infrahub.Client, branch string, locations map[string]*Switch) (map[string]string, error) {
	ids := make([]string, 0, len(locations))
	for id := range locations {
		ids = append(ids, id)
	}

	nodes, err := c.Filter(ctx, branch, &infrahub.Query{
		Kind:       infrahub.KindDevice,
		Filters:    map[string]any{infrahub.RelLocation + "__ids": ids},
		Attributes: []string{infrahub.AttrName},
		Peer:       []string{infrahub.RelLocation},
	})
	if err != nil {
		return nil, err
	}

	devices := make(map[string]string, len(nodes))
	for _, node := range nodes {
		devices[node.ID] = node.Name()
		if sw, ok := locations[node.PeerID(infrahub.RelLocation)]; ok {
			sw.Nodes = append(sw.Nodes, node.Name())
		}
	}
	return devices, nil
}

type endpoint struct {
	device, iface string
}

func loadCables(ctx context.Context, c infrahub.Client, branch string, devices map[string]string) ([]Row, error) {
	if len(devices) == 0 {
		return nil, nil
	}
	deviceIDs := make([]string, 0, len(devices))
	for id := range devices {
		deviceIDs = append(deviceIDs, id)
	}

	ifaces, err := c.Filter(ctx, branch, &infrahub.Query{
		Kind:       infrahub.KindInterface,
		Filters:    map[string]any{infrahub.RelDevice + "__ids": deviceIDs},
		Attributes: []string{infrahub.AttrName},
		Peer:       []string{infrahub.RelDevice},
	})
	if err != nil {
		return nil, err
	}
	if len(ifaces) == 0 {
		return nil, nil
	}

	endpoints := make(map[string]endpoint, len(ifaces))
	ifaceIDs := make([]string, 0, len(ifaces))
	for _, iface := range ifaces {
		endpoints[iface.ID] = endpoint{device: devices[iface.PeerID(infrahub.RelDevice)], iface: iface.Name()}
		ifaceIDs = append(ifaceIDs, iface.ID)
	}

	cables, err := c.Filter(ctx, branch, &infrahub.Query{
		Kind:       infrahub.KindCable,
		Filters:    map[string]any{infrahub.RelEndpoints + "__ids": ifaceIDs},
		Attributes: []string{infrahub.AttrName},
		Peers:      []string{infrahub.RelEndpoints},
	})
	if err != nil {
		return nil, err
	}

	rows := make([]Row, 0, len(cables))
	for _, cable := range cables {
		ids := cable.PeerIDs(infrahub.RelEndpoints)
		if len(ids) != 2 {
			klog.Warningf("Cable %s has %d endpoints; skipping", cable.Name(), len(ids))
			continue
		}
		src, ok1 := endpoints[ids[0]]
		dst, ok2 := endpoints[ids[1]]
		if !ok1 || !ok2 {
			klog.V(4).Infof("Cable %s leaves the data center; skipping", cable.Name())
			continue
		}
		rows = append(rows, Row{
			SourceDevice:         src.device,
			SourceInterface:      src.iface,
			DestinationDevice:    dst.device,
			DestinationInterface: dst.iface,
			Cable:                cable.Name(),
		})
	}
	return rows, nil
}

func loadPool(ctx context.Context, c infrahub.Client, branch, id string) (*PoolUsage, error) {
	pool, err := infrahub.Get(ctx, c, branch, &infrahub.Query{
		Kind:       infrahub.KindAddressPool,
		IDs:        []string{id},
		Attributes: []string{infrahub.AttrName, infrahub.AttrPrefix},
	})
	if err != nil {
		return nil, err
	}
	prefix, err := netip.ParsePrefix(pool.String(infrahub.AttrPrefix))
	if err != nil {
		return nil, fmt.Errorf("pool %s has invalid prefix: %v", pool.Name(), err)
	}

	addresses, err := c.Filter(ctx, branch, &infrahub.Query{
		Kind:       infrahub.KindIPAddress,
		Filters:    map[string]any{infrahub.RelPool + "__ids": []string{id}},
		Attributes: []string{infrahub.AttrAddress},
	})
	if err != nil {
		return nil, err
	}

	allocated := make([]netip.Prefix, 0, len(addresses))
	for _, addr := range addresses {
		p, err := netip.ParsePrefix(addr.String(infrahub.AttrAddress))
		if err != nil {
			return nil, fmt.Errorf("pool %s: %v", pool.Name(), err)
		}
		allocated = append(allocated, netip.PrefixFrom(p.Addr(), p.Addr().BitLen()))
	}

	return NewPoolUsage(pool.Name(), prefix, allocated)
}

func sortTree(sw *Switch) {
	slices.SortFunc(sw.Switches, func(a, b *Switch) int { return names.Compare(a.Name, b.Name) })
	names.SortNatural(sw.Nodes)
	for _, child := range sw.Switches {
		sortTree(child)
	}
}
