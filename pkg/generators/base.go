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

package generators

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"k8s.io/klog/v2"

	"github.com/NVIDIA/fabricgen/internal/names"
	"github.com/NVIDIA/fabricgen/pkg/cabling"
	"github.com/NVIDIA/fabricgen/pkg/checksum"
	"github.com/NVIDIA/fabricgen/pkg/design"
	"github.com/NVIDIA/fabricgen/pkg/infrahub"
	"github.com/NVIDIA/fabricgen/pkg/infrahub/store"
	"github.com/NVIDIA/fabricgen/pkg/metrics"
)

// base carries what every generator needs to talk to the platform
type base struct {
	name      string
	client    infrahub.Client
	batchSize int
	branch    string
	store     *store.Store
}

func newBase(name string, cfg Config) (*base, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("%s generator: platform client is not set", name)
	}
	return &base{
		name:      name,
		client:    cfg.Client,
		batchSize: cfg.BatchSize,
	}, nil
}

// begin resets the per-run state
func (b *base) begin(req *Request) {
	b.branch = req.Branch
	b.store = store.New()
}

func (b *base) get(ctx context.Context, q *infrahub.Query) (*infrahub.Node, error) {
	return infrahub.Get(ctx, b.client, b.branch, q)
}

func (b *base) save(ctx context.Context, nodes ...*infrahub.Node) ([]*infrahub.Node, error) {
	batch := infrahub.NewBatch(b.client, b.branch, b.batchSize)
	batch.Add(nodes...)
	return batch.Execute(ctx)
}

// dataCenter loads the data center with its design pattern and resource pools
func (b *base) dataCenter(ctx context.Context, id string) (*infrahub.Node, *design.Pattern, error) {
	if len(id) == 0 {
		return nil, nil, fmt.Errorf("data center is not set")
	}
	dc, err := b.get(ctx, &infrahub.Query{
		Kind:       infrahub.KindDataCenter,
		IDs:        []string{id},
		Attributes: []string{infrahub.AttrName, infrahub.AttrSuperSpines},
		Peer: []string{infrahub.RelDesignPattern, infrahub.RelSuperSpineTmpl,
			infrahub.RelLoopbackPool, infrahub.RelManagementPool},
	})
	if err != nil {
		return nil, nil, err
	}

	patternID := dc.PeerID(infrahub.RelDesignPattern)
	if len(patternID) == 0 {
		return nil, nil, fmt.Errorf("data center %s has no design pattern", dc.Name())
	}
	pattern, err := design.Get(ctx, b.client, b.branch, patternID)
	if err != nil {
		return nil, nil, err
	}

	return dc, pattern, nil
}

func (b *base) check(pattern *design.Pattern, counts design.Counts) error {
	if err := pattern.Check(counts); err != nil {
		metrics.AddValidationError("design_pattern")
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return nil
}

type interfaceTemplate struct {
	name string
	role string
}

type template struct {
	id         string
	name       string
	platform   string
	interfaces []interfaceTemplate
}

func (b *base) loadTemplate(ctx context.Context, id, role string) (*template, error) {
	if len(id) == 0 {
		return nil, fmt.Errorf("missing %s template", role)
	}
	node, err := b.get(ctx, &infrahub.Query{
		Kind:       infrahub.KindDeviceTemplate,
		IDs:        []string{id},
		Attributes: []string{infrahub.AttrName, infrahub.AttrPlatform},
	})
	if err != nil {
		return nil, err
	}

	ifaces, err := b.client.Filter(ctx, b.branch, &infrahub.Query{
		Kind:       infrahub.KindInterfaceTemplate,
		Filters:    map[string]any{infrahub.RelTemplate + "__ids": []string{id}},
		Attributes: []string{infrahub.AttrName, infrahub.AttrRole},
	})
	if err != nil {
		return nil, err
	}

	tmpl := &template{
		id:         node.ID,
		name:       node.Name(),
		platform:   node.String(infrahub.AttrPlatform),
		interfaces: make([]interfaceTemplate, 0, len(ifaces)),
	}
	for _, iface := range ifaces {
		tmpl.interfaces = append(tmpl.interfaces, interfaceTemplate{name: iface.Name(), role: iface.String(infrahub.AttrRole)})
	}
	sortInterfaces(tmpl.interfaces)

	klog.V(4).Infof("Loaded %s template %s with %d interfaces", role, tmpl.name, len(tmpl.interfaces))
	return tmpl, nil
}

func sortInterfaces(ifaces []interfaceTemplate) {
	slices.SortStableFunc(ifaces, func(a, b interfaceTemplate) int { return names.Compare(a.name, b.name) })
}

// layer describes a set of identical devices generated from one template
type layer struct {
	role     string
	prefix   string
	count    int
	template *template
	location string
}

func (l *layer) names() []string {
	res := make([]string, 0, l.count)
	for i := 1; i <= l.count; i++ {
		res = append(res, deviceName(l.prefix, i))
	}
	return res
}

func deviceName(prefix string, index int) string {
	return fmt.Sprintf("%s-%02d", prefix, index)
}

func interfaceKey(device, iface string) string {
	return device + "/" + iface
}

// build upserts the devices of a layer and their interfaces
func (b *base) build(ctx context.Context, l *layer, res *Result) ([]*infrahub.Node, error) {
	devices := make([]*infrahub.Node, 0, l.count)
	for i, name := range l.names() {
		dev := infrahub.NewNode(infrahub.KindDevice, name).
			Set(infrahub.AttrName, name).
			Set(infrahub.AttrRole, l.role).
			Set(infrahub.AttrIndex, i+1).
			Set(infrahub.AttrStatus, infrahub.StatusActive).
			SetPeer(infrahub.RelLocation, l.location).
			SetPeer(infrahub.RelTemplate, l.template.id)
		if len(l.template.platform) != 0 {
			dev.Set(infrahub.AttrPlatform, l.template.platform)
		}
		devices = append(devices, dev)
	}

	if _, err := b.save(ctx, devices...); err != nil {
		return nil, err
	}
	for _, dev := range devices {
		if err := b.store.Set(dev.Name(), dev); err != nil {
			return nil, err
		}
	}

	ifaces := make([]*infrahub.Node, 0, len(devices)*len(l.template.interfaces))
	for _, dev := range devices {
		for _, it := range l.template.interfaces {
			ifaces = append(ifaces, infrahub.NewNode(infrahub.KindInterface, dev.Name(), it.name).
				Set(infrahub.AttrName, it.name).
				Set(infrahub.AttrRole, it.role).
				Set(infrahub.AttrStatus, infrahub.StatusActive).
				SetPeer(infrahub.RelDevice, dev.ID))
		}
	}
	if _, err := b.save(ctx, ifaces...); err != nil {
		return nil, err
	}
	for _, iface := range ifaces {
		if err := b.store.Set(interfaceKey(iface.HFID[0], iface.Name()), iface); err != nil {
			return nil, err
		}
	}

	klog.InfoS("Generated devices", "generator", b.name, "role", l.role, "devices", len(devices), "interfaces", len(ifaces))
	metrics.AddObjects(b.name, infrahub.KindDevice, len(devices))
	metrics.AddObjects(b.name, infrahub.KindInterface, len(ifaces))
	res.Devices = append(res.Devices, l.names()...)
	res.Interfaces += len(ifaces)

	return devices, nil
}

// allocate assigns management and loopback addresses from the data center pools.
// Allocation is keyed by device name, so repeated runs get the same addresses.
func (b *base) allocate(ctx context.Context, dc *infrahub.Node, l *layer, devices []*infrahub.Node, res *Result) error {
	managementPool := dc.PeerID(infrahub.RelManagementPool)
	loopbackPool := dc.PeerID(infrahub.RelLoopbackPool)

	var loopback string
	for _, it := range l.template.interfaces {
		if it.role == infrahub.RoleLoopback {
			loopback = it.name
			break
		}
	}
	if len(loopbackPool) != 0 && len(loopback) == 0 {
		klog.Warningf("Template %s has no loopback interface; skipping loopback addresses", l.template.name)
		loopbackPool = ""
	}

	var updates []*infrahub.Node
	for _, dev := range devices {
		if len(managementPool) != 0 {
			addr, err := b.client.Allocate(ctx, b.branch, &infrahub.PoolRequest{
				Kind:       infrahub.PoolAddress,
				PoolID:     managementPool,
				Identifier: dev.Name(),
				Data:       map[string]any{infrahub.AttrDescription: dev.Name() + " management"},
			})
			if err != nil {
				return fmt.Errorf("failed to allocate management address for %s: %w", dev.Name(), err)
			}
			updates = append(updates, (&infrahub.Node{ID: dev.ID, Kind: infrahub.KindDevice}).
				SetPeer(infrahub.RelPrimaryAddress, addr.ID))
			res.Addresses++
		}

		if len(loopbackPool) != 0 {
			addr, err := b.client.Allocate(ctx, b.branch, &infrahub.PoolRequest{
				Kind:       infrahub.PoolAddress,
				PoolID:     loopbackPool,
				Identifier: dev.Name(),
				Data:       map[string]any{infrahub.AttrDescription: dev.Name() + " " + loopback},
			})
			if err != nil {
				return fmt.Errorf("failed to allocate loopback address for %s: %w", dev.Name(), err)
			}
			iface, err := b.store.Get(infrahub.KindInterface, interfaceKey(dev.Name(), loopback))
			if err != nil {
				return err
			}
			updates = append(updates, (&infrahub.Node{ID: addr.ID, Kind: infrahub.KindIPAddress}).
				SetPeer(infrahub.RelInterface, iface.ID))
			res.Addresses++
		}
	}

	if _, err := b.save(ctx, updates...); err != nil {
		return err
	}
	metrics.AddObjects(b.name, infrahub.KindIPAddress, len(updates))
	return nil
}

// ports returns the cabling view of a generated layer. In a dry run the
// devices may not exist yet, and IDs are left empty.
func (b *base) ports(l *layer, role string) []cabling.Device {
	devices := make([]cabling.Device, 0, l.count)
	for _, name := range l.names() {
		dev := cabling.Device{Name: name}
		if node, err := b.store.Get(infrahub.KindDevice, name); err == nil {
			dev.ID = node.ID
		}
		for _, it := range l.template.interfaces {
			if it.role != role {
				continue
			}
			port := cabling.Port{Name: it.name}
			if node, err := b.store.Get(infrahub.KindInterface, interfaceKey(name, it.name)); err == nil {
				port.ID = node.ID
			}
			dev.Ports = append(dev.Ports, port)
		}
		devices = append(devices, dev)
	}
	return devices
}

// existingPorts loads the interfaces of a given role on the devices matching the filters
func (b *base) existingPorts(ctx context.Context, filters map[string]any, role string) ([]cabling.Device, error) {
	nodes, err := b.client.Filter(ctx, b.branch, &infrahub.Query{
		Kind:       infrahub.KindDevice,
		Filters:    filters,
		Attributes: []string{infrahub.AttrName},
	})
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(nodes))
	devices := make(map[string]*cabling.Device, len(nodes))
	for _, node := range nodes {
		ids = append(ids, node.ID)
		devices[node.ID] = &cabling.Device{ID: node.ID, Name: node.Name()}
	}

	ifaces, err := b.client.Filter(ctx, b.branch, &infrahub.Query{
		Kind:       infrahub.KindInterface,
		Filters:    map[string]any{infrahub.RelDevice + "__ids": ids, infrahub.AttrRole + "__value": role},
		Attributes: []string{infrahub.AttrName},
		Peer:       []string{infrahub.RelDevice},
	})
	if err != nil {
		return nil, err
	}
	for _, iface := range ifaces {
		if dev, ok := devices[iface.PeerID(infrahub.RelDevice)]; ok {
			dev.Ports = append(dev.Ports, cabling.Port{ID: iface.ID, Name: iface.Name()})
		}
	}

	res := make([]cabling.Device, 0, len(ids))
	for _, id := range ids {
		res = append(res, *devices[id])
	}
	return res, nil
}

// attachCables records the cable currently plugged into every port
func (b *base) attachCables(ctx context.Context, layers ...[]cabling.Device) error {
	var ids []string
	for _, devices := range layers {
		for _, dev := range devices {
			for _, port := range dev.Ports {
				if len(port.ID) != 0 {
					ids = append(ids, port.ID)
				}
			}
		}
	}
	if len(ids) == 0 {
		return nil
	}

	cables, err := b.client.Filter(ctx, b.branch, &infrahub.Query{
		Kind:    infrahub.KindCable,
		Filters: map[string]any{infrahub.RelEndpoints + "__ids": ids},
		Peers:   []string{infrahub.RelEndpoints},
	})
	if err != nil {
		return err
	}

	cableOf := make(map[string]string)
	for _, cable := range cables {
		for _, id := range cable.PeerIDs(infrahub.RelEndpoints) {
			cableOf[id] = cable.ID
		}
	}

	for _, devices := range layers {
		for i := range devices {
			for j := range devices[i].Ports {
				devices[i].Ports[j].CableID = cableOf[devices[i].Ports[j].ID]
			}
		}
	}
	return nil
}

// connect plans the cabling between two layers and applies it
func (b *base) connect(ctx context.Context, scenario cabling.Scenario, sources, destinations []cabling.Device, offset int, res *Result) error {
	if !res.DryRun {
		if err := b.attachCables(ctx, sources, destinations); err != nil {
			return err
		}
	}

	planner := cabling.NewPlanner(sources, destinations)
	if err := planner.Validate(offset); err != nil {
		metrics.AddValidationError("cabling")
		return fmt.Errorf("%w: %s cabling: %w", ErrValidation, scenario, err)
	}
	warnWraparound(scenario, sources, destinations, offset)

	plan, err := planner.Plan(offset)
	if err != nil {
		return err
	}

	if res.DryRun {
		for _, conn := range plan {
			res.Plan = append(res.Plan, conn.String())
		}
		return nil
	}

	changes, err := planner.Diff(plan)
	if err != nil {
		metrics.AddValidationError("cabling")
		return fmt.Errorf("%w: %s cabling: %w", ErrValidation, scenario, err)
	}

	for _, id := range changes.Stale {
		klog.Infof("Removing stale cable %s", id)
		if err := b.client.Delete(ctx, b.branch, &infrahub.Node{ID: id, Kind: infrahub.KindCable}); err != nil && !errors.Is(err, infrahub.ErrNotFound) {
			return fmt.Errorf("failed to remove cable %s: %w", id, err)
		}
	}

	cables := make([]*infrahub.Node, 0, len(changes.New))
	for _, conn := range changes.New {
		if len(conn.Source.PortID) == 0 || len(conn.Destination.PortID) == 0 {
			return fmt.Errorf("cannot cable %s: interface does not exist", conn.String())
		}
		name := conn.CableName()
		cables = append(cables, infrahub.NewNode(infrahub.KindCable, name).
			Set(infrahub.AttrName, name).
			Set(infrahub.AttrStatus, infrahub.StatusActive).
			SetPeers(infrahub.RelEndpoints, conn.Source.PortID, conn.Destination.PortID))
	}
	if _, err := b.save(ctx, cables...); err != nil {
		return err
	}

	klog.InfoS("Applied cabling plan", "generator", b.name, "scenario", scenario,
		"created", len(changes.New), "unchanged", len(changes.Unchanged), "removed", len(changes.Stale))
	metrics.AddCables(b.name, "created", len(changes.New))
	metrics.AddCables(b.name, "unchanged", len(changes.Unchanged))
	metrics.AddCables(b.name, "removed", len(changes.Stale))
	res.Cables.Created += len(changes.New)
	res.Cables.Unchanged += len(changes.Unchanged)
	res.Cables.Removed += len(changes.Stale)

	return nil
}

func warnWraparound(scenario cabling.Scenario, sources, destinations []cabling.Device, offset int) {
	for _, dst := range destinations {
		if len(dst.Ports) != 0 && offset+len(sources) > len(dst.Ports) {
			klog.Warningf("%s cabling at offset %d wraps around the %d ports of %s; ports may be shared with another group",
				scenario, offset, len(dst.Ports), dst.Name)
		}
	}
}

// propagate stores the checksum of ids on every child whose stored checksum differs
// and returns those children as downstream requests
func (b *base) propagate(ctx context.Context, generator string, children []*infrahub.Node, ids []string, force bool, res *Result) error {
	res.Checksum = checksum.Compute(ids...)

	var updates []*infrahub.Node
	for _, child := range children {
		current, changed := checksum.Gate(child.String(infrahub.AttrChecksum), ids...)
		if !changed && !force {
			klog.V(4).Infof("Checksum of %s is current; skipping", child.Name())
			res.Skipped = append(res.Skipped, child.Name())
			continue
		}
		updates = append(updates, (&infrahub.Node{ID: child.ID, Kind: child.Kind}).Set(infrahub.AttrChecksum, current))
		res.Downstream = append(res.Downstream, &Request{Generator: generator, Branch: b.branch, NodeID: child.ID})
	}

	if _, err := b.save(ctx, updates...); err != nil {
		return err
	}
	metrics.AddSkipped(b.name, len(res.Skipped))
	if len(res.Downstream) != 0 {
		klog.Infof("Requesting %s generation for %s", generator, strings.Join(childNames(children, res.Skipped), ","))
	}
	return nil
}

func childNames(children []*infrahub.Node, skipped []string) []string {
	skip := make(map[string]bool, len(skipped))
	for _, name := range skipped {
		skip[name] = true
	}
	var res []string
	for _, child := range children {
		if !skip[child.Name()] {
			res = append(res, child.Name())
		}
	}
	return res
}

func nodeIDs(nodes []*infrahub.Node) []string {
	ids := make([]string, 0, len(nodes))
	for _, node := range nodes {
		ids = append(ids, node.ID)
	}
	return ids
}
