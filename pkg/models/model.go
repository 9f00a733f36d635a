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

package models

import (
	"context"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"

	"github.com/NVIDIA/fabricgen/internal/names"
	"github.com/NVIDIA/fabricgen/pkg/design"
	"github.com/NVIDIA/fabricgen/pkg/infrahub"
	"github.com/NVIDIA/fabricgen/pkg/infrahub/memory"
	"github.com/NVIDIA/fabricgen/pkg/infrahub/store"
)

var validate = validator.New()

// Model describes the topology intent of a simulated platform:
// resource pools, design patterns, device templates and the data center hierarchy.
type Model struct {
	Pools          []*Pool           `yaml:"pools" validate:"dive"`
	DesignPatterns []*design.Pattern `yaml:"design_patterns" validate:"dive"`
	Templates      []*Template       `yaml:"templates" validate:"dive"`
	DataCenters    []*DataCenter     `yaml:"data_centers" validate:"dive"`
}

type Pool struct {
	Name         string `yaml:"name" validate:"required"`
	Kind         string `yaml:"kind" validate:"oneof=address prefix"`
	Prefix       string `yaml:"prefix" validate:"required,cidr"`
	PrefixLength int    `yaml:"prefix_length,omitempty" validate:"gte=0,lte=128"`
}

type Template struct {
	Name       string               `yaml:"name" validate:"required"`
	Platform   string               `yaml:"platform,omitempty"`
	Interfaces []*InterfaceTemplate `yaml:"interfaces" validate:"dive"`
}

// InterfaceTemplate declares interfaces sharing a role; names may use ranges, e.g. "Ethernet1/[1-8]"
type InterfaceTemplate struct {
	Names []string `yaml:"names" validate:"required"`
	Role  string   `yaml:"role" validate:"oneof=uplink downlink loopback management access"`
}

type DataCenter struct {
	Name               string `yaml:"name" validate:"required"`
	Index              int    `yaml:"index" validate:"gte=1"`
	DesignPattern      string `yaml:"design_pattern" validate:"required"`
	SuperSpines        int    `yaml:"super_spines" validate:"gte=0"`
	SuperSpineTemplate string `yaml:"super_spine_template"`
	LoopbackPool       string `yaml:"loopback_pool,omitempty"`
	ManagementPool     string `yaml:"management_pool,omitempty"`
	Pods               []*Pod `yaml:"pods" validate:"dive"`
}

type Pod struct {
	Name          string  `yaml:"name" validate:"required"`
	Index         int     `yaml:"index" validate:"gte=1"`
	Spines        int     `yaml:"spines" validate:"gte=0"`
	SpineTemplate string  `yaml:"spine_template"`
	Racks         []*Rack `yaml:"racks" validate:"dive"`
}

type Rack struct {
	Name         string `yaml:"name" validate:"required"`
	Index        int    `yaml:"index" validate:"gte=1"`
	Type         string `yaml:"type,omitempty"`
	Leafs        int    `yaml:"leafs" validate:"gte=0"`
	Tors         int    `yaml:"tors" validate:"gte=0"`
	LeafTemplate string `yaml:"leaf_template"`
	TorTemplate  string `yaml:"tor_template,omitempty"`
}

func NewModelFromFile(fname string) (*Model, error) {
	data, err := os.ReadFile(fname)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %v", fname, err)
	}

	model := &Model{}
	if err = yaml.Unmarshal(data, model); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %v", fname, err)
	}

	if err = model.validate(); err != nil {
		return nil, fmt.Errorf("invalid model %s: %v", fname, err)
	}

	return model, nil
}

func (m *Model) validate() error {
	if err := validate.Struct(m); err != nil {
		return err
	}

	pools := make(map[string]bool)
	for _, p := range m.Pools {
		if pools[p.Name] {
			return fmt.Errorf("duplicated pool name %q", p.Name)
		}
		pools[p.Name] = true
	}
	patterns := make(map[string]bool)
	for _, p := range m.DesignPatterns {
		if patterns[p.Name] {
			return fmt.Errorf("duplicated design pattern name %q", p.Name)
		}
		patterns[p.Name] = true
	}
	templates := make(map[string]bool)
	for _, t := range m.Templates {
		if templates[t.Name] {
			return fmt.Errorf("duplicated template name %q", t.Name)
		}
		templates[t.Name] = true
	}

	ref := func(kind, name string, known map[string]bool, owner string) error {
		if len(name) != 0 && !known[name] {
			return fmt.Errorf("%s refers to unknown %s %q", owner, kind, name)
		}
		return nil
	}

	locations := make(map[string]bool)
	unique := func(name string) error {
		if locations[name] {
			return fmt.Errorf("duplicated location name %q", name)
		}
		locations[name] = true
		return nil
	}

	for _, dc := range m.DataCenters {
		if err := unique(dc.Name); err != nil {
			return err
		}
		for _, err := range []error{
			ref("design pattern", dc.DesignPattern, patterns, dc.Name),
			ref("template", dc.SuperSpineTemplate, templates, dc.Name),
			ref("pool", dc.LoopbackPool, pools, dc.Name),
			ref("pool", dc.ManagementPool, pools, dc.Name),
		} {
			if err != nil {
				return err
			}
		}
		for _, pod := range dc.Pods {
			if err := unique(pod.Name); err != nil {
				return err
			}
			if err := ref("template", pod.SpineTemplate, templates, pod.Name); err != nil {
				return err
			}
			for _, rack := range pod.Racks {
				if err := unique(rack.Name); err != nil {
					return err
				}
				if err := ref("template", rack.LeafTemplate, templates, rack.Name); err != nil {
					return err
				}
				if err := ref("template", rack.TorTemplate, templates, rack.Name); err != nil {
					return err
				}
			}
		}
	}

	return nil
}

// Load creates the model objects on the platform and returns them keyed by name
func (m *Model) Load(ctx context.Context, client infrahub.Client, branch string) (*store.Store, error) {
	l := &loader{client: client, branch: branch, store: store.New()}

	// every layer refers to objects saved by the previous ones
	for _, step := range []func() []*infrahub.Node{
		m.pools, m.patterns, m.templates,
		func() []*infrahub.Node { return m.interfaces(l.store) },
		func() []*infrahub.Node { return m.dataCenters(l.store) },
		func() []*infrahub.Node { return m.pods(l.store) },
		func() []*infrahub.Node { return m.racks(l.store) },
	} {
		if err := l.save(ctx, step()); err != nil {
			return nil, err
		}
	}

	klog.Infof("Loaded simulation model with %d objects", l.store.Len())
	return l.store, nil
}

// NewClientFromFile returns an in-memory platform populated with the model
func NewClientFromFile(ctx context.Context, fname string) (*memory.Client, *store.Store, error) {
	model, err := NewModelFromFile(fname)
	if err != nil {
		return nil, nil, err
	}
	client := memory.NewClient()
	s, err := model.Load(ctx, client, memory.DefaultBranch)
	if err != nil {
		return nil, nil, err
	}
	return client, s, nil
}

type loader struct {
	client infrahub.Client
	branch string
	store  *store.Store
}

func (l *loader) save(ctx context.Context, nodes []*infrahub.Node) error {
	batch := infrahub.NewBatch(l.client, l.branch, 0)
	batch.Add(nodes...)
	if _, err := batch.Execute(ctx); err != nil {
		return err
	}
	for _, node := range nodes {
		if err := l.store.Set(storeKey(node), node); err != nil {
			return err
		}
	}
	return nil
}

func storeKey(node *infrahub.Node) string {
	if node.Kind == infrahub.KindInterfaceTemplate {
		return node.HFID[0] + "/" + node.Name()
	}
	return node.Name()
}

// id resolves a reference to an object saved by an earlier layer; empty names stay empty
func id(s *store.Store, kind, name string) string {
	if len(name) == 0 {
		return ""
	}
	node, err := s.Get(kind, name)
	if err != nil {
		return ""
	}
	return node.ID
}

func (m *Model) pools() []*infrahub.Node {
	nodes := make([]*infrahub.Node, 0, len(m.Pools))
	for _, p := range m.Pools {
		kind := infrahub.KindAddressPool
		if p.Kind == string(infrahub.PoolPrefix) {
			kind = infrahub.KindPrefixPool
		}
		node := infrahub.NewNode(kind, p.Name).
			Set(infrahub.AttrName, p.Name).
			Set(infrahub.AttrPrefix, p.Prefix)
		if p.PrefixLength != 0 {
			node.Set(infrahub.AttrPrefixLength, p.PrefixLength)
		}
		nodes = append(nodes, node)
	}
	return nodes
}

func (m *Model) patterns() []*infrahub.Node {
	nodes := make([]*infrahub.Node, 0, len(m.DesignPatterns))
	for _, p := range m.DesignPatterns {
		nodes = append(nodes, infrahub.NewNode(infrahub.KindDesignPattern, p.Name).
			Set(infrahub.AttrName, p.Name).
			Set(infrahub.AttrMaxSuper, p.MaximumSuperSpines).
			Set(infrahub.AttrMaxSpines, p.MaximumSpines).
			Set(infrahub.AttrMaxPods, p.MaximumPods).
			Set(infrahub.AttrMaxLeafs, p.MaximumLeafs).
			Set(infrahub.AttrMaxTors, p.MaximumTors).
			Set(infrahub.AttrMaxRacks, p.MaximumRacks))
	}
	return nodes
}

func (m *Model) templates() []*infrahub.Node {
	nodes := make([]*infrahub.Node, 0, len(m.Templates))
	for _, t := range m.Templates {
		node := infrahub.NewNode(infrahub.KindDeviceTemplate, t.Name).Set(infrahub.AttrName, t.Name)
		if len(t.Platform) != 0 {
			node.Set(infrahub.AttrPlatform, t.Platform)
		}
		nodes = append(nodes, node)
	}
	return nodes
}

func (m *Model) interfaces(s *store.Store) []*infrahub.Node {
	var nodes []*infrahub.Node
	for _, t := range m.Templates {
		tmplID := id(s, infrahub.KindDeviceTemplate, t.Name)
		for _, it := range t.Interfaces {
			for _, name := range names.Expand(it.Names) {
				nodes = append(nodes, infrahub.NewNode(infrahub.KindInterfaceTemplate, t.Name, name).
					Set(infrahub.AttrName, name).
					Set(infrahub.AttrRole, it.Role).
					SetPeer(infrahub.RelTemplate, tmplID))
			}
		}
	}
	return nodes
}

func (m *Model) dataCenters(s *store.Store) []*infrahub.Node {
	nodes := make([]*infrahub.Node, 0, len(m.DataCenters))
	for _, dc := range m.DataCenters {
		nodes = append(nodes, infrahub.NewNode(infrahub.KindDataCenter, dc.Name).
			Set(infrahub.AttrName, dc.Name).
			Set(infrahub.AttrIndex, dc.Index).
			Set(infrahub.AttrSuperSpines, dc.SuperSpines).
			SetPeer(infrahub.RelDesignPattern, id(s, infrahub.KindDesignPattern, dc.DesignPattern)).
			SetPeer(infrahub.RelSuperSpineTmpl, id(s, infrahub.KindDeviceTemplate, dc.SuperSpineTemplate)).
			SetPeer(infrahub.RelLoopbackPool, id(s, infrahub.KindAddressPool, dc.LoopbackPool)).
			SetPeer(infrahub.RelManagementPool, id(s, infrahub.KindAddressPool, dc.ManagementPool)))
	}
	return nodes
}

func (m *Model) pods(s *store.Store) []*infrahub.Node {
	var nodes []*infrahub.Node
	for _, dc := range m.DataCenters {
		for _, pod := range dc.Pods {
			nodes = append(nodes, infrahub.NewNode(infrahub.KindPod, pod.Name).
				Set(infrahub.AttrName, pod.Name).
				Set(infrahub.AttrIndex, pod.Index).
				Set(infrahub.AttrSpines, pod.Spines).
				SetPeer(infrahub.RelParent, id(s, infrahub.KindDataCenter, dc.Name)).
				SetPeer(infrahub.RelSpineTmpl, id(s, infrahub.KindDeviceTemplate, pod.SpineTemplate)))
		}
	}
	return nodes
}

func (m *Model) racks(s *store.Store) []*infrahub.Node {
	var nodes []*infrahub.Node
	for _, dc := range m.DataCenters {
		for _, pod := range dc.Pods {
			for _, rack := range pod.Racks {
				node := infrahub.NewNode(infrahub.KindRack, rack.Name).
					Set(infrahub.AttrName, rack.Name).
					Set(infrahub.AttrIndex, rack.Index).
					Set(infrahub.AttrLeafs, rack.Leafs).
					Set(infrahub.AttrTors, rack.Tors).
					SetPeer(infrahub.RelPod, id(s, infrahub.KindPod, pod.Name)).
					SetPeer(infrahub.RelLeafTmpl, id(s, infrahub.KindDeviceTemplate, rack.LeafTemplate)).
					SetPeer(infrahub.RelTorTmpl, id(s, infrahub.KindDeviceTemplate, rack.TorTemplate))
				if len(rack.Type) != 0 {
					node.Set(infrahub.AttrRackType, rack.Type)
				}
				nodes = append(nodes, node)
			}
		}
	}
	return nodes
}
