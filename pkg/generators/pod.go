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

	"k8s.io/klog/v2"

	"github.com/NVIDIA/fabricgen/pkg/cabling"
	"github.com/NVIDIA/fabricgen/pkg/design"
	"github.com/NVIDIA/fabricgen/pkg/infrahub"
)

// pod generates the spines of a pod and cables them to the super-spines
type pod struct {
	*base
}

func NamedPod() (string, Loader) {
	return NamePod, loadPod
}

func loadPod(_ context.Context, cfg Config) (Generator, error) {
	b, err := newBase(NamePod, cfg)
	if err != nil {
		return nil, err
	}
	return &pod{base: b}, nil
}

func (g *pod) Generate(ctx context.Context, req *Request) (*Result, error) {
	params, err := req.params()
	if err != nil {
		return nil, err
	}
	g.begin(req)

	p, err := g.get(ctx, &infrahub.Query{
		Kind:       infrahub.KindPod,
		IDs:        []string{req.NodeID},
		Attributes: []string{infrahub.AttrName, infrahub.AttrIndex, infrahub.AttrSpines, infrahub.AttrChecksum},
		Peer:       []string{infrahub.RelParent, infrahub.RelSpineTmpl},
	})
	if err != nil {
		return nil, err
	}
	dc, pattern, err := g.dataCenter(ctx, p.PeerID(infrahub.RelParent))
	if err != nil {
		return nil, err
	}
	klog.InfoS("Generating pod", "pod", p.Name(), "data_center", dc.Name(), "branch", req.Branch, "dry_run", params.DryRun)

	racks, err := g.client.Filter(ctx, g.branch, &infrahub.Query{
		Kind:       infrahub.KindRack,
		Filters:    map[string]any{infrahub.RelPod + "__ids": []string{p.ID}},
		Attributes: []string{infrahub.AttrName, infrahub.AttrIndex, infrahub.AttrChecksum},
	})
	if err != nil {
		return nil, err
	}

	counts := design.Counts{
		Spines: p.Int(infrahub.AttrSpines),
		Racks:  len(racks),
	}
	if err := g.check(pattern, counts); err != nil {
		return nil, err
	}

	tmpl, err := g.loadTemplate(ctx, p.PeerID(infrahub.RelSpineTmpl), infrahub.RoleSpine)
	if err != nil {
		return nil, err
	}
	spines := &layer{
		role:     infrahub.RoleSpine,
		prefix:   p.Name() + "-spine",
		count:    counts.Spines,
		template: tmpl,
		location: p.ID,
	}

	offset, err := cabling.Offset(cabling.ScenarioPod, p.Int(infrahub.AttrIndex), spines.count)
	if err != nil {
		return nil, err
	}

	res := newResult(req, params)
	var devices []*infrahub.Node
	if params.DryRun {
		res.Devices = spines.names()
	} else {
		if devices, err = g.build(ctx, spines, res); err != nil {
			return nil, err
		}
		if err := g.allocate(ctx, dc, spines, devices, res); err != nil {
			return nil, err
		}
	}

	superSpines, err := g.existingPorts(ctx, map[string]any{
		infrahub.RelLocation + "__ids": []string{dc.ID},
		infrahub.AttrRole + "__value":  infrahub.RoleSuperSpine,
	}, infrahub.RoleDownlink)
	if err != nil {
		return nil, err
	}
	if len(superSpines) == 0 {
		klog.Warningf("Data center %s has no super-spines; run the %s generator first", dc.Name(), NameFabric)
	}
	if err := g.connect(ctx, cabling.ScenarioPod, g.ports(spines, infrahub.RoleUplink), superSpines, offset, res); err != nil {
		return nil, err
	}

	if params.DryRun {
		return res, nil
	}

	ids := append(nodeIDs(devices), p.ID)
	if err := g.propagate(ctx, NameRack, racks, ids, params.Force, res); err != nil {
		return nil, err
	}

	return res, nil
}
