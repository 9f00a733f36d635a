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

// rack generates the leafs and ToRs of a rack. Leaf uplinks are cabled to the
// spines of the pod, ToR uplinks to the leafs of the rack.
type rack struct {
	*base
}

func NamedRack() (string, Loader) {
	return NameRack, loadRack
}

func loadRack(_ context.Context, cfg Config) (Generator, error) {
	b, err := newBase(NameRack, cfg)
	if err != nil {
		return nil, err
	}
	return &rack{base: b}, nil
}

func (g *rack) Generate(ctx context.Context, req *Request) (*Result, error) {
	params, err := req.params()
	if err != nil {
		return nil, err
	}
	g.begin(req)

	r, err := g.get(ctx, &infrahub.Query{
		Kind:       infrahub.KindRack,
		IDs:        []string{req.NodeID},
		Attributes: []string{infrahub.AttrName, infrahub.AttrIndex, infrahub.AttrLeafs, infrahub.AttrTors, infrahub.AttrChecksum},
		Peer:       []string{infrahub.RelPod, infrahub.RelLeafTmpl, infrahub.RelTorTmpl},
	})
	if err != nil {
		return nil, err
	}
	p, err := g.get(ctx, &infrahub.Query{
		Kind:       infrahub.KindPod,
		IDs:        []string{r.PeerID(infrahub.RelPod)},
		Attributes: []string{infrahub.AttrName},
		Peer:       []string{infrahub.RelParent},
	})
	if err != nil {
		return nil, err
	}
	dc, pattern, err := g.dataCenter(ctx, p.PeerID(infrahub.RelParent))
	if err != nil {
		return nil, err
	}
	klog.InfoS("Generating rack", "rack", r.Name(), "pod", p.Name(), "branch", req.Branch, "dry_run", params.DryRun)

	// leaf and ToR maxima apply to the whole pod
	racks, err := g.client.Filter(ctx, g.branch, &infrahub.Query{
		Kind:       infrahub.KindRack,
		Filters:    map[string]any{infrahub.RelPod + "__ids": []string{p.ID}},
		Attributes: []string{infrahub.AttrLeafs, infrahub.AttrTors},
	})
	if err != nil {
		return nil, err
	}
	counts := design.Counts{Racks: len(racks)}
	for _, other := range racks {
		counts.Leafs += other.Int(infrahub.AttrLeafs)
		counts.Tors += other.Int(infrahub.AttrTors)
	}
	if err := g.check(pattern, counts); err != nil {
		return nil, err
	}

	leafTmpl, err := g.loadTemplate(ctx, r.PeerID(infrahub.RelLeafTmpl), infrahub.RoleLeaf)
	if err != nil {
		return nil, err
	}
	leafs := &layer{
		role:     infrahub.RoleLeaf,
		prefix:   r.Name() + "-leaf",
		count:    r.Int(infrahub.AttrLeafs),
		template: leafTmpl,
		location: r.ID,
	}

	tors := &layer{
		role:     infrahub.RoleTor,
		prefix:   r.Name() + "-tor",
		count:    r.Int(infrahub.AttrTors),
		location: r.ID,
	}
	if tors.count > 0 {
		if tors.template, err = g.loadTemplate(ctx, r.PeerID(infrahub.RelTorTmpl), infrahub.RoleTor); err != nil {
			return nil, err
		}
	}

	offset, err := cabling.Offset(cabling.ScenarioRack, r.Int(infrahub.AttrIndex), leafs.count)
	if err != nil {
		return nil, err
	}

	res := newResult(req, params)
	res.Checksum = r.String(infrahub.AttrChecksum)
	layers := []*layer{leafs}
	if tors.count > 0 {
		layers = append(layers, tors)
	}
	for _, l := range layers {
		if params.DryRun {
			res.Devices = append(res.Devices, l.names()...)
			continue
		}
		devices, err := g.build(ctx, l, res)
		if err != nil {
			return nil, err
		}
		if err := g.allocate(ctx, dc, l, devices, res); err != nil {
			return nil, err
		}
	}

	spines, err := g.existingPorts(ctx, map[string]any{
		infrahub.RelLocation + "__ids": []string{p.ID},
		infrahub.AttrRole + "__value":  infrahub.RoleSpine,
	}, infrahub.RoleDownlink)
	if err != nil {
		return nil, err
	}
	if len(spines) == 0 {
		klog.Warningf("Pod %s has no spines; run the %s generator first", p.Name(), NamePod)
	}
	if err := g.connect(ctx, cabling.ScenarioRack, g.ports(leafs, infrahub.RoleUplink), spines, offset, res); err != nil {
		return nil, err
	}

	if tors.count > 0 {
		intra, err := cabling.Offset(cabling.ScenarioIntraRack, r.Int(infrahub.AttrIndex), tors.count)
		if err != nil {
			return nil, err
		}
		if err := g.connect(ctx, cabling.ScenarioIntraRack, g.ports(tors, infrahub.RoleUplink), g.ports(leafs, infrahub.RoleDownlink), intra, res); err != nil {
			return nil, err
		}
	}

	return res, nil
}
