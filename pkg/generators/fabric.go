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

	"github.com/NVIDIA/fabricgen/pkg/design"
	"github.com/NVIDIA/fabricgen/pkg/infrahub"
)

// fabric generates the super-spines of a data center
type fabric struct {
	*base
}

func NamedFabric() (string, Loader) {
	return NameFabric, loadFabric
}

func loadFabric(_ context.Context, cfg Config) (Generator, error) {
	b, err := newBase(NameFabric, cfg)
	if err != nil {
		return nil, err
	}
	return &fabric{base: b}, nil
}

func (g *fabric) Generate(ctx context.Context, req *Request) (*Result, error) {
	params, err := req.params()
	if err != nil {
		return nil, err
	}
	g.begin(req)

	dc, pattern, err := g.dataCenter(ctx, req.NodeID)
	if err != nil {
		return nil, err
	}
	klog.InfoS("Generating fabric", "data_center", dc.Name(), "branch", req.Branch, "dry_run", params.DryRun)

	pods, err := g.client.Filter(ctx, g.branch, &infrahub.Query{
		Kind:       infrahub.KindPod,
		Filters:    map[string]any{infrahub.RelParent + "__ids": []string{dc.ID}},
		Attributes: []string{infrahub.AttrName, infrahub.AttrIndex, infrahub.AttrChecksum},
	})
	if err != nil {
		return nil, err
	}

	counts := design.Counts{
		SuperSpines: dc.Int(infrahub.AttrSuperSpines),
		Pods:        len(pods),
	}
	if err := g.check(pattern, counts); err != nil {
		return nil, err
	}

	tmpl, err := g.loadTemplate(ctx, dc.PeerID(infrahub.RelSuperSpineTmpl), infrahub.RoleSuperSpine)
	if err != nil {
		return nil, err
	}
	superSpines := &layer{
		role:     infrahub.RoleSuperSpine,
		prefix:   dc.Name() + "-super-spine",
		count:    counts.SuperSpines,
		template: tmpl,
		location: dc.ID,
	}

	res := newResult(req, params)
	if params.DryRun {
		res.Devices = superSpines.names()
		return res, nil
	}

	devices, err := g.build(ctx, superSpines, res)
	if err != nil {
		return nil, err
	}
	if err := g.allocate(ctx, dc, superSpines, devices, res); err != nil {
		return nil, err
	}

	if err := g.propagate(ctx, NamePod, pods, nodeIDs(devices), params.Force, res); err != nil {
		return nil, err
	}

	return res, nil
}
