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

// Package design checks requested device counts against the maxima declared
// by a topology design pattern.
package design

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/NVIDIA/fabricgen/pkg/infrahub"
)

var validate = validator.New()

// Pattern caps the size of a topology instance. A maximum of zero forbids the role.
type Pattern struct {
	Name               string `yaml:"name" validate:"required"`
	MaximumSuperSpines int    `yaml:"maximum_super_spines" validate:"gte=0"`
	MaximumSpines      int    `yaml:"maximum_spines" validate:"gte=0"`
	MaximumPods        int    `yaml:"maximum_pods" validate:"gte=0"`
	MaximumLeafs       int    `yaml:"maximum_leafs" validate:"gte=0"`
	MaximumTors        int    `yaml:"maximum_tors" validate:"gte=0"`
	MaximumRacks       int    `yaml:"maximum_racks" validate:"gte=0"`
}

// Counts are the requested amounts of each role.
// SuperSpines and Pods are per data center, the rest are per pod.
type Counts struct {
	SuperSpines int
	Pods        int
	Spines      int
	Racks       int
	Leafs       int
	Tors        int
}

// Usage is the consumption of a single role
type Usage struct {
	Role    string
	Used    int
	Maximum int
}

const (
	RoleSuperSpines = "super spines"
	RolePods        = "pods"
	RoleSpines      = "spines"
	RoleRacks       = "racks"
	RoleLeafs       = "leafs"
	RoleTors        = "tors"
)

// FromNode reads a pattern from a design pattern object
func FromNode(node *infrahub.Node) (*Pattern, error) {
	p := &Pattern{
		Name:               node.Name(),
		MaximumSuperSpines: node.Int(infrahub.AttrMaxSuper),
		MaximumSpines:      node.Int(infrahub.AttrMaxSpines),
		MaximumPods:        node.Int(infrahub.AttrMaxPods),
		MaximumLeafs:       node.Int(infrahub.AttrMaxLeafs),
		MaximumTors:        node.Int(infrahub.AttrMaxTors),
		MaximumRacks:       node.Int(infrahub.AttrMaxRacks),
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Get loads the design pattern object with the given ID
func Get(ctx context.Context, c infrahub.Client, branch, id string) (*Pattern, error) {
	node, err := infrahub.Get(ctx, c, branch, &infrahub.Query{
		Kind: infrahub.KindDesignPattern,
		IDs:  []string{id},
		Attributes: []string{infrahub.AttrName, infrahub.AttrMaxSuper, infrahub.AttrMaxSpines, infrahub.AttrMaxPods,
			infrahub.AttrMaxLeafs, infrahub.AttrMaxTors, infrahub.AttrMaxRacks},
	})
	if err != nil {
		return nil, err
	}
	return FromNode(node)
}

func (p *Pattern) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("invalid design pattern %q: %v", p.Name, err)
	}
	return nil
}

// Utilization returns the usage of every role, in hierarchy order
func (p *Pattern) Utilization(c Counts) []Usage {
	return []Usage{
		{Role: RoleSuperSpines, Used: c.SuperSpines, Maximum: p.MaximumSuperSpines},
		{Role: RolePods, Used: c.Pods, Maximum: p.MaximumPods},
		{Role: RoleSpines, Used: c.Spines, Maximum: p.MaximumSpines},
		{Role: RoleRacks, Used: c.Racks, Maximum: p.MaximumRacks},
		{Role: RoleLeafs, Used: c.Leafs, Maximum: p.MaximumLeafs},
		{Role: RoleTors, Used: c.Tors, Maximum: p.MaximumTors},
	}
}

// Check returns an error listing every role whose requested amount is negative
// or exceeds the pattern's maximum
func (p *Pattern) Check(c Counts) error {
	var errs []error
	for _, u := range p.Utilization(c) {
		switch {
		case u.Used < 0:
			errs = append(errs, fmt.Errorf("requested %d %s is negative", u.Used, u.Role))
		case u.Used > u.Maximum:
			errs = append(errs, fmt.Errorf("requested %d %s exceeds design pattern %q maximum of %d", u.Used, u.Role, p.Name, u.Maximum))
		}
	}
	return errors.Join(errs...)
}
