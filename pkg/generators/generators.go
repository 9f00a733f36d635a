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

// Package generators materializes derived topology objects on the graph platform.
//
// The fabric generator builds the super-spines of a data center, the pod generator
// builds the spines of a pod and cables them to the super-spines, and the rack
// generator builds the leafs and ToRs of a rack and cables them to the spines and
// to each other. Every object is upserted by a name derived from its index, so
// running a generator twice with the same input changes nothing.
package generators

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/NVIDIA/fabricgen/internal/component"
	"github.com/NVIDIA/fabricgen/internal/config"
	"github.com/NVIDIA/fabricgen/pkg/infrahub"
)

const (
	NameFabric = "fabric"
	NamePod    = "pod"
	NameRack   = "rack"
)

var (
	ErrUnsupportedGenerator = errors.New("unsupported generator")
	ErrValidation           = errors.New("validation failed")
)

var validate = validator.New()

type Generator interface {
	Generate(ctx context.Context, req *Request) (*Result, error)
}

type Config struct {
	Client    infrahub.Client
	BatchSize int
}

type NamedLoader = component.NamedLoader[Generator, Config]
type Loader = component.Loader[Generator, Config]
type Registry component.Registry[Generator, Config]

func NewRegistry(namedLoaders ...NamedLoader) Registry {
	return Registry(component.NewRegistry(namedLoaders...))
}

// DefaultRegistry holds the fabric, pod and rack generators
func DefaultRegistry() Registry {
	return NewRegistry(NamedFabric, NamedPod, NamedRack)
}

// Names returns the sorted names of the registered generators
func (r Registry) Names() []string {
	return component.Registry[Generator, Config](r).Names()
}

func (r Registry) Get(name string) (Loader, error) {
	loader, ok := r[name]
	if !ok {
		return nil, fmt.Errorf("unsupported generator %q, %w", name, ErrUnsupportedGenerator)
	}

	return loader, nil
}

// Request triggers a generator on a topology object
type Request struct {
	Generator string         `json:"generator" validate:"required"`
	Branch    string         `json:"branch,omitempty"`
	NodeID    string         `json:"node_id" validate:"required"`
	Params    map[string]any `json:"params,omitempty"`
}

type Params struct {
	// DryRun computes the devices and the cabling plan without writing anything
	DryRun bool `mapstructure:"dry_run"`
	// Force requests downstream regeneration even if the checksum is unchanged
	Force bool `mapstructure:"force"`
}

func GetRequest(body []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("failed to parse generator request: %v", err)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *Request) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("invalid generator request: %v", err)
	}
	var p Params
	if err := config.Decode(r.Params, &p); err != nil {
		return fmt.Errorf("invalid generator parameters: %v", err)
	}
	return nil
}

// Hash identifies identical requests
func (r *Request) Hash() (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8]), nil
}

func (r *Request) String() string {
	return fmt.Sprintf("generator=%s branch=%s node_id=%s params=%v", r.Generator, r.Branch, r.NodeID, r.Params)
}

func (r *Request) params() (*Params, error) {
	var p Params
	if err := config.Decode(r.Params, &p); err != nil {
		return nil, fmt.Errorf("invalid generator parameters: %v", err)
	}
	return &p, nil
}

type CableCounts struct {
	Created   int `json:"created"`
	Unchanged int `json:"unchanged"`
	Removed   int `json:"removed"`
}

type Result struct {
	Generator  string      `json:"generator"`
	Branch     string      `json:"branch,omitempty"`
	NodeID     string      `json:"node_id"`
	DryRun     bool        `json:"dry_run,omitempty"`
	Checksum   string      `json:"checksum,omitempty"`
	Devices    []string    `json:"devices,omitempty"`
	Interfaces int         `json:"interfaces"`
	Addresses  int         `json:"addresses"`
	Cables     CableCounts `json:"cables"`
	Plan       []string    `json:"plan,omitempty"`
	// Skipped lists the downstream objects whose checksum was already current
	Skipped    []string   `json:"skipped,omitempty"`
	Downstream []*Request `json:"downstream,omitempty"`
}

func newResult(req *Request, p *Params) *Result {
	return &Result{
		Generator: req.Generator,
		Branch:    req.Branch,
		NodeID:    req.NodeID,
		DryRun:    p.DryRun,
	}
}

// Run looks up the generator named in the request and runs it
func (r Registry) Run(ctx context.Context, cfg Config, req *Request) (*Result, error) {
	loader, err := r.Get(req.Generator)
	if err != nil {
		return nil, err
	}
	gen, err := loader(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return gen.Generate(ctx, req)
}
