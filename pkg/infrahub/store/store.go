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

// Package store caches nodes created during a generator run under a local alias,
// so that later steps can resolve them without querying the platform again.
package store

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/NVIDIA/fabricgen/internal/names"
	"github.com/NVIDIA/fabricgen/pkg/infrahub"
)

var (
	ErrNotFound  = errors.New("key not found in node store")
	ErrDuplicate = errors.New("key already bound to another node")
)

type Store struct {
	mutex  sync.RWMutex
	byKind map[string]map[string]*infrahub.Node // kind:key:node
	byID   map[string]*infrahub.Node
}

func New() *Store {
	return &Store{
		byKind: make(map[string]map[string]*infrahub.Node),
		byID:   make(map[string]*infrahub.Node),
	}
}

// Set binds key to node within the node's kind. Rebinding a key to the same
// node ID replaces the cached copy.
func (s *Store) Set(key string, node *infrahub.Node) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	nodes, ok := s.byKind[node.Kind]
	if !ok {
		nodes = make(map[string]*infrahub.Node)
		s.byKind[node.Kind] = nodes
	}
	if prev, ok := nodes[key]; ok && prev.ID != node.ID {
		return fmt.Errorf("%s %q (%s -> %s): %w", node.Kind, key, prev.ID, node.ID, ErrDuplicate)
	}

	nodes[key] = node
	if len(node.ID) != 0 {
		s.byID[node.ID] = node
	}
	return nil
}

func (s *Store) Get(kind, key string) (*infrahub.Node, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if node, ok := s.byKind[kind][key]; ok {
		return node, nil
	}
	return nil, fmt.Errorf("%s %q: %w", kind, key, ErrNotFound)
}

func (s *Store) GetByID(id string) (*infrahub.Node, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if node, ok := s.byID[id]; ok {
		return node, nil
	}
	return nil, fmt.Errorf("ID %q: %w", id, ErrNotFound)
}

// Keys returns the keys bound within a kind in natural order
func (s *Store) Keys(kind string) []string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	keys := make([]string, 0, len(s.byKind[kind]))
	for key := range s.byKind[kind] {
		keys = append(keys, key)
	}
	names.SortNatural(keys)
	return keys
}

// Nodes returns the nodes of a kind ordered by key
func (s *Store) Nodes(kind string) []*infrahub.Node {
	keys := s.Keys(kind)

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	nodes := make([]*infrahub.Node, 0, len(keys))
	for _, key := range keys {
		nodes = append(nodes, s.byKind[kind][key])
	}
	return nodes
}

func (s *Store) Kinds() []string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	kinds := make([]string, 0, len(s.byKind))
	for kind := range s.byKind {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

func (s *Store) Len() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	n := 0
	for _, nodes := range s.byKind {
		n += len(nodes)
	}
	return n
}
