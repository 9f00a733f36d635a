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

// Package memory implements the platform client contract in memory,
// for simulations and tests.
package memory

import (
	"context"
	"fmt"
	"net/netip"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
	"k8s.io/klog/v2"

	"github.com/NVIDIA/fabricgen/pkg/infrahub"
)

const DefaultBranch = "main"

type Client struct {
	mutex    sync.Mutex
	branches map[string]*branch
}

type branch struct {
	nodes       map[string]*infrahub.Node // ID:node
	order       []string                  // node IDs in creation order
	hfids       map[string]string         // HFID key:ID
	allocations map[string]string         // pool ID/identifier:allocated node ID
}

func newBranch() *branch {
	return &branch{
		nodes:       make(map[string]*infrahub.Node),
		hfids:       make(map[string]string),
		allocations: make(map[string]string),
	}
}

func NewClient() *Client {
	return &Client{
		branches: map[string]*branch{DefaultBranch: newBranch()},
	}
}

// getBranch returns the branch, forking it from the default branch on first use.
// Must be called with the mutex held.
func (c *Client) getBranch(name string) *branch {
	if len(name) == 0 {
		name = DefaultBranch
	}
	if b, ok := c.branches[name]; ok {
		return b
	}

	klog.V(4).Infof("Creating branch %s from %s", name, DefaultBranch)
	base := c.branches[DefaultBranch]
	b := newBranch()
	for _, id := range base.order {
		b.nodes[id] = clone(base.nodes[id])
	}
	b.order = slices.Clone(base.order)
	for k, v := range base.hfids {
		b.hfids[k] = v
	}
	for k, v := range base.allocations {
		b.allocations[k] = v
	}
	c.branches[name] = b
	return b
}

func (c *Client) Filter(_ context.Context, branchName string, q *infrahub.Query) ([]*infrahub.Node, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	b := c.getBranch(branchName)
	nodes := []*infrahub.Node{}
	for _, id := range b.order {
		node := b.nodes[id]
		if node.Kind != q.Kind {
			continue
		}
		if len(q.IDs) != 0 && !slices.Contains(q.IDs, node.ID) {
			continue
		}
		ok, err := match(node, q.Filters)
		if err != nil {
			return nil, err
		}
		if ok {
			nodes = append(nodes, clone(node))
		}
	}

	return nodes, nil
}

func match(node *infrahub.Node, filters map[string]any) (bool, error) {
	for key, val := range filters {
		if key == "ids" {
			if !slices.Contains(toStrings(val), node.ID) {
				return false, nil
			}
			continue
		}

		name, op, ok := strings.Cut(key, "__")
		if !ok {
			return false, fmt.Errorf("unsupported filter %q", key)
		}

		switch op {
		case "value":
			if fmt.Sprint(node.Attributes[name]) != fmt.Sprint(val) {
				return false, nil
			}
		case "ids":
			ids := toStrings(val)
			peers := node.Peers[name]
			if id, ok := node.Peer[name]; ok {
				peers = append([]string{id}, peers...)
			}
			found := false
			for _, id := range peers {
				if slices.Contains(ids, id) {
					found = true
					break
				}
			}
			if !found {
				return false, nil
			}
		default:
			return false, fmt.Errorf("unsupported filter %q", key)
		}
	}
	return true, nil
}

func toStrings(val any) []string {
	switch v := val.(type) {
	case string:
		return []string{v}
	case []string:
		return v
	case []any:
		res := make([]string, 0, len(v))
		for _, w := range v {
			res = append(res, fmt.Sprint(w))
		}
		return res
	default:
		return nil
	}
}

func (c *Client) Save(_ context.Context, branchName string, node *infrahub.Node) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	b := c.getBranch(branchName)
	return b.save(node)
}

func (b *branch) save(node *infrahub.Node) error {
	if len(node.Kind) == 0 {
		return fmt.Errorf("node kind is not set")
	}

	id := node.ID
	if len(id) == 0 && len(node.HFID) != 0 {
		id = b.hfids[node.Key()]
	}

	if len(id) == 0 {
		node.ID = uuid.NewString()
		stored := clone(node)
		for rel, peer := range stored.Peer {
			if len(peer) == 0 {
				delete(stored.Peer, rel)
			}
		}
		stored.DisplayLabel = label(stored)
		b.nodes[stored.ID] = stored
		b.order = append(b.order, stored.ID)
		if len(stored.HFID) != 0 {
			b.hfids[stored.Key()] = stored.ID
		}
		node.DisplayLabel = stored.DisplayLabel
		return nil
	}

	stored, ok := b.nodes[id]
	if !ok {
		return fmt.Errorf("%s %s: %w", node.Kind, id, infrahub.ErrNotFound)
	}
	if stored.Kind != node.Kind {
		return fmt.Errorf("node %s is a %s, not a %s", id, stored.Kind, node.Kind)
	}

	for attr, val := range node.Attributes {
		stored.Attributes[attr] = val
	}
	for rel, peer := range node.Peer {
		if len(peer) == 0 {
			delete(stored.Peer, rel)
		} else {
			stored.Peer[rel] = peer
		}
	}
	for rel, peers := range node.Peers {
		stored.Peers[rel] = slices.Clone(peers)
	}
	if len(node.HFID) != 0 && len(stored.HFID) == 0 {
		stored.HFID = slices.Clone(node.HFID)
		b.hfids[stored.Key()] = stored.ID
	}
	stored.DisplayLabel = label(stored)

	node.ID = stored.ID
	node.DisplayLabel = stored.DisplayLabel
	return nil
}

func (c *Client) Delete(_ context.Context, branchName string, node *infrahub.Node) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	b := c.getBranch(branchName)
	stored, ok := b.nodes[node.ID]
	if !ok {
		return fmt.Errorf("%s %s: %w", node.Kind, node.ID, infrahub.ErrNotFound)
	}

	delete(b.nodes, stored.ID)
	b.order = slices.DeleteFunc(b.order, func(id string) bool { return id == stored.ID })
	if len(stored.HFID) != 0 {
		delete(b.hfids, stored.Key())
	}
	return nil
}

func (c *Client) Allocate(_ context.Context, branchName string, req *infrahub.PoolRequest) (*infrahub.Node, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	b := c.getBranch(branchName)
	pool, ok := b.nodes[req.PoolID]
	if !ok {
		return nil, fmt.Errorf("pool %s: %w", req.PoolID, infrahub.ErrNotFound)
	}

	key := req.PoolID + "/" + req.Identifier
	if id, ok := b.allocations[key]; ok && len(req.Identifier) != 0 {
		if node, ok := b.nodes[id]; ok {
			return clone(node), nil
		}
	}

	prefix, err := netip.ParsePrefix(pool.String(infrahub.AttrPrefix))
	if err != nil {
		return nil, fmt.Errorf("pool %s has invalid prefix: %v", pool.Name(), err)
	}
	prefix = prefix.Masked()

	var node *infrahub.Node
	switch req.Kind {
	case infrahub.PoolAddress:
		if pool.Kind != infrahub.KindAddressPool {
			return nil, fmt.Errorf("pool %s is not an address pool", pool.Name())
		}
		length := pool.Int(infrahub.AttrPrefixLength)
		if length == 0 {
			length = prefix.Bits()
		}
		addr, err := nextAddress(prefix, b.used(req.PoolID, infrahub.AttrAddress))
		if err != nil {
			return nil, fmt.Errorf("pool %s: %v", pool.Name(), err)
		}
		node = infrahub.NewNode(infrahub.KindIPAddress).Set(infrahub.AttrAddress, netip.PrefixFrom(addr, length).String())
	case infrahub.PoolPrefix:
		if pool.Kind != infrahub.KindPrefixPool {
			return nil, fmt.Errorf("pool %s is not a prefix pool", pool.Name())
		}
		length := req.PrefixLength
		if length == 0 {
			length = pool.Int(infrahub.AttrPrefixLength)
		}
		subnet, err := nextPrefix(prefix, length, b.used(req.PoolID, infrahub.AttrPrefix))
		if err != nil {
			return nil, fmt.Errorf("pool %s: %v", pool.Name(), err)
		}
		node = infrahub.NewNode(infrahub.KindIPPrefix).Set(infrahub.AttrPrefix, subnet.String())
	default:
		return nil, fmt.Errorf("unsupported pool kind %q", req.Kind)
	}

	for k, v := range req.Data {
		node.Set(k, v)
	}
	node.SetPeer(infrahub.RelPool, req.PoolID)
	if err := b.save(node); err != nil {
		return nil, err
	}
	b.allocations[key] = node.ID
	klog.V(4).Infof("Allocated %s from pool %s for %q", node.DisplayLabel, pool.Name(), req.Identifier)

	return clone(b.nodes[node.ID]), nil
}

// used returns the resources already handed out by a pool
func (b *branch) used(poolID, attr string) []netip.Prefix {
	var res []netip.Prefix
	for _, node := range b.nodes {
		if node.Peer[infrahub.RelPool] != poolID {
			continue
		}
		if p, err := netip.ParsePrefix(node.String(attr)); err == nil {
			res = append(res, p)
		}
	}
	return res
}

func nextAddress(prefix netip.Prefix, used []netip.Prefix) (netip.Addr, error) {
	taken := make(map[netip.Addr]bool, len(used))
	for _, p := range used {
		taken[p.Addr()] = true
	}

	addr := prefix.Addr()
	// skip network and broadcast addresses of IPv4 subnets
	skipEdges := addr.Is4() && prefix.Bits() < 31
	if skipEdges {
		addr = addr.Next()
	}
	for ; addr.IsValid() && prefix.Contains(addr); addr = addr.Next() {
		if skipEdges && !prefix.Contains(addr.Next()) {
			break
		}
		if !taken[addr] {
			return addr, nil
		}
	}
	return netip.Addr{}, fmt.Errorf("no free address in %s", prefix)
}

func nextPrefix(prefix netip.Prefix, length int, used []netip.Prefix) (netip.Prefix, error) {
	if length < prefix.Bits() || length > prefix.Addr().BitLen() {
		return netip.Prefix{}, fmt.Errorf("invalid prefix length %d for %s", length, prefix)
	}

	for addr := prefix.Addr(); addr.IsValid() && prefix.Contains(addr); {
		candidate := netip.PrefixFrom(addr, length)
		free := true
		for _, p := range used {
			if p.Overlaps(candidate) {
				free = false
				break
			}
		}
		if free {
			return candidate, nil
		}
		next, ok := addOffset(addr, length)
		if !ok {
			break
		}
		addr = next
	}
	return netip.Prefix{}, fmt.Errorf("no free /%d prefix in %s", length, prefix)
}

// addOffset returns the first address of the next subnet of the given length
func addOffset(addr netip.Addr, length int) (netip.Addr, bool) {
	bytes := addr.AsSlice()
	bit := addr.BitLen() - length // bit position to increment, counting from the right
	idx := len(bytes) - 1 - bit/8
	carry := uint16(1) << (bit % 8)
	for i := idx; i >= 0 && carry != 0; i-- {
		sum := uint16(bytes[i]) + carry
		bytes[i] = byte(sum)
		carry = sum >> 8
	}
	if carry != 0 {
		return netip.Addr{}, false
	}
	next, ok := netip.AddrFromSlice(bytes)
	return next, ok
}

func label(node *infrahub.Node) string {
	for _, attr := range []string{infrahub.AttrName, infrahub.AttrAddress, infrahub.AttrPrefix} {
		if s := node.String(attr); len(s) != 0 {
			return s
		}
	}
	return strings.Join(node.HFID, "/")
}

func clone(node *infrahub.Node) *infrahub.Node {
	res := &infrahub.Node{
		ID:           node.ID,
		Kind:         node.Kind,
		DisplayLabel: node.DisplayLabel,
		HFID:         slices.Clone(node.HFID),
		Attributes:   make(map[string]any, len(node.Attributes)),
		Peer:         make(map[string]string, len(node.Peer)),
		Peers:        make(map[string][]string, len(node.Peers)),
	}
	for k, v := range node.Attributes {
		res.Attributes[k] = v
	}
	for k, v := range node.Peer {
		res.Peer[k] = v
	}
	for k, v := range node.Peers {
		res.Peers[k] = slices.Clone(v)
	}
	return res
}
