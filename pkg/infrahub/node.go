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

package infrahub

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Node is a platform object as seen by the generators: a kind, scalar attributes
// and relationships to other nodes referenced by ID.
// - Peer holds relationships of cardinality one
// - Peers holds relationships of cardinality many
// - HFID is the human friendly ID used to upsert a node without knowing its ID
type Node struct {
	ID           string
	Kind         string
	DisplayLabel string
	HFID         []string
	Attributes   map[string]any
	Peer         map[string]string
	Peers        map[string][]string
}

func NewNode(kind string, hfid ...string) *Node {
	return &Node{
		Kind:       kind,
		HFID:       hfid,
		Attributes: make(map[string]any),
		Peer:       make(map[string]string),
		Peers:      make(map[string][]string),
	}
}

func (n *Node) Set(attr string, val any) *Node {
	if n.Attributes == nil {
		n.Attributes = make(map[string]any)
	}
	n.Attributes[attr] = val
	return n
}

func (n *Node) SetPeer(rel, id string) *Node {
	if n.Peer == nil {
		n.Peer = make(map[string]string)
	}
	n.Peer[rel] = id
	return n
}

func (n *Node) SetPeers(rel string, ids ...string) *Node {
	if n.Peers == nil {
		n.Peers = make(map[string][]string)
	}
	n.Peers[rel] = ids
	return n
}

// String returns a string attribute, or "" if the attribute is not set
func (n *Node) String(attr string) string {
	val, ok := n.Attributes[attr]
	if !ok || val == nil {
		return ""
	}
	if s, ok := val.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", val)
}

// Int returns an integer attribute, or 0 if the attribute is not set or not a number
func (n *Node) Int(attr string) int {
	switch v := n.Attributes[attr].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		i, _ := v.Int64()
		return int(i)
	case string:
		i, _ := strconv.Atoi(v)
		return i
	default:
		return 0
	}
}

func (n *Node) PeerID(rel string) string {
	return n.Peer[rel]
}

func (n *Node) PeerIDs(rel string) []string {
	return n.Peers[rel]
}

// Name returns the "name" attribute, which most kinds carry
func (n *Node) Name() string {
	return n.String(AttrName)
}

func (n *Node) Key() string {
	return HFIDKey(n.Kind, n.HFID)
}

func HFIDKey(kind string, hfid []string) string {
	return kind + ":" + strings.Join(hfid, "/")
}
