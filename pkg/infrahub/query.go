/*
 * Copyright 2025 NVIDIA CORPORATION
 * SPDX-License-Identifier: Apache-2.0
 */

package infrahub

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Query selects nodes of one kind.
// Filters use the platform's filter syntax, e.g. "name__value" or "parent__ids".
type Query struct {
	Kind       string
	IDs        []string
	Filters    map[string]any
	Attributes []string
	Peer       []string
	Peers      []string
}

// PoolKind selects the resource pool mutation
type PoolKind string

const (
	PoolAddress PoolKind = "address"
	PoolPrefix  PoolKind = "prefix"
)

// PoolRequest asks a resource pool for its next free resource.
// Requests with the same Identifier return the same resource.
type PoolRequest struct {
	Kind         PoolKind
	PoolID       string
	Identifier   string
	PrefixLength int
	Data         map[string]any
}

func (q *Query) filterArgs() map[string]any {
	args := make(map[string]any, len(q.Filters)+1)
	for k, v := range q.Filters {
		args[k] = v
	}
	if len(q.IDs) != 0 {
		args["ids"] = q.IDs
	}
	return args
}

// renderQuery renders q as a GraphQL query document
func renderQuery(q *Query) string {
	var sb strings.Builder
	sb.WriteString("query {\n  ")
	sb.WriteString(q.Kind)
	if args := q.filterArgs(); len(args) != 0 {
		sb.WriteString("(")
		sb.WriteString(renderArgs(args))
		sb.WriteString(")")
	}
	sb.WriteString(" {\n    edges {\n      node {\n        id\n        display_label\n        hfid\n")
	for _, attr := range q.Attributes {
		fmt.Fprintf(&sb, "        %s { value }\n", attr)
	}
	for _, rel := range q.Peer {
		fmt.Fprintf(&sb, "        %s { node { id } }\n", rel)
	}
	for _, rel := range q.Peers {
		fmt.Fprintf(&sb, "        %s { edges { node { id } } }\n", rel)
	}
	sb.WriteString("      }\n    }\n  }\n}")
	return sb.String()
}

// renderSave renders an upsert (when the node has an ID or HFID) or create mutation
func renderSave(n *Node) (string, string) {
	op := n.Kind + "Create"
	data := make(map[string]any)
	if len(n.ID) != 0 || len(n.HFID) != 0 {
		op = n.Kind + "Upsert"
		if len(n.ID) != 0 {
			data["id"] = n.ID
		}
		if len(n.HFID) != 0 {
			data["hfid"] = n.HFID
		}
	}
	for attr, val := range n.Attributes {
		data[attr] = map[string]any{"value": val}
	}
	for rel, id := range n.Peer {
		if len(id) == 0 {
			data[rel] = nil
		} else {
			data[rel] = map[string]any{"id": id}
		}
	}
	for rel, ids := range n.Peers {
		peers := make([]any, 0, len(ids))
		for _, id := range ids {
			peers = append(peers, map[string]any{"id": id})
		}
		data[rel] = peers
	}

	return op, fmt.Sprintf("mutation {\n  %s(data: %s) {\n    ok\n    object { id display_label }\n  }\n}", op, renderValue(data))
}

func renderDelete(n *Node) (string, string) {
	op := n.Kind + "Delete"
	return op, fmt.Sprintf("mutation {\n  %s(data: {id: %s}) {\n    ok\n  }\n}", op, renderValue(n.ID))
}

func renderAllocate(req *PoolRequest) (string, string, error) {
	var op string
	data := map[string]any{
		"id":         req.PoolID,
		"identifier": req.Identifier,
	}
	if len(req.Data) != 0 {
		data["data"] = req.Data
	}

	switch req.Kind {
	case PoolAddress:
		op = "IPAddressPoolGetResource"
	case PoolPrefix:
		op = "IPPrefixPoolGetResource"
		if req.PrefixLength > 0 {
			data["prefix_length"] = req.PrefixLength
		}
	default:
		return "", "", fmt.Errorf("unsupported pool kind %q", req.Kind)
	}

	return op, fmt.Sprintf("mutation {\n  %s(data: %s) {\n    ok\n    node { id kind identifier display_label }\n  }\n}", op, renderValue(data)), nil
}

func renderArgs(args map[string]any) string {
	keys := sortedKeys(args)
	terms := make([]string, 0, len(keys))
	for _, key := range keys {
		terms = append(terms, fmt.Sprintf("%s: %s", key, renderValue(args[key])))
	}
	return strings.Join(terms, ", ")
}

// renderValue renders a GraphQL input value; object keys are not quoted
func renderValue(val any) string {
	switch v := val.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "{" + renderArgs(v) + "}"
	case []string:
		terms := make([]string, 0, len(v))
		for _, s := range v {
			terms = append(terms, renderValue(s))
		}
		return "[" + strings.Join(terms, ", ") + "]"
	case []any:
		terms := make([]string, 0, len(v))
		for _, w := range v {
			terms = append(terms, renderValue(w))
		}
		return "[" + strings.Join(terms, ", ") + "]"
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return "null"
		}
		return string(data)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
