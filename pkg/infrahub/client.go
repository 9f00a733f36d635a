/*
 * Copyright 2025 NVIDIA CORPORATION
 * SPDX-License-Identifier: Apache-2.0
 */

package infrahub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"k8s.io/klog/v2"

	"github.com/NVIDIA/fabricgen/internal/httpreq"
)

const HeaderAPIKey = "X-INFRAHUB-KEY"

var (
	ErrNotFound  = errors.New("node not found")
	ErrAmbiguous = errors.New("more than one node found")
)

// Client is the subset of the graph platform API used by the generators and transforms
type Client interface {
	// Filter returns the nodes matching the query in the given branch
	Filter(ctx context.Context, branch string, q *Query) ([]*Node, error)
	// Save creates the node, or upserts it if it has an ID or HFID; sets the node ID
	Save(ctx context.Context, branch string, node *Node) error
	// Delete removes the node
	Delete(ctx context.Context, branch string, node *Node) error
	// Allocate returns the next free resource of a resource pool
	Allocate(ctx context.Context, branch string, req *PoolRequest) (*Node, error)
}

// Get returns the single node matching the query
func Get(ctx context.Context, c Client, branch string, q *Query) (*Node, error) {
	nodes, err := c.Filter(ctx, branch, q)
	if err != nil {
		return nil, err
	}
	switch len(nodes) {
	case 0:
		return nil, fmt.Errorf("%s %s: %w", q.Kind, describe(q), ErrNotFound)
	case 1:
		return nodes[0], nil
	default:
		return nil, fmt.Errorf("%s %s: %w", q.Kind, describe(q), ErrAmbiguous)
	}
}

func describe(q *Query) string {
	return renderArgs(q.filterArgs())
}

type Config struct {
	Address            string
	Token              string
	Timeout            time.Duration
	InsecureSkipVerify bool
	RequestsPerSecond  float64
}

// GraphQLClient talks to the platform's GraphQL API over HTTP
type GraphQLClient struct {
	address string
	token   string
	http    *httpreq.Client
}

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type gqlResponse struct {
	Data   map[string]json.RawMessage `json:"data"`
	Errors []gqlError                 `json:"errors"`
}

type gqlError struct {
	Message string `json:"message"`
}

type edgeList struct {
	Edges []struct {
		Node map[string]json.RawMessage `json:"node"`
	} `json:"edges"`
}

type peerRef struct {
	Node *struct {
		ID string `json:"id"`
	} `json:"node"`
}

type mutationResult struct {
	OK     bool `json:"ok"`
	Object *struct {
		ID           string `json:"id"`
		DisplayLabel string `json:"display_label"`
	} `json:"object"`
	Node *struct {
		ID           string `json:"id"`
		Kind         string `json:"kind"`
		Identifier   string `json:"identifier"`
		DisplayLabel string `json:"display_label"`
	} `json:"node"`
}

func NewClient(cfg *Config) (*GraphQLClient, error) {
	if len(cfg.Address) == 0 {
		return nil, fmt.Errorf("platform address is not set")
	}

	return &GraphQLClient{
		address: cfg.Address,
		token:   cfg.Token,
		http:    httpreq.NewClient(cfg.Timeout, cfg.InsecureSkipVerify, cfg.RequestsPerSecond),
	}, nil
}

// Execute runs a GraphQL document against a branch and returns the top-level data fields
func (c *GraphQLClient) Execute(ctx context.Context, branch, query string, variables map[string]any) (map[string]json.RawMessage, error) {
	payload, err := json.Marshal(&gqlRequest{Query: query, Variables: variables})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal GraphQL request: %v", err)
	}

	headers := map[string]string{
		"Content-Type": "application/json",
		"Accept":       "application/json",
	}
	if len(c.token) != 0 {
		headers[HeaderAPIKey] = c.token
	}

	klog.V(4).Infof("GraphQL request on branch %s:\n%s", branch, query)
	f := httpreq.GetRequestFunc(ctx, http.MethodPost, headers, nil, payload, c.address, "graphql", branch)
	body, httpErr := c.http.DoWithRetries(ctx, f)
	if httpErr != nil {
		return nil, fmt.Errorf("GraphQL request failed: HTTP %d: %s", httpErr.Code(), httpErr.Error())
	}

	var resp gqlResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse GraphQL response: %v", err)
	}

	if len(resp.Errors) != 0 {
		msgs := make([]string, 0, len(resp.Errors))
		for _, e := range resp.Errors {
			msgs = append(msgs, e.Message)
		}
		return nil, fmt.Errorf("GraphQL error: %s", strings.Join(msgs, "; "))
	}

	return resp.Data, nil
}

func (c *GraphQLClient) Filter(ctx context.Context, branch string, q *Query) ([]*Node, error) {
	data, err := c.Execute(ctx, branch, renderQuery(q), nil)
	if err != nil {
		return nil, err
	}

	raw, ok := data[q.Kind]
	if !ok {
		return nil, fmt.Errorf("missing %s in GraphQL response", q.Kind)
	}

	var list edgeList
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("failed to parse %s list: %v", q.Kind, err)
	}

	nodes := make([]*Node, 0, len(list.Edges))
	for _, edge := range list.Edges {
		node, err := parseNode(q, edge.Node)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}

	return nodes, nil
}

func parseNode(q *Query, fields map[string]json.RawMessage) (*Node, error) {
	node := NewNode(q.Kind)

	if err := unmarshalField(fields, "id", &node.ID); err != nil {
		return nil, err
	}
	if err := unmarshalField(fields, "display_label", &node.DisplayLabel); err != nil {
		return nil, err
	}
	if err := unmarshalField(fields, "hfid", &node.HFID); err != nil {
		return nil, err
	}

	for _, attr := range q.Attributes {
		var val struct {
			Value any `json:"value"`
		}
		if err := unmarshalField(fields, attr, &val); err != nil {
			return nil, err
		}
		node.Attributes[attr] = val.Value
	}

	for _, rel := range q.Peer {
		var ref peerRef
		if err := unmarshalField(fields, rel, &ref); err != nil {
			return nil, err
		}
		if ref.Node != nil {
			node.Peer[rel] = ref.Node.ID
		}
	}

	for _, rel := range q.Peers {
		var list edgeList
		if err := unmarshalField(fields, rel, &list); err != nil {
			return nil, err
		}
		ids := make([]string, 0, len(list.Edges))
		for _, edge := range list.Edges {
			var id string
			if err := unmarshalField(edge.Node, "id", &id); err != nil {
				return nil, err
			}
			ids = append(ids, id)
		}
		node.Peers[rel] = ids
	}

	return node, nil
}

// unmarshalField decodes an optional field; missing and null fields are left untouched
func unmarshalField(fields map[string]json.RawMessage, name string, out any) error {
	raw, ok := fields[name]
	if !ok || len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to parse field %q: %v", name, err)
	}
	return nil
}

func (c *GraphQLClient) Save(ctx context.Context, branch string, node *Node) error {
	op, query := renderSave(node)
	res, err := c.mutate(ctx, branch, op, query)
	if err != nil {
		return err
	}
	if res.Object == nil {
		return fmt.Errorf("%s returned no object", op)
	}
	node.ID = res.Object.ID
	node.DisplayLabel = res.Object.DisplayLabel
	return nil
}

func (c *GraphQLClient) Delete(ctx context.Context, branch string, node *Node) error {
	if len(node.ID) == 0 {
		return fmt.Errorf("cannot delete %s without ID", node.Kind)
	}
	op, query := renderDelete(node)
	_, err := c.mutate(ctx, branch, op, query)
	return err
}

func (c *GraphQLClient) Allocate(ctx context.Context, branch string, req *PoolRequest) (*Node, error) {
	op, query, err := renderAllocate(req)
	if err != nil {
		return nil, err
	}
	res, err := c.mutate(ctx, branch, op, query)
	if err != nil {
		return nil, err
	}
	if res.Node == nil {
		return nil, fmt.Errorf("pool %s has no free resources for %q", req.PoolID, req.Identifier)
	}

	return poolNode(req.Kind, res.Node.ID, res.Node.Kind, res.Node.DisplayLabel), nil
}

func (c *GraphQLClient) mutate(ctx context.Context, branch, op, query string) (*mutationResult, error) {
	data, err := c.Execute(ctx, branch, query, nil)
	if err != nil {
		return nil, err
	}

	var res mutationResult
	if err := unmarshalField(data, op, &res); err != nil {
		return nil, err
	}
	if !res.OK {
		return nil, fmt.Errorf("%s failed", op)
	}
	return &res, nil
}

// poolNode builds the node returned by a pool allocation
func poolNode(kind PoolKind, id, nodeKind, label string) *Node {
	switch kind {
	case PoolPrefix:
		if len(nodeKind) == 0 {
			nodeKind = KindIPPrefix
		}
		node := NewNode(nodeKind).Set(AttrPrefix, label)
		node.ID, node.DisplayLabel = id, label
		return node
	default:
		if len(nodeKind) == 0 {
			nodeKind = KindIPAddress
		}
		node := NewNode(nodeKind).Set(AttrAddress, label)
		node.ID, node.DisplayLabel = id, label
		return node
	}
}
