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
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

const DefaultBatchSize = 8

// Batch saves nodes concurrently with a bounded number of in-flight requests
type Batch struct {
	client Client
	branch string
	limit  int
	nodes  []*Node
}

func NewBatch(client Client, branch string, limit int) *Batch {
	if limit <= 0 {
		limit = DefaultBatchSize
	}
	return &Batch{
		client: client,
		branch: branch,
		limit:  limit,
	}
}

func (b *Batch) Add(nodes ...*Node) {
	b.nodes = append(b.nodes, nodes...)
}

func (b *Batch) Len() int {
	return len(b.nodes)
}

// Execute saves all queued nodes and returns them in submission order.
// The first failure cancels the remaining saves. The queue is emptied either way.
func (b *Batch) Execute(ctx context.Context) ([]*Node, error) {
	nodes := b.nodes
	b.nodes = nil
	if len(nodes) == 0 {
		return nil, nil
	}

	klog.V(4).Infof("Executing batch of %d nodes on branch %s", len(nodes), b.branch)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(b.limit)
	for _, node := range nodes {
		g.Go(func() error {
			if err := b.client.Save(ctx, b.branch, node); err != nil {
				return fmt.Errorf("failed to save %s %v: %w", node.Kind, node.HFID, err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return nodes, nil
}
