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

package store

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/NVIDIA/fabricgen/pkg/infrahub"
)

func device(id, name string) *infrahub.Node {
	node := infrahub.NewNode(infrahub.KindDevice, name).Set(infrahub.AttrName, name)
	node.ID = id
	return node
}

func TestStore(t *testing.T) {
	s := New()

	require.NoError(t, s.Set("leaf-10", device("id10", "leaf-10")))
	require.NoError(t, s.Set("leaf-2", device("id2", "leaf-2")))
	require.NoError(t, s.Set("leaf-1", device("id1", "leaf-1")))
	require.Equal(t, 3, s.Len())

	// same alias in another kind does not collide
	iface := infrahub.NewNode(infrahub.KindInterface)
	iface.ID = "if1"
	require.NoError(t, s.Set("leaf-1", iface))
	require.Equal(t, 4, s.Len())
	require.Equal(t, []string{infrahub.KindDevice, infrahub.KindInterface}, s.Kinds())

	node, err := s.Get(infrahub.KindDevice, "leaf-2")
	require.NoError(t, err)
	require.Equal(t, "id2", node.ID)

	node, err = s.GetByID("if1")
	require.NoError(t, err)
	require.Equal(t, infrahub.KindInterface, node.Kind)

	require.Equal(t, []string{"leaf-1", "leaf-2", "leaf-10"}, s.Keys(infrahub.KindDevice))

	nodes := s.Nodes(infrahub.KindDevice)
	require.Len(t, nodes, 3)
	require.Equal(t, "id10", nodes[2].ID)

	// rebinding to the same ID is allowed
	require.NoError(t, s.Set("leaf-1", device("id1", "leaf-1")))

	err = s.Set("leaf-1", device("other", "leaf-1"))
	require.True(t, errors.Is(err, ErrDuplicate))
	require.EqualError(t, err, `DcimDevice "leaf-1" (id1 -> other): key already bound to another node`)

	_, err = s.Get(infrahub.KindDevice, "spine-1")
	require.True(t, errors.Is(err, ErrNotFound))
	require.EqualError(t, err, `DcimDevice "spine-1": key not found in node store`)

	_, err = s.GetByID("missing")
	require.True(t, errors.Is(err, ErrNotFound))
}
