// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package graph

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/omg/internal/clock"
	"github.com/openclaw/omg/pkg/node"
	"github.com/openclaw/omg/pkg/registry"
)

func buildRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	root := t.TempDir()
	reg, err := registry.Open(root, nil)
	require.NoError(t, err)

	now := "2026-01-01T00:00:00Z"
	require.NoError(t, reg.RegisterNode("omg/fact/a", registry.Entry{Type: node.TypeFact, Description: "a", Priority: node.PriorityMedium, Updated: now, Links: []string{"omg/fact/b"}}))
	require.NoError(t, reg.RegisterNode("omg/fact/b", registry.Entry{Type: node.TypeFact, Description: "b", Priority: node.PriorityMedium, Updated: now, Links: []string{"omg/fact/c"}}))
	require.NoError(t, reg.RegisterNode("omg/fact/c", registry.Entry{Type: node.TypeFact, Description: "c", Priority: node.PriorityMedium, Updated: now}))
	require.NoError(t, reg.RegisterNode("omg/fact/archived", registry.Entry{Type: node.TypeFact, Description: "archived", Archived: true, Links: []string{"omg/fact/a"}}))
	return reg
}

func TestGetNeighborsForwardAndDepth(t *testing.T) {
	reg := buildRegistry(t)
	clk := clock.Fixed{At: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewCache(clk)

	oneHop := c.GetNeighbors(reg, "omg/fact/a", Forward, 1, nil)
	require.Len(t, oneHop, 1)
	assert.Equal(t, "omg/fact/b", oneHop[0].ID)

	twoHop := c.GetNeighbors(reg, "omg/fact/a", Forward, 2, nil)
	assert.Len(t, twoHop, 2)
}

func TestGetBacklinksSkipsArchivedSource(t *testing.T) {
	reg := buildRegistry(t)
	c := NewCache(clock.Fixed{At: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)})

	backlinks := c.GetBacklinks(reg, "omg/fact/a")
	assert.NotContains(t, backlinks, "omg/fact/archived")
}

func TestGetBacklinks(t *testing.T) {
	reg := buildRegistry(t)
	c := NewCache(nil)
	assert.Equal(t, []string{"omg/fact/a"}, c.GetBacklinks(reg, "omg/fact/b"))
}

func TestFindPathsSameNode(t *testing.T) {
	reg := buildRegistry(t)
	c := NewCache(nil)
	paths := c.FindPaths(reg, "omg/fact/a", "omg/fact/a", 3)
	assert.Equal(t, [][]string{{"omg/fact/a"}}, paths)
}

func TestFindPathsReachable(t *testing.T) {
	reg := buildRegistry(t)
	c := NewCache(nil)
	paths := c.FindPaths(reg, "omg/fact/a", "omg/fact/c", 3)
	require.NotEmpty(t, paths)
	assert.Contains(t, paths[0], "omg/fact/c")
}

func TestGetSubgraphCapsAtMaxNodes(t *testing.T) {
	reg := buildRegistry(t)
	c := NewCache(nil)
	sg := c.GetSubgraph(reg, []string{"omg/fact/a"}, 2, 2)
	assert.LessOrEqual(t, len(sg.Nodes), 2)
}

func TestCacheRebuildsOnRegistryChange(t *testing.T) {
	reg := buildRegistry(t)
	c := NewCache(nil)
	_ = c.GetBacklinks(reg, "omg/fact/b")

	require.NoError(t, reg.RegisterNode("omg/fact/d", registry.Entry{Type: node.TypeFact, Description: "d", Links: []string{"omg/fact/c"}}))
	backlinks := c.GetBacklinks(reg, "omg/fact/c")
	assert.Contains(t, backlinks, "omg/fact/d")
}
