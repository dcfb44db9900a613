// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package mergeexec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/omg/internal/clock"
	"github.com/openclaw/omg/pkg/frontmatter"
	"github.com/openclaw/omg/pkg/node"
	"github.com/openclaw/omg/pkg/registry"
)

func writeNode(t *testing.T, root string, n node.Node, body string) registry.Entry {
	t.Helper()
	n.FilePath = root + "/" + n.CanonicalKey + ".md"
	require.NoError(t, frontmatter.WriteNode(n, body))
	return registry.Entry{
		Type: n.Type, CanonicalKey: n.CanonicalKey, Priority: n.Priority,
		Description: n.Description, Updated: n.Updated, FilePath: n.FilePath,
		Tags: n.Tags, Links: n.Links,
	}
}

func TestApplyMergesLosersIntoKeeper(t *testing.T) {
	root := t.TempDir()
	reg, err := registry.Open(root, nil)
	require.NoError(t, err)

	now := clock.ISO8601(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	keeper := node.Node{ID: "omg/fact/tz", CanonicalKey: "tz", Type: node.TypeFact, Priority: node.PriorityMedium, Created: now, Updated: now, Description: "tz is utc"}
	loser := node.Node{ID: "omg/fact/tz2", CanonicalKey: "tz2", Type: node.TypeFact, Priority: node.PriorityMedium, Created: now, Updated: now, Description: "tz also utc"}

	require.NoError(t, reg.RegisterNode(keeper.ID, writeNode(t, root, keeper, "keeper body")))
	require.NoError(t, reg.RegisterNode(loser.ID, writeNode(t, root, loser, "loser body")))

	ex := NewExecutor(root, reg, clock.Fixed{At: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)}, nil)
	desc := "tz is UTC, confirmed twice"
	audit, err := ex.Apply(Plan{
		KeepNodeID:   keeper.ID,
		MergeNodeIDs: []string{loser.ID},
		Patch:        Patch{Description: &desc, BodyAppend: "extra detail"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, audit.ArchivedCount)
	assert.NotEmpty(t, audit.ID)

	loserEntry, ok := reg.GetRegistryEntry(loser.ID)
	require.True(t, ok)
	assert.True(t, loserEntry.Archived)

	keeperDoc, err := frontmatter.ParseFile(keeper.FilePath)
	require.NoError(t, err)
	assert.Equal(t, desc, keeperDoc.Node.Description)
	assert.Contains(t, keeperDoc.Body, "extra detail")
	assert.Contains(t, keeperDoc.Node.MergedFrom, loser.ID)
}

func TestApplyFailsWhenKeeperMissingFromRegistry(t *testing.T) {
	root := t.TempDir()
	reg, err := registry.Open(root, nil)
	require.NoError(t, err)

	ex := NewExecutor(root, reg, nil, nil)
	_, err = ex.Apply(Plan{KeepNodeID: "omg/fact/missing"})
	assert.Error(t, err)
}

func TestUnionStringsDedupsPreservingOrder(t *testing.T) {
	out := unionStrings([]string{"a", "b"}, []string{"b", "c"})
	assert.Equal(t, []string{"a", "b", "c"}, out)
}
