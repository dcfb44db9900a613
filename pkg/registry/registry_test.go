// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package registry

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/omg/pkg/frontmatter"
	"github.com/openclaw/omg/pkg/node"
)

func writeNodeFile(t *testing.T, root string, n node.Node) {
	t.Helper()
	n.FilePath = filepath.Join(root, node.UpsertRelPath(n.Type, n.CanonicalKey, n.Description))
	require.NoError(t, frontmatter.WriteNode(n, "body"))
}

func TestOpenRebuildsFromDisk(t *testing.T) {
	root := t.TempDir()
	writeNodeFile(t, root, node.Node{
		ID: "omg/fact/tz", Type: node.TypeFact, Priority: node.PriorityMedium,
		Description: "tz", Created: "2026-01-01T00:00:00Z", Updated: "2026-01-01T00:00:00Z",
	})

	reg, err := Open(root, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, reg.GetNodeCount())

	entry, ok := reg.GetRegistryEntry("omg/fact/tz")
	require.True(t, ok)
	assert.Equal(t, node.TypeFact, entry.Type)
}

func TestOpenReloadsPersistedRegistry(t *testing.T) {
	root := t.TempDir()
	reg, err := Open(root, nil)
	require.NoError(t, err)
	require.NoError(t, reg.RegisterNode("omg/fact/a", Entry{Type: node.TypeFact, Description: "a"}))

	reopened, err := Open(root, nil)
	require.NoError(t, err)
	_, ok := reopened.GetRegistryEntry("omg/fact/a")
	assert.True(t, ok)
}

func TestRegisterUpdateRemove(t *testing.T) {
	root := t.TempDir()
	reg, err := Open(root, nil)
	require.NoError(t, err)

	require.NoError(t, reg.RegisterNode("omg/fact/a", Entry{Type: node.TypeFact, Description: "a", Updated: "t1"}))
	require.NoError(t, reg.UpdateRegistryEntry("omg/fact/a", func(e Entry) Entry {
		e.Updated = "t2"
		return e
	}))
	entry, ok := reg.GetRegistryEntry("omg/fact/a")
	require.True(t, ok)
	assert.Equal(t, "t2", entry.Updated)

	require.NoError(t, reg.RemoveRegistryEntry("omg/fact/a"))
	_, ok = reg.GetRegistryEntry("omg/fact/a")
	assert.False(t, ok)
}

func TestGetRegistryEntriesFilter(t *testing.T) {
	root := t.TempDir()
	reg, err := Open(root, nil)
	require.NoError(t, err)

	require.NoError(t, reg.RegisterNode("omg/fact/a", Entry{Type: node.TypeFact}))
	require.NoError(t, reg.RegisterNode("omg/project/b", Entry{Type: node.TypeProject}))
	require.NoError(t, reg.RegisterNode("omg/fact/c", Entry{Type: node.TypeFact, Archived: true}))

	facts := reg.GetRegistryEntries(&Filter{Type: node.TypeFact})
	assert.Len(t, facts, 1)

	all := reg.GetRegistryEntries(&Filter{Type: node.TypeFact, IncludeArchived: true})
	assert.Len(t, all, 2)
}

func TestSortedIDsDeterministic(t *testing.T) {
	root := t.TempDir()
	reg, err := Open(root, nil)
	require.NoError(t, err)
	require.NoError(t, reg.RegisterNode("omg/fact/b", Entry{Type: node.TypeFact}))
	require.NoError(t, reg.RegisterNode("omg/fact/a", Entry{Type: node.TypeFact}))

	assert.Equal(t, []string{"omg/fact/a", "omg/fact/b"}, reg.SortedIDs())
}
