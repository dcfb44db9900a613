// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package reflector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/omg/internal/clock"
	"github.com/openclaw/omg/pkg/frontmatter"
	"github.com/openclaw/omg/pkg/node"
	"github.com/openclaw/omg/pkg/registry"
	"github.com/openclaw/omg/pkg/scaffold"
)

func writeSourceNode(t *testing.T, root string, reg *registry.Registry, id, key string) {
	t.Helper()
	now := clock.ISO8601(time.Now())
	n := node.Node{
		ID: id, CanonicalKey: key, Type: node.TypeFact, Priority: node.PriorityMedium,
		Created: now, Updated: now, Description: "source " + key,
		FilePath: root + "/" + key + ".md",
	}
	require.NoError(t, frontmatter.WriteNode(n, "source body"))
	require.NoError(t, reg.RegisterNode(id, registry.Entry{
		Type: n.Type, Description: n.Description, Priority: n.Priority,
		Created: n.Created, Updated: n.Updated, FilePath: n.FilePath, CanonicalKey: key,
	}))
}

func TestApplierApplyWritesReflectionAndArchivesSources(t *testing.T) {
	root := t.TempDir()
	reg, err := registry.Open(root, nil)
	require.NoError(t, err)
	writeSourceNode(t, root, reg, "omg/fact/a", "user.tz")

	clk := clock.Fixed{At: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	applier := &Applier{Root: root, Reg: reg, Scaffold: scaffold.NewManager(root, reg, clk), Clock: clk}

	id, err := applier.Apply("user.tz", Synthesis{
		Description: "Synthesized timezone knowledge", Body: "synthesized body",
		ArchiveSourceIDs: []string{"omg/fact/a"}, MOCDomains: []string{"identity"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	reflEntry, ok := reg.GetRegistryEntry(id)
	require.True(t, ok)
	assert.Equal(t, node.TypeReflection, reflEntry.Type)

	sourceEntry, ok := reg.GetRegistryEntry("omg/fact/a")
	require.True(t, ok)
	assert.True(t, sourceEntry.Archived)

	_, ok = reg.GetRegistryEntry(node.MOCNodeID("identity"))
	assert.True(t, ok)
}

func TestApplierApplyRejectsEmptySynthesis(t *testing.T) {
	root := t.TempDir()
	reg, err := registry.Open(root, nil)
	require.NoError(t, err)
	applier := &Applier{Root: root, Reg: reg, Scaffold: scaffold.NewManager(root, reg, nil)}

	_, err = applier.Apply("user.tz", Synthesis{})
	assert.Error(t, err)
}

func TestApplierApplyFieldUpdateAddsTag(t *testing.T) {
	root := t.TempDir()
	reg, err := registry.Open(root, nil)
	require.NoError(t, err)
	writeSourceNode(t, root, reg, "omg/fact/a", "user.tz")

	applier := &Applier{Root: root, Reg: reg, Scaffold: scaffold.NewManager(root, reg, nil)}
	_, err = applier.Apply("user.other", Synthesis{
		Description: "d", Body: "b",
		FieldUpdates: []FieldUpdate{{NodeID: "omg/fact/a", Field: "tags", Action: "add", Value: "confirmed"}},
	})
	require.NoError(t, err)

	entry, ok := reg.GetRegistryEntry("omg/fact/a")
	require.True(t, ok)
	assert.Contains(t, entry.Tags, "confirmed")
}
