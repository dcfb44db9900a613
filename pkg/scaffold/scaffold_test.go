// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package scaffold

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/omg/internal/clock"
	"github.com/openclaw/omg/pkg/node"
	"github.com/openclaw/omg/pkg/registry"
)

func TestEnsureMOCCreatesThenAppendsLinks(t *testing.T) {
	root := t.TempDir()
	reg, err := registry.Open(root, nil)
	require.NoError(t, err)
	m := NewManager(root, reg, clock.Fixed{At: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)})

	require.NoError(t, m.EnsureMOC("editor-prefs", "omg/fact/a"))
	entry, ok := reg.GetRegistryEntry(node.MOCNodeID("editor-prefs"))
	require.True(t, ok)
	assert.Contains(t, entry.Links, "omg/fact/a")

	require.NoError(t, m.EnsureMOC("editor-prefs", "omg/fact/b"))
	entry, ok = reg.GetRegistryEntry(node.MOCNodeID("editor-prefs"))
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"omg/fact/a", "omg/fact/b"}, entry.Links)
}

func TestRenderIndexListsMOCs(t *testing.T) {
	root := t.TempDir()
	reg, err := registry.Open(root, nil)
	require.NoError(t, err)
	m := NewManager(root, reg, nil)

	require.NoError(t, m.EnsureMOC("editor-prefs", "omg/fact/a"))
	require.NoError(t, m.RenderIndex())

	_, ok := reg.GetRegistryEntry("omg/index")
	assert.True(t, ok)
}

func TestRenderNowWritesFocusAndOpenLoops(t *testing.T) {
	root := t.TempDir()
	reg, err := registry.Open(root, nil)
	require.NoError(t, err)
	m := NewManager(root, reg, nil)

	require.NoError(t, m.RenderNow("debugging the ingest pipeline", []string{"finish the retry path"}, []string{"omg/fact/a"}))
	entry, ok := reg.GetRegistryEntry("omg/now")
	require.True(t, ok)
	assert.Equal(t, []string{"omg/fact/a"}, entry.Links)
}

func TestDedupAuditFlagsSimilarPairsWithinBucket(t *testing.T) {
	root := t.TempDir()
	reg, err := registry.Open(root, nil)
	require.NoError(t, err)
	now := clock.ISO8601(time.Now())

	require.NoError(t, reg.RegisterNode("omg/fact/a", registry.Entry{Type: node.TypeFact, CanonicalKey: "user.tz", Description: "User's timezone is UTC", Updated: now}))
	require.NoError(t, reg.RegisterNode("omg/fact/b", registry.Entry{Type: node.TypeFact, CanonicalKey: "user.tz", Description: "User's timezone is UTC", Updated: now}))
	require.NoError(t, reg.RegisterNode("omg/fact/c", registry.Entry{Type: node.TypeFact, CanonicalKey: "user.lang", Description: "User prefers Spanish", Updated: now}))

	pairs := DedupAudit(reg, DuplicateAuditThreshold)
	require.Len(t, pairs, 1)
	assert.Equal(t, "omg/fact/a", pairs[0].A)
	assert.Equal(t, "omg/fact/b", pairs[0].B)
}

func TestBrokenLinkAuditIgnoresMOCLinksAndKnownIDs(t *testing.T) {
	root := t.TempDir()
	reg, err := registry.Open(root, nil)
	require.NoError(t, err)

	require.NoError(t, reg.RegisterNode("omg/fact/a", registry.Entry{Type: node.TypeFact, Links: []string{"omg/fact/missing", "omg/moc-editor-prefs", "omg/fact/a"}}))

	broken := BrokenLinkAudit(reg)
	require.Len(t, broken, 1)
	assert.Equal(t, "omg/fact/missing", broken[0].Target)
}
