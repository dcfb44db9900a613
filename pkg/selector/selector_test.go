// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package selector

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/omg/internal/clock"
	"github.com/openclaw/omg/pkg/frontmatter"
	"github.com/openclaw/omg/pkg/node"
	"github.com/openclaw/omg/pkg/registry"
)

func TestExtractKeywordsDropsStopwordsAndShortWords(t *testing.T) {
	kws := ExtractKeywords("What is the user's favorite editor theme?")
	assert.Contains(t, kws, "favorite")
	assert.Contains(t, kws, "editor")
	assert.Contains(t, kws, "theme")
	assert.NotContains(t, kws, "the")
	assert.NotContains(t, kws, "is")
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("abc"))
	assert.Equal(t, 3, EstimateTokens("0123456789"))
}

func writeEntry(t *testing.T, root string, reg *registry.Registry, id string, n node.Node, body string) {
	t.Helper()
	n.ID = id
	n.FilePath = root + "/" + n.CanonicalKey + ".md"
	require.NoError(t, frontmatter.WriteNode(n, body))
	require.NoError(t, reg.RegisterNode(id, registry.Entry{
		Type: n.Type, CanonicalKey: n.CanonicalKey, Priority: n.Priority,
		Description: n.Description, Updated: n.Updated, FilePath: n.FilePath,
	}))
}

func TestSelectFitsWithinBudgetAndReportsDropped(t *testing.T) {
	root := t.TempDir()
	reg, err := registry.Open(root, nil)
	require.NoError(t, err)

	now := clock.ISO8601(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	for i := 0; i < 10; i++ {
		writeEntry(t, root, reg, "omg/fact/n"+string(rune('a'+i)), node.Node{
			CanonicalKey: "key" + string(rune('a'+i)), Type: node.TypeFact, Priority: node.PriorityMedium,
			Created: now, Updated: now, Description: "editor theme preference",
		}, "some body content describing the editor theme preference in detail")
	}

	cfg := Config{MaxContextTokens: 20, MaxMocs: 5, MaxNodes: 40}
	sel := NewSelector(root, reg, nil, cfg, clock.Fixed{At: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}, nil)
	selection := sel.Select(context.Background(), "what is my editor theme", nil)

	assert.LessOrEqual(t, len(selection.Regular), 10)
	assert.GreaterOrEqual(t, selection.Dropped, 0)
}

func TestSelectAlwaysIncludesPinnedEvenIfLowScoring(t *testing.T) {
	root := t.TempDir()
	reg, err := registry.Open(root, nil)
	require.NoError(t, err)

	now := clock.ISO8601(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	writeEntry(t, root, reg, "omg/fact/pin", node.Node{
		CanonicalKey: "pin", Type: node.TypeFact, Priority: node.PriorityLow,
		Created: now, Updated: now, Description: "irrelevant unrelated content",
	}, "irrelevant body")

	sel := NewSelector(root, reg, nil, DefaultConfig(), nil, nil)
	selection := sel.Select(context.Background(), "something else entirely", []string{"omg/fact/pin"})
	require.Len(t, selection.Pinned, 1)
	assert.Equal(t, "omg/fact/pin", selection.Pinned[0].id)
}

func TestSelectRollsUnusedMOCBudgetIntoRegularPass(t *testing.T) {
	root := t.TempDir()
	reg, err := registry.Open(root, nil)
	require.NoError(t, err)

	now := clock.ISO8601(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	writeEntry(t, root, reg, "omg/index", node.Node{
		CanonicalKey: "idx-key", Type: node.TypeIndex, Priority: node.PriorityMedium,
		Created: now, Updated: now, Description: "index",
	}, strings.Repeat("i", 160))
	writeEntry(t, root, reg, "omg/now", node.Node{
		CanonicalKey: "now-key", Type: node.TypeNow, Priority: node.PriorityMedium,
		Created: now, Updated: now, Description: "now",
	}, strings.Repeat("n", 80))
	writeEntry(t, root, reg, "omg/fact/big", node.Node{
		CanonicalKey: "big", Type: node.TypeFact, Priority: node.PriorityMedium,
		Created: now, Updated: now, Description: "editor theme preference",
	}, strings.Repeat("b", 240))
	writeEntry(t, root, reg, "omg/fact/small", node.Node{
		CanonicalKey: "small", Type: node.TypeFact, Priority: node.PriorityMedium,
		Created: now, Updated: now, Description: "editor theme preference",
	}, strings.Repeat("s", 120))

	// No MOCs exist, so the full 38-token remainder after index (41) and
	// now (21) must roll into the regular pass: the 31-token node fits,
	// the 61-token node is dropped (spec.md §8 scenario 5). Each count
	// includes the trailing newline the node writer appends to the body.
	cfg := Config{MaxContextTokens: 100, MaxMocs: 5, MaxNodes: 40}
	sel := NewSelector(root, reg, nil, cfg, clock.Fixed{At: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}, nil)
	selection := sel.Select(context.Background(), "editor theme", nil)

	require.Empty(t, selection.MOCs)
	require.Len(t, selection.Regular, 1)
	assert.Equal(t, "omg/fact/small", selection.Regular[0].id)
	assert.Equal(t, 1, selection.Dropped)
}

func TestRenderWrapsInOmgContextTag(t *testing.T) {
	sel := Selection{Regular: []scoredEntry{{id: "omg/fact/x", entry: registryEntryStub(), body: "hello"}}}
	out := Render(sel)
	assert.Contains(t, out, "<omg-context>")
	assert.Contains(t, out, "</omg-context>")
	assert.Contains(t, out, "hello")
}

func registryEntryStub() registry.Entry {
	return registry.Entry{Type: node.TypeFact, Priority: node.PriorityMedium, Description: "desc"}
}
