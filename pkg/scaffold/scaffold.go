// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package scaffold maintains the structural nodes (index, now, MOCs) and
// runs the maintenance audits named in spec.md's component table: a
// duplicate-description audit and a broken-wikilink audit.
package scaffold

import (
	"fmt"
	"sort"
	"strings"

	"github.com/openclaw/omg/internal/clock"
	"github.com/openclaw/omg/pkg/frontmatter"
	"github.com/openclaw/omg/pkg/node"
	"github.com/openclaw/omg/pkg/registry"
	"github.com/openclaw/omg/pkg/similarity"
)

// Manager owns index.md, now.md and mocs/*.md for one workspace.
type Manager struct {
	root string
	reg  *registry.Registry
	clk  clock.Clock
}

// NewManager constructs a Manager rooted at the workspace graph root.
func NewManager(root string, reg *registry.Registry, clk clock.Clock) *Manager {
	if clk == nil {
		clk = clock.System{}
	}
	return &Manager{root: root, reg: reg, clk: clk}
}

// EnsureMOC upserts the domain's MOC node so it links to nodeID, creating
// the MOC node on first reference (spec.md §3, §4, §6).
func (m *Manager) EnsureMOC(domain, nodeID string) error {
	mocID := node.MOCNodeID(domain)
	path := node.UpsertRelPath(node.TypeMOC, "", domain)
	absPath := m.root + "/" + path
	now := clock.ISO8601(m.clk.Now())

	existing, ok := m.reg.GetRegistryEntry(mocID)
	var n node.Node
	var body string
	if ok {
		doc, err := frontmatter.ParseFile(existing.FilePath)
		if err != nil {
			return fmt.Errorf("scaffold: read existing moc %s: %w", mocID, err)
		}
		n = doc.Node
		n.FilePath = existing.FilePath
		body = doc.Body
	} else {
		n = node.Node{
			ID:          mocID,
			UID:         node.ComputeUID(m.root, node.TypeMOC, domain),
			Type:        node.TypeMOC,
			Priority:    node.PriorityMedium,
			Description: fmt.Sprintf("Map of content: %s", domain),
			Created:     now,
			FilePath:    absPath,
		}
		body = fmt.Sprintf("# %s\n", domain)
	}

	link := fmt.Sprintf("[[%s]]", nodeID)
	if !strings.Contains(body, link) {
		body = strings.TrimRight(body, "\n") + "\n- " + link + "\n"
	}
	n.Links = appendUnique(n.Links, nodeID)
	n.Updated = now

	if err := n.Validate(); err != nil {
		return fmt.Errorf("scaffold: moc invariant: %w", err)
	}
	if err := frontmatter.WriteNode(n, body); err != nil {
		return fmt.Errorf("scaffold: write moc: %w", err)
	}
	return m.reg.RegisterNode(mocID, registry.Entry{
		Type: node.TypeMOC, Kind: "observation", Description: n.Description,
		Priority: n.Priority, Created: n.Created, Updated: n.Updated,
		FilePath: n.FilePath, Links: n.Links,
	})
}

// RenderIndex regenerates index.md listing every known MOC domain.
func (m *Manager) RenderIndex() error {
	path := m.root + "/index.md"
	now := clock.ISO8601(m.clk.Now())

	mocEntries := m.reg.GetRegistryEntries(&registry.Filter{Type: node.TypeMOC})
	ids := make([]string, 0, len(mocEntries))
	for id := range mocEntries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var body strings.Builder
	body.WriteString("# Index\n\n")
	for _, id := range ids {
		body.WriteString(fmt.Sprintf("- [[%s]] %s\n", id, mocEntries[id].Description))
	}

	n := node.Node{
		ID: "omg/index", Type: node.TypeIndex, Priority: node.PriorityMedium,
		Description: "Workspace index", Created: now, Updated: now, FilePath: path,
	}
	if existing, ok := m.reg.GetRegistryEntry("omg/index"); ok {
		n.Created = existing.Created
	}
	if err := n.Validate(); err != nil {
		return fmt.Errorf("scaffold: index invariant: %w", err)
	}
	if err := frontmatter.WriteNode(n, body.String()); err != nil {
		return fmt.Errorf("scaffold: write index: %w", err)
	}
	return m.reg.RegisterNode("omg/index", registry.Entry{
		Type: node.TypeIndex, Kind: "observation", Description: n.Description,
		Priority: n.Priority, Created: n.Created, Updated: n.Updated, FilePath: n.FilePath,
	})
}

// RenderNow writes now.md from a focus line and open-loop list (spec.md
// §3, §6). Called after applying an Extract NowPatch.
func (m *Manager) RenderNow(focus string, openLoops []string, links []string) error {
	path := m.root + "/now.md"
	now := clock.ISO8601(m.clk.Now())

	var body strings.Builder
	body.WriteString("# Now\n\n")
	if focus != "" {
		body.WriteString("## Focus\n" + focus + "\n\n")
	}
	if len(openLoops) > 0 {
		body.WriteString("## Open loops\n")
		for _, loop := range openLoops {
			body.WriteString("- " + loop + "\n")
		}
	}

	n := node.Node{
		ID: "omg/now", Type: node.TypeNow, Priority: node.PriorityHigh,
		Description: "Current focus and open loops", Created: now, Updated: now,
		FilePath: path, Links: links,
	}
	if existing, ok := m.reg.GetRegistryEntry("omg/now"); ok {
		n.Created = existing.Created
	}
	if err := n.Validate(); err != nil {
		return fmt.Errorf("scaffold: now invariant: %w", err)
	}
	if err := frontmatter.WriteNode(n, body.String()); err != nil {
		return fmt.Errorf("scaffold: write now: %w", err)
	}
	return m.reg.RegisterNode("omg/now", registry.Entry{
		Type: node.TypeNow, Kind: "observation", Description: n.Description,
		Priority: n.Priority, Created: n.Created, Updated: n.Updated,
		FilePath: n.FilePath, Links: n.Links,
	})
}

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}

// DuplicatePair is one finding from the dedup audit.
type DuplicatePair struct {
	A, B       string
	Similarity float64
}

// DuplicateAuditThreshold is the default cutoff for flagging a pair as a
// likely duplicate (spec.md §D supplement).
const DuplicateAuditThreshold = 0.85

// DedupAudit groups non-archived nodes by (type, keyPrefix(canonicalKey))
// and flags pairs whose combinedSimilarity is at or above threshold,
// without auto-merging (spec.md §D).
func DedupAudit(reg *registry.Registry, threshold float64) []DuplicatePair {
	entries := reg.GetRegistryEntries(&registry.Filter{})
	buckets := map[string][]string{}
	for id, e := range entries {
		key := string(e.Type) + "|" + similarity.KeyPrefix(e.CanonicalKey)
		buckets[key] = append(buckets[key], id)
	}

	var pairs []DuplicatePair
	for _, ids := range buckets {
		sort.Strings(ids)
		for i := 0; i < len(ids); i++ {
			for j := i + 1; j < len(ids); j++ {
				a, b := entries[ids[i]], entries[ids[j]]
				sim := similarity.CombinedSimilarity(a.Description, b.Description, a.CanonicalKey, b.CanonicalKey)
				if sim >= threshold {
					pairs = append(pairs, DuplicatePair{A: ids[i], B: ids[j], Similarity: sim})
				}
			}
		}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Similarity > pairs[j].Similarity })
	return pairs
}

// BrokenLink is one finding from the broken-link audit.
type BrokenLink struct {
	FromID string
	Target string
}

// BrokenLinkAudit walks every non-archived node's links[] and reports
// entries that are neither a registry id nor a known omg/moc-{domain}
// (spec.md §3 invariant, §D).
func BrokenLinkAudit(reg *registry.Registry) []BrokenLink {
	entries := reg.GetRegistryEntries(nil)
	var out []BrokenLink
	for id, e := range entries {
		if e.Archived {
			continue
		}
		for _, link := range e.Links {
			if _, ok := entries[link]; ok {
				continue
			}
			if strings.HasPrefix(link, "omg/moc-") {
				continue
			}
			out = append(out, BrokenLink{FromID: id, Target: link})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FromID != out[j].FromID {
			return out[i].FromID < out[j].FromID
		}
		return out[i].Target < out[j].Target
	})
	return out
}
