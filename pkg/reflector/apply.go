// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package reflector

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/openclaw/omg/internal/clock"
	omgerrors "github.com/openclaw/omg/internal/errors"
	"github.com/openclaw/omg/pkg/frontmatter"
	"github.com/openclaw/omg/pkg/node"
	"github.com/openclaw/omg/pkg/registry"
	"github.com/openclaw/omg/pkg/scaffold"
)

// Applier writes an accepted Synthesis to the graph: a new reflection
// node, archive flags on its sources, MOC links, and any requested field
// updates (spec.md §4.12).
type Applier struct {
	Root     string
	Reg      *registry.Registry
	Scaffold *scaffold.Manager
	Clock    clock.Clock
}

// Apply persists syn and returns the new reflection node's id.
func (a *Applier) Apply(canonicalKey string, syn Synthesis) (string, error) {
	if syn.Description == "" || strings.TrimSpace(syn.Body) == "" {
		return "", omgerrors.NewInvariantViolation("synthesis", "description and body are required")
	}

	now := clock.ISO8601(a.now())
	id := node.DeriveID(node.TypeReflection, canonicalKey, syn.Description)
	uid := node.ComputeUID(a.Root, node.TypeReflection, canonicalKey)
	path := node.UpsertRelPath(node.TypeReflection, canonicalKey, syn.Description)

	n := node.Node{
		ID: id, UID: uid, CanonicalKey: canonicalKey, Type: node.TypeReflection,
		Priority: node.PriorityMedium, Created: now, Updated: now,
		Description: syn.Description, Tags: syn.Tags, Links: syn.ArchiveSourceIDs,
		CompressionLevel: syn.CompressionLevel,
		FilePath:         filepath.Join(a.Root, path),
	}
	if err := n.Validate(); err != nil {
		return "", fmt.Errorf("reflector: invariant: %w", err)
	}
	if err := frontmatter.WriteNode(n, syn.Body); err != nil {
		return "", fmt.Errorf("reflector: write reflection node: %w", err)
	}
	if err := a.Reg.RegisterNode(id, registry.Entry{
		Type: n.Type, Kind: "reflection", Description: n.Description,
		Priority: n.Priority, Created: n.Created, Updated: n.Updated,
		FilePath: n.FilePath, Links: n.Links, Tags: n.Tags, CanonicalKey: n.CanonicalKey,
	}); err != nil {
		return "", fmt.Errorf("reflector: register reflection node: %w", err)
	}

	for _, sourceID := range syn.ArchiveSourceIDs {
		if err := a.archive(sourceID, id); err != nil {
			return id, fmt.Errorf("reflector: archive source %s: %w", sourceID, err)
		}
	}

	for _, domain := range syn.MOCDomains {
		if err := a.Scaffold.EnsureMOC(domain, id); err != nil {
			return id, fmt.Errorf("reflector: moc update for %s: %w", domain, err)
		}
	}

	for _, fu := range syn.FieldUpdates {
		if err := a.applyFieldUpdate(fu); err != nil {
			return id, fmt.Errorf("reflector: field update on %s: %w", fu.NodeID, err)
		}
	}

	return id, nil
}

// archive sets archived=true and mergedInto on a source node, mirroring
// the merge executor's keeper/loser convention (spec.md §4.5, §4.12):
// archived nodes are never deleted, only flagged and pointed at their
// replacement.
func (a *Applier) archive(sourceID, reflectionID string) error {
	entry, ok := a.Reg.GetRegistryEntry(sourceID)
	if !ok {
		return omgerrors.NewInvariantViolation("archive-source", sourceID+" not found")
	}
	doc, err := frontmatter.ParseFile(entry.FilePath)
	if err != nil {
		return err
	}
	n := doc.Node
	n.Archived = true
	n.MergedInto = reflectionID
	n.Updated = clock.ISO8601(a.now())
	if err := frontmatter.WriteNode(n, doc.Body); err != nil {
		return err
	}
	return a.Reg.UpdateRegistryEntry(sourceID, func(e registry.Entry) registry.Entry {
		e.Archived = true
		e.Updated = n.Updated
		return e
	})
}

func (a *Applier) applyFieldUpdate(fu FieldUpdate) error {
	entry, ok := a.Reg.GetRegistryEntry(fu.NodeID)
	if !ok {
		return omgerrors.NewInvariantViolation("field-update-node", fu.NodeID+" not found")
	}
	doc, err := frontmatter.ParseFile(entry.FilePath)
	if err != nil {
		return err
	}
	n := doc.Node
	body := doc.Body

	switch fu.Field {
	case "body":
		switch fu.Action {
		case "set":
			body = fu.Value
		case "add":
			body = strings.TrimRight(body, "\n") + "\n\n" + fu.Value + "\n"
		}
	case "tags":
		switch fu.Action {
		case "set":
			n.Tags = splitCommaTrim(fu.Value)
		case "add":
			n.Tags = appendUnique(n.Tags, fu.Value)
		case "remove":
			n.Tags = removeString(n.Tags, fu.Value)
		}
	case "priority":
		if p, ok := node.ParsePriority(fu.Value); ok {
			n.Priority = p
		}
	}
	n.Updated = clock.ISO8601(a.now())

	if err := n.Validate(); err != nil {
		return fmt.Errorf("invariant after field update: %w", err)
	}
	if err := frontmatter.WriteNode(n, body); err != nil {
		return err
	}
	return a.Reg.UpdateRegistryEntry(fu.NodeID, func(e registry.Entry) registry.Entry {
		e.Tags = n.Tags
		e.Priority = n.Priority
		e.Updated = n.Updated
		return e
	})
}

func (a *Applier) now() time.Time {
	if a.Clock == nil {
		return clock.System{}.Now()
	}
	return a.Clock.Now()
}

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}

func removeString(list []string, v string) []string {
	out := make([]string, 0, len(list))
	for _, x := range list {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}
