// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package mergeexec applies a merge plan durably: read the keeper, patch
// its frontmatter, atomically write it, then archive every loser with
// mergedInto provenance (spec.md §4.7).
package mergeexec

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/openclaw/omg/internal/clock"
	omgerrors "github.com/openclaw/omg/internal/errors"
	"github.com/openclaw/omg/pkg/frontmatter"
	"github.com/openclaw/omg/pkg/registry"
)

// Patch is the optional overlay applied to the keeper (spec.md §4.7).
type Patch struct {
	Description *string
	Tags        []string
	Links       []string
	BodyAppend  string
}

// Plan is one merge operation: a keeper absorbing zero or more losers and
// zero or more alias keys.
type Plan struct {
	KeepNodeID  string
	MergeNodeIDs []string
	AliasKeys   []string
	Conflicts   []string
	Patch       Patch
}

// AuditEntry records one executed merge for provenance (spec.md §4.7).
type AuditEntry struct {
	ID             string
	Timestamp      string
	KeepNodeID     string
	MergedNodeIDs  []string
	AliasKeys      []string
	Conflicts      []string
	Patch          Patch
	ArchivedCount  int
}

// Executor applies merge plans against a registry and the filesystem.
type Executor struct {
	root   string
	reg    *registry.Registry
	clk    clock.Clock
	logger *slog.Logger
}

// NewExecutor constructs an Executor rooted at the workspace graph root.
func NewExecutor(root string, reg *registry.Registry, clk clock.Clock, logger *slog.Logger) *Executor {
	if clk == nil {
		clk = clock.System{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{root: root, reg: reg, clk: clk, logger: logger}
}

// Apply executes plan. If the keeper file cannot be read, the whole merge
// is failed and no loser is archived, preventing content loss (spec.md
// §4.7, §8).
func (ex *Executor) Apply(plan Plan) (*AuditEntry, error) {
	keeperEntry, ok := ex.reg.GetRegistryEntry(plan.KeepNodeID)
	if !ok {
		return nil, fmt.Errorf("mergeexec: keeper %s not in registry", plan.KeepNodeID)
	}
	doc, err := frontmatter.ParseFile(keeperEntry.FilePath)
	if err != nil {
		return nil, fmt.Errorf("mergeexec: read keeper %s: %w", plan.KeepNodeID, err)
	}

	keeper := doc.Node
	keeper.FilePath = keeperEntry.FilePath
	body := doc.Body

	keeper.Tags = unionStrings(keeper.Tags, plan.Patch.Tags)
	keeper.Links = unionStrings(keeper.Links, plan.Patch.Links)
	keeper.Aliases = unionStrings(keeper.Aliases, plan.AliasKeys)
	keeper.MergedFrom = unionStrings(keeper.MergedFrom, plan.MergeNodeIDs)
	if plan.Patch.Description != nil {
		keeper.Description = *plan.Patch.Description
	}
	if plan.Patch.BodyAppend != "" {
		if body != "" && body[len(body)-1] != '\n' {
			body += "\n"
		}
		body += plan.Patch.BodyAppend
	}
	now := clock.ISO8601(ex.clk.Now())
	keeper.Updated = now

	if err := keeper.Validate(); err != nil {
		return nil, fmt.Errorf("mergeexec: patched keeper invalid: %w", err)
	}
	if err := frontmatter.WriteNode(keeper, body); err != nil {
		return nil, fmt.Errorf("mergeexec: write keeper: %w", err)
	}
	if err := ex.reg.UpdateRegistryEntry(plan.KeepNodeID, func(e registry.Entry) registry.Entry {
		e.Description = keeper.Description
		e.Updated = keeper.Updated
		e.Tags = keeper.Tags
		e.Links = keeper.Links
		return e
	}); err != nil {
		return nil, fmt.Errorf("mergeexec: update keeper registry entry: %w", err)
	}

	archived := 0
	for _, loserID := range plan.MergeNodeIDs {
		loserEntry, ok := ex.reg.GetRegistryEntry(loserID)
		if !ok {
			ex.logger.Warn("mergeexec.loser_missing_from_registry", "loser", loserID)
			continue
		}
		loserDoc, err := frontmatter.ParseFile(loserEntry.FilePath)
		if err != nil {
			ex.logger.Warn("mergeexec.loser_read_failed", "loser", loserID, "error", err)
			continue
		}
		loser := loserDoc.Node
		loser.FilePath = loserEntry.FilePath
		loser.Archived = true
		loser.MergedInto = plan.KeepNodeID
		loser.Updated = now
		if err := frontmatter.WriteNode(loser, loserDoc.Body); err != nil {
			ex.logger.Warn("mergeexec.loser_write_failed", "loser", loserID, "error", err)
			continue
		}
		if err := ex.reg.UpdateRegistryEntry(loserID, func(e registry.Entry) registry.Entry {
			e.Archived = true
			e.Updated = now
			return e
		}); err != nil {
			ex.logger.Warn("mergeexec.loser_registry_update_failed", "loser", loserID, "error", err)
			continue
		}
		archived++
	}

	return &AuditEntry{
		ID:            uuid.NewString(),
		Timestamp:     now,
		KeepNodeID:    plan.KeepNodeID,
		MergedNodeIDs: plan.MergeNodeIDs,
		AliasKeys:     plan.AliasKeys,
		Conflicts:     plan.Conflicts,
		Patch:         plan.Patch,
		ArchivedCount: archived,
	}, nil
}

func unionStrings(base []string, add []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(base)+len(add))
	for _, s := range base {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, s := range add {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
