// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package retrieval implements the hybrid local+semantic merge-target
// finder (spec.md §4.6): a local pass filtered to the same type and
// canonicalKey prefix, an optional semantic pass via the host's search
// tool, unioned and scored.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/openclaw/omg/internal/clock"
	"github.com/openclaw/omg/pkg/host"
	"github.com/openclaw/omg/pkg/node"
	"github.com/openclaw/omg/pkg/registry"
	"github.com/openclaw/omg/pkg/similarity"
)

// Config tunes the finder's weights and cutoffs (spec.md §4.6).
type Config struct {
	LocalTopM       int     // default 50
	SemanticTopS    int     // default 20
	LocalWeight     float64 // default 0.6
	SemanticWeight  float64 // default 0.4
	MergeThreshold  float64 // default 0.72
	TopK            int     // default 5
}

// DefaultConfig returns the defaults named in spec.md §4.6.
func DefaultConfig() Config {
	return Config{
		LocalTopM:      50,
		SemanticTopS:   20,
		LocalWeight:    0.6,
		SemanticWeight: 0.4,
		MergeThreshold: 0.72,
		TopK:           5,
	}
}

// Target is one scored merge-target candidate.
type Target struct {
	ID           string
	FinalScore   float64
	Description  string
	CanonicalKey string
}

// CandidateQuery is the minimal shape of the thing being merge-targeted.
type CandidateQuery struct {
	Type         node.Type
	Title        string
	CanonicalKey string
	Description  string
	Priority     node.Priority
}

// Finder runs FindMergeTargets against a registry and an optional memory
// tool.
type Finder struct {
	reg    *registry.Registry
	memory host.MemoryTool // nil => local-only
	cfg    Config
	clk    clock.Clock
	logger *slog.Logger
}

// NewFinder constructs a Finder. memory may be nil to disable the
// semantic pass entirely.
func NewFinder(reg *registry.Registry, memory host.MemoryTool, cfg Config, clk clock.Clock, logger *slog.Logger) *Finder {
	if clk == nil {
		clk = clock.System{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Finder{reg: reg, memory: memory, cfg: cfg, clk: clk, logger: logger}
}

// FindMergeTargets runs the two-pass hybrid lookup and returns up to TopK
// targets at or above MergeThreshold, sorted descending (spec.md §4.6).
func (f *Finder) FindMergeTargets(ctx context.Context, q CandidateQuery) []Target {
	local := f.localPass(q)
	semantic := f.semanticPass(ctx, q)

	combined := map[string]*Target{}
	localScore := map[string]float64{}
	semanticScore := map[string]float64{}

	for id, score := range local {
		localScore[id] = score
	}
	for id, score := range semantic {
		semanticScore[id] = score
	}

	ids := map[string]bool{}
	for id := range localScore {
		ids[id] = true
	}
	for id := range semanticScore {
		ids[id] = true
	}

	for id := range ids {
		entry, ok := f.reg.GetRegistryEntry(id)
		if !ok || entry.Archived {
			continue
		}
		final := f.cfg.LocalWeight*localScore[id] + f.cfg.SemanticWeight*semanticScore[id]
		if entry.Priority == node.PriorityHigh {
			final += 0.1
		}
		if withinDays(entry.Updated, f.clk, 7) {
			final += 0.05
		}
		if entry.Type == q.Type {
			final += 0.05
		}
		if final >= f.cfg.MergeThreshold {
			combined[id] = &Target{ID: id, FinalScore: final, Description: entry.Description, CanonicalKey: entry.CanonicalKey}
		}
	}

	out := make([]Target, 0, len(combined))
	for _, t := range combined {
		out = append(out, *t)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].FinalScore > out[j].FinalScore })
	if len(out) > f.cfg.TopK {
		out = out[:f.cfg.TopK]
	}
	return out
}

// localPass filters the registry to the same type and canonicalKey
// prefix, scores by combinedSimilarity, and keeps the top M.
func (f *Finder) localPass(q CandidateQuery) map[string]float64 {
	prefix := similarity.KeyPrefix(q.CanonicalKey)
	entries := f.reg.GetRegistryEntries(&registry.Filter{Type: q.Type})

	type scored struct {
		id    string
		score float64
	}
	var scoredList []scored
	for id, e := range entries {
		if similarity.KeyPrefix(e.CanonicalKey) != prefix {
			continue
		}
		score := similarity.CombinedSimilarity(q.Description, e.Description, q.CanonicalKey, e.CanonicalKey)
		scoredList = append(scoredList, scored{id, score})
	}
	sort.SliceStable(scoredList, func(i, j int) bool { return scoredList[i].score > scoredList[j].score })
	if len(scoredList) > f.cfg.LocalTopM {
		scoredList = scoredList[:f.cfg.LocalTopM]
	}
	out := map[string]float64{}
	for _, s := range scoredList {
		out[s.id] = s.score
	}
	return out
}

// semanticPass queries the host's memory-search tool and maps results
// back onto registry node ids via filePath. Degrades silently on any
// failure (spec.md §4.6).
func (f *Finder) semanticPass(ctx context.Context, q CandidateQuery) map[string]float64 {
	out := map[string]float64{}
	if f.memory == nil {
		return out
	}
	query := fmt.Sprintf("%s %s %s", q.Title, q.CanonicalKey, q.Description)
	resp, err := f.memory.Search(ctx, query)
	if err != nil || resp == nil || resp.Disabled {
		if err != nil {
			f.logger.Warn("retrieval.semantic_pass_failed", "error", err)
		}
		return out
	}

	pathToID := map[string]string{}
	for id, e := range f.reg.GetRegistryEntries(nil) {
		pathToID[e.FilePath] = id
	}

	results := resp.Results
	if len(results) > f.cfg.SemanticTopS {
		results = results[:f.cfg.SemanticTopS]
	}
	for _, r := range results {
		if id, ok := pathToID[r.FilePath]; ok {
			out[id] = r.Score
		}
	}
	return out
}

func withinDays(updated string, clk clock.Clock, days int) bool {
	t, ok := clock.ParseISO8601(updated)
	if !ok {
		return false
	}
	return clk.Now().Sub(t) <= time.Duration(days)*24*time.Hour
}
