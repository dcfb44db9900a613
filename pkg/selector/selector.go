// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package selector implements the two-pass context scorer: a cheap
// metadata-only ranking pass followed by a hydrated re-scoring pass,
// fit within a token budget and rendered as XML (spec.md §4.8).
package selector

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/openclaw/omg/internal/clock"
	"github.com/openclaw/omg/pkg/frontmatter"
	"github.com/openclaw/omg/pkg/host"
	"github.com/openclaw/omg/pkg/node"
	"github.com/openclaw/omg/pkg/registry"
)

// Config tunes budgets and caps (spec.md §4.8).
type Config struct {
	MaxContextTokens int
	MaxMocs          int
	MaxNodes         int
}

// DefaultConfig returns reasonable defaults for a single-turn injection.
func DefaultConfig() Config {
	return Config{MaxContextTokens: 6000, MaxMocs: 5, MaxNodes: 40}
}

// EstimateTokens approximates token count as ceil(chars/4) (spec.md §4.8).
func EstimateTokens(s string) int {
	if s == "" {
		return 0
	}
	return (len(s) + 3) / 4
}

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "that": true, "this": true,
	"with": true, "from": true, "have": true, "has": true, "was": true,
	"were": true, "are": true, "you": true, "your": true, "about": true,
	"what": true, "when": true, "where": true, "which": true, "would": true,
	"could": true, "should": true, "there": true, "their": true, "they": true,
	"them": true, "then": true, "than": true, "been": true, "being": true,
	"into": true, "over": true, "more": true, "some": true, "such": true,
	"just": true, "like": true, "will": true, "also": true, "each": true,
}

// ExtractKeywords lowercases s, splits on non-alphanumeric Unicode
// boundaries, and keeps words longer than 3 characters that aren't a
// fixed English stopword (spec.md §4.8).
func ExtractKeywords(s string) []string {
	var out []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() == 0 {
			return
		}
		w := strings.ToLower(cur.String())
		cur.Reset()
		if len([]rune(w)) > 3 && !stopwords[w] {
			out = append(out, w)
		}
	}
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			cur.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return out
}

// adaptivePrefixLen returns max(3, floor(min(len(kw),len(tag))*0.75)) to
// allow prefix matches to absorb inflected forms (spec.md §4.8).
func adaptivePrefixLen(kw, tag string) int {
	m := len(kw)
	if len(tag) < m {
		m = len(tag)
	}
	n := int(math.Floor(float64(m) * 0.75))
	if n < 3 {
		n = 3
	}
	return n
}

func keywordMatchesTag(kw, tag string) bool {
	n := adaptivePrefixLen(kw, tag)
	if len(kw) < n || len(tag) < n {
		return kw == tag
	}
	return kw[:n] == tag[:n]
}

// metadataScore scores a registry entry using only metadata: keyword
// match over description+tags, priority weight, and recency (spec.md
// §4.8 pass 1).
func metadataScore(e registry.Entry, keywords []string, clk clock.Clock) float64 {
	km := 1.0
	if len(keywords) > 0 {
		matches := 0
		haystack := strings.ToLower(e.Description)
		for _, kw := range keywords {
			if strings.Contains(haystack, kw) {
				matches++
				continue
			}
			for _, tag := range e.Tags {
				if keywordMatchesTag(kw, strings.ToLower(tag)) {
					matches++
					break
				}
			}
		}
		km = 1 + 0.5*float64(matches)
	}
	return km * e.Priority.Weight() * recencyFactor(e.Updated, clk)
}

func recencyFactor(updated string, clk clock.Clock) float64 {
	t, ok := clock.ParseISO8601(updated)
	if !ok {
		return 0.5
	}
	ageDays := clk.Now().Sub(t).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	f := 1 - ageDays*0.02
	if f < 0.5 {
		return 0.5
	}
	return f
}

// scoredEntry threads a registry entry through both scoring passes.
type scoredEntry struct {
	id    string
	entry registry.Entry
	score float64
	body  string
}

// Selection is the final, budget-fit slice of the graph to inject.
type Selection struct {
	Index   *scoredEntry
	Now     *scoredEntry
	Pinned  []scoredEntry
	MOCs    []scoredEntry
	Regular []scoredEntry
	Dropped int
}

// Selector runs the two-pass selection.
type Selector struct {
	root   string
	reg    *registry.Registry
	memory host.MemoryTool
	cfg    Config
	clk    clock.Clock
	logger *slog.Logger
}

// NewSelector constructs a Selector. memory may be nil to disable the
// semantic boosting pass.
func NewSelector(root string, reg *registry.Registry, memory host.MemoryTool, cfg Config, clk clock.Clock, logger *slog.Logger) *Selector {
	if clk == nil {
		clk = clock.System{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Selector{root: root, reg: reg, memory: memory, cfg: cfg, clk: clk, logger: logger}
}

// Select runs pass 1 (metadata scoring + optional semantic search),
// pass 2 (hydration + re-scoring), and fits the result to the token
// budget (spec.md §4.8).
func (s *Selector) Select(ctx context.Context, prompt string, pinned []string) Selection {
	keywords := ExtractKeywords(prompt)
	entries := s.reg.GetRegistryEntries(nil)

	pass1 := make([]scoredEntry, 0, len(entries))
	for id, e := range entries {
		if id == "omg/index" || id == "omg/now" {
			continue
		}
		pass1 = append(pass1, scoredEntry{id: id, entry: e, score: metadataScore(e, keywords, s.clk)})
	}

	s.boostWithSemanticSearch(ctx, prompt, pass1)

	var mocCandidates, regularCandidates []scoredEntry
	for _, se := range pass1 {
		if se.entry.Type == node.TypeMOC {
			mocCandidates = append(mocCandidates, se)
		} else {
			regularCandidates = append(regularCandidates, se)
		}
	}
	sort.SliceStable(mocCandidates, func(i, j int) bool { return mocCandidates[i].score > mocCandidates[j].score })
	sort.SliceStable(regularCandidates, func(i, j int) bool { return regularCandidates[i].score > regularCandidates[j].score })

	mocCap := 3 * s.cfg.MaxMocs
	if len(mocCandidates) > mocCap {
		mocCandidates = mocCandidates[:mocCap]
	}
	if len(regularCandidates) > 200 {
		regularCandidates = regularCandidates[:200]
	}

	s.hydrate(mocCandidates)
	s.hydrate(regularCandidates)
	s.rescore(mocCandidates, keywords)
	s.rescore(regularCandidates, keywords)

	sort.SliceStable(mocCandidates, func(i, j int) bool { return mocCandidates[i].score > mocCandidates[j].score })
	sort.SliceStable(regularCandidates, func(i, j int) bool { return regularCandidates[i].score > regularCandidates[j].score })

	var pinnedEntries []scoredEntry
	pinnedSet := map[string]bool{}
	for _, id := range pinned {
		pinnedSet[id] = true
		if e, ok := entries[id]; ok {
			se := scoredEntry{id: id, entry: e}
			s.hydrateOne(&se)
			pinnedEntries = append(pinnedEntries, se)
		}
	}

	mocCandidates = removeIDs(mocCandidates, pinnedSet)
	regularCandidates = removeIDs(regularCandidates, pinnedSet)

	if len(mocCandidates) > s.cfg.MaxMocs {
		mocCandidates = mocCandidates[:s.cfg.MaxMocs]
	}
	if len(regularCandidates) > s.cfg.MaxNodes {
		regularCandidates = regularCandidates[:s.cfg.MaxNodes]
	}

	sel := Selection{}
	if e, ok := entries["omg/index"]; ok {
		se := scoredEntry{id: "omg/index", entry: e}
		s.hydrateOne(&se)
		sel.Index = &se
	}
	if e, ok := entries["omg/now"]; ok {
		se := scoredEntry{id: "omg/now", entry: e}
		s.hydrateOne(&se)
		sel.Now = &se
	}
	sel.Pinned = pinnedEntries

	budget := s.cfg.MaxContextTokens
	if sel.Index != nil {
		budget -= EstimateTokens(sel.Index.body)
	}
	if sel.Now != nil {
		budget -= EstimateTokens(sel.Now.body)
	}
	for _, p := range sel.Pinned {
		budget -= EstimateTokens(p.body)
	}
	if budget < 0 {
		budget = 0
	}

	// Reserve at most half the remainder for MOCs, but roll whatever they
	// don't actually use back into the regular pass rather than stranding
	// it (spec.md §4.8, §8 scenario 5).
	mocBudget := budget / 2
	sel.MOCs, sel.Dropped = fitBudget(mocCandidates, mocBudget, sel.Dropped)
	mocTokensUsed := 0
	for _, m := range sel.MOCs {
		mocTokensUsed += EstimateTokens(m.body)
	}
	regularBudget := budget - mocTokensUsed

	sel.Regular, sel.Dropped = fitBudget(regularCandidates, regularBudget, sel.Dropped)

	return sel
}

// fitBudget greedily keeps highest-scored entries (already sorted
// descending) until the token budget is exhausted, dropping the rest
// (spec.md §4.8, §8 scenario 5).
func fitBudget(candidates []scoredEntry, budget int, droppedSoFar int) ([]scoredEntry, int) {
	var kept []scoredEntry
	used := 0
	dropped := droppedSoFar
	for _, c := range candidates {
		cost := EstimateTokens(c.body)
		if used+cost > budget {
			dropped++
			continue
		}
		used += cost
		kept = append(kept, c)
	}
	return kept, dropped
}

func removeIDs(list []scoredEntry, remove map[string]bool) []scoredEntry {
	out := list[:0:0]
	for _, e := range list {
		if !remove[e.id] {
			out = append(out, e)
		}
	}
	return out
}

func (s *Selector) hydrate(list []scoredEntry) {
	for i := range list {
		s.hydrateOne(&list[i])
	}
}

func (s *Selector) hydrateOne(se *scoredEntry) {
	doc, err := frontmatter.ParseFile(se.entry.FilePath)
	if err != nil {
		se.body = ""
		return
	}
	se.body = doc.Body
}

func (s *Selector) rescore(list []scoredEntry, keywords []string) {
	for i := range list {
		bodyKm := 1.0
		if len(keywords) > 0 {
			matches := 0
			haystack := strings.ToLower(list[i].entry.Description + " " + list[i].body)
			for _, kw := range keywords {
				if strings.Contains(haystack, kw) {
					matches++
				}
			}
			bodyKm = 1 + 0.5*float64(matches)
		}
		list[i].score = bodyKm * list[i].entry.Priority.Weight() * recencyFactor(list[i].entry.Updated, s.clk)
	}
}

// boostWithSemanticSearch runs the host's search tool in parallel with
// (conceptually) the metadata pass and boosts any matched node's score.
// Failures degrade silently (spec.md §4.8, §4.6).
func (s *Selector) boostWithSemanticSearch(ctx context.Context, prompt string, pass1 []scoredEntry) {
	if s.memory == nil {
		return
	}
	resp, err := s.memory.Search(ctx, prompt)
	if err != nil || resp == nil || resp.Disabled {
		if err != nil {
			s.logger.Warn("selector.semantic_search_failed", "error", err)
		}
		return
	}
	pathToScore := map[string]float64{}
	for _, r := range resp.Results {
		pathToScore[r.FilePath] = r.Score
	}
	for i := range pass1 {
		if boost, ok := pathToScore[pass1[i].entry.FilePath]; ok {
			pass1[i].score += boost
		}
	}
}
