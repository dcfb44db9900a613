// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package graph builds the forward/backward adjacency cache over a
// registry's links[] fields and answers neighbor, backlink, path and
// subgraph queries (spec.md §4.2).
package graph

import (
	"sort"
	"strings"
	"sync"

	"github.com/openclaw/omg/internal/clock"
	"github.com/openclaw/omg/pkg/registry"
)

// Direction selects which adjacency edges getNeighbors traverses.
type Direction string

const (
	Forward  Direction = "forward"
	Backward Direction = "backward"
	Both     Direction = "both"
)

// Cache is the adjacency cache for one workspace. It is rebuild-on-miss:
// no locking is required for reads beyond the mutex that guards a rebuild
// in flight, per spec.md §5 ("no locking is needed for reads").
type Cache struct {
	mu         sync.RWMutex
	entryCount int
	forward    map[string][]string
	backward   map[string][]string
	entries    map[string]registry.Entry
	clock      clock.Clock
}

// NewCache constructs an empty cache; the first traversal call builds it.
func NewCache(c clock.Clock) *Cache {
	if c == nil {
		c = clock.System{}
	}
	return &Cache{clock: c}
}

// ensureBuilt rebuilds the adjacency maps if the registry's entry count
// has changed since the last build, or if the cache has never been built.
func (c *Cache) ensureBuilt(reg *registry.Registry) {
	entries := reg.GetRegistryEntries(nil)
	c.mu.RLock()
	stale := c.forward == nil || len(entries) != c.entryCount
	c.mu.RUnlock()
	if !stale {
		return
	}

	forward := map[string][]string{}
	backward := map[string][]string{}
	for id, e := range entries {
		if e.Archived {
			continue
		}
		for _, link := range e.Links {
			if link == id {
				continue // filter self-edges
			}
			if _, ok := entries[link]; !ok && !strings.HasPrefix(link, "omg/moc-") {
				continue
			}
			forward[id] = append(forward[id], link)
			backward[link] = append(backward[link], id)
		}
	}

	c.mu.Lock()
	c.forward = forward
	c.backward = backward
	c.entries = entries
	c.entryCount = len(entries)
	c.mu.Unlock()
}

// Clear forces the next traversal to rebuild the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.forward = nil
	c.backward = nil
	c.entries = nil
	c.entryCount = 0
	c.mu.Unlock()
}

// Neighbor is one scored result from GetNeighbors.
type Neighbor struct {
	ID       string
	Score    float64
	Distance int
}

// GetNeighbors returns nodes reachable from id within depth hops in the
// given direction, scored and sorted descending (spec.md §4.2, §8).
func (c *Cache) GetNeighbors(reg *registry.Registry, id string, dir Direction, depth int, keywords []string) []Neighbor {
	c.ensureBuilt(reg)
	c.mu.RLock()
	defer c.mu.RUnlock()

	if depth < 1 {
		depth = 1
	}
	if depth > 2 {
		depth = 2
	}

	distances := map[string]int{}
	order := []string{}
	frontier := []string{id}
	distances[id] = 0

	for d := 1; d <= depth; d++ {
		var next []string
		for _, cur := range frontier {
			for _, nb := range c.edgesFor(cur, dir) {
				if _, seen := distances[nb]; seen {
					continue
				}
				distances[nb] = d
				order = append(order, nb)
				next = append(next, nb)
			}
		}
		frontier = next
		if len(frontier) == 0 {
			break
		}
	}

	results := make([]Neighbor, 0, len(order))
	for _, nbID := range order {
		entry, ok := c.entries[nbID]
		if !ok {
			continue
		}
		score := neighborScore(entry, distances[nbID], keywords, c.clock)
		results = append(results, Neighbor{ID: nbID, Score: score, Distance: distances[nbID]})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return results
}

func (c *Cache) edgesFor(id string, dir Direction) []string {
	switch dir {
	case Forward:
		return c.forward[id]
	case Backward:
		return c.backward[id]
	default:
		edges := append([]string{}, c.forward[id]...)
		edges = append(edges, c.backward[id]...)
		return edges
	}
}

// neighborScore implements score = keywordMatch × priorityWeight ×
// recencyFactor × distanceDecay (spec.md §4.2).
func neighborScore(e registry.Entry, distance int, keywords []string, clk clock.Clock) float64 {
	km := keywordMatch(e, keywords)
	pw := e.Priority.Weight()
	rf := recencyFactor(e.Updated, clk)
	dd := 1.0
	if distance >= 2 {
		dd = 0.6
	}
	return km * pw * rf * dd
}

func keywordMatch(e registry.Entry, keywords []string) float64 {
	if len(keywords) == 0 {
		return 1.0
	}
	haystack := strings.ToLower(e.Description + " " + strings.Join(e.Tags, " ") + " " + e.CanonicalKey)
	matches := 0
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(haystack, strings.ToLower(kw)) {
			matches++
		}
	}
	return 1 + 0.5*float64(matches)
}

// recencyFactor returns max(0.5, 1 - ageDays*0.02); an invalid/missing
// date degrades to 0.5 rather than erroring (spec.md §4.2).
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

// GetBacklinks returns the set of node ids with an edge pointing at id.
func (c *Cache) GetBacklinks(reg *registry.Registry, id string) []string {
	c.ensureBuilt(reg)
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := append([]string{}, c.backward[id]...)
	sort.Strings(out)
	return out
}

// GetSubgraph performs BFS from seeds over both directions, capped at
// maxNodes, with deduplicated edges (spec.md §4.2).
type Subgraph struct {
	Nodes []string
	Edges [][2]string
}

func (c *Cache) GetSubgraph(reg *registry.Registry, seeds []string, maxDepth, maxNodes int) Subgraph {
	c.ensureBuilt(reg)
	c.mu.RLock()
	defer c.mu.RUnlock()

	visited := map[string]bool{}
	edgeSeen := map[[2]string]bool{}
	var nodes []string
	var edges [][2]string

	queue := append([]string{}, seeds...)
	depth := map[string]int{}
	for _, s := range seeds {
		depth[s] = 0
	}
	for len(queue) > 0 && len(nodes) < maxNodes {
		cur := queue[0]
		queue = queue[1:]
		if visited[cur] {
			continue
		}
		visited[cur] = true
		nodes = append(nodes, cur)
		if depth[cur] >= maxDepth {
			continue
		}
		neighbors := append(append([]string{}, c.forward[cur]...), c.backward[cur]...)
		for _, nb := range neighbors {
			var edge [2]string
			if contains(c.forward[cur], nb) {
				edge = [2]string{cur, nb}
			} else {
				edge = [2]string{nb, cur}
			}
			if !edgeSeen[edge] {
				edgeSeen[edge] = true
				edges = append(edges, edge)
			}
			if !visited[nb] {
				if _, ok := depth[nb]; !ok {
					depth[nb] = depth[cur] + 1
				}
				queue = append(queue, nb)
			}
			if len(nodes)+len(queue) >= maxNodes*4 {
				break
			}
		}
	}
	return Subgraph{Nodes: nodes, Edges: edges}
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

// FindPaths performs DFS with a visited-set cycle guard and returns all
// paths of length <= maxDepth. from==to returns the single zero-length
// path (spec.md §4.2, §8).
func (c *Cache) FindPaths(reg *registry.Registry, from, to string, maxDepth int) [][]string {
	c.ensureBuilt(reg)
	c.mu.RLock()
	defer c.mu.RUnlock()

	if from == to {
		return [][]string{{from}}
	}

	var paths [][]string
	visited := map[string]bool{from: true}
	var dfs func(cur string, path []string, depth int)
	dfs = func(cur string, path []string, depth int) {
		if depth > maxDepth {
			return
		}
		neighbors := append(append([]string{}, c.forward[cur]...), c.backward[cur]...)
		for _, nb := range neighbors {
			if visited[nb] {
				continue
			}
			newPath := append(append([]string{}, path...), nb)
			if nb == to {
				paths = append(paths, newPath)
				continue
			}
			visited[nb] = true
			dfs(nb, newPath, depth+1)
			delete(visited, nb)
		}
	}
	dfs(from, []string{from}, 1)
	return paths
}
