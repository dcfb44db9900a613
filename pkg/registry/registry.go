// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package registry implements the metadata cache over all nodes in a
// workspace: a JSON map published under a per-workspace mutex, rebuildable
// from the on-disk node set at any time (spec.md §4.1).
package registry

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	omgerrors "github.com/openclaw/omg/internal/errors"
	"github.com/openclaw/omg/pkg/frontmatter"
	"github.com/openclaw/omg/pkg/node"
)

const registryVersion = 1

// Entry mirrors the JSON shape described in spec.md §3.
type Entry struct {
	Type         node.Type     `json:"type"`
	Kind         string        `json:"kind"` // "observation" | "reflection"
	Description  string        `json:"description"`
	Priority     node.Priority `json:"priority"`
	Created      string        `json:"created"`
	Updated      string        `json:"updated"`
	FilePath     string        `json:"filePath"`
	Archived     bool          `json:"archived,omitempty"`
	Links        []string      `json:"links,omitempty"`
	Tags         []string      `json:"tags,omitempty"`
	CanonicalKey string        `json:"canonicalKey,omitempty"`
}

// document is the on-disk JSON shape of the registry file.
type document struct {
	Version int              `json:"version"`
	Entries map[string]Entry `json:"entries"`
}

// Registry is the in-memory, persisted metadata index for one workspace.
// Writes are serialized by mu; readers see whichever map reference was
// last published, without locking (spec.md §4.1, §5).
type Registry struct {
	root   string // graph root directory
	path   string // .registry.json absolute path
	logger *slog.Logger

	mu      sync.Mutex // guards writes; see entries for the lock-free read path
	entries map[string]Entry
}

// Open loads (or rebuilds) the registry for the given graph root.
func Open(root string, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		root:   root,
		path:   filepath.Join(root, ".registry.json"),
		logger: logger,
	}
	entries, err := r.load()
	if err != nil {
		logger.Warn("registry load failed, rebuilding", "error", err)
		entries, err = r.scan()
		if err != nil {
			return nil, fmt.Errorf("rebuild registry: %w", err)
		}
		if err := r.persist(entries); err != nil {
			logger.Warn("registry persist after rebuild failed", "error", err)
		}
	}
	r.entries = entries
	return r, nil
}

// load reads and validates the persisted registry file. Any parse failure
// or version mismatch returns an error so the caller rebuilds (fail-open
// for availability, per spec.md §4.1).
func (r *Registry) load() (map[string]Entry, error) {
	content, ok, err := frontmatter.ReadIfExists(r.path)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("registry file absent")
	}
	var doc document
	if err := json.Unmarshal(content, &doc); err != nil {
		return nil, fmt.Errorf("invalid registry json: %w", err)
	}
	if doc.Version != registryVersion {
		return nil, fmt.Errorf("unsupported registry version %d", doc.Version)
	}
	if doc.Entries == nil {
		doc.Entries = map[string]Entry{}
	}
	return doc.Entries, nil
}

// scan rebuilds the registry by walking every node directory under root.
func (r *Registry) scan() (map[string]Entry, error) {
	entries := map[string]Entry{}
	nodesDir := filepath.Join(r.root, "nodes")
	reflDir := filepath.Join(r.root, "reflections")
	dirs := []string{nodesDir, reflDir}

	for _, dir := range dirs {
		if _, err := os.Stat(dir); omgerrors.IsAbsent(err) {
			continue
		}
		err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return nil
			}
			if info.IsDir() || !strings.HasSuffix(path, ".md") {
				return nil
			}
			doc, err := frontmatter.ParseFile(path)
			if err != nil {
				r.logger.Warn("skipping unparseable node during rebuild", "path", path, "error", err)
				return nil
			}
			entries[doc.Node.ID] = entryFromNode(doc.Node)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	for _, special := range []string{"index.md", "now.md"} {
		p := filepath.Join(r.root, special)
		doc, err := frontmatter.ParseFile(p)
		if err != nil {
			continue
		}
		entries[doc.Node.ID] = entryFromNode(doc.Node)
	}

	mocDir := filepath.Join(r.root, "mocs")
	if _, err := os.Stat(mocDir); !omgerrors.IsAbsent(err) {
		_ = filepath.Walk(mocDir, func(path string, info os.FileInfo, err error) error {
			if err != nil || info == nil || info.IsDir() || !strings.HasSuffix(path, ".md") {
				return nil
			}
			doc, err := frontmatter.ParseFile(path)
			if err != nil {
				return nil
			}
			entries[doc.Node.ID] = entryFromNode(doc.Node)
			return nil
		})
	}

	return entries, nil
}

func entryFromNode(n node.Node) Entry {
	kind := "observation"
	if n.Type == node.TypeReflection {
		kind = "reflection"
	}
	return Entry{
		Type:         n.Type,
		Kind:         kind,
		Description:  n.Description,
		Priority:     n.Priority,
		Created:      n.Created,
		Updated:      n.Updated,
		FilePath:     n.FilePath,
		Archived:     n.Archived,
		Links:        n.Links,
		Tags:         n.Tags,
		CanonicalKey: n.CanonicalKey,
	}
}

// persist atomically writes the given entry map as the new registry file
// and republishes it as the in-memory snapshot.
func (r *Registry) persist(entries map[string]Entry) error {
	doc := document{Version: registryVersion, Entries: entries}
	content, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal registry: %w", err)
	}
	if err := frontmatter.AtomicWrite(r.path, content, 0o640); err != nil {
		return fmt.Errorf("write registry: %w", err)
	}
	return nil
}

// snapshot returns the currently published entries map without locking.
// Callers must not mutate the returned map.
func (r *Registry) snapshot() map[string]Entry {
	return r.entries
}

// GetNodeIndex returns the full id -> Entry map as it currently stands.
func (r *Registry) GetNodeIndex() map[string]Entry {
	return r.snapshot()
}

// Filter selects entries to return from GetRegistryEntries.
type Filter struct {
	Type            node.Type // zero value = any
	IncludeArchived bool
}

// GetRegistryEntries returns entries matching filter as a new map; map
// iteration order is not deterministic (see SortedIDs for a stable order).
func (r *Registry) GetRegistryEntries(filter *Filter) map[string]Entry {
	src := r.snapshot()
	out := make(map[string]Entry, len(src))
	for id, e := range src {
		if filter != nil {
			if !filter.IncludeArchived && e.Archived {
				continue
			}
			if filter.Type != "" && e.Type != filter.Type {
				continue
			}
		}
		out[id] = e
	}
	return out
}

// GetRegistryEntry looks up a single entry.
func (r *Registry) GetRegistryEntry(id string) (Entry, bool) {
	e, ok := r.snapshot()[id]
	return e, ok
}

// GetNodeFilePaths resolves a batch of ids to file paths, skipping ids
// that are not present in the registry.
func (r *Registry) GetNodeFilePaths(ids []string) map[string]string {
	src := r.snapshot()
	out := make(map[string]string, len(ids))
	for _, id := range ids {
		if e, ok := src[id]; ok {
			out[id] = e.FilePath
		}
	}
	return out
}

// GetNodeCount returns the number of non-archived entries.
func (r *Registry) GetNodeCount() int {
	n := 0
	for _, e := range r.snapshot() {
		if !e.Archived {
			n++
		}
	}
	return n
}

// mutateLocked performs a read-modify-write cycle under mu: copy the
// current snapshot, apply mutate, persist, then publish the new map. This
// is the single write path every mutating method funnels through.
func (r *Registry) mutateLocked(mutate func(entries map[string]Entry) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := make(map[string]Entry, len(r.entries))
	for id, e := range r.entries {
		next[id] = e
	}
	if err := mutate(next); err != nil {
		return err
	}
	if err := r.persist(next); err != nil {
		return err
	}
	r.entries = next
	return nil
}

// RegisterNode inserts or overwrites an entry.
func (r *Registry) RegisterNode(id string, entry Entry) error {
	return r.mutateLocked(func(entries map[string]Entry) error {
		entries[id] = entry
		return nil
	})
}

// UpdateRegistryEntry applies partial field updates to an existing entry.
// update is called with the current entry (zero value if absent) and must
// return the new entry.
func (r *Registry) UpdateRegistryEntry(id string, update func(Entry) Entry) error {
	return r.mutateLocked(func(entries map[string]Entry) error {
		entries[id] = update(entries[id])
		return nil
	})
}

// RemoveRegistryEntry deletes an entry outright (used rarely; archival via
// UpdateRegistryEntry is preferred so history is retained).
func (r *Registry) RemoveRegistryEntry(id string) error {
	return r.mutateLocked(func(entries map[string]Entry) error {
		delete(entries, id)
		return nil
	})
}

// RebuildRegistry forces a full rescan of the on-disk node set, discarding
// the current in-memory snapshot.
func (r *Registry) RebuildRegistry() error {
	entries, err := r.scan()
	if err != nil {
		return fmt.Errorf("rebuild registry: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.persist(entries); err != nil {
		return err
	}
	r.entries = entries
	return nil
}

// SortedIDs returns every entry id in deterministic (sorted) order, useful
// for tests and for any caller that needs a stable iteration order.
func (r *Registry) SortedIDs() []string {
	src := r.snapshot()
	ids := make([]string, 0, len(src))
	for id := range src {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
