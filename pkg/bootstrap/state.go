// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package bootstrap implements the resumable, batched, lock-protected
// ingestion of legacy sources into graph nodes (spec.md §4.11).
package bootstrap

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"github.com/openclaw/omg/pkg/frontmatter"
)

// State is the persisted resume record (spec.md §3). Done only grows
// across process crashes; on resume, Cursor equals the smallest index not
// in Done (spec.md §8).
type State struct {
	Total     int          `json:"total"`
	Done      map[int]bool `json:"-"`
	DoneList  []int        `json:"done"`
	OK        int          `json:"ok"`
	Fail      int          `json:"fail"`
	Cursor    int          `json:"cursor"`
	Completed bool         `json:"completed"`
}

// MarshalJSON projects Done into DoneList for a stable on-disk shape.
func (s State) MarshalJSON() ([]byte, error) {
	type alias State
	a := alias(s)
	a.DoneList = sortedInts(s.Done)
	return json.Marshal(a)
}

// UnmarshalJSON rebuilds the Done set from DoneList.
func (s *State) UnmarshalJSON(data []byte) error {
	type alias State
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*s = State(a)
	s.Done = map[int]bool{}
	for _, i := range s.DoneList {
		s.Done[i] = true
	}
	return nil
}

func sortedInts(set map[int]bool) []int {
	out := make([]int, 0, len(set))
	for i := range set {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// NewState constructs a fresh State for a run of the given batch count.
func NewState(total int) State {
	return State{Total: total, Done: map[int]bool{}, Cursor: 0}
}

// MarkDone records batchIndex as complete and advances Cursor to the
// smallest index not yet in Done (monotonic; spec.md §8).
func (s *State) MarkDone(batchIndex int, ok bool) {
	if s.Done == nil {
		s.Done = map[int]bool{}
	}
	s.Done[batchIndex] = true
	if ok {
		s.OK++
	} else {
		s.Fail++
	}
	for s.Cursor < s.Total && s.Done[s.Cursor] {
		s.Cursor++
	}
	if len(s.Done) >= s.Total {
		s.Completed = true
	}
}

// StateStore persists State and debounces flushes (spec.md §4.11, §5).
type StateStore struct {
	mu   sync.Mutex
	path string
}

// NewStateStore constructs a StateStore at root/.bootstrap-state.json.
func NewStateStore(root string) *StateStore {
	return &StateStore{path: filepath.Join(root, ".bootstrap-state.json")}
}

// Load reads the persisted state, returning a fresh State for total
// batches if absent or corrupt.
func (s *StateStore) Load(total int) (State, error) {
	content, ok, err := frontmatter.ReadIfExists(s.path)
	if err != nil {
		return State{}, err
	}
	if !ok {
		return NewState(total), nil
	}
	var st State
	if err := json.Unmarshal(content, &st); err != nil {
		return NewState(total), nil
	}
	return st, nil
}

// Flush atomically persists state. Safe to call concurrently; callers
// debounce so this isn't called on every single batch completion under
// high concurrency, but correctness holds either way since writes are
// serialized by mu.
func (s *StateStore) Flush(st State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	content, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal bootstrap state: %w", err)
	}
	return frontmatter.AtomicWrite(s.path, content, 0o640)
}

// WriteCompletionSentinel writes .bootstrap-done with a summary.
func WriteCompletionSentinel(root string, st State) error {
	path := filepath.Join(root, ".bootstrap-done")
	content, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal completion sentinel: %w", err)
	}
	return frontmatter.AtomicWrite(path, content, 0o640)
}

// HasCompleted reports whether a prior run finished (spec.md §4.11 step
// 2). forced ignores the sentinel.
func HasCompleted(root string, forced bool) bool {
	if forced {
		return false
	}
	_, ok, err := frontmatter.ReadIfExists(filepath.Join(root, ".bootstrap-done"))
	return err == nil && ok
}
