// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package bootstrap

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/openclaw/omg/internal/clock"
	"github.com/openclaw/omg/pkg/frontmatter"
	"github.com/openclaw/omg/pkg/node"
	"github.com/openclaw/omg/pkg/observer"
	"github.com/openclaw/omg/pkg/registry"
	"github.com/openclaw/omg/pkg/scaffold"
)

// DefaultConcurrency bounds the number of batches in flight at once
// (spec.md §4.11).
const DefaultConcurrency = 3

// FlushInterval debounces state-store writes and lock refreshes so a run
// over thousands of batches doesn't fsync on every single one (spec.md
// §4.11, §5).
const FlushInterval = 5 * time.Second

// ErrorType classifies one batch's failure for the JSONL failure log
// (spec.md §4.11).
type ErrorType string

const (
	ErrorLLM           ErrorType = "llm-error"
	ErrorParseEmpty    ErrorType = "parse-empty"
	ErrorZeroOps       ErrorType = "zero-operations"
	ErrorWriteAllFailed ErrorType = "write-all-failed"
)

// FailureEntry is one line of the JSONL failure log.
type FailureEntry struct {
	BatchIndex int       `json:"batchIndex"`
	ErrorType  ErrorType `json:"errorType"`
	Detail     string    `json:"detail"`
	Paths      []string  `json:"paths"`
}

// Pipeline runs the bootstrap ingestion: chunk, batch, extract, write,
// resuming from a prior crash via StateStore (spec.md §4.11).
type Pipeline struct {
	Root        string
	Reg         *registry.Registry
	Scaffold    *scaffold.Manager
	Extractor   *observer.Extractor
	Clock       clock.Clock
	Logger      *slog.Logger
	Concurrency int
}

// Result summarizes a completed or interrupted run.
type Result struct {
	TotalBatches int
	Succeeded    int
	Failed       int
	NodesWritten int
}

// Run executes the pipeline against the given batches, resuming from any
// prior StateStore contents. Batches already marked done are skipped
// entirely, including their LLM calls (spec.md §4.11, §8).
func (p *Pipeline) Run(ctx context.Context, batches []Batch, force bool) (Result, error) {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	concurrency := p.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	if HasCompleted(p.Root, force) {
		logger.Info("bootstrap.already-complete", "root", p.Root)
		return Result{}, nil
	}

	lock, err := Acquire(p.Root, fmt.Sprintf("pid-%d", os.Getpid()), p.Clock)
	if err != nil {
		return Result{}, fmt.Errorf("bootstrap: %w", err)
	}
	defer lock.Release()

	store := NewStateStore(p.Root)
	st, err := store.Load(len(batches))
	if err != nil {
		return Result{}, fmt.Errorf("bootstrap: load state: %w", err)
	}
	if force {
		st = NewState(len(batches))
	}
	if st.Total != len(batches) {
		// Source set changed since the last run; starting over is safer
		// than misattributing stale done-indices to a different batch set.
		st = NewState(len(batches))
	}

	failureLogPath := filepath.Join(p.Root, ".bootstrap-failures.jsonl")
	var failures []FailureEntry
	if existing, ok, _ := frontmatter.ReadIfExists(failureLogPath); ok {
		failures = parseFailureLog(existing)
	}

	var (
		mu          sync.Mutex
		sem         = make(chan struct{}, concurrency)
		wg          sync.WaitGroup
		lastFlush   = p.now()
		nodesTotal  int
	)

	flushIfDue := func() {
		mu.Lock()
		defer mu.Unlock()
		if p.now().Sub(lastFlush) < FlushInterval {
			return
		}
		_ = store.Flush(st)
		_ = lock.Refresh()
		lastFlush = p.now()
	}

	for i, batch := range batches {
		if st.Done[i] {
			continue
		}
		i, batch := i, batch
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			nodeIDs, ferr := p.runBatch(ctx, i, batch)

			mu.Lock()
			st.MarkDone(i, ferr == nil)
			nodesTotal += len(nodeIDs)
			if ferr != nil {
				failures = append(failures, FailureEntry{
					BatchIndex: i,
					ErrorType:  classify(ferr),
					Detail:     ferr.Error(),
					Paths:      batchPaths(batch),
				})
				logger.Warn("bootstrap.batch-failed", "batch", i, "error", ferr)
			}
			mu.Unlock()

			flushIfDue()
		}()
	}
	wg.Wait()

	if err := store.Flush(st); err != nil {
		return Result{}, fmt.Errorf("bootstrap: final state flush: %w", err)
	}
	if err := writeFailureLog(failureLogPath, failures); err != nil {
		return Result{}, fmt.Errorf("bootstrap: write failure log: %w", err)
	}
	if st.Completed {
		if err := WriteCompletionSentinel(p.Root, st); err != nil {
			return Result{}, fmt.Errorf("bootstrap: write completion sentinel: %w", err)
		}
	}

	return Result{
		TotalBatches: len(batches),
		Succeeded:    st.OK,
		Failed:       st.Fail,
		NodesWritten: nodesTotal,
	}, nil
}

func (p *Pipeline) now() time.Time {
	if p.Clock == nil {
		return time.Now()
	}
	return p.Clock.Now()
}

// runBatch extracts and writes one batch: Extract, then write every
// candidate node (settling all writes even if some fail), then dedupe MOC
// updates per domain so a batch that touches the same MOC five times only
// writes it once, then a single now-node write if a patch was produced
// (spec.md §4.11).
func (p *Pipeline) runBatch(ctx context.Context, index int, batch Batch) ([]string, error) {
	messages := make([]string, len(batch.Chunks))
	for i, c := range batch.Chunks {
		messages[i] = c.Text
	}

	out, err := p.Extractor.Extract(ctx, observer.ExtractInput{
		Messages:        messages,
		MaxOutputTokens: batch.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ErrorLLM, err)
	}
	if len(out.Candidates) == 0 && out.NowPatch == nil {
		return nil, fmt.Errorf("%s: extract produced no operations", ErrorZeroOps)
	}

	now := clock.ISO8601(p.now())
	var written []string
	var writeErrs []error
	mocDomains := map[string]string{} // domain -> last written node id

	for _, c := range out.Candidates {
		id := node.DeriveID(c.Type, c.CanonicalKey, c.Description)
		uid := node.ComputeUID(p.Root, c.Type, c.CanonicalKey)
		path := node.UpsertRelPath(c.Type, c.CanonicalKey, c.Description)
		n := node.Node{
			ID: id, UID: uid, CanonicalKey: c.CanonicalKey, Type: c.Type,
			Priority: c.Priority, Created: now, Updated: now,
			Description: c.Description, Links: c.Links, Tags: c.Tags,
			FilePath: filepath.Join(p.Root, path),
		}
		if err := n.Validate(); err != nil {
			writeErrs = append(writeErrs, fmt.Errorf("validate %s: %w", id, err))
			continue
		}
		if err := frontmatter.WriteNode(n, c.Content); err != nil {
			writeErrs = append(writeErrs, fmt.Errorf("write %s: %w", id, err))
			continue
		}
		if err := p.Reg.RegisterNode(id, registry.Entry{
			Type: n.Type, Kind: "observation", Description: n.Description,
			Priority: n.Priority, Created: n.Created, Updated: n.Updated,
			FilePath: n.FilePath, Links: n.Links, Tags: n.Tags, CanonicalKey: n.CanonicalKey,
		}); err != nil {
			writeErrs = append(writeErrs, fmt.Errorf("register %s: %w", id, err))
			continue
		}
		written = append(written, id)
		for _, domain := range c.MOCHints {
			mocDomains[domain] = id
		}
	}

	if len(out.Candidates) > 0 && len(written) == 0 {
		return nil, fmt.Errorf("%s: all %d candidate writes failed: %v", ErrorWriteAllFailed, len(out.Candidates), writeErrs)
	}

	for domain, id := range mocDomains {
		if err := p.Scaffold.EnsureMOC(domain, id); err != nil {
			p.logger().Warn("bootstrap.moc-update-failed", "batch", index, "domain", domain, "error", err)
		}
	}
	if len(mocDomains) > 0 {
		if err := p.Scaffold.RenderIndex(); err != nil {
			p.logger().Warn("bootstrap.index-update-failed", "batch", index, "error", err)
		}
	}

	if out.NowPatch != nil {
		if err := p.Scaffold.RenderNow(out.NowPatch.Focus, out.NowPatch.OpenLoops, out.NowPatch.SuggestedLinks); err != nil {
			p.logger().Warn("bootstrap.now-update-failed", "batch", index, "error", err)
		}
	}

	return written, nil
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}

func classify(err error) ErrorType {
	msg := err.Error()
	for _, t := range []ErrorType{ErrorLLM, ErrorParseEmpty, ErrorZeroOps, ErrorWriteAllFailed} {
		if strings.HasPrefix(msg, string(t)) {
			return t
		}
	}
	return ErrorLLM
}

func batchPaths(b Batch) []string {
	seen := map[string]bool{}
	var paths []string
	for _, c := range b.Chunks {
		if !seen[c.Path] {
			seen[c.Path] = true
			paths = append(paths, c.Path)
		}
	}
	return paths
}

func parseFailureLog(content []byte) []FailureEntry {
	var out []FailureEntry
	dec := json.NewDecoder(bytes.NewReader(content))
	for dec.More() {
		var e FailureEntry
		if err := dec.Decode(&e); err != nil {
			break
		}
		out = append(out, e)
	}
	return out
}

func writeFailureLog(path string, entries []FailureEntry) error {
	var buf []byte
	for _, e := range entries {
		line, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal failure entry: %w", err)
		}
		buf = append(buf, line...)
		buf = append(buf, '\n')
	}
	if len(buf) == 0 {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove failure log: %w", err)
		}
		return nil
	}
	return frontmatter.AtomicWrite(path, buf, 0o640)
}
