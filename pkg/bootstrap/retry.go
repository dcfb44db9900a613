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
	"context"
	"fmt"
	"path/filepath"

	"github.com/openclaw/omg/pkg/frontmatter"
	"github.com/openclaw/omg/pkg/host"
)

// RetryFilter selects which failure-log entries to retry (spec.md §4.11
// retry command).
type RetryFilter struct {
	ErrorType    ErrorType // empty means any
	BatchIndices map[int]bool // nil means any
}

func (f RetryFilter) matches(e FailureEntry) bool {
	if f.ErrorType != "" && e.ErrorType != f.ErrorType {
		return false
	}
	if f.BatchIndices != nil && !f.BatchIndices[e.BatchIndex] {
		return false
	}
	return true
}

// LLMClientFactory builds an LLM client with a caller-chosen timeout.
// Retry does not take one: it re-runs batches through the Pipeline's own
// Extractor, with whatever client and timeout that Extractor was built with.
type LLMClientFactory func(timeout int) host.LLMClient

// Retry re-runs the batches named by failed entries matching filter,
// rewriting the failure log to keep only entries that were not selected
// for retry plus any that failed again (spec.md §4.11).
func Retry(ctx context.Context, p *Pipeline, batches []Batch, filter RetryFilter) (Result, error) {
	failureLogPath := filepath.Join(p.Root, ".bootstrap-failures.jsonl")
	content, ok, err := frontmatter.ReadIfExists(failureLogPath)
	if err != nil {
		return Result{}, fmt.Errorf("bootstrap retry: read failure log: %w", err)
	}
	if !ok {
		return Result{}, nil
	}
	entries := parseFailureLog(content)

	var toRetry []FailureEntry
	var keep []FailureEntry
	for _, e := range entries {
		if filter.matches(e) {
			toRetry = append(toRetry, e)
		} else {
			keep = append(keep, e)
		}
	}
	if len(toRetry) == 0 {
		return Result{}, nil
	}

	store := NewStateStore(p.Root)
	st, err := store.Load(len(batches))
	if err != nil {
		return Result{}, fmt.Errorf("bootstrap retry: load state: %w", err)
	}

	var succeeded, failed, nodesWritten int
	for _, e := range toRetry {
		if e.BatchIndex < 0 || e.BatchIndex >= len(batches) {
			continue // source set changed since the failure was recorded
		}
		written, rerr := p.runBatch(ctx, e.BatchIndex, batches[e.BatchIndex])
		if rerr != nil {
			failed++
			keep = append(keep, FailureEntry{
				BatchIndex: e.BatchIndex,
				ErrorType:  classify(rerr),
				Detail:     rerr.Error(),
				Paths:      e.Paths,
			})
			st.MarkDone(e.BatchIndex, false)
			continue
		}
		succeeded++
		nodesWritten += len(written)
		st.MarkDone(e.BatchIndex, true)
	}

	if err := store.Flush(st); err != nil {
		return Result{}, fmt.Errorf("bootstrap retry: flush state: %w", err)
	}
	if err := writeFailureLog(failureLogPath, keep); err != nil {
		return Result{}, fmt.Errorf("bootstrap retry: write failure log: %w", err)
	}
	if st.Completed {
		if err := WriteCompletionSentinel(p.Root, st); err != nil {
			return Result{}, fmt.Errorf("bootstrap retry: write completion sentinel: %w", err)
		}
	}

	return Result{
		TotalBatches: len(toRetry),
		Succeeded:    succeeded,
		Failed:       failed,
		NodesWritten: nodesWritten,
	}, nil
}
