// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package host collects the narrow set of interfaces OMG expects its host
// agent runtime to supply: an LLM client, an optional memory-search tool,
// and a cron scheduler (spec.md §1, §6). OMG never constructs these
// itself; cmd/omg wires concrete implementations in from outside the
// module boundary.
package host

import "context"

// Usage reports token accounting for one LLM call (spec.md §6).
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// GenerateResult is the LLM client's response to Generate.
type GenerateResult struct {
	Content string
	Usage   Usage
}

// LLMClient is the external collaborator that actually talks to a model.
// Implementations must honor ctx's deadline/cancellation; OMG treats any
// returned error as an LLMError to be wrapped with a context label
// (spec.md §7).
type LLMClient interface {
	Generate(ctx context.Context, system, user string, maxTokens int) (GenerateResult, error)
}

// SearchResult is one hit from the host's memory-search tool.
type SearchResult struct {
	FilePath string
	Score    float64
	Snippet  string
}

// SearchResponse is the optional semantic-search tool's response. Disabled
// is true when the host has the capability wired but turned off; OMG
// treats both "disabled" and a nil response identically: degrade to
// local-only scoring (spec.md §4.6, §4.8).
type SearchResponse struct {
	Results  []SearchResult
	Disabled bool
}

// MemoryTool is the optional host-supplied semantic search capability.
// Implementations return (nil, err) on failure; OMG degrades silently
// rather than failing the calling operation (spec.md §6).
type MemoryTool interface {
	Search(ctx context.Context, query string) (*SearchResponse, error)
	Get(ctx context.Context, filePath string) (*string, error)
}

// CronHandler is invoked by the host's scheduler. Handlers never throw:
// any error is logged and swallowed at the call site (spec.md §6, §7).
type CronHandler func(ctx context.Context)

// CronScheduler is the host capability used to register recurring jobs.
// Calling Schedule again with the same id replaces the prior registration
// (spec.md §6).
type CronScheduler interface {
	Schedule(id string, cronExpression string, handler CronHandler)
}
