// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package observer implements the Extract and Merge phases of the
// observation pipeline (spec.md §4.4, §4.5): build a prompt, call the
// LLM, parse its XML response into a tagged sum type, and never let a
// malformed response escape as an error.
package observer

import (
	"github.com/openclaw/omg/internal/clock"
	"github.com/openclaw/omg/pkg/host"
	"github.com/openclaw/omg/pkg/node"
)

// RejectReason enumerates why a candidate operation was not accepted
// (spec.md §4.4).
type RejectReason string

const (
	RejectInvalidType          RejectReason = "invalid-type"
	RejectMissingCanonicalKey  RejectReason = "missing-canonical-key"
	RejectMissingDescription   RejectReason = "missing-description"
	WarnUnknownPriority        RejectReason = "unknown-priority"
)

// Diagnostic records one parser decision, accepted or rejected, so Extract
// never throws on bad input (spec.md §4.4).
type Diagnostic struct {
	Index  int
	Reason RejectReason
	Detail string
}

// Candidate is one accepted extraction operation, not yet merged into the
// graph.
type Candidate struct {
	Type         node.Type
	Priority     node.Priority
	PriorityWarn bool // true if priority was defaulted from an unknown value
	CanonicalKey string
	Title        string
	Description  string
	Content      string
	MOCHints     []string
	Tags         []string
	Links        []string
	Created      string
	Updated      string
}

// NowPatch is the optional sibling element describing an update to the
// now-node (spec.md §4.4, §6).
type NowPatch struct {
	Focus            string
	OpenLoops        []string
	SuggestedLinks   []string
}

// ExtractInput bundles everything the Extract phase needs.
type ExtractInput struct {
	Messages        []string
	CurrentNowBody  string
	SessionContext  string
	MaxOutputTokens int
}

// ExtractOutput is the full result of one Extract call.
type ExtractOutput struct {
	Candidates  []Candidate
	NowPatch    *NowPatch
	Diagnostics []Diagnostic
	Truncated   bool
	Usage       host.Usage
	CalledLLM   bool
}

// MergeAction enumerates the three outcomes of the Merge decision
// (spec.md §4.5).
type MergeAction string

const (
	ActionKeepSeparate MergeAction = "keep_separate"
	ActionMerge        MergeAction = "merge"
	ActionAlias        MergeAction = "alias"
)

// MergeDecision is the parsed <merge-decision/> element.
type MergeDecision struct {
	Action       MergeAction
	TargetNodeID string
	AliasKey     string
	BodyAppend   string
}

// Clock is embedded by callers that need a consistent "now" across a
// whole batch of candidates (spec.md §4.4: "all operations in one parse
// share a single capture of the current instant").
type Clock = clock.Clock
