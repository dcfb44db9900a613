// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package observer

import (
	"context"
	"fmt"
	"log/slog"

	omgerrors "github.com/openclaw/omg/internal/errors"
	"github.com/openclaw/omg/pkg/host"
)

const mergeSystemPrompt = `You are OMG's merge-decision pass. Given a candidate knowledge operation
and a short table of existing nodes that might be the same concept,
decide whether to keep the candidate separate, merge its content into an
existing node, or register it as an alias of an existing node. Respond
with exactly one element:

<merge-decision action="keep_separate"/>
<merge-decision action="merge" target-node-id="omg/preference/editor-theme" body-append="Switched to light theme."/>
<merge-decision action="alias" target-node-id="omg/preference/editor-theme" alias-key="preferences.ide_theme"/>`

// Merger runs the Merge phase of the observation pipeline.
type Merger struct {
	llm    host.LLMClient
	logger *slog.Logger
}

// NewMerger constructs a Merger bound to the given LLM client.
func NewMerger(llm host.LLMClient, logger *slog.Logger) *Merger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Merger{llm: llm, logger: logger}
}

// Decide calls the Merge LLM with the candidate and its neighbor table.
// Any LLM or parse failure defaults to keep_separate (spec.md §4.5).
func (m *Merger) Decide(ctx context.Context, candidate Candidate, neighbors []NeighborRow) (MergeDecision, error) {
	if len(neighbors) == 0 {
		return MergeDecision{Action: ActionKeepSeparate}, nil
	}

	user := fmt.Sprintf(
		"## Candidate\ntype=%s canonicalKey=%q description=%q\n\n## Candidates for merge target\n%s",
		candidate.Type, candidate.CanonicalKey, candidate.Description, FormatNeighborTable(neighbors),
	)

	result, err := m.llm.Generate(ctx, mergeSystemPrompt, user, 300)
	if err != nil {
		m.logger.Warn("merge.llm_failed_fallback_keep_separate", "error", err)
		return MergeDecision{Action: ActionKeepSeparate}, omgerrors.WrapLLM("merge-decision", err)
	}

	return parseMergeDecisionXML(result.Content), nil
}
