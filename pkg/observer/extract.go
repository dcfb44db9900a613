// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package observer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	omgerrors "github.com/openclaw/omg/internal/errors"
	"github.com/openclaw/omg/pkg/host"
)

const extractSystemPrompt = `You are OMG's extraction pass. Read the supplied conversation messages and
emit zero or more knowledge operations as XML:

<observations>
  <operations>
    <operation type="preference|identity|project|decision|fact|episode" priority="high|medium|low">
      <canonical-key>dotted.natural.key</canonical-key>
      <title>short title</title>
      <description>one-line human label</description>
      <content>free-form markdown body</content>
      <moc-hints>comma, separated, domains</moc-hints>
      <tags>comma, separated, tags</tags>
      <links>[[omg/type/other-node]], [[omg/type/another]]</links>
    </operation>
  </operations>
  <now-patch>
    <focus>current focus in one line</focus>
    <open-loops>- loop one
- loop two</open-loops>
    <suggested-links>[[omg/type/node]]</suggested-links>
  </now-patch>
</observations>

Only extract durable knowledge, not conversational filler. Omit an
operation entirely rather than guessing a canonical-key you are not sure
of. now-patch is optional; omit it if nothing changed.`

// Extractor runs the Extract phase of the observation pipeline.
type Extractor struct {
	llm    host.LLMClient
	clk    Clock
	logger *slog.Logger
}

// NewExtractor constructs an Extractor bound to the given LLM client and
// clock.
func NewExtractor(llm host.LLMClient, clk Clock, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{llm: llm, clk: clk, logger: logger}
}

// Extract runs the Extract phase. Short-circuits on empty input without
// calling the LLM (spec.md §4.4, §8).
func (ex *Extractor) Extract(ctx context.Context, in ExtractInput) (ExtractOutput, error) {
	if len(in.Messages) == 0 {
		return ExtractOutput{}, nil
	}

	user := buildExtractUserPrompt(in)
	maxTokens := in.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = 2000
	}

	result, err := ex.llm.Generate(ctx, extractSystemPrompt, user, maxTokens)
	if err != nil {
		return ExtractOutput{}, omgerrors.WrapLLM("extract", err)
	}

	candidates, patch, diags := parseExtractXML(result.Content, ex.clk)
	for _, d := range diags {
		ex.logger.Warn("extract.diagnostic", "index", d.Index, "reason", d.Reason, "detail", d.Detail)
	}

	truncated := maxTokens > 0 && float64(result.Usage.OutputTokens) >= 0.95*float64(maxTokens)

	return ExtractOutput{
		Candidates:  candidates,
		NowPatch:    patch,
		Diagnostics: diags,
		Truncated:   truncated,
		Usage:       result.Usage,
		CalledLLM:   true,
	}, nil
}

func buildExtractUserPrompt(in ExtractInput) string {
	var b strings.Builder
	b.WriteString("## Messages\n")
	for _, m := range in.Messages {
		b.WriteString(m)
		b.WriteString("\n")
	}
	if in.CurrentNowBody != "" {
		b.WriteString("\n## Current now-node\n")
		b.WriteString(in.CurrentNowBody)
		b.WriteString("\n")
	}
	if in.SessionContext != "" {
		b.WriteString("\n## Session context\n")
		b.WriteString(in.SessionContext)
		b.WriteString("\n")
	}
	return b.String()
}

// FormatNeighborTable renders a compact table of merge-target candidates
// for the Merge LLM prompt (spec.md §4.5).
func FormatNeighborTable(rows []NeighborRow) string {
	var b strings.Builder
	for _, r := range rows {
		fmt.Fprintf(&b, "- id=%s score=%.2f description=%q canonicalKey=%q\n", r.ID, r.Score, r.Description, r.CanonicalKey)
	}
	return b.String()
}

// NeighborRow is the minimal shape FormatNeighborTable needs; pkg/retrieval
// produces these.
type NeighborRow struct {
	ID           string
	Score        float64
	Description  string
	CanonicalKey string
}
