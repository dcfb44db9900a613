// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package reflector implements the reflection pass: synthesize a set of
// source nodes into a new reflection node, escalating compression level
// when the rendered synthesis overruns the context budget (spec.md
// §4.12).
package reflector

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	omgerrors "github.com/openclaw/omg/internal/errors"
	"github.com/openclaw/omg/pkg/host"
	"github.com/openclaw/omg/pkg/selector"
)

// MaxCompressionLevel is the highest escalation level; synthesis at this
// level is accepted unconditionally (spec.md §4.12).
const MaxCompressionLevel = 3

// ContextTokenThreshold is the rendered-size ceiling that triggers
// escalation to the next compression level (spec.md §4.12).
const ContextTokenThreshold = 1200

// SourceNode is the minimal shape of one node being synthesized.
type SourceNode struct {
	ID          string
	Type        string
	Description string
	Body        string
}

// FieldUpdate describes one set|add|remove mutation the reflection LLM
// requested against an existing node (spec.md §4.12).
type FieldUpdate struct {
	NodeID string
	Field  string // "body" | "tags" | "priority"
	Action string // "set" | "add" | "remove"
	Value  string
}

// Synthesis is the accepted output of one reflection pass.
type Synthesis struct {
	Description      string
	Body             string
	Tags             []string
	MOCDomains       []string
	CompressionLevel int
	ArchiveSourceIDs []string
	FieldUpdates     []FieldUpdate
	Usage            host.Usage
}

var compressionPrompts = [MaxCompressionLevel + 1]string{
	0: "Synthesize the following nodes into one coherent reflection. Preserve detail; this is a light pass over closely related material.",
	1: "Synthesize the following nodes into one reflection, condensing redundant detail. Prefer a tighter narrative over exhaustive coverage.",
	2: "Synthesize the following nodes into one compact reflection. Keep only the durable conclusions and drop illustrative detail.",
	3: "Synthesize the following nodes into the shortest reflection that preserves the essential conclusions. Be terse.",
}

// Reflector drives the Reflect phase.
type Reflector struct {
	llm    host.LLMClient
	logger *slog.Logger
}

// NewReflector constructs a Reflector bound to the given LLM client.
func NewReflector(llm host.LLMClient, logger *slog.Logger) *Reflector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reflector{llm: llm, logger: logger}
}

// Reflect synthesizes sources, escalating compressionLevel from 0 until
// the rendered body fits ContextTokenThreshold or MaxCompressionLevel is
// reached, at which point the result is accepted regardless of size
// (spec.md §4.12).
func (r *Reflector) Reflect(ctx context.Context, sources []SourceNode) (Synthesis, error) {
	if len(sources) == 0 {
		return Synthesis{}, omgerrors.NewInvariantViolation("sources", "reflect requires at least one source node")
	}

	var last Synthesis
	for level := 0; level <= MaxCompressionLevel; level++ {
		syn, err := r.attempt(ctx, sources, level)
		if err != nil {
			return Synthesis{}, err
		}
		last = syn

		tokens := selector.EstimateTokens(syn.Body)
		if tokens <= ContextTokenThreshold {
			return syn, nil
		}
		if level == MaxCompressionLevel {
			r.logger.Warn("reflect.accepted-over-budget", "tokens", tokens, "threshold", ContextTokenThreshold, "level", level)
			return syn, nil
		}
		r.logger.Info("reflect.escalating", "from-level", level, "tokens", tokens, "threshold", ContextTokenThreshold)
	}
	return last, nil
}

func (r *Reflector) attempt(ctx context.Context, sources []SourceNode, level int) (Synthesis, error) {
	system := reflectSystemPrompt(level)
	user := buildReflectUserPrompt(sources)

	result, err := r.llm.Generate(ctx, system, user, 1500)
	if err != nil {
		return Synthesis{}, omgerrors.WrapLLM("reflect", err)
	}

	syn, diags := parseReflectXML(result.Content)
	for _, d := range diags {
		r.logger.Warn("reflect.diagnostic", "detail", d)
	}
	syn.CompressionLevel = level
	syn.Usage = result.Usage
	if len(syn.ArchiveSourceIDs) == 0 {
		for _, s := range sources {
			syn.ArchiveSourceIDs = append(syn.ArchiveSourceIDs, s.ID)
		}
	}
	return syn, nil
}

func reflectSystemPrompt(level int) string {
	return fmt.Sprintf(`You are OMG's reflection pass, compression level %d.

%s

Emit XML:
<reflection>
  <description>one-line label</description>
  <body>synthesized markdown</body>
  <tags>comma, separated, tags</tags>
  <moc-domains>comma, separated, domains</moc-domains>
  <archive-sources>id-one, id-two</archive-sources>
  <field-updates>
    <update node-id="omg/type/id" field="tags" action="add">new-tag</update>
  </field-updates>
</reflection>`, level, compressionPrompts[level])
}

func buildReflectUserPrompt(sources []SourceNode) string {
	var b strings.Builder
	for _, s := range sources {
		fmt.Fprintf(&b, "## %s (%s)\n%s\n\n%s\n\n", s.Description, s.ID, s.Type, s.Body)
	}
	return b.String()
}
