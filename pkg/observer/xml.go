// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package observer

import (
	"encoding/xml"
	"regexp"
	"strings"

	"github.com/openclaw/omg/internal/clock"
	"github.com/openclaw/omg/pkg/node"
)

// rawObservations is the wire-format XML shape from spec.md §4.4, §6.
type rawObservations struct {
	XMLName    xml.Name       `xml:"observations"`
	Operations rawOperations  `xml:"operations"`
	NowPatch   *rawNowPatch   `xml:"now-patch"`
}

type rawOperations struct {
	Operations []rawOperation `xml:"operation"`
}

type rawOperation struct {
	Type         string `xml:"type,attr"`
	Priority     string `xml:"priority,attr"`
	CanonicalKey string `xml:"canonical-key"`
	Title        string `xml:"title"`
	Description  string `xml:"description"`
	Content      string `xml:"content"`
	MOCHints     string `xml:"moc-hints"`
	Tags         string `xml:"tags"`
	Links        string `xml:"links"`
}

type rawNowPatch struct {
	Focus           string `xml:"focus"`
	OpenLoops       string `xml:"open-loops"`
	SuggestedLinks  string `xml:"suggested-links"`
}

var wikilinkPattern = regexp.MustCompile(`\[\[([^\]]+)\]\]`)

// splitCommaTrim splits s on commas and trims/drops empties; used for
// tags, moc-hints and fallback link lists (spec.md §4.4).
func splitCommaTrim(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// splitLines splits a multi-line textarea-style element into non-empty,
// trimmed lines (used for open-loops, suggested-links).
func splitLines(s string) []string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		l = strings.TrimSpace(l)
		l = strings.TrimPrefix(l, "- ")
		if l != "" {
			out = append(out, l)
		}
	}
	return out
}

// extractLinks pulls [[wikilink]] references out of s; if none are
// present, falls back to comma-split canonicalKeys (spec.md §4.4).
func extractLinks(s string) []string {
	matches := wikilinkPattern.FindAllStringSubmatch(s, -1)
	if len(matches) > 0 {
		out := make([]string, 0, len(matches))
		for _, m := range matches {
			out = append(out, strings.TrimSpace(m[1]))
		}
		return out
	}
	return splitCommaTrim(s)
}

// parseExtractXML parses the Extract LLM response. It never returns an
// error: structurally broken XML produces an empty output plus a single
// diagnostic (spec.md §4.4's "never throws" contract). clk supplies the
// single instant shared by every operation in this parse.
func parseExtractXML(raw string, clk clock.Clock) ([]Candidate, *NowPatch, []Diagnostic) {
	var doc rawObservations
	if err := xml.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, nil, []Diagnostic{{Index: -1, Reason: "xml-parse-failure", Detail: err.Error()}}
	}

	now := clock.ISO8601(clk.Now())
	var candidates []Candidate
	var diags []Diagnostic

	for i, op := range doc.Operations.Operations {
		if !node.IsValidType(op.Type) {
			diags = append(diags, Diagnostic{Index: i, Reason: RejectInvalidType, Detail: op.Type})
			continue
		}
		if strings.TrimSpace(op.CanonicalKey) == "" {
			diags = append(diags, Diagnostic{Index: i, Reason: RejectMissingCanonicalKey})
			continue
		}
		if strings.TrimSpace(op.Description) == "" {
			diags = append(diags, Diagnostic{Index: i, Reason: RejectMissingDescription})
			continue
		}
		priority, known := node.ParsePriority(op.Priority)
		if !known {
			diags = append(diags, Diagnostic{Index: i, Reason: WarnUnknownPriority, Detail: op.Priority})
		}

		candidates = append(candidates, Candidate{
			Type:         node.Type(op.Type),
			Priority:     priority,
			PriorityWarn: !known,
			CanonicalKey: strings.TrimSpace(op.CanonicalKey),
			Title:        strings.TrimSpace(op.Title),
			Description:  strings.TrimSpace(op.Description),
			Content:      op.Content,
			MOCHints:     splitCommaTrim(op.MOCHints),
			Tags:         lowerAll(splitCommaTrim(op.Tags)),
			Links:        extractLinks(op.Links),
			Created:      now,
			Updated:      now,
		})
	}

	var patch *NowPatch
	if doc.NowPatch != nil {
		patch = &NowPatch{
			Focus:          strings.TrimSpace(doc.NowPatch.Focus),
			OpenLoops:      splitLines(doc.NowPatch.OpenLoops),
			SuggestedLinks: extractLinks(doc.NowPatch.SuggestedLinks),
		}
	}

	return candidates, patch, diags
}

func lowerAll(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = strings.ToLower(s)
	}
	return out
}

// rawMergeDecision is the wire-format XML shape from spec.md §4.5, §6.
type rawMergeDecision struct {
	XMLName      xml.Name `xml:"merge-decision"`
	Action       string   `xml:"action,attr"`
	TargetNodeID string   `xml:"target-node-id,attr"`
	AliasKey     string   `xml:"alias-key,attr"`
	BodyAppend   string   `xml:"body-append,attr"`
}

// parseMergeDecisionXML parses the Merge LLM response, defaulting to
// keep_separate on any failure or missing required attribute (spec.md
// §4.5).
func parseMergeDecisionXML(raw string) MergeDecision {
	var doc rawMergeDecision
	if err := xml.Unmarshal([]byte(raw), &doc); err != nil {
		return MergeDecision{Action: ActionKeepSeparate}
	}
	switch MergeAction(doc.Action) {
	case ActionMerge:
		if doc.TargetNodeID == "" {
			return MergeDecision{Action: ActionKeepSeparate}
		}
		return MergeDecision{Action: ActionMerge, TargetNodeID: doc.TargetNodeID, BodyAppend: doc.BodyAppend}
	case ActionAlias:
		if doc.TargetNodeID == "" || doc.AliasKey == "" {
			return MergeDecision{Action: ActionKeepSeparate}
		}
		return MergeDecision{Action: ActionAlias, TargetNodeID: doc.TargetNodeID, AliasKey: doc.AliasKey}
	default:
		return MergeDecision{Action: ActionKeepSeparate}
	}
}
