// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/openclaw/omg/internal/clock"
	"github.com/openclaw/omg/internal/llmclient"
	"github.com/openclaw/omg/internal/ui"
	"github.com/openclaw/omg/pkg/frontmatter"
	"github.com/openclaw/omg/pkg/mergeexec"
	"github.com/openclaw/omg/pkg/node"
	"github.com/openclaw/omg/pkg/observer"
	"github.com/openclaw/omg/pkg/registry"
	"github.com/openclaw/omg/pkg/retrieval"
	"github.com/openclaw/omg/pkg/scaffold"
	"github.com/openclaw/omg/pkg/session"
	"github.com/openclaw/omg/pkg/similarity"
)

// runObserve reads newline-separated messages from stdin, runs Extract,
// resolves each candidate against existing nodes with the Merge pass, and
// writes the result to the graph (spec.md §4.4, §4.5, §4.6, §4.7, §4.9,
// §4.10).
func runObserve(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("observe", flag.ExitOnError)
	sessionKey := fs.String("session", "default", "Session key to track watermarks under")
	_ = fs.Parse(args)

	cfg, err := LoadConfig(configPath)
	if err != nil {
		ui.Fail("load config: %v", err)
		os.Exit(1)
	}

	messages := readStdinMessages()
	if len(messages) == 0 {
		ui.Warn(globals.Quiet, "no messages on stdin; nothing to observe")
		return
	}

	logger := newLogger(globals)
	clk := clock.System{}
	reg, err := registry.Open(cfg.GraphRoot, logger)
	if err != nil {
		ui.Fail("open registry: %v", err)
		os.Exit(1)
	}
	scaf := scaffold.NewManager(cfg.GraphRoot, reg, clk)
	llm := llmclient.New(cfg.LLM.BaseURL, cfg.LLM.Model, cfg.LLM.APIKey)

	store := session.NewStore(cfg.GraphRoot)
	st, err := store.Load(*sessionKey)
	if err != nil {
		ui.Fail("load session state: %v", err)
		os.Exit(1)
	}

	guard := session.EvaluateGuardrail(messages, st.RecentSourceFingerprints, session.DefaultGuardrailConfig())
	appMetrics.GuardrailActions.WithLabelValues(guard.Action).Inc()
	switch guard.Action {
	case "skip":
		ui.Warn(globals.Quiet, "guardrail: skipping, overlap=%.2f", guard.MaxOverlap)
		return
	case "truncate":
		ui.Warn(globals.Quiet, "guardrail: truncating window, overlap=%.2f", guard.MaxOverlap)
		messages = guard.TruncatedWindow
	}

	ctx := context.Background()
	extractor := observer.NewExtractor(llm, clk, logger)
	out, err := extractor.Extract(ctx, observer.ExtractInput{Messages: messages, MaxOutputTokens: cfg.LLM.MaxTokens})
	if err != nil {
		appMetrics.ExtractRuns.WithLabelValues("error").Inc()
		appMetrics.Errors.WithLabelValues("extract").Inc()
		ui.Fail("extract: %v", err)
		os.Exit(1)
	}
	appMetrics.ExtractRuns.WithLabelValues("ok").Inc()
	appMetrics.ExtractCandidates.Add(float64(len(out.Candidates)))
	if out.Truncated {
		appMetrics.ExtractTruncated.Inc()
	}

	guardCfg := session.DefaultGuardrailConfig()
	priors := make([]session.PriorNode, 0, len(st.LastObservationNodeIDs))
	for _, id := range st.LastObservationNodeIDs {
		if e, ok := reg.GetRegistryEntry(id); ok {
			priors = append(priors, session.PriorNode{ID: id, CanonicalKey: e.CanonicalKey, Description: e.Description})
		}
	}
	candidateRefs := make([]session.CandidateRef, len(out.Candidates))
	for i, c := range out.Candidates {
		candidateRefs[i] = session.CandidateRef{CanonicalKey: c.CanonicalKey, Description: c.Description}
	}
	keptIdx, suppressed := session.SuppressCandidates(candidateRefs, priors, guardCfg.CandidateSuppressionThreshold)
	for _, s := range suppressed {
		logger.Info("observe.candidate-suppressed", "description", out.Candidates[s.Index].Description, "against", s.AgainstID, "similarity", s.Similarity)
	}

	finder := retrieval.NewFinder(reg, nil, retrieval.DefaultConfig(), clk, logger)
	merger := observer.NewMerger(llm, logger)
	executor := mergeexec.NewExecutor(cfg.GraphRoot, reg, clk, logger)

	var writtenIDs []string
	for _, idx := range keptIdx {
		c := out.Candidates[idx]
		targets := finder.FindMergeTargets(ctx, retrieval.CandidateQuery{
			Type: c.Type, Title: c.Title, CanonicalKey: c.CanonicalKey,
			Description: c.Description, Priority: c.Priority,
		})

		rows := make([]observer.NeighborRow, len(targets))
		for i, t := range targets {
			rows[i] = observer.NeighborRow{ID: t.ID, Score: t.FinalScore, Description: t.Description, CanonicalKey: t.CanonicalKey}
		}

		decision, err := merger.Decide(ctx, c, rows)
		if err != nil {
			logger.Warn("observe.merge-decision-degraded", "error", err)
		}
		appMetrics.MergeDecisions.WithLabelValues(string(decision.Action)).Inc()

		switch decision.Action {
		case observer.ActionMerge:
			if _, ok := reg.GetRegistryEntry(decision.TargetNodeID); !ok {
				logger.Warn("observe.merge-target-missing", "target", decision.TargetNodeID)
				id, err := writeCandidate(reg, cfg.GraphRoot, c, clk)
				if err != nil {
					logger.Warn("observe.write-candidate-failed", "error", err)
					continue
				}
				writtenIDs = append(writtenIDs, id)
				continue
			}
			plan := mergeexec.Plan{KeepNodeID: decision.TargetNodeID, Patch: mergeexec.Patch{BodyAppend: decision.BodyAppend, Tags: c.Tags, Links: c.Links}}
			audit, err := executor.Apply(plan)
			if err != nil {
				logger.Warn("observe.merge-apply-failed", "target", decision.TargetNodeID, "error", err)
				continue
			}
			writtenIDs = append(writtenIDs, decision.TargetNodeID)
			appMetrics.ArchivedLosers.Add(float64(audit.ArchivedCount))
		case observer.ActionAlias:
			if err := applyAlias(reg, cfg.GraphRoot, decision.TargetNodeID, decision.AliasKey, clk); err != nil {
				logger.Warn("observe.alias-apply-failed", "target", decision.TargetNodeID, "error", err)
				continue
			}
			writtenIDs = append(writtenIDs, decision.TargetNodeID)
		default:
			id, err := writeCandidate(reg, cfg.GraphRoot, c, clk)
			if err != nil {
				logger.Warn("observe.write-candidate-failed", "error", err)
				continue
			}
			writtenIDs = append(writtenIDs, id)
			for _, domain := range c.MOCHints {
				if err := scaf.EnsureMOC(domain, id); err != nil {
					logger.Warn("observe.moc-update-failed", "domain", domain, "error", err)
				} else if err := scaf.RenderIndex(); err != nil {
					logger.Warn("observe.index-update-failed", "error", err)
				}
			}
		}
	}

	if out.NowPatch != nil {
		if err := scaf.RenderNow(out.NowPatch.Focus, out.NowPatch.OpenLoops, out.NowPatch.SuggestedLinks); err != nil {
			logger.Warn("observe.now-update-failed", "error", err)
		}
	}

	fpKey := ""
	if guard.Fingerprint != nil {
		fpKey = similarity.FingerprintKey(guard.Fingerprint)
	}
	newBoundary := st.ObservationBoundaryMessageIndex + len(messages)
	st = session.OnObservationSuccess(st, out.Usage.InputTokens+out.Usage.OutputTokens, newBoundary, writtenIDs, fpKey, cfg.Session.RecentWindowSize)
	if err := store.Save(*sessionKey, st); err != nil {
		ui.Fail("save session state: %v", err)
		os.Exit(1)
	}

	if globals.JSON {
		fmt.Printf("{\"written\":%d}\n", len(writtenIDs))
		return
	}
	ui.Success(globals.Quiet, "observed: %d nodes written/updated", len(writtenIDs))
}

func readStdinMessages() []string {
	var messages []string
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) != "" {
			messages = append(messages, line)
		}
	}
	return messages
}

func writeCandidate(reg *registry.Registry, root string, c observer.Candidate, clk clock.Clock) (string, error) {
	now := clock.ISO8601(clk.Now())
	id := node.DeriveID(c.Type, c.CanonicalKey, c.Description)
	uid := node.ComputeUID(root, c.Type, c.CanonicalKey)
	path := node.UpsertRelPath(c.Type, c.CanonicalKey, c.Description)
	n := node.Node{
		ID: id, UID: uid, CanonicalKey: c.CanonicalKey, Type: c.Type,
		Priority: c.Priority, Created: now, Updated: now,
		Description: c.Description, Tags: c.Tags, Links: c.Links,
		FilePath: filepath.Join(root, path),
	}
	if err := n.Validate(); err != nil {
		return "", err
	}
	if err := frontmatter.WriteNode(n, c.Content); err != nil {
		return "", err
	}
	if err := reg.RegisterNode(id, registry.Entry{
		Type: n.Type, Kind: "observation", Description: n.Description,
		Priority: n.Priority, Created: n.Created, Updated: n.Updated,
		FilePath: n.FilePath, Links: n.Links, Tags: n.Tags, CanonicalKey: n.CanonicalKey,
	}); err != nil {
		return "", err
	}
	return id, nil
}

func applyAlias(reg *registry.Registry, root, targetID, aliasKey string, clk clock.Clock) error {
	entry, ok := reg.GetRegistryEntry(targetID)
	if !ok {
		return fmt.Errorf("alias target %s not found", targetID)
	}
	doc, err := frontmatter.ParseFile(entry.FilePath)
	if err != nil {
		return err
	}
	n := doc.Node
	for _, a := range n.Aliases {
		if a == aliasKey {
			return nil
		}
	}
	n.Aliases = append(n.Aliases, aliasKey)
	n.Updated = clock.ISO8601(clk.Now())
	if err := frontmatter.WriteNode(n, doc.Body); err != nil {
		return err
	}
	return reg.UpdateRegistryEntry(targetID, func(e registry.Entry) registry.Entry {
		e.Updated = n.Updated
		return e
	})
}
