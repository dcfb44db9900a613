// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package cron

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/openclaw/omg/internal/clock"
	"github.com/openclaw/omg/pkg/bootstrap"
	"github.com/openclaw/omg/pkg/frontmatter"
	"github.com/openclaw/omg/pkg/host"
	"github.com/openclaw/omg/pkg/node"
	"github.com/openclaw/omg/pkg/reflector"
	"github.com/openclaw/omg/pkg/registry"
	"github.com/openclaw/omg/pkg/scaffold"
)

// Expressions for the three named jobs (spec.md §4.13).
const (
	BootstrapCronExpr   = "*/5 * * * *"
	ReflectionCronExpr  = "0 3 * * *"
	MaintenanceCronExpr = "0 4 * * 0"
)

// Job ids registered against host.CronScheduler.
const (
	JobBootstrap   = "omg-bootstrap"
	JobReflection  = "omg-reflection"
	JobMaintenance = "omg-maintenance"
)

// ReflectionAge is the minimum node age before it's eligible for
// reflection's dedup-then-reflect sweep (spec.md §4.13).
const ReflectionAge = 7 * 24 * time.Hour

// WorkspaceContext bundles the per-workspace collaborators a cron job
// needs, built once per registered workspace at job-fire time.
type WorkspaceContext struct {
	GraphRoot string
	Reg       *registry.Registry
	Scaffold  *scaffold.Manager
	Clock     clock.Clock
	Logger    *slog.Logger
	Pipeline  *bootstrap.Pipeline // nil disables the bootstrap job for this workspace
}

// WorkspaceContextFactory builds a WorkspaceContext for one graph root,
// returning an error if the workspace can no longer be opened (e.g. its
// registry is corrupt); jobs log and skip rather than abort the sweep.
type WorkspaceContextFactory func(graphRoot string) (*WorkspaceContext, error)

// RegisterJobs wires the three named jobs into scheduler, iterating
// reg.List() at fire time so newly registered workspaces are picked up
// without reconfiguring the scheduler (spec.md §4.13).
func RegisterJobs(scheduler host.CronScheduler, reg *Registry, factory WorkspaceContextFactory, llm host.LLMClient, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	scheduler.Schedule(JobBootstrap, BootstrapCronExpr, func(ctx context.Context) {
		runAcrossWorkspaces(ctx, reg, factory, logger, func(ctx context.Context, wc *WorkspaceContext) {
			runBootstrapJob(ctx, wc)
		})
	})
	scheduler.Schedule(JobReflection, ReflectionCronExpr, func(ctx context.Context) {
		runAcrossWorkspaces(ctx, reg, factory, logger, func(ctx context.Context, wc *WorkspaceContext) {
			runReflectionJob(ctx, wc, llm)
		})
	})
	scheduler.Schedule(JobMaintenance, MaintenanceCronExpr, func(ctx context.Context) {
		reg.Prune()
		runAcrossWorkspaces(ctx, reg, factory, logger, func(ctx context.Context, wc *WorkspaceContext) {
			runMaintenanceJob(wc)
		})
	})
}

func runAcrossWorkspaces(ctx context.Context, reg *Registry, factory WorkspaceContextFactory, logger *slog.Logger, run func(context.Context, *WorkspaceContext)) {
	for _, ws := range reg.List() {
		wc, err := factory(ws.GraphRoot)
		if err != nil {
			logger.Warn("cron.workspace-open-failed", "root", ws.GraphRoot, "error", err)
			continue
		}
		run(ctx, wc)
	}
}

// runBootstrapJob invokes the bootstrap pipeline's resume path: if a run
// already completed for this workspace it's a no-op, otherwise it picks
// up wherever the last run left off (spec.md §4.11, §4.13).
func runBootstrapJob(ctx context.Context, wc *WorkspaceContext) {
	if wc.Pipeline == nil || bootstrap.HasCompleted(wc.GraphRoot, false) {
		return
	}
	units, errs := bootstrap.CollectSources(wc.GraphRoot)
	for _, e := range errs {
		wc.Logger.Warn("cron.bootstrap.source-error", "root", wc.GraphRoot, "error", e)
	}
	if len(units) == 0 {
		return
	}
	batches := bootstrap.PackBatches(bootstrap.ChunkUnits(units))
	if _, err := wc.Pipeline.Run(ctx, batches, false); err != nil {
		wc.Logger.Warn("cron.bootstrap-failed", "root", wc.GraphRoot, "error", err)
	}
}

// runReflectionJob runs dedup-then-reflect over non-archived,
// non-reflection entries older than ReflectionAge (spec.md §4.13).
func runReflectionJob(ctx context.Context, wc *WorkspaceContext, llm host.LLMClient) {
	entries := wc.Reg.GetRegistryEntries(&registry.Filter{})
	cutoff := wc.now().Add(-ReflectionAge)

	groups := scaffold.DedupAudit(wc.Reg, scaffold.DuplicateAuditThreshold)
	eligible := map[string]bool{}
	for _, pair := range groups {
		eligible[pair.A] = true
		eligible[pair.B] = true
	}

	var ids []string
	for id, e := range entries {
		if e.Type == node.TypeReflection || e.Type == node.TypeMOC || e.Type == node.TypeIndex || e.Type == node.TypeNow {
			continue
		}
		created, ok := clock.ParseISO8601(e.Created)
		if !ok || created.After(cutoff) {
			continue
		}
		if !eligible[id] {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if len(ids) < 2 {
		return
	}

	sources := make([]reflector.SourceNode, 0, len(ids))
	for _, id := range ids {
		e := entries[id]
		body := ""
		if doc, err := frontmatter.ParseFile(e.FilePath); err != nil {
			wc.Logger.Warn("cron.reflection.source-read-failed", "root", wc.GraphRoot, "id", id, "error", err)
		} else {
			body = doc.Body
		}
		sources = append(sources, reflector.SourceNode{ID: id, Type: string(e.Type), Description: e.Description, Body: body})
	}

	refl := reflector.NewReflector(llm, wc.Logger)
	syn, err := refl.Reflect(ctx, sources)
	if err != nil {
		wc.Logger.Warn("cron.reflection-failed", "root", wc.GraphRoot, "error", err)
		return
	}
	applier := &reflector.Applier{Root: wc.GraphRoot, Reg: wc.Reg, Scaffold: wc.Scaffold, Clock: wc.Clock}
	if _, err := applier.Apply("cron-sweep", syn); err != nil {
		wc.Logger.Warn("cron.reflection-apply-failed", "root", wc.GraphRoot, "error", err)
	}
}

// runMaintenanceJob runs the broken-link and duplicate-description audits,
// logs their findings, and regenerates index.md so it never drifts from
// the registered MOC set (spec.md §4.13, §6, §D).
func runMaintenanceJob(wc *WorkspaceContext) {
	broken := scaffold.BrokenLinkAudit(wc.Reg)
	for _, b := range broken {
		wc.Logger.Warn("cron.maintenance.broken-link", "root", wc.GraphRoot, "from", b.FromID, "target", b.Target)
	}
	dupes := scaffold.DedupAudit(wc.Reg, scaffold.DuplicateAuditThreshold)
	for _, d := range dupes {
		wc.Logger.Warn("cron.maintenance.duplicate", "root", wc.GraphRoot, "a", d.A, "b", d.B, "similarity", d.Similarity)
	}
	if err := wc.Scaffold.RenderIndex(); err != nil {
		wc.Logger.Warn("cron.maintenance.index-update-failed", "root", wc.GraphRoot, "error", err)
	}
}

func (wc *WorkspaceContext) now() time.Time {
	if wc.Clock == nil {
		return clock.System{}.Now()
	}
	return wc.Clock.Now()
}
