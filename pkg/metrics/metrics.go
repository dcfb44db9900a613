// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package metrics durably exposes the structured metric-event taxonomy
// from spec.md §7 (extract, reflection, selector, error, semantic-dedup,
// guardrail) as Prometheus collectors, so a host process can scrape
// aggregate counts instead of grepping logs.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry bundles every OMG collector. Construct one per process with
// NewRegistry and register it with a prometheus.Registerer of the host's
// choosing (production code should not rely on the global default
// registry so multiple workspaces in one process don't collide).
type Registry struct {
	ExtractRuns       *prometheus.CounterVec
	ExtractCandidates prometheus.Counter
	ExtractTruncated  prometheus.Counter
	MergeDecisions    *prometheus.CounterVec
	ArchivedLosers    prometheus.Counter
	SelectorRuns      prometheus.Counter
	SelectorDropped   prometheus.Counter
	GuardrailActions  *prometheus.CounterVec
	SemanticDedup     *prometheus.CounterVec
	ReflectionRuns    *prometheus.CounterVec
	Errors            *prometheus.CounterVec
	BootstrapBatches  *prometheus.CounterVec
	LLMLatency        *prometheus.HistogramVec
}

// NewRegistry constructs a fresh, unregistered set of collectors.
func NewRegistry() *Registry {
	return &Registry{
		ExtractRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "omg", Subsystem: "extract", Name: "runs_total",
			Help: "Extract phase invocations, partitioned by outcome.",
		}, []string{"outcome"}),
		ExtractCandidates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "omg", Subsystem: "extract", Name: "candidates_total",
			Help: "Accepted extraction candidates across all runs.",
		}),
		ExtractTruncated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "omg", Subsystem: "extract", Name: "truncated_total",
			Help: "Extract responses flagged as truncated.",
		}),
		MergeDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "omg", Subsystem: "merge", Name: "decisions_total",
			Help: "Merge decisions, partitioned by action.",
		}, []string{"action"}),
		ArchivedLosers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "omg", Subsystem: "merge", Name: "archived_losers_total",
			Help: "Nodes archived as losers of a merge.",
		}),
		SelectorRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "omg", Subsystem: "selector", Name: "runs_total",
			Help: "Context selection invocations.",
		}),
		SelectorDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "omg", Subsystem: "selector", Name: "dropped_total",
			Help: "Candidate nodes dropped to fit the token budget.",
		}),
		GuardrailActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "omg", Subsystem: "guardrail", Name: "actions_total",
			Help: "Extraction guardrail decisions, partitioned by action.",
		}, []string{"action"}),
		SemanticDedup: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "omg", Subsystem: "semantic", Name: "dedup_total",
			Help: "Semantic-search assisted merge target lookups, partitioned by outcome.",
		}, []string{"outcome"}),
		ReflectionRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "omg", Subsystem: "reflection", Name: "runs_total",
			Help: "Reflection synthesis attempts, partitioned by final compression level.",
		}, []string{"level"}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "omg", Subsystem: "", Name: "errors_total",
			Help: "Errors observed, partitioned by phase.",
		}, []string{"phase"}),
		BootstrapBatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "omg", Subsystem: "bootstrap", Name: "batches_total",
			Help: "Bootstrap batches processed, partitioned by outcome.",
		}, []string{"outcome"}),
		LLMLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "omg", Subsystem: "llm", Name: "call_seconds",
			Help:    "LLM call latency, partitioned by call site label.",
			Buckets: prometheus.DefBuckets,
		}, []string{"label"}),
	}
}

// MustRegister registers every collector with r, panicking on duplicate
// registration (intended for process startup, not hot paths).
func (m *Registry) MustRegister(r prometheus.Registerer) {
	r.MustRegister(
		m.ExtractRuns, m.ExtractCandidates, m.ExtractTruncated,
		m.MergeDecisions, m.ArchivedLosers,
		m.SelectorRuns, m.SelectorDropped,
		m.GuardrailActions, m.SemanticDedup, m.ReflectionRuns,
		m.Errors, m.BootstrapBatches, m.LLMLatency,
	)
}
