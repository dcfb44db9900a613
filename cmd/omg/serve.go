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
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	"github.com/openclaw/omg/internal/clock"
	"github.com/openclaw/omg/internal/llmclient"
	"github.com/openclaw/omg/internal/ui"
	"github.com/openclaw/omg/pkg/bootstrap"
	"github.com/openclaw/omg/pkg/cron"
	"github.com/openclaw/omg/pkg/observer"
	"github.com/openclaw/omg/pkg/registry"
	"github.com/openclaw/omg/pkg/scaffold"
	"github.com/openclaw/omg/pkg/selector"
)

// runServe registers this workspace with the cron registry, installs the
// three scheduled jobs against an in-process scheduler, and blocks until
// signaled (spec.md §4.13). A production host embedding OMG instead wires
// host.CronScheduler to its own scheduler and skips this command.
func runServe(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	watch := fs.Bool("watch", false, "Also watch the graph root and trigger bootstrap on change")
	hostName := fs.String("host-name", "omg", "Namespace for the multi-workspace registry file")
	addr := fs.String("addr", "", "Serve the context-selector HTTP API on this address (e.g. :8080); empty disables")
	metricsAddr := fs.String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090); empty disables")
	_ = fs.Parse(args)

	cfg, err := LoadConfig(configPath)
	if err != nil {
		ui.Fail("load config: %v", err)
		os.Exit(1)
	}

	logger := newLogger(globals)
	clk := clock.System{}

	registryPath, err := cron.DefaultPath(*hostName)
	if err != nil {
		ui.Fail("resolve workspace registry path: %v", err)
		os.Exit(1)
	}
	wsReg, err := cron.Open(registryPath)
	if err != nil {
		ui.Fail("open workspace registry: %v", err)
		os.Exit(1)
	}
	defer wsReg.Close()
	wsReg.Register(cfg.GraphRoot, clock.ISO8601(clk.Now()))

	llm := llmclient.New(cfg.LLM.BaseURL, cfg.LLM.Model, cfg.LLM.APIKey)
	scheduler := newInProcessScheduler(logger)

	factory := func(graphRoot string) (*cron.WorkspaceContext, error) {
		reg, err := registry.Open(graphRoot, logger)
		if err != nil {
			return nil, err
		}
		scaf := scaffold.NewManager(graphRoot, reg, clk)
		pipeline := &bootstrap.Pipeline{
			Root: graphRoot, Reg: reg, Scaffold: scaf,
			Extractor: observer.NewExtractor(llm, clk, logger),
			Clock:     clk, Logger: logger, Concurrency: cfg.Bootstrap.Concurrency,
		}
		return &cron.WorkspaceContext{
			GraphRoot: graphRoot, Reg: reg, Scaffold: scaf, Clock: clk, Logger: logger, Pipeline: pipeline,
		}, nil
	}

	cron.RegisterJobs(scheduler, wsReg, factory, llm, logger)
	ui.Success(globals.Quiet, "registered cron jobs for %s", cfg.GraphRoot)

	if *addr != "" {
		reg, err := registry.Open(cfg.GraphRoot, logger)
		if err != nil {
			ui.Fail("open registry: %v", err)
			os.Exit(1)
		}
		selCfg := selector.Config{
			MaxContextTokens: cfg.Selector.MaxContextTokens,
			MaxMocs:          cfg.Selector.MaxMocs,
			MaxNodes:         cfg.Selector.MaxNodes,
		}
		sel := selector.NewSelector(cfg.GraphRoot, reg, nil, selCfg, clk, logger)

		mux := http.NewServeMux()
		mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok", "workspace": cfg.GraphRoot})
		})
		mux.HandleFunc("/v1/query", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
				return
			}
			var req struct {
				Prompt  string   `json:"prompt"`
				Pinned  []string `json:"pinned"`
				Session string   `json:"session"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "invalid request: "+err.Error(), http.StatusBadRequest)
				return
			}
			selection := sel.Select(r.Context(), req.Prompt, req.Pinned)
			appMetrics.SelectorRuns.Inc()
			appMetrics.SelectorDropped.Add(float64(selection.Dropped))
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"rendered": selector.Render(selection),
				"dropped":  selection.Dropped,
			})
		})
		go func() {
			if err := http.ListenAndServe(*addr, mux); err != nil {
				logger.Warn("serve.http-server-stopped", "error", err)
			}
		}()
		ui.Success(globals.Quiet, "context-selector API listening on %s", *addr)
	}

	if *metricsAddr != "" {
		promReg := prometheus.NewRegistry()
		appMetrics.MustRegister(promReg)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				logger.Warn("serve.metrics-server-stopped", "error", err)
			}
		}()
		ui.Success(globals.Quiet, "metrics listening on %s/metrics", *metricsAddr)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *watch {
		go func() {
			err := cron.Watch(ctx, cfg.GraphRoot, func() {
				scheduler.fire(cron.JobBootstrap, ctx)
			}, logger)
			if err != nil {
				logger.Warn("serve.watch-stopped", "error", err)
			}
		}()
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	scheduler.start(ctx)
	<-sig
	ui.Success(globals.Quiet, "shutting down")
}
