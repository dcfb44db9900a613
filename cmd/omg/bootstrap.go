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
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/openclaw/omg/internal/clock"
	"github.com/openclaw/omg/internal/llmclient"
	"github.com/openclaw/omg/internal/ui"
	"github.com/openclaw/omg/pkg/bootstrap"
	"github.com/openclaw/omg/pkg/observer"
	"github.com/openclaw/omg/pkg/registry"
	"github.com/openclaw/omg/pkg/scaffold"
)

// runBootstrap runs the resumable ingestion pipeline once (spec.md
// §4.11). Pass --retry to re-run only batches that previously failed.
func runBootstrap(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("bootstrap", flag.ExitOnError)
	force := fs.Bool("force", false, "Ignore the completion sentinel and restart")
	concurrency := fs.Int("concurrency", 0, "Override configured concurrency")
	retry := fs.Bool("retry", false, "Retry only previously-failed batches")
	errorType := fs.String("error-type", "", "Retry filter: llm-error|parse-empty|zero-operations|write-all-failed")
	batchIndices := fs.String("batches", "", "Retry filter: comma-separated batch indices")
	_ = fs.Parse(args)

	cfg, err := LoadConfig(configPath)
	if err != nil {
		ui.Fail("load config: %v", err)
		os.Exit(1)
	}

	logger := newLogger(globals)
	reg, err := registry.Open(cfg.GraphRoot, logger)
	if err != nil {
		ui.Fail("open registry: %v", err)
		os.Exit(1)
	}
	clk := clock.System{}
	scaf := scaffold.NewManager(cfg.GraphRoot, reg, clk)
	llm := llmclient.New(cfg.LLM.BaseURL, cfg.LLM.Model, cfg.LLM.APIKey)
	extractor := observer.NewExtractor(llm, clk, logger)

	conc := cfg.Bootstrap.Concurrency
	if *concurrency > 0 {
		conc = *concurrency
	}
	pipeline := &bootstrap.Pipeline{
		Root: cfg.GraphRoot, Reg: reg, Scaffold: scaf, Extractor: extractor,
		Clock: clk, Logger: logger, Concurrency: conc,
	}

	units, srcErrs := bootstrap.CollectSources(cfg.GraphRoot)
	for _, e := range srcErrs {
		ui.Warn(globals.Quiet, "source error: %v", e)
	}
	batches := bootstrap.PackBatches(bootstrap.ChunkUnits(units))

	ctx := context.Background()
	var result bootstrap.Result

	if *retry {
		filter := bootstrap.RetryFilter{ErrorType: bootstrap.ErrorType(*errorType)}
		if *batchIndices != "" {
			filter.BatchIndices = map[int]bool{}
			for _, tok := range strings.Split(*batchIndices, ",") {
				if n, err := strconv.Atoi(strings.TrimSpace(tok)); err == nil {
					filter.BatchIndices[n] = true
				}
			}
		}
		result, err = bootstrap.Retry(ctx, pipeline, batches, filter)
	} else {
		bar := ui.NewBar(len(batches), "bootstrap", globals.Quiet)
		defer func() { _ = bar.Finish() }()
		result, err = pipeline.Run(ctx, batches, *force)
	}
	if err != nil {
		ui.Fail("bootstrap: %v", err)
		os.Exit(1)
	}

	if globals.JSON {
		fmt.Printf("{\"totalBatches\":%d,\"succeeded\":%d,\"failed\":%d,\"nodesWritten\":%d}\n",
			result.TotalBatches, result.Succeeded, result.Failed, result.NodesWritten)
		return
	}
	ui.Success(globals.Quiet, "bootstrap: %d/%d batches ok, %d nodes written", result.Succeeded, result.TotalBatches, result.NodesWritten)
	appMetrics.BootstrapBatches.WithLabelValues("ok").Add(float64(result.Succeeded))
	if result.Failed > 0 {
		ui.Warn(globals.Quiet, "%d batches failed; see .bootstrap-failures.jsonl", result.Failed)
		appMetrics.BootstrapBatches.WithLabelValues("failed").Add(float64(result.Failed))
	}
}

func newLogger(globals GlobalFlags) *slog.Logger {
	level := slog.LevelWarn
	switch {
	case globals.Verbose >= 2:
		level = slog.LevelDebug
	case globals.Verbose >= 1:
		level = slog.LevelInfo
	}
	if globals.Quiet {
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
