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
	"os"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/openclaw/omg/internal/clock"
	"github.com/openclaw/omg/internal/llmclient"
	"github.com/openclaw/omg/internal/ui"
	"github.com/openclaw/omg/pkg/frontmatter"
	"github.com/openclaw/omg/pkg/reflector"
	"github.com/openclaw/omg/pkg/registry"
	"github.com/openclaw/omg/pkg/scaffold"
)

// runReflect synthesizes the given node ids into a new reflection node
// (spec.md §4.12). With no --nodes flag it reports an error and exits; the
// dedup-then-reflect sweep runs only as the cron job `omg serve` registers.
func runReflect(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("reflect", flag.ExitOnError)
	nodeIDs := fs.String("nodes", "", "Comma-separated node ids to synthesize")
	canonicalKey := fs.String("key", "reflection.manual", "Canonical key for the new reflection node")
	_ = fs.Parse(args)

	cfg, err := LoadConfig(configPath)
	if err != nil {
		ui.Fail("load config: %v", err)
		os.Exit(1)
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

	if *nodeIDs == "" {
		ui.Fail("reflect requires --nodes (comma-separated ids); see `omg serve` for the scheduled sweep")
		os.Exit(1)
	}

	var sources []reflector.SourceNode
	for _, id := range strings.Split(*nodeIDs, ",") {
		id = strings.TrimSpace(id)
		entry, ok := reg.GetRegistryEntry(id)
		if !ok {
			ui.Warn(globals.Quiet, "node %s not found; skipping", id)
			continue
		}
		body := ""
		if doc, err := frontmatter.ParseFile(entry.FilePath); err == nil {
			body = doc.Body
		}
		sources = append(sources, reflector.SourceNode{ID: id, Type: string(entry.Type), Description: entry.Description, Body: body})
	}
	if len(sources) < 2 {
		ui.Fail("reflect needs at least 2 resolvable source nodes")
		os.Exit(1)
	}

	refl := reflector.NewReflector(llm, logger)
	syn, err := refl.Reflect(context.Background(), sources)
	if err != nil {
		appMetrics.Errors.WithLabelValues("reflect").Inc()
		ui.Fail("reflect: %v", err)
		os.Exit(1)
	}
	appMetrics.ReflectionRuns.WithLabelValues(fmt.Sprintf("%d", syn.CompressionLevel)).Inc()

	applier := &reflector.Applier{Root: cfg.GraphRoot, Reg: reg, Scaffold: scaf, Clock: clk}
	id, err := applier.Apply(*canonicalKey, syn)
	if err != nil {
		ui.Fail("apply synthesis: %v", err)
		os.Exit(1)
	}

	if globals.JSON {
		fmt.Printf("{\"reflectionId\":%q,\"compressionLevel\":%d}\n", id, syn.CompressionLevel)
		return
	}
	ui.Success(globals.Quiet, "reflection written: %s (compression level %d)", id, syn.CompressionLevel)
}
