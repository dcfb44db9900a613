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
	"github.com/openclaw/omg/internal/ui"
	"github.com/openclaw/omg/pkg/registry"
	"github.com/openclaw/omg/pkg/selector"
)

// runQuery renders a context selection for the given prompt, the way a
// host agent would request context before a turn (spec.md §4.8).
func runQuery(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	pinned := fs.String("pinned", "", "Comma-separated node ids to force-include")
	_ = fs.Parse(args)
	if fs.NArg() == 0 {
		ui.Fail("usage: omg query <prompt text>")
		os.Exit(1)
	}
	prompt := strings.Join(fs.Args(), " ")

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

	selCfg := selector.Config{
		MaxContextTokens: cfg.Selector.MaxContextTokens,
		MaxMocs:          cfg.Selector.MaxMocs,
		MaxNodes:         cfg.Selector.MaxNodes,
	}
	sel := selector.NewSelector(cfg.GraphRoot, reg, nil, selCfg, clk, logger)

	var pinnedIDs []string
	if *pinned != "" {
		for _, id := range strings.Split(*pinned, ",") {
			pinnedIDs = append(pinnedIDs, strings.TrimSpace(id))
		}
	}

	selection := sel.Select(context.Background(), prompt, pinnedIDs)
	appMetrics.SelectorRuns.Inc()
	appMetrics.SelectorDropped.Add(float64(selection.Dropped))
	rendered := selector.Render(selection)

	if globals.JSON {
		fmt.Printf("{\"rendered\":%q}\n", rendered)
		return
	}
	fmt.Print(rendered)
}
