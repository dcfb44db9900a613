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
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/openclaw/omg/internal/ui"
)

// runInit creates .omg/workspace.yaml and an empty graph root (spec.md
// §4.1).
func runInit(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	force := fs.Bool("force", false, "Overwrite existing configuration")
	graphRoot := fs.String("graph-root", "graph", "Directory to store graph nodes in")
	_ = fs.Parse(args)

	cwd, err := os.Getwd()
	if err != nil {
		ui.Fail("get working directory: %v", err)
		os.Exit(1)
	}

	configPath := ConfigPath(cwd)
	if _, err := os.Stat(configPath); err == nil && !*force {
		ui.Fail("%s already exists (use --force to overwrite)", configPath)
		os.Exit(1)
	}

	absGraphRoot := *graphRoot
	if !os.IsPathSeparator(absGraphRoot[0]) {
		absGraphRoot = cwd + string(os.PathSeparator) + absGraphRoot
	}
	if err := os.MkdirAll(absGraphRoot, 0o750); err != nil {
		ui.Fail("create graph root %s: %v", absGraphRoot, err)
		os.Exit(1)
	}

	cfg := DefaultConfig(absGraphRoot)
	if err := SaveConfig(cfg, configPath); err != nil {
		ui.Fail("save config: %v", err)
		os.Exit(1)
	}

	if globals.JSON {
		fmt.Printf("{\"config\":%q,\"graphRoot\":%q}\n", configPath, absGraphRoot)
		return
	}
	ui.Success(globals.Quiet, "created %s", configPath)
	ui.Success(globals.Quiet, "graph root: %s", absGraphRoot)
}
