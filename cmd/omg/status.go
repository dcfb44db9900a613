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
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/openclaw/omg/internal/ui"
	"github.com/openclaw/omg/pkg/node"
	"github.com/openclaw/omg/pkg/registry"
)

// StatusResult is the JSON-output shape for `omg status`.
type StatusResult struct {
	GraphRoot    string         `json:"graphRoot"`
	NodeCount    int            `json:"nodeCount"`
	ByType       map[string]int `json:"byType"`
	BootstrapRun bool           `json:"bootstrapComplete"`
	Timestamp    time.Time      `json:"timestamp"`
}

// runStatus reports node counts by type and bootstrap completion (spec.md
// §4.1, §4.11).
func runStatus(args []string, configPath string, globals GlobalFlags) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		ui.Fail("load config: %v", err)
		os.Exit(1)
	}

	reg, err := registry.Open(cfg.GraphRoot, nil)
	if err != nil {
		ui.Fail("open registry: %v", err)
		os.Exit(1)
	}

	entries := reg.GetRegistryEntries(&registry.Filter{IncludeArchived: true})
	byType := map[string]int{}
	for _, e := range entries {
		byType[string(e.Type)]++
	}

	result := StatusResult{
		GraphRoot:    cfg.GraphRoot,
		NodeCount:    len(entries),
		ByType:       byType,
		BootstrapRun: bootstrapComplete(cfg.GraphRoot),
		Timestamp:    time.Now().UTC(),
	}

	if globals.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(result)
		return
	}

	fmt.Printf("Graph root: %s\n", result.GraphRoot)
	fmt.Printf("Nodes:      %d\n", result.NodeCount)
	for _, t := range orderedTypes() {
		if n := byType[string(t)]; n > 0 {
			fmt.Printf("  %-12s %d\n", t, n)
		}
	}
	fmt.Printf("Bootstrap:  %v\n", result.BootstrapRun)
}

func orderedTypes() []node.Type {
	return []node.Type{
		node.TypeIdentity, node.TypePreference, node.TypeProject, node.TypeDecision,
		node.TypeFact, node.TypeEpisode, node.TypeReflection, node.TypeMOC, node.TypeIndex, node.TypeNow,
	}
}

func bootstrapComplete(graphRoot string) bool {
	_, err := os.Stat(graphRoot + "/.bootstrap-done")
	return err == nil
}
