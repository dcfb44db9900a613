// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package main implements the omg CLI: observe a conversation, maintain a
// file-backed knowledge graph, and select context for the next turn.
//
// Usage:
//
//	omg init                 Create .omg/workspace.yaml
//	omg status [--json]      Show graph statistics
//	omg bootstrap            Run the resumable ingestion pipeline
//	omg observe              Run one Extract+Merge cycle over stdin messages
//	omg reflect               Run one reflection pass over a node set
//	omg query <prompt>       Render a context selection for a prompt
//	omg serve                Register cron jobs; optionally watch the graph root
package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/openclaw/omg/internal/ui"
	"github.com/openclaw/omg/pkg/metrics"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// appMetrics is shared by every subcommand in this process. Only `omg
// serve` exposes it over HTTP; one-shot commands increment it too, for
// consistency, even though nothing scrapes it before the process exits.
var appMetrics = metrics.NewRegistry()

// GlobalFlags holds flags that apply to every subcommand.
type GlobalFlags struct {
	JSON    bool
	NoColor bool
	Verbose int
	Quiet   bool
}

func main() {
	var (
		showVersion = flag.BoolP("version", "V", false, "Show version and exit")
		configPath  = flag.StringP("config", "c", "", "Path to .omg/workspace.yaml")
		jsonOutput  = flag.Bool("json", false, "Output in JSON format")
		noColor     = flag.Bool("no-color", false, "Disable color output")
		verbose     = flag.CountP("verbose", "v", "Increase verbosity (-v info, -vv debug)")
		quiet       = flag.BoolP("quiet", "q", false, "Suppress non-essential output")
	)
	flag.SetInterspersed(false)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `omg - personal knowledge-graph engine

Usage:
  omg <command> [options]

Commands:
  init        Create .omg/workspace.yaml
  status      Show graph statistics
  bootstrap   Run the resumable ingestion pipeline over legacy sources
  observe     Run one Extract+Merge cycle over stdin messages
  reflect     Run one reflection pass over a node set
  query       Render a context selection for a prompt
  serve       Register cron jobs, optionally serve the query API + metrics

Global Options:
  --json            Output in JSON format
  --no-color        Disable color output (respects NO_COLOR env var)
  -v, --verbose     Increase verbosity (-v info, -vv debug)
  -q, --quiet       Suppress non-essential output
  -c, --config      Path to .omg/workspace.yaml
  -V, --version     Show version and exit

`)
	}

	flag.Parse()

	if *showVersion {
		fmt.Printf("omg version %s\ncommit: %s\nbuilt: %s\n", version, commit, date)
		os.Exit(0)
	}
	if os.Getenv("NO_COLOR") != "" {
		*noColor = true
	}
	if *quiet && *verbose > 0 {
		fmt.Fprintln(os.Stderr, "Error: cannot use --quiet and --verbose together")
		os.Exit(1)
	}
	if *jsonOutput {
		*quiet = true
	}

	globals := GlobalFlags{JSON: *jsonOutput, NoColor: *noColor, Verbose: *verbose, Quiet: *quiet}
	ui.InitColors(globals.NoColor)

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	command, cmdArgs := args[0], args[1:]
	switch command {
	case "init":
		runInit(cmdArgs, globals)
	case "status":
		runStatus(cmdArgs, *configPath, globals)
	case "bootstrap":
		runBootstrap(cmdArgs, *configPath, globals)
	case "observe":
		runObserve(cmdArgs, *configPath, globals)
	case "reflect":
		runReflect(cmdArgs, *configPath, globals)
	case "query":
		runQuery(cmdArgs, *configPath, globals)
	case "serve":
		runServe(cmdArgs, *configPath, globals)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
}
