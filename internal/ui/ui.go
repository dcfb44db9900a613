// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ui holds the small set of terminal-output helpers cmd/omg uses:
// color toggling, a progress bar for long bootstrap runs, and quiet-aware
// status printing.
package ui

import (
	"os"

	"github.com/fatih/color"
	isatty "github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
)

// InitColors disables color output when noColor is set, NO_COLOR is
// present in the environment, or stdout is not a terminal.
func InitColors(noColor bool) {
	if noColor || os.Getenv("NO_COLOR") != "" || !isatty.IsTerminal(os.Stdout.Fd()) {
		color.NoColor = true
	}
}

// Success prints a green checkmark line unless quiet.
func Success(quiet bool, format string, args ...interface{}) {
	if quiet {
		return
	}
	color.New(color.FgGreen).Fprintf(os.Stdout, "✓ "+format+"\n", args...)
}

// Warn prints a yellow warning line to stderr unless quiet.
func Warn(quiet bool, format string, args ...interface{}) {
	if quiet {
		return
	}
	color.New(color.FgYellow).Fprintf(os.Stderr, "! "+format+"\n", args...)
}

// Fail prints a red error line to stderr regardless of quiet.
func Fail(format string, args ...interface{}) {
	color.New(color.FgRed).Fprintf(os.Stderr, "✗ "+format+"\n", args...)
}

// NewBar returns a progress bar for total steps, or a no-op bar when
// quiet is set (JSON output mode never wants progress text interleaved).
func NewBar(total int, description string, quiet bool) *progressbar.ProgressBar {
	if quiet {
		return progressbar.DefaultSilent(int64(total))
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionClearOnFinish(),
	)
}
