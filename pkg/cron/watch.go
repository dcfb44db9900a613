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
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchSkipDirs are never watched: noise and descriptor cost with no
// ingestible content. Of these, bootstrap's markdown reader also skips
// .omg-state and archive.
var watchSkipDirs = map[string]bool{
	".git": true, "node_modules": true, ".omg-state": true, "archive": true,
}

// WatchDebounce collapses a burst of filesystem events into one trigger
// (spec.md §4.13).
const WatchDebounce = 2 * time.Second

// Watch watches graphRoot for changes and invokes onChange, debounced,
// until ctx is canceled. A workspace with watch enabled gets bootstrap
// triggered on file changes in addition to the 5-minute cron sweep.
func Watch(ctx context.Context, graphRoot string, onChange func(), logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	addDirs(watcher, graphRoot, logger)

	var timer *time.Timer
	var timerCh <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(WatchDebounce)
			timerCh = timer.C
			logger.Debug("cron.watch.event", "path", event.Name, "op", event.Op.String())
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("cron.watch.error", "error", err)
		case <-timerCh:
			timerCh = nil
			onChange()
		}
	}
}

func addDirs(watcher *fsnotify.Watcher, root string, logger *slog.Logger) {
	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsPermission(err) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		base := d.Name()
		if watchSkipDirs[base] || (strings.HasPrefix(base, ".") && path != root) {
			return filepath.SkipDir
		}
		if err := watcher.Add(path); err != nil && !os.IsPermission(err) {
			logger.Warn("cron.watch.add-failed", "path", path, "error", err)
		}
		return nil
	})
}
