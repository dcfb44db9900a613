// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package bootstrap

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "modernc.org/sqlite"
)

// Unit is one source document to chunk and extract from, tagged with the
// origin it came from for diagnostics (spec.md §4.11).
type Unit struct {
	Origin  string // "markdown" | "log" | "sqlite"
	Path    string
	Content string
}

// ReadMarkdownTree walks root for *.md files, skipping the graph's own
// structural output (index.md, now.md, nodes/ — which holds every
// upserted fact/decision/episode/reflection/moc node — and anything
// under .omg-state or archive/) so bootstrap never re-ingests its own
// nodes (spec.md §4.11).
func ReadMarkdownTree(root string) ([]Unit, error) {
	var units []Unit
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			base := d.Name()
			if base == ".omg-state" || base == "archive" || base == "mocs" || base == "nodes" {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".md") {
			return nil
		}
		rel, _ := filepath.Rel(root, path)
		if rel == "index.md" || rel == "now.md" {
			return nil
		}
		content, rerr := os.ReadFile(path)
		if rerr != nil {
			return fmt.Errorf("read %s: %w", path, rerr)
		}
		units = append(units, Unit{Origin: "markdown", Path: path, Content: string(content)})
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	sort.Slice(units, func(i, j int) bool { return units[i].Path < units[j].Path })
	return units, nil
}

// ReadLogDirectory reads every *.log and *.jsonl file directly under dir
// (non-recursive; conversational log exports are flat). Missing dir
// degrades to an empty slice rather than an error (spec.md §4.11 — sources
// are all optional).
func ReadLogDirectory(dir string) ([]Unit, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read log dir %s: %w", dir, err)
	}
	var units []Unit
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".log") && !strings.HasSuffix(name, ".jsonl") {
			continue
		}
		path := filepath.Join(dir, name)
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		units = append(units, Unit{Origin: "log", Path: path, Content: string(content)})
	}
	sort.Slice(units, func(i, j int) bool { return units[i].Path < units[j].Path })
	return units, nil
}

// ReadSQLiteMemory reads a per-agent memory database's messages, if the
// file exists and has a `messages(role, content, created_at)` table. This
// is the pure-Go modernc.org/sqlite driver so bootstrap never requires
// CGO (spec.md §4.11 supplement; see DESIGN.md for why cozodb's CGO
// binding was dropped in favor of this driver elsewhere in the module).
func ReadSQLiteMemory(dbPath string) ([]Unit, error) {
	if _, err := os.Stat(dbPath); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("stat %s: %w", dbPath, err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory db: %w", err)
	}
	defer db.Close()

	rows, err := db.Query(`SELECT role, content, created_at FROM messages ORDER BY created_at ASC`)
	if err != nil {
		// Missing/incompatible schema degrades to no units rather than
		// failing the whole bootstrap run.
		return nil, nil
	}
	defer rows.Close()

	var units []Unit
	for rows.Next() {
		var role, content, createdAt string
		if err := rows.Scan(&role, &content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan sqlite memory row: %w", err)
		}
		units = append(units, Unit{
			Origin:  "sqlite",
			Path:    fmt.Sprintf("%s#%s", dbPath, createdAt),
			Content: fmt.Sprintf("[%s] %s: %s", createdAt, role, content),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sqlite memory rows: %w", err)
	}
	return units, nil
}

// CollectSources gathers all three source kinds under graphRoot's sibling
// layout: graphRoot itself for markdown, graphRoot/../logs for log
// exports, and graphRoot/../memory.db for the optional SQLite source
// (spec.md §4.11). Any individually-failing source is reported but does
// not abort collection of the others.
func CollectSources(graphRoot string) ([]Unit, []error) {
	var all []Unit
	var errs []error

	md, err := ReadMarkdownTree(graphRoot)
	if err != nil {
		errs = append(errs, fmt.Errorf("markdown source: %w", err))
	}
	all = append(all, md...)

	logs, err := ReadLogDirectory(filepath.Join(graphRoot, "..", "logs"))
	if err != nil {
		errs = append(errs, fmt.Errorf("log source: %w", err))
	}
	all = append(all, logs...)

	sqliteUnits, err := ReadSQLiteMemory(filepath.Join(graphRoot, "..", "memory.db"))
	if err != nil {
		errs = append(errs, fmt.Errorf("sqlite source: %w", err))
	}
	all = append(all, sqliteUnits...)

	return all, errs
}
