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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadMarkdownTreeSkipsStructuralFiles(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "index.md"), []byte("index"), 0o640))
	require.NoError(t, os.WriteFile(filepath.Join(root, "now.md"), []byte("now"), 0o640))
	require.NoError(t, os.WriteFile(filepath.Join(root, "note.md"), []byte("content"), 0o640))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "archive"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(root, "archive", "old.md"), []byte("archived"), 0o640))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "nodes", "fact"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(root, "nodes", "fact", "tz.md"), []byte("own output"), 0o640))

	units, err := ReadMarkdownTree(root)
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, filepath.Join(root, "note.md"), units[0].Path)
}

func TestReadMarkdownTreeMissingRootDegradesToEmpty(t *testing.T) {
	units, err := ReadMarkdownTree(filepath.Join(t.TempDir(), "missing"))
	require.NoError(t, err)
	assert.Empty(t, units)
}

func TestReadLogDirectoryFiltersByExtension(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.log"), []byte("log line"), 0o640))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.jsonl"), []byte(`{"x":1}`), 0o640))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "c.txt"), []byte("ignored"), 0o640))

	units, err := ReadLogDirectory(dir)
	require.NoError(t, err)
	assert.Len(t, units, 2)
}

func TestReadLogDirectoryMissingDegradesToEmpty(t *testing.T) {
	units, err := ReadLogDirectory(filepath.Join(t.TempDir(), "missing"))
	require.NoError(t, err)
	assert.Empty(t, units)
}

func TestReadSQLiteMemoryMissingFileDegradesToEmpty(t *testing.T) {
	units, err := ReadSQLiteMemory(filepath.Join(t.TempDir(), "missing.db"))
	require.NoError(t, err)
	assert.Empty(t, units)
}

func TestCollectSourcesGathersMarkdownAndDegradesOthers(t *testing.T) {
	graphRoot := filepath.Join(t.TempDir(), "graph")
	require.NoError(t, os.MkdirAll(graphRoot, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(graphRoot, "note.md"), []byte("content"), 0o640))

	units, errs := CollectSources(graphRoot)
	assert.Empty(t, errs)
	require.Len(t, units, 1)
	assert.Equal(t, "markdown", units[0].Origin)
}
