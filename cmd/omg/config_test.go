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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveConfigAndLoadConfigRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := ConfigPath(dir)
	cfg := DefaultConfig(dir)

	require.NoError(t, SaveConfig(cfg, path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.GraphRoot, loaded.GraphRoot)
	assert.Equal(t, cfg.LLM.Model, loaded.LLM.Model)
	assert.Equal(t, cfg.Session.TriggerMode, loaded.Session.TriggerMode)
}

func TestLoadConfigRejectsWrongVersion(t *testing.T) {
	dir := t.TempDir()
	path := ConfigPath(dir)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte("version: \"99\"\ngraph_root: /tmp\n"), 0o640))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfigAppliesEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := ConfigPath(dir)
	require.NoError(t, SaveConfig(DefaultConfig(dir), path))

	t.Setenv("OMG_LLM_MODEL", "gpt-override")
	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "gpt-override", loaded.LLM.Model)
}

func TestFindConfigFileWalksUpToParent(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, SaveConfig(DefaultConfig(root), ConfigPath(root)))

	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o750))

	origDir, err := os.Getwd()
	require.NoError(t, err)
	defer os.Chdir(origDir)
	require.NoError(t, os.Chdir(nested))

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, root, cfg.GraphRoot)
}

func TestConfigPathJoinsExpectedSegments(t *testing.T) {
	assert.Equal(t, filepath.Join("/workspace", ".omg", "workspace.yaml"), ConfigPath("/workspace"))
}
