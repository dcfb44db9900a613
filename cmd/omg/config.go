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
	"path/filepath"

	"gopkg.in/yaml.v3"

	omgerrors "github.com/openclaw/omg/internal/errors"
	"github.com/openclaw/omg/pkg/selector"
	"github.com/openclaw/omg/pkg/session"
)

const (
	defaultConfigDir  = ".omg"
	defaultConfigFile = "workspace.yaml"
	configVersion     = "1"
)

// Config represents the .omg/workspace.yaml configuration file (spec.md
// §A.2 of SPEC_FULL.md).
type Config struct {
	Version   string          `yaml:"version"`
	GraphRoot string          `yaml:"graph_root"`
	LLM       LLMConfig       `yaml:"llm"`
	Session   SessionConfig   `yaml:"session"`
	Selector  SelectorConfig  `yaml:"selector"`
	Bootstrap BootstrapConfig `yaml:"bootstrap"`
}

// LLMConfig holds provider settings for the Extract/Merge/Reflect calls.
type LLMConfig struct {
	Provider  string `yaml:"provider"` // anthropic, openai-compatible, mock
	BaseURL   string `yaml:"base_url"`
	Model     string `yaml:"model"`
	APIKey    string `yaml:"api_key,omitempty"`
	MaxTokens int    `yaml:"max_tokens,omitempty"`
}

// SessionConfig controls the observation trigger mode and thresholds.
type SessionConfig struct {
	TriggerMode              string `yaml:"trigger_mode"` // manual, every-turn, threshold
	MessageTokenThreshold    int    `yaml:"message_token_threshold"`
	ObservationTokenThreshold int   `yaml:"observation_token_threshold"`
	RecentWindowSize         int    `yaml:"recent_window_size"`
}

// SelectorConfig mirrors pkg/selector.Config for workspace-level tuning.
type SelectorConfig struct {
	MaxContextTokens int `yaml:"max_context_tokens"`
	MaxMocs          int `yaml:"max_mocs"`
	MaxNodes         int `yaml:"max_nodes"`
}

// BootstrapConfig controls the batched ingestion pipeline.
type BootstrapConfig struct {
	Concurrency int `yaml:"concurrency"`
}

// DefaultConfig returns a config with sensible defaults for a fresh
// workspace rooted at graphRoot.
func DefaultConfig(graphRoot string) *Config {
	sel := selector.DefaultConfig()
	return &Config{
		Version:   configVersion,
		GraphRoot: graphRoot,
		LLM: LLMConfig{
			Provider:  "anthropic",
			BaseURL:   getEnv("OMG_LLM_BASE_URL", ""),
			Model:     getEnv("OMG_LLM_MODEL", "claude-opus-4"),
			MaxTokens: 2000,
		},
		Session: SessionConfig{
			TriggerMode:               string(session.TriggerThreshold),
			MessageTokenThreshold:     800,
			ObservationTokenThreshold: 4000,
			RecentWindowSize:          20,
		},
		Selector: SelectorConfig{
			MaxContextTokens: sel.MaxContextTokens,
			MaxMocs:          sel.MaxMocs,
			MaxNodes:         sel.MaxNodes,
		},
		Bootstrap: BootstrapConfig{Concurrency: 3},
	}
}

// LoadConfig loads configuration from configPath, or discovers
// .omg/workspace.yaml by walking up from the current directory.
func LoadConfig(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = os.Getenv("OMG_CONFIG_PATH")
	}
	if configPath == "" {
		var err error
		configPath, err = findConfigFile()
		if err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", configPath, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", configPath, err)
	}
	if cfg.Version != configVersion {
		return nil, omgerrors.NewInvariantViolation("config-version", fmt.Sprintf("got %q want %q", cfg.Version, configVersion))
	}

	cfg.applyEnvOverrides()
	return &cfg, nil
}

// SaveConfig writes cfg to configPath as YAML, creating the parent
// directory if needed.
func SaveConfig(cfg *Config, configPath string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0o750); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0o640); err != nil {
		return fmt.Errorf("write config %s: %w", configPath, err)
	}
	return nil
}

// ConfigPath returns dir/.omg/workspace.yaml.
func ConfigPath(dir string) string {
	return filepath.Join(dir, defaultConfigDir, defaultConfigFile)
}

func findConfigFile() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}
	for {
		path := ConfigPath(dir)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", omgerrors.NewInvariantViolation("config", "no .omg/workspace.yaml found; run `omg init`")
}

func (c *Config) applyEnvOverrides() {
	if url := os.Getenv("OMG_LLM_BASE_URL"); url != "" {
		c.LLM.BaseURL = url
	}
	if model := os.Getenv("OMG_LLM_MODEL"); model != "" {
		c.LLM.Model = model
	}
	if key := os.Getenv("OMG_LLM_API_KEY"); key != "" {
		c.LLM.APIKey = key
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
