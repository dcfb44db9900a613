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
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/omg/internal/clock"
	"github.com/openclaw/omg/pkg/host"
	"github.com/openclaw/omg/pkg/observer"
	"github.com/openclaw/omg/pkg/registry"
	"github.com/openclaw/omg/pkg/scaffold"
)

type fakeLLM struct {
	content string
	err     error
}

func (f *fakeLLM) Generate(ctx context.Context, system, user string, maxTokens int) (host.GenerateResult, error) {
	if f.err != nil {
		return host.GenerateResult{}, f.err
	}
	return host.GenerateResult{Content: f.content}, nil
}

func newPipeline(t *testing.T, llm host.LLMClient, clk clock.Clock) (*Pipeline, *registry.Registry) {
	t.Helper()
	root := t.TempDir()
	reg, err := registry.Open(root, nil)
	require.NoError(t, err)
	return &Pipeline{
		Root:      root,
		Reg:       reg,
		Scaffold:  scaffold.NewManager(root, reg, clk),
		Extractor: observer.NewExtractor(llm, clk, nil),
		Clock:     clk,
	}, reg
}

func TestPipelineRunWritesCandidatesAndMarksComplete(t *testing.T) {
	xmlBody := `<observations><operations>
    <operation type="fact" priority="medium">
      <canonical-key>user.timezone</canonical-key>
      <description>User's timezone is UTC</description>
      <content>The user is in UTC.</content>
      <moc-hints>identity</moc-hints>
    </operation>
  </operations></observations>`

	clk := clock.Fixed{At: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	p, reg := newPipeline(t, &fakeLLM{content: xmlBody}, clk)

	batches := []Batch{{Chunks: []Chunk{{Origin: "markdown", Path: "a.md", Text: "I'm in UTC"}}, MaxTokens: 800}}
	result, err := p.Run(context.Background(), batches, false)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, 1, result.NodesWritten)
	assert.True(t, HasCompleted(p.Root, false))

	_, ok := reg.GetRegistryEntry("omg/moc-identity")
	assert.True(t, ok)
}

func TestPipelineRunRecordsFailureOnZeroOperations(t *testing.T) {
	clk := clock.Fixed{At: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	p, _ := newPipeline(t, &fakeLLM{content: `<observations><operations></operations></observations>`}, clk)

	batches := []Batch{{Chunks: []Chunk{{Origin: "markdown", Path: "a.md", Text: "hi"}}, MaxTokens: 800}}
	result, err := p.Run(context.Background(), batches, false)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.True(t, HasCompleted(p.Root, false))
}

func TestPipelineRunSkipsAlreadyCompletedWork(t *testing.T) {
	clk := clock.Fixed{At: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	p, _ := newPipeline(t, &fakeLLM{content: `<observations><operations></operations></observations>`}, clk)

	st := NewState(1)
	st.MarkDone(0, true)
	require.NoError(t, WriteCompletionSentinel(p.Root, st))

	batches := []Batch{{Chunks: []Chunk{{Origin: "markdown", Path: "a.md", Text: "hi"}}, MaxTokens: 800}}
	result, err := p.Run(context.Background(), batches, false)
	require.NoError(t, err)
	assert.Equal(t, Result{}, result)
}
