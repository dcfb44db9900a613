// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package reflector

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/omg/pkg/host"
)

type fakeLLM struct {
	responses []string
	calls     int
	err       error
}

func (f *fakeLLM) Generate(ctx context.Context, system, user string, maxTokens int) (host.GenerateResult, error) {
	if f.err != nil {
		return host.GenerateResult{}, f.err
	}
	idx := f.calls
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	f.calls++
	return host.GenerateResult{Content: f.responses[idx]}, nil
}

func reflectionXML(bodyLen int) string {
	body := strings.Repeat("word ", bodyLen)
	return `<reflection><description>d</description><body>` + body + `</body></reflection>`
}

func TestReflectAcceptsFirstAttemptWhenWithinBudget(t *testing.T) {
	llm := &fakeLLM{responses: []string{reflectionXML(5)}}
	r := NewReflector(llm, nil)

	syn, err := r.Reflect(context.Background(), []SourceNode{{ID: "omg/fact/a", Description: "a", Body: "body"}})
	require.NoError(t, err)
	assert.Equal(t, 0, syn.CompressionLevel)
	assert.Equal(t, 1, llm.calls)
}

func TestReflectEscalatesUntilWithinBudget(t *testing.T) {
	big := reflectionXML(2000)
	small := reflectionXML(5)
	llm := &fakeLLM{responses: []string{big, big, small}}
	r := NewReflector(llm, nil)

	syn, err := r.Reflect(context.Background(), []SourceNode{{ID: "omg/fact/a", Description: "a", Body: "body"}})
	require.NoError(t, err)
	assert.Equal(t, 2, syn.CompressionLevel)
	assert.Equal(t, 3, llm.calls)
}

func TestReflectAcceptsOverBudgetAtMaxLevel(t *testing.T) {
	big := reflectionXML(2000)
	llm := &fakeLLM{responses: []string{big, big, big, big}}
	r := NewReflector(llm, nil)

	syn, err := r.Reflect(context.Background(), []SourceNode{{ID: "omg/fact/a", Description: "a", Body: "body"}})
	require.NoError(t, err)
	assert.Equal(t, MaxCompressionLevel, syn.CompressionLevel)
	assert.Equal(t, MaxCompressionLevel+1, llm.calls)
}

func TestReflectRejectsEmptySources(t *testing.T) {
	r := NewReflector(&fakeLLM{}, nil)
	_, err := r.Reflect(context.Background(), nil)
	assert.Error(t, err)
}

func TestReflectDefaultsArchiveSourcesToAllInputsWhenUnset(t *testing.T) {
	llm := &fakeLLM{responses: []string{`<reflection><description>d</description><body>b</body></reflection>`}}
	r := NewReflector(llm, nil)

	syn, err := r.Reflect(context.Background(), []SourceNode{{ID: "omg/fact/a"}, {ID: "omg/fact/b"}})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"omg/fact/a", "omg/fact/b"}, syn.ArchiveSourceIDs)
}

func TestParseReflectXMLMalformedNeverThrows(t *testing.T) {
	syn, diags := parseReflectXML("not xml <<<")
	assert.Empty(t, syn.Description)
	require.Len(t, diags, 1)
}

func TestParseReflectXMLParsesFieldUpdates(t *testing.T) {
	xmlBody := `<reflection><description>d</description><body>b</body>
    <field-updates><update node-id="omg/fact/a" field="tags" action="add">new-tag</update></field-updates>
  </reflection>`
	syn, diags := parseReflectXML(xmlBody)
	assert.Empty(t, diags)
	require.Len(t, syn.FieldUpdates, 1)
	assert.Equal(t, "omg/fact/a", syn.FieldUpdates[0].NodeID)
	assert.Equal(t, "new-tag", syn.FieldUpdates[0].Value)
}
