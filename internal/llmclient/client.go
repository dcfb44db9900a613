// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package llmclient is the default host.LLMClient implementation cmd/omg
// wires in when run standalone: a plain OpenAI-compatible chat-completions
// call over net/http. A host embedding OMG is expected to supply its own
// client instead; this one exists so the CLI works without one.
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/openclaw/omg/pkg/host"
)

// Client talks to an OpenAI-compatible /chat/completions endpoint.
type Client struct {
	BaseURL string
	Model   string
	APIKey  string
	HTTP    *http.Client
}

// New constructs a Client with a sane default timeout.
func New(baseURL, model, apiKey string) *Client {
	return NewWithTimeout(baseURL, model, apiKey, 60*time.Second)
}

// NewWithTimeout constructs a Client with an explicit timeout. New calls it
// with a 60-second default.
func NewWithTimeout(baseURL, model, apiKey string, timeout time.Duration) *Client {
	return &Client{
		BaseURL: baseURL, Model: model, APIKey: apiKey,
		HTTP: &http.Client{Timeout: timeout},
	}
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Generate implements host.LLMClient.
func (c *Client) Generate(ctx context.Context, system, user string, maxTokens int) (host.GenerateResult, error) {
	reqBody, err := json.Marshal(chatRequest{
		Model: c.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		MaxTokens: maxTokens,
	})
	if err != nil {
		return host.GenerateResult{}, fmt.Errorf("llmclient: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return host.GenerateResult{}, fmt.Errorf("llmclient: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return host.GenerateResult{}, fmt.Errorf("llmclient: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return host.GenerateResult{}, fmt.Errorf("llmclient: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return host.GenerateResult{}, fmt.Errorf("llmclient: status %d: %s", resp.StatusCode, string(body))
	}

	var out chatResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return host.GenerateResult{}, fmt.Errorf("llmclient: parse response: %w", err)
	}
	if len(out.Choices) == 0 {
		return host.GenerateResult{}, fmt.Errorf("llmclient: empty choices in response")
	}

	return host.GenerateResult{
		Content: out.Choices[0].Message.Content,
		Usage: host.Usage{
			InputTokens:  out.Usage.PromptTokens,
			OutputTokens: out.Usage.CompletionTokens,
		},
	}, nil
}
