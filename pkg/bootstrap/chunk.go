// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package bootstrap

import "strings"

// ChunkCharBudget bounds a single chunk's size (spec.md §4.11).
const ChunkCharBudget = 4000

// BatchCharBudget bounds the total size of chunks packed into one Extract
// call (spec.md §4.11).
const BatchCharBudget = 12000

// BatchTokensPerChunk is the proportional allowance added to a batch's
// maxTokens per chunk it contains (spec.md §4.11).
const BatchTokensPerChunk = 400

// BaseMaxTokens is the floor maxTokens for any batch regardless of size.
const BaseMaxTokens = 800

// Chunk is one unit of source content bounded to ChunkCharBudget, still
// tagged with its origin and source path for diagnostics.
type Chunk struct {
	Origin string
	Path   string
	Text   string
}

// Batch is a group of chunks packed to fit BatchCharBudget, submitted to
// Extract together as one prompt (spec.md §4.11).
type Batch struct {
	Chunks    []Chunk
	MaxTokens int
}

// ChunkUnits splits each Unit's content on paragraph boundaries (blank
// lines) and packs lines back together up to ChunkCharBudget, so a chunk
// never splits mid-paragraph unless a single paragraph itself exceeds the
// budget (spec.md §4.11).
func ChunkUnits(units []Unit) []Chunk {
	var chunks []Chunk
	for _, u := range units {
		paragraphs := strings.Split(u.Content, "\n\n")
		var current strings.Builder
		flush := func() {
			if current.Len() == 0 {
				return
			}
			chunks = append(chunks, Chunk{Origin: u.Origin, Path: u.Path, Text: current.String()})
			current.Reset()
		}
		for _, p := range paragraphs {
			if current.Len() > 0 && current.Len()+len(p)+2 > ChunkCharBudget {
				flush()
			}
			if len(p) > ChunkCharBudget {
				flush()
				for len(p) > ChunkCharBudget {
					chunks = append(chunks, Chunk{Origin: u.Origin, Path: u.Path, Text: p[:ChunkCharBudget]})
					p = p[ChunkCharBudget:]
				}
				if p != "" {
					current.WriteString(p)
				}
				continue
			}
			if current.Len() > 0 {
				current.WriteString("\n\n")
			}
			current.WriteString(p)
		}
		flush()
	}
	return chunks
}

// PackBatches groups chunks into Batches bounded by BatchCharBudget,
// never splitting a single chunk across batches (spec.md §4.11).
func PackBatches(chunks []Chunk) []Batch {
	var batches []Batch
	var current []Chunk
	size := 0
	flush := func() {
		if len(current) == 0 {
			return
		}
		batches = append(batches, Batch{
			Chunks:    current,
			MaxTokens: BaseMaxTokens + BatchTokensPerChunk*len(current),
		})
		current = nil
		size = 0
	}
	for _, c := range chunks {
		if size > 0 && size+len(c.Text) > BatchCharBudget {
			flush()
		}
		current = append(current, c)
		size += len(c.Text)
	}
	flush()
	return batches
}
