// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package similarity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizedEditDistance(t *testing.T) {
	assert.Equal(t, 1.0, NormalizedEditDistance("Hello", "hello"))
	assert.Equal(t, 1.0, NormalizedEditDistance("", ""))
	assert.InDelta(t, 0.0, NormalizedEditDistance("abc", "xyz"), 0.001)
	assert.Greater(t, NormalizedEditDistance("editor theme", "editor themes"), 0.8)
}

func TestNGramJaccard(t *testing.T) {
	assert.Equal(t, 1.0, NGramJaccard("same text", "same text"))
	assert.Greater(t, NGramJaccard("user prefers dark mode", "user prefers dark theme"), 0.3)
	assert.Equal(t, 1.0, NGramJaccard("", ""))
}

func TestCombinedSimilarityWeightsKeyHigher(t *testing.T) {
	sameKey := CombinedSimilarity("a totally different sentence", "another unrelated sentence", "user.timezone", "user.timezone")
	sameDesc := CombinedSimilarity("user timezone is utc", "user timezone is utc", "user.timezone", "user.language")
	assert.Greater(t, sameKey, 0.6)
	assert.Greater(t, sameDesc, 0.3)
}

func TestKeyPrefix(t *testing.T) {
	assert.Equal(t, "user", KeyPrefix("user.timezone"))
	assert.Equal(t, "user", KeyPrefix("user"))
	assert.Equal(t, "", KeyPrefix(""))
}

func TestFingerprintAndOverlap(t *testing.T) {
	fpA := Fingerprint([]string{"the quick brown fox jumps over the lazy dog"})
	fpB := Fingerprint([]string{"the quick brown fox jumps over the lazy cat"})
	fpC := Fingerprint([]string{"completely unrelated content about something else entirely"})

	assert.Greater(t, ComputeOverlap(fpA, fpB), ComputeOverlap(fpA, fpC))
}

func TestFingerprintKeyRoundTrip(t *testing.T) {
	fp := Fingerprint([]string{"hello world this is a test message"})
	key := FingerprintKey(fp)
	restored := ParseFingerprintKey(key)
	assert.Equal(t, fp, restored)
}

func TestFingerprintKeyEmpty(t *testing.T) {
	assert.Equal(t, map[uint32]bool{}, ParseFingerprintKey(""))
}
