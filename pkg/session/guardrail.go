// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"github.com/openclaw/omg/pkg/similarity"
)

// GuardrailConfig tunes the overlap thresholds from spec.md §4.10.
type GuardrailConfig struct {
	SkipOverlapThreshold        float64 // default 0.9
	TruncateOverlapThreshold    float64 // default 0.6
	CandidateSuppressionThreshold float64 // default 0.85
	RecentWindowSize            int     // default 20
}

// DefaultGuardrailConfig returns the thresholds named in spec.md §4.10,
// §8 scenario 4.
func DefaultGuardrailConfig() GuardrailConfig {
	return GuardrailConfig{
		SkipOverlapThreshold:          0.9,
		TruncateOverlapThreshold:      0.6,
		CandidateSuppressionThreshold: 0.85,
		RecentWindowSize:              20,
	}
}

// GuardrailDecision is the pre-extraction verdict (spec.md §4.10, §7).
type GuardrailDecision struct {
	Action          string // "proceed" | "skip" | "truncate"
	MaxOverlap      float64
	TruncatedWindow []string // only set when Action == "truncate"
	Fingerprint     map[uint32]bool
}

// EvaluateGuardrail compares the fingerprint of the unobserved message
// window against every stored fingerprint and decides whether to proceed,
// skip, or truncate to a trailing suffix (spec.md §4.10).
func EvaluateGuardrail(messages []string, history []string, cfg GuardrailConfig) GuardrailDecision {
	fp := similarity.Fingerprint(messages)
	maxOverlap := maxOverlapAgainstHistory(fp, history)

	if maxOverlap >= cfg.SkipOverlapThreshold {
		return GuardrailDecision{Action: "skip", MaxOverlap: maxOverlap, Fingerprint: fp}
	}
	if maxOverlap >= cfg.TruncateOverlapThreshold {
		suffix := largestCleanSuffix(messages, history, cfg.TruncateOverlapThreshold)
		return GuardrailDecision{
			Action:          "truncate",
			MaxOverlap:      maxOverlap,
			TruncatedWindow: suffix,
			Fingerprint:     similarity.Fingerprint(suffix),
		}
	}
	return GuardrailDecision{Action: "proceed", MaxOverlap: maxOverlap, Fingerprint: fp}
}

func maxOverlapAgainstHistory(fp map[uint32]bool, history []string) float64 {
	max := 0.0
	for _, key := range history {
		hist := similarity.ParseFingerprintKey(key)
		if ov := similarity.ComputeOverlap(fp, hist); ov > max {
			max = ov
		}
	}
	return max
}

// largestCleanSuffix finds the largest trailing suffix of messages whose
// max overlap against history falls below threshold (spec.md §4.10).
func largestCleanSuffix(messages []string, history []string, threshold float64) []string {
	for start := 0; start < len(messages); start++ {
		suffix := messages[start:]
		fp := similarity.Fingerprint(suffix)
		if maxOverlapAgainstHistory(fp, history) < threshold {
			return suffix
		}
	}
	return nil
}

// SuppressedCandidate pairs a candidate index with the similarity score
// that triggered suppression.
type SuppressedCandidate struct {
	Index      int
	Similarity float64
	AgainstID  string
}

// CandidateRef is the minimal shape needed to compute post-extraction
// suppression against lastObservationNodeIds.
type CandidateRef struct {
	CanonicalKey string
	Description  string
}

// PriorNode is the minimal shape of an already-written node used as a
// suppression comparison target.
type PriorNode struct {
	ID           string
	CanonicalKey string
	Description  string
}

// SuppressCandidates filters candidates whose combinedSimilarity against
// any prior node is at or above candidateSuppressionThreshold (spec.md
// §4.10).
func SuppressCandidates(candidates []CandidateRef, priors []PriorNode, threshold float64) (kept []int, suppressed []SuppressedCandidate) {
	for i, c := range candidates {
		worst := ""
		worstScore := 0.0
		for _, p := range priors {
			sim := similarity.CombinedSimilarity(c.Description, p.Description, c.CanonicalKey, p.CanonicalKey)
			if sim > worstScore {
				worstScore = sim
				worst = p.ID
			}
		}
		if worstScore >= threshold {
			suppressed = append(suppressed, SuppressedCandidate{Index: i, Similarity: worstScore, AgainstID: worst})
			continue
		}
		kept = append(kept, i)
	}
	return kept, suppressed
}
