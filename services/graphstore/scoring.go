// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graphstore

import "github.com/AleutianAI/AleutianDelegate/services/delegation/datatypes"

// =============================================================================
// Risk Scoring
// =============================================================================

// Risk blend weights. Historical behavior dominates, but a recent streak of
// failures moves the needle fast.
const (
	riskHistoricalWeight = 0.7
	riskRecentWeight     = 0.3

	// riskRecentWindow is how many of the newest samples feed the recent
	// failure rate.
	riskRecentWindow = 10

	// riskFullConfidenceSamples is the sample size at which confidence
	// saturates at 1.0.
	riskFullConfidenceSamples = 20
)

// Risk level buckets.
const (
	RiskLevelLow     = "low"
	RiskLevelMedium  = "medium"
	RiskLevelHigh    = "high"
	RiskLevelUnknown = "unknown"
)

// BlendRisk combines the all-time and recent failure rates with the fixed
// 70/30 weighting.
func BlendRisk(historicalRate, recentRate float64) float64 {
	return riskHistoricalWeight*historicalRate + riskRecentWeight*recentRate
}

// RiskLevelFor buckets a blended risk score: low below 0.1, medium below
// 0.3, high otherwise.
func RiskLevelFor(risk float64) string {
	switch {
	case risk < 0.1:
		return RiskLevelLow
	case risk < 0.3:
		return RiskLevelMedium
	default:
		return RiskLevelHigh
	}
}

// RiskConfidence grows linearly with sample size and saturates at 1.0 once
// twenty samples exist.
func RiskConfidence(sampleSize int) float64 {
	if sampleSize >= riskFullConfidenceSamples {
		return 1.0
	}
	if sampleSize <= 0 {
		return 0.0
	}
	return float64(sampleSize) / float64(riskFullConfidenceSamples)
}

// FailureRate returns the fraction of statuses that are not successes.
// Pending edges must be filtered out before calling.
func FailureRate(statuses []datatypes.DelegationStatus) float64 {
	if len(statuses) == 0 {
		return 0
	}
	failures := 0
	for _, status := range statuses {
		if status != datatypes.StatusSuccess {
			failures++
		}
	}
	return float64(failures) / float64(len(statuses))
}

// ScoreRisk computes the full risk assessment from an ordered status
// history, newest first.
//
// With no samples the assessment is neutral: zero risk, zero confidence,
// and the unknown level, explicitly distinct from a well-evidenced low.
func ScoreRisk(statuses []datatypes.DelegationStatus) (risk float64, level string, confidence float64) {
	if len(statuses) == 0 {
		return 0, RiskLevelUnknown, 0
	}

	recent := statuses
	if len(recent) > riskRecentWindow {
		recent = recent[:riskRecentWindow]
	}

	risk = BlendRisk(FailureRate(statuses), FailureRate(recent))
	return risk, RiskLevelFor(risk), RiskConfidence(len(statuses))
}

// =============================================================================
// Path Efficiency
// =============================================================================

// EfficiencyScore rates a delegation route by total latency. The +100
// offset keeps near-instant paths from producing unbounded scores.
func EfficiencyScore(totalDurationMS int64) float64 {
	return 1_000_000.0 / (float64(totalDurationMS) + 100.0)
}

// =============================================================================
// Cost Optimization
// =============================================================================

// CostReductionFactor is the assumed achievable reduction per optimization
// opportunity. A flat 30% is a planning heuristic, not a measurement; the
// report labels projections accordingly.
const CostReductionFactor = 0.30

// Percentile computes the pth percentile of values using linear
// interpolation between closest ranks, matching Cypher's percentileCont.
// The input slice must be sorted ascending.
func Percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[len(sorted)-1]
	}

	rank := p * float64(len(sorted)-1)
	lower := int(rank)
	upper := lower + 1
	fraction := rank - float64(lower)
	return sorted[lower] + fraction*(sorted[upper]-sorted[lower])
}

// ProjectedSavingsMS applies the flat reduction factor to a pair's total
// duration spend.
func ProjectedSavingsMS(totalDurationMS float64) float64 {
	return totalDurationMS * CostReductionFactor
}
