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

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/AleutianAI/AleutianDelegate/services/delegation/datatypes"
)

func TestBlendRisk(t *testing.T) {
	assert.InDelta(t, 0.0, BlendRisk(0, 0), 1e-9)
	assert.InDelta(t, 1.0, BlendRisk(1, 1), 1e-9)
	// 70% historical, 30% recent.
	assert.InDelta(t, 0.7, BlendRisk(1, 0), 1e-9)
	assert.InDelta(t, 0.3, BlendRisk(0, 1), 1e-9)
	assert.InDelta(t, 0.7*0.2+0.3*0.5, BlendRisk(0.2, 0.5), 1e-9)
}

func TestRiskLevelFor_Boundaries(t *testing.T) {
	assert.Equal(t, RiskLevelLow, RiskLevelFor(0))
	assert.Equal(t, RiskLevelLow, RiskLevelFor(0.0999))
	assert.Equal(t, RiskLevelMedium, RiskLevelFor(0.1))
	assert.Equal(t, RiskLevelMedium, RiskLevelFor(0.2999))
	assert.Equal(t, RiskLevelHigh, RiskLevelFor(0.3))
	assert.Equal(t, RiskLevelHigh, RiskLevelFor(1))
}

func TestRiskConfidence(t *testing.T) {
	assert.InDelta(t, 0.0, RiskConfidence(0), 1e-9)
	assert.InDelta(t, 0.05, RiskConfidence(1), 1e-9)
	assert.InDelta(t, 0.5, RiskConfidence(10), 1e-9)
	assert.InDelta(t, 1.0, RiskConfidence(20), 1e-9)
	assert.InDelta(t, 1.0, RiskConfidence(200), 1e-9)
}

func TestFailureRate(t *testing.T) {
	assert.InDelta(t, 0.0, FailureRate(nil), 1e-9)
	assert.InDelta(t, 0.0, FailureRate(statuses("s", "s")), 1e-9)
	assert.InDelta(t, 1.0, FailureRate(statuses("f", "t")), 1e-9)
	assert.InDelta(t, 0.5, FailureRate(statuses("s", "f", "s", "t")), 1e-9)
}

func TestScoreRisk_NoSamplesIsUnknown(t *testing.T) {
	risk, level, confidence := ScoreRisk(nil)
	assert.Zero(t, risk)
	assert.Equal(t, RiskLevelUnknown, level)
	assert.Zero(t, confidence)
}

func TestScoreRisk_RecentWindowDominatesStreaks(t *testing.T) {
	// 20 samples newest first: the 10 newest all failed, the 10 oldest all
	// succeeded. Historical rate 0.5, recent rate 1.0.
	history := append(statuses("f", "f", "f", "f", "f", "f", "f", "f", "f", "f"),
		statuses("s", "s", "s", "s", "s", "s", "s", "s", "s", "s")...)

	risk, level, confidence := ScoreRisk(history)
	assert.InDelta(t, 0.7*0.5+0.3*1.0, risk, 1e-9)
	assert.Equal(t, RiskLevelHigh, level)
	assert.InDelta(t, 1.0, confidence, 1e-9)
}

func TestScoreRisk_FewerSamplesThanWindow(t *testing.T) {
	// With fewer samples than the window the two rates coincide.
	history := statuses("s", "s", "s", "f")

	risk, level, confidence := ScoreRisk(history)
	assert.InDelta(t, 0.25, risk, 1e-9)
	assert.Equal(t, RiskLevelMedium, level)
	assert.InDelta(t, 0.2, confidence, 1e-9)
}

func TestScoreRisk_CleanHistoryIsLow(t *testing.T) {
	risk, level, confidence := ScoreRisk(statuses("s", "s", "s", "s", "s"))
	assert.Zero(t, risk)
	assert.Equal(t, RiskLevelLow, level)
	assert.InDelta(t, 0.25, confidence, 1e-9)
}

func TestEfficiencyScore(t *testing.T) {
	// Zero total duration is bounded by the +100 offset.
	assert.InDelta(t, 10000.0, EfficiencyScore(0), 1e-9)
	assert.InDelta(t, 1000.0, EfficiencyScore(900), 1e-9)
	assert.Greater(t, EfficiencyScore(100), EfficiencyScore(200))
}

func TestPercentile(t *testing.T) {
	assert.Zero(t, Percentile(nil, 0.95))
	assert.InDelta(t, 42.0, Percentile([]float64{42}, 0.95), 1e-9)

	sorted := []float64{10, 20, 30, 40}
	assert.InDelta(t, 10.0, Percentile(sorted, 0), 1e-9)
	assert.InDelta(t, 40.0, Percentile(sorted, 1), 1e-9)
	assert.InDelta(t, 25.0, Percentile(sorted, 0.5), 1e-9)
	// Linear interpolation between closest ranks.
	assert.InDelta(t, 38.5, Percentile(sorted, 0.95), 1e-9)
}

func TestProjectedSavingsMS(t *testing.T) {
	assert.InDelta(t, 300.0, ProjectedSavingsMS(1000), 1e-9)
	assert.Zero(t, ProjectedSavingsMS(0))
}

// statuses builds a status history from shorthand: s=success, f=failed,
// t=timeout.
func statuses(shorthand ...string) []datatypes.DelegationStatus {
	out := make([]datatypes.DelegationStatus, 0, len(shorthand))
	for _, s := range shorthand {
		switch s {
		case "s":
			out = append(out, datatypes.StatusSuccess)
		case "f":
			out = append(out, datatypes.StatusFailed)
		case "t":
			out = append(out, datatypes.StatusTimeout)
		}
	}
	return out
}
