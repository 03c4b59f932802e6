// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graphrag

import (
	"context"
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianDelegate/services/graphstore"
)

// fakeAugmenter returns canned insights or a canned error.
type fakeAugmenter struct {
	insights []Insight
	err      error
}

func (f *fakeAugmenter) RetrieveInsights(_ context.Context, _, _ string, _ int) ([]Insight, error) {
	return f.insights, f.err
}

// fakePatterns returns canned graph evidence and records how it was asked.
type fakePatterns struct {
	patterns          []graphstore.DelegationPattern
	executionPatterns []graphstore.DelegationPattern
	scored            graphstore.TargetRecommendation
	err               error
	scoredErr         error

	taskTypeCalls   int
	gotTaskType     string
	gotExecutionIDs []string
}

func (f *fakePatterns) SuccessfulPatterns(_ context.Context, taskType string, _ int) ([]graphstore.DelegationPattern, error) {
	f.taskTypeCalls++
	f.gotTaskType = taskType
	return f.patterns, f.err
}

func (f *fakePatterns) PatternsForExecutions(_ context.Context, executionIDs []string, _ int) ([]graphstore.DelegationPattern, error) {
	f.gotExecutionIDs = executionIDs
	return f.executionPatterns, f.err
}

func (f *fakePatterns) RecommendDelegationTarget(_ context.Context, _, _ string, _ int64, _ int) (graphstore.TargetRecommendation, error) {
	return f.scored, f.scoredErr
}

func TestNewSynthesizer_RefusesBothNil(t *testing.T) {
	_, err := NewSynthesizer(nil, nil)
	require.Error(t, err)

	_, err = NewSynthesizer(&fakeAugmenter{}, nil)
	require.NoError(t, err)
	_, err = NewSynthesizer(nil, &fakePatterns{})
	require.NoError(t, err)
}

func TestStructuralConfidence(t *testing.T) {
	assert.InDelta(t, 0.7, StructuralConfidence(2), 1e-9)
	assert.InDelta(t, 0.8, StructuralConfidence(3), 1e-9)
	assert.InDelta(t, 0.9, StructuralConfidence(4), 1e-9)
	// Capped: frequency alone never fully proves fitness.
	assert.InDelta(t, 0.9, StructuralConfidence(50), 1e-9)
}

func TestSynthesize_HybridCombinesBothSources(t *testing.T) {
	insights := &fakeAugmenter{insights: []Insight{
		{Content: "SDET agents handle flaky test triage well", Confidence: 0.85, TaskType: "triage"},
	}}
	patterns := &fakePatterns{patterns: []graphstore.DelegationPattern{
		{FromAgent: "Orchestrator_Agent", ToAgent: "SDET_Agent", TaskType: "generate_tests", SuccessCount: 4, AvgDurationMS: 1200},
	}}
	synth, err := NewSynthesizer(insights, patterns)
	require.NoError(t, err)

	set, err := synth.Synthesize(context.Background(), "sdet", "flaky tests in CI", "generate_tests")

	require.NoError(t, err)
	assert.True(t, set.Hybrid)
	assert.Equal(t, 1, set.SemanticCount)
	assert.Equal(t, 1, set.StructuralCount)
	require.Len(t, set.Recommendations, 2)

	// Semantic insight content is surfaced verbatim.
	var semantic, structural *Recommendation
	for i := range set.Recommendations {
		switch set.Recommendations[i].Source {
		case SourceSemantic:
			semantic = &set.Recommendations[i]
		case SourceStructural:
			structural = &set.Recommendations[i]
		}
	}
	require.NotNil(t, semantic)
	require.NotNil(t, structural)
	assert.Equal(t, "SDET agents handle flaky test triage well", semantic.Content)
	assert.InDelta(t, 0.85, semantic.Confidence, 1e-9)
	assert.InDelta(t, 0.9, structural.Confidence, 1e-9)
	assert.Equal(t, "SDET_Agent", structural.ToAgent)
	assert.Equal(t, int64(4), structural.SuccessCount)
	assert.Contains(t, structural.Content, "successfully 4 times")
}

func TestSynthesize_RankedByConfidenceDescending(t *testing.T) {
	insights := &fakeAugmenter{insights: []Insight{
		{Content: "a", Confidence: 0.72},
		{Content: "b", Confidence: 0.95},
	}}
	patterns := &fakePatterns{patterns: []graphstore.DelegationPattern{
		{FromAgent: "A", ToAgent: "B", TaskType: "t", SuccessCount: 3}, // 0.8
		{FromAgent: "A", ToAgent: "C", TaskType: "t", SuccessCount: 2}, // 0.7
	}}
	synth, err := NewSynthesizer(insights, patterns)
	require.NoError(t, err)

	set, err := synth.Synthesize(context.Background(), "sdet", "q", "t")

	require.NoError(t, err)
	require.Len(t, set.Recommendations, 4)
	assert.True(t, sort.SliceIsSorted(set.Recommendations, func(i, j int) bool {
		return set.Recommendations[i].Confidence > set.Recommendations[j].Confidence
	}))
	assert.Equal(t, "b", set.Recommendations[0].Content)
}

func TestSynthesize_FiltersWeakInsights(t *testing.T) {
	insights := &fakeAugmenter{insights: []Insight{
		{Content: "strong", Confidence: 0.7},
		{Content: "weak", Confidence: 0.69},
	}}
	synth, err := NewSynthesizer(insights, &fakePatterns{})
	require.NoError(t, err)

	set, err := synth.Synthesize(context.Background(), "sdet", "q", "")

	require.NoError(t, err)
	require.Len(t, set.Recommendations, 1)
	assert.Equal(t, "strong", set.Recommendations[0].Content)
	assert.Equal(t, 1, set.SemanticCount)
}

func TestSynthesize_EmptyTaskTypeScopedByExecutionIDs(t *testing.T) {
	// Insights referencing prior executions scope the structural query to
	// those executions when no task type narrows it. Duplicate ids collapse
	// and the id of a below-floor insight still contributes scope.
	insights := &fakeAugmenter{insights: []Insight{
		{Content: "SRE handled the last deploy incident", Confidence: 0.9, ExecutionID: "exec-42"},
		{Content: "stale observation", Confidence: 0.4, ExecutionID: "exec-7"},
		{Content: "repeat reference", Confidence: 0.8, ExecutionID: "exec-42"},
	}}
	patterns := &fakePatterns{executionPatterns: []graphstore.DelegationPattern{
		{FromAgent: "Orchestrator_Agent", ToAgent: "SRE_Agent", TaskType: "deploy_service", SuccessCount: 3, AvgDurationMS: 400},
	}}
	synth, err := NewSynthesizer(insights, patterns)
	require.NoError(t, err)

	set, err := synth.Synthesize(context.Background(), "sre", "deploy help", "")

	require.NoError(t, err)
	assert.Equal(t, []string{"exec-42", "exec-7"}, patterns.gotExecutionIDs)
	assert.Zero(t, patterns.taskTypeCalls)
	assert.True(t, set.Hybrid)
	assert.Equal(t, 1, set.StructuralCount)

	var structural *Recommendation
	for i := range set.Recommendations {
		if set.Recommendations[i].Source == SourceStructural {
			structural = &set.Recommendations[i]
		}
	}
	require.NotNil(t, structural)
	assert.Equal(t, "SRE_Agent", structural.ToAgent)
	assert.Equal(t, "deploy_service", structural.TaskType)
}

func TestSynthesize_EmptyTaskTypeWithoutExecutionIDsCoversAllPatterns(t *testing.T) {
	insights := &fakeAugmenter{insights: []Insight{
		{Content: "general observation", Confidence: 0.8},
	}}
	patterns := &fakePatterns{}
	synth, err := NewSynthesizer(insights, patterns)
	require.NoError(t, err)

	_, err = synth.Synthesize(context.Background(), "sre", "q", "")

	require.NoError(t, err)
	assert.Equal(t, 1, patterns.taskTypeCalls)
	assert.Equal(t, "", patterns.gotTaskType)
	assert.Nil(t, patterns.gotExecutionIDs)
}

func TestSynthesize_TaskTypeWinsOverExecutionIDs(t *testing.T) {
	insights := &fakeAugmenter{insights: []Insight{
		{Content: "x", Confidence: 0.9, ExecutionID: "exec-1"},
	}}
	patterns := &fakePatterns{}
	synth, err := NewSynthesizer(insights, patterns)
	require.NoError(t, err)

	_, err = synth.Synthesize(context.Background(), "sre", "q", "deploy_service")

	require.NoError(t, err)
	assert.Equal(t, "deploy_service", patterns.gotTaskType)
	assert.Nil(t, patterns.gotExecutionIDs)
}

func TestSynthesize_SemanticFailureDegradesToStructural(t *testing.T) {
	insights := &fakeAugmenter{err: fmt.Errorf("weaviate down")}
	patterns := &fakePatterns{patterns: []graphstore.DelegationPattern{
		{FromAgent: "A", ToAgent: "B", TaskType: "t", SuccessCount: 2},
	}}
	synth, err := NewSynthesizer(insights, patterns)
	require.NoError(t, err)

	set, err := synth.Synthesize(context.Background(), "sdet", "q", "t")

	require.NoError(t, err)
	assert.False(t, set.Hybrid)
	assert.Equal(t, 0, set.SemanticCount)
	assert.Equal(t, 1, set.StructuralCount)
}

func TestSynthesize_StructuralFailureDegradesToSemantic(t *testing.T) {
	insights := &fakeAugmenter{insights: []Insight{{Content: "x", Confidence: 0.9}}}
	patterns := &fakePatterns{err: fmt.Errorf("neo4j down")}
	synth, err := NewSynthesizer(insights, patterns)
	require.NoError(t, err)

	set, err := synth.Synthesize(context.Background(), "sdet", "q", "t")

	require.NoError(t, err)
	assert.False(t, set.Hybrid)
	assert.Equal(t, 1, set.SemanticCount)
	assert.Equal(t, 0, set.StructuralCount)
}

func TestSynthesize_BothFailingIsAnError(t *testing.T) {
	synth, err := NewSynthesizer(
		&fakeAugmenter{err: fmt.Errorf("weaviate down")},
		&fakePatterns{err: fmt.Errorf("neo4j down")},
	)
	require.NoError(t, err)

	set, err := synth.Synthesize(context.Background(), "sdet", "q", "t")

	require.Error(t, err)
	assert.Nil(t, set)
}

func TestSynthesize_EmptyResultsStillHybrid(t *testing.T) {
	// Both sources answered, neither found evidence: a valid hybrid answer.
	synth, err := NewSynthesizer(&fakeAugmenter{}, &fakePatterns{})
	require.NoError(t, err)

	set, err := synth.Synthesize(context.Background(), "sdet", "q", "t")

	require.NoError(t, err)
	assert.True(t, set.Hybrid)
	assert.Empty(t, set.Recommendations)
	assert.NotNil(t, set.Recommendations)
}

func TestRecommendDelegationTarget_AttachesScoringFigures(t *testing.T) {
	patterns := &fakePatterns{
		patterns: []graphstore.DelegationPattern{
			{FromAgent: "Orchestrator_Agent", ToAgent: "SRE_Agent", TaskType: "deploy_service", SuccessCount: 5, AvgDurationMS: 236},
		},
		scored: graphstore.TargetRecommendation{
			Found:         true,
			Agent:         "SRE_Agent",
			SuccessCount:  5,
			AvgDurationMS: 220,
			PriorityScore: 5 * 1000.0 / 220,
		},
	}
	synth, err := NewSynthesizer(nil, patterns)
	require.NoError(t, err)

	rec, err := synth.RecommendDelegationTarget(context.Background(), "Orchestrator_Agent", "deploy_service", 5000, 3)

	require.NoError(t, err)
	assert.True(t, rec.Found)
	assert.True(t, rec.Verified)
	assert.Equal(t, "Orchestrator_Agent", rec.FromAgent)
	assert.Equal(t, "SRE_Agent", rec.Agent)
	assert.Equal(t, int64(5), rec.SuccessCount)
	// The scoring query's figures replace the pattern aggregate.
	assert.InDelta(t, 220, rec.AvgDurationMS, 1e-9)
	assert.InDelta(t, 5*1000.0/220, rec.PriorityScore, 1e-9)
	assert.InDelta(t, 0.9, rec.Confidence, 1e-9)
}

func TestRecommendDelegationTarget_PicksTopPatternForDelegator(t *testing.T) {
	// Patterns from other delegators rank higher but do not apply.
	patterns := &fakePatterns{
		patterns: []graphstore.DelegationPattern{
			{FromAgent: "Other_Agent", ToAgent: "SDET_Agent", TaskType: "deploy_service", SuccessCount: 9, AvgDurationMS: 100},
			{FromAgent: "Orchestrator_Agent", ToAgent: "SRE_Agent", TaskType: "deploy_service", SuccessCount: 2, AvgDurationMS: 500},
		},
	}
	synth, err := NewSynthesizer(nil, patterns)
	require.NoError(t, err)

	rec, err := synth.RecommendDelegationTarget(context.Background(), "Orchestrator_Agent", "deploy_service", 5000, 3)

	require.NoError(t, err)
	assert.True(t, rec.Found)
	assert.Equal(t, "SRE_Agent", rec.Agent)
	assert.InDelta(t, 0.7, rec.Confidence, 1e-9)
}

func TestRecommendDelegationTarget_MismatchKeepsPatternFigures(t *testing.T) {
	patterns := &fakePatterns{
		patterns: []graphstore.DelegationPattern{
			{FromAgent: "Orchestrator_Agent", ToAgent: "SRE_Agent", TaskType: "deploy_service", SuccessCount: 4, AvgDurationMS: 300},
		},
		scored: graphstore.TargetRecommendation{Found: true, Agent: "SDET_Agent", SuccessCount: 7, AvgDurationMS: 90},
	}
	synth, err := NewSynthesizer(nil, patterns)
	require.NoError(t, err)

	rec, err := synth.RecommendDelegationTarget(context.Background(), "Orchestrator_Agent", "deploy_service", 5000, 3)

	require.NoError(t, err)
	assert.True(t, rec.Found)
	assert.False(t, rec.Verified)
	assert.Equal(t, "SRE_Agent", rec.Agent)
	assert.Equal(t, int64(4), rec.SuccessCount)
	assert.InDelta(t, 300, rec.AvgDurationMS, 1e-9)
	assert.Zero(t, rec.PriorityScore)
}

func TestRecommendDelegationTarget_ScoringFailureServesUnverified(t *testing.T) {
	patterns := &fakePatterns{
		patterns: []graphstore.DelegationPattern{
			{FromAgent: "Orchestrator_Agent", ToAgent: "SRE_Agent", TaskType: "deploy_service", SuccessCount: 3, AvgDurationMS: 410},
		},
		scoredErr: fmt.Errorf("neo4j unavailable"),
	}
	synth, err := NewSynthesizer(nil, patterns)
	require.NoError(t, err)

	rec, err := synth.RecommendDelegationTarget(context.Background(), "Orchestrator_Agent", "deploy_service", 5000, 3)

	require.NoError(t, err)
	assert.True(t, rec.Found)
	assert.False(t, rec.Verified)
	assert.InDelta(t, 410, rec.AvgDurationMS, 1e-9)
}

func TestRecommendDelegationTarget_NoPatternFallsBackToScore(t *testing.T) {
	patterns := &fakePatterns{
		scored: graphstore.TargetRecommendation{Found: true, Agent: "Compliance_Agent", SuccessCount: 6, AvgDurationMS: 150, PriorityScore: 40},
	}
	synth, err := NewSynthesizer(nil, patterns)
	require.NoError(t, err)

	rec, err := synth.RecommendDelegationTarget(context.Background(), "Orchestrator_Agent", "audit_change", 5000, 3)

	require.NoError(t, err)
	assert.True(t, rec.Found)
	assert.True(t, rec.Verified)
	assert.Equal(t, "Compliance_Agent", rec.Agent)
	assert.InDelta(t, 0.9, rec.Confidence, 1e-9)
}

func TestRecommendDelegationTarget_NothingFoundIsAnAnswer(t *testing.T) {
	synth, err := NewSynthesizer(nil, &fakePatterns{})
	require.NoError(t, err)

	rec, err := synth.RecommendDelegationTarget(context.Background(), "Orchestrator_Agent", "deploy_service", 5000, 3)

	require.NoError(t, err)
	assert.False(t, rec.Found)
	assert.False(t, rec.Verified)
}

func TestRecommendDelegationTarget_BothSourcesFailingIsAnError(t *testing.T) {
	patterns := &fakePatterns{
		err:       fmt.Errorf("neo4j unavailable"),
		scoredErr: fmt.Errorf("neo4j unavailable"),
	}
	synth, err := NewSynthesizer(nil, patterns)
	require.NoError(t, err)

	_, err = synth.RecommendDelegationTarget(context.Background(), "Orchestrator_Agent", "deploy_service", 5000, 3)
	require.Error(t, err)
}

func TestHasSemantic(t *testing.T) {
	synth, err := NewSynthesizer(&fakeAugmenter{}, &fakePatterns{})
	require.NoError(t, err)
	assert.True(t, synth.HasSemantic())

	synth, err = NewSynthesizer(nil, &fakePatterns{})
	require.NoError(t, err)
	assert.False(t, synth.HasSemantic())
}
