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
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/AleutianDelegate/services/graphstore"
)

// synthesizerTracer is the OpenTelemetry tracer for hybrid synthesis.
var synthesizerTracer = otel.Tracer("aleutian.graphrag.synthesizer")

// =============================================================================
// Synthesis Thresholds
// =============================================================================

const (
	// semanticConfidenceFloor filters weak insights out of the semantic
	// side. Only insights stored at this confidence or above are surfaced.
	semanticConfidenceFloor = 0.7

	// structuralMinSuccesses is the minimum successful history a
	// delegation pattern needs before it counts as structural evidence.
	structuralMinSuccesses = 2

	// Structural confidence grows from the base by one step per success
	// and is capped below fully trusted, since graph frequency alone
	// never proves future fitness.
	structuralBaseConfidence = 0.5
	structuralConfidenceStep = 0.1
	structuralConfidenceCap  = 0.9

	// defaultSemanticLimit bounds the insight fetch per synthesis.
	defaultSemanticLimit = 10
)

// StructuralConfidence maps a pattern's success count to a confidence
// score: 0.5 base plus 0.1 per success, capped at 0.9.
func StructuralConfidence(successCount int64) float64 {
	confidence := structuralBaseConfidence + structuralConfidenceStep*float64(successCount)
	if confidence > structuralConfidenceCap {
		return structuralConfidenceCap
	}
	return confidence
}

// =============================================================================
// Recommendation Types
// =============================================================================

// Recommendation source labels.
const (
	SourceSemantic   = "semantic"
	SourceStructural = "structural"
)

// Recommendation is one synthesized suggestion, from either evidence
// source, with its confidence and provenance.
type Recommendation struct {
	// Source is "semantic" (vector store insight) or "structural"
	// (delegation graph pattern).
	Source string `json:"source"`

	// Content is the recommendation text. Semantic recommendations carry
	// the insight content verbatim; structural ones describe the pattern.
	Content string `json:"content"`

	// Confidence is the score the recommendation set is ranked by.
	Confidence float64 `json:"confidence"`

	// FromAgent and ToAgent are set for structural recommendations.
	FromAgent string `json:"from_agent,omitempty"`
	ToAgent   string `json:"to_agent,omitempty"`
	TaskType  string `json:"task_type,omitempty"`

	// SuccessCount is the pattern's evidence size, structural only.
	SuccessCount int64 `json:"success_count,omitempty"`
}

// RecommendationSet is the full synthesis output for one request.
type RecommendationSet struct {
	AgentType string `json:"agent_type"`

	// Recommendations are sorted by confidence, highest first.
	Recommendations []Recommendation `json:"recommendations"`

	// Hybrid is true only when both evidence sources contributed without
	// error. A degraded (single-source) set is still served, but callers
	// can see it is not the full picture.
	Hybrid bool `json:"hybrid"`

	SemanticCount   int `json:"semantic_count"`
	StructuralCount int `json:"structural_count"`
}

// PatternSource supplies structural evidence from the delegation graph:
// proven delegation patterns, the execution-scoped variant, and the
// dedicated target scoring query. *graphstore.Store satisfies it.
type PatternSource interface {
	SuccessfulPatterns(ctx context.Context, taskType string, minSuccessCount int) ([]graphstore.DelegationPattern, error)
	PatternsForExecutions(ctx context.Context, executionIDs []string, minSuccessCount int) ([]graphstore.DelegationPattern, error)
	RecommendDelegationTarget(ctx context.Context, fromAgent, taskType string, maxDurationMS int64, minSuccessCount int) (graphstore.TargetRecommendation, error)
}

// =============================================================================
// Hybrid Synthesizer
// =============================================================================

// Synthesizer combines semantic insights and structural graph patterns
// into one ranked recommendation set.
//
// # Description
//
// Each synthesis consults both sources independently:
//
//   - Semantic: insights matching the request context, scoped to the agent
//     type, kept only at or above the confidence floor, surfaced verbatim.
//   - Structural: delegation patterns with repeated successful history for
//     the task type, scored by success count.
//
// A failure on one side degrades the set to single-source (Hybrid false)
// instead of failing the request; only both sides failing is an error.
//
// # Thread Safety
//
// Safe for concurrent use; the synthesizer holds no mutable state.
type Synthesizer struct {
	insights ContextAugmenter
	patterns PatternSource
}

// NewSynthesizer creates a synthesizer over the two evidence sources.
// Either source may be nil, leaving that side permanently degraded; both
// nil is refused.
func NewSynthesizer(insights ContextAugmenter, patterns PatternSource) (*Synthesizer, error) {
	if insights == nil && patterns == nil {
		return nil, errors.New("at least one evidence source is required")
	}
	return &Synthesizer{insights: insights, patterns: patterns}, nil
}

// Synthesize produces the hybrid recommendation set for an agent type and
// free-text context.
//
// # Inputs
//
//   - ctx: caller context.
//   - agentType: the agent role recommendations are for.
//   - queryContext: free text describing the situation, fed to semantic
//     retrieval.
//   - taskType: optional narrowing for the structural side. When empty,
//     the structural query is scoped by the execution ids the semantic
//     insights reference; with no ids either, it covers all task types.
//
// # Outputs
//
//   - *RecommendationSet: ranked recommendations, possibly degraded.
//   - error: non-nil only when both evidence sources failed.
func (s *Synthesizer) Synthesize(ctx context.Context, agentType, queryContext, taskType string) (*RecommendationSet, error) {
	ctx, span := synthesizerTracer.Start(ctx, "Synthesizer.Synthesize")
	defer span.End()
	span.SetAttributes(
		attribute.String("synthesis.agent_type", agentType),
		attribute.String("synthesis.task_type", taskType),
	)

	set := &RecommendationSet{
		AgentType:       agentType,
		Recommendations: []Recommendation{},
	}

	executionIDs, semanticOK := s.addSemantic(ctx, set, agentType, queryContext)
	structuralOK := s.addStructural(ctx, set, taskType, executionIDs)

	if !semanticOK && !structuralOK {
		return nil, errors.New("both evidence sources unavailable")
	}
	set.Hybrid = semanticOK && structuralOK

	sort.SliceStable(set.Recommendations, func(i, j int) bool {
		return set.Recommendations[i].Confidence > set.Recommendations[j].Confidence
	})

	span.SetAttributes(
		attribute.Bool("synthesis.hybrid", set.Hybrid),
		attribute.Int("synthesis.semantic_count", set.SemanticCount),
		attribute.Int("synthesis.structural_count", set.StructuralCount),
	)
	return set, nil
}

// addSemantic appends the semantic recommendations and reports whether the
// source was consulted successfully. An empty result still counts as
// success; only retrieval errors degrade.
//
// The returned execution ids are collected from every retrieved insight,
// before the confidence floor is applied: a weak insight can still point at
// the prior execution that makes the structural query precise.
func (s *Synthesizer) addSemantic(ctx context.Context, set *RecommendationSet, agentType, queryContext string) ([]string, bool) {
	if s.insights == nil {
		return nil, false
	}

	insights, err := s.insights.RetrieveInsights(ctx, queryContext, agentType, defaultSemanticLimit)
	if err != nil {
		slog.Warn("semantic evidence unavailable, degrading to structural only",
			"agent_type", agentType,
			"error", err,
		)
		return nil, false
	}

	var executionIDs []string
	seen := make(map[string]bool)
	for _, insight := range insights {
		if insight.ExecutionID != "" && !seen[insight.ExecutionID] {
			seen[insight.ExecutionID] = true
			executionIDs = append(executionIDs, insight.ExecutionID)
		}
		if insight.Confidence < semanticConfidenceFloor {
			continue
		}
		set.Recommendations = append(set.Recommendations, Recommendation{
			Source:     SourceSemantic,
			Content:    insight.Content,
			Confidence: insight.Confidence,
			TaskType:   insight.TaskType,
		})
		set.SemanticCount++
	}
	return executionIDs, true
}

// addStructural appends the structural recommendations and reports whether
// the source was consulted successfully. With no task type the query is
// scoped by the execution ids semantic retrieval surfaced, when any.
func (s *Synthesizer) addStructural(ctx context.Context, set *RecommendationSet, taskType string, executionIDs []string) bool {
	if s.patterns == nil {
		return false
	}

	var patterns []graphstore.DelegationPattern
	var err error
	if taskType == "" && len(executionIDs) > 0 {
		patterns, err = s.patterns.PatternsForExecutions(ctx, executionIDs, structuralMinSuccesses)
	} else {
		patterns, err = s.patterns.SuccessfulPatterns(ctx, taskType, structuralMinSuccesses)
	}
	if err != nil {
		slog.Warn("structural evidence unavailable, degrading to semantic only",
			"task_type", taskType,
			"error", err,
		)
		return false
	}

	for _, pattern := range patterns {
		set.Recommendations = append(set.Recommendations, Recommendation{
			Source:       SourceStructural,
			Content:      describePattern(pattern),
			Confidence:   StructuralConfidence(pattern.SuccessCount),
			FromAgent:    pattern.FromAgent,
			ToAgent:      pattern.ToAgent,
			TaskType:     pattern.TaskType,
			SuccessCount: pattern.SuccessCount,
		})
		set.StructuralCount++
	}
	return true
}

// =============================================================================
// Target Recommendation
// =============================================================================

// TargetRecommendation answers "who should this agent delegate this task
// to": the top structural pattern for the pair, with concrete figures
// attached from the graph scoring query.
type TargetRecommendation struct {
	Found     bool   `json:"found"`
	FromAgent string `json:"from_agent,omitempty"`

	// Agent is the recommended delegation target.
	Agent    string `json:"agent,omitempty"`
	TaskType string `json:"task_type,omitempty"`

	// Confidence follows the structural scale (0.5 base, capped 0.9).
	Confidence float64 `json:"confidence,omitempty"`

	SuccessCount  int64   `json:"success_count,omitempty"`
	AvgDurationMS float64 `json:"avg_duration_ms,omitempty"`
	PriorityScore float64 `json:"priority_score,omitempty"`

	// Verified is true when the scoring query confirmed the candidate and
	// supplied the figures; false means the figures are the pattern
	// aggregate alone.
	Verified bool `json:"verified"`
}

// RecommendDelegationTarget picks the best delegation target for one
// (delegating agent, task type) pair.
//
// # Description
//
// The top structural pattern originating from the delegating agent selects
// the candidate; the graph store's dedicated scoring query is then consulted
// to attach its concrete success-count and duration figures. When the
// scoring query names the same target, its figures replace the pattern
// aggregate and the recommendation is marked verified. A scoring failure or
// mismatch leaves the pattern figures in place, unverified. With no
// qualifying pattern the scoring query alone decides; neither source finding
// a candidate yields Found == false, which is an answer, not an error.
func (s *Synthesizer) RecommendDelegationTarget(ctx context.Context, fromAgent, taskType string, maxDurationMS int64, minSuccessCount int) (TargetRecommendation, error) {
	if s.patterns == nil {
		return TargetRecommendation{}, errors.New("structural evidence source is not configured")
	}
	ctx, span := synthesizerTracer.Start(ctx, "Synthesizer.RecommendDelegationTarget")
	defer span.End()
	span.SetAttributes(
		attribute.String("recommendation.from", fromAgent),
		attribute.String("recommendation.task_type", taskType),
	)

	patterns, patternsErr := s.patterns.SuccessfulPatterns(ctx, taskType, structuralMinSuccesses)
	var top *graphstore.DelegationPattern
	if patternsErr == nil {
		// Patterns come back best first; the first one originating from
		// the delegating agent is the top structural recommendation.
		for i := range patterns {
			if patterns[i].FromAgent == fromAgent {
				top = &patterns[i]
				break
			}
		}
	}

	scored, scoredErr := s.patterns.RecommendDelegationTarget(ctx, fromAgent, taskType, maxDurationMS, minSuccessCount)
	if patternsErr != nil && scoredErr != nil {
		span.RecordError(scoredErr)
		return TargetRecommendation{}, fmt.Errorf("recommend delegation target: %w", scoredErr)
	}

	if top == nil {
		if scoredErr != nil || !scored.Found {
			return TargetRecommendation{Found: false}, nil
		}
		return TargetRecommendation{
			Found:         true,
			FromAgent:     fromAgent,
			Agent:         scored.Agent,
			TaskType:      taskType,
			Confidence:    StructuralConfidence(scored.SuccessCount),
			SuccessCount:  scored.SuccessCount,
			AvgDurationMS: scored.AvgDurationMS,
			PriorityScore: scored.PriorityScore,
			Verified:      true,
		}, nil
	}

	rec := TargetRecommendation{
		Found:         true,
		FromAgent:     top.FromAgent,
		Agent:         top.ToAgent,
		TaskType:      top.TaskType,
		Confidence:    StructuralConfidence(top.SuccessCount),
		SuccessCount:  top.SuccessCount,
		AvgDurationMS: top.AvgDurationMS,
	}
	if scoredErr != nil {
		slog.Warn("scoring cross-check unavailable, serving pattern figures",
			"from", fromAgent,
			"task_type", taskType,
			"error", scoredErr,
		)
	} else if scored.Found && scored.Agent == top.ToAgent {
		rec.SuccessCount = scored.SuccessCount
		rec.AvgDurationMS = scored.AvgDurationMS
		rec.PriorityScore = scored.PriorityScore
		rec.Verified = true
	}
	span.SetAttributes(
		attribute.String("recommendation.agent", rec.Agent),
		attribute.Bool("recommendation.verified", rec.Verified),
	)
	return rec, nil
}

// HasSemantic reports whether the semantic evidence source is configured.
// The hybrid endpoint is only worth registering when it is.
func (s *Synthesizer) HasSemantic() bool {
	return s.insights != nil
}

// describePattern renders a graph pattern as recommendation text.
func describePattern(pattern graphstore.DelegationPattern) string {
	return fmt.Sprintf("%s has delegated %q to %s successfully %d times (avg %.0fms)",
		pattern.FromAgent, pattern.TaskType, pattern.ToAgent,
		pattern.SuccessCount, pattern.AvgDurationMS)
}
