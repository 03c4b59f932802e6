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
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianDelegate/services/delegation/datatypes"
)

// =============================================================================
// Result Types
// =============================================================================

// AgentLoad ranks one agent by delegations received.
type AgentLoad struct {
	Agent               string  `json:"agent"`
	DelegationsReceived int64   `json:"delegations_received"`
	AvgDurationMS       float64 `json:"avg_duration_ms"`
	SuccessfulReceived  int64   `json:"successful_received"`
}

// ChainPath is one multi-hop delegation route found in the history.
type ChainPath struct {
	Origin          string   `json:"origin"`
	Destination     string   `json:"destination"`
	Path            []string `json:"path"`
	Hops            int64    `json:"hops"`
	TotalDurationMS int64    `json:"total_duration_ms"`
}

// CircularPath is a delegation cycle: a chain that returned to its start.
type CircularPath struct {
	Agent       string   `json:"agent"`
	Path        []string `json:"path"`
	CycleLength int64    `json:"cycle_length"`
}

// PairSuccessRate is the historical reliability of one ordered agent pair.
type PairSuccessRate struct {
	FromAgent     string  `json:"from_agent"`
	ToAgent       string  `json:"to_agent"`
	Total         int64   `json:"total"`
	SuccessRate   float64 `json:"success_rate"`
	AvgDurationMS float64 `json:"avg_duration_ms"`
}

// Bottleneck is an agent that repeatedly receives slow delegations.
type Bottleneck struct {
	Agent           string  `json:"agent"`
	SlowDelegations int64   `json:"slow_delegations"`
	AvgDurationMS   float64 `json:"avg_duration_ms"`
	P95DurationMS   float64 `json:"p95_duration_ms"`
	MaxDurationMS   int64   `json:"max_duration_ms"`
}

// TargetRecommendation is the best historical delegation target for one
// delegating agent and task type. Found is false when no candidate cleared
// the evidence thresholds.
type TargetRecommendation struct {
	Found         bool    `json:"found"`
	Agent         string  `json:"agent,omitempty"`
	SuccessCount  int64   `json:"success_count,omitempty"`
	AvgDurationMS float64 `json:"avg_duration_ms,omitempty"`
	PriorityScore float64 `json:"priority_score,omitempty"`
}

// RiskAssessment predicts how likely a prospective delegation is to fail,
// based on the history of the same (from, to, task type) triple.
type RiskAssessment struct {
	FromAgent          string  `json:"from_agent"`
	ToAgent            string  `json:"to_agent"`
	TaskType           string  `json:"task_type"`
	Risk               float64 `json:"risk"`
	RiskLevel          string  `json:"risk_level"`
	Confidence         float64 `json:"confidence"`
	SampleSize         int     `json:"sample_size"`
	HistoricalFailures float64 `json:"historical_failure_rate"`
	RecentFailures     float64 `json:"recent_failure_rate"`
}

// OptimalPath is the best historical route from a starting agent to proven
// capability coverage for a task type. Found is false when no
// all-successful route exists.
type OptimalPath struct {
	Found           bool     `json:"found"`
	Path            []string `json:"path,omitempty"`
	Hops            int64    `json:"hops,omitempty"`
	TotalDurationMS int64    `json:"total_duration_ms,omitempty"`
	EfficiencyScore float64  `json:"efficiency_score,omitempty"`
}

// CostOpportunity is one agent pair whose average delegation latency sits
// at or above the window's p95.
type CostOpportunity struct {
	FromAgent          string  `json:"from_agent"`
	ToAgent            string  `json:"to_agent"`
	Total              int64   `json:"total"`
	AvgDurationMS      float64 `json:"avg_duration_ms"`
	TotalDurationMS    float64 `json:"total_duration_ms"`
	ProjectedSavingsMS float64 `json:"projected_savings_ms"`
}

// CostReport summarizes duration spend inside a trailing window and the
// worst-offending pairs. ProjectedSavingsMS applies the flat reduction
// heuristic; it is a planning estimate, not a measurement.
type CostReport struct {
	WindowDays         int               `json:"window_days"`
	TotalDurationMS    float64           `json:"total_duration_ms"`
	P95ThresholdMS     float64           `json:"p95_threshold_ms"`
	Opportunities      []CostOpportunity `json:"opportunities"`
	ProjectedSavingsMS float64           `json:"projected_savings_ms"`
	ReductionFactor    float64           `json:"reduction_factor"`
}

// TrendBucket is one time bucket of delegation activity.
type TrendBucket struct {
	Bucket        string  `json:"bucket"`
	Delegations   int64   `json:"delegations"`
	AvgDurationMS float64 `json:"avg_duration_ms"`
	SuccessRate   float64 `json:"success_rate"`
}

// DelegationPattern is a proven delegation route: an ordered pair with
// repeated successful history for a task type.
type DelegationPattern struct {
	FromAgent     string  `json:"from_agent"`
	ToAgent       string  `json:"to_agent"`
	TaskType      string  `json:"task_type"`
	SuccessCount  int64   `json:"success_count"`
	AvgDurationMS float64 `json:"avg_duration_ms"`
}

// NeighborhoodEdge is one outgoing pair aggregate around a single agent.
type NeighborhoodEdge struct {
	FromAgent     string  `json:"from_agent"`
	ToAgent       string  `json:"to_agent"`
	TaskType      string  `json:"task_type"`
	Total         int64   `json:"total"`
	SuccessCount  int64   `json:"success_count"`
	AvgDurationMS float64 `json:"avg_duration_ms"`
}

// =============================================================================
// Record Mapping
// =============================================================================

// The per-record mapping from Cypher return aliases into result structs is
// kept in standalone functions so the alias contract is testable without a
// database.

func parseTargetRecommendation(record *neo4j.Record) TargetRecommendation {
	return TargetRecommendation{
		Found:         true,
		Agent:         recordString(record, "agent"),
		SuccessCount:  recordInt(record, "success_count"),
		AvgDurationMS: recordFloat(record, "avg_duration_ms"),
		PriorityScore: recordFloat(record, "priority_score"),
	}
}

func parseBottleneck(record *neo4j.Record) Bottleneck {
	return Bottleneck{
		Agent:           recordString(record, "agent"),
		SlowDelegations: recordInt(record, "slow_delegations"),
		AvgDurationMS:   recordFloat(record, "avg_duration_ms"),
		P95DurationMS:   recordFloat(record, "p95_duration_ms"),
		MaxDurationMS:   recordInt(record, "max_duration_ms"),
	}
}

func parseDelegationPattern(record *neo4j.Record) DelegationPattern {
	return DelegationPattern{
		FromAgent:     recordString(record, "from_agent"),
		ToAgent:       recordString(record, "to_agent"),
		TaskType:      recordString(record, "task_type"),
		SuccessCount:  recordInt(record, "success_count"),
		AvgDurationMS: recordFloat(record, "avg_duration_ms"),
	}
}

// =============================================================================
// Analytics Queries
// =============================================================================

// MostDelegatedAgents ranks agents by delegations received, busiest first.
// An empty graph yields an empty slice.
func (s *Store) MostDelegatedAgents(ctx context.Context, limit int) ([]AgentLoad, error) {
	if limit <= 0 {
		limit = 10
	}
	ctx, span := storeTracer.Start(ctx, "Store.MostDelegatedAgents")
	defer span.End()

	records, err := s.readRecords(ctx, mostDelegatedQuery(limit))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return nil, fmt.Errorf("most delegated agents: %w", err)
	}

	results := make([]AgentLoad, 0, len(records))
	for _, record := range records {
		results = append(results, AgentLoad{
			Agent:               recordString(record, "agent"),
			DelegationsReceived: recordInt(record, "delegations_received"),
			AvgDurationMS:       recordFloat(record, "avg_duration_ms"),
			SuccessfulReceived:  recordInt(record, "successes"),
		})
	}
	span.SetAttributes(attribute.Int("result.count", len(results)))
	return results, nil
}

// DelegationChains finds multi-hop delegation routes of at least minHops
// hops, longest first.
func (s *Store) DelegationChains(ctx context.Context, minHops, limit int) ([]ChainPath, error) {
	if limit <= 0 {
		limit = 25
	}
	ctx, span := storeTracer.Start(ctx, "Store.DelegationChains")
	defer span.End()

	q := delegationChainsQuery(minHops, limit)
	slog.Debug("running chain query", "cypher", sanitizeForLog(q.Text))

	records, err := s.readRecords(ctx, q)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return nil, fmt.Errorf("delegation chains: %w", err)
	}

	results := make([]ChainPath, 0, len(records))
	for _, record := range records {
		results = append(results, ChainPath{
			Origin:          recordString(record, "origin"),
			Destination:     recordString(record, "destination"),
			Path:            recordStringList(record, "path"),
			Hops:            recordInt(record, "hops"),
			TotalDurationMS: recordInt(record, "total_duration_ms"),
		})
	}
	return results, nil
}

// CircularDelegations finds delegation cycles recorded in the history.
// The guardrails reject cycles at dispatch time, so any hit here means
// history was ingested from an unguarded source and deserves attention.
func (s *Store) CircularDelegations(ctx context.Context, limit int) ([]CircularPath, error) {
	if limit <= 0 {
		limit = 25
	}
	ctx, span := storeTracer.Start(ctx, "Store.CircularDelegations")
	defer span.End()

	records, err := s.readRecords(ctx, circularDelegationsQuery(limit))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return nil, fmt.Errorf("circular delegations: %w", err)
	}

	results := make([]CircularPath, 0, len(records))
	for _, record := range records {
		results = append(results, CircularPath{
			Agent:       recordString(record, "agent"),
			Path:        recordStringList(record, "path"),
			CycleLength: recordInt(record, "cycle_length"),
		})
	}
	return results, nil
}

// PairSuccessRates computes per-pair reliability over pairs with at least
// minSamples delegations. minSamples below 1 defaults to 3, the smallest
// sample worth a rate.
func (s *Store) PairSuccessRates(ctx context.Context, minSamples int) ([]PairSuccessRate, error) {
	if minSamples < 1 {
		minSamples = 3
	}
	ctx, span := storeTracer.Start(ctx, "Store.PairSuccessRates")
	defer span.End()

	records, err := s.readRecords(ctx, pairSuccessRatesQuery(minSamples))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return nil, fmt.Errorf("pair success rates: %w", err)
	}

	results := make([]PairSuccessRate, 0, len(records))
	for _, record := range records {
		results = append(results, PairSuccessRate{
			FromAgent:     recordString(record, "from_agent"),
			ToAgent:       recordString(record, "to_agent"),
			Total:         recordInt(record, "total"),
			SuccessRate:   recordFloat(record, "success_rate"),
			AvgDurationMS: recordFloat(record, "avg_duration_ms"),
		})
	}
	return results, nil
}

// Bottlenecks surfaces agents that received at least minCount delegations
// slower than thresholdMS.
func (s *Store) Bottlenecks(ctx context.Context, thresholdMS int64, minCount int) ([]Bottleneck, error) {
	if thresholdMS <= 0 {
		thresholdMS = 5000
	}
	if minCount < 1 {
		minCount = 3
	}
	ctx, span := storeTracer.Start(ctx, "Store.Bottlenecks")
	defer span.End()

	records, err := s.readRecords(ctx, bottlenecksQuery(thresholdMS, minCount))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return nil, fmt.Errorf("bottlenecks: %w", err)
	}

	results := make([]Bottleneck, 0, len(records))
	for _, record := range records {
		results = append(results, parseBottleneck(record))
	}
	return results, nil
}

// RecommendDelegationTarget picks the best historical target for one
// delegating agent and task type.
//
// # Description
//
// Only successful delegations under maxDurationMS count as evidence, and a
// candidate needs at least minSuccessCount of them. Candidates are ranked
// by success_count * 1000 / avg_duration_ms, so proven reliability
// dominates and latency breaks ties. With no qualifying candidate the
// result has Found == false; that is an answer, not an error.
func (s *Store) RecommendDelegationTarget(ctx context.Context, fromAgent, taskType string, maxDurationMS int64, minSuccessCount int) (TargetRecommendation, error) {
	if maxDurationMS <= 0 {
		maxDurationMS = 5000
	}
	if minSuccessCount < 1 {
		minSuccessCount = 3
	}
	ctx, span := storeTracer.Start(ctx, "Store.RecommendDelegationTarget")
	defer span.End()
	span.SetAttributes(
		attribute.String("recommendation.from", fromAgent),
		attribute.String("recommendation.task_type", taskType),
	)

	records, err := s.readRecords(ctx, recommendTargetQuery(fromAgent, taskType, maxDurationMS, minSuccessCount))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return TargetRecommendation{}, fmt.Errorf("recommend delegation target: %w", err)
	}
	if len(records) == 0 {
		return TargetRecommendation{Found: false}, nil
	}

	return parseTargetRecommendation(records[0]), nil
}

// PredictRisk scores how likely a prospective delegation is to fail.
//
// The blend is 70% all-time failure rate and 30% failure rate over the
// newest ten samples; confidence grows with sample size and saturates at
// twenty. A triple with no history returns the unknown level with zero
// confidence rather than claiming safety.
func (s *Store) PredictRisk(ctx context.Context, fromAgent, toAgent, taskType string) (RiskAssessment, error) {
	ctx, span := storeTracer.Start(ctx, "Store.PredictRisk")
	defer span.End()
	span.SetAttributes(
		attribute.String("risk.from", fromAgent),
		attribute.String("risk.to", toAgent),
		attribute.String("risk.task_type", taskType),
	)

	records, err := s.readRecords(ctx, riskHistoryQuery(fromAgent, toAgent, taskType))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return RiskAssessment{}, fmt.Errorf("predict risk: %w", err)
	}

	statuses := make([]datatypes.DelegationStatus, 0, len(records))
	for _, record := range records {
		statuses = append(statuses, datatypes.DelegationStatus(recordString(record, "status")))
	}

	risk, level, confidence := ScoreRisk(statuses)

	assessment := RiskAssessment{
		FromAgent:  fromAgent,
		ToAgent:    toAgent,
		TaskType:   taskType,
		Risk:       risk,
		RiskLevel:  level,
		Confidence: confidence,
		SampleSize: len(statuses),
	}
	if len(statuses) > 0 {
		recent := statuses
		if len(recent) > riskRecentWindow {
			recent = recent[:riskRecentWindow]
		}
		assessment.HistoricalFailures = FailureRate(statuses)
		assessment.RecentFailures = FailureRate(recent)
	}
	return assessment, nil
}

// FindOptimalPath finds the most efficient all-successful delegation route
// from startAgent to any agent with proven successful history for the task
// type. Routes are ranked by fewest hops, then by efficiency score.
func (s *Store) FindOptimalPath(ctx context.Context, startAgent, taskType string) (OptimalPath, error) {
	ctx, span := storeTracer.Start(ctx, "Store.FindOptimalPath")
	defer span.End()
	span.SetAttributes(
		attribute.String("path.start", startAgent),
		attribute.String("path.task_type", taskType),
	)

	records, err := s.readRecords(ctx, optimalPathQuery(startAgent, taskType))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return OptimalPath{}, fmt.Errorf("find optimal path: %w", err)
	}
	if len(records) == 0 {
		return OptimalPath{Found: false}, nil
	}

	record := records[0]
	totalDurationMS := recordInt(record, "total_duration_ms")
	return OptimalPath{
		Found:           true,
		Path:            recordStringList(record, "path"),
		Hops:            recordInt(record, "hops"),
		TotalDurationMS: totalDurationMS,
		EfficiencyScore: EfficiencyScore(totalDurationMS),
	}, nil
}

// CostOptimizationReport identifies the worst duration spenders inside a
// trailing window of windowDays days.
//
// Pairs whose average latency sits at or above the p95 of all pair
// averages in the window are flagged as opportunities, each with a
// projected saving of a flat 30% of its total spend. The projection is a
// planning heuristic and is labeled as such in the report.
func (s *Store) CostOptimizationReport(ctx context.Context, windowDays int) (CostReport, error) {
	if windowDays <= 0 {
		windowDays = 7
	}
	ctx, span := storeTracer.Start(ctx, "Store.CostOptimizationReport")
	defer span.End()
	span.SetAttributes(attribute.Int("cost.window_days", windowDays))

	sinceMS := time.Now().UTC().AddDate(0, 0, -windowDays).UnixMilli()
	records, err := s.readRecords(ctx, costWindowPairsQuery(sinceMS))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return CostReport{}, fmt.Errorf("cost optimization report: %w", err)
	}

	report := CostReport{
		WindowDays:      windowDays,
		ReductionFactor: CostReductionFactor,
		Opportunities:   []CostOpportunity{},
	}
	if len(records) == 0 {
		return report, nil
	}

	type pairSpend struct {
		fromAgent       string
		toAgent         string
		total           int64
		avgDurationMS   float64
		totalDurationMS float64
	}
	pairs := make([]pairSpend, 0, len(records))
	averages := make([]float64, 0, len(records))
	for _, record := range records {
		pair := pairSpend{
			fromAgent:       recordString(record, "from_agent"),
			toAgent:         recordString(record, "to_agent"),
			total:           recordInt(record, "total"),
			avgDurationMS:   recordFloat(record, "avg_duration_ms"),
			totalDurationMS: recordFloat(record, "total_duration_ms"),
		}
		pairs = append(pairs, pair)
		averages = append(averages, pair.avgDurationMS)
		report.TotalDurationMS += pair.totalDurationMS
	}

	sort.Float64s(averages)
	report.P95ThresholdMS = Percentile(averages, 0.95)

	for _, pair := range pairs {
		if pair.avgDurationMS < report.P95ThresholdMS {
			continue
		}
		saving := ProjectedSavingsMS(pair.totalDurationMS)
		report.Opportunities = append(report.Opportunities, CostOpportunity{
			FromAgent:          pair.fromAgent,
			ToAgent:            pair.toAgent,
			Total:              pair.total,
			AvgDurationMS:      pair.avgDurationMS,
			TotalDurationMS:    pair.totalDurationMS,
			ProjectedSavingsMS: saving,
		})
		report.ProjectedSavingsMS += saving
	}
	return report, nil
}

// DelegationTrends buckets delegation volume, latency, and success rate by
// hour, day, or week over the trailing windowDays days.
func (s *Store) DelegationTrends(ctx context.Context, granularity string, windowDays int) ([]TrendBucket, error) {
	if windowDays <= 0 {
		windowDays = 30
	}
	ctx, span := storeTracer.Start(ctx, "Store.DelegationTrends")
	defer span.End()
	span.SetAttributes(attribute.String("trends.granularity", granularity))

	sinceMS := time.Now().UTC().AddDate(0, 0, -windowDays).UnixMilli()
	q, err := trendsQuery(granularity, sinceMS)
	if err != nil {
		span.SetStatus(codes.Error, "invalid granularity")
		return nil, err
	}

	records, err := s.readRecords(ctx, q)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return nil, fmt.Errorf("delegation trends: %w", err)
	}

	results := make([]TrendBucket, 0, len(records))
	for _, record := range records {
		results = append(results, TrendBucket{
			Bucket:        recordString(record, "bucket"),
			Delegations:   recordInt(record, "delegations"),
			AvgDurationMS: recordFloat(record, "avg_duration_ms"),
			SuccessRate:   recordFloat(record, "success_rate"),
		})
	}
	return results, nil
}

// SuccessfulPatterns returns proven delegation routes: pairs with at least
// minSuccessCount successful delegations, optionally narrowed to one task
// type. The GraphRAG synthesizer consumes these as its structural evidence.
func (s *Store) SuccessfulPatterns(ctx context.Context, taskType string, minSuccessCount int) ([]DelegationPattern, error) {
	if minSuccessCount < 1 {
		minSuccessCount = 2
	}
	ctx, span := storeTracer.Start(ctx, "Store.SuccessfulPatterns")
	defer span.End()
	span.SetAttributes(attribute.String("patterns.task_type", taskType))

	records, err := s.readRecords(ctx, successfulPatternsQuery(taskType, minSuccessCount))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return nil, fmt.Errorf("successful patterns: %w", err)
	}

	results := make([]DelegationPattern, 0, len(records))
	for _, record := range records {
		results = append(results, parseDelegationPattern(record))
	}
	return results, nil
}

// PatternsForExecutions returns proven delegation routes scoped to the task
// types of specific prior executions. The GraphRAG synthesizer uses it when
// a request names no task type but semantic retrieval surfaced execution
// ids. No ids means no scope, which is an empty answer, not an error.
func (s *Store) PatternsForExecutions(ctx context.Context, executionIDs []string, minSuccessCount int) ([]DelegationPattern, error) {
	if len(executionIDs) == 0 {
		return []DelegationPattern{}, nil
	}
	if minSuccessCount < 1 {
		minSuccessCount = 2
	}
	ctx, span := storeTracer.Start(ctx, "Store.PatternsForExecutions")
	defer span.End()
	span.SetAttributes(attribute.Int("patterns.execution_ids", len(executionIDs)))

	records, err := s.readRecords(ctx, patternsByExecutionsQuery(executionIDs, minSuccessCount))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return nil, fmt.Errorf("patterns for executions: %w", err)
	}

	results := make([]DelegationPattern, 0, len(records))
	for _, record := range records {
		results = append(results, parseDelegationPattern(record))
	}
	return results, nil
}

// AgentNeighborhood returns the outgoing pair aggregates around one agent,
// most proven first.
func (s *Store) AgentNeighborhood(ctx context.Context, agentName string) ([]NeighborhoodEdge, error) {
	ctx, span := storeTracer.Start(ctx, "Store.AgentNeighborhood")
	defer span.End()
	span.SetAttributes(attribute.String("neighborhood.agent", agentName))

	records, err := s.readRecords(ctx, agentNeighborhoodQuery(agentName))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return nil, fmt.Errorf("agent neighborhood: %w", err)
	}

	results := make([]NeighborhoodEdge, 0, len(records))
	for _, record := range records {
		results = append(results, NeighborhoodEdge{
			FromAgent:     recordString(record, "from_agent"),
			ToAgent:       recordString(record, "to_agent"),
			TaskType:      recordString(record, "task_type"),
			Total:         recordInt(record, "total"),
			SuccessCount:  recordInt(record, "success_count"),
			AvgDurationMS: recordFloat(record, "avg_duration_ms"),
		})
	}
	return results, nil
}
