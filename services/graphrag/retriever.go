// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package graphrag produces hybrid delegation recommendations by combining
// two evidence sources: semantic insights retrieved from the vector store
// and structural patterns mined from the delegation graph.
//
// The two sources fail independently. A recommendation set built from only
// one of them is still served, flagged as non-hybrid, so callers can tell
// a full answer from a degraded one.
package graphrag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
)

// AgentInsightClassName is the Weaviate class holding operational insights
// about agents and their delegation behavior.
const AgentInsightClassName = "AgentInsight"

// =============================================================================
// Insight
// =============================================================================

// Insight is one semantic observation about agent behavior, stored in the
// vector store and retrieved by meaning rather than by key.
type Insight struct {
	InsightID string `json:"insight_id"`

	// Content is the insight text, surfaced verbatim in recommendations.
	Content string `json:"content"`

	// Category groups insights: "delegation", "performance", "reliability".
	Category string `json:"category"`

	// AgentType scopes the insight to one agent role, e.g. "SDET_Agent".
	AgentType string `json:"agent_type"`

	// TaskType optionally scopes the insight to one task type.
	TaskType string `json:"task_type,omitempty"`

	// ExecutionID optionally references the specific prior execution the
	// insight was derived from, linking it back to the delegation graph.
	ExecutionID string `json:"execution_id,omitempty"`

	// Confidence is the stored confidence in the insight (0-1).
	Confidence float64 `json:"confidence"`

	// Certainty is the semantic match strength for the current query,
	// populated at retrieval time.
	Certainty float64 `json:"certainty,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// ContextAugmenter retrieves semantic insights for a query. The hybrid
// synthesizer depends on this interface so tests can substitute a fake.
type ContextAugmenter interface {
	// RetrieveInsights returns insights semantically matching the query,
	// scoped to the given agent type, strongest match first.
	RetrieveInsights(ctx context.Context, query, agentType string, limit int) ([]Insight, error)
}

// =============================================================================
// Weaviate Retriever
// =============================================================================

// InsightRetriever is the Weaviate-backed ContextAugmenter.
type InsightRetriever struct {
	client *weaviate.Client
}

// NewInsightRetriever creates a retriever over the given Weaviate client.
func NewInsightRetriever(client *weaviate.Client) (*InsightRetriever, error) {
	if client == nil {
		return nil, errors.New("weaviate client must not be nil")
	}
	return &InsightRetriever{client: client}, nil
}

// agentInsightClass is the schema definition for the insight class.
func agentInsightClass() *models.Class {
	return &models.Class{
		Class:       AgentInsightClassName,
		Description: "Operational insights about agent delegation behavior",
		Vectorizer:  "text2vec-transformers",
		Properties: []*models.Property{
			{Name: "insightId", DataType: []string{"text"}, Description: "Unique insight identifier"},
			{Name: "content", DataType: []string{"text"}, Description: "The insight text"},
			{Name: "category", DataType: []string{"text"}, Description: "Insight category"},
			{Name: "agentType", DataType: []string{"text"}, Description: "Agent role the insight applies to"},
			{Name: "taskType", DataType: []string{"text"}, Description: "Task type the insight applies to, if any"},
			{Name: "executionId", DataType: []string{"text"}, Description: "Prior execution the insight was derived from, if any"},
			{Name: "confidence", DataType: []string{"number"}, Description: "Stored confidence (0-1)"},
			{Name: "createdAt", DataType: []string{"date"}, Description: "Creation timestamp"},
		},
	}
}

// EnsureSchema creates the AgentInsight class if it does not exist.
func (r *InsightRetriever) EnsureSchema(ctx context.Context) error {
	exists, err := r.client.Schema().ClassExistenceChecker().
		WithClassName(AgentInsightClassName).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("check %s class: %w", AgentInsightClassName, err)
	}
	if exists {
		return nil
	}

	if err := r.client.Schema().ClassCreator().
		WithClass(agentInsightClass()).
		Do(ctx); err != nil {
		return fmt.Errorf("create %s class: %w", AgentInsightClassName, err)
	}
	slog.Info("created vector schema class", "class", AgentInsightClassName)
	return nil
}

// StoreInsight writes one insight into the vector store. Missing ids and
// timestamps are populated.
func (r *InsightRetriever) StoreInsight(ctx context.Context, insight Insight) (string, error) {
	if insight.Content == "" {
		return "", errors.New("insight content must not be empty")
	}
	if insight.InsightID == "" {
		insight.InsightID = uuid.New().String()
	}
	if insight.CreatedAt.IsZero() {
		insight.CreatedAt = time.Now().UTC()
	}

	properties := map[string]any{
		"insightId":   insight.InsightID,
		"content":     insight.Content,
		"category":    insight.Category,
		"agentType":   insight.AgentType,
		"taskType":    insight.TaskType,
		"executionId": insight.ExecutionID,
		"confidence":  insight.Confidence,
		"createdAt":   insight.CreatedAt.Format(time.RFC3339),
	}

	_, err := r.client.Data().Creator().
		WithClassName(AgentInsightClassName).
		WithProperties(properties).
		Do(ctx)
	if err != nil {
		return "", fmt.Errorf("store insight: %w", err)
	}
	return insight.InsightID, nil
}

// RetrieveInsights performs semantic retrieval of insights for a query.
//
// # Description
//
// Runs a nearText search over the AgentInsight class, filtered to the
// given agent type when provided, and returns the matches strongest first
// with their certainty attached. An empty result is normal for a cold
// store.
func (r *InsightRetriever) RetrieveInsights(ctx context.Context, query, agentType string, limit int) ([]Insight, error) {
	if query == "" {
		return nil, errors.New("query must not be empty")
	}
	if limit <= 0 {
		limit = 10
	}

	nearText := r.client.GraphQL().NearTextArgBuilder().
		WithConcepts([]string{query})

	fields := []graphql.Field{
		{Name: "insightId"},
		{Name: "content"},
		{Name: "category"},
		{Name: "agentType"},
		{Name: "taskType"},
		{Name: "executionId"},
		{Name: "confidence"},
		{Name: "createdAt"},
		{Name: "_additional { certainty distance }"},
	}

	builder := r.client.GraphQL().Get().
		WithClassName(AgentInsightClassName).
		WithFields(fields...).
		WithNearText(nearText).
		WithLimit(limit)

	if agentType != "" {
		builder = builder.WithWhere(filters.Where().
			WithPath([]string{"agentType"}).
			WithOperator(filters.Equal).
			WithValueString(agentType))
	}

	result, err := builder.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("semantic insight search: %w", err)
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("semantic insight search: %s", result.Errors[0].Message)
	}

	insights := parseInsights(result)
	slog.Debug("retrieved insights",
		"query", query,
		"agent_type", agentType,
		"count", len(insights),
	)
	return insights, nil
}

// parseInsights extracts typed insights from the GraphQL response shape.
func parseInsights(result *models.GraphQLResponse) []Insight {
	data, ok := result.Data["Get"].(map[string]any)
	if !ok {
		return []Insight{}
	}
	objects, ok := data[AgentInsightClassName].([]any)
	if !ok {
		return []Insight{}
	}

	insights := make([]Insight, 0, len(objects))
	for _, obj := range objects {
		m, ok := obj.(map[string]any)
		if !ok {
			continue
		}

		insight := Insight{
			InsightID:   getString(m, "insightId"),
			Content:     getString(m, "content"),
			Category:    getString(m, "category"),
			AgentType:   getString(m, "agentType"),
			TaskType:    getString(m, "taskType"),
			ExecutionID: getString(m, "executionId"),
			Confidence:  getFloat64(m, "confidence"),
		}
		if createdStr := getString(m, "createdAt"); createdStr != "" {
			if t, err := time.Parse(time.RFC3339, createdStr); err == nil {
				insight.CreatedAt = t
			}
		}
		if additional, ok := m["_additional"].(map[string]any); ok {
			insight.Certainty = getFloat64(additional, "certainty")
		}
		insights = append(insights, insight)
	}
	return insights
}

func getString(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func getFloat64(m map[string]any, key string) float64 {
	if v, ok := m[key].(float64); ok {
		return v
	}
	return 0
}
