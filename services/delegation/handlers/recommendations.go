// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianDelegate/services/delegation/datatypes"
	"github.com/AleutianAI/AleutianDelegate/services/graphrag"
	"github.com/AleutianAI/AleutianDelegate/services/graphstore"
)

// RecommendTarget serves the target recommendation, cross-checked through
// the synthesizer when one is available: the top structural pattern picks
// the candidate and the graph scoring query attaches its figures. Without a
// synthesizer the bare scoring query answers alone.
//
// POST /v1/recommendations/target
func RecommendTarget(store *graphstore.Store, synthesizer *graphrag.Synthesizer) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.TargetRecommendationRequest
		if err := c.BindJSON(&req); err != nil {
			slog.Error("failed to parse target recommendation request", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to parse target recommendation request"})
			return
		}
		req.EnsureDefaults()
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		var recommendation any
		var err error
		if synthesizer != nil {
			recommendation, err = synthesizer.RecommendDelegationTarget(c.Request.Context(),
				req.FromAgent, req.TaskType, req.MaxDurationMS, req.MinSuccessCount)
		} else {
			recommendation, err = store.RecommendDelegationTarget(c.Request.Context(),
				req.FromAgent, req.TaskType, req.MaxDurationMS, req.MinSuccessCount)
		}
		if err != nil {
			slog.Error("target recommendation query failed",
				"request_id", req.RequestID,
				"from", req.FromAgent,
				"task_type", req.TaskType,
				"error", err,
			)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "recommendation query failed"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"request_id":     req.RequestID,
			"recommendation": recommendation,
		})
	}
}

// RecommendHybrid serves the hybrid semantic-plus-structural synthesis.
//
// POST /v1/recommendations/hybrid
func RecommendHybrid(synthesizer *graphrag.Synthesizer) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.HybridRecommendationRequest
		if err := c.BindJSON(&req); err != nil {
			slog.Error("failed to parse hybrid recommendation request", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to parse hybrid recommendation request"})
			return
		}
		req.EnsureDefaults()
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		set, err := synthesizer.Synthesize(c.Request.Context(),
			req.AgentType, renderQueryContext(req.Context), req.TaskType)
		if err != nil {
			slog.Error("hybrid synthesis failed",
				"request_id", req.RequestID,
				"agent_type", req.AgentType,
				"error", err,
			)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no evidence source available"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"request_id":      req.RequestID,
			"recommendations": set,
		})
	}
}

// PredictRisk serves the failure-risk prediction for one delegation triple.
//
// POST /v1/risk
func PredictRisk(store *graphstore.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.RiskRequest
		if err := c.BindJSON(&req); err != nil {
			slog.Error("failed to parse risk request", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to parse risk request"})
			return
		}
		req.EnsureDefaults()
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		assessment, err := store.PredictRisk(c.Request.Context(),
			req.FromAgent, req.ToAgent, req.TaskType)
		if err != nil {
			slog.Error("risk prediction failed",
				"request_id", req.RequestID,
				"from", req.FromAgent,
				"to", req.ToAgent,
				"error", err,
			)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "risk prediction failed"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"request_id": req.RequestID,
			"assessment": assessment,
		})
	}
}

// renderQueryContext flattens the structured request context into the
// free-text query fed to semantic retrieval. Keys are sorted so the same
// context always produces the same query.
func renderQueryContext(context map[string]any) string {
	keys := make([]string, 0, len(context))
	for key := range context {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s: %v", key, context[key]))
	}
	return strings.Join(parts, "; ")
}
