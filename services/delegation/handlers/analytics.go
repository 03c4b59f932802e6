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
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianDelegate/pkg/validation"
	"github.com/AleutianAI/AleutianDelegate/services/graphstore"
)

// intQuery parses an integer query parameter with a fallback.
func intQuery(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

// MostDelegatedAgents serves the agent load ranking.
//
// GET /v1/analytics/most-delegated?limit=10
func MostDelegatedAgents(store *graphstore.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		results, err := store.MostDelegatedAgents(c.Request.Context(), intQuery(c, "limit", 10))
		if err != nil {
			slog.Error("most delegated agents query failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "analytics query failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"agents": results})
	}
}

// DelegationChains serves multi-hop delegation routes.
//
// GET /v1/analytics/chains?min_hops=2&limit=25
func DelegationChains(store *graphstore.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		results, err := store.DelegationChains(c.Request.Context(),
			intQuery(c, "min_hops", 2), intQuery(c, "limit", 25))
		if err != nil {
			slog.Error("delegation chains query failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "analytics query failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"chains": results})
	}
}

// CircularDelegations serves recorded delegation cycles.
//
// GET /v1/analytics/circular?limit=25
func CircularDelegations(store *graphstore.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		results, err := store.CircularDelegations(c.Request.Context(), intQuery(c, "limit", 25))
		if err != nil {
			slog.Error("circular delegations query failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "analytics query failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"cycles": results})
	}
}

// PairSuccessRates serves per-pair reliability.
//
// GET /v1/analytics/success-rates?min_samples=3
func PairSuccessRates(store *graphstore.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		results, err := store.PairSuccessRates(c.Request.Context(), intQuery(c, "min_samples", 3))
		if err != nil {
			slog.Error("pair success rates query failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "analytics query failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"pairs": results})
	}
}

// Bottlenecks serves the slow-delegation ranking.
//
// GET /v1/analytics/bottlenecks?threshold_ms=5000&min_count=3
func Bottlenecks(store *graphstore.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		results, err := store.Bottlenecks(c.Request.Context(),
			int64(intQuery(c, "threshold_ms", 5000)), intQuery(c, "min_count", 3))
		if err != nil {
			slog.Error("bottlenecks query failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "analytics query failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"bottlenecks": results})
	}
}

// OptimalPath serves the most efficient proven delegation route.
//
// GET /v1/analytics/optimal-path?start=Orchestrator_Agent&task_type=generate_tests
func OptimalPath(store *graphstore.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := c.Query("start")
		taskType := c.Query("task_type")
		if start == "" || taskType == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "start and task_type are required"})
			return
		}
		result, err := store.FindOptimalPath(c.Request.Context(), start, taskType)
		if err != nil {
			slog.Error("optimal path query failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "analytics query failed"})
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// CostOptimization serves the duration-spend report.
//
// GET /v1/analytics/cost?window_days=7
func CostOptimization(store *graphstore.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		report, err := store.CostOptimizationReport(c.Request.Context(), intQuery(c, "window_days", 7))
		if err != nil {
			slog.Error("cost optimization query failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "analytics query failed"})
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

// DelegationTrends serves bucketed activity trends.
//
// GET /v1/analytics/trends?granularity=day&window_days=30
func DelegationTrends(store *graphstore.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		granularity := c.DefaultQuery("granularity", "day")
		results, err := store.DelegationTrends(c.Request.Context(), granularity, intQuery(c, "window_days", 30))
		if err != nil {
			slog.Error("delegation trends query failed", "granularity", granularity, "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"granularity": granularity, "buckets": results})
	}
}

// AgentNeighborhood serves the outgoing pair aggregates around one agent.
//
// GET /v1/analytics/agents/:agentName/neighborhood
func AgentNeighborhood(store *graphstore.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		agentName, err := validation.SanitizeAgentName(c.Param("agentName"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		results, err := store.AgentNeighborhood(c.Request.Context(), agentName)
		if err != nil {
			slog.Error("agent neighborhood query failed", "agent", agentName, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "analytics query failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"agent": agentName, "edges": results})
	}
}
