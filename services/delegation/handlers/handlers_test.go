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
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianDelegate/services/graphrag"
	"github.com/AleutianAI/AleutianDelegate/services/graphstore"
)

func TestHealthCheck(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/health", HealthCheck)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "delegation", body["service"])
}

func TestIntQuery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	var got int
	router.GET("/x", func(c *gin.Context) {
		got = intQuery(c, "limit", 10)
		c.Status(http.StatusOK)
	})

	cases := []struct {
		url  string
		want int
	}{
		{"/x", 10},
		{"/x?limit=5", 5},
		{"/x?limit=abc", 10},
		{"/x?limit=-2", -2},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tc.url, nil))
		assert.Equal(t, tc.want, got, tc.url)
	}
}

// stubEvidence is a canned structural evidence source for handler tests.
type stubEvidence struct {
	patterns []graphstore.DelegationPattern
	scored   graphstore.TargetRecommendation
}

func (s *stubEvidence) SuccessfulPatterns(_ context.Context, _ string, _ int) ([]graphstore.DelegationPattern, error) {
	return s.patterns, nil
}

func (s *stubEvidence) PatternsForExecutions(_ context.Context, _ []string, _ int) ([]graphstore.DelegationPattern, error) {
	return nil, nil
}

func (s *stubEvidence) RecommendDelegationTarget(_ context.Context, _, _ string, _ int64, _ int) (graphstore.TargetRecommendation, error) {
	return s.scored, nil
}

func TestRecommendTarget_CrossChecksThroughSynthesizer(t *testing.T) {
	gin.SetMode(gin.TestMode)

	synthesizer, err := graphrag.NewSynthesizer(nil, &stubEvidence{
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
	})
	require.NoError(t, err)

	router := gin.New()
	router.POST("/target", RecommendTarget(nil, synthesizer))

	body := `{"from_agent": "Orchestrator_Agent", "task_type": "deploy_service"}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/target", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var response struct {
		RequestID      string                        `json:"request_id"`
		Recommendation graphrag.TargetRecommendation `json:"recommendation"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.NotEmpty(t, response.RequestID)
	assert.True(t, response.Recommendation.Found)
	assert.True(t, response.Recommendation.Verified)
	assert.Equal(t, "SRE_Agent", response.Recommendation.Agent)
	assert.Equal(t, int64(5), response.Recommendation.SuccessCount)
	assert.InDelta(t, 220, response.Recommendation.AvgDurationMS, 1e-9)
}

func TestRecommendTarget_RejectsMissingFields(t *testing.T) {
	gin.SetMode(gin.TestMode)

	synthesizer, err := graphrag.NewSynthesizer(nil, &stubEvidence{})
	require.NoError(t, err)

	router := gin.New()
	router.POST("/target", RecommendTarget(nil, synthesizer))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/target", strings.NewReader(`{"from_agent": "A"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRenderQueryContext_DeterministicSortedKeys(t *testing.T) {
	context := map[string]any{
		"goal":     "cover the payment flow",
		"branch":   "main",
		"failures": 3,
	}

	rendered := renderQueryContext(context)
	assert.Equal(t, "branch: main; failures: 3; goal: cover the payment flow", rendered)

	// Identical maps always render identically.
	for i := 0; i < 20; i++ {
		assert.Equal(t, rendered, renderQueryContext(context))
	}

	assert.Equal(t, "", renderQueryContext(nil))
	assert.Equal(t, "k: v", renderQueryContext(map[string]any{"k": "v"}))
}
