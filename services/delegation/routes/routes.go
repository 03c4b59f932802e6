// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/AleutianDelegate/services/delegation/handlers"
	"github.com/AleutianAI/AleutianDelegate/services/graphrag"
	"github.com/AleutianAI/AleutianDelegate/services/graphstore"
)

// SetupRoutes registers all delegation service routes.
//
// The hybrid recommendation endpoint is only registered when the
// synthesizer has a semantic evidence source; callers get a 404 rather
// than a permanently degraded answer. The target recommendation endpoint
// always exists, cross-checked through the synthesizer when one is wired.
func SetupRoutes(router *gin.Engine, store *graphstore.Store, synthesizer *graphrag.Synthesizer) {

	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API version 1 group
	v1 := router.Group("/v1")
	{
		analytics := v1.Group("/analytics")
		{
			analytics.GET("/most-delegated", handlers.MostDelegatedAgents(store))
			analytics.GET("/chains", handlers.DelegationChains(store))
			analytics.GET("/circular", handlers.CircularDelegations(store))
			analytics.GET("/success-rates", handlers.PairSuccessRates(store))
			analytics.GET("/bottlenecks", handlers.Bottlenecks(store))
			analytics.GET("/optimal-path", handlers.OptimalPath(store))
			analytics.GET("/cost", handlers.CostOptimization(store))
			analytics.GET("/trends", handlers.DelegationTrends(store))
			analytics.GET("/agents/:agentName/neighborhood", handlers.AgentNeighborhood(store))
		}

		recommendations := v1.Group("/recommendations")
		{
			recommendations.POST("/target", handlers.RecommendTarget(store, synthesizer))
			if synthesizer != nil && synthesizer.HasSemantic() {
				recommendations.POST("/hybrid", handlers.RecommendHybrid(synthesizer))
			}
		}

		v1.POST("/risk", handlers.PredictRisk(store))

		// Graph administration routes
		admin := v1.Group("/admin")
		{
			admin.POST("/schema", handlers.InitSchema(store))
			admin.DELETE("/data", handlers.DeleteAllData(store))
		}
	}
}
