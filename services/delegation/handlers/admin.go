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

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianDelegate/services/graphstore"
)

// DeleteAllData wipes every node and relationship from the graph store.
//
// DELETE /v1/admin/data
//
// Intended for test environments only; it lives on the admin route group,
// fully separated from the delegation flow.
func DeleteAllData(store *graphstore.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		slog.Warn("Received a request to DELETE ALL DATA from the delegation graph")
		if err := store.ClearAll(c.Request.Context()); err != nil {
			slog.Error("failed to clear the delegation graph", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to clear the delegation graph"})
			return
		}
		slog.Info("Delegation graph wiped clean")
		c.JSON(http.StatusOK, gin.H{"status": "success", "message": "delegation graph was wiped clean"})
	}
}

// InitSchema applies the graph constraints and indexes.
//
// POST /v1/admin/schema
func InitSchema(store *graphstore.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := store.InitSchema(c.Request.Context()); err != nil {
			slog.Error("failed to initialize the graph schema", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to initialize the graph schema"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "success"})
	}
}
