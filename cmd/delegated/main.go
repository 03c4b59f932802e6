// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command delegated starts the AleutianDelegate HTTP server.
//
// This is the main entry point for the containerized delegation service.
// It reads configuration from environment variables and starts the server.
//
// # Environment Variables
//
//   - DELEGATION_PORT: HTTP server port (default: 12230)
//   - NEO4J_URI: Bolt URI of the graph database (default: bolt://localhost:7687)
//   - NEO4J_USER: Graph database user (default: neo4j)
//   - NEO4J_PASSWORD: Graph database password (default: empty)
//   - NEO4J_DATABASE: Graph database name (default: neo4j)
//   - WEAVIATE_SERVICE_URL: Weaviate vector DB URL (optional; enables hybrid recommendations)
//   - DEPLOYMENT_ID: Deployment grouping key for persisted records (optional)
//   - DELEGATION_DISABLED: Set to "true" to turn the dispatch subsystem off
//   - DELEGATION_TIMEOUT_DISABLED: Set to "true" to turn off timeout enforcement
//   - DELEGATION_LOG_DIR: Directory for JSON log files (optional; stderr only when unset)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OpenTelemetry collector (default: aleutian-otel-collector:4317)
//
// # Usage
//
//	# Build
//	go build -o delegated ./cmd/delegated
//
//	# Run
//	./delegated
//
//	# Or via container
//	podman-compose up delegated
package main

import (
	"log"
	"log/slog"
	"os"
	"strconv"

	"github.com/AleutianAI/AleutianDelegate/pkg/logging"
	"github.com/AleutianAI/AleutianDelegate/services/delegation"
	"github.com/AleutianAI/AleutianDelegate/services/graphstore"
)

func main() {
	// Setup structured logging
	logger := logging.New(logging.Config{
		Service: "delegated",
		JSON:    true,
		LogDir:  os.Getenv("DELEGATION_LOG_DIR"),
	})
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	// Build configuration from environment variables
	cfg := delegation.Config{
		Port: getEnvInt("DELEGATION_PORT", 12230),
		Graph: graphstore.Config{
			URI:      getEnvString("NEO4J_URI", "bolt://localhost:7687"),
			Username: getEnvString("NEO4J_USER", "neo4j"),
			Password: os.Getenv("NEO4J_PASSWORD"),
			Database: getEnvString("NEO4J_DATABASE", "neo4j"),
		},
		WeaviateURL:        os.Getenv("WEAVIATE_SERVICE_URL"),
		OTelEndpoint:       getEnvString("OTEL_EXPORTER_OTLP_ENDPOINT", "aleutian-otel-collector:4317"),
		DeploymentID:       os.Getenv("DEPLOYMENT_ID"),
		DelegationDisabled: getEnvBool("DELEGATION_DISABLED", false),
		DisableTimeout:     getEnvBool("DELEGATION_TIMEOUT_DISABLED", false),
	}

	slog.Info("Starting delegation service",
		"port", cfg.Port,
		"neo4j_uri", cfg.Graph.URI,
		"weaviate_url", cfg.WeaviateURL,
		"deployment_id", cfg.DeploymentID,
	)

	svc, err := delegation.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create delegation service: %v", err)
	}

	// Run the server (blocks until shutdown)
	if err := svc.Run(); err != nil {
		log.Fatalf("Delegation service error: %v", err)
	}
}

// getEnvString returns the environment variable value or a default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvBool returns the environment variable as bool or a default.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
