// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command delegatectl administers the delegation graph from the terminal.
//
// It talks to Neo4j directly using the same connection settings as the
// delegated server, so it works without the HTTP service running.
//
// # Environment Variables
//
//   - NEO4J_URI: Bolt URI of the graph database (default: bolt://localhost:7687)
//   - NEO4J_USER: Graph database user (default: neo4j)
//   - NEO4J_PASSWORD: Graph database password (default: empty)
//   - NEO4J_DATABASE: Graph database name (default: neo4j)
//
// # Usage
//
//	delegatectl schema init
//	delegatectl admin clear --yes
//	delegatectl analytics most-delegated --limit 5
//	delegatectl analytics risk --from Orchestrator_Agent --to SDET_Agent --task-type generate_tests
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianDelegate/pkg/logging"
	"github.com/AleutianAI/AleutianDelegate/services/graphstore"
)

var rootCmd = &cobra.Command{
	Use:   "delegatectl",
	Short: "Administer the Aleutian delegation graph",
	Long: `delegatectl manages the delegation graph store: schema setup,
data administration, and ad-hoc analytics queries.

It connects to Neo4j directly using the NEO4J_* environment variables,
the same settings the delegated server reads.`,
	SilenceUsage: true,
}

func main() {
	// CLI logs go to stderr as text; stdout is reserved for command output.
	logger := logging.New(logging.Config{
		Service: "delegatectl",
		Level:   slog.LevelWarn,
	})
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// connectStore opens a graph store connection from the environment.
func connectStore(ctx context.Context) (*graphstore.Store, error) {
	cfg := graphstore.Config{
		URI:      getEnvString("NEO4J_URI", "bolt://localhost:7687"),
		Username: getEnvString("NEO4J_USER", "neo4j"),
		Password: os.Getenv("NEO4J_PASSWORD"),
		Database: getEnvString("NEO4J_DATABASE", "neo4j"),
	}
	return graphstore.NewStore(ctx, cfg)
}

// withStore runs fn against a connected store with a bounded context.
func withStore(fn func(ctx context.Context, store *graphstore.Store) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	store, err := connectStore(ctx)
	if err != nil {
		return fmt.Errorf("connect to graph store: %w", err)
	}
	defer store.Close(ctx)

	return fn(ctx, store)
}

// printJSON writes a value to stdout as indented JSON.
func printJSON(value any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

// getEnvString returns the environment variable value or a default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
