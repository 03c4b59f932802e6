// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianDelegate/services/graphstore"
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Manage the delegation graph schema",
}

// schemaInitCmd applies the constraints and indexes. All statements are
// idempotent, so running it against an initialized database is harmless.
var schemaInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the graph constraints and indexes",
	Long: `Applies the unique constraints (Agent.name, Execution.id,
Deployment.id) and the analytics indexes. Safe to run repeatedly.

Examples:
  delegatectl schema init`,
	RunE: runSchemaInit,
}

// =============================================================================
// COMMAND INITIALIZATION
// =============================================================================

func init() {
	schemaCmd.AddCommand(schemaInitCmd)
	rootCmd.AddCommand(schemaCmd)
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

func runSchemaInit(cmd *cobra.Command, args []string) error {
	return withStore(func(ctx context.Context, store *graphstore.Store) error {
		if err := store.InitSchema(ctx); err != nil {
			return err
		}
		fmt.Println("Graph schema initialized.")
		return nil
	})
}
