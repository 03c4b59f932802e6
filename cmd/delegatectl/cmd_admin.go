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
// COMMAND FLAGS
// =============================================================================

var adminClearConfirmed bool // skip the interactive confirmation

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Administrative operations on the delegation graph",
}

// adminClearCmd wipes the whole database. Destructive; requires --yes.
var adminClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete ALL nodes and relationships from the delegation graph",
	Long: `Deletes every agent, delegation, execution, and deployment record.
This cannot be undone. Intended for test environments only.

Examples:
  delegatectl admin clear --yes`,
	RunE: runAdminClear,
}

// =============================================================================
// COMMAND INITIALIZATION
// =============================================================================

func init() {
	adminClearCmd.Flags().BoolVar(&adminClearConfirmed, "yes", false,
		"Confirm the destructive clear without prompting")
	adminCmd.AddCommand(adminClearCmd)
	rootCmd.AddCommand(adminCmd)
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

func runAdminClear(cmd *cobra.Command, args []string) error {
	if !adminClearConfirmed {
		return fmt.Errorf("refusing to clear the graph without --yes")
	}
	return withStore(func(ctx context.Context, store *graphstore.Store) error {
		if err := store.ClearAll(ctx); err != nil {
			return err
		}
		fmt.Println("Delegation graph wiped clean.")
		return nil
	})
}
