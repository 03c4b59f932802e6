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

	"github.com/AleutianAI/AleutianDelegate/services/graphrag"
	"github.com/AleutianAI/AleutianDelegate/services/graphstore"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	analyticsLimit      int
	analyticsMinHops    int
	analyticsWindowDays int

	riskFromAgent string
	riskToAgent   string
	riskTaskType  string

	recommendFromAgent  string
	recommendTaskType   string
	recommendMaxMS      int64
	recommendMinSuccess int

	trendsGranularity string
)

// =============================================================================
// COMMAND DEFINITIONS
// =============================================================================

var analyticsCmd = &cobra.Command{
	Use:   "analytics",
	Short: "Query the delegation graph",
}

var mostDelegatedCmd = &cobra.Command{
	Use:   "most-delegated",
	Short: "Rank agents by delegations received",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, store *graphstore.Store) error {
			results, err := store.MostDelegatedAgents(ctx, analyticsLimit)
			if err != nil {
				return err
			}
			return printJSON(results)
		})
	},
}

var chainsCmd = &cobra.Command{
	Use:   "chains",
	Short: "List multi-hop delegation routes",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, store *graphstore.Store) error {
			results, err := store.DelegationChains(ctx, analyticsMinHops, analyticsLimit)
			if err != nil {
				return err
			}
			return printJSON(results)
		})
	},
}

var successRatesCmd = &cobra.Command{
	Use:   "success-rates",
	Short: "Show per-pair delegation success rates",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, store *graphstore.Store) error {
			results, err := store.PairSuccessRates(ctx, 3)
			if err != nil {
				return err
			}
			return printJSON(results)
		})
	},
}

var riskCmd = &cobra.Command{
	Use:   "risk",
	Short: "Predict failure risk for a delegation triple",
	Long: `Predicts how likely a delegation is to fail based on the history of
the same (from, to, task type) triple.

Examples:
  delegatectl analytics risk --from Orchestrator_Agent --to SDET_Agent --task-type generate_tests`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if riskFromAgent == "" || riskToAgent == "" || riskTaskType == "" {
			return fmt.Errorf("--from, --to, and --task-type are required")
		}
		return withStore(func(ctx context.Context, store *graphstore.Store) error {
			assessment, err := store.PredictRisk(ctx, riskFromAgent, riskToAgent, riskTaskType)
			if err != nil {
				return err
			}
			return printJSON(assessment)
		})
	},
}

var recommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "Recommend the best delegation target for a task type",
	RunE: func(cmd *cobra.Command, args []string) error {
		if recommendFromAgent == "" || recommendTaskType == "" {
			return fmt.Errorf("--from and --task-type are required")
		}
		return withStore(func(ctx context.Context, store *graphstore.Store) error {
			// Structural-only synthesizer: the top pattern picks the
			// candidate and the scoring query attaches its figures.
			synthesizer, err := graphrag.NewSynthesizer(nil, store)
			if err != nil {
				return err
			}
			recommendation, err := synthesizer.RecommendDelegationTarget(ctx,
				recommendFromAgent, recommendTaskType, recommendMaxMS, recommendMinSuccess)
			if err != nil {
				return err
			}
			return printJSON(recommendation)
		})
	},
}

var costCmd = &cobra.Command{
	Use:   "cost",
	Short: "Report duration spend and optimization opportunities",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, store *graphstore.Store) error {
			report, err := store.CostOptimizationReport(ctx, analyticsWindowDays)
			if err != nil {
				return err
			}
			return printJSON(report)
		})
	},
}

var trendsCmd = &cobra.Command{
	Use:   "trends",
	Short: "Show bucketed delegation activity trends",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, store *graphstore.Store) error {
			buckets, err := store.DelegationTrends(ctx, trendsGranularity, analyticsWindowDays)
			if err != nil {
				return err
			}
			return printJSON(buckets)
		})
	},
}

// =============================================================================
// COMMAND INITIALIZATION
// =============================================================================

func init() {
	analyticsCmd.PersistentFlags().IntVar(&analyticsLimit, "limit", 10,
		"Maximum results to return")
	analyticsCmd.PersistentFlags().IntVar(&analyticsWindowDays, "window-days", 7,
		"Trailing window in days for windowed queries")

	chainsCmd.Flags().IntVar(&analyticsMinHops, "min-hops", 2,
		"Minimum chain length in hops")

	riskCmd.Flags().StringVar(&riskFromAgent, "from", "", "Delegating agent name")
	riskCmd.Flags().StringVar(&riskToAgent, "to", "", "Target agent name")
	riskCmd.Flags().StringVar(&riskTaskType, "task-type", "", "Task type")

	recommendCmd.Flags().StringVar(&recommendFromAgent, "from", "", "Delegating agent name")
	recommendCmd.Flags().StringVar(&recommendTaskType, "task-type", "", "Task type")
	recommendCmd.Flags().Int64Var(&recommendMaxMS, "max-duration-ms", 5000,
		"Duration ceiling for historical evidence")
	recommendCmd.Flags().IntVar(&recommendMinSuccess, "min-success", 3,
		"Minimum successful history a candidate needs")

	trendsCmd.Flags().StringVar(&trendsGranularity, "granularity", "day",
		"Bucket unit: hour, day, or week")

	analyticsCmd.AddCommand(mostDelegatedCmd, chainsCmd, successRatesCmd,
		riskCmd, recommendCmd, costCmd, trendsCmd)
	rootCmd.AddCommand(analyticsCmd)
}
