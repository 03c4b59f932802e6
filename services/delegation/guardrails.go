// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package delegation

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// =============================================================================
// Policy Constants
// =============================================================================

const (
	// MaxDepth is the maximum delegation chain depth. A delegation
	// requested at this depth or deeper is rejected.
	MaxDepth = 3

	// MaxTotalDelegations is the total delegation budget for one root
	// request, across all agent pairs.
	MaxTotalDelegations = 5

	// DelegationTimeout bounds a single delegated agent execution. The
	// registry enforces it with a context deadline when timeout
	// enforcement is enabled.
	DelegationTimeout = 30 * time.Second
)

// =============================================================================
// Authorization Table
// =============================================================================

// AuthorizationTable maps each agent name to the finite set of agents it may
// delegate to. This is a closed whitelist: an agent absent from the table
// (or mapped to an empty set) is a terminal node and may not delegate at all.
type AuthorizationTable map[string][]string

// DefaultAuthorizationTable returns the shipped delegation topology for the
// fixed agent fleet.
func DefaultAuthorizationTable() AuthorizationTable {
	return AuthorizationTable{
		"Orchestrator_Agent": {"SDET_Agent", "SRE_Agent", "Compliance_Agent"},
		"SDET_Agent":         {"SRE_Agent", "Compliance_Agent"},
		"SRE_Agent":          {"Compliance_Agent"},
		// Compliance_Agent is deliberately unlisted: it is a terminal node.
	}
}

// =============================================================================
// Guardrails
// =============================================================================

// Guardrails evaluates delegation safety rules and tracks the per-request
// delegation budget.
//
// # Description
//
// The rule evaluation itself is pure; the only state is the per-pair counter
// map, which is request-scoped and reset at the start of every root request.
// Checks run in a fixed order so each rejection carries a single,
// deterministic violation kind:
//
//  1. depth limit
//  2. circular delegation (before budget/whitelist, so loops are never
//     silently permitted by a generous budget)
//  3. total budget
//  4. whitelist authorization
//
// # Thread Safety
//
// Not safe for concurrent use. A Guardrails instance belongs to exactly one
// request scope, and one root request is processed sequentially.
type Guardrails struct {
	policy   AuthorizationTable
	counters map[string]int
}

// NewGuardrails creates a Guardrails with the given authorization table and
// an empty counter set.
func NewGuardrails(policy AuthorizationTable) *Guardrails {
	if policy == nil {
		policy = AuthorizationTable{}
	}
	return &Guardrails{
		policy:   policy,
		counters: make(map[string]int),
	}
}

// CanDelegate checks whether from may delegate to target at the given chain
// depth. It returns nil when the delegation is allowed, or a typed
// *DelegationError naming the violated rule.
//
// # Inputs
//
//   - from: delegating agent name.
//   - to: target agent name.
//   - currentDepth: hop count of the delegation about to be made (the root
//     request is depth 0).
//   - chain: the active delegation chain, root first. Used for circular
//     detection only; CanDelegate does not mutate it.
//
// # Outputs
//
//   - *DelegationError: nil if allowed; otherwise the first failing check
//     with a descriptive reason naming the limit or whitelist involved.
//
// CanDelegate has no side effects. Counters only move when the registry
// commits the delegation via RecordDelegation, after all checks pass.
func (g *Guardrails) CanDelegate(from, to string, currentDepth int, chain []string) *DelegationError {
	if currentDepth >= MaxDepth {
		return newViolation(KindDepth, from, to,
			fmt.Sprintf("delegation depth %d has reached the maximum of %d", currentDepth, MaxDepth))
	}

	for _, agent := range chain {
		if agent == to {
			return newViolation(KindCircular, from, to,
				fmt.Sprintf("circular delegation: %q is already in the active chain [%s]",
					to, strings.Join(chain, " -> ")))
		}
	}

	if g.TotalDelegations() >= MaxTotalDelegations {
		return newViolation(KindBudget, from, to,
			fmt.Sprintf("request delegation budget of %d exhausted", MaxTotalDelegations))
	}

	if !g.authorized(from, to) {
		return newViolation(KindUnauthorized, from, to,
			fmt.Sprintf("%q is not authorized to delegate to %q (permitted targets: %s)",
				from, to, g.describeTargets(from)))
	}

	return nil
}

// RecordDelegation increments the counter for the ordered (from, to) pair.
// Call only after CanDelegate allowed the delegation.
func (g *Guardrails) RecordDelegation(from, to string) {
	g.counters[pairKey(from, to)]++
}

// Reset clears all counters. Called once per root request before any
// delegation is attempted.
func (g *Guardrails) Reset() {
	g.counters = make(map[string]int)
}

// TotalDelegations returns the number of delegations recorded in the
// current request across all pairs.
func (g *Guardrails) TotalDelegations() int {
	total := 0
	for _, n := range g.counters {
		total += n
	}
	return total
}

// PairCount returns the recorded delegation count for one ordered pair.
func (g *Guardrails) PairCount(from, to string) int {
	return g.counters[pairKey(from, to)]
}

// AllowedTargets returns a sorted copy of the whitelist entry for an agent.
// Unlisted agents get an empty slice.
func (g *Guardrails) AllowedTargets(from string) []string {
	targets := make([]string, len(g.policy[from]))
	copy(targets, g.policy[from])
	sort.Strings(targets)
	return targets
}

func (g *Guardrails) authorized(from, to string) bool {
	for _, allowed := range g.policy[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

func (g *Guardrails) describeTargets(from string) string {
	targets := g.AllowedTargets(from)
	if len(targets) == 0 {
		return "none"
	}
	return strings.Join(targets, ", ")
}

func pairKey(from, to string) string {
	return from + "->" + to
}
