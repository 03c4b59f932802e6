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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanDelegate_AllowsWhitelistedPair(t *testing.T) {
	g := NewGuardrails(DefaultAuthorizationTable())

	verr := g.CanDelegate("Orchestrator_Agent", "SDET_Agent", 0, []string{"Orchestrator_Agent"})
	assert.Nil(t, verr)
}

func TestCanDelegate_RejectsAtMaxDepth(t *testing.T) {
	g := NewGuardrails(DefaultAuthorizationTable())

	verr := g.CanDelegate("SRE_Agent", "Compliance_Agent", MaxDepth, []string{"Orchestrator_Agent", "SDET_Agent", "SRE_Agent"})
	require.NotNil(t, verr)
	assert.Equal(t, KindDepth, verr.Kind)
	assert.Contains(t, verr.Reason, "depth")
}

func TestCanDelegate_RejectsBeyondMaxDepth(t *testing.T) {
	g := NewGuardrails(DefaultAuthorizationTable())

	verr := g.CanDelegate("SRE_Agent", "Compliance_Agent", MaxDepth+2, nil)
	require.NotNil(t, verr)
	assert.Equal(t, KindDepth, verr.Kind)
}

func TestCanDelegate_RejectsCircularDelegation(t *testing.T) {
	g := NewGuardrails(DefaultAuthorizationTable())
	chain := []string{"Orchestrator_Agent", "SDET_Agent"}

	verr := g.CanDelegate("SDET_Agent", "Orchestrator_Agent", 1, chain)
	require.NotNil(t, verr)
	assert.Equal(t, KindCircular, verr.Kind)
	assert.Contains(t, verr.Reason, "circular delegation")
	assert.Contains(t, verr.Reason, "Orchestrator_Agent")
}

func TestCanDelegate_SelfDelegationIsCircular(t *testing.T) {
	g := NewGuardrails(DefaultAuthorizationTable())

	verr := g.CanDelegate("SDET_Agent", "SDET_Agent", 1, []string{"Orchestrator_Agent", "SDET_Agent"})
	require.NotNil(t, verr)
	assert.Equal(t, KindCircular, verr.Kind)
}

func TestCanDelegate_RejectsWhenBudgetExhausted(t *testing.T) {
	g := NewGuardrails(DefaultAuthorizationTable())
	for i := 0; i < MaxTotalDelegations; i++ {
		g.RecordDelegation("Orchestrator_Agent", "SDET_Agent")
	}

	verr := g.CanDelegate("Orchestrator_Agent", "SRE_Agent", 0, []string{"Orchestrator_Agent"})
	require.NotNil(t, verr)
	assert.Equal(t, KindBudget, verr.Kind)
}

func TestCanDelegate_BudgetIsSharedAcrossPairs(t *testing.T) {
	g := NewGuardrails(DefaultAuthorizationTable())
	g.RecordDelegation("Orchestrator_Agent", "SDET_Agent")
	g.RecordDelegation("Orchestrator_Agent", "SRE_Agent")
	g.RecordDelegation("SDET_Agent", "SRE_Agent")
	g.RecordDelegation("SDET_Agent", "Compliance_Agent")
	g.RecordDelegation("SRE_Agent", "Compliance_Agent")

	require.Equal(t, MaxTotalDelegations, g.TotalDelegations())

	verr := g.CanDelegate("Orchestrator_Agent", "Compliance_Agent", 0, []string{"Orchestrator_Agent"})
	require.NotNil(t, verr)
	assert.Equal(t, KindBudget, verr.Kind)
}

func TestCanDelegate_RejectsUnauthorizedTarget(t *testing.T) {
	g := NewGuardrails(DefaultAuthorizationTable())

	// SRE may only reach Compliance.
	verr := g.CanDelegate("SRE_Agent", "SDET_Agent", 1, []string{"Orchestrator_Agent", "SRE_Agent"})
	require.NotNil(t, verr)
	assert.Equal(t, KindUnauthorized, verr.Kind)
	assert.Contains(t, verr.Reason, "Compliance_Agent")
}

func TestCanDelegate_TerminalAgentCannotDelegate(t *testing.T) {
	g := NewGuardrails(DefaultAuthorizationTable())

	verr := g.CanDelegate("Compliance_Agent", "SRE_Agent", 1, []string{"Orchestrator_Agent", "Compliance_Agent"})
	require.NotNil(t, verr)
	assert.Equal(t, KindUnauthorized, verr.Kind)
	assert.Contains(t, verr.Reason, "none")
}

func TestCanDelegate_UnknownAgentIsUnauthorized(t *testing.T) {
	g := NewGuardrails(DefaultAuthorizationTable())

	verr := g.CanDelegate("Rogue_Agent", "SDET_Agent", 0, []string{"Rogue_Agent"})
	require.NotNil(t, verr)
	assert.Equal(t, KindUnauthorized, verr.Kind)
}

func TestCanDelegate_CheckOrderIsDeterministic(t *testing.T) {
	g := NewGuardrails(DefaultAuthorizationTable())

	// Depth wins over everything.
	verr := g.CanDelegate("Compliance_Agent", "Compliance_Agent", MaxDepth, []string{"Compliance_Agent"})
	require.NotNil(t, verr)
	assert.Equal(t, KindDepth, verr.Kind)

	// Circular wins over budget and whitelist: the target is in the chain
	// and also unauthorized, but the circular check fires first.
	for i := 0; i < MaxTotalDelegations; i++ {
		g.RecordDelegation("Orchestrator_Agent", "SDET_Agent")
	}
	verr = g.CanDelegate("SRE_Agent", "SRE_Agent", 1, []string{"SRE_Agent"})
	require.NotNil(t, verr)
	assert.Equal(t, KindCircular, verr.Kind)

	// Budget wins over whitelist.
	verr = g.CanDelegate("SRE_Agent", "SDET_Agent", 1, []string{"SRE_Agent"})
	require.NotNil(t, verr)
	assert.Equal(t, KindBudget, verr.Kind)
}

func TestCanDelegate_HasNoSideEffects(t *testing.T) {
	g := NewGuardrails(DefaultAuthorizationTable())
	chain := []string{"Orchestrator_Agent"}

	for i := 0; i < 50; i++ {
		verr := g.CanDelegate("Orchestrator_Agent", "SDET_Agent", 0, chain)
		assert.Nil(t, verr)
	}
	assert.Equal(t, 0, g.TotalDelegations())
	assert.Equal(t, []string{"Orchestrator_Agent"}, chain)
}

func TestGuardrails_ResetClearsCounters(t *testing.T) {
	g := NewGuardrails(DefaultAuthorizationTable())
	g.RecordDelegation("Orchestrator_Agent", "SDET_Agent")
	g.RecordDelegation("Orchestrator_Agent", "SDET_Agent")
	require.Equal(t, 2, g.PairCount("Orchestrator_Agent", "SDET_Agent"))

	g.Reset()

	assert.Equal(t, 0, g.TotalDelegations())
	assert.Equal(t, 0, g.PairCount("Orchestrator_Agent", "SDET_Agent"))
}

func TestGuardrails_AllowedTargetsSortedCopy(t *testing.T) {
	g := NewGuardrails(AuthorizationTable{
		"A": {"C", "B"},
	})

	targets := g.AllowedTargets("A")
	assert.Equal(t, []string{"B", "C"}, targets)

	// Mutating the copy must not leak into the policy.
	targets[0] = "Z"
	assert.Equal(t, []string{"B", "C"}, g.AllowedTargets("A"))

	assert.Empty(t, g.AllowedTargets("unknown"))
}

func TestCanDelegate_NilPolicyRejectsEverything(t *testing.T) {
	g := NewGuardrails(nil)

	verr := g.CanDelegate("A", "B", 0, []string{"A"})
	require.NotNil(t, verr)
	assert.Equal(t, KindUnauthorized, verr.Kind)
}

func TestDelegationError_Formatting(t *testing.T) {
	err := newViolation(KindDepth, "A", "B", "too deep")
	msg := err.Error()
	assert.True(t, strings.Contains(msg, "A->B"))
	assert.True(t, strings.Contains(msg, string(KindDepth)))

	assert.True(t, IsGuardrailViolation(err))

	derr, ok := IsDelegationError(err)
	require.True(t, ok)
	assert.Equal(t, KindDepth, derr.Kind)
}
