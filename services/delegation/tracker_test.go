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
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianDelegate/services/delegation/datatypes"
)

// mockGraphStore records calls and can be told to fail each operation.
type mockGraphStore struct {
	recorded  []*datatypes.DelegationEvent
	finalized []*datatypes.DelegationEvent
	execs     []*datatypes.ExecutionRecord

	failRecord   bool
	failFinalize bool
	failExec     bool
}

func (m *mockGraphStore) RecordDelegation(_ context.Context, event *datatypes.DelegationEvent) error {
	if m.failRecord {
		return fmt.Errorf("neo4j unavailable")
	}
	m.recorded = append(m.recorded, event)
	return nil
}

func (m *mockGraphStore) FinalizeDelegation(_ context.Context, event *datatypes.DelegationEvent) error {
	if m.failFinalize {
		return fmt.Errorf("neo4j unavailable")
	}
	m.finalized = append(m.finalized, event)
	return nil
}

func (m *mockGraphStore) RecordExecution(_ context.Context, record *datatypes.ExecutionRecord) error {
	if m.failExec {
		return fmt.Errorf("neo4j unavailable")
	}
	m.execs = append(m.execs, record)
	return nil
}

func TestTracker_RecordDelegationPushesChain(t *testing.T) {
	store := &mockGraphStore{}
	tracker := NewTracker(store, "deploy-1")
	tracker.StartRequest("Orchestrator_Agent")

	task := datatypes.Task{Type: "generate_tests"}
	event := tracker.RecordDelegation(context.Background(), "Orchestrator_Agent", "SDET_Agent", task, 0)

	require.NotNil(t, event)
	assert.NotEmpty(t, event.DelegationID)
	assert.Equal(t, datatypes.StatusPending, event.Status)
	assert.Equal(t, "deploy-1", event.DeploymentID)
	assert.Equal(t, []string{"Orchestrator_Agent", "SDET_Agent"}, tracker.Chain())
	require.Len(t, store.recorded, 1)
	assert.Same(t, event, store.recorded[0])
	assert.False(t, tracker.DurabilityDegraded())
}

func TestTracker_RecordResultPopsChainAndFinalizes(t *testing.T) {
	store := &mockGraphStore{}
	tracker := NewTracker(store, "")
	tracker.StartRequest("Orchestrator_Agent")

	event := tracker.RecordDelegation(context.Background(), "Orchestrator_Agent", "SDET_Agent", datatypes.Task{Type: "t"}, 0)
	tracker.RecordResult(context.Background(), event, map[string]any{"ok": true}, 120)

	assert.Equal(t, datatypes.StatusSuccess, event.Status)
	assert.Equal(t, int64(120), event.DurationMS)
	assert.True(t, event.Terminal())
	assert.Equal(t, []string{"Orchestrator_Agent"}, tracker.Chain())
	require.Len(t, store.finalized, 1)
}

func TestTracker_RecordErrorMarksTerminalStatus(t *testing.T) {
	store := &mockGraphStore{}
	tracker := NewTracker(store, "")
	tracker.StartRequest("Orchestrator_Agent")

	event := tracker.RecordDelegation(context.Background(), "Orchestrator_Agent", "SDET_Agent", datatypes.Task{Type: "t"}, 0)
	tracker.RecordError(context.Background(), event, datatypes.StatusTimeout, fmt.Errorf("deadline exceeded"), 30000)

	assert.Equal(t, datatypes.StatusTimeout, event.Status)
	assert.Equal(t, "deadline exceeded", event.ErrorMessage)
	assert.Equal(t, []string{"Orchestrator_Agent"}, tracker.Chain())
}

func TestTracker_MirrorFailureDegradesButContinues(t *testing.T) {
	store := &mockGraphStore{failRecord: true, failFinalize: true}
	tracker := NewTracker(store, "")
	tracker.StartRequest("Orchestrator_Agent")

	event := tracker.RecordDelegation(context.Background(), "Orchestrator_Agent", "SDET_Agent", datatypes.Task{Type: "t"}, 0)

	// The in-memory chain and event list are authoritative regardless.
	assert.True(t, tracker.DurabilityDegraded())
	assert.Equal(t, []string{"Orchestrator_Agent", "SDET_Agent"}, tracker.Chain())
	require.Len(t, tracker.Events(), 1)

	tracker.RecordResult(context.Background(), event, nil, 10)
	assert.Equal(t, datatypes.StatusSuccess, event.Status)
	assert.True(t, tracker.DurabilityDegraded())
}

func TestTracker_NilStoreIsMemoryOnly(t *testing.T) {
	tracker := NewTracker(nil, "")
	tracker.StartRequest("Orchestrator_Agent")

	event := tracker.RecordDelegation(context.Background(), "Orchestrator_Agent", "SDET_Agent", datatypes.Task{Type: "t"}, 0)
	tracker.RecordResult(context.Background(), event, nil, 1)

	assert.False(t, tracker.DurabilityDegraded())
	assert.Len(t, tracker.Events(), 1)
}

func TestTracker_PopIfTopIgnoresNonMatchingTop(t *testing.T) {
	tracker := NewTracker(nil, "")
	tracker.StartRequest("A")
	tracker.RecordDelegation(context.Background(), "A", "B", datatypes.Task{Type: "t"}, 0)
	tracker.RecordDelegation(context.Background(), "B", "C", datatypes.Task{Type: "t"}, 1)

	assert.False(t, tracker.PopIfTop("B"))
	assert.Equal(t, []string{"A", "B", "C"}, tracker.Chain())

	assert.True(t, tracker.PopIfTop("C"))
	assert.True(t, tracker.PopIfTop("B"))
	assert.False(t, tracker.PopIfTop("B"))
	assert.Equal(t, []string{"A"}, tracker.Chain())
}

func TestTracker_StartRequestClearsPreviousState(t *testing.T) {
	store := &mockGraphStore{failRecord: true}
	tracker := NewTracker(store, "")
	tracker.StartRequest("A")
	tracker.RecordDelegation(context.Background(), "A", "B", datatypes.Task{Type: "t"}, 0)
	require.True(t, tracker.DurabilityDegraded())

	tracker.StartRequest("X")

	assert.Equal(t, []string{"X"}, tracker.Chain())
	assert.Empty(t, tracker.Events())
	assert.False(t, tracker.DurabilityDegraded())
}

func TestTracker_Summary(t *testing.T) {
	tracker := NewTracker(nil, "")
	tracker.StartRequest("Orchestrator_Agent")

	e1 := tracker.RecordDelegation(context.Background(), "Orchestrator_Agent", "SDET_Agent", datatypes.Task{Type: "t"}, 0)
	e2 := tracker.RecordDelegation(context.Background(), "SDET_Agent", "SRE_Agent", datatypes.Task{Type: "t"}, 1)
	tracker.RecordError(context.Background(), e2, datatypes.StatusFailed, fmt.Errorf("boom"), 40)
	tracker.RecordResult(context.Background(), e1, nil, 100)

	summary := tracker.Summary()
	assert.Equal(t, "Orchestrator_Agent", summary.RootAgent)
	assert.Equal(t, 2, summary.TotalDelegations)
	assert.Equal(t, 1, summary.Successful)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.MaxDepth)
	assert.Equal(t, int64(140), summary.TotalDurationMS)
	assert.False(t, summary.DurabilityDegraded)
	assert.Equal(t, "Orchestrator_Agent", summary.ChainTree)
}
