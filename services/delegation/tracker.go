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
	"log/slog"

	"github.com/AleutianAI/AleutianDelegate/services/delegation/datatypes"
	"github.com/AleutianAI/AleutianDelegate/services/delegation/observability"
)

// =============================================================================
// Graph Recorder Contract
// =============================================================================

// GraphRecorder is the durable mirror for delegation events. The persistent
// graph store implements it; the tracker only needs these two operations.
//
// Both writes are best-effort from the tracker's point of view: a recorder
// failure is logged and flagged, never propagated, because durability is
// advisory observability and must not change the outcome of a live request.
type GraphRecorder interface {
	// RecordDelegation persists a pending delegation edge.
	RecordDelegation(ctx context.Context, event *datatypes.DelegationEvent) error

	// FinalizeDelegation updates the edge matched by delegation id with
	// its terminal status, duration, and result or error message.
	FinalizeDelegation(ctx context.Context, event *datatypes.DelegationEvent) error
}

// =============================================================================
// Tracker
// =============================================================================

// Tracker maintains the live delegation chain and event list for one root
// request, mirroring every event into the graph store.
//
// # Description
//
// The tracker owns two pieces of request-scoped state: the ordered chain of
// agent names currently on the call path (used for circular detection and
// diagnostics) and the append-only list of delegation events. Every state
// change is mirrored to the GraphRecorder; a mirror failure flips the
// durability-degraded flag and the request continues on memory alone.
//
// # Thread Safety
//
// Not safe for concurrent use. A Tracker belongs to exactly one request
// scope, and one root request is processed sequentially.
type Tracker struct {
	store        GraphRecorder
	deploymentID string

	rootAgent string
	chain     []string
	events    []*datatypes.DelegationEvent
	degraded  bool
}

// NewTracker creates a tracker mirroring into store. A nil store disables
// mirroring entirely (memory-only mode, used in tests and degraded boots).
func NewTracker(store GraphRecorder, deploymentID string) *Tracker {
	return &Tracker{
		store:        store,
		deploymentID: deploymentID,
	}
}

// StartRequest clears all request state and seeds the chain with the root
// agent. Must be called once per independent root request.
func (t *Tracker) StartRequest(rootAgent string) {
	t.rootAgent = rootAgent
	t.chain = []string{rootAgent}
	t.events = nil
	t.degraded = false
}

// RecordDelegation appends a pending event, pushes the target onto the
// chain, and issues a best-effort graph write.
func (t *Tracker) RecordDelegation(ctx context.Context, from, to string, task datatypes.Task, depth int) *datatypes.DelegationEvent {
	event := datatypes.NewDelegationEvent(from, to, task, depth, t.deploymentID)
	t.events = append(t.events, event)
	t.chain = append(t.chain, to)

	if t.store != nil {
		if err := t.store.RecordDelegation(ctx, event); err != nil {
			t.degraded = true
			observability.RecordGraphWriteFailure("record")
			slog.Warn("graph store write failed, continuing in-memory",
				"delegation_id", event.DelegationID,
				"from", from,
				"to", to,
				"error", err,
			)
		}
	}

	return event
}

// RecordResult finalizes the event as successful, pops the chain, and
// issues a best-effort graph update.
func (t *Tracker) RecordResult(ctx context.Context, event *datatypes.DelegationEvent, result map[string]any, durationMS int64) {
	event.Status = datatypes.StatusSuccess
	event.Result = result
	event.DurationMS = durationMS
	t.popIfTop(event.ToAgent)
	t.finalize(ctx, event)
}

// RecordError finalizes the event with the given terminal status (failed or
// timeout), pops the chain, and issues a best-effort graph update.
func (t *Tracker) RecordError(ctx context.Context, event *datatypes.DelegationEvent, status datatypes.DelegationStatus, execErr error, durationMS int64) {
	event.Status = status
	event.ErrorMessage = execErr.Error()
	event.DurationMS = durationMS
	t.popIfTop(event.ToAgent)
	t.finalize(ctx, event)
}

// Chain returns a copy of the active delegation chain, root first.
func (t *Tracker) Chain() []string {
	chain := make([]string, len(t.chain))
	copy(chain, t.chain)
	return chain
}

// PopIfTop removes the top chain entry if it equals agent. It tolerates a
// chain already mutated by a nested failure: a non-matching top is left
// untouched. Returns whether a pop happened.
func (t *Tracker) PopIfTop(agent string) bool {
	return t.popIfTop(agent)
}

// DurabilityDegraded reports whether any graph mirror write failed during
// the current request.
func (t *Tracker) DurabilityDegraded() bool {
	return t.degraded
}

// Events returns the recorded events for the current request, oldest first.
// The returned slice must not be mutated.
func (t *Tracker) Events() []*datatypes.DelegationEvent {
	return t.events
}

// Summary produces the diagnostic snapshot for the current request.
func (t *Tracker) Summary() datatypes.ChainSummary {
	summary := datatypes.ChainSummary{
		RootAgent:          t.rootAgent,
		TotalDelegations:   len(t.events),
		DurabilityDegraded: t.degraded,
		ChainTree:          datatypes.RenderChainTree(t.chain),
	}
	for _, event := range t.events {
		switch event.Status {
		case datatypes.StatusSuccess:
			summary.Successful++
		case datatypes.StatusFailed, datatypes.StatusTimeout:
			summary.Failed++
		}
		if event.Depth > summary.MaxDepth {
			summary.MaxDepth = event.Depth
		}
		summary.TotalDurationMS += event.DurationMS
	}
	return summary
}

func (t *Tracker) popIfTop(agent string) bool {
	if len(t.chain) == 0 || t.chain[len(t.chain)-1] != agent {
		return false
	}
	t.chain = t.chain[:len(t.chain)-1]
	return true
}

func (t *Tracker) finalize(ctx context.Context, event *datatypes.DelegationEvent) {
	if t.store == nil {
		return
	}
	if err := t.store.FinalizeDelegation(ctx, event); err != nil {
		t.degraded = true
		observability.RecordGraphWriteFailure("finalize")
		slog.Warn("graph store update failed, continuing in-memory",
			"delegation_id", event.DelegationID,
			"status", event.Status,
			"error", err,
		)
	}
}
