// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes defines the shared data model for the delegation service.
//
// Types here are plain data carriers used across the registry, tracker,
// graph store, and HTTP layer. They carry no business logic beyond
// validation and default population.
package datatypes

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Delegation Status
// =============================================================================

// DelegationStatus is the lifecycle state of a single delegation edge.
type DelegationStatus string

const (
	// StatusPending marks a delegation that has been dispatched but whose
	// target agent has not yet returned.
	StatusPending DelegationStatus = "pending"

	// StatusSuccess marks a delegation whose target agent returned normally.
	StatusSuccess DelegationStatus = "success"

	// StatusFailed marks a delegation whose target agent returned an error.
	StatusFailed DelegationStatus = "failed"

	// StatusTimeout marks a delegation cancelled by the per-delegation
	// timeout before the target agent returned.
	StatusTimeout DelegationStatus = "timeout"
)

// =============================================================================
// Task and Result
// =============================================================================

// Task is the opaque structured payload handed from one agent to another.
//
// The Type field is required: analytics queries group historical delegations
// by task type, so an untyped task would be invisible to the recommendation
// and risk engines.
type Task struct {
	// Type categorizes the work, e.g. "generate_tests", "analyze_failure".
	Type string `json:"task_type"`

	// Payload carries task-specific parameters. Opaque to this layer.
	Payload map[string]any `json:"payload,omitempty"`
}

// Validate checks that the task carries the mandatory task type.
func (t Task) Validate() error {
	if strings.TrimSpace(t.Type) == "" {
		return fmt.Errorf("task_type is required")
	}
	return nil
}

// Result is the outcome of a delegated task, returned to the caller with
// delegation metadata attached by the registry.
type Result struct {
	// Output is the target agent's raw result payload. Opaque to this layer.
	Output map[string]any `json:"output,omitempty"`

	// DelegatedBy is the name of the agent that requested the work.
	DelegatedBy string `json:"delegated_by"`

	// Depth is the hop count from the root request at which this
	// delegation executed.
	Depth int `json:"delegation_depth"`

	// DurationMS is the wall-clock execution time of the target agent.
	DurationMS int64 `json:"duration_ms"`
}

// =============================================================================
// Delegation Event
// =============================================================================

// DelegationEvent is one tracked delegation: a directed, timestamped fact
// that agent From handed Task to agent To.
//
// An event is created with StatusPending when the delegation starts and is
// finalized exactly once (success, failed, or timeout); it is immutable
// afterwards. Multiple events may exist between the same pair of agents,
// one per delegation - the history forms a multigraph.
type DelegationEvent struct {
	DelegationID string           `json:"delegation_id"`
	FromAgent    string           `json:"from_agent"`
	ToAgent      string           `json:"to_agent"`
	Task         Task             `json:"task"`
	Depth        int              `json:"depth"`
	Status       DelegationStatus `json:"status"`
	Timestamp    time.Time        `json:"timestamp"`
	DurationMS   int64            `json:"duration_ms"`
	Result       map[string]any   `json:"result,omitempty"`
	ErrorMessage string           `json:"error_message,omitempty"`
	DeploymentID string           `json:"deployment_id,omitempty"`
}

// NewDelegationEvent creates a pending event with a fresh delegation id.
func NewDelegationEvent(from, to string, task Task, depth int, deploymentID string) *DelegationEvent {
	return &DelegationEvent{
		DelegationID: uuid.New().String(),
		FromAgent:    from,
		ToAgent:      to,
		Task:         task,
		Depth:        depth,
		Status:       StatusPending,
		Timestamp:    time.Now().UTC(),
		DeploymentID: deploymentID,
	}
}

// Terminal reports whether the event has reached a final status.
func (e *DelegationEvent) Terminal() bool {
	return e.Status != StatusPending
}

// =============================================================================
// Execution Record
// =============================================================================

// ExecutionRecord captures one agent actually performing work, independent
// of whether that work arrived via a delegation.
type ExecutionRecord struct {
	ExecutionID  string    `json:"execution_id"`
	AgentName    string    `json:"agent_name"`
	TaskType     string    `json:"task_type"`
	Timestamp    time.Time `json:"timestamp"`
	DurationMS   int64     `json:"duration_ms"`
	Success      bool      `json:"success"`
	DeploymentID string    `json:"deployment_id,omitempty"`
}

// NewExecutionRecord creates an execution record with a fresh id.
func NewExecutionRecord(agentName, taskType string, deploymentID string) *ExecutionRecord {
	return &ExecutionRecord{
		ExecutionID:  uuid.New().String(),
		AgentName:    agentName,
		TaskType:     taskType,
		Timestamp:    time.Now().UTC(),
		DeploymentID: deploymentID,
	}
}

// =============================================================================
// Chain Summary
// =============================================================================

// ChainSummary is a diagnostic snapshot of one root request's delegation
// activity, produced by the tracker.
type ChainSummary struct {
	RootAgent          string `json:"root_agent"`
	TotalDelegations   int    `json:"total_delegations"`
	Successful         int    `json:"successful"`
	Failed             int    `json:"failed"`
	MaxDepth           int    `json:"max_depth"`
	TotalDurationMS    int64  `json:"total_duration_ms"`
	DurabilityDegraded bool   `json:"durability_degraded"`

	// ChainTree is a human-readable indented rendering of the delegation
	// chain, for logs and diagnostics only.
	ChainTree string `json:"chain_tree"`
}

// RenderChainTree formats a delegation chain as an indented tree.
//
// Each hop is indented two spaces deeper than its caller:
//
//	Orchestrator_Agent
//	  SDET_Agent
//	    SRE_Agent
func RenderChainTree(chain []string) string {
	var sb strings.Builder
	for i, agent := range chain {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(strings.Repeat("  ", i))
		sb.WriteString(agent)
	}
	return sb.String()
}
