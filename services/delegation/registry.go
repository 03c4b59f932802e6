// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package delegation implements the delegation dispatch-and-safety layer.
//
// This package contains the registry worker agents call to delegate subtasks
// to one another. Every delegation passes the guardrail policy (depth,
// circularity, budget, whitelist) before the target agent is invoked, and
// every delegation is tracked end-to-end: in memory for the live request and
// best-effort in the persistent graph store for later analytics.
//
// State is request-scoped by construction: ResetForNewRequest returns a
// fresh RequestScope owning the guardrail counters and delegation chain, so
// concurrent root requests never share mutable state.
package delegation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianDelegate/pkg/validation"
	"github.com/AleutianAI/AleutianDelegate/services/delegation/datatypes"
	"github.com/AleutianAI/AleutianDelegate/services/delegation/observability"
)

// registryTracer is the OpenTelemetry tracer for registry operations.
var registryTracer = otel.Tracer("aleutian.delegation.registry")

// =============================================================================
// Contracts
// =============================================================================

// Agent is the uniform capability contract every worker agent implements.
//
// The registry treats agent logic as a black box: it hands over a task,
// measures wall-clock duration, and interprets the returned error. No
// automatic retry is performed; side-effect idempotency is not assumed.
type Agent interface {
	// Name returns the unique agent name used for registration, the
	// authorization table, and graph records.
	Name() string

	// Execute performs the task and returns its raw result payload.
	// Implementations must honor ctx cancellation when the registry
	// enforces the per-delegation timeout.
	Execute(ctx context.Context, task datatypes.Task) (map[string]any, error)
}

// GraphStore is the persistence surface the registry and tracker need:
// delegation edge mirroring plus execution records.
type GraphStore interface {
	GraphRecorder

	// RecordExecution persists one agent execution, linked to the agent
	// and grouped by deployment.
	RecordExecution(ctx context.Context, record *datatypes.ExecutionRecord) error
}

// =============================================================================
// Configuration
// =============================================================================

// RegistryConfig holds registry construction options. The zero value gives
// the shipped authorization table, delegation enabled, and the 30s
// per-delegation timeout enforced.
type RegistryConfig struct {
	// Policy is the delegation whitelist. Nil selects
	// DefaultAuthorizationTable().
	Policy AuthorizationTable

	// DeploymentID groups persisted records by release or pipeline run.
	DeploymentID string

	// Disabled turns the delegation subsystem off: every Delegate call
	// fails fast with a disabled error and no side effects.
	Disabled bool

	// DisableTimeout turns off enforcement of the per-delegation
	// timeout, matching the declared-but-unenforced reference behavior.
	// Enforcement is on by default as a deliberate strengthening.
	DisableTimeout bool

	// Timeout overrides DelegationTimeout when positive.
	Timeout time.Duration
}

// =============================================================================
// Registry
// =============================================================================

// Registry is the delegation dispatcher: the entry point worker agents call
// to delegate a task to another agent.
//
// # Description
//
// The registry holds the name-to-agent lookup table and the pieces shared
// by all requests (authorization policy, graph store, configuration).
// Per-request state lives on the RequestScope returned by
// ResetForNewRequest; forgetting to create a fresh scope per root request
// would leak counters and chain state across unrelated requests.
//
// # Thread Safety
//
// Register must complete before serving; after that the registry's own
// fields are read-only and safe for concurrent use. Each RequestScope is
// single-caller sequential.
type Registry struct {
	agents map[string]Agent
	policy AuthorizationTable
	store  GraphStore
	cfg    RegistryConfig

	timeout time.Duration
}

// NewRegistry creates a registry over the given graph store. A nil store is
// permitted and leaves the registry in memory-only mode.
func NewRegistry(store GraphStore, cfg RegistryConfig) *Registry {
	policy := cfg.Policy
	if policy == nil {
		policy = DefaultAuthorizationTable()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DelegationTimeout
	}
	return &Registry{
		agents:  make(map[string]Agent),
		policy:  policy,
		store:   store,
		cfg:     cfg,
		timeout: timeout,
	}
}

// Register adds an agent to the lookup table. Names are validated before
// they can become graph nodes or log fields.
func (r *Registry) Register(agent Agent) error {
	name := agent.Name()
	if err := validation.ValidateAgentName(name); err != nil {
		return err
	}
	if _, exists := r.agents[name]; exists {
		return fmt.Errorf("agent %q is already registered", name)
	}
	r.agents[name] = agent
	return nil
}

// Lookup returns the registered agent by name.
func (r *Registry) Lookup(name string) (Agent, bool) {
	agent, ok := r.agents[name]
	return agent, ok
}

// ResetForNewRequest creates a fresh request scope rooted at rootAgent:
// empty guardrail counters, empty event list, chain seeded with the root.
//
// Call exactly once per independent root request. Calling it again simply
// yields another clean scope; scopes are independent and never share state.
func (r *Registry) ResetForNewRequest(rootAgent string) *RequestScope {
	guardrails := NewGuardrails(r.policy)
	guardrails.Reset()
	tracker := NewTracker(r.store, r.cfg.DeploymentID)
	tracker.StartRequest(rootAgent)
	return &RequestScope{
		registry:   r,
		guardrails: guardrails,
		tracker:    tracker,
	}
}

// =============================================================================
// Request Scope
// =============================================================================

// RequestScope owns the mutable delegation state for one root request: the
// guardrail counters and the tracked chain. It is discarded when the root
// request completes.
type RequestScope struct {
	registry   *Registry
	guardrails *Guardrails
	tracker    *Tracker
}

// Delegate dispatches a task from one agent to another.
//
// # Description
//
// The full dispatch sequence:
//
//  1. Fail fast if delegation is disabled for this registry.
//  2. Evaluate the guardrail policy; a violation surfaces before any
//     counter increment, chain push, or graph write.
//  3. Resolve the target agent.
//  4. Record the pending event (memory + best-effort graph write) and
//     commit the guardrail counter.
//  5. Invoke the target agent, under a context deadline when timeout
//     enforcement is on, measuring wall-clock duration.
//  6. On success, finalize the event and attach delegation metadata to
//     the result. On failure, finalize with the error and return it
//     wrapped as an execution failure with the cause preserved.
//
// The chain entry pushed in step 4 is released by a deferred cleanup that
// runs on every exit path, so a failed delegation never leaves a stale
// chain entry to cause spurious circular rejections later in the request.
//
// # Inputs
//
//   - ctx: caller context; delegation inherits its cancellation.
//   - from: delegating agent name.
//   - to: target agent name.
//   - task: the structured payload; its task type feeds analytics.
//   - depth: hop count of this delegation from the root request.
//
// # Outputs
//
//   - *datatypes.Result: the target's output plus delegated_by, depth,
//     and duration metadata.
//   - error: a *DelegationError of the kind matching the failure.
func (s *RequestScope) Delegate(ctx context.Context, from, to string, task datatypes.Task, depth int) (*datatypes.Result, error) {
	ctx, span := registryTracer.Start(ctx, "Registry.Delegate")
	defer span.End()
	span.SetAttributes(
		attribute.String("delegation.from", from),
		attribute.String("delegation.to", to),
		attribute.String("delegation.task_type", task.Type),
		attribute.Int("delegation.depth", depth),
	)

	reg := s.registry

	if reg.cfg.Disabled {
		err := newViolation(KindDisabled, from, to, "delegation is disabled for this registry")
		span.SetStatus(codes.Error, "delegation disabled")
		observability.RecordRejection(string(KindDisabled))
		return nil, err
	}

	if verr := s.guardrails.CanDelegate(from, to, depth, s.tracker.Chain()); verr != nil {
		span.SetStatus(codes.Error, string(verr.Kind))
		span.SetAttributes(attribute.String("delegation.violation", string(verr.Kind)))
		slog.Info("delegation rejected by guardrails",
			"from", from,
			"to", to,
			"kind", verr.Kind,
			"reason", verr.Reason,
		)
		observability.RecordRejection(string(verr.Kind))
		return nil, verr
	}

	agent, ok := reg.Lookup(to)
	if !ok {
		err := newViolation(KindNotFound, from, to, fmt.Sprintf("agent %q is not registered", to))
		span.SetStatus(codes.Error, "agent not found")
		observability.RecordRejection(string(KindNotFound))
		return nil, err
	}

	event := s.tracker.RecordDelegation(ctx, from, to, task, depth)
	s.guardrails.RecordDelegation(from, to)
	span.SetAttributes(attribute.String("delegation.id", event.DelegationID))

	observability.DelegationStarted()
	defer observability.DelegationEnded()

	// Guaranteed release of the chain entry pushed by RecordDelegation.
	// RecordResult/RecordError pop it on the normal paths; this catches
	// every other exit, including panics in the target agent.
	defer s.tracker.PopIfTop(to)

	execCtx := ctx
	if !reg.cfg.DisableTimeout {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, reg.timeout)
		defer cancel()
	}

	start := time.Now()
	output, execErr := agent.Execute(execCtx, task)
	durationMS := time.Since(start).Milliseconds()

	if execErr != nil {
		status := datatypes.StatusFailed
		if !reg.cfg.DisableTimeout && errors.Is(execErr, context.DeadlineExceeded) {
			status = datatypes.StatusTimeout
		}
		s.tracker.RecordError(ctx, event, status, execErr, durationMS)
		observability.RecordDelegation(from, to, string(status), durationMS)
		span.RecordError(execErr)
		span.SetStatus(codes.Error, "agent execution failed")
		return nil, &DelegationError{
			Kind:   KindExecution,
			From:   from,
			To:     to,
			Reason: fmt.Sprintf("agent %q failed executing task %q", to, task.Type),
			Err:    execErr,
		}
	}

	s.tracker.RecordResult(ctx, event, output, durationMS)
	observability.RecordDelegation(from, to, string(datatypes.StatusSuccess), durationMS)
	s.recordExecution(ctx, to, task.Type, durationMS)

	span.SetAttributes(attribute.Int64("delegation.duration_ms", durationMS))
	return &datatypes.Result{
		Output:      output,
		DelegatedBy: from,
		Depth:       depth,
		DurationMS:  durationMS,
	}, nil
}

// Chain returns a copy of the active delegation chain, root first.
func (s *RequestScope) Chain() []string {
	return s.tracker.Chain()
}

// Guardrails exposes the scope's guardrail state, mainly for diagnostics
// and tests.
func (s *RequestScope) Guardrails() *Guardrails {
	return s.guardrails
}

// Tracker exposes the scope's tracker, mainly for diagnostics and tests.
func (s *RequestScope) Tracker() *Tracker {
	return s.tracker
}

// Summary returns the tracker's diagnostic snapshot for this request.
func (s *RequestScope) Summary() datatypes.ChainSummary {
	return s.tracker.Summary()
}

// recordExecution persists the execution node for a completed delegation.
// Like all tracking writes, it is best-effort.
func (s *RequestScope) recordExecution(ctx context.Context, agentName, taskType string, durationMS int64) {
	if s.registry.store == nil {
		return
	}
	record := datatypes.NewExecutionRecord(agentName, taskType, s.registry.cfg.DeploymentID)
	record.DurationMS = durationMS
	record.Success = true
	if err := s.registry.store.RecordExecution(ctx, record); err != nil {
		slog.Warn("execution record write failed",
			"agent", agentName,
			"execution_id", record.ExecutionID,
			"error", err,
		)
	}
}
