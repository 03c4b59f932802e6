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
	"errors"
	"fmt"
)

// =============================================================================
// Error Taxonomy
// =============================================================================

// ViolationKind categorizes why a delegation was rejected or failed.
//
// All delegation failures belong to a single family (*DelegationError) so
// callers can match the family with errors.As and then branch on the kind.
type ViolationKind string

const (
	// KindDepth: the chain is at or beyond MaxDepth.
	KindDepth ViolationKind = "depth_violation"

	// KindCircular: the target already appears in the active chain.
	KindCircular ViolationKind = "circular_violation"

	// KindBudget: the request has used its total delegation budget.
	KindBudget ViolationKind = "budget_violation"

	// KindUnauthorized: the target is not in the source's whitelist.
	KindUnauthorized ViolationKind = "authorization_violation"

	// KindNotFound: the target agent is not registered.
	KindNotFound ViolationKind = "agent_not_found"

	// KindDisabled: delegation is turned off for this registry.
	KindDisabled ViolationKind = "delegation_disabled"

	// KindExecution: the target agent's own logic failed; the original
	// error is preserved as the cause.
	KindExecution ViolationKind = "execution_failure"
)

// DelegationError is the single error family for delegation failures.
//
// # Description
//
// Guardrail violations, lookup failures, and wrapped execution failures all
// surface as *DelegationError. Reason carries a descriptive, user-visible
// explanation naming the specific limit or whitelist entry involved, not
// just a generic "denied".
//
// # Example
//
//	_, err := reg.Delegate(ctx, req, "A", "B", task, 0)
//	var derr *delegation.DelegationError
//	if errors.As(err, &derr) && derr.Kind == delegation.KindCircular {
//	    // handle loop rejection
//	}
type DelegationError struct {
	Kind   ViolationKind
	From   string
	To     string
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *DelegationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("delegation %s->%s: %s: %s: %v", e.From, e.To, e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("delegation %s->%s: %s: %s", e.From, e.To, e.Kind, e.Reason)
}

// Unwrap exposes the cause for errors.Is / errors.As chains.
func (e *DelegationError) Unwrap() error {
	return e.Err
}

// newViolation builds a guardrail or dispatch error with no cause.
func newViolation(kind ViolationKind, from, to, reason string) *DelegationError {
	return &DelegationError{Kind: kind, From: from, To: to, Reason: reason}
}

// IsDelegationError reports whether err belongs to the delegation error
// family, returning the typed error when it does.
func IsDelegationError(err error) (*DelegationError, bool) {
	var derr *DelegationError
	if errors.As(err, &derr) {
		return derr, true
	}
	return nil, false
}

// IsGuardrailViolation reports whether err is a rejection by the guardrail
// policy (depth, circular, budget, or authorization), as opposed to a
// dispatch or execution failure.
func IsGuardrailViolation(err error) bool {
	derr, ok := IsDelegationError(err)
	if !ok {
		return false
	}
	switch derr.Kind {
	case KindDepth, KindCircular, KindBudget, KindUnauthorized:
		return true
	default:
		return false
	}
}
