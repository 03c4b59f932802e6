// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// delegationValidate is the shared validator instance for request types.
var delegationValidate = validator.New()

// =============================================================================
// Recommendation Requests
// =============================================================================

// TargetRecommendationRequest asks the graph store for the best historical
// delegation target for a (source agent, task type) pair.
type TargetRecommendationRequest struct {
	// RequestID uniquely identifies this request for tracing.
	RequestID string `json:"request_id,omitempty"`

	// FromAgent is the delegating agent's name.
	FromAgent string `json:"from_agent" validate:"required"`

	// TaskType filters history to one category of work.
	TaskType string `json:"task_type" validate:"required"`

	// MaxDurationMS is the acceptable duration ceiling for historical
	// edges considered by the scoring query. Default: 5000.
	MaxDurationMS int64 `json:"max_duration_ms" validate:"gte=0"`

	// MinSuccessCount is the minimum number of successful historical
	// delegations a target needs to be considered. Default: 3.
	MinSuccessCount int `json:"min_success_count" validate:"gte=0"`

	// Timestamp is when the request was created (Unix ms).
	Timestamp int64 `json:"timestamp,omitempty"`
}

// Validate validates the request using go-playground/validator tags.
func (r *TargetRecommendationRequest) Validate() error {
	return delegationValidate.Struct(r)
}

// EnsureDefaults populates identifiers and query defaults.
func (r *TargetRecommendationRequest) EnsureDefaults() {
	if r.RequestID == "" {
		r.RequestID = uuid.New().String()
	}
	if r.Timestamp == 0 {
		r.Timestamp = time.Now().UnixMilli()
	}
	if r.MaxDurationMS == 0 {
		r.MaxDurationMS = 5000
	}
	if r.MinSuccessCount == 0 {
		r.MinSuccessCount = 3
	}
}

// HybridRecommendationRequest asks the synthesizer for ranked delegation
// recommendations combining semantic insights with graph history.
type HybridRecommendationRequest struct {
	RequestID string `json:"request_id,omitempty"`

	// AgentType identifies the requesting agent's role, used to scope
	// the semantic retrieval.
	AgentType string `json:"agent_type" validate:"required"`

	// Context is the current task context handed to the semantic
	// retrieval collaborator.
	Context map[string]any `json:"context" validate:"required"`

	// TaskType optionally narrows the structural graph query. When empty
	// the structural side is scoped by the execution ids semantic
	// retrieval surfaces, or covers all task types when none are.
	TaskType string `json:"task_type,omitempty"`

	Timestamp int64 `json:"timestamp,omitempty"`
}

// Validate validates the request using go-playground/validator tags.
func (r *HybridRecommendationRequest) Validate() error {
	return delegationValidate.Struct(r)
}

// EnsureDefaults populates identifiers.
func (r *HybridRecommendationRequest) EnsureDefaults() {
	if r.RequestID == "" {
		r.RequestID = uuid.New().String()
	}
	if r.Timestamp == 0 {
		r.Timestamp = time.Now().UnixMilli()
	}
}

// =============================================================================
// Risk Request
// =============================================================================

// RiskRequest asks for a failure-risk prediction for a specific
// (from, to, task type) delegation triple.
type RiskRequest struct {
	RequestID string `json:"request_id,omitempty"`
	FromAgent string `json:"from_agent" validate:"required"`
	ToAgent   string `json:"to_agent" validate:"required"`
	TaskType  string `json:"task_type" validate:"required"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// Validate validates the request using go-playground/validator tags.
func (r *RiskRequest) Validate() error {
	return delegationValidate.Struct(r)
}

// EnsureDefaults populates identifiers.
func (r *RiskRequest) EnsureDefaults() {
	if r.RequestID == "" {
		r.RequestID = uuid.New().String()
	}
	if r.Timestamp == 0 {
		r.Timestamp = time.Now().UnixMilli()
	}
}
