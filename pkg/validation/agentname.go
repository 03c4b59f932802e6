// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation utilities for security-critical operations.
//
// This package contains validators for user-provided inputs that are used in
// database queries, file paths, or subprocess calls. Using these validators
// prevents injection attacks and keeps identifier vocabularies closed.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// agentNamePattern matches valid agent names.
// Allows: letters, digits, underscores, hyphens; must start with a letter.
// Max length: 64 characters.
var agentNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_\-]{0,63}$`)

// ValidateAgentName validates an agent name before it reaches graph queries
// or log output.
//
// Agent names travel into Cypher as parameters, which already blocks
// injection; this validator additionally keeps the identifier vocabulary
// sane so a typo or a hostile path segment never becomes a graph node.
//
// Valid names:
//   - 1-64 characters
//   - Letters, digits, underscores, hyphens
//   - Must start with a letter
//
// Example:
//
//	if err := validation.ValidateAgentName(name); err != nil {
//	    return nil, fmt.Errorf("invalid agent name: %w", err)
//	}
func ValidateAgentName(name string) error {
	if name == "" {
		return fmt.Errorf("agent name cannot be empty")
	}

	if !agentNamePattern.MatchString(name) {
		return fmt.Errorf("invalid agent name: %q (must be 1-64 chars, letters, digits, underscores, or hyphens, starting with a letter)", name)
	}

	return nil
}

// ValidateAgentNames validates multiple agent names.
// Returns an error listing all invalid names if any fail validation.
func ValidateAgentNames(names []string) error {
	var invalid []string
	for _, name := range names {
		if err := ValidateAgentName(name); err != nil {
			invalid = append(invalid, name)
		}
	}

	if len(invalid) > 0 {
		return fmt.Errorf("invalid agent names: %v", invalid)
	}
	return nil
}

// SanitizeAgentName trims surrounding whitespace and validates the result.
// Returns the trimmed name if valid, or an error if invalid.
func SanitizeAgentName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if err := ValidateAgentName(trimmed); err != nil {
		return "", err
	}
	return trimmed, nil
}
