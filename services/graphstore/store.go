// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package graphstore persists delegation history in Neo4j and mines it.
//
// # Description
//
// The store keeps a durable record of agents, delegations, and executions:
//
//   - (:Agent {name})            one node per agent, upserted on first
//     reference, with running counters
//   - (:Agent)-[:DELEGATES_TO]->(:Agent)   one relationship per delegation
//     event (a multigraph), carrying id, task type, depth, status,
//     duration, result, and deployment id
//   - (:Agent)-[:PERFORMED]->(:Execution)  one node per agent execution
//   - (:Deployment {id})         groups records by release or pipeline run
//
// On top of that schema it exposes the analytics catalogue: load ranking,
// chain and cycle detection, pair success rates, bottlenecks, target
// recommendation, failure-risk prediction, optimal paths, cost
// optimization, and trends. Every query is a parameterized Cypher builder
// (see queries.go) with a typed result struct, and every query tolerates an
// empty graph by returning an empty or neutral result.
//
// # Concurrency
//
// The underlying driver is shared and safe for concurrent use. Each
// operation acquires a short-lived session that is released on exit; no
// cross-request transaction is ever held open.
package graphstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianDelegate/services/delegation/datatypes"
)

// storeTracer is the OpenTelemetry tracer for graph store operations.
var storeTracer = otel.Tracer("aleutian.graphstore")

// =============================================================================
// Configuration
// =============================================================================

// Config holds the Bolt connection settings for the graph database.
//
// Environment mapping (applied by the cmd layer):
//
//   - NEO4J_URI       default "bolt://localhost:7687"
//   - NEO4J_USER      default "neo4j"
//   - NEO4J_PASSWORD  default "" (local auth-disabled instances)
//   - NEO4J_DATABASE  default "neo4j"
type Config struct {
	URI      string
	Username string
	Password string
	Database string
}

// EnsureDefaults fills unset fields with the documented defaults.
func (c *Config) EnsureDefaults() {
	if c.URI == "" {
		c.URI = "bolt://localhost:7687"
	}
	if c.Username == "" {
		c.Username = "neo4j"
	}
	if c.Database == "" {
		c.Database = "neo4j"
	}
}

// =============================================================================
// Store
// =============================================================================

// Store is the persistent graph store over a Neo4j Bolt connection.
type Store struct {
	driver   neo4j.DriverWithContext
	database string
}

// NewStore connects to the graph database and verifies connectivity.
//
// # Inputs
//
//   - ctx: used for the connectivity probe.
//   - cfg: connection settings; unset fields get defaults.
//
// # Outputs
//
//   - *Store: ready for use. Callers must Close it on shutdown.
//   - error: non-nil if the driver could not be created or the database
//     is unreachable.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	cfg.EnsureDefaults()

	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("verify neo4j connectivity: %w", err)
	}

	slog.Info("connected to graph store", "uri", cfg.URI, "database", cfg.Database)
	return &Store{driver: driver, database: cfg.Database}, nil
}

// Close releases the underlying driver.
func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

// InitSchema creates the unique constraints and indexes the analytics
// queries rely on. All statements are idempotent (IF NOT EXISTS).
func (s *Store) InitSchema(ctx context.Context) error {
	ctx, span := storeTracer.Start(ctx, "Store.InitSchema")
	defer span.End()

	session := s.newSession(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	for _, stmt := range schemaStatements() {
		if _, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			result, err := tx.Run(ctx, stmt, nil)
			if err != nil {
				return nil, err
			}
			return result.Consume(ctx)
		}); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "schema statement failed")
			return fmt.Errorf("apply schema statement: %w", err)
		}
	}
	slog.Info("graph schema initialized", "statements", len(schemaStatements()))
	return nil
}

// =============================================================================
// Write Operations
// =============================================================================

// RecordDelegation persists a pending delegation edge, upserting both agent
// nodes and bumping their running counters.
func (s *Store) RecordDelegation(ctx context.Context, event *datatypes.DelegationEvent) error {
	ctx, span := storeTracer.Start(ctx, "Store.RecordDelegation")
	defer span.End()
	span.SetAttributes(
		attribute.String("delegation.id", event.DelegationID),
		attribute.String("delegation.from", event.FromAgent),
		attribute.String("delegation.to", event.ToAgent),
	)

	taskJSON, err := json.Marshal(event.Task)
	if err != nil {
		return fmt.Errorf("marshal task payload: %w", err)
	}

	queries := []CypherQuery{recordDelegationQuery(event, string(taskJSON))}
	if event.DeploymentID != "" {
		queries = append(queries, mergeDeploymentQuery(event.DeploymentID))
	}
	if err := s.write(ctx, queries...); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delegation write failed")
		return err
	}
	return nil
}

// FinalizeDelegation updates the edge matched by delegation id with its
// terminal status. Edges are updated exactly once; the tracker never
// finalizes the same event twice.
func (s *Store) FinalizeDelegation(ctx context.Context, event *datatypes.DelegationEvent) error {
	ctx, span := storeTracer.Start(ctx, "Store.FinalizeDelegation")
	defer span.End()
	span.SetAttributes(
		attribute.String("delegation.id", event.DelegationID),
		attribute.String("delegation.status", string(event.Status)),
	)

	resultJSON := ""
	if event.Result != nil {
		raw, err := json.Marshal(event.Result)
		if err != nil {
			return fmt.Errorf("marshal result payload: %w", err)
		}
		resultJSON = string(raw)
	}
	if err := s.write(ctx, finalizeDelegationQuery(event, resultJSON)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delegation finalize failed")
		return err
	}
	return nil
}

// RecordExecution persists one agent execution node and links it to the
// performing agent (and its deployment, when set).
func (s *Store) RecordExecution(ctx context.Context, record *datatypes.ExecutionRecord) error {
	ctx, span := storeTracer.Start(ctx, "Store.RecordExecution")
	defer span.End()
	span.SetAttributes(
		attribute.String("execution.id", record.ExecutionID),
		attribute.String("execution.agent", record.AgentName),
	)

	queries := []CypherQuery{recordExecutionQuery(record)}
	if record.DeploymentID != "" {
		queries = append(queries, mergeDeploymentQuery(record.DeploymentID))
	}
	if err := s.write(ctx, queries...); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "execution write failed")
		return err
	}
	return nil
}

// ClearAll destroys every node and relationship in the database.
//
// This is the administrative reset for test environments. It is wired only
// to the admin route group and the delegatectl CLI; nothing on the
// delegation flow can reach it.
func (s *Store) ClearAll(ctx context.Context) error {
	ctx, span := storeTracer.Start(ctx, "Store.ClearAll")
	defer span.End()

	slog.Warn("clearing all graph store data")
	if err := s.write(ctx, clearAllQuery()); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "clear failed")
		return err
	}
	return nil
}

// =============================================================================
// Session Helpers
// =============================================================================

func (s *Store) newSession(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: s.database,
		AccessMode:   mode,
	})
}

// write runs the given statements in one managed write transaction on a
// short-lived session.
func (s *Store) write(ctx context.Context, queries ...CypherQuery) error {
	session := s.newSession(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, q := range queries {
			result, err := tx.Run(ctx, q.Text, q.Params)
			if err != nil {
				return nil, err
			}
			if _, err := result.Consume(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}

// readRecords runs one read query on a short-lived session and collects all
// records.
func (s *Store) readRecords(ctx context.Context, q CypherQuery) ([]*neo4j.Record, error) {
	session := s.newSession(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	records, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, q.Text, q.Params)
		if err != nil {
			return nil, err
		}
		return result.Collect(ctx)
	})
	if err != nil {
		return nil, err
	}
	return records.([]*neo4j.Record), nil
}

// =============================================================================
// Record Extraction Helpers
// =============================================================================

// recordString extracts a string field, defaulting to "".
func recordString(record *neo4j.Record, key string) string {
	value, ok := record.Get(key)
	if !ok || value == nil {
		return ""
	}
	s, _ := value.(string)
	return s
}

// recordInt extracts an integer field, defaulting to 0. Neo4j returns
// integers as int64.
func recordInt(record *neo4j.Record, key string) int64 {
	value, ok := record.Get(key)
	if !ok || value == nil {
		return 0
	}
	switch v := value.(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	default:
		return 0
	}
}

// recordFloat extracts a float field, defaulting to 0. Aggregates such as
// avg() come back as float64, counts as int64.
func recordFloat(record *neo4j.Record, key string) float64 {
	value, ok := record.Get(key)
	if !ok || value == nil {
		return 0
	}
	switch v := value.(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	default:
		return 0
	}
}

// recordStringList extracts a list-of-strings field.
func recordStringList(record *neo4j.Record, key string) []string {
	value, ok := record.Get(key)
	if !ok || value == nil {
		return nil
	}
	raw, ok := value.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
