// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graphstore

import (
	"fmt"
	"strings"

	"github.com/AleutianAI/AleutianDelegate/services/delegation/datatypes"
)

// CypherQuery pairs a Cypher statement with its parameter map. Builders
// return these so statement shape can be unit tested without a database.
//
// All user-supplied values travel as parameters. The only values ever
// interpolated into statement text are internally validated non-string
// knobs (variable-length pattern bounds, which Cypher cannot parameterize)
// and granularity units checked against a closed set.
type CypherQuery struct {
	Text   string
	Params map[string]any
}

// maxChainHops caps variable-length path expansion. Delegation depth is
// policy-limited to 3, so 6 hops already covers any chain the dispatcher
// can produce, with headroom for externally ingested history.
const maxChainHops = 6

// clampHops bounds a caller-supplied hop count into [1, maxChainHops].
func clampHops(hops int) int {
	if hops < 1 {
		return 1
	}
	if hops > maxChainHops {
		return maxChainHops
	}
	return hops
}

// =============================================================================
// Schema
// =============================================================================

// schemaStatements returns the idempotent constraint and index DDL.
func schemaStatements() []string {
	return []string{
		`CREATE CONSTRAINT agent_name_unique IF NOT EXISTS
FOR (a:Agent) REQUIRE a.name IS UNIQUE`,
		`CREATE CONSTRAINT execution_id_unique IF NOT EXISTS
FOR (e:Execution) REQUIRE e.id IS UNIQUE`,
		`CREATE CONSTRAINT deployment_id_unique IF NOT EXISTS
FOR (d:Deployment) REQUIRE d.id IS UNIQUE`,
		`CREATE INDEX execution_timestamp IF NOT EXISTS
FOR (e:Execution) ON (e.timestamp)`,
		`CREATE INDEX execution_task_type IF NOT EXISTS
FOR (e:Execution) ON (e.task_type)`,
		`CREATE INDEX delegates_to_task_type IF NOT EXISTS
FOR ()-[r:DELEGATES_TO]-() ON (r.task_type)`,
		`CREATE INDEX delegates_to_timestamp IF NOT EXISTS
FOR ()-[r:DELEGATES_TO]-() ON (r.timestamp)`,
	}
}

// =============================================================================
// Write Builders
// =============================================================================

// recordDelegationQuery upserts both agent nodes, bumps their counters, and
// creates a fresh pending DELEGATES_TO relationship. Timestamps are stored
// as epoch milliseconds.
func recordDelegationQuery(event *datatypes.DelegationEvent, taskJSON string) CypherQuery {
	return CypherQuery{
		Text: `MERGE (from:Agent {name: $from_agent})
ON CREATE SET from.delegations_made = 0, from.delegations_received = 0, from.executions = 0
MERGE (to:Agent {name: $to_agent})
ON CREATE SET to.delegations_made = 0, to.delegations_received = 0, to.executions = 0
SET from.delegations_made = coalesce(from.delegations_made, 0) + 1,
    to.delegations_received = coalesce(to.delegations_received, 0) + 1
CREATE (from)-[:DELEGATES_TO {
    delegation_id: $delegation_id,
    task_type: $task_type,
    task: $task,
    depth: $depth,
    status: $status,
    timestamp: $timestamp,
    duration_ms: 0,
    deployment_id: $deployment_id
}]->(to)`,
		Params: map[string]any{
			"from_agent":    event.FromAgent,
			"to_agent":      event.ToAgent,
			"delegation_id": event.DelegationID,
			"task_type":     event.Task.Type,
			"task":          taskJSON,
			"depth":         event.Depth,
			"status":        string(event.Status),
			"timestamp":     event.Timestamp.UnixMilli(),
			"deployment_id": event.DeploymentID,
		},
	}
}

// finalizeDelegationQuery updates the edge matched by delegation id with
// its terminal status.
func finalizeDelegationQuery(event *datatypes.DelegationEvent, resultJSON string) CypherQuery {
	return CypherQuery{
		Text: `MATCH (:Agent)-[r:DELEGATES_TO {delegation_id: $delegation_id}]->(:Agent)
SET r.status = $status,
    r.duration_ms = $duration_ms,
    r.result = $result,
    r.error_message = $error_message`,
		Params: map[string]any{
			"delegation_id": event.DelegationID,
			"status":        string(event.Status),
			"duration_ms":   event.DurationMS,
			"result":        resultJSON,
			"error_message": event.ErrorMessage,
		},
	}
}

// recordExecutionQuery upserts the agent, creates the execution node, and
// links them with PERFORMED.
func recordExecutionQuery(record *datatypes.ExecutionRecord) CypherQuery {
	return CypherQuery{
		Text: `MERGE (a:Agent {name: $agent_name})
ON CREATE SET a.delegations_made = 0, a.delegations_received = 0, a.executions = 0
SET a.executions = coalesce(a.executions, 0) + 1
CREATE (e:Execution {
    id: $execution_id,
    task_type: $task_type,
    timestamp: $timestamp,
    duration_ms: $duration_ms,
    success: $success,
    deployment_id: $deployment_id
})
CREATE (a)-[:PERFORMED]->(e)`,
		Params: map[string]any{
			"agent_name":    record.AgentName,
			"execution_id":  record.ExecutionID,
			"task_type":     record.TaskType,
			"timestamp":     record.Timestamp.UnixMilli(),
			"duration_ms":   record.DurationMS,
			"success":       record.Success,
			"deployment_id": record.DeploymentID,
		},
	}
}

// mergeDeploymentQuery upserts the deployment grouping node.
func mergeDeploymentQuery(deploymentID string) CypherQuery {
	return CypherQuery{
		Text: `MERGE (d:Deployment {id: $deployment_id})
ON CREATE SET d.created_at = timestamp()`,
		Params: map[string]any{
			"deployment_id": deploymentID,
		},
	}
}

// clearAllQuery removes every node and relationship.
func clearAllQuery() CypherQuery {
	return CypherQuery{
		Text:   `MATCH (n) DETACH DELETE n`,
		Params: map[string]any{},
	}
}

// =============================================================================
// Analytics Builders
// =============================================================================

// mostDelegatedQuery ranks agents by delegations received.
func mostDelegatedQuery(limit int) CypherQuery {
	return CypherQuery{
		Text: `MATCH (:Agent)-[r:DELEGATES_TO]->(t:Agent)
WITH t.name AS agent,
     count(r) AS delegations_received,
     avg(r.duration_ms) AS avg_duration_ms,
     sum(CASE WHEN r.status = 'success' THEN 1 ELSE 0 END) AS successes
RETURN agent, delegations_received, avg_duration_ms, successes
ORDER BY delegations_received DESC
LIMIT $limit`,
		Params: map[string]any{
			"limit": limit,
		},
	}
}

// delegationChainsQuery finds multi-hop delegation paths of at least
// minHops hops. Cypher cannot parameterize pattern lengths, so the clamped
// bounds are formatted into the pattern.
func delegationChainsQuery(minHops, limit int) CypherQuery {
	minHops = clampHops(minHops)
	text := fmt.Sprintf(`MATCH p = (origin:Agent)-[:DELEGATES_TO*%d..%d]->(destination:Agent)
RETURN origin.name AS origin,
       destination.name AS destination,
       [n IN nodes(p) | n.name] AS path,
       length(p) AS hops,
       reduce(total = 0, r IN relationships(p) | total + coalesce(r.duration_ms, 0)) AS total_duration_ms
ORDER BY hops DESC, total_duration_ms ASC
LIMIT $limit`, minHops, maxChainHops)
	return CypherQuery{
		Text: text,
		Params: map[string]any{
			"limit": limit,
		},
	}
}

// circularDelegationsQuery finds cyclic delegation paths: chains that return
// to their starting agent.
func circularDelegationsQuery(limit int) CypherQuery {
	text := fmt.Sprintf(`MATCH p = (a:Agent)-[:DELEGATES_TO*1..%d]->(a)
RETURN a.name AS agent,
       [n IN nodes(p) | n.name] AS path,
       length(p) AS cycle_length
ORDER BY cycle_length ASC
LIMIT $limit`, maxChainHops)
	return CypherQuery{
		Text: text,
		Params: map[string]any{
			"limit": limit,
		},
	}
}

// pairSuccessRatesQuery computes per-pair success rates over pairs with at
// least minSamples delegations.
func pairSuccessRatesQuery(minSamples int) CypherQuery {
	return CypherQuery{
		Text: `MATCH (f:Agent)-[r:DELEGATES_TO]->(t:Agent)
WITH f.name AS from_agent,
     t.name AS to_agent,
     count(r) AS total,
     sum(CASE WHEN r.status = 'success' THEN 1 ELSE 0 END) AS successes,
     avg(r.duration_ms) AS avg_duration_ms
WHERE total >= $min_samples
RETURN from_agent, to_agent, total,
       toFloat(successes) / total AS success_rate,
       avg_duration_ms
ORDER BY success_rate DESC, total DESC`,
		Params: map[string]any{
			"min_samples": minSamples,
		},
	}
}

// bottlenecksQuery surfaces agents that repeatedly receive slow delegations.
func bottlenecksQuery(thresholdMS int64, minCount int) CypherQuery {
	return CypherQuery{
		Text: `MATCH (:Agent)-[r:DELEGATES_TO]->(t:Agent)
WHERE r.duration_ms > $threshold_ms
WITH t.name AS agent,
     count(r) AS slow_delegations,
     avg(r.duration_ms) AS avg_duration_ms,
     percentileCont(r.duration_ms, 0.95) AS p95_duration_ms,
     max(r.duration_ms) AS max_duration_ms
WHERE slow_delegations >= $min_count
RETURN agent, slow_delegations, avg_duration_ms, p95_duration_ms, max_duration_ms
ORDER BY slow_delegations DESC, avg_duration_ms DESC`,
		Params: map[string]any{
			"threshold_ms": thresholdMS,
			"min_count":    minCount,
		},
	}
}

// recommendTargetQuery scores historical successes for one delegating agent
// and task type. The score deliberately weighs proven success count a
// thousandfold against average latency.
func recommendTargetQuery(fromAgent, taskType string, maxDurationMS int64, minSuccessCount int) CypherQuery {
	return CypherQuery{
		Text: `MATCH (f:Agent {name: $from_agent})-[r:DELEGATES_TO]->(t:Agent)
WHERE r.task_type = $task_type
  AND r.status = 'success'
  AND r.duration_ms < $max_duration_ms
WITH t.name AS agent,
     count(r) AS success_count,
     avg(r.duration_ms) AS avg_duration_ms
WHERE success_count >= $min_success_count
RETURN agent, success_count, avg_duration_ms,
       success_count * 1000.0 / avg_duration_ms AS priority_score
ORDER BY priority_score DESC
LIMIT 1`,
		Params: map[string]any{
			"from_agent":        fromAgent,
			"task_type":         taskType,
			"max_duration_ms":   maxDurationMS,
			"min_success_count": minSuccessCount,
		},
	}
}

// riskHistoryQuery fetches the terminal statuses for one (from, to, task
// type) triple, newest first. The blend and bucketing happen in Go (see
// scoring.go) so the math is unit testable.
func riskHistoryQuery(fromAgent, toAgent, taskType string) CypherQuery {
	return CypherQuery{
		Text: `MATCH (f:Agent {name: $from_agent})-[r:DELEGATES_TO {task_type: $task_type}]->(t:Agent {name: $to_agent})
WHERE r.status IN ['success', 'failed', 'timeout']
RETURN r.status AS status
ORDER BY r.timestamp DESC`,
		Params: map[string]any{
			"from_agent": fromAgent,
			"to_agent":   toAgent,
			"task_type":  taskType,
		},
	}
}

// optimalPathQuery finds the best all-successful delegation route from a
// starting agent to any agent with a proven successful delegation of the
// desired task type. Ordering by hops then total duration matches the
// efficiency score, which is monotone decreasing in total duration.
func optimalPathQuery(startAgent, taskType string) CypherQuery {
	text := fmt.Sprintf(`MATCH p = (s:Agent {name: $start_agent})-[:DELEGATES_TO*1..%d]->(x:Agent)
WHERE ALL(r IN relationships(p) WHERE r.status = 'success')
  AND EXISTS {
    MATCH (x)-[cap:DELEGATES_TO]->(:Agent)
    WHERE cap.task_type = $task_type AND cap.status = 'success'
  }
RETURN [n IN nodes(p) | n.name] AS path,
       length(p) AS hops,
       reduce(total = 0, r IN relationships(p) | total + coalesce(r.duration_ms, 0)) AS total_duration_ms
ORDER BY hops ASC, total_duration_ms ASC
LIMIT 1`, maxChainHops)
	return CypherQuery{
		Text: text,
		Params: map[string]any{
			"start_agent": startAgent,
			"task_type":   taskType,
		},
	}
}

// costWindowPairsQuery aggregates per-pair duration spend inside the
// trailing window. The p95 threshold and projected savings are computed in
// Go over these aggregates.
func costWindowPairsQuery(sinceMS int64) CypherQuery {
	return CypherQuery{
		Text: `MATCH (f:Agent)-[r:DELEGATES_TO]->(t:Agent)
WHERE r.timestamp >= $since_ms
WITH f.name AS from_agent,
     t.name AS to_agent,
     count(r) AS total,
     avg(r.duration_ms) AS avg_duration_ms,
     sum(r.duration_ms) AS total_duration_ms
RETURN from_agent, to_agent, total, avg_duration_ms, total_duration_ms
ORDER BY total_duration_ms DESC`,
		Params: map[string]any{
			"since_ms": sinceMS,
		},
	}
}

// trendGranularities is the closed set of bucket units accepted by
// trendsQuery. The unit is interpolated into datetime.truncate, so it must
// never come from an unvalidated caller string.
var trendGranularities = map[string]bool{
	"hour": true,
	"day":  true,
	"week": true,
}

// trendsQuery buckets delegation volume, latency, and success rate by time
// unit over the trailing window.
func trendsQuery(unit string, sinceMS int64) (CypherQuery, error) {
	if !trendGranularities[unit] {
		return CypherQuery{}, fmt.Errorf("unsupported trend granularity %q (want hour, day, or week)", unit)
	}
	text := fmt.Sprintf(`MATCH (:Agent)-[r:DELEGATES_TO]->(:Agent)
WHERE r.timestamp >= $since_ms
WITH datetime.truncate('%s', datetime({epochMillis: r.timestamp})) AS bucket, r
WITH bucket,
     count(r) AS delegations,
     avg(r.duration_ms) AS avg_duration_ms,
     sum(CASE WHEN r.status = 'success' THEN 1 ELSE 0 END) AS successes
RETURN toString(bucket) AS bucket, delegations, avg_duration_ms,
       toFloat(successes) / delegations AS success_rate
ORDER BY bucket ASC`, unit)
	return CypherQuery{
		Text: text,
		Params: map[string]any{
			"since_ms": sinceMS,
		},
	}, nil
}

// =============================================================================
// Pattern Builders (GraphRAG structural side)
// =============================================================================

// successfulPatternsQuery aggregates proven delegation patterns for a task
// type: pairs with repeated successful history.
func successfulPatternsQuery(taskType string, minSuccessCount int) CypherQuery {
	where := `r.status = 'success'`
	params := map[string]any{
		"min_success_count": minSuccessCount,
	}
	if taskType != "" {
		where += ` AND r.task_type = $task_type`
		params["task_type"] = taskType
	}
	text := fmt.Sprintf(`MATCH (f:Agent)-[r:DELEGATES_TO]->(t:Agent)
WHERE %s
WITH f.name AS from_agent,
     t.name AS to_agent,
     r.task_type AS task_type,
     count(r) AS success_count,
     avg(r.duration_ms) AS avg_duration_ms
WHERE success_count >= $min_success_count
RETURN from_agent, to_agent, task_type, success_count, avg_duration_ms
ORDER BY success_count DESC, avg_duration_ms ASC`, where)
	return CypherQuery{
		Text:   text,
		Params: params,
	}
}

// patternsByExecutionsQuery aggregates proven delegation patterns scoped to
// the task types of specific prior executions. Used when the caller holds
// execution ids (surfaced by semantic retrieval) instead of a task type.
func patternsByExecutionsQuery(executionIDs []string, minSuccessCount int) CypherQuery {
	return CypherQuery{
		Text: `MATCH (:Agent)-[:PERFORMED]->(e:Execution)
WHERE e.id IN $execution_ids
WITH collect(DISTINCT e.task_type) AS task_types
MATCH (f:Agent)-[r:DELEGATES_TO]->(t:Agent)
WHERE r.status = 'success' AND r.task_type IN task_types
WITH f.name AS from_agent,
     t.name AS to_agent,
     r.task_type AS task_type,
     count(r) AS success_count,
     avg(r.duration_ms) AS avg_duration_ms
WHERE success_count >= $min_success_count
RETURN from_agent, to_agent, task_type, success_count, avg_duration_ms
ORDER BY success_count DESC, avg_duration_ms ASC`,
		Params: map[string]any{
			"execution_ids":     executionIDs,
			"min_success_count": minSuccessCount,
		},
	}
}

// agentNeighborhoodQuery returns an agent's delegation surroundings:
// outgoing pair aggregates for the agents it has worked with.
func agentNeighborhoodQuery(agentName string) CypherQuery {
	return CypherQuery{
		Text: `MATCH (a:Agent {name: $agent_name})-[r:DELEGATES_TO]->(t:Agent)
WITH a.name AS from_agent,
     t.name AS to_agent,
     r.task_type AS task_type,
     count(r) AS total,
     sum(CASE WHEN r.status = 'success' THEN 1 ELSE 0 END) AS success_count,
     avg(r.duration_ms) AS avg_duration_ms
RETURN from_agent, to_agent, task_type, total, success_count, avg_duration_ms
ORDER BY success_count DESC`,
		Params: map[string]any{
			"agent_name": agentName,
		},
	}
}

// sanitizeForLog trims a query to one line for debug logging.
func sanitizeForLog(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
