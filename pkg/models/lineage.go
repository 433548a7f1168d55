package models

import (
	"time"

	"github.com/google/uuid"
)

// Lineage edge relationships.
const (
	RelationshipDirect     = "direct"
	RelationshipDerived    = "derived"
	RelationshipAggregated = "aggregated"
)

// LineageEdge is a directed (source -> target) data-flow edge keyed by
// fully-qualified table names. Re-observation bumps last_seen_at and never
// decreases confidence.
type LineageEdge struct {
	ID           uuid.UUID `json:"id"`
	SourceTable  string    `json:"source_table"`
	TargetTable  string    `json:"target_table"`
	Relationship string    `json:"relationship"`
	Confidence   float64   `json:"confidence"`
	QueryHash    string    `json:"query_hash"`
	FirstSeenAt  time.Time `json:"first_seen_at"`
	LastSeenAt   time.Time `json:"last_seen_at"`
}

// LineageNode is one traversal result of an upstream/downstream query.
// Confidence is the product of edge confidences along the reaching path.
type LineageNode struct {
	Table      string  `json:"table"`
	Depth      int     `json:"depth"`
	Confidence float64 `json:"confidence"`
}

// BlastRadius aggregates a downstream traversal for diagnosis.
type BlastRadius struct {
	AffectedTables       []string `json:"affected_tables"`
	Total                int      `json:"total"`
	MaxDepth             int      `json:"max_depth"`
	HasTerminalConsumers bool     `json:"has_terminal_consumers"`
}

// LineageGraph is the full non-stale graph returned by the API.
type LineageGraph struct {
	Nodes []string      `json:"nodes"`
	Edges []LineageEdge `json:"edges"`
}
