package models

import (
	"time"

	"github.com/google/uuid"
)

// Table roles assigned during discovery classification.
const (
	RoleFact      = "fact"
	RoleDimension = "dimension"
	RoleStaging   = "staging"
	RoleRaw       = "raw"
	RoleSnapshot  = "snapshot"
	RoleSystem    = "system"
	RoleUnknown   = "unknown"
)

// TableProposal is the Investigator's recommendation for one warehouse table.
// Not persisted; lives only in API responses.
type TableProposal struct {
	Schema              string      `json:"schema"`
	Table               string      `json:"table"`
	FQN                 string      `json:"fqn"`
	Role                string      `json:"role"`
	Columns             []ColumnDef `json:"columns,omitempty"`
	RecommendedChecks   []string    `json:"recommended_checks"`
	SuggestedSLAMinutes *int        `json:"suggested_sla_minutes,omitempty"`
	Reasoning           string      `json:"reasoning"`
	Skip                bool        `json:"skip"`
}

// DiscoveryReport is the result of Investigator.Discover.
type DiscoveryReport struct {
	ConnectionID   uuid.UUID       `json:"connection_id"`
	ConnectionName string          `json:"connection_name"`
	SchemasFound   []string        `json:"schemas_found"`
	TotalTables    int             `json:"total_tables"`
	Proposals      []TableProposal `json:"proposals"`
	Concerns       []string        `json:"concerns,omitempty"`
	GeneratedAt    time.Time       `json:"generated_at"`
}

// Delta actions emitted by rediscovery.
const (
	DeltaNew     = "new"
	DeltaDropped = "dropped"
)

// TableDelta is one rediscovery difference between the warehouse and the
// monitored set.
type TableDelta struct {
	Action   string         `json:"action"`
	Schema   string         `json:"schema"`
	Table    string         `json:"table"`
	FQN      string         `json:"fqn"`
	Proposal *TableProposal `json:"proposal,omitempty"`
}
