package models

import (
	"time"

	"github.com/google/uuid"
)

// Check types a monitored table can opt into.
const (
	CheckSchema    = "schema"
	CheckFreshness = "freshness"
)

// MonitoredTable is a warehouse table registered for monitoring.
// (ConnectionID, SchemaName, TableName) is unique.
type MonitoredTable struct {
	ID                  uuid.UUID `json:"id"`
	ConnectionID        uuid.UUID `json:"connection_id"`
	SchemaName          string    `json:"schema_name"`
	TableName           string    `json:"table_name"`
	CheckTypes          []string  `json:"check_types"`
	FreshnessSLAMinutes *int      `json:"freshness_sla_minutes,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// FQN returns the fully qualified name used as the lineage graph key.
func (t *MonitoredTable) FQN() string {
	return t.SchemaName + "." + t.TableName
}

// HasCheck reports whether the given check type is enabled for this table.
func (t *MonitoredTable) HasCheck(check string) bool {
	for _, c := range t.CheckTypes {
		if c == check {
			return true
		}
	}
	return false
}

// FreshnessEnabled reports whether freshness checking is effective:
// the check type must be present and an SLA must be set.
func (t *MonitoredTable) FreshnessEnabled() bool {
	return t.HasCheck(CheckFreshness) && t.FreshnessSLAMinutes != nil
}
