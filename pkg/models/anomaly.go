package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Anomaly types.
const (
	AnomalyTypeSchemaDrift        = "schema_drift"
	AnomalyTypeFreshnessViolation = "freshness_violation"
)

// Severity levels, ordered from most to least severe.
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"
)

var severityRank = map[string]int{
	SeverityCritical: 4,
	SeverityHigh:     3,
	SeverityMedium:   2,
	SeverityLow:      1,
}

// MaxSeverity returns the more severe of two severity levels.
func MaxSeverity(a, b string) string {
	if severityRank[a] >= severityRank[b] {
		return a
	}
	return b
}

// Anomaly is a raw detector signal. Immutable after creation.
type Anomaly struct {
	ID         uuid.UUID `json:"id"`
	TableID    uuid.UUID `json:"table_id"`
	Type       string    `json:"type"`
	Severity   string    `json:"severity"`
	Detail     Detail    `json:"detail"`
	DetectedAt time.Time `json:"detected_at"`
}

// Detail is the anomaly-kind-specific payload.
type Detail interface {
	detailKind() string
}

// Schema change types reported in a SchemaDriftDetail.
const (
	ChangeColumnAdded       = "column_added"
	ChangeColumnDeleted     = "column_deleted"
	ChangeColumnTypeChanged = "column_type_changed"
	ChangeColumnRenamed     = "column_renamed"
)

// SchemaChange is one entry of a schema drift change list.
type SchemaChange struct {
	ChangeType string `json:"change_type"`
	Column     string `json:"column"`
	FromName   string `json:"from_name,omitempty"`
	FromType   string `json:"from_type,omitempty"`
	ToType     string `json:"to_type,omitempty"`
	Nullable   *bool  `json:"nullable,omitempty"`
}

// SchemaDriftDetail is the payload of a schema_drift anomaly.
type SchemaDriftDetail struct {
	Changes      []SchemaChange `json:"changes"`
	PriorHash    string         `json:"prior_hash"`
	CurrentHash  string         `json:"current_hash"`
	ColumnsTotal int            `json:"columns_total"`
}

func (SchemaDriftDetail) detailKind() string { return AnomalyTypeSchemaDrift }

// FreshnessViolationDetail is the payload of a freshness_violation anomaly.
type FreshnessViolationDetail struct {
	LastUpdate     time.Time `json:"last_update"`
	SLAMinutes     int       `json:"sla_minutes"`
	MinutesOverdue int       `json:"minutes_overdue"`
}

func (FreshnessViolationDetail) detailKind() string { return AnomalyTypeFreshnessViolation }

// MarshalDetail serializes an anomaly detail payload for storage.
func MarshalDetail(d Detail) ([]byte, error) {
	if d == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(d)
}

// UnmarshalDetail deserializes a stored detail payload given the anomaly type.
func UnmarshalDetail(anomalyType string, data []byte) (Detail, error) {
	switch anomalyType {
	case AnomalyTypeSchemaDrift:
		var d SchemaDriftDetail
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("unmarshal schema drift detail: %w", err)
		}
		return d, nil
	case AnomalyTypeFreshnessViolation:
		var d FreshnessViolationDetail
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("unmarshal freshness detail: %w", err)
		}
		return d, nil
	default:
		return nil, fmt.Errorf("unknown anomaly type %q", anomalyType)
	}
}
