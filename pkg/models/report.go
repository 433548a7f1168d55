package models

import (
	"encoding/json"
	"time"
)

// IncidentReport is a derived, self-contained presentation document.
// It is regenerated idempotently from the incident's inputs and is never
// a source of truth.
type IncidentReport struct {
	Title              string             `json:"title"`
	Severity           string             `json:"severity"`
	Status             string             `json:"status"`
	GeneratedAt        time.Time          `json:"generated_at"`
	Summary            string             `json:"summary"`
	AnomalyDetails     json.RawMessage    `json:"anomaly_details"`
	RootCause          *string            `json:"root_cause,omitempty"`
	BlastRadius        BlastRadiusSummary `json:"blast_radius"`
	RecommendedActions []ReportAction     `json:"recommended_actions"`
	Timeline           []TimelineEntry    `json:"timeline"`
}

// BlastRadiusSummary is the report's affected-tables section.
type BlastRadiusSummary struct {
	Count  int      `json:"count"`
	Tables []string `json:"tables"`
}

// ReportAction is one recommended action inside a report.
type ReportAction struct {
	Type        string  `json:"type"`
	Description string  `json:"description"`
	SQL         *string `json:"sql,omitempty"`
	Priority    int     `json:"priority"`
}

// TimelineEntry is one event in a report's timeline, ordered by time.
type TimelineEntry struct {
	At    time.Time `json:"at"`
	Event string    `json:"event"`
}
