package notifier

import "github.com/google/uuid"

// AnomalyDetectedPayload accompanies anomaly.detected.
type AnomalyDetectedPayload struct {
	AnomalyID uuid.UUID `json:"anomaly_id"`
	Table     string    `json:"table"`
	Type      string    `json:"type"`
}

// IncidentCreatedPayload accompanies incident.created.
type IncidentCreatedPayload struct {
	IncidentID uuid.UUID `json:"incident_id"`
	Severity   string    `json:"severity"`
	Table      string    `json:"table"`
	Type       string    `json:"type"`
}

// IncidentUpdatedPayload accompanies incident.updated.
type IncidentUpdatedPayload struct {
	IncidentID uuid.UUID `json:"incident_id"`
	Status     string    `json:"status"`
	Severity   string    `json:"severity"`
}

// ScanCompletedPayload accompanies scan.completed.
type ScanCompletedPayload struct {
	TablesScanned  int   `json:"tables_scanned"`
	AnomaliesFound int   `json:"anomalies_found"`
	DurationMs     int64 `json:"duration_ms"`
}

// DiscoveryUpdatePayload accompanies discovery.update.
type DiscoveryUpdatePayload struct {
	ConnectionID uuid.UUID `json:"connection_id"`
	TotalDeltas  int       `json:"total_deltas"`
}
