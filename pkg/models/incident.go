package models

import (
	"time"

	"github.com/google/uuid"
)

// Incident statuses. resolved and dismissed are terminal.
const (
	IncidentOpen          = "open"
	IncidentInvestigating = "investigating"
	IncidentPendingReview = "pending_review"
	IncidentResolved      = "resolved"
	IncidentDismissed     = "dismissed"
)

// Incident is a deduplicated, diagnosed, user-facing grouping of anomalies
// on one table. At most one non-terminal incident exists per
// (table_id, anomaly_type) at any moment.
type Incident struct {
	ID            uuid.UUID       `json:"id"`
	AnomalyID     uuid.UUID       `json:"anomaly_id"`
	TableID       uuid.UUID       `json:"table_id"`
	AnomalyType   string          `json:"anomaly_type"`
	Status        string          `json:"status"`
	Severity      string          `json:"severity"`
	Diagnosis     *Diagnosis      `json:"diagnosis,omitempty"`
	Remediation   *Remediation    `json:"remediation,omitempty"`
	BlastRadius   []string        `json:"blast_radius,omitempty"`
	Report        *IncidentReport `json:"report,omitempty"`
	Error         *string         `json:"error,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	ResolvedAt    *time.Time      `json:"resolved_at,omitempty"`
	ResolvedBy    *string         `json:"resolved_by,omitempty"`
	DismissReason *string         `json:"dismiss_reason,omitempty"`
}

// IsTerminal reports whether the incident status forbids further transitions.
func (i *Incident) IsTerminal() bool {
	return i.Status == IncidentResolved || i.Status == IncidentDismissed
}

// validTransitions enumerates the incident state machine. open and
// investigating progress internally; resolved/dismissed are driven by
// operators from pending_review.
var validTransitions = map[string][]string{
	IncidentOpen:          {IncidentInvestigating},
	IncidentInvestigating: {IncidentPendingReview},
	IncidentPendingReview: {IncidentResolved, IncidentDismissed},
}

// CanTransition reports whether moving from the current status to the
// target status is allowed.
func (i *Incident) CanTransition(to string) bool {
	for _, allowed := range validTransitions[i.Status] {
		if allowed == to {
			return true
		}
	}
	return false
}
