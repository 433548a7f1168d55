package orchestrator

import (
	"fmt"
	"sort"
	"time"

	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/models"
)

// BuildReport assembles the derived incident report. Regeneration is
// idempotent: the same inputs produce the same document up to GeneratedAt.
func BuildReport(
	incident *models.Incident,
	anomaly *models.Anomaly,
	table *models.MonitoredTable,
	generatedAt time.Time,
) *models.IncidentReport {
	detailJSON, _ := models.MarshalDetail(anomaly.Detail)

	report := &models.IncidentReport{
		Title:          reportTitle(anomaly.Type, table.FQN()),
		Severity:       incident.Severity,
		Status:         incident.Status,
		GeneratedAt:    generatedAt.UTC(),
		AnomalyDetails: detailJSON,
		BlastRadius: models.BlastRadiusSummary{
			Count:  len(incident.BlastRadius),
			Tables: incident.BlastRadius,
		},
	}
	if report.BlastRadius.Tables == nil {
		report.BlastRadius.Tables = []string{}
	}

	if incident.Diagnosis != nil {
		rootCause := incident.Diagnosis.RootCause
		report.RootCause = &rootCause
	}

	if incident.Remediation != nil {
		for _, action := range incident.Remediation.Actions {
			report.RecommendedActions = append(report.RecommendedActions, models.ReportAction{
				Type:        action.Type,
				Description: action.Description,
				SQL:         action.SQL,
				Priority:    action.Priority,
			})
		}
	}

	report.Summary = reportSummary(incident, table)
	report.Timeline = buildTimeline(incident, anomaly)
	return report
}

func reportTitle(anomalyType, fqn string) string {
	switch anomalyType {
	case models.AnomalyTypeSchemaDrift:
		return fmt.Sprintf("Schema drift on %s", fqn)
	case models.AnomalyTypeFreshnessViolation:
		return fmt.Sprintf("Freshness violation on %s", fqn)
	default:
		return fmt.Sprintf("Anomaly on %s", fqn)
	}
}

// reportSummary is deterministic prose templated from severity, table,
// root-cause presence, and affected count.
func reportSummary(incident *models.Incident, table *models.MonitoredTable) string {
	summary := fmt.Sprintf("A %s severity %s incident is affecting %s.",
		incident.Severity, incident.AnomalyType, table.FQN())

	if incident.Diagnosis != nil && incident.Diagnosis.RootCause != "" {
		summary += " A root cause has been identified."
	} else {
		summary += " Root cause analysis is pending."
	}

	switch affected := len(incident.BlastRadius); affected {
	case 0:
		summary += " No downstream tables are affected."
	case 1:
		summary += " 1 downstream table is affected."
	default:
		summary += fmt.Sprintf(" %d downstream tables are affected.", affected)
	}
	return summary
}

func buildTimeline(incident *models.Incident, anomaly *models.Anomaly) []models.TimelineEntry {
	timeline := []models.TimelineEntry{
		{At: anomaly.DetectedAt.UTC(), Event: "anomaly detected"},
		{At: incident.CreatedAt.UTC(), Event: "incident created"},
	}

	if incident.Diagnosis != nil && incident.Remediation != nil {
		timeline = append(timeline,
			models.TimelineEntry{At: incident.Remediation.GeneratedAt.UTC(), Event: "diagnosis completed"},
			models.TimelineEntry{At: incident.Remediation.GeneratedAt.UTC(), Event: "remediation plan generated"},
		)
	}

	if incident.ResolvedAt != nil {
		event := "incident resolved"
		if incident.Status == models.IncidentDismissed {
			event = "incident dismissed"
		}
		timeline = append(timeline, models.TimelineEntry{At: incident.ResolvedAt.UTC(), Event: event})
	}

	sort.SliceStable(timeline, func(i, j int) bool {
		return timeline[i].At.Before(timeline[j].At)
	})
	return timeline
}
