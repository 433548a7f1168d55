// Package orchestrator deduplicates anomalies into incidents, drives the
// incident state machine, and assembles incident reports.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/apperrors"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/architect"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/executor"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/models"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/notifier"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/repositories"
)

// Orchestrator owns the anomaly-to-incident pipeline stage.
type Orchestrator struct {
	incidents repositories.IncidentRepository
	anomalies repositories.AnomalyRepository
	tables    repositories.TableRepository
	architect *architect.Architect
	executor  *executor.Executor
	events    *notifier.Notifier
	logger    *zap.Logger
	now       func() time.Time
}

// New creates an Orchestrator.
func New(
	incidents repositories.IncidentRepository,
	anomalies repositories.AnomalyRepository,
	tables repositories.TableRepository,
	arch *architect.Architect,
	exec *executor.Executor,
	events *notifier.Notifier,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		incidents: incidents,
		anomalies: anomalies,
		tables:    tables,
		architect: arch,
		executor:  exec,
		events:    events,
		logger:    logger.Named("orchestrator"),
		now:       time.Now,
	}
}

// HandleAnomaly deduplicates the anomaly against the active incident for
// (table, type). An existing incident is merged: touched and re-announced
// as incident.updated, with no new diagnosis. The exception is an existing
// incident still in investigating after a failed pipeline run, which runs
// the pipeline again. Otherwise a fresh incident runs the full
// investigate -> diagnose -> plan -> report pipeline.
func (o *Orchestrator) HandleAnomaly(ctx context.Context, anomaly *models.Anomaly) (*models.Incident, error) {
	table, err := o.tables.GetByID(ctx, anomaly.TableID)
	if err != nil {
		return nil, fmt.Errorf("load table for anomaly: %w", err)
	}

	existing, err := o.incidents.GetActive(ctx, anomaly.TableID, anomaly.Type)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return o.merge(ctx, existing, table)
	}

	incident := &models.Incident{
		AnomalyID:   anomaly.ID,
		TableID:     anomaly.TableID,
		AnomalyType: anomaly.Type,
		Status:      models.IncidentInvestigating,
		Severity:    anomaly.Severity,
	}

	if err := o.incidents.Insert(ctx, nil, incident); err != nil {
		// Deduplication race: another anomaly created the incident between
		// our lookup and insert. The loser joins the winner's incident.
		if errors.Is(err, apperrors.ErrConflict) {
			winner, getErr := o.incidents.GetActive(ctx, anomaly.TableID, anomaly.Type)
			if getErr != nil {
				return nil, getErr
			}
			if winner != nil {
				return o.merge(ctx, winner, table)
			}
		}
		return nil, err
	}

	return o.investigate(ctx, incident, anomaly, table)
}

// merge updates an existing incident's freshness and announces the merge.
func (o *Orchestrator) merge(ctx context.Context, incident *models.Incident, table *models.MonitoredTable) (*models.Incident, error) {
	// An incident stuck in investigating carries an error from a previous
	// failed pipeline run; retry it idempotently instead of just touching.
	if incident.Status == models.IncidentInvestigating {
		anomaly, err := o.anomalies.GetByID(ctx, incident.AnomalyID)
		if err != nil {
			return nil, err
		}
		return o.investigate(ctx, incident, anomaly, table)
	}

	if err := o.incidents.Touch(ctx, incident.ID); err != nil {
		return nil, err
	}
	incident.UpdatedAt = o.now().UTC()

	o.events.Publish(notifier.EventIncidentUpdated, notifier.IncidentUpdatedPayload{
		IncidentID: incident.ID,
		Status:     incident.Status,
		Severity:   incident.Severity,
	})

	o.logger.Info("anomaly merged into active incident",
		zap.String("incident_id", incident.ID.String()),
		zap.String("table", table.FQN()))
	return incident, nil
}

// investigate runs the Architect and Executor for a new (or retried)
// incident, persists the results, and announces incident.created. On
// pipeline failure the incident stays in investigating with an error
// annotation for the next cycle to retry.
func (o *Orchestrator) investigate(ctx context.Context, incident *models.Incident, anomaly *models.Anomaly, table *models.MonitoredTable) (*models.Incident, error) {
	result, err := o.architect.Diagnose(ctx, anomaly, table)
	if err != nil {
		return o.annotateError(ctx, incident, fmt.Errorf("diagnose: %w", err))
	}

	incident.Diagnosis = result.Diagnosis
	incident.BlastRadius = result.BlastRadius.AffectedTables
	incident.Remediation = o.executor.Plan(result.Diagnosis)
	incident.Status = models.IncidentPendingReview
	incident.Error = nil
	incident.Report = BuildReport(incident, anomaly, table, o.now())

	if err := o.incidents.Update(ctx, nil, incident); err != nil {
		return nil, err
	}

	o.events.Publish(notifier.EventIncidentCreated, notifier.IncidentCreatedPayload{
		IncidentID: incident.ID,
		Severity:   incident.Severity,
		Table:      table.FQN(),
		Type:       incident.AnomalyType,
	})

	o.logger.Info("incident ready for review",
		zap.String("incident_id", incident.ID.String()),
		zap.String("table", table.FQN()),
		zap.String("severity", incident.Severity),
		zap.Float64("confidence", result.Diagnosis.Confidence))
	return incident, nil
}

func (o *Orchestrator) annotateError(ctx context.Context, incident *models.Incident, cause error) (*models.Incident, error) {
	msg := cause.Error()
	incident.Error = &msg
	incident.Status = models.IncidentInvestigating
	if err := o.incidents.Update(ctx, nil, incident); err != nil {
		return nil, err
	}
	o.logger.Error("incident pipeline failed, will retry next cycle",
		zap.String("incident_id", incident.ID.String()),
		zap.Error(cause))
	return incident, nil
}

// Approve transitions a pending-review incident to resolved.
func (o *Orchestrator) Approve(ctx context.Context, id uuid.UUID, resolvedBy, note string) (*models.Incident, error) {
	incident, err := o.incidents.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !incident.CanTransition(models.IncidentResolved) {
		return nil, fmt.Errorf("cannot resolve incident in status %s: %w",
			incident.Status, apperrors.ErrInvalidTransition)
	}

	now := o.now().UTC()
	incident.Status = models.IncidentResolved
	incident.ResolvedAt = &now
	if resolvedBy != "" {
		incident.ResolvedBy = &resolvedBy
	}

	if err := o.incidents.Update(ctx, nil, incident); err != nil {
		return nil, err
	}

	o.events.Publish(notifier.EventIncidentUpdated, notifier.IncidentUpdatedPayload{
		IncidentID: incident.ID,
		Status:     incident.Status,
		Severity:   incident.Severity,
	})
	return incident, nil
}

// Dismiss transitions a pending-review incident to dismissed. A non-empty
// reason is required.
func (o *Orchestrator) Dismiss(ctx context.Context, id uuid.UUID, dismissedBy, reason string) (*models.Incident, error) {
	if reason == "" {
		return nil, apperrors.ErrMissingReason
	}

	incident, err := o.incidents.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !incident.CanTransition(models.IncidentDismissed) {
		return nil, fmt.Errorf("cannot dismiss incident in status %s: %w",
			incident.Status, apperrors.ErrInvalidTransition)
	}

	now := o.now().UTC()
	incident.Status = models.IncidentDismissed
	incident.ResolvedAt = &now
	incident.DismissReason = &reason
	if dismissedBy != "" {
		incident.ResolvedBy = &dismissedBy
	}

	if err := o.incidents.Update(ctx, nil, incident); err != nil {
		return nil, err
	}

	o.events.Publish(notifier.EventIncidentUpdated, notifier.IncidentUpdatedPayload{
		IncidentID: incident.ID,
		Status:     incident.Status,
		Severity:   incident.Severity,
	})
	return incident, nil
}
