package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/apperrors"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/database"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/models"
)

// IncidentFilter narrows List results.
type IncidentFilter struct {
	Status   string
	Severity string
	TableID  *uuid.UUID
	Since    *time.Time
	Limit    int
	Offset   int
}

// IncidentStats aggregates counts for the dashboard.
type IncidentStats struct {
	Open          int `json:"open"`
	Investigating int `json:"investigating"`
	PendingReview int `json:"pending_review"`
	Resolved      int `json:"resolved"`
	Dismissed     int `json:"dismissed"`
}

// IncidentRepository defines data access for incidents. The partial unique
// index incidents_active_unique backs the one-active-incident invariant;
// Insert surfaces its violation as apperrors.ErrConflict so a racing
// creator can fall back to joining the winner's incident.
type IncidentRepository interface {
	Insert(ctx context.Context, q database.Querier, incident *models.Incident) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Incident, error)
	// GetActive returns the non-terminal incident for (table, type), or nil.
	GetActive(ctx context.Context, tableID uuid.UUID, anomalyType string) (*models.Incident, error)
	List(ctx context.Context, filter IncidentFilter) ([]*models.Incident, error)
	Update(ctx context.Context, q database.Querier, incident *models.Incident) error
	Touch(ctx context.Context, id uuid.UUID) error
	Stats(ctx context.Context) (*IncidentStats, error)
}

type incidentRepository struct {
	db *database.DB
}

// NewIncidentRepository creates a new incident repository.
func NewIncidentRepository(db *database.DB) IncidentRepository {
	return &incidentRepository{db: db}
}

const incidentColumns = `id, anomaly_id, table_id, anomaly_type, status, severity,
	diagnosis, remediation, blast_radius, report, error,
	created_at, updated_at, resolved_at, resolved_by, dismiss_reason`

func scanIncident(row pgx.Row) (*models.Incident, error) {
	var i models.Incident
	var diagnosisJSON, remediationJSON, blastJSON, reportJSON []byte
	err := row.Scan(&i.ID, &i.AnomalyID, &i.TableID, &i.AnomalyType, &i.Status, &i.Severity,
		&diagnosisJSON, &remediationJSON, &blastJSON, &reportJSON, &i.Error,
		&i.CreatedAt, &i.UpdatedAt, &i.ResolvedAt, &i.ResolvedBy, &i.DismissReason)
	if err != nil {
		return nil, err
	}

	if diagnosisJSON != nil {
		if err := json.Unmarshal(diagnosisJSON, &i.Diagnosis); err != nil {
			return nil, fmt.Errorf("failed to unmarshal diagnosis: %w", err)
		}
	}
	if remediationJSON != nil {
		if err := json.Unmarshal(remediationJSON, &i.Remediation); err != nil {
			return nil, fmt.Errorf("failed to unmarshal remediation: %w", err)
		}
	}
	if blastJSON != nil {
		if err := json.Unmarshal(blastJSON, &i.BlastRadius); err != nil {
			return nil, fmt.Errorf("failed to unmarshal blast radius: %w", err)
		}
	}
	if reportJSON != nil {
		if err := json.Unmarshal(reportJSON, &i.Report); err != nil {
			return nil, fmt.Errorf("failed to unmarshal report: %w", err)
		}
	}
	return &i, nil
}

func marshalIncidentJSON(incident *models.Incident) (diagnosis, remediation, blast, report []byte, err error) {
	if incident.Diagnosis != nil {
		if diagnosis, err = json.Marshal(incident.Diagnosis); err != nil {
			return nil, nil, nil, nil, fmt.Errorf("failed to marshal diagnosis: %w", err)
		}
	}
	if incident.Remediation != nil {
		if remediation, err = json.Marshal(incident.Remediation); err != nil {
			return nil, nil, nil, nil, fmt.Errorf("failed to marshal remediation: %w", err)
		}
	}
	if incident.BlastRadius != nil {
		if blast, err = json.Marshal(incident.BlastRadius); err != nil {
			return nil, nil, nil, nil, fmt.Errorf("failed to marshal blast radius: %w", err)
		}
	}
	if incident.Report != nil {
		if report, err = json.Marshal(incident.Report); err != nil {
			return nil, nil, nil, nil, fmt.Errorf("failed to marshal report: %w", err)
		}
	}
	return diagnosis, remediation, blast, report, nil
}

func (r *incidentRepository) Insert(ctx context.Context, q database.Querier, incident *models.Incident) error {
	if q == nil {
		q = r.db.Pool
	}
	now := time.Now().UTC()
	incident.CreatedAt = now
	incident.UpdatedAt = now

	diagnosis, remediation, blast, report, err := marshalIncidentJSON(incident)
	if err != nil {
		return err
	}

	err = q.QueryRow(ctx, `
		INSERT INTO incidents (anomaly_id, table_id, anomaly_type, status, severity,
			diagnosis, remediation, blast_radius, report, error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`,
		incident.AnomalyID, incident.TableID, incident.AnomalyType, incident.Status, incident.Severity,
		diagnosis, remediation, blast, report, incident.Error, incident.CreatedAt, incident.UpdatedAt,
	).Scan(&incident.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("active incident exists for table %s type %s: %w",
				incident.TableID, incident.AnomalyType, apperrors.ErrConflict)
		}
		return fmt.Errorf("failed to insert incident: %w", err)
	}
	return nil
}

func (r *incidentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Incident, error) {
	incident, err := scanIncident(r.db.QueryRow(ctx,
		"SELECT "+incidentColumns+" FROM incidents WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get incident: %w", err)
	}
	return incident, nil
}

func (r *incidentRepository) GetActive(ctx context.Context, tableID uuid.UUID, anomalyType string) (*models.Incident, error) {
	incident, err := scanIncident(r.db.QueryRow(ctx, `
		SELECT `+incidentColumns+` FROM incidents
		WHERE table_id = $1 AND anomaly_type = $2
		  AND status NOT IN ('resolved', 'dismissed')`,
		tableID, anomalyType))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get active incident: %w", err)
	}
	return incident, nil
}

func (r *incidentRepository) List(ctx context.Context, filter IncidentFilter) ([]*models.Incident, error) {
	query := "SELECT " + incidentColumns + " FROM incidents WHERE 1=1"
	args := []any{}

	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.Severity != "" {
		args = append(args, filter.Severity)
		query += fmt.Sprintf(" AND severity = $%d", len(args))
	}
	if filter.TableID != nil {
		args = append(args, *filter.TableID)
		query += fmt.Sprintf(" AND table_id = $%d", len(args))
	}
	if filter.Since != nil {
		args = append(args, *filter.Since)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}

	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", filter.Limit, filter.Offset)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list incidents: %w", err)
	}
	defer rows.Close()

	var incidents []*models.Incident
	for rows.Next() {
		incident, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan incident: %w", err)
		}
		incidents = append(incidents, incident)
	}
	return incidents, rows.Err()
}

func (r *incidentRepository) Update(ctx context.Context, q database.Querier, incident *models.Incident) error {
	if q == nil {
		q = r.db.Pool
	}
	incident.UpdatedAt = time.Now().UTC()

	diagnosis, remediation, blast, report, err := marshalIncidentJSON(incident)
	if err != nil {
		return err
	}

	tag, err := q.Exec(ctx, `
		UPDATE incidents
		SET status = $2, severity = $3, diagnosis = $4, remediation = $5,
			blast_radius = $6, report = $7, error = $8, updated_at = $9,
			resolved_at = $10, resolved_by = $11, dismiss_reason = $12
		WHERE id = $1`,
		incident.ID, incident.Status, incident.Severity, diagnosis, remediation,
		blast, report, incident.Error, incident.UpdatedAt,
		incident.ResolvedAt, incident.ResolvedBy, incident.DismissReason)
	if err != nil {
		return fmt.Errorf("failed to update incident: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *incidentRepository) Touch(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx,
		"UPDATE incidents SET updated_at = $2 WHERE id = $1", id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to touch incident: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *incidentRepository) Stats(ctx context.Context) (*IncidentStats, error) {
	rows, err := r.db.Query(ctx, "SELECT status, COUNT(*) FROM incidents GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate incident stats: %w", err)
	}
	defer rows.Close()

	stats := &IncidentStats{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan incident stats: %w", err)
		}
		switch status {
		case models.IncidentOpen:
			stats.Open = count
		case models.IncidentInvestigating:
			stats.Investigating = count
		case models.IncidentPendingReview:
			stats.PendingReview = count
		case models.IncidentResolved:
			stats.Resolved = count
		case models.IncidentDismissed:
			stats.Dismissed = count
		}
	}
	return stats, rows.Err()
}
