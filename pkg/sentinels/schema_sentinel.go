// Package sentinels holds the deterministic anomaly detectors.
package sentinels

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/models"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/repositories"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/warehouse"
)

// TxRunner groups coupled writes into one store transaction.
// *database.DB satisfies it.
type TxRunner interface {
	InTx(ctx context.Context, fn func(tx pgx.Tx) error) error
}

// SchemaSentinel detects column-list drift between the latest snapshot and
// the live warehouse schema.
type SchemaSentinel struct {
	db        TxRunner
	snapshots repositories.SnapshotRepository
	anomalies repositories.AnomalyRepository
	logger    *zap.Logger
	now       func() time.Time
}

// NewSchemaSentinel creates a schema drift detector.
func NewSchemaSentinel(
	db TxRunner,
	snapshots repositories.SnapshotRepository,
	anomalies repositories.AnomalyRepository,
	logger *zap.Logger,
) *SchemaSentinel {
	return &SchemaSentinel{
		db:        db,
		snapshots: snapshots,
		anomalies: anomalies,
		logger:    logger.Named("sentinel.schema"),
		now:       time.Now,
	}
}

// Check inspects one table. The warehouse fetch happens outside any store
// transaction; persisting the snapshot and the anomaly is a single
// transaction. Returns the emitted anomaly, or nil on no drift or on the
// baseline-establishing first snapshot.
func (s *SchemaSentinel) Check(ctx context.Context, conn warehouse.Connector, table *models.MonitoredTable) (*models.Anomaly, error) {
	columns, err := conn.FetchColumns(ctx, table.SchemaName, table.TableName)
	if err != nil {
		return nil, fmt.Errorf("fetch columns for %s: %w", table.FQN(), err)
	}
	if len(columns) == 0 {
		s.logger.Warn("table has zero columns, skipping schema check",
			zap.String("table", table.FQN()))
		return nil, nil
	}

	currentHash := models.HashColumns(columns)

	prior, err := s.snapshots.GetLatest(ctx, table.ID)
	if err != nil {
		return nil, err
	}

	snapshot := &models.SchemaSnapshot{
		TableID:      table.ID,
		Columns:      columns,
		SnapshotHash: currentHash,
		CapturedAt:   s.now().UTC(),
	}

	// First observation establishes the baseline; not drift.
	if prior == nil {
		if err := s.snapshots.Insert(ctx, nil, snapshot); err != nil {
			return nil, err
		}
		s.logger.Info("baseline snapshot established",
			zap.String("table", table.FQN()),
			zap.String("hash", currentHash[:12]))
		return nil, nil
	}

	// Cheap path: unchanged hash means no diff work and no new row needed
	// beyond the snapshot append.
	if prior.SnapshotHash == currentHash {
		if err := s.snapshots.Insert(ctx, nil, snapshot); err != nil {
			return nil, err
		}
		return nil, nil
	}

	changes := DiffColumns(prior.Columns, columns)

	anomaly := &models.Anomaly{
		TableID:  table.ID,
		Type:     models.AnomalyTypeSchemaDrift,
		Severity: ClassifySeverity(changes),
		Detail: models.SchemaDriftDetail{
			Changes:      changes,
			PriorHash:    prior.SnapshotHash,
			CurrentHash:  currentHash,
			ColumnsTotal: len(columns),
		},
		DetectedAt: s.now().UTC(),
	}

	err = s.db.InTx(ctx, func(tx pgx.Tx) error {
		if err := s.snapshots.Insert(ctx, tx, snapshot); err != nil {
			return err
		}
		return s.anomalies.Insert(ctx, tx, anomaly)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("schema drift detected",
		zap.String("table", table.FQN()),
		zap.String("severity", anomaly.Severity),
		zap.Int("changes", len(changes)))
	return anomaly, nil
}
