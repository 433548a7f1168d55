package sentinels

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/models"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/repositories"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/warehouse"
)

// FreshnessSentinel detects tables whose last update is older than their SLA.
type FreshnessSentinel struct {
	anomalies repositories.AnomalyRepository
	logger    *zap.Logger
	now       func() time.Time
}

// NewFreshnessSentinel creates a freshness detector.
func NewFreshnessSentinel(anomalies repositories.AnomalyRepository, logger *zap.Logger) *FreshnessSentinel {
	return &FreshnessSentinel{
		anomalies: anomalies,
		logger:    logger.Named("sentinel.freshness"),
		now:       time.Now,
	}
}

// Check inspects one table. A table without an SLA or without a readable
// last-update signal opts out: no anomaly.
func (s *FreshnessSentinel) Check(ctx context.Context, conn warehouse.Connector, table *models.MonitoredTable) (*models.Anomaly, error) {
	if !table.FreshnessEnabled() {
		return nil, nil
	}

	lastUpdate, err := conn.FetchLastUpdateTime(ctx, table.SchemaName, table.TableName)
	if err != nil {
		return nil, fmt.Errorf("fetch last update for %s: %w", table.FQN(), err)
	}
	if lastUpdate == nil {
		s.logger.Debug("no last-update signal, freshness not evaluable",
			zap.String("table", table.FQN()))
		return nil, nil
	}

	sla := time.Duration(*table.FreshnessSLAMinutes) * time.Minute
	overdue := s.now().UTC().Sub(lastUpdate.UTC()) - sla
	if overdue <= 0 {
		return nil, nil
	}

	overdueMinutes := int(overdue.Minutes())
	anomaly := &models.Anomaly{
		TableID:  table.ID,
		Type:     models.AnomalyTypeFreshnessViolation,
		Severity: freshnessSeverity(overdue, sla),
		Detail: models.FreshnessViolationDetail{
			LastUpdate:     lastUpdate.UTC(),
			SLAMinutes:     *table.FreshnessSLAMinutes,
			MinutesOverdue: overdueMinutes,
		},
		DetectedAt: s.now().UTC(),
	}

	if err := s.anomalies.Insert(ctx, nil, anomaly); err != nil {
		return nil, err
	}

	s.logger.Info("freshness violation detected",
		zap.String("table", table.FQN()),
		zap.String("severity", anomaly.Severity),
		zap.Int("minutes_overdue", overdueMinutes))
	return anomaly, nil
}

// freshnessSeverity grades by how many SLA multiples the table is overdue:
// under 1x medium, 1-4x high, 4x and beyond critical.
func freshnessSeverity(overdue, sla time.Duration) string {
	ratio := float64(overdue) / float64(sla)
	switch {
	case ratio >= 4:
		return models.SeverityCritical
	case ratio >= 1:
		return models.SeverityHigh
	default:
		return models.SeverityMedium
	}
}
