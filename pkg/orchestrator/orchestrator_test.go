package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/apperrors"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/architect"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/database"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/executor"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/models"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/notifier"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/repositories"
)

// ---- in-memory fakes ----

type fakeIncidentRepo struct {
	incidents map[uuid.UUID]*models.Incident
}

func newFakeIncidentRepo() *fakeIncidentRepo {
	return &fakeIncidentRepo{incidents: make(map[uuid.UUID]*models.Incident)}
}

func (f *fakeIncidentRepo) Insert(ctx context.Context, q database.Querier, incident *models.Incident) error {
	for _, existing := range f.incidents {
		if existing.TableID == incident.TableID &&
			existing.AnomalyType == incident.AnomalyType && !existing.IsTerminal() {
			return apperrors.ErrConflict
		}
	}
	incident.ID = uuid.New()
	now := time.Now().UTC()
	incident.CreatedAt = now
	incident.UpdatedAt = now
	stored := *incident
	f.incidents[incident.ID] = &stored
	return nil
}

func (f *fakeIncidentRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Incident, error) {
	incident, ok := f.incidents[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	clone := *incident
	return &clone, nil
}

func (f *fakeIncidentRepo) GetActive(ctx context.Context, tableID uuid.UUID, anomalyType string) (*models.Incident, error) {
	for _, incident := range f.incidents {
		if incident.TableID == tableID && incident.AnomalyType == anomalyType && !incident.IsTerminal() {
			clone := *incident
			return &clone, nil
		}
	}
	return nil, nil
}

func (f *fakeIncidentRepo) List(ctx context.Context, filter repositories.IncidentFilter) ([]*models.Incident, error) {
	var result []*models.Incident
	for _, incident := range f.incidents {
		clone := *incident
		result = append(result, &clone)
	}
	return result, nil
}

func (f *fakeIncidentRepo) Update(ctx context.Context, q database.Querier, incident *models.Incident) error {
	if _, ok := f.incidents[incident.ID]; !ok {
		return apperrors.ErrNotFound
	}
	incident.UpdatedAt = time.Now().UTC()
	stored := *incident
	f.incidents[incident.ID] = &stored
	return nil
}

func (f *fakeIncidentRepo) Touch(ctx context.Context, id uuid.UUID) error {
	incident, ok := f.incidents[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	incident.UpdatedAt = time.Now().UTC()
	return nil
}

func (f *fakeIncidentRepo) Stats(ctx context.Context) (*repositories.IncidentStats, error) {
	return &repositories.IncidentStats{}, nil
}

type fakeAnomalyRepo struct {
	anomalies map[uuid.UUID]*models.Anomaly
}

func newFakeAnomalyRepo() *fakeAnomalyRepo {
	return &fakeAnomalyRepo{anomalies: make(map[uuid.UUID]*models.Anomaly)}
}

func (f *fakeAnomalyRepo) Insert(ctx context.Context, q database.Querier, a *models.Anomaly) error {
	a.ID = uuid.New()
	f.anomalies[a.ID] = a
	return nil
}

func (f *fakeAnomalyRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Anomaly, error) {
	a, ok := f.anomalies[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return a, nil
}

func (f *fakeAnomalyRepo) ListRecent(ctx context.Context, tableIDs []uuid.UUID, since time.Time) ([]*models.Anomaly, error) {
	return nil, nil
}

type fakeTableRepo struct {
	tables map[uuid.UUID]*models.MonitoredTable
}

func newFakeTableRepo() *fakeTableRepo {
	return &fakeTableRepo{tables: make(map[uuid.UUID]*models.MonitoredTable)}
}

func (f *fakeTableRepo) Create(ctx context.Context, t *models.MonitoredTable) error {
	t.ID = uuid.New()
	f.tables[t.ID] = t
	return nil
}

func (f *fakeTableRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.MonitoredTable, error) {
	t, ok := f.tables[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return t, nil
}

func (f *fakeTableRepo) List(ctx context.Context, filter repositories.TableFilter) ([]*models.MonitoredTable, error) {
	var result []*models.MonitoredTable
	for _, t := range f.tables {
		result = append(result, t)
	}
	return result, nil
}

func (f *fakeTableRepo) ListByConnection(ctx context.Context, connectionID uuid.UUID) ([]*models.MonitoredTable, error) {
	return f.List(ctx, repositories.TableFilter{})
}

func (f *fakeTableRepo) Update(ctx context.Context, t *models.MonitoredTable) error { return nil }
func (f *fakeTableRepo) Delete(ctx context.Context, id uuid.UUID) error             { return nil }

type fakeSnapshotRepo struct{}

func (fakeSnapshotRepo) Insert(ctx context.Context, q database.Querier, s *models.SchemaSnapshot) error {
	return nil
}
func (fakeSnapshotRepo) GetLatest(ctx context.Context, tableID uuid.UUID) (*models.SchemaSnapshot, error) {
	return nil, nil
}

type fakeLineage struct {
	downstream []models.LineageNode
}

func (f *fakeLineage) Upstream(ctx context.Context, table string, depth int, minConfidence float64) ([]models.LineageNode, error) {
	return nil, nil
}
func (f *fakeLineage) Downstream(ctx context.Context, table string, depth int, minConfidence float64) ([]models.LineageNode, error) {
	return f.downstream, nil
}
func (f *fakeLineage) BlastRadius(ctx context.Context, table string) (*models.BlastRadius, error) {
	tables := make([]string, 0, len(f.downstream))
	for _, n := range f.downstream {
		tables = append(tables, n.Table)
	}
	return &models.BlastRadius{AffectedTables: tables, Total: len(tables)}, nil
}

// ---- fixture ----

type fixture struct {
	orch      *Orchestrator
	incidents *fakeIncidentRepo
	anomalies *fakeAnomalyRepo
	tables    *fakeTableRepo
	events    *notifier.Notifier
	table     *models.MonitoredTable
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zap.NewNop()

	incidents := newFakeIncidentRepo()
	anomalies := newFakeAnomalyRepo()
	tables := newFakeTableRepo()
	events := notifier.New(100, logger)

	table := &models.MonitoredTable{
		SchemaName: "analytics",
		TableName:  "orders",
		CheckTypes: []string{models.CheckSchema},
	}
	require.NoError(t, tables.Create(context.Background(), table))

	lin := &fakeLineage{downstream: []models.LineageNode{{Table: "mart.revenue", Depth: 1, Confidence: 1.0}}}
	arch := architect.New(nil, lin, anomalies, tables, fakeSnapshotRepo{}, logger)

	return &fixture{
		orch:      New(incidents, anomalies, tables, arch, executor.New(), events, logger),
		incidents: incidents,
		anomalies: anomalies,
		tables:    tables,
		events:    events,
		table:     table,
	}
}

func (f *fixture) anomaly(t *testing.T) *models.Anomaly {
	t.Helper()
	anomaly := &models.Anomaly{
		TableID:  f.table.ID,
		Type:     models.AnomalyTypeSchemaDrift,
		Severity: models.SeverityCritical,
		Detail: models.SchemaDriftDetail{
			Changes: []models.SchemaChange{
				{ChangeType: models.ChangeColumnTypeChanged, Column: "price", FromType: "FLOAT", ToType: "VARCHAR(255)"},
			},
		},
		DetectedAt: time.Now().UTC(),
	}
	require.NoError(t, f.anomalies.Insert(context.Background(), nil, anomaly))
	return anomaly
}

// ---- tests ----

func TestHandleAnomalyCreatesIncident(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.events.Subscribe(0)

	incident, err := f.orch.HandleAnomaly(ctx, f.anomaly(t))
	require.NoError(t, err)

	assert.Equal(t, models.IncidentPendingReview, incident.Status)
	assert.Equal(t, models.SeverityCritical, incident.Severity)
	require.NotNil(t, incident.Diagnosis)
	assert.Equal(t, 0.0, incident.Diagnosis.Confidence, "fallback diagnosis without LLM")
	assert.Equal(t, []string{"mart.revenue"}, incident.BlastRadius)
	require.NotNil(t, incident.Remediation)
	require.Len(t, incident.Remediation.Actions, 1)
	assert.Equal(t, models.ActionInvestigate, incident.Remediation.Actions[0].Type)
	require.NotNil(t, incident.Report)
	assert.Equal(t, "Schema drift on analytics.orders", incident.Report.Title)

	event := <-sub.C
	assert.Equal(t, notifier.EventIncidentCreated, event.Kind)
}

func TestHandleAnomalyDeduplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.orch.HandleAnomaly(ctx, f.anomaly(t))
	require.NoError(t, err)

	sub := f.events.Subscribe(0)
	second, err := f.orch.HandleAnomaly(ctx, f.anomaly(t))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID, "same active incident is reused")

	active, err := f.incidents.GetActive(ctx, f.table.ID, models.AnomalyTypeSchemaDrift)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, first.ID, active.ID)

	// Skip the backfilled incident.created; the merge announces an update.
	var kinds []string
	for len(sub.C) > 0 {
		kinds = append(kinds, (<-sub.C).Kind)
	}
	assert.Contains(t, kinds, notifier.EventIncidentUpdated)
	assert.NotContains(t, kinds[1:], notifier.EventIncidentCreated,
		"no second incident.created for a merged anomaly")
}

func TestApproveResolvesIncident(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	incident, err := f.orch.HandleAnomaly(ctx, f.anomaly(t))
	require.NoError(t, err)

	resolved, err := f.orch.Approve(ctx, incident.ID, "ops@example.com", "looks expected")
	require.NoError(t, err)
	assert.Equal(t, models.IncidentResolved, resolved.Status)
	require.NotNil(t, resolved.ResolvedAt)
	require.NotNil(t, resolved.ResolvedBy)
	assert.Equal(t, "ops@example.com", *resolved.ResolvedBy)
}

func TestDismissRequiresReason(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	incident, err := f.orch.HandleAnomaly(ctx, f.anomaly(t))
	require.NoError(t, err)

	_, err = f.orch.Dismiss(ctx, incident.ID, "", "")
	assert.ErrorIs(t, err, apperrors.ErrMissingReason)

	dismissed, err := f.orch.Dismiss(ctx, incident.ID, "", "expected change")
	require.NoError(t, err)
	assert.Equal(t, models.IncidentDismissed, dismissed.Status)
	require.NotNil(t, dismissed.DismissReason)
	assert.Equal(t, "expected change", *dismissed.DismissReason)
}

func TestTerminalIncidentsForbidTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	incident, err := f.orch.HandleAnomaly(ctx, f.anomaly(t))
	require.NoError(t, err)

	_, err = f.orch.Dismiss(ctx, incident.ID, "", "noise")
	require.NoError(t, err)

	_, err = f.orch.Approve(ctx, incident.ID, "", "")
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
	_, err = f.orch.Dismiss(ctx, incident.ID, "", "again")
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
}

func TestResolvedIncidentAllowsNewIncident(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.orch.HandleAnomaly(ctx, f.anomaly(t))
	require.NoError(t, err)
	_, err = f.orch.Approve(ctx, first.ID, "", "")
	require.NoError(t, err)

	second, err := f.orch.HandleAnomaly(ctx, f.anomaly(t))
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID, "a terminal incident does not absorb new anomalies")
}
